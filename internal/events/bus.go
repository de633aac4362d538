/*
Copyright (C) 2026 Friends Incode

SPDX-License-Identifier: AGPL-3.0-or-later
*/

package events

import "sync"

// EventType enumerates event categories.
type EventType string

const (
	// EventAny subscribes to every event type.
	EventAny EventType = "*"

	EventSlotChanged   EventType = "slot.changed"
	EventBucketRebuilt EventType = "bucket.rebuilt"
	EventLeaderChanged EventType = "leader.changed"
)

// Payload generic event payload.
type Payload map[string]any

// Subscriber receives event payloads.
type Subscriber chan Payload

// DefaultBuffer is the channel capacity given to each subscriber.
const DefaultBuffer = 16

// Bus implements a simple in-process pubsub. Slow subscribers miss events
// rather than blocking publishers.
type Bus struct {
	mu   sync.RWMutex
	subs map[EventType][]Subscriber
}

// NewBus creates an event bus.
func NewBus() *Bus {
	return &Bus{subs: make(map[EventType][]Subscriber)}
}

// Subscribe registers a subscriber for event type, or for all types with EventAny.
func (b *Bus) Subscribe(eventType EventType) Subscriber {
	ch := make(Subscriber, DefaultBuffer)
	b.mu.Lock()
	b.subs[eventType] = append(b.subs[eventType], ch)
	b.mu.Unlock()
	return ch
}

// Publish sends a copy of payload, tagged with its type, to subscribers.
func (b *Bus) Publish(eventType EventType, payload Payload) {
	msg := make(Payload, len(payload)+1)
	for k, v := range payload {
		msg[k] = v
	}
	msg["type"] = string(eventType)

	// Sends happen under the read lock so Unsubscribe cannot close a
	// channel mid-send. They never block.
	b.mu.RLock()
	defer b.mu.RUnlock()
	deliver(b.subs[eventType], msg)
	if eventType != EventAny {
		deliver(b.subs[EventAny], msg)
	}
}

func deliver(subs []Subscriber, msg Payload) {
	for _, sub := range subs {
		select {
		case sub <- msg:
		default:
		}
	}
}

// Unsubscribe removes the subscriber and closes its channel.
func (b *Bus) Unsubscribe(eventType EventType, sub Subscriber) {
	b.mu.Lock()
	defer b.mu.Unlock()
	subs := b.subs[eventType]
	for i, candidate := range subs {
		if candidate == sub {
			b.subs[eventType] = append(subs[:i], subs[i+1:]...)
			close(sub)
			return
		}
	}
}
