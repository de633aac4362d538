/*
Copyright (C) 2026 Friends Incode

SPDX-License-Identifier: AGPL-3.0-or-later
*/

// Package eventbus forwards in-process events to NATS so that other
// services can follow slot changes.
package eventbus

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/nats-io/nats.go"
	"github.com/rs/zerolog"

	"github.com/friendsincode/slotcast/internal/events"
	"github.com/friendsincode/slotcast/internal/telemetry"
)

// NATSConfig contains NATS connection configuration.
type NATSConfig struct {
	URL           string
	SubjectPrefix string
	NodeID        string

	MaxReconnects int
	ReconnectWait time.Duration
	Timeout       time.Duration
}

// DefaultNATSConfig returns default NATS configuration.
func DefaultNATSConfig() NATSConfig {
	return NATSConfig{
		URL:           nats.DefaultURL,
		SubjectPrefix: "slotcast",
		MaxReconnects: -1, // Unlimited
		ReconnectWait: 2 * time.Second,
		Timeout:       5 * time.Second,
	}
}

// publisher is the part of *nats.Conn the bridge needs.
type publisher interface {
	Publish(subject string, data []byte) error
}

// NATSBridge relays every bus event to "<prefix>.<event_type>".
type NATSBridge struct {
	conn   *nats.Conn
	pub    publisher
	bus    *events.Bus
	prefix string
	nodeID string
	logger zerolog.Logger

	wg   sync.WaitGroup
	once sync.Once
	stop chan struct{}
}

// NewNATSBridge connects to NATS.
func NewNATSBridge(cfg NATSConfig, bus *events.Bus, logger zerolog.Logger) (*NATSBridge, error) {
	logger = logger.With().Str("component", "nats_bridge").Logger()

	conn, err := nats.Connect(cfg.URL,
		nats.Name("slotcast"),
		nats.MaxReconnects(cfg.MaxReconnects),
		nats.ReconnectWait(cfg.ReconnectWait),
		nats.Timeout(cfg.Timeout),
		nats.DisconnectErrHandler(func(_ *nats.Conn, err error) {
			logger.Warn().Err(err).Msg("nats disconnected")
		}),
		nats.ReconnectHandler(func(c *nats.Conn) {
			logger.Info().Str("url", c.ConnectedUrl()).Msg("nats reconnected")
		}),
	)
	if err != nil {
		return nil, fmt.Errorf("connect nats: %w", err)
	}

	b := newBridge(conn, bus, cfg, logger)
	b.conn = conn
	logger.Info().Str("url", conn.ConnectedUrl()).Str("prefix", b.prefix).Msg("nats bridge connected")
	return b, nil
}

func newBridge(pub publisher, bus *events.Bus, cfg NATSConfig, logger zerolog.Logger) *NATSBridge {
	prefix := cfg.SubjectPrefix
	if prefix == "" {
		prefix = "slotcast"
	}
	nodeID := cfg.NodeID
	if nodeID == "" {
		nodeID = generateNodeID()
	}
	return &NATSBridge{
		pub:    pub,
		bus:    bus,
		prefix: prefix,
		nodeID: nodeID,
		logger: logger,
		stop:   make(chan struct{}),
	}
}

// Start forwards events until ctx is cancelled or Close is called.
func (b *NATSBridge) Start(ctx context.Context) {
	sub := b.bus.Subscribe(events.EventAny)

	b.wg.Add(1)
	go func() {
		defer b.wg.Done()
		defer b.bus.Unsubscribe(events.EventAny, sub)

		for {
			select {
			case <-ctx.Done():
				return
			case <-b.stop:
				return
			case payload, ok := <-sub:
				if !ok {
					return
				}
				if err := b.forward(payload); err != nil {
					b.logger.Warn().Err(err).Msg("forward event failed")
				}
			}
		}
	}()
}

func (b *NATSBridge) forward(payload events.Payload) error {
	eventType, _ := payload["type"].(string)
	if eventType == "" {
		return fmt.Errorf("event without type")
	}

	data, err := marshalNATSMessage(events.EventType(eventType), payload, b.nodeID)
	if err != nil {
		return err
	}
	if err := b.pub.Publish(b.Subject(events.EventType(eventType)), data); err != nil {
		return fmt.Errorf("publish %s: %w", eventType, err)
	}
	telemetry.EventsPublishedTotal.WithLabelValues("nats", eventType).Inc()
	return nil
}

// Subject returns the NATS subject an event type is published on.
func (b *NATSBridge) Subject(eventType events.EventType) string {
	return b.prefix + "." + string(eventType)
}

// Close stops forwarding and drains the connection.
func (b *NATSBridge) Close() error {
	b.once.Do(func() { close(b.stop) })
	b.wg.Wait()
	if b.conn != nil {
		return b.conn.Drain()
	}
	return nil
}

// natsMessage represents a message published to NATS.
type natsMessage struct {
	EventType events.EventType `json:"event_type"`
	Payload   events.Payload   `json:"payload"`
	Timestamp time.Time        `json:"timestamp"`
	NodeID    string           `json:"node_id"`
	MessageID string           `json:"message_id"` // For deduplication
}

func marshalNATSMessage(eventType events.EventType, payload events.Payload, nodeID string) ([]byte, error) {
	msg := natsMessage{
		EventType: eventType,
		Payload:   payload,
		Timestamp: time.Now().UTC(),
		NodeID:    nodeID,
		MessageID: uuid.NewString(),
	}
	return json.Marshal(msg)
}

func unmarshalNATSMessage(data []byte) (*natsMessage, error) {
	var msg natsMessage
	if err := json.Unmarshal(data, &msg); err != nil {
		return nil, fmt.Errorf("unmarshal nats message: %w", err)
	}
	return &msg, nil
}

func generateNodeID() string {
	host, err := os.Hostname()
	if err != nil || host == "" {
		host = "slotcast"
	}
	return host + "-" + uuid.NewString()[:8]
}
