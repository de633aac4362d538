package events

import (
	"sync"
	"testing"
)

func TestPublishDeliversToTypeAndWildcard(t *testing.T) {
	bus := NewBus()
	typed := bus.Subscribe(EventSlotChanged)
	all := bus.Subscribe(EventAny)
	other := bus.Subscribe(EventBucketRebuilt)

	payload := Payload{"slot": "banner"}
	bus.Publish(EventSlotChanged, payload)

	for name, sub := range map[string]Subscriber{"typed": typed, "wildcard": all} {
		select {
		case got := <-sub:
			if got["slot"] != "banner" || got["type"] != string(EventSlotChanged) {
				t.Errorf("%s subscriber got %v", name, got)
			}
		default:
			t.Errorf("%s subscriber received nothing", name)
		}
	}

	select {
	case got := <-other:
		t.Errorf("unrelated subscriber got %v", got)
	default:
	}

	if _, ok := payload["type"]; ok {
		t.Error("Publish must not mutate the caller's payload")
	}
}

func TestPublishDropsWhenSubscriberFull(t *testing.T) {
	bus := NewBus()
	sub := bus.Subscribe(EventBucketRebuilt)

	for i := 0; i < DefaultBuffer+5; i++ {
		bus.Publish(EventBucketRebuilt, Payload{"n": i})
	}
	if len(sub) != DefaultBuffer {
		t.Fatalf("buffered = %d, want %d", len(sub), DefaultBuffer)
	}
}

func TestUnsubscribeClosesChannel(t *testing.T) {
	bus := NewBus()
	sub := bus.Subscribe(EventSlotChanged)
	bus.Unsubscribe(EventSlotChanged, sub)

	if _, ok := <-sub; ok {
		t.Fatal("channel should be closed")
	}
	bus.Publish(EventSlotChanged, Payload{})
	bus.Unsubscribe(EventSlotChanged, sub) // second call is a no-op
}

func TestConcurrentPublishAndUnsubscribe(t *testing.T) {
	bus := NewBus()

	var wg sync.WaitGroup
	done := make(chan struct{})
	wg.Add(1)
	go func() {
		defer wg.Done()
		for {
			select {
			case <-done:
				return
			default:
				bus.Publish(EventSlotChanged, Payload{"slot": "banner"})
			}
		}
	}()

	for i := 0; i < 2000; i++ {
		eventType := EventSlotChanged
		if i%2 == 1 {
			eventType = EventAny
		}
		sub := bus.Subscribe(eventType)
		bus.Unsubscribe(eventType, sub)
	}
	close(done)
	wg.Wait()
}
