package fanout

import (
	"context"
	"sync"
	"testing"
	"time"
)

func TestMemoryBusDeliversToSubscribers(t *testing.T) {
	bus := NewMemoryBus()
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	var mu sync.Mutex
	var got []Envelope
	go bus.Subscribe(ctx, func(env Envelope) {
		mu.Lock()
		got = append(got, env)
		mu.Unlock()
	})
	time.Sleep(20 * time.Millisecond)

	env := NewEnvelope(KindRoomMessage, "room-a", "hello", "u1", "node-1")
	if err := bus.Publish(context.Background(), env); err != nil {
		t.Fatalf("publish: %v", err)
	}

	mu.Lock()
	defer mu.Unlock()
	if len(got) != 1 {
		t.Fatalf("expected 1 envelope, got %d", len(got))
	}
	if got[0].RoomID != "room-a" || got[0].Origin != "node-1" || got[0].Type != KindRoomMessage {
		t.Fatalf("unexpected envelope %+v", got[0])
	}
	if got[0].Timestamp == "" {
		t.Fatal("envelope timestamp must be set")
	}
}

func TestMemoryBusSubscribeStopsOnCancel(t *testing.T) {
	bus := NewMemoryBus()
	ctx, cancel := context.WithCancel(context.Background())

	done := make(chan error, 1)
	go func() { done <- bus.Subscribe(ctx, func(Envelope) {}) }()
	cancel()

	select {
	case err := <-done:
		if err != nil && err != context.Canceled {
			t.Fatalf("subscribe returned %v", err)
		}
	case <-time.After(time.Second):
		t.Fatal("subscribe did not return after cancel")
	}
}
