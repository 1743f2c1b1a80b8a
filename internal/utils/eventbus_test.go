package utils

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/google/go-cmp/cmp"
	"go.uber.org/zap/zaptest"
)

func TestEventBus_DispatchInOrder(t *testing.T) {
	bus := NewEventBus(zaptest.NewLogger(t), 10)

	var (
		mu   sync.Mutex
		got  []string
		all  int
		done = make(chan struct{})
	)
	bus.Subscribe("a", func(e Event) {
		mu.Lock()
		got = append(got, e.Data.(string))
		mu.Unlock()
	})
	bus.Subscribe("b", func(e Event) { panic("boom") })
	bus.SubscribeAll(func(e Event) {
		mu.Lock()
		all++
		n := all
		mu.Unlock()
		if n == 4 {
			close(done)
		}
	})

	bus.Publish("a", "1")
	bus.Publish("b", "x")
	bus.Publish("a", "2")
	bus.Publish("a", "3")

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go bus.Run(ctx)

	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatal("timed out waiting for dispatch")
	}

	mu.Lock()
	defer mu.Unlock()
	if diff := cmp.Diff([]string{"1", "2", "3"}, got); diff != "" {
		t.Errorf("dispatch order mismatch (-want +got):\n%s", diff)
	}
}

func TestEventBus_PublishDropsWhenFull(t *testing.T) {
	bus := NewEventBus(zaptest.NewLogger(t), 1)
	bus.Publish("a", 1)
	bus.Publish("a", 2)

	if n := len(bus.events); n != 1 {
		t.Fatalf("queued events = %d, want 1", n)
	}
}
