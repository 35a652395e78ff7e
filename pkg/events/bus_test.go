package events

import (
	"context"
	"sync"
	"testing"
	"time"
)

func TestBus_DeliversInFIFOOrder(t *testing.T) {
	bus := NewBus(DefaultConfig())

	var mu sync.Mutex
	var got []Kind
	done := make(chan struct{})

	bus.Subscribe(func(event Event) {
		mu.Lock()
		got = append(got, event.Kind)
		if len(got) == 4 {
			close(done)
		}
		mu.Unlock()
	}, FilterByConnection("srv"))

	bus.QueueConnectionStatusChanged("srv")
	bus.QueueDeploymentsChanged("srv")
	bus.QueueDeploymentsChanged("srv")
	bus.QueueConnectionStatusChanged("srv")

	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatal("Timed out waiting for delivery")
	}

	want := []Kind{
		KindConnectionStatusChanged,
		KindDeploymentsChanged,
		KindDeploymentsChanged,
		KindConnectionStatusChanged,
	}
	mu.Lock()
	defer mu.Unlock()
	for i, kind := range want {
		if got[i] != kind {
			t.Errorf("Event %d: expected %s, got %s", i, kind, got[i])
		}
	}

	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()
	if err := bus.Close(ctx); err != nil {
		t.Errorf("Close failed: %v", err)
	}
}

func TestBus_FilterByConnection(t *testing.T) {
	bus := NewBus(DefaultConfig())

	var mu sync.Mutex
	var got []string
	done := make(chan struct{})

	bus.Subscribe(func(event Event) {
		mu.Lock()
		got = append(got, event.Connection)
		mu.Unlock()
		close(done)
	}, FilterByConnection("wanted"))

	bus.QueueDeploymentsChanged("other")
	bus.QueueDeploymentsChanged("wanted")

	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatal("Timed out waiting for delivery")
	}

	mu.Lock()
	defer mu.Unlock()
	if len(got) != 1 || got[0] != "wanted" {
		t.Errorf("Expected only events for %q, got %v", "wanted", got)
	}

	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()
	_ = bus.Close(ctx)
}

func TestBus_Unsubscribe(t *testing.T) {
	bus := NewBus(DefaultConfig())

	var mu sync.Mutex
	count := 0
	id := bus.Subscribe(func(Event) {
		mu.Lock()
		count++
		mu.Unlock()
	}, nil)

	bus.Unsubscribe(id)
	bus.QueueDeploymentsChanged("srv")

	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()
	if err := bus.Close(ctx); err != nil {
		t.Fatalf("Close failed: %v", err)
	}

	mu.Lock()
	defer mu.Unlock()
	if count != 0 {
		t.Errorf("Expected no deliveries after unsubscribe, got %d", count)
	}
}

func TestBus_CloseDrainsQueue(t *testing.T) {
	bus := NewBus(Config{BufferSize: 64})

	var mu sync.Mutex
	count := 0
	bus.Subscribe(func(Event) {
		mu.Lock()
		count++
		mu.Unlock()
	}, FilterByKind(KindDeploymentsChanged))

	for i := 0; i < 10; i++ {
		bus.QueueDeploymentsChanged("srv")
	}

	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	if err := bus.Close(ctx); err != nil {
		t.Fatalf("Close failed: %v", err)
	}

	mu.Lock()
	defer mu.Unlock()
	if count != 10 {
		t.Errorf("Expected all 10 queued events delivered before Close returned, got %d", count)
	}
}

func TestBus_QueueAfterCloseIsNoop(t *testing.T) {
	bus := NewBus(DefaultConfig())

	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()
	if err := bus.Close(ctx); err != nil {
		t.Fatalf("Close failed: %v", err)
	}

	// Must not panic or block.
	bus.QueueDeploymentsChanged("srv")
}
