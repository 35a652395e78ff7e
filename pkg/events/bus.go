// Package events provides the process-wide notification bus. Connections
// queue "status changed" and "deployments changed" events here instead of
// invoking observers directly, which keeps subscriber code out of registry
// lock scopes and avoids reentrancy when a subscriber triggers a new
// operation from inside its handler.
package events

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
)

// Kind is the event type.
type Kind string

const (
	// KindConnectionStatusChanged fires when a connection's status or status
	// text changes.
	KindConnectionStatusChanged Kind = "connection.status_changed"

	// KindDeploymentsChanged fires when a connection's deployment set changes.
	KindDeploymentsChanged Kind = "deployments.changed"
)

// Event is one queued notification, tagged with the originating connection.
type Event struct {
	ID         string    `json:"id"`
	Kind       Kind      `json:"kind"`
	Connection string    `json:"connection"`
	Timestamp  time.Time `json:"timestamp"`
}

// Subscriber handles delivered events.
type Subscriber func(event Event)

// Filter decides whether a subscriber receives an event.
type Filter func(event Event) bool

// Config configures the bus.
type Config struct {
	// BufferSize is the queue capacity. Publishing to a full queue drops the
	// event rather than blocking the mutating goroutine.
	BufferSize int
}

// DefaultConfig returns the default bus configuration.
func DefaultConfig() Config {
	return Config{BufferSize: 1024}
}

type subscriberEntry struct {
	id         string
	subscriber Subscriber
	filter     Filter
}

// Bus delivers events asynchronously with respect to the triggering mutation.
// A single dispatcher goroutine drains the queue, so delivery order across
// events from the same connection is FIFO.
type Bus struct {
	buffer chan Event

	mu          sync.RWMutex
	subscribers []subscriberEntry

	closeOnce sync.Once
	done      chan struct{}
	drained   chan struct{}
}

// NewBus creates and starts a bus.
func NewBus(cfg Config) *Bus {
	if cfg.BufferSize <= 0 {
		cfg.BufferSize = DefaultConfig().BufferSize
	}

	b := &Bus{
		buffer:  make(chan Event, cfg.BufferSize),
		done:    make(chan struct{}),
		drained: make(chan struct{}),
	}
	go b.dispatch()
	return b
}

// QueueConnectionStatusChanged queues a status-changed event for a connection.
func (b *Bus) QueueConnectionStatusChanged(connection string) {
	b.queue(Event{Kind: KindConnectionStatusChanged, Connection: connection})
}

// QueueDeploymentsChanged queues a deployments-changed event for a connection.
func (b *Bus) QueueDeploymentsChanged(connection string) {
	b.queue(Event{Kind: KindDeploymentsChanged, Connection: connection})
}

func (b *Bus) queue(event Event) {
	event.ID = uuid.New().String()
	event.Timestamp = time.Now()

	select {
	case <-b.done:
	case b.buffer <- event:
	default:
		// Queue full. Dropping is preferable to blocking a mutation path.
	}
}

// Subscribe registers a subscriber and returns its subscription ID. filter
// may be nil to receive every event.
func (b *Bus) Subscribe(subscriber Subscriber, filter Filter) string {
	id := uuid.New().String()

	b.mu.Lock()
	b.subscribers = append(b.subscribers, subscriberEntry{
		id:         id,
		subscriber: subscriber,
		filter:     filter,
	})
	b.mu.Unlock()

	return id
}

// Unsubscribe removes a subscription. Events already queued may still be
// delivered to other subscribers but not to the removed one.
func (b *Bus) Unsubscribe(id string) {
	b.mu.Lock()
	defer b.mu.Unlock()

	for i, entry := range b.subscribers {
		if entry.id == id {
			b.subscribers = append(b.subscribers[:i], b.subscribers[i+1:]...)
			return
		}
	}
}

// dispatch drains the queue until the bus is closed, then delivers what
// remains buffered before signalling drained.
func (b *Bus) dispatch() {
	defer close(b.drained)

	for {
		select {
		case event := <-b.buffer:
			b.deliver(event)
		case <-b.done:
			for {
				select {
				case event := <-b.buffer:
					b.deliver(event)
				default:
					return
				}
			}
		}
	}
}

// deliver invokes subscribers synchronously on the dispatcher goroutine to
// preserve per-connection FIFO order.
func (b *Bus) deliver(event Event) {
	b.mu.RLock()
	entries := append([]subscriberEntry{}, b.subscribers...)
	b.mu.RUnlock()

	for _, entry := range entries {
		if entry.filter != nil && !entry.filter(event) {
			continue
		}
		entry.subscriber(event)
	}
}

// Close stops the bus and waits for queued events to be delivered, or for the
// context to expire.
func (b *Bus) Close(ctx context.Context) error {
	b.closeOnce.Do(func() {
		close(b.done)
	})

	select {
	case <-b.drained:
		return nil
	case <-ctx.Done():
		return fmt.Errorf("event bus shutdown timeout")
	}
}

// FilterByConnection only allows events for the named connection.
func FilterByConnection(connection string) Filter {
	return func(event Event) bool {
		return event.Connection == connection
	}
}

// FilterByKind only allows events of the given kinds.
func FilterByKind(kinds ...Kind) Filter {
	set := make(map[Kind]bool, len(kinds))
	for _, k := range kinds {
		set[k] = true
	}
	return func(event Event) bool {
		return set[event.Kind]
	}
}
