package broadcast

import (
	"fmt"
	"sync"

	"github.com/nats-io/nats.go"
)

// Bus is the pub/sub primitive under the room gateway. Production runs
// on NATS; tests and single-node development use the in-memory bus.
type Bus interface {
	Publish(subject string, data []byte) error

	// Subscribe registers a handler for a subject and returns an
	// unsubscribe function.
	Subscribe(subject string, handler func(data []byte)) (func() error, error)
}

type natsBus struct {
	nc *nats.Conn
}

// NewNATSBus wraps a NATS connection as a Bus.
func NewNATSBus(nc *nats.Conn) Bus {
	return &natsBus{nc: nc}
}

func (b *natsBus) Publish(subject string, data []byte) error {
	return b.nc.Publish(subject, data)
}

func (b *natsBus) Subscribe(subject string, handler func(data []byte)) (func() error, error) {
	sub, err := b.nc.Subscribe(subject, func(msg *nats.Msg) {
		handler(msg.Data)
	})
	if err != nil {
		return nil, fmt.Errorf("subscribe %s: %w", subject, err)
	}
	return sub.Unsubscribe, nil
}

// MemoryBus is an in-process Bus. Handlers run synchronously on the
// publisher's goroutine, which preserves publish order per subject.
type MemoryBus struct {
	mu       sync.RWMutex
	nextID   int
	handlers map[string]map[int]func(data []byte)
}

// NewMemoryBus creates an empty in-memory bus.
func NewMemoryBus() *MemoryBus {
	return &MemoryBus{handlers: make(map[string]map[int]func(data []byte))}
}

func (b *MemoryBus) Publish(subject string, data []byte) error {
	b.mu.RLock()
	subs := make([]func(data []byte), 0, len(b.handlers[subject]))
	for _, h := range b.handlers[subject] {
		subs = append(subs, h)
	}
	b.mu.RUnlock()

	for _, h := range subs {
		h(data)
	}
	return nil
}

func (b *MemoryBus) Subscribe(subject string, handler func(data []byte)) (func() error, error) {
	b.mu.Lock()
	b.nextID++
	id := b.nextID
	if b.handlers[subject] == nil {
		b.handlers[subject] = make(map[int]func(data []byte))
	}
	b.handlers[subject][id] = handler
	b.mu.Unlock()

	return func() error {
		b.mu.Lock()
		delete(b.handlers[subject], id)
		b.mu.Unlock()
		return nil
	}, nil
}
