package feed

import (
	"context"
	"sync"

	"github.com/c360studio/taskjournal/tasks"
)

// MemoryBus is an in-process Bus. Publish delivers synchronously to every
// handler registered at the time of the call, outside the bus lock.
type MemoryBus struct {
	mu       sync.RWMutex
	handlers map[uint64]Handler
	nextID   uint64
	closed   bool
}

// NewMemoryBus creates an empty in-process bus.
func NewMemoryBus() *MemoryBus {
	return &MemoryBus{handlers: make(map[uint64]Handler)}
}

// Publish implements Bus.
func (b *MemoryBus) Publish(ctx context.Context, ev tasks.ChangeEvent) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	b.mu.RLock()
	if b.closed {
		b.mu.RUnlock()
		return ErrClosed
	}
	handlers := make([]Handler, 0, len(b.handlers))
	for _, h := range b.handlers {
		handlers = append(handlers, h)
	}
	b.mu.RUnlock()

	for _, h := range handlers {
		h(ev)
	}
	return nil
}

// Subscribe implements Bus.
func (b *MemoryBus) Subscribe(h Handler) (Subscription, error) {
	b.mu.Lock()
	defer b.mu.Unlock()

	if b.closed {
		return nil, ErrClosed
	}
	id := b.nextID
	b.nextID++
	b.handlers[id] = h

	var once sync.Once
	return cancelFunc(func() {
		once.Do(func() {
			b.mu.Lock()
			delete(b.handlers, id)
			b.mu.Unlock()
		})
	}), nil
}

// Len returns the number of registered handlers.
func (b *MemoryBus) Len() int {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return len(b.handlers)
}

// Close drops all handlers. Later calls are no-ops.
func (b *MemoryBus) Close() error {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.closed = true
	b.handlers = make(map[uint64]Handler)
	return nil
}
