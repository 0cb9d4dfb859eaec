package fanout

import (
	"context"
	"sync"
)

// MemoryBus is an in-process Bus for single-node runs and tests. Handlers
// are invoked synchronously in Publish, which preserves per-publisher FIFO.
type MemoryBus struct {
	mu       sync.RWMutex
	handlers []func(Envelope)
	closed   bool
}

func NewMemoryBus() *MemoryBus { return &MemoryBus{} }

func (b *MemoryBus) Publish(ctx context.Context, env Envelope) error {
	b.mu.RLock()
	handlers := b.handlers
	b.mu.RUnlock()
	for _, h := range handlers {
		h(env)
	}
	return nil
}

func (b *MemoryBus) Subscribe(ctx context.Context, handler func(Envelope)) error {
	b.mu.Lock()
	b.handlers = append(b.handlers, handler)
	b.mu.Unlock()
	<-ctx.Done()
	return ctx.Err()
}

func (b *MemoryBus) Close() error {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.closed = true
	b.handlers = nil
	return nil
}
