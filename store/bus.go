package store

import "sync"

// Handler receives every published event. Implementations type-switch on the
// event types in the models package.
type Handler func(event any)

// Bus is a synchronous event fan-out. Publish runs every handler on the
// publisher's goroutine in subscription order, so a batch of events lands in
// all subscribers in the order it was published. Stores stay decoupled: the
// entry store publishes read-state changes without knowing who listens.
type Bus struct {
	mu       sync.RWMutex
	handlers []Handler
}

func NewBus() *Bus {
	return &Bus{}
}

func (b *Bus) Subscribe(handler Handler) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.handlers = append(b.handlers, handler)
}

func (b *Bus) Publish(event any) {
	b.mu.RLock()
	handlers := make([]Handler, len(b.handlers))
	copy(handlers, b.handlers)
	b.mu.RUnlock()

	for _, handler := range handlers {
		handler(event)
	}
}
