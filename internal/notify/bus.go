package notify

import "sync"

// Handler reacts to one message.
type Handler func(Message)

// Bus provides in-process fan-out of notifier messages to subscribers
// living in the same process (registry, API event stream).
type Bus struct {
	mu          sync.RWMutex
	subscribers map[string][]Handler
	all         []Handler
}

// NewBus constructs an empty bus.
func NewBus() *Bus {
	return &Bus{subscribers: make(map[string][]Handler)}
}

// Subscribe registers a handler for one message type.
func (b *Bus) Subscribe(msgType string, handler Handler) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.subscribers[msgType] = append(b.subscribers[msgType], handler)
}

// SubscribeAll registers a handler for every message type.
func (b *Bus) SubscribeAll(handler Handler) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.all = append(b.all, handler)
}

// Publish notifies subscribers of the message type. Handlers run
// synchronously; the caller decides the concurrency model.
func (b *Bus) Publish(msg Message) error {
	b.mu.RLock()
	handlers := append([]Handler(nil), b.subscribers[msg.Type]...)
	handlers = append(handlers, b.all...)
	b.mu.RUnlock()

	for _, handler := range handlers {
		handler(msg)
	}
	return nil
}
