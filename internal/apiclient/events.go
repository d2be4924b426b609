package apiclient

import "sync"

// UnauthorizedEvent is published once for every call answered with 401.
type UnauthorizedEvent struct {
	Token  string
	Method string
	Path   string
}

// Notifier fans unauthorized events out to subscribers. Handlers run
// synchronously on the calling goroutine, before the failing call returns.
type Notifier struct {
	mu       sync.RWMutex
	nextID   int
	handlers map[int]func(UnauthorizedEvent)
}

func NewNotifier() *Notifier {
	return &Notifier{handlers: make(map[int]func(UnauthorizedEvent))}
}

// Subscribe registers fn and returns a function that removes it.
func (n *Notifier) Subscribe(fn func(UnauthorizedEvent)) func() {
	n.mu.Lock()
	id := n.nextID
	n.nextID++
	n.handlers[id] = fn
	n.mu.Unlock()

	return func() {
		n.mu.Lock()
		delete(n.handlers, id)
		n.mu.Unlock()
	}
}

func (n *Notifier) publish(event UnauthorizedEvent) {
	n.mu.RLock()
	handlers := make([]func(UnauthorizedEvent), 0, len(n.handlers))
	for _, fn := range n.handlers {
		handlers = append(handlers, fn)
	}
	n.mu.RUnlock()

	for _, fn := range handlers {
		fn(event)
	}
}
