// Package mailbox is an unbounded FIFO queue with a wake-up signal, used to
// hand work to a single consuming goroutine.
package mailbox

import "sync"

// Mailbox never blocks on Post, so it is safe to post from callbacks that
// run on the consuming goroutine.
type Mailbox[T any] struct {
	mu     sync.Mutex
	items  []T
	notify chan struct{}
}

func New[T any]() *Mailbox[T] {
	return &Mailbox[T]{notify: make(chan struct{}, 1)}
}

func (m *Mailbox[T]) Post(item T) {
	m.mu.Lock()
	m.items = append(m.items, item)
	m.mu.Unlock()

	select {
	case m.notify <- struct{}{}:
	default:
	}
}

// Notify receives a value after one or more Posts since the last receive.
func (m *Mailbox[T]) Notify() <-chan struct{} {
	return m.notify
}

// Drain returns everything posted so far in posting order.
func (m *Mailbox[T]) Drain() []T {
	m.mu.Lock()
	defer m.mu.Unlock()

	items := m.items
	m.items = nil
	return items
}
