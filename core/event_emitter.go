package orchestration

import (
	"sync"

	events "github.com/koscakluka/siva/core/events"
)

type eventEmitter func(events.Event)

func noopEventEmitter(events.Event) {}

// EventHandler observes events emitted by the orchestrator. Handlers are
// called synchronously from the emitting goroutine and must not block.
type EventHandler func(events.Event)

type eventBus struct {
	mu       sync.RWMutex
	nextID   int
	handlers map[int]EventHandler
}

func newEventBus() *eventBus {
	return &eventBus{handlers: map[int]EventHandler{}}
}

// subscribe registers handler and returns a function that removes it.
func (b *eventBus) subscribe(handler EventHandler) func() {
	if handler == nil {
		return func() {}
	}

	b.mu.Lock()
	defer b.mu.Unlock()

	id := b.nextID
	b.nextID++
	b.handlers[id] = handler

	return func() {
		b.mu.Lock()
		defer b.mu.Unlock()
		delete(b.handlers, id)
	}
}

func (b *eventBus) emit(event events.Event) {
	b.mu.RLock()
	handlers := make([]EventHandler, 0, len(b.handlers))
	for id := range b.nextID {
		if handler, ok := b.handlers[id]; ok {
			handlers = append(handlers, handler)
		}
	}
	b.mu.RUnlock()

	logger.Debug("event emitted", "namespace", event.Kind().Namespace(), "kind", string(event.Kind()))
	for _, handler := range handlers {
		handler(event)
	}
}

func (b *eventBus) emitter() eventEmitter {
	if b == nil {
		return noopEventEmitter
	}
	return b.emit
}
