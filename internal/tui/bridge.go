package tui

import (
	"sync"

	tea "github.com/charmbracelet/bubbletea"
	events "github.com/koscakluka/siva/core/events"
	"github.com/koscakluka/siva/internal/mailbox"
)

// Sender is satisfied by *tea.Program.
type Sender interface {
	Send(msg tea.Msg)
}

// Bridge forwards orchestrator events to the program in order without
// blocking the goroutine that emitted them.
type Bridge struct {
	pending *mailbox.Mailbox[events.Event]
	done    chan struct{}
	once    sync.Once
}

func NewBridge() *Bridge {
	return &Bridge{pending: mailbox.New[events.Event](), done: make(chan struct{})}
}

// Handle queues event, it is meant to be registered as an event handler.
func (b *Bridge) Handle(event events.Event) {
	b.pending.Post(event)
}

// Run delivers queued events to sender until Stop is called.
func (b *Bridge) Run(sender Sender) {
	for {
		select {
		case <-b.done:
			return
		case <-b.pending.Notify():
		}

		for _, event := range b.pending.Drain() {
			sender.Send(EventMsg{Event: event})
		}
	}
}

func (b *Bridge) Stop() {
	b.once.Do(func() { close(b.done) })
}
