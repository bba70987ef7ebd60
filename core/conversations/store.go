// Package conversations holds the ordered message history of a conversation.
package conversations

import (
	"errors"
	"iter"
	"slices"
	"sync"

	"github.com/koscakluka/siva/core/llms"
)

var (
	ErrResponseInProgress   = errors.New("assistant response already in progress")
	ErrNoResponseInProgress = errors.New("no assistant response in progress")
	ErrInvalidRole          = errors.New("invalid message role")
)

// History exposes a read-only view of the conversation.
type History interface {
	// Messages returns a copy of all messages. Ordering: oldest -> newest.
	Messages() []llms.Message
}

var _ History = (*Store)(nil)

// Store is an ordered, append-only message log. The only mutable message is
// an in-progress assistant message, which is always the last one and only
// grows while it is being streamed.
type Store struct {
	mu sync.RWMutex

	messages   []llms.Message
	inProgress bool
}

func NewStore(initial ...llms.Message) *Store {
	return &Store{messages: slices.Clone(initial)}
}

func (s *Store) Messages() []llms.Message {
	s.mu.RLock()
	defer s.mu.RUnlock()

	return slices.Clone(s.messages)
}

// Values iterates over a snapshot of the messages, oldest first.
func (s *Store) Values() iter.Seq[llms.Message] {
	return slices.Values(s.Messages())
}

func (s *Store) Len() int {
	s.mu.RLock()
	defer s.mu.RUnlock()

	return len(s.messages)
}

func (s *Store) Last() (llms.Message, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	if len(s.messages) == 0 {
		return llms.Message{}, false
	}
	return s.messages[len(s.messages)-1], true
}

func (s *Store) InProgress() bool {
	s.mu.RLock()
	defer s.mu.RUnlock()

	return s.inProgress
}

// Append adds a complete message to the end of the conversation.
func (s *Store) Append(message llms.Message) error {
	if !message.Role.IsValid() {
		return ErrInvalidRole
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if s.inProgress {
		return ErrResponseInProgress
	}

	s.messages = append(s.messages, message)
	return nil
}

// BeginAssistantMessage appends an empty assistant message that subsequent
// deltas are appended to.
func (s *Store) BeginAssistantMessage() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.inProgress {
		return ErrResponseInProgress
	}

	s.messages = append(s.messages, llms.NewAssistantMessage(""))
	s.inProgress = true
	return nil
}

func (s *Store) AppendToAssistantMessage(delta string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if !s.inProgress {
		return ErrNoResponseInProgress
	}

	s.messages[len(s.messages)-1].Content += delta
	return nil
}

// FinishAssistantMessage marks the in-progress message as complete and
// returns it.
func (s *Store) FinishAssistantMessage() (llms.Message, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if !s.inProgress {
		return llms.Message{}, ErrNoResponseInProgress
	}

	s.inProgress = false
	return s.messages[len(s.messages)-1], nil
}

// Truncate drops every message past length and abandons any in-progress
// response. It is used to roll the conversation back to an earlier shape.
func (s *Store) Truncate(length int) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if length < 0 {
		length = 0
	}
	if length < len(s.messages) {
		s.messages = slices.Delete(s.messages, length, len(s.messages))
	}
	s.inProgress = false
}
