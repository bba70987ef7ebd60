package events

import (
	"strings"
	"time"
)

// Kind names an event as "<namespace>.<name>", for example
// "voice_session.state_changed".
type Kind string

// Namespace is the part of the kind before the first dot: user_input,
// assistant_response, assistant_speech, voice_session or error.
func (k Kind) Namespace() string {
	namespace, _, _ := strings.Cut(string(k), ".")
	return namespace
}

// Event is implemented by every assistant event. Observers switch on the
// concrete type, or on Kind when only the name is needed.
type Event interface {
	Kind() Kind
	Timestamp() time.Time
}

// Base is embedded by the concrete events and stamps them on creation.
type Base struct {
	kind      Kind
	timestamp time.Time
}

func NewBase(kind Kind) Base {
	return Base{kind: kind, timestamp: time.Now()}
}

func (b Base) Kind() Kind           { return b.kind }
func (b Base) Timestamp() time.Time { return b.timestamp }
