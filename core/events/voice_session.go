package events

// KindVoiceStateChanged identifies voice session state transitions.
const KindVoiceStateChanged Kind = "voice_session.state_changed"

// VoiceStateChanged carries the names of the previous and the new state.
type VoiceStateChanged struct {
	Base
	From string
	To   string
}

// NewVoiceStateChanged creates a voice state changed event.
func NewVoiceStateChanged(from, to string) VoiceStateChanged {
	return VoiceStateChanged{Base: NewBase(KindVoiceStateChanged), From: from, To: to}
}
