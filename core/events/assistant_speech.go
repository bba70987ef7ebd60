package events

// KindAssistantSpeakingStateChanged identifies utterance playback flips.
const KindAssistantSpeakingStateChanged Kind = "assistant_speech.speaking_state_changed"

// AssistantSpeakingStateChanged carries the speaking state of an utterance.
type AssistantSpeakingStateChanged struct {
	Base
	UtteranceID string
	Speaking    bool
	Err         error
}

// NewAssistantSpeakingStateChanged creates a speaking state changed event.
func NewAssistantSpeakingStateChanged(utteranceID string, speaking bool, err error) AssistantSpeakingStateChanged {
	return AssistantSpeakingStateChanged{Base: NewBase(KindAssistantSpeakingStateChanged), UtteranceID: utteranceID, Speaking: speaking, Err: err}
}
