package events

const (
	// KindAssistantResponseStarted identifies the start of a streamed response.
	KindAssistantResponseStarted Kind = "assistant_response.started"
	// KindAssistantResponseSegment identifies streamed assistant response text.
	KindAssistantResponseSegment Kind = "assistant_response.segment"
	// KindAssistantResponseFinal identifies assistant response stream completion.
	KindAssistantResponseFinal Kind = "assistant_response.final"
	// KindAssistantResponseFailed identifies a failed response.
	KindAssistantResponseFailed Kind = "assistant_response.failed"
)

// AssistantResponseStarted marks the start of a streamed response.
type AssistantResponseStarted struct {
	Base
	FromVoice bool
}

// NewAssistantResponseStarted creates an assistant response started event.
func NewAssistantResponseStarted(fromVoice bool) AssistantResponseStarted {
	return AssistantResponseStarted{Base: NewBase(KindAssistantResponseStarted), FromVoice: fromVoice}
}

// AssistantResponseSegment carries a streamed assistant response text segment.
type AssistantResponseSegment struct {
	Base
	Segment string
}

// NewAssistantResponseSegment creates an assistant response segment event.
func NewAssistantResponseSegment(segment string) AssistantResponseSegment {
	return AssistantResponseSegment{Base: NewBase(KindAssistantResponseSegment), Segment: segment}
}

// AssistantResponseFinal marks assistant response stream completion.
type AssistantResponseFinal struct {
	Base
	Text      string
	FromVoice bool
}

// NewAssistantResponseFinal creates an assistant response final event.
func NewAssistantResponseFinal(text string, fromVoice bool) AssistantResponseFinal {
	return AssistantResponseFinal{Base: NewBase(KindAssistantResponseFinal), Text: text, FromVoice: fromVoice}
}

// AssistantResponseFailed marks a failed response.
type AssistantResponseFailed struct {
	Base
	Err       error
	FromVoice bool
}

// NewAssistantResponseFailed creates an assistant response failed event.
func NewAssistantResponseFailed(err error, fromVoice bool) AssistantResponseFailed {
	return AssistantResponseFailed{Base: NewBase(KindAssistantResponseFailed), Err: err, FromVoice: fromVoice}
}
