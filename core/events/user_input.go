package events

const (
	// KindUserMessageSubmitted identifies a user message accepted for dispatch.
	KindUserMessageSubmitted Kind = "user_input.message_submitted"
	// KindUserListeningStateChanged identifies recognition listening flips.
	KindUserListeningStateChanged Kind = "user_input.listening_state_changed"
	// KindUserTranscriptUpdated identifies mutable transcript snapshots.
	KindUserTranscriptUpdated Kind = "user_input.transcript_updated"
	// KindUserRecognitionEnded identifies the end of a recognition session.
	KindUserRecognitionEnded Kind = "user_input.recognition_ended"
	// KindUserWakePhraseDetected identifies wake phrase detection.
	KindUserWakePhraseDetected Kind = "user_input.wake_phrase_detected"
)

// RecognitionEndReason tells why a recognition session ended.
type RecognitionEndReason string

const (
	RecognitionCompleted RecognitionEndReason = "completed"
	RecognitionError     RecognitionEndReason = "error"
	RecognitionStopped   RecognitionEndReason = "stopped"
)

// UserMessageSubmitted carries a message accepted for dispatch.
type UserMessageSubmitted struct {
	Base
	Text      string
	FromVoice bool
}

// NewUserMessageSubmitted creates a message submitted event.
func NewUserMessageSubmitted(text string, fromVoice bool) UserMessageSubmitted {
	return UserMessageSubmitted{Base: NewBase(KindUserMessageSubmitted), Text: text, FromVoice: fromVoice}
}

// UserListeningStateChanged carries the new listening state of a session.
type UserListeningStateChanged struct {
	Base
	SessionID string
	Listening bool
}

// NewUserListeningStateChanged creates a listening state changed event.
func NewUserListeningStateChanged(sessionID string, listening bool) UserListeningStateChanged {
	return UserListeningStateChanged{Base: NewBase(KindUserListeningStateChanged), SessionID: sessionID, Listening: listening}
}

// UserTranscriptUpdated carries the current transcript of a session.
type UserTranscriptUpdated struct {
	Base
	SessionID  string
	Transcript string
}

// NewUserTranscriptUpdated creates a transcript updated event.
func NewUserTranscriptUpdated(sessionID, transcript string) UserTranscriptUpdated {
	return UserTranscriptUpdated{Base: NewBase(KindUserTranscriptUpdated), SessionID: sessionID, Transcript: transcript}
}

// UserRecognitionEnded marks the end of a recognition session. Err is set
// when Reason is [RecognitionError].
type UserRecognitionEnded struct {
	Base
	SessionID string
	Reason    RecognitionEndReason
	Err       error
}

// NewUserRecognitionEnded creates a recognition ended event.
func NewUserRecognitionEnded(sessionID string, reason RecognitionEndReason, err error) UserRecognitionEnded {
	return UserRecognitionEnded{Base: NewBase(KindUserRecognitionEnded), SessionID: sessionID, Reason: reason, Err: err}
}

// UserWakePhraseDetected carries the transcript in which the wake phrase was
// heard.
type UserWakePhraseDetected struct {
	Base
	Transcript string
}

// NewUserWakePhraseDetected creates a wake phrase detected event.
func NewUserWakePhraseDetected(transcript string) UserWakePhraseDetected {
	return UserWakePhraseDetected{Base: NewBase(KindUserWakePhraseDetected), Transcript: transcript}
}
