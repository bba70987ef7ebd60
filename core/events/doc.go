// Package events defines the typed event contract emitted by the assistant
// core to its observers (UI, logging).
//
// Event kinds are grouped by receiver-facing namespaces:
//
//   - user_input.*
//   - assistant_response.*
//   - assistant_speech.*
//   - voice_session.*
//   - error.*
//
// Semantics used across the package:
//
//   - Segment: append-only text piece emitted in stream order.
//   - Updated: mutable point-in-time snapshot that replaces the previous one.
//   - Changed: a boolean or state flip, carrying the new value.
//   - Final: terminal immutable text for the current response.
//   - Ended: lifecycle boundary indicating a session is over.
//
// user_input events
//
//   - UserMessageSubmitted (user_input.message_submitted): a typed or spoken
//     message was accepted for dispatch.
//   - UserListeningStateChanged (user_input.listening_state_changed): the
//     recognition session started or stopped listening.
//   - UserTranscriptUpdated (user_input.transcript_updated): mutable best
//     effort transcript of the active recognition session.
//   - UserRecognitionEnded (user_input.recognition_ended): recognition
//     session ended as completed, error or stopped.
//   - UserWakePhraseDetected (user_input.wake_phrase_detected): the wake
//     phrase was heard while wake listening.
//
// assistant_response events
//
//   - AssistantResponseStarted (assistant_response.started): request accepted
//     and streaming started.
//   - AssistantResponseSegment (assistant_response.segment): streamed
//     response text segment.
//   - AssistantResponseFinal (assistant_response.final): response text stream
//     is complete; includes the full text.
//   - AssistantResponseFailed (assistant_response.failed): request failed and
//     the conversation was rolled back.
//
// assistant_speech events
//
//   - AssistantSpeakingStateChanged (assistant_speech.speaking_state_changed):
//     an utterance started or stopped playing.
//
// voice_session events
//
//   - VoiceStateChanged (voice_session.state_changed): the voice session
//     moved between states.
//
// error events
//
//   - ErrorReported (error.reported): a failure that should be shown to the
//     user.
package events
