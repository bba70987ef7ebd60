// Package speechtotext defines the speech recognition capability the
// assistant listens through.
package speechtotext

import "context"

// Recognizer starts recognition sessions. Implementations may assume only
// one session is active at a time.
type Recognizer interface {
	Recognize(ctx context.Context, opts ...RecognitionOption) (Recognition, error)
}

// Recognition is a handle to a running session.
type Recognition interface {
	// Stop ends the session. No callbacks are invoked after Stop returns.
	// Repeated calls are ignored.
	Stop() error
}
