package events

// KindErrorReported identifies failures meant for the user.
const KindErrorReported Kind = "error.reported"

// ErrorReported carries a failure meant for the user.
type ErrorReported struct {
	Base
	Err error
}

// NewErrorReported creates an error reported event.
func NewErrorReported(err error) ErrorReported {
	return ErrorReported{Base: NewBase(KindErrorReported), Err: err}
}

func (e ErrorReported) Message() string {
	if e.Err == nil {
		return ""
	}
	return e.Err.Error()
}
