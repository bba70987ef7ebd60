package llms

// DefaultUserName is sent when the user has not told us their name.
const DefaultUserName = "there"

type StreamingPromptOptions struct {
	// Messages is the full conversation history including the newest user
	// message.
	Messages []Message
	// UserName is the display name the assistant should use for the user.
	UserName string
}

type StreamingPromptOption func(*StreamingPromptOptions)

func WithMessages(messages ...Message) StreamingPromptOption {
	return func(o *StreamingPromptOptions) {
		o.Messages = append(o.Messages, messages...)
	}
}

// WithUserName sets the user name, an empty name falls back to
// [DefaultUserName].
func WithUserName(name string) StreamingPromptOption {
	return func(o *StreamingPromptOptions) {
		if name == "" {
			name = DefaultUserName
		}
		o.UserName = name
	}
}

func NewStreamingPromptOptions(opts ...StreamingPromptOption) StreamingPromptOptions {
	options := StreamingPromptOptions{UserName: DefaultUserName}
	for _, opt := range opts {
		opt(&options)
	}
	return options
}
