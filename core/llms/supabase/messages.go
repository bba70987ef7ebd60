package supabase

import (
	"github.com/jinzhu/copier"
	"github.com/koscakluka/siva/core/llms"
)

type requestBody struct {
	Messages []message `json:"messages"`
	UserName string    `json:"userName"`
}

type message struct {
	Role    llms.Role `json:"role"`
	Content string    `json:"content"`
}

type errorBody struct {
	Error string `json:"error"`
}

func toMessages(history []llms.Message) []message {
	messages := []message{}
	if err := copier.Copy(&messages, history); err != nil {
		logger.Warn("failed to copy conversation history, sending it field by field", "error", err)
		messages = make([]message, 0, len(history))
		for _, m := range history {
			messages = append(messages, message{Role: m.Role, Content: m.Content})
		}
	}
	return messages
}
