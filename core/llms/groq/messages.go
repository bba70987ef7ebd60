package groq

import (
	"strings"

	"github.com/jinzhu/copier"
	"github.com/koscakluka/siva/core/llms"
)

type requestBody struct {
	Model    string    `json:"model"`
	Messages []message `json:"messages"`
	Stream   bool      `json:"stream"`
}

type message struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

const messageRoleSystem = "system"

// userNamePlaceholder in a system prompt is replaced with the user name.
const userNamePlaceholder = "{userName}"

type errorBody struct {
	Error struct {
		Message string `json:"message"`
		Type    string `json:"type"`
	} `json:"error"`
}

// toMessages prepends the system prompt to the conversation history.
func toMessages(systemPrompt string, userName string, history []llms.Message) []message {
	messages := []message{}
	if systemPrompt != "" {
		messages = append(messages, message{
			Role:    messageRoleSystem,
			Content: strings.ReplaceAll(systemPrompt, userNamePlaceholder, userName),
		})
	}

	converted := []message{}
	if err := copier.Copy(&converted, history); err != nil {
		logger.Warn("failed to copy conversation history, sending it field by field", "error", err)
		converted = converted[:0]
		for _, m := range history {
			converted = append(converted, message{Role: string(m.Role), Content: m.Content})
		}
	}
	return append(messages, converted...)
}
