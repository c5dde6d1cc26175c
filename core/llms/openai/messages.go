package openai

import (
	"github.com/voxloop/voxloop-core/core/llms"
)

type message struct {
	Role    messageRole `json:"role"`
	Content string      `json:"content"`
}

type messageRole string

const (
	messageRoleSystem    messageRole = "system"
	messageRoleUser      messageRole = "user"
	messageRoleAssistant messageRole = "assistant"
)

// toMessages flattens the exchange history into the chat-completions message
// list, oldest first, with the new prompt as the final user message.
func toMessages(instructions string, history []llms.Exchange, prompt string) []message {
	messages := []message{}
	if instructions != "" {
		messages = append(messages, message{
			Role:    messageRoleSystem,
			Content: instructions,
		})
	}
	for _, exchange := range history {
		messages = append(messages, message{
			Role:    messageRoleUser,
			Content: exchange.Prompt,
		})
		if exchange.Reply != "" {
			messages = append(messages, message{
				Role:    messageRoleAssistant,
				Content: exchange.Reply,
			})
		}
	}
	return append(messages, message{
		Role:    messageRoleUser,
		Content: prompt,
	})
}

type requestBody struct {
	Model    string    `json:"model"`
	Messages []message `json:"messages"`
	Stream   bool      `json:"stream"`
}

type streamingResponseBody struct {
	Choices []struct {
		Delta struct {
			Content string `json:"content"`
		} `json:"delta"`
		FinishReason *string `json:"finish_reason"`
	} `json:"choices"`
}
