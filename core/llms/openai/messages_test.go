package openai

import (
	"testing"

	"github.com/voxloop/voxloop-core/core/llms"
)

func TestToMessagesOrdersHistoryBeforePrompt(t *testing.T) {
	history := []llms.Exchange{
		{Prompt: "hello", Reply: "Hi! How can I help you today?"},
		{Prompt: "what time is it", Reply: "I cannot see a clock."},
	}

	messages := toMessages("be brief", history, "tell me a joke")

	expected := []message{
		{Role: messageRoleSystem, Content: "be brief"},
		{Role: messageRoleUser, Content: "hello"},
		{Role: messageRoleAssistant, Content: "Hi! How can I help you today?"},
		{Role: messageRoleUser, Content: "what time is it"},
		{Role: messageRoleAssistant, Content: "I cannot see a clock."},
		{Role: messageRoleUser, Content: "tell me a joke"},
	}

	if len(messages) != len(expected) {
		t.Fatalf("expected %d messages, got %d", len(expected), len(messages))
	}
	for i, want := range expected {
		if messages[i] != want {
			t.Fatalf("expected message %d to be %+v, got %+v", i, want, messages[i])
		}
	}
}

func TestToMessagesSkipsEmptyInstructionsAndReplies(t *testing.T) {
	history := []llms.Exchange{{Prompt: "interrupted question", Reply: ""}}

	messages := toMessages("", history, "next question")

	if len(messages) != 2 {
		t.Fatalf("expected 2 messages, got %d", len(messages))
	}
	if messages[0].Role != messageRoleUser || messages[0].Content != "interrupted question" {
		t.Fatalf("expected the interrupted prompt first, got %+v", messages[0])
	}
	if messages[1].Content != "next question" {
		t.Fatalf("expected the new prompt last, got %+v", messages[1])
	}
}
