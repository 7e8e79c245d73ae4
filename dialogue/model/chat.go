// Package model provides the backend contract shared by every LLM adapter.
package model

import (
	"context"
	"strings"
)

// ChatModel defines the interface for LLM chat backends.
//
// This interface abstracts the differences between the local model server
// (Ollama) and the cloud completion APIs (Anthropic, Google, OpenAI),
// providing a unified API for a single request/response exchange.
//
// Implementations should:
// - Handle provider-specific authentication.
// - Convert the standard Message format to the provider format.
// - Parse provider responses back to the standard ChatOut format.
// - Respect context cancellation and deadlines.
// - Classify failures as *Error so callers can decide retry-or-abort.
//
// Example usage:
//
//	m := anthropic.NewChatModel(apiKey, "claude-sonnet-4-20250514")
//	out, err := m.Chat(ctx, []model.Message{
//	    {Role: model.RoleUser, Content: "Discuss the future of AI."},
//	}, model.GenOptions{})
//	if err != nil {
//	    return err
//	}
//	fmt.Println(out.Text)
type ChatModel interface {
	// Chat sends messages to the backend and returns the response.
	//
	// Implementations must not retry on their own; the dialogue engine owns
	// the retry policy and the per-turn timeout.
	Chat(ctx context.Context, messages []Message, opts GenOptions) (ChatOut, error)
}

// Message represents a single message in an LLM conversation.
type Message struct {
	// Role identifies the message sender. Use the Role* constants.
	Role string `json:"role"`

	// Content contains the message text.
	Content string `json:"content"`
}

// Standard role constants for LLM conversations.
const (
	// RoleSystem indicates a system message that sets context or instructions.
	RoleSystem = "system"

	// RoleUser indicates a prompt sent on behalf of the user or the other agent.
	RoleUser = "user"

	// RoleAssistant indicates a previous response from the model.
	RoleAssistant = "assistant"
)

// GenOptions carries per-agent generation settings.
//
// Zero values mean "use the backend default". Backends ignore settings they
// do not support (for example ContextSize only applies to Ollama).
type GenOptions struct {
	// Temperature controls sampling randomness.
	Temperature float64 `json:"temperature,omitempty" yaml:"temperature,omitempty"`

	// TopP controls nucleus sampling.
	TopP float64 `json:"top_p,omitempty" yaml:"top_p,omitempty"`

	// ContextSize is the context window requested from a local server (num_ctx).
	ContextSize int `json:"context_size,omitempty" yaml:"context_size,omitempty"`

	// MaxTokens caps the length of the generated response.
	MaxTokens int `json:"max_tokens,omitempty" yaml:"max_tokens,omitempty"`
}

// ChatOut represents the output from a single chat completion.
type ChatOut struct {
	// Text contains the generated response.
	Text string

	// Model is the model identifier reported by the backend, if any.
	Model string

	// InputTokens is the number of prompt tokens the backend reported.
	InputTokens int

	// OutputTokens is the number of generated tokens the backend reported.
	OutputTokens int
}

// TotalTokens returns the sum of input and output tokens.
func (o ChatOut) TotalTokens() int {
	return o.InputTokens + o.OutputTokens
}

// SplitSystem separates system messages from conversation messages.
// Multiple system messages are joined with a blank line.
func SplitSystem(messages []Message) (string, []Message) {
	var system []string
	var rest []Message

	for _, msg := range messages {
		if msg.Role == RoleSystem {
			if msg.Content != "" {
				system = append(system, msg.Content)
			}
			continue
		}
		rest = append(rest, msg)
	}

	return strings.Join(system, "\n\n"), rest
}

// Flatten renders conversation messages as a single prompt for backends that
// take one prompt string. A lone user message is returned verbatim.
func Flatten(messages []Message) string {
	if len(messages) == 1 && messages[0].Role == RoleUser {
		return messages[0].Content
	}

	var sb strings.Builder
	for i, msg := range messages {
		if i > 0 {
			sb.WriteString("\n\n")
		}
		switch msg.Role {
		case RoleAssistant:
			sb.WriteString("Assistant: ")
		case RoleUser:
			sb.WriteString("User: ")
		}
		sb.WriteString(msg.Content)
	}
	return sb.String()
}
