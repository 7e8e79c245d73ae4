package ollama

import (
	"context"
	"errors"

	"github.com/dshills/a2a-go/dialogue/model"
)

// ChatModel implements model.ChatModel on top of the /api/generate endpoint.
//
// Ollama's generate endpoint takes one prompt string, so conversation
// history is flattened and system messages travel in the separate system
// field.
//
// Example usage:
//
//	m := ollama.NewChatModel(ollama.NewClient(""), "llama3")
//	out, err := m.Chat(ctx, []model.Message{
//	    {Role: model.RoleUser, Content: "Discuss the future of AI."},
//	}, model.GenOptions{ContextSize: 4096})
type ChatModel struct {
	client    *Client
	modelName string
}

// NewChatModel binds a model name to a client. A nil client uses the
// default server address.
func NewChatModel(client *Client, modelName string) *ChatModel {
	if client == nil {
		client = NewClient("")
	}
	return &ChatModel{client: client, modelName: modelName}
}

// Name returns the model name this ChatModel sends.
func (m *ChatModel) Name() string {
	return m.modelName
}

// Chat implements the model.ChatModel interface.
func (m *ChatModel) Chat(ctx context.Context, messages []model.Message, opts model.GenOptions) (model.ChatOut, error) {
	if ctx.Err() != nil {
		return model.ChatOut{}, ctx.Err()
	}
	if m.modelName == "" {
		return model.ChatOut{}, errors.New("ollama: model name is required")
	}

	system, rest := model.SplitSystem(messages)
	out, err := m.client.Generate(ctx, m.modelName, system, model.Flatten(rest), opts)
	if err != nil {
		return model.ChatOut{}, err
	}
	if out.Text == "" {
		return out, &model.Error{Provider: providerName, Code: model.CodeAPIError, Message: "empty response", Cause: model.ErrEmptyResponse}
	}
	return out, nil
}
