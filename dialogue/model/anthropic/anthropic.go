// Package anthropic provides the ChatModel adapter for Anthropic's Claude API.
package anthropic

import (
	"context"
	"errors"
	"strings"

	"github.com/anthropics/anthropic-sdk-go"
	"github.com/anthropics/anthropic-sdk-go/option"

	"github.com/dshills/a2a-go/dialogue/model"
)

const (
	// DefaultModel is used when no model name is given.
	DefaultModel = "claude-sonnet-4-20250514"

	// DefaultMaxTokens caps responses when the agent sets no limit.
	DefaultMaxTokens = 4096

	providerName = "anthropic"
)

// ChatModel implements model.ChatModel for Anthropic's Claude API.
//
// System messages are sent in the separate system parameter; the remaining
// history maps one-to-one onto user and assistant turns.
//
// Example usage:
//
//	m := anthropic.NewChatModel(apiKey, "claude-opus-4-20250514")
//	out, err := m.Chat(ctx, messages, model.GenOptions{})
type ChatModel struct {
	modelName string
	client    anthropicClient
}

// anthropicClient defines the SDK calls the adapter needs.
// This allows for easy mocking in tests.
type anthropicClient interface {
	createMessage(ctx context.Context, params anthropic.MessageNewParams) (*anthropic.Message, error)
	listModels(ctx context.Context) error
}

// NewChatModel creates a new Anthropic ChatModel. An empty modelName uses
// DefaultModel.
func NewChatModel(apiKey, modelName string) *ChatModel {
	if modelName == "" {
		modelName = DefaultModel
	}
	return &ChatModel{
		modelName: modelName,
		client:    newSDKClient(apiKey),
	}
}

// Chat implements the model.ChatModel interface.
func (m *ChatModel) Chat(ctx context.Context, messages []model.Message, opts model.GenOptions) (model.ChatOut, error) {
	if ctx.Err() != nil {
		return model.ChatOut{}, ctx.Err()
	}

	msg, err := m.client.createMessage(ctx, buildParams(m.modelName, messages, opts))
	if err != nil {
		return model.ChatOut{}, classify(err)
	}

	out := convertResponse(msg)
	if out.Model == "" {
		out.Model = m.modelName
	}
	if strings.TrimSpace(out.Text) == "" {
		return out, &model.Error{Provider: providerName, Code: model.CodeAPIError, Message: "empty response", Cause: model.ErrEmptyResponse}
	}
	return out, nil
}

// ValidateKey checks apiKey by listing the models it can access.
func ValidateKey(ctx context.Context, apiKey string) error {
	if apiKey == "" {
		return model.ErrMissingAPIKey
	}
	return validate(ctx, newSDKClient(apiKey))
}

func validate(ctx context.Context, c anthropicClient) error {
	if err := c.listModels(ctx); err != nil {
		return classify(err)
	}
	return nil
}

func buildParams(modelName string, messages []model.Message, opts model.GenOptions) anthropic.MessageNewParams {
	system, rest := model.SplitSystem(messages)

	maxTokens := opts.MaxTokens
	if maxTokens <= 0 {
		maxTokens = DefaultMaxTokens
	}

	params := anthropic.MessageNewParams{
		Model:     anthropic.Model(modelName),
		MaxTokens: int64(maxTokens),
		Messages:  make([]anthropic.MessageParam, 0, len(rest)),
	}
	if system != "" {
		params.System = []anthropic.TextBlockParam{{Text: system}}
	}
	if opts.Temperature > 0 {
		params.Temperature = anthropic.Float(opts.Temperature)
	}
	if opts.TopP > 0 {
		params.TopP = anthropic.Float(opts.TopP)
	}

	for _, msg := range rest {
		block := anthropic.NewTextBlock(msg.Content)
		if msg.Role == model.RoleAssistant {
			params.Messages = append(params.Messages, anthropic.NewAssistantMessage(block))
		} else {
			params.Messages = append(params.Messages, anthropic.NewUserMessage(block))
		}
	}
	return params
}

func convertResponse(msg *anthropic.Message) model.ChatOut {
	if msg == nil {
		return model.ChatOut{}
	}

	var sb strings.Builder
	for _, block := range msg.Content {
		if block.Type == "text" {
			sb.WriteString(block.Text)
		}
	}

	return model.ChatOut{
		Text:         sb.String(),
		Model:        string(msg.Model),
		InputTokens:  int(msg.Usage.InputTokens),
		OutputTokens: int(msg.Usage.OutputTokens),
	}
}

func classify(err error) error {
	var apiErr *anthropic.Error
	if errors.As(err, &apiErr) {
		return model.Classify(providerName, apiErr.StatusCode, err)
	}
	return model.Classify(providerName, 0, err)
}

// sdkClient wraps the official anthropic-sdk-go client. SDK retries are
// disabled so the dialogue engine's retry policy is the only one in effect.
type sdkClient struct {
	client anthropic.Client
}

func newSDKClient(apiKey string) *sdkClient {
	return &sdkClient{
		client: anthropic.NewClient(option.WithAPIKey(apiKey), option.WithMaxRetries(0)),
	}
}

func (c *sdkClient) createMessage(ctx context.Context, params anthropic.MessageNewParams) (*anthropic.Message, error) {
	return c.client.Messages.New(ctx, params)
}

func (c *sdkClient) listModels(ctx context.Context) error {
	_, err := c.client.Models.List(ctx, anthropic.ModelListParams{})
	return err
}
