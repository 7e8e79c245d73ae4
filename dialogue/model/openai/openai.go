// Package openai provides the ChatModel adapter for OpenAI and
// OpenAI-compatible chat completion servers.
package openai

import (
	"context"
	"errors"
	"strings"

	"github.com/openai/openai-go"
	"github.com/openai/openai-go/option"
	"github.com/openai/openai-go/shared"

	"github.com/dshills/a2a-go/dialogue/model"
)

const (
	// DefaultModel is used when no model name is given.
	DefaultModel = "gpt-4o-mini"

	providerName = "openai"
)

// ChatModel implements model.ChatModel for the chat completions API.
//
// Example usage:
//
//	m := openai.NewChatModel(apiKey, "gpt-4o", "")
//	out, err := m.Chat(ctx, messages, model.GenOptions{})
type ChatModel struct {
	modelName string
	client    openaiClient
}

// openaiClient defines the SDK calls the adapter needs.
// This allows for easy mocking in tests.
type openaiClient interface {
	createCompletion(ctx context.Context, params openai.ChatCompletionNewParams) (*openai.ChatCompletion, error)
	listModels(ctx context.Context) error
}

// NewChatModel creates a new ChatModel. baseURL selects an
// OpenAI-compatible server; empty means api.openai.com.
func NewChatModel(apiKey, modelName, baseURL string) *ChatModel {
	if modelName == "" {
		modelName = DefaultModel
	}
	return &ChatModel{
		modelName: modelName,
		client:    newSDKClient(apiKey, baseURL),
	}
}

// Chat implements the model.ChatModel interface.
func (m *ChatModel) Chat(ctx context.Context, messages []model.Message, opts model.GenOptions) (model.ChatOut, error) {
	if err := ctx.Err(); err != nil {
		return model.ChatOut{}, err
	}

	completion, err := m.client.createCompletion(ctx, buildParams(m.modelName, messages, opts))
	if err != nil {
		return model.ChatOut{}, classify(err)
	}
	if completion == nil || len(completion.Choices) == 0 {
		return model.ChatOut{}, &model.Error{Provider: providerName, Code: model.CodeAPIError, Message: "no choices in response", Cause: model.ErrEmptyResponse}
	}

	out := model.ChatOut{
		Text:         completion.Choices[0].Message.Content,
		Model:        completion.Model,
		InputTokens:  int(completion.Usage.PromptTokens),
		OutputTokens: int(completion.Usage.CompletionTokens),
	}
	if out.Model == "" {
		out.Model = m.modelName
	}
	if strings.TrimSpace(out.Text) == "" {
		return out, &model.Error{Provider: providerName, Code: model.CodeAPIError, Message: "empty response", Cause: model.ErrEmptyResponse}
	}
	return out, nil
}

// ValidateKey checks apiKey by listing models on the server at baseURL.
func ValidateKey(ctx context.Context, apiKey, baseURL string) error {
	if apiKey == "" {
		return model.ErrMissingAPIKey
	}
	return validate(ctx, newSDKClient(apiKey, baseURL))
}

func validate(ctx context.Context, c openaiClient) error {
	if err := c.listModels(ctx); err != nil {
		return classify(err)
	}
	return nil
}

func buildParams(modelName string, messages []model.Message, opts model.GenOptions) openai.ChatCompletionNewParams {
	params := openai.ChatCompletionNewParams{
		Model:    shared.ChatModel(modelName),
		Messages: make([]openai.ChatCompletionMessageParamUnion, 0, len(messages)),
	}

	for _, msg := range messages {
		switch msg.Role {
		case model.RoleSystem:
			params.Messages = append(params.Messages, openai.SystemMessage(msg.Content))
		case model.RoleAssistant:
			params.Messages = append(params.Messages, openai.AssistantMessage(msg.Content))
		default:
			params.Messages = append(params.Messages, openai.UserMessage(msg.Content))
		}
	}

	if opts.Temperature > 0 {
		params.Temperature = openai.Float(opts.Temperature)
	}
	if opts.TopP > 0 {
		params.TopP = openai.Float(opts.TopP)
	}
	if opts.MaxTokens > 0 {
		params.MaxCompletionTokens = openai.Int(int64(opts.MaxTokens))
	}
	return params
}

func classify(err error) error {
	var apiErr *openai.Error
	if errors.As(err, &apiErr) {
		return model.Classify(providerName, apiErr.StatusCode, err)
	}
	return model.Classify(providerName, 0, err)
}

// sdkClient wraps the official openai-go client with SDK retries disabled.
type sdkClient struct {
	client openai.Client
}

func newSDKClient(apiKey, baseURL string) *sdkClient {
	opts := []option.RequestOption{option.WithAPIKey(apiKey), option.WithMaxRetries(0)}
	if baseURL != "" {
		opts = append(opts, option.WithBaseURL(baseURL))
	}
	return &sdkClient{client: openai.NewClient(opts...)}
}

func (c *sdkClient) createCompletion(ctx context.Context, params openai.ChatCompletionNewParams) (*openai.ChatCompletion, error) {
	return c.client.Chat.Completions.New(ctx, params)
}

func (c *sdkClient) listModels(ctx context.Context) error {
	_, err := c.client.Models.List(ctx)
	return err
}
