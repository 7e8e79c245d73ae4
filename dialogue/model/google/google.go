// Package google provides the ChatModel adapter for Google's Gemini API.
package google

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/google/generative-ai-go/genai"
	"google.golang.org/api/googleapi"
	"google.golang.org/api/option"

	"github.com/dshills/a2a-go/dialogue/model"
)

const (
	// DefaultModel is used when no model name is given.
	DefaultModel = "gemini-2.5-flash"

	providerName = "google"
)

// ChatModel implements model.ChatModel for Google's Gemini API.
//
// System messages become the model's system instruction. Earlier turns are
// replayed as chat history and the final message is sent as the new turn.
type ChatModel struct {
	modelName string
	client    googleClient
}

// googleClient defines the SDK calls the adapter needs.
// This allows for easy mocking in tests.
type googleClient interface {
	generate(ctx context.Context, req request) (*genai.GenerateContentResponse, error)
	info(ctx context.Context, modelName string) error
}

// request is the provider-shaped form of one Chat call.
type request struct {
	Model   string
	System  string
	History []*genai.Content
	Parts   []genai.Part
	Opts    model.GenOptions
}

// NewChatModel creates a new Gemini ChatModel. An empty modelName uses
// DefaultModel.
func NewChatModel(apiKey, modelName string) *ChatModel {
	if modelName == "" {
		modelName = DefaultModel
	}
	return &ChatModel{
		modelName: modelName,
		client:    &sdkClient{apiKey: apiKey},
	}
}

// Chat implements the model.ChatModel interface.
func (m *ChatModel) Chat(ctx context.Context, messages []model.Message, opts model.GenOptions) (model.ChatOut, error) {
	if ctx.Err() != nil {
		return model.ChatOut{}, ctx.Err()
	}

	resp, err := m.client.generate(ctx, buildRequest(m.modelName, messages, opts))
	if err != nil {
		return model.ChatOut{}, classify(err)
	}

	out := convertResponse(resp)
	out.Model = m.modelName
	if strings.TrimSpace(out.Text) == "" {
		return out, &model.Error{Provider: providerName, Code: model.CodeAPIError, Message: "empty response", Cause: model.ErrEmptyResponse}
	}
	return out, nil
}

// ValidateKey checks apiKey by fetching metadata for a known model.
func ValidateKey(ctx context.Context, apiKey string) error {
	if apiKey == "" {
		return model.ErrMissingAPIKey
	}
	return validate(ctx, &sdkClient{apiKey: apiKey})
}

func validate(ctx context.Context, c googleClient) error {
	if err := c.info(ctx, DefaultModel); err != nil {
		return classify(err)
	}
	return nil
}

func buildRequest(modelName string, messages []model.Message, opts model.GenOptions) request {
	system, rest := model.SplitSystem(messages)
	req := request{Model: modelName, System: system, Opts: opts}

	if len(rest) == 0 {
		return req
	}
	for _, msg := range rest[:len(rest)-1] {
		role := "user"
		if msg.Role == model.RoleAssistant {
			role = "model"
		}
		req.History = append(req.History, &genai.Content{
			Role:  role,
			Parts: []genai.Part{genai.Text(msg.Content)},
		})
	}
	req.Parts = []genai.Part{genai.Text(rest[len(rest)-1].Content)}
	return req
}

func convertResponse(resp *genai.GenerateContentResponse) model.ChatOut {
	var out model.ChatOut
	if resp == nil {
		return out
	}

	if resp.UsageMetadata != nil {
		out.InputTokens = int(resp.UsageMetadata.PromptTokenCount)
		out.OutputTokens = int(resp.UsageMetadata.CandidatesTokenCount)
	}

	if len(resp.Candidates) == 0 || resp.Candidates[0].Content == nil {
		return out
	}

	var sb strings.Builder
	for _, part := range resp.Candidates[0].Content.Parts {
		if text, ok := part.(genai.Text); ok {
			sb.WriteString(string(text))
		}
	}
	out.Text = sb.String()
	return out
}

func classify(err error) error {
	var blocked *genai.BlockedError
	if errors.As(err, &blocked) {
		return &model.Error{
			Provider: providerName,
			Code:     model.CodeAPIError,
			Message:  "content blocked by safety filter",
			Cause:    err,
		}
	}

	var apiErr *googleapi.Error
	if errors.As(err, &apiErr) {
		status := apiErr.Code
		// Gemini reports a bad key as 400 INVALID_ARGUMENT.
		if status == 400 && strings.Contains(strings.ToLower(apiErr.Message), "api key") {
			status = 401
		}
		return model.Classify(providerName, status, err)
	}
	return model.Classify(providerName, 0, err)
}

// sdkClient wraps the official generative-ai-go client. A client is opened
// per call so no connection outlives the turn that needed it.
type sdkClient struct {
	apiKey string
}

func (c *sdkClient) open(ctx context.Context) (*genai.Client, error) {
	if c.apiKey == "" {
		return nil, model.ErrMissingAPIKey
	}
	client, err := genai.NewClient(ctx, option.WithAPIKey(c.apiKey))
	if err != nil {
		return nil, fmt.Errorf("failed to create Google client: %w", err)
	}
	return client, nil
}

func (c *sdkClient) generate(ctx context.Context, req request) (*genai.GenerateContentResponse, error) {
	client, err := c.open(ctx)
	if err != nil {
		return nil, err
	}
	defer func() { _ = client.Close() }()

	gm := client.GenerativeModel(req.Model)
	if req.System != "" {
		gm.SystemInstruction = &genai.Content{Parts: []genai.Part{genai.Text(req.System)}}
	}
	if req.Opts.Temperature > 0 {
		gm.SetTemperature(float32(req.Opts.Temperature))
	}
	if req.Opts.TopP > 0 {
		gm.SetTopP(float32(req.Opts.TopP))
	}
	if req.Opts.MaxTokens > 0 {
		gm.SetMaxOutputTokens(int32(req.Opts.MaxTokens))
	}

	cs := gm.StartChat()
	cs.History = req.History
	return cs.SendMessage(ctx, req.Parts...)
}

func (c *sdkClient) info(ctx context.Context, modelName string) error {
	client, err := c.open(ctx)
	if err != nil {
		return err
	}
	defer func() { _ = client.Close() }()

	_, err = client.GenerativeModel(modelName).Info(ctx)
	return err
}
