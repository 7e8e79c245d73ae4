package anthropic

import (
	"context"
	"errors"
	"os"
	"testing"
	"time"

	"github.com/anthropics/anthropic-sdk-go"

	"github.com/dshills/a2a-go/dialogue/model"
)

type mockAnthropicClient struct {
	response  *anthropic.Message
	err       error
	listErr   error
	lastParam anthropic.MessageNewParams
	callCount int
}

func (m *mockAnthropicClient) createMessage(_ context.Context, params anthropic.MessageNewParams) (*anthropic.Message, error) {
	m.callCount++
	m.lastParam = params
	return m.response, m.err
}

func (m *mockAnthropicClient) listModels(context.Context) error {
	return m.listErr
}

func textMessage(text string) *anthropic.Message {
	return &anthropic.Message{
		Model:   anthropic.Model("claude-sonnet-4-20250514"),
		Content: []anthropic.ContentBlockUnion{{Type: "text", Text: text}},
		Usage:   anthropic.Usage{InputTokens: 10, OutputTokens: 5},
	}
}

func TestNewChatModel_DefaultModel(t *testing.T) {
	m := NewChatModel("key", "")
	if m.modelName != DefaultModel {
		t.Errorf("modelName = %q, want %q", m.modelName, DefaultModel)
	}
}

func TestChatModel_Chat(t *testing.T) {
	mock := &mockAnthropicClient{response: textMessage("A careful analysis.")}
	m := &ChatModel{modelName: "claude-opus-4-20250514", client: mock}

	out, err := m.Chat(context.Background(), []model.Message{
		{Role: model.RoleSystem, Content: "You are a reviewer."},
		{Role: model.RoleUser, Content: "Critique this."},
	}, model.GenOptions{})
	if err != nil {
		t.Fatalf("Chat() error = %v", err)
	}

	if out.Text != "A careful analysis." || out.InputTokens != 10 || out.OutputTokens != 5 {
		t.Errorf("out = %+v", out)
	}
	if mock.callCount != 1 {
		t.Errorf("callCount = %d", mock.callCount)
	}
	if mock.lastParam.MaxTokens != DefaultMaxTokens {
		t.Errorf("MaxTokens = %d, want %d", mock.lastParam.MaxTokens, DefaultMaxTokens)
	}
	if len(mock.lastParam.System) != 1 || mock.lastParam.System[0].Text != "You are a reviewer." {
		t.Errorf("System = %+v", mock.lastParam.System)
	}
	if len(mock.lastParam.Messages) != 1 {
		t.Errorf("Messages = %d, want 1", len(mock.lastParam.Messages))
	}
	if string(mock.lastParam.Model) != "claude-opus-4-20250514" {
		t.Errorf("Model = %q", mock.lastParam.Model)
	}
}

func TestChatModel_ChatEmptyResponse(t *testing.T) {
	m := &ChatModel{modelName: "x", client: &mockAnthropicClient{response: textMessage("  ")}}

	_, err := m.Chat(context.Background(), []model.Message{{Role: model.RoleUser, Content: "hi"}}, model.GenOptions{})
	if !errors.Is(err, model.ErrEmptyResponse) {
		t.Fatalf("err = %v, want ErrEmptyResponse", err)
	}
}

func TestChatModel_ChatErrors(t *testing.T) {
	t.Run("cancelled context", func(t *testing.T) {
		mock := &mockAnthropicClient{}
		m := &ChatModel{modelName: "x", client: mock}
		ctx, cancel := context.WithCancel(context.Background())
		cancel()

		if _, err := m.Chat(ctx, nil, model.GenOptions{}); !errors.Is(err, context.Canceled) {
			t.Errorf("err = %v, want context.Canceled", err)
		}
		if mock.callCount != 0 {
			t.Errorf("API called after cancellation")
		}
	})

	t.Run("deadline is retryable timeout", func(t *testing.T) {
		m := &ChatModel{modelName: "x", client: &mockAnthropicClient{err: context.DeadlineExceeded}}
		_, err := m.Chat(context.Background(), nil, model.GenOptions{})
		if model.CodeOf(err) != model.CodeTimeout || !model.IsRetryable(err) {
			t.Errorf("err = %v, want retryable timeout", err)
		}
	})

	t.Run("auth failure text", func(t *testing.T) {
		m := &ChatModel{modelName: "x", client: &mockAnthropicClient{err: errors.New("authentication_error: invalid x-api-key")}}
		_, err := m.Chat(context.Background(), nil, model.GenOptions{})
		if model.CodeOf(err) != model.CodeInvalidAPIKey {
			t.Errorf("code = %q", model.CodeOf(err))
		}
	})
}

func TestBuildParams_HistoryAndOptions(t *testing.T) {
	params := buildParams("m", []model.Message{
		{Role: model.RoleUser, Content: "q"},
		{Role: model.RoleAssistant, Content: "a"},
		{Role: model.RoleUser, Content: "q2"},
	}, model.GenOptions{MaxTokens: 256, Temperature: 0.5})

	if params.MaxTokens != 256 {
		t.Errorf("MaxTokens = %d", params.MaxTokens)
	}
	if len(params.Messages) != 3 {
		t.Fatalf("Messages = %d", len(params.Messages))
	}
	if params.Messages[1].Role != anthropic.MessageParamRoleAssistant {
		t.Errorf("second message role = %q", params.Messages[1].Role)
	}
	if params.System != nil {
		t.Errorf("System should be empty without system messages")
	}
}

func TestValidate(t *testing.T) {
	if err := validate(context.Background(), &mockAnthropicClient{}); err != nil {
		t.Errorf("validate() = %v", err)
	}
	err := validate(context.Background(), &mockAnthropicClient{listErr: errors.New("401 unauthorized")})
	if model.CodeOf(err) != model.CodeInvalidAPIKey {
		t.Errorf("validate() code = %q", model.CodeOf(err))
	}
	if err := ValidateKey(context.Background(), ""); !errors.Is(err, model.ErrMissingAPIKey) {
		t.Errorf("ValidateKey(\"\") = %v", err)
	}
}

func TestChatModel_Integration(t *testing.T) {
	apiKey := os.Getenv("ANTHROPIC_API_KEY")
	if apiKey == "" {
		t.Skip("ANTHROPIC_API_KEY not set, skipping integration test")
	}

	ctx, cancel := context.WithTimeout(context.Background(), 60*time.Second)
	defer cancel()

	out, err := NewChatModel(apiKey, "").Chat(ctx, []model.Message{
		{Role: model.RoleUser, Content: "Reply with the single word: ready"},
	}, model.GenOptions{MaxTokens: 16})
	if err != nil {
		t.Fatalf("Chat() error = %v", err)
	}
	if out.Text == "" {
		t.Error("expected non-empty text")
	}
}
