package google

import (
	"context"
	"errors"
	"os"
	"testing"
	"time"

	"github.com/google/generative-ai-go/genai"
	"google.golang.org/api/googleapi"

	"github.com/dshills/a2a-go/dialogue/model"
)

type mockGoogleClient struct {
	response *genai.GenerateContentResponse
	err      error
	infoErr  error
	lastReq  request
	calls    int
}

func (m *mockGoogleClient) generate(_ context.Context, req request) (*genai.GenerateContentResponse, error) {
	m.calls++
	m.lastReq = req
	return m.response, m.err
}

func (m *mockGoogleClient) info(context.Context, string) error {
	return m.infoErr
}

func textResponse(parts ...string) *genai.GenerateContentResponse {
	content := &genai.Content{Role: "model"}
	for _, p := range parts {
		content.Parts = append(content.Parts, genai.Text(p))
	}
	return &genai.GenerateContentResponse{
		Candidates:    []*genai.Candidate{{Content: content}},
		UsageMetadata: &genai.UsageMetadata{PromptTokenCount: 7, CandidatesTokenCount: 3},
	}
}

func TestChatModel_Chat(t *testing.T) {
	mock := &mockGoogleClient{response: textResponse("Gemini ", "says hi")}
	m := &ChatModel{modelName: "gemini-2.5-pro", client: mock}

	out, err := m.Chat(context.Background(), []model.Message{
		{Role: model.RoleSystem, Content: "Be an analyst."},
		{Role: model.RoleUser, Content: "first"},
		{Role: model.RoleAssistant, Content: "reply"},
		{Role: model.RoleUser, Content: "second"},
	}, model.GenOptions{Temperature: 0.2})
	if err != nil {
		t.Fatalf("Chat() error = %v", err)
	}

	if out.Text != "Gemini says hi" {
		t.Errorf("Text = %q", out.Text)
	}
	if out.InputTokens != 7 || out.OutputTokens != 3 || out.Model != "gemini-2.5-pro" {
		t.Errorf("out = %+v", out)
	}

	req := mock.lastReq
	if req.System != "Be an analyst." {
		t.Errorf("System = %q", req.System)
	}
	if len(req.History) != 2 || req.History[1].Role != "model" {
		t.Errorf("History = %+v", req.History)
	}
	if len(req.Parts) != 1 || req.Parts[0] != genai.Text("second") {
		t.Errorf("Parts = %+v", req.Parts)
	}
	if req.Opts.Temperature != 0.2 {
		t.Errorf("Opts = %+v", req.Opts)
	}
}

func TestChatModel_EmptyCandidates(t *testing.T) {
	m := &ChatModel{modelName: "x", client: &mockGoogleClient{response: &genai.GenerateContentResponse{}}}

	_, err := m.Chat(context.Background(), []model.Message{{Role: model.RoleUser, Content: "hi"}}, model.GenOptions{})
	if !errors.Is(err, model.ErrEmptyResponse) {
		t.Fatalf("err = %v, want ErrEmptyResponse", err)
	}
}

func TestClassify(t *testing.T) {
	tests := []struct {
		name string
		err  error
		code string
	}{
		{"rate limit", &googleapi.Error{Code: 429}, model.CodeRateLimited},
		{"bad key", &googleapi.Error{Code: 400, Message: "API key not valid. Please pass a valid API key."}, model.CodeInvalidAPIKey},
		{"not found", &googleapi.Error{Code: 404}, model.CodeNotFound},
		{"unavailable", &googleapi.Error{Code: 503}, model.CodeUnavailable},
		{"blocked", &genai.BlockedError{}, model.CodeAPIError},
		{"plain", errors.New("RESOURCE_EXHAUSTED"), model.CodeRateLimited},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := model.CodeOf(classify(tt.err)); got != tt.code {
				t.Errorf("code = %q, want %q", got, tt.code)
			}
		})
	}
}

func TestValidate(t *testing.T) {
	if err := validate(context.Background(), &mockGoogleClient{}); err != nil {
		t.Errorf("validate() = %v", err)
	}
	err := validate(context.Background(), &mockGoogleClient{infoErr: &googleapi.Error{Code: 403}})
	if model.CodeOf(err) != model.CodeInvalidAPIKey {
		t.Errorf("code = %q", model.CodeOf(err))
	}
	if err := ValidateKey(context.Background(), ""); !errors.Is(err, model.ErrMissingAPIKey) {
		t.Errorf("ValidateKey(\"\") = %v", err)
	}
}

func TestChatModel_Integration(t *testing.T) {
	apiKey := os.Getenv("GEMINI_API_KEY")
	if apiKey == "" {
		t.Skip("GEMINI_API_KEY not set, skipping integration test")
	}

	ctx, cancel := context.WithTimeout(context.Background(), 60*time.Second)
	defer cancel()

	out, err := NewChatModel(apiKey, "").Chat(ctx, []model.Message{
		{Role: model.RoleUser, Content: "Reply with the single word: ready"},
	}, model.GenOptions{})
	if err != nil {
		t.Fatalf("Chat() error = %v", err)
	}
	if out.Text == "" {
		t.Error("expected non-empty text")
	}
}
