// Package ollama provides the ChatModel adapter for a local Ollama server.
package ollama

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
	"net/url"
	"sort"
	"strings"
	"time"

	"github.com/ollama/ollama/api"

	"github.com/dshills/a2a-go/dialogue/model"
)

const (
	// DefaultBaseURL is where `ollama serve` listens by default.
	DefaultBaseURL = "http://localhost:11434"

	// DefaultTemperature, DefaultTopP and DefaultContextSize are sent when
	// the agent leaves the corresponding GenOptions field at zero.
	DefaultTemperature = 0.7
	DefaultTopP        = 0.9
	DefaultContextSize = 2048

	// StatusTimeout bounds the model listing used by status checks.
	StatusTimeout = 10 * time.Second

	providerName = "ollama"
)

// Client talks to the Ollama HTTP API.
//
// The zero value is not usable; create one with NewClient. A Client is safe
// for concurrent use.
type Client struct {
	baseURL string
	api     *api.Client
	err     error
}

// NewClient creates a Client for baseURL. An empty baseURL selects
// DefaultBaseURL. Request deadlines come from the caller's context. An
// unparsable address is reported by every call.
func NewClient(baseURL string) *Client {
	if baseURL == "" {
		baseURL = DefaultBaseURL
	}
	baseURL = strings.TrimRight(baseURL, "/")

	c := &Client{baseURL: baseURL}
	base, err := url.Parse(baseURL)
	if err != nil {
		c.err = fmt.Errorf("invalid Ollama address %q: %w", baseURL, err)
		return c
	}
	c.api = api.NewClient(base, &http.Client{})
	return c
}

// BaseURL returns the server address the client targets.
func (c *Client) BaseURL() string {
	return c.baseURL
}

// Tags lists the names of the models installed on the server, sorted.
func (c *Client) Tags(ctx context.Context) ([]string, error) {
	if c.err != nil {
		return nil, c.err
	}
	ctx, cancel := context.WithTimeout(ctx, StatusTimeout)
	defer cancel()

	resp, err := c.api.List(ctx)
	if err != nil {
		return nil, classify(ctx, err)
	}

	names := make([]string, 0, len(resp.Models))
	for _, m := range resp.Models {
		name := m.Name
		if name == "" {
			name = m.Model
		}
		if name != "" {
			names = append(names, name)
		}
	}
	sort.Strings(names)
	return names, nil
}

// Ping reports whether the server answers the model listing endpoint.
func (c *Client) Ping(ctx context.Context) error {
	_, err := c.Tags(ctx)
	return err
}

// Generate sends a single non-streaming completion request.
func (c *Client) Generate(ctx context.Context, modelName, system, prompt string, opts model.GenOptions) (model.ChatOut, error) {
	if c.err != nil {
		return model.ChatOut{}, c.err
	}

	stream := false
	options := map[string]any{
		"temperature": orFloat(opts.Temperature, DefaultTemperature),
		"top_p":       orFloat(opts.TopP, DefaultTopP),
		"num_ctx":     orInt(opts.ContextSize, DefaultContextSize),
	}
	if opts.MaxTokens > 0 {
		options["num_predict"] = opts.MaxTokens
	}
	req := &api.GenerateRequest{
		Model:   modelName,
		Prompt:  prompt,
		System:  system,
		Stream:  &stream,
		Options: options,
	}

	out := model.ChatOut{Model: modelName}
	err := c.api.Generate(ctx, req, func(resp api.GenerateResponse) error {
		out.Text += resp.Response
		out.Model = orString(resp.Model, modelName)
		if resp.PromptEvalCount > 0 {
			out.InputTokens = resp.PromptEvalCount
		}
		if resp.EvalCount > 0 {
			out.OutputTokens = resp.EvalCount
		}
		return nil
	})
	if err != nil {
		return model.ChatOut{}, classify(ctx, err)
	}
	return out, nil
}

// classify maps client errors onto the model error taxonomy.
func classify(ctx context.Context, err error) error {
	if ctx.Err() != nil {
		return model.Classify(providerName, 0, ctx.Err())
	}

	var statusErr api.StatusError
	if errors.As(err, &statusErr) {
		return classifyStatus(statusErr.StatusCode, statusErr.ErrorMessage)
	}

	var urlErr *url.Error
	var netErr net.Error
	if errors.As(err, &urlErr) || errors.As(err, &netErr) {
		return classifyTransport(err)
	}

	return &model.Error{
		Provider: providerName,
		Code:     model.CodeAPIError,
		Message:  fmt.Sprintf("invalid response: %v", err),
		Cause:    err,
	}
}

func classifyTransport(err error) error {
	return &model.Error{
		Provider:  providerName,
		Code:      model.CodeUnavailable,
		Message:   "cannot connect to Ollama; make sure 'ollama serve' is running",
		Retryable: true,
		Cause:     err,
	}
}

func classifyStatus(status int, msg string) error {
	msg = strings.TrimSpace(msg)
	if msg == "" {
		msg = http.StatusText(status)
	}

	cause := errors.New(msg)
	if status == http.StatusNotFound {
		return &model.Error{
			Provider:   providerName,
			Code:       model.CodeNotFound,
			Message:    "model not found; install it with 'ollama pull'",
			StatusCode: status,
			Cause:      cause,
		}
	}
	if status >= 500 {
		return model.Classify(providerName, status, cause)
	}
	return &model.Error{
		Provider:   providerName,
		Code:       model.CodeAPIError,
		Message:    fmt.Sprintf("HTTP %d: %s", status, msg),
		StatusCode: status,
		Cause:      cause,
	}
}

func orFloat(v, def float64) float64 {
	if v == 0 {
		return def
	}
	return v
}

func orInt(v, def int) int {
	if v == 0 {
		return def
	}
	return v
}

func orString(v, def string) string {
	if v == "" {
		return def
	}
	return v
}
