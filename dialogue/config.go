package dialogue

import (
	"fmt"
	"strings"
	"time"

	"github.com/dshills/a2a-go/dialogue/catalog"
	"github.com/dshills/a2a-go/dialogue/model"
	"github.com/dshills/a2a-go/dialogue/transcript"
)

// Timeout and round limits offered by the front ends.
const (
	DefaultTimeout = 600 * time.Second
	MinTimeout     = 60 * time.Second
	MaxTimeout     = 600 * time.Second

	DefaultRounds = 3
	MinRounds     = 1
	MaxRounds     = 10
)

// AgentConfig configures one participant.
type AgentConfig struct {
	// Name is the display label ("Agent 1").
	Name string `yaml:"name" json:"name"`

	// Role is the participant's role ("Analyst").
	Role string `yaml:"role" json:"role"`

	// Model is a catalog display name or a local model name.
	Model string `yaml:"model" json:"model"`

	// Timeout bounds a single request to the backend.
	Timeout time.Duration `yaml:"timeout" json:"timeout"`

	ContextSize int     `yaml:"context_size,omitempty" json:"context_size,omitempty"`
	Temperature float64 `yaml:"temperature,omitempty" json:"temperature,omitempty"`
	TopP        float64 `yaml:"top_p,omitempty" json:"top_p,omitempty"`
	MaxTokens   int     `yaml:"max_tokens,omitempty" json:"max_tokens,omitempty"`

	// SystemPrompt is sent as the system message of every turn when set.
	SystemPrompt string `yaml:"system_prompt,omitempty" json:"system_prompt,omitempty"`
}

// GenOptions returns the generation settings passed to the backend.
func (a AgentConfig) GenOptions() model.GenOptions {
	return model.GenOptions{
		Temperature: a.Temperature,
		TopP:        a.TopP,
		ContextSize: a.ContextSize,
		MaxTokens:   a.MaxTokens,
	}
}

// Label returns "Name (Role)", or whichever of the two is set.
func (a AgentConfig) Label() string {
	switch {
	case a.Name != "" && a.Role != "":
		return a.Name + " (" + a.Role + ")"
	case a.Name != "":
		return a.Name
	default:
		return a.Role
	}
}

// Templates overrides the prompts sent to the agents. Empty fields use the
// built-in templates. See PromptData for the available fields.
type Templates struct {
	Reviewer string `yaml:"reviewer,omitempty" json:"reviewer,omitempty"`
	FollowUp string `yaml:"follow_up,omitempty" json:"follow_up,omitempty"`
}

// Config describes one dialogue.
type Config struct {
	Analyst   AgentConfig `yaml:"analyst" json:"analyst"`
	Reviewer  AgentConfig `yaml:"reviewer" json:"reviewer"`
	Rounds    int         `yaml:"rounds" json:"rounds"`
	Prompt    string      `yaml:"prompt,omitempty" json:"prompt"`
	Title     string      `yaml:"title,omitempty" json:"title,omitempty"`
	Templates Templates   `yaml:"templates,omitempty" json:"templates,omitempty"`
	Retry     RetryPolicy `yaml:"retry,omitempty" json:"retry,omitempty"`
}

// DefaultConfig returns a Config with both agents labelled and every limit
// at its default. Models and the prompt are left empty.
func DefaultConfig() Config {
	cfg := Config{}
	cfg.ApplyDefaults()
	return cfg
}

// ApplyDefaults fills zero fields with defaults.
func (c *Config) ApplyDefaults() {
	if c.Analyst.Name == "" {
		c.Analyst.Name = transcript.AnalystLabel
	}
	if c.Analyst.Role == "" {
		c.Analyst.Role = "Analyst"
	}
	if c.Reviewer.Name == "" {
		c.Reviewer.Name = transcript.ReviewerLabel
	}
	if c.Reviewer.Role == "" {
		c.Reviewer.Role = "Reviewer"
	}
	if c.Analyst.Timeout == 0 {
		c.Analyst.Timeout = DefaultTimeout
	}
	if c.Reviewer.Timeout == 0 {
		c.Reviewer.Timeout = DefaultTimeout
	}
	if c.Rounds == 0 {
		c.Rounds = DefaultRounds
	}
	if c.Retry.MaxAttempts == 0 {
		c.Retry.MaxAttempts = 1
	}
}

// SetTimeout applies the same timeout to both agents.
func (c *Config) SetTimeout(d time.Duration) {
	c.Analyst.Timeout = d
	c.Reviewer.Timeout = d
}

// Validate checks the settings that do not depend on the environment.
func (c Config) Validate() error {
	if strings.TrimSpace(c.Prompt) == "" {
		return fmt.Errorf("%w: initial prompt is empty", ErrInvalidConfig)
	}
	if c.Rounds < MinRounds || c.Rounds > MaxRounds {
		return fmt.Errorf("%w: rounds must be between %d and %d, got %d", ErrInvalidConfig, MinRounds, MaxRounds, c.Rounds)
	}
	for _, a := range []AgentConfig{c.Analyst, c.Reviewer} {
		if strings.TrimSpace(a.Model) == "" {
			return fmt.Errorf("%w: %s has no model", ErrInvalidConfig, a.Label())
		}
		if a.Timeout < 0 {
			return fmt.Errorf("%w: %s timeout is negative", ErrInvalidConfig, a.Label())
		}
	}
	if c.Retry.MaxAttempts != 0 {
		if err := c.Retry.Validate(); err != nil {
			return fmt.Errorf("%w: %w", ErrInvalidConfig, err)
		}
	}
	if _, err := NewPrompts(c.Templates); err != nil {
		return fmt.Errorf("%w: %w", ErrInvalidConfig, err)
	}
	return nil
}

// CheckModels verifies that both models are known, either from the cloud
// catalog or from the installed local models, and that every cloud model has
// an API key.
func (c Config) CheckModels(local []string, keys catalog.KeySource) error {
	for _, a := range []AgentConfig{c.Analyst, c.Reviewer} {
		if !catalog.Known(a.Model, local) {
			return fmt.Errorf("%s model %q: %w", a.Name, a.Model, catalog.ErrUnknownModel)
		}
		entry := catalog.Lookup(a.Model)
		if !entry.Cloud() {
			continue
		}
		if keys == nil || keys.Key(entry.Provider) == "" {
			return fmt.Errorf("%s API key is not set: %w", entry.Provider, model.ErrMissingAPIKey)
		}
	}
	return nil
}

// ClampTimeout limits d to the range the front ends offer.
func ClampTimeout(d time.Duration) time.Duration {
	switch {
	case d < MinTimeout:
		return MinTimeout
	case d > MaxTimeout:
		return MaxTimeout
	default:
		return d
	}
}

// ClampRounds limits n to the allowed round count.
func ClampRounds(n int) int {
	switch {
	case n < MinRounds:
		return MinRounds
	case n > MaxRounds:
		return MaxRounds
	default:
		return n
	}
}
