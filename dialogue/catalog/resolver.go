package catalog

import (
	"context"
	"fmt"

	"github.com/dshills/a2a-go/dialogue/model"
	"github.com/dshills/a2a-go/dialogue/model/anthropic"
	"github.com/dshills/a2a-go/dialogue/model/google"
	"github.com/dshills/a2a-go/dialogue/model/ollama"
	"github.com/dshills/a2a-go/dialogue/model/openai"
)

// KeySource provides API keys by provider.
type KeySource interface {
	Key(p Provider) string
}

// ValidateFunc checks an API key against its provider.
type ValidateFunc func(ctx context.Context, key string) error

// Resolver builds ChatModels for catalog names.
type Resolver struct {
	keys          KeySource
	ollama        *ollama.Client
	openaiBaseURL string
}

// NewResolver creates a Resolver. A nil ollama client uses the default
// server address; openaiBaseURL may be empty.
func NewResolver(keys KeySource, client *ollama.Client, openaiBaseURL string) *Resolver {
	if client == nil {
		client = ollama.NewClient("")
	}
	return &Resolver{keys: keys, ollama: client, openaiBaseURL: openaiBaseURL}
}

// Ollama returns the local server client.
func (r *Resolver) Ollama() *ollama.Client {
	return r.ollama
}

// Resolve returns the ChatModel for a display name together with its
// catalog entry. Cloud models without a configured key fail with
// model.ErrMissingAPIKey.
func (r *Resolver) Resolve(name string) (model.ChatModel, Entry, error) {
	if name == "" {
		return nil, Entry{}, fmt.Errorf("%w: empty model name", ErrUnknownModel)
	}

	entry := Lookup(name)
	if !entry.Cloud() {
		return ollama.NewChatModel(r.ollama, entry.ModelID), entry, nil
	}

	key := r.key(entry.Provider)
	if key == "" {
		return nil, entry, fmt.Errorf("%s: %w", entry.Name, model.ErrMissingAPIKey)
	}

	switch entry.Provider {
	case Claude:
		return anthropic.NewChatModel(key, entry.ModelID), entry, nil
	case Gemini:
		return google.NewChatModel(key, entry.ModelID), entry, nil
	case OpenAI:
		return openai.NewChatModel(key, entry.ModelID, r.openaiBaseURL), entry, nil
	default:
		return nil, entry, fmt.Errorf("%w: provider %q", ErrUnknownModel, entry.Provider)
	}
}

// Validator returns the key check for a cloud provider, or nil for Ollama.
func (r *Resolver) Validator(p Provider) ValidateFunc {
	switch p {
	case Claude:
		return anthropic.ValidateKey
	case Gemini:
		return google.ValidateKey
	case OpenAI:
		return func(ctx context.Context, key string) error {
			return openai.ValidateKey(ctx, key, r.openaiBaseURL)
		}
	default:
		return nil
	}
}

// LocalModels lists the models installed on the Ollama server.
func (r *Resolver) LocalModels(ctx context.Context) ([]string, error) {
	return r.ollama.Tags(ctx)
}

func (r *Resolver) key(p Provider) string {
	if r.keys == nil {
		return ""
	}
	return r.keys.Key(p)
}
