// Package keys stores cloud API keys as plaintext files, one per provider.
package keys

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"sync"

	"github.com/dshills/a2a-go/dialogue/catalog"
)

var (
	// ErrEmptyKey is returned when saving a blank key.
	ErrEmptyKey = errors.New("API key is empty")

	// ErrUnknownProvider is returned for providers that take no key.
	ErrUnknownProvider = errors.New("provider has no API key")
)

var fileNames = map[catalog.Provider]string{
	catalog.Gemini: ".gemini_api_key",
	catalog.Claude: ".claude_api_key",
	catalog.OpenAI: ".openai_api_key",
}

var envVars = map[catalog.Provider][]string{
	catalog.Gemini: {"GEMINI_API_KEY", "GOOGLE_API_KEY"},
	catalog.Claude: {"ANTHROPIC_API_KEY"},
	catalog.OpenAI: {"OPENAI_API_KEY"},
}

// Source records where a key came from.
type Source string

// Key sources.
const (
	SourceNone Source = ""
	SourceFile Source = "file"
	SourceEnv  Source = "env"
)

// Store holds API keys loaded from a directory. It is safe for concurrent
// use and implements catalog.KeySource.
type Store struct {
	dir    string
	getenv func(string) string

	mu      sync.RWMutex
	keys    map[catalog.Provider]string
	sources map[catalog.Provider]Source
}

// NewStore creates a Store rooted at dir. Nothing is read until Load.
func NewStore(dir string) *Store {
	return &Store{
		dir:     dir,
		getenv:  os.Getenv,
		keys:    make(map[catalog.Provider]string),
		sources: make(map[catalog.Provider]Source),
	}
}

// Dir returns the key directory.
func (s *Store) Dir() string {
	return s.dir
}

// Path returns the key file for p.
func (s *Store) Path(p catalog.Provider) (string, error) {
	name, ok := fileNames[p]
	if !ok {
		return "", fmt.Errorf("%w: %s", ErrUnknownProvider, p)
	}
	return filepath.Join(s.dir, name), nil
}

// Load reads every present key file and fills the gaps from the
// environment. Missing files are skipped. Unreadable files do not stop the
// load; their errors are joined into the returned error.
func (s *Store) Load() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	var errs []error
	for _, p := range catalog.CloudProviders {
		delete(s.keys, p)
		delete(s.sources, p)

		path := filepath.Join(s.dir, fileNames[p])
		data, err := os.ReadFile(path)
		switch {
		case err == nil:
			if key := strings.TrimSpace(string(data)); key != "" {
				s.keys[p] = key
				s.sources[p] = SourceFile
				continue
			}
		case !errors.Is(err, os.ErrNotExist):
			errs = append(errs, fmt.Errorf("read %s key: %w", p, err))
		}

		for _, name := range envVars[p] {
			if v := strings.TrimSpace(s.getenv(name)); v != "" {
				s.keys[p] = v
				s.sources[p] = SourceEnv
				break
			}
		}
	}
	return errors.Join(errs...)
}

// Key returns the key for p, or "" when none is configured.
func (s *Store) Key(p catalog.Provider) string {
	s.mu.RLock()
	defer s.mu.RUnlock()

	return s.keys[p]
}

// Source reports where the key for p came from.
func (s *Store) Source(p catalog.Provider) Source {
	s.mu.RLock()
	defer s.mu.RUnlock()

	return s.sources[p]
}

// Save trims key, checks it with validate (when non-nil) and writes it to
// the provider's file with 0600 permissions. Nothing is written when the
// check fails.
func (s *Store) Save(ctx context.Context, p catalog.Provider, key string, validate catalog.ValidateFunc) error {
	path, err := s.Path(p)
	if err != nil {
		return err
	}

	key = strings.TrimSpace(key)
	if key == "" {
		return ErrEmptyKey
	}

	if validate != nil {
		if err := validate(ctx, key); err != nil {
			return fmt.Errorf("%s key check failed: %w", p, err)
		}
	}

	if err := os.MkdirAll(s.dir, 0o700); err != nil {
		return fmt.Errorf("create key directory: %w", err)
	}
	if err := os.WriteFile(path, []byte(key), 0o600); err != nil {
		return fmt.Errorf("write %s key: %w", p, err)
	}

	s.mu.Lock()
	s.keys[p] = key
	s.sources[p] = SourceFile
	s.mu.Unlock()
	return nil
}

// Mask shortens key for display, keeping the first and last four
// characters.
func Mask(key string) string {
	if key == "" {
		return "(not set)"
	}
	if len(key) <= 8 {
		return strings.Repeat("*", len(key))
	}
	return key[:4] + strings.Repeat("*", 8) + key[len(key)-4:]
}

// ParseProvider accepts provider names and common aliases.
func ParseProvider(name string) (catalog.Provider, error) {
	switch strings.ToLower(strings.TrimSpace(name)) {
	case "gemini", "google":
		return catalog.Gemini, nil
	case "claude", "anthropic":
		return catalog.Claude, nil
	case "openai", "gpt":
		return catalog.OpenAI, nil
	default:
		return "", fmt.Errorf("%w: %q", ErrUnknownProvider, name)
	}
}
