package keys

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"runtime"
	"testing"

	"github.com/dshills/a2a-go/dialogue/catalog"
)

func newTestStore(t *testing.T, env map[string]string) *Store {
	t.Helper()
	s := NewStore(t.TempDir())
	s.getenv = func(k string) string { return env[k] }
	return s
}

func TestStore_LoadFromFiles(t *testing.T) {
	s := newTestStore(t, nil)
	if err := os.WriteFile(filepath.Join(s.Dir(), ".claude_api_key"), []byte("  sk-ant-123\n"), 0o600); err != nil {
		t.Fatal(err)
	}

	if err := s.Load(); err != nil {
		t.Fatalf("Load() error = %v", err)
	}
	if got := s.Key(catalog.Claude); got != "sk-ant-123" {
		t.Errorf("Key(claude) = %q", got)
	}
	if s.Source(catalog.Claude) != SourceFile {
		t.Errorf("Source(claude) = %q", s.Source(catalog.Claude))
	}
	if s.Key(catalog.Gemini) != "" {
		t.Errorf("missing file should leave key empty")
	}
}

func TestStore_EnvFallback(t *testing.T) {
	s := newTestStore(t, map[string]string{
		"GOOGLE_API_KEY":    "g-env",
		"ANTHROPIC_API_KEY": "a-env",
	})
	if err := os.WriteFile(filepath.Join(s.Dir(), ".claude_api_key"), []byte("a-file"), 0o600); err != nil {
		t.Fatal(err)
	}

	if err := s.Load(); err != nil {
		t.Fatalf("Load() error = %v", err)
	}
	if s.Key(catalog.Gemini) != "g-env" || s.Source(catalog.Gemini) != SourceEnv {
		t.Errorf("gemini = %q (%s)", s.Key(catalog.Gemini), s.Source(catalog.Gemini))
	}
	if s.Key(catalog.Claude) != "a-file" {
		t.Errorf("file should win over env, got %q", s.Key(catalog.Claude))
	}
}

func TestStore_LoadReportsUnreadable(t *testing.T) {
	if runtime.GOOS == "windows" {
		t.Skip("directory-as-file trick is unix only")
	}
	s := newTestStore(t, nil)
	// A directory where a key file is expected cannot be read as a file.
	if err := os.Mkdir(filepath.Join(s.Dir(), ".openai_api_key"), 0o700); err != nil {
		t.Fatal(err)
	}
	if err := os.WriteFile(filepath.Join(s.Dir(), ".gemini_api_key"), []byte("g"), 0o600); err != nil {
		t.Fatal(err)
	}

	if err := s.Load(); err == nil {
		t.Fatal("expected error for unreadable key file")
	}
	if s.Key(catalog.Gemini) != "g" {
		t.Errorf("readable keys should still load")
	}
}

func TestStore_Save(t *testing.T) {
	s := newTestStore(t, nil)
	ctx := context.Background()

	var validated string
	validate := func(_ context.Context, key string) error {
		validated = key
		return nil
	}

	if err := s.Save(ctx, catalog.Gemini, "  AIza-key ", validate); err != nil {
		t.Fatalf("Save() error = %v", err)
	}
	if validated != "AIza-key" {
		t.Errorf("validator got %q", validated)
	}

	path, _ := s.Path(catalog.Gemini)
	data, err := os.ReadFile(path)
	if err != nil || string(data) != "AIza-key" {
		t.Fatalf("file = %q, %v", data, err)
	}
	if runtime.GOOS != "windows" {
		info, _ := os.Stat(path)
		if info.Mode().Perm() != 0o600 {
			t.Errorf("perm = %o, want 600", info.Mode().Perm())
		}
	}
	if s.Key(catalog.Gemini) != "AIza-key" {
		t.Errorf("in-memory key not updated")
	}
}

func TestStore_SaveRejects(t *testing.T) {
	s := newTestStore(t, nil)
	ctx := context.Background()

	if err := s.Save(ctx, catalog.Claude, "   ", nil); !errors.Is(err, ErrEmptyKey) {
		t.Errorf("empty key err = %v", err)
	}
	if err := s.Save(ctx, catalog.Ollama, "x", nil); !errors.Is(err, ErrUnknownProvider) {
		t.Errorf("ollama err = %v", err)
	}

	bad := errors.New("401 unauthorized")
	err := s.Save(ctx, catalog.Claude, "sk-bad", func(context.Context, string) error { return bad })
	if !errors.Is(err, bad) {
		t.Errorf("validation err = %v", err)
	}
	path, _ := s.Path(catalog.Claude)
	if _, statErr := os.Stat(path); !errors.Is(statErr, os.ErrNotExist) {
		t.Errorf("rejected key must not be written")
	}
}

func TestMask(t *testing.T) {
	tests := []struct{ in, want string }{
		{"", "(not set)"},
		{"short", "*****"},
		{"sk-ant-abcdefghij", "sk-a********ghij"},
	}
	for _, tt := range tests {
		if got := Mask(tt.in); got != tt.want {
			t.Errorf("Mask(%q) = %q, want %q", tt.in, got, tt.want)
		}
	}
}

func TestParseProvider(t *testing.T) {
	for in, want := range map[string]catalog.Provider{
		"anthropic": catalog.Claude,
		"Gemini":    catalog.Gemini,
		"google":    catalog.Gemini,
		"openai":    catalog.OpenAI,
	} {
		got, err := ParseProvider(in)
		if err != nil || got != want {
			t.Errorf("ParseProvider(%q) = %q, %v", in, got, err)
		}
	}
	if _, err := ParseProvider("ollama"); !errors.Is(err, ErrUnknownProvider) {
		t.Errorf("ParseProvider(ollama) err = %v", err)
	}
}
