package main

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"sync/atomic"
	"testing"
	"time"

	"go.opentelemetry.io/otel/attribute"

	"github.com/dshills/a2a-go/dialogue/emit"
	"github.com/dshills/a2a-go/dialogue/store"
)

// isolate points every default path at a temp dir and clears A2A_*
// overrides from the caller's environment.
func isolate(t *testing.T) string {
	t.Helper()
	home := t.TempDir()
	t.Setenv("A2A_HOME", home)
	for _, name := range []string{
		"A2A_ANALYST_MODEL", "A2A_REVIEWER_MODEL", "A2A_OLLAMA_URL", "A2A_OPENAI_BASE_URL",
		"A2A_KEY_DIR", "A2A_EXPORT_DIR", "A2A_STORE", "A2A_STORE_DSN", "A2A_LOG_FILE",
		"A2A_TRACE_FILE", "A2A_METRICS_ADDR", "A2A_BELL_SOUND", "A2A_ROUNDS", "A2A_TIMEOUT", "A2A_NO_BELL",
		"ANTHROPIC_API_KEY", "GEMINI_API_KEY", "GOOGLE_API_KEY", "OPENAI_API_KEY",
	} {
		t.Setenv(name, "")
	}
	return home
}

// newOllama serves the two endpoints the dialogue uses.
func newOllama(t *testing.T) (*httptest.Server, *atomic.Int32) {
	t.Helper()
	var calls atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		switch r.URL.Path {
		case "/api/tags":
			fmt.Fprint(w, `{"models":[{"name":"llama3"},{"name":"mistral"}]}`)
		case "/api/generate":
			var req struct {
				Model string `json:"model"`
			}
			_ = json.NewDecoder(r.Body).Decode(&req)
			n := calls.Add(1)
			fmt.Fprintf(w, `{"model":%q,"response":"answer %d from %s","prompt_eval_count":10,"eval_count":5}`, req.Model, n, req.Model)
		default:
			http.NotFound(w, r)
		}
	}))
	t.Cleanup(srv.Close)
	return srv, &calls
}

func runCLI(t *testing.T, stdin string, args ...string) (code int, stdout, stderr string) {
	t.Helper()
	var out, errOut bytes.Buffer
	code = run(args, strings.NewReader(stdin), &out, &errOut)
	return code, out.String(), errOut.String()
}

func sessionIDFrom(t *testing.T, stderr string) string {
	t.Helper()
	for _, line := range strings.Split(stderr, "\n") {
		if fields := strings.Fields(line); len(fields) > 1 && fields[0] == "Session" {
			return fields[1]
		}
	}
	t.Fatalf("no session ID in output:\n%s", stderr)
	return ""
}

// TestParseArgs_Run tests flags before and after the positional prompt.
func TestParseArgs_Run(t *testing.T) {
	args := parseArgs([]string{"run", "--analyst", "llama3", "Is", "Go", "good?", "--rounds=4", "--timeout", "90s", "-q", "-o", "out.md"})

	if args.Err != nil {
		t.Fatalf("parseArgs() error = %v", args.Err)
	}
	if args.Command != "run" {
		t.Errorf("Command = %q, want run", args.Command)
	}
	if strings.Join(args.Positional, " ") != "Is Go good?" {
		t.Errorf("Positional = %q", args.Positional)
	}
	if args.Analyst != "llama3" || args.Rounds != 4 || args.Timeout != 90*time.Second {
		t.Errorf("Analyst/Rounds/Timeout = %q/%d/%v", args.Analyst, args.Rounds, args.Timeout)
	}
	if !args.Quiet || args.Output != "out.md" {
		t.Errorf("Quiet = %v, Output = %q", args.Quiet, args.Output)
	}
}

// TestParseArgs_Subcommands tests sub-subcommands stay positional.
func TestParseArgs_Subcommands(t *testing.T) {
	args := parseArgs([]string{"keys", "set", "claude", "sk-123", "--no-verify"})
	if args.Err != nil {
		t.Fatalf("parseArgs() error = %v", args.Err)
	}
	if strings.Join(args.Positional, ",") != "set,claude,sk-123" || !args.NoVerify {
		t.Errorf("Positional = %q, NoVerify = %v", args.Positional, args.NoVerify)
	}

	args = parseArgs([]string{"resume", "abc", "--extra-rounds", "2"})
	if args.Err != nil || args.ExtraRounds != 2 || args.Positional[0] != "abc" {
		t.Errorf("resume args = %+v", args)
	}
}

// TestParseArgs_Errors tests rejected command lines.
func TestParseArgs_Errors(t *testing.T) {
	tests := []struct {
		name string
		args []string
		help bool
	}{
		{"no command", nil, true},
		{"help", []string{"help"}, true},
		{"help flag", []string{"run", "--help"}, true},
		{"unknown command", []string{"chat"}, false},
		{"unknown flag", []string{"run", "--bogus", "x"}, false},
		{"bad rounds", []string{"run", "--rounds", "many"}, false},
		{"quiet and verbose", []string{"run", "-q", "-v"}, false},
		{"negative extra rounds", []string{"resume", "id", "--extra-rounds=-1"}, false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			args := parseArgs(tt.args)
			if args.Err == nil {
				t.Fatal("expected an error")
			}
			if errors.Is(args.Err, errHelp) != tt.help {
				t.Errorf("Err = %v, help %v", args.Err, tt.help)
			}
		})
	}
}

// TestLoadConfig tests the YAML file plus defaults.
func TestLoadConfig(t *testing.T) {
	home := isolate(t)
	path := filepath.Join(t.TempDir(), "a2a.yaml")
	yml := `
analyst:
  model: llama3
  timeout: 300s
  context_size: 4096
reviewer:
  model: Claude Sonnet 4 (API)
  system_prompt: Be critical.
rounds: 5
retry:
  max_attempts: 3
  base_delay: 2s
  max_delay: 30s
ollama_url: http://gpu-box:11434
log:
  json: true
`
	if err := os.WriteFile(path, []byte(yml), 0o644); err != nil {
		t.Fatal(err)
	}

	cfg, err := loadConfig(path)
	if err != nil {
		t.Fatalf("loadConfig() error = %v", err)
	}

	d := cfg.Dialogue
	if d.Analyst.Model != "llama3" || d.Analyst.Timeout != 300*time.Second || d.Analyst.ContextSize != 4096 {
		t.Errorf("analyst = %+v", d.Analyst)
	}
	if d.Reviewer.Timeout != 600*time.Second || d.Reviewer.SystemPrompt != "Be critical." {
		t.Errorf("reviewer = %+v", d.Reviewer)
	}
	if d.Rounds != 5 || d.Retry.MaxAttempts != 3 || d.Retry.MaxDelay != 30*time.Second {
		t.Errorf("rounds/retry = %d/%+v", d.Rounds, d.Retry)
	}
	if cfg.OllamaURL != "http://gpu-box:11434" || !cfg.Log.JSON {
		t.Errorf("ollama/log = %q/%v", cfg.OllamaURL, cfg.Log.JSON)
	}
	if cfg.KeyDir != home || cfg.Store.Driver != store.DriverSQLite || cfg.Store.DSN != filepath.Join(home, "sessions.db") {
		t.Errorf("defaults = %q %q %q", cfg.KeyDir, cfg.Store.Driver, cfg.Store.DSN)
	}
	if cfg.Bell.Sound != filepath.Join(home, "bell.wav") {
		t.Errorf("bell = %q", cfg.Bell.Sound)
	}
}

// TestLoadConfig_Missing tests that only an explicit path must exist.
func TestLoadConfig_Missing(t *testing.T) {
	isolate(t)
	if _, err := loadConfig(""); err != nil {
		t.Errorf("default config should be optional, got %v", err)
	}
	if _, err := loadConfig(filepath.Join(t.TempDir(), "nope.yaml")); err == nil {
		t.Error("explicit missing config should fail")
	}
}

// TestConfigPrecedence tests env over file and flags over env.
func TestConfigPrecedence(t *testing.T) {
	cfg := &Config{}
	cfg.applyDefaults()

	env := map[string]string{
		"A2A_ANALYST_MODEL": "phi3",
		"A2A_ROUNDS":        "7",
		"A2A_TIMEOUT":       "120",
		"A2A_NO_BELL":       "true",
	}
	lookup := func(k string) (string, bool) { v, ok := env[k]; return v, ok }
	if err := cfg.applyEnv(lookup); err != nil {
		t.Fatalf("applyEnv() error = %v", err)
	}
	if cfg.Dialogue.Analyst.Model != "phi3" || cfg.Dialogue.Rounds != 7 || cfg.Dialogue.Reviewer.Timeout != 120*time.Second || !cfg.Bell.Disabled {
		t.Errorf("after env: %+v", cfg.Dialogue)
	}

	cfg.applyArgs(Args{Analyst: "llama3", Timeout: 5 * time.Second, Rounds: 2})
	if cfg.Dialogue.Analyst.Model != "llama3" || cfg.Dialogue.Rounds != 2 {
		t.Errorf("after flags: %+v", cfg.Dialogue)
	}
	if cfg.Dialogue.Analyst.Timeout != 60*time.Second {
		t.Errorf("flag timeout should be clamped to 60s, got %v", cfg.Dialogue.Analyst.Timeout)
	}

	env["A2A_ROUNDS"] = "lots"
	if err := cfg.applyEnv(lookup); err == nil {
		t.Error("bad A2A_ROUNDS should fail")
	}
}

// TestRun_EndToEnd runs a dialogue against a fake Ollama server.
func TestRun_EndToEnd(t *testing.T) {
	isolate(t)
	srv, calls := newOllama(t)
	out := filepath.Join(t.TempDir(), "dialogue.md")

	code, stdout, stderr := runCLI(t, "", "run", "Is Go a good fit?",
		"--analyst", "llama3", "--reviewer", "mistral", "--rounds", "2",
		"--store", "memory", "--no-bell", "--ollama-url", srv.URL, "-o", out)

	if code != 0 {
		t.Fatalf("exit code = %d\nstderr:\n%s", code, stderr)
	}
	if calls.Load() != 4 {
		t.Errorf("generate calls = %d, want 4", calls.Load())
	}
	for _, want := range []string{"=== A2A dialogue start ===", "🤖 Agent 1: answer 1 from llama3", "🤖 Agent 2: answer 2 from mistral", "--- Round 2/2 ---", "=== A2A dialogue end ==="} {
		if !strings.Contains(stdout, want) {
			t.Errorf("stdout missing %q:\n%s", want, stdout)
		}
	}
	if !strings.Contains(stderr, "🤔 Agent 1 is thinking... (llama3, timeout 600s)") || !strings.Contains(stderr, "completed · 4 turns · 60 tokens") {
		t.Errorf("stderr:\n%s", stderr)
	}

	data, err := os.ReadFile(out)
	if err != nil {
		t.Fatalf("export missing: %v", err)
	}
	if !strings.HasPrefix(string(data), "# A2A Dialogue Log\n") || !strings.Contains(string(data), "## Agent 2 (Reviewer)\n> answer 4 from mistral") {
		t.Errorf("export:\n%s", data)
	}
}

// TestRun_Quiet prints only the agent answers.
func TestRun_Quiet(t *testing.T) {
	isolate(t)
	srv, _ := newOllama(t)

	code, stdout, stderr := runCLI(t, "Prompt from stdin\n", "run", "--prompt-file", "-", "-q",
		"--analyst", "llama3", "--reviewer", "llama3", "--rounds", "1",
		"--store", "memory", "--no-bell", "--ollama-url", srv.URL, "-o", "-")

	if code != 0 {
		t.Fatalf("exit code = %d\nstderr:\n%s", code, stderr)
	}
	if stdout != "🤖 Agent 1: answer 1 from llama3\n\n🤖 Agent 2: answer 2 from llama3\n\n" {
		t.Errorf("stdout = %q", stdout)
	}
	if stderr != "" {
		t.Errorf("stderr = %q", stderr)
	}
}

// TestRun_Errors tests failures that exit with code 1.
func TestRun_Errors(t *testing.T) {
	isolate(t)
	srv, _ := newOllama(t)
	down := httptest.NewServer(http.NotFoundHandler())
	down.Close()

	tests := []struct {
		name string
		args []string
		want string
	}{
		{"no prompt", []string{"run", "--store", "memory", "--ollama-url", srv.URL}, "please enter a prompt"},
		{"unknown model", []string{"run", "p", "--analyst", "phi3", "--store", "memory", "--ollama-url", srv.URL}, "unknown model"},
		{"missing key", []string{"run", "p", "--analyst", "GPT-4o (API)", "--reviewer", "llama3", "--store", "memory", "--ollama-url", srv.URL}, "API key is not set"},
		{"ollama down", []string{"run", "p", "--analyst", "llama3", "--reviewer", "llama3", "--store", "memory", "--ollama-url", down.URL}, "cannot list local models"},
		{"too many rounds", []string{"run", "p", "--rounds", "11", "--store", "memory", "--ollama-url", srv.URL}, "rounds"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			code, _, stderr := runCLI(t, "", tt.args...)
			if code != 1 {
				t.Fatalf("exit code = %d, want 1", code)
			}
			if !strings.HasPrefix(stderr, "Error: ") || !strings.Contains(stderr, tt.want) {
				t.Errorf("stderr = %q, want %q", stderr, tt.want)
			}
		})
	}
}

// TestSessionsAndResume stores a dialogue in SQLite, then lists, shows,
// resumes, exports and deletes it.
func TestSessionsAndResume(t *testing.T) {
	isolate(t)
	srv, _ := newOllama(t)
	dir := t.TempDir()
	db := filepath.Join(dir, "sessions.db")
	common := []string{"--store", "sqlite", "--dsn", db, "--no-bell", "--ollama-url", srv.URL}

	code, _, stderr := runCLI(t, "", append([]string{"run", "first prompt", "--analyst", "llama3", "--reviewer", "mistral", "--rounds", "1", "-o", "-"}, common...)...)
	if code != 0 {
		t.Fatalf("run exit code = %d\n%s", code, stderr)
	}
	id := sessionIDFrom(t, stderr)

	code, stdout, stderr := runCLI(t, "", append([]string{"sessions", "list"}, common...)...)
	if code != 0 || !strings.Contains(stdout, id) || !strings.Contains(stdout, "completed") || !strings.Contains(stdout, "first prompt") {
		t.Fatalf("sessions list (%d):\n%s%s", code, stdout, stderr)
	}

	code, stdout, _ = runCLI(t, "", append([]string{"resume", id, "--extra-rounds", "1", "-o", "-"}, common...)...)
	if code != 0 || !strings.Contains(stdout, "resumed") || !strings.Contains(stdout, "--- Round 2/2 ---") {
		t.Fatalf("resume (%d):\n%s", code, stdout)
	}

	code, stdout, _ = runCLI(t, "", append([]string{"sessions", "show", id}, common...)...)
	if code != 0 || !strings.Contains(stdout, "Agent 2: answer 4 from mistral") {
		t.Fatalf("sessions show (%d):\n%s", code, stdout)
	}

	export := filepath.Join(dir, "export.json")
	code, _, stderr = runCLI(t, "", append([]string{"sessions", "export", id, "-o", export}, common...)...)
	if code != 0 {
		t.Fatalf("sessions export (%d): %s", code, stderr)
	}
	var exported struct {
		SessionID string `json:"session_id"`
		Rounds    int    `json:"rounds"`
	}
	data, err := os.ReadFile(export)
	if err != nil {
		t.Fatal(err)
	}
	if err := json.Unmarshal(data, &exported); err != nil || exported.SessionID != id {
		t.Errorf("exported = %+v, err = %v", exported, err)
	}

	code, _, _ = runCLI(t, "", append([]string{"sessions", "delete", id}, common...)...)
	if code != 0 {
		t.Fatalf("sessions delete exit code = %d", code)
	}
	code, _, stderr = runCLI(t, "", append([]string{"sessions", "show", id}, common...)...)
	if code != 1 || !strings.Contains(stderr, "not found") {
		t.Errorf("show after delete (%d): %s", code, stderr)
	}

	code, _, stderr = runCLI(t, "", append([]string{"resume", "missing-id"}, common...)...)
	if code != 1 || !strings.Contains(stderr, "Error: ") {
		t.Errorf("resume of unknown session (%d): %s", code, stderr)
	}
}

// TestKeysCommands stores a key without verification and shows it masked.
func TestKeysCommands(t *testing.T) {
	home := isolate(t)

	code, stdout, stderr := runCLI(t, "", "keys", "set", "anthropic", "sk-ant-1234567890", "--no-verify")
	if code != 0 || !strings.Contains(stdout, "claude API key saved") {
		t.Fatalf("keys set (%d): %s%s", code, stdout, stderr)
	}
	info, err := os.Stat(filepath.Join(home, ".claude_api_key"))
	if err != nil {
		t.Fatal(err)
	}
	if info.Mode().Perm() != 0o600 {
		t.Errorf("key file mode = %v", info.Mode().Perm())
	}

	code, stdout, _ = runCLI(t, "sk-gem-abcdefghij\n", "keys", "set", "gemini", "--no-verify")
	if code != 0 {
		t.Fatalf("keys set from stdin exit code = %d", code)
	}

	code, stdout, _ = runCLI(t, "", "keys", "show")
	if code != 0 || !strings.Contains(stdout, "sk-a********7890") || !strings.Contains(stdout, "sk-g********ghij") {
		t.Errorf("keys show:\n%s", stdout)
	}
	if strings.Contains(stdout, "sk-ant-1234567890") {
		t.Error("keys show printed a full key")
	}

	for _, args := range [][]string{{"keys"}, {"keys", "set", "mistral", "x"}, {"keys", "set", "claude", "  ", "--no-verify"}, {"keys", "rotate"}} {
		if code, _, _ := runCLI(t, "", args...); code != 1 {
			t.Errorf("%v exit code = %d, want 1", args, code)
		}
	}
}

// TestStatusAndModels checks the Ollama status and model listing.
func TestStatusAndModels(t *testing.T) {
	isolate(t)
	srv, _ := newOllama(t)

	code, stdout, _ := runCLI(t, "", "status", "--ollama-url", srv.URL)
	if code != 0 || !strings.Contains(stdout, "✅ Ollama is running at "+srv.URL+" (2 models)") || !strings.Contains(stdout, "⚪ claude API key not set") {
		t.Errorf("status (%d):\n%s", code, stdout)
	}

	code, stdout, _ = runCLI(t, "", "models", "--ollama-url", srv.URL)
	if code != 0 {
		t.Fatalf("models exit code = %d", code)
	}
	for _, want := range []string{"Claude Sonnet 4 (API)", "GPT-4o mini (API)", "no API key", "llama3", "mistral", "installed"} {
		if !strings.Contains(stdout, want) {
			t.Errorf("models missing %q:\n%s", want, stdout)
		}
	}

	down := httptest.NewServer(http.NotFoundHandler())
	down.Close()
	code, stdout, _ = runCLI(t, "", "status", "--ollama-url", down.URL)
	if code != 1 || !strings.Contains(stdout, "❌ Ollama not reachable") {
		t.Errorf("status with server down (%d):\n%s", code, stdout)
	}
	code, stdout, stderr := runCLI(t, "", "models", "--ollama-url", down.URL)
	if code != 0 || !strings.Contains(stdout, "Gemini 2.5 Pro (API)") || !strings.Contains(stderr, "Warning: Ollama unavailable") {
		t.Errorf("models with server down (%d):\n%s%s", code, stdout, stderr)
	}
}

// TestAudioTest only checks the report format; the outcome depends on the
// host's audio tools.
func TestAudioTest(t *testing.T) {
	isolate(t)
	_, stdout, _ := runCLI(t, "", "audio-test")
	if !strings.HasPrefix(stdout, "Audio command: ") {
		t.Errorf("stdout = %q", stdout)
	}
}

func TestConsolePrinter(t *testing.T) {
	var out, status bytes.Buffer
	p := newConsolePrinter(&out, &status, false)

	p.Emit(emit.Event{Msg: "entry", Meta: map[string]interface{}{"kind": "system", "content": "--- Round 1/1 ---"}})
	p.Emit(emit.Event{Msg: "turn_start", Meta: map[string]interface{}{"agent": "Agent 1 (Analyst)", "model": "llama3", "timeout_s": 600}})
	p.Emit(emit.Event{Msg: "retry", Meta: map[string]interface{}{"agent": "Agent 1 (Analyst)", "reason": "timeout", "delay_ms": int64(1500), "attempt": 1, "max_attempts": 3}})
	p.Emit(emit.Event{Msg: "entry", Meta: map[string]interface{}{"kind": "analyst", "content": "hello"}})
	p.Emit(emit.Event{Msg: "entry", Meta: map[string]interface{}{"kind": "error", "content": "Agent 2 failed"}})
	p.Emit(emit.Event{Msg: "progress", Meta: map[string]interface{}{"elapsed_s": 1.0}})

	if out.String() != "--- Round 1/1 ---\n🤖 Agent 1: hello\n\n❌ Agent 2 failed\n" {
		t.Errorf("out = %q", out.String())
	}
	if status.String() != "🤔 Agent 1 (Analyst) is thinking... (llama3, timeout 600s)\n↻ Agent 1 (Analyst): timeout, retrying in 1500ms (attempt 1 of 3)\n" {
		t.Errorf("status = %q", status.String())
	}

	out.Reset()
	status.Reset()
	quiet := newConsolePrinter(&out, &status, true)
	quiet.Emit(emit.Event{Msg: "entry", Meta: map[string]interface{}{"kind": "system", "content": "=== A2A dialogue start ==="}})
	quiet.Emit(emit.Event{Msg: "turn_start", Meta: map[string]interface{}{"agent": "x"}})
	quiet.Emit(emit.Event{Msg: "entry", Meta: map[string]interface{}{"kind": "error", "content": "boom"}})
	if out.String() != "❌ boom\n" || status.Len() != 0 {
		t.Errorf("quiet out = %q, status = %q", out.String(), status.String())
	}
}

func TestSetupTracing(t *testing.T) {
	var buf bytes.Buffer
	tp, shutdown, err := setupTracing(&buf)
	if err != nil {
		t.Fatalf("setupTracing() error = %v", err)
	}

	_, span := tp.Tracer("test").Start(context.Background(), "turn_end")
	span.SetAttributes(attribute.String("a2a.node_id", "analyst"), attribute.Int64("a2a.llm.tokens_in", 42))
	span.End()
	if err := shutdown(context.Background()); err != nil {
		t.Fatal(err)
	}

	var rec struct {
		Name        string
		SpanContext struct {
			TraceID string
		}
		Status struct {
			Code string
		}
		Attributes []struct {
			Key   string
			Value struct {
				Type  string
				Value interface{}
			}
		}
	}
	if err := json.Unmarshal(bytes.TrimSpace(buf.Bytes()), &rec); err != nil {
		t.Fatalf("decode %q: %v", buf.String(), err)
	}
	if rec.Name != "turn_end" || rec.SpanContext.TraceID == "" || rec.Status.Code != "Unset" {
		t.Errorf("record = %+v", rec)
	}

	attrs := map[string]interface{}{}
	for _, kv := range rec.Attributes {
		attrs[kv.Key] = kv.Value.Value
	}
	if attrs["a2a.node_id"] != "analyst" || attrs["a2a.llm.tokens_in"] != float64(42) {
		t.Errorf("attributes = %v", attrs)
	}
}

// TestRun_TraceAndLogFiles checks that the ambient outputs are written.
func TestRun_TraceAndLogFiles(t *testing.T) {
	isolate(t)
	srv, _ := newOllama(t)
	dir := t.TempDir()
	traceFile := filepath.Join(dir, "trace.jsonl")
	logFile := filepath.Join(dir, "a2a.log")

	code, _, stderr := runCLI(t, "", "run", "p", "--analyst", "llama3", "--reviewer", "mistral", "--rounds", "1",
		"--store", "memory", "--no-bell", "--ollama-url", srv.URL, "-o", "-",
		"--trace-file", traceFile, "--log-file", logFile, "--log-json")
	if code != 0 {
		t.Fatalf("exit code = %d\n%s", code, stderr)
	}

	trace, err := os.ReadFile(traceFile)
	if err != nil || !strings.Contains(string(trace), `"Name":"turn_end"`) {
		t.Errorf("trace file (%v):\n%s", err, trace)
	}
	logs, err := os.ReadFile(logFile)
	if err != nil || !strings.Contains(string(logs), `"msg":"session_end"`) {
		t.Errorf("log file (%v):\n%s", err, logs)
	}
}

type fakeBusy struct{ running atomic.Bool }

func (f *fakeBusy) Running() bool { return f.running.Load() }

// TestWaitIdle checks that quitting waits for the session and cancels it
// only when it outlives the grace period.
func TestWaitIdle(t *testing.T) {
	var engine fakeBusy
	engine.running.Store(true)
	go func() {
		time.Sleep(20 * time.Millisecond)
		engine.running.Store(false)
	}()

	canceled := 0
	waitIdle(&engine, func() { canceled++ }, time.Minute)
	if engine.Running() || canceled != 0 {
		t.Errorf("running %v, canceled %d times; want idle without cancel", engine.Running(), canceled)
	}

	engine.running.Store(true)
	start := time.Now()
	waitIdle(&engine, func() {
		canceled++
		engine.running.Store(false)
	}, 10*time.Millisecond)
	if canceled != 1 {
		t.Errorf("canceled %d times, want 1", canceled)
	}
	if time.Since(start) < 10*time.Millisecond {
		t.Error("canceled before the grace period")
	}
}
