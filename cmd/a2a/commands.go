package main

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/charmbracelet/lipgloss"
	"github.com/charmbracelet/lipgloss/table"
	"github.com/google/uuid"

	"github.com/dshills/a2a-go/dialogue"
	"github.com/dshills/a2a-go/dialogue/catalog"
	"github.com/dshills/a2a-go/dialogue/emit"
	"github.com/dshills/a2a-go/dialogue/keys"
	"github.com/dshills/a2a-go/dialogue/store"
	"github.com/dshills/a2a-go/dialogue/transcript"
	"github.com/dshills/a2a-go/internal/tui"
)

const (
	keyCheckTimeout = 30 * time.Second

	// stopGrace is how long quitting the TUI waits for the turn in flight.
	stopGrace = 5 * time.Second
	idlePoll  = 50 * time.Millisecond
)

// cmdRun runs a new dialogue without the terminal UI.
func (e *env) cmdRun(ctx context.Context) error {
	cfg := e.cfg.Dialogue
	prompt, err := e.readPrompt()
	if err != nil {
		return err
	}
	cfg.Prompt = prompt

	if err := e.prepare(ctx, &cfg); err != nil {
		return err
	}
	st, err := e.openStore()
	if err != nil {
		return err
	}
	engine, err := e.newEngine(st, newConsolePrinter(e.stdout, e.stderr, e.args.Quiet), e.args.Verbose)
	if err != nil {
		return err
	}

	sessionID := uuid.NewString()
	if !e.args.Quiet {
		fmt.Fprintf(e.stderr, "Session %s · %s ↔ %s · %d rounds\n", sessionID, cfg.Analyst.Model, cfg.Reviewer.Model, cfg.Rounds)
	}

	ctx, cancel := context.WithCancel(ctx)
	defer cancel()
	defer watchInterrupts(engine, cancel, e.stderr)()

	final, err := engine.Run(ctx, sessionID, cfg)
	return e.finish(sessionID, final, err)
}

// cmdResume continues a stored dialogue.
func (e *env) cmdResume(ctx context.Context) error {
	if len(e.args.Positional) != 1 {
		return errors.New("usage: a2a resume <session-id> [--extra-rounds N]")
	}
	sessionID := e.args.Positional[0]

	st, err := e.openStore()
	if err != nil {
		return err
	}
	engine, err := e.newEngine(st, newConsolePrinter(e.stdout, e.stderr, e.args.Quiet), e.args.Verbose)
	if err != nil {
		return err
	}

	ctx, cancel := context.WithCancel(ctx)
	defer cancel()
	defer watchInterrupts(engine, cancel, e.stderr)()

	final, err := engine.Resume(ctx, sessionID, e.args.ExtraRounds)
	if final.Transcript.SessionID == "" {
		return err
	}
	return e.finish(sessionID, final, err)
}

// finish exports the transcript and reports the outcome. A stopped dialogue
// is not an error.
func (e *env) finish(sessionID string, final dialogue.State, runErr error) error {
	if len(final.Transcript.Entries) > 0 && e.args.Output != "-" {
		path := e.args.Output
		now := e.now()
		if path == "" {
			path = filepath.Join(e.cfg.ExportDir, transcript.DefaultFilename(now))
		}
		if err := transcript.Save(path, &final.Transcript, now); err != nil {
			runErr = errors.Join(runErr, err)
		} else if !e.args.Quiet {
			fmt.Fprintf(e.stderr, "💾 Saved to %s\n", path)
		}
	}

	if !e.args.Quiet && final.Status != "" {
		u := final.Usage
		line := fmt.Sprintf("Session %s %s · %d turns · %d tokens", sessionID, final.Status, final.Transcript.Turns(), u.InputTokens+u.OutputTokens)
		if u.CostUSD > 0 {
			line += fmt.Sprintf(" · $%.4f", u.CostUSD)
		}
		fmt.Fprintln(e.stderr, line)
		if final.Status == dialogue.StatusStopped || final.Status == dialogue.StatusFailed {
			fmt.Fprintf(e.stderr, "Resume with: a2a resume %s\n", sessionID)
		}
	}

	if errors.Is(runErr, dialogue.ErrStopped) {
		return nil
	}
	return runErr
}

// readPrompt takes the prompt from --prompt, --prompt-file, the positional
// arguments or the config file, in that order.
func (e *env) readPrompt() (string, error) {
	var prompt string
	switch {
	case e.args.Prompt != "":
		prompt = e.args.Prompt
	case e.args.PromptFile == "-":
		data, err := io.ReadAll(e.stdin)
		if err != nil {
			return "", fmt.Errorf("read prompt: %w", err)
		}
		prompt = string(data)
	case e.args.PromptFile != "":
		data, err := os.ReadFile(e.args.PromptFile)
		if err != nil {
			return "", fmt.Errorf("read prompt: %w", err)
		}
		prompt = string(data)
	case len(e.args.Positional) > 0:
		prompt = strings.Join(e.args.Positional, " ")
	default:
		prompt = e.cfg.Dialogue.Prompt
	}

	prompt = strings.TrimSpace(prompt)
	if prompt == "" {
		return "", errors.New("please enter a prompt (argument, --prompt or --prompt-file)")
	}
	return prompt, nil
}

// cmdTUI starts the terminal UI.
func (e *env) cmdTUI(ctx context.Context) error {
	st, err := e.openStore()
	if err != nil {
		return err
	}

	events := emit.NewChannelEmitter(256)
	defer events.Close()
	e.notices = io.Discard

	engine, err := e.newEngine(st, events, false)
	if err != nil {
		return err
	}

	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	app := tui.NewApp(engine, e.cfg.Dialogue,
		tui.WithEvents(events.Events()),
		tui.WithModelLister(e.resolver.LocalModels),
		tui.WithKeys(e.keys),
		tui.WithExportDir(e.cfg.ExportDir),
		tui.WithContext(ctx),
	)
	err = tui.Run(ctx, app)

	// Quitting mid-dialogue only requests a stop; the final step must be
	// saved before the store closes.
	waitIdle(engine, cancel, stopGrace)
	return err
}

// waitIdle blocks until the engine has no session running. A session still
// running after grace is canceled, which aborts the request in flight.
func waitIdle(engine interface{ Running() bool }, cancel context.CancelFunc, grace time.Duration) {
	deadline := time.Now().Add(grace)
	canceled := false
	for engine.Running() {
		if !canceled && time.Now().After(deadline) {
			cancel()
			canceled = true
		}
		time.Sleep(idlePoll)
	}
}

// cmdModels lists the cloud catalog and the local models.
func (e *env) cmdModels(ctx context.Context) error {
	t := newTable("Model", "Provider", "Status")
	for _, m := range catalog.CloudModels() {
		status := "no API key"
		if src := e.keys.Source(m.Provider); src != keys.SourceNone {
			status = "key from " + string(src)
		}
		t.Row(m.Name, string(m.Provider), status)
	}

	local, err := e.localModels(ctx)
	if err != nil {
		fmt.Fprintf(e.stderr, "Warning: Ollama unavailable at %s: %v\n", e.resolver.Ollama().BaseURL(), err)
	}
	for _, name := range catalog.Available(local)[len(catalog.CloudModels()):] {
		t.Row(name, string(catalog.Ollama), "installed")
	}

	fmt.Fprintln(e.stdout, t.String())
	return nil
}

// cmdStatus checks the Ollama server and lists which keys are configured.
func (e *env) cmdStatus(ctx context.Context) error {
	url := e.resolver.Ollama().BaseURL()
	local, err := e.localModels(ctx)
	if err != nil {
		fmt.Fprintf(e.stdout, "❌ Ollama not reachable at %s\n", url)
	} else {
		fmt.Fprintf(e.stdout, "✅ Ollama is running at %s (%d models)\n", url, len(local))
	}

	for _, p := range catalog.CloudProviders {
		if e.keys.Key(p) != "" {
			fmt.Fprintf(e.stdout, "✅ %s API key configured (%s)\n", p, e.keys.Source(p))
		} else {
			fmt.Fprintf(e.stdout, "⚪ %s API key not set\n", p)
		}
	}

	if err != nil {
		return fmt.Errorf("ollama: %w", err)
	}
	return nil
}

// cmdKeys handles keys set|show|check.
func (e *env) cmdKeys(ctx context.Context) error {
	if len(e.args.Positional) == 0 {
		return errors.New("usage: a2a keys set|show|check")
	}

	switch e.args.Positional[0] {
	case "set":
		return e.keysSet(ctx)
	case "show":
		t := newTable("Provider", "Key", "Source", "File")
		for _, p := range catalog.CloudProviders {
			path, _ := e.keys.Path(p)
			src := string(e.keys.Source(p))
			if src == "" {
				src = "-"
			}
			t.Row(string(p), keys.Mask(e.keys.Key(p)), src, path)
		}
		fmt.Fprintln(e.stdout, t.String())
		return nil
	case "check":
		return e.keysCheck(ctx)
	default:
		return fmt.Errorf("unknown keys command %q", e.args.Positional[0])
	}
}

func (e *env) keysSet(ctx context.Context) error {
	if len(e.args.Positional) < 2 || len(e.args.Positional) > 3 {
		return errors.New("usage: a2a keys set <gemini|claude|openai> [key]")
	}
	p, err := keys.ParseProvider(e.args.Positional[1])
	if err != nil {
		return err
	}

	var key string
	if len(e.args.Positional) == 3 {
		key = e.args.Positional[2]
	} else {
		fmt.Fprintf(e.stderr, "Enter %s API key: ", p)
		line, err := bufio.NewReader(e.stdin).ReadString('\n')
		if err != nil && !errors.Is(err, io.EOF) {
			return fmt.Errorf("read key: %w", err)
		}
		key = line
	}

	var validate catalog.ValidateFunc
	if !e.args.NoVerify {
		validate = e.resolver.Validator(p)
	}
	ctx, cancel := context.WithTimeout(ctx, keyCheckTimeout)
	defer cancel()
	if err := e.keys.Save(ctx, p, key, validate); err != nil {
		return err
	}

	path, _ := e.keys.Path(p)
	fmt.Fprintf(e.stdout, "✅ %s API key saved to %s\n", p, path)
	return nil
}

func (e *env) keysCheck(ctx context.Context) error {
	var failed []string
	for _, p := range catalog.CloudProviders {
		key := e.keys.Key(p)
		if key == "" {
			fmt.Fprintf(e.stdout, "⚪ %s: not set\n", p)
			continue
		}
		checkCtx, cancel := context.WithTimeout(ctx, keyCheckTimeout)
		err := e.resolver.Validator(p)(checkCtx, key)
		cancel()
		if err != nil {
			failed = append(failed, string(p))
			fmt.Fprintf(e.stdout, "❌ %s: %v\n", p, err)
			continue
		}
		fmt.Fprintf(e.stdout, "✅ %s: valid\n", p)
	}
	if len(failed) > 0 {
		return fmt.Errorf("invalid API keys: %s", strings.Join(failed, ", "))
	}
	return nil
}

// cmdSessions handles sessions list|show|export|delete.
func (e *env) cmdSessions(ctx context.Context) error {
	if len(e.args.Positional) == 0 {
		return errors.New("usage: a2a sessions list|show|export|delete")
	}
	sub := e.args.Positional[0]
	if sub != "list" && len(e.args.Positional) != 2 {
		return fmt.Errorf("usage: a2a sessions %s <session-id>", sub)
	}

	st, err := e.openStore()
	if err != nil {
		return err
	}

	switch sub {
	case "list":
		return e.sessionsList(ctx, st)
	case "show":
		state, _, err := loadSession(ctx, st, e.args.Positional[1])
		if err != nil {
			return err
		}
		fmt.Fprint(e.stdout, transcript.PlainText(&state.Transcript))
		return nil
	case "export":
		state, _, err := loadSession(ctx, st, e.args.Positional[1])
		if err != nil {
			return err
		}
		now := e.now()
		path := e.args.Output
		if path == "" {
			path = filepath.Join(e.cfg.ExportDir, transcript.DefaultFilename(now))
		}
		if err := transcript.Save(path, &state.Transcript, now); err != nil {
			return err
		}
		fmt.Fprintf(e.stdout, "💾 Saved to %s\n", path)
		return nil
	case "delete":
		id := e.args.Positional[1]
		if err := st.DeleteSession(ctx, id); err != nil {
			if errors.Is(err, store.ErrNotFound) {
				return fmt.Errorf("session %s: %w", id, err)
			}
			return err
		}
		fmt.Fprintf(e.stdout, "Deleted session %s\n", id)
		return nil
	default:
		return fmt.Errorf("unknown sessions command %q", sub)
	}
}

func (e *env) sessionsList(ctx context.Context, st store.Store[dialogue.State]) error {
	infos, err := st.ListSessions(ctx, e.args.Limit)
	if err != nil {
		return err
	}
	if len(infos) == 0 {
		fmt.Fprintln(e.stdout, "No stored sessions")
		return nil
	}

	t := newTable("Session", "Status", "Round", "Turns", "Updated", "Prompt")
	for _, info := range infos {
		state, _, err := st.LoadLatest(ctx, info.ID)
		if err != nil {
			return err
		}
		t.Row(
			info.ID,
			string(state.Status),
			fmt.Sprintf("%d/%d", state.Round, state.Config.Rounds),
			fmt.Sprintf("%d", state.Transcript.Turns()),
			info.UpdatedAt.Local().Format("2006-01-02 15:04"),
			truncate(state.Config.Prompt, 40),
		)
	}
	fmt.Fprintln(e.stdout, t.String())
	return nil
}

func loadSession(ctx context.Context, st store.Store[dialogue.State], id string) (dialogue.State, int, error) {
	state, step, err := st.LoadLatest(ctx, id)
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			return state, 0, fmt.Errorf("session %s: %w", id, err)
		}
		return state, 0, err
	}
	return state, step, nil
}

// cmdAudioTest reports the audio command and plays the bell once.
func (e *env) cmdAudioTest(ctx context.Context) error {
	name, err := e.bell.Check()
	if err != nil {
		fmt.Fprintf(e.stdout, "Audio command: not found (%v)\n", err)
		return err
	}
	fmt.Fprintf(e.stdout, "Audio command: %s\nSound file: %s\n", name, e.bell.Path())

	if _, err := e.bell.Play(ctx, "audio-test"); err != nil {
		return err
	}
	fmt.Fprintln(e.stdout, "🔔 Bell sound played")
	return nil
}

func newTable(headers ...string) *table.Table {
	return table.New().
		Border(lipgloss.NormalBorder()).
		Headers(headers...)
}

func truncate(s string, n int) string {
	s = strings.Join(strings.Fields(s), " ")
	r := []rune(s)
	if len(r) <= n {
		return s
	}
	return string(r[:n-1]) + "…"
}
