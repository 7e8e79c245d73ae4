// internal/tui/app.go
//
// Terminal front end for the dialogue engine. It follows the bubbletea
// loop: key presses and engine events arrive as messages, Update folds them
// into the App, and View renders the App.

package tui

import (
	"context"
	"errors"
	"fmt"
	"path/filepath"
	"strings"
	"time"

	"github.com/charmbracelet/bubbles/spinner"
	"github.com/charmbracelet/bubbles/textarea"
	"github.com/charmbracelet/bubbles/viewport"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/google/uuid"

	"github.com/dshills/a2a-go/dialogue"
	"github.com/dshills/a2a-go/dialogue/catalog"
	"github.com/dshills/a2a-go/dialogue/emit"
	"github.com/dshills/a2a-go/dialogue/model/ollama"
	"github.com/dshills/a2a-go/dialogue/transcript"
)

const (
	promptPlaceholder = "Enter the prompt both agents will discuss..."
	timeoutStep       = 30 * time.Second
)

// Engine runs dialogues. *dialogue.Engine satisfies it.
type Engine interface {
	Run(ctx context.Context, sessionID string, cfg dialogue.Config) (dialogue.State, error)
	Stop()
	Running() bool
}

// ModelLister returns the models installed on the local server.
type ModelLister func(ctx context.Context) ([]string, error)

// AppOption customizes App construction for tests and alternate runtimes.
type AppOption func(*App)

// WithEvents subscribes the App to engine events, normally the channel of an
// emit.ChannelEmitter passed to the engine.
func WithEvents(events <-chan emit.Event) AppOption {
	return func(a *App) {
		a.events = events
	}
}

// WithModelLister sets how local models are listed on start and ctrl+r.
func WithModelLister(list ModelLister) AppOption {
	return func(a *App) {
		a.listModels = list
	}
}

// WithKeys sets the API keys checked before a cloud model is used.
func WithKeys(keys catalog.KeySource) AppOption {
	return func(a *App) {
		a.keys = keys
	}
}

// WithExportDir sets where ctrl+e writes transcripts.
func WithExportDir(dir string) AppOption {
	return func(a *App) {
		a.exportDir = dir
	}
}

// WithSessionIDs overrides session ID generation.
func WithSessionIDs(next func() string) AppOption {
	return func(a *App) {
		if next != nil {
			a.newID = next
		}
	}
}

// WithClock overrides the time source used for exports and timers.
func WithClock(now func() time.Time) AppOption {
	return func(a *App) {
		if now != nil {
			a.now = now
		}
	}
}

// WithContext sets the parent context of every dialogue started from the UI.
func WithContext(ctx context.Context) AppOption {
	return func(a *App) {
		if ctx != nil {
			a.ctx = ctx
		}
	}
}

type focus int

const (
	focusPrompt focus = iota
	focusAnalyst
	focusReviewer
	focusRounds
	focusTimeout
	focusCount
)

// Messages produced by commands.
type (
	eventMsg emit.Event

	dialogueDoneMsg struct {
		sessionID string
		state     dialogue.State
		err       error
	}

	modelsMsg struct {
		local []string
		err   error
	}

	exportedMsg struct {
		path string
		err  error
	}
)

// turnStatus tracks the request in flight for the status line.
type turnStatus struct {
	agent     string
	model     string
	elapsed   time.Duration
	remaining time.Duration
	limited   bool
}

// App is the bubbletea model.
type App struct {
	engine     Engine
	cfg        dialogue.Config
	events     <-chan emit.Event
	listModels ModelLister
	keys       catalog.KeySource
	exportDir  string
	newID      func() string
	now        func() time.Time
	ctx        context.Context
	cancel     context.CancelFunc

	local   []string
	choices []string

	// Dialogue currently shown.
	sessionID string
	running   bool
	log       transcript.Transcript
	turn      *turnStatus

	focus       focus
	statusMsg   string
	err         error
	confirmQuit bool

	width  int
	height int

	prompt   textarea.Model
	conv     viewport.Model
	spinner  spinner.Model
	theme    theme
	quitting bool
}

// NewApp creates the App. cfg supplies the initial models, rounds, timeout
// and prompt templates; the prompt itself is typed in the UI.
func NewApp(engine Engine, cfg dialogue.Config, opts ...AppOption) *App {
	cfg.ApplyDefaults()

	ta := textarea.New()
	ta.Placeholder = promptPlaceholder
	ta.ShowLineNumbers = false
	ta.SetHeight(3)
	ta.SetValue(cfg.Prompt)
	ta.Focus()

	sp := spinner.New()
	sp.Spinner = spinner.Dot

	a := &App{
		engine:    engine,
		cfg:       cfg,
		exportDir: ".",
		newID:     uuid.NewString,
		now:       time.Now,
		ctx:       context.Background(),
		prompt:    ta,
		conv:      viewport.New(80, 20),
		spinner:   sp,
		theme:     newTheme(),
		statusMsg: "Ready",
	}
	for _, opt := range opts {
		if opt != nil {
			opt(a)
		}
	}
	sp.Style = a.theme.spinner
	a.spinner = sp
	a.setChoices(nil)
	a.renderConversation()
	return a
}

// Init is called once when the program starts.
func (a *App) Init() tea.Cmd {
	cmds := []tea.Cmd{textarea.Blink, a.spinner.Tick, a.waitForEvent()}
	if a.listModels != nil {
		cmds = append(cmds, a.refreshModels())
	}
	return tea.Batch(cmds...)
}

// Update is called when a message is received.
func (a *App) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.WindowSizeMsg:
		a.width = msg.Width
		a.height = msg.Height
		a.resize()
		return a, nil

	case spinner.TickMsg:
		var cmd tea.Cmd
		a.spinner, cmd = a.spinner.Update(msg)
		return a, cmd

	case eventMsg:
		a.handleEvent(emit.Event(msg))
		return a, a.waitForEvent()

	case dialogueDoneMsg:
		a.handleDone(msg)
		return a, nil

	case modelsMsg:
		a.handleModels(msg)
		return a, nil

	case exportedMsg:
		if msg.err != nil {
			a.setError("Export failed", msg.err)
		} else {
			a.setStatus("Saved to " + msg.path)
		}
		return a, nil

	case tea.KeyMsg:
		return a.handleKey(msg)
	}

	return a, a.updateFocused(msg)
}

func (a *App) handleKey(msg tea.KeyMsg) (tea.Model, tea.Cmd) {
	key := msg.String()
	if key != "ctrl+c" {
		a.confirmQuit = false
	}

	switch key {
	case "ctrl+c":
		if a.running && !a.confirmQuit {
			a.confirmQuit = true
			a.setStatus("A dialogue is running. Press ctrl+c again to stop it and quit.")
			return a, nil
		}
		a.quit()
		return a, tea.Quit
	case "ctrl+s":
		return a, a.start()
	case "esc":
		a.stop()
		return a, nil
	case "ctrl+l":
		a.clear()
		return a, nil
	case "ctrl+e":
		return a, a.export()
	case "ctrl+r":
		if a.listModels == nil {
			return a, nil
		}
		a.setStatus("Refreshing local models...")
		return a, a.refreshModels()
	case "tab":
		a.cycleFocus(1)
		return a, nil
	case "shift+tab":
		a.cycleFocus(-1)
		return a, nil
	case "pgup":
		a.conv.HalfViewUp()
		return a, nil
	case "pgdown":
		a.conv.HalfViewDown()
		return a, nil
	}

	if a.focus != focusPrompt {
		switch key {
		case "left", "h", "-":
			a.adjustSetting(-1)
		case "right", "l", "+":
			a.adjustSetting(1)
		case "up", "k":
			a.conv.LineUp(1)
		case "down", "j":
			a.conv.LineDown(1)
		}
		return a, nil
	}

	return a, a.updateFocused(msg)
}

func (a *App) updateFocused(msg tea.Msg) tea.Cmd {
	if a.focus != focusPrompt {
		return nil
	}
	var cmd tea.Cmd
	a.prompt, cmd = a.prompt.Update(msg)
	return cmd
}

// start validates the settings and launches a dialogue.
func (a *App) start() tea.Cmd {
	if a.running || (a.engine != nil && a.engine.Running()) {
		a.setStatus("A dialogue is already running")
		return nil
	}
	if a.engine == nil {
		a.setError("Cannot start", errors.New("no engine configured"))
		return nil
	}

	cfg := a.cfg
	cfg.Prompt = strings.TrimSpace(a.prompt.Value())
	if cfg.Prompt == "" {
		a.setStatus("Please enter a prompt")
		return nil
	}
	if err := cfg.Validate(); err != nil {
		a.setError("Cannot start", err)
		return nil
	}
	if a.listModels != nil {
		if err := cfg.CheckModels(a.local, a.keys); err != nil {
			a.setError("Cannot start", err)
			return nil
		}
	}

	a.sessionID = a.newID()
	a.log = transcript.Transcript{
		SessionID: a.sessionID,
		Title:     cfg.Title,
		Prompt:    cfg.Prompt,
		Analyst:   cfg.Analyst.Model,
		Reviewer:  cfg.Reviewer.Model,
		Rounds:    cfg.Rounds,
		Started:   a.now(),
	}
	a.running = true
	a.turn = nil
	a.err = nil
	a.statusMsg = "Dialogue starting..."
	a.renderConversation()

	ctx, cancel := context.WithCancel(a.ctx)
	a.cancel = cancel
	engine, id := a.engine, a.sessionID
	return func() tea.Msg {
		state, err := engine.Run(ctx, id, cfg)
		return dialogueDoneMsg{sessionID: id, state: state, err: err}
	}
}

func (a *App) stop() {
	if !a.running {
		return
	}
	a.engine.Stop()
	a.setStatus("Stopping after the current turn...")
}

func (a *App) quit() {
	a.quitting = true
	if a.running {
		a.engine.Stop()
	}
	if a.cancel != nil {
		a.cancel()
	}
}

func (a *App) clear() {
	if a.running {
		a.setStatus("Cannot clear while a dialogue is running")
		return
	}
	a.log = transcript.Transcript{}
	a.sessionID = ""
	a.err = nil
	a.prompt.Reset()
	a.setStatus("Cleared")
	a.renderConversation()
}

func (a *App) export() tea.Cmd {
	if len(a.log.Entries) == 0 {
		a.setStatus("Nothing to export")
		return nil
	}
	now := a.now()
	path := filepath.Join(a.exportDir, transcript.DefaultFilename(now))
	t := a.log.Clone()
	return func() tea.Msg {
		return exportedMsg{path: path, err: transcript.Save(path, t, now)}
	}
}

func (a *App) refreshModels() tea.Cmd {
	list, parent := a.listModels, a.ctx
	return func() tea.Msg {
		ctx, cancel := context.WithTimeout(parent, ollama.StatusTimeout)
		defer cancel()
		local, err := list(ctx)
		return modelsMsg{local: local, err: err}
	}
}

// waitForEvent blocks on the next engine event.
func (a *App) waitForEvent() tea.Cmd {
	if a.events == nil {
		return nil
	}
	events := a.events
	return func() tea.Msg {
		e, ok := <-events
		if !ok {
			return nil
		}
		return eventMsg(e)
	}
}

func (a *App) handleEvent(e emit.Event) {
	if !a.running || e.SessionID != a.sessionID {
		return
	}

	switch e.Msg {
	case "entry":
		a.log.Add(transcript.Entry{
			Kind:    transcript.Kind(metaString(e.Meta, "kind")),
			Round:   int(metaFloat(e.Meta, "round")),
			Agent:   metaString(e.Meta, "agent"),
			Model:   metaString(e.Meta, "model"),
			Content: metaString(e.Meta, "content"),
			Time:    a.now(),
			Elapsed: time.Duration(metaFloat(e.Meta, "elapsed_ms")) * time.Millisecond,
		})
		a.renderConversation()
	case "turn_start":
		timeout := time.Duration(metaFloat(e.Meta, "timeout_s")) * time.Second
		a.turn = &turnStatus{
			agent:     metaString(e.Meta, "agent"),
			model:     metaString(e.Meta, "model"),
			remaining: timeout,
			limited:   timeout > 0,
		}
	case "progress":
		if a.turn != nil {
			a.turn.elapsed = seconds(metaFloat(e.Meta, "elapsed_s"))
			if _, ok := e.Meta["remaining_s"]; ok {
				a.turn.remaining = seconds(metaFloat(e.Meta, "remaining_s"))
			}
		}
	case "turn_end", "turn_error":
		a.turn = nil
	case "retry":
		a.statusMsg = fmt.Sprintf("%s: retrying (attempt %d/%d) after %s",
			metaString(e.Meta, "agent"), int(metaFloat(e.Meta, "attempt"))+1, int(metaFloat(e.Meta, "max_attempts")), metaString(e.Meta, "reason"))
	case "session_end":
		a.statusMsg = sessionSummary(e.Meta)
	}
}

func (a *App) handleDone(msg dialogueDoneMsg) {
	if msg.sessionID != a.sessionID {
		return
	}
	a.running = false
	a.turn = nil
	a.confirmQuit = false
	if a.cancel != nil {
		a.cancel()
		a.cancel = nil
	}
	if len(msg.state.Transcript.Entries) > 0 {
		a.log = *msg.state.Transcript.Clone()
	}

	switch {
	case msg.err == nil:
		a.err = nil
		a.statusMsg = "Dialogue completed · " + usageLine(msg.state.Usage, msg.state.Transcript.Turns())
	case errors.Is(msg.err, dialogue.ErrStopped):
		a.err = nil
		a.statusMsg = "Dialogue stopped"
	default:
		a.setError("Dialogue failed", msg.err)
	}
	a.renderConversation()
}

func (a *App) handleModels(msg modelsMsg) {
	if msg.err != nil {
		a.setError("Ollama unavailable", msg.err)
		a.setChoices(nil)
		return
	}
	a.err = nil
	a.setChoices(msg.local)
	a.setStatus(fmt.Sprintf("%d local models, %d total", len(msg.local), len(a.choices)))
}

// setChoices rebuilds the model list, keeping the current selections when
// they are still available.
func (a *App) setChoices(local []string) {
	a.local = local
	a.choices = catalog.Available(local)
	defAnalyst, defReviewer := catalog.Defaults(a.choices)
	if a.indexOf(a.cfg.Analyst.Model) < 0 {
		a.cfg.Analyst.Model = defAnalyst
	}
	if a.indexOf(a.cfg.Reviewer.Model) < 0 {
		a.cfg.Reviewer.Model = defReviewer
	}
}

func (a *App) indexOf(name string) int {
	for i, c := range a.choices {
		if c == name {
			return i
		}
	}
	return -1
}

func (a *App) cycleFocus(delta int) {
	a.focus = (a.focus + focus(delta) + focusCount) % focusCount
	if a.focus == focusPrompt {
		a.prompt.Focus()
	} else {
		a.prompt.Blur()
	}
}

func (a *App) adjustSetting(delta int) {
	if a.running {
		a.setStatus("Settings are locked while a dialogue is running")
		return
	}
	switch a.focus {
	case focusAnalyst:
		a.cfg.Analyst.Model = a.step(a.cfg.Analyst.Model, delta)
	case focusReviewer:
		a.cfg.Reviewer.Model = a.step(a.cfg.Reviewer.Model, delta)
	case focusRounds:
		a.cfg.Rounds = dialogue.ClampRounds(a.cfg.Rounds + delta)
	case focusTimeout:
		a.cfg.SetTimeout(dialogue.ClampTimeout(a.cfg.Analyst.Timeout + time.Duration(delta)*timeoutStep))
	}
}

func (a *App) step(current string, delta int) string {
	if len(a.choices) == 0 {
		return current
	}
	i := a.indexOf(current)
	if i < 0 {
		return a.choices[0]
	}
	return a.choices[(i+delta+len(a.choices))%len(a.choices)]
}

func (a *App) setStatus(s string) {
	a.statusMsg = s
	a.err = nil
}

func (a *App) setError(prefix string, err error) {
	a.statusMsg = prefix
	a.err = err
}

// Config returns the settings currently selected in the UI.
func (a *App) Config() dialogue.Config {
	cfg := a.cfg
	cfg.Prompt = strings.TrimSpace(a.prompt.Value())
	return cfg
}

// Transcript returns the dialogue currently shown.
func (a *App) Transcript() transcript.Transcript {
	return *a.log.Clone()
}

func sessionSummary(meta map[string]interface{}) string {
	usage := dialogue.Usage{
		InputTokens:  int(metaFloat(meta, "input_tokens")),
		OutputTokens: int(metaFloat(meta, "output_tokens")),
		CostUSD:      metaFloat(meta, "cost_usd"),
	}
	return "Dialogue " + metaString(meta, "status") + " · " + usageLine(usage, int(metaFloat(meta, "turns")))
}

func usageLine(u dialogue.Usage, turns int) string {
	line := fmt.Sprintf("%d turns · %d tokens", turns, u.InputTokens+u.OutputTokens)
	if u.CostUSD > 0 {
		line += fmt.Sprintf(" · $%.4f", u.CostUSD)
	}
	return line
}

func metaString(meta map[string]interface{}, key string) string {
	if v, ok := meta[key].(string); ok {
		return v
	}
	return ""
}

// metaFloat reads a numeric meta value. Events delivered in process keep
// their Go types; decoded JSON uses float64.
func metaFloat(meta map[string]interface{}, key string) float64 {
	switch v := meta[key].(type) {
	case float64:
		return v
	case float32:
		return float64(v)
	case int:
		return float64(v)
	case int64:
		return float64(v)
	default:
		return 0
	}
}

func seconds(s float64) time.Duration {
	return time.Duration(s * float64(time.Second))
}

// Run shows the App in the alternate screen and blocks until the user quits.
func Run(ctx context.Context, app *App) error {
	p := tea.NewProgram(app, tea.WithAltScreen(), tea.WithContext(ctx))
	if _, err := p.Run(); err != nil && !errors.Is(err, tea.ErrProgramKilled) {
		return err
	}
	return nil
}
