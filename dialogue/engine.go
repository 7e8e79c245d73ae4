package dialogue

import (
	"context"
	"errors"
	"fmt"
	"math/rand"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"github.com/dshills/a2a-go/dialogue/catalog"
	"github.com/dshills/a2a-go/dialogue/emit"
	"github.com/dshills/a2a-go/dialogue/model"
	"github.com/dshills/a2a-go/dialogue/store"
	"github.com/dshills/a2a-go/dialogue/transcript"
)

// ModelResolver turns a model name into a ChatModel.
// *catalog.Resolver implements it.
type ModelResolver interface {
	Resolve(name string) (model.ChatModel, catalog.Entry, error)
}

// turn binds a node to the agent settings the engine enforces around it.
type turn struct {
	node     Node
	cfg      AgentConfig
	provider string
	modelID  string
}

// Engine runs dialogue sessions.
//
// The Engine:
//   - Resolves both agents' models
//   - Alternates analyst and reviewer turns for the configured rounds
//   - Applies the per-agent timeout and the retry policy to every turn
//   - Merges turn results into State and saves it after every turn
//   - Emits events for sessions, rounds, turns, retries and progress
//
// One Engine runs one session at a time; Run and Resume return
// ErrAlreadyRunning while a session is active.
type Engine struct {
	mu      sync.Mutex
	running bool
	stopReq atomic.Bool

	resolver ModelResolver
	store    store.Store[State]
	emitter  emit.Emitter
	metrics  *Metrics
	maxSteps int
	progress time.Duration
	rng      *rand.Rand
	onFinish func(State, error)
}

// New creates an Engine. A nil store keeps sessions in memory and a nil
// emitter discards events.
func New(resolver ModelResolver, st store.Store[State], emitter emit.Emitter, opts ...Option) *Engine {
	if st == nil {
		st = store.NewMemStore[State]()
	}
	if emitter == nil {
		emitter = emit.NewNullEmitter()
	}
	e := &Engine{
		resolver: resolver,
		store:    st,
		emitter:  emitter,
		progress: DefaultProgressInterval,
	}
	for _, opt := range opts {
		opt(e)
	}
	return e
}

// Store returns the session store.
func (e *Engine) Store() store.Store[State] {
	return e.store
}

// Running reports whether a session is in progress.
func (e *Engine) Running() bool {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.running
}

// Stop asks the running session to end before its next turn. The turn in
// flight is allowed to finish. Stop is a no-op when nothing is running.
func (e *Engine) Stop() {
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.running {
		e.stopReq.Store(true)
	}
}

// Run starts a new session and blocks until it ends.
//
// The returned State always carries the transcript recorded so far, also
// when the error is ErrStopped, ErrTurnFailed or a context error.
//
// Example:
//
//	final, err := engine.Run(ctx, uuid.NewString(), cfg)
//	switch {
//	case errors.Is(err, dialogue.ErrStopped):
//	    fmt.Println("stopped by user")
//	case err != nil:
//	    fmt.Println("failed:", err)
//	}
//	fmt.Println(transcript.Markdown(&final.Transcript, time.Now()))
func (e *Engine) Run(ctx context.Context, sessionID string, cfg Config) (State, error) {
	if sessionID == "" {
		return State{}, &EngineError{Message: "session ID cannot be empty", Code: "MISSING_SESSION_ID"}
	}
	if e.resolver == nil {
		return State{}, &EngineError{Message: "model resolver is required", Code: "MISSING_RESOLVER"}
	}
	if err := e.begin(); err != nil {
		return State{}, err
	}
	defer e.end()

	cfg.ApplyDefaults()
	if err := cfg.Validate(); err != nil {
		return State{}, err
	}
	turns, err := e.buildTurns(cfg)
	if err != nil {
		return State{}, err
	}

	state := State{
		Config: cfg,
		Next:   NodeAnalyst,
		Status: StatusRunning,
		Transcript: transcript.Transcript{
			SessionID: sessionID,
			Title:     cfg.Title,
			Prompt:    cfg.Prompt,
			Analyst:   cfg.Analyst.Model,
			Reviewer:  cfg.Reviewer.Model,
			Rounds:    cfg.Rounds,
			Started:   time.Now(),
		},
	}

	e.emit(sessionID, 0, "", "session_start", map[string]interface{}{
		"analyst":  cfg.Analyst.Model,
		"reviewer": cfg.Reviewer.Model,
		"rounds":   cfg.Rounds,
	})
	e.addSystem(sessionID, 0, &state, "=== A2A dialogue start ===\nInitial prompt: "+cfg.Prompt)
	e.addSystem(sessionID, 0, &state, fmt.Sprintf("Agent1: %s | Agent2: %s", cfg.Analyst.Model, cfg.Reviewer.Model))
	e.addSystem(sessionID, 0, &state, timeoutLine(cfg))

	if err := e.save(ctx, sessionID, 0, "", state); err != nil {
		return state, err
	}

	return e.execute(ctx, sessionID, state, 0, turns)
}

// Resume continues a stored session.
//
// A stopped or failed session picks up at the turn that did not complete.
// A completed session needs extraRounds > 0 and continues with new rounds
// that build on the last two answers. extraRounds is added to the
// configured round count in both cases.
func (e *Engine) Resume(ctx context.Context, sessionID string, extraRounds int) (State, error) {
	if extraRounds < 0 || extraRounds > MaxRounds {
		return State{}, fmt.Errorf("%w: extra rounds must be between 0 and %d", ErrInvalidConfig, MaxRounds)
	}
	if e.resolver == nil {
		return State{}, &EngineError{Message: "model resolver is required", Code: "MISSING_RESOLVER"}
	}
	if err := e.begin(); err != nil {
		return State{}, err
	}
	defer e.end()

	state, step, err := e.store.LoadLatest(ctx, sessionID)
	if err != nil {
		return State{}, &EngineError{Message: "cannot resume session " + sessionID, Code: "SESSION_NOT_FOUND", Cause: err}
	}

	if total := state.Config.Rounds + extraRounds; total > MaxRounds {
		return state, fmt.Errorf("%w: rounds must be between %d and %d, got %d", ErrInvalidConfig, MinRounds, MaxRounds, total)
	}

	if state.Status == StatusCompleted {
		if extraRounds == 0 {
			return state, &EngineError{Message: "session already completed; request extra rounds to continue", Code: "NOTHING_TO_RESUME"}
		}
		state.Next = NodeAnalyst
	}
	if state.Next == "" {
		state.Next = NodeAnalyst
	}

	state.Config.Rounds += extraRounds
	state.Transcript.Rounds = state.Config.Rounds
	state.Status = StatusRunning
	state.Error = ""

	turns, err := e.buildTurns(state.Config)
	if err != nil {
		return state, err
	}

	e.emit(sessionID, step, "", "session_start", map[string]interface{}{
		"analyst":   state.Config.Analyst.Model,
		"reviewer":  state.Config.Reviewer.Model,
		"rounds":    state.Config.Rounds,
		"resumed":   true,
		"from_step": step,
	})
	e.addSystem(sessionID, step, &state, fmt.Sprintf("=== A2A dialogue resumed (%d rounds) ===", state.Config.Rounds))

	return e.execute(ctx, sessionID, state, step, turns)
}

func (e *Engine) begin() error {
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.running {
		return ErrAlreadyRunning
	}
	e.running = true
	e.stopReq.Store(false)
	return nil
}

func (e *Engine) end() {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.running = false
	e.stopReq.Store(false)
}

func (e *Engine) buildTurns(cfg Config) (map[string]turn, error) {
	prompts, err := NewPrompts(cfg.Templates)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrInvalidConfig, err)
	}

	agents := []struct {
		id  string
		cfg AgentConfig
	}{
		{NodeAnalyst, cfg.Analyst},
		{NodeReviewer, cfg.Reviewer},
	}

	turns := make(map[string]turn, len(agents))
	for _, a := range agents {
		chat, entry, err := e.resolver.Resolve(a.cfg.Model)
		if err != nil {
			return nil, fmt.Errorf("%s: %w", a.cfg.Label(), err)
		}
		turns[a.id] = turn{
			node:     newAgentNode(a.id, a.cfg, chat, prompts),
			cfg:      a.cfg,
			provider: string(entry.Provider),
			modelID:  entry.ModelID,
		}
	}
	return turns, nil
}

// execute runs turns until the session completes, stops or fails.
// step is the number of turns already completed.
func (e *Engine) execute(ctx context.Context, sessionID string, state State, step int, turns map[string]turn) (final State, err error) {
	e.metrics.SessionStarted()
	defer e.metrics.SessionFinished()

	defer func() {
		e.emit(sessionID, step, "", "session_end", map[string]interface{}{
			"status":        string(final.Status),
			"turns":         final.Transcript.Turns(),
			"input_tokens":  final.Usage.InputTokens,
			"output_tokens": final.Usage.OutputTokens,
			"cost_usd":      final.Usage.CostUSD,
		})
		if e.onFinish != nil {
			e.onFinish(final, err)
		}
	}()

	maxSteps := e.maxSteps
	if maxSteps <= 0 {
		maxSteps = 2 * state.Config.Rounds
	}
	tracker := NewCostTracker(sessionID)

	for state.Next != "" {
		if e.stopReq.Load() {
			return e.stopped(ctx, sessionID, step, state)
		}
		if err := ctx.Err(); err != nil {
			return e.fail(ctx, sessionID, step, state, state.Round, "dialogue canceled", err)
		}

		nodeID := state.Next
		t, ok := turns[nodeID]
		if !ok {
			return e.fail(ctx, sessionID, step, state, state.Round, "unknown node "+nodeID,
				&EngineError{Message: "node not found: " + nodeID, Code: "NODE_NOT_FOUND"})
		}
		if step+1 > maxSteps {
			return e.fail(ctx, sessionID, step, state, state.Round, fmt.Sprintf("dialogue exceeded %d turns", maxSteps),
				&EngineError{Message: fmt.Sprintf("exceeded %d steps", maxSteps), Code: "MAX_STEPS_EXCEEDED", Cause: ErrMaxStepsExceeded})
		}
		step++

		if nodeID == NodeAnalyst {
			state.Round++
			e.emit(sessionID, step, nodeID, "round_start", map[string]interface{}{
				"round":  state.Round,
				"rounds": state.Config.Rounds,
			})
			if !hasRoundMarker(&state.Transcript, state.Round) {
				e.addSystem(sessionID, step, &state, fmt.Sprintf(roundMarkerPrefix+"%d/%d ---", state.Round, state.Config.Rounds))
			}
		}

		e.emit(sessionID, step, nodeID, "turn_start", map[string]interface{}{
			"agent":     t.cfg.Name,
			"model":     t.cfg.Model,
			"provider":  t.provider,
			"round":     state.Round,
			"timeout_s": int(t.cfg.Timeout / time.Second),
		})

		start := time.Now()
		result, attempts := e.runTurn(ctx, sessionID, step, nodeID, t, state)
		elapsed := time.Since(start)

		if result.Err != nil {
			return e.failTurn(ctx, sessionID, step, nodeID, t, state, result.Err, elapsed, attempts)
		}

		for i := range result.Delta.Transcript.Entries {
			result.Delta.Transcript.Entries[i].Elapsed = elapsed
		}
		in, out := result.Delta.Usage.InputTokens, result.Delta.Usage.OutputTokens
		result.Delta.Usage.CostUSD = tracker.RecordLLMCall(t.modelID, in, out, nodeID)

		added := len(result.Delta.Transcript.Entries)
		state = reduce(state, result.Delta)
		for _, entry := range state.Transcript.Entries[len(state.Transcript.Entries)-added:] {
			e.emitEntry(sessionID, step, entry)
		}

		e.metrics.RecordTurn(nodeID, t.provider, elapsed, "success")
		e.metrics.AddTokens(nodeID, in, out)
		e.emit(sessionID, step, nodeID, "turn_end", map[string]interface{}{
			"agent":         t.cfg.Name,
			"model":         t.modelID,
			"provider":      t.provider,
			"elapsed_ms":    elapsed.Milliseconds(),
			"attempts":      attempts,
			"input_tokens":  in,
			"output_tokens": out,
			"cost_usd":      result.Delta.Usage.CostUSD,
		})

		if result.Route.Terminal {
			state.Next = ""
			state.Status = StatusCompleted
			e.addSystem(sessionID, step, &state, "=== A2A dialogue end ===")
		} else {
			state.Next = result.Route.To
		}

		if err := e.save(ctx, sessionID, step, nodeID, state); err != nil {
			return state, err
		}
	}

	return state, nil
}

// runTurn executes one turn, retrying per the session's policy. It returns
// the final result and the number of attempts made.
func (e *Engine) runTurn(ctx context.Context, sessionID string, step int, nodeID string, t turn, state State) (NodeResult, int) {
	policy := state.Config.Retry
	if policy.MaxAttempts < 1 {
		policy.MaxAttempts = 1
	}

	for attempt := 0; ; attempt++ {
		result := e.attempt(ctx, sessionID, step, nodeID, t, state)
		if result.Err == nil || ctx.Err() != nil {
			return result, attempt + 1
		}
		if attempt+1 >= policy.MaxAttempts || !policy.retryable(result.Err) {
			return result, attempt + 1
		}

		delay := computeBackoff(attempt, policy.BaseDelay, policy.MaxDelay, e.rng)
		reason := model.CodeOf(result.Err)
		if reason == "" {
			reason = "error"
		}
		e.metrics.IncrementRetries(nodeID, reason)
		e.emit(sessionID, step, nodeID, "retry", map[string]interface{}{
			"agent":        t.cfg.Name,
			"attempt":      attempt + 1,
			"max_attempts": policy.MaxAttempts,
			"delay_ms":     delay.Milliseconds(),
			"reason":       reason,
			"cause":        result.Err.Error(),
		})

		timer := time.NewTimer(delay)
		select {
		case <-timer.C:
		case <-ctx.Done():
			timer.Stop()
			return NodeResult{Err: &NodeError{Message: "canceled while waiting to retry", NodeID: nodeID, Cause: ctx.Err()}}, attempt + 1
		}
	}
}

// attempt runs the node once under the agent's timeout while reporting
// progress.
func (e *Engine) attempt(ctx context.Context, sessionID string, step int, nodeID string, t turn, state State) NodeResult {
	attemptCtx, cancel := ctx, context.CancelFunc(func() {})
	if t.cfg.Timeout > 0 {
		attemptCtx, cancel = context.WithTimeout(ctx, t.cfg.Timeout)
	}
	defer cancel()

	stopProgress := e.startProgress(sessionID, step, nodeID, t, time.Now())
	result := t.node.Run(attemptCtx, state)
	stopProgress()

	if result.Err != nil && ctx.Err() == nil && errors.Is(attemptCtx.Err(), context.DeadlineExceeded) {
		msg := fmt.Sprintf("timeout (%v) exceeded", t.cfg.Timeout)
		result.Err = &NodeError{
			Message: msg,
			Code:    model.CodeTimeout,
			NodeID:  nodeID,
			Cause: &model.Error{
				Provider:  t.provider,
				Code:      model.CodeTimeout,
				Message:   msg,
				Retryable: true,
				Cause:     result.Err,
			},
		}
	}
	return result
}

// startProgress emits a progress event every interval until the returned
// function is called.
func (e *Engine) startProgress(sessionID string, step int, nodeID string, t turn, start time.Time) func() {
	if e.progress <= 0 {
		return func() {}
	}

	done := make(chan struct{})
	var wg sync.WaitGroup
	wg.Add(1)
	go func() {
		defer wg.Done()
		ticker := time.NewTicker(e.progress)
		defer ticker.Stop()
		for {
			select {
			case <-done:
				return
			case now := <-ticker.C:
				elapsed := now.Sub(start)
				meta := map[string]interface{}{
					"agent":     t.cfg.Name,
					"model":     t.cfg.Model,
					"elapsed_s": elapsed.Seconds(),
				}
				if t.cfg.Timeout > 0 {
					remaining := t.cfg.Timeout - elapsed
					if remaining < 0 {
						remaining = 0
					}
					meta["remaining_s"] = remaining.Seconds()
				}
				e.emit(sessionID, step, nodeID, "progress", meta)
			}
		}
	}()

	return func() {
		close(done)
		wg.Wait()
	}
}

// failTurn records a failed turn and ends the session. The stored step stays
// at the last completed turn so Resume retries the failed one.
func (e *Engine) failTurn(ctx context.Context, sessionID string, step int, nodeID string, t turn, state State, cause error, elapsed time.Duration, attempts int) (State, error) {
	reason := cause.Error()
	var ne *NodeError
	if errors.As(cause, &ne) {
		reason = ne.Message
	}
	msg := fmt.Sprintf("%s failed after %.1fs, ending dialogue: %s", t.cfg.Name, elapsed.Seconds(), reason)

	e.metrics.RecordTurn(nodeID, t.provider, elapsed, "error")
	e.emit(sessionID, step, nodeID, "turn_error", map[string]interface{}{
		"agent":      t.cfg.Name,
		"model":      t.modelID,
		"provider":   t.provider,
		"elapsed_ms": elapsed.Milliseconds(),
		"attempts":   attempts,
		"code":       model.CodeOf(cause),
		"error":      reason,
	})

	// The round restarts with the analyst on resume; its marker stays.
	round := state.Round
	if nodeID == NodeAnalyst {
		state.Round--
	}
	state, _ = e.fail(ctx, sessionID, step-1, state, round, msg, cause)
	return state, fmt.Errorf("%w: %s: %w", ErrTurnFailed, t.cfg.Name, cause)
}

// fail appends an error entry, marks the session failed and saves it at
// step.
func (e *Engine) fail(ctx context.Context, sessionID string, step int, state State, round int, msg string, cause error) (State, error) {
	state.Status = StatusFailed
	state.Error = msg
	e.add(sessionID, step, &state, transcript.Entry{Kind: transcript.KindError, Round: round, Content: msg})

	if err := e.save(ctx, sessionID, step, "", state); err != nil {
		return state, errors.Join(cause, err)
	}
	return state, cause
}

func (e *Engine) stopped(ctx context.Context, sessionID string, step int, state State) (State, error) {
	state.Status = StatusStopped
	e.addSystem(sessionID, step, &state, "⏹ Dialogue stopped.")
	e.emit(sessionID, step, "", "stopped", map[string]interface{}{
		"round": state.Round,
		"next":  state.Next,
	})

	if err := e.save(ctx, sessionID, step, "", state); err != nil {
		return state, errors.Join(ErrStopped, err)
	}
	return state, ErrStopped
}

// save persists state. Saving ignores cancellation of ctx so the outcome of
// a canceled session is still recorded.
func (e *Engine) save(ctx context.Context, sessionID string, step int, nodeID string, state State) error {
	state.Transcript = *state.Transcript.Clone()
	if err := e.store.SaveStep(context.WithoutCancel(ctx), sessionID, step, nodeID, state); err != nil {
		return &EngineError{Message: "failed to save step: " + err.Error(), Code: "STORE_ERROR", Cause: err}
	}
	return nil
}

func (e *Engine) addSystem(sessionID string, step int, state *State, content string) {
	e.add(sessionID, step, state, transcript.Entry{Kind: transcript.KindSystem, Round: state.Round, Content: content})
}

func (e *Engine) add(sessionID string, step int, state *State, entry transcript.Entry) {
	state.Transcript.Add(entry)
	e.emitEntry(sessionID, step, state.Transcript.Entries[len(state.Transcript.Entries)-1])
}

// emitEntry publishes a transcript entry so front ends can render the
// dialogue live.
func (e *Engine) emitEntry(sessionID string, step int, entry transcript.Entry) {
	meta := map[string]interface{}{
		"kind":    string(entry.Kind),
		"content": entry.Content,
		"round":   entry.Round,
	}
	if entry.Agent != "" {
		meta["agent"] = entry.Agent
	}
	if entry.Model != "" {
		meta["model"] = entry.Model
	}
	if entry.Elapsed > 0 {
		meta["elapsed_ms"] = entry.Elapsed.Milliseconds()
	}
	e.emit(sessionID, step, "", "entry", meta)
}

func (e *Engine) emit(sessionID string, step int, nodeID, msg string, meta map[string]interface{}) {
	e.emitter.Emit(emit.Event{
		SessionID: sessionID,
		Step:      step,
		NodeID:    nodeID,
		Msg:       msg,
		Meta:      meta,
	})
}

const roundMarkerPrefix = "--- Round "

// hasRoundMarker reports whether the round's marker is already recorded, as
// it is when a failed round is resumed.
func hasRoundMarker(t *transcript.Transcript, round int) bool {
	for _, entry := range t.Entries {
		if entry.Kind == transcript.KindSystem && entry.Round == round && strings.HasPrefix(entry.Content, roundMarkerPrefix) {
			return true
		}
	}
	return false
}

func timeoutLine(cfg Config) string {
	a, r := cfg.Analyst.Timeout, cfg.Reviewer.Timeout
	if a == r {
		return fmt.Sprintf("Timeout: %ds", int(a/time.Second))
	}
	return fmt.Sprintf("Timeout: %s %ds | %s %ds", cfg.Analyst.Name, int(a/time.Second), cfg.Reviewer.Name, int(r/time.Second))
}
