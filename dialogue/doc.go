// Package dialogue runs a turn-based conversation between two language-model
// agents, an Analyst and a Reviewer.
//
// The Engine executes a two-node loop:
//
//	analyst -> reviewer -> analyst -> reviewer ... (N rounds)
//
// Round 1 sends the initial prompt to the Analyst. The Reviewer receives the
// Analyst's answer together with the initial prompt, and every later round
// hands both previous answers back to the Analyst. Prompts are built from
// text/template strings and can be replaced through Config.Templates.
//
// Each turn runs under the agent's timeout and the configured RetryPolicy.
// A turn that still fails ends the dialogue with ErrTurnFailed; Stop ends it
// gracefully before the next turn with ErrStopped. In both cases the state
// returned by Run carries the transcript recorded so far.
//
// After every turn the state is saved to a store.Store so a session can be
// listed, exported or continued later with Resume.
//
// Example:
//
//	resolver := catalog.NewResolver(keyStore, nil, "")
//	engine := dialogue.New(resolver, store.NewMemStore[dialogue.State](), emit.NewLogEmitter(os.Stderr, false))
//
//	cfg := dialogue.DefaultConfig()
//	cfg.Prompt = "Discuss the future of AI."
//	cfg.Analyst.Model = "llama3"
//	cfg.Reviewer.Model = "Claude Sonnet 4 (API)"
//
//	final, err := engine.Run(ctx, "session-001", cfg)
//	if err != nil {
//	    log.Printf("dialogue ended early: %v", err)
//	}
//	_ = transcript.Save("a2a.md", &final.Transcript, time.Now())
package dialogue
