package dialogue

import (
	"math/rand"
	"time"
)

// DefaultProgressInterval is how often progress events are emitted while a
// backend request is in flight.
const DefaultProgressInterval = time.Second

// Option is a functional option for configuring an Engine.
//
// Example:
//
//	engine := dialogue.New(resolver, st, emitter,
//	    dialogue.WithMetrics(metrics),
//	    dialogue.WithFinishHook(func(s dialogue.State, err error) { bell.Play(s.Transcript.SessionID) }),
//	)
type Option func(*Engine)

// WithMaxSteps caps the number of turns per session. The default is two
// turns per configured round.
func WithMaxSteps(n int) Option {
	return func(e *Engine) {
		e.maxSteps = n
	}
}

// WithMetrics records Prometheus metrics for every turn.
func WithMetrics(m *Metrics) Option {
	return func(e *Engine) {
		e.metrics = m
	}
}

// WithProgressInterval sets how often progress events are emitted during a
// turn. Zero or negative disables them.
func WithProgressInterval(d time.Duration) Option {
	return func(e *Engine) {
		e.progress = d
	}
}

// WithRand sets the random source used for retry jitter.
func WithRand(rng *rand.Rand) Option {
	return func(e *Engine) {
		e.rng = rng
	}
}

// WithFinishHook registers a function called once when a started session
// ends, whatever the outcome. It runs on the engine goroutine.
func WithFinishHook(fn func(State, error)) Option {
	return func(e *Engine) {
		e.onFinish = fn
	}
}
