// Package emit provides the event stream the dialogue engine reports through.
package emit

// Event represents an observable occurrence during a dialogue session.
//
// Events are emitted at session, round and turn boundaries, on retries and
// periodically while a backend request is in flight.
type Event struct {
	// SessionID identifies the dialogue session that emitted this event.
	SessionID string

	// Step is the sequential turn number (1-based, 0 for session events).
	Step int

	// NodeID identifies the agent node ("analyst" or "reviewer"), empty for
	// session-level events.
	NodeID string

	// Msg is the event name (session_start, turn_end, progress, ...).
	Msg string

	// Meta carries event specific data such as model, elapsed time, token
	// counts or the error text.
	Meta map[string]interface{}
}

// Emitter receives dialogue events.
//
// Implementations must be safe for concurrent use and must not block the
// engine for long.
type Emitter interface {
	Emit(event Event)
}
