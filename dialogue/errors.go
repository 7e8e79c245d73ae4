package dialogue

import "errors"

// ErrAlreadyRunning is returned by Run and Resume while another dialogue is
// in progress on the same Engine.
var ErrAlreadyRunning = errors.New("dialogue already running")

// ErrStopped indicates the dialogue was ended by Stop before all rounds
// completed.
var ErrStopped = errors.New("dialogue stopped")

// ErrTurnFailed indicates an agent turn failed after the retry policy was
// exhausted. The returned error also wraps the backend error.
var ErrTurnFailed = errors.New("turn failed")

// ErrInvalidConfig indicates a Config that cannot start a dialogue.
var ErrInvalidConfig = errors.New("invalid dialogue config")

// ErrInvalidRetryPolicy indicates a RetryPolicy with impossible settings.
var ErrInvalidRetryPolicy = errors.New("invalid retry policy")

// ErrMaxStepsExceeded indicates the loop ran more turns than the configured
// rounds allow.
var ErrMaxStepsExceeded = errors.New("dialogue exceeded maximum steps limit")

// EngineError represents an error from Engine operations.
type EngineError struct {
	Message string
	Code    string
	Cause   error
}

func (e *EngineError) Error() string {
	if e.Code != "" {
		return e.Code + ": " + e.Message
	}
	return e.Message
}

// Unwrap returns the underlying cause.
func (e *EngineError) Unwrap() error {
	return e.Cause
}
