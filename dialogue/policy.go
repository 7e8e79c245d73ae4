package dialogue

import (
	"math/rand"
	"time"

	"github.com/dshills/a2a-go/dialogue/model"
)

// RetryPolicy decides whether a failed turn is retried or ends the dialogue.
//
// Every attempt gets the agent's full timeout. Between attempts the engine
// waits min(BaseDelay * 2^attempt, MaxDelay) plus up to BaseDelay of jitter.
type RetryPolicy struct {
	// MaxAttempts is the maximum number of attempts per turn, including the
	// first one. 1 means no retries.
	MaxAttempts int `yaml:"max_attempts" json:"max_attempts"`

	// BaseDelay is the base delay for exponential backoff between retries.
	BaseDelay time.Duration `yaml:"base_delay" json:"base_delay"`

	// MaxDelay caps the backoff. Zero means no cap.
	MaxDelay time.Duration `yaml:"max_delay" json:"max_delay"`

	// Retryable reports whether an error is worth another attempt.
	// If nil, model.IsRetryable is used (rate limits, timeouts and
	// unavailable backends).
	Retryable func(error) bool `yaml:"-" json:"-"`
}

// Validate checks if the RetryPolicy configuration is valid.
func (rp RetryPolicy) Validate() error {
	if rp.MaxAttempts < 1 {
		return ErrInvalidRetryPolicy
	}
	if rp.BaseDelay < 0 || rp.MaxDelay < 0 {
		return ErrInvalidRetryPolicy
	}
	if rp.MaxDelay > 0 && rp.BaseDelay > 0 && rp.MaxDelay < rp.BaseDelay {
		return ErrInvalidRetryPolicy
	}
	return nil
}

func (rp RetryPolicy) retryable(err error) bool {
	if rp.Retryable != nil {
		return rp.Retryable(err)
	}
	return model.IsRetryable(err)
}

// computeBackoff returns the delay before retry number attempt (0-based):
//
//	delay = min(base * 2^attempt, maxDelay) + jitter(0, base)
func computeBackoff(attempt int, base, maxDelay time.Duration, rng *rand.Rand) time.Duration {
	if base <= 0 {
		return 0
	}

	exponentialDelay := base * (1 << attempt)
	if exponentialDelay <= 0 || (maxDelay > 0 && exponentialDelay > maxDelay) {
		exponentialDelay = maxDelay
	}

	var jitter time.Duration
	if rng != nil {
		jitter = time.Duration(rng.Int63n(int64(base)))
	} else {
		jitter = time.Duration(rand.Int63n(int64(base))) // #nosec G404 -- jitter for retry timing, not security
	}

	return exponentialDelay + jitter
}
