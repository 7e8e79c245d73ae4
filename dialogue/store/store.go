// Package store persists dialogue sessions step by step so they can be
// listed, exported and resumed later.
package store

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"
)

// ErrNotFound is returned when a requested session ID does not exist.
var ErrNotFound = errors.New("not found")

// ErrClosed is returned by every operation after Close.
var ErrClosed = errors.New("store is closed")

// Store provides persistence for dialogue state.
//
// Each completed turn is saved as a step; the latest step of a session is
// the state to resume from. Implementations:
//   - MemStore for tests and throwaway runs
//   - SQLiteStore for a local single-file database
//   - MySQLStore for a shared server
//
// Type parameter S is the state type to persist (must be JSON-serializable).
type Store[S any] interface {
	// SaveStep persists the state after a turn. A step that already exists
	// for the session is replaced.
	SaveStep(ctx context.Context, sessionID string, step int, nodeID string, state S) error

	// LoadLatest retrieves the highest-numbered step of a session.
	// Returns ErrNotFound if the session doesn't exist.
	LoadLatest(ctx context.Context, sessionID string) (state S, step int, err error)

	// ListSessions returns sessions ordered by most recent activity.
	// A limit <= 0 returns all sessions.
	ListSessions(ctx context.Context, limit int) ([]SessionInfo, error)

	// DeleteSession removes every step of a session.
	// Returns ErrNotFound if the session doesn't exist.
	DeleteSession(ctx context.Context, sessionID string) error

	// Close releases resources. Calling Close more than once is safe.
	Close() error
}

// SessionInfo summarizes one stored session.
type SessionInfo struct {
	// ID is the session identifier.
	ID string `json:"id"`

	// Step is the latest saved step number.
	Step int `json:"step"`

	// NodeID is the node that produced the latest step.
	NodeID string `json:"node_id"`

	// UpdatedAt is when the latest step was saved.
	UpdatedAt time.Time `json:"updated_at"`
}

// StepRecord represents a single saved step.
type StepRecord[S any] struct {
	Step      int
	NodeID    string
	State     S
	UpdatedAt time.Time
}

// Driver names accepted by Open.
const (
	DriverMemory = "memory"
	DriverSQLite = "sqlite"
	DriverMySQL  = "mysql"
)

// Open creates the store selected by driver. For sqlite the dsn is a file
// path (":memory:" for a private in-memory database); for mysql it is a
// go-sql-driver DSN. An empty driver selects the in-memory store.
func Open[S any](driver, dsn string) (Store[S], error) {
	switch strings.ToLower(driver) {
	case "", DriverMemory:
		return NewMemStore[S](), nil
	case DriverSQLite:
		if dsn == "" {
			return nil, errors.New("sqlite store needs a database path")
		}
		s, err := NewSQLiteStore[S](dsn)
		if err != nil {
			return nil, err
		}
		return s, nil
	case DriverMySQL:
		if dsn == "" {
			return nil, errors.New("mysql store needs a DSN")
		}
		s, err := NewMySQLStore[S](dsn)
		if err != nil {
			return nil, err
		}
		return s, nil
	default:
		return nil, fmt.Errorf("unknown store driver %q (want memory, sqlite or mysql)", driver)
	}
}
