package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"sync"
	"time"

	_ "modernc.org/sqlite"
)

// SQLiteStore is a SQLite implementation of Store[S].
//
// It keeps every session in a single-file database, uses WAL mode for
// concurrent reads and creates its schema on first use.
//
// Schema:
//   - dialogue_steps: one row per (session_id, step) with the JSON state
type SQLiteStore[S any] struct {
	db     *sql.DB
	mu     sync.RWMutex
	closed bool
	path   string
	now    func() time.Time
}

// NewSQLiteStore creates a new SQLite-backed store at path.
//
// Example:
//
//	st, err := store.NewSQLiteStore[dialogue.State]("./a2a.db")
//	if err != nil {
//	    return err
//	}
//	defer st.Close()
func NewSQLiteStore[S any](path string) (*SQLiteStore[S], error) {
	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("failed to open SQLite connection: %w", err)
	}

	// SQLite supports one writer at a time.
	db.SetMaxOpenConns(1)
	db.SetMaxIdleConns(1)
	db.SetConnMaxLifetime(0)

	ctx := context.Background()
	for _, pragma := range []string{"PRAGMA journal_mode=WAL", "PRAGMA busy_timeout=5000"} {
		if _, err := db.ExecContext(ctx, pragma); err != nil {
			_ = db.Close()
			return nil, fmt.Errorf("failed to apply %q: %w", pragma, err)
		}
	}

	s := &SQLiteStore[S]{db: db, path: path, now: time.Now}
	if err := s.createTables(ctx); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("failed to create tables: %w", err)
	}
	return s, nil
}

func (s *SQLiteStore[S]) createTables(ctx context.Context) error {
	stepsTable := `
		CREATE TABLE IF NOT EXISTS dialogue_steps (
			id INTEGER PRIMARY KEY AUTOINCREMENT,
			session_id TEXT NOT NULL,
			step INTEGER NOT NULL,
			node_id TEXT NOT NULL,
			state TEXT NOT NULL,
			updated_at INTEGER NOT NULL,
			UNIQUE(session_id, step)
		)
	`
	if _, err := s.db.ExecContext(ctx, stepsTable); err != nil {
		return fmt.Errorf("failed to create dialogue_steps table: %w", err)
	}
	if _, err := s.db.ExecContext(ctx, "CREATE INDEX IF NOT EXISTS idx_steps_session ON dialogue_steps(session_id, step)"); err != nil {
		return fmt.Errorf("failed to create idx_steps_session: %w", err)
	}
	return nil
}

func (s *SQLiteStore[S]) checkOpen() error {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.closed {
		return ErrClosed
	}
	return nil
}

// SaveStep persists a dialogue step, replacing an existing one with the
// same number.
func (s *SQLiteStore[S]) SaveStep(ctx context.Context, sessionID string, step int, nodeID string, state S) error {
	if err := s.checkOpen(); err != nil {
		return err
	}

	stateJSON, err := json.Marshal(state)
	if err != nil {
		return fmt.Errorf("failed to marshal state: %w", err)
	}

	query := `
		INSERT INTO dialogue_steps (session_id, step, node_id, state, updated_at)
		VALUES (?, ?, ?, ?, ?)
		ON CONFLICT(session_id, step) DO UPDATE SET
			node_id = excluded.node_id,
			state = excluded.state,
			updated_at = excluded.updated_at
	`
	if _, err := s.db.ExecContext(ctx, query, sessionID, step, nodeID, string(stateJSON), s.now().UnixNano()); err != nil {
		return fmt.Errorf("failed to save step: %w", err)
	}
	return nil
}

// LoadLatest retrieves the highest-numbered step of a session.
func (s *SQLiteStore[S]) LoadLatest(ctx context.Context, sessionID string) (state S, step int, err error) {
	if err := s.checkOpen(); err != nil {
		return state, 0, err
	}
	return loadLatest[S](ctx, s.db, sessionID)
}

// ListSessions returns sessions ordered by most recent activity.
func (s *SQLiteStore[S]) ListSessions(ctx context.Context, limit int) ([]SessionInfo, error) {
	if err := s.checkOpen(); err != nil {
		return nil, err
	}
	return listSessions(ctx, s.db, limit)
}

// DeleteSession removes every step of a session.
func (s *SQLiteStore[S]) DeleteSession(ctx context.Context, sessionID string) error {
	if err := s.checkOpen(); err != nil {
		return err
	}
	return deleteSession(ctx, s.db, sessionID)
}

// Close closes the database connection. Subsequent calls are no-ops.
func (s *SQLiteStore[S]) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.closed {
		return nil
	}
	s.closed = true
	return s.db.Close()
}

// Path returns the database file path.
func (s *SQLiteStore[S]) Path() string {
	return s.path
}

// The queries below are portable between SQLite and MySQL.

func loadLatest[S any](ctx context.Context, db *sql.DB, sessionID string) (state S, step int, err error) {
	query := `
		SELECT step, state
		FROM dialogue_steps
		WHERE session_id = ?
		ORDER BY step DESC
		LIMIT 1
	`

	var stateJSON []byte
	err = db.QueryRowContext(ctx, query, sessionID).Scan(&step, &stateJSON)
	if errors.Is(err, sql.ErrNoRows) {
		return state, 0, ErrNotFound
	}
	if err != nil {
		return state, 0, fmt.Errorf("failed to load latest step: %w", err)
	}

	if err := json.Unmarshal(stateJSON, &state); err != nil {
		var zero S
		return zero, 0, fmt.Errorf("failed to unmarshal state: %w", err)
	}
	return state, step, nil
}

func listSessions(ctx context.Context, db *sql.DB, limit int) ([]SessionInfo, error) {
	query := `
		SELECT s.session_id, s.step, s.node_id, l.updated_at
		FROM dialogue_steps s
		JOIN (
			SELECT session_id, MAX(step) AS step, MAX(updated_at) AS updated_at
			FROM dialogue_steps
			GROUP BY session_id
		) l ON s.session_id = l.session_id AND s.step = l.step
		ORDER BY l.updated_at DESC, s.session_id ASC
	`
	args := []any{}
	if limit > 0 {
		query += " LIMIT ?"
		args = append(args, limit)
	}

	rows, err := db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to list sessions: %w", err)
	}
	defer func() { _ = rows.Close() }()

	var infos []SessionInfo
	for rows.Next() {
		var info SessionInfo
		var updated int64
		if err := rows.Scan(&info.ID, &info.Step, &info.NodeID, &updated); err != nil {
			return nil, fmt.Errorf("failed to scan session: %w", err)
		}
		info.UpdatedAt = time.Unix(0, updated)
		infos = append(infos, info)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to list sessions: %w", err)
	}
	return infos, nil
}

func deleteSession(ctx context.Context, db *sql.DB, sessionID string) error {
	res, err := db.ExecContext(ctx, "DELETE FROM dialogue_steps WHERE session_id = ?", sessionID)
	if err != nil {
		return fmt.Errorf("failed to delete session: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to delete session: %w", err)
	}
	if n == 0 {
		return ErrNotFound
	}
	return nil
}
