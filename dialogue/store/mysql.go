package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"sync"
	"time"

	_ "github.com/go-sql-driver/mysql"
)

// MySQLStore is a MySQL/MariaDB implementation of Store[S].
//
// It lets several machines share one session history. State is stored in a
// JSON column.
type MySQLStore[S any] struct {
	db     *sql.DB
	mu     sync.RWMutex
	closed bool
	now    func() time.Time
}

// NewMySQLStore creates a new MySQL-backed store.
//
// The DSN format is:
//
//	[username[:password]@][protocol[(address)]]/dbname[?param1=value1&...]
//
// NEVER hardcode credentials; read the DSN from configuration or the
// environment.
func NewMySQLStore[S any](dsn string) (*MySQLStore[S], error) {
	db, err := sql.Open("mysql", dsn)
	if err != nil {
		return nil, fmt.Errorf("failed to open MySQL connection: %w", err)
	}

	db.SetMaxOpenConns(10)
	db.SetMaxIdleConns(2)
	db.SetConnMaxLifetime(5 * time.Minute)
	db.SetConnMaxIdleTime(10 * time.Minute)

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	if err := db.PingContext(ctx); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("failed to ping MySQL: %w", err)
	}

	m := &MySQLStore[S]{db: db, now: time.Now}
	if err := m.createTables(ctx); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("failed to create tables: %w", err)
	}
	return m, nil
}

func (m *MySQLStore[S]) createTables(ctx context.Context) error {
	stepsTable := `
		CREATE TABLE IF NOT EXISTS dialogue_steps (
			id BIGINT AUTO_INCREMENT PRIMARY KEY,
			session_id VARCHAR(64) NOT NULL,
			step INT NOT NULL,
			node_id VARCHAR(64) NOT NULL,
			state JSON NOT NULL,
			updated_at BIGINT NOT NULL,
			INDEX idx_session_step (session_id, step),
			UNIQUE KEY unique_session_step (session_id, step)
		) ENGINE=InnoDB DEFAULT CHARSET=utf8mb4 COLLATE=utf8mb4_unicode_ci
	`
	if _, err := m.db.ExecContext(ctx, stepsTable); err != nil {
		return fmt.Errorf("failed to create dialogue_steps table: %w", err)
	}
	return nil
}

func (m *MySQLStore[S]) checkOpen() error {
	m.mu.RLock()
	defer m.mu.RUnlock()
	if m.closed {
		return ErrClosed
	}
	return nil
}

// SaveStep persists a dialogue step, replacing an existing one with the
// same number.
func (m *MySQLStore[S]) SaveStep(ctx context.Context, sessionID string, step int, nodeID string, state S) error {
	if err := m.checkOpen(); err != nil {
		return err
	}

	stateJSON, err := json.Marshal(state)
	if err != nil {
		return fmt.Errorf("failed to marshal state: %w", err)
	}

	query := `
		INSERT INTO dialogue_steps (session_id, step, node_id, state, updated_at)
		VALUES (?, ?, ?, ?, ?)
		ON DUPLICATE KEY UPDATE
			node_id = VALUES(node_id),
			state = VALUES(state),
			updated_at = VALUES(updated_at)
	`
	if _, err := m.db.ExecContext(ctx, query, sessionID, step, nodeID, stateJSON, m.now().UnixNano()); err != nil {
		return fmt.Errorf("failed to save step: %w", err)
	}
	return nil
}

// LoadLatest retrieves the highest-numbered step of a session.
func (m *MySQLStore[S]) LoadLatest(ctx context.Context, sessionID string) (state S, step int, err error) {
	if err := m.checkOpen(); err != nil {
		return state, 0, err
	}
	return loadLatest[S](ctx, m.db, sessionID)
}

// ListSessions returns sessions ordered by most recent activity.
func (m *MySQLStore[S]) ListSessions(ctx context.Context, limit int) ([]SessionInfo, error) {
	if err := m.checkOpen(); err != nil {
		return nil, err
	}
	return listSessions(ctx, m.db, limit)
}

// DeleteSession removes every step of a session.
func (m *MySQLStore[S]) DeleteSession(ctx context.Context, sessionID string) error {
	if err := m.checkOpen(); err != nil {
		return err
	}
	return deleteSession(ctx, m.db, sessionID)
}

// Close closes the connection pool. Subsequent calls are no-ops.
func (m *MySQLStore[S]) Close() error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.closed {
		return nil
	}
	m.closed = true
	return m.db.Close()
}

// Stats returns connection pool statistics.
func (m *MySQLStore[S]) Stats() sql.DBStats {
	return m.db.Stats()
}
