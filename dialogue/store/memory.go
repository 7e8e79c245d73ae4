package store

import (
	"context"
	"sort"
	"sync"
	"time"
)

// MemStore is an in-memory implementation of Store[S].
//
// MemStore is thread-safe. Data is lost when the process exits.
type MemStore[S any] struct {
	mu     sync.RWMutex
	steps  map[string][]StepRecord[S] // sessionID -> steps in save order
	closed bool
	now    func() time.Time
}

// NewMemStore creates a new in-memory store.
func NewMemStore[S any]() *MemStore[S] {
	return &MemStore[S]{
		steps: make(map[string][]StepRecord[S]),
		now:   time.Now,
	}
}

// SaveStep persists a dialogue step, replacing an existing record with the
// same step number.
func (m *MemStore[S]) SaveStep(_ context.Context, sessionID string, step int, nodeID string, state S) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.closed {
		return ErrClosed
	}

	record := StepRecord[S]{Step: step, NodeID: nodeID, State: state, UpdatedAt: m.now()}
	records := m.steps[sessionID]
	for i := range records {
		if records[i].Step == step {
			records[i] = record
			return nil
		}
	}
	m.steps[sessionID] = append(records, record)
	return nil
}

// LoadLatest retrieves the highest-numbered step of a session.
func (m *MemStore[S]) LoadLatest(_ context.Context, sessionID string) (state S, step int, err error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	if m.closed {
		return state, 0, ErrClosed
	}

	latest, ok := m.latest(sessionID)
	if !ok {
		return state, 0, ErrNotFound
	}
	return latest.State, latest.Step, nil
}

// ListSessions returns sessions ordered by most recent activity.
func (m *MemStore[S]) ListSessions(_ context.Context, limit int) ([]SessionInfo, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	if m.closed {
		return nil, ErrClosed
	}

	infos := make([]SessionInfo, 0, len(m.steps))
	for id := range m.steps {
		latest, ok := m.latest(id)
		if !ok {
			continue
		}
		updated := latest.UpdatedAt
		for _, r := range m.steps[id] {
			if r.UpdatedAt.After(updated) {
				updated = r.UpdatedAt
			}
		}
		infos = append(infos, SessionInfo{ID: id, Step: latest.Step, NodeID: latest.NodeID, UpdatedAt: updated})
	}

	sortSessions(infos)
	if limit > 0 && len(infos) > limit {
		infos = infos[:limit]
	}
	return infos, nil
}

// DeleteSession removes every step of a session.
func (m *MemStore[S]) DeleteSession(_ context.Context, sessionID string) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.closed {
		return ErrClosed
	}
	if _, ok := m.steps[sessionID]; !ok {
		return ErrNotFound
	}
	delete(m.steps, sessionID)
	return nil
}

// Close marks the store closed.
func (m *MemStore[S]) Close() error {
	m.mu.Lock()
	defer m.mu.Unlock()

	m.closed = true
	return nil
}

// History returns every saved step of a session ordered by step number.
func (m *MemStore[S]) History(sessionID string) []StepRecord[S] {
	m.mu.RLock()
	defer m.mu.RUnlock()

	out := append([]StepRecord[S](nil), m.steps[sessionID]...)
	sort.Slice(out, func(i, j int) bool { return out[i].Step < out[j].Step })
	return out
}

func (m *MemStore[S]) latest(sessionID string) (StepRecord[S], bool) {
	records := m.steps[sessionID]
	if len(records) == 0 {
		return StepRecord[S]{}, false
	}
	latest := records[0]
	for _, r := range records[1:] {
		if r.Step > latest.Step {
			latest = r
		}
	}
	return latest, true
}

func sortSessions(infos []SessionInfo) {
	sort.Slice(infos, func(i, j int) bool {
		if !infos[i].UpdatedAt.Equal(infos[j].UpdatedAt) {
			return infos[i].UpdatedAt.After(infos[j].UpdatedAt)
		}
		return infos[i].ID < infos[j].ID
	})
}
