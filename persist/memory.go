package persist

import (
	"context"
	"sync"

	"github.com/hupe1980/agentloop/model"
)

// InMemory keeps the latest snapshot and the final result of each run.
type InMemory struct {
	mu       sync.RWMutex
	latest   map[string]*model.Snapshot
	progress map[string]int
	finals   map[string]Result
}

// NewInMemory creates an empty in-memory recorder.
func NewInMemory() *InMemory {
	return &InMemory{
		latest:   map[string]*model.Snapshot{},
		progress: map[string]int{},
		finals:   map[string]Result{},
	}
}

// RecordProgress implements Recorder. The snapshot is cloned.
func (m *InMemory) RecordProgress(_ context.Context, runID string, snap *model.Snapshot) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	m.latest[runID] = snap.Clone()
	m.progress[runID]++

	return nil
}

// RecordFinal implements Recorder.
func (m *InMemory) RecordFinal(_ context.Context, runID string, res Result) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	m.finals[runID] = res

	return nil
}

// Latest returns a copy of the most recent snapshot recorded for runID.
func (m *InMemory) Latest(runID string) (*model.Snapshot, bool) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	snap, ok := m.latest[runID]
	return snap.Clone(), ok
}

// ProgressCount returns how many progress records runID received.
func (m *InMemory) ProgressCount(runID string) int {
	m.mu.RLock()
	defer m.mu.RUnlock()

	return m.progress[runID]
}

// Final returns the recorded outcome of runID.
func (m *InMemory) Final(runID string) (Result, bool) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	res, ok := m.finals[runID]
	return res, ok
}

var _ Recorder = (*InMemory)(nil)
