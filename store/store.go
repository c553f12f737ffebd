// Package store holds the canonical in-memory task collection for one
// owner. It mirrors the backing record service and may be transiently stale
// between an optimistic mutation and its confirmation; reconciliation
// replaces it wholesale via Load.
package store

import (
	"sort"
	"sync"
	"time"

	"taskboard-api/domain"
)

// TaskStore is the canonical cache of one owner's tasks. All mutations go
// through the defined actions; statistics are recomputed from the full
// collection on every change.
type TaskStore struct {
	mu    sync.RWMutex
	tasks map[string]domain.Task
	stats domain.Statistics
	now   func() time.Time
}

// New creates an empty store.
func New() *TaskStore {
	return NewWithClock(time.Now)
}

// NewWithClock creates a store with an injected clock, used by tests to pin
// the overdue cutoff.
func NewWithClock(now func() time.Time) *TaskStore {
	return &TaskStore{tasks: make(map[string]domain.Task), now: now}
}

// Load replaces the entire collection. Used for initial population and for
// reconciliation after a failed or suspect reorder.
func (s *TaskStore) Load(tasks []domain.Task) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.tasks = make(map[string]domain.Task, len(tasks))
	for _, t := range tasks {
		s.tasks[t.ID] = t
	}
	s.recompute()
}

// Insert adds a task to the collection.
func (s *TaskStore) Insert(task domain.Task) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.tasks[task.ID] = task
	s.recompute()
}

// Patch merges a partial update into the identified task. A missing id is a
// no-op: the record may have been removed by a concurrent delete.
func (s *TaskStore) Patch(id string, patch domain.TaskPatch) {
	s.mu.Lock()
	defer s.mu.Unlock()
	task, ok := s.tasks[id]
	if !ok {
		return
	}
	patch.Apply(&task)
	task.UpdatedAt = s.now()
	s.tasks[id] = task
	s.recompute()
}

// Remove deletes the identified task. Idempotent.
func (s *TaskStore) Remove(id string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.tasks[id]; !ok {
		return
	}
	delete(s.tasks, id)
	s.recompute()
}

// SetStatusAndPosition updates the column and ordering key together, so a
// cross-column move never leaves a position paired with the wrong status.
// A missing id is a no-op.
func (s *TaskStore) SetStatusAndPosition(id string, status domain.Status, position float64) {
	s.mu.Lock()
	defer s.mu.Unlock()
	task, ok := s.tasks[id]
	if !ok {
		return
	}
	task.Status = status
	task.Position = position
	task.UpdatedAt = s.now()
	s.tasks[id] = task
	s.recompute()
}

// Get returns the task by id.
func (s *TaskStore) Get(id string) (domain.Task, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	task, ok := s.tasks[id]
	return task, ok
}

// Snapshot returns a copy of the full collection in unspecified order.
func (s *TaskStore) Snapshot() []domain.Task {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]domain.Task, 0, len(s.tasks))
	for _, t := range s.tasks {
		out = append(out, t)
	}
	return out
}

// Len returns the collection size.
func (s *TaskStore) Len() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.tasks)
}

// Stats returns the aggregate counters as of the last mutation.
func (s *TaskStore) Stats() domain.Statistics {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.stats
}

// ColumnPositions returns the ascending position keys of the tasks in the
// given column, excluding excludeID (the task being moved).
func (s *TaskStore) ColumnPositions(status domain.Status, excludeID string) []float64 {
	s.mu.RLock()
	defer s.mu.RUnlock()
	positions := make([]float64, 0, len(s.tasks))
	for _, t := range s.tasks {
		if t.Status != status || t.ID == excludeID {
			continue
		}
		positions = append(positions, t.Position)
	}
	sort.Float64s(positions)
	return positions
}

// IndexInColumn returns the zero-based rank of the task within its column,
// ordered by ascending position.
func (s *TaskStore) IndexInColumn(id string) (int, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	task, ok := s.tasks[id]
	if !ok {
		return 0, false
	}
	index := 0
	for _, t := range s.tasks {
		if t.ID == id || t.Status != task.Status {
			continue
		}
		if t.Position < task.Position {
			index++
		}
	}
	return index, true
}

// recompute must run with the write lock held.
func (s *TaskStore) recompute() {
	tasks := make([]domain.Task, 0, len(s.tasks))
	for _, t := range s.tasks {
		tasks = append(tasks, t)
	}
	s.stats = domain.ComputeStatistics(tasks, s.now())
}
