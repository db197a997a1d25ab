package tracker

import (
	"sync"

	"community-orchestrator/core/errors"
	"community-orchestrator/core/models"
)

// Store holds run state. Implementations must make Update atomic with
// respect to concurrent readers and return copies the caller may keep.
type Store interface {
	Create(run *models.Run) error
	Get(id string) (*models.Run, error)
	Update(id string, fn func(run *models.Run) error) (*models.Run, error)
	List() ([]*models.Run, error)
	AppendEvent(ev models.TransitionEvent) (models.TransitionEvent, error)
	Events(runID string) ([]models.TransitionEvent, error)
}

// MemoryStore keeps runs for the lifetime of the process.
type MemoryStore struct {
	mu     sync.RWMutex
	runs   map[string]*models.Run
	order  []string
	events map[string][]models.TransitionEvent
	seq    int64
}

// NewMemoryStore creates an empty in-memory store.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		runs:   make(map[string]*models.Run),
		events: make(map[string][]models.TransitionEvent),
	}
}

// Create stores a copy of run.
func (s *MemoryStore) Create(run *models.Run) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, exists := s.runs[run.ID]; exists {
		return errors.New("run " + run.ID + " already exists")
	}
	s.runs[run.ID] = run.Clone()
	s.order = append(s.order, run.ID)
	return nil
}

// Get returns a snapshot of the run.
func (s *MemoryStore) Get(id string) (*models.Run, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	run, ok := s.runs[id]
	if !ok {
		return nil, errors.NewRunNotFound(id)
	}
	return run.Clone(), nil
}

// Update applies fn under the write lock. The run is left untouched when fn fails.
func (s *MemoryStore) Update(id string, fn func(run *models.Run) error) (*models.Run, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	run, ok := s.runs[id]
	if !ok {
		return nil, errors.NewRunNotFound(id)
	}
	working := run.Clone()
	if err := fn(working); err != nil {
		return nil, err
	}
	s.runs[id] = working
	return working.Clone(), nil
}

// List returns snapshots of all runs, newest first.
func (s *MemoryStore) List() ([]*models.Run, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	out := make([]*models.Run, 0, len(s.order))
	for i := len(s.order) - 1; i >= 0; i-- {
		out = append(out, s.runs[s.order[i]].Clone())
	}
	return out, nil
}

// AppendEvent records ev with the next sequence number.
func (s *MemoryStore) AppendEvent(ev models.TransitionEvent) (models.TransitionEvent, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.runs[ev.RunID]; !ok {
		return ev, errors.NewRunNotFound(ev.RunID)
	}
	s.seq++
	ev.Seq = s.seq
	s.events[ev.RunID] = append(s.events[ev.RunID], ev)
	return ev, nil
}

// Events returns the transitions of a run in the order they were recorded.
func (s *MemoryStore) Events(runID string) ([]models.TransitionEvent, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	if _, ok := s.runs[runID]; !ok {
		return nil, errors.NewRunNotFound(runID)
	}
	out := make([]models.TransitionEvent, len(s.events[runID]))
	copy(out, s.events[runID])
	return out, nil
}
