package evaluator

import "sync"

// CrossState is the crossover memory for one leaf: the resolved left and
// right values of the previous evaluation cycle.
type CrossState struct {
	Left  float64 `json:"left"`
	Right float64 `json:"right"`
}

// StateStore holds per-leaf crossover memory for one (tree, symbol)
// evaluation stream. The store must outlive individual cycles; losing it is
// equivalent to starting a fresh stream.
type StateStore interface {
	Get(leafID string) (CrossState, bool)
	Put(leafID string, state CrossState)
	Delete(leafID string)
}

// MemoryStateStore is an in-process StateStore. It is safe for concurrent
// use, though a single evaluation stream is strictly sequential.
type MemoryStateStore struct {
	mu     sync.RWMutex
	states map[string]CrossState
}

// NewMemoryStateStore creates an empty in-memory state store.
func NewMemoryStateStore() *MemoryStateStore {
	return &MemoryStateStore{states: make(map[string]CrossState)}
}

// Get implements StateStore.
func (s *MemoryStateStore) Get(leafID string) (CrossState, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	state, ok := s.states[leafID]
	return state, ok
}

// Put implements StateStore.
func (s *MemoryStateStore) Put(leafID string, state CrossState) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.states[leafID] = state
}

// Delete implements StateStore.
func (s *MemoryStateStore) Delete(leafID string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.states, leafID)
}

// Snapshot returns a copy of all stored states, used when flushing to a
// persistent backend.
func (s *MemoryStateStore) Snapshot() map[string]CrossState {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make(map[string]CrossState, len(s.states))
	for k, v := range s.states {
		out[k] = v
	}
	return out
}

// Restore replaces the store's contents, used when loading from a
// persistent backend.
func (s *MemoryStateStore) Restore(states map[string]CrossState) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.states = make(map[string]CrossState, len(states))
	for k, v := range states {
		s.states[k] = v
	}
}
