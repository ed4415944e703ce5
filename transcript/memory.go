package transcript

import "sync"

// MemoryStore keeps transcripts in memory.
type MemoryStore struct {
	mu   sync.RWMutex
	runs map[string]*Transcript
}

// NewMemoryStore creates an empty in-memory store.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{runs: make(map[string]*Transcript)}
}

// StartRun begins or reopens a transcript.
func (s *MemoryStore) StartRun(executionID string, meta RunMetadata) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if t, ok := s.runs[executionID]; ok {
		if t.IsActive() {
			return ErrRunAlreadyExists
		}
		t.Reopen()
		return nil
	}
	s.runs[executionID] = New(executionID, meta)
	return nil
}

// RecordTurn appends a turn to an active transcript.
func (s *MemoryStore) RecordTurn(executionID string, turn Turn) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	t, ok := s.runs[executionID]
	if !ok || !t.IsActive() {
		return ErrRunNotStarted
	}
	t.AddTurn(turn)
	return nil
}

// EndRun sets the final status.
func (s *MemoryStore) EndRun(executionID string, status RunStatus, err error) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	t, ok := s.runs[executionID]
	if !ok || !t.IsActive() {
		return ErrRunNotStarted
	}
	t.Finish(status, err)
	return nil
}

// Load returns a copy of a transcript.
func (s *MemoryStore) Load(executionID string) (*Transcript, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	t, ok := s.runs[executionID]
	if !ok {
		return nil, ErrRunNotFound
	}
	return t.Clone(), nil
}

// List returns metadata for transcripts matching filter.
func (s *MemoryStore) List(filter ListFilter) ([]Meta, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var out []Meta
	for _, t := range s.runs {
		if filter.match(t.Metadata) {
			out = append(out, t.Metadata)
		}
	}
	return filter.finish(out), nil
}

// Delete removes a transcript.
func (s *MemoryStore) Delete(executionID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.runs, executionID)
	return nil
}
