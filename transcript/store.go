package transcript

import (
	"errors"
	"os"
	"path/filepath"
	"sync"

	"github.com/goccy/go-json"
)

const metadataFile = "metadata.json"

// FileStore stores one directory per execution under a base directory.
// Active transcripts are held in memory and written when the run ends or
// pauses.
type FileStore struct {
	baseDir string
	mu      sync.RWMutex
	active  map[string]*Transcript
}

// NewFileStore creates a file-based transcript store.
func NewFileStore(baseDir string) (*FileStore, error) {
	if err := os.MkdirAll(baseDir, 0o755); err != nil {
		return nil, err
	}
	return &FileStore{
		baseDir: baseDir,
		active:  make(map[string]*Transcript),
	}, nil
}

// StartRun begins a new transcript or reopens one saved by a paused run.
func (s *FileStore) StartRun(executionID string, meta RunMetadata) error {
	if err := validID(executionID); err != nil {
		return err
	}
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, exists := s.active[executionID]; exists {
		return ErrRunAlreadyExists
	}

	existing, err := Load(s.baseDir, executionID)
	switch {
	case err == nil:
		existing.Reopen()
		s.active[executionID] = existing
		return s.writeMetadata(&existing.Metadata)
	case !errors.Is(err, ErrRunNotFound):
		return err
	}

	t := New(executionID, meta)
	if err := os.MkdirAll(filepath.Join(s.baseDir, executionID), 0o755); err != nil {
		return err
	}
	if err := s.writeMetadata(&t.Metadata); err != nil {
		return err
	}
	s.active[executionID] = t
	return nil
}

// RecordTurn adds a turn to an active transcript.
func (s *FileStore) RecordTurn(executionID string, turn Turn) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	t, ok := s.active[executionID]
	if !ok {
		return ErrRunNotStarted
	}
	t.AddTurn(turn)
	return nil
}

// EndRun saves the transcript with its final status.
func (s *FileStore) EndRun(executionID string, status RunStatus, err error) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	t, ok := s.active[executionID]
	if !ok {
		return ErrRunNotStarted
	}
	t.Finish(status, err)

	if err := t.Save(s.baseDir); err != nil {
		return err
	}
	if err := s.writeMetadata(&t.Metadata); err != nil {
		return err
	}
	delete(s.active, executionID)
	return nil
}

// Load retrieves a transcript, active or saved.
func (s *FileStore) Load(executionID string) (*Transcript, error) {
	if err := validID(executionID); err != nil {
		return nil, err
	}
	s.mu.RLock()
	if t, ok := s.active[executionID]; ok {
		defer s.mu.RUnlock()
		return t.Clone(), nil
	}
	s.mu.RUnlock()

	return Load(s.baseDir, executionID)
}

// LoadMetadata retrieves only the metadata.
func (s *FileStore) LoadMetadata(executionID string) (*Meta, error) {
	s.mu.RLock()
	if t, ok := s.active[executionID]; ok {
		meta := t.Metadata
		s.mu.RUnlock()
		return &meta, nil
	}
	s.mu.RUnlock()

	data, err := os.ReadFile(filepath.Join(s.baseDir, executionID, metadataFile))
	if err != nil {
		if os.IsNotExist(err) {
			return nil, ErrRunNotFound
		}
		return nil, err
	}
	var meta Meta
	if err := json.Unmarshal(data, &meta); err != nil {
		return nil, err
	}
	return &meta, nil
}

// List returns metadata for transcripts matching filter, newest first.
func (s *FileStore) List(filter ListFilter) ([]Meta, error) {
	entries, err := os.ReadDir(s.baseDir)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, nil
		}
		return nil, err
	}

	var results []Meta
	for _, entry := range entries {
		if !entry.IsDir() {
			continue
		}
		meta, err := s.LoadMetadata(entry.Name())
		if err != nil {
			continue
		}
		if filter.match(*meta) {
			results = append(results, *meta)
		}
	}
	return filter.finish(results), nil
}

// Delete removes a transcript.
func (s *FileStore) Delete(executionID string) error {
	if err := validID(executionID); err != nil {
		return err
	}
	s.mu.Lock()
	defer s.mu.Unlock()

	delete(s.active, executionID)
	if err := os.RemoveAll(filepath.Join(s.baseDir, executionID)); err != nil && !os.IsNotExist(err) {
		return err
	}
	return nil
}

// ListActive returns the ids of transcripts still recording.
func (s *FileStore) ListActive() []string {
	s.mu.RLock()
	defer s.mu.RUnlock()

	ids := make([]string, 0, len(s.active))
	for id := range s.active {
		ids = append(ids, id)
	}
	return ids
}

// BaseDir returns the base directory for the store.
func (s *FileStore) BaseDir() string {
	return s.baseDir
}

func (s *FileStore) writeMetadata(meta *Meta) error {
	data, err := json.MarshalIndent(meta, "", "  ")
	if err != nil {
		return err
	}
	return os.WriteFile(filepath.Join(s.baseDir, meta.ExecutionID, metadataFile), data, 0o644)
}

func validID(id string) error {
	if id == "" || id == "." || id == ".." || filepath.Base(id) != id {
		return errors.New("invalid execution id: " + id)
	}
	return nil
}
