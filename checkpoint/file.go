package checkpoint

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"sync"
)

// FileStore stores one JSON file per execution under a directory.
type FileStore struct {
	baseDir string
	mu      sync.RWMutex
}

// NewFileStore creates a file-based store rooted at baseDir.
func NewFileStore(baseDir string) (*FileStore, error) {
	if err := os.MkdirAll(baseDir, 0755); err != nil {
		return nil, fmt.Errorf("create checkpoint dir: %w", err)
	}
	return &FileStore{baseDir: baseDir}, nil
}

// Save implements Store. The file is written to a temp name and renamed so a
// crash mid-write never leaves a truncated snapshot.
func (s *FileStore) Save(_ context.Context, executionID string, snap *Snapshot) error {
	prepared, err := prepare(executionID, snap)
	if err != nil {
		return err
	}
	path, err := s.path(executionID)
	if err != nil {
		return err
	}
	data, err := encodeSnapshot(prepared)
	if err != nil {
		return fmt.Errorf("encode snapshot: %w", err)
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	tmp := path + ".tmp"
	if err := os.WriteFile(tmp, data, 0644); err != nil {
		return fmt.Errorf("write snapshot: %w", err)
	}
	if err := os.Rename(tmp, path); err != nil {
		os.Remove(tmp)
		return fmt.Errorf("write snapshot: %w", err)
	}
	return nil
}

// Load implements Store.
func (s *FileStore) Load(_ context.Context, executionID string) (*Snapshot, error) {
	path, err := s.path(executionID)
	if err != nil {
		return nil, err
	}

	s.mu.RLock()
	data, err := os.ReadFile(path)
	s.mu.RUnlock()
	if err != nil {
		if os.IsNotExist(err) {
			return nil, ErrNotFound
		}
		return nil, err
	}

	snap, err := decodeSnapshot(data)
	if err != nil {
		return nil, fmt.Errorf("decode snapshot %s: %w", executionID, err)
	}
	return snap, nil
}

// List implements Store. Unreadable files are skipped.
func (s *FileStore) List(ctx context.Context, filter ListFilter) ([]Info, error) {
	entries, err := os.ReadDir(s.baseDir)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, nil
		}
		return nil, err
	}

	var infos []Info
	for _, entry := range entries {
		name := entry.Name()
		if entry.IsDir() || !strings.HasSuffix(name, ".json") {
			continue
		}
		snap, err := s.Load(ctx, strings.TrimSuffix(name, ".json"))
		if err != nil {
			continue
		}
		if info := snap.info(); filter.match(info) {
			infos = append(infos, info)
		}
	}
	return finish(infos, filter), nil
}

// Delete implements Store.
func (s *FileStore) Delete(_ context.Context, executionID string) error {
	path, err := s.path(executionID)
	if err != nil {
		return err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := os.Remove(path); err != nil && !os.IsNotExist(err) {
		return err
	}
	return nil
}

// Close implements Store.
func (s *FileStore) Close() error {
	return nil
}

// BaseDir returns the directory snapshots are written to.
func (s *FileStore) BaseDir() string {
	return s.baseDir
}

func (s *FileStore) path(executionID string) (string, error) {
	if executionID == "" {
		return "", ErrNoExecutionID
	}
	if strings.ContainsAny(executionID, `/\`) || executionID == "." || executionID == ".." {
		return "", fmt.Errorf("invalid execution id %q", executionID)
	}
	return filepath.Join(s.baseDir, executionID+".json"), nil
}
