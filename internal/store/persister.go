package store

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sync"
)

// FilePersister keeps the snapshot in a single file.
type FilePersister struct {
	path string
}

// NewFilePersister returns a persister for path, creating its directory.
func NewFilePersister(path string) (*FilePersister, error) {
	if dir := filepath.Dir(path); dir != "" {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return nil, fmt.Errorf("failed to create snapshot directory: %w", err)
		}
	}
	return &FilePersister{path: path}, nil
}

// Path returns the snapshot file path.
func (p *FilePersister) Path() string {
	return p.path
}

// Load reads the snapshot file.
func (p *FilePersister) Load(_ context.Context) ([]byte, error) {
	data, err := os.ReadFile(p.path)
	if errors.Is(err, os.ErrNotExist) {
		return nil, ErrNoSnapshot
	}
	if err != nil {
		return nil, fmt.Errorf("failed to read snapshot: %w", err)
	}
	return data, nil
}

// Save writes the snapshot to a temporary file and renames it into place,
// so a crash never leaves a half-written snapshot behind.
func (p *FilePersister) Save(_ context.Context, data []byte) error {
	tmp, err := os.CreateTemp(filepath.Dir(p.path), filepath.Base(p.path)+".*.tmp")
	if err != nil {
		return fmt.Errorf("failed to create temp file: %w", err)
	}
	tmpName := tmp.Name()

	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		os.Remove(tmpName)
		return fmt.Errorf("failed to write snapshot: %w", err)
	}
	if err := tmp.Sync(); err != nil {
		tmp.Close()
		os.Remove(tmpName)
		return fmt.Errorf("failed to sync snapshot: %w", err)
	}
	if err := tmp.Close(); err != nil {
		os.Remove(tmpName)
		return fmt.Errorf("failed to close snapshot: %w", err)
	}
	if err := os.Rename(tmpName, p.path); err != nil {
		os.Remove(tmpName)
		return fmt.Errorf("failed to replace snapshot: %w", err)
	}
	return nil
}

// Close is a no-op.
func (p *FilePersister) Close() error {
	return nil
}

// MemoryPersister keeps the snapshot in memory. Used by the "memory"
// backend and in tests.
type MemoryPersister struct {
	mu      sync.Mutex
	data    []byte
	saves   int
	failErr error
}

// NewMemoryPersister returns an empty in-memory persister.
func NewMemoryPersister() *MemoryPersister {
	return &MemoryPersister{}
}

// Load returns the last saved snapshot.
func (p *MemoryPersister) Load(_ context.Context) ([]byte, error) {
	p.mu.Lock()
	defer p.mu.Unlock()

	if p.data == nil {
		return nil, ErrNoSnapshot
	}
	return append([]byte(nil), p.data...), nil
}

// Save stores a copy of data.
func (p *MemoryPersister) Save(_ context.Context, data []byte) error {
	p.mu.Lock()
	defer p.mu.Unlock()

	if p.failErr != nil {
		return p.failErr
	}
	p.data = append([]byte(nil), data...)
	p.saves++
	return nil
}

// Close is a no-op.
func (p *MemoryPersister) Close() error {
	return nil
}

// Saves returns how many snapshots were written.
func (p *MemoryPersister) Saves() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.saves
}

// Data returns a copy of the last written snapshot.
func (p *MemoryPersister) Data() []byte {
	p.mu.Lock()
	defer p.mu.Unlock()
	return append([]byte(nil), p.data...)
}

// FailWith makes subsequent saves fail with err. A nil err restores saving.
func (p *MemoryPersister) FailWith(err error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.failErr = err
}
