package session

import (
	"encoding/json"
	"os"
	"path/filepath"
	"sync"

	"github.com/pkg/errors"
)

// Store persists the charge session across restarts. Load returns (nil, nil)
// when no session has been saved yet; the caller starts from New() in that
// case. Implementations must tolerate being called around every mutating
// controller operation.
type Store interface {
	Load() (*Session, error)
	Save(*Session) error
}

// FileStore keeps the session in a single JSON document on disk. Writes go
// through a temp file plus rename so a crash mid-write never leaves a
// truncated session behind.
type FileStore struct {
	mu   sync.Mutex
	path string
}

// NewFileStore returns a store backed by the given file path. The parent
// directory is created on the first Save.
func NewFileStore(path string) *FileStore {
	return &FileStore{path: path}
}

func (f *FileStore) Load() (*Session, error) {
	f.mu.Lock()
	defer f.mu.Unlock()

	b, err := os.ReadFile(f.path)
	if os.IsNotExist(err) {
		return nil, nil
	}
	if err != nil {
		return nil, errors.Wrap(err, "read session file")
	}

	var s Session
	if err := json.Unmarshal(b, &s); err != nil {
		return nil, errors.Wrapf(err, "parse session file %s", f.path)
	}
	if err := s.Validate(); err != nil {
		return nil, errors.Wrapf(err, "invalid session in %s", f.path)
	}
	return &s, nil
}

func (f *FileStore) Save(s *Session) error {
	b, err := json.MarshalIndent(s, "", "  ")
	if err != nil {
		return errors.Wrap(err, "encode session")
	}

	f.mu.Lock()
	defer f.mu.Unlock()

	dir := filepath.Dir(f.path)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return errors.Wrapf(err, "create state directory %s", dir)
	}

	tmp := f.path + ".tmp"
	if err := os.WriteFile(tmp, b, 0o644); err != nil {
		return errors.Wrap(err, "write session file")
	}
	if err := os.Rename(tmp, f.path); err != nil {
		return errors.Wrap(err, "replace session file")
	}
	return nil
}

// MemStore is an in-memory Store used by tests and by runs without a state
// file.
type MemStore struct {
	mu sync.Mutex
	s  *Session
}

func NewMemStore() *MemStore { return &MemStore{} }

func (m *MemStore) Load() (*Session, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.s == nil {
		return nil, nil
	}
	return m.s.Clone(), nil
}

func (m *MemStore) Save(s *Session) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.s = s.Clone()
	return nil
}
