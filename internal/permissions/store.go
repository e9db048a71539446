package permissions

import (
	"fmt"
	"os"
	"path/filepath"
	"sync"

	"github.com/bytedance/sonic"
)

// Store persists per-app capability masks, keyed by app id. Grants survive a
// restart even though the registry's in-memory table does not.
type Store interface {
	// Load returns the persisted mask for an app id. A missing entry is not
	// an error; ok is false and the mask is zero.
	Load(appID string) (mask Capability, ok bool, err error)

	// Save replaces the persisted mask for an app id. The write is atomic
	// from the caller's perspective: fully written or unchanged.
	Save(appID string, mask Capability) error

	// Delete removes the persisted mask for an app id, if any.
	Delete(appID string) error
}

// FileStore keeps the grant table in one JSON file, rewritten atomically via
// a temp file and rename. The full table is cached in memory; reads never
// touch the filesystem after open.
type FileStore struct {
	mu     sync.RWMutex
	path   string
	grants map[string]uint32
}

// OpenFileStore opens (or creates) the grant file under dir.
func OpenFileStore(dir string) (*FileStore, error) {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("failed to create permissions dir: %w", err)
	}

	s := &FileStore{
		path:   filepath.Join(dir, "permissions.json"),
		grants: make(map[string]uint32),
	}

	data, err := os.ReadFile(s.path)
	if err != nil {
		if os.IsNotExist(err) {
			return s, nil
		}
		return nil, fmt.Errorf("failed to read permissions file: %w", err)
	}
	if err := sonic.Unmarshal(data, &s.grants); err != nil {
		return nil, fmt.Errorf("failed to parse permissions file: %w", err)
	}
	return s, nil
}

// Load implements Store.
func (s *FileStore) Load(appID string) (Capability, bool, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	mask, ok := s.grants[appID]
	return Capability(mask), ok, nil
}

// Save implements Store.
func (s *FileStore) Save(appID string, mask Capability) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	prev, had := s.grants[appID]
	s.grants[appID] = uint32(mask)
	if err := s.flushLocked(); err != nil {
		// Roll back the in-memory table so a failed write is invisible.
		if had {
			s.grants[appID] = prev
		} else {
			delete(s.grants, appID)
		}
		return err
	}
	return nil
}

// Delete implements Store.
func (s *FileStore) Delete(appID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	prev, had := s.grants[appID]
	if !had {
		return nil
	}
	delete(s.grants, appID)
	if err := s.flushLocked(); err != nil {
		s.grants[appID] = prev
		return err
	}
	return nil
}

func (s *FileStore) flushLocked() error {
	data, err := sonic.Marshal(s.grants)
	if err != nil {
		return fmt.Errorf("failed to marshal grants: %w", err)
	}

	tmp := s.path + ".tmp"
	if err := os.WriteFile(tmp, data, 0o644); err != nil {
		return fmt.Errorf("failed to write grants: %w", err)
	}
	if err := os.Rename(tmp, s.path); err != nil {
		os.Remove(tmp)
		return fmt.Errorf("failed to replace grants file: %w", err)
	}
	return nil
}

// MemoryStore is an in-memory Store for tests and ephemeral setups.
type MemoryStore struct {
	mu     sync.RWMutex
	grants map[string]uint32
}

// NewMemoryStore creates an empty in-memory store.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{grants: make(map[string]uint32)}
}

// Load implements Store.
func (s *MemoryStore) Load(appID string) (Capability, bool, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	mask, ok := s.grants[appID]
	return Capability(mask), ok, nil
}

// Save implements Store.
func (s *MemoryStore) Save(appID string, mask Capability) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.grants[appID] = uint32(mask)
	return nil
}

// Delete implements Store.
func (s *MemoryStore) Delete(appID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.grants, appID)
	return nil
}
