package tracker

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"sync"
)

// MemorySessionStore keeps the session id for the lifetime of the process.
type MemorySessionStore struct {
	mu sync.Mutex
	id string
}

// SessionID returns the stored id, if any.
func (s *MemorySessionStore) SessionID() (string, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.id, s.id != ""
}

// SetSessionID stores id.
func (s *MemorySessionStore) SetSessionID(id string) error {
	s.mu.Lock()
	s.id = id
	s.mu.Unlock()
	return nil
}

// FileSessionStore persists the session id in a single file so it survives
// restarts, the way a browser profile's local storage would.
type FileSessionStore struct {
	path string
}

// NewFileSessionStore returns a store backed by the file at path.
func NewFileSessionStore(path string) *FileSessionStore {
	return &FileSessionStore{path: path}
}

// SessionID reads the stored id. A missing or unreadable file means no id.
func (s *FileSessionStore) SessionID() (string, bool) {
	b, err := os.ReadFile(s.path)
	if err != nil {
		return "", false
	}
	id := strings.TrimSpace(string(b))
	return id, id != ""
}

// SetSessionID writes id, replacing the file atomically.
func (s *FileSessionStore) SetSessionID(id string) error {
	if id == "" {
		return errors.New("empty session id")
	}
	if err := os.MkdirAll(filepath.Dir(s.path), 0o700); err != nil {
		return fmt.Errorf("create session dir: %w", err)
	}
	tmp := s.path + ".tmp"
	if err := os.WriteFile(tmp, []byte(id+"\n"), 0o600); err != nil {
		return fmt.Errorf("write session file: %w", err)
	}
	if err := os.Rename(tmp, s.path); err != nil {
		return fmt.Errorf("replace session file: %w", err)
	}
	return nil
}

// MemoryDedupStore holds dedup markers for one browsing session.
type MemoryDedupStore struct {
	mu   sync.Mutex
	sent map[string]struct{}
}

// NewMemoryDedupStore returns an empty dedup store.
func NewMemoryDedupStore() *MemoryDedupStore {
	return &MemoryDedupStore{sent: make(map[string]struct{})}
}

// Sent reports whether path was marked in this session.
func (d *MemoryDedupStore) Sent(path string) bool {
	d.mu.Lock()
	defer d.mu.Unlock()
	_, ok := d.sent[path]
	return ok
}

// MarkSent records path as sent.
func (d *MemoryDedupStore) MarkSent(path string) {
	d.mu.Lock()
	d.sent[path] = struct{}{}
	d.mu.Unlock()
}
