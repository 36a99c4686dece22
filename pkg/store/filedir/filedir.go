// Package filedir provides a backing store that serves objects from a
// plain directory on local disk. Object identifiers map to file names;
// nested identifiers (containing "/") map to subdirectories.
package filedir

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"sync"

	"github.com/marmos91/driftfs/pkg/store"
)

// Store serves objects out of a directory tree.
type Store struct {
	name string
	root string

	mu     sync.RWMutex
	closed bool
}

// New creates a directory-backed store. The directory must already exist.
func New(name, root string) (*Store, error) {
	info, err := os.Stat(root)
	if err != nil {
		return nil, fmt.Errorf("filedir store %q: %w", name, err)
	}
	if !info.IsDir() {
		return nil, fmt.Errorf("filedir store %q: %s is not a directory", name, root)
	}
	return &Store{name: name, root: root}, nil
}

// Kind returns "filedir".
func (s *Store) Kind() string { return "filedir" }

// Name returns the store name.
func (s *Store) Name() string { return s.name }

// objectPath resolves an identifier to a path under the root, rejecting
// identifiers that would escape it.
func (s *Store) objectPath(id string) (string, error) {
	if id == "" || strings.Contains(id, "..") {
		return "", fmt.Errorf("invalid object id %q", id)
	}
	path := filepath.Join(s.root, filepath.FromSlash(id))
	if !strings.HasPrefix(path, s.root+string(filepath.Separator)) {
		return "", fmt.Errorf("invalid object id %q", id)
	}
	return path, nil
}

// GetObject reads the object with the given identifier from disk.
func (s *Store) GetObject(ctx context.Context, id string) ([]byte, error) {
	s.mu.RLock()
	if s.closed {
		s.mu.RUnlock()
		return nil, store.ErrStoreClosed
	}
	s.mu.RUnlock()

	if err := ctx.Err(); err != nil {
		return nil, err
	}

	path, err := s.objectPath(id)
	if err != nil {
		return nil, err
	}

	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, store.ErrObjectNotFound
		}
		return nil, fmt.Errorf("filedir read object %s: %w", id, err)
	}
	return data, nil
}

// Close marks the store closed.
func (s *Store) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.closed = true
	return nil
}
