package server

import (
	"context"
	"fmt"
	"os"
	"sync"
	"time"

	"github.com/marmos91/driftfs/internal/logger"
	"github.com/marmos91/driftfs/internal/privhelper"
	"github.com/marmos91/driftfs/pkg/store"
)

// storeMount is a mount point served by a backing store. When a
// privileged helper is configured the actual attach and detach syscalls
// go through it; otherwise the mount runs in-process.
//
// Loaded inodes are tracked by last access time so the periodic
// maintenance job can unload entries that have gone idle.
type storeMount struct {
	path    string
	backing store.BackingStore
	helper  *privhelper.Client

	mu     sync.Mutex
	inodes map[string]time.Time // object id -> last access
}

func newStoreMount(path string, backing store.BackingStore, helper *privhelper.Client) *storeMount {
	return &storeMount{
		path:    path,
		backing: backing,
		helper:  helper,
		inodes:  make(map[string]time.Time),
	}
}

// Path returns the mount point path.
func (m *storeMount) Path() string { return m.path }

// Startup attaches the filesystem at the mount point.
func (m *storeMount) Startup(ctx context.Context) error {
	if err := os.MkdirAll(m.path, 0755); err != nil {
		return fmt.Errorf("failed to create mount point %s: %w", m.path, err)
	}

	if m.helper != nil {
		if err := m.helper.Mount(ctx, m.path); err != nil {
			return fmt.Errorf("failed to attach %s: %w", m.path, err)
		}
	}

	logger.Info("mount started",
		"path", m.path,
		"store_kind", m.backing.Kind(),
		"store_name", m.backing.Name())
	return nil
}

// Shutdown detaches the filesystem and drops all loaded inodes.
func (m *storeMount) Shutdown(ctx context.Context) error {
	if m.helper != nil {
		if err := m.helper.Unmount(ctx, m.path); err != nil {
			return fmt.Errorf("failed to detach %s: %w", m.path, err)
		}
	}

	m.mu.Lock()
	m.inodes = make(map[string]time.Time)
	m.mu.Unlock()

	logger.Info("mount stopped", "path", m.path)
	return nil
}

// GetObject reads an object through the backing store and marks its
// inode as loaded.
func (m *storeMount) GetObject(ctx context.Context, id string) ([]byte, error) {
	data, err := m.backing.GetObject(ctx, id)
	if err != nil {
		return nil, err
	}

	m.mu.Lock()
	m.inodes[id] = time.Now()
	m.mu.Unlock()

	return data, nil
}

// UnloadInodes drops inodes whose last access is before the cutoff and
// returns how many were unloaded.
func (m *storeMount) UnloadInodes(cutoff time.Time) int {
	m.mu.Lock()
	defer m.mu.Unlock()

	unloaded := 0
	for id, lastAccess := range m.inodes {
		if lastAccess.Before(cutoff) {
			delete(m.inodes, id)
			unloaded++
		}
	}
	return unloaded
}

// LoadedInodes returns the number of currently loaded inodes.
func (m *storeMount) LoadedInodes() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.inodes)
}
