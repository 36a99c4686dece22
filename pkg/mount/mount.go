// Package mount tracks the set of active filesystem mounts.
//
// The Registry is the single authority on mount lifecycle: every mount
// moves through Mounting, Mounted and Unmounting states in order, and
// overlapping operations on one mount path are rejected rather than
// interleaved. Teardown completion is reported through a shared
// Completion so that every caller waiting on the same unmount observes
// one outcome.
package mount

import (
	"context"
	"time"
)

// Mount is one active instance of the virtual filesystem bound to a path.
//
// Implementations bridge to the filesystem protocol layer; the registry
// only drives their lifecycle. Startup and Shutdown may block and are run
// on worker goroutines, never on the daemon's main loop.
type Mount interface {
	// Path returns the mount path. It is unique across the registry and
	// never changes for the lifetime of the mount.
	Path() string

	// Startup performs mount setup: connecting the backing store,
	// initializing working-copy state, and asking the privileged helper
	// to perform the OS-level mount.
	Startup(ctx context.Context) error

	// Shutdown tears the mount down. It must be safe to call once after a
	// successful Startup and must leave no OS-level mount behind on
	// success.
	Shutdown(ctx context.Context) error

	// UnloadInodes releases in-memory inode state that has not been used
	// since the cutoff, returning the number of inodes released.
	UnloadInodes(cutoff time.Time) int
}
