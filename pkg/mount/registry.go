package mount

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sync"

	"github.com/marmos91/driftfs/internal/logger"
)

// Registry state conflicts reported to callers. They are never fatal to
// the daemon.
var (
	// ErrAlreadyMounted is returned when mounting a path that already has
	// a live entry.
	ErrAlreadyMounted = errors.New("mount path is already mounted")

	// ErrBusy is returned when an operation overlaps an in-flight
	// transition on the same path, such as mounting a path whose previous
	// mount is still tearing down.
	ErrBusy = errors.New("mount path has an operation in progress")

	// ErrNotFound is returned when no entry exists for the path.
	ErrNotFound = errors.New("mount path is not mounted")
)

// State is the lifecycle state of a registry entry.
type State int

const (
	StateMounting State = iota
	StateMounted
	StateUnmounting
)

func (s State) String() string {
	switch s {
	case StateMounting:
		return "mounting"
	case StateMounted:
		return "mounted"
	case StateUnmounting:
		return "unmounting"
	default:
		return "unknown"
	}
}

// MarshalJSON renders the state as its name so API payloads carry
// "mounted" rather than an opaque integer.
func (s State) MarshalJSON() ([]byte, error) {
	return json.Marshal(s.String())
}

// Info describes one registry entry for status reporting.
type Info struct {
	Path  string `json:"path"`
	State State  `json:"state"`
}

// entry pairs a mount with the completion that fires when its teardown
// finishes. The completion is created at insert time so that a late
// unmount caller and the finish notification can never race on its
// existence.
type entry struct {
	mount      Mount
	state      State
	completion *Completion
}

// Registry tracks all active mounts keyed by mount path.
//
// Operations on a single path are totally ordered: mount, then at most one
// logical unmount, then removal. Overlapping requests are rejected with
// ErrAlreadyMounted or ErrBusy instead of being interleaved. Operations on
// distinct paths never block each other beyond the registry's map lock,
// which is never held across blocking work.
type Registry struct {
	mu      sync.Mutex
	mounts  map[string]*entry
	runTask func(func())
}

// Option configures a Registry.
type Option func(*Registry)

// WithRunner sets the function used to run asynchronous teardown work.
// The server installs its bounded worker pool here; the default spawns a
// goroutine per teardown.
func WithRunner(run func(func())) Option {
	return func(r *Registry) {
		r.runTask = run
	}
}

// NewRegistry creates an empty registry.
func NewRegistry(opts ...Option) *Registry {
	r := &Registry{
		mounts:  make(map[string]*entry),
		runTask: func(fn func()) { go fn() },
	}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

// Mount registers m and performs its setup, blocking until setup finishes.
//
// It fails with ErrAlreadyMounted if the path already has a live entry and
// ErrBusy if the path's previous mount is still tearing down. On setup
// failure the entry is removed again; the registry never retains a
// half-initialized mount.
func (r *Registry) Mount(ctx context.Context, m Mount) error {
	path := m.Path()

	r.mu.Lock()
	if existing, ok := r.mounts[path]; ok {
		state := existing.state
		r.mu.Unlock()
		if state == StateUnmounting {
			return fmt.Errorf("mount %s: %w", path, ErrBusy)
		}
		return fmt.Errorf("mount %s: %w", path, ErrAlreadyMounted)
	}
	r.mounts[path] = &entry{
		mount:      m,
		state:      StateMounting,
		completion: newCompletion(),
	}
	r.mu.Unlock()

	if err := m.Startup(ctx); err != nil {
		r.mu.Lock()
		delete(r.mounts, path)
		r.mu.Unlock()
		return fmt.Errorf("mount %s: setup failed: %w", path, err)
	}

	r.mu.Lock()
	ent, ok := r.mounts[path]
	if !ok || ent.mount != m {
		// The mount machinery reported the mount finished while setup was
		// still returning; treat it as a failed mount.
		r.mu.Unlock()
		return fmt.Errorf("mount %s: mount stopped during setup", path)
	}
	ent.state = StateMounted
	r.mu.Unlock()

	logger.Info("mount ready", "mount_path", path)
	return nil
}

// Unmount begins asynchronous teardown of the mount at path and returns a
// completion that fires when teardown finishes.
//
// Calling Unmount again while the path is already unmounting returns the
// same completion rather than starting a second teardown; concurrent
// callers all observe the single underlying outcome. It fails with
// ErrNotFound when no entry exists and ErrBusy while the mount is still
// starting up.
func (r *Registry) Unmount(ctx context.Context, path string) (*Completion, error) {
	r.mu.Lock()
	ent, ok := r.mounts[path]
	if !ok {
		r.mu.Unlock()
		return nil, fmt.Errorf("unmount %s: %w", path, ErrNotFound)
	}

	switch ent.state {
	case StateUnmounting:
		// Join the in-flight teardown.
		c := ent.completion
		r.mu.Unlock()
		return c, nil
	case StateMounting:
		r.mu.Unlock()
		return nil, fmt.Errorf("unmount %s: %w", path, ErrBusy)
	}

	ent.state = StateUnmounting
	m := ent.mount
	c := ent.completion
	r.mu.Unlock()

	logger.Info("unmount started", "mount_path", path)

	r.runTask(func() {
		err := m.Shutdown(ctx)
		r.MountFinished(m, err)
	})

	return c, nil
}

// UnmountAll unmounts every currently mounted path and blocks until each
// teardown has finished. Failures are independent: one mount's teardown
// error neither cancels nor delays the others, and the aggregate error
// reports every individual failure.
func (r *Registry) UnmountAll(ctx context.Context) error {
	r.mu.Lock()
	paths := make([]string, 0, len(r.mounts))
	for path, ent := range r.mounts {
		if ent.state == StateMounted || ent.state == StateUnmounting {
			paths = append(paths, path)
		}
	}
	r.mu.Unlock()

	completions := make(map[string]*Completion, len(paths))
	var errs []error
	for _, path := range paths {
		c, err := r.Unmount(ctx, path)
		if err != nil {
			// The entry may have finished unmounting since the snapshot.
			if errors.Is(err, ErrNotFound) {
				continue
			}
			errs = append(errs, err)
			continue
		}
		completions[path] = c
	}

	for path, c := range completions {
		if err := c.Wait(ctx); err != nil {
			errs = append(errs, fmt.Errorf("unmount %s: %w", path, err))
		}
	}

	return errors.Join(errs...)
}

// MountFinished records that the mount's underlying teardown has actually
// completed, regardless of who requested it. It fulfills the entry's
// completion exactly once and removes the entry, making the path available
// for a fresh mount. It tolerates being invoked when no caller is waiting
// and when the entry was already removed.
func (r *Registry) MountFinished(m Mount, err error) {
	path := m.Path()

	r.mu.Lock()
	ent, ok := r.mounts[path]
	if ok && ent.mount == m {
		delete(r.mounts, path)
	}
	r.mu.Unlock()

	if !ok || ent.mount != m {
		return
	}

	if err != nil {
		logger.Warn("mount teardown failed", "mount_path", path, "error", err)
	} else {
		logger.Info("unmount finished", "mount_path", path)
	}
	ent.completion.fulfill(err)
}

// Get returns the mount at path. Entries still mounting or already
// unmounting are not exposed as ready mounts; Get fails with ErrNotFound
// for them.
func (r *Registry) Get(path string) (Mount, error) {
	if m := r.GetOrNil(path); m != nil {
		return m, nil
	}
	return nil, fmt.Errorf("mount %s: %w", path, ErrNotFound)
}

// GetOrNil returns the mount at path, or nil if the path has no entry in
// Mounted state.
func (r *Registry) GetOrNil(path string) Mount {
	r.mu.Lock()
	defer r.mu.Unlock()

	ent, ok := r.mounts[path]
	if !ok || ent.state != StateMounted {
		return nil
	}
	return ent.mount
}

// MountPoints returns the paths of all entries in Mounted state.
func (r *Registry) MountPoints() []string {
	r.mu.Lock()
	defer r.mu.Unlock()

	paths := make([]string, 0, len(r.mounts))
	for path, ent := range r.mounts {
		if ent.state == StateMounted {
			paths = append(paths, path)
		}
	}
	return paths
}

// Mounted returns all mounts currently in Mounted state.
func (r *Registry) Mounted() []Mount {
	r.mu.Lock()
	defer r.mu.Unlock()

	mounts := make([]Mount, 0, len(r.mounts))
	for _, ent := range r.mounts {
		if ent.state == StateMounted {
			mounts = append(mounts, ent.mount)
		}
	}
	return mounts
}

// List returns status information for every entry, including those still
// mounting or unmounting.
func (r *Registry) List() []Info {
	r.mu.Lock()
	defer r.mu.Unlock()

	infos := make([]Info, 0, len(r.mounts))
	for path, ent := range r.mounts {
		infos = append(infos, Info{Path: path, State: ent.state})
	}
	return infos
}

// Count returns the number of entries in any state.
func (r *Registry) Count() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.mounts)
}
