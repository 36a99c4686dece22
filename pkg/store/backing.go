package store

import "context"

// BackingStore is a shared, content-addressed data source underlying one
// or more mounts. Instances are created once per (kind, name) pair by the
// Cache and read-shared by every mount referencing that repository.
//
// Implementations must be safe for concurrent use.
type BackingStore interface {
	// Kind returns the store kind, e.g. "s3" or "filedir". The daemon core
	// treats it as an opaque cache-key component.
	Kind() string

	// Name returns the store identifier within its kind, e.g. a bucket
	// name or a directory path.
	Name() string

	// GetObject fetches the object with the given content identifier.
	// Returns ErrObjectNotFound when the upstream repository has no such
	// object.
	GetObject(ctx context.Context, id string) ([]byte, error)

	// Close releases the store's resources. The Cache calls it during
	// daemon shutdown, after every mount has been unmounted.
	Close() error
}

// Factory constructs a backing store for a (kind, name) pair. A factory
// error is propagated to the mount attempt that triggered construction and
// leaves no cache entry behind, so a later attempt can retry.
type Factory func(ctx context.Context, kind, name string) (BackingStore, error)
