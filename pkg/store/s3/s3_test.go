package s3

import (
	"context"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/marmos91/driftfs/pkg/store"
)

func openLocal(t *testing.T) *store.LocalStore {
	t.Helper()
	local, err := store.OpenLocalStore(t.TempDir())
	require.NoError(t, err)
	t.Cleanup(func() { _ = local.Close() })
	return local
}

func TestKindAndName(t *testing.T) {
	s := New(nil, nil, Config{Bucket: "my-bucket"})
	require.Equal(t, "s3", s.Kind())
	require.Equal(t, "my-bucket", s.Name())
}

func TestGetObjectServedFromLocalStore(t *testing.T) {
	local := openLocal(t)
	s := New(nil, local, Config{Bucket: "my-bucket"})

	// An object already in the local store is returned without touching
	// the bucket. The client is nil, so reaching S3 would panic.
	require.NoError(t, local.Put(context.Background(), s.cacheKey("abc"), []byte("cached")))

	data, err := s.GetObject(context.Background(), "abc")
	require.NoError(t, err)
	require.Equal(t, []byte("cached"), data)
}

func TestCacheKeysScopedByBucket(t *testing.T) {
	local := openLocal(t)
	alpha := New(nil, local, Config{Bucket: "alpha"})
	beta := New(nil, local, Config{Bucket: "beta"})

	require.NotEqual(t, alpha.cacheKey("abc"), beta.cacheKey("abc"))
}

func TestGetObjectAfterClose(t *testing.T) {
	s := New(nil, openLocal(t), Config{Bucket: "my-bucket"})
	require.NoError(t, s.Close())

	_, err := s.GetObject(context.Background(), "abc")
	require.ErrorIs(t, err, store.ErrStoreClosed)
}
