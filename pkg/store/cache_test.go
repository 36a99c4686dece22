package store

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeBackingStore struct {
	kind   string
	name   string
	closed atomic.Bool
}

func (f *fakeBackingStore) Kind() string { return f.kind }
func (f *fakeBackingStore) Name() string { return f.name }

func (f *fakeBackingStore) GetObject(ctx context.Context, id string) ([]byte, error) {
	return nil, ErrObjectNotFound
}

func (f *fakeBackingStore) Close() error {
	f.closed.Store(true)
	return nil
}

func countingFactory(calls *atomic.Int32) Factory {
	return func(ctx context.Context, kind, name string) (BackingStore, error) {
		calls.Add(1)
		return &fakeBackingStore{kind: kind, name: name}, nil
	}
}

func TestGetOrCreateSharesOneInstancePerKey(t *testing.T) {
	var calls atomic.Int32
	c := NewCache(countingFactory(&calls))

	a, err := c.GetOrCreate(context.Background(), "git", "A")
	require.NoError(t, err)
	b, err := c.GetOrCreate(context.Background(), "git", "A")
	require.NoError(t, err)

	assert.Same(t, a, b)
	assert.Equal(t, int32(1), calls.Load(), "factory must run once per key")
	assert.Equal(t, 1, c.Len())
}

func TestGetOrCreateDistinctKeys(t *testing.T) {
	var calls atomic.Int32
	c := NewCache(countingFactory(&calls))

	a, err := c.GetOrCreate(context.Background(), "git", "A")
	require.NoError(t, err)
	b, err := c.GetOrCreate(context.Background(), "git", "B")
	require.NoError(t, err)
	d, err := c.GetOrCreate(context.Background(), "s3", "A")
	require.NoError(t, err)

	assert.NotSame(t, a, b)
	assert.NotSame(t, a, d)
	assert.Equal(t, int32(3), calls.Load())
	assert.Equal(t, 3, c.Len())
}

func TestGetOrCreateConcurrent(t *testing.T) {
	var calls atomic.Int32
	c := NewCache(countingFactory(&calls))

	const n = 32
	results := make([]BackingStore, n)
	var wg sync.WaitGroup
	for i := 0; i < n; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			bs, err := c.GetOrCreate(context.Background(), "git", "A")
			if err == nil {
				results[i] = bs
			}
		}(i)
	}
	wg.Wait()

	require.Equal(t, int32(1), calls.Load(), "concurrent lookups must not construct twice")
	for i := 1; i < n; i++ {
		assert.Same(t, results[0], results[i])
	}
}

func TestFactoryFailureLeavesCacheClean(t *testing.T) {
	boom := errors.New("repository unreachable")
	fail := true
	c := NewCache(func(ctx context.Context, kind, name string) (BackingStore, error) {
		if fail {
			return nil, boom
		}
		return &fakeBackingStore{kind: kind, name: name}, nil
	})

	_, err := c.GetOrCreate(context.Background(), "git", "A")
	require.ErrorIs(t, err, boom)
	assert.Zero(t, c.Len())

	// A retry after the transient failure constructs successfully.
	fail = false
	bs, err := c.GetOrCreate(context.Background(), "git", "A")
	require.NoError(t, err)
	assert.NotNil(t, bs)
	assert.Equal(t, 1, c.Len())
}

func TestCloseAll(t *testing.T) {
	var calls atomic.Int32
	c := NewCache(countingFactory(&calls))

	a, err := c.GetOrCreate(context.Background(), "git", "A")
	require.NoError(t, err)
	b, err := c.GetOrCreate(context.Background(), "s3", "B")
	require.NoError(t, err)

	require.NoError(t, c.CloseAll())
	assert.True(t, a.(*fakeBackingStore).closed.Load())
	assert.True(t, b.(*fakeBackingStore).closed.Load())
	assert.Zero(t, c.Len())
}

func TestGetReturnsNilForMissing(t *testing.T) {
	c := NewCache(countingFactory(new(atomic.Int32)))
	assert.Nil(t, c.Get("git", "missing"))
}
