package server

import (
	"context"
	"path/filepath"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

// inlinePost runs posted tasks immediately, standing in for the main loop.
func inlinePost(task func()) bool {
	task()
	return true
}

func TestPeriodicJobRearms(t *testing.T) {
	var runs atomic.Int64
	job := startPeriodicJob("test", 10*time.Millisecond, inlinePost, func() {
		runs.Add(1)
	})
	defer job.Stop()

	require.Eventually(t, func() bool {
		return runs.Load() >= 3
	}, 5*time.Second, 5*time.Millisecond)
}

func TestPeriodicJobStop(t *testing.T) {
	var runs atomic.Int64
	job := startPeriodicJob("test", 10*time.Millisecond, inlinePost, func() {
		runs.Add(1)
	})

	require.Eventually(t, func() bool {
		return runs.Load() >= 1
	}, 5*time.Second, 5*time.Millisecond)

	job.Stop()
	settled := runs.Load()
	time.Sleep(50 * time.Millisecond)
	require.Equal(t, settled, runs.Load())
}

func TestPeriodicJobStopBeforeFirstRun(t *testing.T) {
	var runs atomic.Int64
	job := startPeriodicJob("test", 10*time.Millisecond, inlinePost, func() {
		runs.Add(1)
	})
	job.Stop()

	time.Sleep(50 * time.Millisecond)
	require.Equal(t, int64(0), runs.Load())
}

func TestPeriodicJobDroppedWhenLoopGone(t *testing.T) {
	var runs atomic.Int64
	deadPost := func(func()) bool { return false }

	job := startPeriodicJob("test", 5*time.Millisecond, deadPost, func() {
		runs.Add(1)
	})
	defer job.Stop()

	time.Sleep(50 * time.Millisecond)
	require.Equal(t, int64(0), runs.Load())
}

func TestInodeUnloadMaintenance(t *testing.T) {
	cfg := testConfig(t)
	cfg.Maintenance.InodeUnloadInterval = 20 * time.Millisecond
	cfg.Maintenance.InodeUnloadAge = 1 * time.Millisecond

	srv := New(cfg)
	stop := startServer(t, srv)

	mountCfg := filedirMountConfig(t, filepath.Join(t.TempDir(), "mnt"))
	require.NoError(t, srv.Mount(context.Background(), mountCfg))

	m, err := srv.registry.Get(mountCfg.Path)
	require.NoError(t, err)
	sm := m.(*storeMount)

	_, err = sm.GetObject(context.Background(), "obj1")
	require.NoError(t, err)
	require.Equal(t, 1, sm.LoadedInodes())

	// The periodic job unloads the inode once it passes the age cutoff.
	require.Eventually(t, func() bool {
		return sm.LoadedInodes() == 0
	}, 5*time.Second, 10*time.Millisecond)

	require.NoError(t, stop())
}

func TestWorkerPoolRunsTasks(t *testing.T) {
	pool := newWorkerPool(2)

	var runs atomic.Int64
	done := make(chan struct{})
	for i := 0; i < 8; i++ {
		pool.Submit(func() {
			if runs.Add(1) == 8 {
				close(done)
			}
		})
	}

	select {
	case <-done:
	case <-time.After(5 * time.Second):
		t.Fatal("tasks did not run")
	}

	require.NoError(t, pool.Close(context.Background()))
}

func TestWorkerPoolCloseWaitsForInflight(t *testing.T) {
	pool := newWorkerPool(1)

	release := make(chan struct{})
	var finished atomic.Bool
	pool.Submit(func() {
		<-release
		finished.Store(true)
	})

	go func() {
		time.Sleep(20 * time.Millisecond)
		close(release)
	}()

	require.NoError(t, pool.Close(context.Background()))
	require.True(t, finished.Load())
}

func TestWorkerPoolCloseBounded(t *testing.T) {
	pool := newWorkerPool(1)

	release := make(chan struct{})
	defer close(release)
	pool.Submit(func() { <-release })

	// A task that never yields must not block Close past the deadline.
	ctx, cancel := context.WithTimeout(context.Background(), 50*time.Millisecond)
	defer cancel()
	require.ErrorIs(t, pool.Close(ctx), context.DeadlineExceeded)
}

func TestWorkerPoolSubmitAfterCloseRunsInline(t *testing.T) {
	pool := newWorkerPool(1)
	require.NoError(t, pool.Close(context.Background()))

	ran := false
	pool.Submit(func() { ran = true })
	require.True(t, ran)
}
