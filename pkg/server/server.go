// Package server implements the daemon core: it owns the instance lock,
// the backing store cache, the mount registry, and the periodic
// maintenance jobs, and drives them through a single main loop.
package server

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/google/uuid"
	"golang.org/x/sync/errgroup"

	"github.com/marmos91/driftfs/internal/logger"
	"github.com/marmos91/driftfs/internal/privhelper"
	"github.com/marmos91/driftfs/pkg/api"
	"github.com/marmos91/driftfs/pkg/config"
	"github.com/marmos91/driftfs/pkg/lock"
	"github.com/marmos91/driftfs/pkg/metrics"
	"github.com/marmos91/driftfs/pkg/mount"
	"github.com/marmos91/driftfs/pkg/store"
	"github.com/marmos91/driftfs/pkg/store/filedir"
	"github.com/marmos91/driftfs/pkg/store/s3"
)

// ErrShuttingDown is returned by management operations once shutdown has
// begun.
var ErrShuttingDown = errors.New("server is shutting down")

const (
	// defaultWorkerCount sizes the background worker pool used for
	// mount teardowns.
	defaultWorkerCount = 4

	// startupMountParallelism bounds how many configured mounts are
	// brought up concurrently at startup.
	startupMountParallelism = 4
)

// Server is the daemon core. Lifecycle:
//
//	srv := server.New(cfg)
//	if err := srv.Prepare(ctx); err != nil { ... }
//	err := srv.Serve(ctx)   // blocks until ctx cancel or Stop
//
// Prepare acquires the single-instance lock, opens the local store,
// connects the privileged helper, and brings up all configured mounts.
// Serve runs the main loop and the management API until shutdown, then
// tears everything down in reverse order of acquisition.
type Server struct {
	cfg *config.Config

	lock          *lock.Lock
	local         *store.LocalStore
	stores        *store.Cache
	registry      *mount.Registry
	serverMetrics *metrics.ServerMetrics
	helper        *privhelper.Client
	apiServer     *api.Server
	workers       *workerPool

	// storeConfigs remembers the StoreConfig for every (kind, name)
	// pair seen, so the cache factory can construct stores on demand.
	storeConfigsMu sync.Mutex
	storeConfigs   map[store.Key]config.StoreConfig

	tasks      chan func()
	loopClosed chan struct{}
	doneServe  chan struct{}

	jobsMu sync.Mutex
	jobs   []*periodicJob

	startedAt time.Time
	sessionID string

	stateMu  sync.Mutex
	prepared bool

	stopping chan struct{}
	stopOnce sync.Once

	stopRequested chan struct{}
	stopReqOnce   sync.Once
	serveOnce     sync.Once

	// newMount builds the mount for a path and backing store. Tests
	// replace it to inject failing or slow mounts.
	newMount func(path string, backing store.BackingStore) mount.Mount
}

// New creates a server for the given configuration. Call Prepare before
// Serve.
func New(cfg *config.Config) *Server {
	s := &Server{
		cfg:           cfg,
		storeConfigs:  make(map[store.Key]config.StoreConfig),
		tasks:         make(chan func(), 64),
		loopClosed:    make(chan struct{}),
		doneServe:     make(chan struct{}),
		stopping:      make(chan struct{}),
		stopRequested: make(chan struct{}),
		startedAt:     time.Now(),
		sessionID:     uuid.NewString(),
	}
	s.newMount = func(path string, backing store.BackingStore) mount.Mount {
		return newStoreMount(path, backing, s.helper)
	}
	return s
}

// Prepare acquires resources and brings up all configured mounts.
//
// Mounts are attached concurrently; a mount that fails to come up is
// logged and skipped so one bad store does not keep the daemon down.
// Any error acquiring core resources releases everything acquired so
// far before returning.
func (s *Server) Prepare(ctx context.Context) error {
	s.stateMu.Lock()
	defer s.stateMu.Unlock()

	if s.prepared {
		return fmt.Errorf("server already prepared")
	}

	ok := false
	defer func() {
		if !ok {
			s.releaseResources()
		}
	}()

	if err := os.MkdirAll(s.cfg.DataDir, 0755); err != nil {
		return fmt.Errorf("failed to create data directory: %w", err)
	}

	l, err := lock.Acquire(s.cfg.DataDir)
	if err != nil {
		return fmt.Errorf("failed to acquire instance lock: %w", err)
	}
	s.lock = l

	local, err := store.OpenLocalStore(filepath.Join(s.cfg.DataDir, "objects"))
	if err != nil {
		return fmt.Errorf("failed to open local store: %w", err)
	}
	s.local = local

	if s.cfg.Metrics.Enabled {
		metrics.InitRegistry()
	}
	s.serverMetrics = metrics.NewServerMetrics()

	if s.cfg.PrivHelper.SocketPath != "" {
		helper, err := privhelper.Connect(ctx, privhelper.Config{
			SocketPath:     s.cfg.PrivHelper.SocketPath,
			ConnectTimeout: s.cfg.PrivHelper.ConnectTimeout,
		})
		if err != nil {
			return fmt.Errorf("failed to connect privileged helper: %w", err)
		}
		s.helper = helper

		if logFile := s.cfg.PrivHelper.LogFile; logFile != "" {
			if err := helper.SetLogFile(ctx, logFile); err != nil {
				logger.Warn("failed to redirect helper log", "log_file", logFile, "error", err)
			}
		}
	}

	s.stores = store.NewCache(s.createStore)
	s.workers = newWorkerPool(defaultWorkerCount)
	s.registry = mount.NewRegistry(mount.WithRunner(s.workers.Submit))

	if s.cfg.API.Enabled {
		s.apiServer = api.NewServer(s.cfg.API, s, s.cfg.Metrics.Enabled)
	}

	s.remountAll(ctx)

	s.prepared = true
	ok = true

	logger.Info("server prepared",
		"data_dir", s.cfg.DataDir,
		"mounts", s.registry.Count())
	return nil
}

// remountAll brings up all configured mounts concurrently. Failures are
// logged per mount and do not abort startup.
func (s *Server) remountAll(ctx context.Context) {
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(startupMountParallelism)

	for _, mountCfg := range s.cfg.Mounts {
		mountCfg := mountCfg
		g.Go(func() error {
			if err := s.Mount(gctx, mountCfg); err != nil {
				logger.Error("failed to mount at startup",
					"path", mountCfg.Path, "error", err)
			}
			return nil
		})
	}

	_ = g.Wait()
}

// createStore is the backing store cache factory. The config for the
// (kind, name) pair must have been registered by a mount operation.
func (s *Server) createStore(ctx context.Context, kind, name string) (store.BackingStore, error) {
	s.storeConfigsMu.Lock()
	storeCfg, found := s.storeConfigs[store.Key{Kind: kind, Name: name}]
	s.storeConfigsMu.Unlock()
	if !found {
		return nil, fmt.Errorf("no configuration for store %s:%s", kind, name)
	}

	switch kind {
	case "s3":
		return s3.NewFromConfig(ctx, s.local, s3.Config{
			Bucket:          name,
			Region:          storeCfg.S3.Region,
			Endpoint:        storeCfg.S3.Endpoint,
			KeyPrefix:       storeCfg.S3.KeyPrefix,
			ForcePathStyle:  storeCfg.S3.ForcePathStyle,
			AccessKeyID:     storeCfg.S3.AccessKeyID,
			SecretAccessKey: storeCfg.S3.SecretAccessKey,
		})
	case "filedir":
		return filedir.New(name, storeCfg.Root)
	default:
		return nil, fmt.Errorf("unknown store kind %q", kind)
	}
}

func (s *Server) registerStoreConfig(storeCfg config.StoreConfig) {
	s.storeConfigsMu.Lock()
	s.storeConfigs[store.Key{Kind: storeCfg.Kind, Name: storeCfg.Name}] = storeCfg
	s.storeConfigsMu.Unlock()
}

// Mount brings up a mount point. Implements api.Controller.
func (s *Server) Mount(ctx context.Context, mountCfg config.MountConfig) error {
	if s.isStopping() {
		return ErrShuttingDown
	}

	s.registerStoreConfig(mountCfg.Store)

	backing, err := s.stores.GetOrCreate(ctx, mountCfg.Store.Kind, mountCfg.Store.Name)
	if err != nil {
		s.serverMetrics.RecordMountOperation("mount", err)
		return fmt.Errorf("failed to get backing store for %s: %w", mountCfg.Path, err)
	}

	err = s.registry.Mount(ctx, s.newMount(mountCfg.Path, backing))
	s.serverMetrics.RecordMountOperation("mount", err)
	if err != nil {
		return err
	}

	s.serverMetrics.SetActiveMounts(s.registry.Count())
	return nil
}

// Unmount tears down a mount point and waits for the teardown to finish
// or the context to expire. Implements api.Controller.
func (s *Server) Unmount(ctx context.Context, path string) error {
	if s.isStopping() {
		return ErrShuttingDown
	}

	completion, err := s.registry.Unmount(ctx, path)
	if err != nil {
		s.serverMetrics.RecordMountOperation("unmount", err)
		return err
	}

	err = completion.Wait(ctx)
	s.serverMetrics.RecordMountOperation("unmount", err)
	s.serverMetrics.SetActiveMounts(s.registry.Count())
	return err
}

// ListMounts returns all registered mounts. Implements api.Controller.
func (s *Server) ListMounts() []mount.Info {
	return s.registry.List()
}

// Status reports daemon status. Implements api.Controller.
func (s *Server) Status() api.Status {
	return api.Status{
		PID:        os.Getpid(),
		SessionID:  s.sessionID,
		StartedAt:  s.startedAt.UTC(),
		Uptime:     time.Since(s.startedAt).Round(time.Second).String(),
		MountCount: s.registry.Count(),
	}
}

// Serve runs the main loop until the context is cancelled, Stop is
// called, or the management API fails. It then performs the full
// shutdown sequence before returning.
func (s *Server) Serve(ctx context.Context) error {
	var err error
	s.serveOnce.Do(func() {
		err = s.serve(ctx)
	})
	return err
}

func (s *Server) serve(ctx context.Context) error {
	defer close(s.doneServe)

	s.stateMu.Lock()
	prepared := s.prepared
	s.stateMu.Unlock()
	if !prepared {
		return fmt.Errorf("server not prepared")
	}

	logger.Info("starting driftfs server", "session_id", s.sessionID)

	apiCtx, cancelAPI := context.WithCancel(context.Background())
	defer cancelAPI()

	apiErrChan := make(chan error, 1)
	if s.apiServer != nil {
		go func() {
			if err := s.apiServer.Start(apiCtx); err != nil {
				logger.Error("management API error", "error", err)
				apiErrChan <- err
			}
		}()
	}

	s.startMaintenance()

	serveErr := s.runLoop(ctx, apiErrChan)

	s.shutdown()

	logger.Info("driftfs server stopped")
	return serveErr
}

// runLoop executes posted tasks until shutdown is requested.
func (s *Server) runLoop(ctx context.Context, apiErrChan <-chan error) error {
	defer close(s.loopClosed)

	for {
		select {
		case task := <-s.tasks:
			task()
		case <-ctx.Done():
			logger.Info("shutdown signal received", "reason", ctx.Err())
			return ctx.Err()
		case <-s.stopRequested:
			logger.Info("stop requested")
			return nil
		case err := <-apiErrChan:
			logger.Error("management API failed, shutting down", "error", err)
			return fmt.Errorf("management API error: %w", err)
		}
	}
}

// post hands a task to the main loop. Returns false once the loop has
// exited.
func (s *Server) post(task func()) bool {
	select {
	case <-s.loopClosed:
		return false
	case s.tasks <- task:
		return true
	}
}

// Stop requests shutdown and blocks until Serve has finished the full
// teardown. Safe to call multiple times.
func (s *Server) Stop() {
	s.stopReqOnce.Do(func() {
		close(s.stopRequested)
	})
	<-s.doneServe
}

func (s *Server) isStopping() bool {
	select {
	case <-s.stopping:
		return true
	default:
		return false
	}
}

// startMaintenance schedules the periodic jobs on the main loop.
func (s *Server) startMaintenance() {
	s.jobsMu.Lock()
	defer s.jobsMu.Unlock()

	s.jobs = append(s.jobs, startPeriodicJob(
		"stats_flush", s.cfg.Maintenance.StatsFlushInterval, s.post, s.flushStats))

	if interval := s.cfg.Maintenance.InodeUnloadInterval; interval > 0 {
		s.jobs = append(s.jobs, startPeriodicJob(
			"inode_unload", interval, s.post, s.unloadInodes))
	}
}

func (s *Server) stopMaintenance() {
	s.jobsMu.Lock()
	defer s.jobsMu.Unlock()

	for _, job := range s.jobs {
		job.Stop()
	}
	s.jobs = nil
}

// flushStats publishes staged metrics. Runs on the main loop.
func (s *Server) flushStats() {
	s.serverMetrics.FlushNow()
}

// unloadInodes drops idle inodes from every mounted filesystem. Runs on
// the main loop.
func (s *Server) unloadInodes() {
	cutoff := time.Now().Add(-s.cfg.Maintenance.InodeUnloadAge)

	total := 0
	for _, m := range s.registry.Mounted() {
		unloaded := m.UnloadInodes(cutoff)
		s.serverMetrics.AddUnloadedInodes(m.Path(), unloaded)
		total += unloaded
	}
	s.serverMetrics.RecordUnloadPass()

	if total > 0 {
		logger.Info("unloaded idle inodes", "count", total)
	}
}

// shutdown tears everything down:
//
//  1. stop management intake (API and direct calls reject new work)
//  2. unmount all filesystems, waiting for teardowns
//  3. cancel periodic maintenance
//  4. release backing stores and the local store
//  5. disconnect the privileged helper
//  6. release the instance lock
func (s *Server) shutdown() {
	s.stopOnce.Do(func() {
		close(s.stopping)

		if s.apiServer != nil {
			stopCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
			if err := s.apiServer.Stop(stopCtx); err != nil {
				logger.Error("management API shutdown error", "error", err)
			}
			cancel()
		}

		unmountCtx, cancel := context.WithTimeout(context.Background(), s.cfg.ShutdownTimeout)
		if err := s.registry.UnmountAll(unmountCtx); err != nil {
			logger.Error("errors while unmounting", "error", err)
		}

		s.stopMaintenance()

		if err := s.workers.Close(unmountCtx); err != nil {
			logger.Warn("worker pool still draining, proceeding with teardown", "error", err)
		}
		cancel()

		s.releaseResources()
	})
}

// releaseResources closes stores, the helper connection, and the lock.
// Used both by shutdown and by Prepare on failure, so every field is
// checked for nil.
func (s *Server) releaseResources() {
	if s.stores != nil {
		if err := s.stores.CloseAll(); err != nil {
			logger.Error("errors while closing backing stores", "error", err)
		}
		s.stores = nil
	}

	if s.local != nil {
		if err := s.local.Close(); err != nil {
			logger.Error("failed to close local store", "error", err)
		}
		s.local = nil
	}

	if s.helper != nil {
		if err := s.helper.Close(); err != nil {
			logger.Error("failed to close helper connection", "error", err)
		}
		s.helper = nil
	}

	if s.lock != nil {
		if err := s.lock.Release(); err != nil {
			logger.Error("failed to release instance lock", "error", err)
		}
		s.lock = nil
	}
}
