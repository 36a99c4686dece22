package api

import (
	"context"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"

	"github.com/marmos91/driftfs/internal/logger"
	"github.com/marmos91/driftfs/pkg/config"
	"github.com/marmos91/driftfs/pkg/metrics"
	"github.com/marmos91/driftfs/pkg/mount"
)

// Controller is the daemon surface the management API drives. It is
// implemented by the server core.
type Controller interface {
	// ListMounts returns all registered mount points and their states.
	ListMounts() []mount.Info

	// Mount brings up a new mount point.
	Mount(ctx context.Context, cfg config.MountConfig) error

	// Unmount tears down the mount at the given path, waiting for the
	// teardown to finish or the context to expire.
	Unmount(ctx context.Context, path string) error

	// Status reports daemon status.
	Status() Status
}

// Status is the daemon status payload served by GET /api/v1/status.
type Status struct {
	PID        int       `json:"pid"`
	SessionID  string    `json:"session_id"`
	StartedAt  time.Time `json:"started_at"`
	Uptime     string    `json:"uptime"`
	MountCount int       `json:"mount_count"`
}

// NewRouter creates and configures the chi router with all middleware and routes.
//
// Routes:
//   - GET    /health             - Liveness probe
//   - GET    /metrics            - Prometheus metrics (when enabled)
//   - GET    /api/v1/status      - Daemon status
//   - GET    /api/v1/mounts      - List mounts
//   - POST   /api/v1/mounts      - Create a mount
//   - DELETE /api/v1/mounts      - Remove a mount (path in request body)
func NewRouter(controller Controller, metricsEnabled bool) http.Handler {
	r := chi.NewRouter()

	// Middleware stack - order matters
	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(requestLogger)
	r.Use(middleware.Recoverer)
	r.Use(middleware.Timeout(30 * time.Second))

	r.Get("/health", func(w http.ResponseWriter, _ *http.Request) {
		JSON(w, http.StatusOK, HealthyResponse(nil))
	})

	if metricsEnabled {
		r.Method(http.MethodGet, "/metrics", metrics.Handler())
	}

	mountsHandler := newMountsHandler(controller)
	r.Route("/api/v1", func(r chi.Router) {
		r.Get("/status", mountsHandler.status)
		r.Route("/mounts", func(r chi.Router) {
			r.Get("/", mountsHandler.list)
			r.Post("/", mountsHandler.create)
			r.Delete("/", mountsHandler.remove)
		})
	})

	// Root redirect to health for convenience
	r.Get("/", func(w http.ResponseWriter, r *http.Request) {
		http.Redirect(w, r, "/health", http.StatusTemporaryRedirect)
	})

	return r
}

// requestLogger is a custom middleware that logs requests using the internal logger.
func requestLogger(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		requestID := middleware.GetReqID(r.Context())

		logger.Debug("API request started",
			"request_id", requestID,
			"method", r.Method,
			"path", r.URL.Path,
			"remote_addr", r.RemoteAddr,
		)

		// Wrap response writer to capture status code
		ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)

		next.ServeHTTP(ww, r)

		logger.Info("API request completed",
			"request_id", requestID,
			"method", r.Method,
			"path", r.URL.Path,
			"status", ww.Status(),
			"duration", time.Since(start),
		)
	})
}
