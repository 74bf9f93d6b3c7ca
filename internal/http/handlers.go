package httpapi

import (
	"encoding/json"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"

	"driftpursuit/netsync/internal/logging"
	"driftpursuit/netsync/internal/replay"
)

// ReadinessProvider exposes server state required for readiness checks.
type ReadinessProvider interface {
	Peers() int
	StartupError() error
	Uptime() time.Duration
}

// RateLimiter gates how frequently websocket upgrades may be accepted. *rate.Limiter
// satisfies it.
type RateLimiter interface {
	Allow() bool
}

// ReplayStats reports recording progress and on-disk retention.
type ReplayStats struct {
	Recording replay.Stats
	Storage   replay.StorageStats
}

// Options configures the router.
type Options struct {
	Logger    *logging.Logger
	Readiness ReadinessProvider
	// Metrics serves /metrics; nil leaves the route unregistered.
	Metrics http.Handler
	// Socket upgrades /ws requests; nil leaves the route unregistered.
	Socket         http.Handler
	UpgradeLimiter RateLimiter
	ReplayStats    func() ReplayStats
	TimeSource     func() time.Time
	// CORSOrigins allows browser dashboards on other origins to poll the read-only routes.
	CORSOrigins []string
}

// HandlerSet bundles the operational handlers served next to the websocket endpoint.
type HandlerSet struct {
	logger      *logging.Logger
	readiness   ReadinessProvider
	metrics     http.Handler
	socket      http.Handler
	limiter     RateLimiter
	replayStats func() ReplayStats
	now         func() time.Time
}

// NewHandlerSet constructs a HandlerSet using the provided options.
func NewHandlerSet(opts Options) *HandlerSet {
	logger := opts.Logger
	if logger == nil {
		logger = logging.L()
	}
	now := opts.TimeSource
	if now == nil {
		now = time.Now
	}
	return &HandlerSet{
		logger:      logger,
		readiness:   opts.Readiness,
		metrics:     opts.Metrics,
		socket:      opts.Socket,
		limiter:     opts.UpgradeLimiter,
		replayStats: opts.ReplayStats,
		now:         now,
	}
}

// NewRouter returns a chi router serving every handler in opts.
func NewRouter(opts Options) http.Handler {
	h := NewHandlerSet(opts)
	r := chi.NewRouter()
	r.Use(middleware.Recoverer)
	r.Use(logging.HTTPTraceMiddleware(h.logger))
	if len(opts.CORSOrigins) > 0 {
		r.Use(cors.Handler(cors.Options{
			AllowedOrigins: opts.CORSOrigins,
			AllowedMethods: []string{http.MethodGet, http.MethodOptions},
			AllowedHeaders: []string{"*"},
			ExposedHeaders: []string{logging.TraceIDHeader},
			MaxAge:         300,
		}))
	}
	h.Register(r)
	return r
}

// Register attaches all handlers to the provided router.
func (h *HandlerSet) Register(r chi.Router) {
	if r == nil {
		return
	}
	r.Get("/healthz", h.LivenessHandler())
	r.Get("/readyz", h.ReadinessHandler())
	if h.metrics != nil {
		r.Method(http.MethodGet, "/metrics", h.metrics)
	}
	if h.replayStats != nil {
		r.Get("/replay/stats", h.ReplayStatsHandler())
	}
	if h.socket != nil {
		r.Get("/ws", h.SocketHandler())
	}
}

// LivenessHandler reports that the HTTP server is reachable.
func (h *HandlerSet) LivenessHandler() http.HandlerFunc {
	type response struct {
		Status    string `json:"status"`
		Timestamp string `json:"timestamp"`
	}
	return func(w http.ResponseWriter, r *http.Request) {
		writeJSON(w, http.StatusOK, response{
			Status:    "alive",
			Timestamp: h.now().UTC().Format(time.RFC3339Nano),
		})
	}
}

// ReadinessHandler reports whether the frame loop came up and how many peers are attached.
func (h *HandlerSet) ReadinessHandler() http.HandlerFunc {
	type response struct {
		Status        string  `json:"status"`
		Message       string  `json:"message,omitempty"`
		UptimeSeconds float64 `json:"uptime_seconds"`
		Peers         int     `json:"peers"`
	}
	return func(w http.ResponseWriter, r *http.Request) {
		status := http.StatusOK
		resp := response{Status: "ok"}
		if h.readiness != nil {
			resp.Peers = h.readiness.Peers()
			resp.UptimeSeconds = h.readiness.Uptime().Seconds()
			if err := h.readiness.StartupError(); err != nil {
				status = http.StatusServiceUnavailable
				resp.Status = "error"
				resp.Message = err.Error()
			}
		}
		writeJSON(w, status, resp)
	}
}

// ReplayStatsHandler reports the recorder counters and the retained sessions.
func (h *HandlerSet) ReplayStatsHandler() http.HandlerFunc {
	type response struct {
		Events    int64  `json:"events"`
		Frames    int64  `json:"frames"`
		Bytes     int64  `json:"bytes"`
		Skipped   int64  `json:"skipped"`
		Errors    int64  `json:"errors"`
		Sessions  int    `json:"sessions"`
		DiskBytes int64  `json:"disk_bytes"`
		LastSweep string `json:"last_sweep,omitempty"`
	}
	return func(w http.ResponseWriter, r *http.Request) {
		stats := h.replayStats()
		resp := response{
			Events:    stats.Recording.Events,
			Frames:    stats.Recording.Frames,
			Bytes:     stats.Recording.Bytes,
			Skipped:   stats.Recording.Skipped,
			Errors:    stats.Recording.Errors,
			Sessions:  stats.Storage.Sessions,
			DiskBytes: stats.Storage.Bytes,
		}
		if !stats.Storage.LastSweep.IsZero() {
			resp.LastSweep = stats.Storage.LastSweep.UTC().Format(time.RFC3339Nano)
		}
		writeJSON(w, http.StatusOK, resp)
	}
}

// SocketHandler hands websocket upgrades to the transport host unless the limiter refuses.
func (h *HandlerSet) SocketHandler() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if h.limiter != nil && !h.limiter.Allow() {
			logging.LoggerFromContext(r.Context()).Warn("websocket upgrade denied: rate limit exceeded",
				logging.String("remote_addr", r.RemoteAddr),
			)
			http.Error(w, "too many requests", http.StatusTooManyRequests)
			return
		}
		h.socket.ServeHTTP(w, r)
	}
}

func writeJSON(w http.ResponseWriter, status int, payload any) {
	w.Header().Set("Content-Type", "application/json")
	if status != http.StatusOK {
		w.WriteHeader(status)
	}
	_ = json.NewEncoder(w).Encode(payload)
}
