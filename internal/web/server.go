package web

import (
	"context"
	"encoding/json"
	"log/slog"
	"net/http"
	"sort"
	"strings"
	"time"

	"github.com/rickgao/econcal/internal/auth"
	"github.com/rickgao/econcal/internal/batcher"
	"github.com/rickgao/econcal/internal/model"
	"github.com/rickgao/econcal/internal/surface"
	"github.com/rickgao/econcal/internal/version"
)

// SurfaceSource exposes one surface's latest snapshot.
type SurfaceSource interface {
	Name() string
	Snapshot() surface.Snapshot
}

// Querier answers range requests, normally *batcher.Batcher.
type Querier interface {
	Query(ctx context.Context, req batcher.Request) ([]model.Event, error)
}

// Pinger checks a backing store, e.g. *pgxpool.Pool.
type Pinger interface {
	Ping(ctx context.Context) error
}

// Config holds server configuration.
type Config struct {
	NowWindow    time.Duration // Window for POST /api/classify (default: 10m)
	MetricsPath  string        // Metrics route (default: /metrics)
	MaxBodyBytes int64         // Request body cap (default: 4MiB)
}

// DefaultConfig returns sensible defaults.
func DefaultConfig() Config {
	return Config{
		NowWindow:    10 * time.Minute,
		MetricsPath:  "/metrics",
		MaxBodyBytes: 4 << 20,
	}
}

// Option configures a Server.
type Option func(*Server)

// WithSurface registers a surface for /api/surfaces.
func WithSurface(s SurfaceSource) Option {
	return func(srv *Server) {
		srv.surfaces[strings.ToLower(s.Name())] = s
	}
}

// WithQuerier serves /api/events through q.
func WithQuerier(q Querier) Option {
	return func(srv *Server) { srv.querier = q }
}

// WithStream mounts the snapshot stream at /ws.
func WithStream(h http.Handler) Option {
	return func(srv *Server) { srv.stream = h }
}

// WithMetrics mounts the metrics handler at the configured path.
func WithMetrics(h http.Handler) Option {
	return func(srv *Server) { srv.metrics = h }
}

// WithVerifier requires signed requests on everything but /health and
// metrics.
func WithVerifier(v *auth.Verifier) Option {
	return func(srv *Server) { srv.verifier = v }
}

// WithDatabase adds a database check to /health.
func WithDatabase(p Pinger) Option {
	return func(srv *Server) { srv.db = p }
}

// WithClock overrides the wall clock.
func WithClock(now func() time.Time) Option {
	return func(srv *Server) {
		if now != nil {
			srv.now = now
		}
	}
}

// Server provides the HTTP API.
type Server struct {
	cfg    Config
	logger *slog.Logger
	mux    *http.ServeMux
	now    func() time.Time

	surfaces map[string]SurfaceSource
	querier  Querier
	stream   http.Handler
	metrics  http.Handler
	verifier *auth.Verifier
	db       Pinger
}

// NewServer constructs a new Server.
func NewServer(cfg Config, logger *slog.Logger, opts ...Option) *Server {
	if logger == nil {
		logger = slog.Default()
	}
	def := DefaultConfig()
	if cfg.NowWindow <= 0 {
		cfg.NowWindow = def.NowWindow
	}
	if cfg.MetricsPath == "" {
		cfg.MetricsPath = def.MetricsPath
	}
	if cfg.MaxBodyBytes <= 0 {
		cfg.MaxBodyBytes = def.MaxBodyBytes
	}
	s := &Server{
		cfg:      cfg,
		logger:   logger.With("component", "web"),
		mux:      http.NewServeMux(),
		now:      time.Now,
		surfaces: make(map[string]SurfaceSource),
	}
	for _, opt := range opts {
		opt(s)
	}
	s.registerRoutes()
	return s
}

// Handler returns the root handler.
func (s *Server) Handler() http.Handler {
	if s.verifier == nil {
		return s.mux
	}
	protected := s.verifier.Middleware(s.mux)
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path == "/health" || (s.metrics != nil && r.URL.Path == s.cfg.MetricsPath) {
			s.mux.ServeHTTP(w, r)
			return
		}
		protected.ServeHTTP(w, r)
	})
}

func (s *Server) registerRoutes() {
	s.mux.HandleFunc("GET /health", s.handleHealth)
	s.mux.HandleFunc("GET /api/surfaces", s.handleSurfaces)
	s.mux.HandleFunc("GET /api/surfaces/{name}", s.handleSurface)
	s.mux.HandleFunc("POST /api/classify", s.handleClassify)
	s.mux.HandleFunc("GET /api/countdown", s.handleCountdown)
	if s.querier != nil {
		s.mux.HandleFunc("GET /api/events", s.handleEvents)
	}
	if s.stream != nil {
		s.mux.Handle("GET /ws", s.stream)
	}
	if s.metrics != nil {
		s.mux.Handle("GET "+s.cfg.MetricsPath, s.metrics)
	}
}

func (s *Server) sortedSurfaces() []SurfaceSource {
	names := make([]string, 0, len(s.surfaces))
	for name := range s.surfaces {
		names = append(names, name)
	}
	sort.Strings(names)
	out := make([]SurfaceSource, len(names))
	for i, name := range names {
		out[i] = s.surfaces[name]
	}
	return out
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), 5*time.Second)
	defer cancel()

	health := struct {
		Status     string         `json:"status"`
		Version    version.Info   `json:"version"`
		Components map[string]any `json:"components"`
	}{
		Status:     "healthy",
		Version:    version.Get(),
		Components: make(map[string]any),
	}

	if s.db != nil {
		if err := s.db.Ping(ctx); err != nil {
			health.Status = "unhealthy"
			health.Components["database"] = map[string]string{
				"status": "disconnected",
				"error":  err.Error(),
			}
		} else {
			health.Components["database"] = "connected"
		}
	}

	surfaces := make(map[string]any, len(s.surfaces))
	for _, src := range s.sortedSurfaces() {
		snap := src.Snapshot()
		state := map[string]any{"rows": len(snap.Rows)}
		if snap.LastError != "" {
			state["error"] = snap.LastError
			if health.Status == "healthy" {
				health.Status = "degraded"
			}
		}
		surfaces[src.Name()] = state
	}
	health.Components["surfaces"] = surfaces

	status := http.StatusOK
	if health.Status == "unhealthy" {
		status = http.StatusServiceUnavailable
	}
	writeJSON(w, status, health)
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json; charset=utf-8")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		slog.Default().Warn("failed to write JSON response", "error", err)
	}
}

func writeError(w http.ResponseWriter, status int, msg string) {
	type errResp struct {
		Error string `json:"error"`
	}
	writeJSON(w, status, errResp{Error: msg})
}
