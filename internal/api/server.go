// Package api serves the HTTP surface: the MJPEG live feed, single-shot
// capture, the static health echo, live status and Prometheus metrics.
package api

import (
	"context"
	"net"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/prometheus/client_golang/prometheus"

	"github.com/bft-labs/knockcam/internal/app"
	"github.com/bft-labs/knockcam/internal/clock"
	"github.com/bft-labs/knockcam/internal/metrics"
	"github.com/bft-labs/knockcam/internal/ports"
)

// StatusSource reports the live watcher state. *app.Watcher implements it.
type StatusSource interface {
	Snapshot() app.WatcherSnapshot
}

// Config contains what the handlers echo back to clients.
type Config struct {
	BackendURL string
	Sensor     string
	Version    string
}

// Deps are the collaborators behind the routes. Metrics and Gatherer may
// be nil; Status may be nil when no watcher runs.
type Deps struct {
	Capturer        *app.Capturer
	Frames          *app.FrameSource
	Status          StatusSource
	CameraAvailable bool
	Metrics         *metrics.Metrics
	Gatherer        prometheus.Gatherer
	Clock           clock.Clock
}

// Server routes requests to the handlers.
type Server struct {
	config    Config
	deps      Deps
	logger    ports.Logger
	router    chi.Router
	startedAt time.Time
}

// New builds the router.
func New(config Config, deps Deps, logger ports.Logger) *Server {
	if deps.Clock == nil {
		deps.Clock = clock.Real()
	}
	s := &Server{
		config:    config,
		deps:      deps,
		logger:    logger,
		startedAt: deps.Clock.Now(),
	}

	r := chi.NewRouter()
	r.Use(middleware.Recoverer)
	r.Use(requestID)
	r.Use(cors)

	r.Get("/video_feed", s.instrument("video_feed", s.handleVideoFeed))
	r.Post("/capture", s.instrument("capture", s.handleCapture))
	r.Get("/health", s.instrument("health", s.handleHealth))
	r.Get("/status", s.instrument("status", s.handleStatus))
	r.Method(http.MethodGet, "/metrics", metrics.Handler(deps.Gatherer))
	s.router = r

	return s
}

// ServeHTTP implements http.Handler.
func (s *Server) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	s.router.ServeHTTP(w, r)
}

// NewHTTPServer wraps handler in an *http.Server listening on addr. There
// is no write timeout because the live feed never ends on its own; instead
// Shutdown cancels every request context so open feeds end promptly.
func NewHTTPServer(addr string, handler http.Handler) *http.Server {
	base, cancel := context.WithCancel(context.Background())
	srv := &http.Server{
		Addr:              addr,
		Handler:           handler,
		ReadHeaderTimeout: 10 * time.Second,
		IdleTimeout:       120 * time.Second,
		BaseContext:       func(net.Listener) context.Context { return base },
	}
	srv.RegisterOnShutdown(cancel)
	return srv
}
