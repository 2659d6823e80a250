// Package server exposes a running kernel over a JSON monitor API.
package server

import (
	"log/slog"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"

	"github.com/me/pmcore/internal/config"
	"github.com/me/pmcore/internal/store"
	"github.com/me/pmcore/internal/ui"
	"github.com/me/pmcore/pkg/model"
)

// Kernel is the part of a kernel the monitor drives.
type Kernel interface {
	Stats() model.KernelStats
	Processes() []model.ProcessInfo
	Process(pid int) (model.ProcessInfo, error)
	ForkFrom(pid int) (int, error)
	Resume(pid int) error
	Signal(pid int, sig model.Signal) error
	SetAlarm(pid int, n uint64) (uint64, error)
	SetNice(pid, nice int) error
	Stop() (int, error)
	Tick()
}

// Server is the pmcore monitor API server.
type Server struct {
	router      chi.Router
	logger      *slog.Logger
	config      config.Config
	startTime   time.Time
	kernel      Kernel
	store       store.Store // optional; run history endpoints answer 503 without it
	runID       string      // run the live kernel records into, if any
	sseInterval time.Duration
	ui          *ui.UI // HTML pages over the same kernel and store
}

// Option configures optional Server dependencies.
type Option func(*Server)

// WithStore enables the run history endpoints.
func WithStore(st store.Store) Option {
	return func(s *Server) {
		s.store = st
	}
}

// WithRunID names the run the live kernel is recording.
func WithRunID(id string) Option {
	return func(s *Server) {
		s.runID = id
	}
}

// WithSSEInterval sets how often the process stream polls the kernel.
func WithSSEInterval(d time.Duration) Option {
	return func(s *Server) {
		s.sseInterval = d
	}
}

// New creates a new Server with all routes registered.
func New(cfg config.Config, k Kernel, logger *slog.Logger, opts ...Option) *Server {
	s := &Server{
		router:      chi.NewRouter(),
		logger:      logger.With("component", "server"),
		config:      cfg,
		startTime:   time.Now(),
		kernel:      k,
		sseInterval: time.Second,
	}
	for _, opt := range opts {
		opt(s)
	}
	s.ui = ui.New(k, s.store, s.runID, logger)
	s.routes()
	return s
}

// ServeHTTP implements http.Handler.
func (s *Server) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	s.router.ServeHTTP(w, r)
}

// Handler returns the http.Handler for this server.
func (s *Server) Handler() http.Handler {
	return s.router
}

func (s *Server) routes() {
	r := s.router

	r.Use(middleware.RealIP)
	r.Use(middleware.Recoverer)
	r.Use(requestIDMiddleware)
	r.Use(loggingMiddleware(s.logger))

	// UI routes (HTML)
	s.ui.RegisterRoutes(r)

	r.Route("/api/v1", func(r chi.Router) {
		r.Get("/", s.handleDiscovery)
		r.Get("/health", s.handleHealth)
		r.Get("/stats", s.handleStats)

		r.Route("/procs", func(r chi.Router) {
			r.Get("/", s.handleListProcs)
			r.Route("/{pid}", func(r chi.Router) {
				r.Get("/", s.handleGetProc)
				r.Group(func(r chi.Router) {
					r.Use(controlAuthMiddleware(s.config.ControlKey, s.logger))
					r.Post("/fork", s.handleFork)
					r.Post("/resume", s.handleResume)
					r.Post("/signal", s.handleSignal)
					r.Post("/alarm", s.handleAlarm)
					r.Post("/nice", s.handleNice)
				})
			})
		})

		r.Group(func(r chi.Router) {
			r.Use(controlAuthMiddleware(s.config.ControlKey, s.logger))
			r.Post("/stop", s.handleStop)
			r.Post("/tick", s.handleTick)
		})

		r.Route("/runs", func(r chi.Router) {
			r.Get("/", s.handleListRuns)
			r.Route("/{id}", func(r chi.Router) {
				r.Get("/", s.handleGetRun)
				r.Get("/events", s.handleListEvents)
			})
		})

		r.Route("/sse", func(r chi.Router) {
			r.Get("/procs", s.handleSSEProcs)
		})
	})
}
