package service

import (
	"context"
	"fmt"
	"log"
	"net/http"
	"sync"
	"time"

	"github.com/bhoyee/IncidentPulse-sub000/maintenance"
	"github.com/bhoyee/IncidentPulse-sub000/models"
	"github.com/bhoyee/IncidentPulse-sub000/monitor"
	"github.com/bhoyee/IncidentPulse-sub000/status"
	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
)

// OrgHeader carries the caller's organization. Authentication happens upstream.
const OrgHeader = "X-Organization-Id"

// SettingsWriter persists trigger settings
type SettingsWriter interface {
	PutTriggerSettings(ctx context.Context, orgID string, settings models.TriggerSettings) error
}

// SettingsPublisher tells other instances that an organization's settings changed
type SettingsPublisher interface {
	SettingsUpdated(ctx context.Context, orgID string) error
}

// Pinger is a dependency /health checks on every call
type Pinger interface {
	Ping(ctx context.Context) error
}

// Server exposes ingestion, status, maintenance and settings over HTTP
type Server struct {
	port      string
	isRunning bool
	mu        sync.RWMutex
	server    *http.Server

	evaluator   *monitor.Evaluator
	status      *status.Cache
	maintenance *maintenance.Service
	settings    *monitor.SettingsCache
	writer      SettingsWriter
	publisher   SettingsPublisher
	checks      map[string]Pinger
}

// Deps groups what the handlers call into
type Deps struct {
	Evaluator   *monitor.Evaluator
	Status      *status.Cache
	Maintenance *maintenance.Service
	Settings    *monitor.SettingsCache
	Writer      SettingsWriter
	// Publisher is optional
	Publisher   SettingsPublisher
	// Checks are reported by /health under their key
	Checks      map[string]Pinger
}

func NewServer(port string, deps Deps) *Server {
	return &Server{
		port:        port,
		evaluator:   deps.Evaluator,
		status:      deps.Status,
		maintenance: deps.Maintenance,
		settings:    deps.Settings,
		writer:      deps.Writer,
		publisher:   deps.Publisher,
		checks:      deps.Checks,
	}
}

// Handler builds the router with middleware and every route mounted
func (s *Server) Handler() http.Handler {
	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(middleware.Recoverer)
	r.Use(middleware.Timeout(30 * time.Second))

	r.Get("/health", s.handleHealth)
	s.RegisterRoutes(r)
	return r
}

// Start starts listening in the background
func (s *Server) Start() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.isRunning {
		return fmt.Errorf("server already running")
	}

	s.server = &http.Server{
		Addr:              ":" + s.port,
		Handler:           s.Handler(),
		ReadHeaderTimeout: 5 * time.Second,
		ReadTimeout:       15 * time.Second,
		WriteTimeout:      45 * time.Second,
		IdleTimeout:       60 * time.Second,
	}
	s.isRunning = true

	go func() {
		log.Printf("[SERVER] Starting on port %s\n", s.port)
		if err := s.server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Printf("[SERVER] Error: %v\n", err)
		}
	}()

	return nil
}

// Stop drains in-flight requests and shuts the listener down
func (s *Server) Stop(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if !s.isRunning {
		return nil
	}
	s.isRunning = false

	log.Println("[SERVER] Shutting down")
	return s.server.Shutdown(ctx)
}
