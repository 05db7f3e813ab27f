package api

import (
	"context"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/vectorq/taskqueue/internal/api/handlers"
	apiMiddleware "github.com/vectorq/taskqueue/internal/api/middleware"
	"github.com/vectorq/taskqueue/internal/api/websocket"
	"github.com/vectorq/taskqueue/internal/config"
	"github.com/vectorq/taskqueue/internal/coordination"
	"github.com/vectorq/taskqueue/internal/events"
	"github.com/vectorq/taskqueue/internal/task"
)

// Server is the status/observability HTTP surface: the read-only task and
// worker views plus the pause/resume/retry admin actions, all backed by the
// same etcd keyspace the CLI and workers use.
type Server struct {
	router       *chi.Mux
	client       *coordination.Client
	config       *config.Config
	taskHandler  *handlers.TaskHandler
	adminHandler *handlers.AdminHandler
	wsHub        *websocket.Hub
	wsHandler    *websocket.Handler
	bridge       *events.Bridge
}

// NewServer creates a new HTTP server wired against a single etcd client.
// The Bridge both drives the WebSocket hub and backs the task-events
// contract; Start must be called to begin watching and broadcasting.
func NewServer(cfg *config.Config, client *coordination.Client) *Server {
	controller := task.NewController(client)
	bridge := events.NewBridge(client)
	wsHub := websocket.NewHub(bridge)

	s := &Server{
		router:       chi.NewRouter(),
		client:       client,
		config:       cfg,
		taskHandler:  handlers.NewTaskHandler(controller),
		adminHandler: handlers.NewAdminHandler(client, controller),
		wsHub:        wsHub,
		wsHandler:    websocket.NewHandler(wsHub),
		bridge:       bridge,
	}

	s.setupMiddleware()
	s.setupRoutes()

	return s
}

func (s *Server) setupMiddleware() {
	// Request ID
	s.router.Use(middleware.RequestID)

	// Real IP
	s.router.Use(middleware.RealIP)

	// Logging
	s.router.Use(apiMiddleware.RequestLogger())

	// Recoverer
	s.router.Use(middleware.Recoverer)

	// Heartbeat endpoint for load balancers
	s.router.Use(middleware.Heartbeat("/health"))
}

func (s *Server) setupRoutes() {
	// API v1 routes
	s.router.Route("/api/v1", func(r chi.Router) {
		// Content type for API routes
		r.Use(middleware.AllowContentType("application/json"))

		// Rate limiting for API routes
		if s.config.Server.RateLimitRPS > 0 {
			r.Use(apiMiddleware.ClientRateLimit(s.config.Server.RateLimitRPS))
		}

		// Task routes
		r.Route("/tasks", func(r chi.Router) {
			r.Post("/", s.taskHandler.Create)
			r.Get("/", s.taskHandler.List)
			r.Get("/{taskID}", s.taskHandler.Get)
		})
	})

	// Admin routes
	s.router.Route("/admin", func(r chi.Router) {
		r.Use(middleware.AllowContentType("application/json"))

		r.Get("/health", s.adminHandler.HealthCheck)

		// Worker observability
		r.Get("/workers", s.adminHandler.ListWorkers)
		r.Get("/workers/{workerID}", s.adminHandler.GetWorker)

		// Queue observability
		r.Get("/queues", s.adminHandler.GetQueues)

		// Task control, mirroring manage pause/resume/retry. Gated behind
		// bearer-token auth when enabled (spec's optional admin-surface auth);
		// Auth itself is a no-op passthrough when cfg.Auth.Enabled is false.
		r.Group(func(r chi.Router) {
			r.Use(apiMiddleware.Auth(authConfig(&s.config.Auth)))
			if s.config.Auth.Enabled {
				r.Use(apiMiddleware.RequireRole("operator"))
			}
			r.Post("/tasks/{taskID}/pause", s.adminHandler.PauseTask)
			r.Post("/tasks/{taskID}/resume", s.adminHandler.ResumeTask)
			r.Post("/tasks/{taskID}/retry", s.adminHandler.RetryTask)
		})
	})

	// WebSocket endpoint
	s.router.Get("/ws", s.wsHandler.ServeWS)

	// Metrics endpoint
	if s.config.Metrics.Enabled {
		s.router.Handle(s.config.Metrics.Path, promhttp.Handler())
	}
}

// Start begins watching the task keyspace and running the WebSocket hub.
func (s *Server) Start(ctx context.Context) {
	go s.bridge.Run(ctx)
	go s.wsHub.Run(ctx)
}

// Stop stops the WebSocket hub and closes the event bridge.
func (s *Server) Stop() {
	s.wsHub.Stop()
	s.bridge.Close()
}

// Router returns the chi router
func (s *Server) Router() *chi.Mux {
	return s.router
}

// ServeHTTP implements the http.Handler interface
func (s *Server) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	s.router.ServeHTTP(w, r)
}

// Publisher returns the event publisher backing the WebSocket hub.
func (s *Server) Publisher() events.Publisher {
	return s.bridge
}

// authConfig adapts config.AuthConfig's flat API-key list to the shape
// apiMiddleware.Auth expects (a set, for an O(1) lookup per request).
func authConfig(cfg *config.AuthConfig) *apiMiddleware.AuthConfig {
	keys := make(map[string]bool, len(cfg.APIKeys))
	for _, k := range cfg.APIKeys {
		keys[k] = true
	}
	return &apiMiddleware.AuthConfig{
		Enabled:   cfg.Enabled,
		JWTSecret: cfg.JWTSecret,
		APIKeys:   keys,
	}
}
