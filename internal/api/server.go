// Package api provides the HTTP API server implementation.
package api

import (
	"context"
	"fmt"
	"net/http"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/gorilla/mux"

	"github.com/property-scanner/internal/alert"
	"github.com/property-scanner/internal/job"
	"github.com/property-scanner/internal/logging"
	"github.com/property-scanner/internal/models"
)

// Service interfaces for dependency injection and testing

// JobService defines the batch job operations the API exposes
type JobService interface {
	GetJob(ctx context.Context, jobID string) (*models.BatchJob, error)
	ApplyUpdate(ctx context.Context, jobID string, update *models.JobUpdate) (*job.UpdateResult, error)
	DeleteJob(ctx context.Context, jobID string) error
}

// ScanService runs alert scans
type ScanService interface {
	Scan(ctx context.Context, req alert.ScanRequest) (*alert.ScanResult, error)
}

// AlertService manages alert rules and alerts
type AlertService interface {
	UpsertRule(ctx context.Context, rule *models.AlertRule) (*models.AlertRule, error)
	DeleteRule(ctx context.Context, ruleID, userID string) error
	ListRules(ctx context.Context, userID string) ([]*models.AlertRule, error)
	AcknowledgeAlert(ctx context.Context, alertID, userID string) (*models.PropertyAlert, error)
	ListOpenAlerts(ctx context.Context, userID string, limit int) ([]*models.PropertyAlert, error)
}

// Server represents the HTTP API server.
type Server struct {
	router       *mux.Router
	httpServer   *http.Server
	jobService   JobService
	scanService  ScanService
	alertService AlertService
	auth         *JWTAuthenticator
	validate     *validator.Validate
	config       *ServerConfig
}

// ServerConfig holds server configuration.
type ServerConfig struct {
	Host            string
	Port            string
	ReadTimeout     time.Duration
	WriteTimeout    time.Duration
	IdleTimeout     time.Duration
	ShutdownTimeout time.Duration
	AdminRPS        int
	UserRPS         int
	ViewerRPS       int
}

// NewServer creates a new API server instance.
func NewServer(
	config *ServerConfig,
	jobService JobService,
	scanService ScanService,
	alertService AlertService,
	auth *JWTAuthenticator,
) *Server {
	s := &Server{
		router:       mux.NewRouter(),
		jobService:   jobService,
		scanService:  scanService,
		alertService: alertService,
		auth:         auth,
		validate:     newValidator(),
		config:       config,
	}

	s.setupRouter()

	return s
}

// setupRouter configures the router with middleware and routes
func (s *Server) setupRouter() {
	s.router.Use(LoggingMiddleware)
	s.router.Use(RecoveryMiddleware)
	s.router.Use(CORSMiddleware)
	s.router.Use(CompressionMiddleware)

	s.setupRoutes()

	s.httpServer = &http.Server{
		Addr:         fmt.Sprintf("%s:%s", s.config.Host, s.config.Port),
		Handler:      s.router,
		ReadTimeout:  s.config.ReadTimeout,
		WriteTimeout: s.config.WriteTimeout,
		IdleTimeout:  s.config.IdleTimeout,
	}
}

// setupRoutes configures all API routes.
func (s *Server) setupRoutes() {
	s.router.HandleFunc("/health", s.handleHealth).Methods(http.MethodGet)

	// Everything else needs a principal; rate limiting is keyed by it
	authed := s.router.PathPrefix("/").Subrouter()
	authed.Use(AuthMiddleware(s.auth))
	authed.Use(RateLimitMiddleware(NewRateLimiter(s.config.AdminRPS, s.config.UserRPS, s.config.ViewerRPS)))

	authed.HandleFunc("/batch-jobs/{id}", s.handleGetJob).Methods(http.MethodGet)
	authed.HandleFunc("/batch-jobs/{id}", s.handleUpdateJob).Methods(http.MethodPatch)
	authed.HandleFunc("/batch-jobs/{id}", s.handleDeleteJob).Methods(http.MethodDelete)

	authed.HandleFunc("/property-alerts/scan", s.handleScan).Methods(http.MethodPost)
	authed.HandleFunc("/property-alerts", s.handleListAlerts).Methods(http.MethodGet)
	authed.HandleFunc("/property-alerts/{id}/acknowledge", s.handleAcknowledgeAlert).Methods(http.MethodPost)

	authed.HandleFunc("/alert-rules", s.handleListRules).Methods(http.MethodGet)
	authed.HandleFunc("/alert-rules/{id}", s.handleUpsertRule).Methods(http.MethodPut)
	authed.HandleFunc("/alert-rules/{id}", s.handleDeleteRule).Methods(http.MethodDelete)
}

// Handler returns the routed handler, for tests and embedding
func (s *Server) Handler() http.Handler {
	return s.router
}

// handleHealth handles health check requests.
func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	respondJSON(w, http.StatusOK, map[string]string{
		"status":  "healthy",
		"service": "property-scanner",
	})
}

// Start starts the HTTP server.
func (s *Server) Start() error {
	logging.Infof("Starting API server on %s", s.httpServer.Addr)
	return s.httpServer.ListenAndServe()
}

// Shutdown gracefully shuts down the server.
func (s *Server) Shutdown(ctx context.Context) error {
	logging.Info("Shutting down API server...")
	return s.httpServer.Shutdown(ctx)
}
