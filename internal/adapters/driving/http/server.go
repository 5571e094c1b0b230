package http

import (
	"context"
	"fmt"
	"log"
	"net/http"
	"time"

	"github.com/ledgerbridge/banksync-core/internal/core/domain"
	"github.com/ledgerbridge/banksync-core/internal/core/ports/driven"
	"github.com/ledgerbridge/banksync-core/internal/core/ports/driving"
)

// Pinger is a simple health check interface
type Pinger interface {
	Ping(ctx context.Context) error
}

// Server represents the HTTP server
type Server struct {
	httpServer *http.Server
	router     *http.ServeMux
	version    string

	// Services
	syncService    driving.SyncService
	accountService driving.AccountService
	webhookService driving.WebhookService
	linkService    driving.LinkService

	// Auth
	auth        driven.AuthAdapter
	credentials []domain.APICredential

	// Infrastructure
	bus   driven.EventBus
	store Pinger // Redis health check
	db    Pinger // PostgreSQL health check (optional)
}

// Config holds server configuration
type Config struct {
	Host    string
	Port    int
	Version string

	// Credentials are the API clients allowed to request tokens
	Credentials []domain.APICredential
}

// DefaultConfig returns sensible defaults
func DefaultConfig() Config {
	return Config{
		Host:    "0.0.0.0",
		Port:    8080,
		Version: "dev",
	}
}

// NewServer creates a new HTTP server
func NewServer(
	cfg Config,
	syncService driving.SyncService,
	accountService driving.AccountService,
	webhookService driving.WebhookService,
	linkService driving.LinkService,
	auth driven.AuthAdapter,
	bus driven.EventBus,
	store Pinger,
	db Pinger, // can be nil
) *Server {
	s := &Server{
		router:         http.NewServeMux(),
		version:        cfg.Version,
		syncService:    syncService,
		accountService: accountService,
		webhookService: webhookService,
		linkService:    linkService,
		auth:           auth,
		credentials:    cfg.Credentials,
		bus:            bus,
		store:          store,
		db:             db,
	}

	// Recovery wraps everything so a handler panic answers 500 instead of
	// dropping the connection.
	handler := NewRecoveryMiddleware().Handler(NewLoggingMiddleware().Handler(s.router))

	s.httpServer = &http.Server{
		Addr:         fmt.Sprintf("%s:%d", cfg.Host, cfg.Port),
		Handler:      handler,
		ReadTimeout:  30 * time.Second,
		WriteTimeout: 30 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	s.setupRoutes()
	return s
}

// setupRoutes configures all HTTP routes
func (s *Server) setupRoutes() {
	authMiddleware := NewAuthMiddleware(s.auth)

	// Health endpoints (no auth)
	s.router.HandleFunc("GET /healthz", s.handleHealth)
	s.router.HandleFunc("GET /ready", s.handleReady)
	s.router.HandleFunc("GET /version", s.handleVersion)

	// Token issuance (public, credential-checked)
	s.router.HandleFunc("POST /api/v1/auth/token", s.handleToken)

	// Webhook ingress (public, HMAC-verified in the service)
	s.router.HandleFunc("POST /webhooks/provider", s.handleWebhook)

	// Sync endpoints
	s.router.Handle("POST /api/v1/accounts/{id}/sync",
		authMiddleware.Authenticate(http.HandlerFunc(s.handleTriggerSync)))
	s.router.Handle("GET /api/v1/operations/{id}",
		authMiddleware.Authenticate(http.HandlerFunc(s.handleGetOperation)))

	// Account endpoints
	s.router.Handle("GET /api/v1/accounts",
		authMiddleware.Authenticate(http.HandlerFunc(s.handleListAccounts)))
	s.router.Handle("GET /api/v1/accounts/{id}/balance",
		authMiddleware.Authenticate(http.HandlerFunc(s.handleGetBalance)))

	// Linking endpoints (admin-only for mutations)
	s.router.Handle("GET /api/v1/institutions",
		authMiddleware.Authenticate(http.HandlerFunc(s.handleListInstitutions)))
	s.router.Handle("POST /api/v1/requisitions",
		authMiddleware.Authenticate(
			authMiddleware.RequireAdmin(http.HandlerFunc(s.handleCreateRequisition))))
	s.router.Handle("GET /api/v1/requisitions/{id}",
		authMiddleware.Authenticate(http.HandlerFunc(s.handleGetRequisition)))
	s.router.Handle("DELETE /api/v1/requisitions/{id}",
		authMiddleware.Authenticate(
			authMiddleware.RequireAdmin(http.HandlerFunc(s.handleDeleteRequisition))))

	// Event log tail (admin-only)
	s.router.Handle("GET /api/v1/events/{type}",
		authMiddleware.Authenticate(
			authMiddleware.RequireAdmin(http.HandlerFunc(s.handleGetEvents))))
}

// Start starts the HTTP server and blocks until Stop or a listen error.
func (s *Server) Start() error {
	log.Printf("Starting server on %s", s.httpServer.Addr)
	if err := s.httpServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
		return err
	}
	return nil
}

// Stop stops the server
func (s *Server) Stop(ctx context.Context) error {
	return s.httpServer.Shutdown(ctx)
}

// Handler exposes the full middleware-wrapped handler for tests.
func (s *Server) Handler() http.Handler {
	return s.httpServer.Handler
}
