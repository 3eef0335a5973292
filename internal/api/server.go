// Package api provides the read-side HTTP API: wallet trust lookups,
// score history, API-submitted feedback, and webhook registration.
package api

import (
	"context"
	"fmt"
	"net/http"
	"time"

	"github.com/gorilla/mux"

	"github.com/trust-scanner/internal/logging"
	"github.com/trust-scanner/internal/storage"
)

// Server represents the HTTP API server.
type Server struct {
	router       *mux.Router
	httpServer   *http.Server
	wallets      *storage.WalletRepository
	transactions *storage.TransactionRepository
	feedback     *storage.FeedbackRepository
	scores       *storage.ScoreRepository
	keys         *storage.APIKeyRepository
	webhooks     *storage.WebhookRepository
	logger       *logging.Logger
	config       *ServerConfig
}

// ServerConfig holds server configuration.
type ServerConfig struct {
	Port            string
	ReadTimeout     time.Duration
	WriteTimeout    time.Duration
	IdleTimeout     time.Duration
	ShutdownTimeout time.Duration
}

// NewServer creates a new API server instance.
func NewServer(
	config *ServerConfig,
	db *storage.PostgresDB,
	logger *logging.Logger,
) *Server {
	s := &Server{
		router:       mux.NewRouter(),
		wallets:      storage.NewWalletRepository(db),
		transactions: storage.NewTransactionRepository(db),
		feedback:     storage.NewFeedbackRepository(db),
		scores:       storage.NewScoreRepository(db),
		keys:         storage.NewAPIKeyRepository(db),
		webhooks:     storage.NewWebhookRepository(db),
		logger:       logger,
		config:       config,
	}

	s.setupRouter()
	return s
}

// setupRouter configures the router with middleware and routes
func (s *Server) setupRouter() {
	s.router.Use(LoggingMiddleware(s.logger))
	s.router.Use(RecoveryMiddleware)
	s.router.Use(CORSMiddleware)

	s.setupRoutes()

	s.httpServer = &http.Server{
		Addr:         fmt.Sprintf(":%s", s.config.Port),
		Handler:      s.router,
		ReadTimeout:  s.config.ReadTimeout,
		WriteTimeout: s.config.WriteTimeout,
		IdleTimeout:  s.config.IdleTimeout,
	}
}

// setupRoutes configures all API routes. OPTIONS is registered on every
// route so CORS preflights reach the middleware instead of mux's 405.
func (s *Server) setupRoutes() {
	s.router.HandleFunc("/health", s.handleHealth).Methods("GET", "OPTIONS")

	// Everything under /api requires a key and counts against its quota.
	// Preflights are answered by the CORS middleware before auth runs.
	api := s.router.PathPrefix("/api").Subrouter()
	api.Use(AuthMiddleware(s.keys))

	api.HandleFunc("/wallets/{address}", s.handleGetWallet).Methods("GET", "OPTIONS")
	api.HandleFunc("/wallets/{address}/history", s.handleGetHistory).Methods("GET", "OPTIONS")
	api.HandleFunc("/feedback", s.handleSubmitFeedback).Methods("POST", "OPTIONS")
	api.HandleFunc("/webhooks", s.handleCreateWebhook).Methods("POST", "OPTIONS")
	api.HandleFunc("/webhooks/{id}/enable", s.handleEnableWebhook).Methods("POST", "OPTIONS")
	api.HandleFunc("/stats", s.handleStats).Methods("GET", "OPTIONS")
}

// handleHealth handles health check requests.
func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	respondJSON(w, http.StatusOK, map[string]string{
		"status":  "healthy",
		"service": "trust-scanner",
	})
}

// Handler exposes the router, used by tests.
func (s *Server) Handler() http.Handler {
	return s.router
}

// Start starts the HTTP server.
func (s *Server) Start() error {
	s.logger.WithField("addr", s.httpServer.Addr).Info("starting API server")
	return s.httpServer.ListenAndServe()
}

// Shutdown gracefully shuts down the server.
func (s *Server) Shutdown(ctx context.Context) error {
	s.logger.Info("shutting down API server")
	return s.httpServer.Shutdown(ctx)
}
