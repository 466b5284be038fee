package httpserver

import (
	"context"
	"encoding/json"
	"net/http"
	"time"

	"github.com/benbjohnson/clock"
	"github.com/gorilla/mux"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/zap"

	"go-upstream-guard/internal/analytics"
	"go-upstream-guard/internal/auth"
	"go-upstream-guard/internal/config"
	"go-upstream-guard/internal/interfaces"
	"go-upstream-guard/internal/photo"
	"go-upstream-guard/internal/places"
	"go-upstream-guard/internal/quota"
	"go-upstream-guard/internal/ratelimit"
	"go-upstream-guard/internal/scoring"
)

// Services are the collaborators behind the HTTP API.
// Limiter, Verifier and Analytics may be nil.
type Services struct {
	Places    *places.Service
	Photos    *photo.Service
	Scoring   *scoring.Service
	Quota     *quota.Tracker
	Blobs     interfaces.BlobStore
	Limiter   *ratelimit.Limiter
	Verifier  *auth.Verifier
	Analytics *analytics.Recorder
}

// Server represents the public HTTP API
type Server struct {
	services  Services
	rateLimit config.RateLimitConfig
	clock     clock.Clock
	logger    *zap.Logger
	server    *http.Server
}

// NewServer creates a new HTTP server
func NewServer(services Services, rateLimit config.RateLimitConfig, clk clock.Clock, logger *zap.Logger) *Server {
	return &Server{
		services:  services,
		rateLimit: rateLimit,
		clock:     clk,
		logger:    logger,
	}
}

// Start listens on cfg.Addr and serves until Stop is called
func (s *Server) Start(cfg config.ServerConfig) error {
	s.server = &http.Server{
		Addr:         cfg.Addr,
		Handler:      s.Handler(),
		ReadTimeout:  cfg.ReadTimeout,
		WriteTimeout: cfg.WriteTimeout,
		IdleTimeout:  60 * time.Second,
	}

	s.logger.Info("Starting HTTP server", zap.String("addr", cfg.Addr))
	return s.server.ListenAndServe()
}

// Stop stops the HTTP server
func (s *Server) Stop(ctx context.Context) error {
	if s.server == nil {
		return nil
	}
	s.logger.Info("Stopping HTTP server")
	return s.server.Shutdown(ctx)
}

// Handler returns the configured router
func (s *Server) Handler() http.Handler {
	return s.createRouter()
}

// createRouter creates and configures the HTTP router
func (s *Server) createRouter() *mux.Router {
	router := mux.NewRouter()

	router.HandleFunc("/health", s.handleHealth).Methods(http.MethodGet)
	router.Handle("/metrics", promhttp.Handler()).Methods(http.MethodGet)
	router.HandleFunc("/blobs/{path:.+}", s.handleBlob).Methods(http.MethodGet, http.MethodHead)
	router.HandleFunc(PlaceholderPath, s.handlePlaceholder).Methods(http.MethodGet, http.MethodHead)

	v1 := router.PathPrefix("/v1").Subrouter()
	if s.services.Limiter != nil && s.rateLimit.Enabled {
		v1.Use(s.services.Limiter.Middleware(
			s.rateLimit.Limit,
			s.rateLimit.Window,
			ratelimit.ClientIPKey(s.rateLimit.TrustProxyHeaders),
		))
	}

	v1.HandleFunc("/places/{placeID}", s.handlePlace).Methods(http.MethodGet)
	v1.HandleFunc("/places/{placeID}/photos/{photoRef}", s.handlePhoto).Methods(http.MethodGet)
	v1.Handle("/places/{placeID}/score", s.requireAuth(s.handleScore)).Methods(http.MethodPost)
	v1.Handle("/usage", s.requireAuth(s.handleUsage)).Methods(http.MethodGet)

	return router
}

// requireAuth wraps h with bearer token verification
func (s *Server) requireAuth(h http.HandlerFunc) http.Handler {
	if s.services.Verifier == nil {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			s.writeErrorResponse(w, "authentication is not configured", http.StatusServiceUnavailable)
		})
	}
	return s.services.Verifier.Middleware(s.logger)(h)
}

// handleHealth handles health check requests
func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	s.writeResponse(w, map[string]interface{}{
		"status": "healthy",
		"time":   s.clock.Now().UTC(),
	})
}

// writeResponse writes JSON response
func (s *Server) writeResponse(w http.ResponseWriter, v interface{}) {
	s.writeStatusResponse(w, http.StatusOK, v)
}

func (s *Server) writeStatusResponse(w http.ResponseWriter, statusCode int, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(statusCode)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		s.logger.Error("Failed to write response", zap.Error(err))
	}
}

// writeErrorResponse writes error response
func (s *Server) writeErrorResponse(w http.ResponseWriter, message string, statusCode int) {
	s.writeStatusResponse(w, statusCode, ErrorResponse{Error: message})
}
