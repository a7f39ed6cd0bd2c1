// Package server provides the HTTP API of the job catalog.
package server

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log"
	"net"
	"net/http"
	"time"

	"github.com/jonathan/job-catalog/internal/catalog"
	"github.com/jonathan/job-catalog/internal/db"
	"github.com/jonathan/job-catalog/internal/lookup"
	"github.com/jonathan/job-catalog/internal/server/middleware"
	"github.com/jonathan/job-catalog/internal/server/ratelimit"
	"github.com/jonathan/job-catalog/internal/syncer"
)

// EntryReader reads catalog entries.
type EntryReader interface {
	GetEntry(ctx context.Context, refNr string) (*catalog.CatalogEntry, error)
}

// SyncRunner runs one sync pass.
type SyncRunner interface {
	Run(ctx context.Context, req syncer.Request) (*syncer.RunResult, error)
}

// RunLister lists recent sync runs.
type RunLister interface {
	ListSyncRuns(ctx context.Context, limit int) ([]db.SyncRun, error)
}

// ContactLookup looks up the contact details of one job posting.
type ContactLookup interface {
	Lookup(ctx context.Context, refNr string) (*lookup.Result, error)
}

// Deps holds the collaborators behind the routes.
type Deps struct {
	Catalog  EntryReader
	Sync     SyncRunner
	Runs     RunLister
	Contacts ContactLookup
	Limiter  *ratelimit.Limiter
	JWT      *JWTService
}

// Config holds server configuration
type Config struct {
	Port           int
	ManualMaxPages int
}

// Server represents the HTTP server
type Server struct {
	httpServer     *http.Server
	deps           Deps
	manualMaxPages int
	rateLimiter    *ratelimit.Limiter
	handler        http.Handler
}

// New creates a new server instance
func New(cfg Config, deps Deps) *Server {
	s := &Server{
		deps:           deps,
		manualMaxPages: cfg.ManualMaxPages,
		rateLimiter:    deps.Limiter,
	}
	if s.rateLimiter == nil {
		s.rateLimiter = ratelimit.NewLimiter(nil)
	}

	var validator middleware.TokenValidator = denyAll{}
	if deps.JWT != nil {
		validator = deps.JWT.AsTokenValidator()
	}
	operator := middleware.RequireOperator(validator)

	mux := http.NewServeMux()
	mux.HandleFunc("GET /health", s.handleHealth)
	mux.Handle("POST /sync", operator(http.HandlerFunc(s.handleSync)))
	mux.Handle("GET /sync/runs", operator(http.HandlerFunc(s.handleListRuns)))
	mux.HandleFunc("GET /contact", s.handleContact)
	mux.HandleFunc("POST /contact", s.handleContact)
	mux.HandleFunc("GET /catalog/{refnr}", s.handleGetEntry)

	s.handler = s.withRateLimit(s.withLogging(s.withCORS(mux)))
	s.httpServer = &http.Server{
		Addr:         fmt.Sprintf(":%d", cfg.Port),
		Handler:      s.handler,
		ReadTimeout:  30 * time.Second,
		WriteTimeout: 300 * time.Second, // manual syncs and browser lookups are slow
		IdleTimeout:  60 * time.Second,
	}
	return s
}

// Handler returns the full middleware chain.
func (s *Server) Handler() http.Handler {
	return s.handler
}

// Start serves until ctx is canceled, then shuts down gracefully.
func (s *Server) Start(ctx context.Context) error {
	errCh := make(chan error, 1)
	go func() {
		log.Printf("Server starting on %s", s.httpServer.Addr)
		if err := s.httpServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
		close(errCh)
	}()

	select {
	case err, ok := <-errCh:
		if ok {
			s.rateLimiter.Stop()
			return fmt.Errorf("server error: %w", err)
		}
		return nil
	case <-ctx.Done():
	}

	log.Println("Shutting down server...")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	if err := s.httpServer.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("server shutdown failed: %w", err)
	}
	s.rateLimiter.Stop()
	log.Println("Server stopped")
	return nil
}

// denyAll rejects every token when no JWT secret is configured.
type denyAll struct{}

func (denyAll) ValidateToken(string) (middleware.OperatorGetter, error) {
	return nil, errors.New("operator tokens are not configured")
}

// withCORS adds CORS headers
func (s *Server) withCORS(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Access-Control-Allow-Origin", "*")
		w.Header().Set("Access-Control-Allow-Methods", "GET, POST, OPTIONS")
		w.Header().Set("Access-Control-Allow-Headers", "Content-Type, Authorization")

		if r.Method == http.MethodOptions {
			w.WriteHeader(http.StatusNoContent)
			return
		}

		next.ServeHTTP(w, r)
	})
}

// withRateLimit adds rate limiting middleware
func (s *Server) withRateLimit(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		clientID := s.extractClientID(r)
		allowed, info := s.rateLimiter.Allow(clientID, r.URL.Path, r.Method)

		s.setRateLimitHeaders(w, info)
		if !allowed {
			s.rateLimitResponse(w, info)
			return
		}
		next.ServeHTTP(w, r)
	})
}

// withLogging adds request logging
func (s *Server) withLogging(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		log.Printf("[%s] %s %s", r.Method, r.URL.Path, r.RemoteAddr)
		next.ServeHTTP(w, r)
		log.Printf("[%s] %s completed in %v", r.Method, r.URL.Path, time.Since(start))
	})
}

// jsonResponse writes a JSON response
func (s *Server) jsonResponse(w http.ResponseWriter, status int, data any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(data); err != nil {
		log.Printf("Error encoding JSON response: %v", err)
	}
}

// errorResponse writes an error JSON response
func (s *Server) errorResponse(w http.ResponseWriter, status int, message string) {
	s.jsonResponse(w, status, map[string]any{"success": false, "error": message})
}

// extractClientID extracts the client identifier from the request.
// This uses the IP address from RemoteAddr; X-Forwarded-For is not trusted.
func (s *Server) extractClientID(r *http.Request) string {
	ip, _, err := net.SplitHostPort(r.RemoteAddr)
	if err != nil {
		return r.RemoteAddr
	}
	return ip
}

// setRateLimitHeaders sets standard rate limit headers on the response.
func (s *Server) setRateLimitHeaders(w http.ResponseWriter, info ratelimit.Info) {
	if info.Limit > 0 {
		w.Header().Set("X-RateLimit-Limit", fmt.Sprintf("%d", info.Limit))
		w.Header().Set("X-RateLimit-Remaining", fmt.Sprintf("%d", info.Remaining))
		w.Header().Set("X-RateLimit-Reset", fmt.Sprintf("%d", info.ResetTime.Unix()))
	}
}

// rateLimitResponse writes a 429 Too Many Requests response with rate limit information.
func (s *Server) rateLimitResponse(w http.ResponseWriter, info ratelimit.Info) {
	response := map[string]any{
		"success":   false,
		"error":     "rate_limit_exceeded",
		"message":   "Rate limit exceeded. Please try again later.",
		"limit":     info.Limit,
		"remaining": info.Remaining,
		"reset_at":  info.ResetTime.Format(time.RFC3339),
	}

	if info.RetryAfter > 0 {
		secs := int(info.RetryAfter.Seconds())
		if secs < 1 {
			secs = 1
		}
		response["retry_after"] = secs
		w.Header().Set("Retry-After", fmt.Sprintf("%d", secs))
	}

	log.Printf("[rate-limit] Rate limit exceeded: Limit=%d Remaining=%d Reset=%s",
		info.Limit, info.Remaining, info.ResetTime.Format(time.RFC3339))

	s.jsonResponse(w, http.StatusTooManyRequests, response)
}
