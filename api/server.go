package api

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/gorilla/mux"

	"sjsage522/dealalert/logger"
)

// Options configures the HTTP server
type Options struct {
	Port           int
	AllowedOrigins []string
	// RateLimit is requests per second per client on /api routes; 0 disables
	RateLimit float64
}

// Server exposes the health and config endpoints
type Server struct {
	handler http.Handler
	srv     *http.Server
	log     *logger.Logger
}

// NewServer builds the router
func NewServer(opts Options, h *Handlers) *Server {
	log := logger.ForAPI()

	r := mux.NewRouter()
	r.Use(RecoverMiddleware(log))
	r.Use(LoggingMiddleware(log))

	r.HandleFunc("/status", h.Status).Methods(http.MethodGet)
	r.HandleFunc("/health", h.Status).Methods(http.MethodGet)

	// Registered on the parent router so a method mismatch is reported as 405
	limited := func(fn http.HandlerFunc) http.Handler { return fn }
	if opts.RateLimit > 0 {
		limit := RateLimitMiddleware(opts.RateLimit)
		limited = func(fn http.HandlerFunc) http.Handler { return limit(fn) }
	}
	r.Handle("/api/config", limited(h.GetConfig)).Methods(http.MethodGet)
	r.Handle("/api/config/update", limited(h.UpdateConfig)).Methods(http.MethodPost)
	r.Handle("/api/config/batch", limited(h.UpdateConfigBatch)).Methods(http.MethodPost)
	r.Handle("/api/config/reset", limited(h.ResetConfig)).Methods(http.MethodPost)
	r.Handle("/api/config/{key}", limited(h.UpdateConfigKey)).Methods(http.MethodPut)

	r.MethodNotAllowedHandler = http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		writeError(w, http.StatusMethodNotAllowed, "method not allowed")
	})
	r.NotFoundHandler = http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		writeError(w, http.StatusNotFound, "not found")
	})

	handler := corsHandler(opts.AllowedOrigins, r)

	return &Server{
		handler: handler,
		srv: &http.Server{
			Addr:              fmt.Sprintf(":%d", opts.Port),
			Handler:           handler,
			ReadHeaderTimeout: 10 * time.Second,
		},
		log: log,
	}
}

// Handler returns the root handler
func (s *Server) Handler() http.Handler {
	return s.handler
}

// Start serves until Shutdown is called
func (s *Server) Start() error {
	s.log.Info().Str("addr", s.srv.Addr).Msg("HTTP server listening")
	if err := s.srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return err
	}
	return nil
}

// Shutdown stops accepting requests and waits for active ones
func (s *Server) Shutdown(ctx context.Context) error {
	return s.srv.Shutdown(ctx)
}
