// Package server implements the stdlib net/http surface exposing Core's
// operations: file info, chunk data, cache management, channel selection,
// and the DDA pipeline, over a plain http.ServeMux.
package server

import (
	"context"
	"crypto/tls"
	"log/slog"
	"net"
	"net/http"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"

	"edfhub/internal/auth"
	"edfhub/internal/core"
	"edfhub/internal/logging"
)

// Config holds server construction parameters.
type Config struct {
	Logger *slog.Logger
	Tokens *auth.TokenService // nil disables auth, every request treated as anonymous
}

// Server is the HTTP surface over a Core. TLS termination, when enabled, is
// handled by the caller passing a *tls.Config to ListenAndServeTLS (built
// from internal/cert by the CLI's serve command) rather than by Server
// itself.
type Server struct {
	core   *core.Core
	tokens *auth.TokenService
	logger *slog.Logger

	rl       *rateLimiter
	rlCancel context.CancelFunc
	rlWG     sync.WaitGroup

	mu       sync.Mutex
	server   *http.Server
	inFlight sync.WaitGroup
	draining atomic.Bool
}

// New creates a Server bound to c.
func New(c *core.Core, cfg Config) *Server {
	return &Server{
		core:   c,
		tokens: cfg.Tokens,
		logger: logging.Default(cfg.Logger).With("component", "server"),
		rl:     newRateLimiter(10.0, 20), // 10 req/s per IP, burst 20
	}
}

func (s *Server) buildMux() *http.ServeMux {
	mux := http.NewServeMux()

	mux.HandleFunc("/healthz", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
	})
	mux.HandleFunc("/readyz", func(w http.ResponseWriter, r *http.Request) {
		if s.draining.Load() {
			w.WriteHeader(http.StatusServiceUnavailable)
			return
		}
		w.WriteHeader(http.StatusOK)
	})

	mux.HandleFunc("GET /edf/info", s.handleInfo)
	mux.HandleFunc("GET /edf/data", s.handleData)
	mux.HandleFunc("GET /edf/cache/stats", s.handleCacheStats)
	mux.HandleFunc("GET /edf/cache/check", s.handleCacheCheck)
	mux.HandleFunc("POST /edf/cache/clear", s.handleCacheClear)
	mux.HandleFunc("POST /edf/cache/warmup", s.handleCacheWarmup)
	mux.HandleFunc("GET /edf/default_channels", s.handleDefaultChannels)
	mux.HandleFunc("POST /dda", s.handleDDARun)
	mux.HandleFunc("GET /dda/variants", s.handleDDAVariants)
	mux.HandleFunc("/dda/history/", s.handleDDAHistory)
	mux.HandleFunc("/dda/history", s.handleDDAHistory)

	return mux
}

// requestIDMiddleware stamps every request with a uuid-derived request ID,
// surfaced via the X-Request-ID response header and stored in the request
// context.
func (s *Server) requestIDMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		id := uuid.NewString()
		w.Header().Set("X-Request-ID", id)
		ctx := withRequestID(r.Context(), id)
		next.ServeHTTP(w, r.WithContext(ctx))
	})
}

// loggingMiddleware logs each request's method, path, status, duration, and
// request ID at completion, using the server's component logger. It wraps
// requestIDMiddleware, so it reads the ID from the X-Request-ID response
// header rather than from the request context.
func (s *Server) loggingMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		rec := &statusRecorder{ResponseWriter: w, status: http.StatusOK}
		next.ServeHTTP(rec, r)
		s.logger.Info("request",
			"method", r.Method,
			"path", r.URL.Path,
			"status", rec.status,
			"duration_ms", time.Since(start).Milliseconds(),
			"request_id", rec.Header().Get("X-Request-ID"),
		)
	})
}

type statusRecorder struct {
	http.ResponseWriter
	status int
}

func (r *statusRecorder) WriteHeader(status int) {
	r.status = status
	r.ResponseWriter.WriteHeader(status)
}

// rateLimitMiddleware rejects requests over the per-IP rate with 429.
func (s *Server) rateLimitMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		limiter := s.rl.getLimiter(clientIP(r.RemoteAddr))
		if !limiter.Allow() {
			w.Header().Set("Retry-After", "1")
			writeError(w, http.StatusTooManyRequests, "too many requests, try again later")
			return
		}
		next.ServeHTTP(w, r)
	})
}

// trackingMiddleware rejects new requests while draining and tracks
// in-flight requests so Stop can wait for them.
func (s *Server) trackingMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if s.draining.Load() {
			writeError(w, http.StatusServiceUnavailable, "server is draining")
			return
		}
		s.inFlight.Add(1)
		defer s.inFlight.Done()
		next.ServeHTTP(w, r)
	})
}

// authMiddleware gates every route but the health probes behind bearer-token
// auth when a TokenService is configured; otherwise it is a no-op — full
// auth policy (roles, scopes, user provisioning) is out of scope here, only
// the boundary contract of accepting or rejecting a bearer token.
func (s *Server) authMiddleware(next http.Handler) http.Handler {
	if s.tokens == nil {
		return next
	}
	protected := auth.Middleware(s.tokens)(next)
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path == "/healthz" || r.URL.Path == "/readyz" {
			next.ServeHTTP(w, r)
			return
		}
		protected.ServeHTTP(w, r)
	})
}

// Handler builds the fully wrapped handler: tracking → logging →
// request-id → rate-limit → auth → mux.
func (s *Server) Handler() http.Handler {
	mux := s.buildMux()
	return s.trackingMiddleware(s.loggingMiddleware(s.requestIDMiddleware(s.rateLimitMiddleware(s.authMiddleware(mux)))))
}

// Serve starts the HTTP server on listener and blocks until it stops.
func (s *Server) Serve(listener net.Listener) error {
	rlCtx, rlCancel := context.WithCancel(context.Background())
	s.rlCancel = rlCancel
	s.rl.startCleanup(rlCtx, &s.rlWG, 3*time.Minute, 5*time.Minute)

	s.mu.Lock()
	s.server = &http.Server{
		Handler:           s.Handler(),
		ReadHeaderTimeout: 10 * time.Second,
	}
	srv := s.server
	s.mu.Unlock()

	s.logger.Info("server starting", "addr", listener.Addr().String())
	err := srv.Serve(listener)
	if err == http.ErrServerClosed {
		return nil
	}
	return err
}

// ListenAndServe starts the HTTP server on addr and blocks until it stops.
func (s *Server) ListenAndServe(addr string) error {
	listener, err := net.Listen("tcp", addr)
	if err != nil {
		return err
	}
	return s.Serve(listener)
}

// ListenAndServeTLS starts the HTTPS server on addr using tlsConfig for
// certificate selection, and blocks until it stops.
func (s *Server) ListenAndServeTLS(addr string, tlsConfig *tls.Config) error {
	listener, err := tls.Listen("tcp", addr, tlsConfig)
	if err != nil {
		return err
	}
	return s.Serve(listener)
}

// Stop gracefully stops the server: drains in-flight requests, stops the
// rate-limiter cleanup goroutine, then shuts down the HTTP server.
func (s *Server) Stop(ctx context.Context) error {
	s.draining.Store(true)
	s.inFlight.Wait()

	if s.rlCancel != nil {
		s.rlCancel()
		s.rlWG.Wait()
	}

	s.mu.Lock()
	srv := s.server
	s.mu.Unlock()
	if srv == nil {
		return nil
	}
	s.logger.Info("server stopping")
	return srv.Shutdown(ctx)
}
