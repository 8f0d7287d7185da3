package gateway

import (
	"context"
	"net/http"
	"time"

	"golang.org/x/time/rate"

	"github.com/bashme-ai/bashme/pkg/agent"
	"github.com/bashme-ai/bashme/pkg/config"
	"github.com/bashme-ai/bashme/pkg/logger"
	"github.com/bashme-ai/bashme/pkg/tools"
)

// Completer is the warm agent surface the gateway serves. *agent.Session
// satisfies it; tests substitute stubs.
type Completer interface {
	Generate(ctx context.Context, snapshot agent.ShellSnapshot) ([]string, error)
	Degraded() bool
	CacheStats() tools.CacheStats
}

// Server is the daemon's HTTP face: POST /generate for completions,
// GET /health for liveness.
type Server struct {
	cfg      *config.Config
	session  Completer
	server   *http.Server
	limiter  *rate.Limiter
	inflight *sessionCanceller
	started  time.Time
}

// NewServer wires the gateway around a warmed (possibly degraded) session.
func NewServer(cfg *config.Config, session Completer) *Server {
	var limiter *rate.Limiter
	if rpm := cfg.Daemon.RequestsPerMinute; rpm > 0 {
		// A full minute's quota as burst absorbs keystroke bursts; the
		// steady rate refills it.
		limiter = rate.NewLimiter(rate.Limit(rpm)/60, rpm)
	}
	return &Server{
		cfg:      cfg,
		session:  session,
		limiter:  limiter,
		inflight: newSessionCanceller(),
		started:  time.Now(),
	}
}

// Handler returns the daemon's routes. Auth and rate limiting guard the
// completion endpoint; health stays open for probes.
func (s *Server) Handler() http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc("POST /generate", s.authMiddleware(s.rateLimitMiddleware(s.handleGenerate)))
	mux.HandleFunc("GET /health", s.handleHealth)
	return mux
}

// Start begins listening for HTTP requests on the configured host:port.
func (s *Server) Start() error {
	addr := s.cfg.ListenAddr()
	s.server = &http.Server{
		Addr:    addr,
		Handler: s.Handler(),
	}

	go func() {
		logger.InfoCF("gateway", "HTTP server starting", map[string]any{"addr": addr})
		if err := s.server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logger.ErrorCF("gateway", "HTTP server error", map[string]any{"error": err.Error()})
		}
	}()

	return nil
}

// Stop gracefully shuts down the HTTP server.
func (s *Server) Stop(ctx context.Context) error {
	if s.server == nil {
		return nil
	}
	return s.server.Shutdown(ctx)
}
