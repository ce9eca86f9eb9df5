// Package web serves a read-only local dashboard: mode status, stored
// results, the chat transcript and prometheus metrics.
package web

import (
	"context"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/zap"

	"github.com/hpungsan/scout/internal/chat"
	"github.com/hpungsan/scout/internal/orchestrator"
	"github.com/hpungsan/scout/internal/results"
)

// Deps are the components the dashboard reads from.
type Deps struct {
	Orchestrator *orchestrator.Orchestrator
	Results      *results.Store
	Chat         *chat.Bridge
	// Gatherer backs /metrics. Nil disables the route.
	Gatherer prometheus.Gatherer
	Logger   *zap.Logger
}

// NewServer creates the HTTP server for the dashboard.
func NewServer(deps Deps, version, addr string) *http.Server {
	if deps.Logger == nil {
		deps.Logger = zap.NewNop()
	}
	h := &Handlers{deps: deps, version: version}

	mux := http.NewServeMux()

	// Routes using Go 1.22+ pattern syntax
	mux.HandleFunc("GET /{$}", func(w http.ResponseWriter, r *http.Request) {
		http.Redirect(w, r, "/status", http.StatusFound)
	})
	mux.HandleFunc("GET /status", h.HandleStatus)
	mux.HandleFunc("GET /results/{mode}", h.HandleResults)
	mux.HandleFunc("GET /transcript", h.HandleTranscript)
	if deps.Gatherer != nil {
		mux.Handle("GET /metrics", promhttp.HandlerFor(deps.Gatherer, promhttp.HandlerOpts{}))
	}

	// Wrap with security headers
	handler := securityHeaders(mux)

	return &http.Server{
		Addr:              addr,
		Handler:           handler,
		ReadHeaderTimeout: 10 * time.Second,
	}
}

// securityHeaders adds security-related HTTP headers to all responses.
func securityHeaders(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Security-Policy", "default-src 'self'; style-src 'self' 'unsafe-inline'")
		w.Header().Set("X-Content-Type-Options", "nosniff")
		w.Header().Set("X-Frame-Options", "DENY")
		next.ServeHTTP(w, r)
	})
}

// Run starts the HTTP server and handles graceful shutdown on SIGINT/SIGTERM.
func Run(srv *http.Server, logger *zap.Logger) error {
	if logger == nil {
		logger = zap.NewNop()
	}
	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	defer signal.Stop(sigCh)

	errCh := make(chan error, 1)
	go func() {
		errCh <- srv.ListenAndServe()
	}()

	logger.Info("dashboard listening", zap.String("addr", srv.Addr))

	if strings.HasPrefix(srv.Addr, "0.0.0.0") || strings.HasPrefix(srv.Addr, ":") || strings.Contains(srv.Addr, "[::]") {
		logger.Warn("dashboard is binding to all interfaces and may be reachable from the network", zap.String("addr", srv.Addr))
	}

	select {
	case err := <-errCh:
		return err
	case <-sigCh:
		logger.Info("dashboard shutting down")
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		return srv.Shutdown(ctx)
	}
}
