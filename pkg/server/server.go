// Package server exposes the GitHub webhook endpoint and turns incoming
// events into tool pipeline runs.
//
// The webhook handler acknowledges immediately and dispatches in the
// background; dispatch failures surface through logs and metrics, never
// through the HTTP response.
package server

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/prsentry/prsentry/pkg/provider"
	"github.com/prsentry/prsentry/pkg/settings"
)

// CommandRunner executes one slash command ("/review", "/describe", ...)
// against a PR.
type CommandRunner interface {
	Run(ctx context.Context, prURL, command string, args []string) error
}

// ProviderFunc builds a provider bound to the PR at the given URL.
type ProviderFunc func(ctx context.Context, prURL string) (provider.Provider, error)

// Options configure a webhook server.
type Options struct {
	Host string
	Port int

	Runner      CommandRunner
	NewProvider ProviderFunc

	// DispatchTimeout bounds one background dispatch. Zero means 15 minutes.
	DispatchTimeout time.Duration
}

// Server is the webhook HTTP server.
type Server struct {
	opts    Options
	http    *http.Server
	deduper *pushDeduper
}

// New builds the server and its router.
func New(opts Options) (*Server, error) {
	if opts.Runner == nil {
		return nil, fmt.Errorf("command runner is required")
	}
	if opts.NewProvider == nil {
		return nil, fmt.Errorf("provider factory is required")
	}
	if opts.DispatchTimeout == 0 {
		opts.DispatchTimeout = 15 * time.Minute
	}

	s := &Server{
		opts:    opts,
		deduper: newPushDeduper(),
	}

	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(middleware.Recoverer)

	r.Get("/", s.handleRoot)
	r.Handle("/metrics", promhttp.Handler())
	r.Post("/api/v1/github_webhooks", s.handleWebhook)

	s.http = &http.Server{
		Addr:              fmt.Sprintf("%s:%d", opts.Host, opts.Port),
		Handler:           r,
		ReadHeaderTimeout: 10 * time.Second,
	}
	return s, nil
}

// Handler exposes the router, mainly for tests.
func (s *Server) Handler() http.Handler { return s.http.Handler }

// Start serves until ctx is cancelled, then shuts down gracefully.
func (s *Server) Start(ctx context.Context) error {
	errCh := make(chan error, 1)
	go func() {
		slog.Info("Webhook server listening", "addr", s.http.Addr)
		if err := s.http.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			errCh <- err
		}
	}()

	select {
	case err := <-errCh:
		return err
	case <-ctx.Done():
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	slog.Info("Shutting down webhook server")
	return s.http.Shutdown(shutdownCtx)
}

func (s *Server) handleRoot(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

// webhookSecret reads the configured secret at request time so a settings
// reload takes effect without a restart.
func (s *Server) webhookSecret() string {
	return settings.Ambient().Sections().GitHub.WebhookSecret
}
