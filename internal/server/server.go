// Copyright 2025 Stefan Prodan.
// SPDX-License-Identifier: AGPL-3.0

package server

import (
	"context"
	"errors"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-logr/logr"
	"github.com/go-playground/validator/v10"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/controlplaneio-fluxcd/aegis/internal/service"
)

// AppName is reported by the info endpoint.
const AppName = "AEGIS License Server"

// Options holds the HTTP API settings.
type Options struct {
	// Version and Environment are reported by the health and info endpoints.
	Version     string
	Environment string

	// AuthSecret is the HMAC key of the admin tokens.
	AuthSecret []byte

	// RateLimit is applied per client IP to the validation endpoint.
	// The limiter is disabled when RequestsPerMinute is zero.
	RequestsPerMinute int
	Burst             int

	// Sweeper is reported by the info endpoint, if set.
	Sweeper *service.Sweeper

	// Gatherer is exposed on /metrics, if set.
	Gatherer prometheus.Gatherer

	// Now defaults to time.Now.
	Now func() time.Time
}

// Server serves the license HTTP API.
type Server struct {
	svc      *service.Service
	opts     Options
	log      logr.Logger
	validate *validator.Validate
	limiter  *ipRateLimiter
}

// New returns a Server backed by the given service.
func New(svc *service.Service, log logr.Logger, opts Options) *Server {
	if opts.Now == nil {
		opts.Now = time.Now
	}
	s := &Server{
		svc:      svc,
		opts:     opts,
		log:      log,
		validate: newValidator(),
	}
	if opts.RequestsPerMinute > 0 {
		s.limiter = newIPRateLimiter(opts.RequestsPerMinute, opts.Burst, opts.Now)
	}
	return s
}

// Handler returns the API routes wrapped in the request logging middleware.
func (s *Server) Handler() http.Handler {
	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(func(next http.Handler) http.Handler {
		return LoggingMiddleware(s.log, next)
	})
	r.Use(middleware.Recoverer)

	r.Get("/health", s.healthHandler)
	r.Get("/info", s.infoHandler)
	r.Get("/.well-known/jwks.json", s.jwksHandler)
	if s.opts.Gatherer != nil {
		r.Handle("/metrics", promhttp.HandlerFor(s.opts.Gatherer, promhttp.HandlerOpts{}))
	}

	r.Route("/api/v1", func(r chi.Router) {
		r.With(s.rateLimitMiddleware).Post("/licenses/validate", s.validateHandler)
		r.Post("/licenses/fingerprint", s.fingerprintHandler)

		r.Group(func(r chi.Router) {
			r.Use(s.adminAuthMiddleware)

			r.Post("/customers", s.createCustomerHandler)
			r.Get("/customers", s.listCustomersHandler)
			r.Get("/customers/{customerID}", s.getCustomerHandler)
			r.Patch("/customers/{customerID}", s.updateCustomerHandler)
			r.Delete("/customers/{customerID}", s.deleteCustomerHandler)

			r.Post("/licenses", s.issueLicenseHandler)
			r.Get("/licenses", s.listLicensesHandler)
			r.Get("/licenses/{licenseID}", s.getLicenseHandler)
			r.Delete("/licenses/{licenseID}/revoke", s.revokeLicenseHandler)

			r.Get("/admin/stats", s.statsHandler)
			r.Get("/admin/audit-logs", s.auditLogsHandler)
		})
	})

	r.NotFound(func(w http.ResponseWriter, r *http.Request) {
		writeError(w, http.StatusNotFound, "not found")
	})
	r.MethodNotAllowed(func(w http.ResponseWriter, r *http.Request) {
		writeError(w, http.StatusMethodNotAllowed, "method not allowed")
	})
	return r
}

// StartServer serves the handler on addr until the context is canceled,
// then shuts down gracefully within the timeout.
func StartServer(ctx context.Context, addr string, timeout time.Duration, handler http.Handler, l logr.Logger) error {
	srv := &http.Server{
		Addr:         addr,
		Handler:      handler,
		ReadTimeout:  timeout,
		WriteTimeout: timeout,
		IdleTimeout:  timeout,
	}

	errCh := make(chan error, 1)
	go func() {
		l.Info("Starting license server", "address", addr)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
	}()

	select {
	case err := <-errCh:
		return err
	case <-ctx.Done():
	}
	l.Info("Shutdown signal received, gracefully stopping license server")

	ctxShutdown, cancel := context.WithTimeout(context.Background(), timeout)
	defer cancel()

	if err := srv.Shutdown(ctxShutdown); err != nil {
		l.Error(err, "Error during graceful shutdown")
		return err
	}

	l.Info("License server stopped")
	return nil
}
