// Copyright 2025 Stefan Prodan.
// SPDX-License-Identifier: AGPL-3.0

package server

import (
	"math"
	"net"
	"net/http"
	"strconv"
	"sync"
	"time"

	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-logr/logr"
	"golang.org/x/time/rate"
)

// loggingResponseWriter wraps http.ResponseWriter to capture the status code.
type loggingResponseWriter struct {
	http.ResponseWriter
	statusCode int
}

func (w *loggingResponseWriter) WriteHeader(code int) {
	w.statusCode = code
	w.ResponseWriter.WriteHeader(code)
}

// LoggingMiddleware logs HTTP requests and responses. The request logger
// is stored in the request context for the handlers and the service layer.
func LoggingMiddleware(logger logr.Logger, next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		wrapped := &loggingResponseWriter{ResponseWriter: w, statusCode: http.StatusOK}

		log := logger
		if id := middleware.GetReqID(r.Context()); id != "" {
			log = log.WithValues("request_id", id)
		}
		next.ServeHTTP(wrapped, r.WithContext(logr.NewContext(r.Context(), log)))

		duration := time.Since(start)
		log.Info("HTTP request completed",
			"uri", r.RequestURI,
			"method", r.Method,
			"status", wrapped.statusCode,
			"remote", r.RemoteAddr,
			"user_agent", r.UserAgent(),
			"latency_ms", duration.Round(time.Millisecond).Milliseconds(),
		)
	})
}

// visitorTTL is how long an idle client keeps its limiter.
const visitorTTL = 3 * time.Minute

type visitor struct {
	limiter  *rate.Limiter
	lastSeen time.Time
}

// ipRateLimiter holds a token bucket per client IP.
type ipRateLimiter struct {
	mu        sync.Mutex
	visitors  map[string]*visitor
	interval  time.Duration
	burst     int
	now       func() time.Time
	lastSweep time.Time
}

func newIPRateLimiter(requestsPerMinute, burst int, now func() time.Time) *ipRateLimiter {
	if burst <= 0 {
		burst = requestsPerMinute
	}
	return &ipRateLimiter{
		visitors:  make(map[string]*visitor),
		interval:  time.Minute / time.Duration(requestsPerMinute),
		burst:     burst,
		now:       now,
		lastSweep: now(),
	}
}

// allow reports whether the client may make a request now.
func (l *ipRateLimiter) allow(ip string) bool {
	l.mu.Lock()
	defer l.mu.Unlock()

	now := l.now()
	if now.Sub(l.lastSweep) > visitorTTL {
		for k, v := range l.visitors {
			if now.Sub(v.lastSeen) > visitorTTL {
				delete(l.visitors, k)
			}
		}
		l.lastSweep = now
	}

	v, ok := l.visitors[ip]
	if !ok {
		v = &visitor{limiter: rate.NewLimiter(rate.Every(l.interval), l.burst)}
		l.visitors[ip] = v
	}
	v.lastSeen = now
	return v.limiter.AllowN(now, 1)
}

// retryAfter is the number of seconds until a token is refilled.
func (l *ipRateLimiter) retryAfter() int {
	return int(math.Ceil(l.interval.Seconds()))
}

func (s *Server) rateLimitMiddleware(next http.Handler) http.Handler {
	if s.limiter == nil {
		return next
	}
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if !s.limiter.allow(clientIP(r)) {
			w.Header().Set("Retry-After", strconv.Itoa(s.limiter.retryAfter()))
			writeError(w, http.StatusTooManyRequests, "rate limit exceeded")
			return
		}
		next.ServeHTTP(w, r)
	})
}

// clientIP returns the host part of the remote address,
// which RealIP sets from the proxy headers.
func clientIP(r *http.Request) string {
	host, _, err := net.SplitHostPort(r.RemoteAddr)
	if err != nil {
		return r.RemoteAddr
	}
	return host
}
