package middleware

import (
	"net/http"
	"strings"
	"sync"
	"time"

	"github.com/plainmed/plainmed/config"
	"github.com/plainmed/plainmed/errors"
	"github.com/plainmed/plainmed/server/metrics"
	"golang.org/x/time/rate"
)

// RateLimiter implements per-client-IP rate limiting for the /api routes.
// It is an injected dependency rather than package state, so servers in
// tests get isolated counters and the limits can be retuned at runtime
// through the config watcher.
type RateLimiter struct {
	metrics *metrics.Metrics

	mu       sync.Mutex
	visitors map[string]*rate.Limiter
	enabled  bool
	limit    rate.Limit
	burst    int
	window   time.Duration
}

// NewRateLimiter creates a rate limiter from configuration. A nil metrics
// instance disables hit counting (used by tests).
func NewRateLimiter(cfg config.RateLimitConfig, m *metrics.Metrics) *RateLimiter {
	rl := &RateLimiter{
		metrics:  m,
		visitors: make(map[string]*rate.Limiter),
	}
	rl.apply(cfg)
	return rl
}

// Update replaces the limiter settings and resets all per-client state.
// Called when the config watcher delivers a new configuration.
func (rl *RateLimiter) Update(cfg config.RateLimitConfig) {
	rl.mu.Lock()
	defer rl.mu.Unlock()
	rl.applyLocked(cfg)
}

func (rl *RateLimiter) apply(cfg config.RateLimitConfig) {
	rl.mu.Lock()
	defer rl.mu.Unlock()
	rl.applyLocked(cfg)
}

func (rl *RateLimiter) applyLocked(cfg config.RateLimitConfig) {
	rl.enabled = cfg.Enabled
	rl.window = cfg.Window
	rl.burst = cfg.Requests
	if cfg.Requests > 0 && cfg.Window > 0 {
		// A bucket of size Requests refilled evenly over Window approximates
		// the fixed-window budget of the documented policy.
		rl.limit = rate.Every(cfg.Window / time.Duration(cfg.Requests))
	}
	rl.visitors = make(map[string]*rate.Limiter)
}

func (rl *RateLimiter) allow(ip string) bool {
	rl.mu.Lock()
	defer rl.mu.Unlock()

	if !rl.enabled {
		return true
	}

	limiter, ok := rl.visitors[ip]
	if !ok {
		limiter = rate.NewLimiter(rl.limit, rl.burst)
		rl.visitors[ip] = limiter
	}
	return limiter.Allow()
}

// Reset clears all per-client state. Only used for testing.
func (rl *RateLimiter) Reset() {
	rl.mu.Lock()
	defer rl.mu.Unlock()
	rl.visitors = make(map[string]*rate.Limiter)
}

// Middleware returns the chi-compatible middleware applying the limit.
func (rl *RateLimiter) Middleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		ip := clientIP(r)

		if !rl.allow(ip) {
			if rl.metrics != nil {
				rl.metrics.RateLimitHits.WithLabelValues(ip).Inc()
			}

			rl.mu.Lock()
			retryAfter := int(rl.window.Seconds())
			rl.mu.Unlock()

			errors.WriteError(w, errors.NewRateLimitError(
				GetRequestID(r.Context()),
				retryAfter,
			))
			return
		}

		next.ServeHTTP(w, r)
	})
}

// clientIP strips the port from RemoteAddr if present.
func clientIP(r *http.Request) string {
	ip := r.RemoteAddr
	if idx := strings.LastIndex(ip, ":"); idx != -1 {
		ip = ip[:idx]
	}
	return ip
}
