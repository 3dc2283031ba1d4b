// Recgate - Order Recommendation Gateway and Cache
// Copyright 2026 Ordercast Authors
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/ordercast/recgate

package auth

import (
	"context"
	"net"
	"net/http"
	"strings"
	"sync"
	"time"

	"github.com/goccy/go-json"
	"golang.org/x/time/rate"

	"github.com/ordercast/recgate/internal/logging"
)

type contextKey string

// Context keys for authenticated request state.
const (
	EnvelopeContextKey contextKey = "envelope"
	CallerContextKey   contextKey = "caller"
	ClaimsContextKey   contextKey = "claims"
)

// EncryptHeader is the request header carrying the encrypted envelope.
const EncryptHeader = "x-encrypt-key"

// legacyError is the uniform error body the gateway returns for
// rejected requests. Existing callers parse exactly this shape.
type legacyError struct {
	Code      int    `json:"code"`
	Msg       string `json:"msg"`
	Timestamp int64  `json:"timestamp"`
}

// WriteUnauthorized writes the uniform 401 body. Every rejection looks
// identical from outside regardless of which check failed.
func WriteUnauthorized(w http.ResponseWriter) {
	writeLegacyError(w, http.StatusUnauthorized, "Unauthorized")
}

// WriteForbidden writes the uniform 403 body used when an authenticated
// operator lacks the required permission.
func WriteForbidden(w http.ResponseWriter) {
	writeLegacyError(w, http.StatusForbidden, "Forbidden")
}

func writeLegacyError(w http.ResponseWriter, code int, msg string) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	body, err := json.Marshal(legacyError{
		Code:      code,
		Msg:       msg,
		Timestamp: time.Now().UnixMilli(),
	})
	if err != nil {
		return
	}
	_, _ = w.Write(body)
}

// AuthDecision is one authentication verdict for the audit trail.
type AuthDecision struct {
	Time      time.Time
	Accepted  bool
	Reason    Reason
	Path      string
	Method    string
	SourceIP  string
	Caller    string
	UserID    string
	RequestID string
}

// DecisionSink receives authentication decisions. Implementations must
// not block; the gateway calls this on the request path.
type DecisionSink interface {
	RecordDecision(decision AuthDecision)
}

// Middleware gates the API surface behind envelope authentication and
// provides rate limiting and the operator token check.
type Middleware struct {
	authenticator *Authenticator
	skipPaths     map[string]bool
	sink          DecisionSink

	jwtManager *JWTManager

	rateLimiter       *RateLimiter
	rateLimitDisabled bool

	trustProxyHeaders bool
}

// MiddlewareConfig configures the gateway middleware.
type MiddlewareConfig struct {
	// SkipPaths bypass envelope authentication entirely (exact match).
	SkipPaths []string

	// RateLimitReqs and RateLimitWindow bound requests per client IP.
	RateLimitReqs     int
	RateLimitWindow   time.Duration
	RateLimitDisabled bool

	// TrustProxyHeaders honors X-Forwarded-For / X-Real-IP for client
	// IP resolution. Enable only behind a proxy that sets them.
	TrustProxyHeaders bool
}

// NewMiddleware creates the gateway middleware. sink may be nil to
// disable audit recording; jwtManager may be nil when no ops API is
// configured.
func NewMiddleware(authenticator *Authenticator, jwtManager *JWTManager, sink DecisionSink, cfg MiddlewareConfig) *Middleware {
	skip := make(map[string]bool, len(cfg.SkipPaths))
	for _, p := range cfg.SkipPaths {
		skip[p] = true
	}

	m := &Middleware{
		authenticator:     authenticator,
		skipPaths:         skip,
		sink:              sink,
		jwtManager:        jwtManager,
		rateLimiter:       NewRateLimiter(cfg.RateLimitReqs, cfg.RateLimitWindow),
		rateLimitDisabled: cfg.RateLimitDisabled,
		trustProxyHeaders: cfg.TrustProxyHeaders,
	}

	// Start periodic cleanup for rate limiter (only if not disabled)
	if !cfg.RateLimitDisabled {
		go m.rateLimiter.startCleanup(5 * time.Minute)
	}

	return m
}

// Authenticate is middleware that enforces envelope authentication.
func (m *Middleware) Authenticate(next http.HandlerFunc) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if m.skipPaths[r.URL.Path] {
			next(w, r)
			return
		}

		sourceIP := m.getClientIP(r)
		header := r.Header.Get(EncryptHeader)
		outcome := m.authenticator.Authenticate(r.Context(), header, r.URL.Path, sourceIP)

		m.recordDecision(r, outcome, sourceIP)

		if !outcome.Accepted {
			logging.Ctx(r.Context()).Warn().
				Str("reason", string(outcome.Reason)).
				Str("path", r.URL.Path).
				Str("source_ip", sourceIP).
				Msg("Request rejected")
			WriteUnauthorized(w)
			return
		}

		ctx := context.WithValue(r.Context(), EnvelopeContextKey, outcome.Envelope)
		if outcome.Caller != "" {
			ctx = context.WithValue(ctx, CallerContextKey, outcome.Caller)
		}
		next(w, r.WithContext(ctx))
	}
}

// recordDecision forwards the verdict to the audit sink.
func (m *Middleware) recordDecision(r *http.Request, outcome Outcome, sourceIP string) {
	if m.sink == nil {
		return
	}
	decision := AuthDecision{
		Time:      time.Now(),
		Accepted:  outcome.Accepted,
		Reason:    outcome.Reason,
		Path:      r.URL.Path,
		Method:    r.Method,
		SourceIP:  sourceIP,
		Caller:    outcome.Caller,
		RequestID: logging.RequestIDFromContext(r.Context()),
	}
	if outcome.Envelope != nil {
		decision.UserID = outcome.Envelope.UserID
	}
	m.sink.RecordDecision(decision)
}

// OpsAuthenticate is middleware that enforces a Bearer operator token.
func (m *Middleware) OpsAuthenticate(next http.HandlerFunc) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if m.jwtManager == nil {
			WriteUnauthorized(w)
			return
		}

		token, ok := bearerToken(r.Header.Get("Authorization"))
		if !ok {
			WriteUnauthorized(w)
			return
		}

		claims, err := m.jwtManager.ValidateToken(token)
		if err != nil {
			logging.Ctx(r.Context()).Warn().Err(err).Msg("Operator token rejected")
			WriteUnauthorized(w)
			return
		}

		ctx := context.WithValue(r.Context(), ClaimsContextKey, claims)
		next(w, r.WithContext(ctx))
	}
}

// bearerToken extracts the token from an Authorization header.
func bearerToken(header string) (string, bool) {
	if header == "" {
		return "", false
	}
	parts := strings.SplitN(header, " ", 2)
	if len(parts) != 2 || parts[0] != "Bearer" || parts[1] == "" {
		return "", false
	}
	return parts[1], true
}

// RateLimit is middleware that enforces per-IP rate limiting.
func (m *Middleware) RateLimit(next http.HandlerFunc) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if m.rateLimitDisabled {
			next(w, r)
			return
		}

		ip := m.getClientIP(r)
		if !m.rateLimiter.Allow(ip) {
			writeLegacyError(w, http.StatusTooManyRequests, "Too Many Requests")
			return
		}
		next(w, r)
	}
}

// getClientIP extracts the client IP address from the request.
// Forwarding headers are honored only when TrustProxyHeaders is set.
func (m *Middleware) getClientIP(r *http.Request) string {
	host, _, err := net.SplitHostPort(r.RemoteAddr)
	if err != nil {
		host = r.RemoteAddr
	}

	if !m.trustProxyHeaders {
		return host
	}

	if xff := r.Header.Get("X-Forwarded-For"); xff != "" {
		first := strings.TrimSpace(strings.Split(xff, ",")[0])
		if net.ParseIP(first) != nil {
			return first
		}
	}
	if xri := r.Header.Get("X-Real-IP"); xri != "" && net.ParseIP(xri) != nil {
		return xri
	}
	return host
}

// EnvelopeFromContext returns the authenticated envelope stored by the
// Authenticate middleware.
func EnvelopeFromContext(ctx context.Context) (*Envelope, bool) {
	e, ok := ctx.Value(EnvelopeContextKey).(*Envelope)
	return e, ok
}

// CallerFromContext returns the resolved caller ID, when the
// allow-list is enabled.
func CallerFromContext(ctx context.Context) (string, bool) {
	c, ok := ctx.Value(CallerContextKey).(string)
	return c, ok
}

// ClaimsFromContext returns operator claims stored by OpsAuthenticate.
func ClaimsFromContext(ctx context.Context) (*Claims, bool) {
	c, ok := ctx.Value(ClaimsContextKey).(*Claims)
	return c, ok
}

// RateLimiter implements per-IP rate limiting with automatic cleanup
type RateLimiter struct {
	limiters  map[string]*rateLimiterEntry
	mu        sync.RWMutex
	rate      rate.Limit
	burst     int
	stopClean chan struct{}
}

// rateLimiterEntry wraps a rate limiter with last access time
type rateLimiterEntry struct {
	limiter    *rate.Limiter
	lastAccess time.Time
}

// NewRateLimiter creates a new rate limiter
func NewRateLimiter(reqsPerWindow int, window time.Duration) *RateLimiter {
	if reqsPerWindow < 1 {
		reqsPerWindow = 1
	}
	if window <= 0 {
		window = time.Minute
	}
	r := rate.Limit(float64(reqsPerWindow) / window.Seconds())
	return &RateLimiter{
		limiters:  make(map[string]*rateLimiterEntry),
		rate:      r,
		burst:     reqsPerWindow,
		stopClean: make(chan struct{}),
	}
}

// Allow checks if a request from the given IP is allowed
func (rl *RateLimiter) Allow(ip string) bool {
	rl.mu.Lock()
	entry, exists := rl.limiters[ip]
	if !exists {
		entry = &rateLimiterEntry{
			limiter:    rate.NewLimiter(rl.rate, rl.burst),
			lastAccess: time.Now(),
		}
		rl.limiters[ip] = entry
	} else {
		entry.lastAccess = time.Now()
	}
	limiter := entry.limiter
	rl.mu.Unlock()

	return limiter.Allow()
}

// startCleanup periodically removes stale rate limiters
func (rl *RateLimiter) startCleanup(interval time.Duration) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			rl.cleanup()
		case <-rl.stopClean:
			return
		}
	}
}

// cleanup removes rate limiters that haven't been accessed in the last hour
func (rl *RateLimiter) cleanup() {
	rl.mu.Lock()
	defer rl.mu.Unlock()

	threshold := time.Now().Add(-1 * time.Hour)
	for ip, entry := range rl.limiters {
		if entry.lastAccess.Before(threshold) {
			delete(rl.limiters, ip)
		}
	}
}

// Stop stops the cleanup goroutine
func (rl *RateLimiter) Stop() {
	close(rl.stopClean)
}
