// Recgate - Order Recommendation Gateway and Cache
// Copyright 2026 Ordercast Authors
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/ordercast/recgate

package auth

import (
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"
	"time"

	"github.com/goccy/go-json"

	"github.com/ordercast/recgate/internal/config"
)

// recordingSink captures decisions for assertions.
type recordingSink struct {
	mu        sync.Mutex
	decisions []AuthDecision
}

func (s *recordingSink) RecordDecision(d AuthDecision) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.decisions = append(s.decisions, d)
}

func (s *recordingSink) all() []AuthDecision {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]AuthDecision(nil), s.decisions...)
}

func newTestMiddleware(t *testing.T, sink DecisionSink, cfg MiddlewareConfig) (*Middleware, *EnvelopeCodec) {
	t.Helper()

	a, codec := newTestAuthenticator(t, nil, nil)
	if cfg.RateLimitReqs == 0 {
		cfg.RateLimitReqs = 100
		cfg.RateLimitWindow = time.Minute
		cfg.RateLimitDisabled = true
	}

	m := NewMiddleware(a, nil, sink, cfg)
	t.Cleanup(m.rateLimiter.Stop)
	return m, codec
}

// okHandler marks that the request got through the middleware.
func okHandler(called *bool) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		*called = true
		w.WriteHeader(http.StatusOK)
	}
}

func TestMiddleware_Authenticate(t *testing.T) {
	t.Run("skip_path_bypasses_authentication", func(t *testing.T) {
		m, _ := newTestMiddleware(t, nil, MiddlewareConfig{
			SkipPaths: []string{"/", "/health", "/metrics", "/api/auth/login"},
		})

		called := false
		req := httptest.NewRequest(http.MethodGet, "/health", nil)
		rec := httptest.NewRecorder()
		m.Authenticate(okHandler(&called))(rec, req)

		if !called {
			t.Error("Expected handler to run without credentials on a skip path")
		}
		if rec.Code != http.StatusOK {
			t.Errorf("Expected status 200, got %d", rec.Code)
		}
	})

	t.Run("rejection_returns_legacy_error_body", func(t *testing.T) {
		m, _ := newTestMiddleware(t, nil, MiddlewareConfig{})

		called := false
		req := httptest.NewRequest(http.MethodPost, "/api/orders/submit", nil)
		rec := httptest.NewRecorder()
		m.Authenticate(okHandler(&called))(rec, req)

		if called {
			t.Error("Handler ran despite a missing credential header")
		}
		if rec.Code != http.StatusUnauthorized {
			t.Fatalf("Expected status 401, got %d", rec.Code)
		}
		if got := rec.Header().Get("Content-Type"); got != "application/json" {
			t.Errorf("Expected application/json, got %q", got)
		}

		var body struct {
			Code      int    `json:"code"`
			Msg       string `json:"msg"`
			Timestamp int64  `json:"timestamp"`
		}
		if err := json.Unmarshal(rec.Body.Bytes(), &body); err != nil {
			t.Fatalf("Unmarshal of error body failed: %v", err)
		}
		if body.Code != 401 || body.Msg != "Unauthorized" {
			t.Errorf("Expected code=401 msg=Unauthorized, got code=%d msg=%q", body.Code, body.Msg)
		}
		if body.Timestamp <= 0 {
			t.Errorf("Expected a millisecond timestamp, got %d", body.Timestamp)
		}
	})

	t.Run("rejection_body_is_uniform_across_reasons", func(t *testing.T) {
		m, codec := newTestMiddleware(t, nil, MiddlewareConfig{})

		env := testEnvelope()
		env.Timestamp = fixedNow.UnixMilli() - 10*time.Minute.Milliseconds()
		stale := buildHeader(t, codec, env)

		headers := map[string]string{
			"missing": "",
			"garbage": "AAAA",
			"stale":   stale,
		}
		var bodies []string
		for name, header := range headers {
			req := httptest.NewRequest(http.MethodPost, "/api/orders/submit", nil)
			if header != "" {
				req.Header.Set(EncryptHeader, header)
			}
			rec := httptest.NewRecorder()
			m.Authenticate(okHandler(new(bool)))(rec, req)
			if rec.Code != http.StatusUnauthorized {
				t.Fatalf("Case %s: expected 401, got %d", name, rec.Code)
			}

			var body struct {
				Code int    `json:"code"`
				Msg  string `json:"msg"`
			}
			if err := json.Unmarshal(rec.Body.Bytes(), &body); err != nil {
				t.Fatalf("Case %s: unmarshal failed: %v", name, err)
			}
			bodies = append(bodies, body.Msg)
		}
		for _, msg := range bodies {
			if msg != "Unauthorized" {
				t.Errorf("Rejection leaked a distinct message: %q", msg)
			}
		}
	})

	t.Run("accepted_request_carries_envelope_in_context", func(t *testing.T) {
		m, codec := newTestMiddleware(t, nil, MiddlewareConfig{})

		env := testEnvelope()
		header := buildHeader(t, codec, env)

		var gotEnv *Envelope
		handler := func(w http.ResponseWriter, r *http.Request) {
			gotEnv, _ = EnvelopeFromContext(r.Context())
			w.WriteHeader(http.StatusOK)
		}

		req := httptest.NewRequest(http.MethodPost, env.URL, nil)
		req.Header.Set(EncryptHeader, header)
		rec := httptest.NewRecorder()
		m.Authenticate(handler)(rec, req)

		if rec.Code != http.StatusOK {
			t.Fatalf("Expected status 200, got %d", rec.Code)
		}
		if gotEnv == nil || gotEnv.UserID != "user-42" {
			t.Errorf("Expected envelope for user-42 in context, got %+v", gotEnv)
		}
	})

	t.Run("decisions_reach_the_sink", func(t *testing.T) {
		sink := &recordingSink{}
		m, codec := newTestMiddleware(t, sink, MiddlewareConfig{})

		env := testEnvelope()
		req := httptest.NewRequest(http.MethodPost, env.URL, nil)
		req.Header.Set(EncryptHeader, buildHeader(t, codec, env))
		req.RemoteAddr = "192.0.2.10:51234"
		m.Authenticate(okHandler(new(bool)))(httptest.NewRecorder(), req)

		denied := httptest.NewRequest(http.MethodPost, env.URL, nil)
		denied.RemoteAddr = "192.0.2.11:51235"
		m.Authenticate(okHandler(new(bool)))(httptest.NewRecorder(), denied)

		decisions := sink.all()
		if len(decisions) != 2 {
			t.Fatalf("Expected 2 recorded decisions, got %d", len(decisions))
		}

		accepted := decisions[0]
		if !accepted.Accepted || accepted.UserID != "user-42" || accepted.SourceIP != "192.0.2.10" {
			t.Errorf("Unexpected accepted decision: %+v", accepted)
		}
		rejected := decisions[1]
		if rejected.Accepted || rejected.Reason != ReasonMissingHeader {
			t.Errorf("Unexpected rejected decision: %+v", rejected)
		}
		if rejected.Method != http.MethodPost || rejected.Path != env.URL {
			t.Errorf("Decision did not capture the request line: %+v", rejected)
		}
	})
}

func TestMiddleware_OpsAuthenticate(t *testing.T) {
	secCfg := &config.SecurityConfig{
		JWTSecret: "0123456789abcdef0123456789abcdef",
		JWTTTL:    time.Hour,
	}
	jwtManager, err := NewJWTManager(secCfg)
	if err != nil {
		t.Fatalf("NewJWTManager failed: %v", err)
	}

	a, _ := newTestAuthenticator(t, nil, nil)
	m := NewMiddleware(a, jwtManager, nil, MiddlewareConfig{
		RateLimitReqs:     100,
		RateLimitWindow:   time.Minute,
		RateLimitDisabled: true,
	})
	t.Cleanup(m.rateLimiter.Stop)

	tests := []struct {
		name       string
		authHeader func(t *testing.T) string
		status     int
	}{
		{
			name:       "missing_header",
			authHeader: func(t *testing.T) string { return "" },
			status:     http.StatusUnauthorized,
		},
		{
			name:       "wrong_scheme",
			authHeader: func(t *testing.T) string { return "Basic dXNlcjpwYXNz" },
			status:     http.StatusUnauthorized,
		},
		{
			name:       "bearer_without_token",
			authHeader: func(t *testing.T) string { return "Bearer" },
			status:     http.StatusUnauthorized,
		},
		{
			name:       "invalid_token",
			authHeader: func(t *testing.T) string { return "Bearer not.a.jwt" },
			status:     http.StatusUnauthorized,
		},
		{
			name: "valid_token",
			authHeader: func(t *testing.T) string {
				token, err := jwtManager.GenerateToken("ops-admin", "admin")
				if err != nil {
					t.Fatalf("GenerateToken failed: %v", err)
				}
				return "Bearer " + token
			},
			status: http.StatusOK,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			var claims *Claims
			handler := func(w http.ResponseWriter, r *http.Request) {
				claims, _ = ClaimsFromContext(r.Context())
				w.WriteHeader(http.StatusOK)
			}

			req := httptest.NewRequest(http.MethodGet, "/api/ops/stats", nil)
			if h := tt.authHeader(t); h != "" {
				req.Header.Set("Authorization", h)
			}
			rec := httptest.NewRecorder()
			m.OpsAuthenticate(handler)(rec, req)

			if rec.Code != tt.status {
				t.Fatalf("Expected status %d, got %d", tt.status, rec.Code)
			}
			if tt.status == http.StatusOK {
				if claims == nil || claims.Username != "ops-admin" || claims.Role != "admin" {
					t.Errorf("Expected admin claims in context, got %+v", claims)
				}
			}
		})
	}

	t.Run("no_jwt_manager_rejects_everything", func(t *testing.T) {
		bare := NewMiddleware(a, nil, nil, MiddlewareConfig{RateLimitDisabled: true})
		t.Cleanup(bare.rateLimiter.Stop)

		token, err := jwtManager.GenerateToken("ops-admin", "admin")
		if err != nil {
			t.Fatalf("GenerateToken failed: %v", err)
		}
		req := httptest.NewRequest(http.MethodGet, "/api/ops/stats", nil)
		req.Header.Set("Authorization", "Bearer "+token)
		rec := httptest.NewRecorder()
		bare.OpsAuthenticate(okHandler(new(bool)))(rec, req)

		if rec.Code != http.StatusUnauthorized {
			t.Errorf("Expected 401 without a token manager, got %d", rec.Code)
		}
	})
}

func TestMiddleware_RateLimit(t *testing.T) {
	a, _ := newTestAuthenticator(t, nil, nil)
	m := NewMiddleware(a, nil, nil, MiddlewareConfig{
		RateLimitReqs:   2,
		RateLimitWindow: time.Hour,
	})
	t.Cleanup(m.rateLimiter.Stop)

	handler := m.RateLimit(okHandler(new(bool)))

	for i := 0; i < 2; i++ {
		req := httptest.NewRequest(http.MethodGet, "/api/orders/recommendations/user-42", nil)
		req.RemoteAddr = "192.0.2.10:51234"
		rec := httptest.NewRecorder()
		handler(rec, req)
		if rec.Code != http.StatusOK {
			t.Fatalf("Request %d: expected 200, got %d", i+1, rec.Code)
		}
	}

	req := httptest.NewRequest(http.MethodGet, "/api/orders/recommendations/user-42", nil)
	req.RemoteAddr = "192.0.2.10:51234"
	rec := httptest.NewRecorder()
	handler(rec, req)
	if rec.Code != http.StatusTooManyRequests {
		t.Fatalf("Expected 429 after the budget is spent, got %d", rec.Code)
	}

	var body struct {
		Code int    `json:"code"`
		Msg  string `json:"msg"`
	}
	if err := json.Unmarshal(rec.Body.Bytes(), &body); err != nil {
		t.Fatalf("Unmarshal failed: %v", err)
	}
	if body.Code != http.StatusTooManyRequests || body.Msg != "Too Many Requests" {
		t.Errorf("Unexpected throttle body: %+v", body)
	}

	// A different client still has its own budget.
	other := httptest.NewRequest(http.MethodGet, "/api/orders/recommendations/user-7", nil)
	other.RemoteAddr = "192.0.2.99:40000"
	rec = httptest.NewRecorder()
	handler(rec, other)
	if rec.Code != http.StatusOK {
		t.Errorf("Expected an unrelated IP to pass, got %d", rec.Code)
	}
}

func TestMiddleware_GetClientIP(t *testing.T) {
	a, _ := newTestAuthenticator(t, nil, nil)

	tests := []struct {
		name       string
		remoteAddr string
		xff        string
		xri        string
		trustProxy bool
		want       string
	}{
		{
			name:       "remote_addr_host_port",
			remoteAddr: "192.0.2.10:51234",
			want:       "192.0.2.10",
		},
		{
			name:       "forwarded_for_ignored_by_default",
			remoteAddr: "192.0.2.10:51234",
			xff:        "203.0.113.7",
			want:       "192.0.2.10",
		},
		{
			name:       "forwarded_for_first_hop_when_trusted",
			remoteAddr: "10.0.0.1:443",
			xff:        "203.0.113.7, 10.0.0.1",
			trustProxy: true,
			want:       "203.0.113.7",
		},
		{
			name:       "real_ip_when_trusted",
			remoteAddr: "10.0.0.1:443",
			xri:        "203.0.113.9",
			trustProxy: true,
			want:       "203.0.113.9",
		},
		{
			name:       "invalid_forwarded_value_falls_back",
			remoteAddr: "10.0.0.1:443",
			xff:        "<script>",
			trustProxy: true,
			want:       "10.0.0.1",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			m := NewMiddleware(a, nil, nil, MiddlewareConfig{
				RateLimitDisabled: true,
				TrustProxyHeaders: tt.trustProxy,
			})
			t.Cleanup(m.rateLimiter.Stop)

			req := httptest.NewRequest(http.MethodGet, "/", nil)
			req.RemoteAddr = tt.remoteAddr
			if tt.xff != "" {
				req.Header.Set("X-Forwarded-For", tt.xff)
			}
			if tt.xri != "" {
				req.Header.Set("X-Real-IP", tt.xri)
			}

			if got := m.getClientIP(req); got != tt.want {
				t.Errorf("Expected %q, got %q", tt.want, got)
			}
		})
	}
}

func TestBearerToken(t *testing.T) {
	tests := []struct {
		header string
		token  string
		ok     bool
	}{
		{"", "", false},
		{"Bearer", "", false},
		{"Bearer ", "", false},
		{"Basic abc", "", false},
		{"Bearer abc.def.ghi", "abc.def.ghi", true},
	}

	for _, tt := range tests {
		token, ok := bearerToken(tt.header)
		if token != tt.token || ok != tt.ok {
			t.Errorf("bearerToken(%q) = (%q, %v), expected (%q, %v)", tt.header, token, ok, tt.token, tt.ok)
		}
	}
}
