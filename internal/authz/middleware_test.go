// Recgate - Order Recommendation Gateway and Cache
// Copyright 2026 Ordercast Authors
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/ordercast/recgate

package authz

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/ordercast/recgate/internal/audit"
	"github.com/ordercast/recgate/internal/auth"
)

// requestAs builds a request carrying operator claims, as
// auth.OpsAuthenticate would leave them.
func requestAs(method, target, username, role string) *http.Request {
	req := httptest.NewRequest(method, target, nil)
	claims := &auth.Claims{Username: username, Role: role}
	ctx := context.WithValue(req.Context(), auth.ClaimsContextKey, claims)
	return req.WithContext(ctx)
}

func setupMiddleware(t *testing.T) *Middleware {
	t.Helper()
	return NewMiddleware(setupEnforcer(t), nil)
}

func TestMiddleware_Authorize_Allowed(t *testing.T) {
	mw := setupMiddleware(t)

	called := false
	handler := mw.Authorize("/api/ops/stats", "read", func(w http.ResponseWriter, r *http.Request) {
		called = true
		w.WriteHeader(http.StatusOK)
	})

	rec := httptest.NewRecorder()
	handler(rec, requestAs(http.MethodGet, "/api/ops/stats", "alice", "admin"))

	if rec.Code != http.StatusOK {
		t.Errorf("status = %d, want 200", rec.Code)
	}
	if !called {
		t.Error("handler was not called")
	}
}

func TestMiddleware_Authorize_DeniedRole(t *testing.T) {
	mw := setupMiddleware(t)

	called := false
	handler := mw.Authorize("/api/ops/cache/12345", "delete", func(w http.ResponseWriter, r *http.Request) {
		called = true
	})

	rec := httptest.NewRecorder()
	handler(rec, requestAs(http.MethodDelete, "/api/ops/cache/12345", "bob", "viewer"))

	if rec.Code != http.StatusForbidden {
		t.Errorf("status = %d, want 403", rec.Code)
	}
	if called {
		t.Error("handler should not run on denial")
	}
	if ct := rec.Header().Get("Content-Type"); ct != "application/json" {
		t.Errorf("Content-Type = %q, want application/json", ct)
	}
}

func TestMiddleware_Authorize_NoClaims(t *testing.T) {
	mw := setupMiddleware(t)

	handler := mw.Authorize("/api/ops/stats", "read", func(w http.ResponseWriter, r *http.Request) {
		t.Error("handler should not run without claims")
	})

	rec := httptest.NewRecorder()
	handler(rec, httptest.NewRequest(http.MethodGet, "/api/ops/stats", nil))

	if rec.Code != http.StatusForbidden {
		t.Errorf("status = %d, want 403", rec.Code)
	}
}

func TestMiddleware_Authorize_AuditsDenial(t *testing.T) {
	store := audit.NewMemoryStore(100)
	logger := audit.NewLogger(store, audit.DefaultConfig())
	defer logger.Close()

	mw := NewMiddleware(setupEnforcer(t), logger)

	handler := mw.Authorize("/api/ops/cache/12345", "delete", func(w http.ResponseWriter, r *http.Request) {})
	rec := httptest.NewRecorder()
	req := requestAs(http.MethodDelete, "/api/ops/cache/12345", "bob", "viewer")
	req.RemoteAddr = "10.1.2.3:41000"
	handler(rec, req)

	deadline := time.Now().Add(2 * time.Second)
	var events []audit.Event
	for time.Now().Before(deadline) {
		events, _ = store.Query(context.Background(), audit.QueryFilter{Limit: 10})
		if len(events) > 0 {
			break
		}
		time.Sleep(10 * time.Millisecond)
	}
	if len(events) != 1 {
		t.Fatalf("audit events = %d, want 1", len(events))
	}

	ev := events[0]
	if ev.Type != audit.EventTypeAuthzDenied {
		t.Errorf("event type = %q, want %q", ev.Type, audit.EventTypeAuthzDenied)
	}
	if ev.Actor.ID != "bob" || ev.Actor.Type != "operator" {
		t.Errorf("actor = %+v, want operator bob", ev.Actor)
	}
	if ev.Source.IPAddress != "10.1.2.3" {
		t.Errorf("source ip = %q, want 10.1.2.3", ev.Source.IPAddress)
	}
	if ev.Target == nil || ev.Target.ID != "/api/ops/cache/12345" {
		t.Errorf("target = %+v, want the denied resource", ev.Target)
	}
}

func TestMiddleware_AuthorizeRequest(t *testing.T) {
	mw := setupMiddleware(t)

	handler := mw.AuthorizeRequest(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
	})

	tests := []struct {
		name     string
		method   string
		path     string
		username string
		role     string
		want     int
	}{
		{"viewer can read", http.MethodGet, "/api/ops/stats", "bob", "viewer", http.StatusOK},
		{"viewer cannot delete", http.MethodDelete, "/api/ops/cache/1", "bob", "viewer", http.StatusForbidden},
		{"viewer cannot post", http.MethodPost, "/api/ops/audit", "bob", "viewer", http.StatusForbidden},
		{"admin can delete", http.MethodDelete, "/api/ops/cache/1", "alice", "admin", http.StatusOK},
		{"admin can post", http.MethodPost, "/api/ops/audit", "alice", "admin", http.StatusOK},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rec := httptest.NewRecorder()
			handler(rec, requestAs(tt.method, tt.path, tt.username, tt.role))
			if rec.Code != tt.want {
				t.Errorf("status = %d, want %d", rec.Code, tt.want)
			}
		})
	}
}

func TestMiddleware_AuthorizeRequest_NoClaims(t *testing.T) {
	mw := setupMiddleware(t)

	handler := mw.AuthorizeRequest(func(w http.ResponseWriter, r *http.Request) {
		t.Error("handler should not run without claims")
	})

	rec := httptest.NewRecorder()
	handler(rec, httptest.NewRequest(http.MethodGet, "/api/ops/stats", nil))

	if rec.Code != http.StatusForbidden {
		t.Errorf("status = %d, want 403", rec.Code)
	}
}

func TestMethodToAction(t *testing.T) {
	tests := []struct {
		method string
		want   string
	}{
		{http.MethodGet, "read"},
		{http.MethodHead, "read"},
		{http.MethodOptions, "read"},
		{http.MethodPost, "write"},
		{http.MethodPut, "write"},
		{http.MethodPatch, "write"},
		{http.MethodDelete, "delete"},
		{"TRACE", "read"},
	}

	for _, tt := range tests {
		t.Run(tt.method, func(t *testing.T) {
			if got := methodToAction(tt.method); got != tt.want {
				t.Errorf("methodToAction(%q) = %q, want %q", tt.method, got, tt.want)
			}
		})
	}
}
