// Recgate - Order Recommendation Gateway and Cache
// Copyright 2026 Ordercast Authors
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/ordercast/recgate

package recommend

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	json "github.com/goccy/go-json"

	"github.com/ordercast/recgate/internal/config"
)

func engineConfig(url string) config.EngineConfig {
	return config.EngineConfig{
		URL:             url,
		Timeout:         2 * time.Second,
		MaxItems:        5,
		BreakerFailures: 2,
		BreakerCooldown: time.Minute,
	}
}

func TestNullSource(t *testing.T) {
	items, err := NullSource{}.Recommend(context.Background(), "user-1", nil)
	if err != nil {
		t.Fatalf("Recommend failed: %v", err)
	}
	if items != nil {
		t.Errorf("Expected no items, got %v", items)
	}
}

func TestHTTPSource_Recommend(t *testing.T) {
	ctx := context.Background()

	var gotReq engineRequest
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodPost {
			t.Errorf("Method = %s, want POST", r.Method)
		}
		if r.URL.Path != "/api/v1/recommend" {
			t.Errorf("Path = %s, want /api/v1/recommend", r.URL.Path)
		}
		if ct := r.Header.Get("Content-Type"); ct != "application/json" {
			t.Errorf("Content-Type = %s, want application/json", ct)
		}
		if err := json.NewDecoder(r.Body).Decode(&gotReq); err != nil {
			t.Errorf("Failed to decode request: %v", err)
		}

		_ = json.NewEncoder(w).Encode(engineResponse{Items: []Item{
			{ID: "order-9", Title: "Poster print", SimilarityScore: 0.93},
			{ID: "order-7", Title: "Flyer batch", Promotion: true, SimilarityScore: 0.88},
		}})
	}))
	defer server.Close()

	source := NewHTTPSource(engineConfig(server.URL))

	seed := &Order{ID: "order-1", UserID: "user-1", Title: "Logo design"}
	items, err := source.Recommend(ctx, "user-1", seed)
	if err != nil {
		t.Fatalf("Recommend failed: %v", err)
	}

	if len(items) != 2 {
		t.Fatalf("Got %d items, want 2", len(items))
	}
	if items[0].ID != "order-9" || items[1].ID != "order-7" {
		t.Errorf("Items = [%s, %s], want [order-9, order-7]", items[0].ID, items[1].ID)
	}

	if gotReq.UserID != "user-1" {
		t.Errorf("Request userId = %q, want user-1", gotReq.UserID)
	}
	if gotReq.MaxItems != 5 {
		t.Errorf("Request maxItems = %d, want 5", gotReq.MaxItems)
	}
	if gotReq.Seed == nil || gotReq.Seed.ID != "order-1" {
		t.Errorf("Request seed = %+v, want order-1", gotReq.Seed)
	}
}

func TestHTTPSource_NilSeedOmitted(t *testing.T) {
	ctx := context.Background()

	var rawBody map[string]any
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_ = json.NewDecoder(r.Body).Decode(&rawBody)
		_ = json.NewEncoder(w).Encode(engineResponse{})
	}))
	defer server.Close()

	source := NewHTTPSource(engineConfig(server.URL))
	if _, err := source.Recommend(ctx, "user-1", nil); err != nil {
		t.Fatalf("Recommend failed: %v", err)
	}

	if _, present := rawBody["seed"]; present {
		t.Error("Nil seed should be omitted from the request body")
	}
}

func TestHTTPSource_EngineErrors(t *testing.T) {
	ctx := context.Background()

	t.Run("http_error_status", func(t *testing.T) {
		server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			http.Error(w, "overloaded", http.StatusServiceUnavailable)
		}))
		defer server.Close()

		source := NewHTTPSource(engineConfig(server.URL))
		if _, err := source.Recommend(ctx, "user-1", nil); err == nil {
			t.Error("Expected error for 503 response")
		}
	})

	t.Run("malformed_response", func(t *testing.T) {
		server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			_, _ = w.Write([]byte("not json at all"))
		}))
		defer server.Close()

		source := NewHTTPSource(engineConfig(server.URL))
		if _, err := source.Recommend(ctx, "user-1", nil); err == nil {
			t.Error("Expected error for malformed body")
		}
	})

	t.Run("unreachable_engine", func(t *testing.T) {
		source := NewHTTPSource(engineConfig("http://127.0.0.1:1"))
		if _, err := source.Recommend(ctx, "user-1", nil); err == nil {
			t.Error("Expected error for unreachable engine")
		}
	})
}

// TestHTTPSource_BreakerOpens drives the client past its failure
// threshold and checks that further calls fail fast without touching
// the engine.
func TestHTTPSource_BreakerOpens(t *testing.T) {
	ctx := context.Background()

	var hits atomic.Int64
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		hits.Add(1)
		http.Error(w, "boom", http.StatusInternalServerError)
	}))
	defer server.Close()

	source := NewHTTPSource(engineConfig(server.URL)) // Opens after 2 consecutive failures

	for i := 0; i < 2; i++ {
		_, err := source.Recommend(ctx, "user-1", nil)
		if err == nil {
			t.Fatalf("Call %d: expected failure", i+1)
		}
		if errors.Is(err, ErrEngineUnavailable) {
			t.Fatalf("Call %d: breaker opened too early", i+1)
		}
	}

	_, err := source.Recommend(ctx, "user-1", nil)
	if !errors.Is(err, ErrEngineUnavailable) {
		t.Fatalf("Expected ErrEngineUnavailable once open, got: %v", err)
	}

	if got := hits.Load(); got != 2 {
		t.Errorf("Engine saw %d requests, want 2 (open circuit must not call through)", got)
	}
}
