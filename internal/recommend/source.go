// Recgate - Order Recommendation Gateway and Cache
// Copyright 2026 Ordercast Authors
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/ordercast/recgate

package recommend

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"net/http"

	json "github.com/goccy/go-json"
	gobreaker "github.com/sony/gobreaker/v2"

	"github.com/ordercast/recgate/internal/config"
	"github.com/ordercast/recgate/internal/logging"
	"github.com/ordercast/recgate/internal/metrics"
)

// ErrEngineUnavailable reports that the engine circuit is open and no
// call was attempted. Callers degrade to empty recommendations.
var ErrEngineUnavailable = errors.New("recommendation engine unavailable")

// Source produces recommendation items for a user. The similarity
// computation itself lives behind this interface; the gateway only
// caches and invalidates what comes back.
type Source interface {
	// Recommend returns ranked items for the user. seed is the order
	// that triggered the computation and may be nil on refresh.
	Recommend(ctx context.Context, userID string, seed *Order) ([]Item, error)
}

// NullSource is the engine-disabled Source. Every call yields no
// items, which writes empty pools downstream.
type NullSource struct{}

// Recommend implements Source.
func (NullSource) Recommend(context.Context, string, *Order) ([]Item, error) {
	return nil, nil
}

// engineRequest is the body posted to the engine.
type engineRequest struct {
	UserID   string `json:"userId"`
	Seed     *Order `json:"seed,omitempty"`
	MaxItems int    `json:"maxItems"`
}

// engineResponse is the body the engine answers with.
type engineResponse struct {
	Items []Item `json:"items"`
}

// HTTPSource calls an external recommendation engine over HTTP with a
// circuit breaker in front. The breaker opens after a run of
// consecutive failures and stays open for the configured cooldown, so
// a dead engine costs submits one fast error instead of a timeout
// each.
type HTTPSource struct {
	url      string
	maxItems int
	client   *http.Client
	cb       *gobreaker.CircuitBreaker[[]Item]
}

var (
	_ Source = (*HTTPSource)(nil)
	_ Source = NullSource{}
)

// NewHTTPSource creates an engine client from config. The caller has
// already validated cfg (non-empty URL, positive timeout).
func NewHTTPSource(cfg config.EngineConfig) *HTTPSource {
	cb := gobreaker.NewCircuitBreaker[[]Item](gobreaker.Settings{
		Name:        "recommend-engine",
		MaxRequests: 1, // Single probe in half-open state
		Timeout:     cfg.BreakerCooldown,

		ReadyToTrip: func(counts gobreaker.Counts) bool {
			return counts.ConsecutiveFailures >= cfg.BreakerFailures
		},

		OnStateChange: func(name string, from, to gobreaker.State) {
			logging.Info().
				Str("breaker", name).
				Str("from", from.String()).
				Str("to", to.String()).
				Msg("Engine circuit breaker state change")
		},
	})

	return &HTTPSource{
		url:      cfg.URL,
		maxItems: cfg.MaxItems,
		client:   &http.Client{Timeout: cfg.Timeout},
		cb:       cb,
	}
}

// Recommend implements Source.
func (s *HTTPSource) Recommend(ctx context.Context, userID string, seed *Order) ([]Item, error) {
	items, err := s.cb.Execute(func() ([]Item, error) {
		return s.fetch(ctx, userID, seed)
	})
	if err != nil {
		if errors.Is(err, gobreaker.ErrOpenState) || errors.Is(err, gobreaker.ErrTooManyRequests) {
			metrics.RecordEngineRequest("breaker_open")
			return nil, ErrEngineUnavailable
		}
		metrics.RecordEngineRequest("error")
		return nil, err
	}
	metrics.RecordEngineRequest("ok")
	return items, nil
}

func (s *HTTPSource) fetch(ctx context.Context, userID string, seed *Order) ([]Item, error) {
	body, err := json.Marshal(engineRequest{
		UserID:   userID,
		Seed:     seed,
		MaxItems: s.maxItems,
	})
	if err != nil {
		return nil, fmt.Errorf("encode engine request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, s.url+"/api/v1/recommend", bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("build engine request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := s.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("call engine: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("engine returned status %d", resp.StatusCode)
	}

	var out engineResponse
	if err := json.NewDecoder(resp.Body).Decode(&out); err != nil {
		return nil, fmt.Errorf("decode engine response: %w", err)
	}
	return out.Items, nil
}
