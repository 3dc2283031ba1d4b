// Recgate - Order Recommendation Gateway and Cache
// Copyright 2026 Ordercast Authors
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/ordercast/recgate

package services

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/thejerf/suture/v4"
)

// mockSweeper counts sweep calls and returns a configurable result.
type mockSweeper struct {
	sweepCount atomic.Int32
	removed    int
	err        error
	mu         sync.Mutex
}

func (m *mockSweeper) SweepExpired(ctx context.Context) (int, error) {
	m.sweepCount.Add(1)
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.removed, m.err
}

func (m *mockSweeper) setResult(removed int, err error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.removed = removed
	m.err = err
}

func waitForCalls(t *testing.T, count func() int32, want int32) {
	t.Helper()
	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) {
		if count() >= want {
			return
		}
		time.Sleep(5 * time.Millisecond)
	}
	t.Fatalf("expected at least %d calls, got %d", want, count())
}

func TestNonceSweeperService_Interface(t *testing.T) {
	var _ suture.Service = (*NonceSweeperService)(nil)
}

func TestNewNonceSweeperService_DefaultInterval(t *testing.T) {
	svc := NewNonceSweeperService(&mockSweeper{}, 0, zerolog.Nop())
	if svc.interval != time.Minute {
		t.Errorf("expected default interval 1m, got %v", svc.interval)
	}

	svc = NewNonceSweeperService(&mockSweeper{}, -time.Second, zerolog.Nop())
	if svc.interval != time.Minute {
		t.Errorf("expected default interval 1m, got %v", svc.interval)
	}
}

func TestNonceSweeperService_Serve(t *testing.T) {
	t.Run("sweeps on each tick", func(t *testing.T) {
		sweeper := &mockSweeper{}
		sweeper.setResult(3, nil)
		svc := NewNonceSweeperService(sweeper, 10*time.Millisecond, zerolog.Nop())

		ctx, cancel := context.WithCancel(context.Background())
		defer cancel()

		done := make(chan error, 1)
		go func() {
			done <- svc.Serve(ctx)
		}()

		waitForCalls(t, sweeper.sweepCount.Load, 2)

		cancel()
		select {
		case err := <-done:
			if !errors.Is(err, context.Canceled) {
				t.Errorf("expected context.Canceled, got %v", err)
			}
		case <-time.After(time.Second):
			t.Error("service did not stop in time")
		}
	})

	t.Run("continues after sweep errors", func(t *testing.T) {
		sweeper := &mockSweeper{}
		sweeper.setResult(0, errors.New("ledger unavailable"))
		svc := NewNonceSweeperService(sweeper, 10*time.Millisecond, zerolog.Nop())

		ctx, cancel := context.WithCancel(context.Background())
		defer cancel()

		done := make(chan error, 1)
		go func() {
			done <- svc.Serve(ctx)
		}()

		// Two calls after a failure proves the loop survived it.
		waitForCalls(t, sweeper.sweepCount.Load, 3)

		cancel()
		if err := <-done; !errors.Is(err, context.Canceled) {
			t.Errorf("expected context.Canceled, got %v", err)
		}
	})

	t.Run("stops before first tick when canceled", func(t *testing.T) {
		sweeper := &mockSweeper{}
		svc := NewNonceSweeperService(sweeper, time.Hour, zerolog.Nop())

		ctx, cancel := context.WithCancel(context.Background())
		cancel()

		if err := svc.Serve(ctx); !errors.Is(err, context.Canceled) {
			t.Errorf("expected context.Canceled, got %v", err)
		}
		if sweeper.sweepCount.Load() != 0 {
			t.Errorf("expected no sweeps, got %d", sweeper.sweepCount.Load())
		}
	})
}

func TestNonceSweeperService_String(t *testing.T) {
	svc := NewNonceSweeperService(&mockSweeper{}, time.Minute, zerolog.Nop())
	if svc.String() != "nonce-sweeper" {
		t.Errorf("expected 'nonce-sweeper', got %q", svc.String())
	}
}
