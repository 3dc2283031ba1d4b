// Recgate - Order Recommendation Gateway and Cache
// Copyright 2026 Ordercast Authors
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/ordercast/recgate

package services

import (
	"context"
	"errors"
	"sync/atomic"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/thejerf/suture/v4"
)

// mockRunner blocks in Serve until its context is canceled, like the
// real task runner.
type mockRunner struct {
	serveCount atomic.Int32
	serveErr   error
}

func (m *mockRunner) Serve(ctx context.Context) error {
	m.serveCount.Add(1)
	if m.serveErr != nil {
		return m.serveErr
	}
	<-ctx.Done()
	return ctx.Err()
}

func TestRefreshRunnerService_Interface(t *testing.T) {
	var _ suture.Service = (*RefreshRunnerService)(nil)
}

func TestRefreshRunnerService_Serve(t *testing.T) {
	t.Run("delegates to the runner until cancellation", func(t *testing.T) {
		runner := &mockRunner{}
		svc := NewRefreshRunnerService(runner, zerolog.Nop())

		ctx, cancel := context.WithCancel(context.Background())

		done := make(chan error, 1)
		go func() {
			done <- svc.Serve(ctx)
		}()

		waitForCalls(t, runner.serveCount.Load, 1)

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

	t.Run("propagates runner errors for restart", func(t *testing.T) {
		runner := &mockRunner{serveErr: errors.New("queue closed")}
		svc := NewRefreshRunnerService(runner, zerolog.Nop())

		if err := svc.Serve(context.Background()); err == nil {
			t.Error("expected error to be propagated")
		}
	})
}

func TestRefreshRunnerService_String(t *testing.T) {
	svc := NewRefreshRunnerService(&mockRunner{}, zerolog.Nop())
	if svc.String() != "refresh-runner" {
		t.Errorf("expected 'refresh-runner', got %q", svc.String())
	}
}
