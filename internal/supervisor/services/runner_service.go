// Recgate - Order Recommendation Gateway and Cache
// Copyright 2026 Ordercast Authors
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/ordercast/recgate

package services

import (
	"context"

	"github.com/rs/zerolog"
)

// RefreshRunner matches the task runner's blocking serve method.
// Satisfied by *tasks.Runner.
type RefreshRunner interface {
	Serve(ctx context.Context) error
}

// RefreshRunnerService supervises the worker pool that drains the
// async refresh queue. The runner's Serve already blocks until its
// context is canceled, so the wrapper only adds naming and lifecycle
// logging.
type RefreshRunnerService struct {
	runner RefreshRunner
	logger zerolog.Logger
	name   string
}

// NewRefreshRunnerService creates the runner wrapper.
//
//nolint:gocritic // logger passed by value is acceptable for zerolog
func NewRefreshRunnerService(runner RefreshRunner, logger zerolog.Logger) *RefreshRunnerService {
	return &RefreshRunnerService{
		runner: runner,
		logger: logger.With().Str("service", "refresh-runner").Logger(),
		name:   "refresh-runner",
	}
}

// Serve implements suture.Service.
func (s *RefreshRunnerService) Serve(ctx context.Context) error {
	s.logger.Info().Msg("refresh runner starting")
	err := s.runner.Serve(ctx)
	s.logger.Info().Msg("refresh runner stopped")
	return err
}

// String returns the service name for logging.
func (s *RefreshRunnerService) String() string {
	return s.name
}
