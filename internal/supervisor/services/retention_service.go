// Recgate - Order Recommendation Gateway and Cache
// Copyright 2026 Ordercast Authors
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/ordercast/recgate

package services

import (
	"context"
	"time"

	"github.com/rs/zerolog"
)

// RetentionStore matches the audit logger's retention method.
// Satisfied by *audit.Logger.
type RetentionStore interface {
	RetentionPass(ctx context.Context) (int64, error)
}

// AuditRetentionService deletes audit events older than the configured
// retention on a fixed cadence, keeping the audit database bounded.
type AuditRetentionService struct {
	store    RetentionStore
	interval time.Duration
	logger   zerolog.Logger
	name     string
}

// NewAuditRetentionService creates the retention loop. A non-positive
// interval falls back to 24 hours.
func NewAuditRetentionService(store RetentionStore, interval time.Duration, logger zerolog.Logger) *AuditRetentionService {
	if interval <= 0 {
		interval = 24 * time.Hour
	}
	return &AuditRetentionService{
		store:    store,
		interval: interval,
		logger:   logger.With().Str("service", "audit-retention").Logger(),
		name:     "audit-retention",
	}
}

// Serve implements suture.Service. One pass runs at startup so a
// long-stopped deployment does not wait a full interval to trim.
func (s *AuditRetentionService) Serve(ctx context.Context) error {
	s.logger.Info().Dur("interval", s.interval).Msg("audit retention starting")

	s.pass(ctx)

	ticker := time.NewTicker(s.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			s.logger.Info().Msg("audit retention shutting down")
			return ctx.Err()

		case <-ticker.C:
			s.pass(ctx)
		}
	}
}

func (s *AuditRetentionService) pass(ctx context.Context) {
	deleted, err := s.store.RetentionPass(ctx)
	if err != nil {
		s.logger.Warn().Err(err).Msg("audit retention pass failed")
		return
	}
	if deleted > 0 {
		s.logger.Info().Int64("deleted", deleted).Msg("audit retention pass complete")
	}
}

// String returns the service name for logging.
func (s *AuditRetentionService) String() string {
	return s.name
}
