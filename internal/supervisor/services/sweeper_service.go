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

// ExpirySweeper matches the nonce ledger's sweep method. Satisfied by
// auth.NonceLedger implementations.
type ExpirySweeper interface {
	SweepExpired(ctx context.Context) (int, error)
}

// NonceSweeperService periodically removes lapsed replay-protection
// nonces. This is the only sweep loop for the ledger: the in-memory
// ledger needs it to bound growth, and the Badger ledger uses it as a
// safety net on top of key TTLs.
type NonceSweeperService struct {
	ledger   ExpirySweeper
	interval time.Duration
	logger   zerolog.Logger
	name     string
}

// NewNonceSweeperService creates the sweeper. A non-positive interval
// falls back to one minute.
func NewNonceSweeperService(ledger ExpirySweeper, interval time.Duration, logger zerolog.Logger) *NonceSweeperService {
	if interval <= 0 {
		interval = time.Minute
	}
	return &NonceSweeperService{
		ledger:   ledger,
		interval: interval,
		logger:   logger.With().Str("service", "nonce-sweeper").Logger(),
		name:     "nonce-sweeper",
	}
}

// Serve implements suture.Service. Sweep failures are logged and the
// loop keeps its cadence; a persistently failing ledger surfaces
// through the nonce operation metrics instead of restart storms.
func (s *NonceSweeperService) Serve(ctx context.Context) error {
	s.logger.Info().Dur("interval", s.interval).Msg("nonce sweeper starting")

	ticker := time.NewTicker(s.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			s.logger.Info().Msg("nonce sweeper shutting down")
			return ctx.Err()

		case <-ticker.C:
			removed, err := s.ledger.SweepExpired(ctx)
			if err != nil {
				s.logger.Warn().Err(err).Msg("nonce sweep failed")
				continue
			}
			if removed > 0 {
				s.logger.Debug().Int("removed", removed).Msg("nonce sweep complete")
			}
		}
	}
}

// String returns the service name for logging.
func (s *NonceSweeperService) String() string {
	return s.name
}
