// Recgate - Order Recommendation Gateway and Cache
// Copyright 2026 Ordercast Authors
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/ordercast/recgate

package services

import (
	"context"
	"time"

	badger "github.com/dgraph-io/badger/v4"
	"github.com/rs/zerolog"

	"github.com/ordercast/recgate/internal/config"
	"github.com/ordercast/recgate/internal/store"
)

// StoreGCService runs Badger value-log garbage collection on a fixed
// cadence. Badger never reclaims value-log space on its own; without
// this loop the store file only grows.
type StoreGCService struct {
	db           *badger.DB
	interval     time.Duration
	discardRatio float64
	logger       zerolog.Logger
	name         string
}

// NewStoreGCService creates the GC loop from the store configuration.
// A non-positive interval falls back to ten minutes.
func NewStoreGCService(db *badger.DB, cfg config.StoreConfig, logger zerolog.Logger) *StoreGCService {
	interval := cfg.GCInterval
	if interval <= 0 {
		interval = 10 * time.Minute
	}
	return &StoreGCService{
		db:           db,
		interval:     interval,
		discardRatio: cfg.GCDiscardRatio,
		logger:       logger.With().Str("service", "store-gc").Logger(),
		name:         "store-gc",
	}
}

// Serve implements suture.Service. GC errors are logged rather than
// returned; a failed pass is retried on the next tick and restarting
// the loop would not help.
func (s *StoreGCService) Serve(ctx context.Context) error {
	s.logger.Info().Dur("interval", s.interval).Msg("store GC starting")

	ticker := time.NewTicker(s.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			s.logger.Info().Msg("store GC shutting down")
			return ctx.Err()

		case <-ticker.C:
			start := time.Now()
			if err := store.RunGC(s.db, s.discardRatio); err != nil {
				s.logger.Warn().Err(err).Msg("value log GC failed")
				continue
			}
			s.logger.Debug().Dur("duration", time.Since(start)).Msg("value log GC complete")
		}
	}
}

// String returns the service name for logging.
func (s *StoreGCService) String() string {
	return s.name
}
