// Recgate - Order Recommendation Gateway and Cache
// Copyright 2026 Ordercast Authors
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/ordercast/recgate

// Package store opens and maintains the embedded databases: the Badger
// key-value store backing the nonce ledger, mapping index, and
// recommendation pools, and the DuckDB file backing the audit trail.
package store

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"

	badger "github.com/dgraph-io/badger/v4"

	"github.com/ordercast/recgate/internal/config"
	"github.com/ordercast/recgate/internal/logging"
)

// DefaultGCDiscardRatio is used when the config leaves the ratio unset.
// Badger rewrites a value log file when at least this fraction of it is
// discardable.
const DefaultGCDiscardRatio = 0.5

// Open opens (or creates) the Badger store described by cfg.
func Open(cfg config.StoreConfig) (*badger.DB, error) {
	var opts badger.Options
	if cfg.InMemory {
		opts = badger.DefaultOptions("").WithInMemory(true)
	} else {
		dir := filepath.Dir(cfg.Path)
		if dir != "" && dir != "." {
			if err := os.MkdirAll(dir, 0o750); err != nil {
				return nil, fmt.Errorf("create store directory %s: %w", dir, err)
			}
		}
		opts = badger.DefaultOptions(cfg.Path)
	}

	// Reduce logging verbosity
	opts.Logger = nil

	db, err := badger.Open(opts)
	if err != nil {
		return nil, fmt.Errorf("open badger store: %w", err)
	}

	logging.Info().
		Str("path", cfg.Path).
		Bool("in_memory", cfg.InMemory).
		Msg("Store opened")
	return db, nil
}

// RunGC runs value-log garbage collection until no more cleanup is
// possible. The supervisor calls this on the configured cadence.
func RunGC(db *badger.DB, discardRatio float64) error {
	if db.IsClosed() {
		return nil
	}
	if discardRatio <= 0 || discardRatio >= 1 {
		discardRatio = DefaultGCDiscardRatio
	}

	for {
		err := db.RunValueLogGC(discardRatio)
		if errors.Is(err, badger.ErrNoRewrite) {
			return nil
		}
		if errors.Is(err, badger.ErrGCInMemoryMode) {
			// Nothing to compact without a value log on disk.
			return nil
		}
		if err != nil {
			return fmt.Errorf("run value log GC: %w", err)
		}
	}
}
