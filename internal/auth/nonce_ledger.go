// Recgate - Order Recommendation Gateway and Cache
// Copyright 2026 Ordercast Authors
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/ordercast/recgate

package auth

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/dgraph-io/badger/v4"
	"github.com/goccy/go-json"

	"github.com/ordercast/recgate/internal/logging"
	"github.com/ordercast/recgate/internal/metrics"
)

// Nonce ledger errors
var (
	// ErrNonceReplayed indicates the nonce was already observed inside
	// the replay window.
	ErrNonceReplayed = errors.New("nonce already observed (replay rejected)")

	// ErrLedgerClosed indicates the ledger has been closed.
	ErrLedgerClosed = errors.New("nonce ledger is closed")

	// ErrLedgerFull indicates the in-memory ledger hit its capacity
	// bound and could not record a new nonce. Requests that cannot be
	// recorded must be rejected, never waved through.
	ErrLedgerFull = errors.New("nonce ledger at capacity")
)

// NonceEntry is a stored nonce observation.
type NonceEntry struct {
	// Nonce is the unique request identifier from the envelope.
	Nonce string `json:"nonce"`

	// Caller is the resolved caller ID, when known at observation time.
	Caller string `json:"caller,omitempty"`

	// SourceIP is the address that presented the nonce.
	SourceIP string `json:"source_ip,omitempty"`

	// FirstSeen is when this nonce was first observed.
	FirstSeen time.Time `json:"first_seen"`

	// ExpiresAt is when the observation lapses. A nonce reappearing
	// after this instant is a fresh request, not a replay.
	ExpiresAt time.Time `json:"expires_at"`
}

// NonceLedger records observed nonces for replay rejection.
//
// Observe is the only admission path: it atomically checks whether the
// nonce is on record inside the window and records it if not. There is
// no separate check-then-insert sequence for racing requests to slip
// through.
type NonceLedger interface {
	// Observe atomically checks and records a nonce. Returns
	// ErrNonceReplayed if the nonce is already on record and not yet
	// expired. The observation lapses after the given TTL. Any other
	// error means the ledger could not give a verdict; callers must
	// treat that as a rejection.
	Observe(ctx context.Context, entry *NonceEntry, ttl time.Duration) error

	// Seen reports whether a nonce is on record and unexpired, without
	// recording it.
	Seen(ctx context.Context, nonce string) (bool, error)

	// SweepExpired removes lapsed observations and returns how many
	// were removed.
	SweepExpired(ctx context.Context) (int, error)

	// Size returns the approximate number of recorded nonces.
	Size(ctx context.Context) (int, error)

	// Close closes the ledger and releases resources.
	Close() error
}

// MemoryNonceLedger is an in-memory ledger bounded by a fixed
// capacity. Observations are lost on restart, which shrinks the replay
// window to process lifetime; production deployments use the Badger
// ledger instead.
type MemoryNonceLedger struct {
	mu       sync.RWMutex
	entries  map[string]*NonceEntry
	capacity int
	closed   bool
}

// NewMemoryNonceLedger creates an in-memory ledger holding at most
// capacity observations. capacity <= 0 selects a default of 262144.
func NewMemoryNonceLedger(capacity int) *MemoryNonceLedger {
	if capacity <= 0 {
		capacity = 262144
	}
	return &MemoryNonceLedger{
		entries:  make(map[string]*NonceEntry),
		capacity: capacity,
	}
}

// Observe atomically checks and records a nonce.
func (l *MemoryNonceLedger) Observe(ctx context.Context, entry *NonceEntry, ttl time.Duration) error {
	l.mu.Lock()
	defer l.mu.Unlock()

	if l.closed {
		metrics.RecordNonceOperation("observe", "failure")
		return ErrLedgerClosed
	}

	now := time.Now()
	if existing, ok := l.entries[entry.Nonce]; ok {
		if now.Before(existing.ExpiresAt) {
			metrics.RecordNonceOperation("observe", "replay_detected")
			metrics.NonceReplays.Inc()
			logging.Warn().
				Str("nonce", entry.Nonce).
				Str("caller", entry.Caller).
				Str("source_ip", entry.SourceIP).
				Time("first_seen", existing.FirstSeen).
				Msg("Nonce replay detected")
			return ErrNonceReplayed
		}
		// Lapsed observation, the slot can be reused.
	}

	if len(l.entries) >= l.capacity {
		// Prune in place before giving up; an expired entry elsewhere
		// in the map can free the slot.
		for nonce, e := range l.entries {
			if now.After(e.ExpiresAt) {
				delete(l.entries, nonce)
			}
		}
		if len(l.entries) >= l.capacity {
			metrics.RecordNonceOperation("observe", "failure")
			return ErrLedgerFull
		}
	}

	entry.FirstSeen = now
	entry.ExpiresAt = now.Add(ttl)
	l.entries[entry.Nonce] = entry

	metrics.RecordNonceOperation("observe", "success")
	metrics.NonceLedgerSize.Set(float64(len(l.entries)))
	return nil
}

// Seen reports whether a nonce is on record and unexpired.
func (l *MemoryNonceLedger) Seen(ctx context.Context, nonce string) (bool, error) {
	l.mu.RLock()
	defer l.mu.RUnlock()

	if l.closed {
		return false, ErrLedgerClosed
	}

	entry, ok := l.entries[nonce]
	if !ok {
		return false, nil
	}
	return time.Now().Before(entry.ExpiresAt), nil
}

// SweepExpired removes lapsed observations.
func (l *MemoryNonceLedger) SweepExpired(ctx context.Context) (int, error) {
	l.mu.Lock()
	defer l.mu.Unlock()

	if l.closed {
		return 0, ErrLedgerClosed
	}

	count := 0
	now := time.Now()
	for nonce, entry := range l.entries {
		if now.After(entry.ExpiresAt) {
			delete(l.entries, nonce)
			count++
		}
	}

	metrics.RecordNonceOperation("sweep", "success")
	metrics.NonceSwept.Add(float64(count))
	metrics.NonceLedgerSize.Set(float64(len(l.entries)))
	return count, nil
}

// Size returns the number of recorded nonces.
func (l *MemoryNonceLedger) Size(ctx context.Context) (int, error) {
	l.mu.RLock()
	defer l.mu.RUnlock()

	if l.closed {
		return 0, ErrLedgerClosed
	}
	return len(l.entries), nil
}

// Close closes the ledger.
func (l *MemoryNonceLedger) Close() error {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.closed = true
	l.entries = nil
	return nil
}

// BadgerNonceLedger is a BadgerDB-backed ledger for production use.
// Observations survive restarts, so the replay window holds across
// deploys, and the check-and-record step runs inside one transaction.
type BadgerNonceLedger struct {
	db     *badger.DB
	prefix []byte
	closed bool
	mu     sync.RWMutex
}

// NewBadgerNonceLedger creates a BadgerDB-backed ledger.
//
// Parameters:
//   - db: BadgerDB instance (shared with other components)
//   - prefix: Key prefix for nonce entries (default: "nonce:")
func NewBadgerNonceLedger(db *badger.DB, prefix string) *BadgerNonceLedger {
	if prefix == "" {
		prefix = "nonce:"
	}
	return &BadgerNonceLedger{
		db:     db,
		prefix: []byte(prefix),
	}
}

// makeKey creates a BadgerDB key for a nonce.
func (l *BadgerNonceLedger) makeKey(nonce string) []byte {
	return append(append([]byte(nil), l.prefix...), []byte(nonce)...)
}

// Observe atomically checks and records a nonce inside a single
// read-write transaction. Racing observations of the same nonce
// conflict under Badger's SSI; the losers retry and find the winner's
// record, so exactly one of N racers succeeds and the rest see
// ErrNonceReplayed.
func (l *BadgerNonceLedger) Observe(ctx context.Context, entry *NonceEntry, ttl time.Duration) error {
	var err error
	for attempt := 0; attempt < 3; attempt++ {
		err = l.observeOnce(entry, ttl)
		if !errors.Is(err, badger.ErrConflict) {
			return err
		}
	}
	metrics.RecordNonceOperation("observe", "failure")
	return err
}

func (l *BadgerNonceLedger) observeOnce(entry *NonceEntry, ttl time.Duration) error {
	l.mu.RLock()
	if l.closed {
		l.mu.RUnlock()
		metrics.RecordNonceOperation("observe", "failure")
		return ErrLedgerClosed
	}
	l.mu.RUnlock()

	key := l.makeKey(entry.Nonce)

	err := l.db.Update(func(txn *badger.Txn) error {
		item, err := txn.Get(key)
		if err == nil {
			var existing NonceEntry
			if valErr := item.Value(func(val []byte) error {
				return json.Unmarshal(val, &existing)
			}); valErr == nil {
				if time.Now().Before(existing.ExpiresAt) {
					metrics.RecordNonceOperation("observe", "replay_detected")
					metrics.NonceReplays.Inc()
					logging.Warn().
						Str("nonce", entry.Nonce).
						Str("caller", entry.Caller).
						Str("source_ip", entry.SourceIP).
						Time("first_seen", existing.FirstSeen).
						Msg("Nonce replay detected")
					return ErrNonceReplayed
				}
			}
		} else if !errors.Is(err, badger.ErrKeyNotFound) {
			return err
		}

		entry.FirstSeen = time.Now()
		entry.ExpiresAt = entry.FirstSeen.Add(ttl)

		data, err := json.Marshal(entry)
		if err != nil {
			return err
		}

		e := badger.NewEntry(key, data).WithTTL(ttl)
		return txn.SetEntry(e)
	})

	if err != nil {
		if errors.Is(err, ErrNonceReplayed) || errors.Is(err, badger.ErrConflict) {
			return err
		}
		metrics.RecordNonceOperation("observe", "failure")
		return err
	}

	metrics.RecordNonceOperation("observe", "success")
	return nil
}

// Seen reports whether a nonce is on record and unexpired.
func (l *BadgerNonceLedger) Seen(ctx context.Context, nonce string) (bool, error) {
	l.mu.RLock()
	if l.closed {
		l.mu.RUnlock()
		return false, ErrLedgerClosed
	}
	l.mu.RUnlock()

	key := l.makeKey(nonce)
	var seen bool

	err := l.db.View(func(txn *badger.Txn) error {
		item, err := txn.Get(key)
		if errors.Is(err, badger.ErrKeyNotFound) {
			seen = false
			return nil
		}
		if err != nil {
			return err
		}

		var entry NonceEntry
		return item.Value(func(val []byte) error {
			if err := json.Unmarshal(val, &entry); err != nil {
				return err
			}
			seen = time.Now().Before(entry.ExpiresAt)
			return nil
		})
	})

	return seen, err
}

// SweepExpired removes lapsed observations. Badger drops expired keys
// on its own during compaction; this forces the issue so Size and the
// ledger gauge stay honest between compactions.
func (l *BadgerNonceLedger) SweepExpired(ctx context.Context) (int, error) {
	l.mu.RLock()
	if l.closed {
		l.mu.RUnlock()
		return 0, ErrLedgerClosed
	}
	l.mu.RUnlock()

	count := 0
	now := time.Now()

	err := l.db.Update(func(txn *badger.Txn) error {
		opts := badger.DefaultIteratorOptions
		opts.Prefix = l.prefix
		it := txn.NewIterator(opts)
		defer it.Close()

		var keysToDelete [][]byte

		for it.Rewind(); it.Valid(); it.Next() {
			item := it.Item()
			var entry NonceEntry
			err := item.Value(func(val []byte) error {
				return json.Unmarshal(val, &entry)
			})
			if err != nil {
				continue
			}

			if now.After(entry.ExpiresAt) {
				key := make([]byte, len(item.Key()))
				copy(key, item.Key())
				keysToDelete = append(keysToDelete, key)
			}
		}

		for _, key := range keysToDelete {
			if err := txn.Delete(key); err != nil {
				return err
			}
			count++
		}

		return nil
	})

	if err != nil {
		metrics.RecordNonceOperation("sweep", "failure")
		return count, err
	}

	metrics.RecordNonceOperation("sweep", "success")
	metrics.NonceSwept.Add(float64(count))
	return count, nil
}

// Size returns the approximate number of recorded nonces.
func (l *BadgerNonceLedger) Size(ctx context.Context) (int, error) {
	l.mu.RLock()
	if l.closed {
		l.mu.RUnlock()
		return 0, ErrLedgerClosed
	}
	l.mu.RUnlock()

	count := 0
	err := l.db.View(func(txn *badger.Txn) error {
		opts := badger.DefaultIteratorOptions
		opts.Prefix = l.prefix
		opts.PrefetchValues = false // We only need to count keys
		it := txn.NewIterator(opts)
		defer it.Close()

		for it.Rewind(); it.Valid(); it.Next() {
			count++
		}
		return nil
	})

	metrics.NonceLedgerSize.Set(float64(count))
	return count, err
}

// Close closes the ledger.
func (l *BadgerNonceLedger) Close() error {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.closed = true
	// Don't close the DB as it's shared
	return nil
}
