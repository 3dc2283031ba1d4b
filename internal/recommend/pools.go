// Recgate - Order Recommendation Gateway and Cache
// Copyright 2026 Ordercast Authors
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/ordercast/recgate

package recommend

import (
	"context"
	"errors"
	"strings"
	"sync"
	"time"

	"github.com/dgraph-io/badger/v4"
	"github.com/goccy/go-json"
)

// Pool store errors
var (
	// ErrPoolAbsent indicates no pool entry is stored under the key.
	ErrPoolAbsent = errors.New("no pool stored for this user")

	// ErrPoolStoreClosed indicates the store has been closed.
	ErrPoolStoreClosed = errors.New("pool store is closed")
)

// storageGrace keeps a pool entry physically readable for a while
// after its logical expiry, so the first read past the deadline can
// still report Expired rather than Absent before the entry is lazily
// dropped.
const storageGrace = 10 * time.Minute

// PoolEntry is one stored pool: the item sequence plus its expiry
// bookkeeping.
type PoolEntry struct {
	// Items is the cached recommendation sequence, engine order kept.
	Items []Item `json:"items"`

	// WrittenAt is when the pool was written.
	WrittenAt time.Time `json:"writtenAt"`

	// ExpiresAt is the logical expiry instant. Cascade rewrites carry
	// it over unchanged; only a fresh write moves it.
	ExpiresAt time.Time `json:"expiresAt"`
}

// Expired reports whether the entry's logical TTL has lapsed.
func (e *PoolEntry) Expired(now time.Time) bool {
	return !now.Before(e.ExpiresAt)
}

// clone returns a deep copy so callers and the store never share the
// items slice.
func (e *PoolEntry) clone() *PoolEntry {
	items := make([]Item, len(e.Items))
	copy(items, e.Items)
	return &PoolEntry{Items: items, WrittenAt: e.WrittenAt, ExpiresAt: e.ExpiresAt}
}

// PoolStats is a point-in-time census of stored pools.
type PoolStats struct {
	NormalPools      int `json:"normal_pools"`
	PromotionalPools int `json:"promotional_pools"`
}

// PoolStore persists per-user recommendation pools. Stores hold
// entries past their logical expiry (within a grace period) and leave
// expiry decisions to the Manager; a missing entry is ErrPoolAbsent.
type PoolStore interface {
	// WritePool stores a pool entry, replacing any previous one.
	WritePool(ctx context.Context, userID string, kind PoolKind, entry *PoolEntry) error

	// ReadPool loads a pool entry, expired or not.
	ReadPool(ctx context.Context, userID string, kind PoolKind) (*PoolEntry, error)

	// DeletePool removes a pool entry. Deleting an absent pool is a
	// no-op.
	DeletePool(ctx context.Context, userID string, kind PoolKind) error

	// Stats counts stored pools per kind.
	Stats(ctx context.Context) (PoolStats, error)

	// Close closes the store.
	Close() error
}

// MemoryPoolStore keeps pools in process memory.
type MemoryPoolStore struct {
	mu      sync.RWMutex
	entries map[string]*PoolEntry
	closed  bool
}

// NewMemoryPoolStore creates an empty in-memory pool store.
func NewMemoryPoolStore() *MemoryPoolStore {
	return &MemoryPoolStore{entries: make(map[string]*PoolEntry)}
}

// WritePool stores a pool entry.
func (s *MemoryPoolStore) WritePool(ctx context.Context, userID string, kind PoolKind, entry *PoolEntry) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.closed {
		return ErrPoolStoreClosed
	}
	s.entries[kind.StorageKey(userID)] = entry.clone()
	return nil
}

// ReadPool loads a pool entry.
func (s *MemoryPoolStore) ReadPool(ctx context.Context, userID string, kind PoolKind) (*PoolEntry, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	if s.closed {
		return nil, ErrPoolStoreClosed
	}

	entry, ok := s.entries[kind.StorageKey(userID)]
	if !ok {
		return nil, ErrPoolAbsent
	}
	return entry.clone(), nil
}

// DeletePool removes a pool entry.
func (s *MemoryPoolStore) DeletePool(ctx context.Context, userID string, kind PoolKind) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.closed {
		return ErrPoolStoreClosed
	}
	delete(s.entries, kind.StorageKey(userID))
	return nil
}

// Stats counts stored pools per kind.
func (s *MemoryPoolStore) Stats(ctx context.Context) (PoolStats, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	if s.closed {
		return PoolStats{}, ErrPoolStoreClosed
	}

	var stats PoolStats
	for key := range s.entries {
		if strings.HasPrefix(key, string(PoolNormal)+"_") {
			stats.NormalPools++
		} else {
			stats.PromotionalPools++
		}
	}
	return stats, nil
}

// Close closes the store.
func (s *MemoryPoolStore) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.closed = true
	s.entries = nil
	return nil
}

// BadgerPoolStore persists pools in BadgerDB under the wire-contract
// keys (normal_recommendations_{userId} and friends), values JSON.
// The storage TTL runs a grace period past the logical expiry so the
// store self-cleans without stealing the Manager's expired-read
// signal.
type BadgerPoolStore struct {
	db     *badger.DB
	closed bool
	mu     sync.RWMutex
}

// NewBadgerPoolStore creates a BadgerDB-backed store on a shared DB.
func NewBadgerPoolStore(db *badger.DB) *BadgerPoolStore {
	return &BadgerPoolStore{db: db}
}

// WritePool stores a pool entry.
func (s *BadgerPoolStore) WritePool(ctx context.Context, userID string, kind PoolKind, entry *PoolEntry) error {
	if err := s.checkOpen(); err != nil {
		return err
	}

	data, err := json.Marshal(entry)
	if err != nil {
		return err
	}

	ttl := time.Until(entry.ExpiresAt) + storageGrace
	if ttl <= 0 {
		ttl = storageGrace
	}

	return s.db.Update(func(txn *badger.Txn) error {
		e := badger.NewEntry([]byte(kind.StorageKey(userID)), data).WithTTL(ttl)
		return txn.SetEntry(e)
	})
}

// ReadPool loads a pool entry.
func (s *BadgerPoolStore) ReadPool(ctx context.Context, userID string, kind PoolKind) (*PoolEntry, error) {
	if err := s.checkOpen(); err != nil {
		return nil, err
	}

	var entry PoolEntry
	err := s.db.View(func(txn *badger.Txn) error {
		item, err := txn.Get([]byte(kind.StorageKey(userID)))
		if errors.Is(err, badger.ErrKeyNotFound) {
			return ErrPoolAbsent
		}
		if err != nil {
			return err
		}
		return item.Value(func(val []byte) error {
			return json.Unmarshal(val, &entry)
		})
	})
	if err != nil {
		return nil, err
	}
	return &entry, nil
}

// DeletePool removes a pool entry.
func (s *BadgerPoolStore) DeletePool(ctx context.Context, userID string, kind PoolKind) error {
	if err := s.checkOpen(); err != nil {
		return err
	}

	return s.db.Update(func(txn *badger.Txn) error {
		return txn.Delete([]byte(kind.StorageKey(userID)))
	})
}

// Stats counts stored pools per kind.
func (s *BadgerPoolStore) Stats(ctx context.Context) (PoolStats, error) {
	if err := s.checkOpen(); err != nil {
		return PoolStats{}, err
	}

	var stats PoolStats
	err := s.db.View(func(txn *badger.Txn) error {
		for _, kind := range PoolKinds {
			opts := badger.DefaultIteratorOptions
			opts.Prefix = []byte(string(kind) + "_recommendations_")
			opts.PrefetchValues = false
			it := txn.NewIterator(opts)

			count := 0
			for it.Rewind(); it.Valid(); it.Next() {
				count++
			}
			it.Close()

			switch kind {
			case PoolNormal:
				stats.NormalPools = count
			case PoolPromotional:
				stats.PromotionalPools = count
			}
		}
		return nil
	})
	return stats, err
}

// Close closes the store.
func (s *BadgerPoolStore) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.closed = true
	// Don't close the DB as it's shared
	return nil
}

func (s *BadgerPoolStore) checkOpen() error {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.closed {
		return ErrPoolStoreClosed
	}
	return nil
}
