// Recgate - Order Recommendation Gateway and Cache
// Copyright 2026 Ordercast Authors
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/ordercast/recgate

package recommend

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/ordercast/recgate/internal/logging"
	"github.com/ordercast/recgate/internal/metrics"
)

// ReadResult classifies a pool read.
type ReadResult string

const (
	// ReadHit means the pool was present and inside its TTL.
	ReadHit ReadResult = "hit"

	// ReadExpired means the pool was present but past its TTL; the
	// entry is dropped lazily, so the next read reports Absent.
	ReadExpired ReadResult = "expired"

	// ReadAbsent means no pool is stored for the user.
	ReadAbsent ReadResult = "absent"
)

// DefaultPoolTTL is the documented pool lifetime.
const DefaultPoolTTL = 3600 * time.Second

// Manager composes the pool store and the mapping index into the
// cache's public operations. It owns the per-user lock that keeps a
// pool rewrite and a cascade invalidation for the same user from
// interleaving, and it owns expiry semantics: stores only hold bytes,
// the Manager decides what Expired means.
type Manager struct {
	pools   PoolStore
	mapping MappingIndex
	ttl     time.Duration

	// userLocks holds one mutex per user, allocated on first use.
	userLocks sync.Map

	now func() time.Time
}

// NewManager creates a Manager. ttl <= 0 selects DefaultPoolTTL.
func NewManager(pools PoolStore, mapping MappingIndex, ttl time.Duration) *Manager {
	if ttl <= 0 {
		ttl = DefaultPoolTTL
	}
	return &Manager{
		pools:   pools,
		mapping: mapping,
		ttl:     ttl,
		now:     time.Now,
	}
}

// Mapping exposes the index for read-side lookups (ownership queries,
// submit responses). Mutations go through Submit and InvalidateOrder
// so they stay under the Manager's locking.
func (m *Manager) Mapping() MappingIndex {
	return m.mapping
}

// PoolStats reports the pool store census for the ops surface.
func (m *Manager) PoolStats(ctx context.Context) (PoolStats, error) {
	return m.pools.Stats(ctx)
}

// lockUser locks the per-user mutex and returns the unlock func.
func (m *Manager) lockUser(userID string) func() {
	v, _ := m.userLocks.LoadOrStore(userID, &sync.Mutex{})
	mu := v.(*sync.Mutex)
	mu.Lock()
	return mu.Unlock
}

// Submit records the order/user mapping and writes both pools from
// one recommendation run, all under the user's lock so a concurrent
// cascade cannot slide between the two steps.
func (m *Manager) Submit(ctx context.Context, orderID, userID string, items []Item) error {
	unlock := m.lockUser(userID)
	defer unlock()

	if err := m.mapping.RecordSubmission(ctx, orderID, userID); err != nil {
		return fmt.Errorf("record submission: %w", err)
	}
	if err := m.writePools(ctx, userID, items); err != nil {
		return fmt.Errorf("write pools: %w", err)
	}
	return nil
}

// WritePools replaces both of a user's pools with the partition of
// items: all of them in the normal pool, the promotion-flagged subset
// in the promotional pool. Each pool gets a fresh TTL; there is no
// merging with previous contents.
func (m *Manager) WritePools(ctx context.Context, userID string, items []Item) error {
	unlock := m.lockUser(userID)
	defer unlock()
	return m.writePools(ctx, userID, items)
}

func (m *Manager) writePools(ctx context.Context, userID string, items []Item) error {
	now := m.now()
	normal, promotional := PartitionPools(items)

	contents := map[PoolKind][]Item{
		PoolNormal:      normal,
		PoolPromotional: promotional,
	}
	for _, kind := range PoolKinds {
		entry := &PoolEntry{
			Items:     contents[kind],
			WrittenAt: now,
			ExpiresAt: now.Add(m.ttl),
		}
		if err := m.pools.WritePool(ctx, userID, kind, entry); err != nil {
			return err
		}
		metrics.RecordPoolWrite(string(kind))
	}

	logging.Ctx(ctx).Debug().
		Str("user_id", userID).
		Int("items", len(normal)).
		Int("promotional", len(promotional)).
		Msg("Pools written")
	return nil
}

// ReadPool returns a pool's items. An entry past its TTL reports
// Expired once and is dropped, so the following read reports Absent.
func (m *Manager) ReadPool(ctx context.Context, userID string, kind PoolKind) ([]Item, ReadResult, error) {
	entry, err := m.pools.ReadPool(ctx, userID, kind)
	if errors.Is(err, ErrPoolAbsent) {
		metrics.RecordPoolRead(string(kind), string(ReadAbsent))
		return nil, ReadAbsent, nil
	}
	if err != nil {
		return nil, ReadAbsent, err
	}

	if entry.Expired(m.now()) {
		m.dropIfStillExpired(ctx, userID, kind)
		metrics.RecordPoolRead(string(kind), string(ReadExpired))
		return nil, ReadExpired, nil
	}

	metrics.RecordPoolRead(string(kind), string(ReadHit))
	return entry.Items, ReadHit, nil
}

// dropIfStillExpired lazily deletes an expired entry. The re-check
// under the user lock keeps a racing fresh write alive.
func (m *Manager) dropIfStillExpired(ctx context.Context, userID string, kind PoolKind) {
	unlock := m.lockUser(userID)
	defer unlock()

	current, err := m.pools.ReadPool(ctx, userID, kind)
	if err != nil || !current.Expired(m.now()) {
		return
	}
	if err := m.pools.DeletePool(ctx, userID, kind); err != nil {
		logging.Ctx(ctx).Warn().Err(err).
			Str("user_id", userID).
			Str("pool", string(kind)).
			Msg("Failed to drop expired pool")
	}
}

// InvalidateOrder removes a deleted order from its owner's pools and
// unmaps it. Returns how many users' cached state was touched: 0 when
// the order was never mapped, otherwise 1, since each order has one
// owner. Pool rewrites keep the remaining TTL; invalidation never
// refreshes a pool's lifetime.
func (m *Manager) InvalidateOrder(ctx context.Context, orderID string) (int, error) {
	// Ownership can move between the lookup and the lock; re-check
	// under the lock and chase the new owner if it did.
	for attempt := 0; attempt < 3; attempt++ {
		owner, err := m.mapping.LookupUser(ctx, orderID)
		if errors.Is(err, ErrOrderNotMapped) {
			metrics.RecordCascade(false)
			return 0, nil
		}
		if err != nil {
			return 0, fmt.Errorf("lookup order owner: %w", err)
		}

		unlock := m.lockUser(owner)
		current, err := m.mapping.LookupUser(ctx, orderID)
		if errors.Is(err, ErrOrderNotMapped) {
			unlock()
			metrics.RecordCascade(false)
			return 0, nil
		}
		if err != nil {
			unlock()
			return 0, fmt.Errorf("lookup order owner: %w", err)
		}
		if current != owner {
			unlock()
			continue
		}

		err = m.invalidateOrderLocked(ctx, orderID, owner)
		unlock()
		if err != nil {
			return 0, err
		}

		metrics.RecordCascade(true)
		logging.Ctx(ctx).Info().
			Str("order_id", orderID).
			Str("user_id", owner).
			Msg("Order invalidated across pools")
		return 1, nil
	}
	return 0, fmt.Errorf("order %s changed owners repeatedly during invalidation", orderID)
}

func (m *Manager) invalidateOrderLocked(ctx context.Context, orderID, owner string) error {
	for _, kind := range PoolKinds {
		if err := m.dropItemFromPool(ctx, owner, kind, orderID); err != nil {
			return fmt.Errorf("rewrite %s pool: %w", kind, err)
		}
	}
	if err := m.mapping.RemoveOrder(ctx, orderID); err != nil {
		return fmt.Errorf("remove order mapping: %w", err)
	}
	return nil
}

// dropItemFromPool rewrites one pool without the given order. Expired
// entries are dropped rather than rewritten; untouched pools are left
// alone entirely.
func (m *Manager) dropItemFromPool(ctx context.Context, userID string, kind PoolKind, orderID string) error {
	entry, err := m.pools.ReadPool(ctx, userID, kind)
	if errors.Is(err, ErrPoolAbsent) {
		return nil
	}
	if err != nil {
		return err
	}

	if entry.Expired(m.now()) {
		return m.pools.DeletePool(ctx, userID, kind)
	}

	kept := make([]Item, 0, len(entry.Items))
	changed := false
	for _, item := range entry.Items {
		if item.ID == orderID {
			changed = true
			continue
		}
		kept = append(kept, item)
	}
	if !changed {
		return nil
	}

	// ExpiresAt and WrittenAt carry over: the pool keeps whatever
	// lifetime it had.
	entry.Items = kept
	return m.pools.WritePool(ctx, userID, kind, entry)
}

// InvalidateUser drops both of a user's pools outright. The mapping
// index is untouched: the user's orders are still valid, only the
// cached recommendation view is discarded.
func (m *Manager) InvalidateUser(ctx context.Context, userID string) error {
	unlock := m.lockUser(userID)
	defer unlock()

	for _, kind := range PoolKinds {
		if err := m.pools.DeletePool(ctx, userID, kind); err != nil {
			return fmt.Errorf("drop %s pool: %w", kind, err)
		}
	}

	logging.Ctx(ctx).Info().
		Str("user_id", userID).
		Msg("User pools cleared")
	return nil
}
