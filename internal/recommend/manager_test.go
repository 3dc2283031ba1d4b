// Recgate - Order Recommendation Gateway and Cache
// Copyright 2026 Ordercast Authors
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/ordercast/recgate

package recommend

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"testing"
	"time"
)

var managerTestBase = time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)

// newTestManager wires a Manager over in-memory stores with a settable
// frozen clock.
func newTestManager(t *testing.T) (*Manager, *MemoryPoolStore, *MemoryMappingIndex, func(time.Time)) {
	t.Helper()

	pools := NewMemoryPoolStore()
	mapping := NewMemoryMappingIndex()
	m := NewManager(pools, mapping, time.Hour)

	var mu sync.Mutex
	current := managerTestBase
	m.now = func() time.Time {
		mu.Lock()
		defer mu.Unlock()
		return current
	}
	setNow := func(at time.Time) {
		mu.Lock()
		current = at
		mu.Unlock()
	}
	return m, pools, mapping, setNow
}

func TestNewManager_DefaultTTL(t *testing.T) {
	m := NewManager(NewMemoryPoolStore(), NewMemoryMappingIndex(), 0)
	if m.ttl != DefaultPoolTTL {
		t.Errorf("ttl = %v, want %v", m.ttl, DefaultPoolTTL)
	}
}

func TestManager_Submit(t *testing.T) {
	ctx := context.Background()
	m, _, mapping, _ := newTestManager(t)

	items := []Item{
		{ID: "order-a", Title: "Logo design"},
		{ID: "order-b", Title: "Spring banner", Promotion: true},
	}

	if err := m.Submit(ctx, "order-b", "12345", items); err != nil {
		t.Fatalf("Submit failed: %v", err)
	}

	user, err := mapping.LookupUser(ctx, "order-b")
	if err != nil {
		t.Fatalf("LookupUser failed: %v", err)
	}
	if user != "12345" {
		t.Errorf("Order owner = %q, want 12345", user)
	}

	normal, result, err := m.ReadPool(ctx, "12345", PoolNormal)
	if err != nil || result != ReadHit {
		t.Fatalf("ReadPool(normal) = %v/%v, want hit", result, err)
	}
	if len(normal) != 2 {
		t.Errorf("Normal pool has %d items, want 2", len(normal))
	}

	promotional, result, err := m.ReadPool(ctx, "12345", PoolPromotional)
	if err != nil || result != ReadHit {
		t.Fatalf("ReadPool(promotional) = %v/%v, want hit", result, err)
	}
	if len(promotional) != 1 || promotional[0].ID != "order-b" {
		t.Errorf("Promotional pool = %v, want [order-b]", promotional)
	}
}

func TestManager_WritePools(t *testing.T) {
	ctx := context.Background()

	t.Run("sets_ttl_from_write_time", func(t *testing.T) {
		m, pools, _, _ := newTestManager(t)

		if err := m.WritePools(ctx, "user-1", []Item{{ID: "a"}}); err != nil {
			t.Fatalf("WritePools failed: %v", err)
		}

		entry, err := pools.ReadPool(ctx, "user-1", PoolNormal)
		if err != nil {
			t.Fatalf("ReadPool failed: %v", err)
		}
		if !entry.WrittenAt.Equal(managerTestBase) {
			t.Errorf("WrittenAt = %v, want %v", entry.WrittenAt, managerTestBase)
		}
		if want := managerTestBase.Add(time.Hour); !entry.ExpiresAt.Equal(want) {
			t.Errorf("ExpiresAt = %v, want %v", entry.ExpiresAt, want)
		}
	})

	t.Run("no_promotions_still_writes_promotional_pool", func(t *testing.T) {
		m, _, _, _ := newTestManager(t)

		if err := m.WritePools(ctx, "user-1", []Item{{ID: "a"}, {ID: "b"}}); err != nil {
			t.Fatalf("WritePools failed: %v", err)
		}

		// An empty promotional pool is a cached "no promotions", not a miss.
		items, result, err := m.ReadPool(ctx, "user-1", PoolPromotional)
		if err != nil {
			t.Fatalf("ReadPool failed: %v", err)
		}
		if result != ReadHit {
			t.Errorf("Result = %v, want hit", result)
		}
		if len(items) != 0 {
			t.Errorf("Expected empty promotional pool, got %v", items)
		}
	})

	t.Run("replaces_previous_contents", func(t *testing.T) {
		m, _, _, _ := newTestManager(t)

		_ = m.WritePools(ctx, "user-1", []Item{{ID: "old-1"}, {ID: "old-2", Promotion: true}})
		_ = m.WritePools(ctx, "user-1", []Item{{ID: "new-1"}})

		normal, _, _ := m.ReadPool(ctx, "user-1", PoolNormal)
		if len(normal) != 1 || normal[0].ID != "new-1" {
			t.Errorf("Normal pool = %v, want [new-1]", normal)
		}
		promotional, result, _ := m.ReadPool(ctx, "user-1", PoolPromotional)
		if result != ReadHit || len(promotional) != 0 {
			t.Errorf("Promotional pool = %v/%v, want empty hit", promotional, result)
		}
	})
}

func TestManager_ReadPool(t *testing.T) {
	ctx := context.Background()

	t.Run("absent", func(t *testing.T) {
		m, _, _, _ := newTestManager(t)

		items, result, err := m.ReadPool(ctx, "nobody", PoolNormal)
		if err != nil {
			t.Fatalf("ReadPool failed: %v", err)
		}
		if result != ReadAbsent || items != nil {
			t.Errorf("Got %v/%v, want nil/absent", items, result)
		}
	})

	t.Run("expired_then_absent", func(t *testing.T) {
		m, pools, _, setNow := newTestManager(t)

		_ = m.WritePools(ctx, "user-1", []Item{{ID: "a"}})

		// Exactly at the deadline the entry is expired.
		setNow(managerTestBase.Add(time.Hour))

		items, result, err := m.ReadPool(ctx, "user-1", PoolNormal)
		if err != nil {
			t.Fatalf("ReadPool failed: %v", err)
		}
		if result != ReadExpired || items != nil {
			t.Errorf("First read = %v/%v, want nil/expired", items, result)
		}

		// The expired read dropped the entry.
		if _, err := pools.ReadPool(ctx, "user-1", PoolNormal); !errors.Is(err, ErrPoolAbsent) {
			t.Errorf("Expected entry to be dropped, got: %v", err)
		}

		_, result, err = m.ReadPool(ctx, "user-1", PoolNormal)
		if err != nil {
			t.Fatalf("Second ReadPool failed: %v", err)
		}
		if result != ReadAbsent {
			t.Errorf("Second read = %v, want absent", result)
		}
	})

	t.Run("fresh_up_to_the_deadline", func(t *testing.T) {
		m, _, _, setNow := newTestManager(t)

		_ = m.WritePools(ctx, "user-1", []Item{{ID: "a"}})
		setNow(managerTestBase.Add(time.Hour - time.Millisecond))

		_, result, err := m.ReadPool(ctx, "user-1", PoolNormal)
		if err != nil || result != ReadHit {
			t.Errorf("Got %v/%v, want hit just before the deadline", result, err)
		}
	})
}

// TestManager_InvalidateOrder_Cascade walks the canonical case: with a
// normal pool [A, B] and a promotional pool [B], deleting order B must
// leave [A] and an empty promotional pool, and unmap B.
func TestManager_InvalidateOrder_Cascade(t *testing.T) {
	ctx := context.Background()
	m, _, mapping, _ := newTestManager(t)

	items := []Item{
		{ID: "order-a", Title: "Logo design"},
		{ID: "order-b", Title: "Spring banner", Promotion: true},
	}
	if err := m.Submit(ctx, "order-a", "12345", items); err != nil {
		t.Fatalf("Submit(order-a) failed: %v", err)
	}
	if err := m.Submit(ctx, "order-b", "12345", items); err != nil {
		t.Fatalf("Submit(order-b) failed: %v", err)
	}

	affected, err := m.InvalidateOrder(ctx, "order-b")
	if err != nil {
		t.Fatalf("InvalidateOrder failed: %v", err)
	}
	if affected != 1 {
		t.Errorf("Affected users = %d, want 1", affected)
	}

	normal, result, err := m.ReadPool(ctx, "12345", PoolNormal)
	if err != nil || result != ReadHit {
		t.Fatalf("ReadPool(normal) = %v/%v, want hit", result, err)
	}
	if len(normal) != 1 || normal[0].ID != "order-a" {
		t.Errorf("Normal pool = %v, want [order-a]", normal)
	}

	promotional, result, err := m.ReadPool(ctx, "12345", PoolPromotional)
	if err != nil || result != ReadHit {
		t.Fatalf("ReadPool(promotional) = %v/%v, want hit", result, err)
	}
	if len(promotional) != 0 {
		t.Errorf("Promotional pool = %v, want empty", promotional)
	}

	if _, err := mapping.LookupUser(ctx, "order-b"); !errors.Is(err, ErrOrderNotMapped) {
		t.Errorf("Expected order-b to be unmapped, got: %v", err)
	}
	if user, err := mapping.LookupUser(ctx, "order-a"); err != nil || user != "12345" {
		t.Errorf("order-a mapping disturbed: %q/%v", user, err)
	}
}

func TestManager_InvalidateOrder_Unmapped(t *testing.T) {
	ctx := context.Background()
	m, _, _, _ := newTestManager(t)

	_ = m.WritePools(ctx, "user-1", []Item{{ID: "order-a"}})

	affected, err := m.InvalidateOrder(ctx, "never-submitted")
	if err != nil {
		t.Fatalf("InvalidateOrder failed: %v", err)
	}
	if affected != 0 {
		t.Errorf("Affected users = %d, want 0", affected)
	}

	// Nobody's pools were touched.
	items, result, _ := m.ReadPool(ctx, "user-1", PoolNormal)
	if result != ReadHit || len(items) != 1 {
		t.Errorf("Unrelated pool disturbed: %v/%v", items, result)
	}
}

// TestManager_InvalidateOrder_PreservesTTL pins the rewrite rule:
// removing an item keeps the pool's original expiry, it never extends
// the pool's life.
func TestManager_InvalidateOrder_PreservesTTL(t *testing.T) {
	ctx := context.Background()
	m, pools, _, setNow := newTestManager(t)

	items := []Item{{ID: "order-a"}, {ID: "order-b"}}
	if err := m.Submit(ctx, "order-b", "12345", items); err != nil {
		t.Fatalf("Submit failed: %v", err)
	}

	setNow(managerTestBase.Add(30 * time.Minute))

	if _, err := m.InvalidateOrder(ctx, "order-b"); err != nil {
		t.Fatalf("InvalidateOrder failed: %v", err)
	}

	entry, err := pools.ReadPool(ctx, "12345", PoolNormal)
	if err != nil {
		t.Fatalf("ReadPool failed: %v", err)
	}
	if want := managerTestBase.Add(time.Hour); !entry.ExpiresAt.Equal(want) {
		t.Errorf("ExpiresAt = %v, want original %v", entry.ExpiresAt, want)
	}
	if !entry.WrittenAt.Equal(managerTestBase) {
		t.Errorf("WrittenAt = %v, want original %v", entry.WrittenAt, managerTestBase)
	}
}

func TestManager_InvalidateOrder_ExpiredPoolsDropped(t *testing.T) {
	ctx := context.Background()
	m, pools, mapping, setNow := newTestManager(t)

	if err := m.Submit(ctx, "order-a", "12345", []Item{{ID: "order-a"}}); err != nil {
		t.Fatalf("Submit failed: %v", err)
	}

	setNow(managerTestBase.Add(2 * time.Hour))

	// The mapping still exists, so the invalidation counts one user
	// even though its pools are already past their TTL.
	affected, err := m.InvalidateOrder(ctx, "order-a")
	if err != nil {
		t.Fatalf("InvalidateOrder failed: %v", err)
	}
	if affected != 1 {
		t.Errorf("Affected users = %d, want 1", affected)
	}

	// Expired pools are dropped, not rewritten.
	if _, err := pools.ReadPool(ctx, "12345", PoolNormal); !errors.Is(err, ErrPoolAbsent) {
		t.Errorf("Expected normal pool dropped, got: %v", err)
	}
	if _, err := pools.ReadPool(ctx, "12345", PoolPromotional); !errors.Is(err, ErrPoolAbsent) {
		t.Errorf("Expected promotional pool dropped, got: %v", err)
	}
	if _, err := mapping.LookupUser(ctx, "order-a"); !errors.Is(err, ErrOrderNotMapped) {
		t.Errorf("Expected mapping removed, got: %v", err)
	}
}

func TestManager_InvalidateOrder_ItemMissingFromPools(t *testing.T) {
	ctx := context.Background()
	m, pools, mapping, _ := newTestManager(t)

	// Mapped, but the pools were computed before this order existed.
	if err := mapping.RecordSubmission(ctx, "order-z", "user-1"); err != nil {
		t.Fatalf("RecordSubmission failed: %v", err)
	}
	_ = m.WritePools(ctx, "user-1", []Item{{ID: "order-a"}})

	affected, err := m.InvalidateOrder(ctx, "order-z")
	if err != nil {
		t.Fatalf("InvalidateOrder failed: %v", err)
	}
	if affected != 1 {
		t.Errorf("Affected users = %d, want 1 (mapping existed)", affected)
	}

	entry, err := pools.ReadPool(ctx, "user-1", PoolNormal)
	if err != nil {
		t.Fatalf("ReadPool failed: %v", err)
	}
	if len(entry.Items) != 1 || entry.Items[0].ID != "order-a" {
		t.Errorf("Pool contents disturbed: %v", entry.Items)
	}
	if _, err := mapping.LookupUser(ctx, "order-z"); !errors.Is(err, ErrOrderNotMapped) {
		t.Errorf("Expected mapping removed, got: %v", err)
	}
}

func TestManager_InvalidateUser(t *testing.T) {
	ctx := context.Background()
	m, _, mapping, _ := newTestManager(t)

	items := []Item{{ID: "order-a"}, {ID: "order-b", Promotion: true}}
	if err := m.Submit(ctx, "order-a", "12345", items); err != nil {
		t.Fatalf("Submit failed: %v", err)
	}

	if err := m.InvalidateUser(ctx, "12345"); err != nil {
		t.Fatalf("InvalidateUser failed: %v", err)
	}

	for _, kind := range PoolKinds {
		_, result, err := m.ReadPool(ctx, "12345", kind)
		if err != nil {
			t.Fatalf("ReadPool(%s) failed: %v", kind, err)
		}
		if result != ReadAbsent {
			t.Errorf("%s pool = %v, want absent", kind, result)
		}
	}

	// The mapping survives: the orders still exist, only the cached
	// view was dropped.
	if user, err := mapping.LookupUser(ctx, "order-a"); err != nil || user != "12345" {
		t.Errorf("Mapping disturbed by InvalidateUser: %q/%v", user, err)
	}
}

// TestManager_InvalidateOrder_ExactlyOnce races several invalidations
// of the same order; exactly one may report an affected user.
func TestManager_InvalidateOrder_ExactlyOnce(t *testing.T) {
	ctx := context.Background()
	m, _, _, _ := newTestManager(t)

	if err := m.Submit(ctx, "order-a", "user-1", []Item{{ID: "order-a"}}); err != nil {
		t.Fatalf("Submit failed: %v", err)
	}

	const racers = 16
	var wg sync.WaitGroup
	var total atomic.Int64

	for i := 0; i < racers; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			affected, err := m.InvalidateOrder(ctx, "order-a")
			if err != nil {
				t.Errorf("InvalidateOrder failed: %v", err)
				return
			}
			total.Add(int64(affected))
		}()
	}
	wg.Wait()

	if total.Load() != 1 {
		t.Errorf("Total affected = %d, want exactly 1", total.Load())
	}
}

func TestManager_ConcurrentSubmits(t *testing.T) {
	ctx := context.Background()
	m, _, mapping, _ := newTestManager(t)

	const writers = 8
	var wg sync.WaitGroup
	for i := 0; i < writers; i++ {
		wg.Add(1)
		go func(n int) {
			defer wg.Done()
			orderID := string(rune('a'+n)) + "-order"
			if err := m.Submit(ctx, orderID, "user-1", []Item{{ID: orderID}}); err != nil {
				t.Errorf("Submit failed: %v", err)
			}
		}(i)
	}
	wg.Wait()

	orders, err := mapping.LookupOrders(ctx, "user-1")
	if err != nil {
		t.Fatalf("LookupOrders failed: %v", err)
	}
	if len(orders) != writers {
		t.Errorf("Mapped %d orders, want %d", len(orders), writers)
	}

	// Pools hold whichever submit committed last; they must exist and
	// contain exactly one item.
	items, result, err := m.ReadPool(ctx, "user-1", PoolNormal)
	if err != nil || result != ReadHit {
		t.Fatalf("ReadPool = %v/%v, want hit", result, err)
	}
	if len(items) != 1 {
		t.Errorf("Normal pool has %d items, want 1", len(items))
	}
}
