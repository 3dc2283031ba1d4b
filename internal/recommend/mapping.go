// Recgate - Order Recommendation Gateway and Cache
// Copyright 2026 Ordercast Authors
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/ordercast/recgate

package recommend

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"sync"

	"github.com/dgraph-io/badger/v4"
	"github.com/goccy/go-json"

	"github.com/ordercast/recgate/internal/metrics"
)

// Mapping index errors
var (
	// ErrOrderNotMapped indicates the order has no recorded owner.
	ErrOrderNotMapped = errors.New("order is not mapped to any user")

	// ErrMappingClosed indicates the index has been closed.
	ErrMappingClosed = errors.New("mapping index is closed")
)

// MappingIndex maintains the order/user relation in both directions:
// order to owning user, and user to owned order set. Every order has
// at most one owner. The two directions always change together in one
// atomic step; no caller can observe one direction updated without the
// other.
type MappingIndex interface {
	// RecordSubmission maps an order to its owner in both directions.
	// If the order was mapped to a different user, that mapping is
	// replaced and the order leaves the previous owner's set.
	RecordSubmission(ctx context.Context, orderID, userID string) error

	// LookupUser returns the owner of an order, or ErrOrderNotMapped.
	LookupUser(ctx context.Context, orderID string) (string, error)

	// LookupOrders returns the sorted order set of a user. A user with
	// no orders yields an empty slice, not an error.
	LookupOrders(ctx context.Context, userID string) ([]string, error)

	// RemoveOrder unmaps an order from both directions. Removing an
	// unmapped order is a no-op.
	RemoveOrder(ctx context.Context, orderID string) error

	// Size returns the number of mapped orders.
	Size(ctx context.Context) (int, error)

	// Close closes the index.
	Close() error
}

// MemoryMappingIndex keeps both directions in process memory under one
// lock. Mappings are lost on restart; production deployments use the
// Badger index.
type MemoryMappingIndex struct {
	mu           sync.RWMutex
	orderToUser  map[string]string
	userToOrders map[string]map[string]struct{}
	closed       bool
}

// NewMemoryMappingIndex creates an empty in-memory index.
func NewMemoryMappingIndex() *MemoryMappingIndex {
	return &MemoryMappingIndex{
		orderToUser:  make(map[string]string),
		userToOrders: make(map[string]map[string]struct{}),
	}
}

// RecordSubmission maps an order to its owner in both directions.
func (m *MemoryMappingIndex) RecordSubmission(ctx context.Context, orderID, userID string) error {
	if orderID == "" || userID == "" {
		return fmt.Errorf("order and user IDs are required")
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	if m.closed {
		return ErrMappingClosed
	}

	if prev, ok := m.orderToUser[orderID]; ok && prev != userID {
		delete(m.userToOrders[prev], orderID)
		if len(m.userToOrders[prev]) == 0 {
			delete(m.userToOrders, prev)
		}
	}

	m.orderToUser[orderID] = userID
	if m.userToOrders[userID] == nil {
		m.userToOrders[userID] = make(map[string]struct{})
	}
	m.userToOrders[userID][orderID] = struct{}{}

	metrics.MappingSize.Set(float64(len(m.orderToUser)))
	return nil
}

// LookupUser returns the owner of an order.
func (m *MemoryMappingIndex) LookupUser(ctx context.Context, orderID string) (string, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	if m.closed {
		return "", ErrMappingClosed
	}

	userID, ok := m.orderToUser[orderID]
	if !ok {
		return "", ErrOrderNotMapped
	}
	return userID, nil
}

// LookupOrders returns the sorted order set of a user.
func (m *MemoryMappingIndex) LookupOrders(ctx context.Context, userID string) ([]string, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	if m.closed {
		return nil, ErrMappingClosed
	}

	set := m.userToOrders[userID]
	orders := make([]string, 0, len(set))
	for orderID := range set {
		orders = append(orders, orderID)
	}
	sort.Strings(orders)
	return orders, nil
}

// RemoveOrder unmaps an order from both directions.
func (m *MemoryMappingIndex) RemoveOrder(ctx context.Context, orderID string) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.closed {
		return ErrMappingClosed
	}

	userID, ok := m.orderToUser[orderID]
	if !ok {
		return nil
	}

	delete(m.orderToUser, orderID)
	delete(m.userToOrders[userID], orderID)
	if len(m.userToOrders[userID]) == 0 {
		delete(m.userToOrders, userID)
	}

	metrics.MappingSize.Set(float64(len(m.orderToUser)))
	return nil
}

// Size returns the number of mapped orders.
func (m *MemoryMappingIndex) Size(ctx context.Context) (int, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	if m.closed {
		return 0, ErrMappingClosed
	}
	return len(m.orderToUser), nil
}

// Close closes the index.
func (m *MemoryMappingIndex) Close() error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.closed = true
	m.orderToUser = nil
	m.userToOrders = nil
	return nil
}

// BadgerMappingIndex persists both directions in BadgerDB. The forward
// key holds the owner ID as a plain string, the reverse key a JSON
// array of order IDs. Each mutation touches both keys inside a single
// transaction, so a crash between the two writes cannot happen and a
// concurrent reader sees either the old pair or the new pair.
type BadgerMappingIndex struct {
	db     *badger.DB
	closed bool
	mu     sync.RWMutex
}

const (
	mappingOrderPrefix = "map:order:"
	mappingUserPrefix  = "map:user:"
)

// NewBadgerMappingIndex creates a BadgerDB-backed index on a shared DB.
func NewBadgerMappingIndex(db *badger.DB) *BadgerMappingIndex {
	return &BadgerMappingIndex{db: db}
}

func mappingOrderKey(orderID string) []byte {
	return []byte(mappingOrderPrefix + orderID)
}

func mappingUserKey(userID string) []byte {
	return []byte(mappingUserPrefix + userID)
}

// readOrderSet loads a user's order set inside a transaction. A
// missing key is an empty set.
func readOrderSet(txn *badger.Txn, userID string) ([]string, error) {
	item, err := txn.Get(mappingUserKey(userID))
	if errors.Is(err, badger.ErrKeyNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}

	var orders []string
	err = item.Value(func(val []byte) error {
		return json.Unmarshal(val, &orders)
	})
	return orders, err
}

// writeOrderSet stores a user's order set sorted, deleting the key
// when the set empties out.
func writeOrderSet(txn *badger.Txn, userID string, orders []string) error {
	if len(orders) == 0 {
		return txn.Delete(mappingUserKey(userID))
	}

	sort.Strings(orders)
	data, err := json.Marshal(orders)
	if err != nil {
		return err
	}
	return txn.Set(mappingUserKey(userID), data)
}

func removeFromSet(orders []string, orderID string) []string {
	kept := orders[:0]
	for _, id := range orders {
		if id != orderID {
			kept = append(kept, id)
		}
	}
	return kept
}

// RecordSubmission maps an order to its owner in both directions
// inside one transaction. Racing submissions for the same order
// conflict under Badger's SSI and retry, so the last committed write
// owns the order outright.
func (b *BadgerMappingIndex) RecordSubmission(ctx context.Context, orderID, userID string) error {
	if orderID == "" || userID == "" {
		return fmt.Errorf("order and user IDs are required")
	}
	if err := b.checkOpen(); err != nil {
		return err
	}

	return b.withConflictRetry(func() error {
		return b.db.Update(func(txn *badger.Txn) error {
			item, err := txn.Get(mappingOrderKey(orderID))
			if err == nil {
				var prev string
				if valErr := item.Value(func(val []byte) error {
					prev = string(val)
					return nil
				}); valErr != nil {
					return valErr
				}
				if prev == userID {
					// Same owner; the reverse set already holds the order.
					return nil
				}
				prevOrders, err := readOrderSet(txn, prev)
				if err != nil {
					return err
				}
				if err := writeOrderSet(txn, prev, removeFromSet(prevOrders, orderID)); err != nil {
					return err
				}
			} else if !errors.Is(err, badger.ErrKeyNotFound) {
				return err
			}

			if err := txn.Set(mappingOrderKey(orderID), []byte(userID)); err != nil {
				return err
			}

			orders, err := readOrderSet(txn, userID)
			if err != nil {
				return err
			}
			return writeOrderSet(txn, userID, append(orders, orderID))
		})
	})
}

// LookupUser returns the owner of an order.
func (b *BadgerMappingIndex) LookupUser(ctx context.Context, orderID string) (string, error) {
	if err := b.checkOpen(); err != nil {
		return "", err
	}

	var userID string
	err := b.db.View(func(txn *badger.Txn) error {
		item, err := txn.Get(mappingOrderKey(orderID))
		if errors.Is(err, badger.ErrKeyNotFound) {
			return ErrOrderNotMapped
		}
		if err != nil {
			return err
		}
		return item.Value(func(val []byte) error {
			userID = string(val)
			return nil
		})
	})
	return userID, err
}

// LookupOrders returns the sorted order set of a user.
func (b *BadgerMappingIndex) LookupOrders(ctx context.Context, userID string) ([]string, error) {
	if err := b.checkOpen(); err != nil {
		return nil, err
	}

	var orders []string
	err := b.db.View(func(txn *badger.Txn) error {
		var err error
		orders, err = readOrderSet(txn, userID)
		return err
	})
	if err != nil {
		return nil, err
	}

	if orders == nil {
		orders = []string{}
	}
	sort.Strings(orders)
	return orders, nil
}

// RemoveOrder unmaps an order from both directions in one transaction.
func (b *BadgerMappingIndex) RemoveOrder(ctx context.Context, orderID string) error {
	if err := b.checkOpen(); err != nil {
		return err
	}

	return b.withConflictRetry(func() error {
		return b.db.Update(func(txn *badger.Txn) error {
			item, err := txn.Get(mappingOrderKey(orderID))
			if errors.Is(err, badger.ErrKeyNotFound) {
				return nil
			}
			if err != nil {
				return err
			}

			var userID string
			if valErr := item.Value(func(val []byte) error {
				userID = string(val)
				return nil
			}); valErr != nil {
				return valErr
			}

			orders, err := readOrderSet(txn, userID)
			if err != nil {
				return err
			}
			if err := writeOrderSet(txn, userID, removeFromSet(orders, orderID)); err != nil {
				return err
			}
			return txn.Delete(mappingOrderKey(orderID))
		})
	})
}

// Size returns the number of mapped orders.
func (b *BadgerMappingIndex) Size(ctx context.Context) (int, error) {
	if err := b.checkOpen(); err != nil {
		return 0, err
	}

	count := 0
	err := b.db.View(func(txn *badger.Txn) error {
		opts := badger.DefaultIteratorOptions
		opts.Prefix = []byte(mappingOrderPrefix)
		opts.PrefetchValues = false
		it := txn.NewIterator(opts)
		defer it.Close()

		for it.Rewind(); it.Valid(); it.Next() {
			count++
		}
		return nil
	})

	metrics.MappingSize.Set(float64(count))
	return count, err
}

// Close closes the index.
func (b *BadgerMappingIndex) Close() error {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.closed = true
	// Don't close the DB as it's shared
	return nil
}

func (b *BadgerMappingIndex) checkOpen() error {
	b.mu.RLock()
	defer b.mu.RUnlock()
	if b.closed {
		return ErrMappingClosed
	}
	return nil
}

// withConflictRetry reruns a transaction a bounded number of times
// when Badger's SSI aborts it. Retried transactions see the winning
// writer's state.
func (b *BadgerMappingIndex) withConflictRetry(fn func() error) error {
	var err error
	for attempt := 0; attempt < 3; attempt++ {
		err = fn()
		if !errors.Is(err, badger.ErrConflict) {
			return err
		}
	}
	return err
}
