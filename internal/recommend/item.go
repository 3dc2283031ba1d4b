// Recgate - Order Recommendation Gateway and Cache
// Copyright 2026 Ordercast Authors
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/ordercast/recgate

package recommend

import "fmt"

// Item is one recommendation entry as persisted in a pool. The JSON
// keys are a wire contract with pool consumers: camelCase throughout
// except similarity_score, which predates the convention and is kept
// verbatim.
type Item struct {
	// ID is the recommended order's identifier.
	ID string `json:"id"`

	// TaskNumber is the order's human-facing reference number.
	TaskNumber string `json:"taskNumber"`

	// Title is the order title.
	Title string `json:"title"`

	// IndustryName classifies the order's business vertical.
	IndustryName string `json:"industryName"`

	// FullAmount is the order value.
	FullAmount float64 `json:"fullAmount"`

	// State is the order's lifecycle state code.
	State int `json:"state"`

	// CreateTime is the order creation time as formatted upstream.
	CreateTime string `json:"createTime"`

	// SiteID identifies the originating site.
	SiteID string `json:"siteId"`

	// Promotion marks items eligible for the promotional pool.
	Promotion bool `json:"promotion"`

	// SimilarityScore is the engine's relevance score for this item.
	SimilarityScore float64 `json:"similarity_score"`
}

// Order is a submitted order as accepted by the gateway. It seeds
// recommendation computation and the mapping index; the authoritative
// order record lives in the external order store.
type Order struct {
	ID           string  `json:"id" validate:"required"`
	UserID       string  `json:"userId" validate:"required"`
	TaskNumber   string  `json:"taskNumber"`
	Title        string  `json:"title" validate:"required"`
	Content      string  `json:"content"`
	IndustryName string  `json:"industryName"`
	FullAmount   float64 `json:"fullAmount" validate:"gte=0"`
	State        int     `json:"state"`
	SiteID       string  `json:"siteId"`
	Priority     int     `json:"priority" validate:"gte=0,lte=10"`
	Promotion    bool    `json:"promotion"`
	CreateTime   string  `json:"createTime"`
	UpdateTime   string  `json:"updateTime"`
}

// PoolKind selects one of a user's two recommendation pools.
type PoolKind string

const (
	// PoolNormal holds every recommended item for a user.
	PoolNormal PoolKind = "normal"

	// PoolPromotional holds only the promotion-flagged subset.
	PoolPromotional PoolKind = "promotional"
)

// PoolKinds lists both kinds in write order.
var PoolKinds = []PoolKind{PoolNormal, PoolPromotional}

// Valid reports whether k names a known pool.
func (k PoolKind) Valid() bool {
	return k == PoolNormal || k == PoolPromotional
}

// StorageKey returns the store key for this pool of the given user.
// The key format is shared with pool consumers and must not change.
func (k PoolKind) StorageKey(userID string) string {
	return fmt.Sprintf("%s_recommendations_%s", k, userID)
}

// PartitionPools splits items into the two pool contents: the normal
// pool receives every item, the promotional pool the flagged subset.
// Input order is preserved in both.
func PartitionPools(items []Item) (normal, promotional []Item) {
	normal = make([]Item, len(items))
	copy(normal, items)

	promotional = make([]Item, 0)
	for _, item := range items {
		if item.Promotion {
			promotional = append(promotional, item)
		}
	}
	return normal, promotional
}
