// Recgate - Order Recommendation Gateway and Cache
// Copyright 2026 Ordercast Authors
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/ordercast/recgate

package recommend

import (
	"testing"

	json "github.com/goccy/go-json"
)

func TestPartitionPools(t *testing.T) {
	t.Run("mixed_items", func(t *testing.T) {
		items := []Item{
			{ID: "order-1"},
			{ID: "order-2", Promotion: true},
			{ID: "order-3"},
			{ID: "order-4", Promotion: true},
		}

		normal, promotional := PartitionPools(items)

		if len(normal) != 4 {
			t.Errorf("normal pool has %d items, want all 4", len(normal))
		}
		for i, item := range normal {
			if item.ID != items[i].ID {
				t.Errorf("normal[%d] = %s, want %s (order must be preserved)", i, item.ID, items[i].ID)
			}
		}

		if len(promotional) != 2 {
			t.Fatalf("promotional pool has %d items, want 2", len(promotional))
		}
		if promotional[0].ID != "order-2" || promotional[1].ID != "order-4" {
			t.Errorf("promotional pool = [%s, %s], want [order-2, order-4]",
				promotional[0].ID, promotional[1].ID)
		}
	})

	t.Run("no_promotions", func(t *testing.T) {
		normal, promotional := PartitionPools([]Item{{ID: "a"}, {ID: "b"}})
		if len(normal) != 2 {
			t.Errorf("normal pool has %d items, want 2", len(normal))
		}
		if promotional == nil {
			t.Error("promotional pool is nil, want empty slice")
		}
		if len(promotional) != 0 {
			t.Errorf("promotional pool has %d items, want 0", len(promotional))
		}
	})

	t.Run("all_promotions", func(t *testing.T) {
		items := []Item{{ID: "a", Promotion: true}, {ID: "b", Promotion: true}}
		normal, promotional := PartitionPools(items)
		if len(normal) != 2 || len(promotional) != 2 {
			t.Errorf("got %d/%d items, want 2/2", len(normal), len(promotional))
		}
	})

	t.Run("empty_input", func(t *testing.T) {
		normal, promotional := PartitionPools(nil)
		if len(normal) != 0 || len(promotional) != 0 {
			t.Errorf("got %d/%d items, want 0/0", len(normal), len(promotional))
		}
	})

	t.Run("normal_is_a_copy", func(t *testing.T) {
		items := []Item{{ID: "a", Title: "original"}}
		normal, _ := PartitionPools(items)
		normal[0].Title = "mutated"
		if items[0].Title != "original" {
			t.Error("mutating the normal pool changed the input slice")
		}
	})
}

// TestItemJSONKeys pins the serialized field names. Every field is
// camelCase except similarity_score, and consumers depend on that
// exact shape.
func TestItemJSONKeys(t *testing.T) {
	item := Item{
		ID:              "order-1",
		TaskNumber:      "TN-001",
		Title:           "Logo design",
		IndustryName:    "Design",
		FullAmount:      1500.50,
		State:           1,
		CreateTime:      "2026-01-02 15:04:05",
		SiteID:          "site-9",
		Promotion:       true,
		SimilarityScore: 0.87,
	}

	raw, err := json.Marshal(item)
	if err != nil {
		t.Fatalf("Marshal() error = %v", err)
	}

	var fields map[string]any
	if err := json.Unmarshal(raw, &fields); err != nil {
		t.Fatalf("Unmarshal() error = %v", err)
	}

	want := []string{
		"id", "taskNumber", "title", "industryName", "fullAmount",
		"state", "createTime", "siteId", "promotion", "similarity_score",
	}
	for _, key := range want {
		if _, ok := fields[key]; !ok {
			t.Errorf("serialized item is missing key %q (body: %s)", key, raw)
		}
	}
	if len(fields) != len(want) {
		t.Errorf("serialized item has %d keys, want %d", len(fields), len(want))
	}

	if got := fields["similarity_score"].(float64); got != 0.87 {
		t.Errorf("similarity_score = %v, want 0.87", got)
	}
}

func TestPoolKind(t *testing.T) {
	t.Run("valid", func(t *testing.T) {
		if !PoolNormal.Valid() || !PoolPromotional.Valid() {
			t.Error("built-in pool kinds must be valid")
		}
		if PoolKind("archived").Valid() {
			t.Error("unknown pool kind reported valid")
		}
	})

	t.Run("storage_key", func(t *testing.T) {
		if got := PoolNormal.StorageKey("12345"); got != "normal_recommendations_12345" {
			t.Errorf("StorageKey() = %q, want normal_recommendations_12345", got)
		}
		if got := PoolPromotional.StorageKey("12345"); got != "promotional_recommendations_12345" {
			t.Errorf("StorageKey() = %q, want promotional_recommendations_12345", got)
		}
	})
}
