package memory

import (
	"context"
	"fmt"
	"math/rand"
	"sort"
	"testing"
	"time"
)

func TestVolatilePutIsIdempotentByID(t *testing.T) {
	s := NewVolatileStore()
	ctx := context.Background()

	item := Item{ID: "turn-1", ConversationID: "c1", Content: "hello"}
	if err := s.Put(ctx, item); err != nil {
		t.Fatalf("Put() error = %v", err)
	}
	item.Content = "hello again"
	if err := s.Put(ctx, item); err != nil {
		t.Fatalf("Put() error = %v", err)
	}

	items, err := s.GetActive(ctx, "c1")
	if err != nil {
		t.Fatalf("GetActive() error = %v", err)
	}
	if len(items) != 1 {
		t.Fatalf("len(items) = %d, want 1", len(items))
	}
	if items[0].Content != "hello again" {
		t.Fatalf("Content = %q, want the retried write to win", items[0].Content)
	}
}

func TestVolatileGetActiveFiltersExpired(t *testing.T) {
	s := NewVolatileStore()
	ctx := context.Background()
	now := time.Now().UTC()

	past := now.Add(-time.Minute)
	future := now.Add(time.Hour)
	_ = s.Put(ctx, Item{ID: "a", ConversationID: "c1", Content: "gone", CreatedAt: now.Add(-2 * time.Minute), ExpiresAt: &past})
	_ = s.Put(ctx, Item{ID: "b", ConversationID: "c1", Content: "kept", CreatedAt: now, ExpiresAt: &future})

	items, err := s.GetActive(ctx, "c1")
	if err != nil {
		t.Fatalf("GetActive() error = %v", err)
	}
	if len(items) != 1 || items[0].ID != "b" {
		t.Fatalf("expired item leaked into active read: %+v", items)
	}
}

func TestVolatilePruneEvictsLowestImportanceFirst(t *testing.T) {
	s := NewVolatileStore()
	ctx := context.Background()
	base := time.Now().UTC().Add(-time.Hour)
	rng := rand.New(rand.NewSource(7))

	var importances []float64
	for i := 0; i < 60; i++ {
		imp := rng.Float64()
		importances = append(importances, imp)
		_ = s.Put(ctx, Item{
			ID:             fmt.Sprintf("t%02d", i),
			ConversationID: "c1",
			Content:        fmt.Sprintf("turn %d", i),
			Importance:     imp,
			CreatedAt:      base.Add(time.Duration(i) * time.Second),
		})
	}

	removed, err := s.Prune(ctx, "c1", PrunePolicy{MaxShortTermItems: 50})
	if err != nil {
		t.Fatalf("Prune() error = %v", err)
	}
	if removed != 10 {
		t.Fatalf("removed = %d, want 10", removed)
	}

	items, _ := s.GetActive(ctx, "c1")
	if len(items) != 50 {
		t.Fatalf("len(items) = %d, want 50", len(items))
	}

	// The survivors must be exactly the 50 highest-importance turns.
	sorted := append([]float64(nil), importances...)
	sort.Float64s(sorted)
	threshold := sorted[9]
	for _, it := range items {
		if it.Importance < threshold {
			t.Fatalf("item %s with importance %v survived below eviction threshold %v", it.ID, it.Importance, threshold)
		}
	}

	// Order of survivors stays chronological.
	for i := 1; i < len(items); i++ {
		if items[i].CreatedAt.Before(items[i-1].CreatedAt) {
			t.Fatalf("survivors out of creation order at %d", i)
		}
	}
}

func TestVolatilePruneTiesBreakOldestFirst(t *testing.T) {
	s := NewVolatileStore()
	ctx := context.Background()
	base := time.Now().UTC().Add(-time.Hour)

	for i := 0; i < 4; i++ {
		_ = s.Put(ctx, Item{
			ID:             fmt.Sprintf("t%d", i),
			ConversationID: "c1",
			Content:        "same weight",
			Importance:     0.5,
			CreatedAt:      base.Add(time.Duration(i) * time.Second),
		})
	}

	if _, err := s.Prune(ctx, "c1", PrunePolicy{MaxShortTermItems: 2}); err != nil {
		t.Fatalf("Prune() error = %v", err)
	}
	items, _ := s.GetActive(ctx, "c1")
	if len(items) != 2 || items[0].ID != "t2" || items[1].ID != "t3" {
		t.Fatalf("tie-break should evict oldest first, got %+v", items)
	}
}

func TestVolatileCommitSummaryReplacesSources(t *testing.T) {
	s := NewVolatileStore()
	ctx := context.Background()
	base := time.Now().UTC().Add(-time.Hour)

	for i := 0; i < 4; i++ {
		_ = s.Put(ctx, Item{
			ID:             fmt.Sprintf("t%d", i),
			ConversationID: "c1",
			Content:        fmt.Sprintf("turn %d", i),
			CreatedAt:      base.Add(time.Duration(i) * time.Second),
		})
	}

	summary := Item{ID: "sum-1", ConversationID: "c1", Role: RoleSummary, Content: "turns 1-2", GroupKey: "g1", CreatedAt: base.Add(time.Second)}
	if err := s.CommitSummary(ctx, "c1", summary, []string{"t1", "t2"}); err != nil {
		t.Fatalf("CommitSummary() error = %v", err)
	}

	items, _ := s.GetActive(ctx, "c1")
	var ids []string
	for _, it := range items {
		ids = append(ids, it.ID)
	}
	want := []string{"t0", "sum-1", "t3"}
	if len(ids) != len(want) {
		t.Fatalf("ids = %v, want %v", ids, want)
	}
	for i := range want {
		if ids[i] != want[i] {
			t.Fatalf("ids = %v, want %v", ids, want)
		}
	}
}

func TestVolatileDelete(t *testing.T) {
	s := NewVolatileStore()
	ctx := context.Background()
	_ = s.Put(ctx, Item{ID: "a", ConversationID: "c1", Content: "x"})

	if err := s.Delete(ctx, "c1"); err != nil {
		t.Fatalf("Delete() error = %v", err)
	}
	items, _ := s.GetActive(ctx, "c1")
	if len(items) != 0 {
		t.Fatalf("items after delete = %+v, want none", items)
	}
}
