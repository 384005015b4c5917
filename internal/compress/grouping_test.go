package compress

import (
	"testing"

	"github.com/antoniostano/mnemo/internal/memory"
)

func TestTermOverlapGrouperClustersSimilarContent(t *testing.T) {
	g := NewTermOverlapGrouper(0.25)
	items := []memory.Item{
		{ID: "a", Content: "the postgres index on created_at is slow for range scans"},
		{ID: "b", Content: "postgres range scans need a better created_at index"},
		{ID: "c", Content: "my cat knocked the coffee mug off the desk"},
	}

	groups := g.Group(items)
	if len(groups) != 2 {
		t.Fatalf("len(groups) = %d, want 2: %+v", len(groups), groups)
	}
	if len(groups[0]) != 2 || groups[0][0].ID != "a" || groups[0][1].ID != "b" {
		t.Fatalf("similar items should share a group, got %+v", groups[0])
	}
	if len(groups[1]) != 1 || groups[1][0].ID != "c" {
		t.Fatalf("dissimilar item should stand alone, got %+v", groups[1])
	}
}

func TestTermOverlapGrouperPreservesOrderWithinGroups(t *testing.T) {
	g := NewTermOverlapGrouper(0.25)
	items := []memory.Item{
		{ID: "1", Content: "weekly budget review for the marketing team"},
		{ID: "2", Content: "lunch order for friday"},
		{ID: "3", Content: "marketing team budget review followup for the week"},
	}

	groups := g.Group(items)
	for _, group := range groups {
		for i := 1; i < len(group); i++ {
			if group[i].ID < group[i-1].ID {
				t.Fatalf("group order should follow input order, got %+v", group)
			}
		}
	}
}

func TestTermOverlapGrouperDefaultsBadThreshold(t *testing.T) {
	g := NewTermOverlapGrouper(0)
	if g.Threshold != 0.25 {
		t.Fatalf("Threshold = %v, want default 0.25", g.Threshold)
	}
	g = NewTermOverlapGrouper(1.5)
	if g.Threshold != 0.25 {
		t.Fatalf("Threshold = %v, want default 0.25", g.Threshold)
	}
}
