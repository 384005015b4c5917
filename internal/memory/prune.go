package memory

import (
	"sort"
	"time"
)

// EvictionOrder returns items sorted lowest-importance first, ties broken
// oldest-first. Pruning removes from the head of this ordering; the
// compressor's truncation fallback uses the same ordering.
func EvictionOrder(items []Item) []Item {
	out := make([]Item, len(items))
	copy(out, items)
	sort.SliceStable(out, func(i, j int) bool {
		if out[i].Importance != out[j].Importance {
			return out[i].Importance < out[j].Importance
		}
		return out[i].CreatedAt.Before(out[j].CreatedAt)
	})
	return out
}

// filterActive drops expired items, preserving creation order. Every read
// path and the eager pruning path share this so the observable
// "never return an expired item" guarantee cannot drift.
func filterActive(items []Item, now time.Time) []Item {
	out := make([]Item, 0, len(items))
	for _, it := range items {
		if it.Expired(now) {
			continue
		}
		out = append(out, it)
	}
	return out
}

// applyPolicy returns the surviving items in creation order plus the number
// removed. Expired items go first regardless of importance, then the
// lowest-importance items until the cap is met.
func applyPolicy(items []Item, policy PrunePolicy, now time.Time) ([]Item, int) {
	active := filterActive(items, now)
	if policy.RetentionWindow > 0 {
		cutoff := now.Add(-policy.RetentionWindow)
		kept := active[:0:0]
		for _, it := range active {
			if it.CreatedAt.Before(cutoff) {
				continue
			}
			kept = append(kept, it)
		}
		active = kept
	}
	removed := len(items) - len(active)

	if policy.MaxShortTermItems > 0 && len(active) > policy.MaxShortTermItems {
		evictCount := len(active) - policy.MaxShortTermItems
		evicted := make(map[string]struct{}, evictCount)
		for _, it := range EvictionOrder(active)[:evictCount] {
			evicted[it.ID] = struct{}{}
		}
		kept := make([]Item, 0, policy.MaxShortTermItems)
		for _, it := range active {
			if _, gone := evicted[it.ID]; gone {
				continue
			}
			kept = append(kept, it)
		}
		removed += evictCount
		active = kept
	}

	return active, removed
}
