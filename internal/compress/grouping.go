package compress

import (
	"strings"

	"github.com/antoniostano/mnemo/internal/memory"
)

// Grouper clusters items by topical proximity. The measure is deliberately
// pluggable; an embedding-backed implementation can replace the default
// without touching the compression algorithm.
type Grouper interface {
	Group(items []memory.Item) [][]memory.Item
}

// TermOverlapGrouper clusters by Jaccard similarity over lowercased content
// terms. Single-link against the first group whose seed overlaps enough.
type TermOverlapGrouper struct {
	// Threshold is the minimum Jaccard similarity to join a group, in (0,1).
	Threshold float64
}

func NewTermOverlapGrouper(threshold float64) TermOverlapGrouper {
	if threshold <= 0 || threshold >= 1 {
		threshold = 0.25
	}
	return TermOverlapGrouper{Threshold: threshold}
}

func (g TermOverlapGrouper) Group(items []memory.Item) [][]memory.Item {
	type cluster struct {
		seed  map[string]struct{}
		items []memory.Item
	}

	var clusters []*cluster
	for _, it := range items {
		terms := termSet(it.Content)
		placed := false
		for _, c := range clusters {
			if jaccard(terms, c.seed) >= g.Threshold {
				c.items = append(c.items, it)
				placed = true
				break
			}
		}
		if !placed {
			clusters = append(clusters, &cluster{seed: terms, items: []memory.Item{it}})
		}
	}

	out := make([][]memory.Item, 0, len(clusters))
	for _, c := range clusters {
		out = append(out, c.items)
	}
	return out
}

func termSet(content string) map[string]struct{} {
	out := make(map[string]struct{})
	for _, f := range strings.FieldsFunc(strings.ToLower(content), func(r rune) bool {
		return !(r >= 'a' && r <= 'z' || r >= '0' && r <= '9')
	}) {
		if len(f) < 3 {
			continue
		}
		out[f] = struct{}{}
	}
	return out
}

func jaccard(a, b map[string]struct{}) float64 {
	if len(a) == 0 || len(b) == 0 {
		return 0
	}
	inter := 0
	for t := range a {
		if _, ok := b[t]; ok {
			inter++
		}
	}
	union := len(a) + len(b) - inter
	if union == 0 {
		return 0
	}
	return float64(inter) / float64(union)
}
