package memory

import (
	"context"
	"sync"
	"time"

	"github.com/google/uuid"
)

// VolatileStore is the in-process tier holding the active working set of
// every conversation. It is authoritative for reads; durability comes from
// the tier layered on top of it (see DualStore).
type VolatileStore struct {
	mu            sync.RWMutex
	conversations map[string][]Item
}

func NewVolatileStore() *VolatileStore {
	return &VolatileStore{conversations: make(map[string][]Item)}
}

func (s *VolatileStore) Put(_ context.Context, item Item) error {
	if item.ID == "" {
		item.ID = uuid.NewString()
	}
	if item.CreatedAt.IsZero() {
		item.CreatedAt = time.Now().UTC()
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	items := s.conversations[item.ConversationID]
	// Dedup by ID so retried writes stay idempotent.
	for i, existing := range items {
		if existing.ID == item.ID {
			items[i] = item
			return nil
		}
	}
	s.conversations[item.ConversationID] = append(items, item)
	return nil
}

func (s *VolatileStore) GetActive(_ context.Context, conversationID string) ([]Item, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return filterActive(s.conversations[conversationID], time.Now().UTC()), nil
}

func (s *VolatileStore) Prune(_ context.Context, conversationID string, policy PrunePolicy) (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	items, ok := s.conversations[conversationID]
	if !ok {
		return 0, nil
	}
	kept, removed := applyPolicy(items, policy, time.Now().UTC())
	if len(kept) == 0 {
		delete(s.conversations, conversationID)
	} else {
		s.conversations[conversationID] = kept
	}
	return removed, nil
}

func (s *VolatileStore) Delete(_ context.Context, conversationID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.conversations, conversationID)
	return nil
}

func (s *VolatileStore) Conversations(_ context.Context) ([]string, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]string, 0, len(s.conversations))
	for id := range s.conversations {
		out = append(out, id)
	}
	return out, nil
}

// CommitSummary swaps the source items for the summary in one step. The
// summary takes the slice position of the first source so chronological
// order is preserved.
func (s *VolatileStore) CommitSummary(_ context.Context, conversationID string, summary Item, sourceIDs []string) error {
	sources := make(map[string]struct{}, len(sourceIDs))
	for _, id := range sourceIDs {
		sources[id] = struct{}{}
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	items := s.conversations[conversationID]
	out := make([]Item, 0, len(items))
	inserted := false
	for _, it := range items {
		if _, isSource := sources[it.ID]; isSource {
			if !inserted {
				out = append(out, summary)
				inserted = true
			}
			continue
		}
		out = append(out, it)
	}
	if !inserted {
		out = append(out, summary)
	}
	s.conversations[conversationID] = out
	return nil
}

func (s *VolatileStore) Close() error { return nil }
