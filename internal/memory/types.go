package memory

import (
	"context"
	"errors"
	"time"
)

// Role classifies who produced a memory item.
type Role string

const (
	RoleUser      Role = "user"
	RoleAssistant Role = "assistant"
	RoleSystem    Role = "system"
	RoleSummary   Role = "summary"
)

var (
	// ErrDegradedStorage signals the durable tier is unreachable. It is
	// absorbed inside the store and never surfaced to callers.
	ErrDegradedStorage = errors.New("durable tier unavailable")

	// ErrCorruptItem marks a stored item that failed to deserialize. The
	// item is skipped; the read as a whole still succeeds.
	ErrCorruptItem = errors.New("corrupt memory item")
)

// Item is one recorded conversation turn or a derived summary.
type Item struct {
	ID             string            `json:"id"`
	ConversationID string            `json:"conversation_id"`
	UserID         string            `json:"user_id"`
	Role           Role              `json:"role"`
	Content        string            `json:"content"`
	Importance     float64           `json:"importance"`
	TokenEstimate  int               `json:"token_estimate"`
	GroupKey       string            `json:"group_key,omitempty"`
	Metadata       map[string]string `json:"metadata,omitempty"`
	CreatedAt      time.Time         `json:"created_at"`
	ExpiresAt      *time.Time        `json:"expires_at,omitempty"`
}

// Expired reports whether the item is past its expiry at the given instant.
func (it Item) Expired(now time.Time) bool {
	return it.ExpiresAt != nil && !it.ExpiresAt.After(now)
}

// PrunePolicy bounds the active set of a conversation.
type PrunePolicy struct {
	MaxShortTermItems int
	RetentionWindow   time.Duration
}

// Store persists and retrieves memory items.
//
// Put must be idempotent by item ID. GetActive returns non-expired items in
// creation order and reflects every Put that completed before the call
// began. Prune removes expired items and then evicts lowest-importance
// (ties oldest-first) items down to the policy cap.
type Store interface {
	Put(ctx context.Context, item Item) error
	GetActive(ctx context.Context, conversationID string) ([]Item, error)
	Prune(ctx context.Context, conversationID string, policy PrunePolicy) (int, error)
	Delete(ctx context.Context, conversationID string) error
	Conversations(ctx context.Context) ([]string, error)

	// CommitSummary atomically replaces the source items with the summary
	// in the active view. Durable tiers retain the sources, tagged with
	// the summary's group key so they never reappear in active reads.
	CommitSummary(ctx context.Context, conversationID string, summary Item, sourceIDs []string) error

	Close() error
}

// EstimateTokens approximates the generation-model footprint of a text.
// Four characters per token is the usual rule of thumb for English prose.
func EstimateTokens(content string) int {
	n := (len(content) + 3) / 4
	if n < 1 {
		n = 1
	}
	return n
}
