package facade

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/antoniostano/mnemo/internal/compress"
	"github.com/antoniostano/mnemo/internal/memory"
	"github.com/antoniostano/mnemo/internal/observability"
	"github.com/antoniostano/mnemo/internal/prefs"
)

// ErrConversationGone rejects writes to a deleted conversation. Deletion is
// terminal; the conversation ID can never be written again.
var ErrConversationGone = errors.New("conversation deleted")

// State of one conversation. Compressing is transient inside GetContext;
// Deleted is terminal.
type State string

const (
	StateActive      State = "active"
	StateCompressing State = "compressing"
	StateDeleted     State = "deleted"
)

// Turn is one dialogue turn handed in by the generation pipeline.
type Turn struct {
	// ID is optional; when set, recording the same ID twice stores one item.
	ID                string      `json:"id,omitempty"`
	ConversationID    string      `json:"conversation_id"`
	UserID            string      `json:"user_id"`
	Role              memory.Role `json:"role"`
	Content           string      `json:"content"`
	FeedbackImportant bool        `json:"feedback_important,omitempty"`
}

// ConversationContext is the assembled read result for one conversation.
type ConversationContext struct {
	ConversationID     string        `json:"conversation_id"`
	Items              []memory.Item `json:"items"`
	TotalTokenEstimate int           `json:"total_token_estimate"`
	// CompressionFallback is the observable flag for the lossy
	// truncation path: content was reduced more aggressively than ideal.
	CompressionFallback bool         `json:"compression_fallback,omitempty"`
	Hints               *prefs.Hints `json:"hints,omitempty"`
}

type convState struct {
	mu    sync.Mutex
	state State
}

// Facade is the single API surface of the memory subsystem. It is safe for
// concurrent use; operations on different conversations never block each
// other, operations on the same conversation are serialized.
type Facade struct {
	store      memory.Store
	scorer     *memory.Scorer
	compressor *compress.Compressor
	learner    *prefs.Learner
	policy     memory.PrunePolicy
	sink       observability.EventSink
	metrics    *observability.Metrics

	mu     sync.Mutex
	states map[string]*convState

	now func() time.Time
}

func New(store memory.Store, scorer *memory.Scorer, compressor *compress.Compressor, learner *prefs.Learner, policy memory.PrunePolicy, sink observability.EventSink, metrics *observability.Metrics) *Facade {
	if sink == nil {
		sink = observability.NoopSink{}
	}
	return &Facade{
		store:      store,
		scorer:     scorer,
		compressor: compressor,
		learner:    learner,
		policy:     policy,
		sink:       sink,
		metrics:    metrics,
		states:     make(map[string]*convState),
		now:        time.Now,
	}
}

// conv returns the lock-and-state record for a conversation, creating it in
// Active state on first touch. The per-conversation mutex is what
// serializes Put/GetContext/Prune for one conversation while leaving other
// conversations free.
func (f *Facade) conv(conversationID string) *convState {
	f.mu.Lock()
	defer f.mu.Unlock()
	st, ok := f.states[conversationID]
	if !ok {
		st = &convState{state: StateActive}
		f.states[conversationID] = st
	}
	return st
}

// RecordTurn scores and stores one turn. Returns ErrConversationGone for a
// deleted conversation and never blocks on the durable tier.
func (f *Facade) RecordTurn(ctx context.Context, turn Turn) error {
	if strings.TrimSpace(turn.ConversationID) == "" {
		return fmt.Errorf("record turn: empty conversation id")
	}
	if err := ctx.Err(); err != nil {
		return err
	}

	st := f.conv(turn.ConversationID)
	st.mu.Lock()
	defer st.mu.Unlock()
	if st.state == StateDeleted {
		return fmt.Errorf("record turn for %s: %w", turn.ConversationID, ErrConversationGone)
	}

	history, err := f.store.GetActive(ctx, turn.ConversationID)
	if err != nil {
		return fmt.Errorf("record turn: %w", err)
	}

	now := f.now().UTC()
	item := memory.Item{
		ID:             turn.ID,
		ConversationID: turn.ConversationID,
		UserID:         turn.UserID,
		Role:           turn.Role,
		Content:        turn.Content,
		TokenEstimate:  memory.EstimateTokens(turn.Content),
		CreatedAt:      now,
	}
	if item.ID == "" {
		item.ID = uuid.NewString()
	}
	if item.Role == "" {
		item.Role = memory.RoleUser
	}
	if f.policy.RetentionWindow > 0 {
		expires := now.Add(f.policy.RetentionWindow)
		item.ExpiresAt = &expires
	}
	if turn.FeedbackImportant {
		item.Metadata = map[string]string{memory.MetadataFeedbackKey: "true"}
	}
	item.Importance = f.scorer.Score(item, history)

	if err := f.store.Put(ctx, item); err != nil {
		return fmt.Errorf("record turn: %w", err)
	}
	if f.metrics != nil {
		f.metrics.TurnsRecorded.WithLabelValues(string(item.Role)).Inc()
	}
	return nil
}

// GetContext assembles the conversation's active items, compressing when
// over the token budget and attaching personalization hints. Summarizer
// trouble degrades to truncation; only caller cancellation fails the call.
func (f *Facade) GetContext(ctx context.Context, conversationID string, tokenBudget int) (ConversationContext, error) {
	if tokenBudget <= 0 {
		return ConversationContext{}, fmt.Errorf("get context: token budget must be positive")
	}

	st := f.conv(conversationID)
	st.mu.Lock()
	defer st.mu.Unlock()
	if st.state == StateDeleted {
		// Reads on a deleted conversation see nothing, not an error.
		return ConversationContext{ConversationID: conversationID}, nil
	}

	items, err := f.store.GetActive(ctx, conversationID)
	if err != nil {
		return ConversationContext{}, fmt.Errorf("get context: %w", err)
	}
	if f.metrics != nil {
		f.metrics.ContextReads.Inc()
	}

	st.state = StateCompressing
	res, err := f.compressor.Compress(ctx, items, tokenBudget)
	st.state = StateActive
	if err != nil {
		// Cancellation: nothing was committed, store is untouched.
		return ConversationContext{}, fmt.Errorf("get context: %w", err)
	}

	for _, commit := range res.Commits {
		if err := f.store.CommitSummary(ctx, conversationID, commit.Summary, commit.SourceIDs); err != nil {
			return ConversationContext{}, fmt.Errorf("commit summary: %w", err)
		}
	}

	if f.metrics != nil {
		if res.Passes > 0 {
			f.metrics.CompressionPasses.Add(float64(res.Passes))
		}
		if res.Fallback {
			f.metrics.FallbackTruncations.Inc()
		}
	}
	if res.Fallback {
		f.sink.Emit("compression_fallback", map[string]string{"conversation_id": conversationID})
	}

	out := ConversationContext{
		ConversationID:      conversationID,
		Items:               res.Items,
		TotalTokenEstimate:  res.TotalTokens,
		CompressionFallback: res.Fallback,
	}

	if userID := firstUserID(res.Items); userID != "" && f.learner != nil {
		hints, err := f.learner.GetPersonalizedContext(ctx, userID, "")
		if err == nil {
			out.Hints = &hints
		}
	}
	return out, nil
}

// Forget hard-deletes a conversation. The transition to Deleted is
// terminal: subsequent writes fail with ErrConversationGone.
func (f *Facade) Forget(ctx context.Context, conversationID string) error {
	st := f.conv(conversationID)
	st.mu.Lock()
	defer st.mu.Unlock()
	if st.state == StateDeleted {
		return nil
	}

	if err := f.store.Delete(ctx, conversationID); err != nil {
		return fmt.Errorf("forget conversation: %w", err)
	}
	st.state = StateDeleted
	if f.metrics != nil {
		f.metrics.ForgottenConversations.Inc()
	}
	f.sink.Emit("conversation_forgotten", map[string]string{"conversation_id": conversationID})
	return nil
}

// RecordPreferenceSignal forwards one signal to the learner.
func (f *Facade) RecordPreferenceSignal(ctx context.Context, userID string, sig prefs.Signal) error {
	return f.learner.RecordSignal(ctx, userID, sig)
}

// GetPersonalizedContext returns the hint set for a user.
func (f *Facade) GetPersonalizedContext(ctx context.Context, userID, query string) (prefs.Hints, error) {
	return f.learner.GetPersonalizedContext(ctx, userID, query)
}

// GetPreferences returns the user's learned preferences at or above the
// confidence threshold.
func (f *Facade) GetPreferences(ctx context.Context, userID string, minConfidence float64) ([]prefs.Preference, error) {
	return f.learner.GetPreferences(ctx, userID, minConfidence)
}

// ConversationState reports the state-machine position of a conversation.
func (f *Facade) ConversationState(conversationID string) State {
	f.mu.Lock()
	defer f.mu.Unlock()
	if st, ok := f.states[conversationID]; ok {
		return st.state
	}
	return StateActive
}

// Maintain runs one maintenance pass: prune every known conversation under
// its per-conversation lock, then decay preference confidence. The
// scheduler drives this on a fixed interval.
func (f *Facade) Maintain(ctx context.Context) {
	conversations, err := f.store.Conversations(ctx)
	if err != nil {
		f.sink.Emit("maintenance_error", map[string]string{"error": err.Error()})
		return
	}

	active := 0
	for _, id := range conversations {
		st := f.conv(id)
		st.mu.Lock()
		if st.state == StateDeleted {
			st.mu.Unlock()
			continue
		}
		removed, err := f.store.Prune(ctx, id, f.policy)
		st.mu.Unlock()
		if err != nil {
			f.sink.Emit("maintenance_error", map[string]string{"conversation_id": id, "error": err.Error()})
			continue
		}
		active++
		if removed > 0 && f.metrics != nil {
			f.metrics.PrunedItems.WithLabelValues("policy").Add(float64(removed))
		}
	}

	if f.metrics != nil {
		f.metrics.ActiveConversations.Set(float64(active))
	}
	if f.learner != nil {
		f.learner.DecayConfidence(f.now().UTC())
	}
}

func firstUserID(items []memory.Item) string {
	for _, it := range items {
		if it.UserID != "" {
			return it.UserID
		}
	}
	return ""
}
