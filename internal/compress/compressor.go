package compress

import (
	"context"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/antoniostano/mnemo/internal/memory"
	"github.com/antoniostano/mnemo/internal/summarizer"
)

// MetadataSourceIDs lists the IDs a summary item replaced, comma separated.
const MetadataSourceIDs = "source_ids"

// Commit is one summary replacement the caller must apply to the store.
// Commits are returned rather than applied so a cancelled compression never
// leaves partially replaced state behind.
type Commit struct {
	Summary   memory.Item
	SourceIDs []string
}

// Result is the compressed view of a conversation.
type Result struct {
	Items       []memory.Item
	TotalTokens int
	// Fallback is set when the summarizer failed or passes ran out and
	// the least-important items were truncated instead.
	Fallback bool
	Passes   int
	Commits  []Commit
}

// Compressor reduces a conversation's token footprint to a budget by
// summarizing topical groups, with lossy truncation as the fallback.
type Compressor struct {
	grouper    Grouper
	summarizer summarizer.Summarizer

	// SummarizerTimeout bounds each summarizer call. Zero means no extra
	// bound beyond the caller's context.
	SummarizerTimeout time.Duration

	// MaxPasses bounds the group-and-summarize loop.
	MaxPasses int

	// MinGroupTokens is the single-summary threshold: groups at or below
	// it are left alone.
	MinGroupTokens int
}

func New(grouper Grouper, s summarizer.Summarizer, summarizerTimeout time.Duration, maxPasses int) *Compressor {
	if maxPasses <= 0 {
		maxPasses = 3
	}
	return &Compressor{
		grouper:           grouper,
		summarizer:        s,
		SummarizerTimeout: summarizerTimeout,
		MaxPasses:         maxPasses,
		MinGroupTokens:    200,
	}
}

// Compress returns a view of items fitting the budget. Under-budget input
// is returned untouched. Summarizer failure or timeout switches to the
// truncation fallback instead of failing; only context cancellation from
// the caller aborts the call.
func (c *Compressor) Compress(ctx context.Context, items []memory.Item, tokenBudget int) (Result, error) {
	total := totalTokens(items)
	if total <= tokenBudget {
		return Result{Items: items, TotalTokens: total}, nil
	}

	current := make([]memory.Item, len(items))
	copy(current, items)

	res := Result{}
	for pass := 0; pass < c.MaxPasses && total > tokenBudget; pass++ {
		if err := ctx.Err(); err != nil {
			return Result{}, err
		}

		groups := c.grouper.Group(current)
		progressed := false
		for _, group := range groups {
			if len(group) < 2 || totalTokens(group) <= c.MinGroupTokens {
				continue
			}

			summary, err := c.summarizeGroup(ctx, group)
			if err != nil {
				if ctx.Err() != nil {
					return Result{}, ctx.Err()
				}
				// Summarizer trouble is non-fatal: stop summarizing
				// and let truncation finish the job.
				res.Fallback = true
				progressed = false
				break
			}

			sourceIDs := make([]string, 0, len(group))
			for _, it := range group {
				sourceIDs = append(sourceIDs, it.ID)
			}
			current = replaceWithSummary(current, summary, sourceIDs)
			res.Commits = append(res.Commits, Commit{Summary: summary, SourceIDs: sourceIDs})
			progressed = true
		}

		res.Passes++
		total = totalTokens(current)
		if !progressed {
			break
		}
	}

	if total > tokenBudget {
		current = truncate(current, tokenBudget)
		total = totalTokens(current)
		res.Fallback = true
	}

	res.Items = current
	res.TotalTokens = total
	return res, nil
}

func (c *Compressor) summarizeGroup(ctx context.Context, group []memory.Item) (memory.Item, error) {
	sctx := ctx
	if c.SummarizerTimeout > 0 {
		var cancel context.CancelFunc
		sctx, cancel = context.WithTimeout(ctx, c.SummarizerTimeout)
		defer cancel()
	}

	text, tokens, err := c.summarizer.Summarize(sctx, group)
	if err != nil {
		return memory.Item{}, err
	}

	groupKey := uuid.NewString()
	sourceIDs := make([]string, 0, len(group))
	maxImportance := 0.0
	for _, it := range group {
		sourceIDs = append(sourceIDs, it.ID)
		if it.Importance > maxImportance {
			maxImportance = it.Importance
		}
	}

	return memory.Item{
		ID:             uuid.NewString(),
		ConversationID: group[0].ConversationID,
		UserID:         group[0].UserID,
		Role:           memory.RoleSummary,
		Content:        text,
		Importance:     maxImportance,
		TokenEstimate:  tokens,
		GroupKey:       groupKey,
		Metadata:       map[string]string{MetadataSourceIDs: strings.Join(sourceIDs, ",")},
		// Keep the summary at the chronological position of its sources.
		CreatedAt: group[0].CreatedAt,
	}, nil
}

// truncate drops the least-important items (ties oldest-first) until the
// remainder fits the budget.
func truncate(items []memory.Item, tokenBudget int) []memory.Item {
	total := totalTokens(items)
	drop := make(map[string]struct{})
	for _, it := range memory.EvictionOrder(items) {
		if total <= tokenBudget {
			break
		}
		drop[it.ID] = struct{}{}
		total -= it.TokenEstimate
	}

	out := make([]memory.Item, 0, len(items)-len(drop))
	for _, it := range items {
		if _, gone := drop[it.ID]; gone {
			continue
		}
		out = append(out, it)
	}
	return out
}

func replaceWithSummary(items []memory.Item, summary memory.Item, sourceIDs []string) []memory.Item {
	sources := make(map[string]struct{}, len(sourceIDs))
	for _, id := range sourceIDs {
		sources[id] = struct{}{}
	}

	out := make([]memory.Item, 0, len(items))
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
	return out
}

func totalTokens(items []memory.Item) int {
	total := 0
	for _, it := range items {
		total += it.TokenEstimate
	}
	return total
}
