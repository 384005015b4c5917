package summarizer

import (
	"context"
	"strings"
	"time"
	"unicode/utf8"

	"github.com/antoniostano/mnemo/internal/memory"
)

// Summarizer condenses a cluster of memory items into one summary text.
// Implementations must be safe to retry; callers treat failure as non-fatal
// and fall back to truncation.
type Summarizer interface {
	Summarize(ctx context.Context, items []memory.Item) (string, int, error)
}

// Heuristic is a model-free summarizer used when no API key is configured
// and as the default in tests. It keeps the first sentence of each turn.
type Heuristic struct {
	// MaxSentenceLen truncates runaway sentences. Zero means 160.
	MaxSentenceLen int
}

func (h Heuristic) Summarize(ctx context.Context, items []memory.Item) (string, int, error) {
	if err := ctx.Err(); err != nil {
		return "", 0, err
	}
	limit := h.MaxSentenceLen
	if limit <= 0 {
		limit = 160
	}

	parts := make([]string, 0, len(items))
	for _, it := range items {
		s := firstSentence(it.Content)
		if len(s) > limit {
			// Back up to a rune boundary so the cut never yields invalid UTF-8.
			cut := limit
			for cut > 0 && !utf8.RuneStart(s[cut]) {
				cut--
			}
			s = s[:cut]
		}
		if s == "" {
			continue
		}
		parts = append(parts, string(it.Role)+": "+s)
	}
	text := strings.Join(parts, " | ")
	return text, memory.EstimateTokens(text), nil
}

// Timed wraps a Summarizer and reports each call's wall-clock duration.
type Timed struct {
	Inner   Summarizer
	Observe func(time.Duration)
}

func (t Timed) Summarize(ctx context.Context, items []memory.Item) (string, int, error) {
	start := time.Now()
	text, tokens, err := t.Inner.Summarize(ctx, items)
	if t.Observe != nil {
		t.Observe(time.Since(start))
	}
	return text, tokens, err
}

func firstSentence(content string) string {
	content = strings.TrimSpace(content)
	for _, stop := range []string{". ", "! ", "? ", "\n"} {
		if i := strings.Index(content, stop); i >= 0 {
			return content[:i+1]
		}
	}
	return content
}
