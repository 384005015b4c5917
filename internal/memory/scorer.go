package memory

import (
	"math"
	"strings"
	"time"
)

// Scorer computes the importance of an item relative to recent history.
// Scoring is deterministic and side-effect-free; malformed input yields the
// floor score rather than an error.
type Scorer struct {
	// RecencyHalfLife controls the exponential age decay. Items this old
	// contribute half their recency weight.
	RecencyHalfLife time.Duration

	// Floor is the minimum score, also returned for empty content.
	Floor float64

	// FeedbackBoost is added when the item carries an explicit importance
	// flag from user feedback.
	FeedbackBoost float64

	// Now is the clock used for age computation. Tests pin it.
	Now func() time.Time
}

// MetadataFeedbackKey marks an item flagged as important by user feedback.
const MetadataFeedbackKey = "feedback_important"

func NewScorer() *Scorer {
	return &Scorer{
		RecencyHalfLife: 6 * time.Hour,
		Floor:           0.05,
		FeedbackBoost:   0.3,
		Now:             time.Now,
	}
}

// Score maps an item and its conversation history to [0, 1].
//
// Recency decays by half-life against the item's age. The content signal
// saturates with length so long turns do not dominate, and is discounted by
// lexical overlap with recent history so filler repeated every turn scores
// low. An explicit feedback flag adds a fixed boost, capped at 1.
func (s *Scorer) Score(item Item, history []Item) float64 {
	content := strings.TrimSpace(item.Content)
	if content == "" {
		return s.Floor
	}

	age := s.Now().Sub(item.CreatedAt)
	if age < 0 {
		age = 0
	}
	recency := math.Exp2(-age.Hours() / s.RecencyHalfLife.Hours())

	length := 1 - math.Exp(-float64(len(content))/240.0)
	novelty := s.novelty(content, history)
	contentSignal := length * (0.4 + 0.6*novelty)

	score := 0.5*recency + 0.5*contentSignal
	if item.Metadata[MetadataFeedbackKey] == "true" {
		score += s.FeedbackBoost
	}

	return clamp(score, s.Floor, 1)
}

// novelty measures how many of the item's terms are unseen in the most
// recent history entries. 1 means fully novel.
func (s *Scorer) novelty(content string, history []Item) float64 {
	terms := tokenize(content)
	if len(terms) == 0 {
		return 0
	}

	seen := make(map[string]struct{})
	start := len(history) - 10
	if start < 0 {
		start = 0
	}
	for _, h := range history[start:] {
		for t := range tokenize(h.Content) {
			seen[t] = struct{}{}
		}
	}
	if len(seen) == 0 {
		return 1
	}

	fresh := 0
	for t := range terms {
		if _, ok := seen[t]; !ok {
			fresh++
		}
	}
	return float64(fresh) / float64(len(terms))
}

func tokenize(content string) map[string]struct{} {
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

func clamp(v, lo, hi float64) float64 {
	if v < lo {
		return lo
	}
	if v > hi {
		return hi
	}
	return v
}
