package memory

import (
	"fmt"
	"testing"
	"time"
)

func fixedClock(t time.Time) func() time.Time {
	return func() time.Time { return t }
}

func TestScoreBounds(t *testing.T) {
	now := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	s := NewScorer()
	s.Now = fixedClock(now)

	items := []Item{
		{Content: "", CreatedAt: now},
		{Content: "hi", CreatedAt: now},
		{Content: "a detailed discussion about postgres index tuning strategies", CreatedAt: now.Add(-48 * time.Hour)},
		{Content: "yes", CreatedAt: now.Add(-30 * 24 * time.Hour)},
		{
			Content:   "flagged as important by the user",
			CreatedAt: now,
			Metadata:  map[string]string{MetadataFeedbackKey: "true"},
		},
	}
	var history []Item
	for i := 0; i < 20; i++ {
		history = append(history, Item{Content: fmt.Sprintf("filler message number %d", i), CreatedAt: now})
	}

	for i, it := range items {
		for _, h := range [][]Item{nil, history} {
			got := s.Score(it, h)
			if got < 0 || got > 1 {
				t.Fatalf("Score(items[%d]) = %v, want in [0, 1]", i, got)
			}
		}
	}
}

func TestScoreEmptyContentIsFloor(t *testing.T) {
	s := NewScorer()
	s.Now = fixedClock(time.Now())
	if got := s.Score(Item{Content: "   "}, nil); got != s.Floor {
		t.Fatalf("Score(empty) = %v, want floor %v", got, s.Floor)
	}
}

func TestScoreFeedbackBoost(t *testing.T) {
	now := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	s := NewScorer()
	s.Now = fixedClock(now)

	plain := Item{Content: "the quarterly report needs a citation overhaul", CreatedAt: now}
	flagged := plain
	flagged.Metadata = map[string]string{MetadataFeedbackKey: "true"}

	if s.Score(flagged, nil) <= s.Score(plain, nil) {
		t.Fatalf("feedback flag should raise the score")
	}
}

func TestScoreRecencyDecay(t *testing.T) {
	now := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	s := NewScorer()
	s.Now = fixedClock(now)

	fresh := Item{Content: "distinct fresh observation about embeddings", CreatedAt: now}
	stale := fresh
	stale.CreatedAt = now.Add(-72 * time.Hour)

	if s.Score(stale, nil) >= s.Score(fresh, nil) {
		t.Fatalf("older item should not outscore an otherwise identical fresh one")
	}
}

func TestScoreNoveltyDiscountsRepetition(t *testing.T) {
	now := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	s := NewScorer()
	s.Now = fixedClock(now)

	history := []Item{
		{Content: "please summarize the weather report for tomorrow morning"},
		{Content: "please summarize the weather report for tonight"},
	}
	repeated := Item{Content: "please summarize the weather report again", CreatedAt: now}
	novel := Item{Content: "book a dentist appointment near the office thursday", CreatedAt: now}

	if s.Score(repeated, history) >= s.Score(novel, history) {
		t.Fatalf("repeated phrasing should score below novel content")
	}
}
