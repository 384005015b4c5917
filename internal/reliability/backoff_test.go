package reliability

import (
	"testing"
	"time"
)

func TestExponentialBackoff(t *testing.T) {
	base := 250 * time.Millisecond
	cap := 30 * time.Second

	cases := []struct {
		attempt int
		want    time.Duration
	}{
		{-1, base},
		{0, base},
		{1, 500 * time.Millisecond},
		{2, time.Second},
		{3, 2 * time.Second},
		{100, cap},
	}
	for _, tc := range cases {
		if got := ExponentialBackoff(tc.attempt, base, cap); got != tc.want {
			t.Fatalf("ExponentialBackoff(%d) = %v, want %v", tc.attempt, got, tc.want)
		}
	}
}

func TestExponentialBackoffNeverExceedsCap(t *testing.T) {
	base := 250 * time.Millisecond
	cap := 30 * time.Second
	for attempt := 0; attempt < 64; attempt++ {
		if got := ExponentialBackoff(attempt, base, cap); got > cap {
			t.Fatalf("ExponentialBackoff(%d) = %v exceeds cap %v", attempt, got, cap)
		}
	}
}
