package scheduler

import (
	"context"
	"sync/atomic"
	"testing"
	"time"
)

type countingMaintainer struct{ runs atomic.Int64 }

func (c *countingMaintainer) Maintain(context.Context) { c.runs.Add(1) }

func TestSchedulerRunsOnInterval(t *testing.T) {
	m := &countingMaintainer{}
	s := New(m, 10*time.Millisecond)

	ctx, cancel := context.WithCancel(context.Background())
	s.Start(ctx)

	deadline := time.Now().Add(2 * time.Second)
	for m.runs.Load() < 3 && time.Now().Before(deadline) {
		time.Sleep(5 * time.Millisecond)
	}
	cancel()
	if got := m.runs.Load(); got < 3 {
		t.Fatalf("maintenance runs = %d, want at least 3", got)
	}
}

func TestSchedulerStopsOnCancel(t *testing.T) {
	m := &countingMaintainer{}
	s := New(m, 5*time.Millisecond)

	ctx, cancel := context.WithCancel(context.Background())
	s.Start(ctx)
	cancel()
	time.Sleep(20 * time.Millisecond)

	before := m.runs.Load()
	time.Sleep(30 * time.Millisecond)
	if after := m.runs.Load(); after != before {
		t.Fatalf("maintenance kept running after cancel: %d -> %d", before, after)
	}
}

func TestSchedulerDefaultsInterval(t *testing.T) {
	s := New(&countingMaintainer{}, 0)
	if s.interval != time.Minute {
		t.Fatalf("interval = %v, want default 1m", s.interval)
	}
}
