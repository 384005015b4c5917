package scheduler

import (
	"context"
	"time"
)

// Maintainer is the facade hook the scheduler drives.
type Maintainer interface {
	Maintain(ctx context.Context)
}

// Scheduler runs retention maintenance on a fixed interval, independent of
// request traffic. It takes the same per-conversation locks as foreground
// operations through the Maintainer, so it never races an in-flight read.
type Scheduler struct {
	maintainer Maintainer
	interval   time.Duration
}

func New(maintainer Maintainer, interval time.Duration) *Scheduler {
	if interval <= 0 {
		interval = time.Minute
	}
	return &Scheduler{maintainer: maintainer, interval: interval}
}

// Start launches the maintenance loop; it stops when ctx is cancelled.
func (s *Scheduler) Start(ctx context.Context) {
	ticker := time.NewTicker(s.interval)
	go func() {
		defer ticker.Stop()
		for {
			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
				s.maintainer.Maintain(ctx)
			}
		}
	}()
}
