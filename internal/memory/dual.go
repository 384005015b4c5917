package memory

import (
	"context"
	"fmt"
	"log"
	"sync"
	"time"

	"github.com/antoniostano/mnemo/internal/observability"
	"github.com/antoniostano/mnemo/internal/reliability"
)

const (
	replayBackoffBase = 250 * time.Millisecond
	replayBackoffCap  = 30 * time.Second

	// maxReplayQueue bounds memory growth during a long durable outage.
	// Oldest writes are dropped first; the volatile tier still holds them.
	maxReplayQueue = 10000
)

type opKind int

const (
	opPut opKind = iota
	opDelete
	opPrune
	opCommitSummary
)

type durableOp struct {
	kind           opKind
	conversationID string
	item           Item
	sourceIDs      []string
	policy         PrunePolicy
}

// DualStore pairs the volatile working set with a durable system of record.
// Volatile writes are synchronous; durable writes are queued and replayed by
// a background goroutine with capped exponential backoff. A durable outage
// degrades the store to volatile-only service instead of failing callers.
type DualStore struct {
	volatile *VolatileStore
	durable  Store
	sink     observability.EventSink
	metrics  *observability.Metrics

	mu       sync.Mutex
	queue    []durableOp
	degraded bool
	wake     chan struct{}

	cancel context.CancelFunc
	done   chan struct{}
}

// NewDualStore starts the replayer. durable may be nil, in which case the
// store runs volatile-only and no replay goroutine is started.
func NewDualStore(volatile *VolatileStore, durable Store, sink observability.EventSink, metrics *observability.Metrics) *DualStore {
	if sink == nil {
		sink = observability.NoopSink{}
	}
	s := &DualStore{
		volatile: volatile,
		durable:  durable,
		sink:     sink,
		metrics:  metrics,
		wake:     make(chan struct{}, 1),
		done:     make(chan struct{}),
	}
	ctx, cancel := context.WithCancel(context.Background())
	s.cancel = cancel
	if durable != nil {
		go s.replayLoop(ctx)
	} else {
		close(s.done)
	}
	return s
}

func (s *DualStore) Put(ctx context.Context, item Item) error {
	if err := s.volatile.Put(ctx, item); err != nil {
		return err
	}
	s.enqueue(durableOp{kind: opPut, conversationID: item.ConversationID, item: item})
	return nil
}

func (s *DualStore) GetActive(ctx context.Context, conversationID string) ([]Item, error) {
	items, err := s.volatile.GetActive(ctx, conversationID)
	if err != nil {
		return nil, err
	}
	if len(items) > 0 || s.durable == nil || s.isDegraded() {
		return items, nil
	}

	// Cold conversation: rehydrate the working set from the system of
	// record. Failure here is absorbed; the caller just sees no history.
	durable, err := s.durable.GetActive(ctx, conversationID)
	if err != nil {
		s.absorb("degraded_storage", err)
		return items, nil
	}
	for _, it := range durable {
		if err := s.volatile.Put(ctx, it); err != nil {
			return nil, err
		}
	}
	return durable, nil
}

func (s *DualStore) Prune(ctx context.Context, conversationID string, policy PrunePolicy) (int, error) {
	removed, err := s.volatile.Prune(ctx, conversationID, policy)
	if err != nil {
		return 0, err
	}
	s.enqueue(durableOp{kind: opPrune, conversationID: conversationID, policy: policy})
	return removed, nil
}

func (s *DualStore) Delete(ctx context.Context, conversationID string) error {
	if err := s.volatile.Delete(ctx, conversationID); err != nil {
		return err
	}
	s.enqueue(durableOp{kind: opDelete, conversationID: conversationID})
	return nil
}

func (s *DualStore) Conversations(ctx context.Context) ([]string, error) {
	return s.volatile.Conversations(ctx)
}

func (s *DualStore) CommitSummary(ctx context.Context, conversationID string, summary Item, sourceIDs []string) error {
	if err := s.volatile.CommitSummary(ctx, conversationID, summary, sourceIDs); err != nil {
		return err
	}
	s.enqueue(durableOp{kind: opCommitSummary, conversationID: conversationID, item: summary, sourceIDs: sourceIDs})
	return nil
}

// Degraded reports whether durable writes are currently failing.
func (s *DualStore) Degraded() bool { return s.isDegraded() }

// QueueDepth returns the number of durable writes awaiting replay.
func (s *DualStore) QueueDepth() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.queue)
}

func (s *DualStore) Close() error {
	s.cancel()
	<-s.done
	if s.durable != nil {
		return s.durable.Close()
	}
	return nil
}

func (s *DualStore) enqueue(op durableOp) {
	if s.durable == nil {
		return
	}
	s.mu.Lock()
	if len(s.queue) >= maxReplayQueue {
		s.queue = s.queue[1:]
		s.sink.Emit("replay_queue_overflow", map[string]string{"conversation_id": op.conversationID})
	}
	s.queue = append(s.queue, op)
	depth := len(s.queue)
	s.mu.Unlock()

	if s.metrics != nil {
		s.metrics.ReplayQueueDepth.Set(float64(depth))
	}
	select {
	case s.wake <- struct{}{}:
	default:
	}
}

func (s *DualStore) replayLoop(ctx context.Context) {
	defer close(s.done)
	attempt := 0
	for {
		op, ok := s.peek()
		if !ok {
			select {
			case <-ctx.Done():
				return
			case <-s.wake:
				continue
			}
		}

		if err := s.apply(ctx, op); err != nil {
			if ctx.Err() != nil {
				return
			}
			s.setDegraded(true, err)
			attempt++
			backoff := reliability.ExponentialBackoff(attempt, replayBackoffBase, replayBackoffCap)
			select {
			case <-ctx.Done():
				return
			case <-time.After(backoff):
			}
			continue
		}

		s.setDegraded(false, nil)
		attempt = 0
		s.pop()
	}
}

func (s *DualStore) apply(ctx context.Context, op durableOp) error {
	switch op.kind {
	case opPut:
		return s.durable.Put(ctx, op.item)
	case opDelete:
		return s.durable.Delete(ctx, op.conversationID)
	case opPrune:
		_, err := s.durable.Prune(ctx, op.conversationID, op.policy)
		return err
	case opCommitSummary:
		return s.durable.CommitSummary(ctx, op.conversationID, op.item, op.sourceIDs)
	}
	return nil
}

func (s *DualStore) peek() (durableOp, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if len(s.queue) == 0 {
		return durableOp{}, false
	}
	return s.queue[0], true
}

func (s *DualStore) pop() {
	s.mu.Lock()
	if len(s.queue) > 0 {
		s.queue = s.queue[1:]
	}
	depth := len(s.queue)
	s.mu.Unlock()
	if s.metrics != nil {
		s.metrics.ReplayQueueDepth.Set(float64(depth))
	}
}

func (s *DualStore) isDegraded() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.degraded
}

func (s *DualStore) setDegraded(degraded bool, cause error) {
	s.mu.Lock()
	changed := s.degraded != degraded
	s.degraded = degraded
	s.mu.Unlock()
	if !changed {
		return
	}

	if degraded {
		log.Printf("durable tier unavailable, serving volatile only: %v", cause)
		s.absorb("degraded_storage", fmt.Errorf("%w: %v", ErrDegradedStorage, cause))
	} else {
		log.Printf("durable tier recovered, replaying queued writes")
		s.sink.Emit("durable_recovered", nil)
	}
	if s.metrics != nil {
		if degraded {
			s.metrics.DegradedTier.Set(1)
		} else {
			s.metrics.DegradedTier.Set(0)
		}
	}
}

func (s *DualStore) absorb(event string, err error) {
	attrs := map[string]string{}
	if err != nil {
		attrs["error"] = err.Error()
	}
	s.sink.Emit(event, attrs)
	if s.metrics != nil {
		s.metrics.AbsorbedErrors.WithLabelValues(event).Inc()
	}
}
