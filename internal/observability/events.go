package observability

import (
	"log"
	"sort"
	"strings"
)

// EventSink receives fire-and-forget operational events. Implementations
// must never block; callers never check for failure.
type EventSink interface {
	Emit(event string, attrs map[string]string)
}

// NoopSink discards all events.
type NoopSink struct{}

func (NoopSink) Emit(string, map[string]string) {}

// LogSink writes events to the process log.
type LogSink struct{}

func (LogSink) Emit(event string, attrs map[string]string) {
	if len(attrs) == 0 {
		log.Printf("event %s", event)
		return
	}
	keys := make([]string, 0, len(attrs))
	for k := range attrs {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	parts := make([]string, 0, len(keys))
	for _, k := range keys {
		parts = append(parts, k+"="+attrs[k])
	}
	log.Printf("event %s %s", event, strings.Join(parts, " "))
}

// MetricsSink counts events by name and forwards them to a wrapped sink.
type MetricsSink struct {
	Metrics *Metrics
	Next    EventSink
}

func (s MetricsSink) Emit(event string, attrs map[string]string) {
	if s.Metrics != nil {
		s.Metrics.Events.WithLabelValues(event).Inc()
	}
	if s.Next != nil {
		s.Next.Emit(event, attrs)
	}
}
