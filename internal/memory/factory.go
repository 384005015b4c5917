package memory

import (
	"context"
	"strings"

	"github.com/antoniostano/mnemo/internal/observability"
)

// NewStore builds the dual-tier store: postgres-backed when configured,
// volatile-only otherwise.
func NewStore(ctx context.Context, databaseURL string, sink observability.EventSink, metrics *observability.Metrics) (*DualStore, error) {
	volatile := NewVolatileStore()
	if strings.TrimSpace(databaseURL) == "" {
		return NewDualStore(volatile, nil, sink, metrics), nil
	}
	durable, err := NewPostgresStore(ctx, databaseURL, sink)
	if err != nil {
		return nil, err
	}
	return NewDualStore(volatile, durable, sink, metrics), nil
}
