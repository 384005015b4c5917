package memory

import (
	"context"
	"encoding/json"
	"fmt"
	"log"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/antoniostano/mnemo/internal/observability"
)

// PostgresStore is the durable tier. It is the system of record: source
// items of a compressed cluster stay here tagged with the cluster's group
// key even after they leave the active view.
type PostgresStore struct {
	pool *pgxpool.Pool
	sink observability.EventSink
}

func NewPostgresStore(ctx context.Context, databaseURL string, sink observability.EventSink) (*PostgresStore, error) {
	if sink == nil {
		sink = observability.NoopSink{}
	}
	pool, err := pgxpool.New(ctx, strings.TrimSpace(databaseURL))
	if err != nil {
		return nil, fmt.Errorf("connect postgres: %w", err)
	}
	if err := initSchema(ctx, pool); err != nil {
		pool.Close()
		return nil, err
	}
	return &PostgresStore{pool: pool, sink: sink}, nil
}

func initSchema(ctx context.Context, pool *pgxpool.Pool) error {
	stmts := []string{
		`CREATE TABLE IF NOT EXISTS memory_items (
			id TEXT PRIMARY KEY,
			conversation_id TEXT NOT NULL,
			user_id TEXT NOT NULL,
			role TEXT NOT NULL,
			content TEXT NOT NULL,
			importance DOUBLE PRECISION NOT NULL DEFAULT 0,
			token_estimate INTEGER NOT NULL DEFAULT 0,
			group_key TEXT NOT NULL DEFAULT '',
			metadata JSONB,
			created_at TIMESTAMPTZ NOT NULL,
			expires_at TIMESTAMPTZ NULL
		);`,
		`CREATE INDEX IF NOT EXISTS idx_memory_items_conversation_created ON memory_items (conversation_id, created_at);`,
	}

	for _, stmt := range stmts {
		if _, err := pool.Exec(ctx, stmt); err != nil {
			return fmt.Errorf("init schema failed on %q: %w", stmt, err)
		}
	}
	return nil
}

func (s *PostgresStore) Put(ctx context.Context, item Item) error {
	if item.ID == "" {
		item.ID = uuid.NewString()
	}
	if item.CreatedAt.IsZero() {
		item.CreatedAt = time.Now().UTC()
	}

	var metadata []byte
	if len(item.Metadata) > 0 {
		var err error
		metadata, err = json.Marshal(item.Metadata)
		if err != nil {
			return fmt.Errorf("encode metadata: %w", err)
		}
	}

	_, err := s.pool.Exec(ctx,
		`INSERT INTO memory_items (
			id, conversation_id, user_id, role, content, importance,
			token_estimate, group_key, metadata, created_at, expires_at
		) VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10,$11)
		ON CONFLICT (id) DO UPDATE SET
			importance=EXCLUDED.importance,
			group_key=EXCLUDED.group_key,
			metadata=EXCLUDED.metadata,
			expires_at=EXCLUDED.expires_at`,
		item.ID,
		item.ConversationID,
		item.UserID,
		string(item.Role),
		item.Content,
		item.Importance,
		item.TokenEstimate,
		item.GroupKey,
		metadata,
		item.CreatedAt,
		item.ExpiresAt,
	)
	if err != nil {
		return fmt.Errorf("put item: %w", err)
	}
	return nil
}

// GetActive returns non-expired items in creation order. Source items of a
// committed summary (non-summary rows with a group key) are excluded.
// Corrupt rows are skipped and logged, never failing the whole read.
func (s *PostgresStore) GetActive(ctx context.Context, conversationID string) ([]Item, error) {
	rows, err := s.pool.Query(ctx,
		`SELECT id, conversation_id, user_id, role, content, importance,
		        token_estimate, group_key, metadata, created_at, expires_at
		   FROM memory_items
		  WHERE conversation_id=$1
		    AND (expires_at IS NULL OR expires_at > now())
		    AND (group_key = '' OR role = 'summary')
		  ORDER BY created_at ASC`,
		conversationID,
	)
	if err != nil {
		return nil, fmt.Errorf("query active items: %w", err)
	}
	defer rows.Close()

	var items []Item
	for rows.Next() {
		item, err := scanItem(rows.Scan)
		if err != nil {
			log.Printf("skipping corrupt memory item in %s: %v", conversationID, err)
			s.sink.Emit("corrupt_item", map[string]string{
				"conversation_id": conversationID,
				"error":           err.Error(),
			})
			continue
		}
		items = append(items, item)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate item rows: %w", err)
	}
	return items, nil
}

func (s *PostgresStore) Prune(ctx context.Context, conversationID string, policy PrunePolicy) (int, error) {
	removed := 0

	tag, err := s.pool.Exec(ctx,
		`DELETE FROM memory_items WHERE conversation_id=$1 AND expires_at IS NOT NULL AND expires_at <= now()`,
		conversationID,
	)
	if err != nil {
		return 0, fmt.Errorf("prune expired: %w", err)
	}
	removed += int(tag.RowsAffected())

	if policy.MaxShortTermItems > 0 {
		tag, err = s.pool.Exec(ctx,
			`DELETE FROM memory_items WHERE id IN (
				SELECT id FROM memory_items
				 WHERE conversation_id=$1 AND (group_key = '' OR role = 'summary')
				 ORDER BY importance ASC, created_at ASC
				 LIMIT GREATEST(0, (
					SELECT count(*) FROM memory_items
					 WHERE conversation_id=$1 AND (group_key = '' OR role = 'summary')
				 ) - $2)
			)`,
			conversationID, policy.MaxShortTermItems,
		)
		if err != nil {
			return removed, fmt.Errorf("prune over capacity: %w", err)
		}
		removed += int(tag.RowsAffected())
	}

	return removed, nil
}

func (s *PostgresStore) Delete(ctx context.Context, conversationID string) error {
	if _, err := s.pool.Exec(ctx,
		`DELETE FROM memory_items WHERE conversation_id=$1`, conversationID,
	); err != nil {
		return fmt.Errorf("delete conversation: %w", err)
	}
	return nil
}

func (s *PostgresStore) Conversations(ctx context.Context) ([]string, error) {
	rows, err := s.pool.Query(ctx, `SELECT DISTINCT conversation_id FROM memory_items`)
	if err != nil {
		return nil, fmt.Errorf("list conversations: %w", err)
	}
	defer rows.Close()

	var out []string
	for rows.Next() {
		var id string
		if err := rows.Scan(&id); err != nil {
			return nil, fmt.Errorf("scan conversation id: %w", err)
		}
		out = append(out, id)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate conversation rows: %w", err)
	}
	return out, nil
}

func (s *PostgresStore) CommitSummary(ctx context.Context, conversationID string, summary Item, sourceIDs []string) error {
	tx, err := s.pool.Begin(ctx)
	if err != nil {
		return fmt.Errorf("begin tx: %w", err)
	}
	defer func() { _ = tx.Rollback(ctx) }()

	var metadata []byte
	if len(summary.Metadata) > 0 {
		metadata, err = json.Marshal(summary.Metadata)
		if err != nil {
			return fmt.Errorf("encode summary metadata: %w", err)
		}
	}

	_, err = tx.Exec(ctx,
		`INSERT INTO memory_items (
			id, conversation_id, user_id, role, content, importance,
			token_estimate, group_key, metadata, created_at, expires_at
		) VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10,$11)
		ON CONFLICT (id) DO NOTHING`,
		summary.ID,
		conversationID,
		summary.UserID,
		string(summary.Role),
		summary.Content,
		summary.Importance,
		summary.TokenEstimate,
		summary.GroupKey,
		metadata,
		summary.CreatedAt,
		summary.ExpiresAt,
	)
	if err != nil {
		return fmt.Errorf("insert summary: %w", err)
	}

	// Sources stay in the system of record but leave the active view.
	_, err = tx.Exec(ctx,
		`UPDATE memory_items SET group_key=$1 WHERE conversation_id=$2 AND id = ANY($3)`,
		summary.GroupKey, conversationID, sourceIDs,
	)
	if err != nil {
		return fmt.Errorf("tag summary sources: %w", err)
	}

	if err := tx.Commit(ctx); err != nil {
		return fmt.Errorf("commit tx: %w", err)
	}
	return nil
}

func (s *PostgresStore) Close() error {
	s.pool.Close()
	return nil
}

func scanItem(scan func(dest ...any) error) (Item, error) {
	var (
		item     Item
		role     string
		metadata []byte
		expires  *time.Time
	)
	if err := scan(
		&item.ID,
		&item.ConversationID,
		&item.UserID,
		&role,
		&item.Content,
		&item.Importance,
		&item.TokenEstimate,
		&item.GroupKey,
		&metadata,
		&item.CreatedAt,
		&expires,
	); err != nil {
		return Item{}, fmt.Errorf("%w: %v", ErrCorruptItem, err)
	}
	item.Role = Role(role)
	item.ExpiresAt = expires
	if len(metadata) > 0 {
		if err := json.Unmarshal(metadata, &item.Metadata); err != nil {
			return Item{}, fmt.Errorf("%w: decode metadata: %v", ErrCorruptItem, err)
		}
	}
	return item, nil
}
