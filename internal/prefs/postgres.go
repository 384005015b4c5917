package prefs

import (
	"context"
	"fmt"
	"strings"

	"github.com/jackc/pgx/v5/pgxpool"
)

// PostgresPrefs persists learned preferences keyed by (user_id, key).
type PostgresPrefs struct {
	pool *pgxpool.Pool
}

func NewPostgresPrefs(ctx context.Context, databaseURL string) (*PostgresPrefs, error) {
	pool, err := pgxpool.New(ctx, strings.TrimSpace(databaseURL))
	if err != nil {
		return nil, fmt.Errorf("connect postgres: %w", err)
	}
	if err := initPrefsSchema(ctx, pool); err != nil {
		pool.Close()
		return nil, err
	}
	return &PostgresPrefs{pool: pool}, nil
}

func initPrefsSchema(ctx context.Context, pool *pgxpool.Pool) error {
	stmt := `CREATE TABLE IF NOT EXISTS user_preferences (
		user_id TEXT NOT NULL,
		key TEXT NOT NULL,
		value TEXT NOT NULL,
		confidence DOUBLE PRECISION NOT NULL,
		evidence_count INTEGER NOT NULL,
		updated_at TIMESTAMPTZ NOT NULL,
		PRIMARY KEY (user_id, key)
	);`
	if _, err := pool.Exec(ctx, stmt); err != nil {
		return fmt.Errorf("init prefs schema failed: %w", err)
	}
	return nil
}

func (s *PostgresPrefs) Upsert(ctx context.Context, p Preference) error {
	_, err := s.pool.Exec(ctx,
		`INSERT INTO user_preferences (user_id, key, value, confidence, evidence_count, updated_at)
		 VALUES ($1,$2,$3,$4,$5,$6)
		 ON CONFLICT (user_id, key) DO UPDATE SET
			value=EXCLUDED.value,
			confidence=EXCLUDED.confidence,
			evidence_count=EXCLUDED.evidence_count,
			updated_at=EXCLUDED.updated_at`,
		p.UserID, p.Key, p.Value, p.Confidence, p.EvidenceCount, p.UpdatedAt,
	)
	if err != nil {
		return fmt.Errorf("upsert preference: %w", err)
	}
	return nil
}

func (s *PostgresPrefs) Load(ctx context.Context, userID string) ([]Preference, error) {
	rows, err := s.pool.Query(ctx,
		`SELECT user_id, key, value, confidence, evidence_count, updated_at
		   FROM user_preferences WHERE user_id=$1`,
		userID,
	)
	if err != nil {
		return nil, fmt.Errorf("load preferences: %w", err)
	}
	defer rows.Close()

	var out []Preference
	for rows.Next() {
		var p Preference
		if err := rows.Scan(&p.UserID, &p.Key, &p.Value, &p.Confidence, &p.EvidenceCount, &p.UpdatedAt); err != nil {
			return nil, fmt.Errorf("scan preference: %w", err)
		}
		out = append(out, p)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate preference rows: %w", err)
	}
	return out, nil
}

func (s *PostgresPrefs) Close() error {
	s.pool.Close()
	return nil
}
