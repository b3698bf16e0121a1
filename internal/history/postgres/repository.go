package postgres

import (
	"context"
	"fmt"
	"time"

	"github.com/Masterminds/squirrel"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/ostapkh/cloud-hibernator/internal/models"
)

const transitionsTable = "scaling_transitions"

// Repository persists one row per completed orchestration run, the audit
// trail of when the backend went to sleep and woke up and why.
type Repository struct {
	db *pgxpool.Pool
}

func NewRepo(ctx context.Context, user, password, addr string, port uint16) (*Repository, error) {
	cfg, err := pgxpool.ParseConfig(
		fmt.Sprintf(
			"user=%s password=%s host=%s port=%d dbname=postgres sslmode=disable pool_max_conns=5",
			user, password, addr, port,
		),
	)
	if cfg == nil {
		return nil, fmt.Errorf("failed to parse pgx config: %w", err)
	}
	pool, err := pgxpool.NewWithConfig(ctx, cfg)
	if err != nil {
		return nil, fmt.Errorf("failed to create pool: %w", err)
	}
	err = pool.Ping(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to ping db: %w", err)
	}
	return &Repository{
		db: pool,
	}, nil
}

func (r *Repository) RecordTransition(ctx context.Context, t models.Transition) error {
	sql, args, err := squirrel.Insert(transitionsTable).
		Columns(
			"run_id",
			"flow",
			"outcome",
			"desired_before",
			"desired_after",
			"duration_ms",
			"last_error",
			"created_at",
		).
		Values(
			t.RunID,
			string(t.Flow),
			string(t.Outcome),
			t.DesiredBefore,
			t.DesiredAfter,
			t.Duration.Milliseconds(),
			t.LastError,
			t.At,
		).
		PlaceholderFormat(squirrel.Dollar).
		ToSql()
	if err != nil {
		return fmt.Errorf("failed to build transition insert: %w", err)
	}
	_, err = r.db.Exec(ctx, sql, args...)
	if err != nil {
		return fmt.Errorf("failed to record transition %s/%s: %w", t.Flow, t.RunID, err)
	}
	return nil
}

// RecentTransitions returns the latest runs, newest first.
func (r *Repository) RecentTransitions(ctx context.Context, limit uint64) ([]models.Transition, error) {
	sql, args, err := squirrel.Select(
		"run_id",
		"flow",
		"outcome",
		"desired_before",
		"desired_after",
		"duration_ms",
		"last_error",
		"created_at",
	).From(transitionsTable).
		OrderBy("created_at desc").
		Limit(limit).
		PlaceholderFormat(squirrel.Dollar).
		ToSql()
	if err != nil {
		return nil, fmt.Errorf("failed to build transitions select: %w", err)
	}

	rows, err := r.db.Query(ctx, sql, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to execute query: %w", err)
	}
	defer rows.Close()

	result := make([]models.Transition, 0, limit)
	for rows.Next() {
		var (
			t          models.Transition
			durationMs int64
		)
		err = rows.Scan(
			&t.RunID,
			&t.Flow,
			&t.Outcome,
			&t.DesiredBefore,
			&t.DesiredAfter,
			&durationMs,
			&t.LastError,
			&t.At,
		)
		if err != nil {
			return nil, fmt.Errorf("failed to scan transition row: %w", err)
		}
		t.Duration = time.Duration(durationMs) * time.Millisecond
		result = append(result, t)
	}
	return result, nil
}
