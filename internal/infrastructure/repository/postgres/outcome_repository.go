package postgres

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	_ "github.com/jackc/pgx/v5/stdlib"

	"github.com/showjihyun/agentrag-v1-sub018/internal/core/domain"
	"github.com/showjihyun/agentrag-v1-sub018/internal/core/ports"
)

type OutcomeRepository struct {
	db *sql.DB
}

func NewOutcomeRepository(db *sql.DB) *OutcomeRepository {
	return &OutcomeRepository{db: db}
}

var _ ports.OutcomeStore = (*OutcomeRepository)(nil)

func OpenDB(dsn string) (*sql.DB, error) {
	db, err := sql.Open("pgx", dsn)
	if err != nil {
		return nil, fmt.Errorf("sql open: %w", err)
	}
	db.SetMaxOpenConns(10)
	db.SetMaxIdleConns(10)
	db.SetConnMaxLifetime(30 * time.Minute)

	if err := db.Ping(); err != nil {
		return nil, fmt.Errorf("db ping: %w", err)
	}
	return db, nil
}

func (r *OutcomeRepository) EnsureSchema(ctx context.Context) error {
	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin schema tx: %w", err)
	}
	defer func() {
		_ = tx.Rollback()
	}()

	// Serialize bootstrap DDL across api/worker startups.
	if _, err := tx.ExecContext(ctx, `SELECT pg_advisory_xact_lock($1)`, int64(2026082901)); err != nil {
		return fmt.Errorf("acquire schema lock: %w", err)
	}

	const query = `
CREATE TABLE IF NOT EXISTS routing_outcomes (
	id TEXT PRIMARY KEY,
	mode TEXT NOT NULL,
	complexity_score DOUBLE PRECISION NOT NULL,
	confidence DOUBLE PRECISION NOT NULL,
	escalated BOOLEAN NOT NULL DEFAULT FALSE,
	ambiguous BOOLEAN NOT NULL DEFAULT FALSE,
	cache_hit BOOLEAN NOT NULL DEFAULT FALSE,
	latency_ms BIGINT NOT NULL,
	user_feedback DOUBLE PRECISION,
	created_at TIMESTAMPTZ NOT NULL
);

CREATE INDEX IF NOT EXISTS idx_routing_outcomes_created_at ON routing_outcomes(created_at DESC);
CREATE INDEX IF NOT EXISTS idx_routing_outcomes_mode ON routing_outcomes(mode);

CREATE TABLE IF NOT EXISTS tuning_results (
	id TEXT PRIMARY KEY,
	applied BOOLEAN NOT NULL,
	dry_run BOOLEAN NOT NULL,
	rolled_back BOOLEAN NOT NULL,
	previous JSONB NOT NULL,
	resulting JSONB NOT NULL,
	reason TEXT,
	created_at TIMESTAMPTZ NOT NULL
);

CREATE INDEX IF NOT EXISTS idx_tuning_results_created_at ON tuning_results(created_at DESC);
`
	if _, err := tx.ExecContext(ctx, query); err != nil {
		return fmt.Errorf("execute schema ddl: %w", err)
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit schema tx: %w", err)
	}
	return nil
}

func (r *OutcomeRepository) Append(ctx context.Context, outcome domain.RoutingOutcome) error {
	_, err := r.db.ExecContext(ctx, `
INSERT INTO routing_outcomes (id, mode, complexity_score, confidence, escalated, ambiguous, cache_hit, latency_ms, user_feedback, created_at)
VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10)
ON CONFLICT (id) DO NOTHING
`, outcome.ID, string(outcome.Mode), outcome.ComplexityScore, outcome.Confidence, outcome.Escalated,
		outcome.Ambiguous, outcome.CacheHit, outcome.LatencyMS, outcome.UserFeedback, outcome.CreatedAt)
	if err != nil {
		return fmt.Errorf("append outcome: %w", err)
	}
	return nil
}

func (r *OutcomeRepository) AttachFeedback(ctx context.Context, outcomeID string, score float64) error {
	result, err := r.db.ExecContext(ctx, `
UPDATE routing_outcomes
SET user_feedback = $2
WHERE id = $1
`, outcomeID, score)
	if err != nil {
		return fmt.Errorf("attach feedback: %w", err)
	}
	rows, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("attach feedback rows affected: %w", err)
	}
	if rows == 0 {
		return domain.WrapError(domain.ErrNotFound, "attach feedback", fmt.Errorf("outcome not found: id=%s", outcomeID))
	}
	return nil
}

func (r *OutcomeRepository) ListSince(ctx context.Context, since time.Time) ([]domain.RoutingOutcome, error) {
	rows, err := r.db.QueryContext(ctx, `
SELECT id, mode, complexity_score, confidence, escalated, ambiguous, cache_hit, latency_ms, user_feedback, created_at
FROM routing_outcomes
WHERE created_at >= $1
ORDER BY created_at ASC
`, since)
	if err != nil {
		return nil, fmt.Errorf("list outcomes: %w", err)
	}
	defer rows.Close()

	out := make([]domain.RoutingOutcome, 0)
	for rows.Next() {
		outcome, err := scanOutcome(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, outcome)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate outcomes: %w", err)
	}
	return out, nil
}

type outcomeScanner interface {
	Scan(dest ...interface{}) error
}

func scanOutcome(row outcomeScanner) (domain.RoutingOutcome, error) {
	var outcome domain.RoutingOutcome
	var mode string
	err := row.Scan(
		&outcome.ID,
		&mode,
		&outcome.ComplexityScore,
		&outcome.Confidence,
		&outcome.Escalated,
		&outcome.Ambiguous,
		&outcome.CacheHit,
		&outcome.LatencyMS,
		&outcome.UserFeedback,
		&outcome.CreatedAt,
	)
	if err != nil {
		return domain.RoutingOutcome{}, err
	}
	outcome.Mode = domain.Mode(mode)
	return outcome, nil
}
