package postgres

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"

	"github.com/showjihyun/agentrag-v1-sub018/internal/core/domain"
	"github.com/showjihyun/agentrag-v1-sub018/internal/core/ports"
)

// TuningRepository persists the tuner audit trail. Threshold sets are
// stored as JSONB so the schema survives new threshold fields.
type TuningRepository struct {
	db *sql.DB
}

func NewTuningRepository(db *sql.DB) *TuningRepository {
	return &TuningRepository{db: db}
}

var _ ports.TuningAuditStore = (*TuningRepository)(nil)

func (r *TuningRepository) SaveTuningResult(ctx context.Context, result domain.TuningResult) error {
	previous, err := json.Marshal(result.Previous)
	if err != nil {
		return fmt.Errorf("marshal previous thresholds: %w", err)
	}
	resulting, err := json.Marshal(result.Resulting)
	if err != nil {
		return fmt.Errorf("marshal resulting thresholds: %w", err)
	}

	_, err = r.db.ExecContext(ctx, `
INSERT INTO tuning_results (id, applied, dry_run, rolled_back, previous, resulting, reason, created_at)
VALUES ($1,$2,$3,$4,$5,$6,$7,$8)
`, result.ID, result.Applied, result.DryRun, result.RolledBack, previous, resulting, result.Reason, result.CreatedAt)
	if err != nil {
		return fmt.Errorf("save tuning result: %w", err)
	}
	return nil
}

func (r *TuningRepository) ListTuningResults(ctx context.Context, limit int) ([]domain.TuningResult, error) {
	if limit <= 0 {
		limit = 50
	}
	rows, err := r.db.QueryContext(ctx, `
SELECT id, applied, dry_run, rolled_back, previous, resulting, reason, created_at
FROM tuning_results
ORDER BY created_at DESC
LIMIT $1
`, limit)
	if err != nil {
		return nil, fmt.Errorf("list tuning results: %w", err)
	}
	defer rows.Close()

	out := make([]domain.TuningResult, 0)
	for rows.Next() {
		var result domain.TuningResult
		var previous, resulting []byte
		if err := rows.Scan(
			&result.ID,
			&result.Applied,
			&result.DryRun,
			&result.RolledBack,
			&previous,
			&resulting,
			&result.Reason,
			&result.CreatedAt,
		); err != nil {
			return nil, fmt.Errorf("scan tuning result: %w", err)
		}
		if err := json.Unmarshal(previous, &result.Previous); err != nil {
			return nil, fmt.Errorf("decode previous thresholds: %w", err)
		}
		if err := json.Unmarshal(resulting, &result.Resulting); err != nil {
			return nil, fmt.Errorf("decode resulting thresholds: %w", err)
		}
		out = append(out, result)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate tuning results: %w", err)
	}
	return out, nil
}
