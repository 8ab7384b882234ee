package repository

import (
	"context"

	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/spec-kit/subscription-reconciler/internal/reconcile"
)

// RunRepository keeps a history of run summaries.
type RunRepository interface {
	Record(ctx context.Context, report *reconcile.Report) error
}

type runRepository struct {
	pool *pgxpool.Pool
}

// NewRunRepository returns a Postgres-backed implementation.
func NewRunRepository(pool *pgxpool.Pool) RunRepository {
	return &runRepository{pool: pool}
}

func (r *runRepository) Record(ctx context.Context, report *reconcile.Report) error {
	const query = `
        INSERT INTO reconcile_runs (run_id, started_at, finished_at, success, dry_run, total_identities,
            updated, unchanged, primary_failed, claims_failed, skipped, skipped_records, error)
        VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10,$11,$12,$13)
        ON CONFLICT (run_id) DO NOTHING`

	var errText *string
	if report.Err != nil {
		msg := report.Err.Error()
		errText = &msg
	}

	_, err := r.pool.Exec(ctx, query,
		report.RunID,
		report.StartedAt,
		report.FinishedAt,
		report.Success(),
		report.DryRun,
		report.Summary.Total,
		report.Summary.Updated,
		report.Summary.Unchanged,
		report.Summary.PrimaryFailed,
		report.Summary.ClaimsFailed,
		report.Summary.Skipped,
		report.SkippedRecords,
		errText,
	)
	return err
}
