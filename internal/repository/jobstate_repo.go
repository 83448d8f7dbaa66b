package repository

import (
	"context"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

// JobStateRepository backs the conditional begin-processing gate: a job id
// moves into processing only from {queued, failed}, so exactly one of two
// concurrent deliveries wins.
type JobStateRepository struct {
	db *pgxpool.Pool
}

func NewJobStateRepository(db *pgxpool.Pool) *JobStateRepository {
	return &JobStateRepository{db: db}
}

// BeginProcessing attempts the queued|failed -> processing transition.
// proceed=false means another worker already holds the job or it reached a
// terminal state.
func (r *JobStateRepository) BeginProcessing(ctx context.Context, jobID, stage string) (bool, error) {
	query := `
		INSERT INTO pipeline_jobs (job_id, stage, status, attempts, updated_at)
		VALUES ($1, $2, 'processing', 1, NOW())
		ON CONFLICT (job_id) DO UPDATE
		SET status = 'processing',
		    attempts = pipeline_jobs.attempts + 1,
		    updated_at = NOW()
		WHERE pipeline_jobs.status IN ('queued', 'failed')
		RETURNING job_id
	`
	var got string
	err := r.db.QueryRow(ctx, query, jobID, stage).Scan(&got)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			// Conflict row exists but is processing/succeeded/discarded.
			return false, nil
		}
		return false, fmt.Errorf("failed to begin processing: %w", err)
	}
	return true, nil
}

func (r *JobStateRepository) MarkSucceeded(ctx context.Context, jobID string) error {
	return r.setStatus(ctx, jobID, "succeeded")
}

func (r *JobStateRepository) MarkFailed(ctx context.Context, jobID string) error {
	return r.setStatus(ctx, jobID, "failed")
}

func (r *JobStateRepository) MarkDiscarded(ctx context.Context, jobID string) error {
	return r.setStatus(ctx, jobID, "discarded")
}

// Requeue resets a terminal job back to queued so a DLQ replay can run it
// again through the begin-processing gate.
func (r *JobStateRepository) Requeue(ctx context.Context, jobID string) error {
	return r.setStatus(ctx, jobID, "queued")
}

func (r *JobStateRepository) setStatus(ctx context.Context, jobID, status string) error {
	query := `
		UPDATE pipeline_jobs
		SET status = $2, updated_at = NOW()
		WHERE job_id = $1
	`
	_, err := r.db.Exec(ctx, query, jobID, status)
	if err != nil {
		return fmt.Errorf("failed to mark job %s: %w", status, err)
	}
	return nil
}
