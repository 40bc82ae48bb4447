package storage

import (
	"context"

	apperrors "github.com/property-scanner/internal/errors"
	"github.com/property-scanner/internal/models"
)

const batchJobColumns = `
	id, job_type, status, total_items, processed_items, failed_items,
	current_batch, error_count, last_error, started_at, paused_at,
	completed_at, triggered_at, trigger_error, version, created_at, updated_at`

// BatchJobRepository handles batch job persistence
type BatchJobRepository struct {
	db *PostgresDB
}

// NewBatchJobRepository creates a new batch job repository
func NewBatchJobRepository(db *PostgresDB) *BatchJobRepository {
	return &BatchJobRepository{db: db}
}

func scanBatchJob(row rowScanner) (*models.BatchJob, error) {
	var job models.BatchJob
	err := row.Scan(
		&job.ID,
		&job.JobType,
		&job.Status,
		&job.TotalItems,
		&job.ProcessedItems,
		&job.FailedItems,
		&job.CurrentBatch,
		&job.ErrorCount,
		&job.LastError,
		&job.StartedAt,
		&job.PausedAt,
		&job.CompletedAt,
		&job.TriggeredAt,
		&job.TriggerError,
		&job.Version,
		&job.CreatedAt,
		&job.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}
	return &job, nil
}

// Create inserts a new job at version 1
func (r *BatchJobRepository) Create(ctx context.Context, job *models.BatchJob) (*models.BatchJob, error) {
	query := `
		INSERT INTO batch_jobs (id, job_type, status, total_items)
		VALUES ($1, $2, $3, $4)
		RETURNING ` + batchJobColumns

	created, err := scanBatchJob(r.db.Pool().QueryRow(ctx, query, job.ID, job.JobType, job.Status, job.TotalItems))
	if err != nil {
		return nil, apperrors.NewStoreError("create batch job", err)
	}
	return created, nil
}

// GetByID retrieves a batch job by ID
func (r *BatchJobRepository) GetByID(ctx context.Context, id string) (*models.BatchJob, error) {
	query := `SELECT ` + batchJobColumns + ` FROM batch_jobs WHERE id = $1`

	job, err := scanBatchJob(r.db.Pool().QueryRow(ctx, query, id))
	if err != nil {
		return nil, wrapQueryError(err, "get batch job", "batch job", id)
	}
	return job, nil
}

// CompareAndSwap writes every mutable column of job if the stored version is
// still expectedVersion. It reports false when the version has moved on.
func (r *BatchJobRepository) CompareAndSwap(ctx context.Context, job *models.BatchJob, expectedVersion int64) (bool, error) {
	query := `
		UPDATE batch_jobs
		SET status = $3, total_items = $4, processed_items = $5, failed_items = $6,
			current_batch = $7, error_count = $8, last_error = $9, started_at = $10,
			paused_at = $11, completed_at = $12, triggered_at = $13, trigger_error = $14,
			version = $15, updated_at = $16
		WHERE id = $1 AND version = $2
	`

	tag, err := r.db.Pool().Exec(ctx, query,
		job.ID,
		expectedVersion,
		job.Status,
		job.TotalItems,
		job.ProcessedItems,
		job.FailedItems,
		job.CurrentBatch,
		job.ErrorCount,
		job.LastError,
		job.StartedAt,
		job.PausedAt,
		job.CompletedAt,
		job.TriggeredAt,
		job.TriggerError,
		job.Version,
		job.UpdatedAt,
	)
	if err != nil {
		return false, apperrors.NewStoreError("update batch job", err)
	}
	if tag.RowsAffected() == 1 {
		return true, nil
	}

	var exists bool
	if err := r.db.Pool().QueryRow(ctx, `SELECT EXISTS(SELECT 1 FROM batch_jobs WHERE id = $1)`, job.ID).Scan(&exists); err != nil {
		return false, apperrors.NewStoreError("check batch job", err)
	}
	if !exists {
		return false, apperrors.NewNotFoundError("batch job", job.ID)
	}
	return false, nil
}

// Delete removes a batch job
func (r *BatchJobRepository) Delete(ctx context.Context, id string) error {
	tag, err := r.db.Pool().Exec(ctx, `DELETE FROM batch_jobs WHERE id = $1`, id)
	if err != nil {
		return apperrors.NewStoreError("delete batch job", err)
	}
	if tag.RowsAffected() == 0 {
		return apperrors.NewNotFoundError("batch job", id)
	}
	return nil
}
