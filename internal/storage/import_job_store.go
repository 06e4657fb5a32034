package storage

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/aioutlet/product-service/internal/bulkimport"
	"github.com/aioutlet/product-service/internal/catalog"
)

var (
	_ bulkimport.JobStore    = (*ProductStore)(nil)
	_ bulkimport.WorkerStore = (*ProductStore)(nil)
)

const importJobColumns = `
	id, status, import_mode, total_rows, processed_rows, success_count, error_count,
	row_errors, reason, created_by, created_at, started_at, completed_at`

// CreateImportJob persists a new pending job.
func (s *ProductStore) CreateImportJob(ctx context.Context, job *bulkimport.Job) error {
	if job.ID == "" {
		job.ID = uuid.New().String()
	}

	if job.Status == "" {
		job.Status = bulkimport.JobPending
	}

	if job.CreatedAt.IsZero() {
		job.CreatedAt = time.Now().UTC()
	}

	rowErrors, err := json.Marshal(orEmptyRowErrors(job.RowErrors))
	if err != nil {
		return fmt.Errorf("failed to serialize row errors: %w", err)
	}

	query := `
		INSERT INTO import_jobs (
			id, status, import_mode, total_rows, processed_rows, success_count,
			error_count, row_errors, reason, created_by, created_at
		) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11)
	`

	_, err = s.conn.ExecContext(ctx, query,
		job.ID,
		string(job.Status),
		string(job.ImportMode),
		job.TotalRows,
		job.ProcessedRows,
		job.SuccessCount,
		job.ErrorCount,
		rowErrors,
		job.Reason,
		job.CreatedBy,
		job.CreatedAt,
	)
	if err != nil {
		return fmt.Errorf("failed to insert import job %s: %w", job.ID, classifyError(err))
	}

	return nil
}

// GetImportJob fetches one job by id.
func (s *ProductStore) GetImportJob(ctx context.Context, id string) (*bulkimport.Job, error) {
	query := `SELECT ` + importJobColumns + ` FROM import_jobs WHERE id = $1`

	job, err := scanImportJob(s.conn.QueryRowContext(ctx, query, id))
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, fmt.Errorf("%w: import job %s", catalog.ErrNotFound, id)
		}

		return nil, fmt.Errorf("failed to get import job %s: %w", id, classifyError(err))
	}

	return job, nil
}

// ListImportJobs returns jobs newest first with the total match count.
func (s *ProductStore) ListImportJobs(ctx context.Context, page catalog.Page) ([]bulkimport.Job, int, error) {
	limit, offset := normalizePage(page)

	query := `SELECT ` + importJobColumns + `, COUNT(*) OVER() AS total_count
		FROM import_jobs ORDER BY created_at DESC, id LIMIT $1 OFFSET $2`

	rows, err := s.conn.QueryContext(ctx, query, limit, offset)
	if err != nil {
		return nil, 0, fmt.Errorf("failed to list import jobs: %w", classifyError(err))
	}

	defer func() {
		_ = rows.Close()
	}()

	jobs := []bulkimport.Job{}
	total := 0

	for rows.Next() {
		job, err := scanImportJob(totalScanner{rows: rows, total: &total})
		if err != nil {
			return nil, 0, fmt.Errorf("failed to scan import job row: %w", err)
		}

		jobs = append(jobs, *job)
	}

	if err := rows.Err(); err != nil {
		return nil, 0, fmt.Errorf("failed to iterate import job rows: %w", err)
	}

	return jobs, total, nil
}

// ClaimImportJob transitions a job from pending to processing. Exactly one
// claimer wins; redelivered job events lose the claim and report false.
func (s *ProductStore) ClaimImportJob(ctx context.Context, id string) (bool, error) {
	result, err := s.conn.ExecContext(ctx,
		`UPDATE import_jobs SET status = $2, started_at = NOW()
		 WHERE id = $1 AND status = $3`,
		id, string(bulkimport.JobProcessing), string(bulkimport.JobPending),
	)
	if err != nil {
		return false, fmt.Errorf("failed to claim import job %s: %w", id, classifyError(err))
	}

	affected, err := result.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("failed to get rows affected: %w", err)
	}

	return affected > 0, nil
}

// RecordImportProgress overwrites the job counters after a batch and appends
// any new row errors.
func (s *ProductStore) RecordImportProgress(ctx context.Context, id string, processed, succeeded, failed int, rowErrors []bulkimport.RowError) error {
	payload, err := json.Marshal(orEmptyRowErrors(rowErrors))
	if err != nil {
		return fmt.Errorf("failed to serialize row errors: %w", err)
	}

	result, err := s.conn.ExecContext(ctx,
		`UPDATE import_jobs SET
			processed_rows = $2,
			success_count = $3,
			error_count = $4,
			row_errors = row_errors || $5::jsonb
		 WHERE id = $1 AND status = $6`,
		id, processed, succeeded, failed, payload, string(bulkimport.JobProcessing),
	)
	if err != nil {
		return fmt.Errorf("failed to record progress of import job %s: %w", id, classifyError(err))
	}

	affected, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to get rows affected: %w", err)
	}

	if affected == 0 {
		return fmt.Errorf("%w: import job %s is not processing", catalog.ErrConflict, id)
	}

	return nil
}

// CompleteImportJob moves a processing job to a terminal status with its
// final counters.
func (s *ProductStore) CompleteImportJob(ctx context.Context, id string, status bulkimport.JobStatus, processed, succeeded, failed int, reason string) error {
	if !status.IsTerminal() {
		return fmt.Errorf("%w: %s is not a terminal status", catalog.ErrValidation, status)
	}

	result, err := s.conn.ExecContext(ctx,
		`UPDATE import_jobs SET
			status = $2,
			processed_rows = $3,
			success_count = $4,
			error_count = $5,
			reason = $6,
			completed_at = NOW()
		 WHERE id = $1 AND status = $7`,
		id, string(status), processed, succeeded, failed, reason, string(bulkimport.JobProcessing),
	)
	if err != nil {
		return fmt.Errorf("failed to complete import job %s: %w", id, classifyError(err))
	}

	affected, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to get rows affected: %w", err)
	}

	if affected == 0 {
		return fmt.Errorf("%w: import job %s is not processing", catalog.ErrConflict, id)
	}

	return nil
}

// CancelImportJob stops a pending or processing job. The worker checks the
// status between batches and abandons a cancelled job at the next boundary.
func (s *ProductStore) CancelImportJob(ctx context.Context, id string) error {
	result, err := s.conn.ExecContext(ctx,
		`UPDATE import_jobs SET status = $2, reason = 'cancelled by operator', completed_at = NOW()
		 WHERE id = $1 AND status IN ($3, $4)`,
		id, string(bulkimport.JobCancelled), string(bulkimport.JobPending), string(bulkimport.JobProcessing),
	)
	if err != nil {
		return fmt.Errorf("failed to cancel import job %s: %w", id, classifyError(err))
	}

	affected, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to get rows affected: %w", err)
	}

	if affected == 0 {
		var status string

		err := s.conn.QueryRowContext(ctx, `SELECT status FROM import_jobs WHERE id = $1`, id).Scan(&status)
		if err != nil {
			return fmt.Errorf("%w: import job %s", catalog.ErrNotFound, id)
		}

		return fmt.Errorf("%w: import job %s already %s", catalog.ErrConflict, id, status)
	}

	return nil
}

// GetImportJobStatus reads just the status, cheap enough for the worker's
// between-batch cancellation checks.
func (s *ProductStore) GetImportJobStatus(ctx context.Context, id string) (bulkimport.JobStatus, error) {
	var status string

	err := s.conn.QueryRowContext(ctx, `SELECT status FROM import_jobs WHERE id = $1`, id).Scan(&status)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return "", fmt.Errorf("%w: import job %s", catalog.ErrNotFound, id)
		}

		return "", fmt.Errorf("failed to read status of import job %s: %w", id, classifyError(err))
	}

	return bulkimport.JobStatus(status), nil
}

func scanImportJob(scanner rowScanner) (*bulkimport.Job, error) {
	var (
		job           bulkimport.Job
		status        string
		importMode    string
		rowErrorsJSON []byte
		startedAt     sql.NullTime
		completedAt   sql.NullTime
	)

	err := scanner.Scan(
		&job.ID,
		&status,
		&importMode,
		&job.TotalRows,
		&job.ProcessedRows,
		&job.SuccessCount,
		&job.ErrorCount,
		&rowErrorsJSON,
		&job.Reason,
		&job.CreatedBy,
		&job.CreatedAt,
		&startedAt,
		&completedAt,
	)
	if err != nil {
		return nil, err
	}

	job.Status = bulkimport.JobStatus(status)
	job.ImportMode = bulkimport.ImportMode(importMode)
	job.CreatedAt = job.CreatedAt.UTC()

	if startedAt.Valid {
		t := startedAt.Time.UTC()
		job.StartedAt = &t
	}

	if completedAt.Valid {
		t := completedAt.Time.UTC()
		job.CompletedAt = &t
	}

	if err := json.Unmarshal(rowErrorsJSON, &job.RowErrors); err != nil {
		return nil, fmt.Errorf("failed to decode row errors of import job %s: %w", job.ID, err)
	}

	return &job, nil
}

func orEmptyRowErrors(rowErrors []bulkimport.RowError) []bulkimport.RowError {
	if rowErrors == nil {
		return []bulkimport.RowError{}
	}

	return rowErrors
}
