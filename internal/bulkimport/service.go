package bulkimport

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"net/http"

	"github.com/aioutlet/product-service/internal/catalog"
	"github.com/aioutlet/product-service/internal/events"
)

// JobStore is the persistence surface the submission side needs.
type JobStore interface {
	// CreateImportJob persists a new job record, assigning id and creation
	// time when unset.
	CreateImportJob(ctx context.Context, job *Job) error

	// GetImportJob loads one job or catalog.ErrNotFound.
	GetImportJob(ctx context.Context, id string) (*Job, error)

	// ListImportJobs returns jobs newest first plus the unpaged total.
	ListImportJobs(ctx context.Context, page catalog.Page) ([]Job, int, error)

	// CancelImportJob moves a pending or processing job to cancelled.
	// Terminal jobs produce catalog.ErrConflict.
	CancelImportJob(ctx context.Context, id string) error
}

// Service accepts import submissions, persists jobs, and hands the validated
// rows to whichever worker replica claims the job, via the broker.
type Service struct {
	store   JobStore
	emitter *events.Emitter
	client  *http.Client
	logger  *slog.Logger
}

// NewService wires a submission service. The HTTP client is used only for
// URL submissions and carries the configured outbound timeout.
func NewService(store JobStore, emitter *events.Emitter, cfg *Config, logger *slog.Logger) *Service {
	return &Service{
		store:   store,
		emitter: emitter,
		client:  &http.Client{Timeout: cfg.OutboundHTTPTimeout},
		logger:  logger,
	}
}

// Submit parses and validates an uploaded CSV, persists the job, and
// publishes the job-created event carrying the valid rows.
//
// partial mode accepts files with bad rows: the row errors are recorded on
// the job up front and only the valid rows travel to the worker, so a job
// whose every row failed validation still runs to completed with zero
// successes. allOrNothing mode rejects the submission outright when any row
// is invalid; nothing is persisted and the caller gets the first problem.
func (s *Service) Submit(ctx context.Context, file io.Reader, mode ImportMode, createdBy, correlationID string) (*Job, error) {
	result, err := ParseCSV(file)
	if err != nil {
		return nil, err
	}

	if result.TotalRows == 0 {
		return nil, fmt.Errorf("%w: file has no data rows", catalog.ErrValidation)
	}

	if mode == ModeAllOrNothing && result.InvalidRows > 0 {
		first := result.RowErrors[0]
		return nil, fmt.Errorf("%w: allOrNothing import rejected, %d of %d rows invalid; first: row %d %s: %s",
			catalog.ErrValidation, result.InvalidRows, result.TotalRows, first.RowNumber, first.FieldName, first.Description)
	}

	job := &Job{
		Status:        JobPending,
		ImportMode:    mode,
		TotalRows:     result.TotalRows,
		ProcessedRows: result.InvalidRows,
		ErrorCount:    result.InvalidRows,
		RowErrors:     CapErrors(result.RowErrors),
		CreatedBy:     createdBy,
	}

	if err := s.store.CreateImportJob(ctx, job); err != nil {
		return nil, err
	}

	s.emitter.BulkImportJobCreated(ctx, job.ID, job.ImportMode.String(), job.TotalRows, result.Rows, correlationID)

	s.logger.Info("import job submitted",
		slog.String("job_id", job.ID),
		slog.String("mode", job.ImportMode.String()),
		slog.Int("total_rows", job.TotalRows),
		slog.Int("valid_rows", len(result.Rows)),
		slog.Int("invalid_rows", result.InvalidRows))

	return job, nil
}

// SubmitFromURL downloads a CSV and submits it. The download shares the
// request context and is additionally bounded by the client timeout.
func (s *Service) SubmitFromURL(ctx context.Context, fileURL string, mode ImportMode, createdBy, correlationID string) (*Job, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, fileURL, nil)
	if err != nil {
		return nil, fmt.Errorf("%w: invalid file url: %v", catalog.ErrValidation, err)
	}

	resp, err := s.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("%w: fetching %s: %v", catalog.ErrValidation, fileURL, err)
	}
	defer func() { _ = resp.Body.Close() }()

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("%w: fetching %s returned status %d", catalog.ErrValidation, fileURL, resp.StatusCode)
	}

	return s.Submit(ctx, resp.Body, mode, createdBy, correlationID)
}

// GetJob loads one job record.
func (s *Service) GetJob(ctx context.Context, id string) (*Job, error) {
	return s.store.GetImportJob(ctx, id)
}

// ListJobs returns jobs newest first plus the unpaged total.
func (s *Service) ListJobs(ctx context.Context, page catalog.Page) ([]Job, int, error) {
	return s.store.ListImportJobs(ctx, page)
}

// Cancel stops a pending or processing job. The worker observes the status
// flip between batches and abandons the rest of the file; rows already
// imported stay imported.
func (s *Service) Cancel(ctx context.Context, id string) error {
	if err := s.store.CancelImportJob(ctx, id); err != nil {
		return err
	}

	s.logger.Info("import job cancelled", slog.String("job_id", id))
	return nil
}
