package bulkimport

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"

	"github.com/aioutlet/product-service/internal/catalog"
	"github.com/aioutlet/product-service/internal/events"
)

// WorkerStore is the persistence surface the processing side needs: the job
// bookkeeping operations plus the product writes the rows turn into.
type WorkerStore interface {
	// ClaimImportJob atomically moves pending to processing. false means
	// another replica won the claim or the job is gone.
	ClaimImportJob(ctx context.Context, id string) (bool, error)

	// GetImportJob loads the claimed job for its mode, creator and counters.
	GetImportJob(ctx context.Context, id string) (*Job, error)

	// GetImportJobStatus reads just the status, checked between batches to
	// observe operator cancellation.
	GetImportJobStatus(ctx context.Context, id string) (JobStatus, error)

	// RecordImportProgress overwrites the counters and appends row errors.
	RecordImportProgress(ctx context.Context, id string, processed, succeeded, failed int, rowErrors []RowError) error

	// CompleteImportJob moves processing to a terminal status with final
	// counters.
	CompleteImportJob(ctx context.Context, id string, status JobStatus, processed, succeeded, failed int, reason string) error

	// CreateProduct persists one row in partial mode.
	CreateProduct(ctx context.Context, product *catalog.Product) error

	// InsertMany persists a whole batch transactionally in allOrNothing mode.
	InsertMany(ctx context.Context, products []*catalog.Product) ([]string, error)

	// FindMany backs the allOrNothing SKU pre-check.
	FindMany(ctx context.Context, filter catalog.ProductFilter, page catalog.Page) ([]catalog.Product, int, error)
}

// Worker executes claimed import jobs batch by batch. Jobs arrive through the
// broker, so any replica can pick one up; the claim transition guarantees a
// redelivered job event never runs twice.
type Worker struct {
	store     WorkerStore
	emitter   *events.Emitter
	validator *catalog.Validator
	batchSize int
	logger    *slog.Logger
}

// NewWorker wires an import worker.
func NewWorker(store WorkerStore, emitter *events.Emitter, cfg *Config, logger *slog.Logger) *Worker {
	batchSize := cfg.BatchSize
	if batchSize < 1 {
		batchSize = defaultBatchSize
	}

	return &Worker{
		store:     store,
		emitter:   emitter,
		validator: catalog.NewValidator(),
		batchSize: batchSize,
		logger:    logger,
	}
}

// Routes declares the broker subscription of the worker.
func (w *Worker) Routes() []events.Route {
	return []events.Route{
		{Topic: events.TopicBulkImportJobCreated, Name: "bulkimport.job.created", Handler: w.HandleJobCreated},
	}
}

// jobPayload is the inbound shape of product.bulk.import.job.created.
type jobPayload struct {
	JobID      string `json:"jobId"`
	ImportMode string `json:"importMode"`
	TotalRows  int    `json:"totalRows"`
	Products   []Row  `json:"products"`
}

// jobRun is the mutable state of one claimed job.
type jobRun struct {
	job           *Job
	correlationID string

	processed int
	succeeded int
	failed    int

	// recorded counts row errors already persisted, including the
	// validation errors written at submission, so the cap holds across the
	// whole job and not per batch.
	recorded int
}

// HandleJobCreated claims and executes one import job.
//
// Outcome mapping: a lost claim, an operator cancellation, and a finished job
// all return nil so the delivery is acked. Store failures before the claim
// surface as-is so transient ones are redelivered. Store failures after the
// claim cannot be retried that way (the claim would reject the redelivery),
// so they terminate the job as failed with the error as reason.
func (w *Worker) HandleJobCreated(ctx context.Context, envelope *events.Envelope, correlationID string) error {
	var payload jobPayload
	if err := envelope.DecodeData(&payload); err != nil {
		return err
	}

	if payload.JobID == "" {
		return fmt.Errorf("%w: job event carries no jobId", catalog.ErrValidation)
	}

	claimed, err := w.store.ClaimImportJob(ctx, payload.JobID)
	if err != nil {
		return err
	}
	if !claimed {
		w.logger.Info("import job already claimed, skipping",
			slog.String("job_id", payload.JobID))
		return nil
	}

	job, err := w.store.GetImportJob(ctx, payload.JobID)
	if err != nil {
		return err
	}

	run := &jobRun{
		job:           job,
		correlationID: correlationID,
		processed:     job.ProcessedRows,
		succeeded:     job.SuccessCount,
		failed:        job.ErrorCount,
		recorded:      len(job.RowErrors),
	}

	w.logger.Info("import job claimed",
		slog.String("job_id", job.ID),
		slog.String("mode", job.ImportMode.String()),
		slog.Int("total_rows", job.TotalRows),
		slog.Int("valid_rows", len(payload.Products)))

	for start := 0; start < len(payload.Products); start += w.batchSize {
		end := min(start+w.batchSize, len(payload.Products))
		batch := payload.Products[start:end]

		cancelled, err := w.cancelledBetweenBatches(ctx, run)
		if err != nil {
			return w.failJob(ctx, run, err)
		}
		if cancelled {
			return nil
		}

		var batchErrs []RowError
		switch job.ImportMode {
		case ModeAllOrNothing:
			batchErrs, err = w.runBatchAtomic(ctx, run, batch)
		default:
			batchErrs, err = w.runBatchPartial(ctx, run, batch)
		}
		if err != nil {
			return w.failJob(ctx, run, err)
		}

		if err := w.recordProgress(ctx, run, batchErrs); err != nil {
			return w.failJob(ctx, run, err)
		}
	}

	return w.completeJob(ctx, run)
}

// runBatchPartial inserts rows independently. A bad row is reported and the
// batch moves on.
func (w *Worker) runBatchPartial(ctx context.Context, run *jobRun, batch []Row) ([]RowError, error) {
	var batchErrs []RowError

	for _, row := range batch {
		product := row.Product(run.job.CreatedBy)
		run.processed++

		if err := w.validator.ValidateProduct(product); err != nil {
			run.failed++
			batchErrs = append(batchErrs, rowErrorFor(row, err))
			continue
		}

		err := w.store.CreateProduct(ctx, product)
		switch {
		case err == nil:
			run.succeeded++
			w.emitter.ProductCreated(ctx, product, run.correlationID)
		case errors.Is(err, catalog.ErrConflict):
			run.failed++
			batchErrs = append(batchErrs, RowError{
				RowNumber:    row.RowNumber,
				FieldName:    "sku",
				Description:  "sku already belongs to an active product",
				Suggestion:   "change the sku or deactivate the existing product first",
				CurrentValue: row.SKU,
			})
		case errors.Is(err, catalog.ErrValidation):
			run.failed++
			batchErrs = append(batchErrs, rowErrorFor(row, err))
		default:
			return nil, err
		}
	}

	return batchErrs, nil
}

// runBatchAtomic pre-checks the batch's SKU set and inserts the whole batch
// in one transaction. Any collision fails the batch wholesale: none of its
// rows import and no created events go out for it. The job itself continues
// with the next batch.
func (w *Worker) runBatchAtomic(ctx context.Context, run *jobRun, batch []Row) ([]RowError, error) {
	products := make([]*catalog.Product, 0, len(batch))
	skus := make([]string, 0, len(batch))
	for _, row := range batch {
		product := row.Product(run.job.CreatedBy)
		if err := w.validator.ValidateProduct(product); err != nil {
			run.processed += len(batch)
			run.failed += len(batch)
			return []RowError{rowErrorFor(row, err)}, nil
		}
		products = append(products, product)
		skus = append(skus, row.SKU)
	}

	active := true
	existing, _, err := w.store.FindMany(ctx,
		catalog.ProductFilter{SKUs: skus, IsActive: &active},
		catalog.Page{Limit: len(skus)})
	if err != nil {
		return nil, err
	}

	if len(existing) > 0 {
		run.processed += len(batch)
		run.failed += len(batch)
		return collisionErrors(batch, existing), nil
	}

	if _, err := w.store.InsertMany(ctx, products); err != nil {
		if errors.Is(err, catalog.ErrConflict) {
			// A competing insert won between pre-check and commit.
			run.processed += len(batch)
			run.failed += len(batch)
			return []RowError{{
				RowNumber:   batch[0].RowNumber,
				FieldName:   "sku",
				Description: "batch rejected: a sku was taken while the batch was importing",
				Suggestion:  "resubmit the remaining rows",
			}}, nil
		}
		return nil, err
	}

	run.processed += len(batch)
	run.succeeded += len(batch)
	for _, product := range products {
		w.emitter.ProductCreated(ctx, product, run.correlationID)
	}

	return nil, nil
}

// cancelledBetweenBatches polls the job status so an operator cancel takes
// effect at the next batch boundary. Rows already imported stay imported.
func (w *Worker) cancelledBetweenBatches(ctx context.Context, run *jobRun) (bool, error) {
	status, err := w.store.GetImportJobStatus(ctx, run.job.ID)
	if err != nil {
		return false, err
	}

	if status != JobCancelled {
		return false, nil
	}

	w.logger.Info("import job cancelled, abandoning remaining rows",
		slog.String("job_id", run.job.ID),
		slog.Int("processed_rows", run.processed),
		slog.Int("total_rows", run.job.TotalRows))
	return true, nil
}

// recordProgress persists the batch outcome and announces it. Row errors
// beyond the recording cap are counted but not stored.
func (w *Worker) recordProgress(ctx context.Context, run *jobRun, batchErrs []RowError) error {
	if keep := maxRecordedErrors - run.recorded; keep < len(batchErrs) {
		if keep < 0 {
			keep = 0
		}
		batchErrs = batchErrs[:keep]
	}
	run.recorded += len(batchErrs)

	if err := w.store.RecordImportProgress(ctx, run.job.ID, run.processed, run.succeeded, run.failed, batchErrs); err != nil {
		// Cancellation between the status poll and this write.
		if errors.Is(err, catalog.ErrConflict) {
			w.logger.Info("import job no longer processing, abandoning",
				slog.String("job_id", run.job.ID))
			return nil
		}
		return err
	}

	w.emitter.BulkImportProgress(ctx, events.ImportProgressPayload{
		JobID:         run.job.ID,
		ProcessedRows: run.processed,
		SuccessCount:  run.succeeded,
		ErrorCount:    run.failed,
		TotalRows:     run.job.TotalRows,
	}, run.correlationID)

	return nil
}

// completeJob moves the job to completed. A job whose every row errored still
// completes; failed is reserved for pipeline faults.
func (w *Worker) completeJob(ctx context.Context, run *jobRun) error {
	err := w.store.CompleteImportJob(ctx, run.job.ID, JobCompleted, run.processed, run.succeeded, run.failed, "")
	if err != nil {
		if errors.Is(err, catalog.ErrConflict) {
			// Cancelled after the last batch; the terminal status stands.
			w.logger.Info("import job reached a terminal status before completion",
				slog.String("job_id", run.job.ID))
			return nil
		}
		return err
	}

	w.emitter.BulkImportCompleted(ctx, events.ImportResultPayload{
		JobID:        run.job.ID,
		Status:       JobCompleted.String(),
		TotalRows:    run.job.TotalRows,
		SuccessCount: run.succeeded,
		ErrorCount:   run.failed,
	}, run.correlationID)

	w.logger.Info("import job completed",
		slog.String("job_id", run.job.ID),
		slog.Int("success_count", run.succeeded),
		slog.Int("error_count", run.failed))

	return nil
}

// failJob records a fatal pipeline error. The claim transition would reject a
// redelivery, so the job must not stay in processing; best effort, and the
// original error is surfaced if even the terminal write fails.
func (w *Worker) failJob(ctx context.Context, run *jobRun, cause error) error {
	reason := fmt.Sprintf("pipeline error: %v", cause)

	err := w.store.CompleteImportJob(ctx, run.job.ID, JobFailed, run.processed, run.succeeded, run.failed, reason)
	if err != nil {
		if errors.Is(err, catalog.ErrConflict) {
			// Already terminal, nothing left to record.
			return nil
		}
		w.logger.Error("import job failed and could not be marked failed",
			slog.String("job_id", run.job.ID),
			slog.String("cause", cause.Error()),
			slog.String("error", err.Error()))
		return cause
	}

	w.emitter.BulkImportFailed(ctx, events.ImportResultPayload{
		JobID:        run.job.ID,
		Status:       JobFailed.String(),
		TotalRows:    run.job.TotalRows,
		SuccessCount: run.succeeded,
		ErrorCount:   run.failed,
		Reason:       reason,
	}, run.correlationID)

	w.logger.Error("import job failed",
		slog.String("job_id", run.job.ID),
		slog.String("reason", reason))

	return nil
}

// rowErrorFor wraps a validation failure as a row error.
func rowErrorFor(row Row, err error) RowError {
	return RowError{
		RowNumber:    row.RowNumber,
		Description:  trimSentinel(err),
		CurrentValue: row.SKU,
	}
}

// collisionErrors names the rows whose SKU already belongs to a stored
// product, matching case-insensitively the way the SKU uniqueness index does.
func collisionErrors(batch []Row, existing []catalog.Product) []RowError {
	taken := make(map[string]bool, len(existing))
	for _, product := range existing {
		taken[strings.ToLower(product.SKU)] = true
	}

	var errs []RowError
	for _, row := range batch {
		if !taken[strings.ToLower(row.SKU)] {
			continue
		}
		errs = append(errs, RowError{
			RowNumber:    row.RowNumber,
			FieldName:    "sku",
			Description:  "sku already belongs to an active product; batch rejected",
			Suggestion:   "remove or change the row and resubmit",
			CurrentValue: row.SKU,
		})
	}

	return errs
}
