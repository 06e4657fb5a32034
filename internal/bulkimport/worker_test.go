package bulkimport

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/aioutlet/product-service/internal/catalog"
	"github.com/aioutlet/product-service/internal/events"
)

// progressCall is one recorded progress write.
type progressCall struct {
	processed int
	succeeded int
	failed    int
	errs      []RowError
}

// fakeWorkerStore backs worker tests with the same claim and transition rules
// as the SQL store, plus a product table keyed by folded SKU.
type fakeWorkerStore struct {
	mu       sync.Mutex
	jobs     map[string]*Job
	products map[string]*catalog.Product
	nextID   int

	progress    []progressCall
	statusPolls int

	// cancelAtPoll flips the job to cancelled on the nth status poll,
	// imitating an operator cancel racing the worker.
	cancelAtPoll int

	failCreateWith   error
	failFindWith     error
	failInsertWith   error
	failStatusWith   error
	failProgressWith error
	failCompleteWith error
}

var _ WorkerStore = (*fakeWorkerStore)(nil)

func newFakeWorkerStore() *fakeWorkerStore {
	return &fakeWorkerStore{
		jobs:     make(map[string]*Job),
		products: make(map[string]*catalog.Product),
	}
}

func (s *fakeWorkerStore) addJob(job *Job) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.jobs[job.ID] = cloneJob(job)
}

func (s *fakeWorkerStore) job(t *testing.T, id string) *Job {
	t.Helper()
	s.mu.Lock()
	defer s.mu.Unlock()

	job, ok := s.jobs[id]
	require.True(t, ok, "job %s not stored", id)
	return cloneJob(job)
}

func (s *fakeWorkerStore) seedProduct(sku string) {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.nextID++
	id := fmt.Sprintf("seed-%d", s.nextID)
	s.products[strings.ToLower(sku)] = &catalog.Product{
		ID:            id,
		SKU:           sku,
		VariationType: catalog.VariationStandalone,
		Name:          "Seeded " + sku,
		Price:         9.99,
		IsActive:      true,
	}
}

func (s *fakeWorkerStore) productCount() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.products)
}

func (s *fakeWorkerStore) ClaimImportJob(_ context.Context, id string) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	job, ok := s.jobs[id]
	if !ok || job.Status != JobPending {
		return false, nil
	}

	job.Status = JobProcessing
	now := time.Now().UTC()
	job.StartedAt = &now

	return true, nil
}

func (s *fakeWorkerStore) GetImportJob(_ context.Context, id string) (*Job, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	job, ok := s.jobs[id]
	if !ok {
		return nil, fmt.Errorf("%w: import job %s", catalog.ErrNotFound, id)
	}

	return cloneJob(job), nil
}

func (s *fakeWorkerStore) GetImportJobStatus(_ context.Context, id string) (JobStatus, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.failStatusWith != nil {
		return "", s.failStatusWith
	}

	job, ok := s.jobs[id]
	if !ok {
		return "", fmt.Errorf("%w: import job %s", catalog.ErrNotFound, id)
	}

	s.statusPolls++
	if s.cancelAtPoll > 0 && s.statusPolls >= s.cancelAtPoll {
		job.Status = JobCancelled
	}

	return job.Status, nil
}

func (s *fakeWorkerStore) RecordImportProgress(_ context.Context, id string, processed, succeeded, failed int, rowErrors []RowError) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.failProgressWith != nil {
		return s.failProgressWith
	}

	job, ok := s.jobs[id]
	if !ok {
		return fmt.Errorf("%w: import job %s", catalog.ErrNotFound, id)
	}
	if job.Status != JobProcessing {
		return fmt.Errorf("%w: import job %s is %s", catalog.ErrConflict, id, job.Status)
	}

	job.ProcessedRows = processed
	job.SuccessCount = succeeded
	job.ErrorCount = failed
	job.RowErrors = append(job.RowErrors, rowErrors...)

	s.progress = append(s.progress, progressCall{
		processed: processed,
		succeeded: succeeded,
		failed:    failed,
		errs:      append([]RowError(nil), rowErrors...),
	})

	return nil
}

func (s *fakeWorkerStore) CompleteImportJob(_ context.Context, id string, status JobStatus, processed, succeeded, failed int, reason string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.failCompleteWith != nil {
		return s.failCompleteWith
	}

	job, ok := s.jobs[id]
	if !ok {
		return fmt.Errorf("%w: import job %s", catalog.ErrNotFound, id)
	}
	if job.Status != JobProcessing {
		return fmt.Errorf("%w: import job %s is %s", catalog.ErrConflict, id, job.Status)
	}

	job.Status = status
	job.ProcessedRows = processed
	job.SuccessCount = succeeded
	job.ErrorCount = failed
	job.Reason = reason
	now := time.Now().UTC()
	job.CompletedAt = &now

	return nil
}

func (s *fakeWorkerStore) CreateProduct(_ context.Context, product *catalog.Product) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.failCreateWith != nil {
		return s.failCreateWith
	}

	key := strings.ToLower(product.SKU)
	if existing, ok := s.products[key]; ok && existing.IsActive {
		return fmt.Errorf("%w: %q", catalog.ErrDuplicateSKU, product.SKU)
	}

	s.nextID++
	product.ID = fmt.Sprintf("gen-%d", s.nextID)
	product.CreatedAt = time.Now().UTC()

	clone := *product
	s.products[key] = &clone

	return nil
}

func (s *fakeWorkerStore) InsertMany(_ context.Context, products []*catalog.Product) ([]string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.failInsertWith != nil {
		return nil, s.failInsertWith
	}

	for _, product := range products {
		if existing, ok := s.products[strings.ToLower(product.SKU)]; ok && existing.IsActive {
			return nil, fmt.Errorf("%w: %q", catalog.ErrDuplicateSKU, product.SKU)
		}
	}

	ids := make([]string, 0, len(products))
	for _, product := range products {
		s.nextID++
		product.ID = fmt.Sprintf("gen-%d", s.nextID)
		product.CreatedAt = time.Now().UTC()

		clone := *product
		s.products[strings.ToLower(product.SKU)] = &clone
		ids = append(ids, product.ID)
	}

	return ids, nil
}

func (s *fakeWorkerStore) FindMany(_ context.Context, filter catalog.ProductFilter, _ catalog.Page) ([]catalog.Product, int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.failFindWith != nil {
		return nil, 0, s.failFindWith
	}

	var out []catalog.Product
	for _, sku := range filter.SKUs {
		product, ok := s.products[strings.ToLower(sku)]
		if !ok {
			continue
		}
		if filter.IsActive != nil && product.IsActive != *filter.IsActive {
			continue
		}
		out = append(out, *product)
	}

	return out, len(out), nil
}

func newTestWorker(store WorkerStore, batchSize int) (*Worker, *capturePublisher) {
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	publisher := &capturePublisher{}
	emitter := events.NewEmitter(publisher, logger)
	cfg := &Config{BatchSize: batchSize, OutboundHTTPTimeout: time.Second}

	return NewWorker(store, emitter, cfg, logger), publisher
}

// importJob builds a pending job the way Submit persists one: counters
// already carry the validation-stage failures.
func importJob(id string, mode ImportMode, validRows, invalidRows int) *Job {
	return &Job{
		ID:            id,
		Status:        JobPending,
		ImportMode:    mode,
		TotalRows:     validRows + invalidRows,
		ProcessedRows: invalidRows,
		ErrorCount:    invalidRows,
		CreatedBy:     "importer@example.com",
		CreatedAt:     time.Now().UTC(),
	}
}

// importRows builds sequential valid rows starting at file line 2.
func importRows(skus ...string) []Row {
	rows := make([]Row, 0, len(skus))
	for i, sku := range skus {
		rows = append(rows, Row{
			RowNumber: i + 2,
			SKU:       sku,
			Name:      "Imported " + sku,
			Price:     19.99,
		})
	}
	return rows
}

func jobEnvelope(t *testing.T, job *Job, rows []Row) *events.Envelope {
	t.Helper()

	envelope, err := events.NewEnvelope(events.TopicBulkImportJobCreated, events.ImportJobPayload{
		JobID:      job.ID,
		ImportMode: job.ImportMode.String(),
		TotalRows:  job.TotalRows,
		Products:   rows,
	}, events.PublishOptions{CorrelationID: "corr-import"})
	require.NoError(t, err)

	return envelope
}

func TestHandleJobCreated_PartialImportsAllRows(t *testing.T) {
	store := newFakeWorkerStore()
	worker, publisher := newTestWorker(store, 100)

	rows := importRows("TEE-1", "TEE-2", "TEE-3")
	job := importJob("job-1", ModePartial, len(rows), 0)
	store.addJob(job)

	err := worker.HandleJobCreated(context.Background(), jobEnvelope(t, job, rows), "corr-import")
	require.NoError(t, err)

	stored := store.job(t, "job-1")
	assert.Equal(t, JobCompleted, stored.Status)
	assert.Equal(t, 3, stored.ProcessedRows)
	assert.Equal(t, 3, stored.SuccessCount)
	assert.Equal(t, 0, stored.ErrorCount)
	require.NotNil(t, stored.StartedAt)
	require.NotNil(t, stored.CompletedAt)

	assert.Equal(t, 3, store.productCount())
	assert.Len(t, publisher.byTopic(events.TopicProductCreated), 3)
	assert.Len(t, publisher.byTopic(events.TopicBulkImportProgress), 1)

	completed := publisher.byTopic(events.TopicBulkImportCompleted)
	require.Len(t, completed, 1)
	payload := completed[0].data.(events.ImportResultPayload)
	assert.Equal(t, "completed", payload.Status)
	assert.Equal(t, 3, payload.TotalRows)
	assert.Equal(t, 3, payload.SuccessCount)
	assert.Equal(t, 0, payload.ErrorCount)
}

func TestHandleJobCreated_PartialRecordsDuplicateSKUByFileLine(t *testing.T) {
	store := newFakeWorkerStore()
	store.seedProduct("TEE-2")
	worker, publisher := newTestWorker(store, 100)

	rows := importRows("TEE-1", "TEE-2", "TEE-3")
	job := importJob("job-1", ModePartial, len(rows), 0)
	store.addJob(job)

	err := worker.HandleJobCreated(context.Background(), jobEnvelope(t, job, rows), "corr-import")
	require.NoError(t, err)

	stored := store.job(t, "job-1")
	assert.Equal(t, JobCompleted, stored.Status)
	assert.Equal(t, 3, stored.ProcessedRows)
	assert.Equal(t, 2, stored.SuccessCount)
	assert.Equal(t, 1, stored.ErrorCount)

	require.Len(t, stored.RowErrors, 1)
	rowErr := stored.RowErrors[0]
	assert.Equal(t, 3, rowErr.RowNumber)
	assert.Equal(t, "sku", rowErr.FieldName)
	assert.Equal(t, "TEE-2", rowErr.CurrentValue)

	assert.Len(t, publisher.byTopic(events.TopicProductCreated), 2)
	assert.Len(t, publisher.byTopic(events.TopicBulkImportCompleted), 1)
	assert.Empty(t, publisher.byTopic(events.TopicBulkImportFailed))
}

func TestHandleJobCreated_PartialCountersCarryValidationFailures(t *testing.T) {
	store := newFakeWorkerStore()
	worker, publisher := newTestWorker(store, 100)

	// Two of five rows failed validation at submission and never reach the
	// worker; the job record already counts them.
	rows := importRows("TEE-1", "TEE-2", "TEE-3")
	job := importJob("job-1", ModePartial, len(rows), 2)
	store.addJob(job)

	err := worker.HandleJobCreated(context.Background(), jobEnvelope(t, job, rows), "corr-import")
	require.NoError(t, err)

	stored := store.job(t, "job-1")
	assert.Equal(t, JobCompleted, stored.Status)
	assert.Equal(t, 5, stored.TotalRows)
	assert.Equal(t, 5, stored.ProcessedRows)
	assert.Equal(t, 3, stored.SuccessCount)
	assert.Equal(t, 2, stored.ErrorCount)

	progress := publisher.byTopic(events.TopicBulkImportProgress)
	require.Len(t, progress, 1)
	payload := progress[0].data.(events.ImportProgressPayload)
	assert.Equal(t, 5, payload.ProcessedRows)
	assert.Equal(t, 3, payload.SuccessCount)
	assert.Equal(t, 2, payload.ErrorCount)
	assert.Equal(t, 5, payload.TotalRows)
}

func TestHandleJobCreated_ZeroValidRowsStillCompletes(t *testing.T) {
	store := newFakeWorkerStore()
	worker, publisher := newTestWorker(store, 100)

	job := importJob("job-1", ModePartial, 0, 2)
	store.addJob(job)

	err := worker.HandleJobCreated(context.Background(), jobEnvelope(t, job, nil), "corr-import")
	require.NoError(t, err)

	stored := store.job(t, "job-1")
	assert.Equal(t, JobCompleted, stored.Status)
	assert.Equal(t, 2, stored.ProcessedRows)
	assert.Equal(t, 0, stored.SuccessCount)
	assert.Equal(t, 2, stored.ErrorCount)

	assert.Empty(t, publisher.byTopic(events.TopicBulkImportProgress))
	assert.Len(t, publisher.byTopic(events.TopicBulkImportCompleted), 1)
}

func TestHandleJobCreated_LostClaimAcksWithoutWork(t *testing.T) {
	store := newFakeWorkerStore()
	worker, publisher := newTestWorker(store, 100)

	rows := importRows("TEE-1")
	job := importJob("job-1", ModePartial, len(rows), 0)
	job.Status = JobProcessing
	store.addJob(job)

	err := worker.HandleJobCreated(context.Background(), jobEnvelope(t, job, rows), "corr-import")
	require.NoError(t, err)

	assert.Zero(t, store.productCount())
	assert.Zero(t, publisher.count())
}

func TestHandleJobCreated_MissingJobAcks(t *testing.T) {
	store := newFakeWorkerStore()
	worker, publisher := newTestWorker(store, 100)

	rows := importRows("TEE-1")
	job := importJob("job-ghost", ModePartial, len(rows), 0)

	err := worker.HandleJobCreated(context.Background(), jobEnvelope(t, job, rows), "corr-import")
	require.NoError(t, err)

	assert.Zero(t, publisher.count())
}

func TestHandleJobCreated_BatchesAndReportsProgressPerBatch(t *testing.T) {
	store := newFakeWorkerStore()
	worker, publisher := newTestWorker(store, 2)

	rows := importRows("TEE-1", "TEE-2", "TEE-3", "TEE-4", "TEE-5")
	job := importJob("job-1", ModePartial, len(rows), 0)
	store.addJob(job)

	err := worker.HandleJobCreated(context.Background(), jobEnvelope(t, job, rows), "corr-import")
	require.NoError(t, err)

	require.Len(t, store.progress, 3)
	assert.Equal(t, progressCall{processed: 2, succeeded: 2}, store.progress[0])
	assert.Equal(t, progressCall{processed: 4, succeeded: 4}, store.progress[1])
	assert.Equal(t, progressCall{processed: 5, succeeded: 5}, store.progress[2])

	assert.Len(t, publisher.byTopic(events.TopicBulkImportProgress), 3)
	assert.Equal(t, 5, store.productCount())
}

func TestHandleJobCreated_AllOrNothingInsertsBatchAtomically(t *testing.T) {
	store := newFakeWorkerStore()
	worker, publisher := newTestWorker(store, 100)

	rows := importRows("TEE-1", "TEE-2", "TEE-3")
	job := importJob("job-1", ModeAllOrNothing, len(rows), 0)
	store.addJob(job)

	err := worker.HandleJobCreated(context.Background(), jobEnvelope(t, job, rows), "corr-import")
	require.NoError(t, err)

	stored := store.job(t, "job-1")
	assert.Equal(t, JobCompleted, stored.Status)
	assert.Equal(t, 3, stored.SuccessCount)
	assert.Equal(t, 0, stored.ErrorCount)

	assert.Equal(t, 3, store.productCount())
	assert.Len(t, publisher.byTopic(events.TopicProductCreated), 3)
}

func TestHandleJobCreated_AllOrNothingCollisionFailsWholeBatch(t *testing.T) {
	store := newFakeWorkerStore()
	store.seedProduct("TEE-2")
	worker, publisher := newTestWorker(store, 2)

	// Batch one is TEE-1 + TEE-2 and collides; batch two is TEE-3 + TEE-4
	// and imports cleanly. The job still completes.
	rows := importRows("TEE-1", "TEE-2", "TEE-3", "TEE-4")
	job := importJob("job-1", ModeAllOrNothing, len(rows), 0)
	store.addJob(job)

	err := worker.HandleJobCreated(context.Background(), jobEnvelope(t, job, rows), "corr-import")
	require.NoError(t, err)

	stored := store.job(t, "job-1")
	assert.Equal(t, JobCompleted, stored.Status)
	assert.Equal(t, 4, stored.ProcessedRows)
	assert.Equal(t, 2, stored.SuccessCount)
	assert.Equal(t, 2, stored.ErrorCount)

	require.Len(t, stored.RowErrors, 1)
	rowErr := stored.RowErrors[0]
	assert.Equal(t, 3, rowErr.RowNumber)
	assert.Equal(t, "sku", rowErr.FieldName)
	assert.Equal(t, "TEE-2", rowErr.CurrentValue)

	// Seeded TEE-2 plus the two rows of the clean batch.
	assert.Equal(t, 3, store.productCount())

	created := publisher.byTopic(events.TopicProductCreated)
	require.Len(t, created, 2)
	for _, event := range created {
		payload := event.data.(events.ProductPayload)
		assert.Contains(t, []string{"TEE-3", "TEE-4"}, payload.SKU)
	}
}

func TestHandleJobCreated_AllOrNothingInsertRaceFailsBatch(t *testing.T) {
	store := newFakeWorkerStore()
	store.failInsertWith = catalog.ErrDuplicateSKU
	worker, publisher := newTestWorker(store, 100)

	rows := importRows("TEE-1", "TEE-2")
	job := importJob("job-1", ModeAllOrNothing, len(rows), 0)
	store.addJob(job)

	err := worker.HandleJobCreated(context.Background(), jobEnvelope(t, job, rows), "corr-import")
	require.NoError(t, err)

	stored := store.job(t, "job-1")
	assert.Equal(t, JobCompleted, stored.Status)
	assert.Equal(t, 0, stored.SuccessCount)
	assert.Equal(t, 2, stored.ErrorCount)
	require.Len(t, stored.RowErrors, 1)
	assert.Contains(t, stored.RowErrors[0].Description, "batch rejected")

	assert.Empty(t, publisher.byTopic(events.TopicProductCreated))
}

func TestHandleJobCreated_CancellationObservedBetweenBatches(t *testing.T) {
	store := newFakeWorkerStore()
	store.cancelAtPoll = 2
	worker, publisher := newTestWorker(store, 1)

	rows := importRows("TEE-1", "TEE-2", "TEE-3")
	job := importJob("job-1", ModePartial, len(rows), 0)
	store.addJob(job)

	err := worker.HandleJobCreated(context.Background(), jobEnvelope(t, job, rows), "corr-import")
	require.NoError(t, err)

	stored := store.job(t, "job-1")
	assert.Equal(t, JobCancelled, stored.Status)

	// The first batch landed before the cancel was observed.
	assert.Equal(t, 1, store.productCount())
	assert.Len(t, publisher.byTopic(events.TopicProductCreated), 1)
	assert.Empty(t, publisher.byTopic(events.TopicBulkImportCompleted))
	assert.Empty(t, publisher.byTopic(events.TopicBulkImportFailed))
}

func TestHandleJobCreated_TransientStoreFailureFailsJob(t *testing.T) {
	store := newFakeWorkerStore()
	store.failCreateWith = catalog.ErrStoreUnavailable
	worker, publisher := newTestWorker(store, 100)

	rows := importRows("TEE-1")
	job := importJob("job-1", ModePartial, len(rows), 0)
	store.addJob(job)

	err := worker.HandleJobCreated(context.Background(), jobEnvelope(t, job, rows), "corr-import")
	require.NoError(t, err)

	stored := store.job(t, "job-1")
	assert.Equal(t, JobFailed, stored.Status)
	assert.Contains(t, stored.Reason, "pipeline error")

	failed := publisher.byTopic(events.TopicBulkImportFailed)
	require.Len(t, failed, 1)
	payload := failed[0].data.(events.ImportResultPayload)
	assert.Equal(t, "failed", payload.Status)
	assert.Contains(t, payload.Reason, "store unavailable")

	assert.Empty(t, publisher.byTopic(events.TopicBulkImportCompleted))
}

func TestHandleJobCreated_StatusPollFailureFailsJob(t *testing.T) {
	store := newFakeWorkerStore()
	worker, publisher := newTestWorker(store, 100)

	rows := importRows("TEE-1")
	job := importJob("job-1", ModePartial, len(rows), 0)
	store.addJob(job)
	store.failStatusWith = catalog.ErrStoreUnavailable

	err := worker.HandleJobCreated(context.Background(), jobEnvelope(t, job, rows), "corr-import")
	require.NoError(t, err)

	// The poll failed after the claim, so the job is failed rather than left
	// in processing where no replica could ever reclaim it.
	stored := store.job(t, "job-1")
	assert.Equal(t, JobFailed, stored.Status)
	assert.Len(t, publisher.byTopic(events.TopicBulkImportFailed), 1)
}

func TestHandleJobCreated_CompletionConflictAfterCancelAcks(t *testing.T) {
	store := newFakeWorkerStore()
	store.failCompleteWith = fmt.Errorf("%w: import job job-1 is cancelled", catalog.ErrConflict)
	worker, publisher := newTestWorker(store, 100)

	rows := importRows("TEE-1")
	job := importJob("job-1", ModePartial, len(rows), 0)
	store.addJob(job)

	err := worker.HandleJobCreated(context.Background(), jobEnvelope(t, job, rows), "corr-import")
	require.NoError(t, err)

	assert.Empty(t, publisher.byTopic(events.TopicBulkImportCompleted))
	assert.Empty(t, publisher.byTopic(events.TopicBulkImportFailed))
}

func TestHandleJobCreated_RowErrorRecordingStopsAtCap(t *testing.T) {
	store := newFakeWorkerStore()
	store.seedProduct("TEE-1")
	worker, _ := newTestWorker(store, 100)

	// The submission already recorded a full error list; the duplicate-sku
	// failure below still counts but is not stored.
	rows := importRows("TEE-1")
	job := importJob("job-1", ModePartial, len(rows), maxRecordedErrors)
	for i := 0; i < maxRecordedErrors; i++ {
		job.RowErrors = append(job.RowErrors, RowError{RowNumber: i + 3, Description: "bad cell"})
	}
	store.addJob(job)

	err := worker.HandleJobCreated(context.Background(), jobEnvelope(t, job, rows), "corr-import")
	require.NoError(t, err)

	stored := store.job(t, "job-1")
	assert.Equal(t, JobCompleted, stored.Status)
	assert.Equal(t, maxRecordedErrors+1, stored.ErrorCount)
	assert.Len(t, stored.RowErrors, maxRecordedErrors)
}

func TestHandleJobCreated_MalformedPayloadRejected(t *testing.T) {
	store := newFakeWorkerStore()
	worker, _ := newTestWorker(store, 100)

	t.Run("undecodable data", func(t *testing.T) {
		envelope := &events.Envelope{
			SpecVersion: events.SpecVersion,
			Type:        events.TypeForTopic(events.TopicBulkImportJobCreated),
			ID:          "evt-bad-payload",
			Time:        time.Now().UTC().Format(time.RFC3339),
			Data:        json.RawMessage(`{"jobId": 7}`),
		}

		err := worker.HandleJobCreated(context.Background(), envelope, "corr-import")
		require.Error(t, err)
		assert.ErrorIs(t, err, events.ErrEnvelopeDataInvalid)
	})

	t.Run("missing job id", func(t *testing.T) {
		envelope, err := events.NewEnvelope(events.TopicBulkImportJobCreated,
			events.ImportJobPayload{ImportMode: "partial"}, events.PublishOptions{})
		require.NoError(t, err)

		err = worker.HandleJobCreated(context.Background(), envelope, "corr-import")
		require.Error(t, err)
		assert.ErrorIs(t, err, catalog.ErrValidation)
	})
}

func TestWorkerRoutes_SubscribeToJobCreated(t *testing.T) {
	store := newFakeWorkerStore()
	worker, _ := newTestWorker(store, 100)

	routes := worker.Routes()
	require.Len(t, routes, 1)
	assert.Equal(t, events.TopicBulkImportJobCreated, routes[0].Topic)
	assert.NotEmpty(t, routes[0].Name)
	assert.NotNil(t, routes[0].Handler)
}
