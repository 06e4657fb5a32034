package storage

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/aioutlet/product-service/internal/catalog"
	"github.com/aioutlet/product-service/internal/projection"
)

var _ projection.Store = (*ProductStore)(nil)

const (
	// cleanupQueryTimeout is the maximum time allowed for a single cleanup run.
	cleanupQueryTimeout = 30 * time.Second
	// cleanupBatchSize is the maximum number of rows to delete per batch to avoid long-running locks.
	cleanupBatchSize = 10000
	// batchSleepDuration is the sleep time between batches to avoid overwhelming the database.
	batchSleepDuration = 100 * time.Millisecond
)

// ResolveProductID maps an inbound event to a product id: the explicit id
// when the event carries one, otherwise a lookup over active SKUs.
func (s *ProductStore) ResolveProductID(ctx context.Context, productID, sku string) (string, error) {
	if productID != "" {
		return productID, nil
	}

	if sku == "" {
		return "", fmt.Errorf("%w: event carries neither productId nor sku", catalog.ErrValidation)
	}

	var id string

	err := s.conn.QueryRowContext(ctx,
		`SELECT id FROM products WHERE lower(sku) = lower($1) AND is_active ORDER BY updated_at DESC LIMIT 1`,
		sku,
	).Scan(&id)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return "", fmt.Errorf("%w: no active product with sku %s", catalog.ErrNotFound, sku)
		}

		return "", fmt.Errorf("failed to resolve sku %s: %w", sku, classifyError(err))
	}

	return id, nil
}

// applyProjection runs one projection mutation inside a transaction guarded
// by the idempotency ledger. A previously seen event id commits nothing and
// reports applied=false; a mutation error rolls the ledger entry back so
// redelivery can try again.
func (s *ProductStore) applyProjection(ctx context.Context, eventID string, mutate func(tx *sql.Tx) error) (bool, error) {
	tx, err := s.conn.BeginTx(ctx, nil)
	if err != nil {
		return false, fmt.Errorf("failed to begin transaction: %w", classifyError(err))
	}

	defer func() {
		_ = tx.Rollback()
	}()

	if s.dedupEnabled && eventID != "" {
		result, err := tx.ExecContext(ctx,
			`INSERT INTO event_idempotency (event_id, expires_at) VALUES ($1, $2) ON CONFLICT (event_id) DO NOTHING`,
			eventID, time.Now().UTC().Add(s.dedupTTL),
		)
		if err != nil {
			return false, fmt.Errorf("failed to record event id %s: %w", eventID, classifyError(err))
		}

		inserted, err := result.RowsAffected()
		if err != nil {
			return false, fmt.Errorf("failed to get rows affected: %w", err)
		}

		if inserted == 0 {
			return false, nil
		}
	}

	if err := mutate(tx); err != nil {
		return false, err
	}

	if err := tx.Commit(); err != nil {
		return false, fmt.Errorf("failed to commit projection: %w", classifyError(err))
	}

	return true, nil
}

const (
	reviewBucketSum = "adjusted.rc1 + adjusted.rc2 + adjusted.rc3 + adjusted.rc4 + adjusted.rc5"

	reviewWeightedSum = "adjusted.rc1 * 1 + adjusted.rc2 * 2 + adjusted.rc3 * 3 + adjusted.rc4 * 4 + adjusted.rc5 * 5"
)

// reviewAggregateQuery builds the single-statement aggregate update for one
// review event shape. bucketDelta is a fmt pattern expanded per star bucket
// (%[1]d is the star); verifiedExpr computes the new verified count with %s
// standing for the new total.
//
// The adjusted distribution is the source of truth: the total, the verified
// ceiling, and the average all derive from the new bucket values, so a
// clamped decrement self-heals instead of drifting negative.
func reviewAggregateQuery(bucketDelta, verifiedExpr string) string {
	adjusted := make([]string, 0, 5)
	sets := make([]string, 0, 5)

	for star := 1; star <= 5; star++ {
		delta := fmt.Sprintf(bucketDelta, star)
		adjusted = append(adjusted, fmt.Sprintf("GREATEST(rating_count_%[1]d %[2]s, 0) AS rc%[1]d", star, delta))
		sets = append(sets, fmt.Sprintf("rating_count_%[1]d = adjusted.rc%[1]d", star))
	}

	return fmt.Sprintf(`
		WITH adjusted AS (
			SELECT
				%s,
				total_reviews AS previous_total
			FROM products
			WHERE id = $1 AND is_active
			FOR UPDATE
		)
		UPDATE products SET
			%s,
			total_reviews = %s,
			verified_purchases = %s,
			average_rating = CASE
				WHEN %s = 0 THEN 0
				ELSE ROUND((%s)::numeric / (%s), 2)
			END,
			updated_at = NOW()
		FROM adjusted
		WHERE products.id = $1
		RETURNING adjusted.previous_total
	`,
		strings.Join(adjusted, ",\n\t\t\t\t"),
		strings.Join(sets, ",\n\t\t\t"),
		reviewBucketSum,
		fmt.Sprintf(verifiedExpr, reviewBucketSum),
		reviewBucketSum,
		reviewWeightedSum,
		reviewBucketSum,
	)
}

var (
	reviewCreatedQuery = reviewAggregateQuery(
		"+ CASE WHEN $2 = %[1]d THEN 1 ELSE 0 END",
		"LEAST(verified_purchases + CASE WHEN $3 THEN 1 ELSE 0 END, %s)",
	)

	reviewUpdatedQuery = reviewAggregateQuery(
		"- CASE WHEN $2 = %[1]d THEN 1 ELSE 0 END + CASE WHEN $3 = %[1]d THEN 1 ELSE 0 END",
		"LEAST(verified_purchases, %s)",
	)

	reviewDeletedQuery = reviewAggregateQuery(
		"- CASE WHEN $2 = %[1]d THEN 1 ELSE 0 END",
		"LEAST(GREATEST(verified_purchases - CASE WHEN $3 THEN 1 ELSE 0 END, 0), %s)",
	)
)

// ApplyReviewCreated folds one new review into the aggregates projection.
func (s *ProductStore) ApplyReviewCreated(ctx context.Context, eventID, productID string, sample catalog.ReviewSample) (bool, error) {
	return s.applyProjection(ctx, eventID, func(tx *sql.Tx) error {
		return s.execReviewAggregate(ctx, tx, reviewCreatedQuery, productID, false,
			sample.Rating, sample.VerifiedPurchase)
	})
}

// ApplyReviewUpdated moves one review between star buckets. The verified
// count is not touched: editing a review does not change purchase status.
func (s *ProductStore) ApplyReviewUpdated(ctx context.Context, eventID, productID string, oldRating, newRating int) (bool, error) {
	return s.applyProjection(ctx, eventID, func(tx *sql.Tx) error {
		return s.execReviewAggregate(ctx, tx, reviewUpdatedQuery, productID, true,
			oldRating, newRating)
	})
}

// ApplyReviewDeleted removes one review from the aggregates projection.
func (s *ProductStore) ApplyReviewDeleted(ctx context.Context, eventID, productID string, sample catalog.ReviewSample) (bool, error) {
	return s.applyProjection(ctx, eventID, func(tx *sql.Tx) error {
		return s.execReviewAggregate(ctx, tx, reviewDeletedQuery, productID, true,
			sample.Rating, sample.VerifiedPurchase)
	})
}

func (s *ProductStore) execReviewAggregate(ctx context.Context, tx *sql.Tx, query, productID string, warnOnEmpty bool, args ...any) error {
	var previousTotal int

	row := tx.QueryRowContext(ctx, query, append([]any{productID}, args...)...)
	if err := row.Scan(&previousTotal); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return fmt.Errorf("%w: product %s", catalog.ErrNotFound, productID)
		}

		return fmt.Errorf("failed to update review aggregates for product %s: %w", productID, classifyError(err))
	}

	if warnOnEmpty && previousTotal == 0 {
		s.logger.Warn("review removal clamped: product had no reviews",
			slog.String("product_id", productID))
	}

	return nil
}

// ApplyStockUpdate replaces the availability projection and reports the state
// transition so callers can announce the out-of-stock to sellable edge.
func (s *ProductStore) ApplyStockUpdate(ctx context.Context, eventID, productID string, update catalog.StockUpdate) (catalog.AvailabilityTransition, bool, error) {
	var transition catalog.AvailabilityTransition

	observedAt := update.ObservedAt
	if observedAt.IsZero() {
		observedAt = time.Now().UTC()
	}

	// nil keeps the product's current threshold.
	var threshold any
	if update.LowStockThreshold != nil {
		threshold = *update.LowStockThreshold
	}

	applied, err := s.applyProjection(ctx, eventID, func(tx *sql.Tx) error {
		query := `
			WITH previous AS (
				SELECT availability_state
				FROM products
				WHERE id = $1 AND is_active
				FOR UPDATE
			)
			UPDATE products SET
				available_quantity = $2,
				low_stock_threshold = COALESCE($3, low_stock_threshold),
				availability_state = CASE
					WHEN $2 <= 0 THEN 'outOfStock'
					WHEN $2 <= COALESCE($3, low_stock_threshold) THEN 'lowStock'
					ELSE 'inStock'
				END,
				availability_updated_at = $4,
				updated_at = NOW()
			FROM previous
			WHERE products.id = $1
			RETURNING previous.availability_state, products.availability_state
		`

		var previous, current string

		err := tx.QueryRowContext(ctx, query,
			productID, update.AvailableQuantity, threshold, observedAt,
		).Scan(&previous, &current)
		if err != nil {
			if errors.Is(err, sql.ErrNoRows) {
				return fmt.Errorf("%w: product %s", catalog.ErrNotFound, productID)
			}

			return fmt.Errorf("failed to update availability for product %s: %w", productID, classifyError(err))
		}

		transition = catalog.AvailabilityTransition{
			Previous: catalog.AvailabilityState(previous),
			Current:  catalog.AvailabilityState(current),
		}

		return nil
	})

	return transition, applied, err
}

// AdjustQuestionCount shifts the question counter by delta, clamped at zero.
// The answered count never exceeds the total.
func (s *ProductStore) AdjustQuestionCount(ctx context.Context, eventID, productID string, delta int) (bool, error) {
	return s.applyProjection(ctx, eventID, func(tx *sql.Tx) error {
		query := `
			UPDATE products SET
				total_questions = GREATEST(total_questions + $2, 0),
				answered_questions = LEAST(answered_questions, GREATEST(total_questions + $2, 0)),
				qa_updated_at = NOW(),
				updated_at = NOW()
			WHERE id = $1 AND is_active
		`

		return s.execProjectionUpdate(ctx, tx, query, "question count", productID, delta)
	})
}

// AdjustAnswerCount shifts the answered counter by delta, clamped to
// [0, totalQuestions].
func (s *ProductStore) AdjustAnswerCount(ctx context.Context, eventID, productID string, delta int) (bool, error) {
	return s.applyProjection(ctx, eventID, func(tx *sql.Tx) error {
		query := `
			UPDATE products SET
				answered_questions = LEAST(GREATEST(answered_questions + $2, 0), total_questions),
				qa_updated_at = NOW(),
				updated_at = NOW()
			WHERE id = $1 AND is_active
		`

		return s.execProjectionUpdate(ctx, tx, query, "answer count", productID, delta)
	})
}

// CacheSalesMetrics replaces the cached sales analytics window.
func (s *ProductStore) CacheSalesMetrics(ctx context.Context, eventID, productID string, metrics catalog.SalesMetrics) (bool, error) {
	record := salesMetricsRecord{
		Units:        metrics.Last30Days.Units,
		CategoryRank: metrics.Last30Days.CategoryRank,
		UpdatedAt:    orNow(metrics.UpdatedAt),
	}

	payload, err := json.Marshal(record)
	if err != nil {
		return false, fmt.Errorf("failed to serialize sales metrics: %w", err)
	}

	return s.applyProjection(ctx, eventID, func(tx *sql.Tx) error {
		query := `UPDATE products SET sales_metrics = $2, updated_at = NOW() WHERE id = $1 AND is_active`

		return s.execProjectionUpdate(ctx, tx, query, "sales metrics", productID, payload)
	})
}

// CacheViewMetrics replaces the cached view analytics windows.
func (s *ProductStore) CacheViewMetrics(ctx context.Context, eventID, productID string, metrics catalog.ViewMetrics) (bool, error) {
	record := viewMetricsRecord{
		Last7Days:  metrics.Last7Days,
		Prior7Days: metrics.Prior7Days,
		UpdatedAt:  orNow(metrics.UpdatedAt),
	}

	payload, err := json.Marshal(record)
	if err != nil {
		return false, fmt.Errorf("failed to serialize view metrics: %w", err)
	}

	return s.applyProjection(ctx, eventID, func(tx *sql.Tx) error {
		query := `UPDATE products SET view_metrics = $2, updated_at = NOW() WHERE id = $1 AND is_active`

		return s.execProjectionUpdate(ctx, tx, query, "view metrics", productID, payload)
	})
}

func (s *ProductStore) execProjectionUpdate(ctx context.Context, tx *sql.Tx, query, what, productID string, arg any) error {
	result, err := tx.ExecContext(ctx, query, productID, arg)
	if err != nil {
		return fmt.Errorf("failed to update %s for product %s: %w", what, productID, classifyError(err))
	}

	affected, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to get rows affected: %w", err)
	}

	if affected == 0 {
		return fmt.Errorf("%w: product %s", catalog.ErrNotFound, productID)
	}

	return nil
}

func orNow(t time.Time) time.Time {
	if t.IsZero() {
		return time.Now().UTC()
	}

	return t.UTC()
}

// runCleanup periodically prunes expired idempotency ledger entries. Runs
// until Close() signals cleanupStop.
func (s *ProductStore) runCleanup() {
	defer close(s.cleanupDone)

	ticker := time.NewTicker(s.cleanupInterval)
	defer ticker.Stop()

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	for {
		select {
		case <-s.cleanupStop:
			cancel()
			s.logger.Info("Stopping idempotency cleanup goroutine")

			return
		case <-ticker.C:
			cleanupCtx, cleanupCancel := context.WithTimeout(ctx, cleanupQueryTimeout)
			s.cleanupExpiredEvents(cleanupCtx)
			cleanupCancel()
		}
	}
}

// cleanupExpiredEvents deletes expired ledger rows in batches so a large
// backlog never holds long table locks. Failures are logged, not fatal; the
// next tick retries.
func (s *ProductStore) cleanupExpiredEvents(ctx context.Context) {
	startTime := time.Now()
	totalDeleted := int64(0)
	batchCount := 0

	for {
		if ctx.Err() != nil {
			s.logger.Info("Cleanup cancelled",
				slog.Int64("rows_deleted", totalDeleted),
				slog.Int("batches_completed", batchCount),
				slog.Duration("duration", time.Since(startTime)))

			return
		}

		// Oldest expired rows go first; the expires_at index keeps the inner
		// select cheap.
		query := `
			DELETE FROM event_idempotency
			WHERE event_id IN (
				SELECT event_id
				FROM event_idempotency
				WHERE expires_at < NOW()
				ORDER BY expires_at ASC
				LIMIT $1
			)
		`

		result, err := s.conn.ExecContext(ctx, query, cleanupBatchSize)
		if err != nil {
			s.logger.Error("Failed to clean up expired event ids",
				slog.String("error", err.Error()),
				slog.Int64("rows_deleted_before_error", totalDeleted),
				slog.Int("batches_completed", batchCount))

			return
		}

		rowsDeleted, err := result.RowsAffected()
		if err != nil {
			s.logger.Warn("Cleanup batch completed but row count unavailable",
				slog.String("error", err.Error()),
				slog.Int64("rows_deleted_before_error", totalDeleted),
				slog.Int("batches_completed", batchCount))

			return
		}

		totalDeleted += rowsDeleted
		batchCount++

		if rowsDeleted < cleanupBatchSize {
			break
		}

		select {
		case <-ctx.Done():
			s.logger.Info("Cleanup cancelled between batches",
				slog.Int64("rows_deleted", totalDeleted),
				slog.Int("batches_completed", batchCount),
				slog.Duration("duration", time.Since(startTime)))

			return
		case <-time.After(batchSleepDuration):
		}
	}

	if totalDeleted > 0 {
		s.logger.Info("Cleaned up expired event ids",
			slog.Int64("rows_deleted", totalDeleted),
			slog.Int("batches_completed", batchCount),
			slog.Duration("duration", time.Since(startTime)))
	}
}
