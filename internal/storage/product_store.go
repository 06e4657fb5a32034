package storage

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/lib/pq"

	"github.com/aioutlet/product-service/internal/catalog"
)

type (
	// ProductStore implements catalog.Store with a PostgreSQL backend, plus
	// the narrower store interfaces declared by the projection, badge,
	// variation, and bulk-import packages.
	//
	// Projection mutations are single atomic UPDATE statements; concurrent
	// events for the same product are linearized by row-level locking, never
	// by read-modify-write cycles in Go. The inbound event idempotency ledger
	// is checked inside the same transaction as the mutation it guards, and a
	// background goroutine prunes expired ledger entries.
	ProductStore struct {
		conn   *Connection
		logger *slog.Logger

		dedupEnabled    bool
		dedupTTL        time.Duration
		cleanupInterval time.Duration

		cleanupStop chan struct{} // Signal to stop cleanup goroutine
		cleanupDone chan struct{} // Signal cleanup has stopped
		closeOnce   sync.Once
	}

	// ProductStoreOption configures optional ProductStore behavior.
	ProductStoreOption func(*ProductStore)

	// rowScanner abstracts *sql.Row and *sql.Rows for the shared scan path.
	rowScanner interface {
		Scan(dest ...any) error
	}
)

var _ catalog.Store = (*ProductStore)(nil)

// WithEventDedup overrides the idempotency ledger switch and TTL.
func WithEventDedup(enabled bool, ttl time.Duration) ProductStoreOption {
	return func(s *ProductStore) {
		s.dedupEnabled = enabled
		if ttl > 0 {
			s.dedupTTL = ttl
		}
	}
}

// WithCleanupInterval overrides the ledger cleanup period.
func WithCleanupInterval(interval time.Duration) ProductStoreOption {
	return func(s *ProductStore) {
		if interval > 0 {
			s.cleanupInterval = interval
		}
	}
}

// NewProductStore creates a PostgreSQL-backed product store and starts the
// ledger cleanup goroutine. The goroutine stops gracefully on Close().
func NewProductStore(conn *Connection, logger *slog.Logger, opts ...ProductStoreOption) (*ProductStore, error) {
	if conn == nil {
		return nil, ErrNoDatabaseConnection
	}

	store := &ProductStore{
		conn:            conn,
		logger:          logger,
		dedupEnabled:    true,
		dedupTTL:        defaultDedupTTL,
		cleanupInterval: defaultCleanupInterval,
		cleanupStop:     make(chan struct{}),
		cleanupDone:     make(chan struct{}),
	}

	for _, opt := range opts {
		opt(store)
	}

	go store.runCleanup()

	return store, nil
}

// Close stops the cleanup goroutine. Safe to call multiple times. The shared
// connection is owned by the caller and stays open.
func (s *ProductStore) Close() error {
	s.closeOnce.Do(func() {
		close(s.cleanupStop)
		<-s.cleanupDone
	})

	return nil
}

// HealthCheck implements catalog.Store.
func (s *ProductStore) HealthCheck(ctx context.Context) error {
	if s.conn == nil {
		return ErrNoDatabaseConnection
	}

	return s.conn.HealthCheck(ctx)
}

// productColumns is the canonical select list shared by every product read.
// attribute_key stays out: it is derived from variant_attributes and exists
// only for the sibling-uniqueness constraint.
const productColumns = `
	id, sku, variation_type, parent_id, variant_attributes,
	variation_count, name, description, brand, price,
	department, category, subcategory, product_type,
	images, tags, search_keywords, specifications, badges,
	average_rating, total_reviews, verified_purchases,
	rating_count_1, rating_count_2, rating_count_3, rating_count_4, rating_count_5,
	availability_state, available_quantity, low_stock_threshold, availability_updated_at,
	total_questions, answered_questions, qa_updated_at, sales_metrics, view_metrics,
	size_chart_id, is_active, created_at, updated_at, created_by, updated_by, history`

// CreateProduct implements catalog.Store. Assigns an id when the caller did
// not, stamps creation time, and derives the child attribute key used by the
// sibling-uniqueness constraint.
func (s *ProductStore) CreateProduct(ctx context.Context, product *catalog.Product) error {
	if product == nil {
		return fmt.Errorf("%w: product is nil", catalog.ErrValidation)
	}

	stampProduct(product, time.Now().UTC())

	return s.insertProduct(ctx, s.conn, product)
}

func newProductID() string {
	return uuid.New().String()
}

// execer abstracts *Connection and *sql.Tx for statements shared between
// single inserts and the bulk transactional path.
type execer interface {
	ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error)
}

func (s *ProductStore) insertProduct(ctx context.Context, db execer, product *catalog.Product) error {
	attrs, err := json.Marshal(toAttributeRecords(product.VariantAttributes))
	if err != nil {
		return fmt.Errorf("failed to serialize variant attributes: %w", err)
	}

	specs, err := json.Marshal(orEmptyMap(product.Specifications))
	if err != nil {
		return fmt.Errorf("failed to serialize specifications: %w", err)
	}

	badges, err := json.Marshal(toBadgeRecords(product.Badges))
	if err != nil {
		return fmt.Errorf("failed to serialize badges: %w", err)
	}

	history, err := json.Marshal(toHistoryRecords(product.History))
	if err != nil {
		return fmt.Errorf("failed to serialize history: %w", err)
	}

	attributeKey := ""
	if product.IsChild() {
		attributeKey = catalog.AttributeKey(product.VariantAttributes)
	}

	query := `
		INSERT INTO products (
			id, sku, variation_type, parent_id, attribute_key, variant_attributes,
			variation_count, name, description, brand, price,
			department, category, subcategory, product_type,
			images, tags, search_keywords, specifications, badges,
			availability_state, available_quantity, low_stock_threshold,
			size_chart_id, is_active, created_at, updated_at, created_by, updated_by, history
		) VALUES (
			$1, $2, $3, $4, $5, $6,
			$7, $8, $9, $10, $11,
			$12, $13, $14, $15,
			$16, $17, $18, $19, $20,
			$21, $22, $23,
			$24, $25, $26, $27, $28, $29, $30
		)
	`

	_, err = db.ExecContext(
		ctx,
		query,
		product.ID,
		nullIfEmpty(product.SKU),
		string(product.VariationType),
		nullIfEmpty(product.ParentID),
		attributeKey,
		attrs,
		product.VariationCount,
		product.Name,
		product.Description,
		product.Brand,
		product.Price,
		product.Department,
		product.Category,
		product.Subcategory,
		product.ProductType,
		pq.Array(orEmptySlice(product.Images)),
		pq.Array(orEmptySlice(product.Tags)),
		pq.Array(orEmptySlice(product.SearchKeywords)),
		specs,
		badges,
		string(product.Availability.State),
		product.Availability.AvailableQuantity,
		product.Availability.LowStockThreshold,
		nullIfEmpty(product.SizeChartID),
		product.IsActive,
		product.CreatedAt,
		product.UpdatedAt,
		product.CreatedBy,
		product.UpdatedBy,
		history,
	)
	if err != nil {
		return fmt.Errorf("failed to insert product %s: %w", product.ID, classifyError(err))
	}

	return nil
}

// GetProduct implements catalog.Store.
func (s *ProductStore) GetProduct(ctx context.Context, id string) (*catalog.Product, error) {
	query := `SELECT ` + productColumns + ` FROM products WHERE id = $1`

	product, err := scanProduct(s.conn.QueryRowContext(ctx, query, id))
	if err != nil {
		return nil, fmt.Errorf("failed to get product %s: %w", id, classifyError(err))
	}

	return product, nil
}

// FindBySKU implements catalog.Store. SKU comparison is case-insensitive;
// absence is not an error.
func (s *ProductStore) FindBySKU(ctx context.Context, sku string, activeOnly bool) (*catalog.Product, error) {
	query := `SELECT ` + productColumns + ` FROM products WHERE lower(sku) = lower($1)`
	if activeOnly {
		query += ` AND is_active`
	}

	// Inactive products may share a SKU; take the most recent.
	query += ` ORDER BY is_active DESC, updated_at DESC LIMIT 1`

	product, err := scanProduct(s.conn.QueryRowContext(ctx, query, sku))
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, nil
		}

		return nil, fmt.Errorf("failed to find product by sku %s: %w", sku, classifyError(err))
	}

	return product, nil
}

// InsertMany implements catalog.Store. All inserts share one transaction; a
// single SKU collision rolls back the whole batch.
func (s *ProductStore) InsertMany(ctx context.Context, products []*catalog.Product) ([]string, error) {
	if len(products) == 0 {
		return []string{}, nil
	}

	tx, err := s.conn.BeginTx(ctx, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to begin transaction: %w", classifyError(err))
	}

	defer func() {
		_ = tx.Rollback()
	}()

	now := time.Now().UTC()
	ids := make([]string, 0, len(products))

	for _, product := range products {
		stampProduct(product, now)

		if err := s.insertProduct(ctx, tx, product); err != nil {
			return nil, err
		}

		ids = append(ids, product.ID)
	}

	if err := tx.Commit(); err != nil {
		return nil, fmt.Errorf("failed to commit batch insert: %w", classifyError(err))
	}

	return ids, nil
}

// UpdateProduct implements catalog.Store. Builds a SET clause from the non-nil
// fields, appends one history entry, and returns the updated row. Updates
// target active products only.
func (s *ProductStore) UpdateProduct(ctx context.Context, id string, fields catalog.FieldUpdates, actor string) (*catalog.Product, error) {
	changes := fields.Changes()
	if len(changes) == 0 {
		return nil, fmt.Errorf("%w: no fields to update", catalog.ErrValidation)
	}

	assignments, args, paramIndex, err := buildUpdateAssignments(fields)
	if err != nil {
		return nil, err
	}

	now := time.Now().UTC()

	historyEntry, err := json.Marshal([]historyRecord{{
		Actor:     actor,
		Timestamp: now,
		Changes:   changes,
	}})
	if err != nil {
		return nil, fmt.Errorf("failed to serialize history entry: %w", err)
	}

	assignments = append(assignments,
		fmt.Sprintf("updated_at = $%d", paramIndex),
		fmt.Sprintf("updated_by = $%d", paramIndex+1),
		fmt.Sprintf("history = history || $%d::jsonb", paramIndex+2),
	)
	args = append(args, now, actor, historyEntry)
	paramIndex += 3

	query := fmt.Sprintf(`
		UPDATE products
		SET %s
		WHERE id = $%d AND is_active
		RETURNING %s
	`, strings.Join(assignments, ", "), paramIndex, productColumns)
	args = append(args, id)

	product, err := scanProduct(s.conn.QueryRowContext(ctx, query, args...))
	if err != nil {
		return nil, fmt.Errorf("failed to update product %s: %w", id, classifyError(err))
	}

	return product, nil
}

// buildUpdateAssignments translates FieldUpdates into SET fragments.
// Returns (assignments, args, nextParamIndex).
func buildUpdateAssignments(fields catalog.FieldUpdates) ([]string, []any, int, error) {
	var assignments []string

	var args []any

	paramIndex := 1

	setString := func(column string, value *string) {
		if value != nil {
			assignments = append(assignments, fmt.Sprintf("%s = $%d", column, paramIndex))
			args = append(args, *value)
			paramIndex++
		}
	}

	setString("name", fields.Name)
	setString("description", fields.Description)
	setString("brand", fields.Brand)

	if fields.Price != nil {
		assignments = append(assignments, fmt.Sprintf("price = $%d", paramIndex))
		args = append(args, *fields.Price)
		paramIndex++
	}

	setString("department", fields.Department)
	setString("category", fields.Category)
	setString("subcategory", fields.Subcategory)
	setString("product_type", fields.ProductType)

	setArray := func(column string, values []string) {
		if values != nil {
			assignments = append(assignments, fmt.Sprintf("%s = $%d", column, paramIndex))
			args = append(args, pq.Array(values))
			paramIndex++
		}
	}

	setArray("images", fields.Images)
	setArray("tags", fields.Tags)
	setArray("search_keywords", fields.SearchKeywords)

	if fields.Specifications != nil {
		specs, err := json.Marshal(fields.Specifications)
		if err != nil {
			return nil, nil, 0, fmt.Errorf("failed to serialize specifications: %w", err)
		}

		assignments = append(assignments, fmt.Sprintf("specifications = $%d", paramIndex))
		args = append(args, specs)
		paramIndex++
	}

	if fields.VariantAttributes != nil {
		attrs, err := json.Marshal(toAttributeRecords(fields.VariantAttributes))
		if err != nil {
			return nil, nil, 0, fmt.Errorf("failed to serialize variant attributes: %w", err)
		}

		assignments = append(assignments,
			fmt.Sprintf("variant_attributes = $%d", paramIndex),
			fmt.Sprintf("attribute_key = $%d", paramIndex+1),
		)
		args = append(args, attrs, catalog.AttributeKey(fields.VariantAttributes))
		paramIndex += 2
	}

	if fields.IsActive != nil {
		assignments = append(assignments, fmt.Sprintf("is_active = $%d", paramIndex))
		args = append(args, *fields.IsActive)
		paramIndex++
	}

	return assignments, args, paramIndex, nil
}

// Deactivate implements catalog.Store. Deactivating a missing or already
// inactive product reports NotFound.
func (s *ProductStore) Deactivate(ctx context.Context, id, actor string) error {
	now := time.Now().UTC()

	historyEntry, err := json.Marshal([]historyRecord{{
		Actor:     actor,
		Timestamp: now,
		Changes:   map[string]any{"isActive": false},
	}})
	if err != nil {
		return fmt.Errorf("failed to serialize history entry: %w", err)
	}

	query := `
		UPDATE products
		SET is_active = FALSE, updated_at = $2, updated_by = $3, history = history || $4::jsonb
		WHERE id = $1 AND is_active
	`

	result, err := s.conn.ExecContext(ctx, query, id, now, actor, historyEntry)
	if err != nil {
		return fmt.Errorf("failed to deactivate product %s: %w", id, classifyError(err))
	}

	affected, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to get rows affected: %w", err)
	}

	if affected == 0 {
		return fmt.Errorf("%w: product %s", catalog.ErrNotFound, id)
	}

	return nil
}

// Reactivate implements catalog.Store. The partial unique index on active
// SKUs rejects reactivation when another active product took the SKU.
func (s *ProductStore) Reactivate(ctx context.Context, id, actor string) error {
	now := time.Now().UTC()

	historyEntry, err := json.Marshal([]historyRecord{{
		Actor:     actor,
		Timestamp: now,
		Changes:   map[string]any{"isActive": true},
	}})
	if err != nil {
		return fmt.Errorf("failed to serialize history entry: %w", err)
	}

	query := `
		UPDATE products
		SET is_active = TRUE, updated_at = $2, updated_by = $3, history = history || $4::jsonb
		WHERE id = $1 AND NOT is_active
	`

	result, err := s.conn.ExecContext(ctx, query, id, now, actor, historyEntry)
	if err != nil {
		return fmt.Errorf("failed to reactivate product %s: %w", id, classifyError(err))
	}

	affected, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to get rows affected: %w", err)
	}

	if affected == 0 {
		// Distinguish a missing product from one that is already active.
		var isActive bool

		err := s.conn.QueryRowContext(ctx, `SELECT is_active FROM products WHERE id = $1`, id).Scan(&isActive)
		if err != nil {
			return fmt.Errorf("%w: product %s", catalog.ErrNotFound, id)
		}

		if isActive {
			return fmt.Errorf("%w: product %s", catalog.ErrAlreadyActive, id)
		}

		return fmt.Errorf("%w: product %s", catalog.ErrNotFound, id)
	}

	return nil
}

// AssignSizeChart implements catalog.Store.
func (s *ProductStore) AssignSizeChart(ctx context.Context, productID, chartID, actor string) error {
	now := time.Now().UTC()

	historyEntry, err := json.Marshal([]historyRecord{{
		Actor:     actor,
		Timestamp: now,
		Changes:   map[string]any{"sizeChartId": chartID},
	}})
	if err != nil {
		return fmt.Errorf("failed to serialize history entry: %w", err)
	}

	query := `
		UPDATE products
		SET size_chart_id = $2, updated_at = $3, updated_by = $4, history = history || $5::jsonb
		WHERE id = $1 AND is_active
		  AND EXISTS (SELECT 1 FROM size_charts WHERE id = $2)
	`

	result, err := s.conn.ExecContext(ctx, query, productID, chartID, now, actor, historyEntry)
	if err != nil {
		return fmt.Errorf("failed to assign size chart: %w", classifyError(err))
	}

	affected, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to get rows affected: %w", err)
	}

	if affected == 0 {
		var chartExists bool
		if err := s.conn.QueryRowContext(ctx,
			`SELECT EXISTS (SELECT 1 FROM size_charts WHERE id = $1)`, chartID,
		).Scan(&chartExists); err == nil && !chartExists {
			return fmt.Errorf("%w: size chart %s", catalog.ErrNotFound, chartID)
		}

		return fmt.Errorf("%w: product %s", catalog.ErrNotFound, productID)
	}

	return nil
}

// UnassignSizeChart implements catalog.Store. Clearing an unassigned chart is
// a no-op, not an error.
func (s *ProductStore) UnassignSizeChart(ctx context.Context, productID, actor string) error {
	now := time.Now().UTC()

	historyEntry, err := json.Marshal([]historyRecord{{
		Actor:     actor,
		Timestamp: now,
		Changes:   map[string]any{"sizeChartId": nil},
	}})
	if err != nil {
		return fmt.Errorf("failed to serialize history entry: %w", err)
	}

	query := `
		UPDATE products
		SET size_chart_id = NULL, updated_at = $2, updated_by = $3, history = history || $4::jsonb
		WHERE id = $1 AND is_active
	`

	result, err := s.conn.ExecContext(ctx, query, productID, now, actor, historyEntry)
	if err != nil {
		return fmt.Errorf("failed to unassign size chart: %w", classifyError(err))
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

func nullIfEmpty(value string) any {
	if value == "" {
		return nil
	}

	return value
}

func orEmptySlice(values []string) []string {
	if values == nil {
		return []string{}
	}

	return values
}

func orEmptyMap(values map[string]string) map[string]string {
	if values == nil {
		return map[string]string{}
	}

	return values
}
