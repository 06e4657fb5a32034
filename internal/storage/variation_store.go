package storage

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/aioutlet/product-service/internal/catalog"
	"github.com/aioutlet/product-service/internal/variations"
)

var _ variations.Store = (*ProductStore)(nil)

// CreateParentWithChildren persists a variation family in one transaction,
// linking every child to the parent's assigned id. The children's SKU and
// attribute-tuple uniqueness is enforced by the partial unique indexes, so a
// collision anywhere rolls back the whole family.
func (s *ProductStore) CreateParentWithChildren(ctx context.Context, parent *catalog.Product, children []*catalog.Product) error {
	tx, err := s.conn.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", classifyError(err))
	}

	defer func() {
		_ = tx.Rollback()
	}()

	now := time.Now().UTC()
	stampProduct(parent, now)

	if err := s.insertProduct(ctx, tx, parent); err != nil {
		return err
	}

	for _, child := range children {
		child.ParentID = parent.ID
		stampProduct(child, now)

		if err := s.insertProduct(ctx, tx, child); err != nil {
			return err
		}
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("failed to commit variation family: %w", classifyError(err))
	}

	return nil
}

// AddChild persists one new child and bumps the parent's variation count in
// the same transaction. The count update doubles as the liveness check on the
// parent row.
func (s *ProductStore) AddChild(ctx context.Context, child *catalog.Product) error {
	tx, err := s.conn.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", classifyError(err))
	}

	defer func() {
		_ = tx.Rollback()
	}()

	result, err := tx.ExecContext(ctx,
		`UPDATE products SET variation_count = variation_count + 1, updated_at = NOW()
		 WHERE id = $1 AND is_active AND variation_type = 'parent'`,
		child.ParentID,
	)
	if err != nil {
		return fmt.Errorf("failed to bump variation count of parent %s: %w", child.ParentID, classifyError(err))
	}

	affected, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to get rows affected: %w", err)
	}

	if affected == 0 {
		return fmt.Errorf("%w: parent product %s", catalog.ErrNotFound, child.ParentID)
	}

	stampProduct(child, time.Now().UTC())

	if err := s.insertProduct(ctx, tx, child); err != nil {
		return err
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("failed to commit child creation: %w", classifyError(err))
	}

	return nil
}

// SoftDeleteChild deactivates one child and decrements the parent's variation
// count, clamped at zero, in the same transaction.
func (s *ProductStore) SoftDeleteChild(ctx context.Context, childID, actor string) error {
	tx, err := s.conn.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", classifyError(err))
	}

	defer func() {
		_ = tx.Rollback()
	}()

	historyEntry, err := json.Marshal([]historyRecord{{
		Actor:     actor,
		Timestamp: time.Now().UTC(),
		Changes:   map[string]any{"isActive": false},
	}})
	if err != nil {
		return fmt.Errorf("failed to serialize history entry: %w", err)
	}

	var parentID string

	err = tx.QueryRowContext(ctx,
		`UPDATE products
		 SET is_active = FALSE, updated_at = NOW(), updated_by = $2, history = history || $3::jsonb
		 WHERE id = $1 AND is_active AND variation_type = 'child'
		 RETURNING parent_id`,
		childID, actor, historyEntry,
	).Scan(&parentID)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return fmt.Errorf("%w: child product %s", catalog.ErrNotFound, childID)
		}

		return fmt.Errorf("failed to deactivate child %s: %w", childID, classifyError(err))
	}

	_, err = tx.ExecContext(ctx,
		`UPDATE products SET variation_count = GREATEST(variation_count - 1, 0), updated_at = NOW()
		 WHERE id = $1`,
		parentID,
	)
	if err != nil {
		return fmt.Errorf("failed to drop variation count of parent %s: %w", parentID, classifyError(err))
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("failed to commit child deletion: %w", classifyError(err))
	}

	return nil
}

// ListChildren returns a parent's children in creation order.
func (s *ProductStore) ListChildren(ctx context.Context, parentID string, activeOnly bool) ([]catalog.Product, error) {
	query := `SELECT ` + productColumns + ` FROM products WHERE parent_id = $1`
	if activeOnly {
		query += ` AND is_active`
	}

	query += ` ORDER BY created_at, id`

	rows, err := s.conn.QueryContext(ctx, query, parentID)
	if err != nil {
		return nil, fmt.Errorf("failed to list children of %s: %w", parentID, classifyError(err))
	}

	products, err := scanProducts(rows)
	if err != nil {
		return nil, fmt.Errorf("failed to scan children of %s: %w", parentID, classifyError(err))
	}

	return products, nil
}

// stampProduct fills identity and timestamps ahead of an insert.
func stampProduct(product *catalog.Product, now time.Time) {
	if product.ID == "" {
		product.ID = newProductID()
	}

	if product.CreatedAt.IsZero() {
		product.CreatedAt = now
	}

	product.UpdatedAt = product.CreatedAt

	if product.Availability.State == "" {
		product.Availability.State = catalog.AvailabilityStateFor(
			product.Availability.AvailableQuantity,
			product.Availability.LowStockThreshold,
		)
	}
}
