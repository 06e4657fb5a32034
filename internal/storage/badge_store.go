package storage

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/aioutlet/product-service/internal/catalog"
)

// AddBadge appends a badge to an active product. The containment guard makes
// the duplicate check and the append one atomic statement, so two concurrent
// assigns of the same type cannot both land.
func (s *ProductStore) AddBadge(ctx context.Context, productID string, badge catalog.Badge) error {
	if !badge.Type.IsValid() {
		return fmt.Errorf("%w: unknown badge type %q", catalog.ErrValidation, badge.Type)
	}

	if badge.AssignedAt.IsZero() {
		badge.AssignedAt = time.Now().UTC()
	}

	payload, err := json.Marshal(toBadgeRecords([]catalog.Badge{badge}))
	if err != nil {
		return fmt.Errorf("failed to serialize badge: %w", err)
	}

	query := `
		UPDATE products
		SET badges = badges || $3::jsonb, updated_at = NOW()
		WHERE id = $1 AND is_active
		  AND NOT badges @> jsonb_build_array(jsonb_build_object('type', $2::text))
	`

	result, err := s.conn.ExecContext(ctx, query, productID, string(badge.Type), payload)
	if err != nil {
		return fmt.Errorf("failed to add badge to product %s: %w", productID, classifyError(err))
	}

	affected, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to get rows affected: %w", err)
	}

	if affected == 0 {
		return s.classifyBadgeMiss(ctx, productID, badge.Type, true)
	}

	return nil
}

// RemoveBadgeByType drops the badge of the given type from an active product.
// With automatedOnly set, a manually assigned badge is left in place and the
// call reports removed=false with no error; rule evaluation uses this so a
// concurrent manual assignment is never undone.
func (s *ProductStore) RemoveBadgeByType(ctx context.Context, productID string, badgeType catalog.BadgeType, automatedOnly bool) (bool, error) {
	query := `
		UPDATE products
		SET badges = COALESCE((
			SELECT jsonb_agg(badge)
			FROM jsonb_array_elements(products.badges) AS badge
			WHERE badge->>'type' <> $2
		), '[]'::jsonb),
		updated_at = NOW()
		WHERE id = $1 AND is_active
		  AND badges @> jsonb_build_array(jsonb_build_object('type', $2::text))
	`

	if automatedOnly {
		query += `
		  AND NOT EXISTS (
			SELECT 1 FROM jsonb_array_elements(badges) AS badge
			WHERE badge->>'type' = $2 AND COALESCE(badge->>'assignedBy', '') <> ''
		  )
		`
	}

	result, err := s.conn.ExecContext(ctx, query, productID, string(badgeType))
	if err != nil {
		return false, fmt.Errorf("failed to remove badge from product %s: %w", productID, classifyError(err))
	}

	affected, err := result.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("failed to get rows affected: %w", err)
	}

	if affected == 0 {
		miss := s.classifyBadgeMiss(ctx, productID, badgeType, false)
		if automatedOnly && miss == nil {
			// Badge present but manual; leaving it is the intended outcome.
			return false, nil
		}

		if miss == nil {
			miss = fmt.Errorf("%w: %s on product %s", catalog.ErrBadgeNotPresent, badgeType, productID)
		}

		return false, miss
	}

	return true, nil
}

// classifyBadgeMiss explains a zero-row badge mutation. forAdd flips the
// meaning of "badge present" between duplicate (add) and fine (remove).
// Returns nil when the badge is present and manual, which only the
// automatedOnly removal path treats as a non-error.
func (s *ProductStore) classifyBadgeMiss(ctx context.Context, productID string, badgeType catalog.BadgeType, forAdd bool) error {
	var hasBadge bool

	err := s.conn.QueryRowContext(ctx,
		`SELECT badges @> jsonb_build_array(jsonb_build_object('type', $2::text))
		 FROM products WHERE id = $1 AND is_active`,
		productID, string(badgeType),
	).Scan(&hasBadge)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return fmt.Errorf("%w: product %s", catalog.ErrNotFound, productID)
		}

		return fmt.Errorf("failed to inspect badges of product %s: %w", productID, classifyError(err))
	}

	if forAdd {
		if hasBadge {
			return fmt.Errorf("%w: %s on product %s", catalog.ErrDuplicateBadge, badgeType, productID)
		}

		return fmt.Errorf("%w: badge assignment raced on product %s", catalog.ErrConflict, productID)
	}

	if !hasBadge {
		return fmt.Errorf("%w: %s on product %s", catalog.ErrBadgeNotPresent, badgeType, productID)
	}

	return nil
}

// RemoveExpiredBadges sweeps every active product, drops badges whose expiry
// has passed, and returns what was removed so the caller can announce each
// removal.
func (s *ProductStore) RemoveExpiredBadges(ctx context.Context) ([]catalog.ExpiredBadgeRemoval, error) {
	query := `
		WITH expired AS (
			SELECT id, jsonb_agg(badge) AS removed
			FROM products, jsonb_array_elements(badges) AS badge
			WHERE is_active
			  AND badge->>'expiresAt' IS NOT NULL
			  AND (badge->>'expiresAt')::timestamptz <= NOW()
			GROUP BY id
		)
		UPDATE products
		SET badges = COALESCE((
			SELECT jsonb_agg(badge)
			FROM jsonb_array_elements(products.badges) AS badge
			WHERE badge->>'expiresAt' IS NULL
			   OR (badge->>'expiresAt')::timestamptz > NOW()
		), '[]'::jsonb),
		updated_at = NOW()
		FROM expired
		WHERE products.id = expired.id
		RETURNING products.id, expired.removed
	`

	rows, err := s.conn.QueryContext(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("failed to remove expired badges: %w", classifyError(err))
	}

	defer func() {
		_ = rows.Close()
	}()

	removals := []catalog.ExpiredBadgeRemoval{}

	for rows.Next() {
		var (
			productID   string
			removedJSON []byte
		)

		if err := rows.Scan(&productID, &removedJSON); err != nil {
			return nil, fmt.Errorf("failed to scan expired badge row: %w", err)
		}

		var records []badgeRecord
		if err := json.Unmarshal(removedJSON, &records); err != nil {
			return nil, fmt.Errorf("failed to decode removed badges for product %s: %w", productID, err)
		}

		removals = append(removals, catalog.ExpiredBadgeRemoval{
			ProductID: productID,
			Badges:    fromBadgeRecords(records),
		})
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to iterate expired badge rows: %w", err)
	}

	return removals, nil
}

// BadgeStatistics aggregates badge counts across active products.
func (s *ProductStore) BadgeStatistics(ctx context.Context) (*catalog.BadgeStatistics, error) {
	query := `
		SELECT
			badge->>'type' AS badge_type,
			COUNT(*) AS total,
			COUNT(*) FILTER (WHERE COALESCE(badge->>'assignedBy', '') = '') AS automated,
			COUNT(*) FILTER (WHERE COALESCE(badge->>'assignedBy', '') <> '') AS manual,
			COUNT(*) FILTER (
				WHERE badge->>'expiresAt' IS NOT NULL
				  AND (badge->>'expiresAt')::timestamptz <= NOW()
			) AS expired
		FROM products, jsonb_array_elements(badges) AS badge
		WHERE is_active
		GROUP BY badge->>'type'
		ORDER BY badge->>'type'
	`

	rows, err := s.conn.QueryContext(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("failed to aggregate badge statistics: %w", classifyError(err))
	}

	defer func() {
		_ = rows.Close()
	}()

	stats := &catalog.BadgeStatistics{ByType: []catalog.BadgeTypeStatistics{}}

	for rows.Next() {
		var (
			badgeType string
			entry     catalog.BadgeTypeStatistics
		)

		if err := rows.Scan(&badgeType, &entry.Total, &entry.Automated, &entry.Manual, &entry.Expired); err != nil {
			return nil, fmt.Errorf("failed to scan badge statistics row: %w", err)
		}

		entry.Type = catalog.BadgeType(badgeType)
		stats.ByType = append(stats.ByType, entry)
		stats.TotalAssigned += entry.Total
		stats.TotalAutomated += entry.Automated
		stats.TotalManual += entry.Manual
		stats.TotalExpired += entry.Expired
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to iterate badge statistics rows: %w", err)
	}

	err = s.conn.QueryRowContext(ctx,
		`SELECT COUNT(*) FROM products WHERE is_active AND jsonb_array_length(badges) > 0`,
	).Scan(&stats.ProductsWithBadges)
	if err != nil {
		return nil, fmt.Errorf("failed to count products with badges: %w", classifyError(err))
	}

	return stats, nil
}
