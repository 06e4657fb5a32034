package storage

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/aioutlet/product-service/internal/badges"
	"github.com/aioutlet/product-service/internal/catalog"
)

// ruleColumns is the select list shared by every badge rule read.
const ruleColumns = `
	id, badge_type, name, description, logic, conditions,
	auto_remove, expires_after_seconds, enabled, priority, created_at, updated_at`

var _ badges.Store = (*ProductStore)(nil)

// SeedRules upserts the configured rule set. Existing rules are overwritten
// by id; rules absent from the seed are left untouched so operators can
// disable rather than lose them.
func (s *ProductStore) SeedRules(ctx context.Context, rules []badges.Rule) error {
	if len(rules) == 0 {
		return nil
	}

	tx, err := s.conn.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", classifyError(err))
	}

	defer func() {
		_ = tx.Rollback()
	}()

	query := `
		INSERT INTO badge_rules (
			id, badge_type, name, description, logic, conditions,
			auto_remove, expires_after_seconds, enabled, priority
		) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10)
		ON CONFLICT (id) DO UPDATE SET
			badge_type = EXCLUDED.badge_type,
			name = EXCLUDED.name,
			description = EXCLUDED.description,
			logic = EXCLUDED.logic,
			conditions = EXCLUDED.conditions,
			auto_remove = EXCLUDED.auto_remove,
			expires_after_seconds = EXCLUDED.expires_after_seconds,
			enabled = EXCLUDED.enabled,
			priority = EXCLUDED.priority,
			updated_at = NOW()
	`

	for _, rule := range rules {
		if err := rule.Validate(); err != nil {
			return err
		}

		conditions, err := json.Marshal(rule.Conditions)
		if err != nil {
			return fmt.Errorf("failed to serialize conditions of rule %s: %w", rule.ID, err)
		}

		logic := rule.Logic
		if logic == "" {
			logic = badges.LogicAnd
		}

		_, err = tx.ExecContext(ctx, query,
			rule.ID,
			string(rule.BadgeType),
			rule.Name,
			rule.Description,
			string(logic),
			conditions,
			rule.AutoRemoveWhenInvalid,
			int64(rule.ExpiresAfter/time.Second),
			rule.Enabled,
			rule.Priority,
		)
		if err != nil {
			return fmt.Errorf("failed to upsert rule %s: %w", rule.ID, classifyError(err))
		}
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("failed to commit rule seed: %w", classifyError(err))
	}

	return nil
}

// ListRules returns badge rules ordered by priority (highest first), then id.
func (s *ProductStore) ListRules(ctx context.Context, enabledOnly bool) ([]badges.Rule, error) {
	query := `SELECT ` + ruleColumns + ` FROM badge_rules`
	if enabledOnly {
		query += ` WHERE enabled`
	}

	query += ` ORDER BY priority DESC, id`

	rows, err := s.conn.QueryContext(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("failed to list badge rules: %w", classifyError(err))
	}

	defer func() {
		_ = rows.Close()
	}()

	rules := []badges.Rule{}

	for rows.Next() {
		rule, err := scanRule(rows)
		if err != nil {
			return nil, err
		}

		rules = append(rules, *rule)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to iterate badge rule rows: %w", err)
	}

	return rules, nil
}

// GetRule fetches one badge rule by id.
func (s *ProductStore) GetRule(ctx context.Context, id string) (*badges.Rule, error) {
	query := `SELECT ` + ruleColumns + ` FROM badge_rules WHERE id = $1`

	rule, err := scanRule(s.conn.QueryRowContext(ctx, query, id))
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, fmt.Errorf("%w: badge rule %s", catalog.ErrNotFound, id)
		}

		return nil, fmt.Errorf("failed to get badge rule %s: %w", id, classifyError(err))
	}

	return rule, nil
}

// SetRuleEnabled flips one rule's enabled flag.
func (s *ProductStore) SetRuleEnabled(ctx context.Context, id string, enabled bool) error {
	result, err := s.conn.ExecContext(ctx,
		`UPDATE badge_rules SET enabled = $2, updated_at = NOW() WHERE id = $1`,
		id, enabled,
	)
	if err != nil {
		return fmt.Errorf("failed to update badge rule %s: %w", id, classifyError(err))
	}

	affected, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to get rows affected: %w", err)
	}

	if affected == 0 {
		return fmt.Errorf("%w: badge rule %s", catalog.ErrNotFound, id)
	}

	return nil
}

func scanRule(scanner rowScanner) (*badges.Rule, error) {
	var (
		rule            badges.Rule
		badgeType       string
		logic           string
		conditionsJSON  []byte
		expiresAfterSec int64
	)

	err := scanner.Scan(
		&rule.ID,
		&badgeType,
		&rule.Name,
		&rule.Description,
		&logic,
		&conditionsJSON,
		&rule.AutoRemoveWhenInvalid,
		&expiresAfterSec,
		&rule.Enabled,
		&rule.Priority,
		&rule.CreatedAt,
		&rule.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}

	rule.BadgeType = catalog.BadgeType(badgeType)
	rule.Logic = badges.Logic(logic)
	rule.ExpiresAfter = time.Duration(expiresAfterSec) * time.Second
	rule.CreatedAt = rule.CreatedAt.UTC()
	rule.UpdatedAt = rule.UpdatedAt.UTC()

	if err := json.Unmarshal(conditionsJSON, &rule.Conditions); err != nil {
		return nil, fmt.Errorf("failed to decode conditions of rule %s: %w", rule.ID, err)
	}

	return &rule, nil
}
