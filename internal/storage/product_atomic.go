package storage

import (
	"context"
	"encoding/json"
	"fmt"
	"sort"
	"strings"
	"time"

	"github.com/lib/pq"

	"github.com/aioutlet/product-service/internal/catalog"
)

// Generic atomic field updates. The projection and badge engines mutate
// products through specialized single-statement updates (clamping, dedup
// ledgers); AtomicSet, AtomicPush, and AtomicInc are the raw primitives
// underneath them, exposed for callers that need a one-shot field write
// without the admin edit path's history bookkeeping. Fields are named by
// their domain (JSON) paths and only whitelisted paths translate to columns,
// so a caller can never reach an arbitrary column.

// atomicSetField binds one settable field path to its column and a converter
// that validates the supplied value.
type atomicSetField struct {
	column string
	bind   func(value any) (any, error)
}

func bindString(value any) (any, error) {
	text, ok := value.(string)
	if !ok {
		return nil, fmt.Errorf("expected a string, got %T", value)
	}

	return text, nil
}

func bindNumber(value any) (any, error) {
	switch number := value.(type) {
	case int:
		return number, nil
	case int64:
		return number, nil
	case float64:
		return number, nil
	default:
		return nil, fmt.Errorf("expected a number, got %T", value)
	}
}

func bindStringSlice(value any) (any, error) {
	elements, ok := value.([]string)
	if !ok {
		return nil, fmt.Errorf("expected a string slice, got %T", value)
	}

	return pq.Array(elements), nil
}

// atomicSetFields is the AtomicSet whitelist. Soft-delete state is absent on
// purpose: activation flips go through Deactivate/Reactivate, which own the
// SKU re-check and the history entry.
var atomicSetFields = map[string]atomicSetField{
	"name":           {column: "name", bind: bindString},
	"description":    {column: "description", bind: bindString},
	"brand":          {column: "brand", bind: bindString},
	"price":          {column: "price", bind: bindNumber},
	"department":     {column: "department", bind: bindString},
	"category":       {column: "category", bind: bindString},
	"subcategory":    {column: "subcategory", bind: bindString},
	"productType":    {column: "product_type", bind: bindString},
	"images":         {column: "images", bind: bindStringSlice},
	"tags":           {column: "tags", bind: bindStringSlice},
	"searchKeywords": {column: "search_keywords", bind: bindStringSlice},
}

// atomicPushColumns maps appendable text-array field paths to their columns.
// Badge pushes are handled separately because badges live in JSONB.
var atomicPushColumns = map[string]string{
	"images":         "images",
	"tags":           "tags",
	"searchKeywords": "search_keywords",
}

// atomicIncColumns maps incrementable counter field paths to their columns.
var atomicIncColumns = map[string]string{
	"variationCount":                 "variation_count",
	"availability.availableQuantity": "available_quantity",
	"qaStats.totalQuestions":         "total_questions",
	"qaStats.answeredQuestions":      "answered_questions",
	"reviewAggregates.totalReviews":  "total_reviews",
}

// AtomicSet writes a set of whitelisted fields on one product in a single
// statement and reports how many rows changed: 1 on success, 0 when no
// product carries the id. A field outside the whitelist or a value of the
// wrong type is a validation error and nothing is written.
func (s *ProductStore) AtomicSet(ctx context.Context, id string, fields map[string]any) (int64, error) {
	if len(fields) == 0 {
		return 0, fmt.Errorf("%w: no fields to set", catalog.ErrValidation)
	}

	names := make([]string, 0, len(fields))
	for name := range fields {
		names = append(names, name)
	}

	// Deterministic statement shape regardless of map order.
	sort.Strings(names)

	assignments := make([]string, 0, len(fields)+1)
	args := []any{id}
	paramIndex := 2

	for _, name := range names {
		field, ok := atomicSetFields[name]
		if !ok {
			return 0, fmt.Errorf("%w: field %q is not atomically settable", catalog.ErrValidation, name)
		}

		bound, err := field.bind(fields[name])
		if err != nil {
			return 0, fmt.Errorf("%w: field %q: %v", catalog.ErrValidation, name, err)
		}

		assignments = append(assignments, fmt.Sprintf("%s = $%d", field.column, paramIndex))
		args = append(args, bound)
		paramIndex++
	}

	assignments = append(assignments, fmt.Sprintf("updated_at = $%d", paramIndex))
	args = append(args, time.Now().UTC())

	query := fmt.Sprintf("UPDATE products SET %s WHERE id = $1", strings.Join(assignments, ", "))

	result, err := s.conn.ExecContext(ctx, query, args...)
	if err != nil {
		return 0, fmt.Errorf("failed to set fields on product %s: %w", id, classifyError(err))
	}

	modified, err := result.RowsAffected()
	if err != nil {
		return 0, fmt.Errorf("failed to get rows affected: %w", err)
	}

	return modified, nil
}

// AtomicPush appends one element to an array field on one product. Text-array
// fields take a string element; "badges" takes a catalog.Badge and appends it
// to the badges JSONB array. Pushing onto a missing product reports NotFound.
func (s *ProductStore) AtomicPush(ctx context.Context, id, field string, value any) error {
	var (
		assignment string
		element    any
	)

	switch {
	case field == "badges":
		badge, ok := value.(catalog.Badge)
		if !ok {
			return fmt.Errorf("%w: field %q takes a catalog.Badge, got %T", catalog.ErrValidation, field, value)
		}

		record, err := json.Marshal(toBadgeRecords([]catalog.Badge{badge}))
		if err != nil {
			return fmt.Errorf("failed to serialize badge: %w", err)
		}

		assignment = "badges = badges || $2::jsonb"
		element = record
	default:
		column, ok := atomicPushColumns[field]
		if !ok {
			return fmt.Errorf("%w: field %q is not atomically pushable", catalog.ErrValidation, field)
		}

		text, ok := value.(string)
		if !ok {
			return fmt.Errorf("%w: field %q takes a string element, got %T", catalog.ErrValidation, field, value)
		}

		assignment = fmt.Sprintf("%s = array_append(%s, $2)", column, column)
		element = text
	}

	query := fmt.Sprintf("UPDATE products SET %s, updated_at = $3 WHERE id = $1", assignment)

	result, err := s.conn.ExecContext(ctx, query, id, element, time.Now().UTC())
	if err != nil {
		return fmt.Errorf("failed to push %s on product %s: %w", field, id, classifyError(err))
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

// AtomicInc shifts a counter field on one product by delta, which may be
// negative. The generic primitive does not clamp; counters with floor
// semantics (question counts) go through the projection store's specialized
// updates. Incrementing a missing product reports NotFound.
func (s *ProductStore) AtomicInc(ctx context.Context, id, field string, delta int) error {
	column, ok := atomicIncColumns[field]
	if !ok {
		return fmt.Errorf("%w: field %q is not atomically incrementable", catalog.ErrValidation, field)
	}

	query := fmt.Sprintf("UPDATE products SET %s = %s + $2, updated_at = $3 WHERE id = $1", column, column)

	result, err := s.conn.ExecContext(ctx, query, id, delta, time.Now().UTC())
	if err != nil {
		return fmt.Errorf("failed to increment %s on product %s: %w", field, id, classifyError(err))
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
