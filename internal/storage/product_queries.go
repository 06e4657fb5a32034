package storage

import (
	"context"
	"fmt"
	"strings"

	"github.com/lib/pq"

	"github.com/aioutlet/product-service/internal/catalog"
)

const (
	defaultPageLimit = 50
	maxPageLimit     = 200
)

// searchRankWeights feeds ts_rank's weight array, ordered {D, C, B, A}.
// Names carry weight A, tags and search keywords B, descriptions C.
const searchRankWeights = "{0.1, 2.0, 5.0, 10.0}"

// requiredIndexes are the indexes migrations must have created before the
// service takes traffic. VerifyIndexes checks them at startup.
var requiredIndexes = []string{
	"uq_products_active_sku",
	"uq_products_active_child_attrs",
	"idx_products_active_category_price",
	"idx_products_active_department_price",
	"idx_products_active_rating",
	"idx_products_active_created",
	"idx_products_brand",
	"idx_products_tags",
	"idx_products_badges",
	"idx_products_parent",
	"idx_products_search",
}

// IndexInfo describes one index on the products table.
type IndexInfo struct {
	Name       string `json:"name"`
	Definition string `json:"definition"`
}

// totalScanner adapts scanProduct to rows carrying a trailing
// COUNT(*) OVER() AS total_count column.
type totalScanner struct {
	rows  rowScanner
	total *int
}

func (ts totalScanner) Scan(dest ...any) error {
	return ts.rows.Scan(append(dest, ts.total)...)
}

// FindMany implements catalog.Store. Results are newest first; the returned
// total counts every match so callers can page.
func (s *ProductStore) FindMany(ctx context.Context, filter catalog.ProductFilter, page catalog.Page) ([]catalog.Product, int, error) {
	query := `SELECT ` + productColumns + `, COUNT(*) OVER() AS total_count FROM products`

	conditions, args, paramIndex := buildProductFilterConditions(filter, 1)
	if len(conditions) > 0 {
		query += " WHERE " + strings.Join(conditions, " AND ")
	}

	limit, offset := normalizePage(page)
	query += fmt.Sprintf(" ORDER BY created_at DESC, id LIMIT $%d OFFSET $%d", paramIndex, paramIndex+1)
	args = append(args, limit, offset)

	return s.queryProductPage(ctx, query, args)
}

// SearchText implements catalog.Store. Matches the free-text query against
// the weighted search vector and ranks name hits above tag, keyword, and
// description hits.
func (s *ProductStore) SearchText(ctx context.Context, text string, filter catalog.ProductFilter, page catalog.Page) ([]catalog.Product, int, error) {
	if strings.TrimSpace(text) == "" {
		return nil, 0, fmt.Errorf("%w: search query cannot be empty", catalog.ErrValidation)
	}

	query := `SELECT ` + productColumns + `, COUNT(*) OVER() AS total_count FROM products
		WHERE search_vector @@ websearch_to_tsquery('english', $1)`
	args := []any{text}

	conditions, filterArgs, paramIndex := buildProductFilterConditions(filter, 2)
	if len(conditions) > 0 {
		query += " AND " + strings.Join(conditions, " AND ")
		args = append(args, filterArgs...)
	}

	limit, offset := normalizePage(page)
	query += fmt.Sprintf(
		` ORDER BY ts_rank('%s', search_vector, websearch_to_tsquery('english', $1)) DESC, created_at DESC LIMIT $%d OFFSET $%d`,
		searchRankWeights, paramIndex, paramIndex+1,
	)
	args = append(args, limit, offset)

	return s.queryProductPage(ctx, query, args)
}

func (s *ProductStore) queryProductPage(ctx context.Context, query string, args []any) ([]catalog.Product, int, error) {
	rows, err := s.conn.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, 0, fmt.Errorf("failed to query products: %w", classifyError(err))
	}

	defer func() {
		_ = rows.Close()
	}()

	products := []catalog.Product{}
	total := 0

	for rows.Next() {
		product, err := scanProduct(totalScanner{rows: rows, total: &total})
		if err != nil {
			return nil, 0, fmt.Errorf("failed to scan product row: %w", classifyError(err))
		}

		products = append(products, *product)
	}

	if err := rows.Err(); err != nil {
		return nil, 0, fmt.Errorf("failed to iterate product rows: %w", classifyError(err))
	}

	return products, total, nil
}

// buildProductFilterConditions translates a ProductFilter into WHERE
// fragments with positional parameters starting at startIndex.
// Returns (conditions, args, nextParamIndex).
func buildProductFilterConditions(filter catalog.ProductFilter, startIndex int) ([]string, []any, int) {
	var conditions []string

	var args []any

	paramIndex := startIndex

	addEquals := func(column, value string) {
		if value != "" {
			conditions = append(conditions, fmt.Sprintf("%s = $%d", column, paramIndex))
			args = append(args, value)
			paramIndex++
		}
	}

	addEquals("department", filter.Department)
	addEquals("category", filter.Category)
	addEquals("subcategory", filter.Subcategory)
	addEquals("brand", filter.Brand)
	addEquals("product_type", filter.ProductType)

	if filter.PriceMin != nil {
		conditions = append(conditions, fmt.Sprintf("price >= $%d", paramIndex))
		args = append(args, *filter.PriceMin)
		paramIndex++
	}

	if filter.PriceMax != nil {
		conditions = append(conditions, fmt.Sprintf("price <= $%d", paramIndex))
		args = append(args, *filter.PriceMax)
		paramIndex++
	}

	if len(filter.Tags) > 0 {
		conditions = append(conditions, fmt.Sprintf("tags @> $%d", paramIndex))
		args = append(args, pq.Array(filter.Tags))
		paramIndex++
	}

	// Any-of semantics; each containment clause can use the badges GIN index.
	if len(filter.BadgeTypes) > 0 {
		badgeClauses := make([]string, 0, len(filter.BadgeTypes))

		for _, badgeType := range filter.BadgeTypes {
			badgeClauses = append(badgeClauses,
				fmt.Sprintf("badges @> jsonb_build_array(jsonb_build_object('type', $%d::text))", paramIndex))
			args = append(args, string(badgeType))
			paramIndex++
		}

		conditions = append(conditions, "("+strings.Join(badgeClauses, " OR ")+")")
	}

	addEquals("parent_id", filter.ParentID)
	addEquals("variation_type", string(filter.VariationType))

	if filter.IsActive != nil {
		conditions = append(conditions, fmt.Sprintf("is_active = $%d", paramIndex))
		args = append(args, *filter.IsActive)
		paramIndex++
	}

	if len(filter.SKUs) > 0 {
		lowered := make([]string, 0, len(filter.SKUs))
		for _, sku := range filter.SKUs {
			lowered = append(lowered, strings.ToLower(sku))
		}

		conditions = append(conditions, fmt.Sprintf("lower(sku) = ANY($%d)", paramIndex))
		args = append(args, pq.Array(lowered))
		paramIndex++
	}

	return conditions, args, paramIndex
}

func normalizePage(page catalog.Page) (limit, offset int) {
	limit = page.Limit
	if limit <= 0 {
		limit = defaultPageLimit
	}

	if limit > maxPageLimit {
		limit = maxPageLimit
	}

	offset = page.Offset
	if offset < 0 {
		offset = 0
	}

	return limit, offset
}

// ListIndexes returns every index on the products table. Serves the admin
// index inspection endpoint.
func (s *ProductStore) ListIndexes(ctx context.Context) ([]IndexInfo, error) {
	query := `
		SELECT indexname, indexdef
		FROM pg_indexes
		WHERE schemaname = current_schema() AND tablename = 'products'
		ORDER BY indexname
	`

	rows, err := s.conn.QueryContext(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("failed to list product indexes: %w", classifyError(err))
	}

	defer func() {
		_ = rows.Close()
	}()

	indexes := []IndexInfo{}

	for rows.Next() {
		var info IndexInfo
		if err := rows.Scan(&info.Name, &info.Definition); err != nil {
			return nil, fmt.Errorf("failed to scan index row: %w", err)
		}

		indexes = append(indexes, info)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to iterate index rows: %w", err)
	}

	return indexes, nil
}

// VerifyIndexes confirms every required index exists. Called at startup after
// migrations so a partially migrated database fails fast instead of serving
// unindexed scans.
func (s *ProductStore) VerifyIndexes(ctx context.Context) error {
	indexes, err := s.ListIndexes(ctx)
	if err != nil {
		return err
	}

	present := make(map[string]bool, len(indexes))
	for _, info := range indexes {
		present[info.Name] = true
	}

	var missing []string

	for _, name := range requiredIndexes {
		if !present[name] {
			missing = append(missing, name)
		}
	}

	if len(missing) > 0 {
		return fmt.Errorf("%w: missing required indexes: %s", catalog.ErrInternal, strings.Join(missing, ", "))
	}

	return nil
}
