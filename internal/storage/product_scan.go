package storage

import (
	"database/sql"
	"encoding/json"
	"fmt"
	"time"

	"github.com/lib/pq"

	"github.com/aioutlet/product-service/internal/catalog"
)

// JSONB column shapes. These mirror the domain types field for field; they
// exist so the persisted JSON keys stay stable when the domain model evolves.
type (
	variantAttributeRecord struct {
		Name        string `json:"name"`
		Value       string `json:"value"`
		DisplayName string `json:"displayName,omitempty"`
	}

	// badgeRecord keys are load-bearing: badge mutations match entries with
	// jsonb_build_object('type', ...) containment, so the "type" key must not
	// change without rewriting those statements.
	badgeRecord struct {
		Type       string         `json:"type"`
		AssignedAt time.Time      `json:"assignedAt"`
		AssignedBy string         `json:"assignedBy,omitempty"`
		ExpiresAt  *time.Time     `json:"expiresAt,omitempty"`
		Metadata   map[string]any `json:"metadata,omitempty"`
	}

	historyRecord struct {
		Actor     string         `json:"actor"`
		Timestamp time.Time      `json:"timestamp"`
		Changes   map[string]any `json:"changes,omitempty"`
	}

	salesMetricsRecord struct {
		Units        int       `json:"salesLast30Days"`
		CategoryRank int       `json:"categoryRank"`
		UpdatedAt    time.Time `json:"updatedAt"`
	}

	viewMetricsRecord struct {
		Last7Days  int       `json:"viewsLast7Days"`
		Prior7Days int       `json:"viewsPrior7Days"`
		UpdatedAt  time.Time `json:"updatedAt"`
	}
)

func toAttributeRecords(attrs []catalog.VariantAttribute) []variantAttributeRecord {
	records := make([]variantAttributeRecord, 0, len(attrs))
	for _, attr := range attrs {
		records = append(records, variantAttributeRecord{
			Name:        attr.Name,
			Value:       attr.Value,
			DisplayName: attr.DisplayName,
		})
	}

	return records
}

func fromAttributeRecords(records []variantAttributeRecord) []catalog.VariantAttribute {
	if len(records) == 0 {
		return nil
	}

	attrs := make([]catalog.VariantAttribute, 0, len(records))
	for _, record := range records {
		attrs = append(attrs, catalog.VariantAttribute{
			Name:        record.Name,
			Value:       record.Value,
			DisplayName: record.DisplayName,
		})
	}

	return attrs
}

func toBadgeRecords(badges []catalog.Badge) []badgeRecord {
	records := make([]badgeRecord, 0, len(badges))
	for _, badge := range badges {
		records = append(records, badgeRecord{
			Type:       string(badge.Type),
			AssignedAt: badge.AssignedAt.UTC(),
			AssignedBy: badge.AssignedBy,
			ExpiresAt:  badge.ExpiresAt,
			Metadata:   badge.Metadata,
		})
	}

	return records
}

func fromBadgeRecords(records []badgeRecord) []catalog.Badge {
	if len(records) == 0 {
		return nil
	}

	badges := make([]catalog.Badge, 0, len(records))
	for _, record := range records {
		badges = append(badges, catalog.Badge{
			Type:       catalog.BadgeType(record.Type),
			AssignedAt: record.AssignedAt.UTC(),
			AssignedBy: record.AssignedBy,
			ExpiresAt:  record.ExpiresAt,
			Metadata:   record.Metadata,
		})
	}

	return badges
}

func toHistoryRecords(entries []catalog.HistoryEntry) []historyRecord {
	records := make([]historyRecord, 0, len(entries))
	for _, entry := range entries {
		records = append(records, historyRecord{
			Actor:     entry.Actor,
			Timestamp: entry.Timestamp.UTC(),
			Changes:   entry.Changes,
		})
	}

	return records
}

func fromHistoryRecords(records []historyRecord) []catalog.HistoryEntry {
	if len(records) == 0 {
		return nil
	}

	entries := make([]catalog.HistoryEntry, 0, len(records))
	for _, record := range records {
		entries = append(entries, catalog.HistoryEntry{
			Actor:     record.Actor,
			Timestamp: record.Timestamp.UTC(),
			Changes:   record.Changes,
		})
	}

	return entries
}

// scanProduct reads one row produced with the productColumns select list.
func scanProduct(scanner rowScanner) (*catalog.Product, error) {
	var (
		product catalog.Product

		sku               sql.NullString
		variationType     string
		parentID          sql.NullString
		attrsJSON         []byte
		specsJSON         []byte
		badgesJSON        []byte
		ratingCounts      [5]int
		availabilityState string
		availabilityAt    sql.NullTime
		qaUpdatedAt       sql.NullTime
		salesJSON         []byte
		viewsJSON         []byte
		sizeChartID       sql.NullString
		historyJSON       []byte
	)

	err := scanner.Scan(
		&product.ID,
		&sku,
		&variationType,
		&parentID,
		&attrsJSON,
		&product.VariationCount,
		&product.Name,
		&product.Description,
		&product.Brand,
		&product.Price,
		&product.Department,
		&product.Category,
		&product.Subcategory,
		&product.ProductType,
		pq.Array(&product.Images),
		pq.Array(&product.Tags),
		pq.Array(&product.SearchKeywords),
		&specsJSON,
		&badgesJSON,
		&product.ReviewAggregates.AverageRating,
		&product.ReviewAggregates.TotalReviews,
		&product.ReviewAggregates.VerifiedPurchaseCount,
		&ratingCounts[0],
		&ratingCounts[1],
		&ratingCounts[2],
		&ratingCounts[3],
		&ratingCounts[4],
		&availabilityState,
		&product.Availability.AvailableQuantity,
		&product.Availability.LowStockThreshold,
		&availabilityAt,
		&product.QAStats.TotalQuestions,
		&product.QAStats.AnsweredQuestions,
		&qaUpdatedAt,
		&salesJSON,
		&viewsJSON,
		&sizeChartID,
		&product.IsActive,
		&product.CreatedAt,
		&product.UpdatedAt,
		&product.CreatedBy,
		&product.UpdatedBy,
		&historyJSON,
	)
	if err != nil {
		return nil, err
	}

	product.SKU = sku.String
	product.VariationType = catalog.VariationType(variationType)
	product.ParentID = parentID.String
	product.SizeChartID = sizeChartID.String
	product.Availability.State = catalog.AvailabilityState(availabilityState)
	product.CreatedAt = product.CreatedAt.UTC()
	product.UpdatedAt = product.UpdatedAt.UTC()

	if availabilityAt.Valid {
		product.Availability.LastUpdated = availabilityAt.Time.UTC()
	}

	if qaUpdatedAt.Valid {
		product.QAStats.LastUpdated = qaUpdatedAt.Time.UTC()
	}

	distribution := make(catalog.RatingDistribution, 5)
	for star := 1; star <= 5; star++ {
		distribution[star] = ratingCounts[star-1]
	}

	product.ReviewAggregates.RatingDistribution = distribution

	var attrRecords []variantAttributeRecord
	if err := json.Unmarshal(attrsJSON, &attrRecords); err != nil {
		return nil, fmt.Errorf("failed to decode variant attributes for product %s: %w", product.ID, err)
	}

	product.VariantAttributes = fromAttributeRecords(attrRecords)

	if err := json.Unmarshal(specsJSON, &product.Specifications); err != nil {
		return nil, fmt.Errorf("failed to decode specifications for product %s: %w", product.ID, err)
	}

	var badgeRecords []badgeRecord
	if err := json.Unmarshal(badgesJSON, &badgeRecords); err != nil {
		return nil, fmt.Errorf("failed to decode badges for product %s: %w", product.ID, err)
	}

	product.Badges = fromBadgeRecords(badgeRecords)

	if len(salesJSON) > 0 {
		var record salesMetricsRecord
		if err := json.Unmarshal(salesJSON, &record); err != nil {
			return nil, fmt.Errorf("failed to decode sales metrics for product %s: %w", product.ID, err)
		}

		product.SalesMetrics = catalog.SalesMetrics{
			Last30Days: catalog.SalesWindow{Units: record.Units, CategoryRank: record.CategoryRank},
			UpdatedAt:  record.UpdatedAt.UTC(),
		}
	}

	if len(viewsJSON) > 0 {
		var record viewMetricsRecord
		if err := json.Unmarshal(viewsJSON, &record); err != nil {
			return nil, fmt.Errorf("failed to decode view metrics for product %s: %w", product.ID, err)
		}

		product.ViewMetrics = catalog.ViewMetrics{
			Last7Days:  record.Last7Days,
			Prior7Days: record.Prior7Days,
			UpdatedAt:  record.UpdatedAt.UTC(),
		}
	}

	var historyRecords []historyRecord
	if err := json.Unmarshal(historyJSON, &historyRecords); err != nil {
		return nil, fmt.Errorf("failed to decode history for product %s: %w", product.ID, err)
	}

	product.History = fromHistoryRecords(historyRecords)

	return &product, nil
}

// scanProducts drains a multi-row result set.
func scanProducts(rows *sql.Rows) ([]catalog.Product, error) {
	defer func() {
		_ = rows.Close()
	}()

	products := []catalog.Product{}

	for rows.Next() {
		product, err := scanProduct(rows)
		if err != nil {
			return nil, err
		}

		products = append(products, *product)
	}

	if err := rows.Err(); err != nil {
		return nil, err
	}

	return products, nil
}
