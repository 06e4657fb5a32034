package catalog

import "strconv"

// Document projects the product onto a nested map keyed the way badge rule
// field paths reference it (for example salesMetrics.last30Days.units or
// reviewAggregates.averageRating). Rule evaluation walks this projection
// rather than reflecting over the struct. Times stay as time.Time values so
// temporal comparisons keep full precision.
func (p *Product) Document() map[string]any {
	distribution := make(map[string]any, 5)
	for star := 1; star <= 5; star++ {
		distribution[strconv.Itoa(star)] = p.ReviewAggregates.RatingDistribution[star]
	}

	badges := make([]any, 0, len(p.Badges))
	for i := range p.Badges {
		badges = append(badges, p.Badges[i].Type.String())
	}

	specifications := make(map[string]any, len(p.Specifications))
	for key, value := range p.Specifications {
		specifications[key] = value
	}

	doc := map[string]any{
		"id":             p.ID,
		"sku":            p.SKU,
		"variationType":  p.VariationType.String(),
		"variationCount": p.VariationCount,
		"name":           p.Name,
		"description":    p.Description,
		"brand":          p.Brand,
		"price":          p.Price,
		"department":     p.Department,
		"category":       p.Category,
		"subcategory":    p.Subcategory,
		"productType":    p.ProductType,
		"tags":           toAnySlice(p.Tags),
		"searchKeywords": toAnySlice(p.SearchKeywords),
		"specifications": specifications,
		"badges":         badges,
		"isActive":       p.IsActive,
		"createdAt":      p.CreatedAt,
		"updatedAt":      p.UpdatedAt,
		"reviewAggregates": map[string]any{
			"averageRating":         p.ReviewAggregates.AverageRating,
			"totalReviews":          p.ReviewAggregates.TotalReviews,
			"verifiedPurchaseCount": p.ReviewAggregates.VerifiedPurchaseCount,
			"ratingDistribution":    distribution,
		},
		"availabilityStatus": map[string]any{
			"state":             p.Availability.State.String(),
			"availableQuantity": p.Availability.AvailableQuantity,
			"lowStockThreshold": p.Availability.LowStockThreshold,
			"lastUpdated":       p.Availability.LastUpdated,
		},
		"qaStats": map[string]any{
			"totalQuestions":    p.QAStats.TotalQuestions,
			"answeredQuestions": p.QAStats.AnsweredQuestions,
			"lastUpdated":       p.QAStats.LastUpdated,
		},
		"salesMetrics": map[string]any{
			"last30Days": map[string]any{
				"units":        p.SalesMetrics.Last30Days.Units,
				"categoryRank": p.SalesMetrics.Last30Days.CategoryRank,
			},
			"updatedAt": p.SalesMetrics.UpdatedAt,
		},
		"viewMetrics": map[string]any{
			"last7Days":  p.ViewMetrics.Last7Days,
			"prior7Days": p.ViewMetrics.Prior7Days,
			"updatedAt":  p.ViewMetrics.UpdatedAt,
		},
	}

	if p.ParentID != "" {
		doc["parentId"] = p.ParentID
	}

	return doc
}

func toAnySlice(values []string) []any {
	out := make([]any, len(values))
	for i, v := range values {
		out[i] = v
	}

	return out
}
