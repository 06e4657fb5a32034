package api

import (
	"strings"
	"time"

	"github.com/aioutlet/product-service/internal/badges"
	"github.com/aioutlet/product-service/internal/bulkimport"
	"github.com/aioutlet/product-service/internal/catalog"
	"github.com/aioutlet/product-service/internal/variations"
)

type (
	// ProductResponse is the full product view returned by the catalog
	// endpoints. This is separate from the domain model (catalog.Product) to
	// decouple the API contract from internal domain types.
	ProductResponse struct {
		ID                string                     `json:"id"`
		SKU               string                     `json:"sku,omitempty"`
		VariationType     string                     `json:"variationType"`
		ParentID          string                     `json:"parentId,omitempty"`
		VariantAttributes []VariantAttributeResponse `json:"variantAttributes,omitempty"`
		VariationCount    int                        `json:"variationCount,omitempty"`
		Name              string                     `json:"name"`
		Description       string                     `json:"description,omitempty"`
		Brand             string                     `json:"brand,omitempty"`
		Price             float64                    `json:"price"`
		Department        string                     `json:"department,omitempty"`
		Category          string                     `json:"category,omitempty"`
		Subcategory       string                     `json:"subcategory,omitempty"`
		ProductType       string                     `json:"productType,omitempty"`
		Images            []string                   `json:"images,omitempty"`
		Tags              []string                   `json:"tags,omitempty"`
		SearchKeywords    []string                   `json:"searchKeywords,omitempty"`
		Specifications    map[string]string          `json:"specifications,omitempty"`
		Badges            []BadgeResponse            `json:"badges"`
		ReviewAggregates  ReviewAggregatesResponse   `json:"reviewAggregates"`
		Availability      AvailabilityResponse       `json:"availability"`
		QAStats           QAStatsResponse            `json:"qaStats"`
		SalesMetrics      SalesMetricsResponse       `json:"salesMetrics"`
		ViewMetrics       ViewMetricsResponse        `json:"viewMetrics"`
		SizeChartID       string                     `json:"sizeChartId,omitempty"`
		IsActive          bool                       `json:"isActive"`
		CreatedAt         time.Time                  `json:"createdAt"`
		UpdatedAt         time.Time                  `json:"updatedAt"`
		CreatedBy         string                     `json:"createdBy,omitempty"`
		UpdatedBy         string                     `json:"updatedBy,omitempty"`
		History           []HistoryEntryResponse     `json:"history,omitempty"`
	}

	// VariantAttributeResponse is one (name, value) pair of a child variation.
	VariantAttributeResponse struct {
		Name        string `json:"name"`
		Value       string `json:"value"`
		DisplayName string `json:"displayName,omitempty"`
	}

	// BadgeResponse is one badge carried by a product. Automated reports
	// whether a rule assigned it rather than an admin.
	BadgeResponse struct {
		Type       string         `json:"type"`
		AssignedAt time.Time      `json:"assignedAt"`
		AssignedBy string         `json:"assignedBy,omitempty"`
		ExpiresAt  *time.Time     `json:"expiresAt,omitempty"`
		Metadata   map[string]any `json:"metadata,omitempty"`
		Automated  bool           `json:"automated"`
	}

	// ReviewAggregatesResponse is the denormalized review summary.
	// RatingDistribution keys are star ratings 1 through 5.
	ReviewAggregatesResponse struct {
		AverageRating         float64     `json:"averageRating"`
		TotalReviews          int         `json:"totalReviews"`
		VerifiedPurchaseCount int         `json:"verifiedPurchaseCount"`
		RatingDistribution    map[int]int `json:"ratingDistribution"`
	}

	// AvailabilityResponse is the denormalized inventory projection.
	AvailabilityResponse struct {
		State             string    `json:"state"`
		AvailableQuantity int       `json:"availableQuantity"`
		LowStockThreshold int       `json:"lowStockThreshold"`
		LastUpdated       time.Time `json:"lastUpdated"`
	}

	// QAStatsResponse is the denormalized question/answer projection.
	QAStatsResponse struct {
		TotalQuestions    int       `json:"totalQuestions"`
		AnsweredQuestions int       `json:"answeredQuestions"`
		LastUpdated       time.Time `json:"lastUpdated"`
	}

	// SalesMetricsResponse is the cached 30-day sales window.
	SalesMetricsResponse struct {
		Last30Days SalesWindowResponse `json:"last30Days"`
		UpdatedAt  time.Time           `json:"updatedAt"`
	}

	// SalesWindowResponse is one sales bucket.
	SalesWindowResponse struct {
		Units        int `json:"units"`
		CategoryRank int `json:"categoryRank,omitempty"`
	}

	// ViewMetricsResponse is the cached pair of 7-day view windows.
	ViewMetricsResponse struct {
		Last7Days  int       `json:"last7Days"`
		Prior7Days int       `json:"prior7Days"`
		UpdatedAt  time.Time `json:"updatedAt"`
	}

	// HistoryEntryResponse is one audit-trail entry of an admin mutation.
	HistoryEntryResponse struct {
		Actor     string         `json:"actor"`
		Timestamp time.Time      `json:"timestamp"`
		Changes   map[string]any `json:"changes"`
	}

	// ProductListResponse represents the response for GET /api/v1/products.
	// Total counts all matches, not just the returned page.
	ProductListResponse struct {
		Products []ProductResponse `json:"products"`
		Total    int               `json:"total"`
		Limit    int               `json:"limit"`
		Offset   int               `json:"offset"`
	}
)

type (
	// CreateProductRequest is the payload for POST /api/v1/products.
	CreateProductRequest struct {
		SKU            string            `json:"sku,omitempty"`
		Name           string            `json:"name"`
		Description    string            `json:"description,omitempty"`
		Brand          string            `json:"brand,omitempty"`
		Price          float64           `json:"price"`
		Department     string            `json:"department,omitempty"`
		Category       string            `json:"category,omitempty"`
		Subcategory    string            `json:"subcategory,omitempty"`
		ProductType    string            `json:"productType,omitempty"`
		Images         []string          `json:"images,omitempty"`
		Tags           []string          `json:"tags,omitempty"`
		SearchKeywords []string          `json:"searchKeywords,omitempty"`
		Specifications map[string]string `json:"specifications,omitempty"`
	}

	// UpdateProductRequest is the payload for PATCH /api/v1/products/{id}.
	// Absent fields are left untouched; pointer fields distinguish "not sent"
	// from an explicit zero value.
	UpdateProductRequest struct {
		Name              *string                   `json:"name"`
		Description       *string                   `json:"description"`
		Brand             *string                   `json:"brand"`
		Price             *float64                  `json:"price"`
		Department        *string                   `json:"department"`
		Category          *string                   `json:"category"`
		Subcategory       *string                   `json:"subcategory"`
		ProductType       *string                   `json:"productType"`
		Images            []string                  `json:"images"`
		Tags              []string                  `json:"tags"`
		SearchKeywords    []string                  `json:"searchKeywords"`
		Specifications    map[string]string         `json:"specifications"`
		VariantAttributes []VariantAttributeRequest `json:"variantAttributes"`
	}

	// VariantAttributeRequest is one (name, value) pair in a variation payload.
	VariantAttributeRequest struct {
		Name        string `json:"name"`
		Value       string `json:"value"`
		DisplayName string `json:"displayName,omitempty"`
	}

	// AssignBadgeRequest is the payload for POST /api/v1/products/{id}/badges.
	// The assigning admin is taken from the authenticated service context, not
	// the payload.
	AssignBadgeRequest struct {
		BadgeType string         `json:"badgeType"`
		ExpiresAt *time.Time     `json:"expiresAt,omitempty"`
		Metadata  map[string]any `json:"metadata,omitempty"`
	}

	// BulkAssignBadgesRequest is the payload for POST /api/v1/badges/bulk-assign.
	BulkAssignBadgesRequest struct {
		ProductIDs []string       `json:"productIds"`
		BadgeType  string         `json:"badgeType"`
		ExpiresAt  *time.Time     `json:"expiresAt,omitempty"`
		Metadata   map[string]any `json:"metadata,omitempty"`
	}

	// EvaluateBadgesRequest is the payload for POST /api/v1/badges/evaluate.
	// Empty ProductIDs evaluates the whole active catalog; empty BadgeTypes
	// evaluates every rule. DryRun reports planned actions without writing.
	EvaluateBadgesRequest struct {
		ProductIDs []string `json:"productIds,omitempty"`
		BadgeTypes []string `json:"badgeTypes,omitempty"`
		DryRun     bool     `json:"dryRun,omitempty"`
	}

	// BadgeStatisticsResponse represents the response for GET /api/v1/badges/statistics.
	BadgeStatisticsResponse struct {
		ByType             []BadgeTypeStatisticsResponse `json:"byType"`
		TotalAssigned      int                           `json:"totalAssigned"`
		TotalAutomated     int                           `json:"totalAutomated"`
		TotalManual        int                           `json:"totalManual"`
		TotalExpired       int                           `json:"totalExpired"`
		ProductsWithBadges int                           `json:"productsWithBadges"`
	}

	// BadgeTypeStatisticsResponse aggregates badge counts for one badge type
	// across active products.
	BadgeTypeStatisticsResponse struct {
		Type      string `json:"type"`
		Total     int    `json:"total"`
		Automated int    `json:"automated"`
		Manual    int    `json:"manual"`
		Expired   int    `json:"expired"`
	}

	// BadgeRulesResponse represents the response for GET /api/v1/badges/rules.
	BadgeRulesResponse struct {
		Rules []badges.Rule `json:"rules"`
		Total int           `json:"total"`
	}

	// SeedRulesResponse represents the response for PUT /api/v1/badges/rules.
	SeedRulesResponse struct {
		Seeded int `json:"seeded"`
	}
)

type (
	// CreateVariationFamilyRequest is the payload for POST /api/v1/variations.
	// The parent's taxonomy and brand are snapshotted onto every child.
	CreateVariationFamilyRequest struct {
		Parent   CreateProductRequest    `json:"parent"`
		Children []ChildVariationRequest `json:"children"`
	}

	// ChildVariationRequest describes one child variation. Taxonomy and brand
	// are inherited from the parent and cannot be set here.
	ChildVariationRequest struct {
		SKU            string                    `json:"sku,omitempty"`
		Name           string                    `json:"name"`
		Description    string                    `json:"description,omitempty"`
		Price          float64                   `json:"price"`
		Attributes     []VariantAttributeRequest `json:"attributes"`
		Images         []string                  `json:"images,omitempty"`
		Tags           []string                  `json:"tags,omitempty"`
		SearchKeywords []string                  `json:"searchKeywords,omitempty"`
		Specifications map[string]string         `json:"specifications,omitempty"`
	}

	// UpdateChildRequest is the payload for PATCH /api/v1/variations/children/{childId}.
	// Only child-scoped fields appear; taxonomy and brand are parent-inherited.
	UpdateChildRequest struct {
		Name           *string                   `json:"name"`
		Description    *string                   `json:"description"`
		Price          *float64                  `json:"price"`
		Images         []string                  `json:"images"`
		Tags           []string                  `json:"tags"`
		Specifications map[string]string         `json:"specifications"`
		Attributes     []VariantAttributeRequest `json:"attributes"`
	}

	// VariationFamilyResponse represents the response for GET /api/v1/variations/{parentId}.
	// Matrix lists the purchasable children with their attribute tuples.
	VariationFamilyResponse struct {
		Parent ProductResponse          `json:"parent"`
		Matrix []variations.MatrixEntry `json:"matrix"`
	}

	// ChildListResponse represents the response for
	// GET /api/v1/variations/{parentId}/children, optionally narrowed by
	// attribute query parameters.
	ChildListResponse struct {
		ParentID string                   `json:"parentId"`
		Children []variations.MatrixEntry `json:"children"`
		Total    int                      `json:"total"`
	}
)

type (
	// CreateSizeChartRequest is the payload for POST /api/v1/size-charts.
	CreateSizeChartRequest struct {
		Name     string                `json:"name"`
		SizeType string                `json:"sizeType"`
		Rows     []SizeChartRowPayload `json:"rows"`
	}

	// SizeChartRowPayload is one measurement row of a size chart, shared by
	// requests and responses.
	SizeChartRowPayload struct {
		Label        string            `json:"label"`
		Measurements map[string]string `json:"measurements"`
	}

	// SizeChartResponse is the full size chart view.
	SizeChartResponse struct {
		ID        string                `json:"id"`
		Name      string                `json:"name"`
		SizeType  string                `json:"sizeType"`
		Rows      []SizeChartRowPayload `json:"rows"`
		CreatedAt time.Time             `json:"createdAt"`
		CreatedBy string                `json:"createdBy,omitempty"`
	}

	// SizeChartListResponse represents the response for GET /api/v1/size-charts.
	SizeChartListResponse struct {
		SizeCharts []SizeChartResponse `json:"sizeCharts"`
		Total      int                 `json:"total"`
	}
)

type (
	// ImportSubmissionRequest is the JSON payload accepted by
	// POST /api/v1/imports when the file is fetched from a URL instead of
	// uploaded inline as text/csv.
	ImportSubmissionRequest struct {
		FileURL string `json:"fileUrl"`
		Mode    string `json:"mode,omitempty"`
	}

	// ImportJobResponse is the bookkeeping view of one bulk import job.
	ImportJobResponse struct {
		JobID         string     `json:"jobId"`
		Status        string     `json:"status"`
		ImportMode    string     `json:"importMode"`
		TotalRows     int        `json:"totalRows"`
		ProcessedRows int        `json:"processedRows"`
		SuccessCount  int        `json:"successCount"`
		ErrorCount    int        `json:"errorCount"`
		Reason        string     `json:"reason,omitempty"`
		CreatedBy     string     `json:"createdBy,omitempty"`
		CreatedAt     time.Time  `json:"createdAt"`
		StartedAt     *time.Time `json:"startedAt,omitempty"`
		CompletedAt   *time.Time `json:"completedAt,omitempty"`
	}

	// ImportJobListResponse represents the response for GET /api/v1/imports.
	ImportJobListResponse struct {
		Jobs   []ImportJobResponse `json:"jobs"`
		Total  int                 `json:"total"`
		Limit  int                 `json:"limit"`
		Offset int                 `json:"offset"`
	}

	// ImportErrorsResponse represents the response for
	// GET /api/v1/imports/{jobId}/errors. The stored error list is capped;
	// Total reports the job's full error count.
	ImportErrorsResponse struct {
		JobID  string                `json:"jobId"`
		Errors []bulkimport.RowError `json:"errors"`
		Total  int                   `json:"total"`
	}
)

// toProductResponse maps the domain product onto the API view.
func toProductResponse(p *catalog.Product) ProductResponse {
	resp := ProductResponse{
		ID:             p.ID,
		SKU:            p.SKU,
		VariationType:  p.VariationType.String(),
		ParentID:       p.ParentID,
		VariationCount: p.VariationCount,
		Name:           p.Name,
		Description:    p.Description,
		Brand:          p.Brand,
		Price:          p.Price,
		Department:     p.Department,
		Category:       p.Category,
		Subcategory:    p.Subcategory,
		ProductType:    p.ProductType,
		Images:         p.Images,
		Tags:           p.Tags,
		SearchKeywords: p.SearchKeywords,
		Specifications: p.Specifications,
		Badges:         make([]BadgeResponse, 0, len(p.Badges)),
		ReviewAggregates: ReviewAggregatesResponse{
			AverageRating:         p.ReviewAggregates.AverageRating,
			TotalReviews:          p.ReviewAggregates.TotalReviews,
			VerifiedPurchaseCount: p.ReviewAggregates.VerifiedPurchaseCount,
			RatingDistribution:    p.ReviewAggregates.RatingDistribution.Clone(),
		},
		Availability: AvailabilityResponse{
			State:             p.Availability.State.String(),
			AvailableQuantity: p.Availability.AvailableQuantity,
			LowStockThreshold: p.Availability.LowStockThreshold,
			LastUpdated:       p.Availability.LastUpdated,
		},
		QAStats: QAStatsResponse{
			TotalQuestions:    p.QAStats.TotalQuestions,
			AnsweredQuestions: p.QAStats.AnsweredQuestions,
			LastUpdated:       p.QAStats.LastUpdated,
		},
		SalesMetrics: SalesMetricsResponse{
			Last30Days: SalesWindowResponse{
				Units:        p.SalesMetrics.Last30Days.Units,
				CategoryRank: p.SalesMetrics.Last30Days.CategoryRank,
			},
			UpdatedAt: p.SalesMetrics.UpdatedAt,
		},
		ViewMetrics: ViewMetricsResponse{
			Last7Days:  p.ViewMetrics.Last7Days,
			Prior7Days: p.ViewMetrics.Prior7Days,
			UpdatedAt:  p.ViewMetrics.UpdatedAt,
		},
		SizeChartID: p.SizeChartID,
		IsActive:    p.IsActive,
		CreatedAt:   p.CreatedAt,
		UpdatedAt:   p.UpdatedAt,
		CreatedBy:   p.CreatedBy,
		UpdatedBy:   p.UpdatedBy,
	}

	for i := range p.VariantAttributes {
		attr := p.VariantAttributes[i]
		resp.VariantAttributes = append(resp.VariantAttributes, VariantAttributeResponse{
			Name:        attr.Name,
			Value:       attr.Value,
			DisplayName: attr.DisplayName,
		})
	}

	for i := range p.Badges {
		resp.Badges = append(resp.Badges, toBadgeResponse(&p.Badges[i]))
	}

	for _, entry := range p.History {
		resp.History = append(resp.History, HistoryEntryResponse{
			Actor:     entry.Actor,
			Timestamp: entry.Timestamp,
			Changes:   entry.Changes,
		})
	}

	return resp
}

// toBadgeResponse maps one domain badge onto the API view.
func toBadgeResponse(b *catalog.Badge) BadgeResponse {
	return BadgeResponse{
		Type:       b.Type.String(),
		AssignedAt: b.AssignedAt,
		AssignedBy: b.AssignedBy,
		ExpiresAt:  b.ExpiresAt,
		Metadata:   b.Metadata,
		Automated:  b.IsAutomated(),
	}
}

// toBadgeStatisticsResponse maps the catalog-wide badge aggregation onto the
// API view.
func toBadgeStatisticsResponse(stats *catalog.BadgeStatistics) BadgeStatisticsResponse {
	resp := BadgeStatisticsResponse{
		ByType:             make([]BadgeTypeStatisticsResponse, 0, len(stats.ByType)),
		TotalAssigned:      stats.TotalAssigned,
		TotalAutomated:     stats.TotalAutomated,
		TotalManual:        stats.TotalManual,
		TotalExpired:       stats.TotalExpired,
		ProductsWithBadges: stats.ProductsWithBadges,
	}

	for _, byType := range stats.ByType {
		resp.ByType = append(resp.ByType, BadgeTypeStatisticsResponse{
			Type:      byType.Type.String(),
			Total:     byType.Total,
			Automated: byType.Automated,
			Manual:    byType.Manual,
			Expired:   byType.Expired,
		})
	}

	return resp
}

// productFromCreateRequest maps a create payload onto a fresh domain product.
// String fields are trimmed; the store assigns the id and timestamps.
func productFromCreateRequest(req *CreateProductRequest) *catalog.Product {
	return &catalog.Product{
		SKU:            strings.TrimSpace(req.SKU),
		VariationType:  catalog.VariationStandalone,
		Name:           strings.TrimSpace(req.Name),
		Description:    strings.TrimSpace(req.Description),
		Brand:          strings.TrimSpace(req.Brand),
		Price:          req.Price,
		Department:     strings.TrimSpace(req.Department),
		Category:       strings.TrimSpace(req.Category),
		Subcategory:    strings.TrimSpace(req.Subcategory),
		ProductType:    strings.TrimSpace(req.ProductType),
		Images:         req.Images,
		Tags:           req.Tags,
		SearchKeywords: req.SearchKeywords,
		Specifications: req.Specifications,
		IsActive:       true,
	}
}

// childFromRequest maps a child variation payload onto a domain product. The
// variation engine stamps the variation type, parent reference and inherited
// taxonomy.
func childFromRequest(req *ChildVariationRequest) *catalog.Product {
	return &catalog.Product{
		SKU:               strings.TrimSpace(req.SKU),
		Name:              strings.TrimSpace(req.Name),
		Description:       strings.TrimSpace(req.Description),
		Price:             req.Price,
		VariantAttributes: attributesFromRequest(req.Attributes),
		Images:            req.Images,
		Tags:              req.Tags,
		SearchKeywords:    req.SearchKeywords,
		Specifications:    req.Specifications,
	}
}

// attributesFromRequest maps payload attribute pairs onto domain attributes,
// trimming names and values.
func attributesFromRequest(attrs []VariantAttributeRequest) []catalog.VariantAttribute {
	if attrs == nil {
		return nil
	}

	out := make([]catalog.VariantAttribute, 0, len(attrs))
	for _, attr := range attrs {
		out = append(out, catalog.VariantAttribute{
			Name:        strings.TrimSpace(attr.Name),
			Value:       strings.TrimSpace(attr.Value),
			DisplayName: strings.TrimSpace(attr.DisplayName),
		})
	}

	return out
}

// fieldUpdatesFromRequest maps a PATCH payload onto a partial domain update.
// Pointer fields pass through trimmed; nil members stay untouched.
func fieldUpdatesFromRequest(req *UpdateProductRequest) catalog.FieldUpdates {
	return catalog.FieldUpdates{
		Name:              trimmedPtr(req.Name),
		Description:       trimmedPtr(req.Description),
		Brand:             trimmedPtr(req.Brand),
		Price:             req.Price,
		Department:        trimmedPtr(req.Department),
		Category:          trimmedPtr(req.Category),
		Subcategory:       trimmedPtr(req.Subcategory),
		ProductType:       trimmedPtr(req.ProductType),
		Images:            req.Images,
		Tags:              req.Tags,
		SearchKeywords:    req.SearchKeywords,
		Specifications:    req.Specifications,
		VariantAttributes: attributesFromRequest(req.VariantAttributes),
	}
}

// fieldUpdatesFromChildRequest maps a child PATCH payload onto the
// child-scoped subset of a partial update.
func fieldUpdatesFromChildRequest(req *UpdateChildRequest) catalog.FieldUpdates {
	return catalog.FieldUpdates{
		Name:              trimmedPtr(req.Name),
		Description:       trimmedPtr(req.Description),
		Price:             req.Price,
		Images:            req.Images,
		Tags:              req.Tags,
		Specifications:    req.Specifications,
		VariantAttributes: attributesFromRequest(req.Attributes),
	}
}

// trimmedPtr returns a pointer to the trimmed value, or nil for a nil input.
func trimmedPtr(s *string) *string {
	if s == nil {
		return nil
	}

	trimmed := strings.TrimSpace(*s)

	return &trimmed
}

// toSizeChartResponse maps a domain size chart onto the API view.
func toSizeChartResponse(chart *catalog.SizeChart) SizeChartResponse {
	resp := SizeChartResponse{
		ID:        chart.ID,
		Name:      chart.Name,
		SizeType:  chart.SizeType,
		Rows:      make([]SizeChartRowPayload, 0, len(chart.Rows)),
		CreatedAt: chart.CreatedAt,
		CreatedBy: chart.CreatedBy,
	}

	for _, row := range chart.Rows {
		resp.Rows = append(resp.Rows, SizeChartRowPayload{
			Label:        row.Label,
			Measurements: row.Measurements,
		})
	}

	return resp
}

// sizeChartFromRequest maps a size chart payload onto the domain model.
func sizeChartFromRequest(req *CreateSizeChartRequest) *catalog.SizeChart {
	chart := &catalog.SizeChart{
		Name:     strings.TrimSpace(req.Name),
		SizeType: strings.TrimSpace(req.SizeType),
		Rows:     make([]catalog.SizeChartRow, 0, len(req.Rows)),
	}

	for _, row := range req.Rows {
		chart.Rows = append(chart.Rows, catalog.SizeChartRow{
			Label:        strings.TrimSpace(row.Label),
			Measurements: row.Measurements,
		})
	}

	return chart
}

// toImportJobResponse maps an import job onto the API view.
func toImportJobResponse(job *bulkimport.Job) ImportJobResponse {
	return ImportJobResponse{
		JobID:         job.ID,
		Status:        string(job.Status),
		ImportMode:    string(job.ImportMode),
		TotalRows:     job.TotalRows,
		ProcessedRows: job.ProcessedRows,
		SuccessCount:  job.SuccessCount,
		ErrorCount:    job.ErrorCount,
		Reason:        job.Reason,
		CreatedBy:     job.CreatedBy,
		CreatedAt:     job.CreatedAt,
		StartedAt:     job.StartedAt,
		CompletedAt:   job.CompletedAt,
	}
}
