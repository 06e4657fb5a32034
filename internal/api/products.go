package api

import (
	"fmt"
	"log/slog"
	"net/http"
	"sort"
	"strconv"
	"strings"
	"time"

	"github.com/aioutlet/product-service/internal/api/middleware"
	"github.com/aioutlet/product-service/internal/catalog"
	"github.com/aioutlet/product-service/internal/config"
)

// productListParams holds parsed query parameters for product listing and
// search.
type productListParams struct {
	filter catalog.ProductFilter
	page   catalog.Page
	query  string
}

// handleCreateProduct handles POST /api/v1/products.
// Creates a standalone product; variation families go through /api/v1/variations.
//
// Request validation (returns 4xx):
//   - 415 Unsupported Media Type: Content-Type must be application/json
//   - 413 Payload Too Large: Request body exceeds MaxRequestSize
//   - 400 Bad Request: Empty body, invalid JSON, or a domain validation failure
//   - 409 Conflict: SKU already taken by an active product
func (s *Server) handleCreateProduct(w http.ResponseWriter, r *http.Request) {
	startTime := time.Now()
	ctx := r.Context()
	correlationID := middleware.GetCorrelationID(ctx)

	if !hasJSONContentType(r.Header.Get("Content-Type")) {
		WriteErrorResponse(w, r, s.logger, UnsupportedMediaType("Content-Type must be application/json"))

		return
	}

	var req CreateProductRequest
	if problem := s.decodeJSONBody(r, &req); problem != nil {
		WriteErrorResponse(w, r, s.logger, problem)

		return
	}

	product := productFromCreateRequest(&req)
	product.CreatedBy = actorFrom(r)

	if err := s.validator.ValidateProduct(product); err != nil {
		s.respondDomainError(w, r, err)

		return
	}

	if err := s.products.CreateProduct(ctx, product); err != nil {
		s.respondDomainError(w, r, err)

		return
	}

	s.emitter.ProductCreated(ctx, product, correlationID)

	s.respondJSON(w, r, http.StatusCreated, toProductResponse(product))

	s.logger.Info("Product created",
		slog.String("correlation_id", correlationID),
		slog.String("product_id", product.ID),
		slog.String("sku", product.SKU),
		slog.Duration("duration", time.Since(startTime)),
	)
}

// handleListProducts handles GET /api/v1/products.
// Returns a paginated product list with optional structured filtering.
//
// Query Parameters:
//   - department, category, subcategory, brand, productType: exact-match filters
//   - priceMin, priceMax: inclusive price bounds
//   - tags: comma-separated, products must carry every listed tag
//   - badges: comma-separated badge types, products must carry any of them
//   - skus: comma-separated SKU set (case-insensitive)
//   - parentId: restrict to children of one parent
//   - variationType: standalone | parent | child
//   - isActive: true | false | all (default: true)
//   - limit: 1-100 (default: 20), offset: >= 0 (default: 0)
func (s *Server) handleListProducts(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	params, err := parseProductListParams(r, false)
	if err != nil {
		WriteErrorResponse(w, r, s.logger, BadRequest(err.Error()))

		return
	}

	products, total, err := s.products.FindMany(ctx, params.filter, params.page)
	if err != nil {
		s.respondDomainError(w, r, err)

		return
	}

	s.respondJSON(w, r, http.StatusOK, buildProductListResponse(products, total, params.page))
}

// handleSearchProducts handles GET /api/v1/products/search.
// Ranks products against the free-text query in 'q'; accepts the same filter
// and pagination parameters as the list endpoint.
func (s *Server) handleSearchProducts(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	params, err := parseProductListParams(r, true)
	if err != nil {
		WriteErrorResponse(w, r, s.logger, BadRequest(err.Error()))

		return
	}

	products, total, err := s.products.SearchText(ctx, params.query, params.filter, params.page)
	if err != nil {
		s.respondDomainError(w, r, err)

		return
	}

	s.respondJSON(w, r, http.StatusOK, buildProductListResponse(products, total, params.page))
}

// handleGetProduct handles GET /api/v1/products/{id}.
// Returns the full product document, soft-deleted products included.
func (s *Server) handleGetProduct(w http.ResponseWriter, r *http.Request) {
	product, err := s.products.GetProduct(r.Context(), r.PathValue("id"))
	if err != nil {
		s.respondDomainError(w, r, err)

		return
	}

	s.respondJSON(w, r, http.StatusOK, toProductResponse(product))
}

// handleUpdateProduct handles PATCH /api/v1/products/{id}.
// Applies a partial update to admin-owned fields and appends a history entry.
// Child variations are updated through the variation endpoints so sibling
// invariants stay enforced.
func (s *Server) handleUpdateProduct(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	correlationID := middleware.GetCorrelationID(ctx)

	if !hasJSONContentType(r.Header.Get("Content-Type")) {
		WriteErrorResponse(w, r, s.logger, UnsupportedMediaType("Content-Type must be application/json"))

		return
	}

	var req UpdateProductRequest
	if problem := s.decodeJSONBody(r, &req); problem != nil {
		WriteErrorResponse(w, r, s.logger, problem)

		return
	}

	fields := fieldUpdatesFromRequest(&req)
	if err := validateProductUpdate(fields); err != nil {
		s.respondDomainError(w, r, err)

		return
	}

	productID := r.PathValue("id")

	existing, err := s.products.GetProduct(ctx, productID)
	if err != nil {
		s.respondDomainError(w, r, err)

		return
	}

	if existing.IsChild() {
		s.respondDomainError(w, r, fmt.Errorf(
			"%w: child variations are updated through the variation endpoints", catalog.ErrValidation))

		return
	}

	updated, err := s.products.UpdateProduct(ctx, productID, fields, actorFrom(r))
	if err != nil {
		s.respondDomainError(w, r, err)

		return
	}

	s.emitter.ProductUpdated(ctx, updated, changedFieldNames(fields), correlationID)

	s.respondJSON(w, r, http.StatusOK, toProductResponse(updated))
}

// handleDeleteProduct handles DELETE /api/v1/products/{id}.
// Soft-deletes the product (isActive=false); history, projections and the
// audit trail survive for reactivation. Child variations are deleted through
// the variation endpoints so the parent's variation count stays honest.
func (s *Server) handleDeleteProduct(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	correlationID := middleware.GetCorrelationID(ctx)
	productID := r.PathValue("id")

	product, err := s.products.GetProduct(ctx, productID)
	if err != nil {
		s.respondDomainError(w, r, err)

		return
	}

	if product.IsChild() {
		s.respondDomainError(w, r, fmt.Errorf(
			"%w: child variations are deleted through the variation endpoints", catalog.ErrValidation))

		return
	}

	if err := s.products.Deactivate(ctx, productID, actorFrom(r)); err != nil {
		s.respondDomainError(w, r, err)

		return
	}

	product.IsActive = false
	s.emitter.ProductDeleted(ctx, product, correlationID)

	s.logger.Info("Product deactivated",
		slog.String("correlation_id", correlationID),
		slog.String("product_id", productID),
	)

	w.WriteHeader(http.StatusNoContent)
}

// handleReactivateProduct handles POST /api/v1/products/{id}/reactivate.
// Re-enables a soft-deleted product. Returns 409 when the product is already
// active or another active product took its SKU in the meantime.
func (s *Server) handleReactivateProduct(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	correlationID := middleware.GetCorrelationID(ctx)
	productID := r.PathValue("id")

	if err := s.products.Reactivate(ctx, productID, actorFrom(r)); err != nil {
		s.respondDomainError(w, r, err)

		return
	}

	product, err := s.products.GetProduct(ctx, productID)
	if err != nil {
		s.respondDomainError(w, r, err)

		return
	}

	s.emitter.ProductUpdated(ctx, product, []string{"isActive"}, correlationID)

	s.logger.Info("Product reactivated",
		slog.String("correlation_id", correlationID),
		slog.String("product_id", productID),
	)

	s.respondJSON(w, r, http.StatusOK, toProductResponse(product))
}

// validateProductUpdate rejects updates the plain product PATCH must not
// apply: empty updates, attribute renames (variation-engine territory), blank
// names and negative prices.
func validateProductUpdate(fields catalog.FieldUpdates) error {
	if fields.Empty() {
		return fmt.Errorf("%w: update must change at least one field", catalog.ErrValidation)
	}

	if fields.VariantAttributes != nil {
		return fmt.Errorf("%w: variant attributes are managed through the variation endpoints", catalog.ErrValidation)
	}

	if fields.Name != nil && strings.TrimSpace(*fields.Name) == "" {
		return catalog.ErrNameEmpty
	}

	if fields.Price != nil && *fields.Price < 0 {
		return fmt.Errorf("%w: got %v", catalog.ErrPriceNegative, *fields.Price)
	}

	return nil
}

// changedFieldNames returns the update's touched field names in stable order
// for the product.updated event payload.
func changedFieldNames(fields catalog.FieldUpdates) []string {
	changes := fields.Changes()

	names := make([]string, 0, len(changes))
	for name := range changes {
		names = append(names, name)
	}

	sort.Strings(names)

	return names
}

// buildProductListResponse maps a store page onto the list response.
func buildProductListResponse(products []catalog.Product, total int, page catalog.Page) ProductListResponse {
	items := make([]ProductResponse, 0, len(products))
	for i := range products {
		items = append(items, toProductResponse(&products[i]))
	}

	return ProductListResponse{
		Products: items,
		Total:    total,
		Limit:    page.Limit,
		Offset:   page.Offset,
	}
}

// parseProductListParams parses and validates the shared list/search query
// parameters. requireQuery enforces the free-text 'q' parameter for the
// search endpoint.
func parseProductListParams(r *http.Request, requireQuery bool) (*productListParams, error) {
	q := r.URL.Query()

	page, err := parsePageParams(r)
	if err != nil {
		return nil, err
	}

	params := &productListParams{
		page: page,
		filter: catalog.ProductFilter{
			Department:  strings.TrimSpace(q.Get("department")),
			Category:    strings.TrimSpace(q.Get("category")),
			Subcategory: strings.TrimSpace(q.Get("subcategory")),
			Brand:       strings.TrimSpace(q.Get("brand")),
			ProductType: strings.TrimSpace(q.Get("productType")),
			ParentID:    strings.TrimSpace(q.Get("parentId")),
			Tags:        config.ParseCommaSeparatedList(q.Get("tags")),
			SKUs:        config.ParseCommaSeparatedList(q.Get("skus")),
		},
	}

	params.query = strings.TrimSpace(q.Get("q"))
	if requireQuery && params.query == "" {
		return nil, &paramError{param: "q", msg: "search query is required"}
	}

	if priceMin := q.Get("priceMin"); priceMin != "" {
		value, err := strconv.ParseFloat(priceMin, 64)
		if err != nil || value < 0 {
			return nil, &paramError{param: "priceMin", msg: "must be a non-negative number"}
		}

		params.filter.PriceMin = &value
	}

	if priceMax := q.Get("priceMax"); priceMax != "" {
		value, err := strconv.ParseFloat(priceMax, 64)
		if err != nil || value < 0 {
			return nil, &paramError{param: "priceMax", msg: "must be a non-negative number"}
		}

		params.filter.PriceMax = &value
	}

	if params.filter.PriceMin != nil && params.filter.PriceMax != nil &&
		*params.filter.PriceMin > *params.filter.PriceMax {
		return nil, &paramError{param: "priceMax", msg: "must be >= priceMin"}
	}

	for _, raw := range config.ParseCommaSeparatedList(q.Get("badges")) {
		badgeType := catalog.BadgeType(raw)
		if !badgeType.IsValid() {
			return nil, &paramError{param: "badges", msg: "unknown badge type '" + raw + "'"}
		}

		params.filter.BadgeTypes = append(params.filter.BadgeTypes, badgeType)
	}

	if variationType := q.Get("variationType"); variationType != "" {
		vt := catalog.VariationType(variationType)
		if !vt.IsValid() {
			return nil, &paramError{param: "variationType", msg: "must be standalone, parent, or child"}
		}

		params.filter.VariationType = vt
	}

	// Storefront default: active products only. 'all' lifts the constraint
	// for admin listings.
	switch isActive := q.Get("isActive"); isActive {
	case "", "true":
		active := true
		params.filter.IsActive = &active
	case "false":
		inactive := false
		params.filter.IsActive = &inactive
	case "all":
	default:
		return nil, &paramError{param: "isActive", msg: "must be true, false, or all"}
	}

	return params, nil
}
