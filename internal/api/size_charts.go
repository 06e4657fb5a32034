package api

import (
	"fmt"
	"log/slog"
	"net/http"
	"strings"

	"github.com/aioutlet/product-service/internal/api/middleware"
	"github.com/aioutlet/product-service/internal/catalog"
)

// handleCreateSizeChart handles POST /api/v1/size-charts.
// Creates a named sizing table that products can reference.
func (s *Server) handleCreateSizeChart(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	correlationID := middleware.GetCorrelationID(ctx)

	if !hasJSONContentType(r.Header.Get("Content-Type")) {
		WriteErrorResponse(w, r, s.logger, UnsupportedMediaType("Content-Type must be application/json"))

		return
	}

	var req CreateSizeChartRequest
	if problem := s.decodeJSONBody(r, &req); problem != nil {
		WriteErrorResponse(w, r, s.logger, problem)

		return
	}

	if strings.TrimSpace(req.Name) == "" {
		s.respondDomainError(w, r, fmt.Errorf("%w: size chart name cannot be empty", catalog.ErrValidation))

		return
	}

	chart := sizeChartFromRequest(&req)
	chart.CreatedBy = actorFrom(r)

	if err := s.sizeCharts.CreateSizeChart(ctx, chart); err != nil {
		s.respondDomainError(w, r, err)

		return
	}

	s.logger.Info("Size chart created",
		slog.String("correlation_id", correlationID),
		slog.String("chart_id", chart.ID),
		slog.String("name", chart.Name),
	)

	s.respondJSON(w, r, http.StatusCreated, toSizeChartResponse(chart))
}

// handleListSizeCharts handles GET /api/v1/size-charts.
func (s *Server) handleListSizeCharts(w http.ResponseWriter, r *http.Request) {
	charts, err := s.sizeCharts.ListSizeCharts(r.Context())
	if err != nil {
		s.respondDomainError(w, r, err)

		return
	}

	resp := SizeChartListResponse{
		SizeCharts: make([]SizeChartResponse, 0, len(charts)),
		Total:      len(charts),
	}

	for i := range charts {
		resp.SizeCharts = append(resp.SizeCharts, toSizeChartResponse(&charts[i]))
	}

	s.respondJSON(w, r, http.StatusOK, resp)
}

// handleGetSizeChart handles GET /api/v1/size-charts/{chartId}.
func (s *Server) handleGetSizeChart(w http.ResponseWriter, r *http.Request) {
	chart, err := s.sizeCharts.GetSizeChart(r.Context(), r.PathValue("chartId"))
	if err != nil {
		s.respondDomainError(w, r, err)

		return
	}

	s.respondJSON(w, r, http.StatusOK, toSizeChartResponse(chart))
}

// handleAssignSizeChart handles POST /api/v1/products/{id}/size-chart/{chartId}.
// Links a size chart to an active product. The store rejects the link when
// either side is missing, so a dangling reference can never be written.
func (s *Server) handleAssignSizeChart(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	correlationID := middleware.GetCorrelationID(ctx)
	productID := r.PathValue("id")
	chartID := r.PathValue("chartId")

	if err := s.products.AssignSizeChart(ctx, productID, chartID, actorFrom(r)); err != nil {
		s.respondDomainError(w, r, err)

		return
	}

	s.emitter.SizeChartAssigned(ctx, productID, chartID, correlationID)

	product, err := s.products.GetProduct(ctx, productID)
	if err != nil {
		s.respondDomainError(w, r, err)

		return
	}

	s.logger.Info("Size chart assigned",
		slog.String("correlation_id", correlationID),
		slog.String("product_id", productID),
		slog.String("chart_id", chartID),
	)

	s.respondJSON(w, r, http.StatusOK, toProductResponse(product))
}

// handleUnassignSizeChart handles DELETE /api/v1/products/{id}/size-chart.
// Clears the product's size chart reference. Unassigning a product with no
// chart is a no-op, so the operation stays idempotent.
func (s *Server) handleUnassignSizeChart(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	correlationID := middleware.GetCorrelationID(ctx)
	productID := r.PathValue("id")

	product, err := s.products.GetProduct(ctx, productID)
	if err != nil {
		s.respondDomainError(w, r, err)

		return
	}

	previousChart := product.SizeChartID

	if err := s.products.UnassignSizeChart(ctx, productID, actorFrom(r)); err != nil {
		s.respondDomainError(w, r, err)

		return
	}

	if previousChart != "" {
		s.emitter.SizeChartUnassigned(ctx, productID, previousChart, correlationID)

		s.logger.Info("Size chart unassigned",
			slog.String("correlation_id", correlationID),
			slog.String("product_id", productID),
			slog.String("chart_id", previousChart),
		)
	}

	w.WriteHeader(http.StatusNoContent)
}
