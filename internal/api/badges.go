package api

import (
	"log/slog"
	"net/http"
	"strings"
	"time"

	"github.com/aioutlet/product-service/internal/api/middleware"
	"github.com/aioutlet/product-service/internal/badges"
	"github.com/aioutlet/product-service/internal/catalog"
)

// handleAssignBadge handles POST /api/v1/products/{id}/badges.
// Manually assigns a badge; the authenticated service becomes the assigner,
// which shields the badge from rule-driven removal.
//
// Responses:
//   - 201 Created: badge assigned
//   - 400 Bad Request: unknown badge type or invalid payload
//   - 404 Not Found: product does not exist
//   - 409 Conflict: badge of that type already present
func (s *Server) handleAssignBadge(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	correlationID := middleware.GetCorrelationID(ctx)

	if !hasJSONContentType(r.Header.Get("Content-Type")) {
		WriteErrorResponse(w, r, s.logger, UnsupportedMediaType("Content-Type must be application/json"))

		return
	}

	var req AssignBadgeRequest
	if problem := s.decodeJSONBody(r, &req); problem != nil {
		WriteErrorResponse(w, r, s.logger, problem)

		return
	}

	productID := r.PathValue("id")
	badgeType := catalog.BadgeType(strings.TrimSpace(req.BadgeType))

	opts := badges.AssignOptions{
		AssignedBy: actorFrom(r),
		ExpiresAt:  req.ExpiresAt,
		Metadata:   req.Metadata,
	}

	badge, err := s.badges.AssignBadge(ctx, productID, badgeType, opts, correlationID)
	if err != nil {
		s.respondDomainError(w, r, err)

		return
	}

	s.logger.Info("Badge assigned",
		slog.String("correlation_id", correlationID),
		slog.String("product_id", productID),
		slog.String("badge_type", badgeType.String()),
		slog.String("assigned_by", opts.AssignedBy),
	)

	s.respondJSON(w, r, http.StatusCreated, toBadgeResponse(badge))
}

// handleRemoveBadge handles DELETE /api/v1/products/{id}/badges/{type}.
// Removes a badge of the given type regardless of how it was assigned.
func (s *Server) handleRemoveBadge(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	correlationID := middleware.GetCorrelationID(ctx)
	productID := r.PathValue("id")
	badgeType := catalog.BadgeType(r.PathValue("type"))

	if err := s.badges.RemoveBadge(ctx, productID, badgeType, correlationID); err != nil {
		s.respondDomainError(w, r, err)

		return
	}

	s.logger.Info("Badge removed",
		slog.String("correlation_id", correlationID),
		slog.String("product_id", productID),
		slog.String("badge_type", badgeType.String()),
	)

	w.WriteHeader(http.StatusNoContent)
}

// handleProductBadges handles GET /api/v1/products/{id}/badges.
// Returns the product's non-expired badges plus the single display badge.
func (s *Server) handleProductBadges(w http.ResponseWriter, r *http.Request) {
	view, err := s.badges.ProductBadges(r.Context(), r.PathValue("id"))
	if err != nil {
		s.respondDomainError(w, r, err)

		return
	}

	s.respondJSON(w, r, http.StatusOK, view)
}

// handleBulkAssignBadges handles POST /api/v1/badges/bulk-assign.
// Assigns one badge type across many products and reports the per-product
// outcome: succeeded, skipped (already present), or failed. A transient store
// failure aborts the run with 503; retrying absorbs prior successes as skips.
func (s *Server) handleBulkAssignBadges(w http.ResponseWriter, r *http.Request) {
	startTime := time.Now()
	ctx := r.Context()
	correlationID := middleware.GetCorrelationID(ctx)

	if !hasJSONContentType(r.Header.Get("Content-Type")) {
		WriteErrorResponse(w, r, s.logger, UnsupportedMediaType("Content-Type must be application/json"))

		return
	}

	var req BulkAssignBadgesRequest
	if problem := s.decodeJSONBody(r, &req); problem != nil {
		WriteErrorResponse(w, r, s.logger, problem)

		return
	}

	opts := badges.AssignOptions{
		AssignedBy: actorFrom(r),
		ExpiresAt:  req.ExpiresAt,
		Metadata:   req.Metadata,
	}

	report, err := s.badges.BulkAssign(ctx, req.ProductIDs, catalog.BadgeType(strings.TrimSpace(req.BadgeType)), opts, correlationID)
	if err != nil {
		s.respondDomainError(w, r, err)

		return
	}

	s.logger.Info("Bulk badge assignment completed",
		slog.String("correlation_id", correlationID),
		slog.String("badge_type", string(report.BadgeType)),
		slog.Int("requested", report.Requested),
		slog.Int("succeeded", report.Succeeded),
		slog.Int("skipped", report.Skipped),
		slog.Int("failed", report.Failed),
		slog.Duration("duration", time.Since(startTime)),
	)

	s.respondJSON(w, r, http.StatusOK, report)
}

// handleEvaluateBadges handles POST /api/v1/badges/evaluate.
// Runs the enabled badge rules against the requested products (or the whole
// active catalog) and reports added, removed and skipped badges. Dry runs
// report every planned action without writing.
func (s *Server) handleEvaluateBadges(w http.ResponseWriter, r *http.Request) {
	startTime := time.Now()
	ctx := r.Context()
	correlationID := middleware.GetCorrelationID(ctx)

	if !hasJSONContentType(r.Header.Get("Content-Type")) {
		WriteErrorResponse(w, r, s.logger, UnsupportedMediaType("Content-Type must be application/json"))

		return
	}

	var req EvaluateBadgesRequest
	if problem := s.decodeJSONBody(r, &req); problem != nil {
		WriteErrorResponse(w, r, s.logger, problem)

		return
	}

	evalReq := badges.EvaluateRequest{
		ProductIDs: req.ProductIDs,
		DryRun:     req.DryRun,
	}

	for _, raw := range req.BadgeTypes {
		evalReq.BadgeTypes = append(evalReq.BadgeTypes, catalog.BadgeType(strings.TrimSpace(raw)))
	}

	report, err := s.badges.EvaluateRules(ctx, evalReq, correlationID)
	if err != nil {
		s.respondDomainError(w, r, err)

		return
	}

	s.logger.Info("Badge rules evaluated",
		slog.String("correlation_id", correlationID),
		slog.Bool("dry_run", report.DryRun),
		slog.Int("products_evaluated", report.ProductsEvaluated),
		slog.Int("added", report.Added),
		slog.Int("removed", report.Removed),
		slog.Int("skipped", report.Skipped),
		slog.Duration("duration", time.Since(startTime)),
	)

	s.respondJSON(w, r, http.StatusOK, report)
}

// handleBadgeStatistics handles GET /api/v1/badges/statistics.
// Returns the catalog-wide badge aggregation: totals per type, split into
// automated, manual and expired.
func (s *Server) handleBadgeStatistics(w http.ResponseWriter, r *http.Request) {
	stats, err := s.badges.Statistics(r.Context())
	if err != nil {
		s.respondDomainError(w, r, err)

		return
	}

	s.respondJSON(w, r, http.StatusOK, toBadgeStatisticsResponse(stats))
}

// handleSeedBadgeRules handles PUT /api/v1/badges/rules.
// Upserts the submitted rules by id; rules absent from the payload are left
// untouched. One invalid rule rejects the whole payload.
func (s *Server) handleSeedBadgeRules(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	correlationID := middleware.GetCorrelationID(ctx)

	if !hasJSONContentType(r.Header.Get("Content-Type")) {
		WriteErrorResponse(w, r, s.logger, UnsupportedMediaType("Content-Type must be application/json"))

		return
	}

	var rules []badges.Rule
	if problem := s.decodeJSONBody(r, &rules); problem != nil {
		WriteErrorResponse(w, r, s.logger, problem)

		return
	}

	if len(rules) == 0 {
		WriteErrorResponse(w, r, s.logger, BadRequest("Rule array cannot be empty"))

		return
	}

	if err := s.badges.SeedRules(ctx, rules); err != nil {
		s.respondDomainError(w, r, err)

		return
	}

	s.logger.Info("Badge rules seeded",
		slog.String("correlation_id", correlationID),
		slog.Int("rules", len(rules)),
	)

	s.respondJSON(w, r, http.StatusOK, SeedRulesResponse{Seeded: len(rules)})
}

// handleListBadgeRules handles GET /api/v1/badges/rules.
// Returns the persisted rule set; ?enabled=true narrows to enabled rules.
func (s *Server) handleListBadgeRules(w http.ResponseWriter, r *http.Request) {
	enabledOnly := r.URL.Query().Get("enabled") == "true"

	rules, err := s.badges.Rules(r.Context(), enabledOnly)
	if err != nil {
		s.respondDomainError(w, r, err)

		return
	}

	if rules == nil {
		rules = []badges.Rule{}
	}

	s.respondJSON(w, r, http.StatusOK, BadgeRulesResponse{Rules: rules, Total: len(rules)})
}
