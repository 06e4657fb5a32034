package api

import (
	"log/slog"
	"net/http"
	"time"

	"github.com/aioutlet/product-service/internal/api/middleware"
	"github.com/aioutlet/product-service/internal/catalog"
	"github.com/aioutlet/product-service/internal/variations"
)

// handleCreateVariationFamily handles POST /api/v1/variations.
// Creates a parent product together with its child variations in one
// operation. The parent carries the shared identity (name, brand, taxonomy)
// and each child carries its distinguishing attribute tuple. Children inherit
// unset fields from the parent; duplicate attribute tuples reject the whole
// family.
//
// Responses:
//   - 201 Created: family created, returns parent plus variation matrix
//   - 400 Bad Request: invalid parent or child payload
//   - 409 Conflict: SKU already in use or duplicate attribute tuple
func (s *Server) handleCreateVariationFamily(w http.ResponseWriter, r *http.Request) {
	startTime := time.Now()
	ctx := r.Context()
	correlationID := middleware.GetCorrelationID(ctx)

	if !hasJSONContentType(r.Header.Get("Content-Type")) {
		WriteErrorResponse(w, r, s.logger, UnsupportedMediaType("Content-Type must be application/json"))

		return
	}

	var req CreateVariationFamilyRequest
	if problem := s.decodeJSONBody(r, &req); problem != nil {
		WriteErrorResponse(w, r, s.logger, problem)

		return
	}

	actor := actorFrom(r)
	parent := productFromCreateRequest(&req.Parent)
	parent.CreatedBy = actor

	children := make([]*catalog.Product, 0, len(req.Children))
	for i := range req.Children {
		children = append(children, childFromRequest(&req.Children[i]))
	}

	if err := s.variations.CreateParentWithChildren(ctx, parent, children, actor, correlationID); err != nil {
		s.respondDomainError(w, r, err)

		return
	}

	view, err := s.variations.GetParentView(ctx, parent.ID)
	if err != nil {
		s.respondDomainError(w, r, err)

		return
	}

	s.logger.Info("Variation family created",
		slog.String("correlation_id", correlationID),
		slog.String("parent_id", parent.ID),
		slog.Int("children", len(children)),
		slog.Duration("duration", time.Since(startTime)),
	)

	s.respondJSON(w, r, http.StatusCreated, VariationFamilyResponse{
		Parent: toProductResponse(view.Parent),
		Matrix: matrixOrEmpty(view.Matrix),
	})
}

// handleGetVariationFamily handles GET /api/v1/variations/{parentId}.
// Returns the parent product and its variation matrix: one entry per child
// with the attribute tuple, price and availability.
func (s *Server) handleGetVariationFamily(w http.ResponseWriter, r *http.Request) {
	view, err := s.variations.GetParentView(r.Context(), r.PathValue("parentId"))
	if err != nil {
		s.respondDomainError(w, r, err)

		return
	}

	s.respondJSON(w, r, http.StatusOK, VariationFamilyResponse{
		Parent: toProductResponse(view.Parent),
		Matrix: matrixOrEmpty(view.Matrix),
	})
}

// handleAddChild handles POST /api/v1/variations/{parentId}/children.
// Adds one child variation to an existing parent. The child's attribute
// tuple must use the parent's declared attribute names and must not collide
// with an existing sibling.
func (s *Server) handleAddChild(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	correlationID := middleware.GetCorrelationID(ctx)
	parentID := r.PathValue("parentId")

	if !hasJSONContentType(r.Header.Get("Content-Type")) {
		WriteErrorResponse(w, r, s.logger, UnsupportedMediaType("Content-Type must be application/json"))

		return
	}

	var req ChildVariationRequest
	if problem := s.decodeJSONBody(r, &req); problem != nil {
		WriteErrorResponse(w, r, s.logger, problem)

		return
	}

	child := childFromRequest(&req)

	if err := s.variations.AddChild(ctx, parentID, child, actorFrom(r), correlationID); err != nil {
		s.respondDomainError(w, r, err)

		return
	}

	s.logger.Info("Child variation added",
		slog.String("correlation_id", correlationID),
		slog.String("parent_id", parentID),
		slog.String("child_id", child.ID),
	)

	s.respondJSON(w, r, http.StatusCreated, toProductResponse(child))
}

// handleFilterChildren handles GET /api/v1/variations/{parentId}/children.
// Returns the parent's children narrowed by attribute constraints passed as
// query parameters, e.g. ?color=red&size=M. No constraints returns every
// child.
func (s *Server) handleFilterChildren(w http.ResponseWriter, r *http.Request) {
	parentID := r.PathValue("parentId")

	constraints := make(map[string]string)
	for key, values := range r.URL.Query() {
		if len(values) > 0 {
			constraints[key] = values[0]
		}
	}

	entries, err := s.variations.FilterChildren(r.Context(), parentID, constraints)
	if err != nil {
		s.respondDomainError(w, r, err)

		return
	}

	s.respondJSON(w, r, http.StatusOK, ChildListResponse{
		ParentID: parentID,
		Children: matrixOrEmpty(entries),
		Total:    len(entries),
	})
}

// handleUpdateChild handles PATCH /api/v1/variations/children/{childId}.
// Updates a child variation's own fields (name, price, attributes, media).
// Attribute changes re-check tuple uniqueness against the siblings; taxonomy
// fields stay inherited from the parent and are rejected here.
func (s *Server) handleUpdateChild(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	correlationID := middleware.GetCorrelationID(ctx)
	childID := r.PathValue("childId")

	if !hasJSONContentType(r.Header.Get("Content-Type")) {
		WriteErrorResponse(w, r, s.logger, UnsupportedMediaType("Content-Type must be application/json"))

		return
	}

	var req UpdateChildRequest
	if problem := s.decodeJSONBody(r, &req); problem != nil {
		WriteErrorResponse(w, r, s.logger, problem)

		return
	}

	fields := fieldUpdatesFromChildRequest(&req)

	updated, err := s.variations.UpdateChild(ctx, childID, fields, actorFrom(r), correlationID)
	if err != nil {
		s.respondDomainError(w, r, err)

		return
	}

	s.logger.Info("Child variation updated",
		slog.String("correlation_id", correlationID),
		slog.String("child_id", childID),
	)

	s.respondJSON(w, r, http.StatusOK, toProductResponse(updated))
}

// handleDeleteChild handles DELETE /api/v1/variations/children/{childId}.
// Soft-deletes a child variation and decrements the parent's variation count.
func (s *Server) handleDeleteChild(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	correlationID := middleware.GetCorrelationID(ctx)
	childID := r.PathValue("childId")

	if err := s.variations.DeleteChild(ctx, childID, actorFrom(r), correlationID); err != nil {
		s.respondDomainError(w, r, err)

		return
	}

	s.logger.Info("Child variation deleted",
		slog.String("correlation_id", correlationID),
		slog.String("child_id", childID),
	)

	w.WriteHeader(http.StatusNoContent)
}

// matrixOrEmpty materializes a nil matrix so list payloads serialize as [].
func matrixOrEmpty(entries []variations.MatrixEntry) []variations.MatrixEntry {
	if entries == nil {
		return []variations.MatrixEntry{}
	}

	return entries
}
