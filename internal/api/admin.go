package api

import (
	"net/http"

	"github.com/aioutlet/product-service/internal/storage"
)

// IndexListResponse reports the indexes present on the products table.
type IndexListResponse struct {
	Indexes []storage.IndexInfo `json:"indexes"`
	Total   int                 `json:"total"`
}

// handleListIndexes handles GET /api/v1/admin/indexes.
// Reports the product table indexes so operators can confirm the expected
// query paths are covered after migrations.
func (s *Server) handleListIndexes(w http.ResponseWriter, r *http.Request) {
	indexes, err := s.products.ListIndexes(r.Context())
	if err != nil {
		s.respondDomainError(w, r, err)

		return
	}

	if indexes == nil {
		indexes = []storage.IndexInfo{}
	}

	s.respondJSON(w, r, http.StatusOK, IndexListResponse{Indexes: indexes, Total: len(indexes)})
}

// DeadLetterListResponse reports parked inbound events, newest first.
type DeadLetterListResponse struct {
	Events []storage.ParkedEvent `json:"events"`
	Total  int                   `json:"total"`
	Limit  int                   `json:"limit"`
	Offset int                   `json:"offset"`
}

// handleListDeadLetters handles GET /api/v1/admin/dead-letters.
// Exposes deliveries that exhausted their retries so operators can inspect
// the raw payloads and decide whether to replay them.
func (s *Server) handleListDeadLetters(w http.ResponseWriter, r *http.Request) {
	page, err := parsePageParams(r)
	if err != nil {
		WriteErrorResponse(w, r, s.logger, BadRequest(err.Error()))

		return
	}

	events, total, err := s.products.ListDeadLetters(r.Context(), page)
	if err != nil {
		s.respondDomainError(w, r, err)

		return
	}

	if events == nil {
		events = []storage.ParkedEvent{}
	}

	s.respondJSON(w, r, http.StatusOK, DeadLetterListResponse{
		Events: events,
		Total:  total,
		Limit:  page.Limit,
		Offset: page.Offset,
	})
}
