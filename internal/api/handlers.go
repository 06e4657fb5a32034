package api

import (
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"strconv"

	"github.com/aioutlet/product-service/internal/api/middleware"
	"github.com/aioutlet/product-service/internal/catalog"
)

const (
	// Pagination defaults and limits.
	defaultLimit = 20
	maxLimit     = 100
	minLimit     = 1
)

// paramError represents a query parameter validation error.
type paramError struct {
	param string
	msg   string
}

func (e *paramError) Error() string {
	return "Invalid parameter '" + e.param + "': " + e.msg
}

// decodeJSONBody parses the request body into dst. Returns a ProblemDetail
// when the body is missing, oversized, or not valid JSON.
func (s *Server) decodeJSONBody(r *http.Request, dst any) *ProblemDetail {
	// Request size check (optimization: fail fast for known oversized requests)
	// Allow unknown sizes (-1) or 0 (empty, caught later)
	if r.ContentLength > 0 && r.ContentLength > s.config.MaxRequestSize {
		return PayloadTooLarge(
			fmt.Sprintf("Request body exceeds maximum size of %d bytes", s.config.MaxRequestSize),
		)
	}

	// Empty body check (better UX: specific error message)
	if r.ContentLength == 0 {
		return BadRequest("Request body cannot be empty")
	}

	decoder := json.NewDecoder(io.LimitReader(r.Body, s.config.MaxRequestSize))
	if err := decoder.Decode(dst); err != nil {
		return BadRequest("Invalid JSON: " + err.Error())
	}

	return nil
}

// respondJSON marshals payload and writes it with the given status code.
// Marshaling happens before headers so encode failures can still produce an
// RFC 7807 error response.
func (s *Server) respondJSON(w http.ResponseWriter, r *http.Request, statusCode int, payload any) {
	data, err := json.Marshal(payload)
	if err != nil {
		s.logger.ErrorContext(r.Context(), "Failed to marshal response",
			slog.String("correlation_id", middleware.GetCorrelationID(r.Context())),
			slog.String("path", r.URL.Path),
			slog.String("error", err.Error()),
		)
		WriteErrorResponse(w, r, s.logger, InternalServerError("Failed to encode response"))

		return
	}

	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(statusCode)
	_, _ = w.Write(data)
}

// respondDomainError maps a domain error onto an RFC 7807 response. Server
// faults are logged here; client faults carry their message to the caller.
func (s *Server) respondDomainError(w http.ResponseWriter, r *http.Request, err error) {
	problem := problemFromError(err)

	if problem.Status >= http.StatusInternalServerError {
		s.logger.ErrorContext(r.Context(), "Request failed",
			slog.String("correlation_id", middleware.GetCorrelationID(r.Context())),
			slog.String("path", r.URL.Path),
			slog.String("method", r.Method),
			slog.String("error", err.Error()),
		)
	}

	WriteErrorResponse(w, r, s.logger, problem)
}

// actorFrom derives the audit-trail actor from the authenticated service
// context. Unauthenticated requests (auth middleware disabled) fall back to
// "anonymous".
func actorFrom(r *http.Request) string {
	svcCtx, ok := middleware.GetServiceContext(r.Context())
	if !ok {
		return "anonymous"
	}

	if svcCtx.Name != "" {
		return svcCtx.Name
	}

	if svcCtx.ServiceID != "" {
		return svcCtx.ServiceID
	}

	return "anonymous"
}

// parsePageParams parses limit and offset query parameters with the shared
// bounds: limit 1-100 (default 20), offset >= 0.
func parsePageParams(r *http.Request) (catalog.Page, error) {
	q := r.URL.Query()

	page := catalog.Page{Limit: defaultLimit}

	if limitStr := q.Get("limit"); limitStr != "" {
		limit, err := strconv.Atoi(limitStr)
		if err != nil {
			return page, &paramError{param: "limit", msg: "must be a valid integer"}
		}

		if limit < minLimit || limit > maxLimit {
			return page, &paramError{param: "limit", msg: "must be between 1 and 100"}
		}

		page.Limit = limit
	}

	if offsetStr := q.Get("offset"); offsetStr != "" {
		offset, err := strconv.Atoi(offsetStr)
		if err != nil {
			return page, &paramError{param: "offset", msg: "must be a valid integer"}
		}

		if offset < 0 {
			return page, &paramError{param: "offset", msg: "must be >= 0"}
		}

		page.Offset = offset
	}

	return page, nil
}
