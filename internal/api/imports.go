package api

import (
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"github.com/aioutlet/product-service/internal/api/middleware"
	"github.com/aioutlet/product-service/internal/bulkimport"
)

// handleSubmitImport handles POST /api/v1/imports.
// Accepts a CSV catalog import either as a raw text/csv body or as a JSON
// payload referencing a file URL. The job is parsed and queued synchronously
// and processed in the background; 202 returns the job in pending state.
//
// Responses:
//   - 202 Accepted: job queued, returns job with id for polling
//   - 400 Bad Request: empty body, malformed CSV header, or unknown mode
//   - 413 Payload Too Large: file exceeds the request size limit
//   - 415 Unsupported Media Type: neither text/csv nor application/json
func (s *Server) handleSubmitImport(w http.ResponseWriter, r *http.Request) {
	startTime := time.Now()
	ctx := r.Context()
	correlationID := middleware.GetCorrelationID(ctx)
	contentType := r.Header.Get("Content-Type")

	var (
		job *bulkimport.Job
		err error
	)

	switch {
	case hasJSONContentType(contentType):
		var req ImportSubmissionRequest
		if problem := s.decodeJSONBody(r, &req); problem != nil {
			WriteErrorResponse(w, r, s.logger, problem)

			return
		}

		if strings.TrimSpace(req.FileURL) == "" {
			WriteErrorResponse(w, r, s.logger, BadRequest("fileUrl is required"))

			return
		}

		var mode bulkimport.ImportMode

		mode, err = bulkimport.ParseImportMode(req.Mode)
		if err != nil {
			s.respondDomainError(w, r, err)

			return
		}

		job, err = s.imports.SubmitFromURL(ctx, req.FileURL, mode, actorFrom(r), correlationID)

	case hasCSVContentType(contentType):
		if r.ContentLength > s.config.MaxRequestSize {
			WriteErrorResponse(w, r, s.logger, PayloadTooLarge(
				fmt.Sprintf("Request body exceeds maximum size of %d bytes", s.config.MaxRequestSize)))

			return
		}

		if r.ContentLength == 0 {
			WriteErrorResponse(w, r, s.logger, BadRequest("Request body cannot be empty"))

			return
		}

		var mode bulkimport.ImportMode

		mode, err = bulkimport.ParseImportMode(r.URL.Query().Get("mode"))
		if err != nil {
			s.respondDomainError(w, r, err)

			return
		}

		job, err = s.imports.Submit(ctx, io.LimitReader(r.Body, s.config.MaxRequestSize), mode, actorFrom(r), correlationID)

	default:
		WriteErrorResponse(w, r, s.logger, UnsupportedMediaType("Content-Type must be text/csv or application/json"))

		return
	}

	if err != nil {
		s.respondDomainError(w, r, err)

		return
	}

	s.logger.Info("Import job accepted",
		slog.String("correlation_id", correlationID),
		slog.String("job_id", job.ID),
		slog.String("mode", job.ImportMode.String()),
		slog.Int("total_rows", job.TotalRows),
		slog.Duration("duration", time.Since(startTime)),
	)

	s.respondJSON(w, r, http.StatusAccepted, toImportJobResponse(job))
}

// handleListImportJobs handles GET /api/v1/imports.
// Returns import jobs newest first.
func (s *Server) handleListImportJobs(w http.ResponseWriter, r *http.Request) {
	page, err := parsePageParams(r)
	if err != nil {
		WriteErrorResponse(w, r, s.logger, BadRequest(err.Error()))

		return
	}

	jobs, total, err := s.imports.ListJobs(r.Context(), page)
	if err != nil {
		s.respondDomainError(w, r, err)

		return
	}

	resp := ImportJobListResponse{
		Jobs:   make([]ImportJobResponse, 0, len(jobs)),
		Total:  total,
		Limit:  page.Limit,
		Offset: page.Offset,
	}

	for i := range jobs {
		resp.Jobs = append(resp.Jobs, toImportJobResponse(&jobs[i]))
	}

	s.respondJSON(w, r, http.StatusOK, resp)
}

// handleGetImportJob handles GET /api/v1/imports/{jobId}.
func (s *Server) handleGetImportJob(w http.ResponseWriter, r *http.Request) {
	job, err := s.imports.GetJob(r.Context(), r.PathValue("jobId"))
	if err != nil {
		s.respondDomainError(w, r, err)

		return
	}

	s.respondJSON(w, r, http.StatusOK, toImportJobResponse(job))
}

// handleImportJobErrors handles GET /api/v1/imports/{jobId}/errors.
// Returns the recorded row errors for a job. Recording is capped, so total
// reflects every failed row while errors holds at most the recorded subset.
func (s *Server) handleImportJobErrors(w http.ResponseWriter, r *http.Request) {
	job, err := s.imports.GetJob(r.Context(), r.PathValue("jobId"))
	if err != nil {
		s.respondDomainError(w, r, err)

		return
	}

	rowErrors := job.RowErrors
	if rowErrors == nil {
		rowErrors = []bulkimport.RowError{}
	}

	s.respondJSON(w, r, http.StatusOK, ImportErrorsResponse{
		JobID:  job.ID,
		Errors: rowErrors,
		Total:  job.ErrorCount,
	})
}

// handleCancelImportJob handles POST /api/v1/imports/{jobId}/cancel.
// Requests cancellation; rows already applied in partial mode stay applied.
func (s *Server) handleCancelImportJob(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	correlationID := middleware.GetCorrelationID(ctx)
	jobID := r.PathValue("jobId")

	if err := s.imports.Cancel(ctx, jobID); err != nil {
		s.respondDomainError(w, r, err)

		return
	}

	job, err := s.imports.GetJob(ctx, jobID)
	if err != nil {
		s.respondDomainError(w, r, err)

		return
	}

	s.logger.Info("Import job cancellation requested",
		slog.String("correlation_id", correlationID),
		slog.String("job_id", jobID),
		slog.String("status", string(job.Status)),
	)

	s.respondJSON(w, r, http.StatusOK, toImportJobResponse(job))
}

// handleImportTemplate handles GET /api/v1/imports/template.
// Serves the CSV template with the expected header and example rows. Public:
// the template carries no catalog data.
func (s *Server) handleImportTemplate(w http.ResponseWriter, _ *http.Request) {
	w.Header().Set("Content-Type", "text/csv; charset=utf-8")
	w.Header().Set("Content-Disposition", fmt.Sprintf("attachment; filename=%q", bulkimport.TemplateFilename))
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write(bulkimport.TemplateCSV())
}

// hasCSVContentType reports whether the Content-Type header is text/csv,
// ignoring any media type parameters.
func hasCSVContentType(contentType string) bool {
	return strings.HasPrefix(strings.TrimSpace(strings.ToLower(contentType)), "text/csv")
}
