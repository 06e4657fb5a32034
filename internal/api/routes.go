package api

import (
	"context"
	"encoding/json"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"github.com/aioutlet/product-service/internal/api/middleware"
)

const (
	healthCheckTimeout = 2 * time.Second
	expectedURLParts   = 2

	serviceName    = "product-service"
	serviceVersion = "v1.0.0" // TODO: inject version at build time
)

type (
	// HealthStatus represents the health check response structure.
	HealthStatus struct {
		Status      string `json:"status"`
		ServiceName string `json:"serviceName"`
		Version     string `json:"version"`
		Uptime      string `json:"uptime,omitempty"`
	}

	// Route represents an HTTP route configuration with a path and handler.
	// Used for declarative route registration with middleware bypass support.
	Route struct {
		Path    string           // The URL path for this route (e.g., "/ping", "/api/v1/products")
		Handler http.HandlerFunc // The HTTP handler function for this route
	}
)

// setupRoutes sets up all HTTP routes for the API server.
func (s *Server) setupRoutes(mux *http.ServeMux) {
	// Public endpoints: health probes and the import template download.
	s.registerPublicRoutes(
		mux,
		Route{"GET /ping", s.handlePing},     // K8s liveness probe
		Route{"GET /ready", s.handleReady},   // K8s readiness probe
		Route{"GET /health", s.handleHealth}, // Basic health check - status, uptime, version
		Route{"GET /api/v1/imports/template", s.handleImportTemplate},
		Route{"/", s.handleNotFound}, // Catch-all handler for 404 responses
	)

	// Product endpoints
	mux.HandleFunc("POST /api/v1/products", s.handleCreateProduct)
	mux.HandleFunc("GET /api/v1/products", s.handleListProducts)
	mux.HandleFunc("GET /api/v1/products/search", s.handleSearchProducts)
	mux.HandleFunc("GET /api/v1/products/{id}", s.handleGetProduct)
	mux.HandleFunc("PATCH /api/v1/products/{id}", s.handleUpdateProduct)
	mux.HandleFunc("DELETE /api/v1/products/{id}", s.handleDeleteProduct)
	mux.HandleFunc("POST /api/v1/products/{id}/reactivate", s.handleReactivateProduct)

	// Badge endpoints
	mux.HandleFunc("POST /api/v1/products/{id}/badges", s.handleAssignBadge)
	mux.HandleFunc("GET /api/v1/products/{id}/badges", s.handleProductBadges)
	mux.HandleFunc("DELETE /api/v1/products/{id}/badges/{type}", s.handleRemoveBadge)
	mux.HandleFunc("POST /api/v1/badges/bulk-assign", s.handleBulkAssignBadges)
	mux.HandleFunc("POST /api/v1/badges/evaluate", s.handleEvaluateBadges)
	mux.HandleFunc("GET /api/v1/badges/statistics", s.handleBadgeStatistics)
	mux.HandleFunc("PUT /api/v1/badges/rules", s.handleSeedBadgeRules)
	mux.HandleFunc("GET /api/v1/badges/rules", s.handleListBadgeRules)

	// Variation endpoints
	mux.HandleFunc("POST /api/v1/variations", s.handleCreateVariationFamily)
	mux.HandleFunc("GET /api/v1/variations/{parentId}", s.handleGetVariationFamily)
	mux.HandleFunc("POST /api/v1/variations/{parentId}/children", s.handleAddChild)
	mux.HandleFunc("GET /api/v1/variations/{parentId}/children", s.handleFilterChildren)
	mux.HandleFunc("PATCH /api/v1/variations/children/{childId}", s.handleUpdateChild)
	mux.HandleFunc("DELETE /api/v1/variations/children/{childId}", s.handleDeleteChild)

	// Size chart endpoints
	mux.HandleFunc("POST /api/v1/size-charts", s.handleCreateSizeChart)
	mux.HandleFunc("GET /api/v1/size-charts", s.handleListSizeCharts)
	mux.HandleFunc("GET /api/v1/size-charts/{chartId}", s.handleGetSizeChart)
	mux.HandleFunc("POST /api/v1/products/{id}/size-chart/{chartId}", s.handleAssignSizeChart)
	mux.HandleFunc("DELETE /api/v1/products/{id}/size-chart", s.handleUnassignSizeChart)

	// Bulk import endpoints
	mux.HandleFunc("POST /api/v1/imports", s.handleSubmitImport)
	mux.HandleFunc("GET /api/v1/imports", s.handleListImportJobs)
	mux.HandleFunc("GET /api/v1/imports/{jobId}", s.handleGetImportJob)
	mux.HandleFunc("GET /api/v1/imports/{jobId}/errors", s.handleImportJobErrors)
	mux.HandleFunc("POST /api/v1/imports/{jobId}/cancel", s.handleCancelImportJob)

	// Admin endpoints
	mux.HandleFunc("GET /api/v1/admin/indexes", s.handleListIndexes)
	mux.HandleFunc("GET /api/v1/admin/dead-letters", s.handleListDeadLetters)
}

// registerPublicRoutes registers HTTP routes that bypass authentication and rate limiting.
// This is a convenience method that:
//  1. Registers the route handler with the HTTP mux
//  2. Automatically registers the path as a public endpoint (bypasses auth middleware)
//
// Public routes should only be used for endpoints that need to be accessible
// without authentication (e.g., K8s liveness/readiness probes, monitoring tools,
// the import template download).
//
// Security Warning: Never register business logic endpoints as public routes.
//
// Example:
//
//	s.registerPublicRoutes(
//	    mux,
//	    Route{"/ping", s.handlePing},
//	    Route{"/health", s.handleHealth},
//	)
func (s *Server) registerPublicRoutes(mux *http.ServeMux, routes ...Route) {
	validHTTPMethods := map[string]bool{
		"GET":    true,
		"POST":   true,
		"PUT":    true,
		"PATCH":  true,
		"DELETE": true,
	}

	for _, route := range routes {
		mux.Handle(route.Path, route.Handler)

		// Strip method prefix for public endpoint bypass registration
		// Go 1.22+ method-based routing uses "GET /path" format
		// But r.URL.Path is just "/path" (no method prefix)
		path := route.Path

		parts := strings.Fields(path)
		// If the route path contains a method prefix (e.g., "GET /ping"), extract the path part.
		if len(parts) == expectedURLParts && validHTTPMethods[parts[0]] {
			path = strings.TrimSpace(parts[1]) // Extract path after method (e.g., "GET /ping" → "/ping")
		}

		// Skip registering an empty path as a public
		if path == "" {
			s.logger.Warn("Malformed route path detected, ignoring route", slog.String("path", path))

			continue
		}

		// Always register (handles both "GET /ping" and "/" formats)
		middleware.RegisterPublicEndpoint(path)
	}
}

// handlePing responds to ping requests for basic server validation.
func (s *Server) handlePing(w http.ResponseWriter, r *http.Request) {
	correlationID := middleware.GetCorrelationID(r.Context())

	w.Header().Set("Content-Type", "text/plain")
	w.Header().Set("X-Service-Version", serviceVersion)
	w.WriteHeader(http.StatusOK)

	_, err := w.Write([]byte("pong"))
	if err != nil {
		s.logger.Error("Failed to write ping response",
			slog.String("correlation_id", correlationID),
			slog.String("error", err.Error()),
		)
	}
}

// handleReady responds to Kubernetes readiness probes with storage backend health checks.
//
// Response codes:
//   - 200 OK: The product store is healthy and ready to accept traffic
//   - 503 Service Unavailable: Storage backend is unhealthy or unreachable
//
// K8s readiness probes use this endpoint to determine if the pod should receive traffic.
// If this endpoint returns 503, K8s will stop routing requests to the pod until it recovers.
//
// The check pings the product store only. The event publisher carries no
// health surface (a broker writer connects lazily per publish), so broker
// reachability never gates readiness.
func (s *Server) handleReady(w http.ResponseWriter, r *http.Request) {
	correlationID := middleware.GetCorrelationID(r.Context())

	// If the product store is not configured, return ready (degraded mode)
	if s.products == nil {
		s.logger.Warn("Product store not configured - readiness check disabled",
			slog.String("correlation_id", correlationID),
		)

		w.Header().Set("Content-Type", "text/plain")
		w.WriteHeader(http.StatusOK)

		_, err := w.Write([]byte("ready"))
		if err != nil {
			s.logger.Error("Failed to write ready response",
				slog.String("correlation_id", correlationID),
				slog.String("error", err.Error()),
			)
		}

		return
	}

	// Create context with 2-second timeout for storage health check
	ctx, cancel := context.WithTimeout(r.Context(), healthCheckTimeout)
	defer cancel()

	if err := s.products.HealthCheck(ctx); err != nil {
		s.logger.Error("Storage health check failed",
			slog.String("correlation_id", correlationID),
			slog.String("error", err.Error()),
		)

		// Return 503 Service Unavailable if storage backend is unhealthy
		w.Header().Set("Content-Type", "text/plain")
		w.WriteHeader(http.StatusServiceUnavailable)

		_, writeErr := w.Write([]byte("storage unavailable"))
		if writeErr != nil {
			s.logger.Error("Failed to write unavailable response",
				slog.String("correlation_id", correlationID),
				slog.String("error", writeErr.Error()),
			)
		}

		return
	}

	w.Header().Set("Content-Type", "text/plain")
	w.WriteHeader(http.StatusOK)

	_, err := w.Write([]byte("ready"))
	if err != nil {
		s.logger.Error("Failed to write ready response",
			slog.String("correlation_id", correlationID),
			slog.String("error", err.Error()),
		)
	}
}

// handleHealth returns detailed health status information.
func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	correlationID := middleware.GetCorrelationID(r.Context())

	// Calculate uptime if server has started
	var uptime string

	if !s.startTime.IsZero() {
		duration := time.Since(s.startTime)
		uptime = duration.Round(time.Second).String()
	}

	health := HealthStatus{
		Status:      "healthy",
		ServiceName: serviceName,
		Version:     serviceVersion,
		Uptime:      uptime,
	}

	data, err := json.Marshal(health)
	if err != nil {
		s.logger.Error("Failed to encode health response",
			slog.String("correlation_id", correlationID),
			slog.String("error", err.Error()),
		)

		WriteErrorResponse(w, r, s.logger, InternalServerError("Failed to encode health response"))

		return
	}

	w.Header().Set("Content-Type", "application/json")
	w.Header().Set("X-Service-Version", serviceVersion)
	w.WriteHeader(http.StatusOK)

	if _, err := w.Write(data); err != nil {
		s.logger.Error("Failed to write health response",
			slog.String("correlation_id", correlationID),
			slog.String("error", err.Error()),
		)
	}
}

// handleNotFound returns RFC 7807 compliant 404 responses for unknown endpoints.
func (s *Server) handleNotFound(w http.ResponseWriter, r *http.Request) {
	WriteErrorResponse(w, r, s.logger, NotFound("The requested resource was not found"))
}

// hasJSONContentType checks if Content-Type header starts with "application/json".
// This allows charset parameters (e.g., "application/json; charset=utf-8").
func hasJSONContentType(contentType string) bool {
	return strings.HasPrefix(strings.TrimSpace(contentType), "application/json")
}
