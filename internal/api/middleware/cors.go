// Package middleware provides HTTP middleware components for the product catalog API.
package middleware

import (
	"net/http"
	"strconv"
	"strings"
)

// CORSConfig is the subset of the server configuration the CORS middleware
// needs. The concrete type lives in internal/api/config.go.
type CORSConfig interface {
	GetAllowedOrigins() []string
	GetAllowedMethods() []string
	GetAllowedHeaders() []string
	GetMaxAge() int
}

// CORS creates a middleware that handles Cross-Origin Resource Sharing.
// Preflight OPTIONS requests are answered directly with 204.
func CORS(config CORSConfig) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			header := w.Header()

			if origin := resolveAllowedOrigin(r, config.GetAllowedOrigins()); origin != "" {
				header.Set("Access-Control-Allow-Origin", origin)
			}

			if methods := config.GetAllowedMethods(); len(methods) > 0 {
				header.Set("Access-Control-Allow-Methods", strings.Join(methods, ", "))
			}

			if allowed := config.GetAllowedHeaders(); len(allowed) > 0 {
				header.Set("Access-Control-Allow-Headers", strings.Join(allowed, ", "))
			}

			if maxAge := config.GetMaxAge(); maxAge > 0 {
				header.Set("Access-Control-Max-Age", strconv.Itoa(maxAge))
			}

			if r.Method == http.MethodOptions {
				w.WriteHeader(http.StatusNoContent)

				return
			}

			next.ServeHTTP(w, r)
		})
	}
}

// resolveAllowedOrigin picks the Access-Control-Allow-Origin value for this
// request: "*" when the configuration allows everything, the request origin
// when it is on the allow list, empty otherwise.
func resolveAllowedOrigin(r *http.Request, allowedOrigins []string) string {
	if len(allowedOrigins) == 0 {
		return ""
	}

	if len(allowedOrigins) == 1 && allowedOrigins[0] == "*" {
		return "*"
	}

	origin := r.Header.Get("Origin")
	for _, allowed := range allowedOrigins {
		if origin == allowed {
			return origin
		}
	}

	return ""
}
