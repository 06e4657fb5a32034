// Package middleware provides HTTP middleware components for the product catalog API.
package middleware

import (
	"context"
	"crypto/rand"
	"encoding/hex"
	"fmt"
	"net/http"
	"time"
)

// correlationIDLength is the ID length in hex characters (8 random bytes).
const correlationIDLength = 16

// correlationIDKey is the context key for correlation ID.
type correlationIDKey struct{}

// CorrelationID creates a middleware that threads a correlation ID through
// each request. An inbound X-Correlation-ID header wins; otherwise a fresh ID
// is generated. The ID is echoed on the response and stored in the request
// context for handlers and downstream event emission.
func CorrelationID() func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			correlationID := r.Header.Get("X-Correlation-ID")
			if correlationID == "" {
				correlationID = generateCorrelationID()
			}

			w.Header().Set("X-Correlation-ID", correlationID)

			ctx := context.WithValue(r.Context(), correlationIDKey{}, correlationID)

			next.ServeHTTP(w, r.WithContext(ctx))
		})
	}
}

// GetCorrelationID extracts the correlation ID from the request context.
func GetCorrelationID(ctx context.Context) string {
	if correlationID, ok := ctx.Value(correlationIDKey{}).(string); ok {
		return correlationID
	}

	return "unknown"
}

// generateCorrelationID returns 16 hex characters from crypto/rand, falling
// back to a nanosecond timestamp if the system entropy source fails.
func generateCorrelationID() string {
	bytes := make([]byte, correlationIDLength/2)
	if _, err := rand.Read(bytes); err != nil {
		stamp := fmt.Sprintf("%016x", time.Now().UnixNano())

		return stamp[len(stamp)-correlationIDLength:]
	}

	return hex.EncodeToString(bytes)
}
