package catalog

import (
	"context"
	"errors"
	"fmt"
	"net/http"
)

// Domain error kinds. Every error crossing a package boundary wraps exactly one
// of these so callers can classify with errors.Is regardless of where the error
// originated (store, engine, handler).
var (
	// ErrValidation indicates the caller supplied malformed or contradictory input.
	ErrValidation = errors.New("validation failed")

	// ErrNotFound indicates the referenced entity does not exist or is not active.
	ErrNotFound = errors.New("not found")

	// ErrConflict indicates a uniqueness or state invariant would be violated.
	ErrConflict = errors.New("conflict")

	// ErrForbidden indicates a non-admin attempted an admin operation.
	ErrForbidden = errors.New("forbidden")

	// ErrUnauthorized indicates missing or invalid credentials.
	ErrUnauthorized = errors.New("unauthorized")

	// ErrStoreUnavailable indicates a transient downstream failure. Event handlers
	// translate this into a redelivery request rather than dropping the event.
	ErrStoreUnavailable = errors.New("store unavailable")

	// ErrTimeout indicates an outbound call exceeded its deadline. Treated as
	// transient for retry classification.
	ErrTimeout = errors.New("timeout")

	// ErrInternal indicates a bug or unexpected failure.
	ErrInternal = errors.New("internal error")
)

// Conflict refinements. Each wraps ErrConflict so errors.Is(err, ErrConflict)
// holds for all of them.
var (
	// ErrDuplicateSKU is returned when a SKU collides with another active product.
	ErrDuplicateSKU = fmt.Errorf("%w: duplicate sku", ErrConflict)

	// ErrDuplicateBadge is returned when a product already holds a badge of the requested type.
	ErrDuplicateBadge = fmt.Errorf("%w: duplicate badge", ErrConflict)

	// ErrDuplicateAttributeTuple is returned when two children of the same parent
	// would share the same normalized variant attribute tuple.
	ErrDuplicateAttributeTuple = fmt.Errorf("%w: duplicate attribute tuple", ErrConflict)

	// ErrAlreadyActive is returned when reactivating a product that is not soft-deleted.
	ErrAlreadyActive = fmt.Errorf("%w: already active", ErrConflict)
)

// ErrBadgeNotPresent is returned when removing a badge type the product does not hold.
var ErrBadgeNotPresent = fmt.Errorf("%w: badge not present", ErrNotFound)

// HTTPStatus maps a domain error to the HTTP status code the API surface reports.
// Unknown errors map to 500.
func HTTPStatus(err error) int {
	switch {
	case errors.Is(err, ErrValidation):
		return http.StatusBadRequest
	case errors.Is(err, ErrUnauthorized):
		return http.StatusUnauthorized
	case errors.Is(err, ErrForbidden):
		return http.StatusForbidden
	case errors.Is(err, ErrNotFound):
		return http.StatusNotFound
	case errors.Is(err, ErrConflict):
		return http.StatusConflict
	case errors.Is(err, ErrStoreUnavailable), errors.Is(err, ErrTimeout):
		return http.StatusServiceUnavailable
	default:
		return http.StatusInternalServerError
	}
}

// IsTransient reports whether an error should be retried rather than dropped.
// Store outages and deadline expiries qualify; validation and conflict errors do not.
func IsTransient(err error) bool {
	return errors.Is(err, ErrStoreUnavailable) ||
		errors.Is(err, ErrTimeout) ||
		errors.Is(err, context.DeadlineExceeded)
}
