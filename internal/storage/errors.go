package storage

import (
	"context"
	"database/sql"
	"database/sql/driver"
	"errors"
	"fmt"
	"strings"

	"github.com/lib/pq"

	"github.com/aioutlet/product-service/internal/catalog"
)

// Unique constraint names, kept in sync with the migrations. The conflict
// sentinel a duplicate maps to depends on which constraint fired.
const (
	constraintActiveSKU       = "uq_products_active_sku"
	constraintActiveChildAttr = "uq_products_active_child_attrs"
	constraintEventLedger     = "event_idempotency_pkey"
)

// PostgreSQL error codes this package classifies.
const (
	pqUniqueViolation     = "23505"
	pqForeignKeyViolation = "23503"
	pqSerializationFail   = "40001"
	pqDeadlockDetected    = "40P01"
	pqTooManyConnections  = "53300"
	pqAdminShutdown       = "57P01"
	pqConnectionClass     = "08"
)

// classifyError translates driver errors into the domain taxonomy so callers
// and the event router can branch on catalog sentinels instead of pq codes.
func classifyError(err error) error {
	if err == nil {
		return nil
	}

	if errors.Is(err, sql.ErrNoRows) {
		return catalog.ErrNotFound
	}

	if errors.Is(err, context.DeadlineExceeded) {
		return fmt.Errorf("%w: %v", catalog.ErrTimeout, err)
	}

	var pqErr *pq.Error
	if errors.As(err, &pqErr) {
		return classifyPQError(pqErr)
	}

	if errors.Is(err, sql.ErrConnDone) || errors.Is(err, driver.ErrBadConn) {
		return fmt.Errorf("%w: %v", catalog.ErrStoreUnavailable, err)
	}

	return err
}

// classifyPQError maps PostgreSQL error codes to domain sentinels. Class 08
// covers every connection exception; serialization failures and deadlocks are
// retryable and therefore transient.
func classifyPQError(pqErr *pq.Error) error {
	code := string(pqErr.Code)

	switch {
	case strings.HasPrefix(code, pqConnectionClass),
		code == pqTooManyConnections,
		code == pqAdminShutdown,
		code == pqSerializationFail,
		code == pqDeadlockDetected:
		return fmt.Errorf("%w: %v", catalog.ErrStoreUnavailable, pqErr)

	case code == pqUniqueViolation:
		return fmt.Errorf("%w: %v", conflictForConstraint(pqErr.Constraint), pqErr)

	case code == pqForeignKeyViolation:
		return fmt.Errorf("%w: %v", catalog.ErrValidation, pqErr)

	default:
		return fmt.Errorf("%w: %v", catalog.ErrInternal, pqErr)
	}
}

// conflictForConstraint resolves which uniqueness invariant a constraint
// protects.
func conflictForConstraint(constraint string) error {
	switch constraint {
	case constraintActiveSKU:
		return catalog.ErrDuplicateSKU
	case constraintActiveChildAttr:
		return catalog.ErrDuplicateAttributeTuple
	default:
		return catalog.ErrConflict
	}
}

// isTransientError reports whether the raw driver error would classify as
// retryable. Batch operations use it to abort early when the connection is
// gone rather than failing every remaining row.
func isTransientError(err error) bool {
	if err == nil {
		return false
	}

	return catalog.IsTransient(classifyError(err))
}
