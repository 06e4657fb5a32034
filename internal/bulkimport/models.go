// Package bulkimport implements batched product imports: CSV submissions,
// uploaded or fetched by URL, become jobs that a worker processes in batches,
// with progress and terminal outcomes announced as events.
//
// Submission and processing are decoupled through the broker. The submitting
// replica persists a job record and publishes the job payload; whichever
// replica receives the event claims the job with an atomic status transition,
// so a redelivered or duplicated job event never runs twice.
package bulkimport

import (
	"fmt"
	"strings"
	"time"

	"github.com/aioutlet/product-service/internal/catalog"
)

type (
	// JobStatus is the lifecycle state of an import job.
	JobStatus string

	// ImportMode selects the failure policy for a job.
	ImportMode string

	// Job is the persisted bookkeeping record of one bulk import.
	Job struct {
		ID     string
		Status JobStatus

		// ImportMode: partial commits valid rows and reports row errors;
		// allOrNothing rejects the whole job on the first invalid row.
		ImportMode ImportMode

		TotalRows     int
		ProcessedRows int
		SuccessCount  int
		ErrorCount    int

		// RowErrors lists per-row failures, capped at maxRecordedErrors.
		RowErrors []RowError

		// Reason explains a failed or cancelled job.
		Reason string

		CreatedBy   string
		CreatedAt   time.Time
		StartedAt   *time.Time
		CompletedAt *time.Time
	}

	// RowError is one rejected row or cell. RowNumber counts from the first
	// line of the submitted file, so the header row is line 1 and the first
	// data row is line 2.
	RowError struct {
		RowNumber    int    `json:"rowNumber"`
		FieldName    string `json:"fieldName,omitempty"`
		Description  string `json:"description"`
		Suggestion   string `json:"suggestion,omitempty"`
		CurrentValue string `json:"currentValue,omitempty"`
	}

	// Row is one validated product row. Rows travel inside the job-created
	// event payload, so the fields carry wire names. RowNumber follows the
	// RowError convention: the header row is line 1.
	Row struct {
		RowNumber   int      `json:"rowNumber"`
		SKU         string   `json:"sku"`
		Name        string   `json:"name"`
		Price       float64  `json:"price"`
		Description string   `json:"description,omitempty"`
		Brand       string   `json:"brand,omitempty"`
		Department  string   `json:"department,omitempty"`
		Category    string   `json:"category,omitempty"`
		Subcategory string   `json:"subcategory,omitempty"`
		ProductType string   `json:"productType,omitempty"`
		Tags        []string `json:"tags,omitempty"`
		Images      []string `json:"images,omitempty"`
		Colors      []string `json:"colors,omitempty"`
		Sizes       []string `json:"sizes,omitempty"`
	}
)

const (
	// JobPending: persisted, waiting for a worker to claim it.
	JobPending JobStatus = "pending"

	// JobProcessing: claimed by a worker, batches in flight.
	JobProcessing JobStatus = "processing"

	// JobCompleted: all rows processed; ErrorCount may be non-zero in partial mode.
	JobCompleted JobStatus = "completed"

	// JobFailed: aborted by policy or a fatal error.
	JobFailed JobStatus = "failed"

	// JobCancelled: stopped by an operator before completion.
	JobCancelled JobStatus = "cancelled"
)

const (
	// ModePartial commits valid rows and records errors for the rest.
	ModePartial ImportMode = "partial"

	// ModeAllOrNothing rejects the entire job when any row is invalid.
	ModeAllOrNothing ImportMode = "allOrNothing"
)

// maxRecordedErrors caps the per-job error list so a pathological file cannot
// bloat the job record.
const maxRecordedErrors = 100

// IsTerminal reports whether no further transitions can happen.
func (s JobStatus) IsTerminal() bool {
	switch s {
	case JobCompleted, JobFailed, JobCancelled:
		return true
	case JobPending, JobProcessing:
		return false
	default:
		return false
	}
}

// String returns the string representation of JobStatus.
func (s JobStatus) String() string {
	return string(s)
}

// IsValid checks if the ImportMode is a supported failure policy.
func (m ImportMode) IsValid() bool {
	switch m {
	case ModePartial, ModeAllOrNothing:
		return true
	default:
		return false
	}
}

// String returns the string representation of ImportMode.
func (m ImportMode) String() string {
	return string(m)
}

// ParseImportMode validates a client-supplied mode; empty defaults to partial.
func ParseImportMode(raw string) (ImportMode, error) {
	if raw == "" {
		return ModePartial, nil
	}

	mode := ImportMode(raw)
	if !mode.IsValid() {
		return "", fmt.Errorf("%w: unknown import mode %q", catalog.ErrValidation, raw)
	}

	return mode, nil
}

// CapErrors truncates a row error list to the recording cap.
func CapErrors(errors []RowError) []RowError {
	if len(errors) <= maxRecordedErrors {
		return errors
	}

	return errors[:maxRecordedErrors]
}

// Product materializes the row as a standalone active catalog product
// attributed to the job creator. Colors and sizes become specification
// entries; a standalone product carries no variant attribute tuple.
func (r Row) Product(createdBy string) *catalog.Product {
	product := &catalog.Product{
		SKU:           r.SKU,
		VariationType: catalog.VariationStandalone,
		Name:          r.Name,
		Description:   r.Description,
		Brand:         r.Brand,
		Price:         r.Price,
		Department:    r.Department,
		Category:      r.Category,
		Subcategory:   r.Subcategory,
		ProductType:   r.ProductType,
		Tags:          r.Tags,
		Images:        r.Images,
		IsActive:      true,
		CreatedBy:     createdBy,
	}

	if len(r.Colors) > 0 || len(r.Sizes) > 0 {
		product.Specifications = make(map[string]string, 2)
		if len(r.Colors) > 0 {
			product.Specifications["colors"] = strings.Join(r.Colors, ", ")
		}
		if len(r.Sizes) > 0 {
			product.Specifications["sizes"] = strings.Join(r.Sizes, ", ")
		}
	}

	return product
}
