package events

import (
	"context"
	"log/slog"
	"time"

	"github.com/aioutlet/product-service/internal/catalog"
)

// Emitter provides one typed publish method per outbound topic. Publish
// failures are logged and swallowed; an event that could not be emitted never
// rolls back the store mutation that triggered it.
type Emitter struct {
	publisher Publisher
	logger    *slog.Logger
}

// NewEmitter creates an emitter over the given publisher.
func NewEmitter(publisher Publisher, logger *slog.Logger) *Emitter {
	return &Emitter{
		publisher: publisher,
		logger:    logger,
	}
}

// ProductPayload is the data shape for product lifecycle events.
type ProductPayload struct {
	ProductID     string   `json:"productId"`
	SKU           string   `json:"sku"`
	Name          string   `json:"name"`
	Price         float64  `json:"price"`
	VariationType string   `json:"variationType"`
	ParentID      string   `json:"parentId,omitempty"`
	Category      string   `json:"category,omitempty"`
	IsActive      bool     `json:"isActive"`
	UpdatedFields []string `json:"updatedFields,omitempty"`
}

// BackInStockPayload is the data shape for product.back.in.stock.
type BackInStockPayload struct {
	ProductID         string `json:"productId"`
	SKU               string `json:"sku"`
	AvailableQuantity int    `json:"availableQuantity"`
	PreviousState     string `json:"previousState"`
	CurrentState      string `json:"currentState"`
}

// BadgePayload is the data shape for badge assignment events.
type BadgePayload struct {
	ProductID  string     `json:"productId"`
	BadgeType  string     `json:"badgeType"`
	AssignedBy string     `json:"assignedBy,omitempty"`
	ExpiresAt  *time.Time `json:"expiresAt,omitempty"`
	RuleID     string     `json:"ruleId,omitempty"`
}

// VariationPayload is the data shape for variation lifecycle events.
type VariationPayload struct {
	ParentID   string            `json:"parentId"`
	ProductID  string            `json:"productId"`
	SKU        string            `json:"sku"`
	Attributes map[string]string `json:"attributes,omitempty"`
}

// SizeChartPayload is the data shape for size chart assignment events.
type SizeChartPayload struct {
	ProductID   string `json:"productId"`
	SizeChartID string `json:"sizeChartId"`
}

// ImportJobPayload is the data shape for product.bulk.import.job.created.
// Products holds the pre-validated rows; the shape is owned by the bulk
// import pipeline on both the publish and consume side.
type ImportJobPayload struct {
	JobID      string `json:"jobId"`
	ImportMode string `json:"importMode"`
	TotalRows  int    `json:"totalRows"`
	Products   any    `json:"products"`
}

// ImportProgressPayload is the data shape for product.bulk.import.progress.
type ImportProgressPayload struct {
	JobID         string `json:"jobId"`
	ProcessedRows int    `json:"processedRows"`
	SuccessCount  int    `json:"successCount"`
	ErrorCount    int    `json:"errorCount"`
	TotalRows     int    `json:"totalRows"`
}

// ImportResultPayload is the data shape for bulk import terminal events.
type ImportResultPayload struct {
	JobID        string `json:"jobId"`
	Status       string `json:"status"`
	TotalRows    int    `json:"totalRows"`
	SuccessCount int    `json:"successCount"`
	ErrorCount   int    `json:"errorCount"`
	Reason       string `json:"reason,omitempty"`
}

// BulkBadgePayload is the data shape for bulk badge assignment outcomes.
type BulkBadgePayload struct {
	BadgeType string `json:"badgeType"`
	Requested int    `json:"requested"`
	Succeeded int    `json:"succeeded"`
	Skipped   int    `json:"skipped"`
	Failed    int    `json:"failed"`
	Reason    string `json:"reason,omitempty"`
}

func (e *Emitter) emit(ctx context.Context, topic string, data any, subject, correlationID string) {
	opts := PublishOptions{
		CorrelationID: correlationID,
		Subject:       subject,
	}

	if err := e.publisher.Publish(ctx, topic, data, opts); err != nil {
		e.logger.Error("event publish failed",
			slog.String("topic", topic),
			slog.String("subject", subject),
			slog.String("correlation_id", correlationID),
			slog.String("error", err.Error()),
		)
	}
}

func productPayload(product *catalog.Product, updatedFields []string) ProductPayload {
	return ProductPayload{
		ProductID:     product.ID,
		SKU:           product.SKU,
		Name:          product.Name,
		Price:         product.Price,
		VariationType: string(product.VariationType),
		ParentID:      product.ParentID,
		Category:      product.Category,
		IsActive:      product.IsActive,
		UpdatedFields: updatedFields,
	}
}

// ProductCreated emits product.created.
func (e *Emitter) ProductCreated(ctx context.Context, product *catalog.Product, correlationID string) {
	e.emit(ctx, TopicProductCreated, productPayload(product, nil), ProductSubject(product.ID), correlationID)
}

// ProductUpdated emits product.updated naming the changed fields.
func (e *Emitter) ProductUpdated(ctx context.Context, product *catalog.Product, updatedFields []string, correlationID string) {
	e.emit(ctx, TopicProductUpdated, productPayload(product, updatedFields), ProductSubject(product.ID), correlationID)
}

// ProductDeleted emits product.deleted after a soft delete.
func (e *Emitter) ProductDeleted(ctx context.Context, product *catalog.Product, correlationID string) {
	e.emit(ctx, TopicProductDeleted, productPayload(product, nil), ProductSubject(product.ID), correlationID)
}

// BackInStock emits product.back.in.stock for an outOfStock to available
// transition.
func (e *Emitter) BackInStock(ctx context.Context, product *catalog.Product, quantity int, transition catalog.AvailabilityTransition, correlationID string) {
	payload := BackInStockPayload{
		ProductID:         product.ID,
		SKU:               product.SKU,
		AvailableQuantity: quantity,
		PreviousState:     string(transition.Previous),
		CurrentState:      string(transition.Current),
	}
	e.emit(ctx, TopicProductBackInStock, payload, ProductSubject(product.ID), correlationID)
}

// BadgeAssigned emits product.badge.assigned for a manual assignment.
func (e *Emitter) BadgeAssigned(ctx context.Context, productID string, badge catalog.Badge, correlationID string) {
	payload := BadgePayload{
		ProductID:  productID,
		BadgeType:  string(badge.Type),
		AssignedBy: badge.AssignedBy,
		ExpiresAt:  badge.ExpiresAt,
	}
	e.emit(ctx, TopicBadgeAssigned, payload, ProductSubject(productID), correlationID)
}

// BadgeRemoved emits product.badge.removed for a manual removal.
func (e *Emitter) BadgeRemoved(ctx context.Context, productID string, badgeType catalog.BadgeType, correlationID string) {
	payload := BadgePayload{
		ProductID: productID,
		BadgeType: string(badgeType),
	}
	e.emit(ctx, TopicBadgeRemoved, payload, ProductSubject(productID), correlationID)
}

// BadgeAutoAssigned emits product.badge.auto.assigned for a rule-driven
// assignment.
func (e *Emitter) BadgeAutoAssigned(ctx context.Context, productID string, badge catalog.Badge, ruleID, correlationID string) {
	payload := BadgePayload{
		ProductID: productID,
		BadgeType: string(badge.Type),
		ExpiresAt: badge.ExpiresAt,
		RuleID:    ruleID,
	}
	e.emit(ctx, TopicBadgeAutoAssigned, payload, ProductSubject(productID), correlationID)
}

// BadgeAutoRemoved emits product.badge.auto.removed for a rule-driven removal.
func (e *Emitter) BadgeAutoRemoved(ctx context.Context, productID string, badgeType catalog.BadgeType, ruleID, correlationID string) {
	payload := BadgePayload{
		ProductID: productID,
		BadgeType: string(badgeType),
		RuleID:    ruleID,
	}
	e.emit(ctx, TopicBadgeAutoRemoved, payload, ProductSubject(productID), correlationID)
}

func variationPayload(child *catalog.Product) VariationPayload {
	attrs := make(map[string]string, len(child.VariantAttributes))
	for _, attr := range child.VariantAttributes {
		attrs[attr.Name] = attr.Value
	}

	return VariationPayload{
		ParentID:   child.ParentID,
		ProductID:  child.ID,
		SKU:        child.SKU,
		Attributes: attrs,
	}
}

// VariationCreated emits product.variation.created for a new child.
func (e *Emitter) VariationCreated(ctx context.Context, child *catalog.Product, correlationID string) {
	e.emit(ctx, TopicVariationCreated, variationPayload(child), ProductSubject(child.ParentID), correlationID)
}

// VariationUpdated emits product.variation.updated.
func (e *Emitter) VariationUpdated(ctx context.Context, child *catalog.Product, correlationID string) {
	e.emit(ctx, TopicVariationUpdated, variationPayload(child), ProductSubject(child.ParentID), correlationID)
}

// VariationDeleted emits product.variation.deleted after a child soft delete.
func (e *Emitter) VariationDeleted(ctx context.Context, child *catalog.Product, correlationID string) {
	e.emit(ctx, TopicVariationDeleted, variationPayload(child), ProductSubject(child.ParentID), correlationID)
}

// SizeChartAssigned emits product.sizechart.assigned.
func (e *Emitter) SizeChartAssigned(ctx context.Context, productID, sizeChartID, correlationID string) {
	payload := SizeChartPayload{ProductID: productID, SizeChartID: sizeChartID}
	e.emit(ctx, TopicSizeChartAssigned, payload, ProductSubject(productID), correlationID)
}

// SizeChartUnassigned emits product.sizechart.unassigned.
func (e *Emitter) SizeChartUnassigned(ctx context.Context, productID, sizeChartID, correlationID string) {
	payload := SizeChartPayload{ProductID: productID, SizeChartID: sizeChartID}
	e.emit(ctx, TopicSizeChartUnassigned, payload, ProductSubject(productID), correlationID)
}

// BulkImportJobCreated emits product.bulk.import.job.created with the
// validated rows. The router consumes the same topic, so any worker replica
// may pick the job up.
func (e *Emitter) BulkImportJobCreated(ctx context.Context, jobID, importMode string, totalRows int, products any, correlationID string) {
	payload := ImportJobPayload{
		JobID:      jobID,
		ImportMode: importMode,
		TotalRows:  totalRows,
		Products:   products,
	}
	e.emit(ctx, TopicBulkImportJobCreated, payload, JobSubject(jobID), correlationID)
}

// BulkImportProgress emits product.bulk.import.progress after each batch.
func (e *Emitter) BulkImportProgress(ctx context.Context, payload ImportProgressPayload, correlationID string) {
	e.emit(ctx, TopicBulkImportProgress, payload, JobSubject(payload.JobID), correlationID)
}

// BulkImportCompleted emits product.bulk.import.completed with final counts.
func (e *Emitter) BulkImportCompleted(ctx context.Context, payload ImportResultPayload, correlationID string) {
	e.emit(ctx, TopicBulkImportCompleted, payload, JobSubject(payload.JobID), correlationID)
}

// BulkImportFailed emits product.bulk.import.failed after a fatal pipeline
// error.
func (e *Emitter) BulkImportFailed(ctx context.Context, payload ImportResultPayload, correlationID string) {
	e.emit(ctx, TopicBulkImportFailed, payload, JobSubject(payload.JobID), correlationID)
}

// BulkBadgeCompleted emits product.bulk.completed with per-item outcome
// counts of a bulk badge assignment.
func (e *Emitter) BulkBadgeCompleted(ctx context.Context, payload BulkBadgePayload, correlationID string) {
	e.emit(ctx, TopicBulkBadgeCompleted, payload, "", correlationID)
}

// BulkBadgeFailed emits product.bulk.failed when a bulk badge assignment
// aborts.
func (e *Emitter) BulkBadgeFailed(ctx context.Context, payload BulkBadgePayload, correlationID string) {
	e.emit(ctx, TopicBulkBadgeFailed, payload, "", correlationID)
}
