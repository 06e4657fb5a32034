package events

// Inbound topics this service subscribes to. Each topic has exactly one
// projection or pipeline handler; the router owns the mapping.
const (
	TopicReviewCreated        = "review.created"
	TopicReviewUpdated        = "review.updated"
	TopicReviewDeleted        = "review.deleted"
	TopicInventoryStock       = "inventory.stock.updated"
	TopicSalesUpdated         = "analytics.product.sales.updated"
	TopicViewsUpdated         = "analytics.product.views.updated"
	TopicQuestionCreated      = "product.question.created"
	TopicAnswerCreated        = "product.answer.created"
	TopicQuestionDeleted      = "product.question.deleted"
	TopicBulkImportJobCreated = "product.bulk.import.job.created"
)

// Outbound topics this service publishes.
const (
	TopicProductCreated      = "product.created"
	TopicProductUpdated      = "product.updated"
	TopicProductDeleted      = "product.deleted"
	TopicProductBackInStock  = "product.back.in.stock"
	TopicBadgeAssigned       = "product.badge.assigned"
	TopicBadgeRemoved        = "product.badge.removed"
	TopicBadgeAutoAssigned   = "product.badge.auto.assigned"
	TopicBadgeAutoRemoved    = "product.badge.auto.removed"
	TopicVariationCreated    = "product.variation.created"
	TopicVariationUpdated    = "product.variation.updated"
	TopicVariationDeleted    = "product.variation.deleted"
	TopicSizeChartAssigned   = "product.sizechart.assigned"
	TopicSizeChartUnassigned = "product.sizechart.unassigned"
	TopicBulkImportProgress  = "product.bulk.import.progress"
	TopicBulkImportCompleted = "product.bulk.import.completed"
	TopicBulkImportFailed    = "product.bulk.import.failed"
	TopicBulkBadgeCompleted  = "product.bulk.completed"
	TopicBulkBadgeFailed     = "product.bulk.failed"
)

// InboundTopics lists every topic the router subscribes to, in the order the
// reader goroutines are started.
func InboundTopics() []string {
	return []string{
		TopicReviewCreated,
		TopicReviewUpdated,
		TopicReviewDeleted,
		TopicInventoryStock,
		TopicSalesUpdated,
		TopicViewsUpdated,
		TopicQuestionCreated,
		TopicAnswerCreated,
		TopicQuestionDeleted,
		TopicBulkImportJobCreated,
	}
}

// OutboundTopics lists every topic this service may publish. Topics are
// auto-created on first write; the list exists for provisioning scripts and
// tests.
func OutboundTopics() []string {
	return []string{
		TopicBulkImportJobCreated,
		TopicProductCreated,
		TopicProductUpdated,
		TopicProductDeleted,
		TopicProductBackInStock,
		TopicBadgeAssigned,
		TopicBadgeRemoved,
		TopicBadgeAutoAssigned,
		TopicBadgeAutoRemoved,
		TopicVariationCreated,
		TopicVariationUpdated,
		TopicVariationDeleted,
		TopicSizeChartAssigned,
		TopicSizeChartUnassigned,
		TopicBulkImportProgress,
		TopicBulkImportCompleted,
		TopicBulkImportFailed,
		TopicBulkBadgeCompleted,
		TopicBulkBadgeFailed,
	}
}
