// Package projection applies inbound service events to the denormalized
// fields on product records: review aggregates, availability, Q&A counters,
// and cached sales/view analytics windows.
//
// Handlers are idempotent through the store's event ledger: a redelivered
// envelope id applies nothing. Events that target a product this service has
// never seen are logged and acknowledged; late-arriving product creation does
// not retroactively apply past events.
package projection

import (
	"context"
	"errors"
	"log/slog"
	"time"

	"github.com/aioutlet/product-service/internal/badges"
	"github.com/aioutlet/product-service/internal/catalog"
	"github.com/aioutlet/product-service/internal/events"
)

type (
	// Store is the projection engine's slice of product persistence, satisfied
	// by the PostgreSQL product store. Every mutation takes the envelope id for
	// the idempotency ledger and reports applied=false for a duplicate.
	Store interface {
		ResolveProductID(ctx context.Context, productID, sku string) (string, error)
		GetProduct(ctx context.Context, id string) (*catalog.Product, error)
		ApplyReviewCreated(ctx context.Context, eventID, productID string, sample catalog.ReviewSample) (bool, error)
		ApplyReviewUpdated(ctx context.Context, eventID, productID string, oldRating, newRating int) (bool, error)
		ApplyReviewDeleted(ctx context.Context, eventID, productID string, sample catalog.ReviewSample) (bool, error)
		ApplyStockUpdate(ctx context.Context, eventID, productID string, update catalog.StockUpdate) (catalog.AvailabilityTransition, bool, error)
		AdjustQuestionCount(ctx context.Context, eventID, productID string, delta int) (bool, error)
		AdjustAnswerCount(ctx context.Context, eventID, productID string, delta int) (bool, error)
		CacheSalesMetrics(ctx context.Context, eventID, productID string, metrics catalog.SalesMetrics) (bool, error)
		CacheViewMetrics(ctx context.Context, eventID, productID string, metrics catalog.ViewMetrics) (bool, error)
	}

	// RuleEvaluator re-runs badge rules after an analytics projection lands.
	// Satisfied by the badge engine.
	RuleEvaluator interface {
		EvaluateRules(ctx context.Context, req badges.EvaluateRequest, correlationID string) (*badges.EvaluateReport, error)
	}

	// Engine holds the projection handlers for every inbound topic except the
	// bulk import pipeline, which has its own worker.
	Engine struct {
		store   Store
		rules   RuleEvaluator
		emitter *events.Emitter
		logger  *slog.Logger
	}
)

// NewEngine creates a projection engine. rules may be nil when badge
// re-evaluation on analytics updates is not wanted (tests, tooling).
func NewEngine(store Store, rules RuleEvaluator, emitter *events.Emitter, logger *slog.Logger) *Engine {
	return &Engine{
		store:   store,
		rules:   rules,
		emitter: emitter,
		logger:  logger,
	}
}

// Routes returns the router registrations for every projection topic.
func (e *Engine) Routes() []events.Route {
	return []events.Route{
		{Topic: events.TopicReviewCreated, Name: "projection.review.created", Handler: e.HandleReviewCreated},
		{Topic: events.TopicReviewUpdated, Name: "projection.review.updated", Handler: e.HandleReviewUpdated},
		{Topic: events.TopicReviewDeleted, Name: "projection.review.deleted", Handler: e.HandleReviewDeleted},
		{Topic: events.TopicInventoryStock, Name: "projection.inventory.stock", Handler: e.HandleStockUpdated},
		{Topic: events.TopicSalesUpdated, Name: "projection.analytics.sales", Handler: e.HandleSalesUpdated},
		{Topic: events.TopicViewsUpdated, Name: "projection.analytics.views", Handler: e.HandleViewsUpdated},
		{Topic: events.TopicQuestionCreated, Name: "projection.question.created", Handler: e.HandleQuestionCreated},
		{Topic: events.TopicAnswerCreated, Name: "projection.answer.created", Handler: e.HandleAnswerCreated},
		{Topic: events.TopicQuestionDeleted, Name: "projection.question.deleted", Handler: e.HandleQuestionDeleted},
	}
}

// resolveTarget maps the event's product reference to an id. A reference that
// resolves to nothing reports ok=false with the event already logged; the
// caller acknowledges without mutating.
func (e *Engine) resolveTarget(ctx context.Context, productID, sku, topic, correlationID string) (string, bool, error) {
	id, err := e.store.ResolveProductID(ctx, productID, sku)
	if err != nil {
		if errors.Is(err, catalog.ErrNotFound) {
			e.logTargetMissing(topic, productID, sku, correlationID)

			return "", false, nil
		}

		return "", false, err
	}

	return id, true, nil
}

// absorbMissing downgrades a not-found mutation failure to an acknowledged
// no-op. Everything else propagates for the router to classify.
func (e *Engine) absorbMissing(err error, topic, productID, correlationID string) error {
	if err == nil || !errors.Is(err, catalog.ErrNotFound) {
		return err
	}

	e.logTargetMissing(topic, productID, "", correlationID)

	return nil
}

func (e *Engine) logTargetMissing(topic, productID, sku, correlationID string) {
	e.logger.Warn("event targets unknown product; acknowledged without applying",
		slog.String("topic", topic),
		slog.String("product_id", productID),
		slog.String("sku", sku),
		slog.String("correlation_id", correlationID),
	)
}

func (e *Engine) logDuplicate(applied bool, topic, eventID string) {
	if applied {
		return
	}

	e.logger.Debug("duplicate event skipped",
		slog.String("topic", topic),
		slog.String("event_id", eventID),
	)
}

// evaluateBadges re-runs the rules for one product after an analytics window
// changed. Failures are logged, not returned: the projection already
// committed, and the next analytics event re-evaluates.
func (e *Engine) evaluateBadges(ctx context.Context, productID string, badgeTypes []catalog.BadgeType, correlationID string) {
	if e.rules == nil {
		return
	}

	req := badges.EvaluateRequest{
		ProductIDs: []string{productID},
		BadgeTypes: badgeTypes,
	}

	if _, err := e.rules.EvaluateRules(ctx, req, correlationID); err != nil {
		e.logger.Warn("badge evaluation after analytics update failed",
			slog.String("product_id", productID),
			slog.String("correlation_id", correlationID),
			slog.String("error", err.Error()),
		)
	}
}

// envelopeTime parses the envelope's occurrence instant. Zero when absent or
// malformed; the store stamps the current time instead.
func envelopeTime(envelope *events.Envelope) time.Time {
	t, err := time.Parse(time.RFC3339, envelope.Time)
	if err != nil {
		return time.Time{}
	}

	return t
}
