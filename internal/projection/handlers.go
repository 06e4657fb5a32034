package projection

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/aioutlet/product-service/internal/catalog"
	"github.com/aioutlet/product-service/internal/events"
)

// Inbound payload shapes. Producers outside this service own these contracts;
// unknown extra fields are ignored.
type (
	reviewPayload struct {
		ProductID        string `json:"productId"`
		SKU              string `json:"sku"`
		Rating           int    `json:"rating"`
		OldRating        int    `json:"oldRating"`
		VerifiedPurchase bool   `json:"verifiedPurchase"`
	}

	stockPayload struct {
		SKU               string `json:"sku"`
		ProductID         string `json:"productId"`
		AvailableQuantity int    `json:"availableQuantity"`
		LowStockThreshold *int   `json:"lowStockThreshold"`
	}

	salesPayload struct {
		ProductID       string `json:"productId"`
		SKU             string `json:"sku"`
		Category        string `json:"category"`
		SalesLast30Days int    `json:"salesLast30Days"`
		CategoryRank    int    `json:"categoryRank"`
	}

	viewsPayload struct {
		ProductID       string `json:"productId"`
		SKU             string `json:"sku"`
		ViewsLast7Days  int    `json:"viewsLast7Days"`
		ViewsPrior7Days int    `json:"viewsPrior7Days"`
	}

	qaPayload struct {
		ProductID string `json:"productId"`
		SKU       string `json:"sku"`
	}
)

func validateRating(field string, rating int) error {
	if rating < 1 || rating > 5 {
		return fmt.Errorf("%w: %s %d outside [1,5]", catalog.ErrValidation, field, rating)
	}

	return nil
}

// HandleReviewCreated folds one new review into the aggregates projection.
func (e *Engine) HandleReviewCreated(ctx context.Context, envelope *events.Envelope, correlationID string) error {
	var payload reviewPayload
	if err := envelope.DecodeData(&payload); err != nil {
		return err
	}

	if err := validateRating("rating", payload.Rating); err != nil {
		return err
	}

	productID, ok, err := e.resolveTarget(ctx, payload.ProductID, payload.SKU, events.TopicReviewCreated, correlationID)
	if err != nil || !ok {
		return err
	}

	sample := catalog.ReviewSample{Rating: payload.Rating, VerifiedPurchase: payload.VerifiedPurchase}

	applied, err := e.store.ApplyReviewCreated(ctx, envelope.ID, productID, sample)
	if err != nil {
		return e.absorbMissing(err, events.TopicReviewCreated, productID, correlationID)
	}

	e.logDuplicate(applied, events.TopicReviewCreated, envelope.ID)

	return nil
}

// HandleReviewUpdated moves one review between star buckets. An event without
// the old rating degrades to a pure add; the bucket the review previously
// occupied is unknown.
func (e *Engine) HandleReviewUpdated(ctx context.Context, envelope *events.Envelope, correlationID string) error {
	var payload reviewPayload
	if err := envelope.DecodeData(&payload); err != nil {
		return err
	}

	if err := validateRating("rating", payload.Rating); err != nil {
		return err
	}

	if payload.OldRating != 0 {
		if err := validateRating("oldRating", payload.OldRating); err != nil {
			return err
		}
	}

	productID, ok, err := e.resolveTarget(ctx, payload.ProductID, payload.SKU, events.TopicReviewUpdated, correlationID)
	if err != nil || !ok {
		return err
	}

	applied, err := e.store.ApplyReviewUpdated(ctx, envelope.ID, productID, payload.OldRating, payload.Rating)
	if err != nil {
		return e.absorbMissing(err, events.TopicReviewUpdated, productID, correlationID)
	}

	e.logDuplicate(applied, events.TopicReviewUpdated, envelope.ID)

	return nil
}

// HandleReviewDeleted removes one review from the aggregates projection,
// clamped so over-delivery never drives counters negative.
func (e *Engine) HandleReviewDeleted(ctx context.Context, envelope *events.Envelope, correlationID string) error {
	var payload reviewPayload
	if err := envelope.DecodeData(&payload); err != nil {
		return err
	}

	if err := validateRating("rating", payload.Rating); err != nil {
		return err
	}

	productID, ok, err := e.resolveTarget(ctx, payload.ProductID, payload.SKU, events.TopicReviewDeleted, correlationID)
	if err != nil || !ok {
		return err
	}

	sample := catalog.ReviewSample{Rating: payload.Rating, VerifiedPurchase: payload.VerifiedPurchase}

	applied, err := e.store.ApplyReviewDeleted(ctx, envelope.ID, productID, sample)
	if err != nil {
		return e.absorbMissing(err, events.TopicReviewDeleted, productID, correlationID)
	}

	e.logDuplicate(applied, events.TopicReviewDeleted, envelope.ID)

	return nil
}

// HandleStockUpdated replaces the availability projection and announces the
// out-of-stock to sellable edge.
func (e *Engine) HandleStockUpdated(ctx context.Context, envelope *events.Envelope, correlationID string) error {
	var payload stockPayload
	if err := envelope.DecodeData(&payload); err != nil {
		return err
	}

	if payload.AvailableQuantity < 0 {
		return fmt.Errorf("%w: availableQuantity %d is negative", catalog.ErrValidation, payload.AvailableQuantity)
	}

	if payload.LowStockThreshold != nil && *payload.LowStockThreshold < 0 {
		return fmt.Errorf("%w: lowStockThreshold %d is negative", catalog.ErrValidation, *payload.LowStockThreshold)
	}

	productID, ok, err := e.resolveTarget(ctx, payload.ProductID, payload.SKU, events.TopicInventoryStock, correlationID)
	if err != nil || !ok {
		return err
	}

	update := catalog.StockUpdate{
		AvailableQuantity: payload.AvailableQuantity,
		LowStockThreshold: payload.LowStockThreshold,
		ObservedAt:        envelopeTime(envelope),
	}

	transition, applied, err := e.store.ApplyStockUpdate(ctx, envelope.ID, productID, update)
	if err != nil {
		return e.absorbMissing(err, events.TopicInventoryStock, productID, correlationID)
	}

	e.logDuplicate(applied, events.TopicInventoryStock, envelope.ID)

	if applied && transition.Restocked() {
		e.announceRestock(ctx, productID, payload.AvailableQuantity, transition, correlationID)
	}

	return nil
}

// announceRestock emits product.back.in.stock. The availability mutation is
// already committed, so a failure here only loses the announcement; it is
// logged rather than returned to avoid a retry that dedup would skip.
func (e *Engine) announceRestock(ctx context.Context, productID string, quantity int, transition catalog.AvailabilityTransition, correlationID string) {
	product, err := e.store.GetProduct(ctx, productID)
	if err != nil {
		e.logger.Error("restocked product could not be read for announcement",
			slog.String("product_id", productID),
			slog.String("correlation_id", correlationID),
			slog.String("error", err.Error()),
		)

		return
	}

	e.emitter.BackInStock(ctx, product, quantity, transition, correlationID)
}

// HandleSalesUpdated caches the 30-day sales window and re-evaluates the
// sales-driven badge rules.
func (e *Engine) HandleSalesUpdated(ctx context.Context, envelope *events.Envelope, correlationID string) error {
	var payload salesPayload
	if err := envelope.DecodeData(&payload); err != nil {
		return err
	}

	if payload.SalesLast30Days < 0 {
		return fmt.Errorf("%w: salesLast30Days %d is negative", catalog.ErrValidation, payload.SalesLast30Days)
	}

	productID, ok, err := e.resolveTarget(ctx, payload.ProductID, payload.SKU, events.TopicSalesUpdated, correlationID)
	if err != nil || !ok {
		return err
	}

	metrics := catalog.SalesMetrics{
		Last30Days: catalog.SalesWindow{
			Units:        payload.SalesLast30Days,
			CategoryRank: payload.CategoryRank,
		},
		UpdatedAt: envelopeTime(envelope),
	}

	applied, err := e.store.CacheSalesMetrics(ctx, envelope.ID, productID, metrics)
	if err != nil {
		return e.absorbMissing(err, events.TopicSalesUpdated, productID, correlationID)
	}

	e.logDuplicate(applied, events.TopicSalesUpdated, envelope.ID)

	if applied {
		e.evaluateBadges(ctx, productID, []catalog.BadgeType{catalog.BadgeBestSeller, catalog.BadgeTrending}, correlationID)
	}

	return nil
}

// HandleViewsUpdated caches the view windows and re-evaluates the view-driven
// badge rules.
func (e *Engine) HandleViewsUpdated(ctx context.Context, envelope *events.Envelope, correlationID string) error {
	var payload viewsPayload
	if err := envelope.DecodeData(&payload); err != nil {
		return err
	}

	if payload.ViewsLast7Days < 0 || payload.ViewsPrior7Days < 0 {
		return fmt.Errorf("%w: view counts cannot be negative", catalog.ErrValidation)
	}

	productID, ok, err := e.resolveTarget(ctx, payload.ProductID, payload.SKU, events.TopicViewsUpdated, correlationID)
	if err != nil || !ok {
		return err
	}

	metrics := catalog.ViewMetrics{
		Last7Days:  payload.ViewsLast7Days,
		Prior7Days: payload.ViewsPrior7Days,
		UpdatedAt:  envelopeTime(envelope),
	}

	applied, err := e.store.CacheViewMetrics(ctx, envelope.ID, productID, metrics)
	if err != nil {
		return e.absorbMissing(err, events.TopicViewsUpdated, productID, correlationID)
	}

	e.logDuplicate(applied, events.TopicViewsUpdated, envelope.ID)

	if applied {
		e.evaluateBadges(ctx, productID, []catalog.BadgeType{catalog.BadgeTrending}, correlationID)
	}

	return nil
}

// HandleQuestionCreated bumps the question counter.
func (e *Engine) HandleQuestionCreated(ctx context.Context, envelope *events.Envelope, correlationID string) error {
	return e.adjustQA(ctx, envelope, correlationID, events.TopicQuestionCreated, e.store.AdjustQuestionCount, 1)
}

// HandleAnswerCreated bumps the answered counter, capped at the question total.
func (e *Engine) HandleAnswerCreated(ctx context.Context, envelope *events.Envelope, correlationID string) error {
	return e.adjustQA(ctx, envelope, correlationID, events.TopicAnswerCreated, e.store.AdjustAnswerCount, 1)
}

// HandleQuestionDeleted drops the question counter, clamped at zero.
func (e *Engine) HandleQuestionDeleted(ctx context.Context, envelope *events.Envelope, correlationID string) error {
	return e.adjustQA(ctx, envelope, correlationID, events.TopicQuestionDeleted, e.store.AdjustQuestionCount, -1)
}

func (e *Engine) adjustQA(
	ctx context.Context,
	envelope *events.Envelope,
	correlationID, topic string,
	adjust func(ctx context.Context, eventID, productID string, delta int) (bool, error),
	delta int,
) error {
	var payload qaPayload
	if err := envelope.DecodeData(&payload); err != nil {
		return err
	}

	productID, ok, err := e.resolveTarget(ctx, payload.ProductID, payload.SKU, topic, correlationID)
	if err != nil || !ok {
		return err
	}

	applied, err := adjust(ctx, envelope.ID, productID, delta)
	if err != nil {
		return e.absorbMissing(err, topic, productID, correlationID)
	}

	e.logDuplicate(applied, topic, envelope.ID)

	return nil
}
