package catalog

import (
	"fmt"
	"math"
)

// Review sample validation errors.
var (
	// ErrRatingOutOfRange indicates a review rating outside 1..5.
	ErrRatingOutOfRange = fmt.Errorf("%w: rating must be between 1 and 5", ErrValidation)
)

const (
	minRating = 1
	maxRating = 5
)

// ValidRating reports whether a star rating is within 1..5.
func ValidRating(rating int) bool {
	return rating >= minRating && rating <= maxRating
}

// roundRating rounds an average to two decimal places.
func roundRating(value float64) float64 {
	return math.Round(value*100) / 100
}

// AddSample counts one new review into the aggregates. The average is
// recomputed from the distribution so repeated increments never accumulate
// rounding drift.
func (ra *ReviewAggregates) AddSample(rating int, verifiedPurchase bool) error {
	if !ValidRating(rating) {
		return fmt.Errorf("%w: got %d", ErrRatingOutOfRange, rating)
	}

	dist := ra.RatingDistribution.Clone()
	dist[rating]++

	ra.RatingDistribution = dist
	ra.TotalReviews++

	if verifiedPurchase {
		ra.VerifiedPurchaseCount++
	}

	ra.recompute()

	return nil
}

// RemoveSample reverses one review. Counters clamp at zero so a mismatched or
// replayed removal can never drive the aggregates negative; when the last
// review is removed the average resets to 0, not NaN.
func (ra *ReviewAggregates) RemoveSample(rating int, verifiedPurchase bool) error {
	if !ValidRating(rating) {
		return fmt.Errorf("%w: got %d", ErrRatingOutOfRange, rating)
	}

	dist := ra.RatingDistribution.Clone()
	if dist[rating] > 0 {
		dist[rating]--
	}

	ra.RatingDistribution = dist

	if ra.TotalReviews > 0 {
		ra.TotalReviews--
	}

	if verifiedPurchase && ra.VerifiedPurchaseCount > 0 {
		ra.VerifiedPurchaseCount--
	}

	if ra.VerifiedPurchaseCount > ra.TotalReviews {
		ra.VerifiedPurchaseCount = ra.TotalReviews
	}

	ra.recompute()

	return nil
}

// ReplaceSample swaps an old rating for a new one without changing the review
// count. Used for review edits, where only the star value moved.
func (ra *ReviewAggregates) ReplaceSample(oldRating, newRating int) error {
	if !ValidRating(oldRating) {
		return fmt.Errorf("%w: got %d", ErrRatingOutOfRange, oldRating)
	}

	if !ValidRating(newRating) {
		return fmt.Errorf("%w: got %d", ErrRatingOutOfRange, newRating)
	}

	dist := ra.RatingDistribution.Clone()
	if dist[oldRating] > 0 {
		dist[oldRating]--
	}

	dist[newRating]++

	ra.RatingDistribution = dist
	ra.recompute()

	return nil
}

// recompute derives AverageRating from the distribution. The distribution is
// the source of truth; the average is always the weighted mean to two decimals.
func (ra *ReviewAggregates) recompute() {
	counted := ra.RatingDistribution.Sum()
	if counted == 0 || ra.TotalReviews == 0 {
		ra.AverageRating = 0

		return
	}

	ra.AverageRating = roundRating(float64(ra.RatingDistribution.WeightedSum()) / float64(counted))
}

// Consistent reports whether the aggregates satisfy their invariants: the
// distribution sums to the review total, the verified count does not exceed
// it, and the average matches the weighted mean to two decimals.
func (ra *ReviewAggregates) Consistent() bool {
	if ra.RatingDistribution.Sum() != ra.TotalReviews {
		return false
	}

	if ra.VerifiedPurchaseCount > ra.TotalReviews || ra.VerifiedPurchaseCount < 0 {
		return false
	}

	expected := 0.0
	if ra.TotalReviews > 0 {
		expected = roundRating(float64(ra.RatingDistribution.WeightedSum()) / float64(ra.TotalReviews))
	}

	return ra.AverageRating == expected
}
