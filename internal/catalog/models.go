// Package catalog provides the product domain model for the catalog service.
//
// Products are the central entity: standalone items, parents grouping
// variations, or child variations. Denormalized projections (review
// aggregates, availability, Q&A counts, sales/view metrics, badges) live on
// the product record and are kept in sync by event handlers. These are pure
// domain models without JSON tags; the API layer defines request/response
// types and maps to these.
package catalog

import (
	"sort"
	"time"
)

type (
	// VariationType distinguishes standalone products, variation parents, and
	// child variations.
	VariationType string

	// BadgeType is the closed set of badge kinds a product can carry.
	BadgeType string

	// AvailabilityState is the derived stock state of a product.
	AvailabilityState string

	// Product is the catalog entity - Domain Model.
	//
	// Ownership: each product record is exclusively owned by the product store.
	// Projection handlers mutate specific field subsets through atomic store
	// operations only; in-memory copies are transient reads.
	Product struct {
		// ID is an opaque unique identifier assigned at creation.
		ID string

		// SKU is an optional short merchant identifier. When present it is
		// unique across active products (case-insensitive).
		SKU string

		// VariationType is standalone, parent, or child.
		VariationType VariationType

		// ParentID references the parent product. Present iff VariationType is child.
		ParentID string

		// VariantAttributes is the ordered attribute tuple distinguishing this
		// child from its siblings. Present iff VariationType is child.
		VariantAttributes []VariantAttribute

		// VariationCount is the number of active children. Maintained on parents only.
		VariationCount int

		Name        string
		Description string
		Brand       string

		// Price is a non-negative decimal amount.
		Price float64

		// Taxonomy. Children inherit these from their parent at creation time.
		Department  string
		Category    string
		Subcategory string
		ProductType string

		Images         []string
		Tags           []string
		SearchKeywords []string
		Specifications map[string]string

		// Badges carried by the product. At most one entry per BadgeType.
		Badges []Badge

		// ReviewAggregates is the denormalized review projection.
		ReviewAggregates ReviewAggregates

		// Availability is the denormalized inventory projection.
		Availability AvailabilityStatus

		// QAStats is the denormalized question/answer projection.
		QAStats QAStats

		// SalesMetrics and ViewMetrics are cached analytics windows consumed by
		// badge rules.
		SalesMetrics SalesMetrics
		ViewMetrics  ViewMetrics

		// SizeChartID references an assigned size chart, if any.
		SizeChartID string

		// IsActive is the soft-delete flag.
		IsActive bool

		CreatedAt time.Time
		UpdatedAt time.Time
		CreatedBy string
		UpdatedBy string

		// History is the append-only audit trail of admin mutations.
		History []HistoryEntry
	}

	// VariantAttribute is a (name, value) pair such as color=red or size=XL.
	VariantAttribute struct {
		Name        string
		Value       string
		DisplayName string
	}

	// Badge is a tag on a product, either manually assigned or produced by a rule.
	Badge struct {
		Type BadgeType

		AssignedAt time.Time

		// AssignedBy identifies the admin who assigned the badge. Empty for
		// automated (rule-assigned) badges. Manual badges are never removed by
		// rule evaluation.
		AssignedBy string

		// ExpiresAt, when set, drops the badge from active-badge projections
		// once current time reaches it.
		ExpiresAt *time.Time

		Metadata map[string]any
	}

	// ReviewAggregates is the denormalized review summary on a product.
	//
	// Invariants: AverageRating equals the distribution-weighted mean to two
	// decimals (0 when TotalReviews is 0); RatingDistribution sums to
	// TotalReviews; VerifiedPurchaseCount never exceeds TotalReviews.
	ReviewAggregates struct {
		AverageRating         float64
		TotalReviews          int
		VerifiedPurchaseCount int

		// RatingDistribution counts reviews per star (keys 1..5).
		RatingDistribution RatingDistribution
	}

	// RatingDistribution counts reviews per star rating, keys 1 through 5.
	RatingDistribution map[int]int

	// AvailabilityStatus is the denormalized inventory projection.
	AvailabilityStatus struct {
		State             AvailabilityState
		AvailableQuantity int
		LowStockThreshold int
		LastUpdated       time.Time
	}

	// QAStats is the denormalized question/answer projection.
	QAStats struct {
		TotalQuestions    int
		AnsweredQuestions int
		LastUpdated       time.Time
	}

	// SalesMetrics caches the most recent sales analytics window.
	SalesMetrics struct {
		Last30Days SalesWindow
		UpdatedAt  time.Time
	}

	// SalesWindow is a 30-day sales bucket.
	SalesWindow struct {
		Units        int
		CategoryRank int
	}

	// ViewMetrics caches the most recent view analytics windows.
	ViewMetrics struct {
		Last7Days  int
		Prior7Days int
		UpdatedAt  time.Time
	}

	// HistoryEntry records one admin mutation for the audit trail.
	HistoryEntry struct {
		Actor     string
		Timestamp time.Time
		Changes   map[string]any
	}

	// SizeChart is a named sizing table assignable to products.
	SizeChart struct {
		ID        string
		Name      string
		SizeType  string
		Rows      []SizeChartRow
		CreatedAt time.Time
		CreatedBy string
	}

	// SizeChartRow is one measurement row of a size chart.
	SizeChartRow struct {
		Label        string
		Measurements map[string]string
	}
)

const (
	// VariationStandalone is a product with no parent and no children.
	VariationStandalone VariationType = "standalone"

	// VariationParent groups child variations. A parent's type never changes
	// while it has active children.
	VariationParent VariationType = "parent"

	// VariationChild is a variation of a parent product.
	VariationChild VariationType = "child"
)

const (
	// BadgeNew marks recently created products.
	BadgeNew BadgeType = "new"

	// BadgeSale marks discounted products.
	BadgeSale BadgeType = "sale"

	// BadgeTrending marks products with accelerating views.
	BadgeTrending BadgeType = "trending"

	// BadgeFeatured marks editorially promoted products.
	BadgeFeatured BadgeType = "featured"

	// BadgeBestSeller marks top-selling products.
	BadgeBestSeller BadgeType = "bestSeller"

	// BadgeLowStock marks products close to selling out.
	BadgeLowStock BadgeType = "lowStock"
)

const (
	// AvailabilityInStock: quantity above the low-stock threshold.
	AvailabilityInStock AvailabilityState = "inStock"

	// AvailabilityLowStock: quantity positive but at or below the threshold.
	AvailabilityLowStock AvailabilityState = "lowStock"

	// AvailabilityOutOfStock: quantity is zero.
	AvailabilityOutOfStock AvailabilityState = "outOfStock"
)

// badgePriorities orders badges for display selection. Higher wins.
var badgePriorities = map[BadgeType]int{
	BadgeNew:        1,
	BadgeLowStock:   2,
	BadgeSale:       3,
	BadgeTrending:   4,
	BadgeBestSeller: 5,
	BadgeFeatured:   6,
}

// ValidBadgeTypes returns all badge types in display-priority order (lowest first).
func ValidBadgeTypes() []BadgeType {
	return []BadgeType{BadgeNew, BadgeLowStock, BadgeSale, BadgeTrending, BadgeBestSeller, BadgeFeatured}
}

// IsValid checks if the BadgeType is one of the closed badge set.
func (bt BadgeType) IsValid() bool {
	_, ok := badgePriorities[bt]

	return ok
}

// String returns the string representation of BadgeType.
func (bt BadgeType) String() string {
	return string(bt)
}

// DisplayPriority returns the badge's display rank. Higher-priority badges win
// the display slot. Unknown types rank 0.
func (bt BadgeType) DisplayPriority() int {
	return badgePriorities[bt]
}

// IsValid checks if the VariationType is a valid enum value.
func (vt VariationType) IsValid() bool {
	switch vt {
	case VariationStandalone, VariationParent, VariationChild:
		return true
	default:
		return false
	}
}

// String returns the string representation of VariationType.
func (vt VariationType) String() string {
	return string(vt)
}

// IsValid checks if the AvailabilityState is a valid enum value.
func (as AvailabilityState) IsValid() bool {
	switch as {
	case AvailabilityInStock, AvailabilityLowStock, AvailabilityOutOfStock:
		return true
	default:
		return false
	}
}

// String returns the string representation of AvailabilityState.
func (as AvailabilityState) String() string {
	return string(as)
}

// AvailabilityStateFor derives the stock state from quantity and threshold:
// zero quantity is outOfStock, quantity at or below the threshold is lowStock,
// anything above is inStock.
func AvailabilityStateFor(quantity, threshold int) AvailabilityState {
	switch {
	case quantity <= 0:
		return AvailabilityOutOfStock
	case quantity <= threshold:
		return AvailabilityLowStock
	default:
		return AvailabilityInStock
	}
}

// IsAutomated reports whether the badge was assigned by a rule rather than an admin.
func (b *Badge) IsAutomated() bool {
	return b.AssignedBy == ""
}

// Expired reports whether the badge's expiry has passed at the given instant.
// Badges without an expiry never expire.
func (b *Badge) Expired(now time.Time) bool {
	return b.ExpiresAt != nil && !now.Before(*b.ExpiresAt)
}

// ActiveBadges returns the product's non-expired badges at the given instant,
// preserving assignment order.
func (p *Product) ActiveBadges(now time.Time) []Badge {
	active := make([]Badge, 0, len(p.Badges))

	for _, b := range p.Badges {
		if !b.Expired(now) {
			active = append(active, b)
		}
	}

	return active
}

// DisplayBadge selects the single badge shown in listings: the highest
// display-priority active badge. Returns nil when no active badge exists.
// Ties cannot occur because a product holds at most one badge per type.
func (p *Product) DisplayBadge(now time.Time) *Badge {
	var best *Badge

	for i := range p.Badges {
		b := &p.Badges[i]
		if b.Expired(now) {
			continue
		}

		if best == nil || b.Type.DisplayPriority() > best.Type.DisplayPriority() {
			best = b
		}
	}

	return best
}

// FindBadge returns the badge of the given type, expired or not, or nil.
func (p *Product) FindBadge(badgeType BadgeType) *Badge {
	for i := range p.Badges {
		if p.Badges[i].Type == badgeType {
			return &p.Badges[i]
		}
	}

	return nil
}

// IsChild reports whether the product is a child variation.
func (p *Product) IsChild() bool {
	return p.VariationType == VariationChild
}

// IsParent reports whether the product is a variation parent.
func (p *Product) IsParent() bool {
	return p.VariationType == VariationParent
}

// Sum returns the total number of reviews counted by the distribution.
func (rd RatingDistribution) Sum() int {
	total := 0
	for _, count := range rd {
		total += count
	}

	return total
}

// WeightedSum returns the total of rating × count across the distribution.
func (rd RatingDistribution) WeightedSum() int {
	sum := 0
	for rating, count := range rd {
		sum += rating * count
	}

	return sum
}

// Clone returns a copy with all five star buckets materialized.
func (rd RatingDistribution) Clone() RatingDistribution {
	out := make(RatingDistribution, 5)
	for star := 1; star <= 5; star++ {
		out[star] = rd[star]
	}

	return out
}

// Stars returns the distribution keys in ascending order. Helper for
// deterministic serialization and tests.
func (rd RatingDistribution) Stars() []int {
	stars := make([]int, 0, len(rd))
	for star := range rd {
		stars = append(stars, star)
	}

	sort.Ints(stars)

	return stars
}
