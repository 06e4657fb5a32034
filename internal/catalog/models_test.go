package catalog

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// ==============================================================================
// Availability derivation
// ==============================================================================

func TestAvailabilityStateFor_ZeroQuantity(t *testing.T) {
	assert.Equal(t, AvailabilityOutOfStock, AvailabilityStateFor(0, 10))
}

func TestAvailabilityStateFor_NegativeQuantityClampsToOutOfStock(t *testing.T) {
	assert.Equal(t, AvailabilityOutOfStock, AvailabilityStateFor(-3, 10))
}

func TestAvailabilityStateFor_AtThreshold(t *testing.T) {
	assert.Equal(t, AvailabilityLowStock, AvailabilityStateFor(10, 10))
}

func TestAvailabilityStateFor_BelowThreshold(t *testing.T) {
	assert.Equal(t, AvailabilityLowStock, AvailabilityStateFor(1, 10))
}

func TestAvailabilityStateFor_AboveThreshold(t *testing.T) {
	assert.Equal(t, AvailabilityInStock, AvailabilityStateFor(11, 10))
}

func TestAvailabilityStateFor_ZeroThreshold(t *testing.T) {
	// With no threshold configured, any positive quantity is in stock.
	assert.Equal(t, AvailabilityInStock, AvailabilityStateFor(1, 0))
	assert.Equal(t, AvailabilityOutOfStock, AvailabilityStateFor(0, 0))
}

func TestAvailabilityTransition_Restocked(t *testing.T) {
	up := AvailabilityTransition{Previous: AvailabilityOutOfStock, Current: AvailabilityInStock}
	assert.True(t, up.Restocked())

	low := AvailabilityTransition{Previous: AvailabilityOutOfStock, Current: AvailabilityLowStock}
	assert.True(t, low.Restocked())

	flat := AvailabilityTransition{Previous: AvailabilityInStock, Current: AvailabilityInStock}
	assert.False(t, flat.Restocked())

	down := AvailabilityTransition{Previous: AvailabilityLowStock, Current: AvailabilityOutOfStock}
	assert.False(t, down.Restocked())
}

// ==============================================================================
// Badge types, priority, expiry
// ==============================================================================

func TestBadgeType_IsValid(t *testing.T) {
	for _, bt := range ValidBadgeTypes() {
		assert.True(t, bt.IsValid(), "expected %s to be valid", bt)
	}

	assert.False(t, BadgeType("clearance").IsValid())
	assert.False(t, BadgeType("").IsValid())
}

func TestBadgeType_DisplayPriorityOrdering(t *testing.T) {
	ordered := ValidBadgeTypes()
	for i := 1; i < len(ordered); i++ {
		assert.Greater(t, ordered[i].DisplayPriority(), ordered[i-1].DisplayPriority(),
			"%s should outrank %s", ordered[i], ordered[i-1])
	}
}

func TestBadge_IsAutomated(t *testing.T) {
	auto := Badge{Type: BadgeTrending}
	assert.True(t, auto.IsAutomated())

	manual := Badge{Type: BadgeTrending, AssignedBy: "admin-1"}
	assert.False(t, manual.IsAutomated())
}

func TestBadge_Expired(t *testing.T) {
	now := time.Now().UTC()

	forever := Badge{Type: BadgeSale}
	assert.False(t, forever.Expired(now))

	past := now.Add(-time.Hour)
	expired := Badge{Type: BadgeSale, ExpiresAt: &past}
	assert.True(t, expired.Expired(now))

	future := now.Add(time.Hour)
	live := Badge{Type: BadgeSale, ExpiresAt: &future}
	assert.False(t, live.Expired(now))

	// Expiry boundary is inclusive: a badge expiring exactly now is gone.
	exact := Badge{Type: BadgeSale, ExpiresAt: &now}
	assert.True(t, exact.Expired(now))
}

func TestProduct_DisplayBadge_HighestPriorityWins(t *testing.T) {
	now := time.Now().UTC()
	p := Product{
		Badges: []Badge{
			{Type: BadgeNew, AssignedAt: now},
			{Type: BadgeSale, AssignedAt: now},
			{Type: BadgeBestSeller, AssignedAt: now},
			{Type: BadgeFeatured, AssignedAt: now},
		},
	}

	display := p.DisplayBadge(now)
	require.NotNil(t, display)
	assert.Equal(t, BadgeFeatured, display.Type)

	active := p.ActiveBadges(now)
	assert.Len(t, active, 4)
}

func TestProduct_DisplayBadge_SkipsExpired(t *testing.T) {
	now := time.Now().UTC()
	past := now.Add(-time.Minute)
	p := Product{
		Badges: []Badge{
			{Type: BadgeNew, AssignedAt: now},
			{Type: BadgeFeatured, AssignedAt: now, ExpiresAt: &past},
		},
	}

	display := p.DisplayBadge(now)
	require.NotNil(t, display)
	assert.Equal(t, BadgeNew, display.Type)

	assert.Len(t, p.ActiveBadges(now), 1)
}

func TestProduct_DisplayBadge_NoneActive(t *testing.T) {
	now := time.Now().UTC()
	past := now.Add(-time.Minute)
	p := Product{
		Badges: []Badge{{Type: BadgeSale, ExpiresAt: &past}},
	}

	assert.Nil(t, p.DisplayBadge(now))
	assert.Empty(t, p.ActiveBadges(now))
}

func TestProduct_FindBadge(t *testing.T) {
	p := Product{Badges: []Badge{{Type: BadgeSale, AssignedBy: "admin-1"}}}

	found := p.FindBadge(BadgeSale)
	require.NotNil(t, found)
	assert.Equal(t, "admin-1", found.AssignedBy)

	assert.Nil(t, p.FindBadge(BadgeTrending))
}

// ==============================================================================
// Rating distribution helpers
// ==============================================================================

func TestRatingDistribution_SumAndWeightedSum(t *testing.T) {
	dist := RatingDistribution{1: 0, 2: 0, 3: 1, 4: 0, 5: 1}

	assert.Equal(t, 2, dist.Sum())
	assert.Equal(t, 8, dist.WeightedSum())
}

func TestRatingDistribution_CloneMaterializesAllStars(t *testing.T) {
	dist := RatingDistribution{5: 2}
	clone := dist.Clone()

	assert.Equal(t, []int{1, 2, 3, 4, 5}, clone.Stars())
	assert.Equal(t, 2, clone[5])
	assert.Equal(t, 0, clone[1])

	// Mutating the clone must not touch the original.
	clone[5] = 7
	assert.Equal(t, 2, dist[5])
}
