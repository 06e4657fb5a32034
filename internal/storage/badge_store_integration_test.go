package storage

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/aioutlet/product-service/internal/catalog"
)

func TestAddBadge(t *testing.T) {
	if testing.Short() {
		t.Skip("skipping integration test in short mode")
	}

	ctx := context.Background()
	store := setupProductStore(ctx, t)

	product := testProduct("BADGE-001")
	require.NoError(t, store.CreateProduct(ctx, product))

	t.Run("assigns a manual badge", func(t *testing.T) {
		err := store.AddBadge(ctx, product.ID, catalog.Badge{
			Type:       catalog.BadgeFeatured,
			AssignedBy: "admin-1",
			Metadata:   map[string]any{"campaign": "spring-launch"},
		})
		require.NoError(t, err)

		got, err := store.GetProduct(ctx, product.ID)
		require.NoError(t, err)
		require.Len(t, got.Badges, 1)
		assert.Equal(t, catalog.BadgeFeatured, got.Badges[0].Type)
		assert.Equal(t, "admin-1", got.Badges[0].AssignedBy)
		assert.False(t, got.Badges[0].AssignedAt.IsZero())
		assert.Equal(t, "spring-launch", got.Badges[0].Metadata["campaign"])
	})

	t.Run("duplicate badge type conflicts", func(t *testing.T) {
		err := store.AddBadge(ctx, product.ID, catalog.Badge{
			Type:       catalog.BadgeFeatured,
			AssignedBy: "admin-2",
		})
		require.ErrorIs(t, err, catalog.ErrDuplicateBadge)
		require.ErrorIs(t, err, catalog.ErrConflict)
	})

	t.Run("different badge types coexist", func(t *testing.T) {
		err := store.AddBadge(ctx, product.ID, catalog.Badge{Type: catalog.BadgeSale})
		require.NoError(t, err)

		got, err := store.GetProduct(ctx, product.ID)
		require.NoError(t, err)
		assert.Len(t, got.Badges, 2)
	})

	t.Run("unknown badge type is a validation error", func(t *testing.T) {
		err := store.AddBadge(ctx, product.ID, catalog.Badge{Type: "sparkly"})
		require.ErrorIs(t, err, catalog.ErrValidation)
	})

	t.Run("missing product is not found", func(t *testing.T) {
		err := store.AddBadge(ctx, "no-such-id", catalog.Badge{Type: catalog.BadgeSale})
		require.ErrorIs(t, err, catalog.ErrNotFound)
	})

	t.Run("inactive product is not found", func(t *testing.T) {
		inactive := testProduct("BADGE-INACTIVE-001")
		require.NoError(t, store.CreateProduct(ctx, inactive))
		require.NoError(t, store.Deactivate(ctx, inactive.ID, "admin-1"))

		err := store.AddBadge(ctx, inactive.ID, catalog.Badge{Type: catalog.BadgeSale})
		require.ErrorIs(t, err, catalog.ErrNotFound)
	})
}

func TestRemoveBadgeByType(t *testing.T) {
	if testing.Short() {
		t.Skip("skipping integration test in short mode")
	}

	ctx := context.Background()
	store := setupProductStore(ctx, t)

	product := testProduct("BADGE-RM-001")
	require.NoError(t, store.CreateProduct(ctx, product))

	// One manual and one automated badge
	require.NoError(t, store.AddBadge(ctx, product.ID, catalog.Badge{
		Type:       catalog.BadgeFeatured,
		AssignedBy: "admin-1",
	}))
	require.NoError(t, store.AddBadge(ctx, product.ID, catalog.Badge{
		Type: catalog.BadgeTrending, // automated: no assignedBy
	}))

	t.Run("manual badge survives automated-only removal", func(t *testing.T) {
		removed, err := store.RemoveBadgeByType(ctx, product.ID, catalog.BadgeFeatured, true)
		require.NoError(t, err, "a manual badge under automated-only removal is a no-op, not an error")
		assert.False(t, removed)

		got, err := store.GetProduct(ctx, product.ID)
		require.NoError(t, err)
		assert.NotNil(t, got.FindBadge(catalog.BadgeFeatured))
	})

	t.Run("automated badge is removed by automated-only removal", func(t *testing.T) {
		removed, err := store.RemoveBadgeByType(ctx, product.ID, catalog.BadgeTrending, true)
		require.NoError(t, err)
		assert.True(t, removed)

		got, err := store.GetProduct(ctx, product.ID)
		require.NoError(t, err)
		assert.Nil(t, got.FindBadge(catalog.BadgeTrending))
		assert.NotNil(t, got.FindBadge(catalog.BadgeFeatured), "the other badge is untouched")
	})

	t.Run("unrestricted removal takes manual badges too", func(t *testing.T) {
		removed, err := store.RemoveBadgeByType(ctx, product.ID, catalog.BadgeFeatured, false)
		require.NoError(t, err)
		assert.True(t, removed)

		got, err := store.GetProduct(ctx, product.ID)
		require.NoError(t, err)
		assert.Empty(t, got.Badges)
	})

	t.Run("absent badge is reported", func(t *testing.T) {
		_, err := store.RemoveBadgeByType(ctx, product.ID, catalog.BadgeSale, false)
		require.ErrorIs(t, err, catalog.ErrBadgeNotPresent)
		require.ErrorIs(t, err, catalog.ErrNotFound)
	})

	t.Run("missing product is not found", func(t *testing.T) {
		_, err := store.RemoveBadgeByType(ctx, "no-such-id", catalog.BadgeSale, false)
		require.ErrorIs(t, err, catalog.ErrNotFound)
	})
}

func TestRemoveExpiredBadges(t *testing.T) {
	if testing.Short() {
		t.Skip("skipping integration test in short mode")
	}

	ctx := context.Background()
	store := setupProductStore(ctx, t)

	expired := time.Now().UTC().Add(-time.Hour)
	future := time.Now().UTC().Add(24 * time.Hour)

	withExpired := testProduct("SWEEP-001")
	require.NoError(t, store.CreateProduct(ctx, withExpired))
	require.NoError(t, store.AddBadge(ctx, withExpired.ID, catalog.Badge{
		Type:      catalog.BadgeSale,
		ExpiresAt: &expired,
	}))
	require.NoError(t, store.AddBadge(ctx, withExpired.ID, catalog.Badge{
		Type:      catalog.BadgeTrending,
		ExpiresAt: &future,
	}))

	allCurrent := testProduct("SWEEP-002")
	require.NoError(t, store.CreateProduct(ctx, allCurrent))
	require.NoError(t, store.AddBadge(ctx, allCurrent.ID, catalog.Badge{
		Type: catalog.BadgeFeatured,
	}))

	removals, err := store.RemoveExpiredBadges(ctx)
	require.NoError(t, err)

	require.Len(t, removals, 1, "only the product holding an expired badge is touched")
	assert.Equal(t, withExpired.ID, removals[0].ProductID)
	require.Len(t, removals[0].Badges, 1)
	assert.Equal(t, catalog.BadgeSale, removals[0].Badges[0].Type)

	got, err := store.GetProduct(ctx, withExpired.ID)
	require.NoError(t, err)
	require.Len(t, got.Badges, 1)
	assert.Equal(t, catalog.BadgeTrending, got.Badges[0].Type, "unexpired badges stay")

	t.Run("second sweep finds nothing", func(t *testing.T) {
		removals, err := store.RemoveExpiredBadges(ctx)
		require.NoError(t, err)
		assert.Empty(t, removals)
	})
}

func TestBadgeStatistics(t *testing.T) {
	if testing.Short() {
		t.Skip("skipping integration test in short mode")
	}

	ctx := context.Background()
	store := setupProductStore(ctx, t)

	expired := time.Now().UTC().Add(-time.Hour)

	first := testProduct("STATS-001")
	require.NoError(t, store.CreateProduct(ctx, first))
	require.NoError(t, store.AddBadge(ctx, first.ID, catalog.Badge{
		Type:       catalog.BadgeSale,
		AssignedBy: "admin-1",
	}))
	require.NoError(t, store.AddBadge(ctx, first.ID, catalog.Badge{
		Type:      catalog.BadgeTrending,
		ExpiresAt: &expired,
	}))

	second := testProduct("STATS-002")
	require.NoError(t, store.CreateProduct(ctx, second))
	require.NoError(t, store.AddBadge(ctx, second.ID, catalog.Badge{
		Type: catalog.BadgeSale,
	}))

	bare := testProduct("STATS-003")
	require.NoError(t, store.CreateProduct(ctx, bare))

	stats, err := store.BadgeStatistics(ctx)
	require.NoError(t, err)

	assert.Equal(t, 3, stats.TotalAssigned)
	assert.Equal(t, 2, stats.TotalAutomated)
	assert.Equal(t, 1, stats.TotalManual)
	assert.Equal(t, 1, stats.TotalExpired)
	assert.Equal(t, 2, stats.ProductsWithBadges)

	byType := make(map[catalog.BadgeType]catalog.BadgeTypeStatistics, len(stats.ByType))
	for _, ts := range stats.ByType {
		byType[ts.Type] = ts
	}

	sale := byType[catalog.BadgeSale]
	assert.Equal(t, 2, sale.Total)
	assert.Equal(t, 1, sale.Automated)
	assert.Equal(t, 1, sale.Manual)
	assert.Zero(t, sale.Expired)

	trending := byType[catalog.BadgeTrending]
	assert.Equal(t, 1, trending.Total)
	assert.Equal(t, 1, trending.Expired)
}
