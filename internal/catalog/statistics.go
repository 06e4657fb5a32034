package catalog

type (
	// BadgeTypeStatistics aggregates badge counts for one badge type across
	// active products.
	BadgeTypeStatistics struct {
		Type      BadgeType
		Total     int
		Automated int
		Manual    int
		Expired   int
	}

	// BadgeStatistics is the catalog-wide badge aggregation report served by
	// the admin API.
	BadgeStatistics struct {
		ByType             []BadgeTypeStatistics
		TotalAssigned      int
		TotalAutomated     int
		TotalManual        int
		TotalExpired       int
		ProductsWithBadges int
	}

	// ExpiredBadgeRemoval reports one product's expired badges dropped by the
	// expiry sweep.
	ExpiredBadgeRemoval struct {
		ProductID string
		Badges    []Badge
	}
)
