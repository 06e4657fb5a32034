package catalog

import (
	"context"
	"time"
)

// Store defines what the domain needs for product persistence.
//
// The domain package defines this interface to specify what it needs without
// depending on concrete implementations; the PostgreSQL implementation lives
// in internal/storage. Engines that only need a slice of this behavior
// (projection handlers, the badge engine, the bulk-import worker) declare
// narrower interfaces in their own packages, all satisfied by the same
// storage type.
type Store interface {
	// CreateProduct persists a new product, assigning an id and timestamps
	// when the caller left them zero. Returns ErrDuplicateSKU when the SKU
	// collides with any active product.
	CreateProduct(ctx context.Context, product *Product) error

	// GetProduct fetches a product by id. Returns ErrNotFound when absent.
	GetProduct(ctx context.Context, id string) (*Product, error)

	// FindBySKU fetches a product by SKU (case-insensitive). Returns (nil, nil)
	// when no product matches; activeOnly restricts the lookup to active products.
	FindBySKU(ctx context.Context, sku string, activeOnly bool) (*Product, error)

	// FindMany lists products matching the filter with paging. The returned
	// total counts all matches, not just the returned page.
	FindMany(ctx context.Context, filter ProductFilter, page Page) ([]Product, int, error)

	// SearchText ranks products against a free-text query over name,
	// description, tags and search keywords, optionally narrowed by a filter.
	SearchText(ctx context.Context, query string, filter ProductFilter, page Page) ([]Product, int, error)

	// UpdateProduct applies a partial field update, appends a history entry
	// naming the actor, and bumps updatedAt. Returns the updated product.
	UpdateProduct(ctx context.Context, id string, fields FieldUpdates, actor string) (*Product, error)

	// InsertMany persists a batch of products in a single transaction. Any SKU
	// collision fails the whole batch with ErrDuplicateSKU.
	InsertMany(ctx context.Context, products []*Product) ([]string, error)

	// Deactivate soft-deletes a product (isActive=false).
	Deactivate(ctx context.Context, id, actor string) error

	// Reactivate re-enables a soft-deleted product. Returns ErrAlreadyActive
	// when the product is not soft-deleted and ErrDuplicateSKU when another
	// active product took the SKU in the meantime.
	Reactivate(ctx context.Context, id, actor string) error

	// AssignSizeChart links a size chart to a product; UnassignSizeChart clears it.
	AssignSizeChart(ctx context.Context, productID, chartID, actor string) error
	UnassignSizeChart(ctx context.Context, productID, actor string) error

	// HealthCheck verifies the storage backend is reachable.
	HealthCheck(ctx context.Context) error
}

// SizeChartStore persists size charts, referenced by products.
type SizeChartStore interface {
	CreateSizeChart(ctx context.Context, chart *SizeChart) error
	GetSizeChart(ctx context.Context, id string) (*SizeChart, error)
	ListSizeCharts(ctx context.Context) ([]SizeChart, error)
}

type (
	// ProductFilter is the structured predicate accepted by FindMany and
	// SearchText. Zero values mean "no constraint".
	ProductFilter struct {
		Department  string
		Category    string
		Subcategory string
		Brand       string
		ProductType string

		// PriceMin/PriceMax bound the price range when non-nil.
		PriceMin *float64
		PriceMax *float64

		// Tags match products carrying every listed tag.
		Tags []string

		// BadgeTypes match products carrying any of the listed badge types.
		BadgeTypes []BadgeType

		// ParentID restricts to children of one parent.
		ParentID string

		VariationType VariationType

		// IsActive filters by the soft-delete flag when non-nil. FindMany does
		// not default it; callers serving storefront traffic pass true.
		IsActive *bool

		// SKUs restricts to an explicit SKU set (case-insensitive).
		SKUs []string
	}

	// Page bounds a list query. A zero Limit falls back to the store default.
	Page struct {
		Offset int
		Limit  int
	}

	// FieldUpdates is a partial product update. Nil members are left untouched.
	// Only admin-updatable fields appear here; projection-owned fields
	// (aggregates, availability, metrics, badges) have their own store paths.
	FieldUpdates struct {
		Name              *string
		Description       *string
		Brand             *string
		Price             *float64
		Department        *string
		Category          *string
		Subcategory       *string
		ProductType       *string
		Images            []string
		Tags              []string
		SearchKeywords    []string
		Specifications    map[string]string
		VariantAttributes []VariantAttribute
		IsActive          *bool
	}

	// ReviewSample is one review event applied to the aggregates projection.
	ReviewSample struct {
		Rating           int
		VerifiedPurchase bool
	}

	// StockUpdate is one inventory event applied to the availability projection.
	StockUpdate struct {
		AvailableQuantity int

		// LowStockThreshold is optional; nil keeps the product's current threshold.
		LowStockThreshold *int

		ObservedAt time.Time
	}

	// AvailabilityTransition reports the availability states before and after a
	// stock update, so callers can detect the out-of-stock to available edge.
	AvailabilityTransition struct {
		Previous AvailabilityState
		Current  AvailabilityState
	}
)

// Restocked reports whether the transition crossed from outOfStock to a
// sellable state, which is the trigger for the back-in-stock announcement.
func (t AvailabilityTransition) Restocked() bool {
	return t.Previous == AvailabilityOutOfStock &&
		(t.Current == AvailabilityInStock || t.Current == AvailabilityLowStock)
}

// Changes reports the set of non-nil fields as a history-entry change map.
func (f FieldUpdates) Changes() map[string]any {
	changes := make(map[string]any)

	if f.Name != nil {
		changes["name"] = *f.Name
	}

	if f.Description != nil {
		changes["description"] = *f.Description
	}

	if f.Brand != nil {
		changes["brand"] = *f.Brand
	}

	if f.Price != nil {
		changes["price"] = *f.Price
	}

	if f.Department != nil {
		changes["department"] = *f.Department
	}

	if f.Category != nil {
		changes["category"] = *f.Category
	}

	if f.Subcategory != nil {
		changes["subcategory"] = *f.Subcategory
	}

	if f.ProductType != nil {
		changes["productType"] = *f.ProductType
	}

	if f.Images != nil {
		changes["images"] = f.Images
	}

	if f.Tags != nil {
		changes["tags"] = f.Tags
	}

	if f.SearchKeywords != nil {
		changes["searchKeywords"] = f.SearchKeywords
	}

	if f.Specifications != nil {
		changes["specifications"] = f.Specifications
	}

	if f.VariantAttributes != nil {
		changes["variantAttributes"] = AttributeKey(f.VariantAttributes)
	}

	if f.IsActive != nil {
		changes["isActive"] = *f.IsActive
	}

	return changes
}

// Empty reports whether the update touches nothing.
func (f FieldUpdates) Empty() bool {
	return len(f.Changes()) == 0
}
