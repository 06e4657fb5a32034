// Package variations enforces the parent/child product model: atomic family
// creation with field inheritance, child-scoped updates, attribute-tuple
// uniqueness among siblings, and the assembled variation matrix view.
package variations

import (
	"context"
	"fmt"
	"log/slog"
	"strings"

	"github.com/google/uuid"

	"github.com/aioutlet/product-service/internal/catalog"
	"github.com/aioutlet/product-service/internal/events"
)

// maxFamilyChildren bounds one variation family at creation.
const maxFamilyChildren = 1000

type (
	// Store is the variation engine's slice of product persistence, satisfied
	// by the PostgreSQL product store.
	Store interface {
		GetProduct(ctx context.Context, id string) (*catalog.Product, error)
		FindBySKU(ctx context.Context, sku string, activeOnly bool) (*catalog.Product, error)
		CreateParentWithChildren(ctx context.Context, parent *catalog.Product, children []*catalog.Product) error
		AddChild(ctx context.Context, child *catalog.Product) error
		UpdateProduct(ctx context.Context, id string, fields catalog.FieldUpdates, actor string) (*catalog.Product, error)
		SoftDeleteChild(ctx context.Context, childID, actor string) error
		ListChildren(ctx context.Context, parentID string, activeOnly bool) ([]catalog.Product, error)
	}

	// Engine owns the variation lifecycle operations.
	Engine struct {
		store     Store
		validator *catalog.Validator
		emitter   *events.Emitter
		logger    *slog.Logger
	}

	// MatrixEntry is one child in the variation matrix: the selectable
	// attribute combination plus what a storefront needs to render it.
	MatrixEntry struct {
		ProductID  string            `json:"productId"`
		SKU        string            `json:"sku,omitempty"`
		Attributes map[string]string `json:"attributes"`
		Price      float64           `json:"price"`
		Available  bool              `json:"available"`
		Images     []string          `json:"images,omitempty"`
	}

	// ParentView is a parent product together with its variation matrix.
	ParentView struct {
		Parent *catalog.Product
		Matrix []MatrixEntry
	}
)

// NewEngine creates a variation engine.
func NewEngine(store Store, emitter *events.Emitter, logger *slog.Logger) *Engine {
	return &Engine{
		store:     store,
		validator: catalog.NewValidator(),
		emitter:   emitter,
		logger:    logger,
	}
}

// CreateParentWithChildren persists a whole variation family atomically. The
// parent's taxonomy and brand are snapshotted onto every child, SKUs must be
// unique within the family and against active products, and no two children
// may share a normalized attribute tuple. A violation anywhere persists
// nothing.
func (e *Engine) CreateParentWithChildren(ctx context.Context, parent *catalog.Product, children []*catalog.Product, creator, correlationID string) error {
	if parent == nil {
		return fmt.Errorf("%w: parent product is required", catalog.ErrValidation)
	}

	if len(children) == 0 || len(children) > maxFamilyChildren {
		return fmt.Errorf("%w: a family needs between 1 and %d children, got %d",
			catalog.ErrValidation, maxFamilyChildren, len(children))
	}

	parent.VariationType = catalog.VariationParent
	parent.VariationCount = len(children)
	parent.IsActive = true
	parent.CreatedBy = creator

	if parent.ID == "" {
		parent.ID = uuid.New().String()
	}

	if err := e.validator.ValidateProduct(parent); err != nil {
		return err
	}

	for _, child := range children {
		if child == nil {
			return fmt.Errorf("%w: child product is required", catalog.ErrValidation)
		}

		e.prepareChild(parent, child, creator)

		if err := e.validator.ValidateProduct(child); err != nil {
			return err
		}
	}

	if err := checkFamilyUniqueness(parent, children); err != nil {
		return err
	}

	for _, product := range append([]*catalog.Product{parent}, children...) {
		if err := e.checkSKUAvailable(ctx, product.SKU); err != nil {
			return err
		}
	}

	if err := e.store.CreateParentWithChildren(ctx, parent, children); err != nil {
		return err
	}

	e.emitter.ProductCreated(ctx, parent, correlationID)

	for _, child := range children {
		e.emitter.VariationCreated(ctx, child, correlationID)
	}

	e.logger.Info("variation family created",
		slog.String("parent_id", parent.ID),
		slog.Int("children", len(children)),
		slog.String("correlation_id", correlationID),
	)

	return nil
}

// AddChild appends one child to an existing family, inheriting the parent's
// taxonomy and brand and re-checking tuple uniqueness against the active
// siblings.
func (e *Engine) AddChild(ctx context.Context, parentID string, child *catalog.Product, creator, correlationID string) error {
	if child == nil {
		return fmt.Errorf("%w: child product is required", catalog.ErrValidation)
	}

	parent, err := e.store.GetProduct(ctx, parentID)
	if err != nil {
		return err
	}

	if parent.VariationType != catalog.VariationParent {
		return fmt.Errorf("%w: product %s is not a parent", catalog.ErrValidation, parentID)
	}

	if !parent.IsActive {
		return fmt.Errorf("%w: parent product %s", catalog.ErrNotFound, parentID)
	}

	e.prepareChild(parent, child, creator)

	if err := e.validator.ValidateProduct(child); err != nil {
		return err
	}

	if err := e.checkSKUAvailable(ctx, child.SKU); err != nil {
		return err
	}

	siblings, err := e.store.ListChildren(ctx, parentID, true)
	if err != nil {
		return err
	}

	key := catalog.AttributeKey(child.VariantAttributes)

	for i := range siblings {
		if catalog.AttributeKey(siblings[i].VariantAttributes) == key {
			return fmt.Errorf("%w: %s", catalog.ErrDuplicateAttributeTuple, key)
		}
	}

	if err := e.store.AddChild(ctx, child); err != nil {
		return err
	}

	e.emitter.VariationCreated(ctx, child, correlationID)

	return nil
}

// UpdateChild applies a child-scoped partial update. Taxonomy and brand are
// parent-inherited and immutable here; supplied specifications overlay the
// existing map and supplied tags extend the existing set. Renaming the
// attribute tuple re-checks uniqueness against the active siblings. Setting
// isActive=false routes through the soft-delete path so the parent's
// variation count stays honest.
func (e *Engine) UpdateChild(ctx context.Context, childID string, fields catalog.FieldUpdates, actor, correlationID string) (*catalog.Product, error) {
	if err := validateChildScopedFields(fields); err != nil {
		return nil, err
	}

	child, err := e.store.GetProduct(ctx, childID)
	if err != nil {
		return nil, err
	}

	if child.VariationType != catalog.VariationChild {
		return nil, fmt.Errorf("%w: product %s is not a child variation", catalog.ErrValidation, childID)
	}

	deactivate := fields.IsActive != nil && !*fields.IsActive

	if fields.IsActive != nil && *fields.IsActive && !child.IsActive {
		return nil, fmt.Errorf("%w: a deactivated child cannot be reactivated through update; add it to the family again", catalog.ErrValidation)
	}

	fields.IsActive = nil

	if fields.VariantAttributes != nil {
		if err := e.checkTupleAvailable(ctx, child, fields.VariantAttributes); err != nil {
			return nil, err
		}
	}

	if fields.Specifications != nil {
		fields.Specifications = overlaySpecifications(child.Specifications, fields.Specifications)
	}

	if fields.Tags != nil {
		fields.Tags = extendTags(child.Tags, fields.Tags)
	}

	if fields.Empty() && !deactivate {
		return nil, fmt.Errorf("%w: update contains no child-scoped fields", catalog.ErrValidation)
	}

	updated := child

	if !fields.Empty() {
		updated, err = e.store.UpdateProduct(ctx, childID, fields, actor)
		if err != nil {
			return nil, err
		}

		e.emitter.VariationUpdated(ctx, updated, correlationID)
	}

	if deactivate {
		if err := e.store.SoftDeleteChild(ctx, childID, actor); err != nil {
			return nil, err
		}

		updated.IsActive = false
		e.emitter.VariationDeleted(ctx, updated, correlationID)
	}

	return updated, nil
}

// DeleteChild soft-deletes one child and decrements the parent's variation
// count.
func (e *Engine) DeleteChild(ctx context.Context, childID, actor, correlationID string) error {
	child, err := e.store.GetProduct(ctx, childID)
	if err != nil {
		return err
	}

	if child.VariationType != catalog.VariationChild {
		return fmt.Errorf("%w: product %s is not a child variation", catalog.ErrValidation, childID)
	}

	if err := e.store.SoftDeleteChild(ctx, childID, actor); err != nil {
		return err
	}

	child.IsActive = false
	e.emitter.VariationDeleted(ctx, child, correlationID)

	return nil
}

// GetParentView returns the parent product with its variation matrix
// assembled from the active children in creation order.
func (e *Engine) GetParentView(ctx context.Context, parentID string) (*ParentView, error) {
	parent, children, err := e.activeFamily(ctx, parentID)
	if err != nil {
		return nil, err
	}

	matrix := make([]MatrixEntry, 0, len(children))

	for i := range children {
		matrix = append(matrix, matrixEntry(&children[i]))
	}

	return &ParentView{Parent: parent, Matrix: matrix}, nil
}

// FilterChildren returns the matrix entries whose attributes satisfy every
// supplied constraint. Matching is exact but case-insensitive on names and
// values; an empty constraint set matches everything.
func (e *Engine) FilterChildren(ctx context.Context, parentID string, constraints map[string]string) ([]MatrixEntry, error) {
	_, children, err := e.activeFamily(ctx, parentID)
	if err != nil {
		return nil, err
	}

	matrix := make([]MatrixEntry, 0, len(children))

	for i := range children {
		if catalog.AttributesMatch(children[i].VariantAttributes, constraints) {
			matrix = append(matrix, matrixEntry(&children[i]))
		}
	}

	return matrix, nil
}

// prepareChild stamps the linkage and inheritance snapshot onto a child spec.
// Taxonomy and brand always come from the parent, whatever the caller sent.
func (e *Engine) prepareChild(parent *catalog.Product, child *catalog.Product, creator string) {
	child.VariationType = catalog.VariationChild
	child.ParentID = parent.ID
	child.Department = parent.Department
	child.Category = parent.Category
	child.Subcategory = parent.Subcategory
	child.Brand = parent.Brand
	child.IsActive = true
	child.CreatedBy = creator
}

// checkSKUAvailable rejects a SKU held by any active product. Empty SKUs are
// legal and never collide. The partial unique index remains the authority
// under concurrency; this check exists to name the offending SKU up front.
func (e *Engine) checkSKUAvailable(ctx context.Context, sku string) error {
	if sku == "" {
		return nil
	}

	existing, err := e.store.FindBySKU(ctx, sku, true)
	if err != nil {
		return err
	}

	if existing != nil {
		return fmt.Errorf("%w: sku %q belongs to an active product", catalog.ErrDuplicateSKU, sku)
	}

	return nil
}

// checkTupleAvailable rejects an attribute tuple already held by another
// active sibling of the same parent.
func (e *Engine) checkTupleAvailable(ctx context.Context, child *catalog.Product, attrs []catalog.VariantAttribute) error {
	if len(attrs) == 0 {
		return catalog.ErrChildMissingAttributes
	}

	if err := catalog.ValidateAttributes(attrs); err != nil {
		return err
	}

	siblings, err := e.store.ListChildren(ctx, child.ParentID, true)
	if err != nil {
		return err
	}

	key := catalog.AttributeKey(attrs)

	for i := range siblings {
		if siblings[i].ID == child.ID {
			continue
		}

		if catalog.AttributeKey(siblings[i].VariantAttributes) == key {
			return fmt.Errorf("%w: %s", catalog.ErrDuplicateAttributeTuple, key)
		}
	}

	return nil
}

// activeFamily loads an active parent and its active children.
func (e *Engine) activeFamily(ctx context.Context, parentID string) (*catalog.Product, []catalog.Product, error) {
	parent, err := e.store.GetProduct(ctx, parentID)
	if err != nil {
		return nil, nil, err
	}

	if parent.VariationType != catalog.VariationParent {
		return nil, nil, fmt.Errorf("%w: product %s is not a parent", catalog.ErrValidation, parentID)
	}

	if !parent.IsActive {
		return nil, nil, fmt.Errorf("%w: parent product %s", catalog.ErrNotFound, parentID)
	}

	children, err := e.store.ListChildren(ctx, parentID, true)
	if err != nil {
		return nil, nil, err
	}

	return parent, children, nil
}

// checkFamilyUniqueness enforces the in-family invariants at creation: SKUs
// unique across the whole family, attribute tuples unique among the children.
func checkFamilyUniqueness(parent *catalog.Product, children []*catalog.Product) error {
	skus := make(map[string]bool, len(children)+1)

	if parent.SKU != "" {
		skus[strings.ToLower(parent.SKU)] = true
	}

	tuples := make(map[string]bool, len(children))

	for _, child := range children {
		if child.SKU != "" {
			sku := strings.ToLower(child.SKU)
			if skus[sku] {
				return fmt.Errorf("%w: sku %q repeats within the family", catalog.ErrDuplicateSKU, child.SKU)
			}

			skus[sku] = true
		}

		key := catalog.AttributeKey(child.VariantAttributes)
		if tuples[key] {
			return fmt.Errorf("%w: %s", catalog.ErrDuplicateAttributeTuple, key)
		}

		tuples[key] = true
	}

	return nil
}

// validateChildScopedFields rejects updates outside the child-scoped set:
// name, description, price, images, tags, specifications, variant attributes
// and the active flag.
func validateChildScopedFields(fields catalog.FieldUpdates) error {
	switch {
	case fields.Department != nil, fields.Category != nil, fields.Subcategory != nil, fields.Brand != nil:
		return fmt.Errorf("%w: taxonomy and brand are inherited from the parent and fixed at creation", catalog.ErrValidation)
	case fields.ProductType != nil:
		return fmt.Errorf("%w: productType is not a child-scoped field", catalog.ErrValidation)
	case fields.SearchKeywords != nil:
		return fmt.Errorf("%w: searchKeywords is not a child-scoped field", catalog.ErrValidation)
	}

	return nil
}

// overlaySpecifications merges supplied keys over the existing map without
// dropping what the update leaves unmentioned.
func overlaySpecifications(existing, supplied map[string]string) map[string]string {
	merged := make(map[string]string, len(existing)+len(supplied))

	for key, value := range existing {
		merged[key] = value
	}

	for key, value := range supplied {
		merged[key] = value
	}

	return merged
}

// extendTags unions supplied tags onto the existing set, preserving existing
// order and skipping case-insensitive duplicates.
func extendTags(existing, supplied []string) []string {
	seen := make(map[string]bool, len(existing)+len(supplied))
	merged := make([]string, 0, len(existing)+len(supplied))

	for _, tag := range append(append([]string{}, existing...), supplied...) {
		normalized := strings.ToLower(strings.TrimSpace(tag))
		if normalized == "" || seen[normalized] {
			continue
		}

		seen[normalized] = true
		merged = append(merged, tag)
	}

	return merged
}

func matrixEntry(child *catalog.Product) MatrixEntry {
	attrs := make(map[string]string, len(child.VariantAttributes))

	for _, attr := range child.VariantAttributes {
		attrs[attr.Name] = attr.Value
	}

	return MatrixEntry{
		ProductID:  child.ID,
		SKU:        child.SKU,
		Attributes: attrs,
		Price:      child.Price,
		Available:  child.Availability.State != catalog.AvailabilityOutOfStock,
		Images:     child.Images,
	}
}
