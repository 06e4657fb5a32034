package catalog

import (
	"fmt"
	"regexp"
	"strings"
)

// Product validation errors (static sentinel errors for errors.Is() checks).
// All wrap ErrValidation so API and import callers classify them uniformly.
var (
	// ErrNameEmpty indicates the product name is required.
	ErrNameEmpty = fmt.Errorf("%w: product name cannot be empty", ErrValidation)

	// ErrNameTooLong indicates the product name exceeds the max length.
	ErrNameTooLong = fmt.Errorf("%w: product name cannot exceed 500 characters", ErrValidation)

	// ErrPriceNegative indicates a negative price. Zero is allowed.
	ErrPriceNegative = fmt.Errorf("%w: price cannot be negative", ErrValidation)

	// ErrSKUInvalid indicates the SKU contains characters outside [A-Za-z0-9._-].
	ErrSKUInvalid = fmt.Errorf("%w: sku may only contain letters, digits, '.', '_' and '-'", ErrValidation)

	// ErrSKUTooLong indicates the SKU exceeds the max length.
	ErrSKUTooLong = fmt.Errorf("%w: sku cannot exceed 100 characters", ErrValidation)

	// ErrVariationTypeInvalid indicates an unknown variation type.
	ErrVariationTypeInvalid = fmt.Errorf("%w: variation type must be standalone, parent, or child", ErrValidation)

	// ErrChildMissingParent indicates a child product without a parent reference.
	ErrChildMissingParent = fmt.Errorf("%w: child product requires parentId", ErrValidation)

	// ErrChildMissingAttributes indicates a child product without variant attributes.
	ErrChildMissingAttributes = fmt.Errorf("%w: child product requires variant attributes", ErrValidation)

	// ErrParentFieldsOnChild indicates parent-only fields set on a non-child.
	ErrParentFieldsOnChild = fmt.Errorf("%w: parentId and variant attributes are child-only fields", ErrValidation)

	// ErrBadgeTypeInvalid indicates an unknown badge type.
	ErrBadgeTypeInvalid = fmt.Errorf("%w: unknown badge type", ErrValidation)
)

const (
	maxNameLength = 500
	maxSKULength  = 100
)

var skuPattern = regexp.MustCompile(`^[A-Za-z0-9._-]+$`)

// Validator performs domain validation on products before they reach the store.
type Validator struct{}

// NewValidator creates a product validator.
func NewValidator() *Validator {
	return &Validator{}
}

// ValidateProduct checks the fields every product must satisfy at creation:
// a non-empty name, a non-negative price, a well-formed optional SKU, a valid
// variation type, and the parent/child field pairing (children carry parentId
// and attributes, nothing else does).
func (v *Validator) ValidateProduct(p *Product) error {
	if strings.TrimSpace(p.Name) == "" {
		return ErrNameEmpty
	}

	if len(p.Name) > maxNameLength {
		return fmt.Errorf("%w: got %d characters", ErrNameTooLong, len(p.Name))
	}

	if p.Price < 0 {
		return fmt.Errorf("%w: got %v", ErrPriceNegative, p.Price)
	}

	if err := v.ValidateSKU(p.SKU); err != nil {
		return err
	}

	if !p.VariationType.IsValid() {
		return fmt.Errorf("%w: got %q", ErrVariationTypeInvalid, p.VariationType)
	}

	switch p.VariationType {
	case VariationChild:
		if strings.TrimSpace(p.ParentID) == "" {
			return ErrChildMissingParent
		}

		if len(p.VariantAttributes) == 0 {
			return ErrChildMissingAttributes
		}

		if err := ValidateAttributes(p.VariantAttributes); err != nil {
			return err
		}
	case VariationStandalone, VariationParent:
		if p.ParentID != "" || len(p.VariantAttributes) > 0 {
			return ErrParentFieldsOnChild
		}
	}

	for i := range p.Badges {
		if !p.Badges[i].Type.IsValid() {
			return fmt.Errorf("%w: %q", ErrBadgeTypeInvalid, p.Badges[i].Type)
		}
	}

	return nil
}

// ValidateSKU checks an optional SKU. Empty is allowed (SKU-less products are
// legal); non-empty SKUs must match the allowed character set and length.
func (v *Validator) ValidateSKU(sku string) error {
	if sku == "" {
		return nil
	}

	if len(sku) > maxSKULength {
		return fmt.Errorf("%w: got %d characters", ErrSKUTooLong, len(sku))
	}

	if !skuPattern.MatchString(sku) {
		return fmt.Errorf("%w: got %q", ErrSKUInvalid, sku)
	}

	return nil
}
