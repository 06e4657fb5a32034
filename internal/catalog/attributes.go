package catalog

import (
	"fmt"
	"sort"
	"strings"
)

// Variant attribute validation errors.
var (
	// ErrAttributeNameEmpty indicates a variant attribute without a name.
	ErrAttributeNameEmpty = fmt.Errorf("%w: variant attribute name cannot be empty", ErrValidation)

	// ErrAttributeValueEmpty indicates a variant attribute without a value.
	ErrAttributeValueEmpty = fmt.Errorf("%w: variant attribute value cannot be empty", ErrValidation)

	// ErrAttributeNameRepeated indicates the same attribute name appears twice in one tuple.
	ErrAttributeNameRepeated = fmt.Errorf("%w: variant attribute name repeated", ErrValidation)
)

// AttributeKey canonicalizes a variant attribute tuple for uniqueness checks:
// (name, value) pairs lowercased, sorted by name, joined as name=value;...
// Two tuples identify the same variation iff their keys are equal, so
// Color=Red collides with color=red and attribute order never matters.
func AttributeKey(attrs []VariantAttribute) string {
	pairs := make([]string, 0, len(attrs))

	for _, attr := range attrs {
		name := strings.ToLower(strings.TrimSpace(attr.Name))
		value := strings.ToLower(strings.TrimSpace(attr.Value))
		pairs = append(pairs, name+"="+value)
	}

	sort.Strings(pairs)

	return strings.Join(pairs, ";")
}

// ValidateAttributes checks a child's variant attribute tuple: every pair
// needs a name and a value, and no name may repeat (case-insensitive).
func ValidateAttributes(attrs []VariantAttribute) error {
	seen := make(map[string]bool, len(attrs))

	for _, attr := range attrs {
		name := strings.ToLower(strings.TrimSpace(attr.Name))
		if name == "" {
			return ErrAttributeNameEmpty
		}

		if strings.TrimSpace(attr.Value) == "" {
			return fmt.Errorf("%w: attribute %q", ErrAttributeValueEmpty, attr.Name)
		}

		if seen[name] {
			return fmt.Errorf("%w: %q", ErrAttributeNameRepeated, attr.Name)
		}

		seen[name] = true
	}

	return nil
}

// AttributesMatch reports whether a child's attributes satisfy every supplied
// constraint. Matching is exact on values but case-insensitive on both names
// and values; constraints on attributes the child does not carry fail the match.
func AttributesMatch(attrs []VariantAttribute, constraints map[string]string) bool {
	if len(constraints) == 0 {
		return true
	}

	byName := make(map[string]string, len(attrs))
	for _, attr := range attrs {
		byName[strings.ToLower(strings.TrimSpace(attr.Name))] = strings.ToLower(strings.TrimSpace(attr.Value))
	}

	for name, want := range constraints {
		got, ok := byName[strings.ToLower(strings.TrimSpace(name))]
		if !ok || got != strings.ToLower(strings.TrimSpace(want)) {
			return false
		}
	}

	return true
}
