// Package badges implements badge assignment for catalog products: manual
// admin assignment, rule-driven automatic assignment and removal, expiry
// sweeping, and badge statistics.
//
// Rules compare denormalized product projections (sales windows, view
// windows, review aggregates, availability) against thresholds, so badge
// evaluation never calls other services. Rules are seeded from the service
// config file at startup and persisted; evaluation reads the persisted set.
package badges

import (
	"fmt"
	"strings"
	"time"

	"github.com/aioutlet/product-service/internal/catalog"
)

type (
	// Operator compares a product field against a condition value.
	Operator string

	// Logic combines a rule's conditions.
	Logic string

	// Condition is one field comparison within a rule. Field is a dot path
	// into the product document, for example salesMetrics.last30Days.units.
	Condition struct {
		Field    string   `json:"field"    yaml:"field"`
		Operator Operator `json:"operator" yaml:"operator"`
		Value    any      `json:"value"    yaml:"value"`
	}

	// Rule assigns one badge type while its conditions hold.
	Rule struct {
		ID          string            `json:"id"                    yaml:"id"`
		BadgeType   catalog.BadgeType `json:"badgeType"             yaml:"badgeType"`
		Name        string            `json:"name"                  yaml:"name"`
		Description string            `json:"description,omitempty" yaml:"description,omitempty"`

		// Logic is "and" or "or" across Conditions; "and" when empty.
		Logic      Logic       `json:"logic,omitempty" yaml:"logic,omitempty"`
		Conditions []Condition `json:"conditions"      yaml:"conditions"`

		// AutoRemoveWhenInvalid removes a previously rule-assigned badge once
		// the conditions stop holding. Manual badges are never touched.
		AutoRemoveWhenInvalid bool `json:"autoRemoveWhenInvalid" yaml:"autoRemoveWhenInvalid"`

		// ExpiresAfter, when positive, stamps rule-assigned badges with an
		// expiry so the sweeper drops them without re-evaluation.
		ExpiresAfter time.Duration `json:"expiresAfter,omitempty" yaml:"expiresAfter,omitempty"`

		Enabled bool `json:"enabled" yaml:"enabled"`

		// Priority orders evaluation when several rules target the same badge
		// type. Higher runs first.
		Priority int `json:"priority,omitempty" yaml:"priority,omitempty"`

		CreatedAt time.Time `json:"createdAt,omitempty" yaml:"-"`
		UpdatedAt time.Time `json:"updatedAt,omitempty" yaml:"-"`
	}
)

// Comparison operators accepted in rule conditions.
const (
	OpEqual          Operator = "eq"
	OpNotEqual       Operator = "ne"
	OpGreaterThan    Operator = "gt"
	OpGreaterOrEqual Operator = "gte"
	OpLessThan       Operator = "lt"
	OpLessOrEqual    Operator = "lte"

	// OpBetween takes a two-element value and matches inclusively.
	OpBetween Operator = "between"

	// OpIn and OpNotIn take a list value and test set membership.
	OpIn    Operator = "in"
	OpNotIn Operator = "notIn"
)

const (
	// LogicAnd requires every condition to hold.
	LogicAnd Logic = "and"

	// LogicOr requires at least one condition to hold.
	LogicOr Logic = "or"
)

// IsValid checks if the Operator is one of the supported comparisons.
func (op Operator) IsValid() bool {
	switch op {
	case OpEqual, OpNotEqual, OpGreaterThan, OpGreaterOrEqual,
		OpLessThan, OpLessOrEqual, OpBetween, OpIn, OpNotIn:
		return true
	default:
		return false
	}
}

// Validate checks structural soundness of one condition.
func (c Condition) Validate() error {
	if strings.TrimSpace(c.Field) == "" {
		return fmt.Errorf("%w: condition field cannot be empty", catalog.ErrValidation)
	}

	if !c.Operator.IsValid() {
		return fmt.Errorf("%w: unknown operator %q", catalog.ErrValidation, c.Operator)
	}

	if c.Value == nil {
		return fmt.Errorf("%w: condition %s has no value", catalog.ErrValidation, c.Field)
	}

	switch c.Operator {
	case OpBetween:
		values, ok := asSlice(c.Value)
		if !ok || len(values) != 2 {
			return fmt.Errorf("%w: between on %s needs exactly two values", catalog.ErrValidation, c.Field)
		}
	case OpIn, OpNotIn:
		values, ok := asSlice(c.Value)
		if !ok || len(values) == 0 {
			return fmt.Errorf("%w: %s on %s needs a non-empty list", catalog.ErrValidation, c.Operator, c.Field)
		}
	case OpEqual, OpNotEqual, OpGreaterThan, OpGreaterOrEqual, OpLessThan, OpLessOrEqual:
	}

	return nil
}

// Validate checks structural soundness of the rule and every condition.
func (r Rule) Validate() error {
	if strings.TrimSpace(r.ID) == "" {
		return fmt.Errorf("%w: rule id cannot be empty", catalog.ErrValidation)
	}

	if !r.BadgeType.IsValid() {
		return fmt.Errorf("%w: rule %s has unknown badge type %q", catalog.ErrValidation, r.ID, r.BadgeType)
	}

	if len(r.Conditions) == 0 {
		return fmt.Errorf("%w: rule %s has no conditions", catalog.ErrValidation, r.ID)
	}

	switch r.Logic {
	case "", LogicAnd, LogicOr:
	default:
		return fmt.Errorf("%w: rule %s has unknown logic %q", catalog.ErrValidation, r.ID, r.Logic)
	}

	for _, condition := range r.Conditions {
		if err := condition.Validate(); err != nil {
			return fmt.Errorf("rule %s: %w", r.ID, err)
		}
	}

	return nil
}

// requiresAll reports whether every condition must hold.
func (r Rule) requiresAll() bool {
	return r.Logic != LogicOr
}

// asSlice normalizes list-valued condition values. YAML and JSON decoders
// both produce []any; typed slices from Go-constructed rules are widened.
func asSlice(value any) ([]any, bool) {
	switch v := value.(type) {
	case []any:
		return v, true
	case []string:
		out := make([]any, len(v))
		for i, s := range v {
			out[i] = s
		}

		return out, true
	case []int:
		out := make([]any, len(v))
		for i, n := range v {
			out[i] = n
		}

		return out, true
	case []float64:
		out := make([]any, len(v))
		for i, f := range v {
			out[i] = f
		}

		return out, true
	default:
		return nil, false
	}
}
