package badges

import (
	"strings"
	"time"
)

// SentinelThirtyDaysAgo is a condition value that resolves to now − 30 days
// at evaluation time. It lets seeded rules express "created recently" without
// hardcoding a date.
const SentinelThirtyDaysAgo = "30_days_ago"

// EvaluateRule reports whether the rule's condition tree holds against a
// product document at the given instant. AND logic requires every condition;
// OR logic requires at least one. A rule with no conditions never holds.
func EvaluateRule(rule Rule, doc map[string]any, now time.Time) bool {
	if len(rule.Conditions) == 0 {
		return false
	}

	for _, condition := range rule.Conditions {
		holds := evaluateCondition(condition, doc, now)

		if rule.requiresAll() {
			if !holds {
				return false
			}
		} else if holds {
			return true
		}
	}

	return rule.requiresAll()
}

// evaluateCondition resolves the condition's field path and compares. A path
// that does not resolve makes the condition false, never an error: rules over
// fields a product lacks simply do not fire for it.
func evaluateCondition(condition Condition, doc map[string]any, now time.Time) bool {
	fieldValue, ok := resolvePath(doc, condition.Field)
	if !ok {
		return false
	}

	return compare(fieldValue, condition.Operator, condition.Value, now)
}

// resolvePath walks the nested document along dot-separated segments, for
// example salesMetrics.last30Days.units.
func resolvePath(doc map[string]any, path string) (any, bool) {
	var current any = doc

	for _, segment := range strings.Split(path, ".") {
		node, ok := current.(map[string]any)
		if !ok {
			return nil, false
		}

		current, ok = node[segment]
		if !ok {
			return nil, false
		}
	}

	return current, true
}

// compare dispatches on the field value's domain: temporal, numeric, string,
// or boolean. Unsupported combinations evaluate to false.
func compare(fieldValue any, op Operator, condValue any, now time.Time) bool {
	if t, ok := fieldValue.(time.Time); ok {
		return compareTime(t, op, condValue, now)
	}

	if f, ok := toFloat(fieldValue); ok {
		return compareNumber(f, op, condValue)
	}

	switch v := fieldValue.(type) {
	case string:
		return compareString(v, op, condValue)
	case bool:
		return compareBool(v, op, condValue)
	default:
		return false
	}
}

func compareNumber(field float64, op Operator, condValue any) bool {
	switch op {
	case OpBetween:
		bounds, ok := asSlice(condValue)
		if !ok || len(bounds) != 2 {
			return false
		}

		lo, okLo := toFloat(bounds[0])

		hi, okHi := toFloat(bounds[1])
		if !okLo || !okHi {
			return false
		}

		return field >= lo && field <= hi

	case OpIn, OpNotIn:
		values, ok := asSlice(condValue)
		if !ok {
			return false
		}

		found := false

		for _, candidate := range values {
			if f, ok := toFloat(candidate); ok && f == field {
				found = true

				break
			}
		}

		if op == OpIn {
			return found
		}

		return !found

	case OpEqual, OpNotEqual, OpGreaterThan, OpGreaterOrEqual, OpLessThan, OpLessOrEqual:
		threshold, ok := toFloat(condValue)
		if !ok {
			return false
		}

		switch op {
		case OpEqual:
			return field == threshold
		case OpNotEqual:
			return field != threshold
		case OpGreaterThan:
			return field > threshold
		case OpGreaterOrEqual:
			return field >= threshold
		case OpLessThan:
			return field < threshold
		case OpLessOrEqual:
			return field <= threshold
		case OpBetween, OpIn, OpNotIn:
		}
	}

	return false
}

func compareTime(field time.Time, op Operator, condValue any, now time.Time) bool {
	switch op {
	case OpBetween:
		bounds, ok := asSlice(condValue)
		if !ok || len(bounds) != 2 {
			return false
		}

		lo, okLo := resolveTime(bounds[0], now)

		hi, okHi := resolveTime(bounds[1], now)
		if !okLo || !okHi {
			return false
		}

		return !field.Before(lo) && !field.After(hi)

	case OpEqual, OpNotEqual, OpGreaterThan, OpGreaterOrEqual, OpLessThan, OpLessOrEqual:
		threshold, ok := resolveTime(condValue, now)
		if !ok {
			return false
		}

		switch op {
		case OpEqual:
			return field.Equal(threshold)
		case OpNotEqual:
			return !field.Equal(threshold)
		case OpGreaterThan:
			return field.After(threshold)
		case OpGreaterOrEqual:
			return !field.Before(threshold)
		case OpLessThan:
			return field.Before(threshold)
		case OpLessOrEqual:
			return !field.After(threshold)
		case OpBetween, OpIn, OpNotIn:
		}

	case OpIn, OpNotIn:
	}

	return false
}

func compareString(field string, op Operator, condValue any) bool {
	switch op {
	case OpEqual:
		s, ok := condValue.(string)

		return ok && field == s
	case OpNotEqual:
		s, ok := condValue.(string)

		return ok && field != s
	case OpIn, OpNotIn:
		values, ok := asSlice(condValue)
		if !ok {
			return false
		}

		found := false

		for _, candidate := range values {
			if s, ok := candidate.(string); ok && s == field {
				found = true

				break
			}
		}

		if op == OpIn {
			return found
		}

		return !found
	case OpGreaterThan, OpGreaterOrEqual, OpLessThan, OpLessOrEqual, OpBetween:
	}

	return false
}

func compareBool(field bool, op Operator, condValue any) bool {
	b, ok := condValue.(bool)
	if !ok {
		return false
	}

	switch op {
	case OpEqual:
		return field == b
	case OpNotEqual:
		return field != b
	case OpGreaterThan, OpGreaterOrEqual, OpLessThan, OpLessOrEqual, OpBetween, OpIn, OpNotIn:
	}

	return false
}

// resolveTime coerces a condition value to a point in time. Accepts time.Time
// from Go-constructed rules, the 30_days_ago sentinel, and RFC 3339 strings
// from YAML or JSON rule sources.
func resolveTime(value any, now time.Time) (time.Time, bool) {
	switch v := value.(type) {
	case time.Time:
		return v, true
	case string:
		if v == SentinelThirtyDaysAgo {
			return now.AddDate(0, 0, -30), true
		}

		if t, err := time.Parse(time.RFC3339, v); err == nil {
			return t, true
		}

		return time.Time{}, false
	default:
		return time.Time{}, false
	}
}

// toFloat widens every numeric type a YAML or JSON decoder can produce, plus
// the Go int kinds used when rules are constructed in code.
func toFloat(value any) (float64, bool) {
	switch v := value.(type) {
	case float64:
		return v, true
	case float32:
		return float64(v), true
	case int:
		return float64(v), true
	case int32:
		return float64(v), true
	case int64:
		return float64(v), true
	case uint:
		return float64(v), true
	case uint32:
		return float64(v), true
	case uint64:
		return float64(v), true
	default:
		return 0, false
	}
}
