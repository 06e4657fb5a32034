package badges

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/aioutlet/product-service/internal/catalog"
	"github.com/aioutlet/product-service/internal/events"
)

// evaluationPageSize bounds each page of the full-catalog rule scan.
const evaluationPageSize = 200

type (
	// Store is the badge engine's slice of product persistence, satisfied by
	// the PostgreSQL product store.
	Store interface {
		GetProduct(ctx context.Context, id string) (*catalog.Product, error)
		FindMany(ctx context.Context, filter catalog.ProductFilter, page catalog.Page) ([]catalog.Product, int, error)
		AddBadge(ctx context.Context, productID string, badge catalog.Badge) error
		RemoveBadgeByType(ctx context.Context, productID string, badgeType catalog.BadgeType, automatedOnly bool) (bool, error)
		RemoveExpiredBadges(ctx context.Context) ([]catalog.ExpiredBadgeRemoval, error)
		BadgeStatistics(ctx context.Context) (*catalog.BadgeStatistics, error)
		SeedRules(ctx context.Context, rules []Rule) error
		ListRules(ctx context.Context, enabledOnly bool) ([]Rule, error)
		GetRule(ctx context.Context, id string) (*Rule, error)
		SetRuleEnabled(ctx context.Context, id string, enabled bool) error
	}

	// Engine applies manual badge operations and rule evaluation.
	Engine struct {
		store   Store
		emitter *events.Emitter
		logger  *slog.Logger
	}

	// AssignOptions carries the optional fields of a manual badge assignment.
	AssignOptions struct {
		AssignedBy string
		ExpiresAt  *time.Time
		Metadata   map[string]any
	}
)

// NewEngine creates a badge engine over the given store and emitter.
func NewEngine(store Store, emitter *events.Emitter, logger *slog.Logger) *Engine {
	return &Engine{
		store:   store,
		emitter: emitter,
		logger:  logger,
	}
}

// AssignBadge manually assigns a badge. Fails with ErrDuplicateBadge when a
// badge of that type is already present, expired or not.
func (e *Engine) AssignBadge(ctx context.Context, productID string, badgeType catalog.BadgeType, opts AssignOptions, correlationID string) (*catalog.Badge, error) {
	badge := catalog.Badge{
		Type:       badgeType,
		AssignedAt: time.Now().UTC(),
		AssignedBy: opts.AssignedBy,
		ExpiresAt:  opts.ExpiresAt,
		Metadata:   opts.Metadata,
	}

	if err := e.store.AddBadge(ctx, productID, badge); err != nil {
		return nil, err
	}

	e.emitter.BadgeAssigned(ctx, productID, badge, correlationID)

	return &badge, nil
}

// RemoveBadge manually removes a badge of the given type. Fails with
// ErrBadgeNotPresent when the product carries no such badge.
func (e *Engine) RemoveBadge(ctx context.Context, productID string, badgeType catalog.BadgeType, correlationID string) error {
	if !badgeType.IsValid() {
		return fmt.Errorf("%w: unknown badge type %q", catalog.ErrValidation, badgeType)
	}

	removed, err := e.store.RemoveBadgeByType(ctx, productID, badgeType, false)
	if err != nil {
		return err
	}

	if removed {
		e.emitter.BadgeRemoved(ctx, productID, badgeType, correlationID)
	}

	return nil
}

// Bulk assignment outcome classification.
const (
	BulkSuccess = "success"
	BulkSkipped = "skipped"
	BulkFailed  = "failed"
)

type (
	// BulkItemOutcome classifies one product of a bulk badge assignment.
	BulkItemOutcome struct {
		ProductID string `json:"productId"`
		Status    string `json:"status"`
		Reason    string `json:"reason,omitempty"`
	}

	// BulkAssignReport is the per-item outcome of a bulk badge assignment.
	BulkAssignReport struct {
		BadgeType catalog.BadgeType `json:"badgeType"`
		Requested int               `json:"requested"`
		Succeeded int               `json:"succeeded"`
		Skipped   int               `json:"skipped"`
		Failed    int               `json:"failed"`
		Items     []BulkItemOutcome `json:"items"`
	}
)

// BulkAssign assigns one badge type across many products, classifying each
// product as success, skipped (badge already present), or failed. A transient
// store failure aborts the run; already-applied assignments are absorbed as
// skips when the caller retries.
func (e *Engine) BulkAssign(ctx context.Context, productIDs []string, badgeType catalog.BadgeType, opts AssignOptions, correlationID string) (*BulkAssignReport, error) {
	if len(productIDs) == 0 {
		return nil, fmt.Errorf("%w: productIds cannot be empty", catalog.ErrValidation)
	}

	if !badgeType.IsValid() {
		return nil, fmt.Errorf("%w: unknown badge type %q", catalog.ErrValidation, badgeType)
	}

	report := &BulkAssignReport{
		BadgeType: badgeType,
		Requested: len(productIDs),
		Items:     make([]BulkItemOutcome, 0, len(productIDs)),
	}

	for _, productID := range productIDs {
		badge := catalog.Badge{
			Type:       badgeType,
			AssignedAt: time.Now().UTC(),
			AssignedBy: opts.AssignedBy,
			ExpiresAt:  opts.ExpiresAt,
			Metadata:   opts.Metadata,
		}

		err := e.store.AddBadge(ctx, productID, badge)

		switch {
		case err == nil:
			report.Succeeded++
			report.Items = append(report.Items, BulkItemOutcome{ProductID: productID, Status: BulkSuccess})
			e.emitter.BadgeAssigned(ctx, productID, badge, correlationID)

		case errors.Is(err, catalog.ErrDuplicateBadge):
			report.Skipped++
			report.Items = append(report.Items, BulkItemOutcome{
				ProductID: productID,
				Status:    BulkSkipped,
				Reason:    "badge already present",
			})

		case catalog.IsTransient(err):
			return nil, err

		default:
			report.Failed++
			report.Items = append(report.Items, BulkItemOutcome{
				ProductID: productID,
				Status:    BulkFailed,
				Reason:    err.Error(),
			})
		}
	}

	payload := events.BulkBadgePayload{
		BadgeType: string(badgeType),
		Requested: report.Requested,
		Succeeded: report.Succeeded,
		Skipped:   report.Skipped,
		Failed:    report.Failed,
	}

	if report.Succeeded+report.Skipped > 0 {
		e.emitter.BulkBadgeCompleted(ctx, payload, correlationID)
	} else {
		payload.Reason = "no assignments applied"
		e.emitter.BulkBadgeFailed(ctx, payload, correlationID)
	}

	return report, nil
}

// Rule evaluation actions.
const (
	ActionAdd        = "add"
	ActionRemove     = "remove"
	ActionSkipManual = "skipped:manual-precedence"
)

type (
	// EvaluateRequest scopes a rule evaluation run. Empty ProductIDs means
	// every active product; empty BadgeTypes means every enabled rule.
	EvaluateRequest struct {
		ProductIDs []string
		BadgeTypes []catalog.BadgeType
		DryRun     bool
	}

	// EvaluateOutcome records one planned or applied action of an evaluation
	// run. Applied is false under dry run and when a concurrent mutation won.
	EvaluateOutcome struct {
		ProductID string            `json:"productId"`
		RuleID    string            `json:"ruleId,omitempty"`
		BadgeType catalog.BadgeType `json:"badgeType"`
		Action    string            `json:"action"`
		Applied   bool              `json:"applied"`
	}

	// EvaluateReport summarizes an evaluation run.
	EvaluateReport struct {
		DryRun            bool              `json:"dryRun"`
		ProductsEvaluated int               `json:"productsEvaluated"`
		RulesEvaluated    int               `json:"rulesEvaluated"`
		Added             int               `json:"added"`
		Removed           int               `json:"removed"`
		Skipped           int               `json:"skipped"`
		Outcomes          []EvaluateOutcome `json:"outcomes"`
	}
)

// EvaluateRules runs the enabled rules against the requested products. For
// each product and badge type: conditions met and badge absent adds it;
// conditions no longer met removes a rule-assigned badge when some rule for
// the type auto-removes. Manual badges are never added over or removed; a
// rule firing into a manual badge is classified skipped:manual-precedence.
// Under dry run every action is reported but nothing is written.
func (e *Engine) EvaluateRules(ctx context.Context, req EvaluateRequest, correlationID string) (*EvaluateReport, error) {
	rules, err := e.store.ListRules(ctx, true)
	if err != nil {
		return nil, err
	}

	rules = filterRulesByType(rules, req.BadgeTypes)

	report := &EvaluateReport{
		DryRun:         req.DryRun,
		RulesEvaluated: len(rules),
		Outcomes:       []EvaluateOutcome{},
	}

	if len(rules) == 0 {
		return report, nil
	}

	now := time.Now().UTC()

	if len(req.ProductIDs) > 0 {
		for _, productID := range req.ProductIDs {
			product, err := e.store.GetProduct(ctx, productID)
			if err != nil {
				if errors.Is(err, catalog.ErrNotFound) {
					e.logger.Warn("rule evaluation skipped unknown product",
						slog.String("product_id", productID),
						slog.String("correlation_id", correlationID),
					)

					continue
				}

				return nil, err
			}

			e.evaluateProduct(ctx, product, rules, now, report, correlationID)
		}

		return report, nil
	}

	// Full catalog scan, one page at a time.
	active := true
	page := catalog.Page{Limit: evaluationPageSize}

	for {
		products, total, err := e.store.FindMany(ctx, catalog.ProductFilter{IsActive: &active}, page)
		if err != nil {
			return nil, err
		}

		for i := range products {
			e.evaluateProduct(ctx, &products[i], rules, now, report, correlationID)
		}

		page.Offset += len(products)
		if len(products) == 0 || page.Offset >= total {
			break
		}
	}

	return report, nil
}

// evaluateProduct runs the rule set against one product. Rules arrive in
// priority order; within a badge type the highest-priority satisfied rule is
// the assigning rule, and the badge is removed only when no rule for the type
// holds.
func (e *Engine) evaluateProduct(ctx context.Context, product *catalog.Product, rules []Rule, now time.Time, report *EvaluateReport, correlationID string) {
	if !product.IsActive {
		return
	}

	report.ProductsEvaluated++
	doc := product.Document()

	for _, group := range groupRulesByType(rules) {
		var (
			firing      *Rule
			removalRule *Rule
		)

		for i := range group.rules {
			rule := &group.rules[i]

			if firing == nil && EvaluateRule(*rule, doc, now) {
				firing = rule
			}

			if removalRule == nil && rule.AutoRemoveWhenInvalid {
				removalRule = rule
			}
		}

		existing := product.FindBadge(group.badgeType)

		switch {
		case firing != nil && existing == nil:
			outcome := EvaluateOutcome{
				ProductID: product.ID,
				RuleID:    firing.ID,
				BadgeType: group.badgeType,
				Action:    ActionAdd,
			}
			if !report.DryRun {
				outcome.Applied = e.applyRuleBadge(ctx, product.ID, *firing, now, correlationID)
			}

			report.Added++
			report.Outcomes = append(report.Outcomes, outcome)

		case firing != nil && !existing.IsAutomated():
			report.Skipped++
			report.Outcomes = append(report.Outcomes, EvaluateOutcome{
				ProductID: product.ID,
				RuleID:    firing.ID,
				BadgeType: group.badgeType,
				Action:    ActionSkipManual,
			})

		case firing == nil && existing != nil && existing.IsAutomated() && removalRule != nil:
			outcome := EvaluateOutcome{
				ProductID: product.ID,
				RuleID:    removalRule.ID,
				BadgeType: group.badgeType,
				Action:    ActionRemove,
			}
			if !report.DryRun {
				outcome.Applied = e.applyRuleRemoval(ctx, product.ID, group.badgeType, removalRule.ID, correlationID)
			}

			report.Removed++
			report.Outcomes = append(report.Outcomes, outcome)
		}
	}
}

// applyRuleBadge writes one rule-assigned badge. A lost race against a
// concurrent assignment is not an error; anything else is logged and the
// evaluation run continues.
func (e *Engine) applyRuleBadge(ctx context.Context, productID string, rule Rule, now time.Time, correlationID string) bool {
	badge := catalog.Badge{
		Type:       rule.BadgeType,
		AssignedAt: now,
		Metadata:   map[string]any{"ruleId": rule.ID},
	}

	if rule.ExpiresAfter > 0 {
		expires := now.Add(rule.ExpiresAfter)
		badge.ExpiresAt = &expires
	}

	err := e.store.AddBadge(ctx, productID, badge)
	if err != nil {
		if !errors.Is(err, catalog.ErrConflict) {
			e.logger.Error("rule badge assignment failed",
				slog.String("product_id", productID),
				slog.String("rule_id", rule.ID),
				slog.String("badge_type", string(rule.BadgeType)),
				slog.String("error", err.Error()),
			)
		}

		return false
	}

	e.emitter.BadgeAutoAssigned(ctx, productID, badge, rule.ID, correlationID)

	return true
}

// applyRuleRemoval drops one rule-assigned badge. The automated-only guard in
// the store leaves a manually assigned badge untouched even when it raced in
// after this evaluation read the product.
func (e *Engine) applyRuleRemoval(ctx context.Context, productID string, badgeType catalog.BadgeType, ruleID, correlationID string) bool {
	removed, err := e.store.RemoveBadgeByType(ctx, productID, badgeType, true)
	if err != nil {
		if !errors.Is(err, catalog.ErrNotFound) {
			e.logger.Error("rule badge removal failed",
				slog.String("product_id", productID),
				slog.String("rule_id", ruleID),
				slog.String("badge_type", string(badgeType)),
				slog.String("error", err.Error()),
			)
		}

		return false
	}

	if removed {
		e.emitter.BadgeAutoRemoved(ctx, productID, badgeType, ruleID, correlationID)
	}

	return removed
}

type ruleGroup struct {
	badgeType catalog.BadgeType
	rules     []Rule
}

// groupRulesByType buckets rules per badge type, preserving the incoming
// priority order both across and within groups.
func groupRulesByType(rules []Rule) []ruleGroup {
	index := make(map[catalog.BadgeType]int)

	groups := []ruleGroup{}

	for _, rule := range rules {
		i, seen := index[rule.BadgeType]
		if !seen {
			i = len(groups)
			index[rule.BadgeType] = i

			groups = append(groups, ruleGroup{badgeType: rule.BadgeType})
		}

		groups[i].rules = append(groups[i].rules, rule)
	}

	return groups
}

func filterRulesByType(rules []Rule, badgeTypes []catalog.BadgeType) []Rule {
	if len(badgeTypes) == 0 {
		return rules
	}

	wanted := make(map[catalog.BadgeType]bool, len(badgeTypes))
	for _, badgeType := range badgeTypes {
		wanted[badgeType] = true
	}

	filtered := make([]Rule, 0, len(rules))

	for _, rule := range rules {
		if wanted[rule.BadgeType] {
			filtered = append(filtered, rule)
		}
	}

	return filtered
}

type (
	// BadgeView is the API-facing shape of one badge.
	BadgeView struct {
		Type       string         `json:"type"`
		AssignedAt time.Time      `json:"assignedAt"`
		AssignedBy string         `json:"assignedBy,omitempty"`
		ExpiresAt  *time.Time     `json:"expiresAt,omitempty"`
		Metadata   map[string]any `json:"metadata,omitempty"`
		Automated  bool           `json:"automated"`
	}

	// ProductBadgesView reports a product's active badges and the single
	// highest-priority display badge.
	ProductBadgesView struct {
		ProductID    string      `json:"productId"`
		Badges       []BadgeView `json:"badges"`
		DisplayBadge *BadgeView  `json:"displayBadge,omitempty"`
	}
)

// ProductBadges returns the product's non-expired badges and its display
// badge.
func (e *Engine) ProductBadges(ctx context.Context, productID string) (*ProductBadgesView, error) {
	product, err := e.store.GetProduct(ctx, productID)
	if err != nil {
		return nil, err
	}

	now := time.Now().UTC()

	active := product.ActiveBadges(now)
	view := &ProductBadgesView{
		ProductID: product.ID,
		Badges:    make([]BadgeView, 0, len(active)),
	}

	for i := range active {
		view.Badges = append(view.Badges, badgeView(&active[i]))
	}

	if display := product.DisplayBadge(now); display != nil {
		v := badgeView(display)
		view.DisplayBadge = &v
	}

	return view, nil
}

func badgeView(badge *catalog.Badge) BadgeView {
	return BadgeView{
		Type:       string(badge.Type),
		AssignedAt: badge.AssignedAt,
		AssignedBy: badge.AssignedBy,
		ExpiresAt:  badge.ExpiresAt,
		Metadata:   badge.Metadata,
		Automated:  badge.IsAutomated(),
	}
}

// RemoveExpiredBadges drops every expired badge across the catalog and
// announces each removal. Run periodically by the sweeper.
func (e *Engine) RemoveExpiredBadges(ctx context.Context, correlationID string) ([]catalog.ExpiredBadgeRemoval, error) {
	removals, err := e.store.RemoveExpiredBadges(ctx)
	if err != nil {
		return nil, err
	}

	for _, removal := range removals {
		for _, badge := range removal.Badges {
			e.emitter.BadgeAutoRemoved(ctx, removal.ProductID, badge.Type, "", correlationID)
		}
	}

	return removals, nil
}

// Statistics aggregates badge counts across active products.
func (e *Engine) Statistics(ctx context.Context) (*catalog.BadgeStatistics, error) {
	return e.store.BadgeStatistics(ctx)
}

// SeedRules validates and upserts the given rule set.
func (e *Engine) SeedRules(ctx context.Context, rules []Rule) error {
	return e.store.SeedRules(ctx, rules)
}

// Rules lists badge rules, optionally restricted to enabled ones.
func (e *Engine) Rules(ctx context.Context, enabledOnly bool) ([]Rule, error) {
	return e.store.ListRules(ctx, enabledOnly)
}

// Rule fetches one badge rule by id.
func (e *Engine) Rule(ctx context.Context, id string) (*Rule, error) {
	return e.store.GetRule(ctx, id)
}

// SetRuleEnabled toggles one rule.
func (e *Engine) SetRuleEnabled(ctx context.Context, id string, enabled bool) error {
	return e.store.SetRuleEnabled(ctx, id, enabled)
}
