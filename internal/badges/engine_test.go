package badges

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"sort"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/aioutlet/product-service/internal/catalog"
	"github.com/aioutlet/product-service/internal/events"
)

// capturePublisher records published events instead of writing to a broker.
type capturePublisher struct {
	mu       sync.Mutex
	captured []capturedEvent
}

type capturedEvent struct {
	topic string
	data  any
}

func (p *capturePublisher) Publish(_ context.Context, topic string, data any, _ events.PublishOptions) error {
	p.mu.Lock()
	defer p.mu.Unlock()

	p.captured = append(p.captured, capturedEvent{topic: topic, data: data})

	return nil
}

func (p *capturePublisher) Close() error { return nil }

func (p *capturePublisher) byTopic(topic string) []capturedEvent {
	p.mu.Lock()
	defer p.mu.Unlock()

	var out []capturedEvent

	for _, event := range p.captured {
		if event.topic == topic {
			out = append(out, event)
		}
	}

	return out
}

func (p *capturePublisher) count() int {
	p.mu.Lock()
	defer p.mu.Unlock()

	return len(p.captured)
}

// fakeBadgeStore is an in-memory Store with the same error contract as the
// PostgreSQL implementation.
type fakeBadgeStore struct {
	mu       sync.Mutex
	order    []string
	products map[string]*catalog.Product
	rules    []Rule
	expired  []catalog.ExpiredBadgeRemoval

	// failWith, when set, fails every mutation with this error.
	failWith error

	sweeps int
}

func newFakeBadgeStore(products ...*catalog.Product) *fakeBadgeStore {
	store := &fakeBadgeStore{products: make(map[string]*catalog.Product)}

	for _, product := range products {
		store.order = append(store.order, product.ID)
		store.products[product.ID] = product
	}

	return store
}

func (s *fakeBadgeStore) GetProduct(_ context.Context, id string) (*catalog.Product, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	product, ok := s.products[id]
	if !ok {
		return nil, fmt.Errorf("%w: product %s", catalog.ErrNotFound, id)
	}

	clone := *product

	return &clone, nil
}

func (s *fakeBadgeStore) FindMany(_ context.Context, filter catalog.ProductFilter, page catalog.Page) ([]catalog.Product, int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	var matches []catalog.Product

	for _, id := range s.order {
		product := s.products[id]
		if filter.IsActive != nil && product.IsActive != *filter.IsActive {
			continue
		}

		matches = append(matches, *product)
	}

	total := len(matches)

	if page.Offset >= total {
		return nil, total, nil
	}

	end := page.Offset + page.Limit
	if page.Limit <= 0 || end > total {
		end = total
	}

	return matches[page.Offset:end], total, nil
}

func (s *fakeBadgeStore) AddBadge(_ context.Context, productID string, badge catalog.Badge) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.failWith != nil {
		return s.failWith
	}

	product, ok := s.products[productID]
	if !ok || !product.IsActive {
		return fmt.Errorf("%w: product %s", catalog.ErrNotFound, productID)
	}

	if product.FindBadge(badge.Type) != nil {
		return fmt.Errorf("%w: %s on product %s", catalog.ErrDuplicateBadge, badge.Type, productID)
	}

	product.Badges = append(product.Badges, badge)

	return nil
}

func (s *fakeBadgeStore) RemoveBadgeByType(_ context.Context, productID string, badgeType catalog.BadgeType, automatedOnly bool) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.failWith != nil {
		return false, s.failWith
	}

	product, ok := s.products[productID]
	if !ok || !product.IsActive {
		return false, fmt.Errorf("%w: product %s", catalog.ErrNotFound, productID)
	}

	existing := product.FindBadge(badgeType)
	if existing == nil {
		return false, fmt.Errorf("%w: %s on product %s", catalog.ErrBadgeNotPresent, badgeType, productID)
	}

	if automatedOnly && !existing.IsAutomated() {
		return false, nil
	}

	kept := product.Badges[:0]

	for _, badge := range product.Badges {
		if badge.Type != badgeType {
			kept = append(kept, badge)
		}
	}

	product.Badges = kept

	return true, nil
}

func (s *fakeBadgeStore) RemoveExpiredBadges(_ context.Context) ([]catalog.ExpiredBadgeRemoval, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.sweeps++

	if s.failWith != nil {
		return nil, s.failWith
	}

	return s.expired, nil
}

func (s *fakeBadgeStore) BadgeStatistics(_ context.Context) (*catalog.BadgeStatistics, error) {
	return &catalog.BadgeStatistics{}, nil
}

func (s *fakeBadgeStore) SeedRules(_ context.Context, rules []Rule) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.rules = append(s.rules, rules...)

	return nil
}

// ListRules mirrors the store contract: enabled filter plus priority-descending
// order.
func (s *fakeBadgeStore) ListRules(_ context.Context, enabledOnly bool) ([]Rule, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	out := make([]Rule, 0, len(s.rules))

	for _, rule := range s.rules {
		if enabledOnly && !rule.Enabled {
			continue
		}

		out = append(out, rule)
	}

	sort.SliceStable(out, func(i, j int) bool { return out[i].Priority > out[j].Priority })

	return out, nil
}

func (s *fakeBadgeStore) GetRule(_ context.Context, id string) (*Rule, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	for i := range s.rules {
		if s.rules[i].ID == id {
			rule := s.rules[i]

			return &rule, nil
		}
	}

	return nil, fmt.Errorf("%w: rule %s", catalog.ErrNotFound, id)
}

func (s *fakeBadgeStore) SetRuleEnabled(_ context.Context, id string, enabled bool) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	for i := range s.rules {
		if s.rules[i].ID == id {
			s.rules[i].Enabled = enabled

			return nil
		}
	}

	return fmt.Errorf("%w: rule %s", catalog.ErrNotFound, id)
}

var _ Store = (*fakeBadgeStore)(nil)

func newTestEngine(t *testing.T, store Store) (*Engine, *capturePublisher) {
	t.Helper()

	publisher := &capturePublisher{}
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))

	return NewEngine(store, events.NewEmitter(publisher, logger), logger), publisher
}

func activeProduct(id string, badges ...catalog.Badge) *catalog.Product {
	return &catalog.Product{
		ID:        id,
		SKU:       "SKU-" + id,
		Name:      "Product " + id,
		Price:     49.99,
		IsActive:  true,
		Badges:    badges,
		CreatedAt: evalNow.AddDate(0, 0, -100),
	}
}

func TestAssignBadge_AssignsAndEmits(t *testing.T) {
	store := newFakeBadgeStore(activeProduct("p-1"))
	engine, publisher := newTestEngine(t, store)

	badge, err := engine.AssignBadge(context.Background(), "p-1", catalog.BadgeFeatured, AssignOptions{AssignedBy: "admin-7"}, "corr-1")

	require.NoError(t, err)
	assert.Equal(t, catalog.BadgeFeatured, badge.Type)
	assert.Equal(t, "admin-7", badge.AssignedBy)
	assert.False(t, badge.IsAutomated())

	emitted := publisher.byTopic(events.TopicBadgeAssigned)
	require.Len(t, emitted, 1)

	payload, ok := emitted[0].data.(events.BadgePayload)
	require.True(t, ok)
	assert.Equal(t, "p-1", payload.ProductID)
	assert.Equal(t, "featured", payload.BadgeType)
	assert.Equal(t, "admin-7", payload.AssignedBy)
}

func TestAssignBadge_DuplicateTypeRejected(t *testing.T) {
	store := newFakeBadgeStore(activeProduct("p-1", catalog.Badge{Type: catalog.BadgeSale, AssignedAt: evalNow}))
	engine, publisher := newTestEngine(t, store)

	_, err := engine.AssignBadge(context.Background(), "p-1", catalog.BadgeSale, AssignOptions{AssignedBy: "admin-7"}, "corr-1")

	require.Error(t, err)
	assert.ErrorIs(t, err, catalog.ErrDuplicateBadge)
	assert.ErrorIs(t, err, catalog.ErrConflict)
	assert.Zero(t, publisher.count(), "failed assignment emits nothing")
}

func TestRemoveBadge_RemovesAndEmits(t *testing.T) {
	store := newFakeBadgeStore(activeProduct("p-1", catalog.Badge{Type: catalog.BadgeSale, AssignedAt: evalNow, AssignedBy: "admin-7"}))
	engine, publisher := newTestEngine(t, store)

	require.NoError(t, engine.RemoveBadge(context.Background(), "p-1", catalog.BadgeSale, "corr-1"))

	product, err := store.GetProduct(context.Background(), "p-1")
	require.NoError(t, err)
	assert.Nil(t, product.FindBadge(catalog.BadgeSale))

	require.Len(t, publisher.byTopic(events.TopicBadgeRemoved), 1)
}

func TestRemoveBadge_UnknownTypeRejected(t *testing.T) {
	store := newFakeBadgeStore(activeProduct("p-1"))
	engine, _ := newTestEngine(t, store)

	err := engine.RemoveBadge(context.Background(), "p-1", "sparkly", "corr-1")

	require.Error(t, err)
	assert.ErrorIs(t, err, catalog.ErrValidation)
}

func TestRemoveBadge_AbsentBadgeReportsNotFound(t *testing.T) {
	store := newFakeBadgeStore(activeProduct("p-1"))
	engine, _ := newTestEngine(t, store)

	err := engine.RemoveBadge(context.Background(), "p-1", catalog.BadgeSale, "corr-1")

	require.Error(t, err)
	assert.ErrorIs(t, err, catalog.ErrBadgeNotPresent)
}

func TestBulkAssign_ClassifiesPerItem(t *testing.T) {
	store := newFakeBadgeStore(
		activeProduct("p-fresh"),
		activeProduct("p-badged", catalog.Badge{Type: catalog.BadgeSale, AssignedAt: evalNow}),
	)
	engine, publisher := newTestEngine(t, store)

	report, err := engine.BulkAssign(context.Background(),
		[]string{"p-fresh", "p-badged", "p-missing"},
		catalog.BadgeSale, AssignOptions{AssignedBy: "admin-7"}, "corr-1")

	require.NoError(t, err)
	assert.Equal(t, 3, report.Requested)
	assert.Equal(t, 1, report.Succeeded)
	assert.Equal(t, 1, report.Skipped)
	assert.Equal(t, 1, report.Failed)

	require.Len(t, report.Items, 3)
	assert.Equal(t, BulkItemOutcome{ProductID: "p-fresh", Status: BulkSuccess}, report.Items[0])
	assert.Equal(t, "p-badged", report.Items[1].ProductID)
	assert.Equal(t, BulkSkipped, report.Items[1].Status)
	assert.Equal(t, BulkFailed, report.Items[2].Status)

	require.Len(t, publisher.byTopic(events.TopicBadgeAssigned), 1, "one event per applied badge")

	completed := publisher.byTopic(events.TopicBulkBadgeCompleted)
	require.Len(t, completed, 1)

	payload, ok := completed[0].data.(events.BulkBadgePayload)
	require.True(t, ok)
	assert.Equal(t, 1, payload.Succeeded)
	assert.Equal(t, 1, payload.Skipped)
	assert.Equal(t, 1, payload.Failed)
}

func TestBulkAssign_NothingAppliedEmitsFailed(t *testing.T) {
	store := newFakeBadgeStore()
	engine, publisher := newTestEngine(t, store)

	report, err := engine.BulkAssign(context.Background(), []string{"ghost-1", "ghost-2"}, catalog.BadgeSale, AssignOptions{}, "corr-1")

	require.NoError(t, err)
	assert.Equal(t, 2, report.Failed)
	assert.Empty(t, publisher.byTopic(events.TopicBulkBadgeCompleted))
	require.Len(t, publisher.byTopic(events.TopicBulkBadgeFailed), 1)
}

func TestBulkAssign_TransientFailureAborts(t *testing.T) {
	store := newFakeBadgeStore(activeProduct("p-1"))
	store.failWith = fmt.Errorf("%w: connection refused", catalog.ErrStoreUnavailable)

	engine, publisher := newTestEngine(t, store)

	report, err := engine.BulkAssign(context.Background(), []string{"p-1"}, catalog.BadgeSale, AssignOptions{}, "corr-1")

	require.Error(t, err)
	assert.ErrorIs(t, err, catalog.ErrStoreUnavailable)
	assert.Nil(t, report)
	assert.Zero(t, publisher.count(), "aborted runs emit no terminal event")
}

func TestBulkAssign_ValidatesInput(t *testing.T) {
	engine, _ := newTestEngine(t, newFakeBadgeStore())

	_, err := engine.BulkAssign(context.Background(), nil, catalog.BadgeSale, AssignOptions{}, "corr-1")
	assert.ErrorIs(t, err, catalog.ErrValidation)

	_, err = engine.BulkAssign(context.Background(), []string{"p-1"}, "sparkly", AssignOptions{}, "corr-1")
	assert.ErrorIs(t, err, catalog.ErrValidation)
}

func saleRule(id string, priority int, threshold float64) Rule {
	return Rule{
		ID:        id,
		BadgeType: catalog.BadgeSale,
		Name:      id,
		Conditions: []Condition{
			{Field: "price", Operator: OpLessThan, Value: threshold},
		},
		AutoRemoveWhenInvalid: true,
		Enabled:               true,
		Priority:              priority,
	}
}

func TestEvaluateRules_AddsBadgeWhenRuleHolds(t *testing.T) {
	store := newFakeBadgeStore(activeProduct("p-1")) // price 49.99
	require.NoError(t, store.SeedRules(context.Background(), []Rule{saleRule("sale-under-50", 10, 50)}))

	engine, publisher := newTestEngine(t, store)

	report, err := engine.EvaluateRules(context.Background(), EvaluateRequest{ProductIDs: []string{"p-1"}}, "corr-1")

	require.NoError(t, err)
	assert.Equal(t, 1, report.ProductsEvaluated)
	assert.Equal(t, 1, report.RulesEvaluated)
	assert.Equal(t, 1, report.Added)
	assert.Zero(t, report.Removed)
	assert.Zero(t, report.Skipped)

	require.Len(t, report.Outcomes, 1)
	assert.Equal(t, EvaluateOutcome{
		ProductID: "p-1",
		RuleID:    "sale-under-50",
		BadgeType: catalog.BadgeSale,
		Action:    ActionAdd,
		Applied:   true,
	}, report.Outcomes[0])

	product, err := store.GetProduct(context.Background(), "p-1")
	require.NoError(t, err)

	badge := product.FindBadge(catalog.BadgeSale)
	require.NotNil(t, badge)
	assert.True(t, badge.IsAutomated())
	assert.Equal(t, "sale-under-50", badge.Metadata["ruleId"])
	assert.Nil(t, badge.ExpiresAt, "no expiry configured on the rule")

	emitted := publisher.byTopic(events.TopicBadgeAutoAssigned)
	require.Len(t, emitted, 1)

	payload, ok := emitted[0].data.(events.BadgePayload)
	require.True(t, ok)
	assert.Equal(t, "sale-under-50", payload.RuleID)
}

func TestEvaluateRules_RuleExpiryStampsBadge(t *testing.T) {
	store := newFakeBadgeStore(activeProduct("p-1"))

	rule := saleRule("sale-short", 10, 50)
	rule.ExpiresAfter = 24 * time.Hour
	require.NoError(t, store.SeedRules(context.Background(), []Rule{rule}))

	engine, _ := newTestEngine(t, store)

	_, err := engine.EvaluateRules(context.Background(), EvaluateRequest{ProductIDs: []string{"p-1"}}, "corr-1")
	require.NoError(t, err)

	product, err := store.GetProduct(context.Background(), "p-1")
	require.NoError(t, err)

	badge := product.FindBadge(catalog.BadgeSale)
	require.NotNil(t, badge)
	require.NotNil(t, badge.ExpiresAt)
	assert.WithinDuration(t, time.Now().UTC().Add(24*time.Hour), *badge.ExpiresAt, time.Minute)
}

func TestEvaluateRules_ManualBadgeTakesPrecedence(t *testing.T) {
	manual := catalog.Badge{Type: catalog.BadgeSale, AssignedAt: evalNow, AssignedBy: "admin-7"}
	store := newFakeBadgeStore(activeProduct("p-1", manual))
	require.NoError(t, store.SeedRules(context.Background(), []Rule{saleRule("sale-under-50", 10, 50)}))

	engine, publisher := newTestEngine(t, store)

	report, err := engine.EvaluateRules(context.Background(), EvaluateRequest{ProductIDs: []string{"p-1"}}, "corr-1")

	require.NoError(t, err)
	assert.Equal(t, 1, report.Skipped)
	assert.Zero(t, report.Added)

	require.Len(t, report.Outcomes, 1)
	assert.Equal(t, ActionSkipManual, report.Outcomes[0].Action)

	product, err := store.GetProduct(context.Background(), "p-1")
	require.NoError(t, err)
	assert.Equal(t, "admin-7", product.FindBadge(catalog.BadgeSale).AssignedBy, "manual badge untouched")
	assert.Zero(t, publisher.count())
}

func TestEvaluateRules_AutoRemovesWhenConditionsStopHolding(t *testing.T) {
	automated := catalog.Badge{Type: catalog.BadgeSale, AssignedAt: evalNow, Metadata: map[string]any{"ruleId": "sale-under-40"}}
	product := activeProduct("p-1", automated) // price 49.99 no longer under 40
	store := newFakeBadgeStore(product)
	require.NoError(t, store.SeedRules(context.Background(), []Rule{saleRule("sale-under-40", 10, 40)}))

	engine, publisher := newTestEngine(t, store)

	report, err := engine.EvaluateRules(context.Background(), EvaluateRequest{ProductIDs: []string{"p-1"}}, "corr-1")

	require.NoError(t, err)
	assert.Equal(t, 1, report.Removed)

	require.Len(t, report.Outcomes, 1)
	assert.Equal(t, ActionRemove, report.Outcomes[0].Action)
	assert.True(t, report.Outcomes[0].Applied)

	got, err := store.GetProduct(context.Background(), "p-1")
	require.NoError(t, err)
	assert.Nil(t, got.FindBadge(catalog.BadgeSale))

	emitted := publisher.byTopic(events.TopicBadgeAutoRemoved)
	require.Len(t, emitted, 1)
}

func TestEvaluateRules_NoRemovalWithoutAutoRemoveFlag(t *testing.T) {
	automated := catalog.Badge{Type: catalog.BadgeSale, AssignedAt: evalNow}
	store := newFakeBadgeStore(activeProduct("p-1", automated))

	rule := saleRule("sale-under-40", 10, 40)
	rule.AutoRemoveWhenInvalid = false
	require.NoError(t, store.SeedRules(context.Background(), []Rule{rule}))

	engine, publisher := newTestEngine(t, store)

	report, err := engine.EvaluateRules(context.Background(), EvaluateRequest{ProductIDs: []string{"p-1"}}, "corr-1")

	require.NoError(t, err)
	assert.Zero(t, report.Removed)
	assert.Empty(t, report.Outcomes)

	got, err := store.GetProduct(context.Background(), "p-1")
	require.NoError(t, err)
	assert.NotNil(t, got.FindBadge(catalog.BadgeSale), "badge stays without the auto-remove flag")
	assert.Zero(t, publisher.count())
}

func TestEvaluateRules_ManualBadgeNeverAutoRemoved(t *testing.T) {
	manual := catalog.Badge{Type: catalog.BadgeSale, AssignedAt: evalNow, AssignedBy: "admin-7"}
	store := newFakeBadgeStore(activeProduct("p-1", manual)) // price 49.99, rule wants < 40
	require.NoError(t, store.SeedRules(context.Background(), []Rule{saleRule("sale-under-40", 10, 40)}))

	engine, publisher := newTestEngine(t, store)

	report, err := engine.EvaluateRules(context.Background(), EvaluateRequest{ProductIDs: []string{"p-1"}}, "corr-1")

	require.NoError(t, err)
	assert.Zero(t, report.Removed)
	assert.Empty(t, report.Outcomes)

	got, err := store.GetProduct(context.Background(), "p-1")
	require.NoError(t, err)
	assert.NotNil(t, got.FindBadge(catalog.BadgeSale))
	assert.Zero(t, publisher.count())
}

func TestEvaluateRules_DryRunWritesNothing(t *testing.T) {
	store := newFakeBadgeStore(activeProduct("p-1"))
	require.NoError(t, store.SeedRules(context.Background(), []Rule{saleRule("sale-under-50", 10, 50)}))

	engine, publisher := newTestEngine(t, store)

	report, err := engine.EvaluateRules(context.Background(), EvaluateRequest{ProductIDs: []string{"p-1"}, DryRun: true}, "corr-1")

	require.NoError(t, err)
	assert.True(t, report.DryRun)
	assert.Equal(t, 1, report.Added)

	require.Len(t, report.Outcomes, 1)
	assert.False(t, report.Outcomes[0].Applied)

	product, err := store.GetProduct(context.Background(), "p-1")
	require.NoError(t, err)
	assert.Empty(t, product.Badges, "dry run must not mutate products")
	assert.Zero(t, publisher.count(), "dry run must not emit")
}

func TestEvaluateRules_FiltersByBadgeType(t *testing.T) {
	store := newFakeBadgeStore(activeProduct("p-1"))

	featured := Rule{
		ID:        "featured-cheap",
		BadgeType: catalog.BadgeFeatured,
		Conditions: []Condition{
			{Field: "price", Operator: OpLessThan, Value: 100.0},
		},
		Enabled:  true,
		Priority: 5,
	}
	require.NoError(t, store.SeedRules(context.Background(), []Rule{saleRule("sale-under-50", 10, 50), featured}))

	engine, _ := newTestEngine(t, store)

	report, err := engine.EvaluateRules(context.Background(), EvaluateRequest{
		ProductIDs: []string{"p-1"},
		BadgeTypes: []catalog.BadgeType{catalog.BadgeFeatured},
	}, "corr-1")

	require.NoError(t, err)
	assert.Equal(t, 1, report.RulesEvaluated)

	product, err := store.GetProduct(context.Background(), "p-1")
	require.NoError(t, err)
	assert.NotNil(t, product.FindBadge(catalog.BadgeFeatured))
	assert.Nil(t, product.FindBadge(catalog.BadgeSale), "filtered-out rule must not fire")
}

func TestEvaluateRules_HighestPriorityRuleAssigns(t *testing.T) {
	store := newFakeBadgeStore(activeProduct("p-1")) // price 49.99 satisfies both
	require.NoError(t, store.SeedRules(context.Background(), []Rule{
		saleRule("sale-low-priority", 1, 100),
		saleRule("sale-high-priority", 20, 60),
	}))

	engine, _ := newTestEngine(t, store)

	report, err := engine.EvaluateRules(context.Background(), EvaluateRequest{ProductIDs: []string{"p-1"}}, "corr-1")

	require.NoError(t, err)
	require.Len(t, report.Outcomes, 1)
	assert.Equal(t, "sale-high-priority", report.Outcomes[0].RuleID)

	product, err := store.GetProduct(context.Background(), "p-1")
	require.NoError(t, err)
	assert.Equal(t, "sale-high-priority", product.FindBadge(catalog.BadgeSale).Metadata["ruleId"])
}

func TestEvaluateRules_UnknownProductSkipped(t *testing.T) {
	store := newFakeBadgeStore(activeProduct("p-1"))
	require.NoError(t, store.SeedRules(context.Background(), []Rule{saleRule("sale-under-50", 10, 50)}))

	engine, _ := newTestEngine(t, store)

	report, err := engine.EvaluateRules(context.Background(), EvaluateRequest{ProductIDs: []string{"ghost", "p-1"}}, "corr-1")

	require.NoError(t, err, "unknown ids are skipped, not fatal")
	assert.Equal(t, 1, report.ProductsEvaluated)
	assert.Equal(t, 1, report.Added)
}

func TestEvaluateRules_InactiveProductSkipped(t *testing.T) {
	inactive := activeProduct("p-1")
	inactive.IsActive = false

	store := newFakeBadgeStore(inactive)
	require.NoError(t, store.SeedRules(context.Background(), []Rule{saleRule("sale-under-50", 10, 50)}))

	engine, _ := newTestEngine(t, store)

	report, err := engine.EvaluateRules(context.Background(), EvaluateRequest{ProductIDs: []string{"p-1"}}, "corr-1")

	require.NoError(t, err)
	assert.Zero(t, report.ProductsEvaluated)
	assert.Empty(t, report.Outcomes)
}

func TestEvaluateRules_ScansWholeCatalogInPages(t *testing.T) {
	products := make([]*catalog.Product, 0, evaluationPageSize+50)
	for i := 0; i < evaluationPageSize+50; i++ {
		products = append(products, activeProduct(fmt.Sprintf("p-%03d", i)))
	}

	store := newFakeBadgeStore(products...)
	require.NoError(t, store.SeedRules(context.Background(), []Rule{saleRule("sale-under-50", 10, 50)}))

	engine, _ := newTestEngine(t, store)

	report, err := engine.EvaluateRules(context.Background(), EvaluateRequest{}, "corr-1")

	require.NoError(t, err)
	assert.Equal(t, evaluationPageSize+50, report.ProductsEvaluated)
	assert.Equal(t, evaluationPageSize+50, report.Added)
}

func TestEvaluateRules_NoEnabledRulesIsNoop(t *testing.T) {
	store := newFakeBadgeStore(activeProduct("p-1"))

	disabled := saleRule("sale-disabled", 10, 50)
	disabled.Enabled = false
	require.NoError(t, store.SeedRules(context.Background(), []Rule{disabled}))

	engine, _ := newTestEngine(t, store)

	report, err := engine.EvaluateRules(context.Background(), EvaluateRequest{ProductIDs: []string{"p-1"}}, "corr-1")

	require.NoError(t, err)
	assert.Zero(t, report.RulesEvaluated)
	assert.Zero(t, report.ProductsEvaluated)
}

func TestProductBadges_ViewSelectsDisplayBadge(t *testing.T) {
	expired := evalNow.Add(-time.Hour)
	product := activeProduct("p-1",
		catalog.Badge{Type: catalog.BadgeNew, AssignedAt: evalNow},
		catalog.Badge{Type: catalog.BadgeFeatured, AssignedAt: evalNow, AssignedBy: "admin-7"},
		catalog.Badge{Type: catalog.BadgeSale, AssignedAt: evalNow.Add(-2 * time.Hour), ExpiresAt: &expired},
	)

	engine, _ := newTestEngine(t, newFakeBadgeStore(product))

	view, err := engine.ProductBadges(context.Background(), "p-1")

	require.NoError(t, err)
	assert.Equal(t, "p-1", view.ProductID)
	require.Len(t, view.Badges, 2, "expired badge excluded")

	require.NotNil(t, view.DisplayBadge)
	assert.Equal(t, "featured", view.DisplayBadge.Type, "featured outranks new")
	assert.False(t, view.DisplayBadge.Automated)
}

func TestRemoveExpiredBadges_EmitsPerBadge(t *testing.T) {
	store := newFakeBadgeStore()
	store.expired = []catalog.ExpiredBadgeRemoval{
		{ProductID: "p-1", Badges: []catalog.Badge{{Type: catalog.BadgeSale}, {Type: catalog.BadgeNew}}},
		{ProductID: "p-2", Badges: []catalog.Badge{{Type: catalog.BadgeTrending}}},
	}

	engine, publisher := newTestEngine(t, store)

	removals, err := engine.RemoveExpiredBadges(context.Background(), "corr-1")

	require.NoError(t, err)
	assert.Len(t, removals, 2)
	assert.Len(t, publisher.byTopic(events.TopicBadgeAutoRemoved), 3, "one event per removed badge")
}

func TestSweeper_RunsAndStops(t *testing.T) {
	store := newFakeBadgeStore()
	engine, _ := newTestEngine(t, store)

	sweeper := NewSweeper(engine, 5*time.Millisecond, slog.New(slog.NewTextHandler(io.Discard, nil)))

	assert.Eventually(t, func() bool {
		store.mu.Lock()
		defer store.mu.Unlock()

		return store.sweeps > 0
	}, time.Second, time.Millisecond)

	require.NoError(t, sweeper.Close())
	require.NoError(t, sweeper.Close(), "close is idempotent")
}
