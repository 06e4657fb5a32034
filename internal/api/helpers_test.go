package api

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http/httptest"
	"sort"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/require"

	"github.com/aioutlet/product-service/internal/badges"
	"github.com/aioutlet/product-service/internal/bulkimport"
	"github.com/aioutlet/product-service/internal/catalog"
	"github.com/aioutlet/product-service/internal/events"
	"github.com/aioutlet/product-service/internal/storage"
	"github.com/aioutlet/product-service/internal/variations"
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

// fakeCatalogStore is an in-memory implementation of every persistence
// surface the server consumes, with the same error contract as the
// PostgreSQL store. One instance backs the product store, the size chart
// store, the badge engine, the variation engine and the import service, so
// handler tests observe coherent state across endpoints.
type fakeCatalogStore struct {
	mu          sync.Mutex
	order       []string
	products    map[string]*catalog.Product
	chartOrder  []string
	charts      map[string]*catalog.SizeChart
	rules       []badges.Rule
	jobOrder    []string
	jobs        map[string]*bulkimport.Job
	indexes     []storage.IndexInfo
	deadLetters []storage.ParkedEvent
	expired     []catalog.ExpiredBadgeRemoval
	nextID      int

	// failWith, when set, fails every operation with this error.
	failWith error
}

var (
	_ ProductStore           = (*fakeCatalogStore)(nil)
	_ catalog.SizeChartStore = (*fakeCatalogStore)(nil)
	_ badges.Store           = (*fakeCatalogStore)(nil)
	_ variations.Store       = (*fakeCatalogStore)(nil)
	_ bulkimport.JobStore    = (*fakeCatalogStore)(nil)
)

func newFakeCatalogStore(products ...*catalog.Product) *fakeCatalogStore {
	store := &fakeCatalogStore{
		products: make(map[string]*catalog.Product),
		charts:   make(map[string]*catalog.SizeChart),
		jobs:     make(map[string]*bulkimport.Job),
	}

	for _, product := range products {
		store.order = append(store.order, product.ID)
		store.products[product.ID] = product
	}

	return store
}

func (s *fakeCatalogStore) stamp(product *catalog.Product, now time.Time) {
	if product.ID == "" {
		s.nextID++
		product.ID = fmt.Sprintf("gen-%d", s.nextID)
	}

	if product.CreatedAt.IsZero() {
		product.CreatedAt = now
	}

	product.UpdatedAt = product.CreatedAt
}

// checkUnique mirrors the partial unique indexes: one active holder per SKU,
// one active child per attribute tuple under a parent.
func (s *fakeCatalogStore) checkUnique(candidate *catalog.Product) error {
	for _, id := range s.order {
		existing := s.products[id]
		if !existing.IsActive || existing.ID == candidate.ID {
			continue
		}

		if candidate.SKU != "" && strings.EqualFold(existing.SKU, candidate.SKU) {
			return fmt.Errorf("%w: %s", catalog.ErrDuplicateSKU, candidate.SKU)
		}

		if candidate.ParentID != "" && existing.ParentID == candidate.ParentID &&
			catalog.AttributeKey(existing.VariantAttributes) == catalog.AttributeKey(candidate.VariantAttributes) {
			return fmt.Errorf("%w", catalog.ErrDuplicateAttributeTuple)
		}
	}

	return nil
}

func (s *fakeCatalogStore) CreateProduct(_ context.Context, product *catalog.Product) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.failWith != nil {
		return s.failWith
	}

	s.stamp(product, time.Now().UTC())

	if err := s.checkUnique(product); err != nil {
		return err
	}

	clone := *product
	s.order = append(s.order, product.ID)
	s.products[product.ID] = &clone

	return nil
}

func (s *fakeCatalogStore) GetProduct(_ context.Context, id string) (*catalog.Product, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.failWith != nil {
		return nil, s.failWith
	}

	product, ok := s.products[id]
	if !ok {
		return nil, fmt.Errorf("%w: product %s", catalog.ErrNotFound, id)
	}

	clone := *product

	return &clone, nil
}

func (s *fakeCatalogStore) FindBySKU(_ context.Context, sku string, activeOnly bool) (*catalog.Product, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.failWith != nil {
		return nil, s.failWith
	}

	for _, id := range s.order {
		product := s.products[id]
		if activeOnly && !product.IsActive {
			continue
		}

		if product.SKU != "" && strings.EqualFold(product.SKU, sku) {
			clone := *product

			return &clone, nil
		}
	}

	return nil, nil
}

func matchesFilter(product *catalog.Product, filter catalog.ProductFilter) bool {
	if filter.IsActive != nil && product.IsActive != *filter.IsActive {
		return false
	}

	if filter.Department != "" && !strings.EqualFold(product.Department, filter.Department) {
		return false
	}

	if filter.Category != "" && !strings.EqualFold(product.Category, filter.Category) {
		return false
	}

	if filter.Subcategory != "" && !strings.EqualFold(product.Subcategory, filter.Subcategory) {
		return false
	}

	if filter.Brand != "" && !strings.EqualFold(product.Brand, filter.Brand) {
		return false
	}

	if filter.ProductType != "" && !strings.EqualFold(product.ProductType, filter.ProductType) {
		return false
	}

	if filter.ParentID != "" && product.ParentID != filter.ParentID {
		return false
	}

	if filter.VariationType != "" && product.VariationType != filter.VariationType {
		return false
	}

	if filter.PriceMin != nil && product.Price < *filter.PriceMin {
		return false
	}

	if filter.PriceMax != nil && product.Price > *filter.PriceMax {
		return false
	}

	for _, tag := range filter.Tags {
		found := false

		for _, have := range product.Tags {
			if strings.EqualFold(have, tag) {
				found = true

				break
			}
		}

		if !found {
			return false
		}
	}

	if len(filter.BadgeTypes) > 0 {
		found := false

		for _, badgeType := range filter.BadgeTypes {
			if product.FindBadge(badgeType) != nil {
				found = true

				break
			}
		}

		if !found {
			return false
		}
	}

	if len(filter.SKUs) > 0 {
		found := false

		for _, sku := range filter.SKUs {
			if strings.EqualFold(product.SKU, sku) {
				found = true

				break
			}
		}

		if !found {
			return false
		}
	}

	return true
}

func pageSlice(matches []catalog.Product, page catalog.Page) []catalog.Product {
	if page.Offset >= len(matches) {
		return nil
	}

	end := page.Offset + page.Limit
	if page.Limit <= 0 || end > len(matches) {
		end = len(matches)
	}

	return matches[page.Offset:end]
}

func (s *fakeCatalogStore) FindMany(_ context.Context, filter catalog.ProductFilter, page catalog.Page) ([]catalog.Product, int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.failWith != nil {
		return nil, 0, s.failWith
	}

	var matches []catalog.Product

	for _, id := range s.order {
		if matchesFilter(s.products[id], filter) {
			matches = append(matches, *s.products[id])
		}
	}

	return pageSlice(matches, page), len(matches), nil
}

func (s *fakeCatalogStore) SearchText(_ context.Context, query string, filter catalog.ProductFilter, page catalog.Page) ([]catalog.Product, int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.failWith != nil {
		return nil, 0, s.failWith
	}

	needle := strings.ToLower(query)

	var matches []catalog.Product

	for _, id := range s.order {
		product := s.products[id]
		if !matchesFilter(product, filter) {
			continue
		}

		haystack := strings.ToLower(product.Name + " " + product.Description + " " +
			strings.Join(product.Tags, " ") + " " + strings.Join(product.SearchKeywords, " "))
		if strings.Contains(haystack, needle) {
			matches = append(matches, *product)
		}
	}

	return pageSlice(matches, page), len(matches), nil
}

func (s *fakeCatalogStore) UpdateProduct(_ context.Context, id string, fields catalog.FieldUpdates, actor string) (*catalog.Product, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.failWith != nil {
		return nil, s.failWith
	}

	product, ok := s.products[id]
	if !ok {
		return nil, fmt.Errorf("%w: product %s", catalog.ErrNotFound, id)
	}

	if fields.Name != nil {
		product.Name = *fields.Name
	}

	if fields.Description != nil {
		product.Description = *fields.Description
	}

	if fields.Brand != nil {
		product.Brand = *fields.Brand
	}

	if fields.Price != nil {
		product.Price = *fields.Price
	}

	if fields.Department != nil {
		product.Department = *fields.Department
	}

	if fields.Category != nil {
		product.Category = *fields.Category
	}

	if fields.Subcategory != nil {
		product.Subcategory = *fields.Subcategory
	}

	if fields.ProductType != nil {
		product.ProductType = *fields.ProductType
	}

	if fields.Images != nil {
		product.Images = fields.Images
	}

	if fields.Tags != nil {
		product.Tags = fields.Tags
	}

	if fields.SearchKeywords != nil {
		product.SearchKeywords = fields.SearchKeywords
	}

	if fields.Specifications != nil {
		product.Specifications = fields.Specifications
	}

	if fields.VariantAttributes != nil {
		product.VariantAttributes = fields.VariantAttributes
	}

	if fields.IsActive != nil {
		product.IsActive = *fields.IsActive
	}

	product.UpdatedAt = time.Now().UTC()
	product.UpdatedBy = actor
	product.History = append(product.History, catalog.HistoryEntry{
		Actor:     actor,
		Timestamp: product.UpdatedAt,
		Changes:   fields.Changes(),
	})

	clone := *product

	return &clone, nil
}

func (s *fakeCatalogStore) InsertMany(_ context.Context, products []*catalog.Product) ([]string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.failWith != nil {
		return nil, s.failWith
	}

	now := time.Now().UTC()

	for _, product := range products {
		s.stamp(product, now)

		if err := s.checkUnique(product); err != nil {
			return nil, err
		}
	}

	ids := make([]string, 0, len(products))

	for _, product := range products {
		clone := *product
		s.order = append(s.order, product.ID)
		s.products[product.ID] = &clone
		ids = append(ids, product.ID)
	}

	return ids, nil
}

func (s *fakeCatalogStore) Deactivate(_ context.Context, id, actor string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.failWith != nil {
		return s.failWith
	}

	product, ok := s.products[id]
	if !ok || !product.IsActive {
		return fmt.Errorf("%w: product %s", catalog.ErrNotFound, id)
	}

	product.IsActive = false
	product.UpdatedAt = time.Now().UTC()
	product.UpdatedBy = actor

	return nil
}

func (s *fakeCatalogStore) Reactivate(_ context.Context, id, actor string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.failWith != nil {
		return s.failWith
	}

	product, ok := s.products[id]
	if !ok {
		return fmt.Errorf("%w: product %s", catalog.ErrNotFound, id)
	}

	if product.IsActive {
		return fmt.Errorf("%w: product %s", catalog.ErrAlreadyActive, id)
	}

	if err := s.checkUnique(product); err != nil {
		return err
	}

	product.IsActive = true
	product.UpdatedAt = time.Now().UTC()
	product.UpdatedBy = actor

	return nil
}

func (s *fakeCatalogStore) AssignSizeChart(_ context.Context, productID, chartID, actor string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.failWith != nil {
		return s.failWith
	}

	if _, ok := s.charts[chartID]; !ok {
		return fmt.Errorf("%w: size chart %s", catalog.ErrNotFound, chartID)
	}

	product, ok := s.products[productID]
	if !ok || !product.IsActive {
		return fmt.Errorf("%w: product %s", catalog.ErrNotFound, productID)
	}

	product.SizeChartID = chartID
	product.UpdatedBy = actor

	return nil
}

func (s *fakeCatalogStore) UnassignSizeChart(_ context.Context, productID, actor string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.failWith != nil {
		return s.failWith
	}

	product, ok := s.products[productID]
	if !ok || !product.IsActive {
		return fmt.Errorf("%w: product %s", catalog.ErrNotFound, productID)
	}

	product.SizeChartID = ""
	product.UpdatedBy = actor

	return nil
}

func (s *fakeCatalogStore) HealthCheck(_ context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	return s.failWith
}

func (s *fakeCatalogStore) ListIndexes(_ context.Context) ([]storage.IndexInfo, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.failWith != nil {
		return nil, s.failWith
	}

	return s.indexes, nil
}

// ListDeadLetters pages the seeded parked events, which tests arrange newest
// first to match the store's ordering.
func (s *fakeCatalogStore) ListDeadLetters(_ context.Context, page catalog.Page) ([]storage.ParkedEvent, int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.failWith != nil {
		return nil, 0, s.failWith
	}

	total := len(s.deadLetters)

	start := page.Offset
	if start > total {
		start = total
	}

	end := total
	if page.Limit > 0 && start+page.Limit < total {
		end = start + page.Limit
	}

	return append([]storage.ParkedEvent{}, s.deadLetters[start:end]...), total, nil
}

func (s *fakeCatalogStore) AddBadge(_ context.Context, productID string, badge catalog.Badge) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.failWith != nil {
		return s.failWith
	}

	if !badge.Type.IsValid() {
		return fmt.Errorf("%w: unknown badge type %q", catalog.ErrValidation, badge.Type)
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

func (s *fakeCatalogStore) RemoveBadgeByType(_ context.Context, productID string, badgeType catalog.BadgeType, automatedOnly bool) (bool, error) {
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

func (s *fakeCatalogStore) RemoveExpiredBadges(_ context.Context) ([]catalog.ExpiredBadgeRemoval, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.failWith != nil {
		return nil, s.failWith
	}

	return s.expired, nil
}

func (s *fakeCatalogStore) BadgeStatistics(_ context.Context) (*catalog.BadgeStatistics, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.failWith != nil {
		return nil, s.failWith
	}

	stats := &catalog.BadgeStatistics{}
	byType := make(map[catalog.BadgeType]*catalog.BadgeTypeStatistics)
	now := time.Now().UTC()

	for _, id := range s.order {
		product := s.products[id]
		if !product.IsActive {
			continue
		}

		if len(product.Badges) > 0 {
			stats.ProductsWithBadges++
		}

		for _, badge := range product.Badges {
			typeStats, ok := byType[badge.Type]
			if !ok {
				typeStats = &catalog.BadgeTypeStatistics{Type: badge.Type}
				byType[badge.Type] = typeStats
			}

			typeStats.Total++
			stats.TotalAssigned++

			if badge.IsAutomated() {
				typeStats.Automated++
				stats.TotalAutomated++
			} else {
				typeStats.Manual++
				stats.TotalManual++
			}

			if badge.ExpiresAt != nil && badge.ExpiresAt.Before(now) {
				typeStats.Expired++
				stats.TotalExpired++
			}
		}
	}

	for _, badgeType := range catalog.ValidBadgeTypes() {
		if typeStats, ok := byType[badgeType]; ok {
			stats.ByType = append(stats.ByType, *typeStats)
		}
	}

	return stats, nil
}

// SeedRules mirrors the store contract: validate everything, then upsert by id.
func (s *fakeCatalogStore) SeedRules(_ context.Context, rules []badges.Rule) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.failWith != nil {
		return s.failWith
	}

	for _, rule := range rules {
		if err := rule.Validate(); err != nil {
			return err
		}
	}

	for _, rule := range rules {
		replaced := false

		for i := range s.rules {
			if s.rules[i].ID == rule.ID {
				s.rules[i] = rule
				replaced = true

				break
			}
		}

		if !replaced {
			s.rules = append(s.rules, rule)
		}
	}

	return nil
}

func (s *fakeCatalogStore) ListRules(_ context.Context, enabledOnly bool) ([]badges.Rule, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.failWith != nil {
		return nil, s.failWith
	}

	out := make([]badges.Rule, 0, len(s.rules))

	for _, rule := range s.rules {
		if enabledOnly && !rule.Enabled {
			continue
		}

		out = append(out, rule)
	}

	sort.SliceStable(out, func(i, j int) bool { return out[i].Priority > out[j].Priority })

	return out, nil
}

func (s *fakeCatalogStore) GetRule(_ context.Context, id string) (*badges.Rule, error) {
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

func (s *fakeCatalogStore) SetRuleEnabled(_ context.Context, id string, enabled bool) error {
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

func (s *fakeCatalogStore) CreateParentWithChildren(_ context.Context, parent *catalog.Product, children []*catalog.Product) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.failWith != nil {
		return s.failWith
	}

	now := time.Now().UTC()
	s.stamp(parent, now)

	family := append([]*catalog.Product{parent}, children...)

	for _, child := range children {
		child.ParentID = parent.ID
		s.stamp(child, now)
	}

	for _, product := range family {
		if err := s.checkUnique(product); err != nil {
			return err
		}
	}

	for _, product := range family {
		clone := *product
		s.order = append(s.order, product.ID)
		s.products[product.ID] = &clone
	}

	return nil
}

func (s *fakeCatalogStore) AddChild(_ context.Context, child *catalog.Product) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.failWith != nil {
		return s.failWith
	}

	parent, ok := s.products[child.ParentID]
	if !ok || !parent.IsActive || parent.VariationType != catalog.VariationParent {
		return fmt.Errorf("%w: parent product %s", catalog.ErrNotFound, child.ParentID)
	}

	s.stamp(child, time.Now().UTC())

	if err := s.checkUnique(child); err != nil {
		return err
	}

	parent.VariationCount++

	clone := *child
	s.order = append(s.order, child.ID)
	s.products[child.ID] = &clone

	return nil
}

func (s *fakeCatalogStore) SoftDeleteChild(_ context.Context, childID, actor string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.failWith != nil {
		return s.failWith
	}

	child, ok := s.products[childID]
	if !ok || !child.IsActive || child.VariationType != catalog.VariationChild {
		return fmt.Errorf("%w: child product %s", catalog.ErrNotFound, childID)
	}

	child.IsActive = false
	child.UpdatedBy = actor

	if parent, ok := s.products[child.ParentID]; ok && parent.VariationCount > 0 {
		parent.VariationCount--
	}

	return nil
}

func (s *fakeCatalogStore) ListChildren(_ context.Context, parentID string, activeOnly bool) ([]catalog.Product, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.failWith != nil {
		return nil, s.failWith
	}

	var children []catalog.Product

	for _, id := range s.order {
		product := s.products[id]
		if product.ParentID != parentID {
			continue
		}

		if activeOnly && !product.IsActive {
			continue
		}

		children = append(children, *product)
	}

	return children, nil
}

func (s *fakeCatalogStore) CreateSizeChart(_ context.Context, chart *catalog.SizeChart) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.failWith != nil {
		return s.failWith
	}

	if chart.ID == "" {
		chart.ID = uuid.New().String()
	}

	if chart.CreatedAt.IsZero() {
		chart.CreatedAt = time.Now().UTC()
	}

	clone := *chart
	s.chartOrder = append(s.chartOrder, chart.ID)
	s.charts[chart.ID] = &clone

	return nil
}

func (s *fakeCatalogStore) GetSizeChart(_ context.Context, id string) (*catalog.SizeChart, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.failWith != nil {
		return nil, s.failWith
	}

	chart, ok := s.charts[id]
	if !ok {
		return nil, fmt.Errorf("%w: size chart %s", catalog.ErrNotFound, id)
	}

	clone := *chart

	return &clone, nil
}

func (s *fakeCatalogStore) ListSizeCharts(_ context.Context) ([]catalog.SizeChart, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.failWith != nil {
		return nil, s.failWith
	}

	charts := make([]catalog.SizeChart, 0, len(s.chartOrder))

	for _, id := range s.chartOrder {
		charts = append(charts, *s.charts[id])
	}

	return charts, nil
}

func (s *fakeCatalogStore) CreateImportJob(_ context.Context, job *bulkimport.Job) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.failWith != nil {
		return s.failWith
	}

	if job.ID == "" {
		job.ID = uuid.New().String()
	}

	if job.CreatedAt.IsZero() {
		job.CreatedAt = time.Now().UTC()
	}

	clone := *job
	s.jobOrder = append(s.jobOrder, job.ID)
	s.jobs[job.ID] = &clone

	return nil
}

func (s *fakeCatalogStore) GetImportJob(_ context.Context, id string) (*bulkimport.Job, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.failWith != nil {
		return nil, s.failWith
	}

	job, ok := s.jobs[id]
	if !ok {
		return nil, fmt.Errorf("%w: import job %s", catalog.ErrNotFound, id)
	}

	clone := *job

	return &clone, nil
}

// ListImportJobs returns jobs newest first, mirroring the created_at DESC order.
func (s *fakeCatalogStore) ListImportJobs(_ context.Context, page catalog.Page) ([]bulkimport.Job, int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.failWith != nil {
		return nil, 0, s.failWith
	}

	jobs := make([]bulkimport.Job, 0, len(s.jobOrder))

	for i := len(s.jobOrder) - 1; i >= 0; i-- {
		jobs = append(jobs, *s.jobs[s.jobOrder[i]])
	}

	total := len(jobs)

	if page.Offset >= total {
		return nil, total, nil
	}

	end := page.Offset + page.Limit
	if page.Limit <= 0 || end > total {
		end = total
	}

	return jobs[page.Offset:end], total, nil
}

func (s *fakeCatalogStore) CancelImportJob(_ context.Context, id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.failWith != nil {
		return s.failWith
	}

	job, ok := s.jobs[id]
	if !ok {
		return fmt.Errorf("%w: import job %s", catalog.ErrNotFound, id)
	}

	if job.Status.IsTerminal() {
		return fmt.Errorf("%w: import job %s already %s", catalog.ErrConflict, id, job.Status)
	}

	now := time.Now().UTC()
	job.Status = bulkimport.JobCancelled
	job.Reason = "cancelled by operator"
	job.CompletedAt = &now

	return nil
}

func (s *fakeCatalogStore) mustGet(t *testing.T, id string) *catalog.Product {
	t.Helper()

	s.mu.Lock()
	defer s.mu.Unlock()

	product, ok := s.products[id]
	require.True(t, ok, "product %s not persisted", id)

	clone := *product

	return &clone
}

func testServerConfig() *ServerConfig {
	return &ServerConfig{
		Port:               8080,
		Host:               "127.0.0.1",
		ReadTimeout:        30 * time.Second,
		WriteTimeout:       30 * time.Second,
		ShutdownTimeout:    5 * time.Second,
		LogLevel:           slog.LevelError,
		MaxRequestSize:     defaultMaxRequestSize,
		CORSAllowedOrigins: []string{"*"},
		CORSAllowedMethods: []string{"GET", "POST", "PUT", "PATCH", "DELETE", "OPTIONS"},
		CORSAllowedHeaders: []string{"Content-Type", "Authorization", "X-Correlation-ID", "X-Api-Key"},
		CORSMaxAge:         defaultCORSMaxAge,
	}
}

// newTestServer builds a server over the shared in-memory store with the
// authentication and rate limiting middleware disabled.
func newTestServer(t *testing.T, products ...*catalog.Product) (*Server, *fakeCatalogStore, *capturePublisher) {
	t.Helper()

	store := newFakeCatalogStore(products...)
	publisher := &capturePublisher{}
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	emitter := events.NewEmitter(publisher, logger)

	importCfg := &bulkimport.Config{BatchSize: 100, OutboundHTTPTimeout: 5 * time.Second}

	server := NewServer(testServerConfig(), Dependencies{
		Products:   store,
		SizeCharts: store,
		Badges:     badges.NewEngine(store, emitter, logger),
		Variations: variations.NewEngine(store, emitter, logger),
		Imports:    bulkimport.NewService(store, emitter, importCfg, logger),
		Emitter:    emitter,
	})

	return server, store, publisher
}

// doRequest drives one request through the full middleware chain.
func doRequest(t *testing.T, server *Server, method, target, contentType string, body io.Reader) *httptest.ResponseRecorder {
	t.Helper()

	req := httptest.NewRequest(method, target, body)
	if contentType != "" {
		req.Header.Set("Content-Type", contentType)
	}

	rec := httptest.NewRecorder()
	server.httpServer.Handler.ServeHTTP(rec, req)

	return rec
}

func doJSON(t *testing.T, server *Server, method, target string, payload any) *httptest.ResponseRecorder {
	t.Helper()

	var body io.Reader

	if payload != nil {
		data, err := json.Marshal(payload)
		require.NoError(t, err)
		body = bytes.NewReader(data)
	}

	return doRequest(t, server, method, target, "application/json", body)
}

func decodeJSON(t *testing.T, rec *httptest.ResponseRecorder, out any) {
	t.Helper()

	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), out), "body: %s", rec.Body.String())
}

func activeProduct(id string, badgeList ...catalog.Badge) *catalog.Product {
	now := time.Now().UTC().Add(-24 * time.Hour)

	return &catalog.Product{
		ID:            id,
		SKU:           "SKU-" + id,
		VariationType: catalog.VariationStandalone,
		Name:          "Trail Running Shoe " + id,
		Brand:         "Peakline",
		Department:    "Footwear",
		Category:      "Running",
		Price:         89.99,
		IsActive:      true,
		Badges:        badgeList,
		CreatedAt:     now,
		UpdatedAt:     now,
	}
}
