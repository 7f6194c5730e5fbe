package pipeline

import (
	"context"
	"errors"
	"sort"
	"sync"
	"time"

	"github.com/stretchr/testify/mock"

	"github.com/sells-group/catalog-enrich/internal/config"
	"github.com/sells-group/catalog-enrich/internal/model"
)

// --- Store fake ---

type fakeStore struct {
	mu         sync.Mutex
	items      map[string]model.Item
	records    map[string]model.CatalogRecord
	statuses   map[string]model.EnrichmentStatus
	reports    []*model.EnrichmentReport
	writeErr   error
	saveErr    error
	pendingErr error
}

func newFakeStore(items ...model.Item) *fakeStore {
	s := &fakeStore{
		items:    map[string]model.Item{},
		records:  map[string]model.CatalogRecord{},
		statuses: map[string]model.EnrichmentStatus{},
	}
	for _, it := range items {
		s.items[it.ID] = it
	}
	return s
}

func (s *fakeStore) GetItem(_ context.Context, id string) (*model.Item, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	it, ok := s.items[id]
	if !ok {
		return nil, errors.New("item not found")
	}
	return &it, nil
}

func (s *fakeStore) ListPendingItems(_ context.Context, minDescriptionChars, limit int) ([]model.Item, error) {
	if s.pendingErr != nil {
		return nil, s.pendingErr
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []model.Item
	for _, id := range sortedKeys(s.items) {
		it := s.items[id]
		if len(it.Description) < minDescriptionChars || it.EnrichmentStatus == model.EnrichmentPending {
			out = append(out, it)
		}
		if limit > 0 && len(out) == limit {
			break
		}
	}
	return out, nil
}

func (s *fakeStore) SetEnrichmentStatus(_ context.Context, id string, status model.EnrichmentStatus) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.statuses[id] = status
	return nil
}

func (s *fakeStore) WriteEnrichment(_ context.Context, p model.CatalogPayload) error {
	if s.writeErr != nil {
		return s.writeErr
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	s.records[p.ItemID] = model.CatalogRecord{
		ItemID:           p.ItemID,
		Description:      p.Description,
		Specifications:   p.Specifications,
		Features:         p.Features,
		Benefits:         p.Benefits,
		Tags:             p.Tags,
		Sources:          p.Sources,
		EnrichmentStatus: p.EnrichmentStatus,
		EnrichmentSource: p.EnrichmentSource,
	}
	s.statuses[p.ItemID] = p.EnrichmentStatus
	return nil
}

func (s *fakeStore) ReadEnrichment(_ context.Context, itemID string) (*model.CatalogRecord, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	rec, ok := s.records[itemID]
	if !ok {
		return nil, errors.New("not found")
	}
	return &rec, nil
}

func (s *fakeStore) SaveReport(_ context.Context, r *model.EnrichmentReport) error {
	if s.saveErr != nil {
		return s.saveErr
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	s.reports = append(s.reports, r)
	return nil
}

func sortedKeys(m map[string]model.Item) []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}

// --- Vision mock ---

type mockClassifier struct {
	mock.Mock
}

func (m *mockClassifier) Analyze(ctx context.Context, item model.Item, forceRefresh bool) (*model.VisionResult, error) {
	args := m.Called(ctx, item, forceRefresh)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*model.VisionResult), args.Error(1)
}

type panickingClassifier struct{}

func (panickingClassifier) Analyze(context.Context, model.Item, bool) (*model.VisionResult, error) {
	panic("classifier exploded")
}

// --- Discovery mock ---

type mockDiscoverer struct {
	mock.Mock
}

func (m *mockDiscoverer) Discover(ctx context.Context, itemName string, v model.VisionResult, cfg config.PipelineConfig) ([]model.SourceCandidate, error) {
	args := m.Called(ctx, itemName, v, cfg)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]model.SourceCandidate), args.Error(1)
}

func (m *mockDiscoverer) FetchContent(ctx context.Context, cands []model.SourceCandidate) ([]model.SourceCandidate, error) {
	args := m.Called(ctx, cands)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]model.SourceCandidate), args.Error(1)
}

// --- Sleeper ---

type recordingSleeper struct {
	mu     sync.Mutex
	delays []time.Duration
}

func (s *recordingSleeper) sleep(ctx context.Context, d time.Duration) error {
	s.mu.Lock()
	s.delays = append(s.delays, d)
	s.mu.Unlock()
	return ctx.Err()
}
