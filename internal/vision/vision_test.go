package vision

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"

	"github.com/sells-group/catalog-enrich/internal/model"
)

type mockAnalyzer struct{ mock.Mock }

func (m *mockAnalyzer) AnalyzeImage(ctx context.Context, imageURL, name string) (*model.VisionResult, error) {
	args := m.Called(ctx, imageURL, name)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*model.VisionResult), args.Error(1)
}

type memCache struct {
	data    map[string]model.VisionResult
	readErr error
	writes  int
}

func (c *memCache) GetCachedVision(_ context.Context, id string) (*model.VisionResult, error) {
	if c.readErr != nil {
		return nil, c.readErr
	}
	v, ok := c.data[id]
	if !ok {
		return nil, nil
	}
	return &v, nil
}

func (c *memCache) SetCachedVision(_ context.Context, id string, v model.VisionResult) error {
	c.writes++
	c.data[id] = v
	return nil
}

var spacer = model.Item{ID: "item-1", Name: "50mm Spacer Bar", SKU: "SB-50", ImageURL: "https://cdn.example/sb.jpg"}

func TestAnalyze_CacheHit(t *testing.T) {
	a := &mockAnalyzer{}
	cache := &memCache{data: map[string]model.VisionResult{"item-1": {Category: "hardware", Confidence: 80}}}

	res, err := NewClassifier(a, cache).Analyze(context.Background(), spacer, false)
	require.NoError(t, err)
	assert.Equal(t, "hardware", res.Category)
	a.AssertNotCalled(t, "AnalyzeImage", mock.Anything, mock.Anything, mock.Anything)
}

func TestAnalyze_ForceRefresh(t *testing.T) {
	a := &mockAnalyzer{}
	a.On("AnalyzeImage", mock.Anything, spacer.ImageURL, spacer.Name).
		Return(&model.VisionResult{Category: "fasteners", Confidence: 91, DetectedText: []string{"ACME"}}, nil)
	cache := &memCache{data: map[string]model.VisionResult{"item-1": {Category: "stale"}}}

	res, err := NewClassifier(a, cache).Analyze(context.Background(), spacer, true)
	require.NoError(t, err)
	assert.Equal(t, "fasteners", res.Category)
	assert.Equal(t, []string{"ACME", "SB-50"}, res.DetectedText)
	assert.Equal(t, 1, cache.writes)
	assert.Equal(t, "fasteners", cache.data["item-1"].Category)
}

func TestAnalyze_CacheReadErrorFallsThrough(t *testing.T) {
	a := &mockAnalyzer{}
	a.On("AnalyzeImage", mock.Anything, mock.Anything, mock.Anything).
		Return(&model.VisionResult{Category: "hardware", DetectedText: []string{"sb-50"}}, nil)
	cache := &memCache{data: map[string]model.VisionResult{}, readErr: errors.New("db down")}

	res, err := NewClassifier(a, cache).Analyze(context.Background(), spacer, false)
	require.NoError(t, err)
	assert.Equal(t, []string{"sb-50"}, res.DetectedText)
}

func TestAnalyze_Errors(t *testing.T) {
	a := &mockAnalyzer{}
	a.On("AnalyzeImage", mock.Anything, mock.Anything, mock.Anything).Return(nil, errors.New("overloaded"))

	_, err := NewClassifier(a, nil).Analyze(context.Background(), spacer, false)
	assert.ErrorContains(t, err, "vision: analyze item item-1")

	_, err = NewClassifier(a, nil).Analyze(context.Background(), model.Item{ID: "x"}, false)
	assert.ErrorContains(t, err, "has no image")
}

func TestMinimal(t *testing.T) {
	v := Minimal(spacer)
	assert.Equal(t, "unknown", v.Category)
	assert.Zero(t, v.Confidence)
	assert.Equal(t, []string{"SB-50"}, v.DetectedText)

	assert.Empty(t, Minimal(model.Item{ID: "x"}).DetectedText)
}
