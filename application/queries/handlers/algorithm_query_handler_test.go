package handlers

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"feedrank/application/ports"
	"feedrank/application/queries"
	"feedrank/application/queries/bus"
	"feedrank/application/services"
	"feedrank/domain/core/entities"
	"feedrank/domain/core/valueobjects"
	"feedrank/domain/ranking"
	"feedrank/domain/versioning"
	pkgerrors "feedrank/pkg/errors"
)

var now = time.Date(2024, 6, 1, 12, 0, 0, 0, time.UTC)

// MockAlgorithmCatalog is a mock implementation of AlgorithmCatalog
type MockAlgorithmCatalog struct {
	mock.Mock
}

func (m *MockAlgorithmCatalog) GetUserAlgorithm(ctx context.Context, viewerID string) (*services.ResolvedAlgorithm, error) {
	args := m.Called(ctx, viewerID)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*services.ResolvedAlgorithm), args.Error(1)
}

func (m *MockAlgorithmCatalog) GetAvailableAlgorithms(ctx context.Context, filter ports.AlgorithmFilter) ([]*entities.Algorithm, error) {
	args := m.Called(ctx, filter)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]*entities.Algorithm), args.Error(1)
}

func (m *MockAlgorithmCatalog) GetAlgorithm(ctx context.Context, id, viewerID string) (*entities.Algorithm, error) {
	args := m.Called(ctx, id, viewerID)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*entities.Algorithm), args.Error(1)
}

func (m *MockAlgorithmCatalog) GetAlgorithmBySlug(ctx context.Context, slug, viewerID string) (*entities.Algorithm, error) {
	args := m.Called(ctx, slug, viewerID)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*entities.Algorithm), args.Error(1)
}

func (m *MockAlgorithmCatalog) ListUserPreferences(ctx context.Context, userID string) ([]*entities.Preference, error) {
	args := m.Called(ctx, userID)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]*entities.Preference), args.Error(1)
}

func (m *MockAlgorithmCatalog) ListRevisions(ctx context.Context, algorithmID, viewerID string, limit int) ([]*entities.Revision, error) {
	args := m.Called(ctx, algorithmID, viewerID, limit)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]*entities.Revision), args.Error(1)
}

// MockFeedSource is a mock implementation of FeedSource
type MockFeedSource struct {
	mock.Mock
}

func (m *MockFeedSource) GenerateFeed(ctx context.Context, req services.FeedRequest) *services.FeedResponse {
	args := m.Called(ctx, req)
	return args.Get(0).(*services.FeedResponse)
}

type recordingObserver struct {
	names []string
}

func (o *recordingObserver) ObserveQuery(queryType string, _ time.Duration, _ error) {
	o.names = append(o.names, queryType)
}

func testAlgorithm(t *testing.T, id, slug string) *entities.Algorithm {
	t.Helper()
	a, err := entities.NewOfficialAlgorithm(valueobjects.MustAlgorithmID(id), entities.AlgorithmDefinition{
		Name:         "Test " + slug,
		Slug:         slug,
		CategorySlug: "basics",
		IsPublic:     true,
		WeightConfig: valueobjects.WeightConfig{"time_recency": 1},
	}, now)
	require.NoError(t, err)
	return a
}

func newQueryBus(t *testing.T, catalog AlgorithmCatalog, feeds FeedSource, observer bus.Observer) *bus.QueryBus {
	t.Helper()
	b := bus.NewQueryBus(bus.MetricsMiddleware(observer))
	require.NoError(t, NewAlgorithmQueryHandler(catalog, feeds, zap.NewNop()).Register(b))
	return b
}

func TestAlgorithmQueryHandler_GetFeed(t *testing.T) {
	// Arrange
	ctx := context.Background()
	catalog := new(MockAlgorithmCatalog)
	feeds := new(MockFeedSource)
	observer := &recordingObserver{}

	expected := services.FeedRequest{
		ViewerID:            "user-1",
		AlgorithmSlug:       "social",
		Limit:               10,
		Offset:              20,
		IncludeExplanations: true,
		Hints:               ranking.Hints{TimeOfDay: "evening", Device: "mobile"},
	}
	response := &services.FeedResponse{Algorithm: services.AlgorithmSummary{Slug: "social"}}
	feeds.On("GenerateFeed", ctx, expected).Return(response)

	// Act
	result, err := newQueryBus(t, catalog, feeds, observer).Ask(ctx, queries.GetFeedQuery{
		ViewerID:  "user-1",
		Algorithm: "social",
		Limit:     10,
		Offset:    20,
		Explain:   true,
		TimeOfDay: "evening",
		Device:    "mobile",
	})

	// Assert
	require.NoError(t, err)
	assert.Same(t, response, result)
	assert.Equal(t, []string{"GetFeedQuery"}, observer.names)
	feeds.AssertExpectations(t)
}

func TestAlgorithmQueryHandler_RejectsInvalidQueries(t *testing.T) {
	tests := []struct {
		name  string
		query bus.Query
	}{
		{name: "limit too large", query: queries.GetFeedQuery{Limit: 101}},
		{name: "negative offset", query: queries.GetFeedQuery{Offset: -1}},
		{name: "unknown time of day", query: queries.GetFeedQuery{TimeOfDay: "brunch"}},
		{name: "empty algorithm ref", query: queries.GetAlgorithmQuery{}},
		{name: "missing revisions algorithm", query: queries.ListRevisionsQuery{}},
		{name: "anonymous preferences", query: queries.ListPreferencesQuery{}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			observer := &recordingObserver{}
			b := newQueryBus(t, new(MockAlgorithmCatalog), new(MockFeedSource), observer)

			_, err := b.Ask(context.Background(), tt.query)

			assert.True(t, pkgerrors.IsValidation(err))
			assert.Empty(t, observer.names)
		})
	}
}

func TestAlgorithmQueryHandler_ListAlgorithms(t *testing.T) {
	ctx := context.Background()
	catalog := new(MockAlgorithmCatalog)
	filter := ports.AlgorithmFilter{CategorySlug: "basics", Search: "time", IncludePrivateFor: "user-1", Limit: 5}
	catalog.On("GetAvailableAlgorithms", ctx, filter).Return([]*entities.Algorithm{
		testAlgorithm(t, "official-chronological", "chronological"),
	}, nil)

	result, err := newQueryBus(t, catalog, new(MockFeedSource), &recordingObserver{}).Ask(ctx, queries.ListAlgorithmsQuery{
		ViewerID: "user-1",
		Category: "basics",
		Search:   "time",
		Limit:    5,
	})

	require.NoError(t, err)
	list := result.(*queries.ListAlgorithmsResult)
	assert.Equal(t, 1, list.Count)
	assert.Equal(t, "chronological", list.Algorithms[0].Slug)
	assert.Equal(t, "2024-06-01T12:00:00Z", list.Algorithms[0].CreatedAt)
	assert.Equal(t, 1.0, list.Algorithms[0].WeightConfig["time_recency"])
}

func TestAlgorithmQueryHandler_GetAlgorithm(t *testing.T) {
	ctx := context.Background()

	t.Run("by slug", func(t *testing.T) {
		catalog := new(MockAlgorithmCatalog)
		catalog.On("GetAlgorithmBySlug", ctx, "social", "").Return(testAlgorithm(t, "official-social", "social"), nil)

		result, err := newQueryBus(t, catalog, new(MockFeedSource), &recordingObserver{}).Ask(ctx, queries.GetAlgorithmQuery{Ref: "social"})

		require.NoError(t, err)
		assert.Equal(t, "official-social", result.(*queries.AlgorithmView).ID)
		catalog.AssertNotCalled(t, "GetAlgorithm", mock.Anything, mock.Anything, mock.Anything)
	})

	t.Run("falls back to id", func(t *testing.T) {
		catalog := new(MockAlgorithmCatalog)
		catalog.On("GetAlgorithmBySlug", ctx, "official-social", "").Return(nil, pkgerrors.NewNotFoundError("algorithm"))
		catalog.On("GetAlgorithm", ctx, "official-social", "").Return(testAlgorithm(t, "official-social", "social"), nil)

		result, err := newQueryBus(t, catalog, new(MockFeedSource), &recordingObserver{}).Ask(ctx, queries.GetAlgorithmQuery{Ref: "official-social"})

		require.NoError(t, err)
		assert.Equal(t, "social", result.(*queries.AlgorithmView).Slug)
		catalog.AssertExpectations(t)
	})

	t.Run("private is not retried", func(t *testing.T) {
		catalog := new(MockAlgorithmCatalog)
		catalog.On("GetAlgorithmBySlug", ctx, "secret", "user-2").
			Return(nil, pkgerrors.NewForbiddenError("private").WithCode(pkgerrors.CodeAlgorithmPrivate))

		_, err := newQueryBus(t, catalog, new(MockFeedSource), &recordingObserver{}).Ask(ctx, queries.GetAlgorithmQuery{Ref: "secret", ViewerID: "user-2"})

		assert.True(t, pkgerrors.HasCode(err, pkgerrors.CodeAlgorithmPrivate))
		catalog.AssertNotCalled(t, "GetAlgorithm", mock.Anything, mock.Anything, mock.Anything)
	})
}

func TestAlgorithmQueryHandler_GetActiveAlgorithm(t *testing.T) {
	ctx := context.Background()
	catalog := new(MockAlgorithmCatalog)
	catalog.On("GetUserAlgorithm", ctx, "user-1").Return(&services.ResolvedAlgorithm{
		Algorithm:    testAlgorithm(t, "official-quality", "quality"),
		CustomConfig: map[string]interface{}{"ideal_reading_minutes": 8},
	}, nil)

	result, err := newQueryBus(t, catalog, new(MockFeedSource), &recordingObserver{}).Ask(ctx, queries.GetActiveAlgorithmQuery{ViewerID: "user-1"})

	require.NoError(t, err)
	active := result.(*queries.ActiveAlgorithmResult)
	assert.Equal(t, "quality", active.Algorithm.Slug)
	assert.Equal(t, 8, active.CustomConfig["ideal_reading_minutes"])
}

func TestAlgorithmQueryHandler_ListRevisions(t *testing.T) {
	// Arrange
	ctx := context.Background()
	catalog := new(MockAlgorithmCatalog)
	current := testAlgorithm(t, "alg-1", "recent")
	snapshot := func(version string, weights valueobjects.WeightConfig) entities.AlgorithmSnapshot {
		s := current.Snapshot()
		s.Version = version
		s.WeightConfig = weights
		return s
	}
	catalog.On("GetAlgorithm", ctx, "alg-1", "user-1").Return(current, nil)
	catalog.On("ListRevisions", ctx, "alg-1", "user-1", 10).Return([]*entities.Revision{
		{
			ID:          "rev-2",
			AlgorithmID: "alg-1",
			Version:     "1.0.1",
			Definition:  snapshot("1.0.1", valueobjects.WeightConfig{"time_recency": 0.5, "popularity": 0.5}),
			EditorID:    "user-1",
			CreatedAt:   now,
		},
		{
			ID:          "rev-1",
			AlgorithmID: "alg-1",
			Version:     "1.0.0",
			Definition:  snapshot("1.0.0", valueobjects.WeightConfig{"time_recency": 0.5, "popularity": 0.5}),
			EditorID:    "user-1",
			CreatedAt:   now.Add(-time.Hour),
		},
	}, nil)

	// Act
	result, err := newQueryBus(t, catalog, new(MockFeedSource), &recordingObserver{}).Ask(ctx, queries.ListRevisionsQuery{
		ViewerID:    "user-1",
		AlgorithmID: "alg-1",
		Limit:       10,
	})

	// Assert
	require.NoError(t, err)
	list := result.(*queries.ListRevisionsResult)
	require.Len(t, list.Revisions, 2)
	assert.Equal(t, "1.0.1", list.Revisions[0].Version)
	assert.Equal(t, "2024-06-01T11:00:00Z", list.Revisions[1].CreatedAt)

	newest := list.Revisions[0].Changes
	require.NotNil(t, newest)
	assert.Equal(t, current.Version(), newest.ToVersion)
	assert.Equal(t, []versioning.WeightChange{
		{Signal: "popularity", From: 0.5, To: 0},
		{Signal: "time_recency", From: 0.5, To: 1},
	}, newest.WeightChanges)

	oldest := list.Revisions[1].Changes
	require.NotNil(t, oldest)
	assert.Equal(t, "1.0.0", oldest.FromVersion)
	assert.Equal(t, "1.0.1", oldest.ToVersion)
	assert.Empty(t, oldest.WeightChanges)
}

func TestAlgorithmQueryHandler_ListRevisionsHiddenAlgorithm(t *testing.T) {
	ctx := context.Background()
	catalog := new(MockAlgorithmCatalog)
	catalog.On("GetAlgorithm", ctx, "alg-1", "user-2").Return(nil, pkgerrors.NewForbiddenError("algorithm is private"))

	_, err := newQueryBus(t, catalog, new(MockFeedSource), &recordingObserver{}).Ask(ctx, queries.ListRevisionsQuery{
		ViewerID:    "user-2",
		AlgorithmID: "alg-1",
	})

	assert.True(t, pkgerrors.IsForbidden(err))
	catalog.AssertNotCalled(t, "ListRevisions", mock.Anything, mock.Anything, mock.Anything, mock.Anything)
}

func TestAlgorithmQueryHandler_ListPreferences(t *testing.T) {
	ctx := context.Background()
	catalog := new(MockAlgorithmCatalog)
	catalog.On("ListUserPreferences", ctx, "user-1").Return([]*entities.Preference{
		{UserID: "user-1", AlgorithmID: "official-social", IsInstalled: true, IsActive: true, InstalledAt: now, UpdatedAt: now},
	}, nil)

	result, err := newQueryBus(t, catalog, new(MockFeedSource), &recordingObserver{}).Ask(ctx, queries.ListPreferencesQuery{UserID: "user-1"})

	require.NoError(t, err)
	prefs := result.(*queries.ListPreferencesResult)
	require.Len(t, prefs.Preferences, 1)
	assert.True(t, prefs.Preferences[0].IsActive)
	assert.Equal(t, "official-social", prefs.Preferences[0].AlgorithmID)
}

func TestQueryBus_UnregisteredQuery(t *testing.T) {
	b := bus.NewQueryBus()

	_, err := b.Ask(context.Background(), queries.GetActiveAlgorithmQuery{})

	assert.ErrorIs(t, err, bus.ErrHandlerNotFound)
}
