package services

import (
	"context"
	"sync"
	"time"

	"github.com/stretchr/testify/mock"

	"feedrank/application/ports"
	"feedrank/domain/core/entities"
	"feedrank/domain/core/valueobjects"
	"feedrank/domain/events"
)

var fixedNow = time.Date(2024, 6, 1, 12, 0, 0, 0, time.UTC)

func clock() time.Time { return fixedNow }

func officialCatalog() []OfficialAlgorithm {
	return []OfficialAlgorithm{
		{
			ID: "official-chronological",
			Definition: entities.AlgorithmDefinition{
				Name:         "Chronological",
				Slug:         "chronological",
				CategorySlug: "basics",
				WeightConfig: valueobjects.WeightConfig{valueobjects.SignalTimeRecency: 1},
			},
		},
		{
			ID: "official-social",
			Definition: entities.AlgorithmDefinition{
				Name:         "Friends First",
				Slug:         "social",
				CategorySlug: "social",
				WeightConfig: valueobjects.WeightConfig{
					valueobjects.SignalFollowLevel:       0.4,
					valueobjects.SignalEngagementHistory: 0.4,
					valueobjects.SignalMutualConnections: 0.2,
				},
			},
		},
		{
			ID: "official-quality",
			Definition: entities.AlgorithmDefinition{
				Name:         "Deep Reads",
				Slug:         "quality",
				CategorySlug: "quality",
				WeightConfig: valueobjects.WeightConfig{
					valueobjects.SignalContentQuality:    0.4,
					valueobjects.SignalClickbaitFree:     0.3,
					valueobjects.SignalReadingTime:       0.2,
					valueobjects.SignalSourceCredibility: 0.1,
				},
			},
		},
	}
}

func customDefinition(slug string, public bool) entities.AlgorithmDefinition {
	return entities.AlgorithmDefinition{
		Name:         "Custom " + slug,
		Slug:         slug,
		Description:  "popular posts about go",
		CategorySlug: "custom",
		IsPublic:     public,
		WeightConfig: valueobjects.WeightConfig{
			valueobjects.SignalPopularity:  0.6,
			valueobjects.SignalTimeRecency: 0.4,
		},
	}
}

// recordingPublisher captures published events
type recordingPublisher struct {
	mu     sync.Mutex
	events []events.DomainEvent
}

func (p *recordingPublisher) Publish(_ context.Context, event events.DomainEvent) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.events = append(p.events, event)
	return nil
}

func (p *recordingPublisher) PublishBatch(ctx context.Context, batch []events.DomainEvent) error {
	for _, e := range batch {
		_ = p.Publish(ctx, e)
	}
	return nil
}

func (p *recordingPublisher) types() []string {
	p.mu.Lock()
	defer p.mu.Unlock()
	out := make([]string, len(p.events))
	for i, e := range p.events {
		out[i] = e.GetEventType()
	}
	return out
}

// MockContentSource is a mock implementation of ports.ContentSource
type MockContentSource struct {
	mock.Mock
}

func (m *MockContentSource) RecentPosts(ctx context.Context, limit int) ([]ports.Post, error) {
	args := m.Called(ctx, limit)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]ports.Post), args.Error(1)
}

func (m *MockContentSource) Profiles(ctx context.Context, authorIDs []string) (map[string]valueobjects.AuthorProfile, error) {
	args := m.Called(ctx, authorIDs)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(map[string]valueobjects.AuthorProfile), args.Error(1)
}

func (m *MockContentSource) EngagementCounts(ctx context.Context, postIDs []string) (map[string]ports.EngagementCounts, error) {
	args := m.Called(ctx, postIDs)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(map[string]ports.EngagementCounts), args.Error(1)
}

func (m *MockContentSource) LikedBy(ctx context.Context, viewerID string, postIDs []string) (map[string]bool, error) {
	args := m.Called(ctx, viewerID, postIDs)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(map[string]bool), args.Error(1)
}

func (m *MockContentSource) Following(ctx context.Context, userID string) ([]string, error) {
	args := m.Called(ctx, userID)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]string), args.Error(1)
}

func (m *MockContentSource) FollowingOf(ctx context.Context, userIDs []string) (map[string][]string, error) {
	args := m.Called(ctx, userIDs)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(map[string][]string), args.Error(1)
}

func (m *MockContentSource) EngagementByAuthor(ctx context.Context, viewerID string, authorIDs []string) (map[string]int, error) {
	args := m.Called(ctx, viewerID, authorIDs)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(map[string]int), args.Error(1)
}

// MockSignalLogRepository is a mock implementation of ports.SignalLogRepository
type MockSignalLogRepository struct {
	mock.Mock
}

func (m *MockSignalLogRepository) SaveBatch(ctx context.Context, logs []*entities.SignalLog) error {
	args := m.Called(ctx, logs)
	return args.Error(0)
}

// recordingMetrics counts metric calls
type recordingMetrics struct {
	mu            sync.Mutex
	feeds         int
	fallbacks     int
	signalFailure map[string]int
	dropped       map[string]int
}

func newRecordingMetrics() *recordingMetrics {
	return &recordingMetrics{signalFailure: map[string]int{}, dropped: map[string]int{}}
}

func (m *recordingMetrics) FeedGenerated(_ string, fallback bool, _ time.Duration, _ int) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.feeds++
	if fallback {
		m.fallbacks++
	}
}

func (m *recordingMetrics) SignalFailed(signal string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.signalFailure[signal]++
}

func (m *recordingMetrics) AuditDropped(reason string, n int) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.dropped[reason] += n
}

func (m *recordingMetrics) droppedFor(reason string) int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.dropped[reason]
}

// recordingSink captures audit rows synchronously
type recordingSink struct {
	mu   sync.Mutex
	logs []*entities.SignalLog
}

func (s *recordingSink) Enqueue(logs ...*entities.SignalLog) int {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.logs = append(s.logs, logs...)
	return len(logs)
}

// staticFallback serves a fixed set of posts
type staticFallback struct {
	ages map[string]time.Duration
}

func (f staticFallback) Posts(now time.Time) []valueobjects.ContentItem {
	items := make([]valueobjects.ContentItem, 0, len(f.ages))
	for id, age := range f.ages {
		items = append(items, valueobjects.ContentItem{
			ID:        id,
			Body:      "fallback " + id,
			CreatedAt: now.Add(-age),
			AuthorID:  "feedrank-team",
		})
	}
	return items
}

func defaultFallback() staticFallback {
	return staticFallback{ages: map[string]time.Duration{
		"fb-1": time.Minute,
		"fb-2": time.Hour,
		"fb-3": 3 * time.Hour,
	}}
}
