package ranking

import (
	"context"
	"errors"
	"slices"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"feedrank/domain/core/valueobjects"
)

var fixedNow = time.Date(2024, 6, 1, 12, 0, 0, 0, time.UTC)

// fakeGraph is an in-memory SocialGraph keyed by author
type fakeGraph struct {
	follows    map[string]bool
	engagement map[string]int
	mutual     map[string]int
	err        error
}

func (g *fakeGraph) IsFollowing(_ context.Context, _, authorID string) (bool, error) {
	if g.err != nil {
		return false, g.err
	}
	return g.follows[authorID], nil
}

func (g *fakeGraph) EngagementCount(_ context.Context, _, authorID string) (int, error) {
	if g.err != nil {
		return 0, g.err
	}
	return g.engagement[authorID], nil
}

func (g *fakeGraph) MutualConnectionCount(_ context.Context, _, authorID string) (int, error) {
	if g.err != nil {
		return 0, g.err
	}
	return g.mutual[authorID], nil
}

func TestTimeDecay(t *testing.T) {
	tests := []struct {
		name     string
		age      time.Duration
		expected float64
	}{
		{name: "brand new", age: 0, expected: 1},
		{name: "half window", age: 84 * time.Hour, expected: 0.36787944117144233},
		{name: "at window edge", age: 168 * time.Hour, expected: 0.1353352832366127},
		{name: "beyond window", age: 169 * time.Hour, expected: 0},
		{name: "future timestamp", age: -time.Hour, expected: 1},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := TimeDecay(fixedNow.Add(-tt.age), fixedNow, DefaultMaxAge)
			assert.InDelta(t, tt.expected, got, 1e-9)
		})
	}
}

func TestExtractHashtags(t *testing.T) {
	tags := slices.Collect(ExtractHashtags("Loving #GoLang and #cloud_native, not # alone #Go"))
	assert.Equal(t, []string{"golang", "cloud_native", "go"}, tags)

	// Stops as soon as the consumer does
	var first string
	for tag := range ExtractHashtags("#one #two #three") {
		first = tag
		break
	}
	assert.Equal(t, "one", first)

	assert.Empty(t, slices.Collect(ExtractHashtags("no tags here")))
}

func TestDetectClickbait(t *testing.T) {
	tests := []struct {
		name     string
		text     string
		expected float64
	}{
		{name: "clean", text: "A measured look at quarterly results.", expected: 0},
		{name: "three phrase matches", text: "You won't believe the reason why this hidden gem works", expected: 0.6},
		{name: "numbered shock", text: "Number 7 will shock you", expected: 0.2},
		{name: "before and after", text: "Before and after the renovation", expected: 0.2},
		{name: "two exclamations are free", text: "Great news!!", expected: 0},
		{name: "excess exclamations", text: "Wow!!!!", expected: 0.2},
		{name: "excess questions", text: "Why? How? When? Who? What?", expected: 0.1},
		{name: "capped", text: "You won't believe it, blow your mind, everyone is losing it, secret!!!!!!!!!!", expected: 1},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.InDelta(t, tt.expected, DetectClickbait(tt.text), 1e-9)
		})
	}
}

func TestReadingTimeMinutes(t *testing.T) {
	assert.InDelta(t, 1.0, ReadingTimeMinutes(strings.Repeat("word ", 200)), 1e-9)
	assert.InDelta(t, 0.0, ReadingTimeMinutes("   "), 1e-9)
}

func TestAssessContentQuality(t *testing.T) {
	t.Run("worked example", func(t *testing.T) {
		// Arrange: 250 chars, "?" and "because", two words longer than 7 chars, 6 comments
		text := ("Why test? because wonderful framework" + strings.Repeat(" ab", 100))[:250]
		require.Len(t, text, 250)
		item := valueobjects.ContentItem{Body: text, CommentCount: 6}

		// Act
		score := AssessContentQuality(item)

		// Assert
		assert.InDelta(t, 0.9, score, 1e-9)
	})

	t.Run("complex vocabulary bonus", func(t *testing.T) {
		item := valueobjects.ContentItem{Body: "remarkable extraordinary consequential infrastructure"}
		assert.InDelta(t, 0.6, AssessContentQuality(item), 1e-9)
	})

	t.Run("clickbait and punctuation penalties", func(t *testing.T) {
		item := valueobjects.ContentItem{Body: "You won't believe it! Blow your mind! Everyone is losing it! Secret!!!"}
		assert.InDelta(t, 0.1, AssessContentQuality(item), 1e-9)
	})

	t.Run("never negative", func(t *testing.T) {
		item := valueobjects.ContentItem{Body: "You won't believe!!!!!!!!!!?? blow your mind, hidden, the reason why"}
		score := AssessContentQuality(item)
		assert.GreaterOrEqual(t, score, 0.0)
		assert.LessOrEqual(t, score, 1.0)
	})
}

func TestSourceCredibility(t *testing.T) {
	tests := []struct {
		name     string
		author   valueobjects.AuthorProfile
		expected float64
	}{
		{name: "unknown author", author: valueobjects.AuthorProfile{}, expected: 0.5},
		{name: "verified", author: valueobjects.AuthorProfile{Verified: true}, expected: 0.8},
		{name: "one year old", author: valueobjects.AuthorProfile{AccountCreatedAt: fixedNow.AddDate(0, 0, -365)}, expected: 0.6},
		{name: "age bonus capped", author: valueobjects.AuthorProfile{Verified: true, AccountCreatedAt: fixedNow.AddDate(-10, 0, 0)}, expected: 1.0},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.InDelta(t, tt.expected, SourceCredibility(tt.author, fixedNow), 1e-9)
		})
	}
}

func TestSocialLookups_DegradeOnFailure(t *testing.T) {
	// Arrange
	var failed []string
	sc := ScoringContext{
		ViewerID: "viewer",
		Now:      fixedNow,
		Graph:    &fakeGraph{err: errors.New("store unavailable")},
		OnSignalError: func(signal string, _ error) {
			failed = append(failed, signal)
		},
	}
	ctx := context.Background()

	// Act & Assert
	assert.Equal(t, 0.0, FollowLevel(ctx, sc, "author"))
	assert.Equal(t, 0.0, EngagementHistory(ctx, sc, "author"))
	assert.Equal(t, 0.0, MutualConnections(ctx, sc, "author"))
	assert.Equal(t, []string{
		valueobjects.SignalFollowLevel,
		valueobjects.SignalEngagementHistory,
		valueobjects.SignalMutualConnections,
	}, failed)
}

func TestSocialLookups_Normalization(t *testing.T) {
	sc := ScoringContext{
		ViewerID: "viewer",
		Graph: &fakeGraph{
			follows:    map[string]bool{"a": true},
			engagement: map[string]int{"a": 25, "b": 500},
			mutual:     map[string]int{"a": 3, "b": 40},
		},
	}
	ctx := context.Background()

	assert.Equal(t, 1.0, FollowLevel(ctx, sc, "a"))
	assert.Equal(t, 0.0, FollowLevel(ctx, sc, "b"))
	assert.InDelta(t, 0.25, EngagementHistory(ctx, sc, "a"), 1e-9)
	assert.Equal(t, 1.0, EngagementHistory(ctx, sc, "b"))
	assert.InDelta(t, 0.3, MutualConnections(ctx, sc, "a"), 1e-9)
	assert.Equal(t, 1.0, MutualConnections(ctx, sc, "b"))
}
