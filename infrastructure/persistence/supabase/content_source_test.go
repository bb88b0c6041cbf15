package supabase

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"sync"
	"testing"
	"time"

	"github.com/sony/gobreaker"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	pkgerrors "feedrank/pkg/errors"
)

// MockQuerier is a mock implementation of Querier
type MockQuerier struct {
	mock.Mock
	mu sync.Mutex
}

func (m *MockQuerier) Select(ctx context.Context, q Query, out interface{}) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	args := m.Called(ctx, q, out)
	return args.Error(0)
}

func table(name string) interface{} {
	return mock.MatchedBy(func(q Query) bool { return q.Table == name })
}

func testBreaker() BreakerConfig {
	return BreakerConfig{
		Name:             "test",
		MaxRequests:      1,
		Interval:         time.Minute,
		Timeout:          time.Minute,
		FailureThreshold: 0.5,
		MinRequests:      2,
	}
}

func TestContentSource_RecentPosts(t *testing.T) {
	// Arrange
	ctx := context.Background()
	q := new(MockQuerier)
	created := time.Date(2024, 6, 1, 11, 0, 0, 0, time.UTC)
	q.On("Select", mock.Anything, mock.MatchedBy(func(q Query) bool {
		return q.Table == postsTable && q.OrderBy == "created_at" && q.Descending && q.Limit == 100
	}), mock.Anything).Run(func(args mock.Arguments) {
		*args.Get(2).(*[]postRow) = []postRow{{ID: "p-1", Content: "hello", AuthorID: "alice", CreatedAt: created}}
	}).Return(nil)

	// Act
	posts, err := NewContentSource(q, testBreaker(), zap.NewNop()).RecentPosts(ctx, 100)

	// Assert
	require.NoError(t, err)
	require.Len(t, posts, 1)
	assert.Equal(t, "hello", posts[0].Body)
	assert.Equal(t, "alice", posts[0].AuthorID)
	assert.True(t, posts[0].CreatedAt.Equal(created))
}

func TestContentSource_EngagementCounts(t *testing.T) {
	ctx := context.Background()
	q := new(MockQuerier)
	q.On("Select", mock.Anything, table(likesTable), mock.Anything).Run(func(args mock.Arguments) {
		*args.Get(2).(*[]edgeRow) = []edgeRow{{PostID: "p-1"}, {PostID: "p-1"}, {PostID: "p-2"}}
	}).Return(nil)
	q.On("Select", mock.Anything, table(commentsTable), mock.Anything).Run(func(args mock.Arguments) {
		*args.Get(2).(*[]edgeRow) = []edgeRow{{PostID: "p-2"}}
	}).Return(nil)

	counts, err := NewContentSource(q, testBreaker(), zap.NewNop()).EngagementCounts(ctx, []string{"p-1", "p-2", "p-3"})

	require.NoError(t, err)
	assert.Equal(t, 2, counts["p-1"].Likes)
	assert.Equal(t, 1, counts["p-2"].Likes)
	assert.Equal(t, 1, counts["p-2"].Comments)
	assert.Zero(t, counts["p-3"].Likes)
}

func TestContentSource_EngagementByAuthor(t *testing.T) {
	ctx := context.Background()
	q := new(MockQuerier)
	q.On("Select", mock.Anything, table(postsTable), mock.Anything).Run(func(args mock.Arguments) {
		*args.Get(2).(*[]postRow) = []postRow{{ID: "p-1", AuthorID: "alice"}, {ID: "p-2", AuthorID: "bob"}, {ID: "p-3", AuthorID: "alice"}}
	}).Return(nil)
	q.On("Select", mock.Anything, table(likesTable), mock.Anything).Run(func(args mock.Arguments) {
		*args.Get(2).(*[]edgeRow) = []edgeRow{{PostID: "p-1"}, {PostID: "p-3"}}
	}).Return(nil)
	q.On("Select", mock.Anything, table(commentsTable), mock.Anything).Run(func(args mock.Arguments) {
		*args.Get(2).(*[]edgeRow) = []edgeRow{{PostID: "p-2"}}
	}).Return(nil)

	counts, err := NewContentSource(q, testBreaker(), zap.NewNop()).EngagementByAuthor(ctx, "viewer", []string{"alice", "bob"})

	require.NoError(t, err)
	assert.Equal(t, map[string]int{"alice": 2, "bob": 1}, counts)
}

func postIDsOf(q Query) []string {
	for _, f := range q.Filters {
		if f.Column == "post_id" && f.Op == "in" {
			return f.Values
		}
	}
	return nil
}

func TestContentSource_EngagementByAuthorChunksPostIDs(t *testing.T) {
	// Arrange
	ctx := context.Background()
	posts := make([]postRow, 0, 250)
	for i := 0; i < 250; i++ {
		author := "alice"
		if i%5 == 0 {
			author = "bob"
		}
		posts = append(posts, postRow{ID: fmt.Sprintf("p-%03d", i), AuthorID: author})
	}

	q := new(MockQuerier)
	q.On("Select", mock.Anything, mock.MatchedBy(func(q Query) bool {
		return q.Table == postsTable && q.Limit == maxAuthorPosts && q.Descending
	}), mock.Anything).Run(func(args mock.Arguments) {
		*args.Get(2).(*[]postRow) = posts
	}).Return(nil)

	var chunkSizes []int
	viewerEdges := func(args mock.Arguments) {
		query := args.Get(1).(Query)
		assert.Contains(t, query.Filters, Eq("user_id", "viewer"))
		ids := postIDsOf(query)
		chunkSizes = append(chunkSizes, len(ids))
		// the viewer engaged with every post in the chunk
		rows := make([]edgeRow, 0, len(ids))
		for _, id := range ids {
			rows = append(rows, edgeRow{PostID: id, UserID: "viewer"})
		}
		*args.Get(2).(*[]edgeRow) = rows
	}
	q.On("Select", mock.Anything, table(likesTable), mock.Anything).Run(viewerEdges).Return(nil)
	q.On("Select", mock.Anything, table(commentsTable), mock.Anything).Run(viewerEdges).Return(nil)

	// Act
	counts, err := NewContentSource(q, testBreaker(), zap.NewNop()).EngagementByAuthor(ctx, "viewer", []string{"alice", "bob"})

	// Assert
	require.NoError(t, err)
	assert.Equal(t, map[string]int{"alice": 400, "bob": 100}, counts)
	q.AssertNumberOfCalls(t, "Select", 7)
	sort.Ints(chunkSizes)
	assert.Equal(t, []int{50, 50, 100, 100, 100, 100}, chunkSizes)
}

func TestChunkIDs(t *testing.T) {
	tests := []struct {
		name string
		ids  []string
		size int
		want [][]string
	}{
		{name: "empty", ids: nil, size: 2, want: [][]string{}},
		{name: "exact multiple", ids: []string{"a", "b", "c", "d"}, size: 2, want: [][]string{{"a", "b"}, {"c", "d"}}},
		{name: "remainder", ids: []string{"a", "b", "c"}, size: 2, want: [][]string{{"a", "b"}, {"c"}}},
		{name: "smaller than size", ids: []string{"a"}, size: 100, want: [][]string{{"a"}}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, chunkIDs(tt.ids, tt.size))
		})
	}
}

func TestContentSource_FollowingOf(t *testing.T) {
	ctx := context.Background()
	q := new(MockQuerier)
	q.On("Select", mock.Anything, table(followsTable), mock.Anything).Run(func(args mock.Arguments) {
		*args.Get(2).(*[]followRow) = []followRow{
			{FollowerID: "alice", FollowingID: "carol"},
			{FollowerID: "alice", FollowingID: "bob"},
			{FollowerID: "bob", FollowingID: "carol"},
		}
	}).Return(nil)

	following, err := NewContentSource(q, testBreaker(), zap.NewNop()).FollowingOf(ctx, []string{"alice", "bob"})

	require.NoError(t, err)
	sort.Strings(following["alice"])
	assert.Equal(t, []string{"bob", "carol"}, following["alice"])
	assert.Equal(t, []string{"carol"}, following["bob"])
}

func TestContentSource_EmptyInputsSkipQueries(t *testing.T) {
	ctx := context.Background()
	q := new(MockQuerier)
	source := NewContentSource(q, testBreaker(), zap.NewNop())

	profiles, err := source.Profiles(ctx, nil)
	require.NoError(t, err)
	assert.Empty(t, profiles)

	liked, err := source.LikedBy(ctx, "", []string{"p-1"})
	require.NoError(t, err)
	assert.Empty(t, liked)

	engagement, err := source.EngagementByAuthor(ctx, "viewer", nil)
	require.NoError(t, err)
	assert.Empty(t, engagement)

	q.AssertNotCalled(t, "Select", mock.Anything, mock.Anything, mock.Anything)
}

func TestContentSource_BreakerOpensAfterFailures(t *testing.T) {
	// Arrange
	ctx := context.Background()
	q := new(MockQuerier)
	q.On("Select", mock.Anything, mock.Anything, mock.Anything).Return(errors.New("connection refused"))
	source := NewContentSource(q, testBreaker(), zap.NewNop())

	// Act
	_, err1 := source.RecentPosts(ctx, 10)
	_, err2 := source.RecentPosts(ctx, 10)
	_, err3 := source.RecentPosts(ctx, 10)

	// Assert
	assert.True(t, pkgerrors.IsType(err1, pkgerrors.ErrorTypeExternal))
	assert.True(t, pkgerrors.IsType(err2, pkgerrors.ErrorTypeExternal))
	assert.True(t, pkgerrors.IsType(err3, pkgerrors.ErrorTypeUnavailable))
	assert.Equal(t, gobreaker.StateOpen, source.State())
	q.AssertNumberOfCalls(t, "Select", 2)
}

func TestContentSource_CancellationDoesNotTripBreaker(t *testing.T) {
	ctx := context.Background()
	q := new(MockQuerier)
	q.On("Select", mock.Anything, mock.Anything, mock.Anything).Return(context.Canceled)
	source := NewContentSource(q, testBreaker(), zap.NewNop())

	for i := 0; i < 5; i++ {
		_, err := source.RecentPosts(ctx, 10)
		assert.ErrorIs(t, err, context.Canceled)
	}

	assert.Equal(t, gobreaker.StateClosed, source.State())
}
