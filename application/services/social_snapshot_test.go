package services

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"feedrank/infrastructure/persistence/memory"
)

func TestSocialSnapshot_AnswersFromPrefetch(t *testing.T) {
	ctx := context.Background()
	content := memory.NewContentStore()
	content.Follow("viewer", "alice")
	content.Follow("viewer", "carol")
	content.Follow("viewer", "dan")
	content.Follow("bob", "carol")
	content.Follow("bob", "dan")

	snapshot := NewSocialSnapshot(ctx, content, "viewer", []string{"alice", "bob"}, zap.NewNop())

	following, err := snapshot.IsFollowing(ctx, "viewer", "alice")
	require.NoError(t, err)
	assert.True(t, following)

	following, err = snapshot.IsFollowing(ctx, "viewer", "bob")
	require.NoError(t, err)
	assert.False(t, following)

	mutual, err := snapshot.MutualConnectionCount(ctx, "viewer", "bob")
	require.NoError(t, err)
	assert.Equal(t, 2, mutual)
}

func TestSocialSnapshot_PrefetchUsesThreeQueries(t *testing.T) {
	ctx := context.Background()
	content := new(MockContentSource)
	content.On("Following", mock.Anything, "viewer").Return([]string{"alice"}, nil).Once()
	content.On("FollowingOf", mock.Anything, []string{"alice", "bob"}).Return(map[string][]string{"bob": {"alice"}}, nil).Once()
	content.On("EngagementByAuthor", mock.Anything, "viewer", []string{"alice", "bob"}).Return(map[string]int{"alice": 7}, nil).Once()

	snapshot := NewSocialSnapshot(ctx, content, "viewer", []string{"alice", "bob"}, zap.NewNop())
	for _, author := range []string{"alice", "bob"} {
		_, _ = snapshot.IsFollowing(ctx, "viewer", author)
		_, _ = snapshot.EngagementCount(ctx, "viewer", author)
		_, _ = snapshot.MutualConnectionCount(ctx, "viewer", author)
	}

	count, err := snapshot.EngagementCount(ctx, "viewer", "alice")
	require.NoError(t, err)
	assert.Equal(t, 7, count)
	content.AssertExpectations(t)
}

func TestSocialSnapshot_FallsBackToDirectQueries(t *testing.T) {
	ctx := context.Background()
	content := new(MockContentSource)
	content.On("Following", mock.Anything, "viewer").Return(nil, errors.New("blip")).Once()
	content.On("Following", mock.Anything, "viewer").Return([]string{"alice"}, nil)
	content.On("FollowingOf", mock.Anything, mock.Anything).Return(map[string][]string{}, nil)
	content.On("EngagementByAuthor", mock.Anything, "viewer", mock.Anything).Return(map[string]int{}, nil)

	snapshot := NewSocialSnapshot(ctx, content, "viewer", []string{"alice"}, zap.NewNop())

	following, err := snapshot.IsFollowing(ctx, "viewer", "alice")
	require.NoError(t, err)
	assert.True(t, following)

	// the direct result is cached
	_, err = snapshot.IsFollowing(ctx, "viewer", "alice")
	require.NoError(t, err)
	content.AssertNumberOfCalls(t, "Following", 2)
}
