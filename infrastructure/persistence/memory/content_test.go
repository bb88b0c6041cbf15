package memory

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"feedrank/domain/core/valueobjects"
)

func TestContentStore_SocialQueries(t *testing.T) {
	ctx := context.Background()
	content := NewContentStore()
	alice := valueobjects.AuthorProfile{ID: "alice", DisplayName: "Alice"}
	bob := valueobjects.AuthorProfile{ID: "bob", DisplayName: "Bob"}

	content.SeedPost("p1", "first", alice, now, time.Hour)
	content.SeedPost("p2", "second", alice, now, 2*time.Hour)
	content.SeedPost("p3", "third", bob, now, 30*time.Minute)
	content.Like("viewer", "p1")
	content.Comment("viewer", "p2")
	content.Comment("viewer", "p2")
	content.Follow("viewer", "alice")
	content.Follow("viewer", "carol")
	content.Follow("bob", "carol")

	posts, err := content.RecentPosts(ctx, 2)
	require.NoError(t, err)
	require.Len(t, posts, 2)
	assert.Equal(t, "p3", posts[0].ID)
	assert.Equal(t, "p1", posts[1].ID)

	engagement, err := content.EngagementByAuthor(ctx, "viewer", []string{"alice", "bob"})
	require.NoError(t, err)
	assert.Equal(t, 3, engagement["alice"])
	assert.Equal(t, 0, engagement["bob"])

	following, err := content.FollowingOf(ctx, []string{"bob"})
	require.NoError(t, err)
	assert.Equal(t, []string{"carol"}, following["bob"])

	liked, err := content.LikedBy(ctx, "viewer", []string{"p1", "p2"})
	require.NoError(t, err)
	assert.True(t, liked["p1"])
	assert.False(t, liked["p2"])

	counts, err := content.EngagementCounts(ctx, []string{"p2"})
	require.NoError(t, err)
	assert.Equal(t, 2, counts["p2"].Comments)
}
