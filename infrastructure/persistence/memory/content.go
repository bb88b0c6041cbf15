package memory

import (
	"context"
	"sort"
	"sync"
	"time"

	"feedrank/application/ports"
	"feedrank/domain/core/valueobjects"
)

// ContentStore is an in-process social content store: posts, profiles,
// likes, comments and follows.
type ContentStore struct {
	mu       sync.RWMutex
	posts    map[string]ports.Post
	profiles map[string]valueobjects.AuthorProfile
	likes    map[string]map[string]bool // postID -> userID
	comments map[string][]string        // postID -> commenter ids
	follows  map[string]map[string]bool // follower -> followee
}

// NewContentStore creates an empty content store
func NewContentStore() *ContentStore {
	return &ContentStore{
		posts:    make(map[string]ports.Post),
		profiles: make(map[string]valueobjects.AuthorProfile),
		likes:    make(map[string]map[string]bool),
		comments: make(map[string][]string),
		follows:  make(map[string]map[string]bool),
	}
}

// AddProfile stores an author profile
func (c *ContentStore) AddProfile(p valueobjects.AuthorProfile) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.profiles[p.ID] = p
}

// AddPost stores a post
func (c *ContentStore) AddPost(p ports.Post) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.posts[p.ID] = p
}

// Like records userID liking postID
func (c *ContentStore) Like(userID, postID string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.likes[postID] == nil {
		c.likes[postID] = make(map[string]bool)
	}
	c.likes[postID][userID] = true
}

// Comment records userID commenting on postID
func (c *ContentStore) Comment(userID, postID string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.comments[postID] = append(c.comments[postID], userID)
}

// Follow records follower following followee
func (c *ContentStore) Follow(follower, followee string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.follows[follower] == nil {
		c.follows[follower] = make(map[string]bool)
	}
	c.follows[follower][followee] = true
}

func (c *ContentStore) RecentPosts(_ context.Context, limit int) ([]ports.Post, error) {
	c.mu.RLock()
	defer c.mu.RUnlock()

	out := make([]ports.Post, 0, len(c.posts))
	for _, p := range c.posts {
		out = append(out, p)
	}
	sort.Slice(out, func(i, j int) bool {
		if !out[i].CreatedAt.Equal(out[j].CreatedAt) {
			return out[i].CreatedAt.After(out[j].CreatedAt)
		}
		return out[i].ID < out[j].ID
	})
	if limit > 0 && len(out) > limit {
		out = out[:limit]
	}
	return out, nil
}

func (c *ContentStore) Profiles(_ context.Context, authorIDs []string) (map[string]valueobjects.AuthorProfile, error) {
	c.mu.RLock()
	defer c.mu.RUnlock()

	out := make(map[string]valueobjects.AuthorProfile, len(authorIDs))
	for _, id := range authorIDs {
		if p, ok := c.profiles[id]; ok {
			out[id] = p
		}
	}
	return out, nil
}

func (c *ContentStore) EngagementCounts(_ context.Context, postIDs []string) (map[string]ports.EngagementCounts, error) {
	c.mu.RLock()
	defer c.mu.RUnlock()

	out := make(map[string]ports.EngagementCounts, len(postIDs))
	for _, id := range postIDs {
		out[id] = ports.EngagementCounts{Likes: len(c.likes[id]), Comments: len(c.comments[id])}
	}
	return out, nil
}

func (c *ContentStore) LikedBy(_ context.Context, viewerID string, postIDs []string) (map[string]bool, error) {
	c.mu.RLock()
	defer c.mu.RUnlock()

	out := make(map[string]bool)
	for _, id := range postIDs {
		if c.likes[id][viewerID] {
			out[id] = true
		}
	}
	return out, nil
}

func (c *ContentStore) Following(_ context.Context, userID string) ([]string, error) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.followingLocked(userID), nil
}

func (c *ContentStore) followingLocked(userID string) []string {
	out := make([]string, 0, len(c.follows[userID]))
	for id := range c.follows[userID] {
		out = append(out, id)
	}
	sort.Strings(out)
	return out
}

func (c *ContentStore) FollowingOf(_ context.Context, userIDs []string) (map[string][]string, error) {
	c.mu.RLock()
	defer c.mu.RUnlock()

	out := make(map[string][]string, len(userIDs))
	for _, id := range userIDs {
		out[id] = c.followingLocked(id)
	}
	return out, nil
}

func (c *ContentStore) EngagementByAuthor(_ context.Context, viewerID string, authorIDs []string) (map[string]int, error) {
	c.mu.RLock()
	defer c.mu.RUnlock()

	wanted := make(map[string]bool, len(authorIDs))
	for _, id := range authorIDs {
		wanted[id] = true
	}

	out := make(map[string]int, len(authorIDs))
	for postID, post := range c.posts {
		if !wanted[post.AuthorID] {
			continue
		}
		if c.likes[postID][viewerID] {
			out[post.AuthorID]++
		}
		for _, commenter := range c.comments[postID] {
			if commenter == viewerID {
				out[post.AuthorID]++
			}
		}
	}
	return out, nil
}

// SeedPost is a convenience for tests and local runs: it stores the author
// profile and a post created age before now.
func (c *ContentStore) SeedPost(id, body string, author valueobjects.AuthorProfile, now time.Time, age time.Duration) {
	c.AddProfile(author)
	c.AddPost(ports.Post{ID: id, Body: body, AuthorID: author.ID, CreatedAt: now.Add(-age)})
}
