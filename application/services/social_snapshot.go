package services

import (
	"context"
	"sync"

	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"feedrank/application/ports"
)

// SocialSnapshot answers social-signal lookups for one viewer from data
// prefetched in a few batched queries across all candidate authors.
// A lookup whose batch failed falls back to a direct query for that author.
type SocialSnapshot struct {
	source   ports.ContentSource
	viewerID string
	logger   *zap.Logger

	viewerFollows map[string]bool
	authorFollows map[string][]string
	engagement    map[string]int

	mu       sync.Mutex
	fallback map[string][]string
}

// NewSocialSnapshot prefetches the viewer's follows, each author's follows and the
// viewer's engagement per author. Prefetch failures are logged, not returned.
func NewSocialSnapshot(ctx context.Context, source ports.ContentSource, viewerID string, authorIDs []string, logger *zap.Logger) *SocialSnapshot {
	s := &SocialSnapshot{
		source:   source,
		viewerID: viewerID,
		logger:   logger,
		fallback: make(map[string][]string),
	}

	var g errgroup.Group
	g.Go(func() error {
		following, err := source.Following(ctx, viewerID)
		if err != nil {
			logger.Debug("Prefetch of viewer follows failed", zap.String("viewerID", viewerID), zap.Error(err))
			return nil
		}
		s.viewerFollows = toSet(following)
		return nil
	})
	g.Go(func() error {
		follows, err := source.FollowingOf(ctx, authorIDs)
		if err != nil {
			logger.Debug("Prefetch of author follows failed", zap.Int("authors", len(authorIDs)), zap.Error(err))
			return nil
		}
		s.authorFollows = follows
		return nil
	})
	g.Go(func() error {
		counts, err := source.EngagementByAuthor(ctx, viewerID, authorIDs)
		if err != nil {
			logger.Debug("Prefetch of engagement failed", zap.String("viewerID", viewerID), zap.Error(err))
			return nil
		}
		s.engagement = counts
		return nil
	})
	_ = g.Wait()

	return s
}

// IsFollowing reports whether the viewer follows authorID
func (s *SocialSnapshot) IsFollowing(ctx context.Context, viewerID, authorID string) (bool, error) {
	follows, err := s.viewerFollowSet(ctx, viewerID)
	if err != nil {
		return false, err
	}
	return follows[authorID], nil
}

// EngagementCount returns the viewer's likes plus comments on the author's posts
func (s *SocialSnapshot) EngagementCount(ctx context.Context, viewerID, authorID string) (int, error) {
	if viewerID == s.viewerID && s.engagement != nil {
		return s.engagement[authorID], nil
	}
	counts, err := s.source.EngagementByAuthor(ctx, viewerID, []string{authorID})
	if err != nil {
		return 0, err
	}
	return counts[authorID], nil
}

// MutualConnectionCount counts accounts the viewer follows that the author also follows
func (s *SocialSnapshot) MutualConnectionCount(ctx context.Context, viewerID, authorID string) (int, error) {
	viewerFollows, err := s.viewerFollowSet(ctx, viewerID)
	if err != nil {
		return 0, err
	}

	authorFollows, ok := s.authorFollows[authorID]
	if !ok && s.authorFollows == nil {
		authorFollows, err = s.directFollowing(ctx, authorID)
		if err != nil {
			return 0, err
		}
	}

	count := 0
	for _, id := range authorFollows {
		if viewerFollows[id] {
			count++
		}
	}
	return count, nil
}

func (s *SocialSnapshot) viewerFollowSet(ctx context.Context, viewerID string) (map[string]bool, error) {
	if viewerID == s.viewerID && s.viewerFollows != nil {
		return s.viewerFollows, nil
	}
	following, err := s.directFollowing(ctx, viewerID)
	if err != nil {
		return nil, err
	}
	return toSet(following), nil
}

func (s *SocialSnapshot) directFollowing(ctx context.Context, userID string) ([]string, error) {
	s.mu.Lock()
	cached, ok := s.fallback[userID]
	s.mu.Unlock()
	if ok {
		return cached, nil
	}

	following, err := s.source.Following(ctx, userID)
	if err != nil {
		return nil, err
	}

	s.mu.Lock()
	s.fallback[userID] = following
	s.mu.Unlock()
	return following, nil
}

func toSet(ids []string) map[string]bool {
	set := make(map[string]bool, len(ids))
	for _, id := range ids {
		set[id] = true
	}
	return set
}
