package supabase

import (
	"context"
	"errors"
	"time"

	"github.com/sony/gobreaker"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"feedrank/application/ports"
	"feedrank/domain/core/valueobjects"
	pkgerrors "feedrank/pkg/errors"
)

var _ ports.ContentSource = (*ContentSource)(nil)

// Table names
const (
	postsTable    = "posts"
	profilesTable = "profiles"
	likesTable    = "likes"
	commentsTable = "comments"
	followsTable  = "follows"
)

const (
	// postIDChunkSize bounds the in.(...) list of one request URL
	postIDChunkSize = 100
	// chunkConcurrency caps parallel chunk requests per call
	chunkConcurrency = 4
	// maxAuthorPosts matches the PostgREST max-rows default; newest posts are kept
	maxAuthorPosts = 1000
)

type postRow struct {
	ID        string    `json:"id"`
	Content   string    `json:"content"`
	AuthorID  string    `json:"author_id"`
	CreatedAt time.Time `json:"created_at"`
}

type profileRow struct {
	ID          string    `json:"id"`
	DisplayName string    `json:"display_name"`
	Username    string    `json:"username"`
	AvatarURL   string    `json:"avatar_url"`
	Verified    bool      `json:"verified"`
	CreatedAt   time.Time `json:"created_at"`
}

type edgeRow struct {
	PostID string `json:"post_id"`
	UserID string `json:"user_id"`
}

type followRow struct {
	FollowerID  string `json:"follower_id"`
	FollowingID string `json:"following_id"`
}

// BreakerConfig configures the circuit breaker around the content store
type BreakerConfig struct {
	Name             string
	MaxRequests      uint32
	Interval         time.Duration
	Timeout          time.Duration
	FailureThreshold float64
	MinRequests      uint32
}

// DefaultBreakerConfig returns the breaker settings used in production
func DefaultBreakerConfig() BreakerConfig {
	return BreakerConfig{
		Name:             "content-store",
		MaxRequests:      5,
		Interval:         30 * time.Second,
		Timeout:          30 * time.Second,
		FailureThreshold: 0.6,
		MinRequests:      10,
	}
}

// ContentSource implements ports.ContentSource over Supabase tables. Every call
// goes through one circuit breaker; while it is open, calls fail immediately and
// the feed generator serves its fallback.
type ContentSource struct {
	querier Querier
	breaker *gobreaker.CircuitBreaker
	logger  *zap.Logger
}

// NewContentSource creates a content source
func NewContentSource(querier Querier, cfg BreakerConfig, logger *zap.Logger) *ContentSource {
	breaker := gobreaker.NewCircuitBreaker(gobreaker.Settings{
		Name:        cfg.Name,
		MaxRequests: cfg.MaxRequests,
		Interval:    cfg.Interval,
		Timeout:     cfg.Timeout,
		ReadyToTrip: func(counts gobreaker.Counts) bool {
			if counts.Requests < cfg.MinRequests {
				return false
			}
			return float64(counts.TotalFailures)/float64(counts.Requests) >= cfg.FailureThreshold
		},
		OnStateChange: func(name string, from, to gobreaker.State) {
			logger.Warn("Circuit breaker state changed",
				zap.String("breaker", name),
				zap.String("from", from.String()),
				zap.String("to", to.String()),
			)
		},
		// A caller giving up is not a store failure
		IsSuccessful: func(err error) bool {
			return err == nil || errors.Is(err, context.Canceled)
		},
	})

	return &ContentSource{querier: querier, breaker: breaker, logger: logger}
}

// State reports the breaker state for readiness checks
func (s *ContentSource) State() gobreaker.State {
	return s.breaker.State()
}

func (s *ContentSource) selectRows(ctx context.Context, q Query, out interface{}) error {
	_, err := s.breaker.Execute(func() (interface{}, error) {
		return nil, s.querier.Select(ctx, q, out)
	})
	if err == nil {
		return nil
	}
	if errors.Is(err, gobreaker.ErrOpenState) || errors.Is(err, gobreaker.ErrTooManyRequests) {
		return pkgerrors.NewUnavailableError("content store").WithCause(err)
	}
	if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
		return err
	}
	s.logger.Debug("Content store query failed", zap.String("table", q.Table), zap.Error(err))
	return pkgerrors.NewExternalError("content store", err)
}

// RecentPosts returns up to limit posts, newest first
func (s *ContentSource) RecentPosts(ctx context.Context, limit int) ([]ports.Post, error) {
	var rows []postRow
	err := s.selectRows(ctx, Query{
		Table:      postsTable,
		Columns:    "id,content,author_id,created_at",
		OrderBy:    "created_at",
		Descending: true,
		Limit:      limit,
	}, &rows)
	if err != nil {
		return nil, err
	}

	posts := make([]ports.Post, 0, len(rows))
	for _, r := range rows {
		posts = append(posts, ports.Post{ID: r.ID, Body: r.Content, AuthorID: r.AuthorID, CreatedAt: r.CreatedAt})
	}
	return posts, nil
}

// Profiles returns author profiles keyed by author id
func (s *ContentSource) Profiles(ctx context.Context, authorIDs []string) (map[string]valueobjects.AuthorProfile, error) {
	out := make(map[string]valueobjects.AuthorProfile, len(authorIDs))
	if len(authorIDs) == 0 {
		return out, nil
	}

	var rows []profileRow
	err := s.selectRows(ctx, Query{
		Table:   profilesTable,
		Columns: "id,display_name,username,avatar_url,verified,created_at",
		Filters: []Filter{In("id", authorIDs)},
	}, &rows)
	if err != nil {
		return nil, err
	}

	for _, r := range rows {
		out[r.ID] = valueobjects.AuthorProfile{
			ID:               r.ID,
			DisplayName:      r.DisplayName,
			Username:         r.Username,
			AvatarURL:        r.AvatarURL,
			Verified:         r.Verified,
			AccountCreatedAt: r.CreatedAt,
		}
	}
	return out, nil
}

// EngagementCounts loads likes and comments for the posts concurrently
func (s *ContentSource) EngagementCounts(ctx context.Context, postIDs []string) (map[string]ports.EngagementCounts, error) {
	out := make(map[string]ports.EngagementCounts, len(postIDs))
	if len(postIDs) == 0 {
		return out, nil
	}

	likes, comments, err := s.selectEngagement(ctx, nil, postIDs)
	if err != nil {
		return nil, err
	}

	for _, l := range likes {
		c := out[l.PostID]
		c.Likes++
		out[l.PostID] = c
	}
	for _, cm := range comments {
		c := out[cm.PostID]
		c.Comments++
		out[cm.PostID] = c
	}
	return out, nil
}

// LikedBy returns the subset of postIDs the viewer has liked
func (s *ContentSource) LikedBy(ctx context.Context, viewerID string, postIDs []string) (map[string]bool, error) {
	out := make(map[string]bool)
	if viewerID == "" || len(postIDs) == 0 {
		return out, nil
	}

	rows, err := s.selectEdges(ctx, likesTable, []Filter{Eq("user_id", viewerID)}, postIDs)
	if err != nil {
		return nil, err
	}
	for _, r := range rows {
		out[r.PostID] = true
	}
	return out, nil
}

// Following returns the ids the user follows
func (s *ContentSource) Following(ctx context.Context, userID string) ([]string, error) {
	following, err := s.FollowingOf(ctx, []string{userID})
	if err != nil {
		return nil, err
	}
	return following[userID], nil
}

// FollowingOf returns, for each given user, the ids they follow
func (s *ContentSource) FollowingOf(ctx context.Context, userIDs []string) (map[string][]string, error) {
	out := make(map[string][]string, len(userIDs))
	if len(userIDs) == 0 {
		return out, nil
	}

	var rows []followRow
	err := s.selectRows(ctx, Query{
		Table:   followsTable,
		Columns: "follower_id,following_id",
		Filters: []Filter{In("follower_id", userIDs)},
	}, &rows)
	if err != nil {
		return nil, err
	}
	for _, r := range rows {
		out[r.FollowerID] = append(out[r.FollowerID], r.FollowingID)
	}
	return out, nil
}

// EngagementByAuthor resolves the authors' most recent posts, then counts the
// viewer's likes and comments on them
func (s *ContentSource) EngagementByAuthor(ctx context.Context, viewerID string, authorIDs []string) (map[string]int, error) {
	out := make(map[string]int, len(authorIDs))
	if viewerID == "" || len(authorIDs) == 0 {
		return out, nil
	}

	var posts []postRow
	err := s.selectRows(ctx, Query{
		Table:      postsTable,
		Columns:    "id,author_id",
		Filters:    []Filter{In("author_id", authorIDs)},
		OrderBy:    "created_at",
		Descending: true,
		Limit:      maxAuthorPosts,
	}, &posts)
	if err != nil {
		return nil, err
	}
	if len(posts) == 0 {
		return out, nil
	}

	authorOf := make(map[string]string, len(posts))
	postIDs := make([]string, 0, len(posts))
	for _, p := range posts {
		authorOf[p.ID] = p.AuthorID
		postIDs = append(postIDs, p.ID)
	}

	likes, comments, err := s.selectEngagement(ctx, []Filter{Eq("user_id", viewerID)}, postIDs)
	if err != nil {
		return nil, err
	}

	for _, e := range append(likes, comments...) {
		if author, ok := authorOf[e.PostID]; ok {
			out[author]++
		}
	}
	return out, nil
}

// selectEngagement loads likes and comments on postIDs concurrently
func (s *ContentSource) selectEngagement(ctx context.Context, filters []Filter, postIDs []string) (likes, comments []edgeRow, err error) {
	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() (err error) {
		likes, err = s.selectEdges(gctx, likesTable, filters, postIDs)
		return err
	})
	g.Go(func() (err error) {
		comments, err = s.selectEdges(gctx, commentsTable, filters, postIDs)
		return err
	})
	if err := g.Wait(); err != nil {
		return nil, nil, err
	}
	return likes, comments, nil
}

// selectEdges reads post_id rows from an edge table, splitting postIDs into
// chunks of postIDChunkSize
func (s *ContentSource) selectEdges(ctx context.Context, table string, filters []Filter, postIDs []string) ([]edgeRow, error) {
	chunks := chunkIDs(postIDs, postIDChunkSize)
	results := make([][]edgeRow, len(chunks))

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(chunkConcurrency)
	for i, chunk := range chunks {
		g.Go(func() error {
			q := Query{
				Table:   table,
				Columns: "post_id",
				Filters: append(append([]Filter(nil), filters...), In("post_id", chunk)),
			}
			return s.selectRows(gctx, q, &results[i])
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}

	var rows []edgeRow
	for _, r := range results {
		rows = append(rows, r...)
	}
	return rows, nil
}

func chunkIDs(ids []string, size int) [][]string {
	chunks := make([][]string, 0, (len(ids)+size-1)/size)
	for size < len(ids) {
		ids, chunks = ids[size:], append(chunks, ids[:size:size])
	}
	if len(ids) > 0 {
		chunks = append(chunks, ids)
	}
	return chunks
}
