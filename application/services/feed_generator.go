package services

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"feedrank/application/ports"
	"feedrank/domain/config"
	"feedrank/domain/core/entities"
	"feedrank/domain/core/valueobjects"
	"feedrank/domain/ranking"
	"feedrank/pkg/observability"
)

// FallbackAlgorithmID identifies the built-in algorithm used for fallback feeds
const FallbackAlgorithmID = "official-chronological"

// FeedRequest describes one feed page request
type FeedRequest struct {
	ViewerID            string        `json:"viewerId,omitempty"`
	AlgorithmSlug       string        `json:"algorithm,omitempty"`
	Limit               int           `json:"limit"`
	Offset              int           `json:"offset"`
	IncludeExplanations bool          `json:"includeExplanations"`
	Hints               ranking.Hints `json:"hints"`
}

// RankedPost is a content item with its position in the feed
type RankedPost struct {
	valueobjects.ContentItem
	Score float64 `json:"score"`
	Rank  int     `json:"rank"`
}

// AlgorithmSummary identifies the algorithm that ranked a feed
type AlgorithmSummary struct {
	ID      string `json:"id"`
	Name    string `json:"name"`
	Slug    string `json:"slug"`
	Version string `json:"version"`
}

// FeedResponse is a ranked page of posts
type FeedResponse struct {
	Posts        []RankedPost              `json:"posts"`
	Algorithm    AlgorithmSummary          `json:"algorithm"`
	Explanations []ranking.PostExplanation `json:"explanations,omitempty"`
	Fallback     bool                      `json:"fallback"`
	GeneratedAt  time.Time                 `json:"generatedAt"`
}

// FeedGenerator ranks a viewer's candidate posts with their resolved algorithm.
// It never fails: any resolution or fetch problem yields the seeded fallback feed.
type FeedGenerator struct {
	resolver AlgorithmResolver
	registry *ranking.Registry
	content  ports.ContentSource
	fallback ports.FallbackFeed
	audit    AuditSink
	metrics  ports.MetricsRecorder
	tracer   *observability.Tracer
	config   *config.RankingConfig
	timeout  time.Duration
	logger   *zap.Logger
	now      func() time.Time
}

// NewFeedGenerator creates a new feed generator. audit, metrics and tracer may be nil.
func NewFeedGenerator(
	resolver AlgorithmResolver,
	registry *ranking.Registry,
	content ports.ContentSource,
	fallback ports.FallbackFeed,
	audit AuditSink,
	metrics ports.MetricsRecorder,
	tracer *observability.Tracer,
	cfg *config.RankingConfig,
	timeout time.Duration,
	logger *zap.Logger,
) *FeedGenerator {
	if cfg == nil {
		cfg = config.DefaultRankingConfig()
	}
	return &FeedGenerator{
		resolver: resolver,
		registry: registry,
		content:  content,
		fallback: fallback,
		audit:    audit,
		metrics:  metrics,
		tracer:   tracer,
		config:   cfg,
		timeout:  timeout,
		logger:   logger,
		now:      time.Now,
	}
}

// WithClock overrides the time source
func (g *FeedGenerator) WithClock(now func() time.Time) *FeedGenerator {
	g.now = now
	return g
}

// GenerateFeed produces a ranked page for the request
func (g *FeedGenerator) GenerateFeed(ctx context.Context, req FeedRequest) *FeedResponse {
	start := g.now()
	req.Limit = g.config.ClampPageSize(req.Limit)
	if req.Offset < 0 {
		req.Offset = 0
	}

	if g.timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, g.timeout)
		defer cancel()
	}

	resp, err := g.generate(ctx, req, start)
	if err != nil {
		g.logger.Warn("Feed generation failed, serving fallback feed",
			zap.String("viewerID", req.ViewerID),
			zap.Error(err),
		)
		resp = g.fallbackFeed(req, start)
	}

	if g.metrics != nil {
		g.metrics.FeedGenerated(resp.Algorithm.Slug, resp.Fallback, g.now().Sub(start), len(resp.Posts))
	}
	return resp
}

func (g *FeedGenerator) generate(ctx context.Context, req FeedRequest, now time.Time) (*FeedResponse, error) {
	var resolved *ResolvedAlgorithm
	if err := g.tracer.TraceFunction(ctx, "resolve_algorithm", func(ctx context.Context) error {
		var err error
		resolved, err = g.resolve(ctx, req)
		return err
	}); err != nil {
		return nil, fmt.Errorf("resolve algorithm: %w", err)
	}

	var items []valueobjects.ContentItem
	if err := g.tracer.TraceFunction(ctx, "fetch_candidates", func(ctx context.Context) error {
		var err error
		items, err = g.fetchCandidates(ctx, req.ViewerID)
		return err
	}); err != nil {
		return nil, fmt.Errorf("fetch candidates: %w", err)
	}
	if len(items) == 0 {
		return nil, fmt.Errorf("no candidate items")
	}

	algorithm := resolved.Algorithm
	weights, tunables := valueobjects.Merge(algorithm.WeightConfig(), algorithm.AlgorithmConfig(), resolved.CustomConfig)
	strategy := g.registry.Resolve(ranking.Definition{
		Slug:               algorithm.Slug(),
		WeightConfig:       weights,
		AlgorithmConfig:    tunables,
		SignalDescriptions: algorithm.SignalDescriptions(),
	})

	sc := ranking.ScoringContext{
		ViewerID: req.ViewerID,
		Now:      now,
		Hints:    req.Hints,
		OnSignalError: func(signal string, err error) {
			g.logger.Debug("Signal lookup failed, using neutral value", zap.String("signal", signal), zap.Error(err))
			if g.metrics != nil {
				g.metrics.SignalFailed(signal)
			}
		},
	}
	if req.ViewerID != "" && usesSocialSignals(strategy, weights) {
		sc.Graph = NewSocialSnapshot(ctx, g.content, req.ViewerID, authorIDs(items), g.logger)
	}

	var scored []ranking.ScoredItem
	if err := g.tracer.TraceFunction(ctx, "score", func(ctx context.Context) error {
		var err error
		scored, err = g.score(ctx, strategy, items, sc)
		return err
	}); err != nil {
		return nil, fmt.Errorf("score candidates: %w", err)
	}

	ranking.Sort(scored)
	page := ranking.Page(scored, req.Offset, req.Limit)

	resp := &FeedResponse{
		Posts:       toRankedPosts(page, req.Offset),
		Algorithm:   summarize(algorithm),
		GeneratedAt: now,
	}
	if req.IncludeExplanations && g.config.EnableExplanations {
		resp.Explanations = g.explain(page, resp.Algorithm)
	}

	g.enqueueAudit(req.ViewerID, algorithm.ID().String(), scored, now)
	g.tracer.AddAnnotation(ctx, "algorithm", algorithm.Slug())
	return resp, nil
}

func (g *FeedGenerator) resolve(ctx context.Context, req FeedRequest) (*ResolvedAlgorithm, error) {
	if req.AlgorithmSlug != "" {
		algorithm, err := g.resolver.GetAlgorithmBySlug(ctx, req.AlgorithmSlug, req.ViewerID)
		if err == nil {
			return &ResolvedAlgorithm{Algorithm: algorithm}, nil
		}
		g.logger.Debug("Requested algorithm unavailable, using viewer's algorithm",
			zap.String("slug", req.AlgorithmSlug),
			zap.Error(err),
		)
	}
	return g.resolver.GetUserAlgorithm(ctx, req.ViewerID)
}

// fetchCandidates loads recent posts and their metadata in batched queries.
// Missing profiles or counts degrade to empty values.
func (g *FeedGenerator) fetchCandidates(ctx context.Context, viewerID string) ([]valueobjects.ContentItem, error) {
	posts, err := g.content.RecentPosts(ctx, g.config.CandidateLimit)
	if err != nil {
		return nil, err
	}
	if len(posts) == 0 {
		return nil, nil
	}

	postIDs := make([]string, len(posts))
	authors := make([]string, 0, len(posts))
	seen := make(map[string]bool)
	for i, p := range posts {
		postIDs[i] = p.ID
		if !seen[p.AuthorID] {
			seen[p.AuthorID] = true
			authors = append(authors, p.AuthorID)
		}
	}

	var (
		profiles map[string]valueobjects.AuthorProfile
		counts   map[string]ports.EngagementCounts
		liked    map[string]bool
	)
	eg, egCtx := errgroup.WithContext(ctx)
	eg.Go(func() error {
		var err error
		if profiles, err = g.content.Profiles(egCtx, authors); err != nil {
			g.logger.Debug("Profile lookup failed", zap.Error(err))
		}
		return nil
	})
	eg.Go(func() error {
		var err error
		if counts, err = g.content.EngagementCounts(egCtx, postIDs); err != nil {
			g.logger.Debug("Engagement count lookup failed", zap.Error(err))
		}
		return nil
	})
	if viewerID != "" {
		eg.Go(func() error {
			var err error
			if liked, err = g.content.LikedBy(egCtx, viewerID, postIDs); err != nil {
				g.logger.Debug("Liked-by lookup failed", zap.Error(err))
			}
			return nil
		})
	}
	_ = eg.Wait()

	items := make([]valueobjects.ContentItem, len(posts))
	for i, p := range posts {
		profile, ok := profiles[p.AuthorID]
		if !ok {
			profile = valueobjects.AuthorProfile{ID: p.AuthorID}
		}
		c := counts[p.ID]
		items[i] = valueobjects.ContentItem{
			ID:             p.ID,
			Body:           p.Body,
			CreatedAt:      p.CreatedAt,
			AuthorID:       p.AuthorID,
			Author:         profile,
			LikeCount:      c.Likes,
			CommentCount:   c.Comments,
			ViewerHasLiked: liked[p.ID],
		}
	}
	return items, nil
}

func (g *FeedGenerator) score(ctx context.Context, strategy ranking.Strategy, items []valueobjects.ContentItem, sc ranking.ScoringContext) ([]ranking.ScoredItem, error) {
	scored := make([]ranking.ScoredItem, len(items))

	eg, egCtx := errgroup.WithContext(ctx)
	eg.SetLimit(max(g.config.ScoringConcurrency, 1))
	for i := range items {
		eg.Go(func() error {
			if err := egCtx.Err(); err != nil {
				return err
			}
			scored[i] = ranking.ScoredItem{
				Item:   items[i],
				Result: strategy.CalculateScore(egCtx, items[i], sc),
			}
			return nil
		})
	}
	if err := eg.Wait(); err != nil {
		return nil, err
	}
	return scored, nil
}

func (g *FeedGenerator) explain(page []ranking.ScoredItem, algorithm AlgorithmSummary) []ranking.PostExplanation {
	explanations := make([]ranking.PostExplanation, len(page))
	for i, s := range page {
		explanations[i] = ranking.Explain(s.Item.ID, s.Result, algorithm.ID, algorithm.Name, g.config.ExplanationTopSignals)
	}
	return explanations
}

func (g *FeedGenerator) enqueueAudit(viewerID, algorithmID string, scored []ranking.ScoredItem, now time.Time) {
	if g.audit == nil || len(scored) == 0 {
		return
	}
	logs := make([]*entities.SignalLog, len(scored))
	for i, s := range scored {
		logs[i] = &entities.SignalLog{
			ID:          uuid.New().String(),
			UserID:      viewerID,
			PostID:      s.Item.ID,
			AlgorithmID: algorithmID,
			Score:       s.Result.Score,
			Rank:        i + 1,
			Signals:     s.Result.Signals,
			CreatedAt:   now,
		}
	}
	if accepted := g.audit.Enqueue(logs...); accepted < len(logs) {
		g.logger.Warn("Signal audit queue full, dropped rows", zap.Int("dropped", len(logs)-accepted))
	}
}

// fallbackFeed ranks the seeded dataset chronologically. An offset past the end
// returns the first page so the feed is never empty.
func (g *FeedGenerator) fallbackFeed(req FeedRequest, now time.Time) *FeedResponse {
	strategy := g.registry.Default()
	sc := ranking.ScoringContext{Now: now}

	var items []valueobjects.ContentItem
	if g.fallback != nil {
		items = g.fallback.Posts(now)
	}
	scored := make([]ranking.ScoredItem, len(items))
	for i, item := range items {
		scored[i] = ranking.ScoredItem{Item: item, Result: strategy.CalculateScore(context.Background(), item, sc)}
	}
	ranking.Sort(scored)

	offset := req.Offset
	page := ranking.Page(scored, offset, req.Limit)
	if len(page) == 0 {
		offset = 0
		page = ranking.Page(scored, 0, req.Limit)
	}

	algorithm := AlgorithmSummary{
		ID:      FallbackAlgorithmID,
		Name:    "Chronological",
		Slug:    ranking.SlugChronological,
		Version: entities.InitialVersion,
	}
	resp := &FeedResponse{
		Posts:       toRankedPosts(page, offset),
		Algorithm:   algorithm,
		Fallback:    true,
		GeneratedAt: now,
	}
	if req.IncludeExplanations && g.config.EnableExplanations {
		resp.Explanations = g.explain(page, algorithm)
	}
	return resp
}

func usesSocialSignals(strategy ranking.Strategy, weights valueobjects.WeightConfig) bool {
	if strategy.Slug() == ranking.SlugSocial {
		return true
	}
	if _, ok := strategy.(*ranking.Weighted); !ok {
		return false
	}
	for _, name := range []string{
		valueobjects.SignalFollowLevel,
		valueobjects.SignalEngagementHistory,
		valueobjects.SignalMutualConnections,
	} {
		if _, ok := weights[name]; ok {
			return true
		}
	}
	return false
}

func authorIDs(items []valueobjects.ContentItem) []string {
	seen := make(map[string]bool, len(items))
	ids := make([]string, 0, len(items))
	for _, it := range items {
		if !seen[it.AuthorID] {
			seen[it.AuthorID] = true
			ids = append(ids, it.AuthorID)
		}
	}
	return ids
}

func toRankedPosts(page []ranking.ScoredItem, offset int) []RankedPost {
	posts := make([]RankedPost, len(page))
	for i, s := range page {
		posts[i] = RankedPost{ContentItem: s.Item, Score: s.Result.Score, Rank: offset + i + 1}
	}
	return posts
}

func summarize(a *entities.Algorithm) AlgorithmSummary {
	return AlgorithmSummary{
		ID:      a.ID().String(),
		Name:    a.Name(),
		Slug:    a.Slug(),
		Version: a.Version(),
	}
}
