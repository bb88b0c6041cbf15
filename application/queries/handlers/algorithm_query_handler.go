package handlers

import (
	"context"

	"go.uber.org/zap"

	"feedrank/application/ports"
	"feedrank/application/queries"
	"feedrank/application/queries/bus"
	"feedrank/application/services"
	"feedrank/domain/core/entities"
	"feedrank/domain/versioning"
	pkgerrors "feedrank/pkg/errors"
)

// AlgorithmCatalog is the read side of the feed engine
type AlgorithmCatalog interface {
	GetUserAlgorithm(ctx context.Context, viewerID string) (*services.ResolvedAlgorithm, error)
	GetAvailableAlgorithms(ctx context.Context, filter ports.AlgorithmFilter) ([]*entities.Algorithm, error)
	GetAlgorithm(ctx context.Context, id, viewerID string) (*entities.Algorithm, error)
	GetAlgorithmBySlug(ctx context.Context, slug, viewerID string) (*entities.Algorithm, error)
	ListUserPreferences(ctx context.Context, userID string) ([]*entities.Preference, error)
	ListRevisions(ctx context.Context, algorithmID, viewerID string, limit int) ([]*entities.Revision, error)
}

// FeedSource builds ranked feed pages
type FeedSource interface {
	GenerateFeed(ctx context.Context, req services.FeedRequest) *services.FeedResponse
}

// AlgorithmQueryHandler serves every read query over algorithms and feeds
type AlgorithmQueryHandler struct {
	catalog AlgorithmCatalog
	feeds   FeedSource
	logger  *zap.Logger
}

// NewAlgorithmQueryHandler creates a new query handler
func NewAlgorithmQueryHandler(catalog AlgorithmCatalog, feeds FeedSource, logger *zap.Logger) *AlgorithmQueryHandler {
	return &AlgorithmQueryHandler{
		catalog: catalog,
		feeds:   feeds,
		logger:  logger,
	}
}

// Register binds the handler to every query type it serves
func (h *AlgorithmQueryHandler) Register(b *bus.QueryBus) error {
	for _, q := range []bus.Query{
		queries.GetFeedQuery{},
		queries.ListAlgorithmsQuery{},
		queries.GetAlgorithmQuery{},
		queries.GetActiveAlgorithmQuery{},
		queries.ListRevisionsQuery{},
		queries.ListPreferencesQuery{},
	} {
		if err := b.Register(q, h); err != nil {
			return err
		}
	}
	return nil
}

// Handle dispatches on the concrete query type
func (h *AlgorithmQueryHandler) Handle(ctx context.Context, query bus.Query) (interface{}, error) {
	switch q := query.(type) {
	case queries.GetFeedQuery:
		return h.feeds.GenerateFeed(ctx, q.ToRequest()), nil
	case queries.ListAlgorithmsQuery:
		return h.listAlgorithms(ctx, q)
	case queries.GetAlgorithmQuery:
		return h.getAlgorithm(ctx, q)
	case queries.GetActiveAlgorithmQuery:
		return h.getActive(ctx, q)
	case queries.ListRevisionsQuery:
		return h.listRevisions(ctx, q)
	case queries.ListPreferencesQuery:
		return h.listPreferences(ctx, q)
	default:
		return nil, bus.ErrUnexpectedType
	}
}

func (h *AlgorithmQueryHandler) listAlgorithms(ctx context.Context, q queries.ListAlgorithmsQuery) (*queries.ListAlgorithmsResult, error) {
	algorithms, err := h.catalog.GetAvailableAlgorithms(ctx, ports.AlgorithmFilter{
		CategorySlug:      q.Category,
		OfficialOnly:      q.OfficialOnly,
		Search:            q.Search,
		IncludePrivateFor: q.ViewerID,
		Limit:             q.Limit,
	})
	if err != nil {
		return nil, err
	}

	views := make([]queries.AlgorithmView, 0, len(algorithms))
	for _, a := range algorithms {
		views = append(views, queries.NewAlgorithmView(a))
	}
	return &queries.ListAlgorithmsResult{Algorithms: views, Count: len(views)}, nil
}

// getAlgorithm treats the reference as a slug first and as an id when no slug matches
func (h *AlgorithmQueryHandler) getAlgorithm(ctx context.Context, q queries.GetAlgorithmQuery) (*queries.AlgorithmView, error) {
	algorithm, err := h.catalog.GetAlgorithmBySlug(ctx, q.Ref, q.ViewerID)
	if pkgerrors.IsNotFound(err) {
		h.logger.Debug("Slug lookup missed, trying id", zap.String("ref", q.Ref))
		algorithm, err = h.catalog.GetAlgorithm(ctx, q.Ref, q.ViewerID)
	}
	if err != nil {
		return nil, err
	}
	view := queries.NewAlgorithmView(algorithm)
	return &view, nil
}

func (h *AlgorithmQueryHandler) getActive(ctx context.Context, q queries.GetActiveAlgorithmQuery) (*queries.ActiveAlgorithmResult, error) {
	resolved, err := h.catalog.GetUserAlgorithm(ctx, q.ViewerID)
	if err != nil {
		return nil, err
	}
	return &queries.ActiveAlgorithmResult{
		Algorithm:    queries.NewAlgorithmView(resolved.Algorithm),
		CustomConfig: resolved.CustomConfig,
	}, nil
}

func (h *AlgorithmQueryHandler) listRevisions(ctx context.Context, q queries.ListRevisionsQuery) (*queries.ListRevisionsResult, error) {
	algorithm, err := h.catalog.GetAlgorithm(ctx, q.AlgorithmID, q.ViewerID)
	if err != nil {
		return nil, err
	}
	revisions, err := h.catalog.ListRevisions(ctx, q.AlgorithmID, q.ViewerID, q.Limit)
	if err != nil {
		return nil, err
	}

	// Newest first, so each revision was replaced by the one before it
	next := algorithm.Snapshot()
	views := make([]queries.RevisionView, 0, len(revisions))
	for _, r := range revisions {
		view := queries.NewRevisionView(r)
		view.Changes = versioning.CompareRevisions(r.Definition, next)
		views = append(views, view)
		next = r.Definition
	}
	return &queries.ListRevisionsResult{AlgorithmID: q.AlgorithmID, Revisions: views}, nil
}

func (h *AlgorithmQueryHandler) listPreferences(ctx context.Context, q queries.ListPreferencesQuery) (*queries.ListPreferencesResult, error) {
	prefs, err := h.catalog.ListUserPreferences(ctx, q.UserID)
	if err != nil {
		return nil, err
	}

	views := make([]queries.PreferenceView, 0, len(prefs))
	for _, p := range prefs {
		views = append(views, queries.NewPreferenceView(p))
	}
	return &queries.ListPreferencesResult{Preferences: views}, nil
}
