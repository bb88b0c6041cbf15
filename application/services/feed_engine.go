package services

import (
	"context"
	"sort"
	"time"

	"go.uber.org/zap"

	"feedrank/application/ports"
	"feedrank/domain/config"
	"feedrank/domain/core/entities"
	"feedrank/domain/core/validators"
	"feedrank/domain/core/valueobjects"
	"feedrank/domain/events"
	"feedrank/domain/versioning"
	pkgerrors "feedrank/pkg/errors"
)

const activeCacheKeyPrefix = "feedrank:active:"

// ResolvedAlgorithm is an algorithm together with the viewer's per-user overrides
type ResolvedAlgorithm struct {
	Algorithm    *entities.Algorithm
	CustomConfig map[string]interface{}
}

// AlgorithmResolver resolves which algorithm ranks a viewer's feed
type AlgorithmResolver interface {
	GetUserAlgorithm(ctx context.Context, viewerID string) (*ResolvedAlgorithm, error)
	GetAlgorithmBySlug(ctx context.Context, slug, viewerID string) (*entities.Algorithm, error)
}

// OfficialAlgorithm is a platform-owned catalog entry
type OfficialAlgorithm struct {
	ID         string
	Definition entities.AlgorithmDefinition
}

// FeedEngine is the facade over the algorithm catalog and per-user lifecycle:
// discovery, install, uninstall, activation, authoring with revisions, and rating.
type FeedEngine struct {
	algorithms  ports.AlgorithmRepository
	preferences ports.PreferenceRepository
	ratings     ports.RatingRepository
	revisions   ports.RevisionRepository
	publisher   ports.EventPublisher
	cache       ports.Cache
	validator   *validators.AlgorithmValidator
	versioning  *versioning.VersioningService
	config      *config.RankingConfig
	logger      *zap.Logger
	now         func() time.Time
}

// NewFeedEngine creates a new feed engine. cache and publisher may be nil.
func NewFeedEngine(
	algorithms ports.AlgorithmRepository,
	preferences ports.PreferenceRepository,
	ratings ports.RatingRepository,
	revisions ports.RevisionRepository,
	publisher ports.EventPublisher,
	cache ports.Cache,
	cfg *config.RankingConfig,
	logger *zap.Logger,
) *FeedEngine {
	if cfg == nil {
		cfg = config.DefaultRankingConfig()
	}
	return &FeedEngine{
		algorithms:  algorithms,
		preferences: preferences,
		ratings:     ratings,
		revisions:   revisions,
		publisher:   publisher,
		cache:       cache,
		validator:   validators.NewAlgorithmValidator(cfg),
		versioning:  versioning.NewVersioningService(cfg.MaxRevisions),
		config:      cfg,
		logger:      logger,
		now:         time.Now,
	}
}

// WithClock overrides the time source
func (e *FeedEngine) WithClock(now func() time.Time) *FeedEngine {
	e.now = now
	return e
}

// GetUserAlgorithm returns the viewer's active algorithm, or the default
// algorithm for anonymous viewers and viewers without an active one.
func (e *FeedEngine) GetUserAlgorithm(ctx context.Context, viewerID string) (*ResolvedAlgorithm, error) {
	if viewerID == "" {
		return e.defaultAlgorithm(ctx)
	}

	pref, err := e.activePreference(ctx, viewerID)
	if err != nil {
		if pkgerrors.IsNotFound(err) {
			return e.defaultAlgorithm(ctx)
		}
		return nil, err
	}

	algID, err := valueobjects.NewAlgorithmIDFromString(pref.AlgorithmID)
	if err != nil {
		return e.defaultAlgorithm(ctx)
	}
	algorithm, err := e.algorithms.GetByID(ctx, algID)
	if err != nil {
		if pkgerrors.IsNotFound(err) {
			// The active algorithm was deleted underneath the pointer
			e.invalidateActive(ctx, viewerID)
			return e.defaultAlgorithm(ctx)
		}
		return nil, err
	}

	return &ResolvedAlgorithm{Algorithm: algorithm, CustomConfig: pref.CustomConfig}, nil
}

func (e *FeedEngine) activePreference(ctx context.Context, userID string) (*entities.Preference, error) {
	if e.cache != nil {
		if algID, ok := e.cache.Get(ctx, activeCacheKeyPrefix+userID); ok && algID != "" {
			id, err := valueobjects.NewAlgorithmIDFromString(algID)
			if err == nil {
				if pref, err := e.preferences.Get(ctx, userID, id); err == nil && pref.IsActive {
					return pref, nil
				}
			}
			e.invalidateActive(ctx, userID)
		}
	}

	pref, err := e.preferences.GetActive(ctx, userID)
	if err != nil {
		return nil, err
	}

	if e.cache != nil {
		if err := e.cache.Set(ctx, activeCacheKeyPrefix+userID, pref.AlgorithmID, e.config.ActiveAlgorithmTTL); err != nil {
			e.logger.Debug("Failed to cache active algorithm", zap.String("userID", userID), zap.Error(err))
		}
	}
	return pref, nil
}

func (e *FeedEngine) invalidateActive(ctx context.Context, userID string) {
	if e.cache == nil {
		return
	}
	if err := e.cache.Delete(ctx, activeCacheKeyPrefix+userID); err != nil {
		e.logger.Debug("Failed to invalidate active algorithm cache", zap.String("userID", userID), zap.Error(err))
	}
}

func (e *FeedEngine) defaultAlgorithm(ctx context.Context) (*ResolvedAlgorithm, error) {
	algorithm, err := e.algorithms.GetBySlug(ctx, e.config.DefaultAlgorithmSlug)
	if err != nil {
		return nil, pkgerrors.Wrap(err, "default algorithm unavailable")
	}
	return &ResolvedAlgorithm{Algorithm: algorithm}, nil
}

// GetAvailableAlgorithms returns public algorithms matching the filter, most installed first
func (e *FeedEngine) GetAvailableAlgorithms(ctx context.Context, filter ports.AlgorithmFilter) ([]*entities.Algorithm, error) {
	if filter.Limit <= 0 || filter.Limit > e.config.MaxCatalogResults {
		filter.Limit = e.config.MaxCatalogResults
	}

	algorithms, err := e.algorithms.List(ctx, filter)
	if err != nil {
		return nil, pkgerrors.Wrap(err, "failed to list algorithms")
	}

	visible := make([]*entities.Algorithm, 0, len(algorithms))
	for _, a := range algorithms {
		if !a.IsVisibleTo(filter.IncludePrivateFor) {
			continue
		}
		if filter.OfficialOnly && !a.IsOfficial() {
			continue
		}
		if filter.CategorySlug != "" && a.CategorySlug() != filter.CategorySlug {
			continue
		}
		if !a.MatchesSearch(filter.Search) {
			continue
		}
		visible = append(visible, a)
	}

	sort.SliceStable(visible, func(i, j int) bool {
		if visible[i].InstallCount() != visible[j].InstallCount() {
			return visible[i].InstallCount() > visible[j].InstallCount()
		}
		return visible[i].Slug() < visible[j].Slug()
	})
	if len(visible) > filter.Limit {
		visible = visible[:filter.Limit]
	}
	return visible, nil
}

// GetAlgorithm returns an algorithm the viewer is allowed to see
func (e *FeedEngine) GetAlgorithm(ctx context.Context, id, viewerID string) (*entities.Algorithm, error) {
	algorithm, err := e.loadAlgorithm(ctx, id)
	if err != nil {
		return nil, err
	}
	if !algorithm.IsVisibleTo(viewerID) {
		return nil, privateError()
	}
	return algorithm, nil
}

// GetAlgorithmBySlug returns an algorithm by slug, refusing private ones to non-owners
func (e *FeedEngine) GetAlgorithmBySlug(ctx context.Context, slug, viewerID string) (*entities.Algorithm, error) {
	algorithm, err := e.algorithms.GetBySlug(ctx, entities.NormalizeSlug(slug))
	if err != nil {
		return nil, err
	}
	if !algorithm.IsVisibleTo(viewerID) {
		return nil, privateError()
	}
	return algorithm, nil
}

// ListUserPreferences returns the user's installed algorithms
func (e *FeedEngine) ListUserPreferences(ctx context.Context, userID string) ([]*entities.Preference, error) {
	if userID == "" {
		return nil, pkgerrors.NewUnauthorizedError("")
	}
	return e.preferences.ListByUser(ctx, userID)
}

// InstallAlgorithm adds the algorithm to the user's library. Installing twice
// keeps a single preference and only replaces the custom config.
func (e *FeedEngine) InstallAlgorithm(ctx context.Context, userID, algorithmID string, customConfig map[string]interface{}) (*entities.Preference, error) {
	algorithm, err := e.GetAlgorithm(ctx, algorithmID, userID)
	if err != nil {
		return nil, err
	}
	if err := e.validator.ValidateCustomConfig(algorithm.WeightConfig(), customConfig); err != nil {
		return nil, err
	}

	pref, err := entities.NewPreference(userID, algorithm.ID(), customConfig, e.now())
	if err != nil {
		return nil, err
	}

	created, err := e.preferences.Install(ctx, pref)
	if err != nil {
		return nil, pkgerrors.Wrap(err, "failed to install algorithm")
	}

	e.logger.Info("Algorithm installed",
		zap.String("userID", userID),
		zap.String("algorithmID", algorithmID),
		zap.Bool("reinstall", !created),
	)
	e.publish(ctx, events.NewAlgorithmInstalled(algorithmID, userID, !created, e.now()))

	return e.preferences.Get(ctx, userID, algorithm.ID())
}

// UninstallAlgorithm removes the algorithm from the user's library. Removing the
// active algorithm leaves the user on the default.
func (e *FeedEngine) UninstallAlgorithm(ctx context.Context, userID, algorithmID string) error {
	id, err := parseAlgorithmID(algorithmID)
	if err != nil {
		return err
	}

	wasActive, err := e.preferences.Uninstall(ctx, userID, id)
	if err != nil {
		return err
	}
	if wasActive {
		e.invalidateActive(ctx, userID)
	}

	e.logger.Info("Algorithm uninstalled",
		zap.String("userID", userID),
		zap.String("algorithmID", algorithmID),
		zap.Bool("wasActive", wasActive),
	)
	e.publish(ctx, events.NewAlgorithmUninstalled(algorithmID, userID, wasActive, e.now()))
	return nil
}

// SetActiveAlgorithm makes an installed algorithm the user's only active one
func (e *FeedEngine) SetActiveAlgorithm(ctx context.Context, userID, algorithmID string) error {
	id, err := parseAlgorithmID(algorithmID)
	if err != nil {
		return err
	}

	if _, err := e.preferences.Get(ctx, userID, id); err != nil {
		if pkgerrors.IsNotFound(err) {
			return pkgerrors.NewConflictError("algorithm must be installed before it can be activated").
				WithCode(pkgerrors.CodeAlgorithmNotInstalled)
		}
		return err
	}

	previous, err := e.preferences.SetActive(ctx, userID, id)
	if err != nil {
		return pkgerrors.Wrap(err, "failed to activate algorithm")
	}

	if e.cache != nil {
		if err := e.cache.Set(ctx, activeCacheKeyPrefix+userID, algorithmID, e.config.ActiveAlgorithmTTL); err != nil {
			e.logger.Debug("Failed to cache active algorithm", zap.String("userID", userID), zap.Error(err))
		}
	}

	if previous != algorithmID {
		e.publish(ctx, events.NewAlgorithmActivated(algorithmID, userID, previous, e.now()))
	}
	return nil
}

// CreateAlgorithm publishes a user-authored algorithm
func (e *FeedEngine) CreateAlgorithm(ctx context.Context, userID, algorithmID string, def entities.AlgorithmDefinition) (*entities.Algorithm, error) {
	if userID == "" {
		return nil, pkgerrors.NewUnauthorizedError("")
	}
	if err := e.validator.ValidateDefinition(def); err != nil {
		return nil, err
	}
	if err := e.ensureSlugAvailable(ctx, def.Slug, ""); err != nil {
		return nil, err
	}

	var id valueobjects.AlgorithmID
	if algorithmID != "" {
		parsed, err := parseAlgorithmID(algorithmID)
		if err != nil {
			return nil, err
		}
		id = parsed
	}

	algorithm, err := entities.NewAlgorithm(id, userID, def, e.now())
	if err != nil {
		return nil, err
	}
	e.warnOnWeightSum(algorithm)

	if err := e.algorithms.Save(ctx, algorithm); err != nil {
		return nil, pkgerrors.Wrap(err, "failed to save algorithm")
	}
	e.publishAll(ctx, algorithm)

	e.logger.Info("Algorithm created",
		zap.String("algorithmID", algorithm.ID().String()),
		zap.String("slug", algorithm.Slug()),
		zap.String("authorID", userID),
	)
	return algorithm, nil
}

// UpdateAlgorithm replaces the definition, recording the previous state as a revision.
// An empty version bumps the patch number.
func (e *FeedEngine) UpdateAlgorithm(ctx context.Context, userID, algorithmID string, def entities.AlgorithmDefinition, version, notes string) (*entities.Algorithm, error) {
	algorithm, err := e.loadAlgorithm(ctx, algorithmID)
	if err != nil {
		return nil, err
	}
	if err := algorithm.CheckEditableBy(userID); err != nil {
		return nil, err
	}
	if err := e.validator.ValidateDefinition(def); err != nil {
		return nil, err
	}
	if err := e.ensureSlugAvailable(ctx, def.Slug, algorithm.ID().String()); err != nil {
		return nil, err
	}

	nextVersion, err := versioning.NextVersion(algorithm.Version(), version)
	if err != nil {
		return nil, pkgerrors.NewValidationError(err.Error()).WithDetail("version", version)
	}

	revision, err := e.versioning.CreateRevision(algorithm, userID, notes)
	if err != nil {
		return nil, pkgerrors.Wrap(err, "failed to snapshot algorithm")
	}

	if err := algorithm.ApplyUpdate(userID, def, nextVersion, notes, e.now()); err != nil {
		return nil, err
	}
	e.warnOnWeightSum(algorithm)

	if err := e.revisions.Save(ctx, revision); err != nil {
		return nil, pkgerrors.Wrap(err, "failed to save revision")
	}
	if err := e.algorithms.Save(ctx, algorithm); err != nil {
		return nil, pkgerrors.Wrap(err, "failed to save algorithm")
	}
	e.pruneRevisions(ctx, algorithm.ID())
	e.publishAll(ctx, algorithm)

	e.logger.Info("Algorithm updated",
		zap.String("algorithmID", algorithmID),
		zap.String("fromVersion", revision.Version),
		zap.String("toVersion", nextVersion),
	)
	return algorithm, nil
}

// pruneRevisions enforces revision retention. Failures leave extra history behind and are only logged.
func (e *FeedEngine) pruneRevisions(ctx context.Context, id valueobjects.AlgorithmID) {
	keep := e.versioning.MaxRevisions()
	if keep <= 0 {
		return
	}
	removed, err := e.revisions.Prune(ctx, id, keep)
	if err != nil {
		e.logger.Warn("Failed to prune revisions", zap.String("algorithmID", id.String()), zap.Error(err))
		return
	}
	if removed > 0 {
		e.logger.Debug("Pruned revisions", zap.String("algorithmID", id.String()), zap.Int("removed", removed))
	}
}

// DeleteAlgorithm removes a user-authored algorithm after uninstalling it everywhere
func (e *FeedEngine) DeleteAlgorithm(ctx context.Context, userID, algorithmID string) error {
	algorithm, err := e.loadAlgorithm(ctx, algorithmID)
	if err != nil {
		return err
	}
	if err := algorithm.CheckEditableBy(userID); err != nil {
		return err
	}

	removed, err := e.preferences.DeleteByAlgorithm(ctx, algorithm.ID())
	if err != nil {
		return pkgerrors.Wrap(err, "failed to remove installs")
	}
	if err := e.ratings.DeleteByAlgorithm(ctx, algorithm.ID()); err != nil {
		return pkgerrors.Wrap(err, "failed to remove ratings")
	}
	if err := e.revisions.DeleteByAlgorithm(ctx, algorithm.ID()); err != nil {
		return pkgerrors.Wrap(err, "failed to remove revisions")
	}
	if err := e.algorithms.Delete(ctx, algorithm.ID()); err != nil {
		return pkgerrors.Wrap(err, "failed to delete algorithm")
	}

	e.logger.Info("Algorithm deleted",
		zap.String("algorithmID", algorithmID),
		zap.Int("removedInstalls", removed),
	)
	e.publish(ctx, events.NewAlgorithmDeleted(algorithmID, userID, removed, e.now()))
	return nil
}

// RatingSummary is the recomputed rating aggregate after a rating is recorded
type RatingSummary struct {
	AlgorithmID   string  `json:"algorithmId"`
	AverageRating float64 `json:"averageRating"`
	RatingCount   int     `json:"ratingCount"`
}

// RateAlgorithm records the user's rating and recomputes the algorithm's average
func (e *FeedEngine) RateAlgorithm(ctx context.Context, userID, algorithmID string, value int, review string) (*RatingSummary, error) {
	algorithm, err := e.GetAlgorithm(ctx, algorithmID, userID)
	if err != nil {
		return nil, err
	}

	rating, err := entities.NewRating(userID, algorithmID, value, review, e.now())
	if err != nil {
		return nil, err
	}
	if err := e.ratings.Upsert(ctx, rating); err != nil {
		return nil, pkgerrors.Wrap(err, "failed to save rating")
	}

	all, err := e.ratings.ListByAlgorithm(ctx, algorithm.ID())
	if err != nil {
		return nil, pkgerrors.Wrap(err, "failed to load ratings")
	}
	average, count := entities.AverageRating(all)
	if err := e.algorithms.UpdateRatingStats(ctx, algorithm.ID(), average, count); err != nil {
		return nil, pkgerrors.Wrap(err, "failed to update rating stats")
	}

	e.publish(ctx, events.NewAlgorithmRated(algorithmID, userID, value, average, count, e.now()))
	return &RatingSummary{AlgorithmID: algorithmID, AverageRating: average, RatingCount: count}, nil
}

// ListRevisions returns an algorithm's revision history, newest first
func (e *FeedEngine) ListRevisions(ctx context.Context, algorithmID, viewerID string, limit int) ([]*entities.Revision, error) {
	algorithm, err := e.GetAlgorithm(ctx, algorithmID, viewerID)
	if err != nil {
		return nil, err
	}
	return e.revisions.ListByAlgorithm(ctx, algorithm.ID(), limit)
}

// SeedOfficialAlgorithms upserts the official catalog. Existing entries keep their
// counters; a changed definition replaces the stored one.
func (e *FeedEngine) SeedOfficialAlgorithms(ctx context.Context, official []OfficialAlgorithm) error {
	for _, o := range official {
		id, err := parseAlgorithmID(o.ID)
		if err != nil {
			return err
		}

		candidate, err := entities.NewOfficialAlgorithm(id, o.Definition, e.now())
		if err != nil {
			return pkgerrors.Wrapf(err, "invalid official algorithm %s", o.ID)
		}

		existing, err := e.algorithms.GetByID(ctx, id)
		switch {
		case err == nil:
			if same, _ := sameDefinition(existing, candidate); same {
				continue
			}
			snapshot := candidate.Snapshot()
			keep := existing.Snapshot()
			snapshot.InstallCount = keep.InstallCount
			snapshot.AverageRating = keep.AverageRating
			snapshot.RatingCount = keep.RatingCount
			snapshot.CreatedAt = keep.CreatedAt
			snapshot.Version = keep.Version
			candidate, err = entities.ReconstructAlgorithm(snapshot)
			if err != nil {
				return err
			}
		case !pkgerrors.IsNotFound(err):
			return pkgerrors.Wrap(err, "failed to load official algorithm")
		}

		if err := e.algorithms.Save(ctx, candidate); err != nil {
			return pkgerrors.Wrapf(err, "failed to seed official algorithm %s", o.ID)
		}
		e.logger.Info("Seeded official algorithm", zap.String("algorithmID", o.ID), zap.String("slug", candidate.Slug()))
	}
	return nil
}

func sameDefinition(a, b *entities.Algorithm) (bool, error) {
	ca, err := versioning.Checksum(a.Snapshot())
	if err != nil {
		return false, err
	}
	cb, err := versioning.Checksum(b.Snapshot())
	if err != nil {
		return false, err
	}
	return ca == cb, nil
}

func (e *FeedEngine) loadAlgorithm(ctx context.Context, id string) (*entities.Algorithm, error) {
	algID, err := parseAlgorithmID(id)
	if err != nil {
		return nil, err
	}
	return e.algorithms.GetByID(ctx, algID)
}

func (e *FeedEngine) ensureSlugAvailable(ctx context.Context, slug, ownID string) error {
	existing, err := e.algorithms.GetBySlug(ctx, entities.NormalizeSlug(slug))
	if err != nil {
		if pkgerrors.IsNotFound(err) {
			return nil
		}
		return err
	}
	if existing.ID().String() == ownID {
		return nil
	}
	return pkgerrors.NewConflictError("slug is already taken").
		WithCode(pkgerrors.CodeSlugTaken).
		WithDetail("slug", slug)
}

func (e *FeedEngine) warnOnWeightSum(algorithm *entities.Algorithm) {
	if sum, off := e.validator.WeightSumOutOfRange(algorithm.WeightConfig()); off {
		e.logger.Warn("Algorithm weights are far from 1; scores are not normalized",
			zap.String("algorithmID", algorithm.ID().String()),
			zap.Float64("weightSum", sum),
		)
	}
}

func (e *FeedEngine) publishAll(ctx context.Context, algorithm *entities.Algorithm) {
	pending := algorithm.GetUncommittedEvents()
	if len(pending) == 0 {
		return
	}
	if e.publisher != nil {
		if err := e.publisher.PublishBatch(ctx, pending); err != nil {
			e.logger.Warn("Failed to publish algorithm events",
				zap.String("algorithmID", algorithm.ID().String()),
				zap.Error(err),
			)
		}
	}
	algorithm.MarkEventsAsCommitted()
}

func (e *FeedEngine) publish(ctx context.Context, event events.DomainEvent) {
	if e.publisher == nil {
		return
	}
	if err := e.publisher.Publish(ctx, event); err != nil {
		e.logger.Warn("Failed to publish event",
			zap.String("eventType", event.GetEventType()),
			zap.String("aggregateID", event.GetAggregateID()),
			zap.Error(err),
		)
	}
}

func parseAlgorithmID(id string) (valueobjects.AlgorithmID, error) {
	algID, err := valueobjects.NewAlgorithmIDFromString(id)
	if err != nil {
		return valueobjects.AlgorithmID{}, pkgerrors.NewValidationError(err.Error())
	}
	return algID, nil
}

func privateError() error {
	return pkgerrors.NewForbiddenError("algorithm is private").WithCode(pkgerrors.CodeAlgorithmPrivate)
}
