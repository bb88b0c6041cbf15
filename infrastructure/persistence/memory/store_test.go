package memory

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"feedrank/application/ports"
	"feedrank/domain/core/entities"
	"feedrank/domain/core/valueobjects"
	pkgerrors "feedrank/pkg/errors"
)

var now = time.Date(2024, 6, 1, 12, 0, 0, 0, time.UTC)

func newAlgorithm(t *testing.T, author, slug string, public bool) *entities.Algorithm {
	t.Helper()
	a, err := entities.NewAlgorithm(valueobjects.AlgorithmID{}, author, entities.AlgorithmDefinition{
		Name:         slug,
		Slug:         slug,
		IsPublic:     public,
		WeightConfig: valueobjects.WeightConfig{valueobjects.SignalTimeRecency: 1},
	}, now)
	require.NoError(t, err)
	return a
}

func TestAlgorithmRepository_SaveAndGet(t *testing.T) {
	ctx := context.Background()
	store := NewStore()
	repo := store.Algorithms()
	alg := newAlgorithm(t, "author-1", "my-feed", true)

	require.NoError(t, repo.Save(ctx, alg))

	byID, err := repo.GetByID(ctx, alg.ID())
	require.NoError(t, err)
	assert.Equal(t, "my-feed", byID.Slug())

	bySlug, err := repo.GetBySlug(ctx, "my-feed")
	require.NoError(t, err)
	assert.True(t, bySlug.ID().Equals(alg.ID()))

	_, err = repo.GetBySlug(ctx, "missing")
	assert.True(t, pkgerrors.IsNotFound(err))
}

func TestAlgorithmRepository_SlugIsUnique(t *testing.T) {
	ctx := context.Background()
	repo := NewStore().Algorithms()

	require.NoError(t, repo.Save(ctx, newAlgorithm(t, "a", "taken", true)))
	err := repo.Save(ctx, newAlgorithm(t, "b", "taken", true))

	assert.True(t, pkgerrors.HasCode(err, pkgerrors.CodeSlugTaken))
}

func TestAlgorithmRepository_SaveKeepsRatingStats(t *testing.T) {
	// Arrange
	ctx := context.Background()
	repo := NewStore().Algorithms()
	alg := newAlgorithm(t, "author-1", "my-feed", true)
	require.NoError(t, repo.Save(ctx, alg))
	stale, err := repo.GetByID(ctx, alg.ID())
	require.NoError(t, err)
	require.NoError(t, repo.UpdateRatingStats(ctx, alg.ID(), 4.5, 2))

	// Act
	require.NoError(t, repo.Save(ctx, stale))

	// Assert
	got, err := repo.GetByID(ctx, alg.ID())
	require.NoError(t, err)
	assert.Equal(t, 4.5, got.AverageRating())
	assert.Equal(t, 2, got.RatingCount())
}

func TestAlgorithmRepository_ListOrdersByInstalls(t *testing.T) {
	ctx := context.Background()
	store := NewStore()
	quiet := newAlgorithm(t, "a", "quiet", true)
	popular := newAlgorithm(t, "a", "popular", true)
	require.NoError(t, store.Algorithms().Save(ctx, quiet))
	require.NoError(t, store.Algorithms().Save(ctx, popular))

	for _, user := range []string{"u1", "u2"} {
		pref, err := entities.NewPreference(user, popular.ID(), nil, now)
		require.NoError(t, err)
		_, err = store.Preferences().Install(ctx, pref)
		require.NoError(t, err)
	}

	list, err := store.Algorithms().List(ctx, ports.AlgorithmFilter{})
	require.NoError(t, err)
	require.Len(t, list, 2)
	assert.Equal(t, "popular", list[0].Slug())
	assert.Equal(t, 2, list[0].InstallCount())
	assert.Equal(t, 0, list[1].InstallCount())
}

func TestPreferenceRepository_InstallIsIdempotent(t *testing.T) {
	ctx := context.Background()
	store := NewStore()
	alg := newAlgorithm(t, "a", "feed", true)
	require.NoError(t, store.Algorithms().Save(ctx, alg))

	pref, _ := entities.NewPreference("viewer", alg.ID(), nil, now)
	created, err := store.Preferences().Install(ctx, pref)
	require.NoError(t, err)
	assert.True(t, created)

	again, _ := entities.NewPreference("viewer", alg.ID(), map[string]interface{}{"popularity": 0.5}, now)
	created, err = store.Preferences().Install(ctx, again)
	require.NoError(t, err)
	assert.False(t, created)

	prefs, err := store.Preferences().ListByUser(ctx, "viewer")
	require.NoError(t, err)
	require.Len(t, prefs, 1)
	assert.Equal(t, 0.5, prefs[0].CustomConfig["popularity"])

	count, err := store.Preferences().CountInstalls(ctx, alg.ID())
	require.NoError(t, err)
	assert.Equal(t, 1, count)
}

func TestPreferenceRepository_SingleActive(t *testing.T) {
	ctx := context.Background()
	store := NewStore()
	first := newAlgorithm(t, "a", "first", true)
	second := newAlgorithm(t, "a", "second", true)
	for _, a := range []*entities.Algorithm{first, second} {
		require.NoError(t, store.Algorithms().Save(ctx, a))
		pref, _ := entities.NewPreference("viewer", a.ID(), nil, now)
		_, err := store.Preferences().Install(ctx, pref)
		require.NoError(t, err)
	}

	previous, err := store.Preferences().SetActive(ctx, "viewer", first.ID())
	require.NoError(t, err)
	assert.Empty(t, previous)

	previous, err = store.Preferences().SetActive(ctx, "viewer", second.ID())
	require.NoError(t, err)
	assert.Equal(t, first.ID().String(), previous)

	prefs, err := store.Preferences().ListByUser(ctx, "viewer")
	require.NoError(t, err)
	active := 0
	for _, p := range prefs {
		if p.IsActive {
			active++
			assert.Equal(t, second.ID().String(), p.AlgorithmID)
		}
	}
	assert.Equal(t, 1, active)
}

func TestPreferenceRepository_UninstallClearsActive(t *testing.T) {
	ctx := context.Background()
	store := NewStore()
	alg := newAlgorithm(t, "a", "feed", true)
	require.NoError(t, store.Algorithms().Save(ctx, alg))
	pref, _ := entities.NewPreference("viewer", alg.ID(), nil, now)
	_, err := store.Preferences().Install(ctx, pref)
	require.NoError(t, err)
	_, err = store.Preferences().SetActive(ctx, "viewer", alg.ID())
	require.NoError(t, err)

	wasActive, err := store.Preferences().Uninstall(ctx, "viewer", alg.ID())
	require.NoError(t, err)
	assert.True(t, wasActive)

	_, err = store.Preferences().GetActive(ctx, "viewer")
	assert.True(t, pkgerrors.IsNotFound(err))

	_, err = store.Preferences().Uninstall(ctx, "viewer", alg.ID())
	assert.True(t, pkgerrors.IsNotFound(err))
}

func TestPreferenceRepository_SetActiveRequiresInstall(t *testing.T) {
	store := NewStore()

	_, err := store.Preferences().SetActive(context.Background(), "viewer", valueobjects.MustAlgorithmID("nope"))

	assert.True(t, pkgerrors.HasCode(err, pkgerrors.CodeAlgorithmNotInstalled))
}

func TestRevisionRepository_NewestFirst(t *testing.T) {
	ctx := context.Background()
	repo := NewStore().Revisions()
	id := valueobjects.MustAlgorithmID("alg-1")

	for _, v := range []string{"1.0.0", "1.0.1", "1.0.2"} {
		require.NoError(t, repo.Save(ctx, &entities.Revision{ID: v, AlgorithmID: id.String(), Version: v}))
	}

	revs, err := repo.ListByAlgorithm(ctx, id, 2)
	require.NoError(t, err)
	require.Len(t, revs, 2)
	assert.Equal(t, "1.0.2", revs[0].Version)
	assert.Equal(t, "1.0.1", revs[1].Version)
}

func TestRevisionRepository_Prune(t *testing.T) {
	tests := []struct {
		name        string
		keep        int
		wantRemoved int
		wantLeft    []string
	}{
		{name: "drops oldest", keep: 2, wantRemoved: 2, wantLeft: []string{"1.0.3", "1.0.2"}},
		{name: "under limit", keep: 10, wantRemoved: 0, wantLeft: []string{"1.0.3", "1.0.2", "1.0.1", "1.0.0"}},
		{name: "non-positive keep is a no-op", keep: 0, wantRemoved: 0, wantLeft: []string{"1.0.3", "1.0.2", "1.0.1", "1.0.0"}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			// Arrange
			ctx := context.Background()
			repo := NewStore().Revisions()
			id := valueobjects.MustAlgorithmID("alg-1")
			for _, v := range []string{"1.0.0", "1.0.1", "1.0.2", "1.0.3"} {
				require.NoError(t, repo.Save(ctx, &entities.Revision{ID: v, AlgorithmID: id.String(), Version: v}))
			}

			// Act
			removed, err := repo.Prune(ctx, id, tt.keep)

			// Assert
			require.NoError(t, err)
			assert.Equal(t, tt.wantRemoved, removed)
			revs, err := repo.ListByAlgorithm(ctx, id, 0)
			require.NoError(t, err)
			versions := make([]string, 0, len(revs))
			for _, r := range revs {
				versions = append(versions, r.Version)
			}
			assert.Equal(t, tt.wantLeft, versions)
		})
	}
}

func TestRatingRepository_UpsertReplaces(t *testing.T) {
	ctx := context.Background()
	repo := NewStore().Ratings()
	id := valueobjects.MustAlgorithmID("alg-1")

	first, _ := entities.NewRating("viewer", id.String(), 2, "", now)
	second, _ := entities.NewRating("viewer", id.String(), 5, "better now", now.Add(time.Hour))
	require.NoError(t, repo.Upsert(ctx, first))
	require.NoError(t, repo.Upsert(ctx, second))

	ratings, err := repo.ListByAlgorithm(ctx, id)
	require.NoError(t, err)
	require.Len(t, ratings, 1)
	assert.Equal(t, 5, ratings[0].Rating)
	assert.Equal(t, now, ratings[0].CreatedAt)
}
