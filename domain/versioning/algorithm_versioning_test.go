package versioning

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"feedrank/domain/core/entities"
	"feedrank/domain/core/valueobjects"
)

func TestParseSemVer(t *testing.T) {
	tests := []struct {
		name    string
		input   string
		want    SemVer
		wantErr bool
	}{
		{name: "plain", input: "1.2.3", want: SemVer{Major: 1, Minor: 2, Patch: 3}},
		{name: "v prefix", input: "v1.2.3", want: SemVer{Major: 1, Minor: 2, Patch: 3}},
		{name: "surrounding spaces", input: " 2.0.10 ", want: SemVer{Major: 2, Patch: 10}},
		{name: "two components", input: "1.2", wantErr: true},
		{name: "four components", input: "1.2.3.4", wantErr: true},
		{name: "letters", input: "a.b.c", wantErr: true},
		{name: "negative component", input: "1.-1.0", wantErr: true},
		{name: "pre-release suffix", input: "1.0.0-beta", wantErr: true},
		{name: "empty", input: "", wantErr: true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := ParseSemVer(tt.input)

			if tt.wantErr {
				assert.Error(t, err)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestSemVer_Compare(t *testing.T) {
	tests := []struct {
		name string
		a, b SemVer
		want int
	}{
		{name: "equal", a: SemVer{1, 2, 3}, b: SemVer{1, 2, 3}, want: 0},
		{name: "major wins over minor", a: SemVer{2, 0, 0}, b: SemVer{1, 9, 9}, want: 1},
		{name: "minor", a: SemVer{1, 1, 0}, b: SemVer{1, 2, 0}, want: -1},
		{name: "patch", a: SemVer{1, 0, 10}, b: SemVer{1, 0, 9}, want: 1},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, tt.a.Compare(tt.b))
		})
	}
}

func TestNextVersion(t *testing.T) {
	tests := []struct {
		name      string
		current   string
		requested string
		want      string
		wantErr   bool
	}{
		{name: "empty request bumps patch", current: "1.0.0", want: "1.0.1"},
		{name: "blank request bumps patch", current: "1.4.9", requested: "  ", want: "1.4.10"},
		{name: "unparseable current falls back to 1.0.0", current: "latest", want: "1.0.1"},
		{name: "empty current falls back to 1.0.0", current: "", want: "1.0.1"},
		{name: "higher request is accepted", current: "1.0.3", requested: "1.1.0", want: "1.1.0"},
		{name: "v prefix request is normalized", current: "1.0.0", requested: "v2.0.0", want: "2.0.0"},
		{name: "request above fallback", current: "garbage", requested: "1.0.1", want: "1.0.1"},
		{name: "equal request is rejected", current: "1.2.0", requested: "1.2.0", wantErr: true},
		{name: "lower request is rejected", current: "2.0.0", requested: "1.9.9", wantErr: true},
		{name: "request equal to fallback is rejected", current: "garbage", requested: "1.0.0", wantErr: true},
		{name: "malformed request is rejected", current: "1.0.0", requested: "next", wantErr: true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := NextVersion(tt.current, tt.requested)

			if tt.wantErr {
				assert.Error(t, err)
				assert.Empty(t, got)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}
}

func newAlgorithm(t *testing.T, weights valueobjects.WeightConfig) *entities.Algorithm {
	t.Helper()
	a, err := entities.NewAlgorithm(valueobjects.AlgorithmID{}, "author-1", entities.AlgorithmDefinition{
		Name:         "My feed",
		Slug:         "my-feed",
		IsPublic:     true,
		WeightConfig: weights,
	}, time.Date(2024, 6, 1, 12, 0, 0, 0, time.UTC))
	require.NoError(t, err)
	return a
}

func TestVersioningService_CreateRevision(t *testing.T) {
	// Arrange
	at := time.Date(2024, 7, 1, 9, 0, 0, 0, time.UTC)
	svc := NewVersioningService(5)
	svc.now = func() time.Time { return at }
	alg := newAlgorithm(t, valueobjects.WeightConfig{valueobjects.SignalTimeRecency: 1})

	// Act
	rev, err := svc.CreateRevision(alg, "editor-1", "first cut")

	// Assert
	require.NoError(t, err)
	assert.NotEmpty(t, rev.ID)
	assert.Equal(t, alg.ID().String(), rev.AlgorithmID)
	assert.Equal(t, alg.Version(), rev.Version)
	assert.Equal(t, alg.Snapshot(), rev.Definition)
	assert.Equal(t, "editor-1", rev.EditorID)
	assert.Equal(t, "first cut", rev.ChangeNotes)
	assert.Equal(t, at, rev.CreatedAt)
	assert.Len(t, rev.Checksum, 64)
	assert.Equal(t, 5, svc.MaxRevisions())

	_, err = svc.CreateRevision(nil, "editor-1", "")
	assert.Error(t, err)
}

func TestChecksum(t *testing.T) {
	base := newAlgorithm(t, valueobjects.WeightConfig{
		valueobjects.SignalTimeRecency: 0.5,
		valueobjects.SignalPopularity:  0.5,
	}).Snapshot()

	sum, err := Checksum(base)
	require.NoError(t, err)

	t.Run("ignores counters", func(t *testing.T) {
		counted := base
		counted.InstallCount = 40
		counted.RatingCount = 3
		counted.AverageRating = 4.2

		got, err := Checksum(counted)
		require.NoError(t, err)
		assert.Equal(t, sum, got)
	})

	t.Run("tracks weights", func(t *testing.T) {
		reweighted := base
		reweighted.WeightConfig = valueobjects.WeightConfig{
			valueobjects.SignalTimeRecency: 0.9,
			valueobjects.SignalPopularity:  0.1,
		}

		got, err := Checksum(reweighted)
		require.NoError(t, err)
		assert.NotEqual(t, sum, got)
	})
}

func TestCompareRevisions(t *testing.T) {
	from := newAlgorithm(t, valueobjects.WeightConfig{
		valueobjects.SignalTimeRecency: 0.5,
		valueobjects.SignalPopularity:  0.5,
	}).Snapshot()

	to := from
	to.Version = "1.0.1"
	to.IsPublic = false
	to.WeightConfig = valueobjects.WeightConfig{
		valueobjects.SignalTimeRecency: 0.5,
		valueobjects.SignalFollowLevel: 0.5,
	}
	to.AlgorithmConfig = valueobjects.AlgorithmConfig{"decay": 0.2}

	diff := CompareRevisions(from, to)

	assert.Equal(t, from.Version, diff.FromVersion)
	assert.Equal(t, "1.0.1", diff.ToVersion)
	assert.True(t, diff.VisibilityChange)
	assert.True(t, diff.ConfigChanged)
	assert.Equal(t, []WeightChange{
		{Signal: valueobjects.SignalFollowLevel, From: 0, To: 0.5},
		{Signal: valueobjects.SignalPopularity, From: 0.5, To: 0},
	}, diff.WeightChanges)

	same := CompareRevisions(from, from)
	assert.Empty(t, same.WeightChanges)
	assert.False(t, same.ConfigChanged)
	assert.False(t, same.VisibilityChange)
}
