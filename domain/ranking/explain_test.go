package ranking

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"feedrank/domain/core/valueobjects"
)

func TestExplain_OrdersByContribution(t *testing.T) {
	// Arrange
	result := ScoreResult{
		Score: 0.93,
		Signals: []valueobjects.Signal{
			valueobjects.NewSignal("time_recency", 0.9, 0.1, ""),
			valueobjects.NewSignal("follow_level", 1.0, 0.4, ""),
			valueobjects.NewSignal("mutual_connections", 0.5, 0.2, ""),
			valueobjects.NewSignal("engagement_history", 0.6, 0.4, ""),
		},
	}

	// Act
	explanation := Explain("post-1", result, "alg-1", "Social", 3)

	// Assert
	require.Len(t, explanation.TopSignals, 3)
	assert.Equal(t, "follow_level", explanation.TopSignals[0].Name)
	assert.Equal(t, "engagement_history", explanation.TopSignals[1].Name)
	assert.Equal(t, "mutual_connections", explanation.TopSignals[2].Name)
	for i := 1; i < len(explanation.TopSignals); i++ {
		assert.GreaterOrEqual(t, explanation.TopSignals[i-1].Contribution(), explanation.TopSignals[i].Contribution())
	}

	assert.Equal(t, "post-1", explanation.PostID)
	assert.Equal(t, 0.93, explanation.TotalScore)
	assert.True(t, strings.HasPrefix(explanation.Summary, "follow_level"))
	assert.Less(t,
		strings.Index(explanation.Summary, "follow_level"),
		strings.Index(explanation.Summary, "engagement_history"))
	assert.NotContains(t, explanation.Summary, "time_recency")
}

func TestExplain_EmptySignals(t *testing.T) {
	explanation := Explain("post-1", ScoreResult{Explanation: "Sign in first."}, "alg-1", "Social", 0)

	assert.Empty(t, explanation.TopSignals)
	assert.Contains(t, explanation.Summary, "No strong ranking signals")
	assert.Contains(t, explanation.Summary, "Sign in first.")
}

func TestTopSignals_DoesNotMutateInput(t *testing.T) {
	signals := []valueobjects.Signal{
		valueobjects.NewSignal("b", 0.1, 1, ""),
		valueobjects.NewSignal("a", 0.9, 1, ""),
	}

	top := TopSignals(signals, 5)

	assert.Equal(t, "a", top[0].Name)
	assert.Equal(t, "b", signals[0].Name)
}
