package ranking

import (
	"context"
	"math"
	"time"

	"feedrank/domain/core/valueobjects"
)

// ChronologicalWindow is the age at which recency reaches zero
const ChronologicalWindow = 7 * 24 * time.Hour

// Chronological ranks purely by recency: 1 for a brand-new item, falling
// linearly to 0 at the end of the window
type Chronological struct {
	window time.Duration
}

// NewChronological creates the recency strategy.
// A "window_hours" tunable overrides the seven-day window.
func NewChronological(_ valueobjects.WeightConfig, cfg valueobjects.AlgorithmConfig) Strategy {
	window := ChronologicalWindow
	if h := cfg.Float("window_hours", 0); h > 0 {
		window = time.Duration(h * float64(time.Hour))
	}
	return &Chronological{window: window}
}

func (c *Chronological) Slug() string { return SlugChronological }

func (c *Chronological) CalculateScore(_ context.Context, item valueobjects.ContentItem, sc ScoringContext) ScoreResult {
	elapsed := item.Age(sc.now())
	recency := math.Max(0, 1-float64(elapsed)/float64(c.window))

	signal := valueobjects.NewSignal(valueobjects.SignalTimeRecency, recency, 1.0, "How recently the post was published")
	return ScoreResult{
		Score:   signal.Contribution(),
		Signals: []valueobjects.Signal{signal},
	}
}
