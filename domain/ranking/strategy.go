package ranking

import (
	"context"

	"feedrank/domain/core/valueobjects"
)

// Built-in strategy slugs
const (
	SlugChronological = "chronological"
	SlugSocial        = "social"
	SlugQuality       = "quality"
	SlugWeighted      = "weighted"
)

// ScoreResult is one item's score and the signal trace that produced it
type ScoreResult struct {
	Score       float64               `json:"score"`
	Signals     []valueobjects.Signal `json:"signals"`
	Explanation string                `json:"explanation,omitempty"`
}

// Strategy scores a single content item.
// Implementations must not mutate the item and must be safe for concurrent use.
type Strategy interface {
	Slug() string
	CalculateScore(ctx context.Context, item valueobjects.ContentItem, sc ScoringContext) ScoreResult
}

// Total sums every signal's contribution
func Total(signals []valueobjects.Signal) float64 {
	total := 0.0
	for _, s := range signals {
		total += s.Contribution()
	}
	return total
}
