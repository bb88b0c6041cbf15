package ranking

import (
	"context"
	"math"
	"strings"
	"time"

	"feedrank/domain/core/valueobjects"
)

// Quality ranks by substance: content heuristics, absence of clickbait,
// reading depth and author credibility
type Quality struct {
	qualityWeight     float64
	clickbaitWeight   float64
	readingWeight     float64
	credibilityWeight float64
	idealReadMinutes  float64
}

// NewQuality creates the quality strategy with weights from the definition
func NewQuality(weights valueobjects.WeightConfig, cfg valueobjects.AlgorithmConfig) Strategy {
	ideal := cfg.Float("ideal_reading_minutes", 5)
	if ideal <= 0 {
		ideal = 5
	}
	return &Quality{
		qualityWeight:     weights.Get(valueobjects.SignalContentQuality, 0.4),
		clickbaitWeight:   weights.Get(valueobjects.SignalClickbaitFree, 0.3),
		readingWeight:     weights.Get(valueobjects.SignalReadingTime, 0.2),
		credibilityWeight: weights.Get(valueobjects.SignalSourceCredibility, 0.1),
		idealReadMinutes:  ideal,
	}
}

func (q *Quality) Slug() string { return SlugQuality }

func (q *Quality) CalculateScore(_ context.Context, item valueobjects.ContentItem, sc ScoringContext) ScoreResult {
	quality := AssessContentQuality(item)
	clickbait := DetectClickbait(item.Body)
	reading := math.Min(ReadingTimeMinutes(item.Body)/q.idealReadMinutes, 1)
	credibility := SourceCredibility(item.Author, sc.now())

	signals := []valueobjects.Signal{
		valueobjects.NewSignal(valueobjects.SignalContentQuality, quality, q.qualityWeight,
			"Length, structure and vocabulary of the post"),
		valueobjects.NewSignal(valueobjects.SignalClickbaitFree, 1-clickbait, q.clickbaitWeight,
			"Free of sensational phrasing"),
		valueobjects.NewSignal(valueobjects.SignalReadingTime, reading, q.readingWeight,
			"Depth measured by reading time"),
		valueobjects.NewSignal(valueobjects.SignalSourceCredibility, credibility, q.credibilityWeight,
			"Author verification and account history"),
	}

	return ScoreResult{
		Score:       Total(signals),
		Signals:     signals,
		Explanation: qualityExplanation(quality, clickbait, reading, credibility),
	}
}

func qualityExplanation(quality, clickbait, reading, credibility float64) string {
	var parts []string
	switch {
	case quality > 0.7:
		parts = append(parts, "High-quality, substantive content.")
	case quality < 0.4:
		parts = append(parts, "Short or low-effort content.")
	}
	if clickbait > 0.5 {
		parts = append(parts, "Uses sensational phrasing.")
	} else if clickbait == 0 {
		parts = append(parts, "No clickbait detected.")
	}
	if reading >= 0.6 {
		parts = append(parts, "An in-depth read.")
	}
	if credibility >= 0.8 {
		parts = append(parts, "From a credible, established source.")
	}
	if len(parts) == 0 {
		return "Average quality content."
	}
	return strings.Join(parts, " ")
}

func hours(h float64) time.Duration {
	return time.Duration(h * float64(time.Hour))
}
