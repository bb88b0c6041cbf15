package valueobjects

import "math"

// Well-known signal names
const (
	SignalTimeRecency       = "time_recency"
	SignalFollowLevel       = "follow_level"
	SignalEngagementHistory = "engagement_history"
	SignalMutualConnections = "mutual_connections"
	SignalContentQuality    = "content_quality"
	SignalClickbaitFree     = "clickbait_free"
	SignalReadingTime       = "reading_time"
	SignalSourceCredibility = "source_credibility"
	SignalPopularity        = "popularity"
	SignalHashtagMatch      = "hashtag_match"
)

// Signal is one weighted input to an item's score
type Signal struct {
	Name        string  `json:"name"`
	Value       float64 `json:"value"`
	Weight      float64 `json:"weight"`
	Description string  `json:"description"`
}

// NewSignal builds a signal with the value clamped to [0,1]. A negative or
// non-finite weight becomes 0.
func NewSignal(name string, value, weight float64, description string) Signal {
	return Signal{
		Name:        name,
		Value:       Clamp01(value),
		Weight:      nonNegative(weight),
		Description: description,
	}
}

// Contribution is value × weight
func (s Signal) Contribution() float64 {
	return s.Value * s.Weight
}

// Clamp01 clamps v into [0,1]; NaN becomes 0
func Clamp01(v float64) float64 {
	if math.IsNaN(v) || v < 0 {
		return 0
	}
	if v > 1 {
		return 1
	}
	return v
}

func nonNegative(v float64) float64 {
	if math.IsNaN(v) || math.IsInf(v, 0) || v < 0 {
		return 0
	}
	return v
}
