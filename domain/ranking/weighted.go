package ranking

import (
	"context"
	"fmt"
	"math"
	"sort"
	"strings"

	"feedrank/domain/core/valueobjects"
)

// SignalFunc computes one named signal's raw value for an item
type SignalFunc func(ctx context.Context, item valueobjects.ContentItem, sc ScoringContext, cfg valueobjects.AlgorithmConfig) float64

type signalSpec struct {
	description string
	compute     SignalFunc
}

// catalog lists every signal a data-driven definition may reference
var catalog = map[string]signalSpec{
	valueobjects.SignalTimeRecency: {
		description: "How recently the post was published",
		compute: func(_ context.Context, item valueobjects.ContentItem, sc ScoringContext, cfg valueobjects.AlgorithmConfig) float64 {
			return TimeDecay(item.CreatedAt, sc.now(), hours(cfg.Float("max_age_hours", DefaultMaxAge.Hours())))
		},
	},
	valueobjects.SignalFollowLevel: {
		description: "You follow this author",
		compute: func(ctx context.Context, item valueobjects.ContentItem, sc ScoringContext, _ valueobjects.AlgorithmConfig) float64 {
			return FollowLevel(ctx, sc, item.AuthorID)
		},
	},
	valueobjects.SignalEngagementHistory: {
		description: "How often you engage with this author",
		compute: func(ctx context.Context, item valueobjects.ContentItem, sc ScoringContext, _ valueobjects.AlgorithmConfig) float64 {
			return EngagementHistory(ctx, sc, item.AuthorID)
		},
	},
	valueobjects.SignalMutualConnections: {
		description: "People you follow that this author also follows",
		compute: func(ctx context.Context, item valueobjects.ContentItem, sc ScoringContext, _ valueobjects.AlgorithmConfig) float64 {
			return MutualConnections(ctx, sc, item.AuthorID)
		},
	},
	valueobjects.SignalContentQuality: {
		description: "Length, structure and vocabulary of the post",
		compute: func(_ context.Context, item valueobjects.ContentItem, _ ScoringContext, _ valueobjects.AlgorithmConfig) float64 {
			return AssessContentQuality(item)
		},
	},
	valueobjects.SignalClickbaitFree: {
		description: "Free of sensational phrasing",
		compute: func(_ context.Context, item valueobjects.ContentItem, _ ScoringContext, _ valueobjects.AlgorithmConfig) float64 {
			return 1 - DetectClickbait(item.Body)
		},
	},
	valueobjects.SignalReadingTime: {
		description: "Depth measured by reading time",
		compute: func(_ context.Context, item valueobjects.ContentItem, _ ScoringContext, cfg valueobjects.AlgorithmConfig) float64 {
			ideal := cfg.Float("ideal_reading_minutes", 5)
			if ideal <= 0 {
				ideal = 5
			}
			return math.Min(ReadingTimeMinutes(item.Body)/ideal, 1)
		},
	},
	valueobjects.SignalSourceCredibility: {
		description: "Author verification and account history",
		compute: func(_ context.Context, item valueobjects.ContentItem, sc ScoringContext, _ valueobjects.AlgorithmConfig) float64 {
			return SourceCredibility(item.Author, sc.now())
		},
	},
	valueobjects.SignalPopularity: {
		description: "Likes and comments on the post",
		compute: func(_ context.Context, item valueobjects.ContentItem, _ ScoringContext, cfg valueobjects.AlgorithmConfig) float64 {
			saturation := cfg.Float("popularity_saturation", 100)
			if saturation <= 0 {
				saturation = 100
			}
			commentBoost := cfg.Float("comment_boost", 2)
			return math.Min(float64(item.LikeCount)+commentBoost*float64(item.CommentCount), saturation) / saturation
		},
	},
	valueobjects.SignalHashtagMatch: {
		description: "Mentions hashtags this feed boosts",
		compute: func(_ context.Context, item valueobjects.ContentItem, _ ScoringContext, cfg valueobjects.AlgorithmConfig) float64 {
			boosted := cfg.Strings("boost_hashtags")
			if len(boosted) == 0 {
				return 0
			}
			want := make(map[string]bool, len(boosted))
			for _, tag := range boosted {
				want[strings.ToLower(strings.TrimPrefix(tag, "#"))] = true
			}
			matched := make(map[string]bool)
			for tag := range ExtractHashtags(item.Body) {
				if want[tag] {
					matched[tag] = true
				}
			}
			return float64(len(matched)) / float64(len(want))
		},
	},
}

// KnownSignals returns the names a weight_config may reference
func KnownSignals() []string {
	names := make([]string, 0, len(catalog))
	for name := range catalog {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// Weighted is driven entirely by data: every configured signal is computed from
// the catalog and combined as a weighted sum. Weights are used as given.
type Weighted struct {
	slug         string
	weights      valueobjects.WeightConfig
	config       valueobjects.AlgorithmConfig
	descriptions map[string]string
}

// NewWeighted creates a data-driven strategy
func NewWeighted(weights valueobjects.WeightConfig, cfg valueobjects.AlgorithmConfig) Strategy {
	return &Weighted{
		slug:    SlugWeighted,
		weights: weights.Clone(),
		config:  cfg.Clone(),
	}
}

// WithDescriptions returns a copy using author-supplied signal descriptions
func (w *Weighted) WithDescriptions(slug string, descriptions map[string]string) *Weighted {
	cp := *w
	cp.slug = slug
	cp.descriptions = descriptions
	return &cp
}

func (w *Weighted) Slug() string { return w.slug }

func (w *Weighted) CalculateScore(ctx context.Context, item valueobjects.ContentItem, sc ScoringContext) ScoreResult {
	signals := make([]valueobjects.Signal, 0, len(w.weights))
	var unknown []string

	for _, name := range w.weights.Names() {
		def, ok := catalog[name]
		if !ok {
			unknown = append(unknown, name)
			signals = append(signals, valueobjects.NewSignal(name, 0, w.weights[name], "Unsupported signal"))
			continue
		}
		desc := def.description
		if d, ok := w.descriptions[name]; ok && d != "" {
			desc = d
		}
		value := def.compute(ctx, item, sc, w.config)
		signals = append(signals, valueobjects.NewSignal(name, value, w.weights[name], desc))
	}

	result := ScoreResult{
		Score:   Total(signals),
		Signals: signals,
	}
	if len(unknown) > 0 {
		result.Explanation = fmt.Sprintf("Ignored unsupported signals: %s.", strings.Join(unknown, ", "))
	}
	return result
}
