package ranking

import (
	"context"

	"feedrank/domain/core/valueobjects"
)

const socialRecencyWeight = 0.1

// Social ranks by the viewer's relationship with the author
type Social struct {
	followWeight     float64
	engagementWeight float64
	mutualWeight     float64
	maxAge           float64
}

// NewSocial creates the social strategy with weights from the definition
func NewSocial(weights valueobjects.WeightConfig, cfg valueobjects.AlgorithmConfig) Strategy {
	return &Social{
		followWeight:     weights.Get(valueobjects.SignalFollowLevel, 0.4),
		engagementWeight: weights.Get(valueobjects.SignalEngagementHistory, 0.4),
		mutualWeight:     weights.Get(valueobjects.SignalMutualConnections, 0.2),
		maxAge:           cfg.Float("max_age_hours", DefaultMaxAge.Hours()),
	}
}

func (s *Social) Slug() string { return SlugSocial }

func (s *Social) CalculateScore(ctx context.Context, item valueobjects.ContentItem, sc ScoringContext) ScoreResult {
	if sc.ViewerID == "" {
		return ScoreResult{
			Score:       0,
			Signals:     []valueobjects.Signal{},
			Explanation: "Sign in to rank posts by your social connections.",
		}
	}

	signals := []valueobjects.Signal{
		valueobjects.NewSignal(valueobjects.SignalFollowLevel,
			FollowLevel(ctx, sc, item.AuthorID), s.followWeight,
			"You follow this author"),
		valueobjects.NewSignal(valueobjects.SignalEngagementHistory,
			EngagementHistory(ctx, sc, item.AuthorID), s.engagementWeight,
			"How often you like or comment on this author's posts"),
		valueobjects.NewSignal(valueobjects.SignalMutualConnections,
			MutualConnections(ctx, sc, item.AuthorID), s.mutualWeight,
			"People you follow that this author also follows"),
		valueobjects.NewSignal(valueobjects.SignalTimeRecency,
			TimeDecay(item.CreatedAt, sc.now(), hours(s.maxAge)), socialRecencyWeight,
			"Recency bonus"),
	}

	return ScoreResult{
		Score:   Total(signals),
		Signals: signals,
	}
}
