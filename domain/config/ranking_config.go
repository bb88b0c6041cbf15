package config

import "time"

// RankingConfig holds all configurable ranking rules and limits
type RankingConfig struct {
	// Candidate selection
	CandidateLimit  int
	DefaultPageSize int
	MaxPageSize     int

	// Signal windows
	DecayMaxAge         time.Duration
	ChronologicalWindow time.Duration

	// Explanations
	ExplanationTopSignals int

	// Scoring
	ScoringConcurrency int

	// Catalog
	DefaultAlgorithmSlug string
	MaxCatalogResults    int
	MaxSlugLength        int
	MaxNameLength        int
	MinRating            int
	MaxRating            int
	MaxRevisions         int

	// Caching
	ActiveAlgorithmTTL time.Duration

	// Feature flags
	EnableWeightedStrategy bool
	EnableExplanations     bool
}

// DefaultRankingConfig returns the default ranking configuration
func DefaultRankingConfig() *RankingConfig {
	return &RankingConfig{
		CandidateLimit:  100,
		DefaultPageSize: 20,
		MaxPageSize:     100,

		DecayMaxAge:         168 * time.Hour,
		ChronologicalWindow: 7 * 24 * time.Hour,

		ExplanationTopSignals: 3,

		ScoringConcurrency: 8,

		DefaultAlgorithmSlug: "chronological",
		MaxCatalogResults:    50,
		MaxSlugLength:        64,
		MaxNameLength:        120,
		MinRating:            1,
		MaxRating:            5,
		MaxRevisions:         50,

		ActiveAlgorithmTTL: time.Minute,

		EnableWeightedStrategy: true,
		EnableExplanations:     true,
	}
}

// ProductionRankingConfig returns production-specific configuration
func ProductionRankingConfig() *RankingConfig {
	cfg := DefaultRankingConfig()
	cfg.ScoringConcurrency = 16
	cfg.ActiveAlgorithmTTL = 5 * time.Minute
	return cfg
}

// DevelopmentRankingConfig returns development-specific configuration
func DevelopmentRankingConfig() *RankingConfig {
	cfg := DefaultRankingConfig()
	cfg.ScoringConcurrency = 4
	cfg.ActiveAlgorithmTTL = 5 * time.Second
	return cfg
}

// LoadRankingConfig loads ranking configuration based on environment
func LoadRankingConfig(environment string) *RankingConfig {
	switch environment {
	case "production":
		return ProductionRankingConfig()
	case "development":
		return DevelopmentRankingConfig()
	default:
		return DefaultRankingConfig()
	}
}

// ClampPageSize normalizes a requested page size into [1, MaxPageSize]
func (c *RankingConfig) ClampPageSize(limit int) int {
	if limit <= 0 {
		return c.DefaultPageSize
	}
	if limit > c.MaxPageSize {
		return c.MaxPageSize
	}
	return limit
}
