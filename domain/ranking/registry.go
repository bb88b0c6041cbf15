package ranking

import (
	"sync"

	"feedrank/domain/core/valueobjects"
)

// Factory builds a strategy from an algorithm's weights and tunables
type Factory func(weights valueobjects.WeightConfig, cfg valueobjects.AlgorithmConfig) Strategy

// Definition is the subset of an algorithm the registry dispatches on
type Definition struct {
	Slug               string
	WeightConfig       valueobjects.WeightConfig
	AlgorithmConfig    valueobjects.AlgorithmConfig
	SignalDescriptions map[string]string
}

// Registry maps algorithm slugs to strategy factories
type Registry struct {
	mu              sync.RWMutex
	factories       map[string]Factory
	weightedEnabled bool
}

// NewRegistry creates a registry with the built-in strategies registered.
// When weighted is true, definitions with an unrecognized slug but a weight
// config run on the data-driven strategy instead of falling back.
func NewRegistry(weighted bool) *Registry {
	r := &Registry{
		factories:       make(map[string]Factory),
		weightedEnabled: weighted,
	}
	r.Register(SlugChronological, NewChronological)
	r.Register(SlugSocial, NewSocial)
	r.Register(SlugQuality, NewQuality)
	return r
}

// Register adds or replaces the factory for a slug
func (r *Registry) Register(slug string, factory Factory) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.factories[slug] = factory
}

// Resolve returns the strategy for a definition. Unknown slugs without a
// usable weight config fall back to Chronological.
func (r *Registry) Resolve(def Definition) Strategy {
	r.mu.RLock()
	factory, ok := r.factories[def.Slug]
	weighted := r.weightedEnabled
	r.mu.RUnlock()

	if ok {
		return factory(def.WeightConfig, def.AlgorithmConfig)
	}
	if weighted && len(def.WeightConfig) > 0 && def.WeightConfig.Validate() == nil {
		w := NewWeighted(def.WeightConfig, def.AlgorithmConfig).(*Weighted)
		return w.WithDescriptions(def.Slug, def.SignalDescriptions)
	}
	return NewChronological(nil, nil)
}

// Default returns the strategy used when nothing else resolves
func (r *Registry) Default() Strategy {
	return r.Resolve(Definition{Slug: SlugChronological})
}
