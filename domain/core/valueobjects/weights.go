package valueobjects

import (
	"encoding/json"
	"fmt"
	"math"
	"sort"
	"strconv"
)

// WeightConfig maps a signal name to its non-negative weight
type WeightConfig map[string]float64

// Get returns the configured weight or def when the signal is not configured
func (w WeightConfig) Get(name string, def float64) float64 {
	if v, ok := w[name]; ok {
		return v
	}
	return def
}

// Sum returns the total of all weights
func (w WeightConfig) Sum() float64 {
	total := 0.0
	for _, v := range w {
		total += v
	}
	return total
}

// Names returns the configured signal names in sorted order
func (w WeightConfig) Names() []string {
	names := make([]string, 0, len(w))
	for name := range w {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// Validate rejects negative and non-finite weights. Weights are not required to sum to 1.
func (w WeightConfig) Validate() error {
	for name, v := range w {
		if name == "" {
			return fmt.Errorf("weight config contains an empty signal name")
		}
		if math.IsNaN(v) || math.IsInf(v, 0) {
			return fmt.Errorf("weight for %q must be a finite number", name)
		}
		if v < 0 {
			return fmt.Errorf("weight for %q must be non-negative, got %g", name, v)
		}
	}
	return nil
}

// Clone returns an independent copy
func (w WeightConfig) Clone() WeightConfig {
	out := make(WeightConfig, len(w))
	for k, v := range w {
		out[k] = v
	}
	return out
}

// AlgorithmConfig is the opaque bag of tunables (decay rates, boosts, thresholds)
type AlgorithmConfig map[string]interface{}

// Float reads a numeric tunable, accepting any JSON/YAML/DynamoDB numeric representation
func (c AlgorithmConfig) Float(key string, def float64) float64 {
	raw, ok := c[key]
	if !ok || raw == nil {
		return def
	}
	if f, ok := toFloat(raw); ok {
		return f
	}
	return def
}

// Strings reads a list-of-strings tunable
func (c AlgorithmConfig) Strings(key string) []string {
	raw, ok := c[key]
	if !ok {
		return nil
	}
	switch v := raw.(type) {
	case []string:
		return append([]string(nil), v...)
	case []interface{}:
		out := make([]string, 0, len(v))
		for _, item := range v {
			if s, ok := item.(string); ok {
				out = append(out, s)
			}
		}
		return out
	default:
		return nil
	}
}

// Clone returns a shallow copy
func (c AlgorithmConfig) Clone() AlgorithmConfig {
	out := make(AlgorithmConfig, len(c))
	for k, v := range c {
		out[k] = v
	}
	return out
}

// Merge splits per-user overrides: keys naming a configured signal override that
// signal's weight, every other key overrides the matching tunable.
func Merge(weights WeightConfig, cfg AlgorithmConfig, overrides map[string]interface{}) (WeightConfig, AlgorithmConfig) {
	mergedWeights := weights.Clone()
	mergedConfig := cfg.Clone()
	for key, raw := range overrides {
		if _, isSignal := weights[key]; isSignal {
			if f, ok := OverrideWeight(raw); ok {
				mergedWeights[key] = f
			}
			continue
		}
		mergedConfig[key] = raw
	}
	return mergedWeights, mergedConfig
}

// OverrideWeight reads a per-user weight override. Only finite non-negative numbers are accepted.
func OverrideWeight(raw interface{}) (float64, bool) {
	f, ok := toFloat(raw)
	if !ok || math.IsNaN(f) || math.IsInf(f, 0) || f < 0 {
		return 0, false
	}
	return f, true
}

func toFloat(raw interface{}) (float64, bool) {
	switch v := raw.(type) {
	case float64:
		return v, true
	case float32:
		return float64(v), true
	case int:
		return float64(v), true
	case int64:
		return float64(v), true
	case int32:
		return float64(v), true
	case json.Number:
		f, err := v.Float64()
		return f, err == nil
	case string:
		f, err := strconv.ParseFloat(v, 64)
		return f, err == nil
	default:
		return 0, false
	}
}
