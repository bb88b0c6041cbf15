package validators

import (
	"fmt"
	"math"
	"regexp"
	"strings"

	"feedrank/domain/config"
	"feedrank/domain/core/entities"
	"feedrank/domain/core/valueobjects"
	"feedrank/pkg/errors"
)

// AlgorithmValidator validates algorithm definitions against catalog rules
type AlgorithmValidator struct {
	nameMaxLength      int
	slugMaxLength      int
	descMaxLength      int
	maxSignals         int
	maxConfigKeys      int
	weightSumTolerance float64
	slugPattern        *regexp.Regexp
	reservedSlugs      map[string]bool
}

// NewAlgorithmValidator creates a validator with limits from the ranking config
func NewAlgorithmValidator(cfg *config.RankingConfig) *AlgorithmValidator {
	if cfg == nil {
		cfg = config.DefaultRankingConfig()
	}
	return &AlgorithmValidator{
		nameMaxLength:      cfg.MaxNameLength,
		slugMaxLength:      cfg.MaxSlugLength,
		descMaxLength:      2000,
		maxSignals:         20,
		maxConfigKeys:      50,
		weightSumTolerance: 0.5,
		slugPattern:        regexp.MustCompile(`^[a-z0-9]+(?:-[a-z0-9]+)*$`),
		reservedSlugs: map[string]bool{
			"active": true,
			"new":    true,
		},
	}
}

// ValidateDefinition checks every editable field and reports all violations at once
func (v *AlgorithmValidator) ValidateDefinition(def entities.AlgorithmDefinition) error {
	problems := make(map[string]interface{})

	name := strings.TrimSpace(def.Name)
	switch {
	case name == "":
		problems["name"] = "name is required"
	case len(name) > v.nameMaxLength:
		problems["name"] = fmt.Sprintf("name exceeds maximum length of %d", v.nameMaxLength)
	}

	if err := v.ValidateSlug(def.Slug); err != nil {
		problems["slug"] = err.Error()
	}

	if len(def.Description) > v.descMaxLength {
		problems["description"] = fmt.Sprintf("description exceeds maximum length of %d", v.descMaxLength)
	}

	if err := v.ValidateWeights(def.WeightConfig); err != nil {
		problems["weight_config"] = err.Error()
	}

	for signal := range def.SignalDescriptions {
		if _, ok := def.WeightConfig[signal]; !ok {
			problems["signal_descriptions"] = fmt.Sprintf("description for unknown signal %q", signal)
			break
		}
	}

	if len(def.AlgorithmConfig) > v.maxConfigKeys {
		problems["algorithm_config"] = fmt.Sprintf("cannot have more than %d config keys", v.maxConfigKeys)
	}

	if len(problems) == 0 {
		return nil
	}

	appErr := errors.NewValidationError("invalid algorithm definition")
	if _, badWeights := problems["weight_config"]; badWeights {
		appErr = appErr.WithCode(errors.CodeInvalidWeights)
	}
	for field, msg := range problems {
		appErr = appErr.WithDetail(field, msg)
	}
	return appErr
}

// ValidateSlug checks slug format and reserved words
func (v *AlgorithmValidator) ValidateSlug(slug string) error {
	slug = entities.NormalizeSlug(slug)
	if slug == "" {
		return fmt.Errorf("slug is required")
	}
	if len(slug) > v.slugMaxLength {
		return fmt.Errorf("slug exceeds maximum length of %d", v.slugMaxLength)
	}
	if !v.slugPattern.MatchString(slug) {
		return fmt.Errorf("slug may only contain lowercase letters, digits and single dashes")
	}
	if v.reservedSlugs[slug] {
		return fmt.Errorf("slug %q is reserved", slug)
	}
	return nil
}

// ValidateCustomConfig checks per-user overrides for an algorithm. Keys naming
// one of its signals must carry a finite non-negative weight.
func (v *AlgorithmValidator) ValidateCustomConfig(weights valueobjects.WeightConfig, custom map[string]interface{}) error {
	if len(custom) > v.maxConfigKeys {
		return errors.NewValidationError(fmt.Sprintf("custom config cannot have more than %d keys", v.maxConfigKeys))
	}

	var appErr *errors.AppError
	for key, raw := range custom {
		if _, isSignal := weights[key]; !isSignal {
			continue
		}
		if _, ok := valueobjects.OverrideWeight(raw); ok {
			continue
		}
		if appErr == nil {
			appErr = errors.NewValidationError("invalid custom config").WithCode(errors.CodeInvalidWeights)
		}
		appErr = appErr.WithDetail(key, "weight override must be a finite non-negative number")
	}
	if appErr == nil {
		return nil
	}
	return appErr
}

// ValidateWeights requires at least one signal and non-negative finite weights
func (v *AlgorithmValidator) ValidateWeights(weights map[string]float64) error {
	if len(weights) == 0 {
		return fmt.Errorf("at least one signal weight is required")
	}
	if len(weights) > v.maxSignals {
		return fmt.Errorf("cannot have more than %d signals", v.maxSignals)
	}
	for name, w := range weights {
		if strings.TrimSpace(name) == "" {
			return fmt.Errorf("signal name cannot be empty")
		}
		if math.IsNaN(w) || math.IsInf(w, 0) || w < 0 {
			return fmt.Errorf("weight for %q must be a non-negative number", name)
		}
	}
	return nil
}

// WeightSumOutOfRange reports whether the weights sum far from 1.
// Such definitions are accepted; callers only log them.
func (v *AlgorithmValidator) WeightSumOutOfRange(weights map[string]float64) (float64, bool) {
	sum := 0.0
	for _, w := range weights {
		sum += w
	}
	return sum, math.Abs(sum-1) > v.weightSumTolerance
}
