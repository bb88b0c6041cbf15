package entities

import (
	"strings"
	"time"

	"feedrank/domain/core/valueobjects"
	"feedrank/domain/events"
	pkgerrors "feedrank/pkg/errors"
)

// InitialVersion is the semantic version assigned to a newly created algorithm
const InitialVersion = "1.0.0"

// Algorithm is a ranking algorithm definition: identity, authorship, visibility and
// the declarative weights that drive scoring.
// Fields are private; mutation goes through methods that enforce ownership rules.
type Algorithm struct {
	id                 valueobjects.AlgorithmID
	name               string
	slug               string
	description        string
	categorySlug       string
	authorID           string
	isOfficial         bool
	isPublic           bool
	version            string
	weightConfig       valueobjects.WeightConfig
	signalDescriptions map[string]string
	algorithmConfig    valueobjects.AlgorithmConfig
	installCount       int
	averageRating      float64
	ratingCount        int
	createdAt          time.Time
	updatedAt          time.Time

	events []events.DomainEvent
}

// AlgorithmSnapshot is the flat, exported form of an Algorithm used for
// persistence and transport
type AlgorithmSnapshot struct {
	ID                 string                       `json:"id"`
	Name               string                       `json:"name"`
	Slug               string                       `json:"slug"`
	Description        string                       `json:"description"`
	CategorySlug       string                       `json:"categorySlug,omitempty"`
	AuthorID           string                       `json:"authorId,omitempty"`
	IsOfficial         bool                         `json:"isOfficial"`
	IsPublic           bool                         `json:"isPublic"`
	Version            string                       `json:"version"`
	WeightConfig       valueobjects.WeightConfig    `json:"weightConfig"`
	SignalDescriptions map[string]string            `json:"signalDescriptions,omitempty"`
	AlgorithmConfig    valueobjects.AlgorithmConfig `json:"algorithmConfig,omitempty"`
	InstallCount       int                          `json:"installCount"`
	AverageRating      float64                      `json:"averageRating"`
	RatingCount        int                          `json:"ratingCount"`
	CreatedAt          time.Time                    `json:"createdAt"`
	UpdatedAt          time.Time                    `json:"updatedAt"`
}

// AlgorithmDefinition carries the user-editable parts of an algorithm
type AlgorithmDefinition struct {
	Name               string
	Slug               string
	Description        string
	CategorySlug       string
	IsPublic           bool
	WeightConfig       valueobjects.WeightConfig
	SignalDescriptions map[string]string
	AlgorithmConfig    valueobjects.AlgorithmConfig
}

// NewAlgorithm creates a user-authored algorithm. Callers may pre-generate the id.
func NewAlgorithm(id valueobjects.AlgorithmID, authorID string, def AlgorithmDefinition, now time.Time) (*Algorithm, error) {
	if id.IsZero() {
		id = valueobjects.NewAlgorithmID()
	}
	if authorID == "" {
		return nil, pkgerrors.NewValidationError("authorID cannot be empty")
	}
	if err := def.WeightConfig.Validate(); err != nil {
		return nil, pkgerrors.NewValidationError(err.Error()).WithCode(pkgerrors.CodeInvalidWeights)
	}

	a := newFromDefinition(id, def, now)
	a.authorID = authorID
	a.addEvent(events.NewAlgorithmCreated(a.id.String(), authorID, a.slug, a.isPublic, now))
	return a, nil
}

// NewOfficialAlgorithm creates a platform-owned algorithm with a stable id.
// Official algorithms are always public and cannot be edited or deleted by users.
func NewOfficialAlgorithm(id valueobjects.AlgorithmID, def AlgorithmDefinition, now time.Time) (*Algorithm, error) {
	if id.IsZero() {
		return nil, pkgerrors.NewValidationError("official algorithm requires an id")
	}
	if err := def.WeightConfig.Validate(); err != nil {
		return nil, pkgerrors.NewValidationError(err.Error()).WithCode(pkgerrors.CodeInvalidWeights)
	}

	a := newFromDefinition(id, def, now)
	a.isOfficial = true
	a.isPublic = true
	return a, nil
}

func newFromDefinition(id valueobjects.AlgorithmID, def AlgorithmDefinition, now time.Time) *Algorithm {
	return &Algorithm{
		id:                 id,
		name:               strings.TrimSpace(def.Name),
		slug:               NormalizeSlug(def.Slug),
		description:        strings.TrimSpace(def.Description),
		categorySlug:       def.CategorySlug,
		isPublic:           def.IsPublic,
		version:            InitialVersion,
		weightConfig:       def.WeightConfig.Clone(),
		signalDescriptions: cloneStrings(def.SignalDescriptions),
		algorithmConfig:    def.AlgorithmConfig.Clone(),
		createdAt:          now,
		updatedAt:          now,
		events:             []events.DomainEvent{},
	}
}

// ReconstructAlgorithm rebuilds an algorithm from persisted data without raising events
func ReconstructAlgorithm(s AlgorithmSnapshot) (*Algorithm, error) {
	id, err := valueobjects.NewAlgorithmIDFromString(s.ID)
	if err != nil {
		return nil, pkgerrors.NewValidationError(err.Error())
	}
	version := s.Version
	if version == "" {
		version = InitialVersion
	}
	return &Algorithm{
		id:                 id,
		name:               s.Name,
		slug:               s.Slug,
		description:        s.Description,
		categorySlug:       s.CategorySlug,
		authorID:           s.AuthorID,
		isOfficial:         s.IsOfficial,
		isPublic:           s.IsPublic,
		version:            version,
		weightConfig:       s.WeightConfig.Clone(),
		signalDescriptions: cloneStrings(s.SignalDescriptions),
		algorithmConfig:    s.AlgorithmConfig.Clone(),
		installCount:       s.InstallCount,
		averageRating:      s.AverageRating,
		ratingCount:        s.RatingCount,
		createdAt:          s.CreatedAt,
		updatedAt:          s.UpdatedAt,
		events:             []events.DomainEvent{},
	}, nil
}

// Snapshot returns a detached copy of the algorithm's state
func (a *Algorithm) Snapshot() AlgorithmSnapshot {
	return AlgorithmSnapshot{
		ID:                 a.id.String(),
		Name:               a.name,
		Slug:               a.slug,
		Description:        a.description,
		CategorySlug:       a.categorySlug,
		AuthorID:           a.authorID,
		IsOfficial:         a.isOfficial,
		IsPublic:           a.isPublic,
		Version:            a.version,
		WeightConfig:       a.weightConfig.Clone(),
		SignalDescriptions: cloneStrings(a.signalDescriptions),
		AlgorithmConfig:    a.algorithmConfig.Clone(),
		InstallCount:       a.installCount,
		AverageRating:      a.averageRating,
		RatingCount:        a.ratingCount,
		CreatedAt:          a.createdAt,
		UpdatedAt:          a.updatedAt,
	}
}

// ID returns the algorithm's unique identifier
func (a *Algorithm) ID() valueobjects.AlgorithmID { return a.id }

// Name returns the display name
func (a *Algorithm) Name() string { return a.name }

// Slug returns the unique URL-safe identifier
func (a *Algorithm) Slug() string { return a.slug }

func (a *Algorithm) Description() string    { return a.description }
func (a *Algorithm) CategorySlug() string   { return a.categorySlug }
func (a *Algorithm) AuthorID() string       { return a.authorID }
func (a *Algorithm) IsOfficial() bool       { return a.isOfficial }
func (a *Algorithm) IsPublic() bool         { return a.isPublic }
func (a *Algorithm) Version() string        { return a.version }
func (a *Algorithm) InstallCount() int      { return a.installCount }
func (a *Algorithm) AverageRating() float64 { return a.averageRating }
func (a *Algorithm) RatingCount() int       { return a.ratingCount }
func (a *Algorithm) CreatedAt() time.Time   { return a.createdAt }
func (a *Algorithm) UpdatedAt() time.Time   { return a.updatedAt }

// WeightConfig returns a copy of the signal weights
func (a *Algorithm) WeightConfig() valueobjects.WeightConfig {
	return a.weightConfig.Clone()
}

// AlgorithmConfig returns a copy of the tunables
func (a *Algorithm) AlgorithmConfig() valueobjects.AlgorithmConfig {
	return a.algorithmConfig.Clone()
}

// SignalDescriptions returns a copy of the human-readable signal descriptions
func (a *Algorithm) SignalDescriptions() map[string]string {
	return cloneStrings(a.signalDescriptions)
}

// IsVisibleTo reports whether the viewer may see this algorithm.
// Private algorithms are visible only to their author.
func (a *Algorithm) IsVisibleTo(viewerID string) bool {
	return a.isPublic || (viewerID != "" && viewerID == a.authorID)
}

// CanBeEditedBy reports whether userID may update or delete this algorithm
func (a *Algorithm) CanBeEditedBy(userID string) bool {
	return !a.isOfficial && userID != "" && userID == a.authorID
}

// CheckEditableBy returns the authorization error for a non-editable algorithm
func (a *Algorithm) CheckEditableBy(userID string) error {
	if a.isOfficial {
		return pkgerrors.NewForbiddenError("official algorithms cannot be modified").
			WithCode(pkgerrors.CodeOfficialAlgorithm)
	}
	if userID == "" || userID != a.authorID {
		return pkgerrors.NewForbiddenError("only the author can modify this algorithm").
			WithCode(pkgerrors.CodeNotAlgorithmOwner)
	}
	return nil
}

// ApplyUpdate replaces the editable definition and moves to newVersion.
// The caller is responsible for snapshotting the previous state as a revision.
func (a *Algorithm) ApplyUpdate(editorID string, def AlgorithmDefinition, newVersion, notes string, now time.Time) error {
	if err := a.CheckEditableBy(editorID); err != nil {
		return err
	}
	if err := def.WeightConfig.Validate(); err != nil {
		return pkgerrors.NewValidationError(err.Error()).WithCode(pkgerrors.CodeInvalidWeights)
	}

	oldVersion := a.version
	a.name = strings.TrimSpace(def.Name)
	a.slug = NormalizeSlug(def.Slug)
	a.description = strings.TrimSpace(def.Description)
	a.categorySlug = def.CategorySlug
	a.isPublic = def.IsPublic
	a.weightConfig = def.WeightConfig.Clone()
	a.signalDescriptions = cloneStrings(def.SignalDescriptions)
	a.algorithmConfig = def.AlgorithmConfig.Clone()
	a.version = newVersion
	a.updatedAt = now

	a.addEvent(events.NewAlgorithmUpdated(a.id.String(), editorID, oldVersion, newVersion, notes, now))
	return nil
}

// Definition returns the editable parts of the algorithm
func (a *Algorithm) Definition() AlgorithmDefinition {
	return AlgorithmDefinition{
		Name:               a.name,
		Slug:               a.slug,
		Description:        a.description,
		CategorySlug:       a.categorySlug,
		IsPublic:           a.isPublic,
		WeightConfig:       a.weightConfig.Clone(),
		SignalDescriptions: cloneStrings(a.signalDescriptions),
		AlgorithmConfig:    a.algorithmConfig.Clone(),
	}
}

// SetInstallCount records the derived install count
func (a *Algorithm) SetInstallCount(n int) {
	if n < 0 {
		n = 0
	}
	a.installCount = n
}

// MatchesSearch reports whether term appears in the name, slug or description (case-insensitive)
func (a *Algorithm) MatchesSearch(term string) bool {
	term = strings.ToLower(strings.TrimSpace(term))
	if term == "" {
		return true
	}
	return strings.Contains(strings.ToLower(a.name), term) ||
		strings.Contains(a.slug, term) ||
		strings.Contains(strings.ToLower(a.description), term)
}

// GetUncommittedEvents returns events that haven't been persisted
func (a *Algorithm) GetUncommittedEvents() []events.DomainEvent {
	return a.events
}

// MarkEventsAsCommitted clears the uncommitted events
func (a *Algorithm) MarkEventsAsCommitted() {
	a.events = []events.DomainEvent{}
}

func (a *Algorithm) addEvent(event events.DomainEvent) {
	a.events = append(a.events, event)
}

// NormalizeSlug lowercases and trims a slug
func NormalizeSlug(slug string) string {
	return strings.ToLower(strings.TrimSpace(slug))
}

func cloneStrings(m map[string]string) map[string]string {
	if m == nil {
		return map[string]string{}
	}
	out := make(map[string]string, len(m))
	for k, v := range m {
		out[k] = v
	}
	return out
}
