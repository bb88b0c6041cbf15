package queries

import (
	"feedrank/application/services"
	"feedrank/domain/core/entities"
	"feedrank/domain/ranking"
	"feedrank/domain/versioning"
	"feedrank/pkg/utils"
)

// GetFeedQuery requests one ranked feed page. ViewerID is empty for anonymous viewers.
type GetFeedQuery struct {
	ViewerID  string `json:"viewer_id"`
	Algorithm string `json:"algorithm" validate:"max=64"`
	Limit     int    `json:"limit" validate:"gte=0,lte=100"`
	Offset    int    `json:"offset" validate:"gte=0"`
	Explain   bool   `json:"explain"`
	TimeOfDay string `json:"time_of_day" validate:"omitempty,oneof=morning afternoon evening night"`
	Location  string `json:"location" validate:"max=128"`
	Device    string `json:"device" validate:"max=64"`
}

// Validate validates the GetFeedQuery
func (q GetFeedQuery) Validate() error {
	return utils.ValidateStruct(q)
}

// ToRequest converts the query into a feed generator request
func (q GetFeedQuery) ToRequest() services.FeedRequest {
	return services.FeedRequest{
		ViewerID:            q.ViewerID,
		AlgorithmSlug:       q.Algorithm,
		Limit:               q.Limit,
		Offset:              q.Offset,
		IncludeExplanations: q.Explain,
		Hints: ranking.Hints{
			TimeOfDay: q.TimeOfDay,
			Location:  q.Location,
			Device:    q.Device,
		},
	}
}

// ListAlgorithmsQuery browses the public catalog
type ListAlgorithmsQuery struct {
	ViewerID     string `json:"viewer_id"`
	Category     string `json:"category" validate:"max=64"`
	OfficialOnly bool   `json:"official"`
	Search       string `json:"search" validate:"max=100"`
	Limit        int    `json:"limit" validate:"gte=0,lte=100"`
}

// Validate validates the ListAlgorithmsQuery
func (q ListAlgorithmsQuery) Validate() error {
	return utils.ValidateStruct(q)
}

// GetAlgorithmQuery fetches one algorithm by slug or id
type GetAlgorithmQuery struct {
	ViewerID string `json:"viewer_id"`
	Ref      string `json:"ref" validate:"required,max=128"`
}

// Validate validates the GetAlgorithmQuery
func (q GetAlgorithmQuery) Validate() error {
	return utils.ValidateStruct(q)
}

// GetActiveAlgorithmQuery resolves the algorithm that ranks the viewer's feed
type GetActiveAlgorithmQuery struct {
	ViewerID string `json:"viewer_id"`
}

// Validate validates the GetActiveAlgorithmQuery
func (q GetActiveAlgorithmQuery) Validate() error {
	return nil
}

// ListRevisionsQuery returns an algorithm's revision history
type ListRevisionsQuery struct {
	ViewerID    string `json:"viewer_id"`
	AlgorithmID string `json:"algorithm_id" validate:"required"`
	Limit       int    `json:"limit" validate:"gte=0,lte=100"`
}

// Validate validates the ListRevisionsQuery
func (q ListRevisionsQuery) Validate() error {
	return utils.ValidateStruct(q)
}

// ListPreferencesQuery returns the user's installed algorithms
type ListPreferencesQuery struct {
	UserID string `json:"user_id" validate:"required"`
}

// Validate validates the ListPreferencesQuery
func (q ListPreferencesQuery) Validate() error {
	return utils.ValidateStruct(q)
}

// AlgorithmView is the read model of an algorithm
type AlgorithmView struct {
	ID                 string                 `json:"id"`
	Name               string                 `json:"name"`
	Slug               string                 `json:"slug"`
	Description        string                 `json:"description"`
	CategorySlug       string                 `json:"categorySlug,omitempty"`
	AuthorID           string                 `json:"authorId,omitempty"`
	IsOfficial         bool                   `json:"isOfficial"`
	IsPublic           bool                   `json:"isPublic"`
	Version            string                 `json:"version"`
	WeightConfig       map[string]float64     `json:"weightConfig"`
	SignalDescriptions map[string]string      `json:"signalDescriptions,omitempty"`
	AlgorithmConfig    map[string]interface{} `json:"algorithmConfig,omitempty"`
	InstallCount       int                    `json:"installCount"`
	AverageRating      float64                `json:"averageRating"`
	RatingCount        int                    `json:"ratingCount"`
	CreatedAt          string                 `json:"createdAt"`
	UpdatedAt          string                 `json:"updatedAt"`
}

// NewAlgorithmView maps an algorithm to its read model
func NewAlgorithmView(a *entities.Algorithm) AlgorithmView {
	return AlgorithmView{
		ID:                 a.ID().String(),
		Name:               a.Name(),
		Slug:               a.Slug(),
		Description:        a.Description(),
		CategorySlug:       a.CategorySlug(),
		AuthorID:           a.AuthorID(),
		IsOfficial:         a.IsOfficial(),
		IsPublic:           a.IsPublic(),
		Version:            a.Version(),
		WeightConfig:       a.WeightConfig(),
		SignalDescriptions: a.SignalDescriptions(),
		AlgorithmConfig:    a.AlgorithmConfig(),
		InstallCount:       a.InstallCount(),
		AverageRating:      a.AverageRating(),
		RatingCount:        a.RatingCount(),
		CreatedAt:          utils.FormatTimestamp(a.CreatedAt()),
		UpdatedAt:          utils.FormatTimestamp(a.UpdatedAt()),
	}
}

// ListAlgorithmsResult is a catalog page
type ListAlgorithmsResult struct {
	Algorithms []AlgorithmView `json:"algorithms"`
	Count      int             `json:"count"`
}

// ActiveAlgorithmResult is the algorithm ranking the viewer's feed with their overrides
type ActiveAlgorithmResult struct {
	Algorithm    AlgorithmView          `json:"algorithm"`
	CustomConfig map[string]interface{} `json:"customConfig,omitempty"`
}

// RevisionView is the read model of a revision. Changes compares it with the
// state that replaced it.
type RevisionView struct {
	ID          string                     `json:"id"`
	Version     string                     `json:"version"`
	Checksum    string                     `json:"checksum"`
	EditorID    string                     `json:"editorId"`
	ChangeNotes string                     `json:"changeNotes,omitempty"`
	Definition  entities.AlgorithmSnapshot `json:"definition"`
	Changes     *versioning.RevisionDiff   `json:"changes,omitempty"`
	CreatedAt   string                     `json:"createdAt"`
}

// NewRevisionView maps a revision to its read model
func NewRevisionView(r *entities.Revision) RevisionView {
	return RevisionView{
		ID:          r.ID,
		Version:     r.Version,
		Checksum:    r.Checksum,
		EditorID:    r.EditorID,
		ChangeNotes: r.ChangeNotes,
		Definition:  r.Definition,
		CreatedAt:   utils.FormatTimestamp(r.CreatedAt),
	}
}

// ListRevisionsResult is an algorithm's revision history, newest first
type ListRevisionsResult struct {
	AlgorithmID string         `json:"algorithmId"`
	Revisions   []RevisionView `json:"revisions"`
}

// PreferenceView is the read model of an installed algorithm
type PreferenceView struct {
	AlgorithmID  string                 `json:"algorithmId"`
	IsActive     bool                   `json:"isActive"`
	CustomConfig map[string]interface{} `json:"customConfig,omitempty"`
	InstalledAt  string                 `json:"installedAt"`
	UpdatedAt    string                 `json:"updatedAt"`
}

// NewPreferenceView maps a preference to its read model
func NewPreferenceView(p *entities.Preference) PreferenceView {
	return PreferenceView{
		AlgorithmID:  p.AlgorithmID,
		IsActive:     p.IsActive,
		CustomConfig: p.CustomConfig,
		InstalledAt:  utils.FormatTimestamp(p.InstalledAt),
		UpdatedAt:    utils.FormatTimestamp(p.UpdatedAt),
	}
}

// ListPreferencesResult is the user's library
type ListPreferencesResult struct {
	Preferences []PreferenceView `json:"preferences"`
}
