package entities

import (
	"time"

	"feedrank/domain/core/valueobjects"
	pkgerrors "feedrank/pkg/errors"
)

// Preference is a user's installation of an algorithm.
// IsActive is derived from the user's single active-algorithm pointer when read.
type Preference struct {
	UserID       string                 `json:"userId"`
	AlgorithmID  string                 `json:"algorithmId"`
	IsInstalled  bool                   `json:"isInstalled"`
	IsActive     bool                   `json:"isActive"`
	CustomConfig map[string]interface{} `json:"customConfig,omitempty"`
	Priority     int                    `json:"priority"`
	InstalledAt  time.Time              `json:"installedAt"`
	UpdatedAt    time.Time              `json:"updatedAt"`
}

// NewPreference creates an installed preference for (userID, algorithmID)
func NewPreference(userID string, algorithmID valueobjects.AlgorithmID, customConfig map[string]interface{}, now time.Time) (*Preference, error) {
	if userID == "" {
		return nil, pkgerrors.NewValidationError("userID cannot be empty")
	}
	if algorithmID.IsZero() {
		return nil, pkgerrors.NewValidationError("algorithmID cannot be empty")
	}
	return &Preference{
		UserID:       userID,
		AlgorithmID:  algorithmID.String(),
		IsInstalled:  true,
		CustomConfig: customConfig,
		InstalledAt:  now,
		UpdatedAt:    now,
	}, nil
}
