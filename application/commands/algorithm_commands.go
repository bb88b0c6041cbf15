package commands

import (
	"feedrank/domain/core/entities"
	"feedrank/domain/core/valueobjects"
	"feedrank/pkg/utils"
)

// AlgorithmDefinitionInput carries the editable fields of an algorithm
type AlgorithmDefinitionInput struct {
	Name               string                 `json:"name" validate:"required,min=1,max=120"`
	Slug               string                 `json:"slug" validate:"required,min=1,max=64"`
	Description        string                 `json:"description" validate:"max=2000"`
	CategorySlug       string                 `json:"category_slug" validate:"max=64"`
	IsPublic           bool                   `json:"is_public"`
	WeightConfig       map[string]float64     `json:"weight_config" validate:"required,min=1,max=20,dive,keys,required,endkeys"`
	SignalDescriptions map[string]string      `json:"signal_descriptions" validate:"max=20,dive,max=280"`
	AlgorithmConfig    map[string]interface{} `json:"algorithm_config" validate:"max=50"`
}

// ToDefinition converts the input into the domain definition
func (in AlgorithmDefinitionInput) ToDefinition() entities.AlgorithmDefinition {
	return entities.AlgorithmDefinition{
		Name:               in.Name,
		Slug:               in.Slug,
		Description:        in.Description,
		CategorySlug:       in.CategorySlug,
		IsPublic:           in.IsPublic,
		WeightConfig:       valueobjects.WeightConfig(in.WeightConfig),
		SignalDescriptions: in.SignalDescriptions,
		AlgorithmConfig:    valueobjects.AlgorithmConfig(in.AlgorithmConfig),
	}
}

// CreateAlgorithmCommand publishes a new user-authored algorithm.
// AlgorithmID is generated by the caller so the result can be read back.
type CreateAlgorithmCommand struct {
	AlgorithmID string `json:"algorithm_id" validate:"required"`
	UserID      string `json:"user_id" validate:"required"`
	AlgorithmDefinitionInput
}

// Validate validates the command
func (c CreateAlgorithmCommand) Validate() error {
	return utils.ValidateStruct(c)
}

// UpdateAlgorithmCommand replaces an algorithm's definition
type UpdateAlgorithmCommand struct {
	AlgorithmID string `json:"algorithm_id" validate:"required"`
	UserID      string `json:"user_id" validate:"required"`
	Version     string `json:"version" validate:"omitempty,semver"`
	ChangeNotes string `json:"change_notes" validate:"max=1000"`
	AlgorithmDefinitionInput
}

// Validate validates the command
func (c UpdateAlgorithmCommand) Validate() error {
	return utils.ValidateStruct(c)
}

// DeleteAlgorithmCommand removes a user-authored algorithm
type DeleteAlgorithmCommand struct {
	AlgorithmID string `json:"algorithm_id" validate:"required"`
	UserID      string `json:"user_id" validate:"required"`
}

// Validate validates the command
func (c DeleteAlgorithmCommand) Validate() error {
	return utils.ValidateStruct(c)
}

// InstallAlgorithmCommand adds an algorithm to the user's library
type InstallAlgorithmCommand struct {
	AlgorithmID  string                 `json:"algorithm_id" validate:"required"`
	UserID       string                 `json:"user_id" validate:"required"`
	CustomConfig map[string]interface{} `json:"custom_config" validate:"max=50"`
}

// Validate validates the command
func (c InstallAlgorithmCommand) Validate() error {
	return utils.ValidateStruct(c)
}

// UninstallAlgorithmCommand removes an algorithm from the user's library
type UninstallAlgorithmCommand struct {
	AlgorithmID string `json:"algorithm_id" validate:"required"`
	UserID      string `json:"user_id" validate:"required"`
}

// Validate validates the command
func (c UninstallAlgorithmCommand) Validate() error {
	return utils.ValidateStruct(c)
}

// ActivateAlgorithmCommand makes an installed algorithm the user's active one
type ActivateAlgorithmCommand struct {
	AlgorithmID string `json:"algorithm_id" validate:"required"`
	UserID      string `json:"user_id" validate:"required"`
}

// Validate validates the command
func (c ActivateAlgorithmCommand) Validate() error {
	return utils.ValidateStruct(c)
}

// RateAlgorithmCommand records a user's rating. The 1..5 range is enforced by the
// domain so the error carries its code.
type RateAlgorithmCommand struct {
	AlgorithmID string `json:"algorithm_id" validate:"required"`
	UserID      string `json:"user_id" validate:"required"`
	Rating      int    `json:"rating"`
	Review      string `json:"review" validate:"max=2000"`
}

// Validate validates the command
func (c RateAlgorithmCommand) Validate() error {
	return utils.ValidateStruct(c)
}
