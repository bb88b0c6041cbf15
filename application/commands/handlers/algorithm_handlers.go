package handlers

import (
	"context"
	"fmt"

	"go.uber.org/zap"

	"feedrank/application/commands"
	"feedrank/application/commands/bus"
	"feedrank/application/services"
	"feedrank/domain/core/entities"
)

// AlgorithmLifecycle is the slice of the feed engine the command handlers drive
type AlgorithmLifecycle interface {
	CreateAlgorithm(ctx context.Context, userID, algorithmID string, def entities.AlgorithmDefinition) (*entities.Algorithm, error)
	UpdateAlgorithm(ctx context.Context, userID, algorithmID string, def entities.AlgorithmDefinition, version, notes string) (*entities.Algorithm, error)
	DeleteAlgorithm(ctx context.Context, userID, algorithmID string) error
	InstallAlgorithm(ctx context.Context, userID, algorithmID string, customConfig map[string]interface{}) (*entities.Preference, error)
	UninstallAlgorithm(ctx context.Context, userID, algorithmID string) error
	SetActiveAlgorithm(ctx context.Context, userID, algorithmID string) error
	RateAlgorithm(ctx context.Context, userID, algorithmID string, value int, review string) (*services.RatingSummary, error)
}

// AlgorithmCommandHandler handles every algorithm lifecycle command
type AlgorithmCommandHandler struct {
	engine AlgorithmLifecycle
	logger *zap.Logger
}

// NewAlgorithmCommandHandler creates a new algorithm command handler
func NewAlgorithmCommandHandler(engine AlgorithmLifecycle, logger *zap.Logger) *AlgorithmCommandHandler {
	return &AlgorithmCommandHandler{
		engine: engine,
		logger: logger,
	}
}

// Register binds the handler to every command type it serves
func (h *AlgorithmCommandHandler) Register(b *bus.CommandBus) error {
	for _, cmd := range []bus.Command{
		commands.CreateAlgorithmCommand{},
		commands.UpdateAlgorithmCommand{},
		commands.DeleteAlgorithmCommand{},
		commands.InstallAlgorithmCommand{},
		commands.UninstallAlgorithmCommand{},
		commands.ActivateAlgorithmCommand{},
		commands.RateAlgorithmCommand{},
	} {
		if err := b.Register(cmd, h); err != nil {
			return err
		}
	}
	return nil
}

// Handle executes an algorithm command
func (h *AlgorithmCommandHandler) Handle(ctx context.Context, cmd bus.Command) error {
	switch c := cmd.(type) {
	case commands.CreateAlgorithmCommand:
		_, err := h.engine.CreateAlgorithm(ctx, c.UserID, c.AlgorithmID, c.ToDefinition())
		return err

	case commands.UpdateAlgorithmCommand:
		_, err := h.engine.UpdateAlgorithm(ctx, c.UserID, c.AlgorithmID, c.ToDefinition(), c.Version, c.ChangeNotes)
		return err

	case commands.DeleteAlgorithmCommand:
		return h.engine.DeleteAlgorithm(ctx, c.UserID, c.AlgorithmID)

	case commands.InstallAlgorithmCommand:
		_, err := h.engine.InstallAlgorithm(ctx, c.UserID, c.AlgorithmID, c.CustomConfig)
		return err

	case commands.UninstallAlgorithmCommand:
		return h.engine.UninstallAlgorithm(ctx, c.UserID, c.AlgorithmID)

	case commands.ActivateAlgorithmCommand:
		return h.engine.SetActiveAlgorithm(ctx, c.UserID, c.AlgorithmID)

	case commands.RateAlgorithmCommand:
		summary, err := h.engine.RateAlgorithm(ctx, c.UserID, c.AlgorithmID, c.Rating, c.Review)
		if err != nil {
			return err
		}
		h.logger.Debug("Algorithm rated",
			zap.String("algorithmID", c.AlgorithmID),
			zap.Float64("averageRating", summary.AverageRating),
			zap.Int("ratingCount", summary.RatingCount),
		)
		return nil

	default:
		return fmt.Errorf("%w: %T", bus.ErrUnexpectedType, cmd)
	}
}
