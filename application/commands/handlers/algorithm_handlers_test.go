package handlers

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"feedrank/application/commands"
	"feedrank/application/commands/bus"
	"feedrank/application/services"
	"feedrank/domain/core/entities"
	pkgerrors "feedrank/pkg/errors"
)

// MockAlgorithmLifecycle is a mock implementation of AlgorithmLifecycle
type MockAlgorithmLifecycle struct {
	mock.Mock
}

func (m *MockAlgorithmLifecycle) CreateAlgorithm(ctx context.Context, userID, algorithmID string, def entities.AlgorithmDefinition) (*entities.Algorithm, error) {
	args := m.Called(ctx, userID, algorithmID, def)
	return nil, args.Error(1)
}

func (m *MockAlgorithmLifecycle) UpdateAlgorithm(ctx context.Context, userID, algorithmID string, def entities.AlgorithmDefinition, version, notes string) (*entities.Algorithm, error) {
	args := m.Called(ctx, userID, algorithmID, def, version, notes)
	return nil, args.Error(1)
}

func (m *MockAlgorithmLifecycle) DeleteAlgorithm(ctx context.Context, userID, algorithmID string) error {
	args := m.Called(ctx, userID, algorithmID)
	return args.Error(0)
}

func (m *MockAlgorithmLifecycle) InstallAlgorithm(ctx context.Context, userID, algorithmID string, customConfig map[string]interface{}) (*entities.Preference, error) {
	args := m.Called(ctx, userID, algorithmID, customConfig)
	return nil, args.Error(1)
}

func (m *MockAlgorithmLifecycle) UninstallAlgorithm(ctx context.Context, userID, algorithmID string) error {
	args := m.Called(ctx, userID, algorithmID)
	return args.Error(0)
}

func (m *MockAlgorithmLifecycle) SetActiveAlgorithm(ctx context.Context, userID, algorithmID string) error {
	args := m.Called(ctx, userID, algorithmID)
	return args.Error(0)
}

func (m *MockAlgorithmLifecycle) RateAlgorithm(ctx context.Context, userID, algorithmID string, value int, review string) (*services.RatingSummary, error) {
	args := m.Called(ctx, userID, algorithmID, value, review)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*services.RatingSummary), args.Error(1)
}

func newBus(t *testing.T, engine AlgorithmLifecycle) *bus.CommandBus {
	t.Helper()
	b := bus.NewCommandBus(bus.LoggingMiddleware(zap.NewNop()))
	require.NoError(t, NewAlgorithmCommandHandler(engine, zap.NewNop()).Register(b))
	return b
}

func TestAlgorithmCommandHandler_Dispatch(t *testing.T) {
	ctx := context.Background()

	t.Run("activate", func(t *testing.T) {
		engine := new(MockAlgorithmLifecycle)
		engine.On("SetActiveAlgorithm", ctx, "user-1", "alg-1").Return(nil)

		err := newBus(t, engine).Send(ctx, commands.ActivateAlgorithmCommand{UserID: "user-1", AlgorithmID: "alg-1"})

		assert.NoError(t, err)
		engine.AssertExpectations(t)
	})

	t.Run("create passes the pre-generated id", func(t *testing.T) {
		engine := new(MockAlgorithmLifecycle)
		engine.On("CreateAlgorithm", ctx, "user-1", "alg-new", mock.MatchedBy(func(def entities.AlgorithmDefinition) bool {
			return def.Slug == "my-feed" && def.WeightConfig["popularity"] == 1
		})).Return(nil, nil)

		err := newBus(t, engine).Send(ctx, commands.CreateAlgorithmCommand{
			AlgorithmID: "alg-new",
			UserID:      "user-1",
			AlgorithmDefinitionInput: commands.AlgorithmDefinitionInput{
				Name:         "My feed",
				Slug:         "my-feed",
				WeightConfig: map[string]float64{"popularity": 1},
			},
		})

		assert.NoError(t, err)
		engine.AssertExpectations(t)
	})

	t.Run("rate", func(t *testing.T) {
		engine := new(MockAlgorithmLifecycle)
		engine.On("RateAlgorithm", ctx, "user-1", "alg-1", 4, "nice").
			Return(&services.RatingSummary{AlgorithmID: "alg-1", AverageRating: 4, RatingCount: 1}, nil)

		err := newBus(t, engine).Send(ctx, commands.RateAlgorithmCommand{UserID: "user-1", AlgorithmID: "alg-1", Rating: 4, Review: "nice"})

		assert.NoError(t, err)
		engine.AssertExpectations(t)
	})

	t.Run("engine errors pass through", func(t *testing.T) {
		engine := new(MockAlgorithmLifecycle)
		forbidden := pkgerrors.NewForbiddenError("nope").WithCode(pkgerrors.CodeNotAlgorithmOwner)
		engine.On("DeleteAlgorithm", ctx, "user-1", "alg-1").Return(forbidden)

		err := newBus(t, engine).Send(ctx, commands.DeleteAlgorithmCommand{UserID: "user-1", AlgorithmID: "alg-1"})

		assert.True(t, pkgerrors.HasCode(err, pkgerrors.CodeNotAlgorithmOwner))
	})
}

func TestAlgorithmCommandHandler_ValidationRejectsBeforeEngine(t *testing.T) {
	ctx := context.Background()
	engine := new(MockAlgorithmLifecycle)
	b := newBus(t, engine)

	tests := []struct {
		name string
		cmd  bus.Command
	}{
		{name: "missing user", cmd: commands.InstallAlgorithmCommand{AlgorithmID: "alg-1"}},
		{name: "missing weights", cmd: commands.CreateAlgorithmCommand{
			AlgorithmID:              "alg-1",
			UserID:                   "user-1",
			AlgorithmDefinitionInput: commands.AlgorithmDefinitionInput{Name: "x", Slug: "x"},
		}},
		{name: "bad version", cmd: commands.UpdateAlgorithmCommand{
			AlgorithmID: "alg-1",
			UserID:      "user-1",
			Version:     "two",
			AlgorithmDefinitionInput: commands.AlgorithmDefinitionInput{
				Name:         "x",
				Slug:         "x",
				WeightConfig: map[string]float64{"popularity": 1},
			},
		}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := b.Send(ctx, tt.cmd)
			assert.True(t, pkgerrors.IsValidation(err), "got %v", err)
		})
	}
	engine.AssertNotCalled(t, "InstallAlgorithm", mock.Anything, mock.Anything, mock.Anything, mock.Anything)
	engine.AssertNotCalled(t, "CreateAlgorithm", mock.Anything, mock.Anything, mock.Anything, mock.Anything)
}

func TestCommandBus_UnregisteredCommand(t *testing.T) {
	b := bus.NewCommandBus()

	err := b.Send(context.Background(), commands.DeleteAlgorithmCommand{UserID: "u", AlgorithmID: "a"})

	assert.True(t, errors.Is(err, bus.ErrHandlerNotFound))
}
