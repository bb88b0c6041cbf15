//go:build wireinject
// +build wireinject

package di

import (
	"context"

	"github.com/google/wire"

	"feedrank/infrastructure/config"
)

// SuperSet is the main provider set containing all providers
var SuperSet = wire.NewSet(
	ProvideLogger,
	ProvideRankingConfig,
	ProvideAWSConfig,
	ProvideDynamoDBClient,
	ProvideEventBridgeClient,
	ProvideCloudWatchClient,
	ProvideDynamoDBStore,
	ProvideRepositories,
	ProvideContentSource,
	ProvideCache,
	ProvideEventPublisher,
	ProvideMetrics,
	ProvideTracer,
	ProvideFeedEngine,
	ProvideAuditQueue,
	ProvideFeedGenerator,
	ProvideCommandBus,
	ProvideQueryBus,
	ProvideJWTValidator,
	ProvideRateLimiter,
	ProvideDistributedLock,
	ProvideReadinessChecks,
	ProvideReadinessStats,
	ProvideRouter,
	wire.Struct(new(Container), "*"),
)

// InitializeContainer creates a fully wired container
func InitializeContainer(ctx context.Context, cfg *config.Config) (*Container, func(), error) {
	wire.Build(SuperSet)
	return nil, nil, nil // Wire will replace this
}
