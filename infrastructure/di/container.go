package di

import (
	"context"
	"fmt"
	"net/http"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"feedrank/application/commands/bus"
	querybus "feedrank/application/queries/bus"
	"feedrank/application/services"
	"feedrank/infrastructure/config"
	"feedrank/infrastructure/persistence/dynamodb"
	"feedrank/infrastructure/seed"
	"feedrank/pkg/observability"
)

// Container holds all application dependencies
type Container struct {
	Config     *config.Config
	Logger     *zap.Logger
	Engine     *services.FeedEngine
	Generator  *services.FeedGenerator
	AuditQueue *services.SignalAuditQueue
	CommandBus *bus.CommandBus
	QueryBus   *querybus.QueryBus
	Metrics    *observability.Metrics
	Lock       *dynamodb.DistributedLock
	Router     http.Handler
}

// SeedCatalog installs the official algorithms. On DynamoDB only one instance
// seeds at a time; the others skip.
func (c *Container) SeedCatalog(ctx context.Context) error {
	official, err := seed.OfficialAlgorithms()
	if err != nil {
		return fmt.Errorf("failed to load official catalog: %w", err)
	}

	seedFn := func(ctx context.Context) error {
		return c.Engine.SeedOfficialAlgorithms(ctx, official)
	}
	if c.Config.StorageBackend != config.BackendDynamoDB {
		return seedFn(ctx)
	}

	owner := c.Config.LambdaFunctionName
	if owner == "" {
		owner = serviceName
	}
	owner += "-" + uuid.New().String()

	skipped, err := c.Lock.WithLock(ctx, catalogLockResource, owner, catalogLockDuration, seedFn)
	if err != nil {
		return fmt.Errorf("failed to seed official catalog: %w", err)
	}
	if skipped {
		c.Logger.Info("Official catalog seeding already in progress elsewhere")
	}
	return nil
}
