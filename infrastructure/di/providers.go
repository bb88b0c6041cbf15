package di

import (
	"context"
	"fmt"
	"net/http"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	awscloudwatch "github.com/aws/aws-sdk-go-v2/service/cloudwatch"
	awsdynamodb "github.com/aws/aws-sdk-go-v2/service/dynamodb"
	awseventbridge "github.com/aws/aws-sdk-go-v2/service/eventbridge"
	"github.com/sony/gobreaker"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"

	"feedrank/application/commands/bus"
	commandhandlers "feedrank/application/commands/handlers"
	"feedrank/application/ports"
	querybus "feedrank/application/queries/bus"
	queryhandlers "feedrank/application/queries/handlers"
	"feedrank/application/services"
	domainconfig "feedrank/domain/config"
	"feedrank/domain/ranking"
	"feedrank/infrastructure/config"
	"feedrank/infrastructure/messaging"
	"feedrank/infrastructure/messaging/eventbridge"
	"feedrank/infrastructure/persistence/cache"
	"feedrank/infrastructure/persistence/dynamodb"
	"feedrank/infrastructure/persistence/memory"
	"feedrank/infrastructure/persistence/supabase"
	"feedrank/infrastructure/seed"
	"feedrank/interfaces/http/rest"
	"feedrank/pkg/auth"
	"feedrank/pkg/observability"
)

const (
	serviceName = "feedrank"

	catalogLockResource = "official-catalog"
	catalogLockDuration = 30 * time.Second

	rateLimitSweepInterval = 5 * time.Minute

	developmentJWTSecret = "feedrank-development-secret"
)

// Repositories groups the storage ports of one backend
type Repositories struct {
	Algorithms  ports.AlgorithmRepository
	Preferences ports.PreferenceRepository
	Ratings     ports.RatingRepository
	Revisions   ports.RevisionRepository
	SignalLogs  ports.SignalLogRepository
}

// ProvideLogger creates a new logger instance
func ProvideLogger(cfg *config.Config) (*zap.Logger, error) {
	var zapCfg zap.Config
	if cfg.IsProduction() {
		zapCfg = zap.NewProductionConfig()
	} else {
		zapCfg = zap.NewDevelopmentConfig()
	}

	level, err := zapcore.ParseLevel(cfg.LogLevel)
	if err != nil {
		return nil, fmt.Errorf("invalid LOG_LEVEL %q: %w", cfg.LogLevel, err)
	}
	zapCfg.Level = zap.NewAtomicLevelAt(level)

	logger, err := zapCfg.Build()
	if err != nil {
		return nil, err
	}
	return logger.With(zap.String("service", serviceName), zap.String("environment", cfg.Environment)), nil
}

// ProvideRankingConfig selects the ranking rules for the environment
func ProvideRankingConfig(cfg *config.Config) *domainconfig.RankingConfig {
	rankingCfg := domainconfig.LoadRankingConfig(cfg.Environment)
	if cfg.ScoringConcurrency > 0 {
		rankingCfg.ScoringConcurrency = cfg.ScoringConcurrency
	}
	return rankingCfg
}

// ProvideAWSConfig creates AWS configuration
func ProvideAWSConfig(ctx context.Context, cfg *config.Config) (aws.Config, error) {
	return awsconfig.LoadDefaultConfig(ctx,
		awsconfig.WithRegion(cfg.AWSRegion),
	)
}

// ProvideDynamoDBClient creates a DynamoDB client
func ProvideDynamoDBClient(awsCfg aws.Config) *awsdynamodb.Client {
	return awsdynamodb.NewFromConfig(awsCfg)
}

// ProvideEventBridgeClient creates an EventBridge client
func ProvideEventBridgeClient(awsCfg aws.Config) *awseventbridge.Client {
	return awseventbridge.NewFromConfig(awsCfg)
}

// ProvideCloudWatchClient creates a CloudWatch client
func ProvideCloudWatchClient(awsCfg aws.Config) *awscloudwatch.Client {
	return awscloudwatch.NewFromConfig(awsCfg)
}

// ProvideDynamoDBStore binds the repositories to the configured table
func ProvideDynamoDBStore(client *awsdynamodb.Client, cfg *config.Config, logger *zap.Logger) *dynamodb.Store {
	return dynamodb.NewStore(client, cfg.DynamoDBTable, cfg.IndexName, logger)
}

// ProvideRepositories selects the storage backend
func ProvideRepositories(cfg *config.Config, store *dynamodb.Store) *Repositories {
	if cfg.StorageBackend == config.BackendDynamoDB {
		return &Repositories{
			Algorithms:  store.Algorithms(),
			Preferences: store.Preferences(),
			Ratings:     store.Ratings(),
			Revisions:   store.Revisions(),
			SignalLogs:  store.SignalLogs(),
		}
	}

	mem := memory.NewStore()
	return &Repositories{
		Algorithms:  mem.Algorithms(),
		Preferences: mem.Preferences(),
		Ratings:     mem.Ratings(),
		Revisions:   mem.Revisions(),
		SignalLogs:  mem.SignalLogs(),
	}
}

// ProvideContentSource selects where posts, profiles and the social graph are read from
func ProvideContentSource(cfg *config.Config, logger *zap.Logger) (ports.ContentSource, error) {
	if cfg.ContentBackend != config.BackendSupabase {
		logger.Info("Using in-memory content store")
		return memory.NewContentStore(), nil
	}

	querier, err := supabase.NewPostgrestQuerier(cfg.SupabaseURL, cfg.SupabaseServiceRoleKey)
	if err != nil {
		return nil, fmt.Errorf("failed to create supabase client: %w", err)
	}
	return supabase.NewContentSource(querier, supabase.DefaultBreakerConfig(), logger), nil
}

// ProvideCache returns Redis when REDIS_ADDR is set and an in-memory cache otherwise
func ProvideCache(ctx context.Context, cfg *config.Config, logger *zap.Logger) (ports.Cache, func(), error) {
	if cfg.RedisAddr == "" {
		c := cache.NewInMemoryCache(time.Minute)
		return c, func() { _ = c.Close() }, nil
	}

	c, err := cache.NewRedisCache(ctx, cfg.RedisAddr, cfg.RedisPassword, logger)
	if err != nil {
		return nil, nil, err
	}
	return c, func() {
		if err := c.Close(); err != nil {
			logger.Warn("Failed to close redis cache", zap.Error(err))
		}
	}, nil
}

// ProvideEventPublisher publishes to EventBridge on the AWS backend and logs events otherwise
func ProvideEventPublisher(client *awseventbridge.Client, cfg *config.Config, logger *zap.Logger) ports.EventPublisher {
	if cfg.StorageBackend == config.BackendDynamoDB && cfg.EventBusName != "" {
		return eventbridge.NewPublisher(client, cfg.EventBusName, logger)
	}
	return messaging.NewLogPublisher(logger)
}

// ProvideMetrics creates metrics instance. CloudWatch export is only enabled by ENABLE_METRICS.
func ProvideMetrics(client *awscloudwatch.Client, cfg *config.Config, logger *zap.Logger) *observability.Metrics {
	var cw observability.CloudWatchAPI
	if cfg.EnableMetrics {
		cw = client
	}
	return observability.NewMetrics(fmt.Sprintf("FeedRank/%s", cfg.Environment), cw, logger)
}

// ProvideTracer creates the X-Ray tracer
func ProvideTracer(cfg *config.Config) *observability.Tracer {
	return observability.NewTracer(serviceName, cfg.EnableTracing)
}

// ProvideFeedEngine creates the algorithm lifecycle service
func ProvideFeedEngine(
	repos *Repositories,
	publisher ports.EventPublisher,
	c ports.Cache,
	rankingCfg *domainconfig.RankingConfig,
	logger *zap.Logger,
) *services.FeedEngine {
	return services.NewFeedEngine(
		repos.Algorithms,
		repos.Preferences,
		repos.Ratings,
		repos.Revisions,
		publisher,
		c,
		rankingCfg,
		logger,
	)
}

// ProvideAuditQueue starts the signal audit workers. The cleanup drains the queue.
func ProvideAuditQueue(
	repos *Repositories,
	metrics *observability.Metrics,
	cfg *config.Config,
	logger *zap.Logger,
) (*services.SignalAuditQueue, func()) {
	auditCfg := services.DefaultAuditQueueConfig()
	auditCfg.QueueSize = cfg.AuditQueueSize
	auditCfg.Workers = cfg.AuditWorkers
	auditCfg.MaxAttempts = cfg.AuditMaxAttempts

	queue := services.NewSignalAuditQueue(repos.SignalLogs, metrics, auditCfg, logger)
	queue.Start()

	return queue, func() {
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := queue.Stop(ctx); err != nil {
			logger.Warn("Audit queue did not drain", zap.Error(err))
		}
	}
}

// ProvideFeedGenerator creates the feed generator
func ProvideFeedGenerator(
	engine *services.FeedEngine,
	content ports.ContentSource,
	audit *services.SignalAuditQueue,
	metrics *observability.Metrics,
	tracer *observability.Tracer,
	rankingCfg *domainconfig.RankingConfig,
	cfg *config.Config,
	logger *zap.Logger,
) (*services.FeedGenerator, error) {
	fallback, err := seed.NewFallbackFeed()
	if err != nil {
		return nil, fmt.Errorf("failed to load fallback feed: %w", err)
	}

	return services.NewFeedGenerator(
		engine,
		ranking.NewRegistry(rankingCfg.EnableWeightedStrategy),
		content,
		fallback,
		audit,
		metrics,
		tracer,
		rankingCfg,
		cfg.FeedRequestTimeout,
		logger,
	), nil
}

// ProvideCommandBus creates a command bus with registered handlers
func ProvideCommandBus(engine *services.FeedEngine, logger *zap.Logger) (*bus.CommandBus, error) {
	commandBus := bus.NewCommandBus(bus.LoggingMiddleware(logger))
	if err := commandhandlers.NewAlgorithmCommandHandler(engine, logger).Register(commandBus); err != nil {
		return nil, fmt.Errorf("failed to register command handlers: %w", err)
	}
	return commandBus, nil
}

// ProvideQueryBus creates a query bus with registered handlers
func ProvideQueryBus(
	engine *services.FeedEngine,
	generator *services.FeedGenerator,
	metrics *observability.Metrics,
	logger *zap.Logger,
) (*querybus.QueryBus, error) {
	queryBus := querybus.NewQueryBus(querybus.MetricsMiddleware(metrics))
	if err := queryhandlers.NewAlgorithmQueryHandler(engine, generator, logger).Register(queryBus); err != nil {
		return nil, fmt.Errorf("failed to register query handlers: %w", err)
	}
	return queryBus, nil
}

// ProvideJWTValidator creates the bearer token validator
func ProvideJWTValidator(cfg *config.Config, logger *zap.Logger) (*auth.JWTValidator, error) {
	secret := cfg.JWTSecret
	if secret == "" {
		// Validate() already rejects this in production
		logger.Warn("JWT_SECRET not set, using the development secret")
		secret = developmentJWTSecret
	}
	return auth.NewJWTValidator(auth.JWTConfig{
		SecretKey: secret,
		Issuer:    cfg.JWTIssuer,
		Audience:  cfg.JWTAudience,
		Leeway:    30 * time.Second,
	})
}

// ProvideRateLimiter shares counters through DynamoDB on the AWS backend.
// The in-process limiter sweeps idle keys until cleanup runs.
func ProvideRateLimiter(client *awsdynamodb.Client, cfg *config.Config) (auth.RateLimiter, func()) {
	if cfg.RateLimitPerMinute <= 0 {
		return nil, func() {}
	}
	if cfg.StorageBackend == config.BackendDynamoDB {
		return auth.NewDistributedRateLimiter(client, cfg.DynamoDBTable, cfg.RateLimitPerMinute, time.Minute, "API"), func() {}
	}
	limiter := auth.NewSlidingWindowLimiter(cfg.RateLimitPerMinute, time.Minute)
	limiter.StartSweeper(rateLimitSweepInterval)
	return limiter, limiter.Stop
}

// ProvideDistributedLock creates a distributed lock instance
func ProvideDistributedLock(client *awsdynamodb.Client, cfg *config.Config, logger *zap.Logger) *dynamodb.DistributedLock {
	return dynamodb.NewDistributedLock(client, cfg.DynamoDBTable, logger)
}

// ProvideReadinessChecks lists the dependencies /ready checks
func ProvideReadinessChecks(
	c ports.Cache,
	repos *Repositories,
	content ports.ContentSource,
	rankingCfg *domainconfig.RankingConfig,
) map[string]rest.ReadinessCheck {
	checks := map[string]rest.ReadinessCheck{
		"catalog": func(ctx context.Context) error {
			_, err := repos.Algorithms.GetBySlug(ctx, rankingCfg.DefaultAlgorithmSlug)
			return err
		},
	}
	if pinger, ok := c.(interface{ Ping(context.Context) error }); ok {
		checks["cache"] = pinger.Ping
	}
	if breaker, ok := content.(interface{ State() gobreaker.State }); ok {
		checks["content"] = func(context.Context) error {
			if state := breaker.State(); state == gobreaker.StateOpen {
				return fmt.Errorf("content circuit breaker is %s", state)
			}
			return nil
		}
	}
	return checks
}

// ProvideReadinessStats lists the counters /ready reports
func ProvideReadinessStats(audit *services.SignalAuditQueue) map[string]rest.StatsReporter {
	return map[string]rest.StatsReporter{
		"audit": audit.Stats,
	}
}

// ProvideRouter creates the HTTP handler
func ProvideRouter(
	commandBus *bus.CommandBus,
	queryBus *querybus.QueryBus,
	validator *auth.JWTValidator,
	limiter auth.RateLimiter,
	metrics *observability.Metrics,
	checks map[string]rest.ReadinessCheck,
	stats map[string]rest.StatsReporter,
	cfg *config.Config,
	logger *zap.Logger,
) http.Handler {
	opts := rest.RouterOptions{
		RateLimiter:        limiter,
		RateLimitPerMinute: cfg.RateLimitPerMinute,
		Metrics:            metrics.Handler(),
		Recorder:           metrics,
		ReadinessChecks:    checks,
		ReadinessStats:     stats,
		Debug:              cfg.IsDevelopment(),
	}
	if cfg.EnableCORS {
		opts.AllowedOrigins = cfg.AllowedOrigins
	}
	return rest.NewRouter(commandBus, queryBus, validator, opts, logger).Setup()
}
