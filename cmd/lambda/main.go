package main

import (
	"context"
	"log"
	"time"

	"github.com/aws/aws-lambda-go/events"
	"github.com/aws/aws-lambda-go/lambda"
	chiadapter "github.com/awslabs/aws-lambda-go-api-proxy/chi"
	"github.com/go-chi/chi/v5"
	"go.uber.org/zap"

	"feedrank/infrastructure/config"
	"feedrank/infrastructure/di"
)

// Global variables for Lambda lifecycle management
var (
	// chiLambda wraps the Chi router for AWS Lambda integration
	chiLambda *chiadapter.ChiLambdaV2

	// container holds the dependency injection container
	container *di.Container

	// coldStart tracks whether this is a cold start invocation
	coldStart = true

	// coldStartTime records when the cold start began
	coldStartTime time.Time
)

// init runs during cold start
func init() {
	coldStartTime = time.Now()
	log.Println("Lambda cold start initiated")

	ctx := context.Background()

	// Load configuration
	cfg, err := config.LoadConfig()
	if err != nil {
		log.Fatalf("Failed to load configuration: %v", err)
	}

	// Initialize dependency container. The cleanup is never run: the
	// execution environment is frozen, not shut down.
	container, _, err = di.InitializeContainer(ctx, cfg)
	if err != nil {
		log.Fatalf("Failed to initialize container: %v", err)
	}

	seedCtx, cancel := context.WithTimeout(ctx, time.Duration(cfg.ColdStartTimeout)*time.Millisecond)
	defer cancel()
	if err := container.SeedCatalog(seedCtx); err != nil {
		// Another instance may finish seeding; the feed falls back until then
		container.Logger.Error("Failed to seed official algorithms", zap.Error(err))
	}

	// Create Lambda adapter - need to type assert to *chi.Mux
	chiRouter, ok := container.Router.(*chi.Mux)
	if !ok {
		log.Fatal("Failed to cast handler to chi.Mux")
	}
	chiLambda = chiadapter.NewV2(chiRouter)

	log.Printf("Lambda cold start completed in %v", time.Since(coldStartTime))
}

// Handler is the Lambda function handler. Bearer tokens are validated by the
// router exactly as on the API server; gateway headers are not trusted.
func Handler(ctx context.Context, req events.APIGatewayV2HTTPRequest) (events.APIGatewayV2HTTPResponse, error) {
	// Process the request through the Chi router
	resp, err := chiLambda.ProxyWithContextV2(ctx, req)

	// Add custom headers for monitoring
	if resp.Headers == nil {
		resp.Headers = make(map[string]string)
	}

	wasColdStart := coldStart
	if coldStart {
		resp.Headers["X-Cold-Start"] = "true"
		resp.Headers["X-Cold-Start-Duration"] = time.Since(coldStartTime).String()
		coldStart = false
	} else {
		resp.Headers["X-Cold-Start"] = "false"
	}
	resp.Headers["X-Lambda-Request-ID"] = req.RequestContext.RequestID

	container.Logger.Info("Lambda response",
		zap.String("method", req.RequestContext.HTTP.Method),
		zap.String("path", req.RequestContext.HTTP.Path),
		zap.String("requestID", req.RequestContext.RequestID),
		zap.Int("statusCode", resp.StatusCode),
		zap.Bool("coldStart", wasColdStart),
		zap.String("stage", req.RequestContext.Stage),
	)

	// No background flusher survives between invocations
	if container.Config.EnableMetrics {
		if flushErr := container.Metrics.Flush(ctx); flushErr != nil {
			container.Logger.Warn("Failed to flush metrics", zap.Error(flushErr))
		}
	}

	return resp, err
}

// main is the entry point for the Lambda function
func main() {
	// Start the Lambda handler
	lambda.Start(Handler)
}
