// Package main implements the WebSocket notification Lambda. It is the
// EventBridge target for algorithm events and tells connected clients when
// their feed should be refetched.
package main

import (
	"context"
	"log"
	"os"

	"github.com/aws/aws-lambda-go/events"
	"github.com/aws/aws-lambda-go/lambda"
	"github.com/aws/aws-sdk-go-v2/aws"
	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/service/apigatewaymanagementapi"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb"
	"go.uber.org/zap"

	"feedrank/infrastructure/config"
	"feedrank/infrastructure/di"
	"feedrank/infrastructure/messaging/eventbridge"
	"feedrank/infrastructure/messaging/websocket"
)

var (
	notifier *websocket.Notifier
	logger   *zap.Logger
)

func init() {
	cfg, err := config.LoadConfig()
	if err != nil {
		log.Fatalf("Failed to load configuration: %v", err)
	}

	logger, err = di.ProvideLogger(cfg)
	if err != nil {
		log.Fatalf("Failed to create logger: %v", err)
	}

	awsCfg, err := awsconfig.LoadDefaultConfig(context.Background(), awsconfig.WithRegion(cfg.AWSRegion))
	if err != nil {
		log.Fatalf("Failed to load AWS config: %v", err)
	}

	store := websocket.NewConnectionStore(dynamodb.NewFromConfig(awsCfg), cfg.ConnectionsTable, cfg.IndexName, logger)
	notifier = websocket.NewNotifier(store, func(endpoint string) websocket.PostAPI {
		// WEBSOCKET_ENDPOINT overrides the stored endpoint behind a custom domain
		if cfg.WebSocketEndpoint != "" {
			endpoint = cfg.WebSocketEndpoint
		}
		return apigatewaymanagementapi.NewFromConfig(awsCfg, func(o *apigatewaymanagementapi.Options) {
			o.BaseEndpoint = aws.String("https://" + endpoint)
		})
	}, logger)

	logger.Info("WebSocket notify handler initialized")
}

// handler receives one EventBridge event per invocation
func handler(ctx context.Context, event events.CloudWatchEvent) error {
	if event.Source != eventbridge.Source {
		logger.Warn("Ignoring event from unexpected source", zap.String("source", event.Source))
		return nil
	}

	userID, msg, err := websocket.MessageFromEvent(event.DetailType, event.Detail)
	if err != nil {
		// Redelivery cannot fix a malformed event
		logger.Error("Dropping malformed event", zap.String("detailType", event.DetailType), zap.Error(err))
		return nil
	}
	if msg == nil {
		return nil
	}

	sent, err := notifier.Notify(ctx, userID, msg)
	if err != nil {
		logger.Warn("Some connections were not notified",
			zap.String("userID", userID),
			zap.String("event", event.DetailType),
			zap.Int("sent", sent),
			zap.Error(err),
		)
	}
	return nil
}

func main() {
	if os.Getenv("AWS_LAMBDA_FUNCTION_NAME") == "" {
		log.Fatal("ws-notify only runs as a Lambda function")
	}
	lambda.Start(handler)
}
