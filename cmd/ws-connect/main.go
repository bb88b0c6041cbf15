// Package main implements the WebSocket connection Lambda handler.
// It authenticates $connect with the same bearer tokens as the REST API and
// records the connection so feed changes can be pushed to the user.
package main

import (
	"context"
	"log"
	"net/http"
	"os"
	"strings"
	"time"

	"github.com/aws/aws-lambda-go/events"
	"github.com/aws/aws-lambda-go/lambda"
	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb"
	"go.uber.org/zap"

	"feedrank/infrastructure/config"
	"feedrank/infrastructure/di"
	"feedrank/infrastructure/messaging/websocket"
	"feedrank/pkg/auth"
)

var (
	connections *websocket.ConnectionStore
	validator   *auth.JWTValidator
	logger      *zap.Logger
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

	validator, err = di.ProvideJWTValidator(cfg, logger)
	if err != nil {
		log.Fatalf("Failed to create token validator: %v", err)
	}
	connections = websocket.NewConnectionStore(dynamodb.NewFromConfig(awsCfg), cfg.ConnectionsTable, cfg.IndexName, logger)

	logger.Info("WebSocket connect handler initialized", zap.String("table", cfg.ConnectionsTable))
}

// handler processes $connect and $disconnect
func handler(ctx context.Context, request events.APIGatewayWebsocketProxyRequest) (events.APIGatewayProxyResponse, error) {
	connectionID := request.RequestContext.ConnectionID

	if request.RequestContext.RouteKey == "$disconnect" {
		if err := connections.Delete(ctx, connectionID); err != nil {
			logger.Error("Failed to remove connection", zap.String("connectionID", connectionID), zap.Error(err))
			return respond(http.StatusInternalServerError), nil
		}
		return respond(http.StatusOK), nil
	}

	// Browsers cannot set headers on a WebSocket handshake, so the token may come as a query parameter
	token := request.QueryStringParameters["token"]
	if token == "" {
		token = headerValue(request.Headers, "Authorization")
	}

	claims, err := validator.ValidateToken(token)
	if err != nil {
		logger.Info("WebSocket authentication failed", zap.String("connectionID", connectionID), zap.Error(err))
		return respond(http.StatusUnauthorized), nil
	}

	conn := websocket.Connection{
		ConnectionID: connectionID,
		UserID:       claims.UserID(),
		Endpoint:     request.RequestContext.DomainName + "/" + request.RequestContext.Stage,
		ConnectedAt:  time.Now(),
	}
	if err := connections.Save(ctx, conn); err != nil {
		logger.Error("Failed to store connection", zap.String("connectionID", connectionID), zap.Error(err))
		return respond(http.StatusInternalServerError), nil
	}

	logger.Info("WebSocket connection established",
		zap.String("connectionID", connectionID),
		zap.String("userID", conn.UserID),
	)
	return respond(http.StatusOK), nil
}

func respond(status int) events.APIGatewayProxyResponse {
	return events.APIGatewayProxyResponse{StatusCode: status, Body: http.StatusText(status)}
}

func headerValue(headers map[string]string, name string) string {
	for k, v := range headers {
		if strings.EqualFold(k, name) {
			return v
		}
	}
	return ""
}

func main() {
	if os.Getenv("AWS_LAMBDA_FUNCTION_NAME") == "" {
		log.Fatal("ws-connect only runs as a Lambda function")
	}
	lambda.Start(handler)
}
