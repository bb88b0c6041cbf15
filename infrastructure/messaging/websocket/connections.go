// Package websocket keeps track of API Gateway WebSocket connections and
// pushes algorithm events to the users they concern.
package websocket

import (
	"context"
	"fmt"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/feature/dynamodb/attributevalue"
	"github.com/aws/aws-sdk-go-v2/feature/dynamodb/expression"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb/types"
	"go.uber.org/zap"

	"feedrank/pkg/utils"
)

// DefaultConnectionTTL bounds how long an unclosed connection record survives
const DefaultConnectionTTL = 24 * time.Hour

// ConnectionsAPI is the subset of the DynamoDB client the connection store uses
type ConnectionsAPI interface {
	PutItem(ctx context.Context, params *dynamodb.PutItemInput, optFns ...func(*dynamodb.Options)) (*dynamodb.PutItemOutput, error)
	DeleteItem(ctx context.Context, params *dynamodb.DeleteItemInput, optFns ...func(*dynamodb.Options)) (*dynamodb.DeleteItemOutput, error)
	Query(ctx context.Context, params *dynamodb.QueryInput, optFns ...func(*dynamodb.Options)) (*dynamodb.QueryOutput, error)
}

// Connection is one open WebSocket
type Connection struct {
	ConnectionID string
	UserID       string
	Endpoint     string
	ConnectedAt  time.Time
}

type connectionItem struct {
	PK           string `dynamodbav:"PK"`
	SK           string `dynamodbav:"SK"`
	GSI1PK       string `dynamodbav:"GSI1PK"`
	GSI1SK       string `dynamodbav:"GSI1SK"`
	ConnectionID string `dynamodbav:"ConnectionID"`
	UserID       string `dynamodbav:"UserID"`
	Endpoint     string `dynamodbav:"Endpoint"`
	ConnectedAt  string `dynamodbav:"ConnectedAt"`
	TTL          int64  `dynamodbav:"TTL"`
}

func connectionPK(connectionID string) string { return "CONNECTION#" + connectionID }
func userPK(userID string) string             { return "USER#" + userID }

// ConnectionStore persists connections in the connections table. GSI1 lists a user's connections.
type ConnectionStore struct {
	client    ConnectionsAPI
	tableName string
	indexName string
	ttl       time.Duration
	logger    *zap.Logger
}

// NewConnectionStore creates a connection store
func NewConnectionStore(client ConnectionsAPI, tableName, indexName string, logger *zap.Logger) *ConnectionStore {
	return &ConnectionStore{
		client:    client,
		tableName: tableName,
		indexName: indexName,
		ttl:       DefaultConnectionTTL,
		logger:    logger,
	}
}

// Save records a connection
func (s *ConnectionStore) Save(ctx context.Context, conn Connection) error {
	item, err := attributevalue.MarshalMap(connectionItem{
		PK:           connectionPK(conn.ConnectionID),
		SK:           "METADATA",
		GSI1PK:       userPK(conn.UserID),
		GSI1SK:       connectionPK(conn.ConnectionID),
		ConnectionID: conn.ConnectionID,
		UserID:       conn.UserID,
		Endpoint:     conn.Endpoint,
		ConnectedAt:  conn.ConnectedAt.UTC().Format(time.RFC3339),
		TTL:          conn.ConnectedAt.Add(s.ttl).Unix(),
	})
	if err != nil {
		return fmt.Errorf("failed to marshal connection: %w", err)
	}

	if _, err := s.client.PutItem(ctx, &dynamodb.PutItemInput{
		TableName: aws.String(s.tableName),
		Item:      item,
	}); err != nil {
		return fmt.Errorf("failed to store connection: %w", err)
	}

	s.logger.Debug("Connection stored",
		zap.String("connectionID", conn.ConnectionID),
		zap.String("userID", conn.UserID),
	)
	return nil
}

// Delete removes a connection. Deleting an unknown connection is not an error.
func (s *ConnectionStore) Delete(ctx context.Context, connectionID string) error {
	_, err := s.client.DeleteItem(ctx, &dynamodb.DeleteItemInput{
		TableName: aws.String(s.tableName),
		Key: map[string]types.AttributeValue{
			"PK": &types.AttributeValueMemberS{Value: connectionPK(connectionID)},
			"SK": &types.AttributeValueMemberS{Value: "METADATA"},
		},
	})
	if err != nil {
		return fmt.Errorf("failed to delete connection: %w", err)
	}
	return nil
}

// ForUser lists the user's open connections
func (s *ConnectionStore) ForUser(ctx context.Context, userID string) ([]Connection, error) {
	keyCond := expression.Key("GSI1PK").Equal(expression.Value(userPK(userID)))
	expr, err := expression.NewBuilder().WithKeyCondition(keyCond).Build()
	if err != nil {
		return nil, fmt.Errorf("failed to build query: %w", err)
	}

	input := &dynamodb.QueryInput{
		TableName:                 aws.String(s.tableName),
		IndexName:                 aws.String(s.indexName),
		KeyConditionExpression:    expr.KeyCondition(),
		ExpressionAttributeNames:  expr.Names(),
		ExpressionAttributeValues: expr.Values(),
	}

	var conns []Connection
	for {
		out, err := s.client.Query(ctx, input)
		if err != nil {
			return nil, fmt.Errorf("failed to query connections: %w", err)
		}

		var items []connectionItem
		if err := attributevalue.UnmarshalListOfMaps(out.Items, &items); err != nil {
			return nil, fmt.Errorf("failed to unmarshal connections: %w", err)
		}
		for _, item := range items {
			connectedAt, _ := utils.ParseRFC3339(item.ConnectedAt)
			conns = append(conns, Connection{
				ConnectionID: item.ConnectionID,
				UserID:       item.UserID,
				Endpoint:     item.Endpoint,
				ConnectedAt:  connectedAt,
			})
		}

		if len(out.LastEvaluatedKey) == 0 {
			return conns, nil
		}
		input.ExclusiveStartKey = out.LastEvaluatedKey
	}
}
