package dynamodb

import (
	"context"
	"fmt"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/feature/dynamodb/attributevalue"
	"github.com/aws/aws-sdk-go-v2/feature/dynamodb/expression"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb/types"

	"feedrank/domain/core/entities"
	"feedrank/domain/core/valueobjects"
	pkgerrors "feedrank/pkg/errors"
)

// RatingRepository implements ports.RatingRepository under the algorithm's partition
type RatingRepository struct {
	*Store
}

type ratingItem struct {
	PK          string `dynamodbav:"PK"`
	SK          string `dynamodbav:"SK"`
	EntityType  string `dynamodbav:"EntityType"`
	UserID      string `dynamodbav:"UserID"`
	AlgorithmID string `dynamodbav:"AlgorithmID"`
	Rating      int    `dynamodbav:"Rating"`
	Review      string `dynamodbav:"Review"`
	CreatedAt   string `dynamodbav:"CreatedAt"`
	UpdatedAt   string `dynamodbav:"UpdatedAt"`
}

// Upsert stores the user's rating; the first rating's CreatedAt is kept
func (r *RatingRepository) Upsert(ctx context.Context, rating *entities.Rating) error {
	update := expression.
		Set(expression.Name("EntityType"), expression.Value("RATING")).
		Set(expression.Name("UserID"), expression.Value(rating.UserID)).
		Set(expression.Name("AlgorithmID"), expression.Value(rating.AlgorithmID)).
		Set(expression.Name("Rating"), expression.Value(rating.Rating)).
		Set(expression.Name("Review"), expression.Value(rating.Review)).
		Set(expression.Name("CreatedAt"), expression.IfNotExists(
			expression.Name("CreatedAt"),
			expression.Value(rating.CreatedAt.UTC().Format(time.RFC3339Nano)),
		)).
		Set(expression.Name("UpdatedAt"), expression.Value(rating.UpdatedAt.UTC().Format(time.RFC3339Nano)))

	expr, err := expression.NewBuilder().WithUpdate(update).Build()
	if err != nil {
		return fmt.Errorf("failed to build rating update: %w", err)
	}

	_, err = r.client.UpdateItem(ctx, &dynamodb.UpdateItemInput{
		TableName:                 aws.String(r.tableName),
		Key:                       keyOf(algorithmPK(rating.AlgorithmID), ratingSKPrefix+rating.UserID),
		UpdateExpression:          expr.Update(),
		ExpressionAttributeNames:  expr.Names(),
		ExpressionAttributeValues: expr.Values(),
	})
	if err != nil {
		return pkgerrors.NewDatabaseError("upsert rating", err)
	}
	return nil
}

// ListByAlgorithm returns every rating for an algorithm
func (r *RatingRepository) ListByAlgorithm(ctx context.Context, algorithmID valueobjects.AlgorithmID) ([]*entities.Rating, error) {
	raw, err := r.queryPrefix(ctx, algorithmID.String(), ratingSKPrefix, true)
	if err != nil {
		return nil, pkgerrors.NewDatabaseError("list ratings", err)
	}

	var items []ratingItem
	if err := attributevalue.UnmarshalListOfMaps(raw, &items); err != nil {
		return nil, fmt.Errorf("failed to unmarshal ratings: %w", err)
	}

	out := make([]*entities.Rating, 0, len(items))
	for _, item := range items {
		createdAt, _ := time.Parse(time.RFC3339Nano, item.CreatedAt)
		updatedAt, _ := time.Parse(time.RFC3339Nano, item.UpdatedAt)
		out = append(out, &entities.Rating{
			UserID:      item.UserID,
			AlgorithmID: item.AlgorithmID,
			Rating:      item.Rating,
			Review:      item.Review,
			CreatedAt:   createdAt,
			UpdatedAt:   updatedAt,
		})
	}
	return out, nil
}

// DeleteByAlgorithm removes all ratings for an algorithm
func (r *RatingRepository) DeleteByAlgorithm(ctx context.Context, algorithmID valueobjects.AlgorithmID) error {
	return r.deletePrefix(ctx, algorithmID.String(), ratingSKPrefix)
}

// queryPrefix reads the items of an algorithm partition whose sort key starts with prefix
func (s *Store) queryPrefix(ctx context.Context, algorithmID, prefix string, forward bool) ([]map[string]types.AttributeValue, error) {
	keyCond := expression.Key("PK").Equal(expression.Value(algorithmPK(algorithmID))).
		And(expression.Key("SK").BeginsWith(prefix))
	expr, err := expression.NewBuilder().WithKeyCondition(keyCond).Build()
	if err != nil {
		return nil, fmt.Errorf("failed to build query: %w", err)
	}

	return queryAll(ctx, s.client, &dynamodb.QueryInput{
		TableName:                 aws.String(s.tableName),
		KeyConditionExpression:    expr.KeyCondition(),
		ExpressionAttributeNames:  expr.Names(),
		ExpressionAttributeValues: expr.Values(),
		ScanIndexForward:          aws.Bool(forward),
	})
}

// deletePrefix batch-deletes the items of an algorithm partition whose sort key starts with prefix
func (s *Store) deletePrefix(ctx context.Context, algorithmID, prefix string) error {
	raw, err := s.queryPrefix(ctx, algorithmID, prefix, true)
	if err != nil {
		return pkgerrors.NewDatabaseError("list "+prefix, err)
	}

	requests := make([]types.WriteRequest, 0, len(raw))
	for _, item := range raw {
		requests = append(requests, types.WriteRequest{
			DeleteRequest: &types.DeleteRequest{Key: map[string]types.AttributeValue{
				"PK": item["PK"],
				"SK": item["SK"],
			}},
		})
	}
	if err := batchWrite(ctx, s.client, s.tableName, requests); err != nil {
		return pkgerrors.NewDatabaseError("delete "+prefix, err)
	}
	return nil
}
