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

// RevisionRepository implements ports.RevisionRepository. Sort keys embed the
// creation time so a reverse query returns the newest revisions first.
type RevisionRepository struct {
	*Store
}

type revisionItem struct {
	PK          string                     `dynamodbav:"PK"`
	SK          string                     `dynamodbav:"SK"`
	EntityType  string                     `dynamodbav:"EntityType"`
	RevisionID  string                     `dynamodbav:"RevisionID"`
	AlgorithmID string                     `dynamodbav:"AlgorithmID"`
	Version     string                     `dynamodbav:"Version"`
	Definition  entities.AlgorithmSnapshot `dynamodbav:"Definition"`
	Checksum    string                     `dynamodbav:"Checksum"`
	EditorID    string                     `dynamodbav:"EditorID"`
	ChangeNotes string                     `dynamodbav:"ChangeNotes"`
	CreatedAt   string                     `dynamodbav:"CreatedAt"`
}

func revisionSK(r *entities.Revision) string {
	return fmt.Sprintf("%s%s#%s", revSKPrefix, r.CreatedAt.UTC().Format("20060102T150405.000000000Z"), r.ID)
}

// Save appends a revision; revisions are never overwritten
func (r *RevisionRepository) Save(ctx context.Context, revision *entities.Revision) error {
	av, err := attributevalue.MarshalMap(revisionItem{
		PK:          algorithmPK(revision.AlgorithmID),
		SK:          revisionSK(revision),
		EntityType:  "REVISION",
		RevisionID:  revision.ID,
		AlgorithmID: revision.AlgorithmID,
		Version:     revision.Version,
		Definition:  revision.Definition,
		Checksum:    revision.Checksum,
		EditorID:    revision.EditorID,
		ChangeNotes: revision.ChangeNotes,
		CreatedAt:   revision.CreatedAt.UTC().Format(time.RFC3339Nano),
	})
	if err != nil {
		return fmt.Errorf("failed to marshal revision: %w", err)
	}

	_, err = r.client.PutItem(ctx, &dynamodb.PutItemInput{
		TableName:           aws.String(r.tableName),
		Item:                av,
		ConditionExpression: aws.String("attribute_not_exists(PK)"),
	})
	if err != nil {
		if isConditionalCheckFailed(err) {
			return pkgerrors.NewConflictError("revision already exists")
		}
		return pkgerrors.NewDatabaseError("save revision", err)
	}
	return nil
}

// ListByAlgorithm returns up to limit revisions, newest first. limit <= 0 returns all.
func (r *RevisionRepository) ListByAlgorithm(ctx context.Context, algorithmID valueobjects.AlgorithmID, limit int) ([]*entities.Revision, error) {
	keyCond := expression.Key("PK").Equal(expression.Value(algorithmPK(algorithmID.String()))).
		And(expression.Key("SK").BeginsWith(revSKPrefix))
	expr, err := expression.NewBuilder().WithKeyCondition(keyCond).Build()
	if err != nil {
		return nil, fmt.Errorf("failed to build revision query: %w", err)
	}

	input := &dynamodb.QueryInput{
		TableName:                 aws.String(r.tableName),
		KeyConditionExpression:    expr.KeyCondition(),
		ExpressionAttributeNames:  expr.Names(),
		ExpressionAttributeValues: expr.Values(),
		ScanIndexForward:          aws.Bool(false),
	}

	var raw []map[string]types.AttributeValue
	if limit > 0 {
		input.Limit = aws.Int32(int32(limit))
		out, err := r.client.Query(ctx, input)
		if err != nil {
			return nil, pkgerrors.NewDatabaseError("list revisions", err)
		}
		raw = out.Items
	} else {
		raw, err = queryAll(ctx, r.client, input)
		if err != nil {
			return nil, pkgerrors.NewDatabaseError("list revisions", err)
		}
	}

	var items []revisionItem
	if err := attributevalue.UnmarshalListOfMaps(raw, &items); err != nil {
		return nil, fmt.Errorf("failed to unmarshal revisions: %w", err)
	}

	out := make([]*entities.Revision, 0, len(items))
	for _, item := range items {
		createdAt, _ := time.Parse(time.RFC3339Nano, item.CreatedAt)
		out = append(out, &entities.Revision{
			ID:          item.RevisionID,
			AlgorithmID: item.AlgorithmID,
			Version:     item.Version,
			Definition:  item.Definition,
			Checksum:    item.Checksum,
			EditorID:    item.EditorID,
			ChangeNotes: item.ChangeNotes,
			CreatedAt:   createdAt,
		})
	}
	return out, nil
}

// DeleteByAlgorithm removes all revisions for an algorithm
func (r *RevisionRepository) DeleteByAlgorithm(ctx context.Context, algorithmID valueobjects.AlgorithmID) error {
	return r.deletePrefix(ctx, algorithmID.String(), revSKPrefix)
}

// Prune deletes all but the newest keep revisions. keep <= 0 deletes nothing.
func (r *RevisionRepository) Prune(ctx context.Context, algorithmID valueobjects.AlgorithmID, keep int) (int, error) {
	if keep <= 0 {
		return 0, nil
	}
	raw, err := r.queryPrefix(ctx, algorithmID.String(), revSKPrefix, false)
	if err != nil {
		return 0, pkgerrors.NewDatabaseError("list revisions", err)
	}
	if len(raw) <= keep {
		return 0, nil
	}

	stale := raw[keep:]
	requests := make([]types.WriteRequest, 0, len(stale))
	for _, item := range stale {
		requests = append(requests, types.WriteRequest{
			DeleteRequest: &types.DeleteRequest{Key: map[string]types.AttributeValue{
				"PK": item["PK"],
				"SK": item["SK"],
			}},
		})
	}
	if err := batchWrite(ctx, r.client, r.tableName, requests); err != nil {
		return 0, pkgerrors.NewDatabaseError("prune revisions", err)
	}
	return len(stale), nil
}
