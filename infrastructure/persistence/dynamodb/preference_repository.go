package dynamodb

import (
	"context"
	"fmt"
	"sort"
	"strings"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/feature/dynamodb/attributevalue"
	"github.com/aws/aws-sdk-go-v2/feature/dynamodb/expression"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb/types"
	"go.uber.org/zap"

	"feedrank/domain/core/entities"
	"feedrank/domain/core/valueobjects"
	pkgerrors "feedrank/pkg/errors"
)

// PreferenceRepository implements ports.PreferenceRepository.
// A user's partition holds one PREF#<algorithmID> item per install and a
// single ACTIVE item pointing at the active algorithm.
type PreferenceRepository struct {
	*Store
}

type preferenceItem struct {
	PK           string                 `dynamodbav:"PK"`
	SK           string                 `dynamodbav:"SK"`
	GSI1PK       string                 `dynamodbav:"GSI1PK"`
	GSI1SK       string                 `dynamodbav:"GSI1SK"`
	EntityType   string                 `dynamodbav:"EntityType"`
	UserID       string                 `dynamodbav:"UserID"`
	AlgorithmID  string                 `dynamodbav:"AlgorithmID"`
	CustomConfig map[string]interface{} `dynamodbav:"CustomConfig,omitempty"`
	Priority     int                    `dynamodbav:"Priority"`
	InstalledAt  string                 `dynamodbav:"InstalledAt"`
	UpdatedAt    string                 `dynamodbav:"UpdatedAt"`
}

type activeItem struct {
	PK          string `dynamodbav:"PK"`
	SK          string `dynamodbav:"SK"`
	EntityType  string `dynamodbav:"EntityType"`
	AlgorithmID string `dynamodbav:"AlgorithmID"`
	UpdatedAt   string `dynamodbav:"UpdatedAt"`
}

func newPreferenceItem(p *entities.Preference) preferenceItem {
	return preferenceItem{
		PK:           userPK(p.UserID),
		SK:           prefSKPrefix + p.AlgorithmID,
		GSI1PK:       installsGSI1PK(p.AlgorithmID),
		GSI1SK:       userPK(p.UserID),
		EntityType:   "PREFERENCE",
		UserID:       p.UserID,
		AlgorithmID:  p.AlgorithmID,
		CustomConfig: p.CustomConfig,
		Priority:     p.Priority,
		InstalledAt:  p.InstalledAt.UTC().Format(time.RFC3339Nano),
		UpdatedAt:    p.UpdatedAt.UTC().Format(time.RFC3339Nano),
	}
}

func (i preferenceItem) toDomain(activeID string) *entities.Preference {
	installedAt, _ := time.Parse(time.RFC3339Nano, i.InstalledAt)
	updatedAt, _ := time.Parse(time.RFC3339Nano, i.UpdatedAt)
	return &entities.Preference{
		UserID:       i.UserID,
		AlgorithmID:  i.AlgorithmID,
		IsInstalled:  true,
		IsActive:     activeID != "" && activeID == i.AlgorithmID,
		CustomConfig: i.CustomConfig,
		Priority:     i.Priority,
		InstalledAt:  installedAt,
		UpdatedAt:    updatedAt,
	}
}

// Install writes the preference and increments the algorithm's install count in
// one transaction. An existing preference only has its custom config replaced.
func (r *PreferenceRepository) Install(ctx context.Context, pref *entities.Preference) (bool, error) {
	existing, err := r.getPreference(ctx, pref.UserID, pref.AlgorithmID)
	if err != nil && !pkgerrors.IsNotFound(err) {
		return false, err
	}
	if existing != nil {
		return false, r.replaceCustomConfig(ctx, pref)
	}

	av, err := attributevalue.MarshalMap(newPreferenceItem(pref))
	if err != nil {
		return false, fmt.Errorf("failed to marshal preference: %w", err)
	}

	_, err = r.client.TransactWriteItems(ctx, &dynamodb.TransactWriteItemsInput{
		TransactItems: []types.TransactWriteItem{
			{Put: &types.Put{
				TableName:           aws.String(r.tableName),
				Item:                av,
				ConditionExpression: aws.String("attribute_not_exists(PK)"),
			}},
			{Update: &types.Update{
				TableName:           aws.String(r.tableName),
				Key:                 keyOf(algorithmPK(pref.AlgorithmID), metadataSK),
				UpdateExpression:    aws.String("ADD InstallCount :one"),
				ConditionExpression: aws.String("attribute_exists(PK)"),
				ExpressionAttributeValues: map[string]types.AttributeValue{
					":one": &types.AttributeValueMemberN{Value: "1"},
				},
			}},
		},
	})
	if err != nil {
		switch {
		case cancelledAt(err, 0):
			// A concurrent install won the race; this one becomes a reinstall.
			return false, r.replaceCustomConfig(ctx, pref)
		case cancelledAt(err, 1):
			return false, pkgerrors.NewNotFoundError("algorithm")
		}
		r.logger.Error("Failed to install algorithm",
			zap.String("userID", pref.UserID),
			zap.String("algorithmID", pref.AlgorithmID),
			zap.Error(err),
		)
		return false, pkgerrors.NewDatabaseError("install algorithm", err)
	}
	return true, nil
}

func (r *PreferenceRepository) replaceCustomConfig(ctx context.Context, pref *entities.Preference) error {
	update := expression.
		Set(expression.Name("CustomConfig"), expression.Value(pref.CustomConfig)).
		Set(expression.Name("UpdatedAt"), expression.Value(pref.UpdatedAt.UTC().Format(time.RFC3339Nano)))
	expr, err := expression.NewBuilder().
		WithUpdate(update).
		WithCondition(expression.AttributeExists(expression.Name("PK"))).
		Build()
	if err != nil {
		return fmt.Errorf("failed to build preference update: %w", err)
	}

	_, err = r.client.UpdateItem(ctx, &dynamodb.UpdateItemInput{
		TableName:                 aws.String(r.tableName),
		Key:                       keyOf(userPK(pref.UserID), prefSKPrefix+pref.AlgorithmID),
		UpdateExpression:          expr.Update(),
		ConditionExpression:       expr.Condition(),
		ExpressionAttributeNames:  expr.Names(),
		ExpressionAttributeValues: expr.Values(),
	})
	if err != nil {
		if isConditionalCheckFailed(err) {
			return pkgerrors.NewNotFoundError("preference")
		}
		return pkgerrors.NewDatabaseError("update preference", err)
	}
	return nil
}

// Uninstall deletes the preference, decrements the install count and clears the
// active pointer when it pointed at this algorithm, all in one transaction.
func (r *PreferenceRepository) Uninstall(ctx context.Context, userID string, algorithmID valueobjects.AlgorithmID) (bool, error) {
	id := algorithmID.String()

	activeID, err := r.activeAlgorithmID(ctx, userID)
	if err != nil {
		return false, err
	}
	wasActive := activeID == id

	items := []types.TransactWriteItem{
		{Delete: &types.Delete{
			TableName:           aws.String(r.tableName),
			Key:                 keyOf(userPK(userID), prefSKPrefix+id),
			ConditionExpression: aws.String("attribute_exists(PK)"),
		}},
		{Update: &types.Update{
			TableName:           aws.String(r.tableName),
			Key:                 keyOf(algorithmPK(id), metadataSK),
			UpdateExpression:    aws.String("ADD InstallCount :minusOne"),
			ConditionExpression: aws.String("attribute_exists(PK)"),
			ExpressionAttributeValues: map[string]types.AttributeValue{
				":minusOne": &types.AttributeValueMemberN{Value: "-1"},
			},
		}},
	}
	if wasActive {
		items = append(items, types.TransactWriteItem{Delete: &types.Delete{
			TableName:           aws.String(r.tableName),
			Key:                 keyOf(userPK(userID), activeSK),
			ConditionExpression: aws.String("AlgorithmID = :id"),
			ExpressionAttributeValues: map[string]types.AttributeValue{
				":id": &types.AttributeValueMemberS{Value: id},
			},
		}})
	}

	if _, err := r.client.TransactWriteItems(ctx, &dynamodb.TransactWriteItemsInput{TransactItems: items}); err != nil {
		if cancelledAt(err, 0) {
			return false, pkgerrors.NewNotFoundError("preference")
		}
		if cancelledAt(err, 1) {
			// The algorithm is gone; its installs are removed by DeleteByAlgorithm.
			return false, pkgerrors.NewNotFoundError("algorithm")
		}
		return false, pkgerrors.NewDatabaseError("uninstall algorithm", err)
	}
	return wasActive, nil
}

// Get returns one preference with IsActive populated
func (r *PreferenceRepository) Get(ctx context.Context, userID string, algorithmID valueobjects.AlgorithmID) (*entities.Preference, error) {
	item, err := r.getPreference(ctx, userID, algorithmID.String())
	if err != nil {
		return nil, err
	}
	activeID, err := r.activeAlgorithmID(ctx, userID)
	if err != nil {
		return nil, err
	}
	return item.toDomain(activeID), nil
}

// ListByUser reads the user's partition once: every PREF# item plus the ACTIVE item
func (r *PreferenceRepository) ListByUser(ctx context.Context, userID string) ([]*entities.Preference, error) {
	keyCond := expression.Key("PK").Equal(expression.Value(userPK(userID)))
	expr, err := expression.NewBuilder().WithKeyCondition(keyCond).Build()
	if err != nil {
		return nil, fmt.Errorf("failed to build preference query: %w", err)
	}

	raw, err := queryAll(ctx, r.client, &dynamodb.QueryInput{
		TableName:                 aws.String(r.tableName),
		KeyConditionExpression:    expr.KeyCondition(),
		ExpressionAttributeNames:  expr.Names(),
		ExpressionAttributeValues: expr.Values(),
		ConsistentRead:            aws.Bool(true),
	})
	if err != nil {
		return nil, pkgerrors.NewDatabaseError("list preferences", err)
	}

	var activeID string
	var items []preferenceItem
	for _, av := range raw {
		sk, _ := av["SK"].(*types.AttributeValueMemberS)
		if sk == nil {
			continue
		}
		switch {
		case sk.Value == activeSK:
			var a activeItem
			if err := attributevalue.UnmarshalMap(av, &a); err != nil {
				return nil, fmt.Errorf("failed to unmarshal active pointer: %w", err)
			}
			activeID = a.AlgorithmID
		case strings.HasPrefix(sk.Value, prefSKPrefix):
			var p preferenceItem
			if err := attributevalue.UnmarshalMap(av, &p); err != nil {
				return nil, fmt.Errorf("failed to unmarshal preference: %w", err)
			}
			items = append(items, p)
		}
	}

	out := make([]*entities.Preference, 0, len(items))
	for _, item := range items {
		out = append(out, item.toDomain(activeID))
	}
	sort.SliceStable(out, func(i, j int) bool { return out[i].InstalledAt.Before(out[j].InstalledAt) })
	return out, nil
}

// GetActive returns the user's active preference, or a not-found error
func (r *PreferenceRepository) GetActive(ctx context.Context, userID string) (*entities.Preference, error) {
	activeID, err := r.activeAlgorithmID(ctx, userID)
	if err != nil {
		return nil, err
	}
	if activeID == "" {
		return nil, pkgerrors.NewNotFoundError("active algorithm")
	}

	item, err := r.getPreference(ctx, userID, activeID)
	if err != nil {
		if pkgerrors.IsNotFound(err) {
			return nil, pkgerrors.NewNotFoundError("active algorithm")
		}
		return nil, err
	}
	return item.toDomain(activeID), nil
}

// SetActive replaces the ACTIVE item, conditioned on the preference existing
func (r *PreferenceRepository) SetActive(ctx context.Context, userID string, algorithmID valueobjects.AlgorithmID) (string, error) {
	id := algorithmID.String()

	previous, err := r.activeAlgorithmID(ctx, userID)
	if err != nil {
		return "", err
	}

	av, err := attributevalue.MarshalMap(activeItem{
		PK:          userPK(userID),
		SK:          activeSK,
		EntityType:  "ACTIVE",
		AlgorithmID: id,
		UpdatedAt:   r.now().UTC().Format(time.RFC3339Nano),
	})
	if err != nil {
		return "", fmt.Errorf("failed to marshal active pointer: %w", err)
	}

	_, err = r.client.TransactWriteItems(ctx, &dynamodb.TransactWriteItemsInput{
		TransactItems: []types.TransactWriteItem{
			{Put: &types.Put{
				TableName: aws.String(r.tableName),
				Item:      av,
			}},
			{ConditionCheck: &types.ConditionCheck{
				TableName:           aws.String(r.tableName),
				Key:                 keyOf(userPK(userID), prefSKPrefix+id),
				ConditionExpression: aws.String("attribute_exists(PK)"),
			}},
		},
	})
	if err != nil {
		if cancelledAt(err, 1) {
			return "", pkgerrors.NewConflictError("algorithm is not installed").WithCode(pkgerrors.CodeAlgorithmNotInstalled)
		}
		return "", pkgerrors.NewDatabaseError("set active algorithm", err)
	}
	return previous, nil
}

// CountInstalls reads the counter maintained by Install and Uninstall
func (r *PreferenceRepository) CountInstalls(ctx context.Context, algorithmID valueobjects.AlgorithmID) (int, error) {
	out, err := r.client.GetItem(ctx, &dynamodb.GetItemInput{
		TableName:            aws.String(r.tableName),
		Key:                  keyOf(algorithmPK(algorithmID.String()), metadataSK),
		ProjectionExpression: aws.String("InstallCount"),
		ConsistentRead:       aws.Bool(true),
	})
	if err != nil {
		return 0, pkgerrors.NewDatabaseError("count installs", err)
	}
	if out.Item == nil {
		return 0, nil
	}
	var counter struct {
		InstallCount int `dynamodbav:"InstallCount"`
	}
	if err := attributevalue.UnmarshalMap(out.Item, &counter); err != nil {
		return 0, fmt.Errorf("failed to unmarshal install count: %w", err)
	}
	return counter.InstallCount, nil
}

// DeleteByAlgorithm removes every install of an algorithm found through GSI1
// and clears any ACTIVE items still pointing at it
func (r *PreferenceRepository) DeleteByAlgorithm(ctx context.Context, algorithmID valueobjects.AlgorithmID) (int, error) {
	id := algorithmID.String()

	keyCond := expression.Key("GSI1PK").Equal(expression.Value(installsGSI1PK(id)))
	expr, err := expression.NewBuilder().WithKeyCondition(keyCond).Build()
	if err != nil {
		return 0, fmt.Errorf("failed to build installs query: %w", err)
	}

	raw, err := queryAll(ctx, r.client, &dynamodb.QueryInput{
		TableName:                 aws.String(r.tableName),
		IndexName:                 aws.String(r.indexName),
		KeyConditionExpression:    expr.KeyCondition(),
		ExpressionAttributeNames:  expr.Names(),
		ExpressionAttributeValues: expr.Values(),
	})
	if err != nil {
		return 0, pkgerrors.NewDatabaseError("list installs", err)
	}

	var items []preferenceItem
	if err := attributevalue.UnmarshalListOfMaps(raw, &items); err != nil {
		return 0, fmt.Errorf("failed to unmarshal installs: %w", err)
	}

	requests := make([]types.WriteRequest, 0, len(items))
	for _, item := range items {
		requests = append(requests, types.WriteRequest{
			DeleteRequest: &types.DeleteRequest{Key: keyOf(item.PK, item.SK)},
		})
	}
	if err := batchWrite(ctx, r.client, r.tableName, requests); err != nil {
		return 0, pkgerrors.NewDatabaseError("delete installs", err)
	}

	for _, item := range items {
		_, err := r.client.DeleteItem(ctx, &dynamodb.DeleteItemInput{
			TableName:           aws.String(r.tableName),
			Key:                 keyOf(userPK(item.UserID), activeSK),
			ConditionExpression: aws.String("AlgorithmID = :id"),
			ExpressionAttributeValues: map[string]types.AttributeValue{
				":id": &types.AttributeValueMemberS{Value: id},
			},
		})
		if err != nil && !isConditionalCheckFailed(err) {
			r.logger.Warn("Failed to clear active pointer",
				zap.String("userID", item.UserID),
				zap.String("algorithmID", id),
				zap.Error(err),
			)
		}
	}
	return len(items), nil
}

func (r *PreferenceRepository) getPreference(ctx context.Context, userID, algorithmID string) (*preferenceItem, error) {
	out, err := r.client.GetItem(ctx, &dynamodb.GetItemInput{
		TableName:      aws.String(r.tableName),
		Key:            keyOf(userPK(userID), prefSKPrefix+algorithmID),
		ConsistentRead: aws.Bool(true),
	})
	if err != nil {
		return nil, pkgerrors.NewDatabaseError("get preference", err)
	}
	if out.Item == nil {
		return nil, pkgerrors.NewNotFoundError("preference")
	}

	var item preferenceItem
	if err := attributevalue.UnmarshalMap(out.Item, &item); err != nil {
		return nil, fmt.Errorf("failed to unmarshal preference: %w", err)
	}
	return &item, nil
}

// activeAlgorithmID returns "" when the user has no active algorithm
func (r *PreferenceRepository) activeAlgorithmID(ctx context.Context, userID string) (string, error) {
	out, err := r.client.GetItem(ctx, &dynamodb.GetItemInput{
		TableName:      aws.String(r.tableName),
		Key:            keyOf(userPK(userID), activeSK),
		ConsistentRead: aws.Bool(true),
	})
	if err != nil {
		return "", pkgerrors.NewDatabaseError("get active algorithm", err)
	}
	if out.Item == nil {
		return "", nil
	}

	var a activeItem
	if err := attributevalue.UnmarshalMap(out.Item, &a); err != nil {
		return "", fmt.Errorf("failed to unmarshal active pointer: %w", err)
	}
	return a.AlgorithmID, nil
}
