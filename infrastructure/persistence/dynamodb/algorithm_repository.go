package dynamodb

import (
	"context"
	"fmt"
	"sort"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/feature/dynamodb/attributevalue"
	"github.com/aws/aws-sdk-go-v2/feature/dynamodb/expression"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb/types"
	"go.uber.org/zap"

	"feedrank/application/ports"
	"feedrank/domain/core/entities"
	"feedrank/domain/core/valueobjects"
	pkgerrors "feedrank/pkg/errors"
)

// AlgorithmRepository implements ports.AlgorithmRepository.
// Slug uniqueness is enforced by a SLUG#<slug> item written in the same transaction.
type AlgorithmRepository struct {
	*Store
}

// algorithmItem represents the DynamoDB item structure for an algorithm
type algorithmItem struct {
	PK                 string                 `dynamodbav:"PK"`
	SK                 string                 `dynamodbav:"SK"`
	GSI1PK             string                 `dynamodbav:"GSI1PK"`
	GSI1SK             string                 `dynamodbav:"GSI1SK"`
	EntityType         string                 `dynamodbav:"EntityType"`
	AlgorithmID        string                 `dynamodbav:"AlgorithmID"`
	Name               string                 `dynamodbav:"Name"`
	Slug               string                 `dynamodbav:"Slug"`
	Description        string                 `dynamodbav:"Description"`
	CategorySlug       string                 `dynamodbav:"CategorySlug"`
	AuthorID           string                 `dynamodbav:"AuthorID"`
	IsOfficial         bool                   `dynamodbav:"IsOfficial"`
	IsPublic           bool                   `dynamodbav:"IsPublic"`
	Version            string                 `dynamodbav:"Version"`
	WeightConfig       map[string]float64     `dynamodbav:"WeightConfig"`
	SignalDescriptions map[string]string      `dynamodbav:"SignalDescriptions"`
	AlgorithmConfig    map[string]interface{} `dynamodbav:"AlgorithmConfig"`
	InstallCount       int                    `dynamodbav:"InstallCount"`
	AverageRating      float64                `dynamodbav:"AverageRating"`
	RatingCount        int                    `dynamodbav:"RatingCount"`
	CreatedAt          string                 `dynamodbav:"CreatedAt"`
	UpdatedAt          string                 `dynamodbav:"UpdatedAt"`
}

type slugItem struct {
	PK          string `dynamodbav:"PK"`
	SK          string `dynamodbav:"SK"`
	EntityType  string `dynamodbav:"EntityType"`
	AlgorithmID string `dynamodbav:"AlgorithmID"`
}

func (i algorithmItem) toDomain() (*entities.Algorithm, error) {
	createdAt, _ := time.Parse(time.RFC3339Nano, i.CreatedAt)
	updatedAt, _ := time.Parse(time.RFC3339Nano, i.UpdatedAt)
	return entities.ReconstructAlgorithm(entities.AlgorithmSnapshot{
		ID:                 i.AlgorithmID,
		Name:               i.Name,
		Slug:               i.Slug,
		Description:        i.Description,
		CategorySlug:       i.CategorySlug,
		AuthorID:           i.AuthorID,
		IsOfficial:         i.IsOfficial,
		IsPublic:           i.IsPublic,
		Version:            i.Version,
		WeightConfig:       i.WeightConfig,
		SignalDescriptions: i.SignalDescriptions,
		AlgorithmConfig:    i.AlgorithmConfig,
		InstallCount:       i.InstallCount,
		AverageRating:      i.AverageRating,
		RatingCount:        i.RatingCount,
		CreatedAt:          createdAt,
		UpdatedAt:          updatedAt,
	})
}

// Save writes the definition fields and claims the slug. Install and rating
// counters are only initialized here; they are maintained by their own writes.
func (r *AlgorithmRepository) Save(ctx context.Context, algorithm *entities.Algorithm) error {
	id := algorithm.ID().String()

	existing, err := r.getItem(ctx, id)
	if err != nil && !pkgerrors.IsNotFound(err) {
		return err
	}

	update := expression.
		Set(expression.Name("GSI1PK"), expression.Value(catalogGSI1PK)).
		Set(expression.Name("GSI1SK"), expression.Value(algorithm.Slug())).
		Set(expression.Name("EntityType"), expression.Value("ALGORITHM")).
		Set(expression.Name("AlgorithmID"), expression.Value(id)).
		Set(expression.Name("Name"), expression.Value(algorithm.Name())).
		Set(expression.Name("Slug"), expression.Value(algorithm.Slug())).
		Set(expression.Name("Description"), expression.Value(algorithm.Description())).
		Set(expression.Name("CategorySlug"), expression.Value(algorithm.CategorySlug())).
		Set(expression.Name("AuthorID"), expression.Value(algorithm.AuthorID())).
		Set(expression.Name("IsOfficial"), expression.Value(algorithm.IsOfficial())).
		Set(expression.Name("IsPublic"), expression.Value(algorithm.IsPublic())).
		Set(expression.Name("Version"), expression.Value(algorithm.Version())).
		Set(expression.Name("WeightConfig"), expression.Value(map[string]float64(algorithm.WeightConfig()))).
		Set(expression.Name("SignalDescriptions"), expression.Value(algorithm.SignalDescriptions())).
		Set(expression.Name("AlgorithmConfig"), expression.Value(map[string]interface{}(algorithm.AlgorithmConfig()))).
		Set(expression.Name("InstallCount"), expression.IfNotExists(expression.Name("InstallCount"), expression.Value(0))).
		Set(expression.Name("AverageRating"), expression.IfNotExists(expression.Name("AverageRating"), expression.Value(0))).
		Set(expression.Name("RatingCount"), expression.IfNotExists(expression.Name("RatingCount"), expression.Value(0))).
		Set(expression.Name("CreatedAt"), expression.Value(algorithm.CreatedAt().UTC().Format(time.RFC3339Nano))).
		Set(expression.Name("UpdatedAt"), expression.Value(algorithm.UpdatedAt().UTC().Format(time.RFC3339Nano)))

	expr, err := expression.NewBuilder().WithUpdate(update).Build()
	if err != nil {
		return fmt.Errorf("failed to build algorithm update: %w", err)
	}

	slugAV, err := attributevalue.MarshalMap(slugItem{
		PK:          slugPK(algorithm.Slug()),
		SK:          slugSK,
		EntityType:  "SLUG",
		AlgorithmID: id,
	})
	if err != nil {
		return fmt.Errorf("failed to marshal slug: %w", err)
	}

	idValue := map[string]types.AttributeValue{":id": &types.AttributeValueMemberS{Value: id}}
	items := []types.TransactWriteItem{
		{Update: &types.Update{
			TableName:                 aws.String(r.tableName),
			Key:                       keyOf(algorithmPK(id), metadataSK),
			UpdateExpression:          expr.Update(),
			ExpressionAttributeNames:  expr.Names(),
			ExpressionAttributeValues: expr.Values(),
		}},
		{Put: &types.Put{
			TableName:                 aws.String(r.tableName),
			Item:                      slugAV,
			ConditionExpression:       aws.String("attribute_not_exists(PK) OR AlgorithmID = :id"),
			ExpressionAttributeValues: idValue,
		}},
	}
	if existing != nil && existing.Slug != algorithm.Slug() {
		items = append(items, types.TransactWriteItem{Delete: &types.Delete{
			TableName:                 aws.String(r.tableName),
			Key:                       keyOf(slugPK(existing.Slug), slugSK),
			ConditionExpression:       aws.String("AlgorithmID = :id"),
			ExpressionAttributeValues: idValue,
		}})
	}

	if _, err := r.client.TransactWriteItems(ctx, &dynamodb.TransactWriteItemsInput{TransactItems: items}); err != nil {
		if cancelledAt(err, 1) {
			return pkgerrors.NewConflictError(fmt.Sprintf("slug %q is already taken", algorithm.Slug())).
				WithCode(pkgerrors.CodeSlugTaken)
		}
		r.logger.Error("Failed to save algorithm", zap.String("algorithmID", id), zap.Error(err))
		return pkgerrors.NewDatabaseError("save algorithm", err)
	}

	r.logger.Debug("Saved algorithm", zap.String("algorithmID", id), zap.String("slug", algorithm.Slug()))
	return nil
}

// GetByID retrieves an algorithm by its ID
func (r *AlgorithmRepository) GetByID(ctx context.Context, id valueobjects.AlgorithmID) (*entities.Algorithm, error) {
	item, err := r.getItem(ctx, id.String())
	if err != nil {
		return nil, err
	}
	return item.toDomain()
}

// GetBySlug resolves the slug item, then loads the algorithm it points at
func (r *AlgorithmRepository) GetBySlug(ctx context.Context, slug string) (*entities.Algorithm, error) {
	out, err := r.client.GetItem(ctx, &dynamodb.GetItemInput{
		TableName:      aws.String(r.tableName),
		Key:            keyOf(slugPK(slug), slugSK),
		ConsistentRead: aws.Bool(true),
	})
	if err != nil {
		return nil, pkgerrors.NewDatabaseError("get slug", err)
	}
	if out.Item == nil {
		return nil, pkgerrors.NewNotFoundError("algorithm")
	}

	var s slugItem
	if err := attributevalue.UnmarshalMap(out.Item, &s); err != nil {
		return nil, fmt.Errorf("failed to unmarshal slug: %w", err)
	}
	item, err := r.getItem(ctx, s.AlgorithmID)
	if err != nil {
		return nil, err
	}
	return item.toDomain()
}

// List queries the catalog partition of GSI1, most installed first
func (r *AlgorithmRepository) List(ctx context.Context, filter ports.AlgorithmFilter) ([]*entities.Algorithm, error) {
	builder := expression.NewBuilder().
		WithKeyCondition(expression.Key("GSI1PK").Equal(expression.Value(catalogGSI1PK)))

	var conds []expression.ConditionBuilder
	if filter.AuthorID != "" {
		conds = append(conds, expression.Name("AuthorID").Equal(expression.Value(filter.AuthorID)))
	}
	if filter.OfficialOnly {
		conds = append(conds, expression.Name("IsOfficial").Equal(expression.Value(true)))
	}
	if filter.CategorySlug != "" {
		conds = append(conds, expression.Name("CategorySlug").Equal(expression.Value(filter.CategorySlug)))
	}
	switch len(conds) {
	case 0:
	case 1:
		builder = builder.WithFilter(conds[0])
	default:
		builder = builder.WithFilter(expression.And(conds[0], conds[1], conds[2:]...))
	}

	expr, err := builder.Build()
	if err != nil {
		return nil, fmt.Errorf("failed to build catalog query: %w", err)
	}

	raw, err := queryAll(ctx, r.client, &dynamodb.QueryInput{
		TableName:                 aws.String(r.tableName),
		IndexName:                 aws.String(r.indexName),
		KeyConditionExpression:    expr.KeyCondition(),
		FilterExpression:          expr.Filter(),
		ExpressionAttributeNames:  expr.Names(),
		ExpressionAttributeValues: expr.Values(),
	})
	if err != nil {
		return nil, pkgerrors.NewDatabaseError("list algorithms", err)
	}

	var items []algorithmItem
	if err := attributevalue.UnmarshalListOfMaps(raw, &items); err != nil {
		return nil, fmt.Errorf("failed to unmarshal algorithms: %w", err)
	}

	out := make([]*entities.Algorithm, 0, len(items))
	for _, item := range items {
		a, err := item.toDomain()
		if err != nil {
			r.logger.Warn("Skipping malformed algorithm item", zap.String("algorithmID", item.AlgorithmID), zap.Error(err))
			continue
		}
		out = append(out, a)
	}
	sort.SliceStable(out, func(i, j int) bool {
		if out[i].InstallCount() != out[j].InstallCount() {
			return out[i].InstallCount() > out[j].InstallCount()
		}
		return out[i].Slug() < out[j].Slug()
	})
	return out, nil
}

// UpdateRatingStats stores a recomputed rating aggregate
func (r *AlgorithmRepository) UpdateRatingStats(ctx context.Context, id valueobjects.AlgorithmID, average float64, count int) error {
	update := expression.
		Set(expression.Name("AverageRating"), expression.Value(average)).
		Set(expression.Name("RatingCount"), expression.Value(count))
	expr, err := expression.NewBuilder().
		WithUpdate(update).
		WithCondition(expression.AttributeExists(expression.Name("PK"))).
		Build()
	if err != nil {
		return fmt.Errorf("failed to build rating update: %w", err)
	}

	_, err = r.client.UpdateItem(ctx, &dynamodb.UpdateItemInput{
		TableName:                 aws.String(r.tableName),
		Key:                       keyOf(algorithmPK(id.String()), metadataSK),
		UpdateExpression:          expr.Update(),
		ConditionExpression:       expr.Condition(),
		ExpressionAttributeNames:  expr.Names(),
		ExpressionAttributeValues: expr.Values(),
	})
	if err != nil {
		if isConditionalCheckFailed(err) {
			return pkgerrors.NewNotFoundError("algorithm")
		}
		return pkgerrors.NewDatabaseError("update rating stats", err)
	}
	return nil
}

// Delete removes the algorithm and releases its slug
func (r *AlgorithmRepository) Delete(ctx context.Context, id valueobjects.AlgorithmID) error {
	item, err := r.getItem(ctx, id.String())
	if err != nil {
		return err
	}

	_, err = r.client.TransactWriteItems(ctx, &dynamodb.TransactWriteItemsInput{
		TransactItems: []types.TransactWriteItem{
			{Delete: &types.Delete{
				TableName: aws.String(r.tableName),
				Key:       keyOf(algorithmPK(id.String()), metadataSK),
			}},
			{Delete: &types.Delete{
				TableName: aws.String(r.tableName),
				Key:       keyOf(slugPK(item.Slug), slugSK),
			}},
		},
	})
	if err != nil {
		return pkgerrors.NewDatabaseError("delete algorithm", err)
	}
	return nil
}

func (r *AlgorithmRepository) getItem(ctx context.Context, id string) (*algorithmItem, error) {
	out, err := r.client.GetItem(ctx, &dynamodb.GetItemInput{
		TableName:      aws.String(r.tableName),
		Key:            keyOf(algorithmPK(id), metadataSK),
		ConsistentRead: aws.Bool(true),
	})
	if err != nil {
		return nil, pkgerrors.NewDatabaseError("get algorithm", err)
	}
	if out.Item == nil {
		return nil, pkgerrors.NewNotFoundError("algorithm")
	}

	var item algorithmItem
	if err := attributevalue.UnmarshalMap(out.Item, &item); err != nil {
		return nil, fmt.Errorf("failed to unmarshal algorithm: %w", err)
	}
	return &item, nil
}
