package dynamodb

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/feature/dynamodb/attributevalue"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb/types"
	"go.uber.org/zap"
)

// ErrLockHeld is returned when another owner holds an unexpired lock
var ErrLockHeld = errors.New("lock already held")

// DistributedLock provides distributed locking using DynamoDB conditional writes.
// Cold-starting instances use it so only one of them seeds the official catalog.
type DistributedLock struct {
	client    API
	tableName string
	logger    *zap.Logger
	now       func() time.Time
}

// lockRecord represents a lock record in DynamoDB
type lockRecord struct {
	PK         string `dynamodbav:"PK"`         // LOCK#<resource_name>
	SK         string `dynamodbav:"SK"`         // LOCK
	LockID     string `dynamodbav:"LockID"`     // Unique lock identifier
	Owner      string `dynamodbav:"Owner"`      // Lock owner identifier
	AcquiredAt string `dynamodbav:"AcquiredAt"` // RFC3339 timestamp
	ExpiresAt  int64  `dynamodbav:"ExpiresAt"`  // Unix millis
	TTL        int64  `dynamodbav:"TTL"`        // Unix timestamp for DynamoDB TTL
}

// NewDistributedLock creates a new distributed lock instance
func NewDistributedLock(client API, tableName string, logger *zap.Logger) *DistributedLock {
	return &DistributedLock{
		client:    client,
		tableName: tableName,
		logger:    logger,
		now:       time.Now,
	}
}

// AcquireLock attempts to acquire a distributed lock for the given resource
func (dl *DistributedLock) AcquireLock(ctx context.Context, resourceName, ownerID string, lockDuration time.Duration) (*Lock, error) {
	now := dl.now()
	expiresAt := now.Add(lockDuration)
	lockID := fmt.Sprintf("%s_%d", ownerID, now.UnixNano())

	item, err := attributevalue.MarshalMap(lockRecord{
		PK:         "LOCK#" + resourceName,
		SK:         "LOCK",
		LockID:     lockID,
		Owner:      ownerID,
		AcquiredAt: now.UTC().Format(time.RFC3339),
		ExpiresAt:  expiresAt.UnixMilli(),
		TTL:        expiresAt.Unix(),
	})
	if err != nil {
		return nil, fmt.Errorf("failed to marshal lock: %w", err)
	}

	// Try to acquire the lock using conditional write
	_, err = dl.client.PutItem(ctx, &dynamodb.PutItemInput{
		TableName:           aws.String(dl.tableName),
		Item:                item,
		ConditionExpression: aws.String("attribute_not_exists(PK) OR ExpiresAt < :now"),
		ExpressionAttributeValues: map[string]types.AttributeValue{
			":now": &types.AttributeValueMemberN{Value: fmt.Sprintf("%d", now.UnixMilli())},
		},
	})
	if err != nil {
		if isConditionalCheckFailed(err) {
			dl.logger.Debug("Lock already held",
				zap.String("resource", resourceName),
				zap.String("owner", ownerID),
			)
			return nil, fmt.Errorf("%w: %s", ErrLockHeld, resourceName)
		}
		return nil, fmt.Errorf("failed to acquire lock: %w", err)
	}

	dl.logger.Debug("Lock acquired",
		zap.String("resource", resourceName),
		zap.String("lockID", lockID),
		zap.Duration("duration", lockDuration),
	)

	return &Lock{
		distributedLock: dl,
		resourceName:    resourceName,
		lockID:          lockID,
		ownerID:         ownerID,
		expiresAt:       expiresAt,
	}, nil
}

// ReleaseLock releases the specified lock
func (dl *DistributedLock) ReleaseLock(ctx context.Context, resourceName, lockID, ownerID string) error {
	_, err := dl.client.DeleteItem(ctx, &dynamodb.DeleteItemInput{
		TableName:           aws.String(dl.tableName),
		Key:                 keyOf("LOCK#"+resourceName, "LOCK"),
		ConditionExpression: aws.String("LockID = :lockId AND #owner = :owner"),
		ExpressionAttributeNames: map[string]string{
			"#owner": "Owner",
		},
		ExpressionAttributeValues: map[string]types.AttributeValue{
			":lockId": &types.AttributeValueMemberS{Value: lockID},
			":owner":  &types.AttributeValueMemberS{Value: ownerID},
		},
	})
	if err != nil {
		if isConditionalCheckFailed(err) {
			dl.logger.Warn("Lock already released or owned by someone else",
				zap.String("resource", resourceName),
				zap.String("lockID", lockID),
			)
			return nil
		}
		return fmt.Errorf("failed to release lock: %w", err)
	}
	return nil
}

// WithLock runs fn while holding the lock. When another owner holds it, fn is
// skipped and skipped is true.
func (dl *DistributedLock) WithLock(ctx context.Context, resourceName, ownerID string, lockDuration time.Duration, fn func(ctx context.Context) error) (skipped bool, err error) {
	lock, err := dl.AcquireLock(ctx, resourceName, ownerID, lockDuration)
	if err != nil {
		if errors.Is(err, ErrLockHeld) {
			return true, nil
		}
		return false, err
	}
	defer func() {
		if releaseErr := lock.Release(context.WithoutCancel(ctx)); releaseErr != nil {
			dl.logger.Warn("Failed to release lock", zap.String("resource", resourceName), zap.Error(releaseErr))
		}
	}()
	return false, fn(ctx)
}

// Lock represents an acquired distributed lock
type Lock struct {
	distributedLock *DistributedLock
	resourceName    string
	lockID          string
	ownerID         string
	expiresAt       time.Time
}

// Release releases the lock
func (l *Lock) Release(ctx context.Context) error {
	return l.distributedLock.ReleaseLock(ctx, l.resourceName, l.lockID, l.ownerID)
}

// IsExpired checks if the lock has expired
func (l *Lock) IsExpired() bool {
	return l.distributedLock.now().After(l.expiresAt)
}
