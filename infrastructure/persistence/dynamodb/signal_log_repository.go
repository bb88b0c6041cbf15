package dynamodb

import (
	"context"
	"fmt"
	"time"

	"github.com/aws/aws-sdk-go-v2/feature/dynamodb/attributevalue"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb/types"
	"go.uber.org/zap"

	"feedrank/domain/core/entities"
	"feedrank/domain/core/valueobjects"
)

// SignalLogRepository implements ports.SignalLogRepository. Rows are grouped
// per algorithm and day and expire through the table's TTL attribute.
type SignalLogRepository struct {
	*Store
}

type signalLogItem struct {
	PK          string                `dynamodbav:"PK"`
	SK          string                `dynamodbav:"SK"`
	EntityType  string                `dynamodbav:"EntityType"`
	LogID       string                `dynamodbav:"LogID"`
	UserID      string                `dynamodbav:"UserID,omitempty"`
	PostID      string                `dynamodbav:"PostID"`
	AlgorithmID string                `dynamodbav:"AlgorithmID"`
	Score       float64               `dynamodbav:"Score"`
	Rank        int                   `dynamodbav:"Rank"`
	Signals     []valueobjects.Signal `dynamodbav:"Signals"`
	CreatedAt   string                `dynamodbav:"CreatedAt"`
	TTL         int64                 `dynamodbav:"TTL"`
}

func newSignalLogItem(l *entities.SignalLog, ttl time.Duration) signalLogItem {
	created := l.CreatedAt.UTC()
	return signalLogItem{
		PK:          fmt.Sprintf("SIGNALS#%s#%s", l.AlgorithmID, created.Format("2006-01-02")),
		SK:          fmt.Sprintf("%s#%s", created.Format(time.RFC3339Nano), l.ID),
		EntityType:  "SIGNAL_LOG",
		LogID:       l.ID,
		UserID:      l.UserID,
		PostID:      l.PostID,
		AlgorithmID: l.AlgorithmID,
		Score:       l.Score,
		Rank:        l.Rank,
		Signals:     l.Signals,
		CreatedAt:   created.Format(time.RFC3339Nano),
		TTL:         created.Add(ttl).Unix(),
	}
}

// SaveBatch writes the logs with BatchWriteItem, 25 at a time
func (r *SignalLogRepository) SaveBatch(ctx context.Context, logs []*entities.SignalLog) error {
	if len(logs) == 0 {
		return nil
	}

	requests := make([]types.WriteRequest, 0, len(logs))
	for _, l := range logs {
		av, err := attributevalue.MarshalMap(newSignalLogItem(l, r.signalLogTTL))
		if err != nil {
			return fmt.Errorf("failed to marshal signal log: %w", err)
		}
		requests = append(requests, types.WriteRequest{PutRequest: &types.PutRequest{Item: av}})
	}

	if err := batchWrite(ctx, r.client, r.tableName, requests); err != nil {
		return err
	}

	r.logger.Debug("Saved signal logs", zap.Int("count", len(logs)))
	return nil
}
