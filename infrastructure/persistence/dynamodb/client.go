package dynamodb

import (
	"context"
	"errors"
	"fmt"

	"github.com/aws/aws-sdk-go-v2/service/dynamodb"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb/types"
)

// API is the subset of the DynamoDB client the repositories use
type API interface {
	GetItem(ctx context.Context, params *dynamodb.GetItemInput, optFns ...func(*dynamodb.Options)) (*dynamodb.GetItemOutput, error)
	PutItem(ctx context.Context, params *dynamodb.PutItemInput, optFns ...func(*dynamodb.Options)) (*dynamodb.PutItemOutput, error)
	UpdateItem(ctx context.Context, params *dynamodb.UpdateItemInput, optFns ...func(*dynamodb.Options)) (*dynamodb.UpdateItemOutput, error)
	DeleteItem(ctx context.Context, params *dynamodb.DeleteItemInput, optFns ...func(*dynamodb.Options)) (*dynamodb.DeleteItemOutput, error)
	Query(ctx context.Context, params *dynamodb.QueryInput, optFns ...func(*dynamodb.Options)) (*dynamodb.QueryOutput, error)
	BatchWriteItem(ctx context.Context, params *dynamodb.BatchWriteItemInput, optFns ...func(*dynamodb.Options)) (*dynamodb.BatchWriteItemOutput, error)
	TransactWriteItems(ctx context.Context, params *dynamodb.TransactWriteItemsInput, optFns ...func(*dynamodb.Options)) (*dynamodb.TransactWriteItemsOutput, error)
}

var _ API = (*dynamodb.Client)(nil)

// Table keys. Every entity lives in one table; GSI1 is overloaded for the
// catalog listing and the per-algorithm install listing.
const (
	metadataSK     = "METADATA"
	activeSK       = "ACTIVE"
	slugSK         = "SLUG"
	catalogGSI1PK  = "ALGORITHM"
	prefSKPrefix   = "PREF#"
	ratingSKPrefix = "RATING#"
	revSKPrefix    = "REV#"

	// batchWriteLimit is DynamoDB's per-request item cap for BatchWriteItem
	batchWriteLimit = 25
)

func algorithmPK(id string) string { return "ALG#" + id }
func userPK(userID string) string { return "USER#" + userID }
func slugPK(slug string) string { return "SLUG#" + slug }
func installsGSI1PK(id string) string { return "INSTALLS#" + id }

func keyOf(pk, sk string) map[string]types.AttributeValue {
	return map[string]types.AttributeValue{
		"PK": &types.AttributeValueMemberS{Value: pk},
		"SK": &types.AttributeValueMemberS{Value: sk},
	}
}

// cancelledAt reports whether a cancelled transaction failed its condition check at index i
func cancelledAt(err error, i int) bool {
	var cancelled *types.TransactionCanceledException
	if !errors.As(err, &cancelled) {
		return false
	}
	if i >= len(cancelled.CancellationReasons) {
		return false
	}
	code := cancelled.CancellationReasons[i].Code
	return code != nil && *code == "ConditionalCheckFailed"
}

func isConditionalCheckFailed(err error) bool {
	var ccf *types.ConditionalCheckFailedException
	return errors.As(err, &ccf)
}

// chunk splits write requests into BatchWriteItem-sized groups
func chunk(requests []types.WriteRequest) [][]types.WriteRequest {
	var chunks [][]types.WriteRequest
	for len(requests) > batchWriteLimit {
		chunks = append(chunks, requests[:batchWriteLimit])
		requests = requests[batchWriteLimit:]
	}
	if len(requests) > 0 {
		chunks = append(chunks, requests)
	}
	return chunks
}

// batchWrite sends the requests in chunks and retries unprocessed items a bounded number of times
func batchWrite(ctx context.Context, client API, table string, requests []types.WriteRequest) error {
	const maxRounds = 3
	for _, group := range chunk(requests) {
		pending := map[string][]types.WriteRequest{table: group}
		for round := 0; len(pending[table]) > 0; round++ {
			if round == maxRounds {
				return fmt.Errorf("batch write left %d unprocessed items", len(pending[table]))
			}
			out, err := client.BatchWriteItem(ctx, &dynamodb.BatchWriteItemInput{RequestItems: pending})
			if err != nil {
				return fmt.Errorf("batch write: %w", err)
			}
			pending = out.UnprocessedItems
		}
	}
	return nil
}

// queryAll pages through a query and returns every item
func queryAll(ctx context.Context, client API, input *dynamodb.QueryInput) ([]map[string]types.AttributeValue, error) {
	var items []map[string]types.AttributeValue
	paginator := dynamodb.NewQueryPaginator(client, input)
	for paginator.HasMorePages() {
		page, err := paginator.NextPage(ctx)
		if err != nil {
			return nil, err
		}
		items = append(items, page.Items...)
	}
	return items, nil
}
