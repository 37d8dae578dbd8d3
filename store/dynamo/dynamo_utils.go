package dynamo

import (
	"context"
	"errors"
	"fmt"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/credentials"
	"github.com/aws/aws-sdk-go-v2/feature/dynamodb/attributevalue"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb/types"
	"github.com/wepaintai/wepaintai-sub000/store"
)

func newDynamoDBClient(ctx context.Context, devMode bool, dynamodbEndpoint string) (*dynamodb.Client, error) {
	var cfg aws.Config
	var err error

	if devMode {
		// Load config with dummy credentials and region for local/dev
		cfg, err = config.LoadDefaultConfig(ctx,
			config.WithRegion("us-east-1"),
			config.WithCredentialsProvider(
				credentials.NewStaticCredentialsProvider("dummy", "dummy", ""),
			),
		)
		if err != nil {
			return nil, err
		}

		// Override endpoint for DynamoDB locally
		return dynamodb.New(dynamodb.Options{
			Credentials:      cfg.Credentials,
			Region:           cfg.Region,
			EndpointResolver: dynamodb.EndpointResolverFromURL(dynamodbEndpoint),
		}), nil
	}

	// Production/Fargate: default config (uses Task Role and AWS endpoints)
	cfg, err = config.LoadDefaultConfig(ctx)
	if err != nil {
		return nil, err
	}

	return dynamodb.NewFromConfig(cfg), nil
}

func getTables(client *dynamodb.Client, ctx context.Context) ([]string, error) {
	output, err := client.ListTables(ctx, &dynamodb.ListTablesInput{})
	if err != nil {
		return nil, err
	}

	return output.TableNames, nil
}

// getItem retrieves an item of type T from DynamoDB by PK and SK
func getItem[T any](dynamoStore *DynamoPaintStore, ctx context.Context, pk string, sk string, consistentRead bool) (T, error) {
	var zero T

	key := map[string]types.AttributeValue{
		"PK": &types.AttributeValueMemberS{Value: pk},
		"SK": &types.AttributeValueMemberS{Value: sk},
	}

	resp, err := dynamoStore.client.GetItem(ctx, &dynamodb.GetItemInput{
		TableName:      aws.String(dynamoStore.tableName),
		Key:            key,
		ConsistentRead: aws.Bool(consistentRead),
	})
	if err != nil {
		return zero, fmt.Errorf("GetItem failed: %w", err)
	}
	if resp.Item == nil {
		return zero, store.ErrItemNotFound
	}

	var item T
	if err := attributevalue.UnmarshalMap(resp.Item, &item); err != nil {
		return zero, fmt.Errorf("failed to unmarshal item: %w", err)
	}

	return item, nil
}

// Generic function to ensure any struct with PK and SK exists
func ensureItem[T any](dynamoStore *DynamoPaintStore, ctx context.Context, item T) (T, bool, error) {
	avMap, err := attributevalue.MarshalMap(item)
	if err != nil {
		var zero T
		return zero, false, fmt.Errorf("marshal error: %w", err)
	}

	if _, ok := avMap["PK"]; !ok {
		var zero T
		return zero, false, errors.New("struct missing PK field")
	}
	if _, ok := avMap["SK"]; !ok {
		var zero T
		return zero, false, errors.New("struct missing SK field")
	}

	// Conditional PutItem: insert only if PK+SK does not exist
	_, err = dynamoStore.client.PutItem(ctx, &dynamodb.PutItemInput{
		TableName:           aws.String(dynamoStore.tableName),
		Item:                avMap,
		ConditionExpression: aws.String("attribute_not_exists(PK)"),
	})

	if err != nil {
		var cce *types.ConditionalCheckFailedException
		if errors.As(err, &cce) {
			// Already exists: fetch it
			key := map[string]types.AttributeValue{
				"PK": avMap["PK"],
				"SK": avMap["SK"],
			}
			getResp, err := dynamoStore.client.GetItem(ctx, &dynamodb.GetItemInput{
				TableName: aws.String(dynamoStore.tableName),
				Key:       key,
			})
			if err != nil {
				var zero T
				return zero, false, fmt.Errorf("failed to get existing item: %w", err)
			}
			if getResp.Item == nil {
				var zero T
				return zero, false, errors.New("item supposedly exists but GetItem returned nothing")
			}

			var existing T
			if err := attributevalue.UnmarshalMap(getResp.Item, &existing); err != nil {
				var zero T
				return zero, false, fmt.Errorf("failed to unmarshal existing item: %w", err)
			}
			return existing, false, nil
		}
		var zero T
		return zero, false, fmt.Errorf("failed to put item: %w", err)
	}

	return item, true, nil // Newly inserted
}

// queryByPK returns items of type T with the given PK, ordered by SK.
// afterSK restricts to SK strictly greater when non-empty. filter is an
// optional FilterExpression applied with the given values.
func queryByPK[T any](
	dynamoStore *DynamoPaintStore,
	ctx context.Context,
	pk string,
	afterSK string,
	scanIndexForward bool,
	limit int32,
	filter string,
	filterValues map[string]types.AttributeValue,
	filterNames map[string]string,
) ([]T, error) {
	var results []T

	keyCond := "PK = :pk"
	values := map[string]types.AttributeValue{
		":pk": &types.AttributeValueMemberS{Value: pk},
	}
	if afterSK != "" {
		keyCond = "PK = :pk AND SK > :after"
		values[":after"] = &types.AttributeValueMemberS{Value: afterSK}
	}
	for k, v := range filterValues {
		values[k] = v
	}

	input := &dynamodb.QueryInput{
		TableName:                 aws.String(dynamoStore.tableName),
		KeyConditionExpression:    aws.String(keyCond),
		ExpressionAttributeValues: values,
		ScanIndexForward:          aws.Bool(scanIndexForward),
	}
	if filter != "" {
		input.FilterExpression = aws.String(filter)
	}
	if len(filterNames) > 0 {
		input.ExpressionAttributeNames = filterNames
	}

	// Use pagination to retrieve all items.
	// FilterExpression applies after the per-page Limit, so the limit is
	// only enforced globally here, not pushed down.
	paginator := dynamodb.NewQueryPaginator(dynamoStore.client, input)

	for paginator.HasMorePages() {
		if limit > 0 && len(results) >= int(limit) {
			break
		}

		page, err := paginator.NextPage(ctx)
		if err != nil {
			return nil, fmt.Errorf("query failed: %w", err)
		}

		var pageItems []T
		if err := attributevalue.UnmarshalListOfMaps(page.Items, &pageItems); err != nil {
			return nil, fmt.Errorf("failed to unmarshal page items: %w", err)
		}

		results = append(results, pageItems...)
	}

	if limit > 0 && len(results) > int(limit) {
		results = results[:limit]
	}

	return results, nil
}

// queryFirstByPK returns the first matching item or store.ErrItemNotFound.
func queryFirstByPK[T any](
	dynamoStore *DynamoPaintStore,
	ctx context.Context,
	pk string,
	afterSK string,
	scanIndexForward bool,
	filter string,
	filterValues map[string]types.AttributeValue,
	filterNames map[string]string,
) (T, error) {
	items, err := queryByPK[T](dynamoStore, ctx, pk, afterSK, scanIndexForward, 1, filter, filterValues, filterNames)
	if err != nil {
		var zero T
		return zero, err
	}
	if len(items) == 0 {
		var zero T
		return zero, store.ErrItemNotFound
	}
	return items[0], nil
}

// writeBatchRequests writes up to 25 requests per BatchWriteItem call and
// returns the items that DynamoDB reported as unprocessed.
func writeBatchRequests[T any](dynamoStore *DynamoPaintStore, ctx context.Context, writeRequests []types.WriteRequest) ([]T, error) {
	var unprocessed []T

	for start := 0; start < len(writeRequests); start += 25 {
		end := start + 25
		if end > len(writeRequests) {
			end = len(writeRequests)
		}

		resp, err := dynamoStore.client.BatchWriteItem(ctx, &dynamodb.BatchWriteItemInput{
			RequestItems: map[string][]types.WriteRequest{
				dynamoStore.tableName: writeRequests[start:end],
			},
		})
		if err != nil {
			return unprocessed, fmt.Errorf("BatchWriteItem failed: %w", err)
		}

		for _, req := range resp.UnprocessedItems[dynamoStore.tableName] {
			if req.PutRequest == nil {
				continue
			}
			var item T
			if err := attributevalue.UnmarshalMap(req.PutRequest.Item, &item); err != nil {
				continue
			}
			unprocessed = append(unprocessed, item)
		}
	}

	return unprocessed, nil
}

// mapConditionErr translates DynamoDB conditional failures (including
// transaction cancellations caused by a failed condition) into the
// store's sentinel errors.
func mapConditionErr(err error) error {
	if err == nil {
		return nil
	}
	var cce *types.ConditionalCheckFailedException
	if errors.As(err, &cce) {
		return store.ErrConditionFailed
	}
	var tce *types.TransactionCanceledException
	if errors.As(err, &tce) {
		for _, reason := range tce.CancellationReasons {
			if reason.Code != nil && *reason.Code == "ConditionalCheckFailed" {
				return store.ErrConditionFailed
			}
		}
	}
	return err
}
