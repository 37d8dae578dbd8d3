package dynamo

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/feature/dynamodb/attributevalue"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb/types"

	"github.com/wepaintai/wepaintai-sub000/models"
	"github.com/wepaintai/wepaintai-sub000/store"
)

type DynamoPaintStore struct {
	client    *dynamodb.Client
	tableName string
}

func NewDynamoPaintStore(ctx context.Context, devMode bool, dynamodbEndpoint string, tableName string) (*DynamoPaintStore, error) {
	client, err := newDynamoDBClient(context.Background(), devMode, dynamodbEndpoint)
	if err != nil {
		return nil, err
	}

	tables, err := getTables(client, ctx)
	if err != nil {
		return nil, err
	}

	foundTable := false
	for _, table := range tables {
		if table == tableName {
			foundTable = true
			break
		}
	}
	if !foundTable {
		return nil, fmt.Errorf("given table name '%s' not found in dynamodb", tableName)
	}

	return &DynamoPaintStore{client: client, tableName: tableName}, nil
}

func (dynamoStore *DynamoPaintStore) CreateSession(ctx context.Context, session models.Session) (models.Session, error) {
	ds := sessionToDynamo(session)
	ds.Created = time.Now().Unix()
	ds, _, err := ensureItem(dynamoStore, ctx, ds)
	if err != nil {
		return models.Session{}, err
	}

	return sessionFromDynamo(ds), nil
}

func (dynamoStore *DynamoPaintStore) GetSession(ctx context.Context, sessionId string) (models.Session, error) {
	ds, err := getItem[dynamoSession](dynamoStore, ctx, "SESSION#"+sessionId, "META", false)
	if err != nil {
		return models.Session{}, err
	}
	return sessionFromDynamo(ds), nil
}

// NextStrokeOrder is the single serialization point per session: an
// atomic ADD on the meta item, so no two concurrent commits can be
// handed the same value.
func (dynamoStore *DynamoPaintStore) NextStrokeOrder(ctx context.Context, sessionId string) (int64, error) {
	resp, err := dynamoStore.client.UpdateItem(ctx, &dynamodb.UpdateItemInput{
		TableName: aws.String(dynamoStore.tableName),
		Key: map[string]types.AttributeValue{
			"PK": &types.AttributeValueMemberS{Value: "SESSION#" + sessionId},
			"SK": &types.AttributeValueMemberS{Value: "META"},
		},
		UpdateExpression:    aws.String("ADD StrokeSeq :one"),
		ConditionExpression: aws.String("attribute_exists(PK)"),
		ExpressionAttributeValues: map[string]types.AttributeValue{
			":one": &types.AttributeValueMemberN{Value: "1"},
		},
		ReturnValues: types.ReturnValueUpdatedNew,
	})
	if err != nil {
		var cce *types.ConditionalCheckFailedException
		if errors.As(err, &cce) {
			return 0, store.ErrItemNotFound
		}
		return 0, fmt.Errorf("UpdateItem failed: %w", err)
	}

	n, ok := resp.Attributes["StrokeSeq"].(*types.AttributeValueMemberN)
	if !ok {
		return 0, errors.New("StrokeSeq missing from update response")
	}
	return strconv.ParseInt(n.Value, 10, 64)
}

func (dynamoStore *DynamoPaintStore) IncrementSessionStrokeCount(ctx context.Context, sessionId string, delta int) error {
	_, err := dynamoStore.client.UpdateItem(ctx, &dynamodb.UpdateItemInput{
		TableName: aws.String(dynamoStore.tableName),
		Key: map[string]types.AttributeValue{
			"PK": &types.AttributeValueMemberS{Value: "SESSION#" + sessionId},
			"SK": &types.AttributeValueMemberS{Value: "META"},
		},
		UpdateExpression:    aws.String("ADD StrokeCount :delta"),
		ConditionExpression: aws.String("attribute_exists(PK)"),
		ExpressionAttributeValues: map[string]types.AttributeValue{
			":delta": &types.AttributeValueMemberN{Value: strconv.Itoa(delta)},
		},
	})
	return mapConditionErr(err)
}

func (dynamoStore *DynamoPaintStore) SetClearedThrough(ctx context.Context, sessionId string, order int64) error {
	_, err := dynamoStore.client.UpdateItem(ctx, &dynamodb.UpdateItemInput{
		TableName: aws.String(dynamoStore.tableName),
		Key: map[string]types.AttributeValue{
			"PK": &types.AttributeValueMemberS{Value: "SESSION#" + sessionId},
			"SK": &types.AttributeValueMemberS{Value: "META"},
		},
		UpdateExpression:    aws.String("SET ClearedThrough = :o"),
		ConditionExpression: aws.String("attribute_exists(PK)"),
		ExpressionAttributeValues: map[string]types.AttributeValue{
			":o": &types.AttributeValueMemberN{Value: strconv.FormatInt(order, 10)},
		},
	})
	return mapConditionErr(err)
}

func (dynamoStore *DynamoPaintStore) WriteStrokeBatch(ctx context.Context, strokes []models.Stroke) ([]models.Stroke, error) {
	var writeRequests []types.WriteRequest
	for _, stroke := range strokes {
		ds := strokeToDynamo(stroke)
		avMap, err := attributevalue.MarshalMap(ds)
		if err != nil {
			return nil, fmt.Errorf("marshal error: %w", err)
		}

		writeRequests = append(writeRequests, types.WriteRequest{
			PutRequest: &types.PutRequest{
				Item: avMap,
			},
		})
	}

	unprocessed, err := writeBatchRequests[dynamoStroke](dynamoStore, ctx, writeRequests)

	unbatched := make([]models.Stroke, 0, len(unprocessed))
	for _, u := range unprocessed {
		unbatched = append(unbatched, strokeFromDynamo(u))
	}

	return unbatched, err
}

func (dynamoStore *DynamoPaintStore) ListStrokesSince(ctx context.Context, sessionId string, afterOrder int64, limit int32) ([]models.Stroke, error) {
	afterSK := ""
	if afterOrder > 0 {
		afterSK = padOrder(afterOrder)
	}
	dynamoStrokes, err := queryByPK[dynamoStroke](dynamoStore, ctx, "STROKE#"+sessionId, afterSK, true, limit, "", nil, nil)
	if err != nil {
		return []models.Stroke{}, err
	}

	strokes := make([]models.Stroke, 0, len(dynamoStrokes))
	for _, ds := range dynamoStrokes {
		strokes = append(strokes, strokeFromDynamo(ds))
	}

	return strokes, nil
}

func (dynamoStore *DynamoPaintStore) SetStrokeDeleted(ctx context.Context, sessionId string, order int64, deleted bool) error {
	_, err := dynamoStore.client.UpdateItem(ctx, &dynamodb.UpdateItemInput{
		TableName: aws.String(dynamoStore.tableName),
		Key: map[string]types.AttributeValue{
			"PK": &types.AttributeValueMemberS{Value: "STROKE#" + sessionId},
			"SK": &types.AttributeValueMemberS{Value: padOrder(order)},
		},
		UpdateExpression:    aws.String("SET #del = :d"),
		ConditionExpression: aws.String("attribute_exists(PK)"),
		ExpressionAttributeNames: map[string]string{
			"#del": "Deleted",
		},
		ExpressionAttributeValues: map[string]types.AttributeValue{
			":d": &types.AttributeValueMemberBOOL{Value: deleted},
		},
	})

	var cce *types.ConditionalCheckFailedException
	if errors.As(err, &cce) {
		return store.ErrItemNotFound
	}
	return err
}

func (dynamoStore *DynamoPaintStore) LatestNonDeletedStroke(ctx context.Context, sessionId string) (models.Stroke, error) {
	ds, err := queryFirstByPK[dynamoStroke](dynamoStore, ctx, "STROKE#"+sessionId, "", false,
		"#del = :del", map[string]types.AttributeValue{
			":del": &types.AttributeValueMemberBOOL{Value: false},
		}, map[string]string{"#del": "Deleted"})
	if err != nil {
		return models.Stroke{}, err
	}
	return strokeFromDynamo(ds), nil
}

func (dynamoStore *DynamoPaintStore) EarliestDeletedStrokeAfter(ctx context.Context, sessionId string, afterOrder int64) (models.Stroke, error) {
	ds, err := queryFirstByPK[dynamoStroke](dynamoStore, ctx, "STROKE#"+sessionId, padOrder(afterOrder), true,
		"#del = :del", map[string]types.AttributeValue{
			":del": &types.AttributeValueMemberBOOL{Value: true},
		}, map[string]string{"#del": "Deleted"})
	if err != nil {
		return models.Stroke{}, err
	}
	return strokeFromDynamo(ds), nil
}

func (dynamoStore *DynamoPaintStore) MarkAllStrokesDeleted(ctx context.Context, sessionId string) (int, error) {
	live, err := queryByPK[dynamoStroke](dynamoStore, ctx, "STROKE#"+sessionId, "", true, 0,
		"#del = :del", map[string]types.AttributeValue{
			":del": &types.AttributeValueMemberBOOL{Value: false},
		}, map[string]string{"#del": "Deleted"})
	if err != nil {
		return 0, err
	}

	marked := 0
	for _, ds := range live {
		if err := dynamoStore.SetStrokeDeleted(ctx, sessionId, ds.Order, true); err != nil {
			return marked, err
		}
		marked++
	}
	return marked, nil
}

func (dynamoStore *DynamoPaintStore) DeleteLayerStrokes(ctx context.Context, sessionId string, layerId string) (int, error) {
	targets, err := queryByPK[dynamoStroke](dynamoStore, ctx, "STROKE#"+sessionId, "", true, 0,
		"LayerId = :lid", map[string]types.AttributeValue{
			":lid": &types.AttributeValueMemberS{Value: layerId},
		}, nil)
	if err != nil {
		return 0, err
	}

	var writeRequests []types.WriteRequest
	for _, ds := range targets {
		writeRequests = append(writeRequests, types.WriteRequest{
			DeleteRequest: &types.DeleteRequest{
				Key: map[string]types.AttributeValue{
					"PK": &types.AttributeValueMemberS{Value: ds.PK},
					"SK": &types.AttributeValueMemberS{Value: ds.SK},
				},
			},
		})
	}

	_, err = writeBatchRequests[dynamoStroke](dynamoStore, ctx, writeRequests)
	return len(targets), err
}

func (dynamoStore *DynamoPaintStore) GetLayers(ctx context.Context, sessionId string) ([]models.Layer, error) {
	dynamoLayers, err := queryByPK[dynamoLayer](dynamoStore, ctx, "LAYER#"+sessionId, "", true, 0, "", nil, nil)
	if err != nil {
		return nil, err
	}

	layers := make([]models.Layer, 0, len(dynamoLayers))
	for _, dl := range dynamoLayers {
		layers = append(layers, layerFromDynamo(dl))
	}
	return layers, nil
}

// metaVersionCheck builds the CAS guard on the session meta item used by
// every registry mutation that touches the shared order namespace.
func (dynamoStore *DynamoPaintStore) metaVersionCheck(sessionId string, expectedVersion int64) types.TransactWriteItem {
	return types.TransactWriteItem{
		Update: &types.Update{
			TableName: aws.String(dynamoStore.tableName),
			Key: map[string]types.AttributeValue{
				"PK": &types.AttributeValueMemberS{Value: "SESSION#" + sessionId},
				"SK": &types.AttributeValueMemberS{Value: "META"},
			},
			UpdateExpression:    aws.String("SET LayerVersion = :nv"),
			ConditionExpression: aws.String("LayerVersion = :v"),
			ExpressionAttributeValues: map[string]types.AttributeValue{
				":v":  &types.AttributeValueMemberN{Value: strconv.FormatInt(expectedVersion, 10)},
				":nv": &types.AttributeValueMemberN{Value: strconv.FormatInt(expectedVersion+1, 10)},
			},
		},
	}
}

func layerOrderUpdate(tableName string, sessionId string, layerId string, order int) types.TransactWriteItem {
	return types.TransactWriteItem{
		Update: &types.Update{
			TableName: aws.String(tableName),
			Key: map[string]types.AttributeValue{
				"PK": &types.AttributeValueMemberS{Value: "LAYER#" + sessionId},
				"SK": &types.AttributeValueMemberS{Value: layerId},
			},
			UpdateExpression:    aws.String("SET LayerOrder = :o"),
			ConditionExpression: aws.String("attribute_exists(PK)"),
			ExpressionAttributeValues: map[string]types.AttributeValue{
				":o": &types.AttributeValueMemberN{Value: strconv.Itoa(order)},
			},
		},
	}
}

func (dynamoStore *DynamoPaintStore) CreateLayer(ctx context.Context, layer models.Layer, expectedVersion int64) error {
	avMap, err := attributevalue.MarshalMap(layerToDynamo(layer))
	if err != nil {
		return fmt.Errorf("marshal error: %w", err)
	}

	_, err = dynamoStore.client.TransactWriteItems(ctx, &dynamodb.TransactWriteItemsInput{
		TransactItems: []types.TransactWriteItem{
			{
				Put: &types.Put{
					TableName:           aws.String(dynamoStore.tableName),
					Item:                avMap,
					ConditionExpression: aws.String("attribute_not_exists(PK)"),
				},
			},
			dynamoStore.metaVersionCheck(layer.SessionId, expectedVersion),
		},
	})
	return mapConditionErr(err)
}

// ApplyLayerOrders writes a full re-pack as one transaction. Readers
// never observe a partially applied ordering: either every layer carries
// its new order or none does.
func (dynamoStore *DynamoPaintStore) ApplyLayerOrders(ctx context.Context, sessionId string, orders map[string]int, expectedVersion int64) error {
	items := make([]types.TransactWriteItem, 0, len(orders)+1)
	for layerId, order := range orders {
		items = append(items, layerOrderUpdate(dynamoStore.tableName, sessionId, layerId, order))
	}
	items = append(items, dynamoStore.metaVersionCheck(sessionId, expectedVersion))

	_, err := dynamoStore.client.TransactWriteItems(ctx, &dynamodb.TransactWriteItemsInput{
		TransactItems: items,
	})
	return mapConditionErr(err)
}

func (dynamoStore *DynamoPaintStore) DeleteLayer(ctx context.Context, sessionId string, layerId string, orders map[string]int, expectedVersion int64) error {
	items := make([]types.TransactWriteItem, 0, len(orders)+2)
	items = append(items, types.TransactWriteItem{
		Delete: &types.Delete{
			TableName: aws.String(dynamoStore.tableName),
			Key: map[string]types.AttributeValue{
				"PK": &types.AttributeValueMemberS{Value: "LAYER#" + sessionId},
				"SK": &types.AttributeValueMemberS{Value: layerId},
			},
			ConditionExpression: aws.String("attribute_exists(PK)"),
		},
	})
	for id, order := range orders {
		items = append(items, layerOrderUpdate(dynamoStore.tableName, sessionId, id, order))
	}
	items = append(items, dynamoStore.metaVersionCheck(sessionId, expectedVersion))

	_, err := dynamoStore.client.TransactWriteItems(ctx, &dynamodb.TransactWriteItemsInput{
		TransactItems: items,
	})
	return mapConditionErr(err)
}

func (dynamoStore *DynamoPaintStore) PatchLayer(ctx context.Context, sessionId string, layerId string, patch store.LayerPatch) error {
	sets := []string{}
	values := map[string]types.AttributeValue{}

	if patch.Visible != nil {
		sets = append(sets, "Visible = :vis")
		values[":vis"] = &types.AttributeValueMemberBOOL{Value: *patch.Visible}
	}
	if patch.Opacity != nil {
		sets = append(sets, "Opacity = :op")
		values[":op"] = &types.AttributeValueMemberN{Value: strconv.FormatFloat(*patch.Opacity, 'f', -1, 64)}
	}
	if patch.Transform != nil {
		t := patch.Transform
		sets = append(sets, "TX = :tx", "TY = :ty", "ScaleX = :sx", "ScaleY = :sy", "Rotation = :rot")
		values[":tx"] = &types.AttributeValueMemberN{Value: strconv.FormatFloat(t.X, 'f', -1, 64)}
		values[":ty"] = &types.AttributeValueMemberN{Value: strconv.FormatFloat(t.Y, 'f', -1, 64)}
		values[":sx"] = &types.AttributeValueMemberN{Value: strconv.FormatFloat(t.ScaleX, 'f', -1, 64)}
		values[":sy"] = &types.AttributeValueMemberN{Value: strconv.FormatFloat(t.ScaleY, 'f', -1, 64)}
		values[":rot"] = &types.AttributeValueMemberN{Value: strconv.FormatFloat(t.Rotation, 'f', -1, 64)}
	}
	if len(sets) == 0 {
		return nil
	}

	expr := "SET " + sets[0]
	for _, s := range sets[1:] {
		expr += ", " + s
	}

	_, err := dynamoStore.client.UpdateItem(ctx, &dynamodb.UpdateItemInput{
		TableName: aws.String(dynamoStore.tableName),
		Key: map[string]types.AttributeValue{
			"PK": &types.AttributeValueMemberS{Value: "LAYER#" + sessionId},
			"SK": &types.AttributeValueMemberS{Value: layerId},
		},
		UpdateExpression:          aws.String(expr),
		ConditionExpression:       aws.String("attribute_exists(PK)"),
		ExpressionAttributeValues: values,
	})

	var cce *types.ConditionalCheckFailedException
	if errors.As(err, &cce) {
		return store.ErrItemNotFound
	}
	return err
}
