package objstore

import (
	"context"
	"errors"
	"fmt"
	"strconv"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb/types"
)

// DDBClient is the subset of the DynamoDB API used by DynamoExtents.
type DDBClient interface {
	GetItem(ctx context.Context, params *dynamodb.GetItemInput, optFns ...func(*dynamodb.Options)) (*dynamodb.GetItemOutput, error)
	PutItem(ctx context.Context, params *dynamodb.PutItemInput, optFns ...func(*dynamodb.Options)) (*dynamodb.PutItemOutput, error)
}

// DynamoExtents keeps extents in a DynamoDB table. Commits are conditional
// writes on the version attribute, so concurrent writers cannot lose updates.
//
// Table schema:
//   - Partition key: resource (string)
//   - Attributes: size (number), version (number)
//
// Create table with:
//
//	aws dynamodb create-table \
//	  --table-name pagecache-extents \
//	  --attribute-definitions AttributeName=resource,AttributeType=S \
//	  --key-schema AttributeName=resource,KeyType=HASH \
//	  --billing-mode PAY_PER_REQUEST
type DynamoExtents struct {
	client    DDBClient
	tableName string
	namespace string
}

// NewDynamoExtents creates an extent store. namespace is prefixed to every
// resource key so one table can serve several buckets.
func NewDynamoExtents(client DDBClient, tableName, namespace string) *DynamoExtents {
	return &DynamoExtents{
		client:    client,
		tableName: tableName,
		namespace: namespace,
	}
}

func (d *DynamoExtents) key(name string) map[string]types.AttributeValue {
	return map[string]types.AttributeValue{
		"resource": &types.AttributeValueMemberS{Value: joinKey(d.namespace, name)},
	}
}

func (d *DynamoExtents) Load(ctx context.Context, name string) (Extent, error) {
	resp, err := d.client.GetItem(ctx, &dynamodb.GetItemInput{
		TableName:      aws.String(d.tableName),
		Key:            d.key(name),
		ConsistentRead: aws.Bool(true),
	})
	if err != nil {
		return Extent{}, fmt.Errorf("failed to get extent from DynamoDB: %w", err)
	}
	if len(resp.Item) == 0 {
		return Extent{}, fmt.Errorf("extent %s: %w", name, ErrNotFound)
	}

	size, err := numberAttr(resp.Item, "size")
	if err != nil {
		return Extent{}, err
	}
	version, err := numberAttr(resp.Item, "version")
	if err != nil {
		return Extent{}, err
	}
	return Extent{Size: size, Version: uint64(version)}, nil
}

func (d *DynamoExtents) Commit(ctx context.Context, name string, prev Extent, size int64) (Extent, error) {
	next := Extent{Size: size, Version: prev.Version + 1}

	item := d.key(name)
	item["size"] = &types.AttributeValueMemberN{Value: strconv.FormatInt(next.Size, 10)}
	item["version"] = &types.AttributeValueMemberN{Value: strconv.FormatUint(next.Version, 10)}

	input := &dynamodb.PutItemInput{
		TableName: aws.String(d.tableName),
		Item:      item,
	}
	if prev.Version == 0 {
		input.ConditionExpression = aws.String("attribute_not_exists(resource)")
	} else {
		input.ConditionExpression = aws.String("version = :v")
		input.ExpressionAttributeValues = map[string]types.AttributeValue{
			":v": &types.AttributeValueMemberN{Value: strconv.FormatUint(prev.Version, 10)},
		}
	}

	if _, err := d.client.PutItem(ctx, input); err != nil {
		var condErr *types.ConditionalCheckFailedException
		if errors.As(err, &condErr) {
			return Extent{}, ErrConcurrentModification
		}
		return Extent{}, fmt.Errorf("failed to commit extent to DynamoDB: %w", err)
	}
	return next, nil
}

func numberAttr(item map[string]types.AttributeValue, name string) (int64, error) {
	attr, ok := item[name].(*types.AttributeValueMemberN)
	if !ok {
		return 0, fmt.Errorf("invalid %s attribute in DynamoDB", name)
	}
	v, err := strconv.ParseInt(attr.Value, 10, 64)
	if err != nil {
		return 0, fmt.Errorf("failed to parse %s: %w", name, err)
	}
	return v, nil
}
