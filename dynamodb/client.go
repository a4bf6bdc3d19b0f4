package dynamodb

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"slices"
	"strconv"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb"
	dynamodbtypes "github.com/aws/aws-sdk-go-v2/service/dynamodb/types"
	"github.com/cenkalti/backoff/v4"
	"github.com/slackmgr/sqsrecovery/errorhandler"
)

const (
	// GSIMessageID is the name of the Global Secondary Index used to look up
	// records by SQS message ID. Partition key: message_id, sort key: sk,
	// projected attribute: body.
	GSIMessageID = "GSIMessageID"

	// PartitionKey is the DynamoDB partition key attribute name. It holds the
	// name of the queue the message was received from.
	PartitionKey = "pk"

	// SortKey is the DynamoDB sort key attribute name.
	SortKey = "sk"

	// MessageIDAttr is the attribute holding the SQS message ID. It is the
	// partition key of the GSIMessageID index.
	MessageIDAttr = "message_id"

	// BodyAttr is the attribute holding the JSON-encoded record.
	BodyAttr = "body"

	// TTLAttr is the attribute name used for DynamoDB TTL-based expiration. The
	// table must have TTL enabled on this attribute.
	TTLAttr = "ttl"

	// UnknownSource is the partition key used for records without a source.
	UnknownSource = "unknown"

	sortKeyPrefix = "UNRECOVERABLE#"

	// sortKeyTimeLayout is fixed-width so that lexical order is time order.
	sortKeyTimeLayout = "2006-01-02T15:04:05.000000000Z"

	// maxBackoff is the maximum backoff duration for retry loops.
	maxBackoff = 2 * time.Second
)

// Client stores records of messages whose retry could not be scheduled. It
// implements [errorhandler.Recorder].
//
// Records are partitioned by source queue and sorted by time, so that the
// failures of one queue can be listed in order. They expire through DynamoDB
// TTL after the duration set with [WithTimeToLive].
//
// Use [New] to create a Client, [Client.Connect] to initialize the underlying
// DynamoDB connection, and [Client.Init] to validate the table schema.
type Client struct {
	client    API
	tableName string
	awsCfg    *aws.Config
	opts      *Options
}

var _ errorhandler.Recorder = (*Client)(nil)

// New creates a new Client configured with the given AWS config, table name,
// and optional options. Call [Client.Connect] on the returned client before use.
func New(awsCfg *aws.Config, tableName string, opts ...Option) *Client {
	options := newOptions()

	for _, o := range opts {
		o(options)
	}

	return &Client{
		awsCfg:    awsCfg,
		tableName: tableName,
		opts:      options,
	}
}

// Connect initializes the DynamoDB client from the AWS config provided to [New].
// It must be called before any other Client methods, and must complete before
// the Client is used concurrently.
func (c *Client) Connect() error {
	if err := c.opts.validate(); err != nil {
		return fmt.Errorf("invalid DynamoDB options: %w", err)
	}

	if c.tableName == "" {
		return errors.New("table name cannot be empty")
	}

	if c.opts.dynamoDBAPI != nil {
		c.client = c.opts.dynamoDBAPI
		return nil
	}

	if c.awsCfg == nil {
		return errors.New("AWS config cannot be nil")
	}

	c.client = dynamodb.NewFromConfig(*c.awsCfg)

	return nil
}

// Init validates the DynamoDB table schema. It checks that the table exists
// and is active, has the partition key pk and sort key sk, has TTL enabled on
// the ttl attribute, and has the [GSIMessageID] index.
//
// Pass skipSchemaValidation true to skip all checks and return immediately.
func (c *Client) Init(ctx context.Context, skipSchemaValidation bool) error {
	if skipSchemaValidation {
		return nil
	}

	response, err := c.client.DescribeTable(ctx, &dynamodb.DescribeTableInput{
		TableName: aws.String(c.tableName),
	})
	if err != nil {
		var notFoundError *dynamodbtypes.ResourceNotFoundException
		if errors.As(err, &notFoundError) {
			return fmt.Errorf("table %s does not exist", c.tableName)
		}
		return fmt.Errorf("failed to describe table %s: %w", c.tableName, err)
	}

	if response.Table == nil || len(response.Table.KeySchema) < 1 {
		return fmt.Errorf("table %s has no key schema", c.tableName)
	}

	if name := aws.ToString(response.Table.KeySchema[0].AttributeName); name != PartitionKey {
		return fmt.Errorf("table %s has partition key %s, expected %s", c.tableName, name, PartitionKey)
	}

	if len(response.Table.KeySchema) < 2 {
		return fmt.Errorf("table %s has a simple primary key, expected composite", c.tableName)
	}

	if name := aws.ToString(response.Table.KeySchema[1].AttributeName); name != SortKey {
		return fmt.Errorf("table %s has sort key %s, expected %s", c.tableName, name, SortKey)
	}

	if response.Table.TableStatus != dynamodbtypes.TableStatusActive {
		return fmt.Errorf("table %s is not active (status: %s)", c.tableName, response.Table.TableStatus)
	}

	ttlResponse, err := c.client.DescribeTimeToLive(ctx, &dynamodb.DescribeTimeToLiveInput{
		TableName: aws.String(c.tableName),
	})
	if err != nil {
		return fmt.Errorf("failed to describe TTL of table %s: %w", c.tableName, err)
	}

	ttl := ttlResponse.TimeToLiveDescription
	if ttl == nil {
		return fmt.Errorf("table %s has no TTL description", c.tableName)
	}

	if ttl.TimeToLiveStatus != dynamodbtypes.TimeToLiveStatusEnabled {
		return fmt.Errorf("table %s has TTL status %s (expected %s)", c.tableName, ttl.TimeToLiveStatus, dynamodbtypes.TimeToLiveStatusEnabled)
	}

	if name := aws.ToString(ttl.AttributeName); name != TTLAttr {
		return fmt.Errorf("TTL attribute name for table %s is %s, expected %s", c.tableName, name, TTLAttr)
	}

	return verifySecondaryIndex(response.Table, GSIMessageID, MessageIDAttr, SortKey, BodyAttr)
}

// RecordUnrecoverable stores record with a TTL of the configured time to
// live, counted from now.
func (c *Client) RecordUnrecoverable(ctx context.Context, record *errorhandler.UnrecoverableRecord) error {
	if record == nil {
		return errors.New("record cannot be nil")
	}

	if record.MessageID == "" {
		return errors.New("record message ID cannot be empty")
	}

	body, err := json.Marshal(record)
	if err != nil {
		return fmt.Errorf("failed to marshal unrecoverable record: %w", err)
	}

	ttl := strconv.FormatInt(c.opts.clock().Add(c.opts.timeToLive).Unix(), 10)

	input := &dynamodb.PutItemInput{
		TableName: &c.tableName,
		Item: map[string]dynamodbtypes.AttributeValue{
			PartitionKey:  &dynamodbtypes.AttributeValueMemberS{Value: partitionKeyFor(record)},
			SortKey:       &dynamodbtypes.AttributeValueMemberS{Value: buildSortKey(record)},
			MessageIDAttr: &dynamodbtypes.AttributeValueMemberS{Value: record.MessageID},
			BodyAttr:      &dynamodbtypes.AttributeValueMemberS{Value: string(body)},
			TTLAttr:       &dynamodbtypes.AttributeValueMemberN{Value: ttl},
		},
	}

	if _, err := c.client.PutItem(ctx, input); err != nil {
		return fmt.Errorf("failed to write unrecoverable record to DynamoDB table %s: %w", c.tableName, err)
	}

	return nil
}

// FindUnrecoverable returns the stored records of the given source queue,
// oldest first. An empty source selects records stored without one.
func (c *Client) FindUnrecoverable(ctx context.Context, source string) ([]*errorhandler.UnrecoverableRecord, error) {
	if source == "" {
		source = UnknownSource
	}

	input := &dynamodb.QueryInput{
		TableName:              &c.tableName,
		KeyConditionExpression: aws.String("#pk = :pk AND begins_with(#sk, :prefix)"),
		ExpressionAttributeNames: map[string]string{
			"#pk": PartitionKey,
			"#sk": SortKey,
		},
		ExpressionAttributeValues: map[string]dynamodbtypes.AttributeValue{
			":pk":     &dynamodbtypes.AttributeValueMemberS{Value: source},
			":prefix": &dynamodbtypes.AttributeValueMemberS{Value: sortKeyPrefix},
		},
		ProjectionExpression: aws.String(BodyAttr),
		ScanIndexForward:     aws.Bool(true),
	}

	return c.queryRecords(ctx, input)
}

// FindUnrecoverableByMessageID returns every stored record of the given SQS
// message, using the [GSIMessageID] index.
func (c *Client) FindUnrecoverableByMessageID(ctx context.Context, messageID string) ([]*errorhandler.UnrecoverableRecord, error) {
	if messageID == "" {
		return nil, errors.New("message ID cannot be empty")
	}

	input := &dynamodb.QueryInput{
		TableName:              &c.tableName,
		IndexName:              aws.String(GSIMessageID),
		KeyConditionExpression: aws.String("#id = :id"),
		ExpressionAttributeNames: map[string]string{
			"#id": MessageIDAttr,
		},
		ExpressionAttributeValues: map[string]dynamodbtypes.AttributeValue{
			":id": &dynamodbtypes.AttributeValueMemberS{Value: messageID},
		},
		ProjectionExpression: aws.String(BodyAttr),
	}

	return c.queryRecords(ctx, input)
}

// DeleteUnrecoverable removes a stored record, typically after the message
// has been redriven. Deleting a record that does not exist is not an error.
func (c *Client) DeleteUnrecoverable(ctx context.Context, record *errorhandler.UnrecoverableRecord) error {
	if record == nil {
		return errors.New("record cannot be nil")
	}

	input := &dynamodb.DeleteItemInput{
		TableName: &c.tableName,
		Key: map[string]dynamodbtypes.AttributeValue{
			PartitionKey: &dynamodbtypes.AttributeValueMemberS{Value: partitionKeyFor(record)},
			SortKey:      &dynamodbtypes.AttributeValueMemberS{Value: buildSortKey(record)},
		},
	}

	if _, err := c.client.DeleteItem(ctx, input); err != nil {
		return fmt.Errorf("failed to delete unrecoverable record from DynamoDB table %s: %w", c.tableName, err)
	}

	return nil
}

// DropAllData deletes every item from the DynamoDB table. It scans the table
// in pages and removes each page using BatchWriteItem with exponential backoff
// for unprocessed items.
//
// This method is intended for use in tests only. Do not call it in production.
func (c *Client) DropAllData(ctx context.Context) error {
	input := &dynamodb.ScanInput{
		TableName:            aws.String(c.tableName),
		ProjectionExpression: aws.String("#pk, #sk"),
		ExpressionAttributeNames: map[string]string{
			"#pk": PartitionKey,
			"#sk": SortKey,
		},
	}

	for {
		if err := ctx.Err(); err != nil {
			return err
		}

		output, err := c.client.Scan(ctx, input)
		if err != nil {
			return fmt.Errorf("failed to scan DynamoDB table %s: %w", c.tableName, err)
		}

		// BatchWriteItem accepts at most 25 requests.
		for chunk := range slices.Chunk(output.Items, 25) {
			requests := make([]dynamodbtypes.WriteRequest, 0, len(chunk))

			for _, item := range chunk {
				requests = append(requests, dynamodbtypes.WriteRequest{
					DeleteRequest: &dynamodbtypes.DeleteRequest{
						Key: map[string]dynamodbtypes.AttributeValue{
							PartitionKey: item[PartitionKey],
							SortKey:      item[SortKey],
						},
					},
				})
			}

			if err := c.batchWrite(ctx, requests); err != nil {
				return err
			}
		}

		if output.LastEvaluatedKey == nil {
			return nil
		}

		input.ExclusiveStartKey = output.LastEvaluatedKey
	}
}

// batchWrite runs one BatchWriteItem call and retries unprocessed items with
// exponential backoff.
func (c *Client) batchWrite(ctx context.Context, requests []dynamodbtypes.WriteRequest) error {
	const maxRetries = 5

	pending := map[string][]dynamodbtypes.WriteRequest{c.tableName: requests}

	policy := backoff.NewExponentialBackOff()
	policy.InitialInterval = 50 * time.Millisecond
	policy.MaxInterval = maxBackoff

	write := func() error {
		result, err := c.client.BatchWriteItem(ctx, &dynamodb.BatchWriteItemInput{RequestItems: pending})
		if err != nil {
			return backoff.Permanent(fmt.Errorf("failed to batch write to DynamoDB table %s: %w", c.tableName, err))
		}

		if len(result.UnprocessedItems) == 0 {
			return nil
		}

		pending = result.UnprocessedItems

		return fmt.Errorf("%d unprocessed items in DynamoDB table %s", len(pending[c.tableName]), c.tableName)
	}

	return backoff.Retry(write, backoff.WithContext(backoff.WithMaxRetries(policy, maxRetries), ctx))
}

func (c *Client) queryRecords(ctx context.Context, input *dynamodb.QueryInput) ([]*errorhandler.UnrecoverableRecord, error) {
	records := []*errorhandler.UnrecoverableRecord{}

	for {
		if err := ctx.Err(); err != nil {
			return nil, err
		}

		output, err := c.client.Query(ctx, input)
		if err != nil {
			return nil, fmt.Errorf("failed to query DynamoDB table %s: %w", c.tableName, err)
		}

		for _, item := range output.Items {
			var record errorhandler.UnrecoverableRecord

			if err := json.Unmarshal([]byte(getStringValue(item[BodyAttr])), &record); err != nil {
				return nil, fmt.Errorf("failed to unmarshal unrecoverable record: %w", err)
			}

			records = append(records, &record)
		}

		if output.LastEvaluatedKey == nil {
			return records, nil
		}

		input.ExclusiveStartKey = output.LastEvaluatedKey
	}
}

func verifySecondaryIndex(table *dynamodbtypes.TableDescription, indexName, partitionKey, sortKey string, nonKeyAttributes ...string) error {
	i := slices.IndexFunc(table.GlobalSecondaryIndexes, func(index dynamodbtypes.GlobalSecondaryIndexDescription) bool {
		return aws.ToString(index.IndexName) == indexName
	})

	if i < 0 {
		return fmt.Errorf("global secondary index %s not found", indexName)
	}

	index := table.GlobalSecondaryIndexes[i]

	if len(index.KeySchema) != 2 {
		return fmt.Errorf("global secondary index %s must have a composite key", indexName)
	}

	if name := aws.ToString(index.KeySchema[0].AttributeName); name != partitionKey {
		return fmt.Errorf("global secondary index %s has partition key %s, expected %s", indexName, name, partitionKey)
	}

	if name := aws.ToString(index.KeySchema[1].AttributeName); name != sortKey {
		return fmt.Errorf("global secondary index %s has sort key %s, expected %s", indexName, name, sortKey)
	}

	if index.IndexStatus != dynamodbtypes.IndexStatusActive {
		return fmt.Errorf("global secondary index %s is not active (status: %s)", indexName, index.IndexStatus)
	}

	if index.Projection == nil {
		return fmt.Errorf("global secondary index %s has no projection", indexName)
	}

	if index.Projection.ProjectionType == dynamodbtypes.ProjectionTypeAll {
		return nil
	}

	if index.Projection.ProjectionType != dynamodbtypes.ProjectionTypeInclude {
		return fmt.Errorf("global secondary index %s has projection type %s, expected %s", indexName, index.Projection.ProjectionType, dynamodbtypes.ProjectionTypeInclude)
	}

	for _, attr := range nonKeyAttributes {
		if !slices.Contains(index.Projection.NonKeyAttributes, attr) {
			return fmt.Errorf("global secondary index %s is missing non-key attribute %s", indexName, attr)
		}
	}

	return nil
}

func partitionKeyFor(record *errorhandler.UnrecoverableRecord) string {
	if record.Source == "" {
		return UnknownSource
	}

	return record.Source
}

// buildSortKey returns UNRECOVERABLE#<timestamp>#<message id>.
func buildSortKey(record *errorhandler.UnrecoverableRecord) string {
	return sortKeyPrefix + record.Timestamp.UTC().Format(sortKeyTimeLayout) + "#" + record.MessageID
}

// getStringValue extracts the string value from a DynamoDB AttributeValue.
// It returns an empty string if the AttributeValue is not of type AttributeValueMemberS.
func getStringValue(attr dynamodbtypes.AttributeValue) string {
	if attrValue, ok := attr.(*dynamodbtypes.AttributeValueMemberS); ok {
		return attrValue.Value
	}

	return ""
}
