// Package dynamo stores slot payloads as single items in a DynamoDB table keyed by PK.
package dynamo

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/feature/dynamodb/attributevalue"
	"github.com/aws/aws-sdk-go-v2/feature/dynamodb/expression"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb/types"

	"github.com/MarcoPoloResearchLab/contribcast/backend/internal/contributions"
)

// Ensure Storage implements the port.
var _ contributions.Storage = (*Storage)(nil)

// ErrConcurrentWrite reports that another writer replaced the item between read and write.
var ErrConcurrentWrite = errors.New("dynamo: concurrent write")

// Client is the subset of the DynamoDB API used by Storage.
type Client interface {
	GetItem(ctx context.Context, params *dynamodb.GetItemInput, optFns ...func(*dynamodb.Options)) (*dynamodb.GetItemOutput, error)
	PutItem(ctx context.Context, params *dynamodb.PutItemInput, optFns ...func(*dynamodb.Options)) (*dynamodb.PutItemOutput, error)
}

type slotItem struct {
	PK        string `dynamodbav:"PK"`
	Payload   []byte `dynamodbav:"Payload"`
	Revision  int64  `dynamodbav:"Revision"`
	UpdatedAt int64  `dynamodbav:"UpdatedAt"`
}

// Storage persists slots in a DynamoDB table.
type Storage struct {
	client Client
	table  string
	clock  func() time.Time
}

// Config describes the table and optional endpoint override.
type Config struct {
	Table    string
	Region   string
	Endpoint string
}

// NewClient builds a DynamoDB client from the default AWS credential chain.
func NewClient(ctx context.Context, cfg Config) (*dynamodb.Client, error) {
	options := []func(*awsconfig.LoadOptions) error{}
	if strings.TrimSpace(cfg.Region) != "" {
		options = append(options, awsconfig.WithRegion(cfg.Region))
	}
	awsCfg, err := awsconfig.LoadDefaultConfig(ctx, options...)
	if err != nil {
		return nil, fmt.Errorf("dynamo: load aws config: %w", err)
	}
	return dynamodb.NewFromConfig(awsCfg, func(o *dynamodb.Options) {
		if endpoint := strings.TrimSpace(cfg.Endpoint); endpoint != "" {
			o.BaseEndpoint = aws.String(endpoint)
		}
	}), nil
}

// New wraps client for the given table. A nil clock defaults to time.Now.
func New(client Client, table string, clock func() time.Time) (*Storage, error) {
	if client == nil {
		return nil, errors.New("dynamo: client is required")
	}
	if strings.TrimSpace(table) == "" {
		return nil, errors.New("dynamo: table is required")
	}
	if clock == nil {
		clock = time.Now
	}
	return &Storage{client: client, table: table, clock: clock}, nil
}

// Read fetches the slot with a consistent read.
func (s *Storage) Read(ctx context.Context, key string) ([]byte, bool, error) {
	item, found, err := s.get(ctx, key)
	if err != nil || !found {
		return nil, false, err
	}
	return item.Payload, true, nil
}

// Write replaces the slot and bumps its revision. The put is conditioned on the revision
// observed just before, so a racing writer surfaces as ErrConcurrentWrite.
func (s *Storage) Write(ctx context.Context, key string, payload []byte) error {
	current, found, err := s.get(ctx, key)
	if err != nil {
		return err
	}

	condition := expression.Name("PK").AttributeNotExists()
	if found {
		condition = expression.Name("Revision").Equal(expression.Value(current.Revision))
	}
	expr, err := expression.NewBuilder().WithCondition(condition).Build()
	if err != nil {
		return fmt.Errorf("dynamo: build condition: %w", err)
	}

	next := slotItem{
		PK:        key,
		Payload:   payload,
		Revision:  current.Revision + 1,
		UpdatedAt: s.clock().UTC().Unix(),
	}
	itemMap, err := attributevalue.MarshalMap(next)
	if err != nil {
		return fmt.Errorf("dynamo: marshal item: %w", err)
	}

	_, err = s.client.PutItem(ctx, &dynamodb.PutItemInput{
		TableName:                 aws.String(s.table),
		Item:                      itemMap,
		ConditionExpression:       expr.Condition(),
		ExpressionAttributeNames:  expr.Names(),
		ExpressionAttributeValues: expr.Values(),
	})
	if err != nil {
		var ccf *types.ConditionalCheckFailedException
		if errors.As(err, &ccf) {
			return fmt.Errorf("%w: %s", ErrConcurrentWrite, key)
		}
		return fmt.Errorf("dynamo: put item: %w", err)
	}
	return nil
}

func (s *Storage) get(ctx context.Context, key string) (slotItem, bool, error) {
	result, err := s.client.GetItem(ctx, &dynamodb.GetItemInput{
		TableName: aws.String(s.table),
		Key: map[string]types.AttributeValue{
			"PK": &types.AttributeValueMemberS{Value: key},
		},
		ConsistentRead: aws.Bool(true),
	})
	if err != nil {
		return slotItem{}, false, fmt.Errorf("dynamo: get item: %w", err)
	}
	if result.Item == nil {
		return slotItem{}, false, nil
	}
	var item slotItem
	if err := attributevalue.UnmarshalMap(result.Item, &item); err != nil {
		return slotItem{}, false, fmt.Errorf("dynamo: unmarshal item: %w", err)
	}
	return item, true, nil
}
