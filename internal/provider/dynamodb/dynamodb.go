// Package dynamodb implements the StatusStore interface using AWS DynamoDB.
package dynamodb

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/credentials"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb"
	ddbtypes "github.com/aws/aws-sdk-go-v2/service/dynamodb/types"

	"github.com/dwsmith1983/releasepub/internal/provider"
)

// Compile-time interface satisfaction check.
var _ provider.StatusStore = (*StatusStore)(nil)

// DDBAPI is the subset of the DynamoDB client used by StatusStore.
type DDBAPI interface {
	GetItem(ctx context.Context, input *dynamodb.GetItemInput, opts ...func(*dynamodb.Options)) (*dynamodb.GetItemOutput, error)
	PutItem(ctx context.Context, input *dynamodb.PutItemInput, opts ...func(*dynamodb.Options)) (*dynamodb.PutItemOutput, error)
	UpdateItem(ctx context.Context, input *dynamodb.UpdateItemInput, opts ...func(*dynamodb.Options)) (*dynamodb.UpdateItemOutput, error)
	DeleteItem(ctx context.Context, input *dynamodb.DeleteItemInput, opts ...func(*dynamodb.Options)) (*dynamodb.DeleteItemOutput, error)
	BatchGetItem(ctx context.Context, input *dynamodb.BatchGetItemInput, opts ...func(*dynamodb.Options)) (*dynamodb.BatchGetItemOutput, error)
	Query(ctx context.Context, input *dynamodb.QueryInput, opts ...func(*dynamodb.Options)) (*dynamodb.QueryOutput, error)
	Scan(ctx context.Context, input *dynamodb.ScanInput, opts ...func(*dynamodb.Options)) (*dynamodb.ScanOutput, error)
	DescribeTable(ctx context.Context, input *dynamodb.DescribeTableInput, opts ...func(*dynamodb.Options)) (*dynamodb.DescribeTableOutput, error)
	CreateTable(ctx context.Context, input *dynamodb.CreateTableInput, opts ...func(*dynamodb.Options)) (*dynamodb.CreateTableOutput, error)
}

// StatusStore implements provider.StatusStore backed by a DynamoDB table keyed
// by PartitionKey (release-version id) and RowKey (release-status id).
type StatusStore struct {
	client      DDBAPI
	tableName   string
	logger      *slog.Logger
	createTable bool
	now         func() time.Time
}

// Option configures a StatusStore.
type Option func(*StatusStore)

// WithClient sets a custom DynamoDB client (useful for testing).
func WithClient(c DDBAPI) Option {
	return func(s *StatusStore) { s.client = c }
}

// WithLogger sets the logger.
func WithLogger(l *slog.Logger) Option {
	return func(s *StatusStore) { s.logger = l }
}

// WithClock overrides the clock used for LastUpdated stamps.
func WithClock(now func() time.Time) Option {
	return func(s *StatusStore) { s.now = now }
}

// New creates a new StatusStore. Without WithClient the default AWS config chain is used.
func New(ctx context.Context, cfg *Config, opts ...Option) (*StatusStore, error) {
	if cfg.TableName == "" {
		return nil, fmt.Errorf("dynamodb table name required")
	}
	s := &StatusStore{
		tableName:   cfg.TableName,
		logger:      slog.Default(),
		createTable: cfg.CreateTable,
		now:         time.Now,
	}
	for _, o := range opts {
		o(s)
	}
	if s.client != nil {
		return s, nil
	}

	var loadOpts []func(*awsconfig.LoadOptions) error
	if cfg.Region != "" {
		loadOpts = append(loadOpts, awsconfig.WithRegion(cfg.Region))
	}
	// For DynamoDB Local: use static credentials and custom endpoint.
	if cfg.Endpoint != "" {
		loadOpts = append(loadOpts, awsconfig.WithCredentialsProvider(
			credentials.NewStaticCredentialsProvider("local", "local", ""),
		))
	}

	awsCfg, err := awsconfig.LoadDefaultConfig(ctx, loadOpts...)
	if err != nil {
		return nil, fmt.Errorf("loading AWS config: %w", err)
	}

	var clientOpts []func(*dynamodb.Options)
	if cfg.Endpoint != "" {
		clientOpts = append(clientOpts, func(o *dynamodb.Options) {
			o.BaseEndpoint = aws.String(cfg.Endpoint)
		})
	}
	s.client = dynamodb.NewFromConfig(awsCfg, clientOpts...)
	return s, nil
}

// Start pings the table, creating it first when configured to.
func (s *StatusStore) Start(ctx context.Context) error {
	if s.createTable {
		if err := s.ensureTable(ctx); err != nil {
			return err
		}
	}
	return s.Ping(ctx)
}

// Ping checks connectivity by describing the table.
func (s *StatusStore) Ping(ctx context.Context) error {
	_, err := s.client.DescribeTable(ctx, &dynamodb.DescribeTableInput{
		TableName: &s.tableName,
	})
	if err != nil {
		return fmt.Errorf("dynamodb ping failed: %w", err)
	}
	return nil
}

func (s *StatusStore) ensureTable(ctx context.Context) error {
	_, err := s.client.CreateTable(ctx, &dynamodb.CreateTableInput{
		TableName: &s.tableName,
		KeySchema: []ddbtypes.KeySchemaElement{
			{AttributeName: aws.String(attrPartitionKey), KeyType: ddbtypes.KeyTypeHash},
			{AttributeName: aws.String(attrRowKey), KeyType: ddbtypes.KeyTypeRange},
		},
		AttributeDefinitions: []ddbtypes.AttributeDefinition{
			{AttributeName: aws.String(attrPartitionKey), AttributeType: ddbtypes.ScalarAttributeTypeS},
			{AttributeName: aws.String(attrRowKey), AttributeType: ddbtypes.ScalarAttributeTypeS},
		},
		BillingMode: ddbtypes.BillingModePayPerRequest,
	})
	if err != nil {
		var riue *ddbtypes.ResourceInUseException
		if errors.As(err, &riue) {
			return nil // table already exists
		}
		return fmt.Errorf("creating table: %w", err)
	}
	return nil
}

// isConditionalCheckFailed returns true if the error is a DynamoDB ConditionalCheckFailedException.
func isConditionalCheckFailed(err error) bool {
	var ccfe *ddbtypes.ConditionalCheckFailedException
	return errors.As(err, &ccfe)
}
