// Package dynamo stores quota records in a DynamoDB table keyed by
// hashKey (partition) and clientId (sort), with per-period windows kept in
// the "payload" map attribute.
package dynamo

import (
	"context"
	"fmt"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/feature/dynamodb/attributevalue"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb/types"

	"quotagate/internal/common/awsutil"
	"quotagate/internal/common/errors"
	"quotagate/internal/common/logging"
	"quotagate/internal/common/utils"
	"quotagate/internal/quota"
	"quotagate/internal/storage"
)

const (
	DefaultTableName = "CLIENT_ID_TOKEN_BUCKET"
	hashKeyAttr      = "hashKey"
	rangeKeyAttr     = "clientId"
	// maxBatchWrite is the BatchWriteItem request limit
	maxBatchWrite = 25
)

// API is the subset of the DynamoDB client the store calls
type API interface {
	GetItem(ctx context.Context, params *dynamodb.GetItemInput, optFns ...func(*dynamodb.Options)) (*dynamodb.GetItemOutput, error)
	PutItem(ctx context.Context, params *dynamodb.PutItemInput, optFns ...func(*dynamodb.Options)) (*dynamodb.PutItemOutput, error)
	BatchWriteItem(ctx context.Context, params *dynamodb.BatchWriteItemInput, optFns ...func(*dynamodb.Options)) (*dynamodb.BatchWriteItemOutput, error)
	DescribeTable(ctx context.Context, params *dynamodb.DescribeTableInput, optFns ...func(*dynamodb.Options)) (*dynamodb.DescribeTableOutput, error)
}

type Config struct {
	AWS            awsutil.Config
	TableName      string
	ConsistentRead bool
}

type Store struct {
	api    API
	table  string
	config Config
	retry  utils.RetryConfig
	logger logging.Logger
}

type item struct {
	HashKey  string                `dynamodbav:"hashKey"`
	ClientID string                `dynamodbav:"clientId"`
	Payload  map[string]windowItem `dynamodbav:"payload"`
}

type windowItem struct {
	LastUpdated             int64   `dynamodbav:"lastUpdated"`
	MaxAllowedRate          float64 `dynamodbav:"maxAllowedRateInPeriod"`
	Rate                    float64 `dynamodbav:"rate"`
	LastUpdatedBurst        int64   `dynamodbav:"lastUpdatedBurst"`
	MaxAllowedCallsInPeriod int64   `dynamodbav:"maxAllowedCallsInPeriod"`
	CallsInPeriod           int64   `dynamodbav:"callsInPeriod"`
}

// New creates a DynamoDB client from config and wraps it
func New(ctx context.Context, config Config) (*Store, error) {
	awsCfg, err := awsutil.Load(ctx, &config.AWS)
	if err != nil {
		return nil, err
	}
	client := dynamodb.NewFromConfig(awsCfg, func(o *dynamodb.Options) {
		if ep := config.AWS.Endpoint(); ep != nil {
			o.BaseEndpoint = ep
		}
	})
	return NewWithAPI(client, config), nil
}

// NewWithAPI wraps an existing client
func NewWithAPI(api API, config Config) *Store {
	if config.TableName == "" {
		config.TableName = DefaultTableName
	}
	return &Store{
		api:    api,
		table:  config.TableName,
		config: config,
		retry:  utils.DefaultRetryConfig(),
		logger: logging.Component("dynamo-store").WithFields(logging.String("table", config.TableName)),
	}
}

func (s *Store) Get(ctx context.Context, hashKey, clientID string) (*quota.Record, error) {
	out, err := s.api.GetItem(ctx, &dynamodb.GetItemInput{
		TableName: aws.String(s.table),
		Key: map[string]types.AttributeValue{
			hashKeyAttr:  &types.AttributeValueMemberS{Value: hashKey},
			rangeKeyAttr: &types.AttributeValueMemberS{Value: clientID},
		},
		ConsistentRead: aws.Bool(s.config.ConsistentRead),
	})
	if err != nil {
		return nil, errors.ConnectionError("dynamodb get item", err).
			WithContext("key", quota.RecordKey(hashKey, clientID))
	}
	if len(out.Item) == 0 {
		return nil, storage.ErrNotFound
	}

	var it item
	if err := attributevalue.UnmarshalMap(out.Item, &it); err != nil {
		return nil, errors.InternalError("decode quota item", err)
	}
	return fromItem(it), nil
}

func (s *Store) Put(ctx context.Context, record *quota.Record) error {
	av, err := attributevalue.MarshalMap(toItem(record))
	if err != nil {
		return errors.InternalError("encode quota item", err)
	}
	_, err = s.api.PutItem(ctx, &dynamodb.PutItemInput{
		TableName: aws.String(s.table),
		Item:      av,
	})
	if err != nil {
		return errors.StoreWriteError("dynamodb put item", err).WithContext("key", record.Key())
	}
	return nil
}

// PutBatch writes records in chunks of 25 and retries unprocessed items.
// A chunk that still has unprocessed items does not stop later chunks;
// the keys left unwritten are reported in a *storage.PartialWriteError.
func (s *Store) PutBatch(ctx context.Context, records []*quota.Record) error {
	var (
		failed  []string
		lastErr error
	)
	for start := 0; start < len(records); start += maxBatchWrite {
		end := start + maxBatchWrite
		if end > len(records) {
			end = len(records)
		}

		requests := make([]types.WriteRequest, 0, end-start)
		for _, r := range records[start:end] {
			av, err := attributevalue.MarshalMap(toItem(r))
			if err != nil {
				failed = append(failed, r.Key())
				lastErr = errors.InternalError("encode quota item", err)
				continue
			}
			requests = append(requests, types.WriteRequest{PutRequest: &types.PutRequest{Item: av}})
		}
		if len(requests) == 0 {
			continue
		}

		left, err := s.writeChunk(ctx, requests)
		if err != nil {
			for _, req := range left {
				failed = append(failed, requestKey(req))
			}
			lastErr = err
		}
	}
	if len(failed) > 0 {
		return errors.StoreWriteError("dynamodb batch write",
			&storage.PartialWriteError{Failed: failed, Err: lastErr}).
			WithContext("records", len(records))
	}
	return nil
}

// writeChunk returns the requests that were still unwritten when retries
// ran out. A rejected call leaves every pending request unwritten.
func (s *Store) writeChunk(ctx context.Context, requests []types.WriteRequest) ([]types.WriteRequest, error) {
	pending := requests

	err := utils.RetryWithBackoff(ctx, s.retry, func() error {
		out, err := s.api.BatchWriteItem(ctx, &dynamodb.BatchWriteItemInput{
			RequestItems: map[string][]types.WriteRequest{s.table: pending},
		})
		if err != nil {
			return err
		}
		pending = out.UnprocessedItems[s.table]
		if left := len(pending); left > 0 {
			s.logger.Debug("Retrying unprocessed items", logging.Int("count", left))
			return fmt.Errorf("%d unprocessed items", left)
		}
		return nil
	})
	if err != nil {
		return pending, err
	}
	return nil, nil
}

// requestKey recovers the record key from a put request's key attributes
func requestKey(req types.WriteRequest) string {
	if req.PutRequest == nil {
		return ""
	}
	h, _ := req.PutRequest.Item[hashKeyAttr].(*types.AttributeValueMemberS)
	c, _ := req.PutRequest.Item[rangeKeyAttr].(*types.AttributeValueMemberS)
	if h == nil || c == nil {
		return ""
	}
	return quota.RecordKey(h.Value, c.Value)
}

func (s *Store) Health(ctx context.Context) error {
	_, err := s.api.DescribeTable(ctx, &dynamodb.DescribeTableInput{TableName: aws.String(s.table)})
	if err != nil {
		return errors.ConnectionError("dynamodb describe table", err)
	}
	return nil
}

func (s *Store) Close() error {
	return nil
}

func toItem(r *quota.Record) item {
	it := item{
		HashKey:  r.HashKey,
		ClientID: r.ClientID,
		Payload:  make(map[string]windowItem, len(r.Windows)),
	}
	for p, w := range r.Windows {
		it.Payload[string(p)] = windowItem{
			LastUpdated:             w.LastUpdated,
			MaxAllowedRate:          w.MaxAllowedRate,
			Rate:                    w.ObservedRate,
			LastUpdatedBurst:        w.LastUpdatedBurst,
			MaxAllowedCallsInPeriod: w.MaxAllowedCallsInPeriod,
			CallsInPeriod:           w.CallsInPeriod,
		}
	}
	return it
}

func fromItem(it item) *quota.Record {
	r := &quota.Record{
		HashKey:  it.HashKey,
		ClientID: it.ClientID,
		Windows:  make(map[quota.Period]*quota.WindowState, len(it.Payload)),
	}
	for name, w := range it.Payload {
		p := quota.Period(name)
		if !p.Valid() {
			continue
		}
		r.Windows[p] = &quota.WindowState{
			LastUpdated:             w.LastUpdated,
			MaxAllowedRate:          w.MaxAllowedRate,
			ObservedRate:            w.Rate,
			LastUpdatedBurst:        w.LastUpdatedBurst,
			MaxAllowedCallsInPeriod: w.MaxAllowedCallsInPeriod,
			CallsInPeriod:           w.CallsInPeriod,
		}
	}
	return r
}
