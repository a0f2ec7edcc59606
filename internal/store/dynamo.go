package store

import (
	"context"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/feature/dynamodb/attributevalue"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb/types"
	"github.com/rs/zerolog/log"

	"github.com/fpang/beauty-retouch/internal/operation"
	"github.com/fpang/beauty-retouch/internal/s3util"
)

// DynamoDB key constants for the single-table design. Every item of one
// edit shares PK; META holds the record, OP#gggggg#nnnnnn one operation
// each so long stroke logs never approach the item size limit. Each save
// writes a new generation g and META names the live one.
const (
	pkPrefix = "EDIT#"
	skMeta   = "META"
	skOp     = "OP#"

	// maxBatchWrite is the DynamoDB BatchWriteItem limit per call.
	maxBatchWrite = 25
)

// dynamoAPI is the subset of *dynamodb.Client used by DynamoStore.
type dynamoAPI interface {
	PutItem(ctx context.Context, in *dynamodb.PutItemInput, optFns ...func(*dynamodb.Options)) (*dynamodb.PutItemOutput, error)
	GetItem(ctx context.Context, in *dynamodb.GetItemInput, optFns ...func(*dynamodb.Options)) (*dynamodb.GetItemOutput, error)
	Query(ctx context.Context, in *dynamodb.QueryInput, optFns ...func(*dynamodb.Options)) (*dynamodb.QueryOutput, error)
	BatchWriteItem(ctx context.Context, in *dynamodb.BatchWriteItemInput, optFns ...func(*dynamodb.Options)) (*dynamodb.BatchWriteItemOutput, error)
}

var _ dynamoAPI = (*dynamodb.Client)(nil)

// DynamoStore implements EditStore on DynamoDB, with working images in S3.
type DynamoStore struct {
	client    dynamoAPI
	tableName string
	objects   s3util.ObjectAPI
	bucket    string
	ttl       time.Duration
	now       func() time.Time
}

var _ EditStore = (*DynamoStore)(nil)

// DynamoOption configures a DynamoStore.
type DynamoOption func(*DynamoStore)

// WithImageBucket stores working images in bucket. Without it only the
// operation log is persisted and Load returns nil image bytes.
func WithImageBucket(objects s3util.ObjectAPI, bucket string) DynamoOption {
	return func(s *DynamoStore) {
		s.objects = objects
		s.bucket = bucket
	}
}

// WithTTL sets the expiresAt horizon. Zero disables expiry.
func WithTTL(ttl time.Duration) DynamoOption {
	return func(s *DynamoStore) { s.ttl = ttl }
}

// NewDynamoStore creates a DynamoStore for the given table.
func NewDynamoStore(client dynamoAPI, tableName string, opts ...DynamoOption) *DynamoStore {
	s := &DynamoStore{
		client:    client,
		tableName: tableName,
		ttl:       DefaultTTL,
		now:       time.Now,
	}
	for _, o := range opts {
		o(s)
	}
	return s
}

// metaItem is the META row: the record plus bookkeeping.
type metaItem struct {
	EditRecord
	ImageKey   string `dynamodbav:"imageKey,omitempty"`
	OpCount    int    `dynamodbav:"opCount"`
	Generation int    `dynamodbav:"generation"`
}

func editPK(ref string) string {
	return pkPrefix + ref
}

func opPrefix(gen int) string {
	return fmt.Sprintf("%s%06d#", skOp, gen)
}

func opSK(gen, i int) string {
	return fmt.Sprintf("%s%06d", opPrefix(gen), i)
}

func imageKey(ref string, gen int, format string) string {
	if format == "" {
		format = "img"
	}
	return fmt.Sprintf("edits/%s/%06d/working.%s", ref, gen, format)
}

// withKeys marshals data and adds PK, SK and the TTL attribute.
func (s *DynamoStore) withKeys(pk, sk string, data interface{}) (map[string]types.AttributeValue, error) {
	item, err := attributevalue.MarshalMap(data)
	if err != nil {
		return nil, fmt.Errorf("marshal: %w", err)
	}
	item["PK"] = &types.AttributeValueMemberS{Value: pk}
	item["SK"] = &types.AttributeValueMemberS{Value: sk}
	if s.ttl > 0 {
		item["expiresAt"] = &types.AttributeValueMemberN{Value: strconv.FormatInt(s.now().Add(s.ttl).Unix(), 10)}
	}
	return item, nil
}

// Save writes the operations and image of a new generation, then switches
// META to it. Items of earlier generations are removed afterwards. A save
// that fails before META is written leaves the previous record loadable.
func (s *DynamoStore) Save(ctx context.Context, rec *EditRecord, working []byte) error {
	if err := rec.validate(); err != nil {
		return err
	}
	pk := editPK(rec.Ref)

	prev, err := s.getMeta(ctx, pk)
	if err != nil {
		return err
	}
	gen := 1
	if prev != nil {
		gen = prev.Generation + 1
	}

	meta := metaItem{EditRecord: *rec, OpCount: len(rec.Operations), Generation: gen}
	if s.objects != nil && s.bucket != "" {
		meta.ImageKey = imageKey(rec.Ref, gen, rec.Format)
		if err := s3util.PutBytes(ctx, s.objects, s.bucket, meta.ImageKey, s3util.ContentType(rec.Format), working); err != nil {
			return fmt.Errorf("store working image: %w", err)
		}
	} else {
		log.Info().Str("ref", rec.Ref).Msg("No image bucket configured, saving operation log only")
	}

	puts := make([]types.WriteRequest, 0, len(rec.Operations))
	for i, op := range rec.Operations {
		item, err := s.withKeys(pk, opSK(gen, i), op)
		if err != nil {
			return fmt.Errorf("operation %d: %w", i, err)
		}
		puts = append(puts, types.WriteRequest{PutRequest: &types.PutRequest{Item: item}})
	}
	if err := s.batchWrite(ctx, puts); err != nil {
		return err
	}

	item, err := s.withKeys(pk, skMeta, meta)
	if err != nil {
		return err
	}
	if _, err := s.client.PutItem(ctx, &dynamodb.PutItemInput{
		TableName: &s.tableName,
		Item:      item,
	}); err != nil {
		return fmt.Errorf("PutItem PK=%s SK=%s: %w", pk, skMeta, err)
	}

	// The new record is live. Leftovers only cost storage, so cleanup
	// failures are logged and the next save retries them.
	if err := s.dropStale(ctx, pk, gen, len(rec.Operations), prev); err != nil {
		log.Warn().Err(err).Str("ref", rec.Ref).Int("generation", gen).Msg("Failed to remove stale edit items")
	}

	log.Info().
		Str("ref", rec.Ref).
		Str("table", s.tableName).
		Int("generation", gen).
		Int("operations", len(rec.Operations)).
		Str("image_key", meta.ImageKey).
		Msg("Edit record saved")
	return nil
}

// getMeta returns the META row of pk, or nil when there is none.
func (s *DynamoStore) getMeta(ctx context.Context, pk string) (*metaItem, error) {
	result, err := s.client.GetItem(ctx, &dynamodb.GetItemInput{
		TableName: &s.tableName,
		Key: map[string]types.AttributeValue{
			"PK": &types.AttributeValueMemberS{Value: pk},
			"SK": &types.AttributeValueMemberS{Value: skMeta},
		},
	})
	if err != nil {
		return nil, fmt.Errorf("GetItem PK=%s SK=%s: %w", pk, skMeta, err)
	}
	if result.Item == nil {
		return nil, nil
	}
	var meta metaItem
	if err := attributevalue.UnmarshalMap(result.Item, &meta); err != nil {
		return nil, fmt.Errorf("unmarshal PK=%s SK=%s: %w", pk, skMeta, err)
	}
	return &meta, nil
}

// dropStale deletes every operation item other than the n live ones of
// generation gen, including leftovers of an earlier failed save of the same
// generation, and the previous working image.
func (s *DynamoStore) dropStale(ctx context.Context, pk string, gen, n int, prev *metaItem) error {
	items, err := s.queryBySKPrefix(ctx, pk, skOp)
	if err != nil {
		return err
	}
	live := opPrefix(gen)
	var stale []map[string]types.AttributeValue
	for _, item := range items {
		sk, ok := item["SK"].(*types.AttributeValueMemberS)
		if ok && strings.HasPrefix(sk.Value, live) {
			if i, err := strconv.Atoi(strings.TrimPrefix(sk.Value, live)); err == nil && i < n {
				continue
			}
		}
		stale = append(stale, item)
	}
	if err := s.batchDeleteKeys(ctx, keysOf(stale)); err != nil {
		return err
	}
	if prev != nil && prev.ImageKey != "" && s.objects != nil {
		return s3util.Delete(ctx, s.objects, s.bucket, prev.ImageKey)
	}
	return nil
}

func (s *DynamoStore) Load(ctx context.Context, ref string) (*EditRecord, []byte, error) {
	if err := ValidateRef(ref); err != nil {
		return nil, nil, err
	}
	pk := editPK(ref)

	meta, err := s.getMeta(ctx, pk)
	if err != nil || meta == nil {
		return nil, nil, err
	}

	items, err := s.queryBySKPrefix(ctx, pk, opPrefix(meta.Generation))
	if err != nil {
		return nil, nil, err
	}
	if len(items) != meta.OpCount {
		return nil, nil, fmt.Errorf("edit %s: expected %d operations, found %d", ref, meta.OpCount, len(items))
	}
	ops := make([]operation.Record, len(items))
	for i, item := range items {
		if err := attributevalue.UnmarshalMap(item, &ops[i]); err != nil {
			return nil, nil, fmt.Errorf("unmarshal operation %d: %w", i, err)
		}
	}

	rec := meta.EditRecord
	rec.Ref = ref
	rec.Operations = ops

	var working []byte
	if meta.ImageKey != "" && s.objects != nil {
		working, err = s3util.GetBytes(ctx, s.objects, s.bucket, meta.ImageKey)
		if err != nil {
			return nil, nil, fmt.Errorf("load working image: %w", err)
		}
	}
	return &rec, working, nil
}

// Delete removes every item of the edit and its working image.
func (s *DynamoStore) Delete(ctx context.Context, ref string) error {
	if err := ValidateRef(ref); err != nil {
		return err
	}
	pk := editPK(ref)

	items, err := s.queryBySKPrefix(ctx, pk, "")
	if err != nil {
		return err
	}
	for _, item := range items {
		sk, ok := item["SK"].(*types.AttributeValueMemberS)
		if !ok || sk.Value != skMeta {
			continue
		}
		var meta metaItem
		if err := attributevalue.UnmarshalMap(item, &meta); err == nil && meta.ImageKey != "" && s.objects != nil {
			if err := s3util.Delete(ctx, s.objects, s.bucket, meta.ImageKey); err != nil {
				return err
			}
		}
	}
	if err := s.batchDeleteKeys(ctx, keysOf(items)); err != nil {
		return err
	}

	log.Info().Str("ref", ref).Int("items", len(items)).Msg("Edit record deleted")
	return nil
}

// queryBySKPrefix returns all items under pk whose SK begins with prefix,
// in SK order.
func (s *DynamoStore) queryBySKPrefix(ctx context.Context, pk, prefix string) ([]map[string]types.AttributeValue, error) {
	input := &dynamodb.QueryInput{
		TableName:              &s.tableName,
		KeyConditionExpression: aws.String("PK = :pk AND begins_with(SK, :skPrefix)"),
		ExpressionAttributeValues: map[string]types.AttributeValue{
			":pk":       &types.AttributeValueMemberS{Value: pk},
			":skPrefix": &types.AttributeValueMemberS{Value: prefix},
		},
	}
	if prefix == "" {
		input.KeyConditionExpression = aws.String("PK = :pk")
		delete(input.ExpressionAttributeValues, ":skPrefix")
	}

	var all []map[string]types.AttributeValue
	for {
		result, err := s.client.Query(ctx, input)
		if err != nil {
			return nil, fmt.Errorf("Query PK=%s SK prefix=%s: %w", pk, prefix, err)
		}
		all = append(all, result.Items...)
		if result.LastEvaluatedKey == nil {
			break
		}
		input.ExclusiveStartKey = result.LastEvaluatedKey
	}
	return all, nil
}

func keysOf(items []map[string]types.AttributeValue) []map[string]types.AttributeValue {
	keys := make([]map[string]types.AttributeValue, 0, len(items))
	for _, item := range items {
		keys = append(keys, map[string]types.AttributeValue{"PK": item["PK"], "SK": item["SK"]})
	}
	return keys
}

func (s *DynamoStore) batchDeleteKeys(ctx context.Context, keys []map[string]types.AttributeValue) error {
	reqs := make([]types.WriteRequest, 0, len(keys))
	for _, key := range keys {
		reqs = append(reqs, types.WriteRequest{DeleteRequest: &types.DeleteRequest{Key: key}})
	}
	return s.batchWrite(ctx, reqs)
}

// batchWrite sends requests in chunks of maxBatchWrite, resubmitting any
// unprocessed items.
func (s *DynamoStore) batchWrite(ctx context.Context, reqs []types.WriteRequest) error {
	for i := 0; i < len(reqs); i += maxBatchWrite {
		pending := reqs[i:min(i+maxBatchWrite, len(reqs))]
		for attempt := 0; len(pending) > 0; attempt++ {
			if attempt == 5 {
				return fmt.Errorf("BatchWriteItem: %d items still unprocessed", len(pending))
			}
			out, err := s.client.BatchWriteItem(ctx, &dynamodb.BatchWriteItemInput{
				RequestItems: map[string][]types.WriteRequest{s.tableName: pending},
			})
			if err != nil {
				return fmt.Errorf("BatchWriteItem (%d items): %w", len(pending), err)
			}
			pending = out.UnprocessedItems[s.tableName]
		}
	}
	return nil
}
