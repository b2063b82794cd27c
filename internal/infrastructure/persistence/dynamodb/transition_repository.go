package dynamodb

import (
	"context"
	"fmt"
	"strconv"
	"strings"
	"time"

	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/credentials"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb/types"
	"github.com/dreschagin/mainnet-dashboard/internal/domain/entity"
	"github.com/dreschagin/mainnet-dashboard/internal/domain/valueobject"
)

const (
	maxBatchWriteSize = 25
	maxBatchRetries   = 5

	attrPK         = "PK"
	attrSK         = "SK"
	attrID         = "id"
	attrFeedKey    = "feed_key"
	attrFromSource = "from_source"
	attrToSource   = "to_source"
	attrErrorKind  = "error_kind"
	attrObservedAt = "observed_at"
	attrReceivedAt = "received_at"
	attrExpiresAt  = "expires_at"
)

type Config struct {
	TableName       string
	Region          string
	Endpoint        string
	AccessKeyID     string
	SecretAccessKey string
	StrongReads     bool
	// Retention срок жизни записи; пишется в expires_at для TTL таблицы
	Retention time.Duration
}

// API подмножество клиента DynamoDB, которым пользуется репозиторий
type API interface {
	Query(ctx context.Context, params *dynamodb.QueryInput, optFns ...func(*dynamodb.Options)) (*dynamodb.QueryOutput, error)
	Scan(ctx context.Context, params *dynamodb.ScanInput, optFns ...func(*dynamodb.Options)) (*dynamodb.ScanOutput, error)
	BatchWriteItem(ctx context.Context, params *dynamodb.BatchWriteItemInput, optFns ...func(*dynamodb.Options)) (*dynamodb.BatchWriteItemOutput, error)
}

// TransitionRepository хранит переходы фидов в DynamoDB.
// Ключ: PK = FEED#<feed>, SK = TS#<unix ms>#ID#<id>.
type TransitionRepository struct {
	client      API
	tableName   string
	strongReads bool
	retention   time.Duration
}

func NewTransitionRepository(ctx context.Context, cfg Config) (*TransitionRepository, error) {
	if strings.TrimSpace(cfg.TableName) == "" {
		return nil, fmt.Errorf("dynamodb table name is required")
	}

	if strings.TrimSpace(cfg.Region) == "" {
		cfg.Region = "us-east-1"
	}

	loadOptions := []func(*awsconfig.LoadOptions) error{
		awsconfig.WithRegion(cfg.Region),
	}
	accessKeyID := strings.TrimSpace(cfg.AccessKeyID)
	secretAccessKey := strings.TrimSpace(cfg.SecretAccessKey)
	if accessKeyID != "" || secretAccessKey != "" {
		if accessKeyID == "" || secretAccessKey == "" {
			return nil, fmt.Errorf("both dynamodb access key id and secret access key are required for static credentials")
		}
		loadOptions = append(loadOptions, awsconfig.WithCredentialsProvider(credentials.NewStaticCredentialsProvider(
			accessKeyID,
			secretAccessKey,
			"",
		)))
	}

	awsCfg, err := awsconfig.LoadDefaultConfig(ctx, loadOptions...)
	if err != nil {
		return nil, fmt.Errorf("failed to create aws config for dynamodb: %w", err)
	}

	client := dynamodb.NewFromConfig(awsCfg, func(options *dynamodb.Options) {
		if endpoint := strings.TrimSpace(cfg.Endpoint); endpoint != "" {
			options.BaseEndpoint = &endpoint
		}
	})

	return NewTransitionRepositoryWithClient(client, cfg), nil
}

// NewTransitionRepositoryWithClient создает репозиторий поверх готового клиента
func NewTransitionRepositoryWithClient(client API, cfg Config) *TransitionRepository {
	return &TransitionRepository{
		client:      client,
		tableName:   strings.TrimSpace(cfg.TableName),
		strongReads: cfg.StrongReads,
		retention:   cfg.Retention,
	}
}

func (r *TransitionRepository) Save(ctx context.Context, transition *entity.Transition) error {
	return r.SaveBatch(ctx, []*entity.Transition{transition})
}

func (r *TransitionRepository) SaveBatch(ctx context.Context, transitions []*entity.Transition) error {
	if len(transitions) == 0 {
		return nil
	}

	for start := 0; start < len(transitions); start += maxBatchWriteSize {
		end := start + maxBatchWriteSize
		if end > len(transitions) {
			end = len(transitions)
		}

		requests := make([]types.WriteRequest, 0, end-start)
		for _, transition := range transitions[start:end] {
			requests = append(requests, types.WriteRequest{
				PutRequest: &types.PutRequest{Item: r.toItem(transition)},
			})
		}

		if err := r.writeBatchWithRetry(ctx, requests); err != nil {
			return err
		}
	}

	return nil
}

// FindByTimeRange читает все страницы запроса, по возрастанию observed_at
func (r *TransitionRepository) FindByTimeRange(
	ctx context.Context,
	feedKey string,
	timeRange valueobject.TimeRange,
) ([]*entity.Transition, error) {
	keyCondition := "#pk = :pk AND #sk BETWEEN :from AND :to"
	input := &dynamodb.QueryInput{
		TableName:              &r.tableName,
		KeyConditionExpression: &keyCondition,
		ScanIndexForward:       boolPointer(true),
		ConsistentRead:         boolPointer(r.strongReads),
		ExpressionAttributeNames: map[string]string{
			"#pk": attrPK,
			"#sk": attrSK,
		},
		ExpressionAttributeValues: map[string]types.AttributeValue{
			":pk":   &types.AttributeValueMemberS{Value: buildPK(feedKey)},
			":from": &types.AttributeValueMemberS{Value: buildSortLowerBound(timeRange.Start().UnixMilli())},
			":to":   &types.AttributeValueMemberS{Value: buildSortUpperBound(timeRange.End().UnixMilli())},
		},
	}

	var transitions []*entity.Transition
	for {
		output, err := r.client.Query(ctx, input)
		if err != nil {
			return nil, fmt.Errorf("dynamodb query failed: %w", err)
		}

		for _, raw := range output.Items {
			transition, err := fromItem(raw)
			if err != nil {
				return nil, err
			}
			transitions = append(transitions, transition)
		}

		if len(output.LastEvaluatedKey) == 0 {
			return transitions, nil
		}
		input.ExclusiveStartKey = output.LastEvaluatedKey
	}
}

func (r *TransitionRepository) FindLatestBefore(ctx context.Context, feedKey string, before time.Time) (*entity.Transition, error) {
	keyCondition := "#pk = :pk AND #sk < :before"
	output, err := r.client.Query(ctx, &dynamodb.QueryInput{
		TableName:              &r.tableName,
		KeyConditionExpression: &keyCondition,
		ScanIndexForward:       boolPointer(false),
		ConsistentRead:         boolPointer(r.strongReads),
		Limit:                  int32Pointer(1),
		ExpressionAttributeNames: map[string]string{
			"#pk": attrPK,
			"#sk": attrSK,
		},
		ExpressionAttributeValues: map[string]types.AttributeValue{
			":pk":     &types.AttributeValueMemberS{Value: buildPK(feedKey)},
			":before": &types.AttributeValueMemberS{Value: buildSortLowerBound(before.UnixMilli())},
		},
	})
	if err != nil {
		return nil, fmt.Errorf("dynamodb query failed: %w", err)
	}
	if len(output.Items) == 0 {
		return nil, nil
	}

	return fromItem(output.Items[0])
}

// DeleteOlderThan дополняет TTL таблицы: TTL удаляет записи с задержкой до 48 часов
func (r *TransitionRepository) DeleteOlderThan(ctx context.Context, before time.Time) (int64, error) {
	filter := "#observed < :before"
	projection := "#pk, #sk"
	input := &dynamodb.ScanInput{
		TableName:            &r.tableName,
		FilterExpression:     &filter,
		ProjectionExpression: &projection,
		ExpressionAttributeNames: map[string]string{
			"#pk":       attrPK,
			"#sk":       attrSK,
			"#observed": attrObservedAt,
		},
		ExpressionAttributeValues: map[string]types.AttributeValue{
			":before": &types.AttributeValueMemberN{Value: strconv.FormatInt(before.UnixMilli(), 10)},
		},
	}

	var deleted int64
	for {
		output, err := r.client.Scan(ctx, input)
		if err != nil {
			return deleted, fmt.Errorf("dynamodb scan failed: %w", err)
		}

		for start := 0; start < len(output.Items); start += maxBatchWriteSize {
			end := start + maxBatchWriteSize
			if end > len(output.Items) {
				end = len(output.Items)
			}

			requests := make([]types.WriteRequest, 0, end-start)
			for _, item := range output.Items[start:end] {
				requests = append(requests, types.WriteRequest{
					DeleteRequest: &types.DeleteRequest{Key: map[string]types.AttributeValue{
						attrPK: item[attrPK],
						attrSK: item[attrSK],
					}},
				})
			}
			if err := r.writeBatchWithRetry(ctx, requests); err != nil {
				return deleted, err
			}
			deleted += int64(len(requests))
		}

		if len(output.LastEvaluatedKey) == 0 {
			return deleted, nil
		}
		input.ExclusiveStartKey = output.LastEvaluatedKey
	}
}

func (r *TransitionRepository) writeBatchWithRetry(ctx context.Context, requests []types.WriteRequest) error {
	if len(requests) == 0 {
		return nil
	}

	pending := map[string][]types.WriteRequest{
		r.tableName: requests,
	}

	for attempt := 0; attempt < maxBatchRetries; attempt++ {
		output, err := r.client.BatchWriteItem(ctx, &dynamodb.BatchWriteItemInput{
			RequestItems: pending,
		})
		if err != nil {
			return fmt.Errorf("dynamodb batch write failed: %w", err)
		}

		if len(output.UnprocessedItems) == 0 {
			return nil
		}

		pending = output.UnprocessedItems
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(time.Duration(attempt+1) * 100 * time.Millisecond):
		}
	}

	return fmt.Errorf("dynamodb batch write has unprocessed items after retries")
}

func (r *TransitionRepository) toItem(t *entity.Transition) map[string]types.AttributeValue {
	observedMS := t.ObservedAt().UTC().UnixMilli()

	item := map[string]types.AttributeValue{
		attrPK:         &types.AttributeValueMemberS{Value: buildPK(t.FeedKey())},
		attrSK:         &types.AttributeValueMemberS{Value: buildSK(observedMS, t.ID())},
		attrID:         &types.AttributeValueMemberS{Value: t.ID()},
		attrFeedKey:    &types.AttributeValueMemberS{Value: t.FeedKey()},
		attrFromSource: &types.AttributeValueMemberS{Value: t.From().String()},
		attrToSource:   &types.AttributeValueMemberS{Value: t.To().String()},
		attrObservedAt: &types.AttributeValueMemberN{Value: strconv.FormatInt(observedMS, 10)},
	}

	if kind := t.ErrorKind(); kind != valueobject.NoError {
		item[attrErrorKind] = &types.AttributeValueMemberS{Value: kind.String()}
	}
	if received := t.ReceivedAt(); !received.IsZero() {
		item[attrReceivedAt] = &types.AttributeValueMemberN{Value: strconv.FormatInt(received.UTC().UnixMilli(), 10)}
	}
	if r.retention > 0 {
		expiresAt := t.ObservedAt().Add(r.retention).UTC().Unix()
		item[attrExpiresAt] = &types.AttributeValueMemberN{Value: strconv.FormatInt(expiresAt, 10)}
	}

	return item
}

func fromItem(item map[string]types.AttributeValue) (*entity.Transition, error) {
	id, err := attrString(item, attrID)
	if err != nil {
		return nil, err
	}
	feedKey, err := attrString(item, attrFeedKey)
	if err != nil {
		return nil, err
	}
	fromRaw, err := attrString(item, attrFromSource)
	if err != nil {
		return nil, err
	}
	toRaw, err := attrString(item, attrToSource)
	if err != nil {
		return nil, err
	}
	observedMS, err := attrInt64(item, attrObservedAt)
	if err != nil {
		return nil, err
	}

	from := valueobject.Source(fromRaw)
	if err := from.Validate(); err != nil {
		return nil, err
	}
	to := valueobject.Source(toRaw)
	if err := to.Validate(); err != nil {
		return nil, err
	}
	kind := valueobject.ErrorKind(optionalString(item, attrErrorKind))
	if err := kind.Validate(); err != nil {
		return nil, err
	}

	var received time.Time
	if ms := optionalInt64(item, attrReceivedAt); ms > 0 {
		received = time.UnixMilli(ms).UTC()
	}

	return entity.ReconstructTransition(
		id,
		feedKey,
		from,
		to,
		kind,
		time.UnixMilli(observedMS).UTC(),
		received,
	), nil
}

func buildPK(feedKey string) string {
	return "FEED#" + feedKey
}

func buildSK(observedMS int64, id string) string {
	return fmt.Sprintf("TS#%013d#ID#%s", observedMS, id)
}

func buildSortLowerBound(tsMS int64) string {
	return fmt.Sprintf("TS#%013d#", tsMS)
}

func buildSortUpperBound(tsMS int64) string {
	return fmt.Sprintf("TS#%013d#~", tsMS)
}

func attrString(item map[string]types.AttributeValue, name string) (string, error) {
	raw, ok := item[name]
	if !ok {
		return "", fmt.Errorf("missing attribute %s", name)
	}
	value, ok := raw.(*types.AttributeValueMemberS)
	if !ok || strings.TrimSpace(value.Value) == "" {
		return "", fmt.Errorf("invalid attribute %s", name)
	}
	return value.Value, nil
}

func optionalString(item map[string]types.AttributeValue, name string) string {
	raw, ok := item[name]
	if !ok {
		return ""
	}
	value, ok := raw.(*types.AttributeValueMemberS)
	if !ok {
		return ""
	}
	return value.Value
}

func attrInt64(item map[string]types.AttributeValue, name string) (int64, error) {
	raw, ok := item[name]
	if !ok {
		return 0, fmt.Errorf("missing attribute %s", name)
	}
	value, ok := raw.(*types.AttributeValueMemberN)
	if !ok {
		return 0, fmt.Errorf("invalid attribute %s", name)
	}
	parsed, err := strconv.ParseInt(value.Value, 10, 64)
	if err != nil {
		return 0, fmt.Errorf("invalid attribute %s: %w", name, err)
	}
	return parsed, nil
}

func optionalInt64(item map[string]types.AttributeValue, name string) int64 {
	raw, ok := item[name]
	if !ok {
		return 0
	}
	value, ok := raw.(*types.AttributeValueMemberN)
	if !ok {
		return 0
	}
	parsed, err := strconv.ParseInt(value.Value, 10, 64)
	if err != nil {
		return 0
	}
	return parsed
}

func boolPointer(v bool) *bool {
	return &v
}

func int32Pointer(v int32) *int32 {
	return &v
}
