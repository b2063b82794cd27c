package s3

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"strings"

	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/credentials"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/aws/aws-sdk-go-v2/service/s3/types"
	"github.com/aws/smithy-go"
	"github.com/dreschagin/mainnet-dashboard/internal/application/port"
)

const defaultMaxObjectBytes = 1 << 20

type Config struct {
	Bucket          string
	Prefix          string
	Region          string
	Endpoint        string
	AccessKeyID     string
	SecretAccessKey string
	UsePathStyle    bool
	MaxObjectBytes  int64
}

// ObjectGetter подмножество клиента S3, которым пользуется хранилище
type ObjectGetter interface {
	GetObject(ctx context.Context, params *s3.GetObjectInput, optFns ...func(*s3.Options)) (*s3.GetObjectOutput, error)
}

// DemoPayloadStorage читает переопределения demo payload из бакета: <prefix><feed>.json
type DemoPayloadStorage struct {
	client   ObjectGetter
	bucket   string
	prefix   string
	maxBytes int64
}

var _ port.DemoPayloadSource = (*DemoPayloadStorage)(nil)

func NewDemoPayloadStorage(ctx context.Context, cfg Config) (*DemoPayloadStorage, error) {
	if strings.TrimSpace(cfg.Bucket) == "" {
		return nil, fmt.Errorf("s3 bucket is required")
	}
	if strings.TrimSpace(cfg.Region) == "" {
		cfg.Region = "ru-central1"
	}
	if strings.TrimSpace(cfg.Endpoint) == "" {
		cfg.Endpoint = "https://storage.yandexcloud.net"
	}

	loadOptions := []func(*awsconfig.LoadOptions) error{
		awsconfig.WithRegion(cfg.Region),
	}
	if strings.TrimSpace(cfg.AccessKeyID) != "" || strings.TrimSpace(cfg.SecretAccessKey) != "" {
		if strings.TrimSpace(cfg.AccessKeyID) == "" || strings.TrimSpace(cfg.SecretAccessKey) == "" {
			return nil, fmt.Errorf("s3 access key id and secret are required together")
		}
		loadOptions = append(loadOptions, awsconfig.WithCredentialsProvider(credentials.NewStaticCredentialsProvider(
			cfg.AccessKeyID,
			cfg.SecretAccessKey,
			"",
		)))
	}

	awsCfg, err := awsconfig.LoadDefaultConfig(ctx, loadOptions...)
	if err != nil {
		return nil, fmt.Errorf("failed to create aws config: %w", err)
	}

	client := s3.NewFromConfig(awsCfg, func(options *s3.Options) {
		options.BaseEndpoint = &cfg.Endpoint
		options.UsePathStyle = cfg.UsePathStyle
	})

	return NewDemoPayloadStorageWithClient(client, cfg), nil
}

// NewDemoPayloadStorageWithClient создает хранилище поверх готового клиента
func NewDemoPayloadStorageWithClient(client ObjectGetter, cfg Config) *DemoPayloadStorage {
	maxBytes := cfg.MaxObjectBytes
	if maxBytes <= 0 {
		maxBytes = defaultMaxObjectBytes
	}
	return &DemoPayloadStorage{
		client:   client,
		bucket:   strings.TrimSpace(cfg.Bucket),
		prefix:   strings.TrimSpace(cfg.Prefix),
		maxBytes: maxBytes,
	}
}

// ObjectKey ключ объекта с demo payload фида
func (s *DemoPayloadStorage) ObjectKey(feedKey string) string {
	return s.prefix + feedKey + ".json"
}

func (s *DemoPayloadStorage) Load(ctx context.Context, feedKey string) (json.RawMessage, error) {
	if strings.TrimSpace(feedKey) == "" {
		return nil, fmt.Errorf("feed key is required")
	}

	key := s.ObjectKey(feedKey)
	output, err := s.client.GetObject(ctx, &s3.GetObjectInput{
		Bucket: &s.bucket,
		Key:    &key,
	})
	if err != nil {
		if isNotFound(err) {
			return nil, port.ErrDemoPayloadNotFound
		}
		return nil, fmt.Errorf("get object %s failed: %w", key, err)
	}
	defer output.Body.Close()

	body, err := io.ReadAll(io.LimitReader(output.Body, s.maxBytes+1))
	if err != nil {
		return nil, fmt.Errorf("read object %s failed: %w", key, err)
	}
	if int64(len(body)) > s.maxBytes {
		return nil, fmt.Errorf("object %s exceeds %d bytes", key, s.maxBytes)
	}
	if !json.Valid(body) {
		return nil, fmt.Errorf("object %s is not valid JSON", key)
	}

	return body, nil
}

func isNotFound(err error) bool {
	var noSuchKey *types.NoSuchKey
	if errors.As(err, &noSuchKey) {
		return true
	}
	var apiErr smithy.APIError
	if errors.As(err, &apiErr) {
		switch apiErr.ErrorCode() {
		case "NoSuchKey", "NotFound":
			return true
		}
	}
	return false
}
