package config

import (
	"errors"
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
)

const (
	HistoryBackendNone     = "none"
	HistoryBackendPostgres = "postgres"
	HistoryBackendDynamoDB = "dynamodb"
)

type Config struct {
	Server     ServerConfig
	Freshness  FreshnessConfig
	Upstream   UpstreamConfig
	Poller     PollerConfig
	History    HistoryConfig
	Database   DatabaseConfig
	DynamoDB   DynamoDBConfig
	Redis      RedisConfig
	NATS       NATSConfig
	CloudWatch CloudWatchConfig
	AWS        AWSConfig
	S3Demo     S3DemoConfig
	Security   SecurityConfig
}

type ServerConfig struct {
	Port            string
	LogLevel        string
	ReadTimeout     time.Duration
	WriteTimeout    time.Duration
	IdleTimeout     time.Duration
	ShutdownTimeout time.Duration
}

// FreshnessConfig параметры контроллера свежести
type FreshnessConfig struct {
	MaxCacheAge          time.Duration
	MaxConsecutiveErrors int
	ForceDemoData        bool
	// FeedsConfigPath путь к каталогу фидов; пусто - встроенный каталог
	FeedsConfigPath string
}

type UpstreamConfig struct {
	BaseURL        string
	RequestTimeout time.Duration
	RateLimitRPS   float64
	RateLimitBurst int
	MaxBodyBytes   int64
	NodeDiskMount  string
}

type PollerConfig struct {
	MaxRetries       int
	RetryBaseDelay   time.Duration
	RetryMaxDelay    time.Duration
	DegradedInterval time.Duration
}

type HistoryConfig struct {
	Backend         string
	RetentionDays   int
	PruneInterval   time.Duration
	MaxQueryRange   time.Duration
	DefaultDuration time.Duration
}

// Retention срок хранения истории переходов
func (h HistoryConfig) Retention() time.Duration {
	return time.Duration(h.RetentionDays) * 24 * time.Hour
}

type DatabaseConfig struct {
	Host            string
	Port            string
	User            string
	Password        string
	Database        string
	SSLMode         string
	MaxOpenConns    int
	MaxIdleConns    int
	ConnMaxLifetime time.Duration
	ConnMaxIdleTime time.Duration
}

type DynamoDBConfig struct {
	Table       string
	Endpoint    string
	StrongReads bool
}

type RedisConfig struct {
	Enabled  bool
	Host     string
	Port     string
	Password string
	DB       int
	CacheTTL time.Duration
}

type NATSConfig struct {
	Enabled       bool
	URL           string
	Stream        string
	SubjectPrefix string
}

type CloudWatchConfig struct {
	Enabled       bool
	Namespace     string
	LogGroup      string
	LogStream     string
	LogLevel      string
	FlushInterval time.Duration
}

// AWSConfig общие параметры AWS клиентов (CloudWatch, DynamoDB, S3)
type AWSConfig struct {
	Region          string
	Endpoint        string
	AccessKeyID     string
	SecretAccessKey string
}

type S3DemoConfig struct {
	Enabled      bool
	Bucket       string
	Prefix       string
	Endpoint     string
	UsePathStyle bool
}

type SecurityConfig struct {
	AllowedOrigins []string
	AuthEnabled    bool
	AuthToken      string
	RateLimitRPS   float64
	RateLimitBurst int
}

func Load() (*Config, error) {
	// Загружаем .env файл (игнорируем ошибку если файла нет)
	_ = godotenv.Load()

	var errs []error
	durations := func(key, def string) time.Duration {
		d, err := getEnvDuration(key, def)
		if err != nil {
			errs = append(errs, err)
		}
		return d
	}
	ints := func(key string, def int) int {
		v, err := getEnvInt(key, def)
		if err != nil {
			errs = append(errs, err)
		}
		return v
	}
	floats := func(key string, def float64) float64 {
		v, err := getEnvFloat(key, def)
		if err != nil {
			errs = append(errs, err)
		}
		return v
	}

	cfg := &Config{
		Server: ServerConfig{
			Port:            getEnv("SERVER_PORT", "8080"),
			LogLevel:        strings.ToLower(getEnv("LOG_LEVEL", "info")),
			ReadTimeout:     10 * time.Second,
			WriteTimeout:    10 * time.Second,
			IdleTimeout:     60 * time.Second,
			ShutdownTimeout: 30 * time.Second,
		},
		Freshness: FreshnessConfig{
			MaxCacheAge:          durations("FRESHNESS_MAX_CACHE_AGE", "5m"),
			MaxConsecutiveErrors: ints("FRESHNESS_MAX_CONSECUTIVE_ERRORS", 3),
			ForceDemoData:        getEnvBool("FORCE_DEMO_DATA", false),
			FeedsConfigPath:      getEnv("FEEDS_CONFIG_PATH", ""),
		},
		Upstream: UpstreamConfig{
			BaseURL:        getEnv("UPSTREAM_BASE_URL", "http://localhost:8645"),
			RequestTimeout: durations("UPSTREAM_REQUEST_TIMEOUT", "8s"),
			RateLimitRPS:   floats("UPSTREAM_RATE_LIMIT_RPS", 10),
			RateLimitBurst: ints("UPSTREAM_RATE_LIMIT_BURST", 20),
			MaxBodyBytes:   int64(ints("UPSTREAM_MAX_BODY_KB", 1024)) * 1024,
			NodeDiskMount:  getEnv("NODE_DISK_MOUNT", "/"),
		},
		Poller: PollerConfig{
			MaxRetries:       ints("POLL_MAX_RETRIES", 2),
			RetryBaseDelay:   durations("POLL_RETRY_BASE_DELAY", "500ms"),
			RetryMaxDelay:    durations("POLL_RETRY_MAX_DELAY", "5s"),
			DegradedInterval: durations("POLL_DEGRADED_INTERVAL", "30s"),
		},
		History: HistoryConfig{
			Backend:         strings.ToLower(getEnv("HISTORY_BACKEND", HistoryBackendNone)),
			RetentionDays:   ints("HISTORY_RETENTION_DAYS", 7),
			PruneInterval:   durations("HISTORY_PRUNE_INTERVAL", "1h"),
			MaxQueryRange:   durations("HISTORY_MAX_QUERY_RANGE", "168h"),
			DefaultDuration: durations("HISTORY_DEFAULT_DURATION", "1h"),
		},
		Database: DatabaseConfig{
			Host:            getEnv("DB_HOST", "localhost"),
			Port:            getEnv("DB_PORT", "5432"),
			User:            getEnv("DB_USER", "postgres"),
			Password:        getEnv("DB_PASSWORD", "postgres"),
			Database:        getEnv("DB_NAME", "freshness"),
			SSLMode:         getEnv("DB_SSLMODE", "disable"),
			MaxOpenConns:    10,
			MaxIdleConns:    5,
			ConnMaxLifetime: 5 * time.Minute,
			ConnMaxIdleTime: 10 * time.Minute,
		},
		DynamoDB: DynamoDBConfig{
			Table:       getEnv("DYNAMODB_TABLE", "feed_transitions"),
			Endpoint:    getEnv("DYNAMODB_ENDPOINT", ""),
			StrongReads: getEnvBool("DYNAMODB_STRONG_READS", false),
		},
		Redis: RedisConfig{
			Enabled:  getEnvBool("REDIS_ENABLED", false),
			Host:     getEnv("REDIS_HOST", "localhost"),
			Port:     getEnv("REDIS_PORT", "6379"),
			Password: getEnv("REDIS_PASSWORD", ""),
			DB:       ints("REDIS_DB", 0),
			CacheTTL: durations("REDIS_CACHE_TTL", "30s"),
		},
		NATS: NATSConfig{
			Enabled:       getEnvBool("NATS_ENABLED", false),
			URL:           getEnv("NATS_URL", "nats://localhost:4222"),
			Stream:        getEnv("NATS_STREAM", "FRESHNESS"),
			SubjectPrefix: getEnv("NATS_SUBJECT_PREFIX", "freshness"),
		},
		CloudWatch: CloudWatchConfig{
			Enabled:       getEnvBool("CLOUDWATCH_ENABLED", false),
			Namespace:     getEnv("CLOUDWATCH_NAMESPACE", "MainnetDashboard/Freshness"),
			LogGroup:      getEnv("CLOUDWATCH_LOG_GROUP", "/mainnet-dashboard/app"),
			LogStream:     getEnv("CLOUDWATCH_LOG_STREAM", hostnameOr("mainnet-dashboard")),
			LogLevel:      strings.ToLower(getEnv("CLOUDWATCH_LOG_LEVEL", "warn")),
			FlushInterval: durations("CLOUDWATCH_FLUSH_INTERVAL", "10s"),
		},
		AWS: AWSConfig{
			Region:          getEnv("AWS_REGION", "us-east-1"),
			Endpoint:        getEnv("AWS_ENDPOINT_URL", ""),
			AccessKeyID:     getEnv("AWS_ACCESS_KEY_ID", ""),
			SecretAccessKey: getEnv("AWS_SECRET_ACCESS_KEY", ""),
		},
		S3Demo: S3DemoConfig{
			Enabled:      getEnvBool("S3_DEMO_ENABLED", false),
			Bucket:       getEnv("S3_DEMO_BUCKET", ""),
			Prefix:       getEnv("S3_DEMO_PREFIX", "demo/"),
			Endpoint:     getEnv("S3_DEMO_ENDPOINT", getEnv("AWS_ENDPOINT_URL", "")),
			UsePathStyle: getEnvBool("S3_DEMO_USE_PATH_STYLE", true),
		},
		Security: SecurityConfig{
			AllowedOrigins: splitCSV(getEnv("ALLOWED_ORIGINS", "http://localhost:8080,http://127.0.0.1:8080")),
			AuthEnabled:    getEnvBool("AUTH_ENABLED", false),
			AuthToken:      getEnv("AUTH_BEARER_TOKEN", ""),
			RateLimitRPS:   floats("API_RATE_LIMIT_RPS", 20),
			RateLimitBurst: ints("API_RATE_LIMIT_BURST", 40),
		},
	}

	if len(errs) > 0 {
		return nil, errors.Join(errs...)
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	return cfg, nil
}

// Validate проверяет диапазоны и зависимости между параметрами
func (c *Config) Validate() error {
	var errs []error

	if c.Freshness.MaxCacheAge <= 0 {
		errs = append(errs, errors.New("FRESHNESS_MAX_CACHE_AGE must be positive"))
	}
	if c.Freshness.MaxConsecutiveErrors < 1 {
		errs = append(errs, errors.New("FRESHNESS_MAX_CONSECUTIVE_ERRORS must be at least 1"))
	}
	if c.Upstream.BaseURL == "" {
		errs = append(errs, errors.New("UPSTREAM_BASE_URL is required"))
	}
	if c.Upstream.RequestTimeout <= 0 {
		errs = append(errs, errors.New("UPSTREAM_REQUEST_TIMEOUT must be positive"))
	}
	if c.Upstream.RateLimitRPS <= 0 || c.Upstream.RateLimitBurst < 1 {
		errs = append(errs, errors.New("UPSTREAM_RATE_LIMIT_RPS and UPSTREAM_RATE_LIMIT_BURST must be positive"))
	}
	if c.Poller.MaxRetries < 0 {
		errs = append(errs, errors.New("POLL_MAX_RETRIES must not be negative"))
	}
	if c.Poller.RetryBaseDelay <= 0 || c.Poller.RetryMaxDelay < c.Poller.RetryBaseDelay {
		errs = append(errs, errors.New("POLL_RETRY_MAX_DELAY must be at least POLL_RETRY_BASE_DELAY"))
	}

	switch c.History.Backend {
	case HistoryBackendNone:
	case HistoryBackendPostgres, HistoryBackendDynamoDB:
		if c.History.RetentionDays < 1 {
			errs = append(errs, errors.New("HISTORY_RETENTION_DAYS must be at least 1"))
		}
		if c.History.PruneInterval <= 0 {
			errs = append(errs, errors.New("HISTORY_PRUNE_INTERVAL must be positive"))
		}
		if c.History.Backend == HistoryBackendDynamoDB && c.DynamoDB.Table == "" {
			errs = append(errs, errors.New("DYNAMODB_TABLE is required for dynamodb history backend"))
		}
	default:
		errs = append(errs, fmt.Errorf("HISTORY_BACKEND %q is not one of none, postgres, dynamodb", c.History.Backend))
	}

	if c.S3Demo.Enabled && c.S3Demo.Bucket == "" {
		errs = append(errs, errors.New("S3_DEMO_BUCKET is required when S3_DEMO_ENABLED=true"))
	}
	if c.Security.AuthEnabled && c.Security.AuthToken == "" {
		errs = append(errs, errors.New("AUTH_BEARER_TOKEN is required when AUTH_ENABLED=true"))
	}
	if c.Security.RateLimitRPS < 0 || c.Security.RateLimitBurst < 0 {
		errs = append(errs, errors.New("API_RATE_LIMIT_RPS and API_RATE_LIMIT_BURST must not be negative"))
	}

	return errors.Join(errs...)
}

func (c *DatabaseConfig) DSN() string {
	return fmt.Sprintf("host=%s port=%s user=%s password=%s dbname=%s sslmode=%s",
		c.Host, c.Port, c.User, c.Password, c.Database, c.SSLMode)
}

func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func getEnvBool(key string, defaultValue bool) bool {
	value := os.Getenv(key)
	if value == "" {
		return defaultValue
	}

	parsed, err := strconv.ParseBool(value)
	if err != nil {
		return defaultValue
	}

	return parsed
}

func getEnvInt(key string, defaultValue int) (int, error) {
	value := os.Getenv(key)
	if value == "" {
		return defaultValue, nil
	}

	parsed, err := strconv.Atoi(strings.TrimSpace(value))
	if err != nil {
		return 0, fmt.Errorf("invalid %s: %w", key, err)
	}
	return parsed, nil
}

func getEnvFloat(key string, defaultValue float64) (float64, error) {
	value := os.Getenv(key)
	if value == "" {
		return defaultValue, nil
	}

	parsed, err := strconv.ParseFloat(strings.TrimSpace(value), 64)
	if err != nil {
		return 0, fmt.Errorf("invalid %s: %w", key, err)
	}
	return parsed, nil
}

func getEnvDuration(key, defaultValue string) (time.Duration, error) {
	d, err := time.ParseDuration(getEnv(key, defaultValue))
	if err != nil {
		return 0, fmt.Errorf("invalid %s: %w", key, err)
	}
	return d, nil
}

func hostnameOr(fallback string) string {
	if name, err := os.Hostname(); err == nil && name != "" {
		return name
	}
	return fallback
}

func splitCSV(raw string) []string {
	items := make([]string, 0)
	for _, part := range strings.Split(raw, ",") {
		if item := strings.TrimSpace(part); item != "" {
			items = append(items, item)
		}
	}
	return items
}
