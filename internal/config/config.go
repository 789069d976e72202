package config

import (
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/spf13/viper"
)

// readSecret reads a Docker secret from a file path specified by an env var
// with _FILE suffix. If FOO is already set directly, the file is skipped.
// If FOO_FILE is set, reads the file content and sets FOO.
func readSecret(envKey string) {
	if os.Getenv(envKey) != "" {
		return
	}
	fileKey := envKey + "_FILE"
	filePath := os.Getenv(fileKey)
	if filePath == "" {
		return
	}
	data, err := os.ReadFile(filePath)
	if err != nil {
		return
	}
	val := strings.TrimSpace(string(data))
	os.Setenv(envKey, val)
}

type Config struct {
	Server       ServerConfig
	Redis        RedisConfig
	JWT          JWTConfig
	RateLimit    RateLimitConfig
	OIDC         OIDCConfig
	Gateway      GatewayConfig
	Delivery     DeliveryConfig
	Catalog      CatalogConfig
	Storage      StorageConfig
	Notification NotificationConfig
	Log          LogConfig
}

type ServerConfig struct {
	Port     string
	Env      string
	LogLevel string
}

type RedisConfig struct {
	Addr     string
	Password string
	DB       int
}

type JWTConfig struct {
	Secret     string
	Expiration int // hours
}

type RateLimitConfig struct {
	DeliveriesPerHour int
}

// OIDCConfig enables JWKS verification of identity provider tokens.
type OIDCConfig struct {
	Issuer     string
	Audience   string
	RolesClaim string
}

type GatewayConfig struct {
	Enabled bool
}

// DeliveryConfig tunes the orchestrator, lock manager and adapters.
type DeliveryConfig struct {
	MaxAttempts        int
	RetrySchedule      []time.Duration
	LockTTL            time.Duration
	LockRetention      time.Duration
	ConnectTimeout     time.Duration
	AttemptTimeout     time.Duration
	ContentionBackoff  time.Duration
	MultipartThreshold int64
	StagingDir         string
	InstanceID         string
	Concurrency        int
	Queue              string
}

// CatalogConfig points at the external release store and asset host.
type CatalogConfig struct {
	BaseURL string
	APIKey  string
	Timeout int // seconds
}

// StorageConfig is the managed bucket used by the Storage protocol.
type StorageConfig struct {
	AccountID       string
	Endpoint        string
	Region          string
	AccessKeyID     string
	SecretAccessKey string
	BucketName      string
	PublicURL       string
}

type NotificationConfig struct {
	WebhookURL string
	Timeout    int // seconds
}

type LogConfig struct {
	Level       string
	Development bool
}

func Load() (*Config, error) {
	// Read Docker Swarm secrets from _FILE env vars before Viper binds
	readSecret("REDIS_PASSWORD")
	readSecret("JWT_SECRET")
	readSecret("CATALOG_API_KEY")
	readSecret("STORAGE_ACCESS_KEY_ID")
	readSecret("STORAGE_SECRET_ACCESS_KEY")
	readSecret("OIDC_AUDIENCE")

	v := viper.New()
	v.SetConfigName("config")
	v.SetConfigType("yaml")
	v.AddConfigPath(".")
	v.AddConfigPath("./config")

	// Environment variables
	v.AutomaticEnv()

	// Bind environment variables with underscores to nested config keys
	_ = v.BindEnv("server.port", "SERVER_PORT")
	_ = v.BindEnv("server.env", "SERVER_ENV")
	_ = v.BindEnv("server.log_level", "LOG_LEVEL")
	_ = v.BindEnv("redis.addr", "REDIS_ADDR")
	_ = v.BindEnv("redis.password", "REDIS_PASSWORD")
	_ = v.BindEnv("redis.db", "REDIS_DB")
	_ = v.BindEnv("jwt.secret", "JWT_SECRET")
	_ = v.BindEnv("jwt.expiration", "JWT_EXPIRATION")
	_ = v.BindEnv("ratelimit.deliveries_per_hour", "RATELIMIT_DELIVERIES_PER_HOUR")
	_ = v.BindEnv("oidc.issuer", "OIDC_ISSUER")
	_ = v.BindEnv("oidc.audience", "OIDC_AUDIENCE")
	_ = v.BindEnv("oidc.roles_claim", "OIDC_ROLES_CLAIM")
	_ = v.BindEnv("gateway.enabled", "GATEWAY_ENABLED")
	_ = v.BindEnv("delivery.max_attempts", "DELIVERY_MAX_ATTEMPTS")
	_ = v.BindEnv("delivery.retry_schedule", "DELIVERY_RETRY_SCHEDULE")
	_ = v.BindEnv("delivery.lock_ttl", "DELIVERY_LOCK_TTL")
	_ = v.BindEnv("delivery.lock_retention", "DELIVERY_LOCK_RETENTION")
	_ = v.BindEnv("delivery.connect_timeout", "DELIVERY_CONNECT_TIMEOUT")
	_ = v.BindEnv("delivery.attempt_timeout", "DELIVERY_ATTEMPT_TIMEOUT")
	_ = v.BindEnv("delivery.contention_backoff", "DELIVERY_CONTENTION_BACKOFF")
	_ = v.BindEnv("delivery.multipart_threshold", "DELIVERY_MULTIPART_THRESHOLD")
	_ = v.BindEnv("delivery.staging_dir", "DELIVERY_STAGING_DIR")
	_ = v.BindEnv("delivery.instance_id", "DELIVERY_INSTANCE_ID")
	_ = v.BindEnv("delivery.concurrency", "DELIVERY_CONCURRENCY")
	_ = v.BindEnv("catalog.base_url", "CATALOG_BASE_URL")
	_ = v.BindEnv("catalog.api_key", "CATALOG_API_KEY")
	_ = v.BindEnv("catalog.timeout", "CATALOG_TIMEOUT")
	_ = v.BindEnv("storage.account_id", "STORAGE_ACCOUNT_ID")
	_ = v.BindEnv("storage.endpoint", "STORAGE_ENDPOINT")
	_ = v.BindEnv("storage.region", "STORAGE_REGION")
	_ = v.BindEnv("storage.access_key_id", "STORAGE_ACCESS_KEY_ID")
	_ = v.BindEnv("storage.secret_access_key", "STORAGE_SECRET_ACCESS_KEY")
	_ = v.BindEnv("storage.bucket_name", "STORAGE_BUCKET_NAME")
	_ = v.BindEnv("storage.public_url", "STORAGE_PUBLIC_URL")
	_ = v.BindEnv("notification.webhook_url", "NOTIFICATION_WEBHOOK_URL")
	_ = v.BindEnv("notification.timeout", "NOTIFICATION_TIMEOUT")
	_ = v.BindEnv("log.development", "LOG_DEVELOPMENT")

	// Defaults
	v.SetDefault("server.port", "8000")
	v.SetDefault("server.env", "development")
	v.SetDefault("server.log_level", "info")
	v.SetDefault("redis.addr", "localhost:6379")
	v.SetDefault("redis.password", "")
	v.SetDefault("redis.db", 0)
	v.SetDefault("jwt.secret", "change-me-in-production")
	v.SetDefault("jwt.expiration", 24)
	v.SetDefault("ratelimit.deliveries_per_hour", 120)
	v.SetDefault("oidc.roles_claim", "roles")

	// Delivery defaults
	v.SetDefault("delivery.max_attempts", 3)
	v.SetDefault("delivery.retry_schedule", "5m,15m,60m")
	v.SetDefault("delivery.lock_ttl", "10m")
	v.SetDefault("delivery.lock_retention", "24h")
	v.SetDefault("delivery.connect_timeout", "10s")
	v.SetDefault("delivery.attempt_timeout", "300s")
	v.SetDefault("delivery.contention_backoff", "30s")
	v.SetDefault("delivery.multipart_threshold", 5*1024*1024)
	v.SetDefault("delivery.staging_dir", os.TempDir())
	v.SetDefault("delivery.instance_id", "")
	v.SetDefault("delivery.concurrency", 10)
	v.SetDefault("delivery.queue", "deliveries")

	// Catalog defaults
	v.SetDefault("catalog.base_url", "http://localhost:8081")
	v.SetDefault("catalog.timeout", 30)

	// Storage defaults
	v.SetDefault("storage.region", "auto")

	// Notification defaults
	v.SetDefault("notification.timeout", 10)

	v.SetDefault("log.development", false)

	// Try to read config file (optional)
	_ = v.ReadInConfig()

	schedule, err := parseSchedule(v.GetString("delivery.retry_schedule"))
	if err != nil {
		return nil, err
	}

	cfg := &Config{
		Server: ServerConfig{
			Port:     v.GetString("server.port"),
			Env:      v.GetString("server.env"),
			LogLevel: v.GetString("server.log_level"),
		},
		Redis: RedisConfig{
			Addr:     v.GetString("redis.addr"),
			Password: v.GetString("redis.password"),
			DB:       v.GetInt("redis.db"),
		},
		JWT: JWTConfig{
			Secret:     v.GetString("jwt.secret"),
			Expiration: v.GetInt("jwt.expiration"),
		},
		RateLimit: RateLimitConfig{
			DeliveriesPerHour: v.GetInt("ratelimit.deliveries_per_hour"),
		},
		OIDC: OIDCConfig{
			Issuer:     v.GetString("oidc.issuer"),
			Audience:   v.GetString("oidc.audience"),
			RolesClaim: v.GetString("oidc.roles_claim"),
		},
		Gateway: GatewayConfig{
			Enabled: v.GetBool("gateway.enabled"),
		},
		Delivery: DeliveryConfig{
			MaxAttempts:        v.GetInt("delivery.max_attempts"),
			RetrySchedule:      schedule,
			LockTTL:            v.GetDuration("delivery.lock_ttl"),
			LockRetention:      v.GetDuration("delivery.lock_retention"),
			ConnectTimeout:     v.GetDuration("delivery.connect_timeout"),
			AttemptTimeout:     v.GetDuration("delivery.attempt_timeout"),
			ContentionBackoff:  v.GetDuration("delivery.contention_backoff"),
			MultipartThreshold: v.GetInt64("delivery.multipart_threshold"),
			StagingDir:         v.GetString("delivery.staging_dir"),
			InstanceID:         v.GetString("delivery.instance_id"),
			Concurrency:        v.GetInt("delivery.concurrency"),
			Queue:              v.GetString("delivery.queue"),
		},
		Catalog: CatalogConfig{
			BaseURL: v.GetString("catalog.base_url"),
			APIKey:  v.GetString("catalog.api_key"),
			Timeout: v.GetInt("catalog.timeout"),
		},
		Storage: StorageConfig{
			AccountID:       v.GetString("storage.account_id"),
			Endpoint:        v.GetString("storage.endpoint"),
			Region:          v.GetString("storage.region"),
			AccessKeyID:     v.GetString("storage.access_key_id"),
			SecretAccessKey: v.GetString("storage.secret_access_key"),
			BucketName:      v.GetString("storage.bucket_name"),
			PublicURL:       v.GetString("storage.public_url"),
		},
		Notification: NotificationConfig{
			WebhookURL: v.GetString("notification.webhook_url"),
			Timeout:    v.GetInt("notification.timeout"),
		},
		Log: LogConfig{
			Level:       v.GetString("server.log_level"),
			Development: v.GetBool("log.development"),
		},
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	return cfg, nil
}

// Validate checks the invariants the delivery engine depends on.
func (c *Config) Validate() error {
	d := c.Delivery
	if d.MaxAttempts < 1 {
		return fmt.Errorf("delivery.max_attempts must be at least 1")
	}
	if len(d.RetrySchedule) < d.MaxAttempts-1 {
		return fmt.Errorf("delivery.retry_schedule needs %d entries, has %d", d.MaxAttempts-1, len(d.RetrySchedule))
	}
	if d.LockTTL <= 0 || d.LockRetention <= 0 {
		return fmt.Errorf("delivery lock ttl and retention must be positive")
	}
	if d.AttemptTimeout <= 0 || d.ConnectTimeout <= 0 {
		return fmt.Errorf("delivery timeouts must be positive")
	}
	return nil
}

func parseSchedule(raw string) ([]time.Duration, error) {
	var schedule []time.Duration
	for _, part := range strings.Split(raw, ",") {
		part = strings.TrimSpace(part)
		if part == "" {
			continue
		}
		d, err := time.ParseDuration(part)
		if err != nil {
			return nil, fmt.Errorf("invalid delivery.retry_schedule entry %q: %w", part, err)
		}
		schedule = append(schedule, d)
	}
	return schedule, nil
}
