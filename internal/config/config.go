package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
)

// Config holds all runtime configuration, loaded once at startup.
type Config struct {
	Environment string

	Server     ServerConfig
	Redis      RedisConfig
	Scylla     ScyllaConfig
	Kafka      KafkaConfig
	Clickhouse ClickhouseConfig
	KMS        KMSConfig
	SMTP       SMTPConfig
	Session    SessionConfig
	Login      LoginConfig
	Hashing    HashingConfig
	Bucketing  BucketingConfig
	Logging    LoggingConfig
}

type ServerConfig struct {
	Host         string
	Port         int
	TLSPort      int
	EnableTLS    bool
	AutoCert     bool
	Domain       string
	CertFile     string
	KeyFile      string
	AutoCertDir  string
	Email        string
	ReadTimeout  time.Duration
	WriteTimeout time.Duration
	IdleTimeout  time.Duration
}

type RedisConfig struct {
	// URL accepts redis:// or rediss:// schemes.
	URL      string
	Password string
	DB       int
	PoolSize int
	// Enabled switches the one-time-code store from the in-process
	// map to Redis.
	Enabled bool
}

type ScyllaConfig struct {
	Nodes    []string
	Keyspace string
	Username string
	Password string
}

type KafkaConfig struct {
	Brokers             []string
	SecurityEventsTopic string
	Enabled             bool
}

type ClickhouseConfig struct {
	URL      string
	Database string
	Username string
	Password string
	Enabled  bool
}

type KMSConfig struct {
	Enabled bool
	KeyID   string
	Region  string
}

type SMTPConfig struct {
	Host     string
	Port     int
	Username string
	Password string
	From     string
	// Enabled false routes mail through the logging mailer (dev).
	Enabled bool
}

type SessionConfig struct {
	SigningKey string
	TTL        time.Duration
}

type LoginConfig struct {
	// EmailCodeTTL bounds how long an emailed one-time code stays valid.
	EmailCodeTTL time.Duration
	TOTPIssuer   string
}

type HashingConfig struct {
	Argon2MemoryCost  int
	Argon2TimeCost    int
	Argon2Parallelism int
}

type BucketingConfig struct {
	UserBuckets  int
	EventBuckets int
}

type LoggingConfig struct {
	Level  string
	Format string
}

// LoadConfig reads configuration from the environment, with .env support
// for local development.
func LoadConfig() *Config {
	_ = godotenv.Load()

	return &Config{
		Environment: getEnv("ENVIRONMENT", "development"),
		Server: ServerConfig{
			Host:         getEnv("SERVER_HOST", "0.0.0.0"),
			Port:         getEnvInt("SERVER_PORT", 8080),
			TLSPort:      getEnvInt("SERVER_TLS_PORT", 8443),
			EnableTLS:    getEnvBool("SERVER_ENABLE_TLS", false),
			AutoCert:     getEnvBool("SERVER_AUTO_CERT", false),
			Domain:       getEnv("SERVER_DOMAIN", ""),
			CertFile:     getEnv("SERVER_CERT_FILE", ""),
			KeyFile:      getEnv("SERVER_KEY_FILE", ""),
			AutoCertDir:  getEnv("SERVER_AUTOCERT_DIR", "/var/cache/autocert"),
			Email:        getEnv("SERVER_ADMIN_EMAIL", ""),
			ReadTimeout:  getEnvDuration("SERVER_READ_TIMEOUT", 15*time.Second),
			WriteTimeout: getEnvDuration("SERVER_WRITE_TIMEOUT", 15*time.Second),
			IdleTimeout:  getEnvDuration("SERVER_IDLE_TIMEOUT", 60*time.Second),
		},
		Redis: RedisConfig{
			URL:      getEnv("REDIS_URL", "redis://localhost:6379"),
			Password: getEnv("REDIS_PASSWORD", ""),
			DB:       getEnvInt("REDIS_DB", 0),
			PoolSize: getEnvInt("REDIS_POOL_SIZE", 50),
			Enabled:  getEnvBool("REDIS_OTP_STORE", false),
		},
		Scylla: ScyllaConfig{
			Nodes:    getEnvSlice("SCYLLA_NODES", []string{"localhost:9042"}),
			Keyspace: getEnv("SCYLLA_KEYSPACE", "campus_auth"),
			Username: getEnv("SCYLLA_USERNAME", ""),
			Password: getEnv("SCYLLA_PASSWORD", ""),
		},
		Kafka: KafkaConfig{
			Brokers:             getEnvSlice("KAFKA_BROKERS", []string{"localhost:9092"}),
			SecurityEventsTopic: getEnv("KAFKA_SECURITY_EVENTS_TOPIC", "auth.security-events"),
			Enabled:             getEnvBool("KAFKA_ENABLED", false),
		},
		Clickhouse: ClickhouseConfig{
			URL:      getEnv("CLICKHOUSE_URL", "localhost:9000"),
			Database: getEnv("CLICKHOUSE_DATABASE", "campus_auth"),
			Username: getEnv("CLICKHOUSE_USERNAME", "default"),
			Password: getEnv("CLICKHOUSE_PASSWORD", ""),
			Enabled:  getEnvBool("CLICKHOUSE_ENABLED", false),
		},
		KMS: KMSConfig{
			Enabled: getEnvBool("KMS_ENABLED", false),
			KeyID:   getEnv("KMS_KEY_ID", ""),
			Region:  getEnv("KMS_REGION", "us-east-1"),
		},
		SMTP: SMTPConfig{
			Host:     getEnv("SMTP_HOST", "localhost"),
			Port:     getEnvInt("SMTP_PORT", 587),
			Username: getEnv("SMTP_USERNAME", ""),
			Password: getEnv("SMTP_PASSWORD", ""),
			From:     getEnv("SMTP_FROM", "Campus Admin <no-reply@campus.local>"),
			Enabled:  getEnvBool("SMTP_ENABLED", false),
		},
		Session: SessionConfig{
			SigningKey: getEnv("SESSION_SIGNING_KEY", ""),
			TTL:        getEnvDuration("SESSION_TTL", 8*time.Hour),
		},
		Login: LoginConfig{
			EmailCodeTTL: getEnvDuration("LOGIN_EMAIL_CODE_TTL", 5*time.Minute),
			TOTPIssuer:   getEnv("LOGIN_TOTP_ISSUER", "Campus Admin"),
		},
		Hashing: HashingConfig{
			Argon2MemoryCost:  getEnvInt("ARGON2_MEMORY_COST", 65536),
			Argon2TimeCost:    getEnvInt("ARGON2_TIME_COST", 3),
			Argon2Parallelism: getEnvInt("ARGON2_PARALLELISM", 2),
		},
		Bucketing: BucketingConfig{
			UserBuckets:  getEnvInt("USER_BUCKETS", 64),
			EventBuckets: getEnvInt("EVENT_BUCKETS", 16),
		},
		Logging: LoggingConfig{
			Level:  getEnv("LOG_LEVEL", "info"),
			Format: getEnv("LOG_FORMAT", "console"),
		},
	}
}

func (c *Config) IsProduction() bool {
	return c.Environment == "production"
}

func (c *Config) IsDevelopment() bool {
	return c.Environment == "development"
}

func (c *Config) GetServerAddress() string {
	return fmt.Sprintf("%s:%d", c.Server.Host, c.Server.Port)
}

// Validate catches misconfiguration that would otherwise surface as
// confusing runtime failures.
func (c *Config) Validate() error {
	if c.IsProduction() && c.Session.SigningKey == "" {
		return fmt.Errorf("SESSION_SIGNING_KEY is required in production")
	}
	if c.KMS.Enabled && c.KMS.KeyID == "" {
		return fmt.Errorf("KMS_KEY_ID is required when KMS is enabled")
	}
	if c.Login.EmailCodeTTL <= 0 {
		return fmt.Errorf("LOGIN_EMAIL_CODE_TTL must be positive")
	}
	return nil
}

func getEnv(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}

func getEnvInt(key string, fallback int) int {
	if v := os.Getenv(key); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			return n
		}
	}
	return fallback
}

func getEnvBool(key string, fallback bool) bool {
	if v := os.Getenv(key); v != "" {
		if b, err := strconv.ParseBool(v); err == nil {
			return b
		}
	}
	return fallback
}

func getEnvDuration(key string, fallback time.Duration) time.Duration {
	if v := os.Getenv(key); v != "" {
		if d, err := time.ParseDuration(v); err == nil {
			return d
		}
	}
	return fallback
}

func getEnvSlice(key string, fallback []string) []string {
	if v := os.Getenv(key); v != "" {
		parts := strings.Split(v, ",")
		out := make([]string, 0, len(parts))
		for _, p := range parts {
			if p = strings.TrimSpace(p); p != "" {
				out = append(out, p)
			}
		}
		if len(out) > 0 {
			return out
		}
	}
	return fallback
}
