package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/joho/godotenv"
)

// Config is the full service configuration, loaded once from the
// environment (optionally seeded from a .env file in development).
type Config struct {
	Environment string

	Server        ServerConfig
	Logging       LoggingConfig
	Redis         RedisConfig
	Scylla        ScyllaConfig
	Kafka         KafkaConfig
	Elasticsearch ElasticsearchConfig
	Clickhouse    ClickhouseConfig
	Geocoder      GeocoderConfig
	Profile       ProfileConfig
	Ingest        IngestConfig
	Hashing       HashingConfig
	KMS           KMSConfig
	Bucketing     BucketingConfig
}

type ServerConfig struct {
	Port         int
	TLSPort      int
	ReadTimeout  time.Duration
	WriteTimeout time.Duration
	IdleTimeout  time.Duration
	EnableTLS    bool
	AutoCert     bool
	Domain       string
	CertFile     string
	KeyFile      string
	AutoCertDir  string
	Email        string
}

type LoggingConfig struct {
	Level  string
	Format string
}

type RedisConfig struct {
	URL      string
	Password string
	DB       int
	PoolSize int
}

type ScyllaConfig struct {
	Nodes    []string
	Keyspace string
	Username string
	Password string
}

type KafkaConfig struct {
	Brokers        []string
	RiskScoreTopic string
}

type ElasticsearchConfig struct {
	URL            string
	Username       string
	Password       string
	RiskScoreIndex string
}

type ClickhouseConfig struct {
	URL      string
	Username string
	Password string
	Database string
}

// GeocoderConfig bounds the only external lookup in the pipeline.
type GeocoderConfig struct {
	URL     string
	APIKey  string
	Timeout time.Duration
}

// ProfileConfig governs the optimistic profile-store transactions.
type ProfileConfig struct {
	MaxRetries   int
	RetryBackoff time.Duration
}

// IngestConfig caps what the telemetry API accepts.
type IngestConfig struct {
	MaxBodyBytes    int64
	MaxBatchSize    int
	MaxEventCount   int
	RateLimit       int
	RateLimitWindow time.Duration
}

type HashingConfig struct {
	FingerprintPepper string
}

type KMSConfig struct {
	Enabled bool
	KeyID   string
	Region  string
}

type BucketingConfig struct {
	UserBuckets int
}

var (
	globalConfig *Config
	once         sync.Once
)

// LoadConfig reads the environment into a Config. A .env file is honored
// when present; missing keys fall back to development defaults.
func LoadConfig() *Config {
	once.Do(func() {
		_ = godotenv.Load()

		globalConfig = &Config{
			Environment: getEnv("ENVIRONMENT", "development"),
			Server: ServerConfig{
				Port:         getEnvInt("SERVER_PORT", 8080),
				TLSPort:      getEnvInt("SERVER_TLS_PORT", 8443),
				ReadTimeout:  getEnvDuration("SERVER_READ_TIMEOUT", 15*time.Second),
				WriteTimeout: getEnvDuration("SERVER_WRITE_TIMEOUT", 30*time.Second),
				IdleTimeout:  getEnvDuration("SERVER_IDLE_TIMEOUT", 60*time.Second),
				EnableTLS:    getEnvBool("SERVER_ENABLE_TLS", false),
				AutoCert:     getEnvBool("SERVER_AUTO_CERT", false),
				Domain:       getEnv("SERVER_DOMAIN", ""),
				CertFile:     getEnv("SERVER_CERT_FILE", ""),
				KeyFile:      getEnv("SERVER_KEY_FILE", ""),
				AutoCertDir:  getEnv("SERVER_AUTOCERT_DIR", "/var/lib/autocert"),
				Email:        getEnv("SERVER_ACME_EMAIL", ""),
			},
			Logging: LoggingConfig{
				Level:  getEnv("LOG_LEVEL", "info"),
				Format: getEnv("LOG_FORMAT", "console"),
			},
			Redis: RedisConfig{
				URL:      getEnv("REDIS_URL", "redis://localhost:6379"),
				Password: getEnv("REDIS_PASSWORD", ""),
				DB:       getEnvInt("REDIS_DB", 0),
				PoolSize: getEnvInt("REDIS_POOL_SIZE", 50),
			},
			Scylla: ScyllaConfig{
				Nodes:    splitCSV(getEnv("SCYLLA_NODES", "localhost:9042")),
				Keyspace: getEnv("SCYLLA_KEYSPACE", "behavior_risk"),
				Username: getEnv("SCYLLA_USERNAME", ""),
				Password: getEnv("SCYLLA_PASSWORD", ""),
			},
			Kafka: KafkaConfig{
				Brokers:        splitCSV(getEnv("KAFKA_BROKERS", "localhost:9092")),
				RiskScoreTopic: getEnv("KAFKA_RISK_SCORE_TOPIC", "risk.scored"),
			},
			Elasticsearch: ElasticsearchConfig{
				URL:            getEnv("ELASTICSEARCH_URL", "http://localhost:9200"),
				Username:       getEnv("ELASTICSEARCH_USERNAME", ""),
				Password:       getEnv("ELASTICSEARCH_PASSWORD", ""),
				RiskScoreIndex: getEnv("ELASTICSEARCH_RISK_INDEX", "risk-scores"),
			},
			Clickhouse: ClickhouseConfig{
				URL:      getEnv("CLICKHOUSE_URL", "http://localhost:8123"),
				Username: getEnv("CLICKHOUSE_USERNAME", "default"),
				Password: getEnv("CLICKHOUSE_PASSWORD", ""),
				Database: getEnv("CLICKHOUSE_DATABASE", "behavior_risk"),
			},
			Geocoder: GeocoderConfig{
				URL:     getEnv("GEOCODER_URL", "http://localhost:8090/reverse"),
				APIKey:  getEnv("GEOCODER_API_KEY", ""),
				Timeout: getEnvDuration("GEOCODER_TIMEOUT", 3*time.Second),
			},
			Profile: ProfileConfig{
				MaxRetries:   getEnvInt("PROFILE_MAX_RETRIES", 5),
				RetryBackoff: getEnvDuration("PROFILE_RETRY_BACKOFF", 20*time.Millisecond),
			},
			Ingest: IngestConfig{
				MaxBodyBytes:    int64(getEnvInt("INGEST_MAX_BODY_BYTES", 10*1024*1024)),
				MaxBatchSize:    getEnvInt("INGEST_MAX_BATCH_SIZE", 50),
				MaxEventCount:   getEnvInt("INGEST_MAX_EVENT_COUNT", 5000),
				RateLimit:       getEnvInt("INGEST_RATE_LIMIT", 120),
				RateLimitWindow: getEnvDuration("INGEST_RATE_LIMIT_WINDOW", time.Minute),
			},
			Hashing: HashingConfig{
				FingerprintPepper: getEnv("FINGERPRINT_PEPPER", "dev-only-pepper"),
			},
			KMS: KMSConfig{
				Enabled: getEnvBool("KMS_ENABLED", false),
				KeyID:   getEnv("KMS_KEY_ID", ""),
				Region:  getEnv("KMS_REGION", "ap-south-1"),
			},
			Bucketing: BucketingConfig{
				UserBuckets: getEnvInt("BUCKETING_USER_BUCKETS", 100),
			},
		}
	})

	return globalConfig
}

// Get returns the loaded config, loading it on first use.
func Get() *Config {
	if globalConfig == nil {
		return LoadConfig()
	}
	return globalConfig
}

func (c *Config) IsProduction() bool {
	return c.Environment == "production"
}

func (c *Config) IsDevelopment() bool {
	return !c.IsProduction()
}

func (c *Config) GetServerAddress() string {
	return fmt.Sprintf(":%d", c.Server.Port)
}

func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func getEnvInt(key string, defaultValue int) int {
	if value := os.Getenv(key); value != "" {
		if parsed, err := strconv.Atoi(value); err == nil {
			return parsed
		}
	}
	return defaultValue
}

func getEnvBool(key string, defaultValue bool) bool {
	if value := os.Getenv(key); value != "" {
		if parsed, err := strconv.ParseBool(value); err == nil {
			return parsed
		}
	}
	return defaultValue
}

func getEnvDuration(key string, defaultValue time.Duration) time.Duration {
	if value := os.Getenv(key); value != "" {
		if parsed, err := time.ParseDuration(value); err == nil {
			return parsed
		}
	}
	return defaultValue
}

func splitCSV(value string) []string {
	parts := strings.Split(value, ",")
	out := make([]string, 0, len(parts))
	for _, p := range parts {
		if trimmed := strings.TrimSpace(p); trimmed != "" {
			out = append(out, trimmed)
		}
	}
	return out
}
