package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
)

// Config holds the full service configuration, loaded once at startup.
type Config struct {
	Environment   string
	Server        ServerConfig
	Redis         RedisConfig
	Scylla        ScyllaConfig
	Kafka         KafkaConfig
	Clickhouse    ClickhouseConfig
	Elasticsearch ElasticsearchConfig
	KMS           KMSConfig
	Bucketing     BucketingConfig
	Remote        RemoteConfig
	Cache         CacheConfig
	SharedData    SharedDataConfig
	Logging       LoggingConfig
}

type ServerConfig struct {
	Host         string
	Port         int
	TLSPort      int
	EnableTLS    bool
	AutoCert     bool
	AutoCertDir  string
	Domain       string
	Email        string
	CertFile     string
	KeyFile      string
	ReadTimeout  time.Duration
	WriteTimeout time.Duration
	IdleTimeout  time.Duration
	// SigningSecret gates the authenticated API surface. When empty the
	// remote surface is unreachable and clients run cache-only.
	SigningSecret string
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
	Brokers    []string
	AuditTopic string
}

type ClickhouseConfig struct {
	URL      string
	Database string
	Username string
	Password string
}

type ElasticsearchConfig struct {
	URL          string
	Username     string
	Password     string
	ContactIndex string
}

type KMSConfig struct {
	Enabled bool
	KeyID   string
	Region  string
}

type BucketingConfig struct {
	UserBuckets int
}

// RemoteConfig configures the device-side remote client and connectivity
// probe.
type RemoteConfig struct {
	BaseURL      string
	AuthToken    string
	ProbeTimeout time.Duration
}

// CacheConfig holds TTLs for the offline-first cache layer.
type CacheConfig struct {
	ContactsTTL        time.Duration
	UserInfoTTL        time.Duration
	LocationTTL        time.Duration
	MaxLocationHistory int
}

type SharedDataConfig struct {
	DefaultExpiry time.Duration
}

type LoggingConfig struct {
	Level  string
	Format string
}

// Load reads configuration from the environment. A .env file is applied
// first when present so local development matches production loading.
func Load() *Config {
	_ = godotenv.Load()

	cfg := &Config{
		Environment: getEnv("ENVIRONMENT", "development"),
		Server: ServerConfig{
			Host:          getEnv("SERVER_HOST", "0.0.0.0"),
			Port:          getEnvInt("SERVER_PORT", 8080),
			TLSPort:       getEnvInt("SERVER_TLS_PORT", 8443),
			EnableTLS:     getEnvBool("SERVER_ENABLE_TLS", false),
			AutoCert:      getEnvBool("SERVER_AUTO_CERT", false),
			AutoCertDir:   getEnv("SERVER_AUTO_CERT_DIR", "/var/cache/autocert"),
			Domain:        getEnv("SERVER_DOMAIN", ""),
			Email:         getEnv("SERVER_EMAIL", ""),
			CertFile:      getEnv("SERVER_CERT_FILE", ""),
			KeyFile:       getEnv("SERVER_KEY_FILE", ""),
			ReadTimeout:   getEnvDuration("SERVER_READ_TIMEOUT", 15*time.Second),
			WriteTimeout:  getEnvDuration("SERVER_WRITE_TIMEOUT", 15*time.Second),
			IdleTimeout:   getEnvDuration("SERVER_IDLE_TIMEOUT", 60*time.Second),
			SigningSecret: getEnv("API_SIGNING_SECRET", ""),
		},
		Redis: RedisConfig{
			URL:      getEnv("REDIS_URL", "redis://localhost:6379"),
			Password: getEnv("REDIS_PASSWORD", ""),
			DB:       getEnvInt("REDIS_DB", 0),
			PoolSize: getEnvInt("REDIS_POOL_SIZE", 50),
		},
		Scylla: ScyllaConfig{
			Nodes:    getEnvList("SCYLLA_NODES", "localhost:9042"),
			Keyspace: getEnv("SCYLLA_KEYSPACE", "guardian"),
			Username: getEnv("SCYLLA_USERNAME", ""),
			Password: getEnv("SCYLLA_PASSWORD", ""),
		},
		Kafka: KafkaConfig{
			Brokers:    getEnvList("KAFKA_BROKERS", "localhost:9092"),
			AuditTopic: getEnv("KAFKA_AUDIT_TOPIC", "guardian.sync-audit"),
		},
		Clickhouse: ClickhouseConfig{
			URL:      getEnv("CLICKHOUSE_URL", "http://localhost:8123"),
			Database: getEnv("CLICKHOUSE_DATABASE", "guardian"),
			Username: getEnv("CLICKHOUSE_USERNAME", "default"),
			Password: getEnv("CLICKHOUSE_PASSWORD", ""),
		},
		Elasticsearch: ElasticsearchConfig{
			URL:          getEnv("ELASTICSEARCH_URL", "http://localhost:9200"),
			Username:     getEnv("ELASTICSEARCH_USERNAME", ""),
			Password:     getEnv("ELASTICSEARCH_PASSWORD", ""),
			ContactIndex: getEnv("ELASTICSEARCH_CONTACT_INDEX", "guardian-contacts"),
		},
		KMS: KMSConfig{
			Enabled: getEnvBool("KMS_ENABLED", false),
			KeyID:   getEnv("KMS_KEY_ID", ""),
			Region:  getEnv("KMS_REGION", "us-east-1"),
		},
		Bucketing: BucketingConfig{
			UserBuckets: getEnvInt("BUCKETING_USER_BUCKETS", 64),
		},
		Remote: RemoteConfig{
			BaseURL:      getEnv("REMOTE_BASE_URL", "http://localhost:8080"),
			AuthToken:    getEnv("REMOTE_AUTH_TOKEN", ""),
			ProbeTimeout: getEnvDuration("REMOTE_PROBE_TIMEOUT", 2*time.Second),
		},
		Cache: CacheConfig{
			ContactsTTL:        getEnvDuration("CACHE_CONTACTS_TTL", 5*time.Minute),
			UserInfoTTL:        getEnvDuration("CACHE_USER_INFO_TTL", 5*time.Minute),
			LocationTTL:        getEnvDuration("CACHE_LOCATION_TTL", time.Minute),
			MaxLocationHistory: getEnvInt("CACHE_MAX_LOCATION_HISTORY", 100),
		},
		SharedData: SharedDataConfig{
			DefaultExpiry: getEnvDuration("SHARED_DATA_DEFAULT_EXPIRY", 24*time.Hour),
		},
		Logging: LoggingConfig{
			Level:  getEnv("LOG_LEVEL", "info"),
			Format: getEnv("LOG_FORMAT", "json"),
		},
	}

	return cfg
}

func (c *Config) IsProduction() bool {
	return c.Environment == "production"
}

func (c *Config) IsDevelopment() bool {
	return c.Environment == "development"
}

// RemoteEnabled reports whether the server-side store is configured at
// all. Absence of nodes or the signing secret leaves remote features
// unreachable; clients then serve from cache only.
func (c *Config) RemoteEnabled() bool {
	return len(c.Scylla.Nodes) > 0 && c.Server.SigningSecret != ""
}

func (c *Config) GetServerAddress() string {
	return fmt.Sprintf("%s:%d", c.Server.Host, c.Server.Port)
}

func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func getEnvInt(key string, defaultValue int) int {
	if value := os.Getenv(key); value != "" {
		if n, err := strconv.Atoi(value); err == nil {
			return n
		}
	}
	return defaultValue
}

func getEnvBool(key string, defaultValue bool) bool {
	if value := os.Getenv(key); value != "" {
		if b, err := strconv.ParseBool(value); err == nil {
			return b
		}
	}
	return defaultValue
}

func getEnvDuration(key string, defaultValue time.Duration) time.Duration {
	if value := os.Getenv(key); value != "" {
		if d, err := time.ParseDuration(value); err == nil {
			return d
		}
	}
	return defaultValue
}

func getEnvList(key, defaultValue string) []string {
	value := getEnv(key, defaultValue)
	if value == "" {
		return nil
	}
	parts := strings.Split(value, ",")
	out := make([]string, 0, len(parts))
	for _, p := range parts {
		if trimmed := strings.TrimSpace(p); trimmed != "" {
			out = append(out, trimmed)
		}
	}
	return out
}
