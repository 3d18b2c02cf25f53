// Package config loads and validates application configuration from YAML files
// with environment-variable overrides. It provides typed structs for every
// subsystem (Server, Postgres, Kafka, Redis, DocStore, Indexer, Search, etc.).
package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

// Config is the top-level application configuration.
type Config struct {
	Server   ServerConfig   `yaml:"server"`
	Postgres PostgresConfig `yaml:"postgres"`
	Kafka    KafkaConfig    `yaml:"kafka"`
	Redis    RedisConfig    `yaml:"redis"`
	DocStore DocStoreConfig `yaml:"docstore"`
	Indexer  IndexerConfig  `yaml:"indexer"`
	Search   SearchConfig   `yaml:"search"`
	Logging   LoggingConfig   `yaml:"logging"`
	Metrics   MetricsConfig   `yaml:"metrics"`
	Ingestion IngestionConfig `yaml:"ingestion"`
	Gateway   GatewayConfig   `yaml:"gateway"`
	Analytics AnalyticsConfig `yaml:"analytics"`
}

// ServerConfig holds HTTP server settings.
type ServerConfig struct {
	Port            int           `yaml:"port"`
	ReadTimeout     time.Duration `yaml:"readTimeout"`
	WriteTimeout    time.Duration `yaml:"writeTimeout"`
	ShutdownTimeout time.Duration `yaml:"shutdownTimeout"`
	// APIKeys are the SHA-256 hex digests of the keys accepted on mutating
	// gateway routes. Empty disables the check.
	APIKeys     []string `yaml:"apiKeys"`
	CORSOrigins []string `yaml:"corsOrigins"`
}

// PostgresConfig holds PostgreSQL connection parameters.
type PostgresConfig struct {
	Host            string        `yaml:"host"`
	Port            int           `yaml:"port"`
	Database        string        `yaml:"database"`
	User            string        `yaml:"user"`
	Password        string        `yaml:"password"`
	SSLMode         string        `yaml:"sslMode"`
	MaxOpenConns    int           `yaml:"maxOpenConns"`
	MaxIdleConns    int           `yaml:"maxIdleConns"`
	ConnMaxLifetime time.Duration `yaml:"connMaxLifetime"`
}

// DSN returns a lib/pq-compatible data source name.
func (p PostgresConfig) DSN() string {
	return fmt.Sprintf(
		"host=%s port=%d user=%s password=%s dbname=%s sslmode=%s",
		p.Host, p.Port, p.User, p.Password, p.Database, p.SSLMode,
	)
}

// KafkaConfig holds Kafka broker and topic settings. An empty broker list
// disables the Kafka integration.
type KafkaConfig struct {
	Brokers       []string    `yaml:"brokers"`
	ConsumerGroup string      `yaml:"consumerGroup"`
	Topics        KafkaTopics `yaml:"topics"`
}

// Enabled reports whether any broker is configured.
func (k KafkaConfig) Enabled() bool {
	return len(k.Brokers) > 0
}

// KafkaTopics maps logical topic names to their Kafka topic strings.
type KafkaTopics struct {
	IndexRequests     string `yaml:"indexRequests"`
	SnapshotPublished string `yaml:"snapshotPublished"`
	SearchEvents      string `yaml:"searchEvents"`
}

// RedisConfig holds Redis connection and caching parameters. An empty Addr
// disables the result cache.
type RedisConfig struct {
	Addr     string        `yaml:"addr"`
	Password string        `yaml:"password"`
	DB       int           `yaml:"db"`
	PoolSize int           `yaml:"poolSize"`
	CacheTTL time.Duration `yaml:"cacheTTL"`
}

// Catalog backends.
const (
	CatalogBolt     = "bolt"
	CatalogPostgres = "postgres"
	CatalogRedis    = "redis"
)

// DocStoreConfig locates the datalake written by the acquisition service and
// selects where indexed book metadata is catalogued.
type DocStoreConfig struct {
	DatalakeDir string `yaml:"datalakeDir"`
	Catalog     string `yaml:"catalog"`
	CatalogPath string `yaml:"catalogPath"`
}

// IndexerConfig controls snapshot persistence, read bounds and rebuild
// parallelism.
type IndexerConfig struct {
	DataDir        string        `yaml:"dataDir"`
	FlushInterval  time.Duration `yaml:"flushInterval"`
	ReadTimeout    time.Duration `yaml:"readTimeout"`
	RebuildWorkers int           `yaml:"rebuildWorkers"`
	KeepSnapshots  int           `yaml:"keepSnapshots"`
	ReloadInterval time.Duration `yaml:"reloadInterval"`
}

// Match policies for the query engine.
const (
	AuthorMatchExact     = "exact"
	AuthorMatchSubstring = "substring"
	TermModeOr           = "or"
	TermModeAnd          = "and"
)

// SearchConfig controls query policy, result limits and request throttling.
type SearchConfig struct {
	MaxResults   int     `yaml:"maxResults"`
	DefaultLimit int     `yaml:"defaultLimit"`
	AuthorMatch  string  `yaml:"authorMatch"`
	TermMode     string  `yaml:"termMode"`
	RateLimit    float64 `yaml:"rateLimit"`
	RateBurst    int     `yaml:"rateBurst"`
	// SlowQuery is the latency above which a search's span tree is logged
	// at warn level.
	SlowQuery time.Duration `yaml:"slowQuery"`
}

// LoggingConfig controls structured logging level and output format.
type LoggingConfig struct {
	Level  string `yaml:"level"`
	Format string `yaml:"format"`
}

// MetricsConfig controls the Prometheus metrics server.
type MetricsConfig struct {
	Enabled bool `yaml:"enabled"`
	Port    int  `yaml:"port"`
}

// IngestionConfig controls how books are fetched into the datalake.
// SourceURL is a format string taking the book id twice.
type IngestionConfig struct {
	SourceURL    string        `yaml:"sourceURL"`
	FetchTimeout time.Duration `yaml:"fetchTimeout"`
	MaxBookBytes int64         `yaml:"maxBookBytes"`
}

// GatewayConfig locates the services the gateway fronts.
// An empty URL disables the routes of that service.
type GatewayConfig struct {
	IngestionURL string `yaml:"ingestionURL"`
	IndexerURL   string `yaml:"indexerURL"`
	SearcherURL  string `yaml:"searcherURL"`
	AnalyticsURL string `yaml:"analyticsURL"`
}

// AnalyticsConfig controls search event collection and aggregation.
type AnalyticsConfig struct {
	Enabled          bool          `yaml:"enabled"`
	BufferSize       int           `yaml:"bufferSize"`
	TopN             int           `yaml:"topN"`
	SnapshotInterval time.Duration `yaml:"snapshotInterval"`
}

// Load reads a YAML config file (if provided) and applies environment-variable
// overrides. It returns a Config populated with sensible defaults for any
// missing values.
func Load(path string) (*Config, error) {
	cfg := defaultConfig()
	if path != "" {
		data, err := os.ReadFile(path)
		if err != nil {
			return nil, fmt.Errorf("reading config file %s: %w", path, err)
		}
		if err := yaml.Unmarshal(data, cfg); err != nil {
			return nil, fmt.Errorf("parsing config file %s: %w", path, err)
		}
	}
	applyEnvOverrides(cfg)
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// Validate rejects values no component can run with.
func (c *Config) Validate() error {
	switch c.DocStore.Catalog {
	case CatalogBolt, CatalogPostgres, CatalogRedis:
	default:
		return fmt.Errorf("docstore.catalog: unknown backend %q", c.DocStore.Catalog)
	}
	switch c.Search.AuthorMatch {
	case AuthorMatchExact, AuthorMatchSubstring:
	default:
		return fmt.Errorf("search.authorMatch: unknown policy %q", c.Search.AuthorMatch)
	}
	switch c.Search.TermMode {
	case TermModeOr, TermModeAnd:
	default:
		return fmt.Errorf("search.termMode: unknown policy %q", c.Search.TermMode)
	}
	if c.DocStore.Catalog == CatalogRedis && c.Redis.Addr == "" {
		return fmt.Errorf("docstore.catalog is redis but redis.addr is empty")
	}
	if c.DocStore.DatalakeDir == "" {
		return fmt.Errorf("docstore.datalakeDir is required")
	}
	if c.Indexer.DataDir == "" {
		return fmt.Errorf("indexer.dataDir is required")
	}
	return nil
}

// defaultConfig returns a Config with defaults for local development.
func defaultConfig() *Config {
	return &Config{
		Server: ServerConfig{
			Port:            7002,
			ReadTimeout:     30 * time.Second,
			WriteTimeout:    30 * time.Second,
			ShutdownTimeout: 15 * time.Second,
		},
		Postgres: PostgresConfig{
			Host:            "localhost",
			Port:            5432,
			Database:        "booksearch",
			User:            "booksearch",
			Password:        "localdev",
			SSLMode:         "disable",
			MaxOpenConns:    25,
			MaxIdleConns:    5,
			ConnMaxLifetime: 5 * time.Minute,
		},
		Kafka: KafkaConfig{
			ConsumerGroup: "booksearch-indexer",
			Topics: KafkaTopics{
				IndexRequests:     "index-requests",
				SnapshotPublished: "snapshot-published",
				SearchEvents:      "search-events",
			},
		},
		Redis: RedisConfig{
			PoolSize: 10,
			CacheTTL: 60 * time.Second,
		},
		DocStore: DocStoreConfig{
			DatalakeDir: "datalake",
			Catalog:     CatalogBolt,
		},
		Indexer: IndexerConfig{
			DataDir:        "data/index",
			FlushInterval:  30 * time.Second,
			ReadTimeout:    10 * time.Second,
			RebuildWorkers: 4,
			KeepSnapshots:  2,
			ReloadInterval: time.Minute,
		},
		Search: SearchConfig{
			MaxResults:   100,
			DefaultLimit: 0,
			AuthorMatch:  AuthorMatchExact,
			TermMode:     TermModeOr,
			RateLimit:    50,
			RateBurst:    100,
			SlowQuery:    250 * time.Millisecond,
		},
		Logging: LoggingConfig{
			Level:  "info",
			Format: "json",
		},
		Metrics: MetricsConfig{
			Enabled: true,
			Port:    9090,
		},
		Ingestion: IngestionConfig{
			SourceURL:    "https://www.gutenberg.org/cache/epub/%d/pg%d.txt",
			FetchTimeout: time.Minute,
			MaxBookBytes: 32 << 20,
		},
		Gateway: GatewayConfig{
			IngestionURL: "http://localhost:7001",
			IndexerURL:   "http://localhost:7002",
			SearcherURL:  "http://localhost:7003",
			AnalyticsURL: "http://localhost:7004",
		},
		Analytics: AnalyticsConfig{
			BufferSize:       10000,
			TopN:             10,
			SnapshotInterval: 5 * time.Minute,
		},
	}
}

// applyEnvOverrides reads BS_* environment variables and overrides the
// corresponding config fields.
func applyEnvOverrides(cfg *Config) {
	if v := os.Getenv("BS_SERVER_PORT"); v != "" {
		if port, err := strconv.Atoi(v); err == nil {
			cfg.Server.Port = port
		}
	}
	if v := os.Getenv("BS_POSTGRES_HOST"); v != "" {
		cfg.Postgres.Host = v
	}
	if v := os.Getenv("BS_POSTGRES_PORT"); v != "" {
		if port, err := strconv.Atoi(v); err == nil {
			cfg.Postgres.Port = port
		}
	}
	if v := os.Getenv("BS_POSTGRES_DATABASE"); v != "" {
		cfg.Postgres.Database = v
	}
	if v := os.Getenv("BS_POSTGRES_USER"); v != "" {
		cfg.Postgres.User = v
	}
	if v := os.Getenv("BS_POSTGRES_PASSWORD"); v != "" {
		cfg.Postgres.Password = v
	}
	if v := os.Getenv("BS_KAFKA_BROKERS"); v != "" {
		cfg.Kafka.Brokers = strings.Split(v, ",")
	}
	if v := os.Getenv("BS_REDIS_ADDR"); v != "" {
		cfg.Redis.Addr = v
	}
	if v := os.Getenv("BS_REDIS_PASSWORD"); v != "" {
		cfg.Redis.Password = v
	}
	if v := os.Getenv("BS_DATALAKE_DIR"); v != "" {
		cfg.DocStore.DatalakeDir = v
	}
	if v := os.Getenv("BS_CATALOG"); v != "" {
		cfg.DocStore.Catalog = v
	}
	if v := os.Getenv("BS_INDEX_DATA_DIR"); v != "" {
		cfg.Indexer.DataDir = v
	}
	if v := os.Getenv("BS_SEARCH_AUTHOR_MATCH"); v != "" {
		cfg.Search.AuthorMatch = v
	}
	if v := os.Getenv("BS_SEARCH_TERM_MODE"); v != "" {
		cfg.Search.TermMode = v
	}
	if v := os.Getenv("BS_LOGGING_LEVEL"); v != "" {
		cfg.Logging.Level = v
	}
	if v := os.Getenv("BS_LOGGING_FORMAT"); v != "" {
		cfg.Logging.Format = v
	}
	if v := os.Getenv("BS_INGESTION_SOURCE_URL"); v != "" {
		cfg.Ingestion.SourceURL = v
	}
	if v := os.Getenv("BS_API_KEYS"); v != "" {
		cfg.Server.APIKeys = strings.Split(v, ",")
	}
	if v := os.Getenv("BS_GATEWAY_INGESTION_URL"); v != "" {
		cfg.Gateway.IngestionURL = v
	}
	if v := os.Getenv("BS_GATEWAY_ANALYTICS_URL"); v != "" {
		cfg.Gateway.AnalyticsURL = v
	}
	if v := os.Getenv("BS_GATEWAY_INDEXER_URL"); v != "" {
		cfg.Gateway.IndexerURL = v
	}
	if v := os.Getenv("BS_GATEWAY_SEARCHER_URL"); v != "" {
		cfg.Gateway.SearcherURL = v
	}
	if v := os.Getenv("BS_ANALYTICS_ENABLED"); v != "" {
		if enabled, err := strconv.ParseBool(v); err == nil {
			cfg.Analytics.Enabled = enabled
		}
	}
	if v := os.Getenv("BS_METRICS_PORT"); v != "" {
		if port, err := strconv.Atoi(v); err == nil {
			cfg.Metrics.Port = port
		}
	}
}
