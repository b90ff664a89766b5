// Package config loads and validates application configuration from YAML files
// with environment-variable overrides. It provides typed structs for every
// subsystem (Mapper, Postgres, Kafka, Redis, Indexer, Logging, Metrics).
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
	Mapper   MapperConfig   `yaml:"mapper"`
	Postgres PostgresConfig `yaml:"postgres"`
	Kafka    KafkaConfig    `yaml:"kafka"`
	Redis    RedisConfig    `yaml:"redis"`
	Indexer  IndexerConfig  `yaml:"indexer"`
	Logging  LoggingConfig  `yaml:"logging"`
	Metrics  MetricsConfig  `yaml:"metrics"`
}

// ServerConfig holds settings for the ingest API server.
type ServerConfig struct {
	Port            int           `yaml:"port"`
	ReadTimeout     time.Duration `yaml:"readTimeout"`
	WriteTimeout    time.Duration `yaml:"writeTimeout"`
	ShutdownTimeout time.Duration `yaml:"shutdownTimeout"`
	// RateLimit is the number of requests a single client may make per
	// RateWindow. Zero disables limiting.
	RateLimit  int           `yaml:"rateLimit"`
	RateWindow time.Duration `yaml:"rateWindow"`
}

// MapperConfig holds the defaults applied to mappings created on first use
// and the limits enforced when dynamic updates are installed.
type MapperConfig struct {
	Index              string   `yaml:"index"`
	DateDetection      bool     `yaml:"dateDetection"`
	NumericDetection   bool     `yaml:"numericDetection"`
	DynamicDateFormats []string `yaml:"dynamicDateFormats"`
	// Dynamic is the root policy: "true", "false" or "strict".
	Dynamic          string `yaml:"dynamic"`
	IgnoreAbove      int    `yaml:"ignoreAbove"`
	TotalFieldsLimit int    `yaml:"totalFieldsLimit"`
	ContextPoolSize  int    `yaml:"contextPoolSize"`
	// TemplatesFile is an optional YAML file of dynamic templates applied
	// to auto-created mappings.
	TemplatesFile string `yaml:"templatesFile"`
	// MaxUpdateAttempts bounds how often a document is re-parsed after losing
	// an install race.
	MaxUpdateAttempts int `yaml:"maxUpdateAttempts"`
	// SyncInterval is how often the version cache is compared with the
	// local snapshots.
	SyncInterval time.Duration `yaml:"syncInterval"`
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

// KafkaConfig holds Kafka broker and topic settings.
type KafkaConfig struct {
	Brokers       []string    `yaml:"brokers"`
	ConsumerGroup string      `yaml:"consumerGroup"`
	Topics        KafkaTopics `yaml:"topics"`
}

// KafkaTopics maps logical topic names to their Kafka topic strings.
type KafkaTopics struct {
	DocumentIngest string `yaml:"documentIngest"`
	MappingUpdates string `yaml:"mappingUpdates"`
}

// RedisConfig holds Redis connection and caching parameters.
type RedisConfig struct {
	Addr     string        `yaml:"addr"`
	Password string        `yaml:"password"`
	DB       int           `yaml:"db"`
	PoolSize int           `yaml:"poolSize"`
	CacheTTL time.Duration `yaml:"cacheTTL"`
}

// IndexerConfig controls the indexing engine's memory thresholds, flush
// intervals and shard count.
type IndexerConfig struct {
	DataDir        string        `yaml:"dataDir"`
	SegmentMaxSize int64         `yaml:"segmentMaxSize"`
	FlushInterval  time.Duration `yaml:"flushInterval"`
	ShardCount     int           `yaml:"shardCount"`
}

// LoggingConfig controls structured logging level and output format.
type LoggingConfig struct {
	Level  string `yaml:"level"`
	Format string `yaml:"format"`
	// SlowDocument is the processing time above which a document's trace
	// is logged at warn. Zero keeps traces at debug.
	SlowDocument time.Duration `yaml:"slowDocument"`
}

// MetricsConfig controls the Prometheus metrics server.
type MetricsConfig struct {
	Enabled bool `yaml:"enabled"`
	Port    int  `yaml:"port"`
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

// Validate rejects settings the mapper cannot run with.
func (c *Config) Validate() error {
	switch c.Mapper.Dynamic {
	case "true", "false", "strict":
	default:
		return fmt.Errorf("mapper.dynamic must be one of true, false, strict; got %q", c.Mapper.Dynamic)
	}
	if c.Mapper.TotalFieldsLimit <= 0 {
		return fmt.Errorf("mapper.totalFieldsLimit must be positive; got %d", c.Mapper.TotalFieldsLimit)
	}
	if c.Mapper.IgnoreAbove < 0 {
		return fmt.Errorf("mapper.ignoreAbove must not be negative; got %d", c.Mapper.IgnoreAbove)
	}
	if c.Indexer.ShardCount <= 0 {
		return fmt.Errorf("indexer.shardCount must be positive; got %d", c.Indexer.ShardCount)
	}
	if c.Server.RateLimit > 0 && c.Server.RateWindow <= 0 {
		return fmt.Errorf("server.rateWindow must be positive when rateLimit is set; got %s", c.Server.RateWindow)
	}
	return nil
}

// defaultConfig returns a Config with defaults suitable for local
// development.
func defaultConfig() *Config {
	return &Config{
		Server: ServerConfig{
			Port:            8080,
			ReadTimeout:     30 * time.Second,
			WriteTimeout:    30 * time.Second,
			ShutdownTimeout: 15 * time.Second,
			RateWindow:      time.Minute,
		},
		Mapper: MapperConfig{
			Index:            "documents",
			DateDetection:    true,
			NumericDetection: false,
			DynamicDateFormats: []string{
				"strict_date_optional_time",
				"yyyy/MM/dd HH:mm:ss Z||yyyy/MM/dd Z",
			},
			Dynamic:           "true",
			IgnoreAbove:       256,
			TotalFieldsLimit:  1000,
			ContextPoolSize:   16,
			MaxUpdateAttempts: 5,
			SyncInterval:      10 * time.Second,
		},
		Postgres: PostgresConfig{
			Host:            "localhost",
			Port:            5432,
			Database:        "searchmapper",
			User:            "searchmapper",
			Password:        "localdev",
			SSLMode:         "disable",
			MaxOpenConns:    25,
			MaxIdleConns:    5,
			ConnMaxLifetime: 5 * time.Minute,
		},
		Kafka: KafkaConfig{
			Brokers:       []string{"localhost:9092"},
			ConsumerGroup: "searchmapper-group",
			Topics: KafkaTopics{
				DocumentIngest: "document-ingest",
				MappingUpdates: "mapping-updates",
			},
		},
		Redis: RedisConfig{
			Addr:     "localhost:6379",
			Password: "",
			DB:       0,
			PoolSize: 10,
			CacheTTL: 10 * time.Minute,
		},
		Indexer: IndexerConfig{
			DataDir:        "data/segments",
			SegmentMaxSize: 4 << 20,
			FlushInterval:  30 * time.Second,
			ShardCount:     4,
		},
		Logging: LoggingConfig{
			Level:        "info",
			Format:       "json",
			SlowDocument: time.Second,
		},
		Metrics: MetricsConfig{
			Enabled: true,
			Port:    9090,
		},
	}
}

// applyEnvOverrides reads SM_* environment variables and overrides the
// corresponding config fields.
func applyEnvOverrides(cfg *Config) {
	if v := os.Getenv("SM_SERVER_PORT"); v != "" {
		if port, err := strconv.Atoi(v); err == nil {
			cfg.Server.Port = port
		}
	}
	if v := os.Getenv("SM_SERVER_RATE_LIMIT"); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			cfg.Server.RateLimit = n
		}
	}
	if v := os.Getenv("SM_MAPPER_INDEX"); v != "" {
		cfg.Mapper.Index = v
	}
	if v := os.Getenv("SM_MAPPER_SYNC_INTERVAL"); v != "" {
		if d, err := time.ParseDuration(v); err == nil {
			cfg.Mapper.SyncInterval = d
		}
	}
	if v := os.Getenv("SM_MAPPER_DYNAMIC"); v != "" {
		cfg.Mapper.Dynamic = v
	}
	if v := os.Getenv("SM_MAPPER_DATE_DETECTION"); v != "" {
		if on, err := strconv.ParseBool(v); err == nil {
			cfg.Mapper.DateDetection = on
		}
	}
	if v := os.Getenv("SM_MAPPER_NUMERIC_DETECTION"); v != "" {
		if on, err := strconv.ParseBool(v); err == nil {
			cfg.Mapper.NumericDetection = on
		}
	}
	if v := os.Getenv("SM_MAPPER_DYNAMIC_DATE_FORMATS"); v != "" {
		cfg.Mapper.DynamicDateFormats = strings.Split(v, ",")
	}
	if v := os.Getenv("SM_MAPPER_IGNORE_ABOVE"); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			cfg.Mapper.IgnoreAbove = n
		}
	}
	if v := os.Getenv("SM_MAPPER_TOTAL_FIELDS_LIMIT"); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			cfg.Mapper.TotalFieldsLimit = n
		}
	}
	if v := os.Getenv("SM_MAPPER_TEMPLATES_FILE"); v != "" {
		cfg.Mapper.TemplatesFile = v
	}
	if v := os.Getenv("SM_POSTGRES_HOST"); v != "" {
		cfg.Postgres.Host = v
	}
	if v := os.Getenv("SM_POSTGRES_PORT"); v != "" {
		if port, err := strconv.Atoi(v); err == nil {
			cfg.Postgres.Port = port
		}
	}
	if v := os.Getenv("SM_POSTGRES_DATABASE"); v != "" {
		cfg.Postgres.Database = v
	}
	if v := os.Getenv("SM_POSTGRES_USER"); v != "" {
		cfg.Postgres.User = v
	}
	if v := os.Getenv("SM_POSTGRES_PASSWORD"); v != "" {
		cfg.Postgres.Password = v
	}
	if v := os.Getenv("SM_POSTGRES_SSLMODE"); v != "" {
		cfg.Postgres.SSLMode = v
	}
	if v := os.Getenv("SM_KAFKA_BROKERS"); v != "" {
		cfg.Kafka.Brokers = strings.Split(v, ",")
	}
	if v := os.Getenv("SM_KAFKA_CONSUMER_GROUP"); v != "" {
		cfg.Kafka.ConsumerGroup = v
	}
	if v := os.Getenv("SM_REDIS_ADDR"); v != "" {
		cfg.Redis.Addr = v
	}
	if v := os.Getenv("SM_REDIS_PASSWORD"); v != "" {
		cfg.Redis.Password = v
	}
	if v := os.Getenv("SM_INDEXER_DATA_DIR"); v != "" {
		cfg.Indexer.DataDir = v
	}
	if v := os.Getenv("SM_LOGGING_LEVEL"); v != "" {
		cfg.Logging.Level = v
	}
	if v := os.Getenv("SM_LOGGING_FORMAT"); v != "" {
		cfg.Logging.Format = v
	}
	if v := os.Getenv("SM_METRICS_PORT"); v != "" {
		if port, err := strconv.Atoi(v); err == nil {
			cfg.Metrics.Port = port
		}
	}
}
