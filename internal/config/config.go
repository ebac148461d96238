package config

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"gopkg.in/yaml.v3"
)

// Config is the top-level configuration loaded from file/env.
type Config struct {
	Storage StorageConfig `json:"storage" yaml:"storage"`
	Ingest  IngestConfig  `json:"ingest" yaml:"ingest"`
	Read    ReadConfig    `json:"read" yaml:"read"`
	Kafka   KafkaConfig   `json:"kafka" yaml:"kafka"`
	Redis   RedisConfig   `json:"redis" yaml:"redis"`
	Logging LoggingConfig `json:"logging" yaml:"logging"`
}

// StorageConfig selects and parameterizes the object-store backend.
type StorageConfig struct {
	// Backend is "pebble" (embedded, default) or "s3".
	Backend string `json:"backend" yaml:"backend"`
	// KeyRoot is the partition-key root prefix. External tooling inspects
	// storage directly, so the default must stay bit-exact.
	KeyRoot string   `json:"keyRoot" yaml:"keyRoot"`
	S3      S3Config `json:"s3" yaml:"s3"`
}

// S3Config holds settings for the S3 backend.
type S3Config struct {
	Bucket string `json:"bucket" yaml:"bucket"`
	Region string `json:"region" yaml:"region"`
}

// IngestConfig bounds batch validation and buffer flushing.
type IngestConfig struct {
	// MaxPayloadBytes rejects any single envelope payload above this size.
	MaxPayloadBytes int `json:"maxPayloadBytes" yaml:"maxPayloadBytes"`
	// FlushInterval is the time bound on buffering before a forced flush.
	FlushInterval time.Duration `json:"flushInterval" yaml:"flushInterval"`
	// FlushMaxBytes / FlushMaxRecords are the size bounds; whichever trips
	// first triggers a flush of that session's buffer.
	FlushMaxBytes   int         `json:"flushMaxBytes" yaml:"flushMaxBytes"`
	FlushMaxRecords int         `json:"flushMaxRecords" yaml:"flushMaxRecords"`
	Retry           RetryConfig `json:"retry" yaml:"retry"`
}

// RetryConfig parameterizes the writer's exponential backoff.
type RetryConfig struct {
	Base        time.Duration `json:"base" yaml:"base"`
	Cap         time.Duration `json:"cap" yaml:"cap"`
	Factor      float64       `json:"factor" yaml:"factor"`
	MaxAttempts int           `json:"maxAttempts" yaml:"maxAttempts"`
}

// ReadConfig bounds the merge engine.
type ReadConfig struct {
	// PageSize is the listing page size used against the object store.
	PageSize int `json:"pageSize" yaml:"pageSize"`
	// FetchParallelism bounds concurrent object fetches per read.
	FetchParallelism int `json:"fetchParallelism" yaml:"fetchParallelism"`
}

// KafkaConfig enables the optional Kafka ingest source when Brokers is set.
type KafkaConfig struct {
	Brokers []string `json:"brokers" yaml:"brokers"`
	Topic   string   `json:"topic" yaml:"topic"`
	Group   string   `json:"group" yaml:"group"`
}

// RedisConfig enables the optional read-side cache when Addr is set.
type RedisConfig struct {
	Addr     string        `json:"addr" yaml:"addr"`
	Password string        `json:"password" yaml:"password"`
	DB       int           `json:"db" yaml:"db"`
	CacheTTL time.Duration `json:"cacheTTL" yaml:"cacheTTL"`
}

// LoggingConfig mirrors pkg/log.Config.
type LoggingConfig struct {
	Level  string `json:"level" yaml:"level"`
	Format string `json:"format" yaml:"format"`
}

// Default returns built-in defaults. The flush bounds mirror typical
// managed-stream buffering defaults: 60s or 1 MiB, whichever first.
func Default() Config {
	return Config{
		Storage: StorageConfig{
			Backend: "pebble",
			KeyRoot: "rrweb/recordings",
		},
		Ingest: IngestConfig{
			MaxPayloadBytes: 1 << 20,
			FlushInterval:   60 * time.Second,
			FlushMaxBytes:   1 << 20,
			FlushMaxRecords: 500,
			Retry: RetryConfig{
				Base:        200 * time.Millisecond,
				Cap:         5 * time.Second,
				Factor:      2.0,
				MaxAttempts: 5,
			},
		},
		Read: ReadConfig{
			PageSize:         1000,
			FetchParallelism: 8,
		},
		Kafka: KafkaConfig{
			Topic: "rewind.events",
			Group: "rewind-ingest",
		},
		Redis: RedisConfig{
			CacheTTL: 15 * time.Second,
		},
		Logging: LoggingConfig{Level: "info", Format: "text"},
	}
}

// Load reads configuration from a JSON or YAML file (by extension). If path
// is empty, returns defaults.
func Load(path string) (Config, error) {
	if path == "" {
		return Default(), nil
	}
	b, err := os.ReadFile(path)
	if err != nil {
		return Config{}, err
	}
	cfg := Default()
	switch filepath.Ext(path) {
	case ".yaml", ".yml":
		if err := yaml.Unmarshal(b, &cfg); err != nil {
			return Config{}, fmt.Errorf("parsing %s: %w", path, err)
		}
	default:
		if err := json.Unmarshal(b, &cfg); err != nil {
			return Config{}, fmt.Errorf("parsing %s: %w", path, err)
		}
	}
	return cfg, cfg.validate()
}

func (c Config) validate() error {
	switch c.Storage.Backend {
	case "pebble", "s3":
	default:
		return fmt.Errorf("storage.backend must be pebble or s3, got %q", c.Storage.Backend)
	}
	if c.Storage.Backend == "s3" && c.Storage.S3.Bucket == "" {
		return fmt.Errorf("storage.s3.bucket is required for the s3 backend")
	}
	if c.Storage.KeyRoot == "" {
		return fmt.Errorf("storage.keyRoot must not be empty")
	}
	if c.Ingest.MaxPayloadBytes <= 0 {
		return fmt.Errorf("ingest.maxPayloadBytes must be positive")
	}
	return nil
}
