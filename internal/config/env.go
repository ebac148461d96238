package config

import (
	"os"
	"strconv"
	"strings"
	"time"
)

// FromEnv overlays REWIND_* environment variables onto cfg.
func FromEnv(cfg *Config) {
	if v := os.Getenv("REWIND_STORAGE_BACKEND"); v != "" {
		cfg.Storage.Backend = v
	}
	if v := os.Getenv("REWIND_STORAGE_KEY_ROOT"); v != "" {
		cfg.Storage.KeyRoot = v
	}
	if v := os.Getenv("REWIND_S3_BUCKET"); v != "" {
		cfg.Storage.S3.Bucket = v
	}
	if v := os.Getenv("REWIND_S3_REGION"); v != "" {
		cfg.Storage.S3.Region = v
	}
	if v := os.Getenv("REWIND_INGEST_MAX_PAYLOAD_BYTES"); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			cfg.Ingest.MaxPayloadBytes = n
		}
	}
	if v := os.Getenv("REWIND_INGEST_FLUSH_INTERVAL_MS"); v != "" {
		if ms, err := strconv.ParseInt(v, 10, 64); err == nil && ms > 0 {
			cfg.Ingest.FlushInterval = time.Duration(ms) * time.Millisecond
		}
	}
	if v := os.Getenv("REWIND_INGEST_FLUSH_MAX_BYTES"); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			cfg.Ingest.FlushMaxBytes = n
		}
	}
	if v := os.Getenv("REWIND_INGEST_FLUSH_MAX_RECORDS"); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			cfg.Ingest.FlushMaxRecords = n
		}
	}
	if v := os.Getenv("REWIND_RETRY_MAX_ATTEMPTS"); v != "" {
		if n, err := strconv.Atoi(v); err == nil && n > 0 {
			cfg.Ingest.Retry.MaxAttempts = n
		}
	}
	if v := os.Getenv("REWIND_READ_PAGE_SIZE"); v != "" {
		if n, err := strconv.Atoi(v); err == nil && n > 0 {
			cfg.Read.PageSize = n
		}
	}
	if v := os.Getenv("REWIND_READ_FETCH_PARALLELISM"); v != "" {
		if n, err := strconv.Atoi(v); err == nil && n > 0 {
			cfg.Read.FetchParallelism = n
		}
	}
	if v := os.Getenv("REWIND_KAFKA_BROKERS"); v != "" {
		parts := strings.Split(v, ",")
		cfg.Kafka.Brokers = nil
		for _, p := range parts {
			p = strings.TrimSpace(p)
			if p != "" {
				cfg.Kafka.Brokers = append(cfg.Kafka.Brokers, p)
			}
		}
	}
	if v := os.Getenv("REWIND_KAFKA_TOPIC"); v != "" {
		cfg.Kafka.Topic = v
	}
	if v := os.Getenv("REWIND_KAFKA_GROUP"); v != "" {
		cfg.Kafka.Group = v
	}
	if v := os.Getenv("REWIND_REDIS_ADDR"); v != "" {
		cfg.Redis.Addr = v
	}
	if v := os.Getenv("REWIND_REDIS_CACHE_TTL_MS"); v != "" {
		if ms, err := strconv.ParseInt(v, 10, 64); err == nil && ms > 0 {
			cfg.Redis.CacheTTL = time.Duration(ms) * time.Millisecond
		}
	}
	if v := os.Getenv("REWIND_LOG_LEVEL"); v != "" {
		cfg.Logging.Level = v
	}
	if v := os.Getenv("REWIND_LOG_FORMAT"); v != "" {
		cfg.Logging.Format = v
	}
}
