package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"
)

func TestDefault(t *testing.T) {
	cfg := Default()
	if cfg.Storage.Backend != "pebble" {
		t.Fatalf("default backend")
	}
	if cfg.Storage.KeyRoot != "rrweb/recordings" {
		t.Fatalf("default key root must stay bit-exact, got %q", cfg.Storage.KeyRoot)
	}
	if cfg.Ingest.FlushInterval != 60*time.Second {
		t.Fatalf("default flush interval")
	}
	if cfg.Ingest.FlushMaxBytes != 1<<20 {
		t.Fatalf("default flush max bytes")
	}
}

func TestLoadJSON(t *testing.T) {
	dir := t.TempDir()
	file := filepath.Join(dir, "rewind.json")
	data := []byte(`{"storage":{"backend":"s3","keyRoot":"rrweb/recordings","s3":{"bucket":"replays","region":"eu-west-1"}},"ingest":{"maxPayloadBytes":2048}}`)
	if err := os.WriteFile(file, data, 0644); err != nil {
		t.Fatalf("write: %v", err)
	}
	cfg, err := Load(file)
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if cfg.Storage.Backend != "s3" || cfg.Storage.S3.Bucket != "replays" {
		t.Fatalf("s3 settings not applied: %+v", cfg.Storage)
	}
	if cfg.Ingest.MaxPayloadBytes != 2048 {
		t.Fatalf("expected 2048")
	}
	// untouched fields keep defaults
	if cfg.Ingest.FlushMaxRecords != 500 {
		t.Fatalf("defaults lost on partial file")
	}
}

func TestLoadYAML(t *testing.T) {
	dir := t.TempDir()
	file := filepath.Join(dir, "rewind.yaml")
	data := []byte("storage:\n  backend: pebble\nread:\n  pageSize: 50\n  fetchParallelism: 2\n")
	if err := os.WriteFile(file, data, 0644); err != nil {
		t.Fatalf("write: %v", err)
	}
	cfg, err := Load(file)
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if cfg.Read.PageSize != 50 || cfg.Read.FetchParallelism != 2 {
		t.Fatalf("yaml not applied: %+v", cfg.Read)
	}
}

func TestLoadRejectsBadBackend(t *testing.T) {
	dir := t.TempDir()
	file := filepath.Join(dir, "rewind.json")
	if err := os.WriteFile(file, []byte(`{"storage":{"backend":"dynamo"}}`), 0644); err != nil {
		t.Fatalf("write: %v", err)
	}
	if _, err := Load(file); err == nil {
		t.Fatalf("expected error for unknown backend")
	}
}

func TestFromEnv(t *testing.T) {
	cfg := Default()
	t.Setenv("REWIND_STORAGE_BACKEND", "s3")
	t.Setenv("REWIND_S3_BUCKET", "replay-bucket")
	t.Setenv("REWIND_INGEST_FLUSH_INTERVAL_MS", "1500")
	t.Setenv("REWIND_KAFKA_BROKERS", "k1:9092, k2:9092")
	FromEnv(&cfg)
	if cfg.Storage.Backend != "s3" || cfg.Storage.S3.Bucket != "replay-bucket" {
		t.Fatalf("env storage overlay: %+v", cfg.Storage)
	}
	if cfg.Ingest.FlushInterval != 1500*time.Millisecond {
		t.Fatalf("env flush interval: %v", cfg.Ingest.FlushInterval)
	}
	if len(cfg.Kafka.Brokers) != 2 || cfg.Kafka.Brokers[1] != "k2:9092" {
		t.Fatalf("env kafka brokers: %v", cfg.Kafka.Brokers)
	}
}
