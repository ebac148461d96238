package runtime

import (
	"context"
	"errors"
	"path/filepath"
	"time"

	"github.com/redis/go-redis/v9"

	cfgpkg "github.com/rewindhq/rewind/internal/config"
	"github.com/rewindhq/rewind/internal/ingest"
	"github.com/rewindhq/rewind/internal/metrics"
	"github.com/rewindhq/rewind/internal/partition"
	"github.com/rewindhq/rewind/internal/reader"
	objstore "github.com/rewindhq/rewind/internal/storage/object"
	pebblestore "github.com/rewindhq/rewind/internal/storage/pebble"
	logpkg "github.com/rewindhq/rewind/pkg/log"
)

// Options for building the Runtime.
type Options struct {
	// DataDir holds the embedded store when the pebble backend is selected.
	DataDir       string
	Fsync         pebblestore.FsyncMode
	FsyncInterval time.Duration
	Config        cfgpkg.Config
	Logger        logpkg.Logger
}

// Runtime wires the object store, partition writer, ingest buffer, and
// session reader for a single-node instance.
type Runtime struct {
	db      *pebblestore.DB // nil on the s3 backend
	store   objstore.Store
	redis   *redis.Client
	config  cfgpkg.Config
	logger  logpkg.Logger
	metrics *metrics.Metrics

	writer *partition.Writer
	buffer *ingest.Buffer
	reader *reader.Reader
	cache  *reader.Cache
}

// Open initializes the configured backend and builds the pipeline.
func Open(ctx context.Context, opts Options) (*Runtime, error) {
	cfg := opts.Config
	logger := opts.Logger
	if logger == nil {
		logger = logpkg.NewLogger()
	}
	m := metrics.New()

	rt := &Runtime{config: cfg, logger: logger, metrics: m}

	switch cfg.Storage.Backend {
	case "s3":
		store, err := objstore.OpenS3Store(ctx, cfg.Storage.S3.Bucket, cfg.Storage.S3.Region)
		if err != nil {
			return nil, err
		}
		rt.store = store
	default:
		db, err := pebblestore.Open(pebblestore.Options{
			DataDir:       filepath.Join(opts.DataDir, "store"),
			Fsync:         opts.Fsync,
			FsyncInterval: opts.FsyncInterval,
			Metrics:       m.StorageHook(),
		})
		if err != nil {
			return nil, err
		}
		rt.db = db
		rt.store = objstore.NewPebbleStore(db)
	}

	if cfg.Redis.Addr != "" {
		rt.redis = redis.NewClient(&redis.Options{
			Addr:     cfg.Redis.Addr,
			Password: cfg.Redis.Password,
			DB:       cfg.Redis.DB,
		})
		rt.cache = reader.NewCache(rt.redis, cfg.Redis.CacheTTL, logger.With(logpkg.Component("cache")))
	}

	rt.writer = partition.NewWriter(rt.store, partition.WriterOptions{
		Root: cfg.Storage.KeyRoot,
		Policy: partition.RetryPolicy{
			Base:        cfg.Ingest.Retry.Base,
			Cap:         cfg.Ingest.Retry.Cap,
			Factor:      cfg.Ingest.Retry.Factor,
			MaxAttempts: cfg.Ingest.Retry.MaxAttempts,
			Jitter:      true,
		},
		Logger:  logger.With(logpkg.Component("writer")),
		Metrics: m,
	})
	rt.buffer = ingest.NewBuffer(rt.writer, ingest.BufferOptions{
		MaxPayloadBytes: cfg.Ingest.MaxPayloadBytes,
		FlushInterval:   cfg.Ingest.FlushInterval,
		FlushMaxBytes:   cfg.Ingest.FlushMaxBytes,
		FlushMaxRecords: cfg.Ingest.FlushMaxRecords,
		Logger:          logger.With(logpkg.Component("ingest")),
		Metrics:         m,
		OnFlush: func(sessionID, _ string) {
			if rt.cache != nil {
				ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
				rt.cache.Invalidate(ctx, sessionID)
				cancel()
			}
		},
	})
	rt.reader = reader.NewReader(rt.store, reader.ReaderOptions{
		Root:             cfg.Storage.KeyRoot,
		PageSize:         cfg.Read.PageSize,
		FetchParallelism: cfg.Read.FetchParallelism,
		Logger:           logger.With(logpkg.Component("reader")),
		Metrics:          m,
		Cache:            rt.cache,
	})
	return rt, nil
}

// Close drains the ingest buffer and releases underlying resources.
func (r *Runtime) Close(ctx context.Context) error {
	var firstErr error
	if r.buffer != nil {
		if err := r.buffer.Close(ctx); err != nil {
			firstErr = err
		}
	}
	if r.redis != nil {
		if err := r.redis.Close(); err != nil && firstErr == nil {
			firstErr = err
		}
	}
	if r.db != nil {
		if err := r.db.Close(); err != nil && firstErr == nil {
			firstErr = err
		}
	}
	return firstErr
}

// CheckHealth verifies the storage backend answers.
func (r *Runtime) CheckHealth(ctx context.Context) error {
	if r.store == nil {
		return errors.New("store not open")
	}
	if r.db != nil {
		it, err := r.db.NewIter(nil)
		if err != nil {
			return err
		}
		return it.Close()
	}
	_, err := r.store.List(ctx, r.config.Storage.KeyRoot+"/", "", 1)
	return err
}

// Buffer returns the ingest buffer.
func (r *Runtime) Buffer() *ingest.Buffer { return r.buffer }

// Reader returns the session reader.
func (r *Runtime) Reader() *reader.Reader { return r.reader }

// Writer returns the partition writer.
func (r *Runtime) Writer() *partition.Writer { return r.writer }

// Store exposes the object store for advanced operations (internal use only).
func (r *Runtime) Store() objstore.Store { return r.store }

// Metrics returns the collector registry for this instance.
func (r *Runtime) Metrics() *metrics.Metrics { return r.metrics }

// Config returns the runtime configuration.
func (r *Runtime) Config() cfgpkg.Config { return r.config }
