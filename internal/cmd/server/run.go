package serverrun

import (
	"context"
	"os"
	"os/signal"
	"sync"
	"syscall"
	"time"

	cfgpkg "github.com/rewindhq/rewind/internal/config"
	"github.com/rewindhq/rewind/internal/ingest"
	"github.com/rewindhq/rewind/internal/runtime"
	httpserver "github.com/rewindhq/rewind/internal/server/http"
	pebblestore "github.com/rewindhq/rewind/internal/storage/pebble"
	logpkg "github.com/rewindhq/rewind/pkg/log"
)

func getenvDefault(key, def string) string {
	if v := getenv(key); v != "" {
		return v
	}
	return def
}

// getenv is a variable so tests can stub environment lookups.
var getenv = func(key string) string { return os.Getenv(key) }

type Options struct {
	DataDir       string
	HTTPAddr      string
	Fsync         pebblestore.FsyncMode
	FsyncInterval time.Duration
	Config        cfgpkg.Config
}

// Run starts the runtime and HTTP server and blocks until ctx is cancelled,
// then drains the ingest buffer before closing storage.
func Run(ctx context.Context, opts Options) error {
	// Be robust to callers that don't pass a signal-aware context. We layer a
	// local signal context over the provided one.
	sctx, stop := signal.NotifyContext(ctx, os.Interrupt, syscall.SIGTERM)
	defer stop()
	if opts.DataDir == "" {
		opts.DataDir = cfgpkg.DefaultDataDir()
	}

	// Build process-wide logger using env/ApplyConfig; defaults: level=info, format=text
	logCfg := &logpkg.Config{
		Level:  getenvDefault("REWIND_LOG_LEVEL", opts.Config.Logging.Level),
		Format: getenvDefault("REWIND_LOG_FORMAT", opts.Config.Logging.Format),
	}
	procLogger, err := logpkg.ApplyConfig(logCfg)
	if err != nil {
		lvl := logpkg.InfoLevel
		if l, e := logpkg.ParseLevel(logCfg.Level); e == nil {
			lvl = l
		}
		procLogger = logpkg.NewLogger(logpkg.WithLevel(lvl), logpkg.WithFormatter(&logpkg.TextFormatter{}))
	}

	// Redirect stdlib logs (e.g., Pebble) to our logger
	logpkg.RedirectStdLog(procLogger)

	rt, err := runtime.Open(sctx, runtime.Options{
		DataDir:       opts.DataDir,
		Fsync:         opts.Fsync,
		FsyncInterval: opts.FsyncInterval,
		Config:        opts.Config,
		Logger:        procLogger,
	})
	if err != nil {
		return err
	}

	procLogger.Info("Starting rewind server",
		logpkg.Str("http", opts.HTTPAddr),
		logpkg.Str("backend", opts.Config.Storage.Backend),
		logpkg.Str("data_dir", opts.DataDir),
		logpkg.Str("level", logCfg.Level),
		logpkg.Str("format", logCfg.Format),
	)

	hsrv := httpserver.New(rt, procLogger.With(logpkg.Component("http")))

	var wg sync.WaitGroup
	wg.Add(1)
	go func() {
		defer wg.Done()
		if err := hsrv.ListenAndServe(sctx, opts.HTTPAddr); err != nil && sctx.Err() == nil {
			procLogger.Error("http server error", logpkg.Err(err))
		}
	}()

	var kafkaSrc *ingest.KafkaSource
	if len(opts.Config.Kafka.Brokers) > 0 {
		kafkaSrc = ingest.NewKafkaSource(rt.Buffer(), ingest.KafkaSourceOptions{
			Brokers: opts.Config.Kafka.Brokers,
			Topic:   opts.Config.Kafka.Topic,
			Group:   opts.Config.Kafka.Group,
			Logger:  procLogger.With(logpkg.Component("kafka")),
		})
		wg.Add(1)
		go func() {
			defer wg.Done()
			if err := kafkaSrc.Run(sctx); err != nil && sctx.Err() == nil {
				procLogger.Error("kafka source error", logpkg.Err(err))
			}
		}()
	}

	<-sctx.Done()
	// Stop accepting before draining: close servers first, then the runtime
	// flushes whatever is still buffered.
	hsrv.Close()
	if kafkaSrc != nil {
		_ = kafkaSrc.Close()
	}
	wg.Wait()

	cctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()
	if err := rt.Close(cctx); err != nil {
		procLogger.Error("shutdown drain failed", logpkg.Err(err))
		return err
	}
	procLogger.Info("Shutdown complete")
	return nil
}
