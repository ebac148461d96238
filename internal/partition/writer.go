package partition

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/rewindhq/rewind/internal/envelope"
	"github.com/rewindhq/rewind/internal/metrics"
	objstore "github.com/rewindhq/rewind/internal/storage/object"
	"github.com/rewindhq/rewind/pkg/id"
	logpkg "github.com/rewindhq/rewind/pkg/log"
)

// ErrFlushFailed signals that a batch is not durably stored after the retry
// budget was exhausted. The caller must re-queue or surface upstream.
var ErrFlushFailed = errors.New("partition: flush failed")

// WriterOptions configures a Writer.
type WriterOptions struct {
	// Root is the key root; DefaultRoot when empty.
	Root string
	// Policy bounds retries; DefaultRetryPolicy when zero.
	Policy RetryPolicy
	// Logger is required for a server deployment, defaulted for tests.
	Logger logpkg.Logger
	// Metrics is optional.
	Metrics *metrics.Metrics
}

// Writer durably appends envelope batches as new partition objects. It never
// updates an existing object, so concurrent writers need no coordination.
type Writer struct {
	store   objstore.Store
	root    string
	policy  RetryPolicy
	logger  logpkg.Logger
	metrics *metrics.Metrics
	ids     *id.Generator

	// nowMs stamps ReceivedAtMs on envelopes that lack one; overridable in tests.
	nowMs func() int64
}

// NewWriter creates a Writer over the given store.
func NewWriter(store objstore.Store, opts WriterOptions) *Writer {
	if opts.Root == "" {
		opts.Root = DefaultRoot
	}
	if opts.Policy.MaxAttempts <= 0 {
		opts.Policy = DefaultRetryPolicy()
	}
	if opts.Logger == nil {
		opts.Logger = logpkg.NewLogger().With(logpkg.Component("writer"))
	}
	return &Writer{
		store:   store,
		root:    opts.Root,
		policy:  opts.Policy,
		logger:  opts.Logger,
		metrics: opts.Metrics,
		ids:     id.NewGenerator(),
		nowMs:   func() int64 { return time.Now().UnixMilli() },
	}
}

// Root returns the configured key root.
func (w *Writer) Root() string { return w.root }

// Flush durably writes one batch for one session as a single new object and
// returns its key. An empty batch is a no-op and returns an empty key.
// Envelopes with an empty SessionID inherit sessionID; all envelopes must
// belong to the session (use FlushAll for mixed batches).
func (w *Writer) Flush(ctx context.Context, sessionID string, envs []envelope.Envelope) (string, error) {
	if len(envs) == 0 {
		return "", nil
	}
	if !ValidSessionID(sessionID) {
		return "", fmt.Errorf("partition: invalid session id %q", sessionID)
	}

	now := w.nowMs()
	batch := make([]envelope.Envelope, len(envs))
	for i, e := range envs {
		if e.SessionID == "" {
			e.SessionID = sessionID
		}
		if e.SessionID != sessionID {
			return "", fmt.Errorf("partition: envelope for session %q in flush of %q", e.SessionID, sessionID)
		}
		if e.ReceivedAtMs == 0 {
			e.ReceivedAtMs = now
		}
		batch[i] = e
	}

	body, err := envelope.EncodeAll(batch)
	if err != nil {
		return "", err
	}
	key := Key(w.root, sessionID, w.ids.Next().String())

	start := time.Now()
	if err := w.putWithRetry(ctx, key, body); err != nil {
		if w.metrics != nil {
			w.metrics.FlushesTotal.WithLabelValues("error").Inc()
		}
		return "", err
	}
	if w.metrics != nil {
		w.metrics.FlushesTotal.WithLabelValues("ok").Inc()
		w.metrics.FlushDuration.Observe(time.Since(start).Seconds())
		w.metrics.FlushBytes.Observe(float64(len(body)))
	}
	w.logger.Debug("flushed partition object",
		logpkg.Str("key", key),
		logpkg.Int("records", len(batch)),
		logpkg.Int("bytes", len(body)),
	)
	return key, nil
}

// FlushAll splits a possibly mixed-session batch into one object per session,
// preserving within-session order, and returns the written keys. Envelopes
// with an empty SessionID are rejected here: there is no session to inherit.
func (w *Writer) FlushAll(ctx context.Context, envs []envelope.Envelope) ([]string, error) {
	if len(envs) == 0 {
		return nil, nil
	}
	order := make([]string, 0, 1)
	groups := make(map[string][]envelope.Envelope, 1)
	for _, e := range envs {
		if e.SessionID == "" {
			return nil, errors.New("partition: envelope without session id in mixed batch")
		}
		if _, ok := groups[e.SessionID]; !ok {
			order = append(order, e.SessionID)
		}
		groups[e.SessionID] = append(groups[e.SessionID], e)
	}

	keys := make([]string, 0, len(order))
	for _, sid := range order {
		key, err := w.Flush(ctx, sid, groups[sid])
		if err != nil {
			return keys, err
		}
		keys = append(keys, key)
	}
	return keys, nil
}

// putWithRetry attempts the object put under the retry policy. The store's
// put is atomic, so a failed attempt leaves nothing partially visible and a
// blind retry of the same key is safe.
func (w *Writer) putWithRetry(ctx context.Context, key string, body []byte) error {
	var lastErr error
	for attempt := 1; attempt <= w.policy.MaxAttempts; attempt++ {
		if err := ctx.Err(); err != nil {
			return fmt.Errorf("%w: %v", ErrFlushFailed, err)
		}
		lastErr = w.store.Put(ctx, key, body)
		if lastErr == nil {
			return nil
		}
		if attempt == w.policy.MaxAttempts {
			break
		}
		delay := w.policy.Delay(attempt)
		w.logger.Warn("flush attempt failed, backing off",
			logpkg.Str("key", key),
			logpkg.Int("attempt", attempt),
			logpkg.Dur("backoff", delay),
			logpkg.Err(lastErr),
		)
		select {
		case <-ctx.Done():
			return fmt.Errorf("%w: %v", ErrFlushFailed, ctx.Err())
		case <-time.After(delay):
		}
	}
	w.logger.Error("flush retry budget exhausted",
		logpkg.Str("key", key),
		logpkg.Int("attempts", w.policy.MaxAttempts),
		logpkg.Err(lastErr),
	)
	return fmt.Errorf("%w after %d attempts: %v", ErrFlushFailed, w.policy.MaxAttempts, lastErr)
}
