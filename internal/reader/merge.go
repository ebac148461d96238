package reader

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/rewindhq/rewind/internal/envelope"
	"github.com/rewindhq/rewind/internal/metrics"
	"github.com/rewindhq/rewind/internal/partition"
	objstore "github.com/rewindhq/rewind/internal/storage/object"
	logpkg "github.com/rewindhq/rewind/pkg/log"
)

var (
	// ErrSessionUnavailable signals that the object listing failed, so the
	// session's extent is unknown and no stream can be offered.
	ErrSessionUnavailable = errors.New("reader: session unavailable")

	// ErrPartialRead accompanies a stream with Incomplete set: some objects
	// could not be fetched. The returned stream is still usable.
	ErrPartialRead = errors.New("reader: partial read")
)

// ReaderOptions configures a Reader. Zero fields take the documented defaults.
type ReaderOptions struct {
	// Root is the partition key root; partition.DefaultRoot when empty.
	Root string
	// PageSize bounds listing pages. Zero defaults to 1000.
	PageSize int
	// FetchParallelism bounds concurrent object fetches. Zero defaults to 8.
	FetchParallelism int

	Logger  logpkg.Logger
	Metrics *metrics.Metrics
	// Cache optionally serves repeat unfiltered reads. Nil disables caching.
	Cache *Cache
}

// ReadOptions parameterize a single read.
type ReadOptions struct {
	// Filter excludes envelopes after dedup and ordering. Filtered reads
	// bypass the cache.
	Filter Filter
}

// Reader merges a session's partition objects into one ordered stream.
type Reader struct {
	store       objstore.Store
	root        string
	pageSize    int
	parallelism int
	logger      logpkg.Logger
	metrics     *metrics.Metrics
	cache       *Cache
}

// NewReader creates a Reader over the given store.
func NewReader(store objstore.Store, opts ReaderOptions) *Reader {
	if opts.Root == "" {
		opts.Root = partition.DefaultRoot
	}
	if opts.PageSize <= 0 {
		opts.PageSize = 1000
	}
	if opts.FetchParallelism <= 0 {
		opts.FetchParallelism = 8
	}
	if opts.Logger == nil {
		opts.Logger = logpkg.NewLogger().With(logpkg.Component("reader"))
	}
	return &Reader{
		store:       store,
		root:        opts.Root,
		pageSize:    opts.PageSize,
		parallelism: opts.FetchParallelism,
		logger:      opts.Logger,
		metrics:     opts.Metrics,
		cache:       opts.Cache,
	}
}

// Read reconstructs the ordered, deduplicated stream for one session. A
// session with no objects yields an empty stream and nil error. If some
// objects cannot be fetched the remaining stream is returned alongside
// ErrPartialRead; if the listing itself fails the error is
// ErrSessionUnavailable.
func (r *Reader) Read(ctx context.Context, sessionID string, opts ReadOptions) (*SessionStream, error) {
	if !partition.ValidSessionID(sessionID) {
		return nil, fmt.Errorf("reader: invalid session id %q", sessionID)
	}
	start := time.Now()

	if r.cache != nil && !opts.Filter.Enabled() {
		if stream, ok := r.cache.Get(ctx, sessionID); ok {
			r.observe("ok", start)
			return stream, nil
		}
	}

	keys, err := r.listKeys(ctx, sessionID)
	if err != nil {
		r.observe("error", start)
		return nil, fmt.Errorf("%w: %v", ErrSessionUnavailable, err)
	}
	if r.metrics != nil {
		r.metrics.ObjectsListed.Add(float64(len(keys)))
	}
	if len(keys) == 0 {
		r.observe("empty", start)
		return &SessionStream{SessionID: sessionID}, nil
	}

	// Cancellation mid-fetch is not fatal: whatever was fetched before the
	// deadline is still merged, and the cancelled objects surface as failed,
	// flagging the stream incomplete below.
	bodies, failed := r.fetchAll(ctx, keys)

	stream := r.merge(sessionID, keys, bodies)
	stream.FailedObjects = failed
	stream.Incomplete = len(failed) > 0

	if opts.Filter.Enabled() {
		filtered := stream.Envelopes[:0]
		for _, e := range stream.Envelopes {
			if opts.Filter.Eval(e) {
				filtered = append(filtered, e)
			}
		}
		stream.Envelopes = filtered
	}

	if stream.Incomplete {
		r.observe("partial", start)
		r.logger.Warn("partial session read",
			logpkg.Str("session_id", sessionID),
			logpkg.Int("objects", len(keys)),
			logpkg.Int("failed", len(failed)),
		)
		return stream, ErrPartialRead
	}

	if r.cache != nil && !opts.Filter.Enabled() {
		r.cache.Set(ctx, sessionID, stream)
	}
	r.observe("ok", start)
	return stream, nil
}

// listKeys walks every listing page under the session prefix. Keys arrive in
// lexicographic order, which matches flush order because object suffixes are
// time-sortable.
func (r *Reader) listKeys(ctx context.Context, sessionID string) ([]string, error) {
	prefix := partition.Prefix(r.root, sessionID)
	var keys []string
	token := ""
	for {
		page, err := r.store.List(ctx, prefix, token, r.pageSize)
		if err != nil {
			return nil, err
		}
		keys = append(keys, page.Keys...)
		if page.NextToken == "" {
			return keys, nil
		}
		token = page.NextToken
	}
}

// fetchAll retrieves object bodies with bounded parallelism. bodies is
// indexed by key position; a nil entry means that key failed.
func (r *Reader) fetchAll(ctx context.Context, keys []string) (bodies [][]byte, failed []string) {
	bodies = make([][]byte, len(keys))
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(r.parallelism)
	for i, key := range keys {
		g.Go(func() error {
			data, err := r.store.Get(gctx, key)
			if err != nil {
				if r.metrics != nil {
					r.metrics.ObjectsFetched.WithLabelValues("error").Inc()
				}
				r.logger.Warn("object fetch failed", logpkg.Str("key", key), logpkg.Err(err))
				return nil
			}
			if r.metrics != nil {
				r.metrics.ObjectsFetched.WithLabelValues("ok").Inc()
			}
			bodies[i] = data
			return nil
		})
	}
	_ = g.Wait()

	for i, key := range keys {
		if bodies[i] == nil {
			failed = append(failed, key)
		}
	}
	return bodies, failed
}

// merge decodes bodies in listing order, deduplicates by sequence with the
// last occurrence winning, and sorts ascending.
func (r *Reader) merge(sessionID string, keys []string, bodies [][]byte) *SessionStream {
	stream := &SessionStream{SessionID: sessionID, Objects: len(keys)}
	bySeq := make(map[int64]envelope.Envelope)
	for _, body := range bodies {
		if body == nil {
			continue
		}
		envs, skipped := envelope.DecodeAll(body)
		stream.ParseErrors += skipped
		for _, e := range envs {
			if e.SessionID != sessionID {
				// Foreign record written under the wrong prefix; never leak
				// it into another session's stream.
				stream.ParseErrors++
				continue
			}
			bySeq[e.Sequence] = e
		}
	}
	if r.metrics != nil && stream.ParseErrors > 0 {
		r.metrics.ParseErrorsTotal.Add(float64(stream.ParseErrors))
	}

	stream.Envelopes = make([]envelope.Envelope, 0, len(bySeq))
	for _, e := range bySeq {
		stream.Envelopes = append(stream.Envelopes, e)
	}
	sort.Slice(stream.Envelopes, func(i, j int) bool {
		return stream.Envelopes[i].Sequence < stream.Envelopes[j].Sequence
	})
	return stream
}

func (r *Reader) observe(result string, start time.Time) {
	if r.metrics == nil {
		return
	}
	r.metrics.ReadsTotal.WithLabelValues(result).Inc()
	r.metrics.ReadDuration.Observe(time.Since(start).Seconds())
}
