package ingest

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"
	"time"

	"github.com/rewindhq/rewind/internal/envelope"
	"github.com/rewindhq/rewind/internal/metrics"
	"github.com/rewindhq/rewind/internal/partition"
	logpkg "github.com/rewindhq/rewind/pkg/log"
)

// Flusher lands a validated batch as one durable partition object.
// *partition.Writer is the production implementation.
type Flusher interface {
	Flush(ctx context.Context, sessionID string, envs []envelope.Envelope) (string, error)
}

// envelopeOverhead approximates the serialized framing around a payload when
// accounting buffer size against FlushMaxBytes.
const envelopeOverhead = 96

// BufferOptions configures a Buffer. Zero fields take the documented defaults.
type BufferOptions struct {
	// MaxPayloadBytes rejects any single envelope payload above this size.
	MaxPayloadBytes int
	// FlushInterval is the time bound: buffered envelopes older than this are
	// flushed by the background loop. Zero defaults to 60s.
	FlushInterval time.Duration
	// FlushMaxBytes / FlushMaxRecords are the per-session size bounds;
	// whichever trips first triggers a flush of that session's buffer.
	FlushMaxBytes   int
	FlushMaxRecords int
	// MaxBufferedEnvelopes is the process-wide hard cap. Appends beyond it
	// fail with ErrWriteUnavailable. Zero defaults to 100k.
	MaxBufferedEnvelopes int

	Logger  logpkg.Logger
	Metrics *metrics.Metrics

	// OnFlush is called after each successful flush with the session id and
	// the written object key. Used to invalidate read-side caches.
	OnFlush func(sessionID, key string)
}

type sessionBuf struct {
	envs  []envelope.Envelope
	bytes int
	since time.Time
}

// Buffer validates and coalesces incoming batches per session. All methods
// are safe for concurrent use.
type Buffer struct {
	flusher Flusher
	opts    BufferOptions
	logger  logpkg.Logger

	mu       sync.Mutex
	sessions map[string]*sessionBuf
	total    int

	stop     chan struct{}
	loopDone chan struct{}
	closed   bool
}

// NewBuffer creates a Buffer and starts its background flush loop.
func NewBuffer(flusher Flusher, opts BufferOptions) *Buffer {
	if opts.MaxPayloadBytes <= 0 {
		opts.MaxPayloadBytes = 1 << 20
	}
	if opts.FlushInterval <= 0 {
		opts.FlushInterval = 60 * time.Second
	}
	if opts.FlushMaxBytes <= 0 {
		opts.FlushMaxBytes = 1 << 20
	}
	if opts.FlushMaxRecords <= 0 {
		opts.FlushMaxRecords = 500
	}
	if opts.MaxBufferedEnvelopes <= 0 {
		opts.MaxBufferedEnvelopes = 100_000
	}
	if opts.Logger == nil {
		opts.Logger = logpkg.NewLogger().With(logpkg.Component("ingest"))
	}
	b := &Buffer{
		flusher:  flusher,
		opts:     opts,
		logger:   opts.Logger,
		sessions: make(map[string]*sessionBuf),
		stop:     make(chan struct{}),
		loopDone: make(chan struct{}),
	}
	go b.flushLoop()
	return b
}

// Append validates and buffers one batch for one session. Validation is
// all-or-nothing: on ErrInvalidInput nothing was buffered. If the batch trips
// a size bound the session is flushed before Append returns.
func (b *Buffer) Append(ctx context.Context, sessionID string, envs []envelope.Envelope) error {
	if err := b.validate(sessionID, envs); err != nil {
		if b.opts.Metrics != nil {
			b.opts.Metrics.BatchesRejected.Inc()
		}
		return err
	}

	size := 0
	for i := range envs {
		size += len(envs[i].Payload) + envelopeOverhead
	}

	b.mu.Lock()
	if b.closed {
		b.mu.Unlock()
		return fmt.Errorf("%w: buffer closed", ErrWriteUnavailable)
	}
	if b.total+len(envs) > b.opts.MaxBufferedEnvelopes {
		b.mu.Unlock()
		if b.opts.Metrics != nil {
			b.opts.Metrics.BatchesRejected.Inc()
		}
		return fmt.Errorf("%w: buffer at capacity", ErrWriteUnavailable)
	}
	sb := b.sessions[sessionID]
	if sb == nil {
		sb = &sessionBuf{since: time.Now()}
		b.sessions[sessionID] = sb
	}
	sb.envs = append(sb.envs, envs...)
	sb.bytes += size
	b.total += len(envs)
	trip := sb.bytes >= b.opts.FlushMaxBytes || len(sb.envs) >= b.opts.FlushMaxRecords
	b.mu.Unlock()

	if b.opts.Metrics != nil {
		b.opts.Metrics.BatchesAccepted.Inc()
		b.opts.Metrics.EnvelopesBuffered.Set(float64(b.totalBuffered()))
	}

	if trip {
		if err := b.flushSession(ctx, sessionID); err != nil {
			// Envelopes stay buffered; the client retries and dedup on read
			// resolves any overlap.
			return fmt.Errorf("%w: %v", ErrWriteUnavailable, err)
		}
	}
	return nil
}

func (b *Buffer) validate(sessionID string, envs []envelope.Envelope) error {
	if !partition.ValidSessionID(sessionID) {
		return fmt.Errorf("%w: invalid session id %q", ErrInvalidInput, sessionID)
	}
	if len(envs) == 0 {
		return fmt.Errorf("%w: empty batch", ErrInvalidInput)
	}
	for i, e := range envs {
		if e.SessionID != "" && e.SessionID != sessionID {
			return fmt.Errorf("%w: envelope %d addressed to session %q", ErrInvalidInput, i, e.SessionID)
		}
		if e.Sequence < 0 || e.Sequence > envelope.MaxSafeSequence {
			return fmt.Errorf("%w: envelope %d sequence %d outside safe range", ErrInvalidInput, i, e.Sequence)
		}
		if len(e.Payload) > b.opts.MaxPayloadBytes {
			return fmt.Errorf("%w: envelope %d payload %d bytes exceeds limit", ErrInvalidInput, i, len(e.Payload))
		}
		if len(e.Payload) > 0 && !json.Valid(e.Payload) {
			return fmt.Errorf("%w: envelope %d payload is not valid JSON", ErrInvalidInput, i)
		}
	}
	return nil
}

// Flush forces a durable flush of every buffered session. The first flush
// error is returned but remaining sessions are still attempted.
func (b *Buffer) Flush(ctx context.Context) error {
	b.mu.Lock()
	ids := make([]string, 0, len(b.sessions))
	for sid := range b.sessions {
		ids = append(ids, sid)
	}
	b.mu.Unlock()

	var firstErr error
	for _, sid := range ids {
		if err := b.flushSession(ctx, sid); err != nil && firstErr == nil {
			firstErr = err
		}
	}
	return firstErr
}

// Close stops the background loop and drains the buffer. After Close, Append
// fails with ErrWriteUnavailable.
func (b *Buffer) Close(ctx context.Context) error {
	b.mu.Lock()
	if b.closed {
		b.mu.Unlock()
		return nil
	}
	b.closed = true
	b.mu.Unlock()

	close(b.stop)
	<-b.loopDone
	return b.Flush(ctx)
}

func (b *Buffer) totalBuffered() int {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.total
}

// flushSession removes the session's buffered envelopes, lands them, and on
// failure puts them back at the front so a later flush preserves order.
func (b *Buffer) flushSession(ctx context.Context, sessionID string) error {
	b.mu.Lock()
	sb := b.sessions[sessionID]
	if sb == nil || len(sb.envs) == 0 {
		delete(b.sessions, sessionID)
		b.mu.Unlock()
		return nil
	}
	envs := sb.envs
	b.total -= len(envs)
	delete(b.sessions, sessionID)
	b.mu.Unlock()

	key, err := b.flusher.Flush(ctx, sessionID, envs)
	if err != nil {
		b.logger.Error("session flush failed, retaining buffer",
			logpkg.Str("session_id", sessionID),
			logpkg.Int("records", len(envs)),
			logpkg.Err(err),
		)
		b.mu.Lock()
		if !b.closed {
			cur := b.sessions[sessionID]
			if cur == nil {
				cur = &sessionBuf{since: time.Now()}
				b.sessions[sessionID] = cur
			}
			cur.envs = append(envs, cur.envs...)
			for i := range envs {
				cur.bytes += len(envs[i].Payload) + envelopeOverhead
			}
			b.total += len(envs)
		}
		b.mu.Unlock()
		return err
	}

	if b.opts.Metrics != nil {
		b.opts.Metrics.EnvelopesBuffered.Set(float64(b.totalBuffered()))
	}
	if b.opts.OnFlush != nil {
		b.opts.OnFlush(sessionID, key)
	}
	return nil
}

// flushLoop enforces the time bound: any session buffered longer than
// FlushInterval is flushed. Errors are logged; envelopes are retained.
func (b *Buffer) flushLoop() {
	defer close(b.loopDone)
	tick := time.NewTicker(b.opts.FlushInterval / 4)
	defer tick.Stop()
	for {
		select {
		case <-b.stop:
			return
		case <-tick.C:
			b.flushAged()
		}
	}
}

func (b *Buffer) flushAged() {
	cutoff := time.Now().Add(-b.opts.FlushInterval)
	b.mu.Lock()
	var due []string
	for sid, sb := range b.sessions {
		if sb.since.Before(cutoff) {
			due = append(due, sid)
		}
	}
	b.mu.Unlock()

	for _, sid := range due {
		ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
		if err := b.flushSession(ctx, sid); err != nil {
			b.logger.Warn("interval flush failed", logpkg.Str("session_id", sid), logpkg.Err(err))
		}
		cancel()
	}
}
