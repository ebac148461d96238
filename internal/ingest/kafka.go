package ingest

import (
	"context"
	"errors"
	"time"

	"github.com/segmentio/kafka-go"

	"github.com/rewindhq/rewind/internal/envelope"
	logpkg "github.com/rewindhq/rewind/pkg/log"
)

// KafkaSourceOptions configures the optional Kafka ingest path. Producers
// publish batches in the same JSONL envelope encoding the HTTP front door
// accepts, keyed by session id so a session stays on one partition.
type KafkaSourceOptions struct {
	Brokers []string
	Topic   string
	Group   string
	Logger  logpkg.Logger
}

// KafkaSource consumes envelope batches from a Kafka topic and feeds them
// into the ingest buffer. Offsets commit only after the batch is buffered, so
// a crash replays instead of dropping; replays dedupe on read.
type KafkaSource struct {
	reader *kafka.Reader
	buf    *Buffer
	logger logpkg.Logger
}

// NewKafkaSource creates a consumer-group source over the given brokers.
func NewKafkaSource(buf *Buffer, opts KafkaSourceOptions) *KafkaSource {
	if opts.Logger == nil {
		opts.Logger = logpkg.NewLogger().With(logpkg.Component("kafka"))
	}
	r := kafka.NewReader(kafka.ReaderConfig{
		Brokers:        opts.Brokers,
		Topic:          opts.Topic,
		GroupID:        opts.Group,
		MinBytes:       1,
		MaxBytes:       10 << 20,
		CommitInterval: 0, // explicit commits only
	})
	return &KafkaSource{reader: r, buf: buf, logger: opts.Logger}
}

// Run consumes until ctx is canceled. It returns nil on cancellation and the
// fetch error otherwise.
func (s *KafkaSource) Run(ctx context.Context) error {
	for {
		msg, err := s.reader.FetchMessage(ctx)
		if err != nil {
			if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
				return nil
			}
			return err
		}
		if err := s.handle(ctx, msg); err != nil {
			// Buffer at capacity: leave the offset uncommitted and back off so
			// the message is re-fetched once pressure drains.
			s.logger.Warn("kafka batch deferred",
				logpkg.Str("topic", msg.Topic),
				logpkg.Int64("offset", msg.Offset),
				logpkg.Err(err),
			)
			select {
			case <-ctx.Done():
				return nil
			case <-time.After(time.Second):
			}
			continue
		}
		if err := s.reader.CommitMessages(ctx, msg); err != nil {
			if errors.Is(err, context.Canceled) {
				return nil
			}
			return err
		}
	}
}

func (s *KafkaSource) handle(ctx context.Context, msg kafka.Message) error {
	envs, skipped := envelope.DecodeAll(msg.Value)
	if skipped > 0 {
		s.logger.Warn("skipped undecodable records in kafka message",
			logpkg.Int64("offset", msg.Offset),
			logpkg.Int("skipped", skipped),
		)
	}
	if len(envs) == 0 {
		return nil
	}

	// Group by session; messages are keyed by session id but the value is
	// authoritative.
	order := make([]string, 0, 1)
	groups := make(map[string][]envelope.Envelope, 1)
	for _, e := range envs {
		if _, ok := groups[e.SessionID]; !ok {
			order = append(order, e.SessionID)
		}
		groups[e.SessionID] = append(groups[e.SessionID], e)
	}
	for _, sid := range order {
		err := s.buf.Append(ctx, sid, groups[sid])
		if errors.Is(err, ErrInvalidInput) {
			// Poison batch: committing past it beats wedging the partition.
			s.logger.Error("dropping invalid kafka batch",
				logpkg.Str("session_id", sid),
				logpkg.Int64("offset", msg.Offset),
				logpkg.Err(err),
			)
			continue
		}
		if err != nil {
			return err
		}
	}
	return nil
}

// Close shuts down the underlying reader.
func (s *KafkaSource) Close() error { return s.reader.Close() }
