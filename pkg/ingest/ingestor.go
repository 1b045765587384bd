package ingest

import (
	"context"
	"fmt"
	"time"

	"github.com/illmade-knight/eventhub-processor/pkg/config"
	"github.com/illmade-knight/eventhub-processor/pkg/metrics"
	"github.com/illmade-knight/eventhub-processor/pkg/types"
	"github.com/rs/zerolog"
)

// ====================================================================================
// This file contains the BatchIngestor: it writes every message of a delivered
// batch to a Store, keeps going past individual failures and turns the
// collected failures into a single redelivery signal for the transport.
// ====================================================================================

// Store abstracts the durable destination for ingested messages
// (e.g., Postgres, BigQuery).
type Store interface {
	// Open acquires a session that is used for exactly one batch.
	Open(ctx context.Context) (Session, error)
	// Destination names where records end up. It is empty when the store
	// has not been configured.
	Destination() string
}

// Session is a store connection scoped to one batch.
type Session interface {
	Insert(ctx context.Context, record *types.ProcessedRecord) error
	Close(ctx context.Context) error
}

// Option customises a BatchIngestor.
type Option func(*BatchIngestor)

// WithClock replaces the clock used to stamp records. Intended for tests.
func WithClock(clock func() time.Time) Option {
	return func(b *BatchIngestor) { b.clock = clock }
}

// WithMetrics records batch outcomes on the given collector.
func WithMetrics(m *metrics.Collector) Option {
	return func(b *BatchIngestor) { b.metrics = m }
}

// BatchIngestor persists batches of stream messages one message at a time.
// It holds no per-batch state, so one instance can serve concurrent batches.
type BatchIngestor struct {
	store   Store
	clock   func() time.Time
	metrics *metrics.Collector
	logger  zerolog.Logger
}

// NewBatchIngestor validates the store and returns a ready ingestor. A
// missing store or store destination is a configuration error.
func NewBatchIngestor(store Store, logger zerolog.Logger, opts ...Option) (*BatchIngestor, error) {
	b := &BatchIngestor{
		store:  store,
		clock:  time.Now,
		logger: logger.With().Str("component", "BatchIngestor").Logger(),
	}
	for _, opt := range opts {
		opt(b)
	}
	if err := b.validate(); err != nil {
		return nil, err
	}
	b.logger = b.logger.With().Str("destination", store.Destination()).Logger()
	return b, nil
}

// DestinationSetting is implemented by stores that can name the setting
// their destination comes from. It is used to word configuration errors.
type DestinationSetting interface {
	DestinationSetting() (field, description string)
}

func (b *BatchIngestor) validate() error {
	if b.store == nil {
		return config.Missing("STORE_DRIVER", "store destination")
	}
	if b.store.Destination() != "" {
		return nil
	}
	if named, ok := b.store.(DestinationSetting); ok {
		return config.Missing(named.DestinationSetting())
	}
	return config.Missing("STORE_DRIVER", "store destination")
}

// Ingest writes each message to the store in delivery order. A failed write
// is recorded and processing continues with the next message.
//
// The returned error is nil only when every message was persisted. Store
// session and configuration errors are returned before any message is
// touched; the outcome is then empty.
func (b *BatchIngestor) Ingest(ctx context.Context, messages []string) (BatchOutcome, error) {
	if err := b.validate(); err != nil {
		b.logger.Error().Err(err).Msg("Store destination is not configured, refusing batch.")
		return BatchOutcome{}, err
	}

	session, err := b.store.Open(ctx)
	if err != nil {
		b.logger.Error().Err(err).Int("batch_size", len(messages)).Msg("Failed to open store session.")
		return BatchOutcome{}, fmt.Errorf("failed to open store session: %w", err)
	}
	defer func() {
		// Release even if ctx was cancelled mid-batch.
		if closeErr := session.Close(context.WithoutCancel(ctx)); closeErr != nil {
			b.logger.Warn().Err(closeErr).Msg("Failed to close store session.")
		}
	}()

	outcome := BatchOutcome{Processed: len(messages)}
	for i, content := range messages {
		b.logger.Debug().Int("message_index", i).Str("content", content).Msg("Processing message.")
		record := &types.ProcessedRecord{
			MessageContent:     content,
			ProcessedTimestamp: b.clock().UTC(),
		}
		if err := insert(ctx, session, record); err != nil {
			msgErr := &MessageError{Index: i, Content: content, Err: err}
			outcome.Failures = append(outcome.Failures, msgErr)
			b.logger.Error().Err(err).Int("message_index", i).Str("content", content).Msg("Error processing message.")
			continue
		}
		outcome.Succeeded++
	}

	b.metrics.BatchIngested(outcome.Succeeded, len(outcome.Failures))
	if outcome.Success() {
		b.logger.Info().Int("batch_size", outcome.Processed).Msgf("Successfully processed batch: %s.", outcome.Summary())
	} else {
		b.logger.Warn().
			Int("batch_size", outcome.Processed).
			Int("failed", len(outcome.Failures)).
			Msgf("%d out of %d messages in the batch failed to process.", len(outcome.Failures), outcome.Processed)
	}
	return outcome, outcome.Err()
}

// insert turns a panicking driver into an ordinary per-message failure so
// the rest of the batch is still attempted.
func insert(ctx context.Context, session Session, record *types.ProcessedRecord) (err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("insert panicked: %v", r)
		}
	}()
	return session.Insert(ctx, record)
}

// IngestConsumed ingests a batch taken straight from a consumer. Every
// message is acked when the batch succeeds and nacked when it does not, so
// the transport redelivers the whole batch.
func (b *BatchIngestor) IngestConsumed(ctx context.Context, msgs []types.ConsumedMessage) error {
	payloads := make([]string, len(msgs))
	for i, msg := range msgs {
		payloads[i] = string(msg.Payload)
	}

	_, err := b.Ingest(ctx, payloads)
	for _, msg := range msgs {
		// Ack/Nack may be nil for messages built in tests.
		if err != nil {
			if msg.Nack != nil {
				msg.Nack()
			}
		} else if msg.Ack != nil {
			msg.Ack()
		}
	}
	return err
}
