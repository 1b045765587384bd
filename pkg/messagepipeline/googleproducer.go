package messagepipeline

import (
	"context"
	"fmt"
	"time"

	"cloud.google.com/go/pubsub"
	"github.com/google/uuid"
	"github.com/illmade-knight/eventhub-processor/pkg/loadgen"
	"github.com/rs/zerolog"
)

const (
	// Pub/Sub accepts at most 1000 messages and 10MB per publish request.
	pubsubMaxBatchEvents = 1000
	pubsubMaxBatchBytes  = 10 * 1000 * 1000
	// pubsubMessageOverhead covers the batch_id attribute and the per-message
	// framing inside a publish request.
	pubsubMessageOverhead = 100
)

// GooglePubsubProducerConfig holds configuration for the Google Pub/Sub producer.
type GooglePubsubProducerConfig struct {
	ProjectID string
	TopicID   string
	// MaxBatchBytes caps a batch below the service limit; zero uses the limit.
	MaxBatchBytes int
}

// GooglePubsubProducer implements loadgen.Transport on a Pub/Sub topic.
type GooglePubsubProducer struct {
	client *pubsub.Client
	topic  *pubsub.Topic
	limits loadgen.BatchLimits
	logger zerolog.Logger
}

// NewGooglePubsubProducer creates a new GooglePubsubProducer.
// It takes an existing *pubsub.Client instance, allowing for dependency injection.
func NewGooglePubsubProducer(
	ctx context.Context,
	client *pubsub.Client,
	cfg *GooglePubsubProducerConfig,
	logger zerolog.Logger,
) (*GooglePubsubProducer, error) {
	if client == nil {
		return nil, fmt.Errorf("pubsub client cannot be nil for producer")
	}
	topic := client.Topic(cfg.TopicID)

	maxRetries := 3
	retryDelay := 100 * time.Millisecond
	exists := false
	var existsErr error
	for i := 0; i < maxRetries; i++ {
		topicCtx, topicCancel := context.WithTimeout(ctx, 5*time.Second)
		exists, existsErr = topic.Exists(topicCtx)
		topicCancel()
		if existsErr == nil && exists {
			break
		}
		logger.Warn().Err(existsErr).Str("topic_id", cfg.TopicID).Int("attempt", i+1).
			Msg("NewGooglePubsubProducer: topic not confirmed, retrying...")
		time.Sleep(retryDelay)
		retryDelay *= 2
	}
	if existsErr != nil {
		return nil, fmt.Errorf("failed to check existence of topic %s after %d retries: %w", cfg.TopicID, maxRetries, existsErr)
	}
	if !exists {
		return nil, fmt.Errorf("pubsub topic %s does not exist after %d retries", cfg.TopicID, maxRetries)
	}

	limits := loadgen.BatchLimits{
		MaxEvents:     pubsubMaxBatchEvents,
		MaxBytes:      pubsubMaxBatchBytes,
		EventOverhead: pubsubMessageOverhead,
	}
	if cfg.MaxBatchBytes > 0 && cfg.MaxBatchBytes < pubsubMaxBatchBytes {
		limits.MaxBytes = cfg.MaxBatchBytes
	}
	// Let the client flush one of our batches as a single request.
	topic.PublishSettings.CountThreshold = limits.MaxEvents
	topic.PublishSettings.ByteThreshold = limits.MaxBytes
	topic.PublishSettings.DelayThreshold = 10 * time.Millisecond

	logger.Info().Str("topic_id", cfg.TopicID).Msg("GooglePubsubProducer initialized successfully.")
	return &GooglePubsubProducer{
		client: client,
		topic:  topic,
		limits: limits,
		logger: logger.With().Str("component", "GooglePubsubProducer").Str("topic_id", cfg.TopicID).Logger(),
	}, nil
}

func (p *GooglePubsubProducer) CreateBatch(_ context.Context) (loadgen.EventBatch, error) {
	return loadgen.NewBatch(p.limits), nil
}

// Send publishes every event of the batch and waits for all results. The
// batch fails if any message is not confirmed.
func (p *GooglePubsubProducer) Send(ctx context.Context, eventBatch loadgen.EventBatch) error {
	batch, ok := eventBatch.(*loadgen.Batch)
	if !ok {
		return fmt.Errorf("unsupported batch type %T", eventBatch)
	}
	batchID := uuid.NewString()

	results := make([]*pubsub.PublishResult, 0, batch.Count())
	for _, event := range batch.Events() {
		results = append(results, p.topic.Publish(ctx, &pubsub.Message{
			Data:       event,
			Attributes: map[string]string{"batch_id": batchID},
		}))
	}

	var firstErr error
	failed := 0
	for _, res := range results {
		if _, err := res.Get(ctx); err != nil {
			failed++
			if firstErr == nil {
				firstErr = err
			}
		}
	}
	if firstErr != nil {
		return fmt.Errorf("%d of %d messages in batch %s failed to publish: %w", failed, len(results), batchID, firstErr)
	}
	p.logger.Debug().Str("batch_id", batchID).Int("batch_size", len(results)).Msg("Batch confirmed by Pub/Sub.")
	return nil
}

func (p *GooglePubsubProducer) Destination() string { return p.topic.ID() }

// Stop flushes outstanding messages. The injected client is not closed.
func (p *GooglePubsubProducer) Stop() {
	p.topic.Stop()
}
