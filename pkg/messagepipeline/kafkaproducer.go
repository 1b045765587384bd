package messagepipeline

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/illmade-knight/eventhub-processor/pkg/loadgen"
	"github.com/rs/zerolog"
	"github.com/segmentio/kafka-go"
)

const (
	// kafka-go's default Writer.BatchBytes.
	kafkaDefaultBatchBytes = 1048576
	// Rough per-record framing (offset, timestamp, key/headers) counted
	// against BatchBytes.
	kafkaRecordOverhead = 64
)

// KafkaWriter is the part of *kafka.Writer the producer uses.
type KafkaWriter interface {
	WriteMessages(ctx context.Context, msgs ...kafka.Message) error
	Close() error
}

// KafkaProducerConfig holds configuration for the Kafka producer.
type KafkaProducerConfig struct {
	Brokers       []string
	Topic         string
	MaxBatchBytes int
}

// ParseBrokers splits a comma separated broker list.
func ParseBrokers(s string) []string {
	var brokers []string
	for _, b := range strings.Split(s, ",") {
		if b = strings.TrimSpace(b); b != "" {
			brokers = append(brokers, b)
		}
	}
	return brokers
}

// KafkaProducer implements loadgen.Transport on a Kafka topic. Each batch is
// written with a single WriteMessages call.
type KafkaProducer struct {
	writer KafkaWriter
	topic  string
	limits loadgen.BatchLimits
	logger zerolog.Logger
}

// NewKafkaProducer creates a producer with its own kafka.Writer.
func NewKafkaProducer(cfg *KafkaProducerConfig, logger zerolog.Logger) (*KafkaProducer, error) {
	if len(cfg.Brokers) == 0 {
		return nil, errors.New("at least one kafka broker is required")
	}
	if cfg.Topic == "" {
		return nil, errors.New("kafka topic is required")
	}
	maxBytes := cfg.MaxBatchBytes
	if maxBytes <= 0 {
		maxBytes = kafkaDefaultBatchBytes
	}
	writer := &kafka.Writer{
		Addr:         kafka.TCP(cfg.Brokers...),
		Topic:        cfg.Topic,
		RequiredAcks: kafka.RequireAll,
		Balancer:     &kafka.LeastBytes{},
		BatchSize:    loadgen.MaxEventsPerBatch,
		BatchBytes:   int64(maxBytes),
		BatchTimeout: 10 * time.Millisecond,
	}
	logger.Info().Strs("brokers", cfg.Brokers).Str("topic", cfg.Topic).Msg("KafkaProducer initialized.")
	return NewKafkaProducerWithWriter(writer, cfg.Topic, maxBytes, logger), nil
}

// NewKafkaProducerWithWriter wraps an existing writer, e.g. a test double.
func NewKafkaProducerWithWriter(writer KafkaWriter, topic string, maxBatchBytes int, logger zerolog.Logger) *KafkaProducer {
	return &KafkaProducer{
		writer: writer,
		topic:  topic,
		limits: loadgen.BatchLimits{MaxBytes: maxBatchBytes, EventOverhead: kafkaRecordOverhead},
		logger: logger.With().Str("component", "KafkaProducer").Str("topic", topic).Logger(),
	}
}

func (p *KafkaProducer) CreateBatch(_ context.Context) (loadgen.EventBatch, error) {
	return loadgen.NewBatch(p.limits), nil
}

func (p *KafkaProducer) Send(ctx context.Context, eventBatch loadgen.EventBatch) error {
	batch, ok := eventBatch.(*loadgen.Batch)
	if !ok {
		return fmt.Errorf("unsupported batch type %T", eventBatch)
	}
	batchID := []byte(uuid.NewString())
	now := time.Now()
	msgs := make([]kafka.Message, 0, batch.Count())
	for _, event := range batch.Events() {
		msgs = append(msgs, kafka.Message{
			Value:   event,
			Time:    now,
			Headers: []kafka.Header{{Key: "batch_id", Value: batchID}},
		})
	}
	if err := p.writer.WriteMessages(ctx, msgs...); err != nil {
		return fmt.Errorf("kafka write to %s: %w", p.topic, err)
	}
	return nil
}

func (p *KafkaProducer) Destination() string { return p.topic }

func (p *KafkaProducer) Close() error {
	return p.writer.Close()
}
