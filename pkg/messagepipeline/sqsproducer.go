package messagepipeline

import (
	"context"
	"fmt"
	"strconv"

	"github.com/aws/aws-sdk-go-v2/aws"
	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/service/sqs"
	sqstypes "github.com/aws/aws-sdk-go-v2/service/sqs/types"
	"github.com/illmade-knight/eventhub-processor/pkg/loadgen"
	"github.com/rs/zerolog"
)

const (
	// SendMessageBatch limits: 10 entries and 256 KiB of total payload.
	sqsMaxBatchEntries = 10
	sqsMaxBatchBytes   = 256 * 1024
)

// SQSSendMessageBatchAPI is the part of *sqs.Client the producer uses.
type SQSSendMessageBatchAPI interface {
	SendMessageBatch(ctx context.Context, params *sqs.SendMessageBatchInput, optFns ...func(*sqs.Options)) (*sqs.SendMessageBatchOutput, error)
}

// NewSQSClient builds an SQS client from the default AWS credential chain.
func NewSQSClient(ctx context.Context, region string) (*sqs.Client, error) {
	var opts []func(*awsconfig.LoadOptions) error
	if region != "" {
		opts = append(opts, awsconfig.WithRegion(region))
	}
	awsCfg, err := awsconfig.LoadDefaultConfig(ctx, opts...)
	if err != nil {
		return nil, fmt.Errorf("failed to load AWS config: %w", err)
	}
	return sqs.NewFromConfig(awsCfg), nil
}

// SQSProducer implements loadgen.Transport with SendMessageBatch.
type SQSProducer struct {
	client   SQSSendMessageBatchAPI
	queueURL string
	logger   zerolog.Logger
}

func NewSQSProducer(client SQSSendMessageBatchAPI, queueURL string, logger zerolog.Logger) (*SQSProducer, error) {
	if client == nil {
		return nil, fmt.Errorf("sqs client cannot be nil")
	}
	if queueURL == "" {
		return nil, fmt.Errorf("sqs queue URL is required")
	}
	return &SQSProducer{
		client:   client,
		queueURL: queueURL,
		logger:   logger.With().Str("component", "SQSProducer").Str("queue_url", queueURL).Logger(),
	}, nil
}

func (p *SQSProducer) CreateBatch(_ context.Context) (loadgen.EventBatch, error) {
	return loadgen.NewBatch(loadgen.BatchLimits{MaxEvents: sqsMaxBatchEntries, MaxBytes: sqsMaxBatchBytes}), nil
}

// Send fails when the call fails or when SQS reports any failed entry.
func (p *SQSProducer) Send(ctx context.Context, eventBatch loadgen.EventBatch) error {
	batch, ok := eventBatch.(*loadgen.Batch)
	if !ok {
		return fmt.Errorf("unsupported batch type %T", eventBatch)
	}
	entries := make([]sqstypes.SendMessageBatchRequestEntry, 0, batch.Count())
	for i, event := range batch.Events() {
		entries = append(entries, sqstypes.SendMessageBatchRequestEntry{
			Id:          aws.String(strconv.Itoa(i)),
			MessageBody: aws.String(string(event)),
		})
	}

	out, err := p.client.SendMessageBatch(ctx, &sqs.SendMessageBatchInput{
		QueueUrl: aws.String(p.queueURL),
		Entries:  entries,
	})
	if err != nil {
		return fmt.Errorf("sqs SendMessageBatch: %w", err)
	}
	if len(out.Failed) > 0 {
		f := out.Failed[0]
		return fmt.Errorf("sqs SendMessageBatch: %d of %d entries failed, first id=%s code=%s msg=%s",
			len(out.Failed), len(entries), aws.ToString(f.Id), aws.ToString(f.Code), aws.ToString(f.Message))
	}
	return nil
}

func (p *SQSProducer) Destination() string { return p.queueURL }
