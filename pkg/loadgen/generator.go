package loadgen

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"strings"

	"github.com/illmade-knight/eventhub-processor/pkg/metrics"
	"github.com/illmade-knight/eventhub-processor/pkg/types"
	"github.com/rs/zerolog"
)

const (
	DefaultEventCount = 1000
	MaxEventCount     = 10000
	MaxEventsPerBatch = 250
)

// ErrEventTooLarge is returned when an event is rejected by an empty batch,
// which means no batch the transport creates could ever hold it.
var ErrEventTooLarge = errors.New("event exceeds the transport's batch size limit")

// TransportSendError aborts a publish run. Op is the transport call that failed.
type TransportSendError struct {
	Op  string
	Err error
}

func (e *TransportSendError) Error() string {
	return fmt.Sprintf("transport %s failed: %v", e.Op, e.Err)
}

func (e *TransportSendError) Unwrap() error { return e.Err }

// ResolveEventCount turns the raw "count" request parameter into the number
// of events to publish. A missing or non-numeric value yields def, values
// above max are clamped to max and negative values publish nothing.
func ResolveEventCount(raw string, def, max int) int {
	n, err := strconv.Atoi(strings.TrimSpace(raw))
	if err != nil {
		n = def
	}
	if n > max {
		n = max
	}
	if n < 0 {
		n = 0
	}
	return n
}

// PublishReport summarises a publish run. Batches holds the event count of
// each batch sent, in order.
type PublishReport struct {
	Requested   int
	Sent        int
	Batches     []int
	Destination string
}

// Option customises a BatchPublisher.
type Option func(*BatchPublisher)

// WithPayloadGenerator replaces the default "Event <n>" payloads.
func WithPayloadGenerator(g PayloadGenerator) Option {
	return func(p *BatchPublisher) { p.generator = g }
}

// WithMaxEventsPerBatch overrides the per-batch event ceiling.
func WithMaxEventsPerBatch(n int) Option {
	return func(p *BatchPublisher) {
		if n > 0 {
			p.maxPerBatch = n
		}
	}
}

// WithMetrics records sent batches on the given collector.
func WithMetrics(m *metrics.Collector) Option {
	return func(p *BatchPublisher) { p.metrics = m }
}

// BatchPublisher generates synthetic events and packs them into as few
// transport batches as the limits allow.
type BatchPublisher struct {
	transport   Transport
	generator   PayloadGenerator
	maxPerBatch int
	metrics     *metrics.Collector
	logger      zerolog.Logger
}

// NewBatchPublisher creates a publisher that sends through transport.
func NewBatchPublisher(transport Transport, logger zerolog.Logger, opts ...Option) (*BatchPublisher, error) {
	if transport == nil {
		return nil, errors.New("transport cannot be nil")
	}
	p := &BatchPublisher{
		transport:   transport,
		generator:   SequencePayloadGenerator{},
		maxPerBatch: MaxEventsPerBatch,
		logger:      logger.With().Str("component", "BatchPublisher").Str("destination", transport.Destination()).Logger(),
	}
	for _, opt := range opts {
		opt(p)
	}
	return p, nil
}

// Publish sends exactly count events. Each event is generated once; one
// that does not fit the current batch opens the next batch. Any transport
// failure ends the run and is returned as a *TransportSendError, with the
// report reflecting what had been sent until then.
func (p *BatchPublisher) Publish(ctx context.Context, count int) (PublishReport, error) {
	report := PublishReport{Requested: count, Destination: p.transport.Destination()}
	p.logger.Info().Int("event_count", count).Msg("Starting simulation.")

	var pending *types.SyntheticEvent
	for report.Sent < count {
		batch, err := p.transport.CreateBatch(ctx)
		if err != nil {
			return report, &TransportSendError{Op: "create batch", Err: err}
		}

		added := 0
		for report.Sent+added < count && added < p.maxPerBatch {
			event := pending
			if event == nil {
				seq := report.Sent + added + 1
				body, err := p.generator.GeneratePayload(seq)
				if err != nil {
					return report, fmt.Errorf("failed to generate event %d: %w", seq, err)
				}
				event = &types.SyntheticEvent{Sequence: seq, Body: body}
			}
			if !batch.TryAdd(event.Body) {
				if added == 0 {
					return report, fmt.Errorf("%w: event %d is %d bytes", ErrEventTooLarge, event.Sequence, len(event.Body))
				}
				// Carry the event over so it leads the next batch.
				pending = event
				break
			}
			pending = nil
			added++
		}

		if batch.Count() > 0 {
			if err := p.transport.Send(ctx, batch); err != nil {
				p.logger.Error().Err(err).Int("batch_size", batch.Count()).Msg("Error publishing events.")
				return report, &TransportSendError{Op: "send", Err: err}
			}
			report.Sent += added
			report.Batches = append(report.Batches, added)
			p.metrics.BatchSent(added)
			p.logger.Info().Int("batch_size", added).Msgf("Sent a batch of %d events.", added)
		}
	}

	p.logger.Info().Int("event_count", report.Sent).Msgf("A total of %d events have been published to %s.", report.Sent, report.Destination)
	return report, nil
}
