package messagepipeline

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/illmade-knight/eventhub-processor/pkg/types"
	"github.com/rs/zerolog"
)

// ====================================================================================
// This file contains the BatchTrigger: it groups messages from any
// MessageConsumer into batches and invokes a BatchHandler once per batch,
// standing in for a serverless stream trigger.
// ====================================================================================

// BatchTriggerConfig holds configuration for the BatchTrigger.
type BatchTriggerConfig struct {
	BatchSize      int
	FlushTimeout   time.Duration
	NumWorkers     int
	HandlerTimeout time.Duration
}

// BatchTrigger orchestrates consuming, batching and handling messages.
type BatchTrigger struct {
	config       BatchTriggerConfig
	consumer     MessageConsumer
	handler      BatchHandler
	logger       zerolog.Logger
	batches      chan []types.ConsumedMessage
	collectorWg  sync.WaitGroup
	workerWg     sync.WaitGroup
	shutdownCtx  context.Context
	shutdownFunc context.CancelFunc
	stopOnce     sync.Once
}

// NewBatchTrigger creates a trigger. Non-positive sizes fall back to
// defaults: 100 messages, 1s flush, 1 worker, 30s handler timeout.
func NewBatchTrigger(
	cfg BatchTriggerConfig,
	consumer MessageConsumer,
	handler BatchHandler,
	logger zerolog.Logger,
) (*BatchTrigger, error) {
	if consumer == nil {
		return nil, errors.New("consumer cannot be nil")
	}
	if handler == nil {
		return nil, errors.New("handler cannot be nil")
	}
	if cfg.BatchSize <= 0 {
		cfg.BatchSize = 100
	}
	if cfg.FlushTimeout <= 0 {
		cfg.FlushTimeout = time.Second
	}
	if cfg.NumWorkers <= 0 {
		cfg.NumWorkers = 1
	}
	if cfg.HandlerTimeout <= 0 {
		cfg.HandlerTimeout = 30 * time.Second
	}

	shutdownCtx, shutdownFunc := context.WithCancel(context.Background())
	return &BatchTrigger{
		config:       cfg,
		consumer:     consumer,
		handler:      handler,
		logger:       logger.With().Str("component", "BatchTrigger").Logger(),
		batches:      make(chan []types.ConsumedMessage, cfg.NumWorkers),
		shutdownCtx:  shutdownCtx,
		shutdownFunc: shutdownFunc,
	}, nil
}

// Start begins consumption, the batching loop and the handler workers.
func (t *BatchTrigger) Start() error {
	t.logger.Info().
		Int("batch_size", t.config.BatchSize).
		Dur("flush_timeout", t.config.FlushTimeout).
		Int("worker_count", t.config.NumWorkers).
		Msg("Starting BatchTrigger...")

	if err := t.consumer.Start(t.shutdownCtx); err != nil {
		return fmt.Errorf("failed to start message consumer: %w", err)
	}

	for i := 0; i < t.config.NumWorkers; i++ {
		t.workerWg.Add(1)
		go t.worker(i)
	}
	t.collectorWg.Add(1)
	go t.collect()
	return nil
}

// collect groups messages until the batch is full or the flush timeout
// fires. It exits when the consumer closes its channel, handing over the
// final partial batch first.
//
// Once shutdown begins nothing is held back waiting for a fuller batch. A
// consumer may only close its channel after every message it handed out is
// acked or nacked, so buffered messages are dispatched as soon as the
// channel is momentarily empty.
func (t *BatchTrigger) collect() {
	defer t.collectorWg.Done()
	defer close(t.batches)

	batch := make([]types.ConsumedMessage, 0, t.config.BatchSize)
	ticker := time.NewTicker(t.config.FlushTimeout)
	defer ticker.Stop()

	dispatch := func() {
		if len(batch) == 0 {
			return
		}
		t.batches <- batch
		batch = make([]types.ConsumedMessage, 0, t.config.BatchSize)
	}

	messages := t.consumer.Messages()
	draining := false
	for {
		if draining && len(messages) == 0 {
			dispatch()
		}

		var flush <-chan time.Time
		var shutdown <-chan struct{}
		if !draining {
			flush = ticker.C
			shutdown = t.shutdownCtx.Done()
		}

		select {
		case msg, ok := <-messages:
			if !ok {
				dispatch()
				return
			}
			batch = append(batch, msg)
			if len(batch) >= t.config.BatchSize {
				dispatch()
			}
		case <-flush:
			dispatch()
		case <-shutdown:
			draining = true
		}
	}
}

func (t *BatchTrigger) worker(workerID int) {
	defer t.workerWg.Done()
	for batch := range t.batches {
		t.handle(workerID, batch)
	}
}

func (t *BatchTrigger) handle(workerID int, batch []types.ConsumedMessage) {
	ctx, cancel := context.WithTimeout(context.Background(), t.config.HandlerTimeout)
	defer cancel()

	if err := t.handler(ctx, batch); err != nil {
		t.logger.Error().Err(err).Int("worker_id", workerID).Int("batch_size", len(batch)).
			Msg("Batch failed, messages will be redelivered.")
		return
	}
	t.logger.Debug().Int("worker_id", workerID).Int("batch_size", len(batch)).Msg("Batch handled.")
}

// Stop shuts the trigger down. Consumption is cancelled, messages already
// delivered are handled (and so acked or nacked) by the workers, and only
// then is the consumer stopped and its client released. A consumer that
// does not close its channel within 30s is stopped forcibly.
func (t *BatchTrigger) Stop() {
	t.stopOnce.Do(func() {
		t.logger.Info().Msg("Stopping BatchTrigger...")
		t.shutdownFunc()

		collected := make(chan struct{})
		go func() {
			t.collectorWg.Wait()
			close(collected)
		}()
		select {
		case <-collected:
		case <-time.After(30 * time.Second):
			t.logger.Error().Msg("Timeout waiting for consumer to drain, stopping it.")
			if err := t.consumer.Stop(); err != nil {
				t.logger.Error().Err(err).Msg("Error stopping consumer.")
			}
			<-collected
		}
		t.workerWg.Wait()

		if err := t.consumer.Stop(); err != nil {
			t.logger.Error().Err(err).Msg("Error stopping consumer.")
		}
		t.logger.Info().Msg("BatchTrigger stopped gracefully.")
	})
}
