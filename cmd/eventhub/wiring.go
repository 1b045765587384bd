package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"time"

	"cloud.google.com/go/pubsub"
	"github.com/illmade-knight/eventhub-processor/pkg/bqstore"
	"github.com/illmade-knight/eventhub-processor/pkg/config"
	"github.com/illmade-knight/eventhub-processor/pkg/ingest"
	"github.com/illmade-knight/eventhub-processor/pkg/loadgen"
	"github.com/illmade-knight/eventhub-processor/pkg/messagepipeline"
	"github.com/illmade-knight/eventhub-processor/pkg/metrics"
	"github.com/illmade-knight/eventhub-processor/pkg/sqlstore"
	"github.com/rs/zerolog"
)

// buildStore returns the configured ingest.Store and a cleanup func.
func buildStore(ctx context.Context, cfg *config.AppConfig, logger zerolog.Logger) (ingest.Store, func(), error) {
	switch cfg.Store.Driver {
	case config.StoreDriverPostgres:
		store, err := sqlstore.NewPostgresStore(cfg.Store.ConnectionString, logger)
		if err != nil {
			return nil, nil, err
		}
		if err := store.EnsureSchema(ctx); err != nil {
			return nil, nil, err
		}
		return store, func() {}, nil
	case config.StoreDriverBigQuery:
		client, err := bqstore.NewProductionBigQueryClient(ctx, &cfg.Store.BigQuery, logger)
		if err != nil {
			return nil, nil, err
		}
		store, err := bqstore.NewBigQueryStore(ctx, client, &cfg.Store.BigQuery, logger)
		if err != nil {
			client.Close()
			return nil, nil, err
		}
		return store, func() { client.Close() }, nil
	default:
		return nil, nil, fmt.Errorf("unknown store driver %q", cfg.Store.Driver)
	}
}

// buildTransport returns the producer for the configured stream transport.
func buildTransport(ctx context.Context, stream config.StreamConfig, logger zerolog.Logger) (loadgen.Transport, func(), error) {
	if err := stream.Validate(); err != nil {
		return nil, nil, err
	}
	switch stream.Transport {
	case config.TransportPubSub:
		client, err := pubsub.NewClient(ctx, stream.ConnectionString)
		if err != nil {
			return nil, nil, fmt.Errorf("pubsub.NewClient: %w", err)
		}
		producer, err := messagepipeline.NewGooglePubsubProducer(ctx, client, &messagepipeline.GooglePubsubProducerConfig{
			ProjectID: stream.ConnectionString,
			TopicID:   stream.Name,
		}, logger)
		if err != nil {
			client.Close()
			return nil, nil, err
		}
		return producer, func() {
			producer.Stop()
			client.Close()
		}, nil
	case config.TransportKafka:
		producer, err := messagepipeline.NewKafkaProducer(&messagepipeline.KafkaProducerConfig{
			Brokers: messagepipeline.ParseBrokers(stream.ConnectionString),
			Topic:   stream.Name,
		}, logger)
		if err != nil {
			return nil, nil, err
		}
		return producer, func() {
			if err := producer.Close(); err != nil {
				logger.Warn().Err(err).Msg("Error closing Kafka producer.")
			}
		}, nil
	case config.TransportSQS:
		client, err := messagepipeline.NewSQSClient(ctx, stream.ConnectionString)
		if err != nil {
			return nil, nil, err
		}
		producer, err := messagepipeline.NewSQSProducer(client, stream.Name, logger)
		if err != nil {
			return nil, nil, err
		}
		return producer, func() {}, nil
	default:
		return nil, nil, fmt.Errorf("unknown stream transport %q", stream.Transport)
	}
}

func buildPublisher(transport loadgen.Transport, cfg *config.AppConfig, collector *metrics.Collector, logger zerolog.Logger) (*loadgen.BatchPublisher, error) {
	return loadgen.NewBatchPublisher(transport, logger,
		loadgen.WithMaxEventsPerBatch(cfg.Simulator.MaxEventsPerBatch),
		loadgen.WithMetrics(collector),
	)
}

func triggerConfig(cfg config.TriggerConfig) messagepipeline.BatchTriggerConfig {
	return messagepipeline.BatchTriggerConfig{
		BatchSize:      cfg.BatchSize,
		FlushTimeout:   cfg.FlushTimeout,
		NumWorkers:     cfg.NumWorkers,
		HandlerTimeout: cfg.HandlerTimeout,
	}
}

// serveHTTP runs srv until ctx is done, then shuts it down gracefully.
func serveHTTP(ctx context.Context, srv *http.Server, logger zerolog.Logger) error {
	errCh := make(chan error, 1)
	go func() {
		logger.Info().Str("addr", srv.Addr).Msg("HTTP server listening.")
		errCh <- srv.ListenAndServe()
	}()

	select {
	case err := <-errCh:
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return fmt.Errorf("http server: %w", err)
	case <-ctx.Done():
		shutdownCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), 10*time.Second)
		defer cancel()
		logger.Info().Msg("Shutting down HTTP server...")
		return srv.Shutdown(shutdownCtx)
	}
}
