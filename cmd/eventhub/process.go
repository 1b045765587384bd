package main

import (
	"context"
	"net/http"
	"time"

	"github.com/gorilla/mux"
	"github.com/illmade-knight/eventhub-processor/pkg/ingest"
	"github.com/illmade-knight/eventhub-processor/pkg/messagepipeline"
	"github.com/illmade-knight/eventhub-processor/pkg/metrics"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/spf13/cobra"
	"golang.org/x/sync/errgroup"
)

func newProcessCmd(a *app) *cobra.Command {
	return &cobra.Command{
		Use:   "process",
		Short: "Consume the stream and persist every message batch",
		RunE: func(cmd *cobra.Command, _ []string) error {
			return a.runProcess(cmd.Context())
		},
	}
}

func (a *app) runProcess(ctx context.Context) error {
	if err := a.cfg.ValidateIngest(); err != nil {
		return err
	}

	store, closeStore, err := buildStore(ctx, a.cfg, a.logger)
	if err != nil {
		return err
	}
	defer closeStore()

	collector, err := metrics.NewCollector(prometheus.DefaultRegisterer)
	if err != nil {
		return err
	}
	ingestor, err := ingest.NewBatchIngestor(store, a.logger, ingest.WithMetrics(collector))
	if err != nil {
		return err
	}

	consumer, err := messagepipeline.NewGooglePubSubConsumer(ctx, &messagepipeline.GooglePubSubConsumerConfig{
		ProjectID:              a.cfg.Stream.ConnectionString,
		SubscriptionID:         a.cfg.Stream.SubscriptionID,
		MaxOutstandingMessages: a.cfg.Trigger.BatchSize * a.cfg.Trigger.NumWorkers,
	}, a.logger)
	if err != nil {
		return err
	}

	trigger, err := messagepipeline.NewBatchTrigger(triggerConfig(a.cfg.Trigger), consumer, ingestor.IngestConsumed, a.logger)
	if err != nil {
		return err
	}
	if err := trigger.Start(); err != nil {
		return err
	}

	router := mux.NewRouter()
	router.Handle("/metrics", promhttp.Handler())
	router.HandleFunc("/healthz", func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusOK)
	})
	srv := &http.Server{Addr: a.cfg.HTTP.Addr, Handler: router, ReadHeaderTimeout: 5 * time.Second}

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		return serveHTTP(gctx, srv, a.logger)
	})
	g.Go(func() error {
		<-gctx.Done()
		trigger.Stop()
		return nil
	})

	a.logger.Info().Str("destination", store.Destination()).Msg("Processor running. Press Ctrl+C to stop.")
	return g.Wait()
}
