package main

import (
	"context"
	"fmt"
	"net/http"
	"strconv"
	"time"

	"github.com/illmade-knight/eventhub-processor/pkg/loadgen"
	"github.com/illmade-knight/eventhub-processor/pkg/metrics"
	"github.com/illmade-knight/eventhub-processor/pkg/simulator"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/spf13/cobra"
)

func newSimulateCmd(a *app) *cobra.Command {
	var count int
	cmd := &cobra.Command{
		Use:   "simulate",
		Short: "Publish one run of synthetic events and exit",
		RunE: func(cmd *cobra.Command, _ []string) error {
			raw := ""
			if cmd.Flags().Changed("count") {
				raw = strconv.Itoa(count)
			}
			return a.runSimulate(cmd.Context(), raw, cmd)
		},
	}
	cmd.Flags().IntVar(&count, "count", loadgen.DefaultEventCount, "number of events to publish")
	return cmd
}

func (a *app) runSimulate(ctx context.Context, rawCount string, cmd *cobra.Command) error {
	if err := a.cfg.ValidateSimulator(); err != nil {
		return err
	}
	transport, closeTransport, err := buildTransport(ctx, a.cfg.Stream, a.logger)
	if err != nil {
		return err
	}
	defer closeTransport()

	publisher, err := buildPublisher(transport, a.cfg, nil, a.logger)
	if err != nil {
		return err
	}
	count := loadgen.ResolveEventCount(rawCount, a.cfg.Simulator.DefaultCount, a.cfg.Simulator.MaxCount)
	report, err := publisher.Publish(ctx, count)
	if err != nil {
		return err
	}
	fmt.Fprintf(cmd.OutOrStdout(), "Simulation finished. %d events sent to %s.\n", report.Sent, report.Destination)
	return nil
}

func newServeCmd(a *app) *cobra.Command {
	return &cobra.Command{
		Use:   "serve",
		Short: "Serve the simulation HTTP API",
		RunE: func(cmd *cobra.Command, _ []string) error {
			return a.runServe(cmd.Context())
		},
	}
}

func (a *app) runServe(ctx context.Context) error {
	collector, err := metrics.NewCollector(prometheus.DefaultRegisterer)
	if err != nil {
		return err
	}

	// An incomplete stream config still serves; each request reports it.
	var publisher simulator.Publisher
	if err := a.cfg.ValidateSimulator(); err != nil {
		a.logger.Warn().Err(err).Msg("Stream is not configured, simulations will fail.")
	} else {
		transport, closeTransport, err := buildTransport(ctx, a.cfg.Stream, a.logger)
		if err != nil {
			return err
		}
		defer closeTransport()
		publisher, err = buildPublisher(transport, a.cfg, collector, a.logger)
		if err != nil {
			return err
		}
	}

	sim := simulator.NewSimulator(a.cfg.Stream, a.cfg.Simulator, publisher, a.logger)
	srv := &http.Server{
		Addr:              a.cfg.HTTP.Addr,
		Handler:           simulator.NewRouter(sim, prometheus.DefaultGatherer),
		ReadHeaderTimeout: 5 * time.Second,
	}
	return serveHTTP(ctx, srv, a.logger)
}
