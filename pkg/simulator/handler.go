package simulator

import (
	"context"
	"errors"
	"fmt"
	"net/http"

	"github.com/gorilla/mux"
	"github.com/illmade-knight/eventhub-processor/pkg/config"
	"github.com/illmade-knight/eventhub-processor/pkg/loadgen"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/rs/zerolog"
)

// ====================================================================================
// This file contains the HTTP face of the load simulator: one request runs one
// complete publishing run and answers with a plain text summary.
// ====================================================================================

const sendFailureMessage = "An unexpected error occurred while sending events."

// Publisher runs one publishing run of count events.
type Publisher interface {
	Publish(ctx context.Context, count int) (loadgen.PublishReport, error)
}

// Simulator serves simulation requests.
type Simulator struct {
	stream    config.StreamConfig
	limits    config.SimulatorConfig
	publisher Publisher
	logger    zerolog.Logger
}

// NewSimulator creates the handler. publisher may be nil when the stream
// configuration is incomplete; requests then fail with a configuration error.
func NewSimulator(stream config.StreamConfig, limits config.SimulatorConfig, publisher Publisher, logger zerolog.Logger) *Simulator {
	if limits.DefaultCount <= 0 {
		limits.DefaultCount = loadgen.DefaultEventCount
	}
	if limits.MaxCount <= 0 {
		limits.MaxCount = loadgen.MaxEventCount
	}
	return &Simulator{
		stream:    stream,
		limits:    limits,
		publisher: publisher,
		logger:    logger.With().Str("component", "Simulator").Logger(),
	}
}

// HandleSimulate publishes ?count= events (default and cap from the
// simulator limits) and reports how many were sent.
func (s *Simulator) HandleSimulate(w http.ResponseWriter, r *http.Request) {
	if err := s.stream.Validate(); err != nil {
		s.logger.Error().Err(err).Msg("Simulation rejected.")
		writeText(w, http.StatusInternalServerError, configErrorMessage(err))
		return
	}
	if s.publisher == nil {
		s.logger.Error().Msg("Simulation rejected: no publisher configured.")
		writeText(w, http.StatusInternalServerError, "Configuration error: event publisher is missing.")
		return
	}

	count := loadgen.ResolveEventCount(r.URL.Query().Get("count"), s.limits.DefaultCount, s.limits.MaxCount)
	report, err := s.publisher.Publish(r.Context(), count)
	if err != nil {
		s.logger.Error().Err(err).Int("requested", count).Int("sent", report.Sent).Msg("Simulation failed.")
		writeText(w, http.StatusInternalServerError, sendFailureMessage)
		return
	}
	writeText(w, http.StatusOK, fmt.Sprintf("Simulation finished. %d events sent to %s.", report.Sent, report.Destination))
}

func configErrorMessage(err error) string {
	var cfgErr *config.ConfigurationError
	if errors.As(err, &cfgErr) {
		return fmt.Sprintf("Configuration error: %s is missing.", cfgErr.Description)
	}
	return fmt.Sprintf("Configuration error: %v.", err)
}

func writeText(w http.ResponseWriter, status int, body string) {
	w.Header().Set("Content-Type", "text/plain; charset=utf-8")
	w.WriteHeader(status)
	_, _ = w.Write([]byte(body))
}

// NewRouter wires the simulator, health and metrics endpoints. A nil
// gatherer serves the default Prometheus registry.
func NewRouter(sim *Simulator, gatherer prometheus.Gatherer) *mux.Router {
	r := mux.NewRouter()
	r.HandleFunc("/api/simulate", sim.HandleSimulate).Methods(http.MethodGet, http.MethodPost)
	r.HandleFunc("/healthz", func(w http.ResponseWriter, _ *http.Request) {
		writeText(w, http.StatusOK, "ok")
	}).Methods(http.MethodGet)
	if gatherer == nil {
		r.Handle("/metrics", promhttp.Handler())
	} else {
		r.Handle("/metrics", promhttp.HandlerFor(gatherer, promhttp.HandlerOpts{}))
	}
	return r
}
