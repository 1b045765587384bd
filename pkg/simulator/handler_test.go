package simulator_test

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/illmade-knight/eventhub-processor/pkg/config"
	"github.com/illmade-knight/eventhub-processor/pkg/loadgen"
	"github.com/illmade-knight/eventhub-processor/pkg/metrics"
	"github.com/illmade-knight/eventhub-processor/pkg/simulator"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
)

type MockPublisher struct {
	mock.Mock
}

func (m *MockPublisher) Publish(ctx context.Context, count int) (loadgen.PublishReport, error) {
	args := m.Called(ctx, count)
	return args.Get(0).(loadgen.PublishReport), args.Error(1)
}

var validStream = config.StreamConfig{
	Transport:        config.TransportPubSub,
	ConnectionString: "test-project",
	Name:             "telemetry",
}

func defaultLimits() config.SimulatorConfig {
	return config.Default().Simulator
}

func serve(t *testing.T, sim *simulator.Simulator, method, target string) *httptest.ResponseRecorder {
	t.Helper()
	router := simulator.NewRouter(sim, prometheus.NewRegistry())
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, httptest.NewRequest(method, target, nil))
	return rec
}

func TestHandleSimulate_Success(t *testing.T) {
	pub := &MockPublisher{}
	pub.On("Publish", mock.Anything, 42).Return(loadgen.PublishReport{Requested: 42, Sent: 42, Destination: "telemetry"}, nil)
	sim := simulator.NewSimulator(validStream, defaultLimits(), pub, zerolog.Nop())

	for _, method := range []string{http.MethodGet, http.MethodPost} {
		rec := serve(t, sim, method, "/api/simulate?count=42")
		assert.Equal(t, http.StatusOK, rec.Code)
		assert.Equal(t, "Simulation finished. 42 events sent to telemetry.", rec.Body.String())
	}
	pub.AssertNumberOfCalls(t, "Publish", 2)
}

func TestHandleSimulate_CountResolution(t *testing.T) {
	testCases := []struct {
		name  string
		query string
		want  int
	}{
		{"absent", "", 1000},
		{"non-numeric", "?count=lots", 1000},
		{"clamped", "?count=20000", 10000},
		{"exact", "?count=5000", 5000},
	}
	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			pub := &MockPublisher{}
			pub.On("Publish", mock.Anything, tc.want).Return(loadgen.PublishReport{Sent: tc.want, Destination: "telemetry"}, nil)
			sim := simulator.NewSimulator(validStream, defaultLimits(), pub, zerolog.Nop())

			rec := serve(t, sim, http.MethodGet, "/api/simulate"+tc.query)
			assert.Equal(t, http.StatusOK, rec.Code)
			pub.AssertExpectations(t)
		})
	}
}

func TestHandleSimulate_MissingConfiguration(t *testing.T) {
	testCases := []struct {
		name   string
		stream config.StreamConfig
		want   string
	}{
		{
			name:   "connection string",
			stream: config.StreamConfig{Transport: config.TransportPubSub, Name: "telemetry"},
			want:   "Configuration error: Event Hub connection string is missing.",
		},
		{
			name:   "name",
			stream: config.StreamConfig{Transport: config.TransportPubSub, ConnectionString: "test-project"},
			want:   "Configuration error: Event Hub name is missing.",
		},
	}
	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			pub := &MockPublisher{}
			sim := simulator.NewSimulator(tc.stream, defaultLimits(), pub, zerolog.Nop())

			rec := serve(t, sim, http.MethodGet, "/api/simulate?count=10")
			assert.Equal(t, http.StatusInternalServerError, rec.Code)
			assert.Equal(t, tc.want, rec.Body.String())
			pub.AssertNotCalled(t, "Publish", mock.Anything, mock.Anything)
		})
	}
}

func TestHandleSimulate_NilPublisher(t *testing.T) {
	sim := simulator.NewSimulator(validStream, defaultLimits(), nil, zerolog.Nop())
	rec := serve(t, sim, http.MethodGet, "/api/simulate")
	assert.Equal(t, http.StatusInternalServerError, rec.Code)
	assert.Contains(t, rec.Body.String(), "Configuration error")
}

func TestHandleSimulate_SendFailure(t *testing.T) {
	pub := &MockPublisher{}
	sendErr := &loadgen.TransportSendError{Op: "send", Err: errors.New("broker at 10.0.0.7 unreachable")}
	pub.On("Publish", mock.Anything, 1000).Return(loadgen.PublishReport{Sent: 250}, sendErr)
	sim := simulator.NewSimulator(validStream, defaultLimits(), pub, zerolog.Nop())

	rec := serve(t, sim, http.MethodPost, "/api/simulate")
	assert.Equal(t, http.StatusInternalServerError, rec.Code)
	assert.Equal(t, "An unexpected error occurred while sending events.", rec.Body.String())
	assert.NotContains(t, rec.Body.String(), "10.0.0.7")
}

func TestRouter_HealthAndMetrics(t *testing.T) {
	reg := prometheus.NewRegistry()
	collector, err := metrics.NewCollector(reg)
	require.NoError(t, err)
	collector.BatchSent(250)

	router := simulator.NewRouter(simulator.NewSimulator(validStream, defaultLimits(), nil, zerolog.Nop()), reg)

	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/healthz", nil))
	assert.Equal(t, http.StatusOK, rec.Code)

	rec = httptest.NewRecorder()
	router.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/metrics", nil))
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), "eventhub_events_published_total 250")

	rec = httptest.NewRecorder()
	router.ServeHTTP(rec, httptest.NewRequest(http.MethodDelete, "/api/simulate", nil))
	assert.Equal(t, http.StatusMethodNotAllowed, rec.Code)
}
