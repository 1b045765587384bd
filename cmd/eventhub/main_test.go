package main

import (
	"bytes"
	"context"
	"os"
	"path/filepath"
	"testing"

	"github.com/illmade-knight/eventhub-processor/pkg/config"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNewLogger(t *testing.T) {
	var buf bytes.Buffer
	logger, err := newLogger("warn", "json", &buf)
	require.NoError(t, err)
	assert.Equal(t, zerolog.WarnLevel, logger.GetLevel())

	logger.Info().Msg("hidden")
	logger.Warn().Msg("shown")
	assert.NotContains(t, buf.String(), "hidden")
	assert.Contains(t, buf.String(), `"message":"shown"`)

	logger, err = newLogger("", "console", &buf)
	require.NoError(t, err)
	assert.Equal(t, zerolog.InfoLevel, logger.GetLevel())

	_, err = newLogger("loud", "json", &buf)
	assert.Error(t, err)
	_, err = newLogger("info", "xml", &buf)
	assert.Error(t, err)
}

func TestLoadEnvFile(t *testing.T) {
	assert.NoError(t, loadEnvFile(""))
	assert.NoError(t, loadEnvFile(filepath.Join(t.TempDir(), "absent.env")))

	path := filepath.Join(t.TempDir(), "test.env")
	require.NoError(t, os.WriteFile(path, []byte("EVENTHUB_TEST_ONLY_VAR=from-file\n"), 0o600))
	t.Setenv("EVENTHUB_TEST_ONLY_VAR", "")
	require.NoError(t, os.Unsetenv("EVENTHUB_TEST_ONLY_VAR"))

	require.NoError(t, loadEnvFile(path))
	assert.Equal(t, "from-file", os.Getenv("EVENTHUB_TEST_ONLY_VAR"))
}

func TestBuildStore_Errors(t *testing.T) {
	cfg := config.Default()
	_, _, err := buildStore(context.Background(), cfg, zerolog.Nop())
	assert.ErrorIs(t, err, config.ErrMissingConfig)

	cfg.Store.Driver = "sqlite"
	_, _, err = buildStore(context.Background(), cfg, zerolog.Nop())
	assert.ErrorContains(t, err, "unknown store driver")
}

func TestBuildTransport_MissingConfig(t *testing.T) {
	_, _, err := buildTransport(context.Background(), config.StreamConfig{Transport: config.TransportKafka}, zerolog.Nop())
	var cfgErr *config.ConfigurationError
	require.ErrorAs(t, err, &cfgErr)
	assert.Equal(t, "EVENTHUB_CONNECTION_STRING", cfgErr.Field)
}

func TestBuildTransport_Kafka(t *testing.T) {
	transport, cleanup, err := buildTransport(context.Background(), config.StreamConfig{
		Transport:        config.TransportKafka,
		ConnectionString: "localhost:9092",
		Name:             "telemetry",
	}, zerolog.Nop())
	require.NoError(t, err)
	defer cleanup()
	assert.Equal(t, "telemetry", transport.Destination())
}

func TestSimulateCmd_MissingStreamConfig(t *testing.T) {
	for _, key := range []string{"EVENTHUB_CONNECTION_STRING", "EVENTHUB_NAME", "STREAM_TRANSPORT"} {
		t.Setenv(key, "")
	}
	root := newRootCmd()
	root.SetArgs([]string{"simulate", "--env-file", "", "--count", "10"})
	root.SetOut(&bytes.Buffer{})

	err := root.ExecuteContext(context.Background())
	assert.ErrorIs(t, err, config.ErrMissingConfig)
}

func TestProcessCmd_MissingStoreConfig(t *testing.T) {
	for _, key := range []string{"SQL_CONNECTION_STRING", "STORE_DRIVER"} {
		t.Setenv(key, "")
	}
	root := newRootCmd()
	root.SetArgs([]string{"process", "--env-file", ""})

	err := root.ExecuteContext(context.Background())
	var cfgErr *config.ConfigurationError
	require.ErrorAs(t, err, &cfgErr)
	assert.Equal(t, "SQL_CONNECTION_STRING", cfgErr.Field)
}
