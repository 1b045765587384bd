package emulators

import (
	"context"
	"fmt"
	"net/http"
	"strings"
	"testing"
	"time"

	"cloud.google.com/go/bigquery"
	"github.com/docker/go-connections/nat"
	"github.com/stretchr/testify/require"
	"github.com/testcontainers/testcontainers-go"
	"github.com/testcontainers/testcontainers-go/wait"
	"google.golang.org/api/option"
)

const (
	bigQueryEmulatorImage = "ghcr.io/goccy/bigquery-emulator:0.6.6"
	bigQueryGRPCPort      = "9060"
	bigQueryRestPort      = "9050"
)

// BigQueryConfig describes the emulator and the datasets it starts with.
// Datasets lists dataset IDs to create; tables are left to the code under
// test so its schema inference is exercised.
type BigQueryConfig struct {
	GCImageContainer
	Datasets []string
}

func GetDefaultBigQueryConfig(projectID string, datasets ...string) BigQueryConfig {
	return BigQueryConfig{
		GCImageContainer: GCImageContainer{
			ImageContainer: ImageContainer{
				EmulatorImage:    bigQueryEmulatorImage,
				EmulatorHTTPPort: bigQueryRestPort,
				EmulatorGRPCPort: bigQueryGRPCPort,
			},
			ProjectID: projectID,
		},
		Datasets: datasets,
	}
}

// SetupBigQueryEmulator starts the goccy BigQuery emulator and returns client
// options that talk to its REST endpoint.
func SetupBigQueryEmulator(t *testing.T, ctx context.Context, cfg BigQueryConfig) (opts []option.ClientOption, cleanupFunc func()) {
	t.Helper()
	httpPort := nat.Port(fmt.Sprintf("%s/tcp", cfg.EmulatorHTTPPort))
	grpcPort := nat.Port(fmt.Sprintf("%s/tcp", cfg.EmulatorGRPCPort))
	req := testcontainers.ContainerRequest{
		Image:        cfg.EmulatorImage,
		ExposedPorts: []string{string(httpPort), string(grpcPort)},
		Cmd: []string{
			"--project=" + cfg.ProjectID,
			"--port=" + cfg.EmulatorHTTPPort,
			"--grpc-port=" + cfg.EmulatorGRPCPort,
		},
		WaitingFor: wait.ForAll(
			wait.ForListeningPort(httpPort).WithStartupTimeout(60*time.Second),
			wait.ForListeningPort(grpcPort).WithStartupTimeout(60*time.Second),
		),
	}
	container, err := testcontainers.GenericContainer(ctx, testcontainers.GenericContainerRequest{ContainerRequest: req, Started: true})
	require.NoError(t, err)

	host, err := container.Host(ctx)
	require.NoError(t, err)
	mappedGrpcPort, err := container.MappedPort(ctx, grpcPort)
	require.NoError(t, err)
	mappedRestPort, err := container.MappedPort(ctx, httpPort)
	require.NoError(t, err)

	endpoint := fmt.Sprintf("http://%s:%s", host, mappedRestPort.Port())
	opts = []option.ClientOption{option.WithEndpoint(endpoint), option.WithoutAuthentication(), option.WithHTTPClient(&http.Client{})}

	if cfg.SetEnvVariables {
		t.Setenv("BIGQUERY_EMULATOR_HOST", fmt.Sprintf("%s:%s", host, mappedGrpcPort.Port()))
		t.Setenv("BIGQUERY_API_ENDPOINT", endpoint)
	}

	client, err := bigquery.NewClient(ctx, cfg.ProjectID, opts...)
	require.NoError(t, err)
	defer client.Close()

	for _, datasetID := range cfg.Datasets {
		err = client.Dataset(datasetID).Create(ctx, &bigquery.DatasetMetadata{Name: datasetID})
		if err != nil && !strings.Contains(err.Error(), "Already Exists") {
			require.NoError(t, err)
		}
	}

	return opts, func() { require.NoError(t, container.Terminate(ctx)) }
}
