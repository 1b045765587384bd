package emulators

import (
	"context"
	"fmt"
	"testing"
	"time"

	"github.com/docker/go-connections/nat"
	"github.com/rs/zerolog/log"
	"github.com/stretchr/testify/require"
	"github.com/testcontainers/testcontainers-go"
	"github.com/testcontainers/testcontainers-go/wait"
)

const (
	postgresImage = "postgres:16-alpine"
	postgresPort  = "5432"
)

// PostgresConfig describes a throwaway Postgres instance.
type PostgresConfig struct {
	ImageContainer
	Database string
	User     string
	Password string
}

func GetDefaultPostgresConfig(database string) PostgresConfig {
	return PostgresConfig{
		ImageContainer: ImageContainer{
			EmulatorImage:    postgresImage,
			EmulatorHTTPPort: postgresPort,
		},
		Database: database,
		User:     "eventhub",
		Password: "eventhub",
	}
}

// SetupPostgresContainer starts Postgres and returns a connection string
// usable as SQL_CONNECTION_STRING.
func SetupPostgresContainer(t *testing.T, ctx context.Context, cfg PostgresConfig) (connString string, cleanupFunc func()) {
	t.Helper()
	port := nat.Port(fmt.Sprintf("%s/tcp", cfg.EmulatorHTTPPort))
	req := testcontainers.ContainerRequest{
		Image:        cfg.EmulatorImage,
		ExposedPorts: []string{string(port)},
		Env: map[string]string{
			"POSTGRES_DB":       cfg.Database,
			"POSTGRES_USER":     cfg.User,
			"POSTGRES_PASSWORD": cfg.Password,
		},
		// Postgres restarts once after init, so the ready line shows up twice.
		WaitingFor: wait.ForAll(
			wait.ForLog("database system is ready to accept connections").WithOccurrence(2).WithStartupTimeout(60*time.Second),
			wait.ForListeningPort(port),
		),
	}
	container, err := testcontainers.GenericContainer(ctx, testcontainers.GenericContainerRequest{ContainerRequest: req, Started: true})
	require.NoError(t, err)

	host, err := container.Host(ctx)
	require.NoError(t, err)
	mapped, err := container.MappedPort(ctx, port)
	require.NoError(t, err)

	connString = fmt.Sprintf("postgres://%s:%s@%s:%s/%s?sslmode=disable", cfg.User, cfg.Password, host, mapped.Port(), cfg.Database)
	t.Logf("Postgres container started at %s:%s", host, mapped.Port())

	return connString, func() {
		if err := container.Terminate(ctx); err != nil {
			log.Warn().Err(err).Msg("Failed to terminate Postgres container")
		}
	}
}
