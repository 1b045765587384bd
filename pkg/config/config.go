package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

const (
	StoreDriverPostgres = "postgres"
	StoreDriverBigQuery = "bigquery"

	TransportPubSub = "pubsub"
	TransportKafka  = "kafka"
	TransportSQS    = "sqs"
)

// AppConfig is the full process configuration. It is built once at start-up
// and handed to constructors; nothing reads the environment after that.
type AppConfig struct {
	LogLevel  string          `yaml:"log_level"`
	LogFormat string          `yaml:"log_format"`
	Store     StoreConfig     `yaml:"store"`
	Stream    StreamConfig    `yaml:"stream"`
	Trigger   TriggerConfig   `yaml:"trigger"`
	Simulator SimulatorConfig `yaml:"simulator"`
	HTTP      HTTPConfig      `yaml:"http"`
}

// StoreConfig selects and configures the durable store for ingested messages.
type StoreConfig struct {
	Driver           string         `yaml:"driver"`
	ConnectionString string         `yaml:"connection_string"`
	BigQuery         BigQueryConfig `yaml:"bigquery"`
}

// BigQueryConfig is used when Driver is "bigquery".
type BigQueryConfig struct {
	ProjectID       string `yaml:"project_id"`
	DatasetID       string `yaml:"dataset_id"`
	TableID         string `yaml:"table_id"`
	CredentialsFile string `yaml:"credentials_file"`
}

// StreamConfig describes the event stream both components talk to.
//
// ConnectionString is interpreted per transport: the GCP project for
// Pub/Sub, a comma separated broker list for Kafka and the AWS region for SQS.
// Name is the topic (Pub/Sub, Kafka) or queue URL (SQS).
type StreamConfig struct {
	Transport        string `yaml:"transport"`
	ConnectionString string `yaml:"connection_string"`
	Name             string `yaml:"name"`
	SubscriptionID   string `yaml:"subscription_id"`
}

// TriggerConfig controls how consumed messages are grouped into batches.
type TriggerConfig struct {
	BatchSize      int           `yaml:"batch_size"`
	FlushTimeout   time.Duration `yaml:"flush_timeout"`
	NumWorkers     int           `yaml:"num_workers"`
	HandlerTimeout time.Duration `yaml:"handler_timeout"`
}

// SimulatorConfig bounds the load simulator.
type SimulatorConfig struct {
	DefaultCount      int `yaml:"default_count"`
	MaxCount          int `yaml:"max_count"`
	MaxEventsPerBatch int `yaml:"max_events_per_batch"`
}

type HTTPConfig struct {
	Addr string `yaml:"addr"`
}

// Default returns a configuration with every optional value filled in.
func Default() *AppConfig {
	return &AppConfig{
		LogLevel:  "info",
		LogFormat: "console",
		Store: StoreConfig{
			Driver: StoreDriverPostgres,
		},
		Stream: StreamConfig{
			Transport: TransportPubSub,
		},
		Trigger: TriggerConfig{
			BatchSize:      100,
			FlushTimeout:   time.Second,
			NumWorkers:     1,
			HandlerTimeout: 30 * time.Second,
		},
		Simulator: SimulatorConfig{
			DefaultCount:      1000,
			MaxCount:          10000,
			MaxEventsPerBatch: 250,
		},
		HTTP: HTTPConfig{
			Addr: ":8080",
		},
	}
}

// Load builds the configuration from defaults, an optional YAML file and
// finally the environment, each layer overriding the previous one.
func Load(configPath string) (*AppConfig, error) {
	cfg := Default()
	if configPath != "" {
		data, err := os.ReadFile(configPath)
		if err != nil {
			return nil, fmt.Errorf("failed to read config file '%s': %w", configPath, err)
		}
		if err := yaml.Unmarshal(data, cfg); err != nil {
			return nil, fmt.Errorf("failed to unmarshal YAML from '%s': %w", configPath, err)
		}
	}
	if err := cfg.ApplyEnv(os.LookupEnv); err != nil {
		return nil, err
	}
	return cfg, nil
}

// ApplyEnv overlays values found through lookup onto the configuration.
// Malformed numeric or duration values are reported rather than ignored.
func (c *AppConfig) ApplyEnv(lookup func(string) (string, bool)) error {
	str := func(key string, dst *string) {
		if v, ok := lookup(key); ok && strings.TrimSpace(v) != "" {
			*dst = strings.TrimSpace(v)
		}
	}
	var firstErr error
	num := func(key string, dst *int) {
		v, ok := lookup(key)
		if !ok || v == "" {
			return
		}
		n, err := strconv.Atoi(v)
		if err != nil {
			if firstErr == nil {
				firstErr = fmt.Errorf("invalid integer for %s: %w", key, err)
			}
			return
		}
		*dst = n
	}
	dur := func(key string, dst *time.Duration) {
		v, ok := lookup(key)
		if !ok || v == "" {
			return
		}
		d, err := time.ParseDuration(v)
		if err != nil {
			if firstErr == nil {
				firstErr = fmt.Errorf("invalid duration for %s: %w", key, err)
			}
			return
		}
		*dst = d
	}

	str("LOG_LEVEL", &c.LogLevel)
	str("LOG_FORMAT", &c.LogFormat)

	str("STORE_DRIVER", &c.Store.Driver)
	str("SQL_CONNECTION_STRING", &c.Store.ConnectionString)
	str("GCP_PROJECT_ID", &c.Store.BigQuery.ProjectID)
	str("BQ_DATASET_ID", &c.Store.BigQuery.DatasetID)
	str("BQ_TABLE_ID", &c.Store.BigQuery.TableID)
	str("GCP_BQ_CREDENTIALS_FILE", &c.Store.BigQuery.CredentialsFile)

	str("STREAM_TRANSPORT", &c.Stream.Transport)
	str("EVENTHUB_CONNECTION_STRING", &c.Stream.ConnectionString)
	str("EVENTHUB_NAME", &c.Stream.Name)
	str("PUBSUB_SUBSCRIPTION_ID", &c.Stream.SubscriptionID)

	num("TRIGGER_BATCH_SIZE", &c.Trigger.BatchSize)
	dur("TRIGGER_FLUSH_TIMEOUT", &c.Trigger.FlushTimeout)
	num("TRIGGER_WORKERS", &c.Trigger.NumWorkers)
	dur("TRIGGER_HANDLER_TIMEOUT", &c.Trigger.HandlerTimeout)

	num("SIMULATOR_DEFAULT_COUNT", &c.Simulator.DefaultCount)
	num("SIMULATOR_MAX_COUNT", &c.Simulator.MaxCount)
	num("SIMULATOR_MAX_EVENTS_PER_BATCH", &c.Simulator.MaxEventsPerBatch)

	str("HTTP_ADDR", &c.HTTP.Addr)
	return firstErr
}

// ValidateIngest checks everything the ingestion path needs before any
// message is read.
func (c *AppConfig) ValidateIngest() error {
	switch c.Store.Driver {
	case StoreDriverPostgres:
		if c.Store.ConnectionString == "" {
			return Missing("SQL_CONNECTION_STRING", "SQL connection string")
		}
	case StoreDriverBigQuery:
		bq := c.Store.BigQuery
		if bq.ProjectID == "" {
			return Missing("GCP_PROJECT_ID", "BigQuery project")
		}
		if bq.DatasetID == "" {
			return Missing("BQ_DATASET_ID", "BigQuery dataset")
		}
		if bq.TableID == "" {
			return Missing("BQ_TABLE_ID", "BigQuery table")
		}
	default:
		return fmt.Errorf("unknown store driver %q", c.Store.Driver)
	}
	// Only Pub/Sub has a consumer; Kafka and SQS are publish-only.
	if c.Stream.Transport != TransportPubSub {
		return fmt.Errorf("ingestion requires the %s transport, got %q", TransportPubSub, c.Stream.Transport)
	}
	if c.Stream.ConnectionString == "" {
		return Missing("EVENTHUB_CONNECTION_STRING", "Event Hub connection string")
	}
	if c.Stream.SubscriptionID == "" {
		return Missing("PUBSUB_SUBSCRIPTION_ID", "Pub/Sub subscription")
	}
	return nil
}

// ValidateSimulator checks the settings the simulator needs to publish.
func (c *AppConfig) ValidateSimulator() error {
	return c.Stream.Validate()
}

// Validate reports the first missing stream setting.
func (s StreamConfig) Validate() error {
	if s.ConnectionString == "" {
		return Missing("EVENTHUB_CONNECTION_STRING", "Event Hub connection string")
	}
	if s.Name == "" {
		return Missing("EVENTHUB_NAME", "Event Hub name")
	}
	switch s.Transport {
	case TransportPubSub, TransportKafka, TransportSQS:
		return nil
	default:
		return fmt.Errorf("unknown stream transport %q", s.Transport)
	}
}
