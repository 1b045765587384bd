package bqstore

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"cloud.google.com/go/bigquery"
	"github.com/illmade-knight/eventhub-processor/pkg/config"
	"github.com/illmade-knight/eventhub-processor/pkg/ingest"
	"github.com/illmade-knight/eventhub-processor/pkg/types"
	"github.com/rs/zerolog"
)

// ====================================================================================
// This file contains the BigQuery backed ingest.Store. Every ingested message
// becomes one streamed ProcessedRecord row.
// ====================================================================================

// RowInserter is the part of *bigquery.Inserter the store uses.
type RowInserter interface {
	Put(ctx context.Context, src interface{}) error
}

// BigQueryStore streams ProcessedRecords into one table.
type BigQueryStore struct {
	inserter    RowInserter
	destination string
	logger      zerolog.Logger
}

// NewBigQueryStore binds the store to cfg's table, creating it from the
// ProcessedRecord schema when it does not exist yet.
func NewBigQueryStore(ctx context.Context, client *bigquery.Client, cfg *config.BigQueryConfig, logger zerolog.Logger) (*BigQueryStore, error) {
	if client == nil {
		return nil, errors.New("bigquery client cannot be nil")
	}
	if err := validate(cfg); err != nil {
		return nil, err
	}

	destination := fmt.Sprintf("%s.%s.%s", client.Project(), cfg.DatasetID, cfg.TableID)
	logger = logger.With().Str("component", "BigQueryStore").Str("destination", destination).Logger()

	table := client.Dataset(cfg.DatasetID).Table(cfg.TableID)
	if err := ensureTable(ctx, table, logger); err != nil {
		return nil, err
	}
	return NewBigQueryStoreWithInserter(table.Inserter(), destination, logger), nil
}

// NewBigQueryStoreWithInserter wraps an existing inserter, e.g. a test double.
func NewBigQueryStoreWithInserter(inserter RowInserter, destination string, logger zerolog.Logger) *BigQueryStore {
	return &BigQueryStore{inserter: inserter, destination: destination, logger: logger}
}

func validate(cfg *config.BigQueryConfig) error {
	switch {
	case cfg == nil || cfg.ProjectID == "":
		return config.Missing("GCP_PROJECT_ID", "BigQuery project")
	case cfg.DatasetID == "":
		return config.Missing("BQ_DATASET_ID", "BigQuery dataset")
	case cfg.TableID == "":
		return config.Missing("BQ_TABLE_ID", "BigQuery table")
	}
	return nil
}

func ensureTable(ctx context.Context, table *bigquery.Table, logger zerolog.Logger) error {
	_, err := table.Metadata(ctx)
	if err == nil {
		logger.Info().Msg("Successfully connected to existing BigQuery table.")
		return nil
	}
	if !strings.Contains(err.Error(), "notFound") {
		return fmt.Errorf("failed to get BigQuery table metadata: %w", err)
	}

	logger.Warn().Msg("BigQuery table not found. Attempting to create with inferred schema.")
	schema, err := bigquery.InferSchema(types.ProcessedRecord{})
	if err != nil {
		return fmt.Errorf("failed to infer schema for ProcessedRecord: %w", err)
	}
	meta := &bigquery.TableMetadata{
		Schema: schema,
		TimePartitioning: &bigquery.TimePartitioning{
			Type:  bigquery.DayPartitioningType,
			Field: "ProcessedTimestamp",
		},
	}
	if err := table.Create(ctx, meta); err != nil {
		return fmt.Errorf("failed to create BigQuery table %s.%s: %w", table.DatasetID, table.TableID, err)
	}
	logger.Info().Msg("BigQuery table created successfully.")
	return nil
}

// Open returns a session over the shared inserter. Streaming inserts need
// no per-batch connection.
func (s *BigQueryStore) Open(_ context.Context) (ingest.Session, error) {
	return &session{store: s}, nil
}

func (s *BigQueryStore) Destination() string { return s.destination }

// DestinationSetting names the setting the destination is read from.
func (s *BigQueryStore) DestinationSetting() (field, description string) {
	return "BQ_TABLE_ID", "BigQuery table"
}

type session struct {
	store *BigQueryStore
}

func (s *session) Insert(ctx context.Context, record *types.ProcessedRecord) error {
	err := s.store.inserter.Put(ctx, record)
	if err == nil {
		return nil
	}
	var multiErr bigquery.PutMultiError
	if errors.As(err, &multiErr) {
		for _, rowErr := range multiErr {
			s.store.logger.Error().Int("row_index", rowErr.RowIndex).
				Msgf("BigQuery insert error for row: %v", rowErr.Errors)
		}
	}
	return fmt.Errorf("bigquery Inserter.Put failed: %w", err)
}

func (s *session) Close(_ context.Context) error { return nil }
