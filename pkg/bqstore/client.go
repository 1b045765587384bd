package bqstore

import (
	"context"
	"fmt"

	"cloud.google.com/go/bigquery"
	"github.com/illmade-knight/eventhub-processor/pkg/config"
	"github.com/rs/zerolog"
	"google.golang.org/api/option"
)

// NewProductionBigQueryClient creates a BigQuery client. Extra options (e.g.,
// an emulator endpoint) are applied after the credentials option.
func NewProductionBigQueryClient(ctx context.Context, cfg *config.BigQueryConfig, logger zerolog.Logger, extra ...option.ClientOption) (*bigquery.Client, error) {
	var opts []option.ClientOption
	if cfg.CredentialsFile != "" {
		opts = append(opts, option.WithCredentialsFile(cfg.CredentialsFile))
		logger.Info().Str("credentials_file", cfg.CredentialsFile).Msg("Using specified credentials file for BigQuery client")
	} else {
		logger.Info().Msg("Using Application Default Credentials (ADC) for BigQuery client")
	}
	opts = append(opts, extra...)

	client, err := bigquery.NewClient(ctx, cfg.ProjectID, opts...)
	if err != nil {
		logger.Error().Err(err).Str("project_id", cfg.ProjectID).Msg("Failed to create BigQuery client")
		return nil, fmt.Errorf("bigquery.NewClient: %w", err)
	}
	logger.Info().Str("project_id", cfg.ProjectID).Msg("BigQuery client created successfully.")
	return client, nil
}
