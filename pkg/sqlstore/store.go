package sqlstore

import (
	"context"
	"fmt"

	"github.com/illmade-knight/eventhub-processor/pkg/config"
	"github.com/illmade-knight/eventhub-processor/pkg/ingest"
	"github.com/illmade-knight/eventhub-processor/pkg/types"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/rs/zerolog"
)

// ====================================================================================
// This file contains the Postgres backed ingest.Store. Each batch gets its own
// connection; each message is one parameterised INSERT into ProcessedData.
// ====================================================================================

const (
	insertRecordSQL = `INSERT INTO ProcessedData (MessageContent, ProcessedTimestamp) VALUES ($1, $2)`

	createTableSQL = `CREATE TABLE IF NOT EXISTS ProcessedData (
	Id                 BIGSERIAL PRIMARY KEY,
	MessageContent     TEXT        NOT NULL,
	ProcessedTimestamp TIMESTAMPTZ NOT NULL
)`
)

// Conn is the part of *pgx.Conn the store uses.
type Conn interface {
	Exec(ctx context.Context, sql string, arguments ...any) (pgconn.CommandTag, error)
	Close(ctx context.Context) error
}

// Connector opens a connection for a connection string.
type Connector func(ctx context.Context, connString string) (Conn, error)

func pgxConnect(ctx context.Context, connString string) (Conn, error) {
	return pgx.Connect(ctx, connString)
}

// Option customises a PostgresStore.
type Option func(*PostgresStore)

// WithConnector replaces pgx.Connect, e.g. with a test double.
func WithConnector(c Connector) Option {
	return func(s *PostgresStore) { s.connect = c }
}

// PostgresStore writes ProcessedRecords to the ProcessedData table.
type PostgresStore struct {
	connString  string
	destination string
	connect     Connector
	logger      zerolog.Logger
}

// NewPostgresStore parses connString up front so a malformed value fails at
// start-up rather than on the first batch.
func NewPostgresStore(connString string, logger zerolog.Logger, opts ...Option) (*PostgresStore, error) {
	if connString == "" {
		return nil, config.Missing("SQL_CONNECTION_STRING", "SQL connection string")
	}
	pgCfg, err := pgx.ParseConfig(connString)
	if err != nil {
		return nil, fmt.Errorf("invalid SQL connection string: %w", err)
	}
	destination := fmt.Sprintf("postgres://%s:%d/%s", pgCfg.Host, pgCfg.Port, pgCfg.Database)

	s := &PostgresStore{
		connString:  connString,
		destination: destination,
		connect:     pgxConnect,
		logger:      logger.With().Str("component", "PostgresStore").Str("destination", destination).Logger(),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s, nil
}

// EnsureSchema creates the ProcessedData table if it is missing.
func (s *PostgresStore) EnsureSchema(ctx context.Context) error {
	conn, err := s.connect(ctx, s.connString)
	if err != nil {
		return fmt.Errorf("failed to connect to %s: %w", s.destination, err)
	}
	defer conn.Close(context.WithoutCancel(ctx))

	if _, err := conn.Exec(ctx, createTableSQL); err != nil {
		return fmt.Errorf("failed to create ProcessedData table: %w", err)
	}
	s.logger.Info().Msg("ProcessedData table is ready.")
	return nil
}

// Open connects to Postgres for one batch.
func (s *PostgresStore) Open(ctx context.Context) (ingest.Session, error) {
	conn, err := s.connect(ctx, s.connString)
	if err != nil {
		return nil, fmt.Errorf("failed to connect to %s: %w", s.destination, err)
	}
	return &session{conn: conn}, nil
}

// DestinationSetting names the setting the destination is read from.
func (s *PostgresStore) DestinationSetting() (field, description string) {
	return "SQL_CONNECTION_STRING", "SQL connection string"
}

// Destination is host, port and database without credentials.
func (s *PostgresStore) Destination() string { return s.destination }

type session struct {
	conn Conn
}

func (s *session) Insert(ctx context.Context, record *types.ProcessedRecord) error {
	if _, err := s.conn.Exec(ctx, insertRecordSQL, record.MessageContent, record.ProcessedTimestamp); err != nil {
		return fmt.Errorf("insert into ProcessedData: %w", err)
	}
	return nil
}

func (s *session) Close(ctx context.Context) error {
	return s.conn.Close(ctx)
}
