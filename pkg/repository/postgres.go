package repository

import (
	"context"
	"database/sql"
	"fmt"
	"strings"

	"github.com/ainblockchain/papers-with-claudecode-sub002/pkg/types"
	_ "github.com/lib/pq"
	"github.com/pressly/goose/v3"
	"github.com/rs/zerolog/log"

	// Import migrations to register them with goose
	_ "github.com/ainblockchain/papers-with-claudecode-sub002/pkg/repository/backend_postgres_migrations"
)

const defaultPostgresDatabase = "papers"

// PostgresBackend owns the Postgres connection pool and the progress schema
type PostgresBackend struct {
	db *sql.DB
}

// NewPostgresBackend connects using the gateway's postgres config
func NewPostgresBackend(cfg types.PostgresConfig) (*PostgresBackend, error) {
	cfg = withPostgresDefaults(cfg)

	backend, err := NewPostgresBackendFromDSN(postgresDSN(cfg))
	if err != nil {
		return nil, err
	}

	backend.db.SetMaxOpenConns(cfg.MaxOpenConns)
	backend.db.SetMaxIdleConns(cfg.MaxIdleConns)
	if cfg.ConnMaxLifetime > 0 {
		backend.db.SetConnMaxLifetime(cfg.ConnMaxLifetime)
	}

	log.Info().
		Str("host", cfg.Host).
		Int("port", cfg.Port).
		Str("database", cfg.Database).
		Msg("connected to postgres")

	return backend, nil
}

// NewPostgresBackendFromDSN connects with a lib/pq connection string or URL
func NewPostgresBackendFromDSN(dsn string) (*PostgresBackend, error) {
	db, err := sql.Open("postgres", dsn)
	if err != nil {
		return nil, fmt.Errorf("failed to open postgres connection: %w", err)
	}

	if err := db.PingContext(context.Background()); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to ping postgres: %w", err)
	}

	return &PostgresBackend{db: db}, nil
}

func withPostgresDefaults(cfg types.PostgresConfig) types.PostgresConfig {
	if cfg.Host == "" {
		cfg.Host = "localhost"
	}
	if cfg.Port == 0 {
		cfg.Port = 5432
	}
	if cfg.Database == "" {
		cfg.Database = defaultPostgresDatabase
	}
	if cfg.SSLMode == "" {
		cfg.SSLMode = "disable"
	}
	if cfg.MaxOpenConns == 0 {
		cfg.MaxOpenConns = 25
	}
	if cfg.MaxIdleConns == 0 {
		cfg.MaxIdleConns = 5
	}
	return cfg
}

// postgresDSN renders a keyword/value connection string. Values are quoted so
// passwords with spaces or quotes survive; empty user and password are omitted.
func postgresDSN(cfg types.PostgresConfig) string {
	parts := []string{
		"host=" + quoteDSNValue(cfg.Host),
		fmt.Sprintf("port=%d", cfg.Port),
		"dbname=" + quoteDSNValue(cfg.Database),
		"sslmode=" + quoteDSNValue(cfg.SSLMode),
	}
	if cfg.User != "" {
		parts = append(parts, "user="+quoteDSNValue(cfg.User))
	}
	if cfg.Password != "" {
		parts = append(parts, "password="+quoteDSNValue(cfg.Password))
	}
	return strings.Join(parts, " ")
}

func quoteDSNValue(v string) string {
	v = strings.ReplaceAll(v, `\`, `\\`)
	v = strings.ReplaceAll(v, `'`, `\'`)
	return "'" + v + "'"
}

// DB returns the underlying database connection
func (b *PostgresBackend) DB() *sql.DB {
	return b.db
}

// Close closes the database connection
func (b *PostgresBackend) Close() error {
	return b.db.Close()
}

// Ping checks the database connection
func (b *PostgresBackend) Ping(ctx context.Context) error {
	return b.db.PingContext(ctx)
}

// RunMigrations brings the schema up to the latest registered goose migration
func (b *PostgresBackend) RunMigrations() error {
	if err := goose.SetDialect("postgres"); err != nil {
		return fmt.Errorf("failed to set goose dialect: %w", err)
	}

	// goose uses the migrations registered from init()
	if err := goose.Up(b.db, "."); err != nil {
		return fmt.Errorf("failed to run migrations: %w", err)
	}

	version, err := goose.GetDBVersion(b.db)
	if err != nil {
		return fmt.Errorf("failed to get migration version: %w", err)
	}

	log.Info().Int64("version", version).Msg("migrations complete")
	return nil
}
