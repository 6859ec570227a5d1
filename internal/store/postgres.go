package store

import (
	"database/sql"
	"log/slog"
	"time"

	_ "embed"

	_ "github.com/lib/pq"
)

// Connection pool limits for PostgreSQL.
const (
	PostgresMaxOpenConns    = 25
	PostgresMaxIdleConns    = 10
	PostgresConnMaxLifetime = 5 * time.Minute
)

//go:embed migrations_postgres.sql
var postgresMigrations string

// PostgresStore keeps tickets, dedup keys and the outbox in PostgreSQL so
// several ShopAssist instances can share them.
type PostgresStore struct {
	sqlStore
}

var _ Store = (*PostgresStore)(nil)

// NewPostgresStore connects to the configured DSN and applies migrations.
func NewPostgresStore(opts ...Option) (*PostgresStore, error) {
	var cfg Opts
	for _, opt := range opts {
		opt(&cfg)
	}
	if cfg.DSN == "" {
		return nil, ErrDSNNotSet
	}
	db, err := openMigrated("postgres", cfg.DSN, postgresMigrations, func(p pool) {
		p.SetMaxOpenConns(PostgresMaxOpenConns)
		p.SetMaxIdleConns(PostgresMaxIdleConns)
		p.SetConnMaxLifetime(PostgresConnMaxLifetime)
	})
	if err != nil {
		return nil, err
	}
	slog.Debug("NewPostgresStore: ready")
	return newPostgresStoreWithDB(db), nil
}

func newPostgresStoreWithDB(db *sql.DB) *PostgresStore {
	return &PostgresStore{sqlStore{db: db, driver: "postgres", name: "PostgresStore"}}
}
