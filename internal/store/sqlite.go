package store

import (
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strings"

	_ "embed"

	_ "github.com/mattn/go-sqlite3"
)

//go:embed migrations_sqlite.sql
var sqliteMigrations string

// SQLiteStore keeps tickets, dedup keys and the outbox in one SQLite file.
type SQLiteStore struct {
	sqlStore
}

var _ Store = (*SQLiteStore)(nil)

// NewSQLiteStore opens (and migrates) the database at the configured path,
// creating its parent directory. Foreign keys are switched on unless the
// DSN already says otherwise.
func NewSQLiteStore(opts ...Option) (*SQLiteStore, error) {
	var cfg Opts
	for _, opt := range opts {
		opt(&cfg)
	}
	if cfg.DSN == "" {
		return nil, ErrDSNNotSet
	}

	path := strings.TrimPrefix(strings.SplitN(cfg.DSN, "?", 2)[0], "file:")
	if dir := filepath.Dir(path); dir != "." {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return nil, fmt.Errorf("failed to create database directory %s: %w", dir, err)
		}
	}

	db, err := openMigrated("sqlite3", withForeignKeys(cfg.DSN), sqliteMigrations, func(p pool) {
		// one writer at a time
		p.SetMaxOpenConns(1)
	})
	if err != nil {
		return nil, err
	}
	slog.Debug("NewSQLiteStore: ready", "path", path)
	return &SQLiteStore{sqlStore{db: db, driver: "sqlite3", name: "SQLiteStore"}}, nil
}

func withForeignKeys(dsn string) string {
	if strings.Contains(dsn, "_foreign_keys") {
		return dsn
	}
	sep := "?"
	if strings.Contains(dsn, "?") {
		sep = "&"
	}
	return dsn + sep + "_foreign_keys=on"
}
