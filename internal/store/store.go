package store

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/jmoiron/sqlx"
	_ "github.com/lib/pq"
	_ "github.com/mattn/go-sqlite3"
	"go.uber.org/zap"

	"ecom-agent/internal/util"
)

// Supported drivers
const (
	DriverSQLite   = "sqlite3"
	DriverPostgres = "postgres"
)

// DefaultMaxRows caps results when no limit is configured
const DefaultMaxRows = 1000

type Store struct {
	db      *sqlx.DB
	maxRows int
	logger  *zap.Logger
}

// NewStore opens a read-only connection to the data store
func NewStore(driver, dsn string, maxRows int) (*Store, error) {
	db, err := sqlx.Connect(driver, ReadOnlyDSN(driver, dsn))
	if err != nil {
		return nil, fmt.Errorf("failed to connect to database: %w", err)
	}

	db.SetMaxOpenConns(25)
	db.SetMaxIdleConns(5)
	db.SetConnMaxLifetime(5 * time.Minute)

	if err := db.Ping(); err != nil {
		return nil, fmt.Errorf("failed to ping database: %w", err)
	}

	return NewStoreFromDB(db, maxRows), nil
}

// NewStoreFromDB wraps an open connection
func NewStoreFromDB(db *sqlx.DB, maxRows int) *Store {
	if maxRows <= 0 {
		maxRows = DefaultMaxRows
	}
	return &Store{
		db:      db,
		maxRows: maxRows,
		logger:  util.GetLogger(),
	}
}

// ReadOnlyDSN opens SQLite files in read-only mode. Other drivers rely on
// read-only transactions.
func ReadOnlyDSN(driver, dsn string) string {
	if driver != DriverSQLite || strings.Contains(dsn, "mode=") || strings.Contains(dsn, ":memory:") {
		return dsn
	}
	if !strings.HasPrefix(dsn, "file:") {
		dsn = "file:" + dsn
	}
	sep := "?"
	if strings.Contains(dsn, "?") {
		sep = "&"
	}
	return dsn + sep + "mode=ro"
}

// Close closes the database connection
func (s *Store) Close() error {
	return s.db.Close()
}

// MaxRows returns the row cap
func (s *Store) MaxRows() int {
	return s.maxRows
}

// Ping checks the database connection
func (s *Store) Ping(ctx context.Context) error {
	return s.db.PingContext(ctx)
}

// Tables lists the tables present in the store
func (s *Store) Tables(ctx context.Context) ([]string, error) {
	query := "SELECT name FROM sqlite_master WHERE type = 'table' AND name NOT LIKE 'sqlite_%' ORDER BY name"
	if s.db.DriverName() == DriverPostgres {
		query = "SELECT table_name FROM information_schema.tables WHERE table_schema = 'public' ORDER BY table_name"
	}

	tables := []string{}
	if err := s.db.SelectContext(ctx, &tables, query); err != nil {
		return nil, fmt.Errorf("failed to list tables: %w", err)
	}
	return tables, nil
}
