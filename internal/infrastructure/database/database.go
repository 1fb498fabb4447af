package database

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"

	_ "github.com/mattn/go-sqlite3" // registers the sqlite3 driver

	"github.com/nerrad567/jcihitachi-core/internal/infrastructure/config"
)

const (
	dirPermissions  = 0o750
	filePermissions = 0o600

	pingTimeout     = 5 * time.Second
	connMaxIdleTime = 30 * time.Minute
)

// ErrNoPath is returned by Open when database.path is empty.
var ErrNoPath = errors.New("database: path is empty")

// DB is a single-writer SQLite handle.
type DB struct {
	*sql.DB
	path string
}

// dsn builds the go-sqlite3 connection string.
func dsn(cfg config.DatabaseConfig) string {
	s := fmt.Sprintf("file:%s?_busy_timeout=%d&_foreign_keys=on",
		cfg.Path, cfg.BusyTimeout*int(time.Second/time.Millisecond))
	if cfg.WALMode {
		s += "&_journal_mode=WAL&_synchronous=NORMAL"
	}
	return s
}

// Open creates the parent directory if needed, opens the file and pings it.
func Open(cfg config.DatabaseConfig) (*DB, error) {
	if cfg.Path == "" {
		return nil, ErrNoPath
	}
	if err := os.MkdirAll(filepath.Dir(cfg.Path), dirPermissions); err != nil {
		return nil, fmt.Errorf("creating database directory: %w", err)
	}

	sqlDB, err := sql.Open("sqlite3", dsn(cfg))
	if err != nil {
		return nil, fmt.Errorf("opening database: %w", err)
	}
	sqlDB.SetMaxOpenConns(1)
	sqlDB.SetMaxIdleConns(1)
	sqlDB.SetConnMaxLifetime(time.Hour)
	sqlDB.SetConnMaxIdleTime(connMaxIdleTime)

	ctx, cancel := context.WithTimeout(context.Background(), pingTimeout)
	defer cancel()
	if err := sqlDB.PingContext(ctx); err != nil {
		sqlDB.Close() //nolint:errcheck // already failing
		return nil, fmt.Errorf("verifying database connection: %w", err)
	}

	// The file exists once the ping has run.
	_ = os.Chmod(cfg.Path, filePermissions) //nolint:errcheck // best effort

	return &DB{DB: sqlDB, path: cfg.Path}, nil
}

// Close closes the handle. Safe on a nil or already-closed DB.
func (db *DB) Close() error {
	if db == nil || db.DB == nil {
		return nil
	}
	if err := db.DB.Close(); err != nil {
		return fmt.Errorf("closing database: %w", err)
	}
	return nil
}

// Path is the database file path.
func (db *DB) Path() string { return db.path }

// HealthCheck runs a trivial query.
func (db *DB) HealthCheck(ctx context.Context) error {
	var one int
	if err := db.QueryRowContext(ctx, "SELECT 1").Scan(&one); err != nil {
		return fmt.Errorf("database health check: %w", err)
	}
	return nil
}

// InTx runs fn in a transaction, committing when fn returns nil.
func (db *DB) InTx(ctx context.Context, fn func(*sql.Tx) error) error {
	tx, err := db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("starting transaction: %w", err)
	}
	defer tx.Rollback() //nolint:errcheck // no-op after commit

	if err := fn(tx); err != nil {
		return err
	}
	if err := tx.Commit(); err != nil {
		return fmt.Errorf("committing transaction: %w", err)
	}
	return nil
}
