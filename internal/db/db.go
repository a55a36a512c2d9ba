package db

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	gormlogger "gorm.io/gorm/logger"
)

const (
	maxOpenConns             = 25
	maxIdleConns             = 5
	connMaxLifetime          = 5 * time.Minute
	defaultConnectionTimeout = 5 * time.Second
)

// DB wraps a GORM database connection
type DB struct {
	*gorm.DB
}

// Option customizes how the database connection is opened
type Option func(*options)

type options struct {
	enableWAL         bool
	connectionTimeout time.Duration
}

// WithWAL toggles SQLite write-ahead logging
func WithWAL(enabled bool) Option {
	return func(o *options) {
		o.enableWAL = enabled
	}
}

// WithConnectionTimeout bounds the initial ping
func WithConnectionTimeout(d time.Duration) Option {
	return func(o *options) {
		if d > 0 {
			o.connectionTimeout = d
		}
	}
}

// New creates a new database connection with GORM
// dbPath should be the path to the SQLite database file
// Example: "./data/simulcast.db"
func New(dbPath string, opts ...Option) (*DB, error) {
	o := options{
		enableWAL:         true,
		connectionTimeout: defaultConnectionTimeout,
	}
	for _, opt := range opts {
		opt(&o)
	}

	dsn := fmt.Sprintf("%s?_foreign_keys=on", dbPath)
	if o.enableWAL {
		dsn += "&_journal_mode=WAL"
	}

	gormDB, err := gorm.Open(sqlite.Open(dsn), &gorm.Config{
		SkipDefaultTransaction: true,
		PrepareStmt:            true,
		// Application logging goes through zerolog
		Logger: gormlogger.Default.LogMode(gormlogger.Silent),
	})
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	sqlDB, err := gormDB.DB()
	if err != nil {
		return nil, fmt.Errorf("failed to get underlying sql.DB: %w", err)
	}

	sqlDB.SetMaxOpenConns(maxOpenConns)
	sqlDB.SetMaxIdleConns(maxIdleConns)
	sqlDB.SetConnMaxLifetime(connMaxLifetime)

	ctx, cancel := context.WithTimeout(context.Background(), o.connectionTimeout)
	defer cancel()

	if err := sqlDB.PingContext(ctx); err != nil {
		return nil, fmt.Errorf("failed to ping database: %w", err)
	}

	return &DB{DB: gormDB}, nil
}

// Health checks database connectivity
func (db *DB) Health(ctx context.Context) error {
	sqlDB, err := db.DB.DB()
	if err != nil {
		return fmt.Errorf("failed to get underlying sql.DB: %w", err)
	}
	return sqlDB.PingContext(ctx)
}

// Close closes the database connection
func (db *DB) Close() error {
	sqlDB, err := db.DB.DB()
	if err != nil {
		return fmt.Errorf("failed to get underlying sql.DB: %w", err)
	}
	return sqlDB.Close()
}

// GetSQLDB returns the underlying sql.DB for migrations
func (db *DB) GetSQLDB() (*sql.DB, error) {
	return db.DB.DB()
}
