// Package postgres implements [github.com/notesync/notesync/pkg/store.Store]
// with GORM.
//
// PostgreSQL is the production backend. The same code runs on SQLite through
// [NewSQLiteStore], which is what local development and the test suites use.
//
// # Transactions
//
// Every [store.Tx] is bound to one *gorm.DB transaction. On PostgreSQL a
// transaction started with [store.WithSnapshot] runs at REPEATABLE READ so the
// entity reads of a pull observe a single snapshot; SQLite transactions are
// serializable already.
//
// Outside snapshot transactions client rows are locked FOR UPDATE when they
// are read, which serializes concurrent pushes from one client. Snapshot
// transactions take no explicit locks, so pulls never wait on a push. A
// snapshot that loses a write race fails with SQLSTATE 40001; Transaction
// reports that, and deadlocks, as [store.ErrConflict].
//
// # Schema
//
// [PostgresStore.Migrate] runs AutoMigrate over [models.All]. The Block.Order
// field is stored as block_order because ORDER is reserved in SQL.
package postgres

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5/pgconn"
	"github.com/notesync/notesync/pkg/logger"
	"github.com/notesync/notesync/pkg/models"
	"github.com/notesync/notesync/pkg/store"
	"gorm.io/driver/postgres"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	gormlogger "gorm.io/gorm/logger"
)

// PostgresStore implements the Store interface using GORM.
type PostgresStore struct {
	db      *gorm.DB
	dialect string
}

var _ store.Store = (*PostgresStore)(nil)

// NewPostgresStore connects to PostgreSQL. GORM warnings and slow queries go
// to log.
func NewPostgresStore(dsn string, log logger.Logger) (*PostgresStore, error) {
	s, err := New(postgres.Open(dsn), log)
	if err != nil {
		return nil, err
	}
	sqlDB, err := s.db.DB()
	if err != nil {
		return nil, err
	}
	sqlDB.SetMaxOpenConns(25)
	sqlDB.SetMaxIdleConns(5)
	sqlDB.SetConnMaxLifetime(30 * time.Minute)
	return s, nil
}

// NewSQLiteStore opens a SQLite database. dsn is passed to the driver
// unchanged, e.g. "notesync.db" or "file:test?mode=memory&cache=shared".
func NewSQLiteStore(dsn string, log logger.Logger) (*PostgresStore, error) {
	s, err := New(sqlite.Open(dsn), log)
	if err != nil {
		return nil, err
	}
	sqlDB, err := s.db.DB()
	if err != nil {
		return nil, err
	}
	// SQLite allows a single writer; one connection avoids "database is locked".
	sqlDB.SetMaxOpenConns(1)
	return s, nil
}

// New opens a store over any GORM dialector. A nil log discards GORM output.
func New(dialector gorm.Dialector, log logger.Logger) (*PostgresStore, error) {
	var gl gormlogger.Interface = gormlogger.Discard
	if log != nil {
		gl = newGormLogger(log)
	}
	db, err := gorm.Open(dialector, &gorm.Config{Logger: gl})
	if err != nil {
		return nil, fmt.Errorf("failed to connect to database: %w", err)
	}
	return &PostgresStore{db: db, dialect: dialector.Name()}, nil
}

// getDB returns the database connection
func (s *PostgresStore) getDB() *gorm.DB {
	return s.db
}

// Migrate creates or updates all tables.
func (s *PostgresStore) Migrate(ctx context.Context) error {
	return s.getDB().WithContext(ctx).AutoMigrate(models.All()...)
}

// Close closes the database connection
func (s *PostgresStore) Close() error {
	sqlDB, err := s.db.DB()
	if err != nil {
		return err
	}
	return sqlDB.Close()
}

// Transaction runs fn inside a database transaction.
func (s *PostgresStore) Transaction(ctx context.Context, fn func(tx store.Tx) error, opts ...store.TxOption) error {
	o := store.ApplyTxOptions(opts...)

	var txOpts []*sql.TxOptions
	if o.Snapshot && s.dialect == "postgres" {
		txOpts = append(txOpts, &sql.TxOptions{Isolation: sql.LevelRepeatableRead})
	}

	err := s.getDB().WithContext(ctx).Transaction(func(db *gorm.DB) error {
		return fn(&gormTx{db: db, lockRows: s.dialect == "postgres" && !o.Snapshot})
	}, txOpts...)
	if isConflict(err) {
		return fmt.Errorf("%w: %w", store.ErrConflict, err)
	}
	return err
}

// isConflict reports serialization failures and deadlocks.
func isConflict(err error) bool {
	var pgErr *pgconn.PgError
	if !errors.As(err, &pgErr) {
		return false
	}
	return pgErr.Code == "40001" || pgErr.Code == "40P01"
}
