// Copyright 2025 Toly Pochkin
// SPDX-License-Identifier: Apache-2.0

package gridstore

import (
	"context"
	"database/sql"
	"fmt"
	"log/slog"
	"sync"

	_ "github.com/mattn/go-sqlite3"
)

// SQLiteStore keeps grid rows in a local SQLite database
type SQLiteStore struct {
	db      *sql.DB
	logger  *slog.Logger
	writeMu sync.Mutex // Serialize writes to prevent SQLite locking issues
}

// OpenSQLite opens (creating if needed) the database file at path and initializes the grid table.
// Use ":memory:" for a throwaway database.
func OpenSQLite(path string, logger *slog.Logger) (*SQLiteStore, error) {
	db, err := sql.Open("sqlite3", path+"?_journal_mode=WAL&_foreign_keys=on&_busy_timeout=5000")
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	// Single connection: a :memory: database exists per connection, and SQLite has one writer anyway
	db.SetMaxOpenConns(1)
	db.SetMaxIdleConns(1)
	db.SetConnMaxLifetime(0)

	store, err := NewSQLiteStore(db, logger)
	if err != nil {
		db.Close()
		return nil, err
	}
	return store, nil
}

// NewSQLiteStore wraps an open database and initializes the grid table
func NewSQLiteStore(db *sql.DB, logger *slog.Logger) (*SQLiteStore, error) {
	if logger == nil {
		logger = slog.Default()
	}
	s := &SQLiteStore{db: db, logger: logger}
	if err := s.initializeDatabase(context.Background()); err != nil {
		return nil, fmt.Errorf("failed to initialize database: %w", err)
	}
	return s, nil
}

// initializeDatabase creates the grid table if missing and checks an existing one.
// There is no migration: a table without the mapped columns is rejected.
func (s *SQLiteStore) initializeDatabase(ctx context.Context) error {
	if _, err := s.db.ExecContext(ctx, `PRAGMA journal_mode=WAL`); err != nil {
		return classifySQLiteError(fmt.Errorf("failed to enable WAL mode: %w", err))
	}

	createTable := `CREATE TABLE IF NOT EXISTS ` + TableName + ` (
		Id          INTEGER PRIMARY KEY AUTOINCREMENT,
		TITLE       TEXT,
		TYPE        TEXT,
		VALUE       DOUBLE,
		ImageSource TEXT,
		Deleteable  INTEGER
	)`
	if _, err := s.db.ExecContext(ctx, createTable); err != nil {
		return classifySQLiteError(fmt.Errorf("failed to create grid table: %w", err))
	}

	info, err := readTableInfo(ctx, s.db, TableName)
	if err != nil {
		return classifySQLiteError(err)
	}
	return verifyTableInfo(info)
}

// DB exposes the underlying handle for diagnostics and tests
func (s *SQLiteStore) DB() *sql.DB {
	return s.db
}

// LoadAll returns every row ordered by identifier
func (s *SQLiteStore) LoadAll(ctx context.Context) ([]Record, error) {
	return s.Find(ctx, nil)
}

// Find returns rows matching filter ordered by identifier
func (s *SQLiteStore) Find(ctx context.Context, filter Filter) ([]Record, error) {
	query, args, err := selectSQL(filter, sqlitePlaceholder)
	if err != nil {
		return nil, err
	}

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, classifySQLiteError(fmt.Errorf("failed to query rows: %w", err))
	}
	defer rows.Close()

	var records []Record
	for rows.Next() {
		values := make([]any, len(Columns))
		ptrs := make([]any, len(Columns))
		for i := range values {
			ptrs[i] = &values[i]
		}
		if err := rows.Scan(ptrs...); err != nil {
			return nil, classifySQLiteError(fmt.Errorf("failed to scan row: %w", err))
		}
		rec, err := recordFromValues(values)
		if err != nil {
			return nil, fmt.Errorf("failed to map row: %w", err)
		}
		records = append(records, rec)
	}
	if err := rows.Err(); err != nil {
		return nil, classifySQLiteError(fmt.Errorf("error iterating rows: %w", err))
	}
	return records, nil
}

// Insert stores rec and returns it with the identifier assigned by SQLite
func (s *SQLiteStore) Insert(ctx context.Context, rec Record) (Record, error) {
	s.writeMu.Lock()
	defer s.writeMu.Unlock()

	query, args := insertSQL(&rec, sqlitePlaceholder)
	res, err := s.db.ExecContext(ctx, query, args...)
	if err != nil {
		return rec, classifySQLiteError(fmt.Errorf("failed to insert row: %w", err))
	}
	id, err := res.LastInsertId()
	if err != nil {
		return rec, fmt.Errorf("failed to read inserted id: %w", err)
	}
	rec.ID = id
	s.logger.Debug("Inserted grid row", "record_id", id, "title", rec.Title)
	return rec, nil
}

// Update overwrites the mutable columns of the row with rec.ID
func (s *SQLiteStore) Update(ctx context.Context, rec Record) error {
	s.writeMu.Lock()
	defer s.writeMu.Unlock()

	query, args := updateSQL(&rec, sqlitePlaceholder)
	res, err := s.db.ExecContext(ctx, query, args...)
	if err != nil {
		return classifySQLiteError(fmt.Errorf("failed to update row %d: %w", rec.ID, err))
	}
	if n, _ := res.RowsAffected(); n == 0 {
		s.logger.Debug("Update matched no row", "record_id", rec.ID)
	}
	return nil
}

// Delete removes the row with id
func (s *SQLiteStore) Delete(ctx context.Context, id int64) error {
	s.writeMu.Lock()
	defer s.writeMu.Unlock()

	if _, err := s.db.ExecContext(ctx, deleteSQL(sqlitePlaceholder), id); err != nil {
		return classifySQLiteError(fmt.Errorf("failed to delete row %d: %w", id, err))
	}
	return nil
}

// Count returns the number of stored rows
func (s *SQLiteStore) Count(ctx context.Context) (int, error) {
	var count int
	if err := s.db.QueryRowContext(ctx, countSQL()).Scan(&count); err != nil {
		return 0, classifySQLiteError(fmt.Errorf("failed to count rows: %w", err))
	}
	return count, nil
}

// Close closes the database
func (s *SQLiteStore) Close() error {
	return s.db.Close()
}
