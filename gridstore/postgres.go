// Copyright 2025 Toly Pochkin
// SPDX-License-Identifier: Apache-2.0

package gridstore

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

// PostgresStore keeps grid rows in a PostgreSQL table.
// Unquoted identifiers fold to lower case, so the same column names as SQLite are used.
type PostgresStore struct {
	pool   *pgxpool.Pool
	logger *slog.Logger
	owned  bool
}

// OpenPostgres connects to databaseURL and initializes the grid table.
// The returned store owns the pool and closes it on Close.
func OpenPostgres(ctx context.Context, databaseURL string, logger *slog.Logger) (*PostgresStore, error) {
	poolConfig, err := pgxpool.ParseConfig(databaseURL)
	if err != nil {
		return nil, fmt.Errorf("failed to parse database URL: %w", err)
	}

	// One interactive session drives this store
	poolConfig.MaxConns = 4
	poolConfig.MinConns = 1
	poolConfig.MaxConnLifetime = time.Hour
	poolConfig.MaxConnIdleTime = 30 * time.Minute

	pool, err := pgxpool.NewWithConfig(ctx, poolConfig)
	if err != nil {
		return nil, classifyPostgresError(fmt.Errorf("failed to create pool: %w", err))
	}
	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, classifyPostgresError(fmt.Errorf("failed to ping database: %w", err))
	}

	store, err := NewPostgresStore(ctx, pool, logger)
	if err != nil {
		pool.Close()
		return nil, err
	}
	store.owned = true
	return store, nil
}

// NewPostgresStore uses an existing pool and initializes the grid table.
// The caller keeps ownership of the pool.
func NewPostgresStore(ctx context.Context, pool *pgxpool.Pool, logger *slog.Logger) (*PostgresStore, error) {
	if logger == nil {
		logger = slog.Default()
	}
	s := &PostgresStore{pool: pool, logger: logger}
	if err := s.initializeSchema(ctx); err != nil {
		return nil, fmt.Errorf("failed to initialize schema: %w", err)
	}
	return s, nil
}

func (s *PostgresStore) initializeSchema(ctx context.Context) error {
	createTable := `CREATE TABLE IF NOT EXISTS ` + TableName + ` (
		Id          BIGSERIAL PRIMARY KEY,
		TITLE       TEXT,
		TYPE        TEXT,
		VALUE       DOUBLE PRECISION,
		ImageSource TEXT,
		Deleteable  INTEGER
	)`
	if _, err := s.pool.Exec(ctx, createTable); err != nil {
		return classifyPostgresError(fmt.Errorf("failed to create grid table: %w", err))
	}

	info, err := readPostgresTableInfo(ctx, s.pool, TableName)
	if err != nil {
		return err
	}
	return verifyTableInfo(info)
}

// readPostgresTableInfo reads column names and primary key membership from information_schema
func readPostgresTableInfo(ctx context.Context, pool *pgxpool.Pool, tableName string) (*TableInfo, error) {
	rows, err := pool.Query(ctx, `
		SELECT c.column_name,
		       EXISTS (
		           SELECT 1
		           FROM information_schema.table_constraints tc
		           JOIN information_schema.key_column_usage kcu
		             ON kcu.constraint_schema = tc.constraint_schema
		            AND kcu.constraint_name = tc.constraint_name
		            AND kcu.table_name = tc.table_name
		           WHERE tc.constraint_type = 'PRIMARY KEY'
		             AND tc.table_schema = c.table_schema
		             AND tc.table_name = c.table_name
		             AND kcu.column_name = c.column_name
		       ) AS is_pk
		FROM information_schema.columns c
		WHERE c.table_schema = current_schema() AND c.table_name = $1
		ORDER BY c.ordinal_position`, strings.ToLower(tableName))
	if err != nil {
		return nil, classifyPostgresError(fmt.Errorf("failed to read table columns: %w", err))
	}
	columns, err := pgx.CollectRows(rows, func(row pgx.CollectableRow) (ColumnInfo, error) {
		var col ColumnInfo
		err := row.Scan(&col.Name, &col.IsPrimaryKey)
		return col, err
	})
	if err != nil {
		return nil, classifyPostgresError(fmt.Errorf("failed to collect table columns: %w", err))
	}

	info := &TableInfo{Table: tableName, Columns: columns}
	pkCount := 0
	for i := range info.Columns {
		if info.Columns[i].IsPrimaryKey {
			info.PrimaryKey = &info.Columns[i]
			pkCount++
		}
	}
	// A composite key does not identify rows by Id alone
	if pkCount > 1 {
		info.PrimaryKey = nil
	}
	return info, nil
}

// LoadAll returns every row ordered by identifier
func (s *PostgresStore) LoadAll(ctx context.Context) ([]Record, error) {
	return s.Find(ctx, nil)
}

// Find returns rows matching filter ordered by identifier
func (s *PostgresStore) Find(ctx context.Context, filter Filter) ([]Record, error) {
	query, args, err := selectSQL(filter, postgresPlaceholder)
	if err != nil {
		return nil, err
	}

	rows, err := s.pool.Query(ctx, query, args...)
	if err != nil {
		return nil, classifyPostgresError(fmt.Errorf("failed to query rows: %w", err))
	}
	records, err := pgx.CollectRows(rows, func(row pgx.CollectableRow) (Record, error) {
		values, err := row.Values()
		if err != nil {
			return Record{}, err
		}
		return recordFromValues(values)
	})
	if err != nil {
		return nil, classifyPostgresError(fmt.Errorf("failed to read rows: %w", err))
	}
	return records, nil
}

// Insert stores rec and returns it with the identifier assigned by the sequence
func (s *PostgresStore) Insert(ctx context.Context, rec Record) (Record, error) {
	query, args := insertSQL(&rec, postgresPlaceholder)
	if err := s.pool.QueryRow(ctx, query+" RETURNING "+ColID, args...).Scan(&rec.ID); err != nil {
		return rec, classifyPostgresError(fmt.Errorf("failed to insert row: %w", err))
	}
	s.logger.Debug("Inserted grid row", "record_id", rec.ID, "title", rec.Title)
	return rec, nil
}

// Update overwrites the mutable columns of the row with rec.ID
func (s *PostgresStore) Update(ctx context.Context, rec Record) error {
	query, args := updateSQL(&rec, postgresPlaceholder)
	tag, err := s.pool.Exec(ctx, query, args...)
	if err != nil {
		return classifyPostgresError(fmt.Errorf("failed to update row %d: %w", rec.ID, err))
	}
	if tag.RowsAffected() == 0 {
		s.logger.Debug("Update matched no row", "record_id", rec.ID)
	}
	return nil
}

// Delete removes the row with id
func (s *PostgresStore) Delete(ctx context.Context, id int64) error {
	if _, err := s.pool.Exec(ctx, deleteSQL(postgresPlaceholder), id); err != nil {
		return classifyPostgresError(fmt.Errorf("failed to delete row %d: %w", id, err))
	}
	return nil
}

// Count returns the number of stored rows
func (s *PostgresStore) Count(ctx context.Context) (int, error) {
	var count int64
	if err := s.pool.QueryRow(ctx, countSQL()).Scan(&count); err != nil {
		return 0, classifyPostgresError(fmt.Errorf("failed to count rows: %w", err))
	}
	return int(count), nil
}

// Close releases the pool when the store created it
func (s *PostgresStore) Close() error {
	if s.owned {
		s.pool.Close()
	}
	return nil
}
