// Copyright 2025 Toly Pochkin
// SPDX-License-Identifier: Apache-2.0

package gridstore

import (
	"database/sql"
	"errors"
	"fmt"
	"net"
	"strings"

	"github.com/jackc/pgx/v5/pgconn"
	"github.com/mattn/go-sqlite3"
)

var (
	// ErrUnavailable marks storage that cannot be reached or written (locked, I/O, connection loss)
	ErrUnavailable = errors.New("storage_unavailable")
	// ErrUnknownColumn is returned for filters naming a column outside Columns
	ErrUnknownColumn = errors.New("unknown_column")
	// ErrSchemaMismatch is returned when an existing table lacks a mapped column
	ErrSchemaMismatch = errors.New("schema_mismatch")
	// ErrInvalidValue is returned when a textual filter value does not parse for its column
	ErrInvalidValue = errors.New("invalid_value")
)

// IsUnavailable reports whether err was caused by unavailable storage
func IsUnavailable(err error) bool {
	return errors.Is(err, ErrUnavailable)
}

// classifySQLiteError wraps SQLite errors that mean the database cannot be used right now
func classifySQLiteError(err error) error {
	if err == nil || IsUnavailable(err) {
		return err
	}
	if errors.Is(err, sql.ErrConnDone) {
		return fmt.Errorf("%w: %w", ErrUnavailable, err)
	}
	var sqliteErr sqlite3.Error
	if errors.As(err, &sqliteErr) {
		switch sqliteErr.Code {
		case sqlite3.ErrBusy,
			sqlite3.ErrLocked,
			sqlite3.ErrIoErr,
			sqlite3.ErrCantOpen,
			sqlite3.ErrFull,
			sqlite3.ErrReadonly,
			sqlite3.ErrCorrupt,
			sqlite3.ErrNotADB:
			return fmt.Errorf("%w: %w", ErrUnavailable, err)
		}
		return err
	}
	// database/sql reports a closed handle with a plain error
	if strings.Contains(err.Error(), "database is closed") {
		return fmt.Errorf("%w: %w", ErrUnavailable, err)
	}
	return err
}

// classifyPostgresError wraps connection-level PostgreSQL failures
func classifyPostgresError(err error) error {
	if err == nil || IsUnavailable(err) {
		return err
	}
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) {
		code := pgErr.SQLState()
		switch {
		case strings.HasPrefix(code, "08"), // connection_exception
			strings.HasPrefix(code, "53"), // insufficient_resources
			code == "57P01",               // admin_shutdown
			code == "57P02",               // crash_shutdown
			code == "57P03":               // cannot_connect_now
			return fmt.Errorf("%w: %w", ErrUnavailable, err)
		}
		return err
	}
	var connectErr *pgconn.ConnectError
	if errors.As(err, &connectErr) || pgconn.Timeout(err) {
		return fmt.Errorf("%w: %w", ErrUnavailable, err)
	}
	var netErr net.Error
	if errors.As(err, &netErr) {
		return fmt.Errorf("%w: %w", ErrUnavailable, err)
	}
	if strings.Contains(err.Error(), "closed pool") {
		return fmt.Errorf("%w: %w", ErrUnavailable, err)
	}
	return err
}
