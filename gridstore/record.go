// Copyright 2025 Toly Pochkin
// SPDX-License-Identifier: Apache-2.0

// Package gridstore provides the single-table row storage behind the recipe grid.
//
// Records live in one table keyed by an auto-assigned integer identifier. Two
// backends are provided: SQLiteStore for the local desktop database and
// PostgresStore for a shared server database. Both read and write columns
// through the static mapping table in Columns.
package gridstore

import (
	"context"
	"fmt"
	"log/slog"
)

// Record is one row of the tracked entity.
// ID is zero until the record has been persisted; storage assigns it on insert.
type Record struct {
	ID        int64   `json:"id"`
	Title     string  `json:"title"`
	Category  string  `json:"category"`
	Value     float64 `json:"value"`
	ImageRef  string  `json:"image_ref"`
	Deletable bool    `json:"deletable"`
}

// Persisted reports whether storage has assigned an identifier to the record
func (r Record) Persisted() bool {
	return r.ID > 0
}

// Store is the row store consumed by the grid session.
type Store interface {
	// LoadAll returns every row ordered by identifier
	LoadAll(ctx context.Context) ([]Record, error)
	// Find returns rows whose columns equal all values in filter, ordered by identifier
	Find(ctx context.Context, filter Filter) ([]Record, error)
	// Insert stores rec and returns it with the assigned identifier
	Insert(ctx context.Context, rec Record) (Record, error)
	// Update overwrites the mutable columns of the row with rec.ID
	Update(ctx context.Context, rec Record) error
	// Delete removes the row with id; deleting a missing row is not an error
	Delete(ctx context.Context, id int64) error
	// Count returns the number of stored rows
	Count(ctx context.Context) (int, error)
	Close() error
}

// SeedIfEmpty inserts seeds when the table holds no rows.
// Seeds keep their own Deletable flag so that built-in rows can be protected.
func SeedIfEmpty(ctx context.Context, store Store, seeds []Record, logger *slog.Logger) (int, error) {
	if len(seeds) == 0 {
		return 0, nil
	}
	if logger == nil {
		logger = slog.Default()
	}

	count, err := store.Count(ctx)
	if err != nil {
		return 0, fmt.Errorf("failed to count rows before seeding: %w", err)
	}
	if count > 0 {
		return 0, nil
	}

	for i, seed := range seeds {
		seed.ID = 0
		if _, err := store.Insert(ctx, seed); err != nil {
			return i, fmt.Errorf("failed to insert seed row %d: %w", i, err)
		}
	}
	logger.Info("Seeded empty grid table", "rows", len(seeds))
	return len(seeds), nil
}
