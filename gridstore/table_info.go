// Copyright 2025 Toly Pochkin
// SPDX-License-Identifier: Apache-2.0

package gridstore

import (
	"context"
	"database/sql"
	"fmt"
	"strings"
)

type tableInfoQueryer interface {
	QueryContext(ctx context.Context, query string, args ...any) (*sql.Rows, error)
}

// ColumnInfo holds information about a table column
type ColumnInfo struct {
	Name         string
	DeclaredType string
	IsPrimaryKey bool
	NotNull      bool
	DefaultValue *string
}

// TableInfo holds information about a table's structure
type TableInfo struct {
	Table      string
	Columns    []ColumnInfo
	PrimaryKey *ColumnInfo
}

// Has reports whether the table declares a column with the given name, ignoring case
func (t *TableInfo) Has(name string) bool {
	for _, c := range t.Columns {
		if strings.EqualFold(c.Name, name) {
			return true
		}
	}
	return false
}

// readTableInfo reads column information using PRAGMA table_info.
// A missing table yields a TableInfo with no columns.
func readTableInfo(ctx context.Context, queryer tableInfoQueryer, tableName string) (*TableInfo, error) {
	rows, err := queryer.QueryContext(ctx, fmt.Sprintf("PRAGMA table_info(%s)", tableName))
	if err != nil {
		return nil, fmt.Errorf("failed to get table info for %s: %w", tableName, err)
	}
	defer rows.Close()

	info := &TableInfo{Table: tableName}
	for rows.Next() {
		var cid int
		var name, declaredType string
		var notNull, pk int
		var defaultValue sql.NullString

		if err := rows.Scan(&cid, &name, &declaredType, &notNull, &defaultValue, &pk); err != nil {
			return nil, fmt.Errorf("failed to scan column info: %w", err)
		}

		var defaultVal *string
		if defaultValue.Valid {
			defaultVal = &defaultValue.String
		}

		info.Columns = append(info.Columns, ColumnInfo{
			Name:         name,
			DeclaredType: declaredType,
			IsPrimaryKey: pk == 1,
			NotNull:      notNull == 1,
			DefaultValue: defaultVal,
		})
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating table info: %w", err)
	}

	for i := range info.Columns {
		if info.Columns[i].IsPrimaryKey {
			info.PrimaryKey = &info.Columns[i]
			break
		}
	}
	return info, nil
}

// verifyTableInfo checks that every mapped column exists and that the identifier is the primary key
func verifyTableInfo(info *TableInfo) error {
	var missing []string
	for _, c := range Columns {
		if !info.Has(c.Name) {
			missing = append(missing, c.Name)
		}
	}
	if len(missing) > 0 {
		return fmt.Errorf("%w: table %s is missing columns %s",
			ErrSchemaMismatch, info.Table, strings.Join(missing, ", "))
	}
	if info.PrimaryKey == nil || !strings.EqualFold(info.PrimaryKey.Name, ColID) {
		return fmt.Errorf("%w: table %s must use %s as primary key", ErrSchemaMismatch, info.Table, ColID)
	}
	return nil
}
