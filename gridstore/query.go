// Copyright 2025 Toly Pochkin
// SPDX-License-Identifier: Apache-2.0

package gridstore

import (
	"fmt"
	"sort"
	"strconv"
	"strings"
)

// Filter selects rows by column equality; keys are column names from Columns.
type Filter map[string]any

// placeholderFunc renders the n-th (1-based) bind parameter of a dialect
type placeholderFunc func(n int) string

func sqlitePlaceholder(int) string { return "?" }

func postgresPlaceholder(n int) string { return "$" + strconv.Itoa(n) }

func selectSQL(filter Filter, ph placeholderFunc) (string, []any, error) {
	var b strings.Builder
	b.WriteString("SELECT ")
	b.WriteString(strings.Join(columnNames(), ", "))
	b.WriteString(" FROM ")
	b.WriteString(TableName)

	// Sorted keys keep the statement text stable for a given filter
	keys := make([]string, 0, len(filter))
	for k := range filter {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	args := make([]any, 0, len(keys))
	for i, k := range keys {
		col, ok := LookupColumn(k)
		if !ok {
			return "", nil, fmt.Errorf("%w: %q", ErrUnknownColumn, k)
		}
		if i == 0 {
			b.WriteString(" WHERE ")
		} else {
			b.WriteString(" AND ")
		}
		b.WriteString(col.Name)
		b.WriteString(" = ")
		b.WriteString(ph(i + 1))
		args = append(args, normalizeFilterValue(col, filter[k]))
	}
	b.WriteString(" ORDER BY ")
	b.WriteString(ColID)
	return b.String(), args, nil
}

// normalizeFilterValue stores booleans the way the deletable column does
func normalizeFilterValue(col Column, v any) any {
	if col.Name == ColDeletable {
		if b, ok := v.(bool); ok {
			if b {
				return int64(1)
			}
			return int64(0)
		}
	}
	return v
}

// insertSQL writes every column except the identifier
func insertSQL(rec *Record, ph placeholderFunc) (string, []any) {
	names := make([]string, 0, len(Columns)-1)
	marks := make([]string, 0, len(Columns)-1)
	args := make([]any, 0, len(Columns)-1)
	for _, c := range Columns {
		if c.Name == ColID {
			continue
		}
		names = append(names, c.Name)
		args = append(args, c.Get(rec))
		marks = append(marks, ph(len(args)))
	}
	query := fmt.Sprintf("INSERT INTO %s (%s) VALUES (%s)",
		TableName, strings.Join(names, ", "), strings.Join(marks, ", "))
	return query, args
}

// updateSQL rewrites the mutable columns of the row keyed by rec.ID
func updateSQL(rec *Record, ph placeholderFunc) (string, []any) {
	sets := make([]string, 0, len(Columns))
	args := make([]any, 0, len(Columns))
	for _, c := range Columns {
		if !c.Mutable {
			continue
		}
		args = append(args, c.Get(rec))
		sets = append(sets, c.Name+" = "+ph(len(args)))
	}
	args = append(args, rec.ID)
	query := fmt.Sprintf("UPDATE %s SET %s WHERE %s = %s",
		TableName, strings.Join(sets, ", "), ColID, ph(len(args)))
	return query, args
}

func deleteSQL(ph placeholderFunc) string {
	return fmt.Sprintf("DELETE FROM %s WHERE %s = %s", TableName, ColID, ph(1))
}

func countSQL() string {
	return "SELECT COUNT(*) FROM " + TableName
}

// ParseFilter converts textual column conditions, such as query parameters, into a Filter
func ParseFilter(conds map[string]string) (Filter, error) {
	filter := make(Filter, len(conds))
	for name, raw := range conds {
		col, ok := LookupColumn(name)
		if !ok {
			return nil, fmt.Errorf("%w: %q", ErrUnknownColumn, name)
		}
		var (
			v   any
			err error
		)
		switch col.Name {
		case ColID:
			v, err = strconv.ParseInt(raw, 10, 64)
		case ColValue:
			v, err = strconv.ParseFloat(raw, 64)
		case ColDeletable:
			v, err = strconv.ParseBool(raw)
		default:
			v = raw
		}
		if err != nil {
			return nil, fmt.Errorf("%w for %s: %q", ErrInvalidValue, col.Name, raw)
		}
		filter[col.Name] = v
	}
	return filter, nil
}
