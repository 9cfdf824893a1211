// Copyright 2025 Toly Pochkin
// SPDX-License-Identifier: Apache-2.0

package gridstore

import (
	"fmt"
	"strconv"
	"strings"
)

// TableName is the storage table shared by all backends
const TableName = "PotatoDBTable"

// Column names of TableName
const (
	ColID        = "Id"
	ColTitle     = "TITLE"
	ColCategory  = "TYPE"
	ColValue     = "VALUE"
	ColImageRef  = "ImageSource"
	ColDeletable = "Deleteable"
)

// Column maps one storage column to a typed Record accessor.
type Column struct {
	Name string
	// Mutable columns are rewritten by Update
	Mutable bool
	Get     func(r *Record) any
	Set     func(r *Record, v any) error
}

// Columns is the static mapping between TableName columns and Record fields,
// in select order.
var Columns = []Column{
	{
		Name: ColID,
		Get:  func(r *Record) any { return r.ID },
		Set: func(r *Record, v any) (err error) {
			r.ID, err = asInt64(v)
			return err
		},
	},
	{
		Name:    ColTitle,
		Mutable: true,
		Get:     func(r *Record) any { return r.Title },
		Set: func(r *Record, v any) (err error) {
			r.Title, err = asString(v)
			return err
		},
	},
	{
		Name:    ColCategory,
		Mutable: true,
		Get:     func(r *Record) any { return r.Category },
		Set: func(r *Record, v any) (err error) {
			r.Category, err = asString(v)
			return err
		},
	},
	{
		Name:    ColValue,
		Mutable: true,
		Get:     func(r *Record) any { return r.Value },
		Set: func(r *Record, v any) (err error) {
			r.Value, err = asFloat64(v)
			return err
		},
	},
	{
		Name:    ColImageRef,
		Mutable: true,
		Get:     func(r *Record) any { return r.ImageRef },
		Set: func(r *Record, v any) (err error) {
			r.ImageRef, err = asString(v)
			return err
		},
	},
	{
		Name: ColDeletable,
		Get: func(r *Record) any {
			if r.Deletable {
				return int64(1)
			}
			return int64(0)
		},
		Set: func(r *Record, v any) error {
			n, err := asInt64(v)
			if err != nil {
				return err
			}
			r.Deletable = n != 0
			return nil
		},
	},
}

// LookupColumn finds a mapped column by name, ignoring case
func LookupColumn(name string) (Column, bool) {
	for _, c := range Columns {
		if strings.EqualFold(c.Name, name) {
			return c, true
		}
	}
	return Column{}, false
}

// columnNames returns the mapped column names in select order
func columnNames() []string {
	names := make([]string, len(Columns))
	for i, c := range Columns {
		names[i] = c.Name
	}
	return names
}

// recordFromValues builds a Record from a row scanned in Columns order
func recordFromValues(values []any) (Record, error) {
	var rec Record
	if len(values) != len(Columns) {
		return rec, fmt.Errorf("expected %d columns, got %d", len(Columns), len(values))
	}
	for i, c := range Columns {
		if err := c.Set(&rec, values[i]); err != nil {
			return rec, fmt.Errorf("column %s: %w", c.Name, err)
		}
	}
	return rec, nil
}

// NULL reads as the zero value, matching how the grid shows empty cells.
func asString(v any) (string, error) {
	switch t := v.(type) {
	case nil:
		return "", nil
	case string:
		return t, nil
	case []byte:
		return string(t), nil
	case int64:
		// ImageSource was seeded with a number by early releases
		return strconv.FormatInt(t, 10), nil
	case float64:
		return strconv.FormatFloat(t, 'f', -1, 64), nil
	default:
		return "", fmt.Errorf("cannot convert %T to string", v)
	}
}

func asInt64(v any) (int64, error) {
	switch t := v.(type) {
	case nil:
		return 0, nil
	case int64:
		return t, nil
	case int32:
		return int64(t), nil
	case int:
		return int64(t), nil
	case float64:
		return int64(t), nil
	case bool:
		if t {
			return 1, nil
		}
		return 0, nil
	case string:
		return strconv.ParseInt(t, 10, 64)
	case []byte:
		return strconv.ParseInt(string(t), 10, 64)
	default:
		return 0, fmt.Errorf("cannot convert %T to int64", v)
	}
}

func asFloat64(v any) (float64, error) {
	switch t := v.(type) {
	case nil:
		return 0, nil
	case float64:
		return t, nil
	case float32:
		return float64(t), nil
	case int64:
		return float64(t), nil
	case int32:
		return float64(t), nil
	case string:
		return strconv.ParseFloat(t, 64)
	case []byte:
		return strconv.ParseFloat(string(t), 64)
	default:
		return 0, fmt.Errorf("cannot convert %T to float64", v)
	}
}
