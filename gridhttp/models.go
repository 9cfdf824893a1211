// Copyright 2025 Toly Pochkin
// SPDX-License-Identifier: Apache-2.0

package gridhttp

import (
	"github.com/google/uuid"

	"github.com/potatogrid/go-potatogrid/gridsession"
	"github.com/potatogrid/go-potatogrid/gridstore"
)

// ErrorResponse represents an error response
type ErrorResponse struct {
	Error   string            `json:"error"`
	Message string            `json:"message"`
	Fields  map[string]string `json:"fields,omitempty"`
}

// RecordFields carries the editable columns of a row. Absent fields are left unchanged.
type RecordFields struct {
	Title    *string  `json:"title,omitempty" validate:"omitempty,max=200"`
	Category *string  `json:"category,omitempty" validate:"omitempty,max=100"`
	Value    *float64 `json:"value,omitempty"`
	ImageRef *string  `json:"image_ref,omitempty" validate:"omitempty,max=200"`
}

func (f *RecordFields) applyTo(rec *gridstore.Record) {
	if f.Title != nil {
		rec.Title = *f.Title
	}
	if f.Category != nil {
		rec.Category = *f.Category
	}
	if f.Value != nil {
		rec.Value = *f.Value
	}
	if f.ImageRef != nil {
		rec.ImageRef = *f.ImageRef
	}
}

// RowsResponse lists the rows of the grid
type RowsResponse struct {
	SessionID uuid.UUID         `json:"session_id"`
	State     gridsession.State `json:"state"`
	Rows      []gridsession.Row `json:"rows"`
}

// StoredRecordsResponse lists rows read directly from storage
type StoredRecordsResponse struct {
	Records []gridstore.Record `json:"records"`
}

// PendingCounts summarizes the pending change sets
type PendingCounts struct {
	Added   int `json:"added"`
	Edited  int `json:"edited"`
	Deleted int `json:"deleted"`
}

// SessionResponse describes the session state and its pending changes
type SessionResponse struct {
	SessionID uuid.UUID         `json:"session_id"`
	State     gridsession.State `json:"state"`
	Counts    PendingCounts     `json:"counts"`
	Pending   gridsession.Batch `json:"pending"`
}

// ApplyResponse reports an apply pass
type ApplyResponse struct {
	Outcome string              `json:"outcome"`
	Message string              `json:"message"`
	Result  *gridsession.Result `json:"result,omitempty"`
	Error   string              `json:"error,omitempty"`
	Warning string              `json:"warning,omitempty"`
}

// ImagesResponse lists the accepted image references
type ImagesResponse struct {
	Images []string `json:"images"`
}
