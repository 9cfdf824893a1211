// Copyright 2025 Toly Pochkin
// SPDX-License-Identifier: Apache-2.0

package gridsession

import (
	"errors"
	"fmt"
)

var (
	ErrRowNotFound  = errors.New("row_not_found")
	ErrNotDeletable = errors.New("row_not_deletable")
	ErrUnknownImage = errors.New("unknown_image")

	// ErrReloadFailed is returned by Apply when every statement was written
	// but the rows could not be read back afterwards
	ErrReloadFailed = errors.New("reload_failed")
)

// ApplyError reports the statement that stopped an apply pass.
// Statements executed before it stay applied.
type ApplyError struct {
	Op       string
	RecordID int64
	Err      error
}

func (e *ApplyError) Error() string {
	if e.RecordID > 0 {
		return fmt.Sprintf("failed to %s record %d: %v", e.Op, e.RecordID, e.Err)
	}
	return fmt.Sprintf("failed to %s record: %v", e.Op, e.Err)
}

func (e *ApplyError) Unwrap() error {
	return e.Err
}
