// Copyright 2025 Toly Pochkin
// SPDX-License-Identifier: Apache-2.0

// Package gridsession implements the batched edit/apply workflow of the recipe grid.
//
// A Session holds the in-memory rows loaded from a gridstore.Store and mirrors every
// add, edit and delete into a Tracker. Nothing reaches storage until Apply, which hands
// the tracked batch to a Reconciler; Cancel discards the batch and reloads.
package gridsession

import (
	"slices"

	"github.com/google/uuid"

	"github.com/potatogrid/go-potatogrid/gridstore"
)

// Row is a record as shown in the grid. Key identifies the row in memory whether or
// not storage has assigned it an ID yet.
type Row struct {
	Key uuid.UUID `json:"key"`
	gridstore.Record
}

// Batch is a snapshot of pending changes.
type Batch struct {
	Added   []*Row  `json:"added"`
	Edited  []int64 `json:"edited"`
	Deleted []int64 `json:"deleted"`
}

// Empty reports whether the batch carries no changes
func (b Batch) Empty() bool {
	return len(b.Added) == 0 && len(b.Edited) == 0 && len(b.Deleted) == 0
}

// Tracker holds the pending added rows, edited ids and deleted ids of one edit session.
// Edited and deleted keep first-mark order. It is not safe for concurrent use.
type Tracker struct {
	added   []*Row
	edited  []int64
	deleted []int64
}

func NewTracker() *Tracker {
	return &Tracker{}
}

// RecordAdded appends an unpersisted row. Adding the same row twice is a no-op.
func (t *Tracker) RecordAdded(row *Row) {
	if row == nil || t.addedIndex(row.Key) >= 0 {
		return
	}
	t.added = append(t.added, row)
}

// RecordEdited marks a persisted id for update and reports whether it was newly marked.
// Unpersisted rows are ignored: their pending insert already carries the current values.
func (t *Tracker) RecordEdited(id int64) bool {
	if id <= 0 || slices.Contains(t.edited, id) || slices.Contains(t.deleted, id) {
		return false
	}
	t.edited = append(t.edited, id)
	return true
}

// RecordDeleted marks row for deletion and reports whether a delete will be issued.
// A row that only exists in the added list is dropped from it instead.
func (t *Tracker) RecordDeleted(row *Row) bool {
	if row == nil {
		return false
	}
	if i := t.addedIndex(row.Key); i >= 0 {
		t.added = slices.Delete(t.added, i, i+1)
		return false
	}
	if !row.Persisted() {
		return false
	}
	t.forgetEdited(row.ID)
	if slices.Contains(t.deleted, row.ID) {
		return false
	}
	t.deleted = append(t.deleted, row.ID)
	return true
}

// Reset empties all three sets
func (t *Tracker) Reset() {
	t.added = nil
	t.edited = nil
	t.deleted = nil
}

func (t *Tracker) Empty() bool {
	return len(t.added) == 0 && len(t.edited) == 0 && len(t.deleted) == 0
}

func (t *Tracker) Counts() (added, edited, deleted int) {
	return len(t.added), len(t.edited), len(t.deleted)
}

// Snapshot copies the pending sets. Added rows are copied by value.
func (t *Tracker) Snapshot() Batch {
	b := Batch{
		Edited:  slices.Clone(t.edited),
		Deleted: slices.Clone(t.deleted),
	}
	for _, row := range t.added {
		cp := *row
		b.Added = append(b.Added, &cp)
	}
	return b
}

// drain removes the statements of a partially applied pass
func (t *Tracker) drain(res *Result) {
	for _, id := range res.Updated {
		t.forgetEdited(id)
	}
	for _, id := range res.Skipped {
		t.forgetEdited(id)
	}
	for _, id := range res.Deleted {
		t.forgetDeleted(id)
	}
	for _, ins := range res.Inserted {
		if i := t.addedIndex(ins.Key); i >= 0 {
			t.added = slices.Delete(t.added, i, i+1)
		}
	}
}

func (t *Tracker) forgetEdited(id int64) {
	if i := slices.Index(t.edited, id); i >= 0 {
		t.edited = slices.Delete(t.edited, i, i+1)
	}
}

func (t *Tracker) forgetDeleted(id int64) {
	if i := slices.Index(t.deleted, id); i >= 0 {
		t.deleted = slices.Delete(t.deleted, i, i+1)
	}
}

func (t *Tracker) addedIndex(key uuid.UUID) int {
	return slices.IndexFunc(t.added, func(r *Row) bool { return r.Key == key })
}
