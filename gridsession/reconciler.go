// Copyright 2025 Toly Pochkin
// SPDX-License-Identifier: Apache-2.0

package gridsession

import (
	"context"
	"log/slog"
	"time"

	"github.com/google/uuid"

	"github.com/potatogrid/go-potatogrid/gridstore"
)

// ReconcilerConfig controls how a batch is written to storage.
type ReconcilerConfig struct {
	// DefaultDeletable is stored on every inserted row
	DefaultDeletable bool

	// StageMetrics receives per-stage timings of each apply pass
	StageMetrics StageMetricsRecorder
	// LogStageTimings logs stage timings at debug level
	LogStageTimings bool
}

func DefaultReconcilerConfig() *ReconcilerConfig {
	return &ReconcilerConfig{DefaultDeletable: true}
}

// InsertedRow pairs an added row with the identifier storage assigned to it
type InsertedRow struct {
	Key uuid.UUID `json:"key"`
	ID  int64     `json:"id"`
}

// Result describes what an apply pass did.
type Result struct {
	Outcome  string        `json:"outcome"`
	Updated  []int64       `json:"updated,omitempty"`
	Skipped  []int64       `json:"skipped,omitempty"`
	Deleted  []int64       `json:"deleted,omitempty"`
	Inserted []InsertedRow `json:"inserted,omitempty"`
}

// Changes is the number of statements that were executed
func (r *Result) Changes() int {
	return len(r.Updated) + len(r.Deleted) + len(r.Inserted)
}

// Reconciler translates a pending batch into storage statements.
type Reconciler struct {
	store  gridstore.Store
	config *ReconcilerConfig
	logger *slog.Logger
}

func NewReconciler(store gridstore.Store, config *ReconcilerConfig, logger *slog.Logger) *Reconciler {
	if config == nil {
		config = DefaultReconcilerConfig()
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Reconciler{store: store, config: config, logger: logger}
}

// Apply writes batch to storage as independent statements: updates, then deletes, then inserts.
// Edited ids are looked up in current; ids with no current record are skipped and listed in
// Result.Skipped. The first failing statement stops the pass and is returned as *ApplyError
// together with the partial result. An empty batch touches no storage.
func (r *Reconciler) Apply(ctx context.Context, batch Batch, current []gridstore.Record) (*Result, error) {
	if batch.Empty() {
		return &Result{Outcome: OutcomeNothingToApply}, nil
	}

	totalStart := r.stageStart()
	res := &Result{Outcome: OutcomeFailed}
	fail := func(stage string, start time.Time, count int, applyErr *ApplyError) (*Result, error) {
		r.observeStage(ctx, stage, start, count, true)
		r.observeStage(ctx, MetricsStageTotal, totalStart, res.Changes(), true)
		r.logger.Warn("Apply stopped", "op", applyErr.Op, "record_id", applyErr.RecordID,
			"applied", res.Changes(), "error", applyErr.Err)
		return res, applyErr
	}

	byID := make(map[int64]gridstore.Record, len(current))
	for _, rec := range current {
		byID[rec.ID] = rec
	}

	start := r.stageStart()
	for _, id := range batch.Edited {
		rec, ok := byID[id]
		if !ok {
			r.logger.Debug("Skipping edit of record missing from the grid", "record_id", id)
			res.Skipped = append(res.Skipped, id)
			continue
		}
		if err := r.store.Update(ctx, rec); err != nil {
			return fail(MetricsStageUpdate, start, len(res.Updated), &ApplyError{Op: OpUpdate, RecordID: id, Err: err})
		}
		res.Updated = append(res.Updated, id)
	}
	r.observeStage(ctx, MetricsStageUpdate, start, len(res.Updated), false)

	start = r.stageStart()
	for _, id := range batch.Deleted {
		if err := r.store.Delete(ctx, id); err != nil {
			return fail(MetricsStageDelete, start, len(res.Deleted), &ApplyError{Op: OpDelete, RecordID: id, Err: err})
		}
		res.Deleted = append(res.Deleted, id)
	}
	r.observeStage(ctx, MetricsStageDelete, start, len(res.Deleted), false)

	start = r.stageStart()
	for _, row := range batch.Added {
		rec := row.Record
		rec.ID = 0
		rec.Deletable = r.config.DefaultDeletable
		inserted, err := r.store.Insert(ctx, rec)
		if err != nil {
			return fail(MetricsStageInsert, start, len(res.Inserted), &ApplyError{Op: OpInsert, Err: err})
		}
		res.Inserted = append(res.Inserted, InsertedRow{Key: row.Key, ID: inserted.ID})
	}
	r.observeStage(ctx, MetricsStageInsert, start, len(res.Inserted), false)

	res.Outcome = OutcomeApplied
	r.observeStage(ctx, MetricsStageTotal, totalStart, res.Changes(), false)
	r.logger.Info("Applied pending changes",
		"updated", len(res.Updated),
		"deleted", len(res.Deleted),
		"inserted", len(res.Inserted),
		"skipped", len(res.Skipped))
	return res, nil
}
