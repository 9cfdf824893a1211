// Copyright 2025 Toly Pochkin
// SPDX-License-Identifier: Apache-2.0

package gridsession

import (
	"context"
	"time"
)

const (
	MetricsOpApply = "apply"

	MetricsStageUpdate = "update"
	MetricsStageDelete = "delete"
	MetricsStageInsert = "insert"
	MetricsStageTotal  = "total"
)

type StageTiming struct {
	Operation string
	Stage     string
	Duration  time.Duration
	Count     int
	Error     bool
}

type StageMetricsRecorder interface {
	ObserveStage(ctx context.Context, timing StageTiming)
}

type StageMetricsRecorderFunc func(ctx context.Context, timing StageTiming)

func (f StageMetricsRecorderFunc) ObserveStage(ctx context.Context, timing StageTiming) {
	f(ctx, timing)
}

func (r *Reconciler) stageTimingEnabled() bool {
	if r == nil || r.config == nil {
		return false
	}
	return r.config.StageMetrics != nil || r.config.LogStageTimings
}

func (r *Reconciler) stageStart() time.Time {
	if !r.stageTimingEnabled() {
		return time.Time{}
	}
	return time.Now()
}

func (r *Reconciler) observeStage(ctx context.Context, stage string, start time.Time, count int, hadError bool) {
	if start.IsZero() {
		return
	}

	timing := StageTiming{
		Operation: MetricsOpApply,
		Stage:     stage,
		Duration:  time.Since(start),
		Count:     count,
		Error:     hadError,
	}

	if r.config.StageMetrics != nil {
		r.config.StageMetrics.ObserveStage(ctx, timing)
	}
	if r.config.LogStageTimings {
		r.logger.Debug("Stage timing",
			"op", timing.Operation,
			"stage", timing.Stage,
			"duration", timing.Duration,
			"count", timing.Count,
			"error", timing.Error,
		)
	}
}
