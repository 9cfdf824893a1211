// Copyright 2025 Toly Pochkin
// SPDX-License-Identifier: Apache-2.0

package gridsession

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"slices"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/potatogrid/go-potatogrid/gridstore"
)

// Config holds session behavior.
type Config struct {
	// DebounceWindow is the minimum gap between two edit marks of the same record
	DebounceWindow time.Duration
	// NewRecord is the template used by Add
	NewRecord gridstore.Record
	// ImageOptions lists the accepted image references; empty accepts any
	ImageOptions []string
	// DefaultDeletable is stored on inserted rows
	DefaultDeletable bool

	StageMetrics    StageMetricsRecorder
	LogStageTimings bool

	// Now returns the current time; tests replace it
	Now func() time.Time
}

func DefaultConfig() *Config {
	return &Config{
		DebounceWindow: 100 * time.Millisecond,
		NewRecord: gridstore.Record{
			Title:     "New Title",
			Category:  "NewType",
			Value:     0,
			Deletable: true,
		},
		ImageOptions:     slices.Clone(DefaultImageOptions),
		DefaultDeletable: true,
		Now:              time.Now,
	}
}

// Session is the view-model of one grid: the in-memory rows plus the pending changes made
// to them since the last load. All methods are safe for concurrent use.
type Session struct {
	id         uuid.UUID
	store      gridstore.Store
	config     *Config
	logger     *slog.Logger
	reconciler *Reconciler

	mu       sync.Mutex
	rows     []*Row
	tracker  *Tracker
	lastEdit map[int64]time.Time
	revs     map[uuid.UUID]uint64

	listenerMu   sync.Mutex
	listeners    map[int]Listener
	nextListener int
}

func NewSession(store gridstore.Store, config *Config, logger *slog.Logger) (*Session, error) {
	if store == nil {
		return nil, errors.New("store is required")
	}
	if config == nil {
		config = DefaultConfig()
	}
	if config.Now == nil {
		config.Now = time.Now
	}
	if logger == nil {
		logger = slog.Default()
	}

	id := uuid.New()
	logger = logger.With("session_id", id.String())
	return &Session{
		id:     id,
		store:  store,
		config: config,
		logger: logger,
		reconciler: NewReconciler(store, &ReconcilerConfig{
			DefaultDeletable: config.DefaultDeletable,
			StageMetrics:     config.StageMetrics,
			LogStageTimings:  config.LogStageTimings,
		}, logger),
		tracker:   NewTracker(),
		lastEdit:  make(map[int64]time.Time),
		revs:      make(map[uuid.UUID]uint64),
		listeners: make(map[int]Listener),
	}, nil
}

func (s *Session) ID() uuid.UUID {
	return s.id
}

// ImageOptions returns the accepted image references
func (s *Session) ImageOptions() []string {
	return slices.Clone(s.config.ImageOptions)
}

// Load replaces the rows with a fresh read of storage and discards pending changes.
// On error the session is left unchanged.
func (s *Session) Load(ctx context.Context) error {
	s.mu.Lock()
	err := s.reloadLocked(ctx, nil)
	ev := s.eventLocked(EventLoaded)
	s.mu.Unlock()

	if err != nil {
		return err
	}
	s.notify(ev)
	return nil
}

// Rows returns a copy of the rows in grid order
func (s *Session) Rows() []Row {
	s.mu.Lock()
	defer s.mu.Unlock()

	out := make([]Row, len(s.rows))
	for i, row := range s.rows {
		out[i] = *row
	}
	return out
}

func (s *Session) Row(key uuid.UUID) (Row, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	row := s.findLocked(key)
	if row == nil {
		return Row{}, ErrRowNotFound
	}
	return *row, nil
}

func (s *Session) State() State {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.stateLocked()
}

// Pending returns a snapshot of the tracked changes
func (s *Session) Pending() Batch {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.tracker.Snapshot()
}

// NewRecord returns the template used for new rows
func (s *Session) NewRecord() gridstore.Record {
	return s.config.NewRecord
}

// Add appends a new row built from the configured template
func (s *Session) Add() (Row, error) {
	return s.AddRecord(s.config.NewRecord)
}

// AddRecord appends a new unpersisted row with the fields of rec.
// rec.ID is ignored; Deletable is replaced by the configured default on insert.
func (s *Session) AddRecord(rec gridstore.Record) (Row, error) {
	if err := s.checkImage(rec.ImageRef); err != nil {
		return Row{}, err
	}
	rec.ID = 0

	s.mu.Lock()
	row := &Row{Key: uuid.New(), Record: rec}
	s.rows = append(s.rows, row)
	s.tracker.RecordAdded(row)
	ev := s.eventLocked(EventRowAdded)
	ev.Key = row.Key
	out := *row
	s.mu.Unlock()

	s.logger.Debug("Row added", "key", row.Key.String())
	s.notify(ev)
	return out, nil
}

// Edit applies fn to a copy of the row identified by key and stores the result.
// ID and Deletable cannot be changed. fn runs without the session lock held; if the row
// changes while fn runs, fn is called again on the newer copy.
//
// Persisted rows are marked edited and EventRowEdited is emitted unless the same record was
// marked within DebounceWindow. Debounced edits still change the row data.
func (s *Session) Edit(key uuid.UUID, fn func(rec *gridstore.Record)) (Row, error) {
	for {
		s.mu.Lock()
		row := s.findLocked(key)
		if row == nil {
			s.mu.Unlock()
			return Row{}, ErrRowNotFound
		}
		current, rev, before := row, s.revs[key], row.Record
		s.mu.Unlock()

		rec := before
		fn(&rec)
		rec.ID = before.ID
		rec.Deletable = before.Deletable
		if rec.ImageRef != before.ImageRef {
			if err := s.checkImage(rec.ImageRef); err != nil {
				return Row{}, err
			}
		}

		s.mu.Lock()
		row = s.findLocked(key)
		if row == nil {
			s.mu.Unlock()
			return Row{}, ErrRowNotFound
		}
		if row != current || s.revs[key] != rev {
			s.mu.Unlock()
			continue
		}
		row.Record = rec
		s.revs[key]++

		marked := true
		if row.Persisted() {
			now := s.config.Now()
			last, seen := s.lastEdit[row.ID]
			marked = !seen || now.Sub(last) >= s.config.DebounceWindow
			if marked && s.tracker.RecordEdited(row.ID) {
				s.logger.Debug("Record marked edited", "record_id", row.ID)
			}
			s.lastEdit[row.ID] = now
		}

		ev := s.eventLocked(EventRowEdited)
		ev.Key = row.Key
		ev.RecordID = row.ID
		out := *row
		s.mu.Unlock()

		if marked {
			s.notify(ev)
		}
		return out, nil
	}
}

// Delete removes the row identified by key from the grid. Rows that were never persisted
// are dropped without issuing a delete.
func (s *Session) Delete(key uuid.UUID) error {
	s.mu.Lock()
	i := slices.IndexFunc(s.rows, func(r *Row) bool { return r.Key == key })
	if i < 0 {
		s.mu.Unlock()
		return ErrRowNotFound
	}
	row := s.rows[i]
	if !row.Deletable {
		s.mu.Unlock()
		return ErrNotDeletable
	}

	s.rows = slices.Delete(s.rows, i, i+1)
	s.tracker.RecordDeleted(row)
	delete(s.lastEdit, row.ID)
	delete(s.revs, row.Key)
	ev := s.eventLocked(EventRowDeleted)
	ev.Key = row.Key
	ev.RecordID = row.ID
	s.mu.Unlock()

	s.logger.Debug("Row deleted", "key", row.Key.String(), "record_id", row.ID)
	s.notify(ev)
	return nil
}

// Apply writes the pending changes to storage and reloads the rows.
//
// An empty batch returns OutcomeNothingToApply without touching storage. When a statement
// fails the error is returned with the partial result; the statements that did run are
// removed from the pending set and the session stays dirty with the remainder. When every
// statement succeeds but the reload fails, the OutcomeApplied result is returned with an
// error wrapping ErrReloadFailed and the session is clean.
func (s *Session) Apply(ctx context.Context) (*Result, error) {
	s.mu.Lock()
	if s.tracker.Empty() {
		s.mu.Unlock()
		return &Result{Outcome: OutcomeNothingToApply}, nil
	}

	current := make([]gridstore.Record, len(s.rows))
	for i, row := range s.rows {
		current[i] = row.Record
	}
	res, err := s.reconciler.Apply(ctx, s.tracker.Snapshot(), current)
	if err != nil {
		s.adoptPartialLocked(res)
		ev := s.eventLocked(EventApplyFailed)
		ev.Result = res
		ev.Err = err
		s.mu.Unlock()

		s.notify(ev)
		return res, err
	}

	keys := make(map[int64]uuid.UUID, len(res.Inserted))
	for _, ins := range res.Inserted {
		keys[ins.ID] = ins.Key
	}
	reloadErr := s.reloadLocked(ctx, keys)
	if reloadErr != nil {
		// The batch is in storage; only the refresh failed
		s.adoptPartialLocked(res)
	}
	ev := s.eventLocked(EventApplied)
	ev.Result = res
	s.mu.Unlock()

	s.notify(ev)
	if reloadErr != nil {
		return res, fmt.Errorf("%w: %w", ErrReloadFailed, reloadErr)
	}
	return res, nil
}

// Cancel discards the pending changes and reloads the rows from storage
func (s *Session) Cancel(ctx context.Context) error {
	s.mu.Lock()
	added, edited, deleted := s.tracker.Counts()
	err := s.reloadLocked(ctx, nil)
	ev := s.eventLocked(EventCancelled)
	s.mu.Unlock()

	if err != nil {
		return err
	}
	s.logger.Info("Pending changes discarded", "added", added, "edited", edited, "deleted", deleted)
	s.notify(ev)
	return nil
}

// Subscribe registers l and returns a function that removes it
func (s *Session) Subscribe(l Listener) func() {
	s.listenerMu.Lock()
	defer s.listenerMu.Unlock()

	id := s.nextListener
	s.nextListener++
	s.listeners[id] = l
	return func() {
		s.listenerMu.Lock()
		defer s.listenerMu.Unlock()
		delete(s.listeners, id)
	}
}

// reloadLocked reads every row and resets the pending changes. Rows keep their keys
// across reloads; keys maps freshly inserted ids to the keys of their added rows.
func (s *Session) reloadLocked(ctx context.Context, keys map[int64]uuid.UUID) error {
	records, err := s.store.LoadAll(ctx)
	if err != nil {
		return fmt.Errorf("failed to load records: %w", err)
	}

	known := make(map[int64]uuid.UUID, len(s.rows)+len(keys))
	for _, row := range s.rows {
		if row.Persisted() {
			known[row.ID] = row.Key
		}
	}
	for id, key := range keys {
		known[id] = key
	}

	rows := make([]*Row, len(records))
	for i, rec := range records {
		key, ok := known[rec.ID]
		if !ok {
			key = uuid.New()
		}
		rows[i] = &Row{Key: key, Record: rec}
	}

	s.rows = rows
	s.tracker.Reset()
	clear(s.lastEdit)
	clear(s.revs)
	s.logger.Debug("Rows loaded", "rows", len(rows))
	return nil
}

// adoptPartialLocked drops executed statements from the tracker and gives inserted rows their ids
func (s *Session) adoptPartialLocked(res *Result) {
	if res == nil {
		return
	}
	s.tracker.drain(res)
	for _, id := range res.Updated {
		delete(s.lastEdit, id)
	}
	for _, ins := range res.Inserted {
		if row := s.findLocked(ins.Key); row != nil {
			row.ID = ins.ID
			row.Deletable = s.config.DefaultDeletable
			s.revs[ins.Key]++
		}
	}
}

func (s *Session) findLocked(key uuid.UUID) *Row {
	for _, row := range s.rows {
		if row.Key == key {
			return row
		}
	}
	return nil
}

func (s *Session) stateLocked() State {
	if s.tracker.Empty() {
		return StateClean
	}
	return StateDirty
}

func (s *Session) eventLocked(kind EventKind) Event {
	return Event{Kind: kind, SessionID: s.id, State: s.stateLocked()}
}

func (s *Session) checkImage(ref string) error {
	if ref == "" || len(s.config.ImageOptions) == 0 || slices.Contains(s.config.ImageOptions, ref) {
		return nil
	}
	return fmt.Errorf("%w: %q", ErrUnknownImage, ref)
}

func (s *Session) notify(ev Event) {
	s.listenerMu.Lock()
	ids := make([]int, 0, len(s.listeners))
	for id := range s.listeners {
		ids = append(ids, id)
	}
	slices.Sort(ids)
	listeners := make([]Listener, 0, len(ids))
	for _, id := range ids {
		listeners = append(listeners, s.listeners[id])
	}
	s.listenerMu.Unlock()

	for _, l := range listeners {
		l.OnSessionEvent(ev)
	}
}
