// Copyright 2025 Toly Pochkin
// SPDX-License-Identifier: Apache-2.0

package gridsession

import "github.com/google/uuid"

type EventKind string

const (
	EventLoaded      EventKind = "loaded"
	EventRowAdded    EventKind = "row_added"
	EventRowEdited   EventKind = "row_edited"
	EventRowDeleted  EventKind = "row_deleted"
	EventApplied     EventKind = "applied"
	EventApplyFailed EventKind = "apply_failed"
	EventCancelled   EventKind = "cancelled"
)

// Event is delivered to listeners after a session operation has completed.
type Event struct {
	Kind      EventKind
	SessionID uuid.UUID
	// Key and RecordID identify the affected row for row events
	Key      uuid.UUID
	RecordID int64
	// State is the session state after the operation
	State State
	// Result is set for apply events
	Result *Result
	Err    error
}

// Listener observes session changes. Listeners are called without the session lock held
// and may call back into the session.
type Listener interface {
	OnSessionEvent(ev Event)
}

type ListenerFunc func(ev Event)

func (f ListenerFunc) OnSessionEvent(ev Event) {
	f(ev)
}
