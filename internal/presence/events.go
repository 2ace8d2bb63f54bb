// Visitormap - Real-Time Visitor Map and Presence Synchronization
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/visitormap

package presence

import (
	"time"

	"github.com/google/uuid"

	"github.com/tomtom215/visitormap/internal/models"
)

// EventType identifies a presence event on the wire.
type EventType string

const (
	// EventSnapshot carries the full visitor set, sent once per session at
	// subscription time.
	EventSnapshot EventType = "snapshot"

	// EventCreated announces a newly resolved visitor.
	EventCreated EventType = "created"

	// EventUpdated carries the complete record of a visitor whose profile
	// changed.
	EventUpdated EventType = "updated"

	// EventDeleted announces removal; only the id travels.
	EventDeleted EventType = "deleted"

	// EventCleared announces an administrative full reset. Clients treat it
	// as an empty snapshot.
	EventCleared EventType = "cleared"
)

// Event is the unit of presence fan-out. Exactly one of Visitors, Visitor,
// or VisitorID is populated depending on Type; Cleared carries none.
type Event struct {
	Type      EventType        `json:"type"`
	Visitors  []models.Visitor `json:"visitors,omitempty"`
	Visitor   *models.Visitor  `json:"visitor,omitempty"`
	VisitorID string           `json:"id,omitempty"`
	Timestamp time.Time        `json:"timestamp"`
}

// NewSnapshotEvent builds the initial full-state event for a new session.
func NewSnapshotEvent(visitors []models.Visitor) Event {
	if visitors == nil {
		visitors = []models.Visitor{}
	}
	return Event{Type: EventSnapshot, Visitors: visitors, Timestamp: time.Now().UTC()}
}

// NewCreatedEvent announces a visitor that just entered the map.
func NewCreatedEvent(v *models.Visitor) Event {
	return Event{Type: EventCreated, Visitor: v, Timestamp: time.Now().UTC()}
}

// NewUpdatedEvent carries the full post-update record.
func NewUpdatedEvent(v *models.Visitor) Event {
	return Event{Type: EventUpdated, Visitor: v, Timestamp: time.Now().UTC()}
}

// NewDeletedEvent announces a removal by id.
func NewDeletedEvent(id uuid.UUID) Event {
	return Event{Type: EventDeleted, VisitorID: id.String(), Timestamp: time.Now().UTC()}
}

// NewClearedEvent announces an administrative reset of the whole map.
func NewClearedEvent() Event {
	return Event{Type: EventCleared, Timestamp: time.Now().UTC()}
}
