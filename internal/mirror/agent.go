// Visitormap - Real-Time Visitor Map and Presence Synchronization
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/visitormap

// Package mirror maintains a client-side replica of the visitor set from the
// presence event stream, plus durable memory of the client's own identity.
//
// All transitions are idempotent, which is what makes the stream safe to
// consume without coordination: a duplicated created event overwrites with
// identical data, an updated event for an unknown id is a no-op (so a late
// update can never resurrect a deleted visitor), and a fresh snapshot simply
// replaces the whole mirror.
package mirror

import (
	"sort"
	"sync"

	"github.com/google/uuid"

	"github.com/tomtom215/visitormap/internal/logging"
	"github.com/tomtom215/visitormap/internal/models"
	"github.com/tomtom215/visitormap/internal/presence"
)

// Agent is the local visitor mirror. Safe for concurrent use.
type Agent struct {
	mu       sync.RWMutex
	visitors map[uuid.UUID]models.Visitor
	synced   bool

	// identity, when set, is invalidated if the server deletes the visitor
	// this client resolved to.
	identity *IdentityStore
}

// NewAgent creates an empty mirror. The identity store is optional; pass nil
// for a purely observational mirror.
func NewAgent(identity *IdentityStore) *Agent {
	return &Agent{
		visitors: make(map[uuid.UUID]models.Visitor),
		identity: identity,
	}
}

// Apply dispatches one presence event into the mirror.
func (a *Agent) Apply(ev presence.Event) {
	switch ev.Type {
	case presence.EventSnapshot:
		a.applySnapshot(ev.Visitors)
	case presence.EventCreated:
		a.applyUpsert(ev.Visitor)
	case presence.EventUpdated:
		a.applyUpdate(ev.Visitor)
	case presence.EventDeleted:
		a.applyDelete(ev.VisitorID)
	case presence.EventCleared:
		a.applySnapshot(nil)
	default:
		logging.Warn().Str("type", string(ev.Type)).Msg("ignoring unknown presence event")
	}
}

// Synced reports whether the mirror has received its initial snapshot.
func (a *Agent) Synced() bool {
	a.mu.RLock()
	defer a.mu.RUnlock()
	return a.synced
}

// Len returns the number of mirrored visitors.
func (a *Agent) Len() int {
	a.mu.RLock()
	defer a.mu.RUnlock()
	return len(a.visitors)
}

// Get returns the mirrored visitor for an id.
func (a *Agent) Get(id uuid.UUID) (models.Visitor, bool) {
	a.mu.RLock()
	defer a.mu.RUnlock()
	v, ok := a.visitors[id]
	return v, ok
}

// Visitors returns the mirrored set in creation order.
func (a *Agent) Visitors() []models.Visitor {
	a.mu.RLock()
	defer a.mu.RUnlock()

	out := make([]models.Visitor, 0, len(a.visitors))
	for _, v := range a.visitors {
		out = append(out, v)
	}
	sort.Slice(out, func(i, j int) bool {
		if !out[i].CreatedAt.Equal(out[j].CreatedAt) {
			return out[i].CreatedAt.Before(out[j].CreatedAt)
		}
		return out[i].ID.String() < out[j].ID.String()
	})
	return out
}

func (a *Agent) applySnapshot(visitors []models.Visitor) {
	a.mu.Lock()
	defer a.mu.Unlock()

	a.visitors = make(map[uuid.UUID]models.Visitor, len(visitors))
	for _, v := range visitors {
		a.visitors[v.ID] = v
	}
	a.synced = true
}

func (a *Agent) applyUpsert(v *models.Visitor) {
	if v == nil {
		return
	}
	a.mu.Lock()
	defer a.mu.Unlock()
	a.visitors[v.ID] = *v
}

// applyUpdate replaces a known visitor. An update for an id the mirror never
// saw, or saw deleted, changes nothing.
func (a *Agent) applyUpdate(v *models.Visitor) {
	if v == nil {
		return
	}
	a.mu.Lock()
	defer a.mu.Unlock()
	if _, ok := a.visitors[v.ID]; !ok {
		return
	}
	a.visitors[v.ID] = *v
}

func (a *Agent) applyDelete(id string) {
	parsed, err := uuid.Parse(id)
	if err != nil {
		logging.Warn().Str("id", id).Msg("deleted event with unparseable id")
		return
	}

	a.mu.Lock()
	delete(a.visitors, parsed)
	a.mu.Unlock()

	if a.identity != nil {
		if own, ok, _ := a.identity.Load(); ok && own == parsed {
			// The server removed this client's visitor; forget the cached
			// identity so the next connect resolves fresh.
			if err := a.identity.Clear(); err != nil {
				logging.Error().Err(err).Msg("failed to invalidate cached identity")
			}
		}
	}
}
