// Visitormap - Real-Time Visitor Map and Presence Synchronization
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/visitormap

// Package identity resolves origin keys to stable visitor identities and
// drives the visitor lifecycle: first-contact creation, profile updates,
// deletion, and administrative reset. Every mutation that goes through this
// package is announced on the presence broadcaster exactly once.
package identity

import (
	"context"
	"fmt"
	"sync"

	"github.com/google/uuid"

	"github.com/tomtom215/visitormap/internal/database"
	"github.com/tomtom215/visitormap/internal/geo"
	"github.com/tomtom215/visitormap/internal/logging"
	"github.com/tomtom215/visitormap/internal/metrics"
	"github.com/tomtom215/visitormap/internal/models"
	"github.com/tomtom215/visitormap/internal/presence"
)

// ErrNotFound mirrors the store sentinel for callers that only import this
// package.
var ErrNotFound = database.ErrNotFound

// Resolver owns the origin-to-visitor mapping.
type Resolver struct {
	store       *database.DB
	geo         *geo.Resolver
	broadcaster *presence.Broadcaster

	// originLocks serializes each record's mutations together with their
	// presence announcements. The store commit and the Publish happen under
	// one lock, so the order sessions see events for a record is the order
	// those events committed. An origin's lock covers the record's whole
	// lifetime: origin_key never changes for a given id.
	originLocks sync.Map
}

// NewResolver wires the resolver to its store, geolocation source, and
// presence fan-out.
func NewResolver(store *database.DB, geoResolver *geo.Resolver, broadcaster *presence.Broadcaster) *Resolver {
	return &Resolver{
		store:       store,
		geo:         geoResolver,
		broadcaster: broadcaster,
	}
}

// ResolveOrCreate maps an origin key to its visitor, creating the visitor on
// first contact.
//
// The fast path is a single indexed read. On a miss the origin is
// geolocated (which cannot fail, only degrade to the fallback location) and
// handed to the store's conditional insert. Concurrent first contacts for
// the same origin all converge on one record: the insert winner publishes
// the single Created event, losers return the winner's record with
// Created=false and publish nothing.
func (r *Resolver) ResolveOrCreate(ctx context.Context, originKey string, meta models.OriginMetadata) (*models.ResolveResult, error) {
	if originKey == "" {
		return nil, fmt.Errorf("%w: empty origin key", database.ErrValidation)
	}

	// The whole resolve runs under the origin lock, read path included: a
	// racing resolve for the same origin cannot observe the new record (and
	// hand its id to a mutator) before the Created event is on the wire.
	mu := r.acquireOriginLock(originKey)
	defer mu.Unlock()

	existing, err := r.store.FindByOrigin(ctx, originKey)
	if err != nil {
		return nil, fmt.Errorf("identity lookup failed: %w", err)
	}
	if existing != nil {
		metrics.IdentityResolutions.WithLabelValues("existing").Inc()
		return &models.ResolveResult{ID: existing.ID, Created: false, Visitor: existing}, nil
	}

	loc := r.geo.Resolve(ctx, originKey)

	v, inserted, err := r.store.InsertIfAbsent(ctx, originKey, loc, meta)
	if err != nil {
		return nil, fmt.Errorf("identity creation failed: %w", err)
	}

	if !inserted {
		// Lost the first-contact race; someone else created the record
		// between our miss and our insert. Their resolve publishes Created.
		metrics.IdentityResolutions.WithLabelValues("race_lost").Inc()
		return &models.ResolveResult{ID: v.ID, Created: false, Visitor: v}, nil
	}

	metrics.IdentityResolutions.WithLabelValues("created").Inc()
	r.broadcaster.Publish(presence.NewCreatedEvent(v))
	r.audit(ctx, models.AuditEntry{
		OriginKey: originKey,
		Action:    models.AuditActionCreateVisitor,
		UserAgent: meta.UserAgent,
		City:      v.Location.City,
		Country:   v.Location.Country,
		Region:    v.Location.Region,
		VisitorID: v.ID.String(),
	})

	logging.Info().
		Str("visitor", v.ID.String()).
		Str("city", v.Location.City).
		Str("country", v.Location.Country).
		Msg("visitor created")

	return &models.ResolveResult{ID: v.ID, Created: true, Visitor: v}, nil
}

// UpdateProfile merges a partial profile into a visitor and announces the
// full updated record. Store validation errors pass through unwrapped so
// callers can map them to API responses.
func (r *Resolver) UpdateProfile(ctx context.Context, id uuid.UUID, upd models.ProfileUpdate) (*models.Visitor, error) {
	current, err := r.store.GetByID(ctx, id)
	if err != nil {
		return nil, err
	}
	if current == nil {
		return nil, fmt.Errorf("update %s: %w", id, database.ErrNotFound)
	}

	mu := r.acquireOriginLock(current.OriginKey)
	defer mu.Unlock()

	v, err := r.store.Update(ctx, id, upd)
	if err != nil {
		return nil, err
	}

	r.broadcaster.Publish(presence.NewUpdatedEvent(v))
	r.audit(ctx, models.AuditEntry{
		OriginKey: v.OriginKey,
		Action:    models.AuditActionUpdateProfile,
		UserAgent: v.UserAgent,
		City:      v.Location.City,
		Country:   v.Location.Country,
		Region:    v.Location.Region,
		VisitorID: v.ID.String(),
	})

	return v, nil
}

// Delete removes a visitor and announces the removal. Returns ErrNotFound
// when the id is unknown.
func (r *Resolver) Delete(ctx context.Context, id uuid.UUID) error {
	v, err := r.store.GetByID(ctx, id)
	if err != nil {
		return err
	}
	if v == nil {
		return fmt.Errorf("delete %s: %w", id, database.ErrNotFound)
	}

	mu := r.acquireOriginLock(v.OriginKey)
	defer mu.Unlock()

	deleted, err := r.store.Delete(ctx, id)
	if err != nil {
		return err
	}
	if !deleted {
		// Raced with another delete; that delete published the event.
		return fmt.Errorf("delete %s: %w", id, database.ErrNotFound)
	}

	r.broadcaster.Publish(presence.NewDeletedEvent(id))
	r.audit(ctx, models.AuditEntry{
		OriginKey: v.OriginKey,
		Action:    models.AuditActionDeleteVisitor,
		UserAgent: v.UserAgent,
		City:      v.Location.City,
		Country:   v.Location.Country,
		Region:    v.Location.Region,
		VisitorID: id.String(),
	})

	logging.Info().Str("visitor", id.String()).Msg("visitor deleted")
	return nil
}

// ClearAll wipes the visitor set and audit log, then announces the reset.
// Administrative use only.
func (r *Resolver) ClearAll(ctx context.Context) error {
	if err := r.store.ClearAll(ctx); err != nil {
		return err
	}

	r.broadcaster.Publish(presence.NewClearedEvent())
	logging.Warn().Msg("visitor store cleared by administrator")
	return nil
}

// Snapshot returns the full visitor set in stable order, for presence
// subscriptions and the public listing endpoint.
func (r *Resolver) Snapshot(ctx context.Context) ([]models.Visitor, error) {
	return r.store.ListAll(ctx)
}

// acquireOriginLock locks the origin's mutation mutex, creating it on first
// use.
func (r *Resolver) acquireOriginLock(originKey string) *sync.Mutex {
	v, _ := r.originLocks.LoadOrStore(originKey, &sync.Mutex{})
	mu := v.(*sync.Mutex)
	mu.Lock()
	return mu
}

// audit records a lifecycle entry. Audit failures are logged, never
// propagated: the visitor operation already succeeded.
func (r *Resolver) audit(ctx context.Context, entry models.AuditEntry) {
	if err := r.store.RecordAudit(ctx, entry); err != nil {
		logging.Error().
			Err(err).
			Str("action", entry.Action).
			Str("visitor", entry.VisitorID).
			Msg("failed to record audit entry")
	}
}
