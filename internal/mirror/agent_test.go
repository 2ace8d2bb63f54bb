// Visitormap - Real-Time Visitor Map and Presence Synchronization
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/visitormap

package mirror

import (
	"testing"
	"time"

	"github.com/google/uuid"

	"github.com/tomtom215/visitormap/internal/models"
	"github.com/tomtom215/visitormap/internal/presence"
)

func mirrorVisitor(name string) models.Visitor {
	return models.Visitor{
		ID: uuid.New(),
		Location: models.Location{
			Latitude: 41.0082, Longitude: 28.9784,
			City: "Istanbul", Country: "Turkey", Region: "34",
		},
		Profile:   models.Profile{DisplayName: &name},
		CreatedAt: time.Now().UTC(),
		UpdatedAt: time.Now().UTC(),
	}
}

func TestSnapshotReplacesState(t *testing.T) {
	a := NewAgent(nil)

	if a.Synced() {
		t.Error("fresh agent reports synced")
	}

	stale := mirrorVisitor("stale")
	a.Apply(presence.NewCreatedEvent(&stale))

	v1, v2 := mirrorVisitor("one"), mirrorVisitor("two")
	a.Apply(presence.NewSnapshotEvent([]models.Visitor{v1, v2}))

	if !a.Synced() {
		t.Error("agent not synced after snapshot")
	}
	if a.Len() != 2 {
		t.Errorf("mirror holds %d visitors, want 2", a.Len())
	}
	if _, ok := a.Get(stale.ID); ok {
		t.Error("snapshot did not evict pre-snapshot state")
	}
}

func TestCreatedIsIdempotent(t *testing.T) {
	a := NewAgent(nil)
	v := mirrorVisitor("dup")

	a.Apply(presence.NewCreatedEvent(&v))
	a.Apply(presence.NewCreatedEvent(&v))

	if a.Len() != 1 {
		t.Errorf("mirror holds %d visitors after duplicate created, want 1", a.Len())
	}
}

func TestUpdatedUnknownIDIsNoOp(t *testing.T) {
	a := NewAgent(nil)

	ghost := mirrorVisitor("ghost")
	a.Apply(presence.NewUpdatedEvent(&ghost))

	if a.Len() != 0 {
		t.Errorf("update for unknown id created an entry; mirror holds %d", a.Len())
	}
}

func TestDeletedThenUpdatedLeavesNoEntry(t *testing.T) {
	a := NewAgent(nil)
	v := mirrorVisitor("doomed")

	a.Apply(presence.NewCreatedEvent(&v))
	a.Apply(presence.NewDeletedEvent(v.ID))

	// A stale update that raced with the delete must not resurrect it.
	name := "revenant"
	v.Profile.DisplayName = &name
	a.Apply(presence.NewUpdatedEvent(&v))

	if _, ok := a.Get(v.ID); ok {
		t.Error("stale update resurrected a deleted visitor")
	}
}

func TestUpdatedReplacesKnownVisitor(t *testing.T) {
	a := NewAgent(nil)
	v := mirrorVisitor("before")
	a.Apply(presence.NewCreatedEvent(&v))

	name := "after"
	v.Profile.DisplayName = &name
	a.Apply(presence.NewUpdatedEvent(&v))

	got, ok := a.Get(v.ID)
	if !ok {
		t.Fatal("visitor missing after update")
	}
	if got.Profile.DisplayName == nil || *got.Profile.DisplayName != "after" {
		t.Errorf("display name = %v, want after", got.Profile.DisplayName)
	}
}

func TestClearedEmptiesMirror(t *testing.T) {
	a := NewAgent(nil)

	v1, v2 := mirrorVisitor("one"), mirrorVisitor("two")
	a.Apply(presence.NewSnapshotEvent([]models.Visitor{v1, v2}))
	a.Apply(presence.NewClearedEvent())

	if a.Len() != 0 {
		t.Errorf("mirror holds %d visitors after cleared, want 0", a.Len())
	}
	if !a.Synced() {
		t.Error("cleared must leave the mirror synced (it is an empty snapshot)")
	}
}

func TestVisitorsOrderedByCreation(t *testing.T) {
	a := NewAgent(nil)

	base := time.Now().UTC()
	var vs []models.Visitor
	for i := 0; i < 5; i++ {
		v := mirrorVisitor("v")
		v.CreatedAt = base.Add(time.Duration(i) * time.Second)
		vs = append(vs, v)
	}
	// Deliver out of order.
	a.Apply(presence.NewSnapshotEvent([]models.Visitor{vs[3], vs[0], vs[4], vs[2], vs[1]}))

	got := a.Visitors()
	for i := 1; i < len(got); i++ {
		if got[i].CreatedAt.Before(got[i-1].CreatedAt) {
			t.Fatalf("visitors out of creation order at index %d", i)
		}
	}
}

func TestDeleteInvalidatesOwnIdentity(t *testing.T) {
	store, err := OpenIdentityStore("") // in-memory
	if err != nil {
		t.Fatalf("failed to open identity store: %v", err)
	}
	t.Cleanup(func() { store.Close() })

	a := NewAgent(store)

	own := mirrorVisitor("me")
	if err := store.Save(own.ID); err != nil {
		t.Fatalf("Save failed: %v", err)
	}

	other := mirrorVisitor("other")
	a.Apply(presence.NewSnapshotEvent([]models.Visitor{own, other}))

	// Deleting someone else leaves our identity alone.
	a.Apply(presence.NewDeletedEvent(other.ID))
	if _, ok, _ := store.Load(); !ok {
		t.Fatal("identity lost on unrelated delete")
	}

	// Deleting our own visitor forgets the cached identity.
	a.Apply(presence.NewDeletedEvent(own.ID))
	if _, ok, _ := store.Load(); ok {
		t.Error("identity survived administrative removal")
	}
}

func TestIdentityStoreRoundTrip(t *testing.T) {
	store, err := OpenIdentityStore("")
	if err != nil {
		t.Fatalf("failed to open identity store: %v", err)
	}
	t.Cleanup(func() { store.Close() })

	if _, ok, err := store.Load(); err != nil || ok {
		t.Fatalf("empty store: ok=%v err=%v, want ok=false err=nil", ok, err)
	}

	id := uuid.New()
	if err := store.Save(id); err != nil {
		t.Fatalf("Save failed: %v", err)
	}

	got, ok, err := store.Load()
	if err != nil || !ok || got != id {
		t.Fatalf("Load = (%s, %v, %v), want (%s, true, nil)", got, ok, err, id)
	}

	if err := store.Clear(); err != nil {
		t.Fatalf("Clear failed: %v", err)
	}
	if _, ok, _ := store.Load(); ok {
		t.Error("identity survived Clear")
	}
}
