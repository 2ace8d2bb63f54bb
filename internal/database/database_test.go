// Visitormap - Real-Time Visitor Map and Presence Synchronization
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/visitormap

package database

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"

	"github.com/tomtom215/visitormap/internal/config"
	"github.com/tomtom215/visitormap/internal/models"
)

func setupTestDB(t *testing.T) *DB {
	t.Helper()

	cfg := &config.DatabaseConfig{
		Path:      ":memory:",
		MaxMemory: "256MB",
		Threads:   2,
	}

	db, err := New(cfg)
	if err != nil {
		t.Fatalf("failed to create test database: %v", err)
	}
	t.Cleanup(func() {
		if err := db.Close(); err != nil {
			t.Errorf("failed to close test database: %v", err)
		}
	})

	return db
}

func testLocation() models.Location {
	return models.Location{
		Latitude:  41.0082,
		Longitude: 28.9784,
		City:      "Istanbul",
		Country:   "Turkey",
		Region:    "34",
	}
}

func strptr(s string) *string { return &s }

func TestInsertIfAbsent(t *testing.T) {
	db := setupTestDB(t)
	ctx := context.Background()

	v, inserted, err := db.InsertIfAbsent(ctx, "203.0.113.7", testLocation(),
		models.OriginMetadata{UserAgent: "test-agent/1.0"})
	if err != nil {
		t.Fatalf("InsertIfAbsent failed: %v", err)
	}
	if !inserted {
		t.Error("expected first insert to report inserted=true")
	}
	if v.ID == uuid.Nil {
		t.Error("expected a non-nil visitor id")
	}
	if v.OriginKey != "203.0.113.7" {
		t.Errorf("origin key = %q, want 203.0.113.7", v.OriginKey)
	}
	if v.UserAgent != "test-agent/1.0" {
		t.Errorf("user agent = %q, want test-agent/1.0", v.UserAgent)
	}
	if v.Location.City != "Istanbul" {
		t.Errorf("city = %q, want Istanbul", v.Location.City)
	}
	if v.CreatedAt.IsZero() || v.UpdatedAt.IsZero() {
		t.Error("expected timestamps to be set")
	}

	// A second call for the same origin must return the existing record
	// with the same id and inserted=false.
	v2, inserted, err := db.InsertIfAbsent(ctx, "203.0.113.7", testLocation(),
		models.OriginMetadata{UserAgent: "other-agent/2.0"})
	if err != nil {
		t.Fatalf("second InsertIfAbsent failed: %v", err)
	}
	if inserted {
		t.Error("expected second insert to report inserted=false")
	}
	if v2.ID != v.ID {
		t.Errorf("second insert returned id %s, want %s", v2.ID, v.ID)
	}
	if v2.UserAgent != "test-agent/1.0" {
		t.Errorf("existing record user agent = %q, want original", v2.UserAgent)
	}
}

func TestInsertIfAbsentConcurrent(t *testing.T) {
	db := setupTestDB(t)
	ctx := context.Background()

	const workers = 16
	var (
		wg       sync.WaitGroup
		mu       sync.Mutex
		created  int
		ids      = make(map[uuid.UUID]struct{})
		firstErr error
	)

	for i := 0; i < workers; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			v, inserted, err := db.InsertIfAbsent(ctx, "198.51.100.1", testLocation(),
				models.OriginMetadata{})
			mu.Lock()
			defer mu.Unlock()
			if err != nil {
				if firstErr == nil {
					firstErr = err
				}
				return
			}
			if inserted {
				created++
			}
			ids[v.ID] = struct{}{}
		}()
	}
	wg.Wait()

	if firstErr != nil {
		t.Fatalf("concurrent InsertIfAbsent failed: %v", firstErr)
	}
	if created != 1 {
		t.Errorf("inserted=true reported %d times, want exactly 1", created)
	}
	if len(ids) != 1 {
		t.Errorf("observed %d distinct ids, want 1", len(ids))
	}

	visitors, err := db.ListAll(ctx)
	if err != nil {
		t.Fatalf("ListAll failed: %v", err)
	}
	if len(visitors) != 1 {
		t.Errorf("store holds %d visitors, want 1", len(visitors))
	}
}

func TestFindByOrigin(t *testing.T) {
	db := setupTestDB(t)
	ctx := context.Background()

	v, err := db.FindByOrigin(ctx, "192.0.2.55")
	if err != nil {
		t.Fatalf("FindByOrigin failed: %v", err)
	}
	if v != nil {
		t.Errorf("expected nil for unknown origin, got %+v", v)
	}

	want, _, err := db.InsertIfAbsent(ctx, "192.0.2.55", testLocation(), models.OriginMetadata{})
	if err != nil {
		t.Fatalf("InsertIfAbsent failed: %v", err)
	}

	got, err := db.FindByOrigin(ctx, "192.0.2.55")
	if err != nil {
		t.Fatalf("FindByOrigin failed: %v", err)
	}
	if got == nil || got.ID != want.ID {
		t.Errorf("FindByOrigin returned %+v, want id %s", got, want.ID)
	}
}

func TestGetByID(t *testing.T) {
	db := setupTestDB(t)
	ctx := context.Background()

	v, err := db.GetByID(ctx, uuid.New())
	if err != nil {
		t.Fatalf("GetByID failed: %v", err)
	}
	if v != nil {
		t.Errorf("expected nil for unknown id, got %+v", v)
	}

	want, _, err := db.InsertIfAbsent(ctx, "192.0.2.9", testLocation(), models.OriginMetadata{})
	if err != nil {
		t.Fatalf("InsertIfAbsent failed: %v", err)
	}

	got, err := db.GetByID(ctx, want.ID)
	if err != nil {
		t.Fatalf("GetByID failed: %v", err)
	}
	if got == nil || got.OriginKey != "192.0.2.9" {
		t.Errorf("GetByID returned %+v, want origin 192.0.2.9", got)
	}
}

func TestUpdatePartialMerge(t *testing.T) {
	db := setupTestDB(t)
	ctx := context.Background()

	v, _, err := db.InsertIfAbsent(ctx, "203.0.113.20", testLocation(), models.OriginMetadata{})
	if err != nil {
		t.Fatalf("InsertIfAbsent failed: %v", err)
	}

	// Set both fields.
	updated, err := db.Update(ctx, v.ID, models.ProfileUpdate{
		DisplayName: strptr("wanderer"),
		AvatarRef:   strptr("avatars/w.png"),
	})
	if err != nil {
		t.Fatalf("Update failed: %v", err)
	}
	if updated.Profile.DisplayName == nil || *updated.Profile.DisplayName != "wanderer" {
		t.Errorf("display name = %v, want wanderer", updated.Profile.DisplayName)
	}
	if updated.Profile.AvatarRef == nil || *updated.Profile.AvatarRef != "avatars/w.png" {
		t.Errorf("avatar ref = %v, want avatars/w.png", updated.Profile.AvatarRef)
	}
	if !updated.UpdatedAt.After(v.UpdatedAt) && !updated.UpdatedAt.Equal(v.UpdatedAt) {
		t.Errorf("updatedAt went backwards: %v -> %v", v.UpdatedAt, updated.UpdatedAt)
	}

	// A nil field must leave the stored value untouched.
	updated2, err := db.Update(ctx, v.ID, models.ProfileUpdate{
		AvatarRef: strptr("avatars/w2.png"),
	})
	if err != nil {
		t.Fatalf("partial Update failed: %v", err)
	}
	if updated2.Profile.DisplayName == nil || *updated2.Profile.DisplayName != "wanderer" {
		t.Errorf("display name changed by partial update: %v", updated2.Profile.DisplayName)
	}
	if updated2.Profile.AvatarRef == nil || *updated2.Profile.AvatarRef != "avatars/w2.png" {
		t.Errorf("avatar ref = %v, want avatars/w2.png", updated2.Profile.AvatarRef)
	}

	// An explicit empty string clears the field; nil leaves it alone.
	updated3, err := db.Update(ctx, v.ID, models.ProfileUpdate{
		DisplayName: strptr(""),
	})
	if err != nil {
		t.Fatalf("clearing Update failed: %v", err)
	}
	if updated3.Profile.DisplayName == nil || *updated3.Profile.DisplayName != "" {
		t.Errorf("display name = %v, want cleared empty string", updated3.Profile.DisplayName)
	}
}

func TestUpdateErrors(t *testing.T) {
	db := setupTestDB(t)
	ctx := context.Background()

	v, _, err := db.InsertIfAbsent(ctx, "203.0.113.30", testLocation(), models.OriginMetadata{})
	if err != nil {
		t.Fatalf("InsertIfAbsent failed: %v", err)
	}

	if _, err := db.Update(ctx, uuid.New(), models.ProfileUpdate{DisplayName: strptr("x")}); !errors.Is(err, ErrNotFound) {
		t.Errorf("unknown id: got %v, want ErrNotFound", err)
	}

	long := strings.Repeat("a", models.MaxDisplayNameLen+1)
	if _, err := db.Update(ctx, v.ID, models.ProfileUpdate{DisplayName: &long}); !errors.Is(err, ErrValidation) {
		t.Errorf("oversized display name: got %v, want ErrValidation", err)
	}

	if _, err := db.Update(ctx, v.ID, models.ProfileUpdate{}); !errors.Is(err, ErrValidation) {
		t.Errorf("empty update: got %v, want ErrValidation", err)
	}

	// The failed updates must not have touched the record.
	cur, err := db.GetByID(ctx, v.ID)
	if err != nil {
		t.Fatalf("GetByID failed: %v", err)
	}
	if cur.Profile.DisplayName != nil {
		t.Errorf("display name = %v after failed updates, want nil", cur.Profile.DisplayName)
	}
}

// TestUpdateConcurrentSameID checks that simultaneous updates to one record
// all succeed. DuckDB aborts concurrent writes to the same row with a
// transaction conflict, so the store has to queue them itself.
func TestUpdateConcurrentSameID(t *testing.T) {
	db := setupTestDB(t)
	ctx := context.Background()

	v, _, err := db.InsertIfAbsent(ctx, "203.0.113.77", testLocation(), models.OriginMetadata{})
	if err != nil {
		t.Fatalf("InsertIfAbsent failed: %v", err)
	}

	const rounds = 50
	var (
		wg       sync.WaitGroup
		mu       sync.Mutex
		firstErr error
	)
	for _, prefix := range []string{"left", "right"} {
		wg.Add(1)
		go func(prefix string) {
			defer wg.Done()
			for i := 0; i < rounds; i++ {
				name := fmt.Sprintf("%s-%d", prefix, i)
				if _, err := db.Update(ctx, v.ID, models.ProfileUpdate{DisplayName: &name}); err != nil {
					mu.Lock()
					if firstErr == nil {
						firstErr = err
					}
					mu.Unlock()
					return
				}
			}
		}(prefix)
	}
	wg.Wait()

	if firstErr != nil {
		t.Fatalf("concurrent Update failed: %v", firstErr)
	}

	// The final state is whichever writer committed last.
	cur, err := db.GetByID(ctx, v.ID)
	if err != nil {
		t.Fatalf("GetByID failed: %v", err)
	}
	last := fmt.Sprintf("-%d", rounds-1)
	if cur.Profile.DisplayName == nil || !strings.HasSuffix(*cur.Profile.DisplayName, last) {
		t.Errorf("final display name %v, want a round-%d value", cur.Profile.DisplayName, rounds-1)
	}
}

func TestDelete(t *testing.T) {
	db := setupTestDB(t)
	ctx := context.Background()

	v, _, err := db.InsertIfAbsent(ctx, "203.0.113.40", testLocation(), models.OriginMetadata{})
	if err != nil {
		t.Fatalf("InsertIfAbsent failed: %v", err)
	}

	deleted, err := db.Delete(ctx, v.ID)
	if err != nil {
		t.Fatalf("Delete failed: %v", err)
	}
	if !deleted {
		t.Error("expected deleted=true for existing visitor")
	}

	deleted, err = db.Delete(ctx, v.ID)
	if err != nil {
		t.Fatalf("second Delete failed: %v", err)
	}
	if deleted {
		t.Error("expected deleted=false for already-deleted visitor")
	}

	// The origin is free again after deletion.
	_, inserted, err := db.InsertIfAbsent(ctx, "203.0.113.40", testLocation(), models.OriginMetadata{})
	if err != nil {
		t.Fatalf("re-insert after delete failed: %v", err)
	}
	if !inserted {
		t.Error("expected re-insert after delete to create a fresh record")
	}
}

func TestListAllOrder(t *testing.T) {
	db := setupTestDB(t)
	ctx := context.Background()

	for i := 0; i < 5; i++ {
		origin := fmt.Sprintf("203.0.113.%d", 100+i)
		if _, _, err := db.InsertIfAbsent(ctx, origin, testLocation(), models.OriginMetadata{}); err != nil {
			t.Fatalf("InsertIfAbsent %s failed: %v", origin, err)
		}
		time.Sleep(2 * time.Millisecond)
	}

	visitors, err := db.ListAll(ctx)
	if err != nil {
		t.Fatalf("ListAll failed: %v", err)
	}
	if len(visitors) != 5 {
		t.Fatalf("got %d visitors, want 5", len(visitors))
	}
	for i := 1; i < len(visitors); i++ {
		if visitors[i].CreatedAt.Before(visitors[i-1].CreatedAt) {
			t.Errorf("visitors out of creation order at index %d", i)
		}
	}
}

func TestClearAll(t *testing.T) {
	db := setupTestDB(t)
	ctx := context.Background()

	v, _, err := db.InsertIfAbsent(ctx, "203.0.113.50", testLocation(), models.OriginMetadata{})
	if err != nil {
		t.Fatalf("InsertIfAbsent failed: %v", err)
	}
	if err := db.RecordAudit(ctx, models.AuditEntry{
		OriginKey: v.OriginKey,
		Action:    models.AuditActionCreateVisitor,
		VisitorID: v.ID.String(),
	}); err != nil {
		t.Fatalf("RecordAudit failed: %v", err)
	}

	if err := db.ClearAll(ctx); err != nil {
		t.Fatalf("ClearAll failed: %v", err)
	}

	visitors, err := db.ListAll(ctx)
	if err != nil {
		t.Fatalf("ListAll failed: %v", err)
	}
	if len(visitors) != 0 {
		t.Errorf("got %d visitors after clear, want 0", len(visitors))
	}

	entries, err := db.ListAudit(ctx, 10)
	if err != nil {
		t.Fatalf("ListAudit failed: %v", err)
	}
	if len(entries) != 0 {
		t.Errorf("got %d audit entries after clear, want 0", len(entries))
	}
}
