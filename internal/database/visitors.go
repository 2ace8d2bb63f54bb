// Visitormap - Real-Time Visitor Map and Presence Synchronization
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/visitormap

package database

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/tomtom215/visitormap/internal/metrics"
	"github.com/tomtom215/visitormap/internal/models"
)

const visitorColumns = `id, origin_key, latitude, longitude, city, country, region,
	display_name, avatar_ref, user_agent, created_at, updated_at`

// FindByOrigin looks up the visitor for an origin key. Returns (nil, nil)
// when no visitor exists for that origin; an error only when the query fails.
func (db *DB) FindByOrigin(ctx context.Context, originKey string) (v *models.Visitor, err error) {
	start := time.Now()
	defer func() { metrics.ObserveStoreQuery("find_by_origin", start, err) }()

	ctx, cancel := db.ensureContext(ctx)
	defer cancel()

	return db.queryOne(ctx, "origin_key", originKey)
}

// GetByID looks up a visitor by its stable id. Returns (nil, nil) when absent.
func (db *DB) GetByID(ctx context.Context, id uuid.UUID) (v *models.Visitor, err error) {
	start := time.Now()
	defer func() { metrics.ObserveStoreQuery("get_by_id", start, err) }()

	ctx, cancel := db.ensureContext(ctx)
	defer cancel()

	return db.queryOne(ctx, "id", id.String())
}

// InsertIfAbsent atomically creates a visitor for an origin key, or returns
// the existing record when another writer already holds the origin.
//
// The UNIQUE constraint on origin_key makes this the single point where
// concurrent first-contact races resolve: exactly one caller inserts
// (inserted=true), every other caller receives the winning record with
// inserted=false and no error.
func (db *DB) InsertIfAbsent(ctx context.Context, originKey string, loc models.Location, meta models.OriginMetadata) (v *models.Visitor, inserted bool, err error) {
	start := time.Now()
	defer func() { metrics.ObserveStoreQuery("insert_if_absent", start, err) }()

	mu := db.acquireOriginLock(originKey)
	defer mu.Unlock()

	ctx, cancel := db.ensureContext(ctx)
	defer cancel()

	now := time.Now().UTC()
	id := uuid.New()

	res, err := db.conn.ExecContext(ctx, `
		INSERT INTO visitors (id, origin_key, latitude, longitude, city, country, region,
			user_agent, created_at, updated_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT (origin_key) DO NOTHING`,
		id.String(), originKey, loc.Latitude, loc.Longitude, loc.City, loc.Country, loc.Region,
		meta.UserAgent, now, now,
	)
	if err != nil {
		return nil, false, fmt.Errorf("failed to insert visitor: %w", err)
	}

	affected, err := res.RowsAffected()
	if err != nil {
		return nil, false, fmt.Errorf("failed to read insert result: %w", err)
	}

	v, err = db.queryOne(ctx, "origin_key", originKey)
	if err != nil {
		return nil, false, err
	}
	if v == nil {
		// The row we just inserted (or lost the race to) must exist; its
		// absence means the store lost a committed write.
		return nil, false, fmt.Errorf("visitor for origin vanished after insert")
	}

	return v, affected > 0, nil
}

// Update merges a partial profile into an existing visitor. Only fields the
// update carries are written; nil fields stay untouched. Returns ErrNotFound
// for an unknown id and ErrValidation for an empty or oversized update.
func (db *DB) Update(ctx context.Context, id uuid.UUID, upd models.ProfileUpdate) (v *models.Visitor, err error) {
	start := time.Now()
	defer func() { metrics.ObserveStoreQuery("update", start, err) }()

	if upd.Empty() {
		return nil, fmt.Errorf("%w: update carries no fields", ErrValidation)
	}
	if upd.DisplayName != nil && len(*upd.DisplayName) > models.MaxDisplayNameLen {
		return nil, fmt.Errorf("%w: display name exceeds %d characters", ErrValidation, models.MaxDisplayNameLen)
	}

	// DuckDB aborts one of two concurrent writes to the same row with a
	// transaction conflict; the record lock queues them instead.
	mu := db.acquireRecordLock(id)
	defer mu.Unlock()

	ctx, cancel := db.ensureContext(ctx)
	defer cancel()

	setClauses := make([]string, 0, 3)
	args := make([]interface{}, 0, 4)
	if upd.DisplayName != nil {
		setClauses = append(setClauses, "display_name = ?")
		args = append(args, *upd.DisplayName)
	}
	if upd.AvatarRef != nil {
		setClauses = append(setClauses, "avatar_ref = ?")
		args = append(args, *upd.AvatarRef)
	}
	setClauses = append(setClauses, "updated_at = ?")
	args = append(args, time.Now().UTC(), id.String())

	query := fmt.Sprintf("UPDATE visitors SET %s WHERE id = ?", strings.Join(setClauses, ", "))
	res, err := db.conn.ExecContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to update visitor: %w", err)
	}

	affected, err := res.RowsAffected()
	if err != nil {
		return nil, fmt.Errorf("failed to read update result: %w", err)
	}
	if affected == 0 {
		return nil, fmt.Errorf("update %s: %w", id, ErrNotFound)
	}

	return db.queryOne(ctx, "id", id.String())
}

// Delete removes a visitor. Returns true when a row was deleted, false when
// the id was unknown.
func (db *DB) Delete(ctx context.Context, id uuid.UUID) (deleted bool, err error) {
	start := time.Now()
	defer func() { metrics.ObserveStoreQuery("delete", start, err) }()

	mu := db.acquireRecordLock(id)
	defer mu.Unlock()

	ctx, cancel := db.ensureContext(ctx)
	defer cancel()

	res, err := db.conn.ExecContext(ctx, "DELETE FROM visitors WHERE id = ?", id.String())
	if err != nil {
		return false, fmt.Errorf("failed to delete visitor: %w", err)
	}

	affected, err := res.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("failed to read delete result: %w", err)
	}
	return affected > 0, nil
}

// ListAll returns every visitor in stable creation order. Used for presence
// snapshots; the ordering keeps repeated snapshots comparable.
func (db *DB) ListAll(ctx context.Context) (visitors []models.Visitor, err error) {
	start := time.Now()
	defer func() { metrics.ObserveStoreQuery("list_all", start, err) }()

	ctx, cancel := db.ensureContext(ctx)
	defer cancel()

	rows, err := db.conn.QueryContext(ctx,
		fmt.Sprintf("SELECT %s FROM visitors ORDER BY created_at, id", visitorColumns))
	if err != nil {
		return nil, fmt.Errorf("failed to list visitors: %w", err)
	}
	defer rows.Close()

	visitors = make([]models.Visitor, 0)
	for rows.Next() {
		v, err := scanVisitor(rows)
		if err != nil {
			return nil, err
		}
		visitors = append(visitors, *v)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating visitors: %w", err)
	}

	return visitors, nil
}

// ClearAll removes every visitor and audit entry. Administrative reset only.
func (db *DB) ClearAll(ctx context.Context) (err error) {
	start := time.Now()
	defer func() { metrics.ObserveStoreQuery("clear_all", start, err) }()

	ctx, cancel := db.ensureContext(ctx)
	defer cancel()

	if _, err := db.conn.ExecContext(ctx, "DELETE FROM visitors"); err != nil {
		return fmt.Errorf("failed to clear visitors: %w", err)
	}
	if _, err := db.conn.ExecContext(ctx, "DELETE FROM audit_log"); err != nil {
		return fmt.Errorf("failed to clear audit log: %w", err)
	}
	return nil
}

// queryOne fetches a single visitor by an indexed column.
func (db *DB) queryOne(ctx context.Context, column, value string) (*models.Visitor, error) {
	query := fmt.Sprintf("SELECT %s FROM visitors WHERE %s = ?", visitorColumns, column)
	row := db.conn.QueryRowContext(ctx, query, value)

	v, err := scanVisitor(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return v, nil
}

// rowScanner is satisfied by both *sql.Row and *sql.Rows.
type rowScanner interface {
	Scan(dest ...interface{}) error
}

func scanVisitor(row rowScanner) (*models.Visitor, error) {
	var (
		v           models.Visitor
		idStr       string
		displayName sql.NullString
		avatarRef   sql.NullString
		userAgent   sql.NullString
	)

	err := row.Scan(
		&idStr, &v.OriginKey, &v.Location.Latitude, &v.Location.Longitude,
		&v.Location.City, &v.Location.Country, &v.Location.Region,
		&displayName, &avatarRef, &userAgent, &v.CreatedAt, &v.UpdatedAt,
	)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, err
		}
		return nil, fmt.Errorf("failed to scan visitor: %w", err)
	}

	v.ID, err = uuid.Parse(idStr)
	if err != nil {
		return nil, fmt.Errorf("invalid visitor id %q: %w", idStr, err)
	}
	if displayName.Valid {
		v.Profile.DisplayName = &displayName.String
	}
	if avatarRef.Valid {
		v.Profile.AvatarRef = &avatarRef.String
	}
	if userAgent.Valid {
		v.UserAgent = userAgent.String
	}

	return &v, nil
}
