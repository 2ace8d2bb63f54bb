// Visitormap - Real-Time Visitor Map and Presence Synchronization
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/visitormap

package database

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/tomtom215/visitormap/internal/metrics"
	"github.com/tomtom215/visitormap/internal/models"
)

// RecordAudit appends an entry to the audit log. Audit writes are advisory:
// callers typically log the error and continue rather than failing the
// visitor operation that triggered the entry.
func (db *DB) RecordAudit(ctx context.Context, entry models.AuditEntry) (err error) {
	start := time.Now()
	defer func() { metrics.ObserveStoreQuery("record_audit", start, err) }()

	ctx, cancel := db.ensureContext(ctx)
	defer cancel()

	ts := entry.Timestamp
	if ts.IsZero() {
		ts = time.Now().UTC()
	}

	var visitorID interface{}
	if entry.VisitorID != "" {
		visitorID = entry.VisitorID
	}

	_, err = db.conn.ExecContext(ctx, `
		INSERT INTO audit_log (origin_key, action, user_agent, city, country, region, visitor_id, ts)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?)`,
		entry.OriginKey, entry.Action, entry.UserAgent,
		entry.City, entry.Country, entry.Region, visitorID, ts,
	)
	if err != nil {
		return fmt.Errorf("failed to record audit entry: %w", err)
	}
	return nil
}

// ListAudit returns the most recent audit entries, newest first, capped at
// limit. A non-positive limit falls back to 100.
func (db *DB) ListAudit(ctx context.Context, limit int) (entries []models.AuditEntry, err error) {
	start := time.Now()
	defer func() { metrics.ObserveStoreQuery("list_audit", start, err) }()

	ctx, cancel := db.ensureContext(ctx)
	defer cancel()

	if limit <= 0 {
		limit = 100
	}

	rows, err := db.conn.QueryContext(ctx, `
		SELECT id, origin_key, action, user_agent, city, country, region, visitor_id, ts
		FROM audit_log
		ORDER BY ts DESC, id DESC
		LIMIT ?`, limit)
	if err != nil {
		return nil, fmt.Errorf("failed to list audit entries: %w", err)
	}
	defer rows.Close()

	entries = make([]models.AuditEntry, 0, limit)
	for rows.Next() {
		var (
			e         models.AuditEntry
			userAgent sql.NullString
			visitorID sql.NullString
		)
		if err := rows.Scan(&e.ID, &e.OriginKey, &e.Action, &userAgent,
			&e.City, &e.Country, &e.Region, &visitorID, &e.Timestamp); err != nil {
			return nil, fmt.Errorf("failed to scan audit entry: %w", err)
		}
		e.UserAgent = userAgent.String
		e.VisitorID = visitorID.String
		entries = append(entries, e)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating audit entries: %w", err)
	}

	return entries, nil
}

// ClearAudit empties the audit log without touching visitors.
func (db *DB) ClearAudit(ctx context.Context) (err error) {
	start := time.Now()
	defer func() { metrics.ObserveStoreQuery("clear_audit", start, err) }()

	ctx, cancel := db.ensureContext(ctx)
	defer cancel()

	if _, err := db.conn.ExecContext(ctx, "DELETE FROM audit_log"); err != nil {
		return fmt.Errorf("failed to clear audit log: %w", err)
	}
	return nil
}
