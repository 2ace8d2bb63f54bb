// Visitormap - Real-Time Visitor Map and Presence Synchronization
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/visitormap

package database

import (
	"context"
	"fmt"
)

// createSchema creates the visitor and audit tables.
//
// The UNIQUE constraint on visitors.origin_key is the storage-layer
// enforcement closing the check-then-act race in identity resolution:
// concurrent inserts for the same origin resolve to exactly one row.
func (db *DB) createSchema() error {
	ctx, cancel := context.WithTimeout(context.Background(), defaultQueryTimeout)
	defer cancel()

	statements := []string{
		`CREATE SEQUENCE IF NOT EXISTS audit_log_id_seq`,
		`CREATE TABLE IF NOT EXISTS visitors (
			id VARCHAR PRIMARY KEY,
			origin_key VARCHAR NOT NULL UNIQUE,
			latitude DOUBLE NOT NULL,
			longitude DOUBLE NOT NULL,
			city VARCHAR NOT NULL,
			country VARCHAR NOT NULL,
			region VARCHAR NOT NULL,
			display_name VARCHAR,
			avatar_ref VARCHAR,
			user_agent VARCHAR,
			created_at TIMESTAMP NOT NULL,
			updated_at TIMESTAMP NOT NULL
		)`,
		`CREATE TABLE IF NOT EXISTS audit_log (
			id BIGINT PRIMARY KEY DEFAULT nextval('audit_log_id_seq'),
			origin_key VARCHAR NOT NULL,
			action VARCHAR NOT NULL,
			user_agent VARCHAR,
			city VARCHAR,
			country VARCHAR,
			region VARCHAR,
			visitor_id VARCHAR,
			ts TIMESTAMP NOT NULL
		)`,
		`CREATE INDEX IF NOT EXISTS idx_visitors_created_at ON visitors(created_at)`,
		`CREATE INDEX IF NOT EXISTS idx_audit_log_ts ON audit_log(ts)`,
		`CREATE INDEX IF NOT EXISTS idx_audit_log_visitor_id ON audit_log(visitor_id)`,
	}

	for _, stmt := range statements {
		if _, err := db.conn.ExecContext(ctx, stmt); err != nil {
			return fmt.Errorf("schema statement failed: %w", err)
		}
	}

	return nil
}
