// Visitormap - Real-Time Visitor Map and Presence Synchronization
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/visitormap

// Package database implements the canonical visitor store on DuckDB.
//
// The store owns the one-record-per-origin invariant: visitors carry a UNIQUE
// constraint on origin_key, and InsertIfAbsent resolves concurrent first
// contact races at the storage layer, so no application-level global lock is
// needed for deduplication.
package database

import (
	"context"
	"database/sql"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"runtime"
	"sync"
	"time"

	_ "github.com/duckdb/duckdb-go/v2"
	"github.com/google/uuid"

	"github.com/tomtom215/visitormap/internal/config"
	"github.com/tomtom215/visitormap/internal/logging"
)

// defaultQueryTimeout bounds store operations that are called without a
// deadline already attached.
const defaultQueryTimeout = 30 * time.Second

// DB wraps the DuckDB connection and provides visitor store access methods.
type DB struct {
	conn *sql.DB
	cfg  *config.DatabaseConfig

	// originLocks serializes writes per origin key. DuckDB resolves the
	// uniqueness race correctly on its own; the per-origin lock avoids
	// spurious transaction conflicts between hot retries on the same key
	// while leaving distinct origins fully concurrent.
	originLocks sync.Map

	// recordLocks serializes Update/Delete per visitor id. DuckDB uses
	// optimistic concurrency control: two in-flight writes to the same row
	// fail with a transaction conflict rather than queueing, so same-record
	// mutations must be serialized above the engine.
	recordLocks sync.Map
}

// New creates a new database connection and initializes the schema.
func New(cfg *config.DatabaseConfig) (*DB, error) {
	numThreads := cfg.Threads
	if numThreads <= 0 {
		numThreads = runtime.NumCPU()
	}

	// Ensure the parent directory exists for file-backed databases.
	if cfg.Path != ":memory:" {
		if dbDir := filepath.Dir(cfg.Path); dbDir != "" && dbDir != "." {
			if err := os.MkdirAll(dbDir, 0o750); err != nil {
				return nil, fmt.Errorf("failed to create database directory %s: %w", dbDir, err)
			}
		}
	}

	connStr := fmt.Sprintf("%s?access_mode=read_write&threads=%d&max_memory=%s",
		cfg.Path, numThreads, cfg.MaxMemory)

	conn, err := sql.Open("duckdb", connStr)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	db := &DB{conn: conn, cfg: cfg}

	if err := db.createSchema(); err != nil {
		closeQuietly(conn)
		return nil, fmt.Errorf("failed to initialize schema: %w", err)
	}

	return db, nil
}

// Conn returns the underlying SQL connection for packages that need direct
// access (tests, mainly).
func (db *DB) Conn() *sql.DB {
	return db.conn
}

// Ping checks if the database connection is alive.
func (db *DB) Ping(ctx context.Context) error {
	if db.conn == nil {
		return fmt.Errorf("database connection is nil")
	}
	return db.conn.PingContext(ctx)
}

// Close flushes and closes the database connection. A best-effort CHECKPOINT
// flushes the WAL so the next startup does not replay it.
func (db *DB) Close() error {
	if db.conn == nil {
		return nil
	}

	ctx, cancel := context.WithTimeout(context.Background(), defaultQueryTimeout)
	defer cancel()
	if _, err := db.conn.ExecContext(ctx, "CHECKPOINT"); err != nil {
		logging.Warn().Err(err).Msg("failed to checkpoint database before close")
	}

	return db.conn.Close()
}

// ensureContext attaches the default timeout when the caller supplied a
// context without a deadline.
func (db *DB) ensureContext(ctx context.Context) (context.Context, context.CancelFunc) {
	if ctx == nil {
		return context.WithTimeout(context.Background(), defaultQueryTimeout)
	}
	if _, ok := ctx.Deadline(); ok {
		return ctx, func() {}
	}
	return context.WithTimeout(ctx, defaultQueryTimeout)
}

// acquireOriginLock locks the per-origin mutex, creating it on first use.
func (db *DB) acquireOriginLock(originKey string) *sync.Mutex {
	v, _ := db.originLocks.LoadOrStore(originKey, &sync.Mutex{})
	mu := v.(*sync.Mutex)
	mu.Lock()
	return mu
}

// acquireRecordLock locks the per-record mutex, creating it on first use.
func (db *DB) acquireRecordLock(id uuid.UUID) *sync.Mutex {
	v, _ := db.recordLocks.LoadOrStore(id, &sync.Mutex{})
	mu := v.(*sync.Mutex)
	mu.Lock()
	return mu
}

// closeQuietly closes a resource and explicitly ignores any error. Used in
// error paths where Close() errors are not actionable.
func closeQuietly(closer io.Closer) {
	if closer != nil {
		_ = closer.Close()
	}
}
