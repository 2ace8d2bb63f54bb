// Visitormap - Real-Time Visitor Map and Presence Synchronization
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/visitormap

// Package main is the entry point for the Visitormap server.
//
// Visitormap puts every visitor of a site on a shared live map: the first
// request from an origin resolves to a stable anonymous identity with an
// approximate location, and every connected viewer sees arrivals, profile
// changes, and removals as they happen.
//
// # Application Architecture
//
// The server initializes components in the following order:
//
//  1. Configuration: layered settings via Koanf v2 (defaults, YAML, env)
//  2. Database: DuckDB-backed visitor store and audit log
//  3. Geolocation: rate-limited, circuit-broken ip-api style lookups
//  4. Presence broadcaster: atomic snapshot+subscribe session fan-out
//  5. Identity resolver: origin -> visitor lifecycle
//  6. Admin auth: HTTP basic auth with a bcrypt-hashed password
//  7. HTTP server: REST API, websocket stream, metrics, health
//
// The presence broadcaster and the HTTP server run under a suture
// supervision tree; a crash in one layer restarts that layer only.
//
// # Configuration
//
// Key environment variables (see internal/config for the full set):
//
//	SERVER_PORT                  listen port (default 3857)
//	DATABASE_PATH                DuckDB file, or :memory:
//	GEOLOCATION_API_URL          lookup endpoint (ip-api.com form)
//	GEOLOCATION_FALLBACK_CITY    fallback location fields
//	SECURITY_ADMIN_USERNAME      admin credentials; admin surface is
//	SECURITY_ADMIN_PASSWORD      disabled entirely when unset
//
// # Signal Handling
//
// SIGINT and SIGTERM trigger graceful shutdown: the HTTP server drains
// in-flight requests (10s bound), presence sessions are closed, and the
// database is checkpointed on close.
package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"

	"github.com/tomtom215/visitormap/internal/api"
	"github.com/tomtom215/visitormap/internal/auth"
	"github.com/tomtom215/visitormap/internal/config"
	"github.com/tomtom215/visitormap/internal/database"
	"github.com/tomtom215/visitormap/internal/geo"
	"github.com/tomtom215/visitormap/internal/identity"
	"github.com/tomtom215/visitormap/internal/logging"
	"github.com/tomtom215/visitormap/internal/presence"
	"github.com/tomtom215/visitormap/internal/supervisor"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		logging.Fatal().Err(err).Msg("failed to load configuration")
	}

	logging.Init(logging.Config{
		Level:  cfg.Logging.Level,
		Format: cfg.Logging.Format,
		Caller: cfg.Logging.Caller,
	})
	logging.Info().
		Str("addr", fmt.Sprintf("%s:%d", cfg.Server.Host, cfg.Server.Port)).
		Str("database", cfg.Database.Path).
		Msg("starting visitormap")

	db, err := database.New(&cfg.Database)
	if err != nil {
		logging.Fatal().Err(err).Msg("failed to initialize visitor store")
	}
	defer func() {
		if err := db.Close(); err != nil {
			logging.Error().Err(err).Msg("failed to close visitor store")
		}
	}()

	broadcaster := presence.NewBroadcaster(cfg.Presence.SessionBuffer)
	resolver := identity.NewResolver(db, geo.NewResolver(&cfg.Geolocation), broadcaster)

	var adminAuth *auth.BasicAuthManager
	if cfg.AdminEnabled() {
		adminAuth, err = auth.NewBasicAuthManager(cfg.Security.AdminUsername, cfg.Security.AdminPassword)
		if err != nil {
			logging.Fatal().Err(err).Msg("invalid admin credentials")
		}
	} else {
		logging.Warn().Msg("admin credentials not configured; admin surface disabled")
	}

	handler := api.NewHandler(cfg, resolver, broadcaster, db)
	server := &http.Server{
		Addr:         fmt.Sprintf("%s:%d", cfg.Server.Host, cfg.Server.Port),
		Handler:      api.NewRouter(cfg, handler, adminAuth),
		ReadTimeout:  cfg.Server.Timeout,
		WriteTimeout: 0, // websocket connections outlive any write timeout
	}

	tree := supervisor.NewTree(logging.NewSlogLogger(), supervisor.DefaultTreeConfig())
	tree.AddMessagingService(supervisor.NewBroadcasterService(broadcaster))
	tree.AddAPIService(supervisor.NewHTTPServerService(server, supervisor.DefaultTreeConfig().ShutdownTimeout))

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	if err := tree.Serve(ctx); err != nil && !errors.Is(err, context.Canceled) {
		logging.Error().Err(err).Msg("supervisor tree exited")
		os.Exit(1)
	}

	logging.Info().Msg("visitormap stopped")
}
