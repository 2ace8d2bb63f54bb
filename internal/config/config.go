// Visitormap - Real-Time Visitor Map and Presence Synchronization
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/visitormap

// Package config provides layered configuration loading for Visitormap.
//
// Configuration is loaded via Koanf v2 with the following precedence
// (highest wins):
//
//  1. Environment variables
//  2. Optional YAML config file (CONFIG_PATH or config.yaml)
//  3. Built-in defaults
package config

import (
	"fmt"
	"time"
)

// Config is the root configuration for the Visitormap server.
type Config struct {
	Server      ServerConfig      `koanf:"server"`
	Database    DatabaseConfig    `koanf:"database"`
	Geolocation GeolocationConfig `koanf:"geolocation"`
	Presence    PresenceConfig    `koanf:"presence"`
	Security    SecurityConfig    `koanf:"security"`
	Logging     LoggingConfig     `koanf:"logging"`
}

// ServerConfig holds HTTP server settings.
type ServerConfig struct {
	Host    string        `koanf:"host"`
	Port    int           `koanf:"port"`
	Timeout time.Duration `koanf:"timeout"` // read/write timeout for HTTP handlers
}

// DatabaseConfig holds DuckDB settings for the visitor store.
type DatabaseConfig struct {
	// Path is the DuckDB database file, or ":memory:" for an ephemeral store.
	Path      string `koanf:"path"`
	MaxMemory string `koanf:"max_memory"`
	Threads   int    `koanf:"threads"` // 0 = runtime.NumCPU()
}

// GeolocationConfig configures the external IP geolocation lookup and its
// fallback behavior. The fallback location must be fully populated; it is
// returned whenever the external lookup cannot produce a real location.
type GeolocationConfig struct {
	// APIURL is the lookup endpoint; the origin key is appended to it.
	// The response is expected in ip-api.com form ({"status":"success",...}).
	APIURL string `koanf:"api_url"`

	// Timeout bounds a single outbound lookup.
	Timeout time.Duration `koanf:"timeout"`

	// RequestsPerMinute caps outbound lookups (free ip-api tier allows 45/min).
	// 0 disables the cap.
	RequestsPerMinute int `koanf:"requests_per_minute"`

	Fallback FallbackLocation `koanf:"fallback"`
}

// FallbackLocation is the fixed location used when lookup fails or the origin
// is private/loopback.
type FallbackLocation struct {
	Latitude  float64 `koanf:"latitude"`
	Longitude float64 `koanf:"longitude"`
	City      string  `koanf:"city"`
	Country   string  `koanf:"country"`
	Region    string  `koanf:"region"`
}

// PresenceConfig tunes the presence broadcaster.
type PresenceConfig struct {
	// SessionBuffer is the per-session event queue depth. A session whose
	// queue is full is dropped rather than allowed to stall the others.
	SessionBuffer int `koanf:"session_buffer"`
}

// SecurityConfig holds the admin credentials and HTTP protections.
type SecurityConfig struct {
	AdminUsername     string        `koanf:"admin_username"`
	AdminPassword     string        `koanf:"admin_password"`
	CORSOrigins       []string      `koanf:"cors_origins"`
	RateLimitReqs     int           `koanf:"rate_limit_reqs"`
	RateLimitWindow   time.Duration `koanf:"rate_limit_window"`
	RateLimitDisabled bool          `koanf:"rate_limit_disabled"`
}

// LoggingConfig holds logging settings.
type LoggingConfig struct {
	Level  string `koanf:"level"`
	Format string `koanf:"format"`
	Caller bool   `koanf:"caller"`
}

// Validate checks configuration invariants that would otherwise surface as
// confusing runtime failures.
func (c *Config) Validate() error {
	if c.Server.Port < 1 || c.Server.Port > 65535 {
		return fmt.Errorf("server.port must be in 1-65535, got %d", c.Server.Port)
	}
	if c.Database.Path == "" {
		return fmt.Errorf("database.path is required")
	}
	if c.Geolocation.Timeout <= 0 {
		return fmt.Errorf("geolocation.timeout must be positive, got %s", c.Geolocation.Timeout)
	}
	if c.Geolocation.Fallback.City == "" || c.Geolocation.Fallback.Country == "" {
		return fmt.Errorf("geolocation.fallback must be fully populated (city and country required)")
	}
	if c.Presence.SessionBuffer < 1 {
		return fmt.Errorf("presence.session_buffer must be at least 1, got %d", c.Presence.SessionBuffer)
	}
	if c.Security.AdminPassword != "" && len(c.Security.AdminPassword) < 8 {
		return fmt.Errorf("security.admin_password must be at least 8 characters")
	}
	return nil
}

// AdminEnabled reports whether the administrative surface is configured.
// Without credentials the admin routes are not mounted at all rather than
// running open.
func (c *Config) AdminEnabled() bool {
	return c.Security.AdminUsername != "" && c.Security.AdminPassword != ""
}
