// Visitormap - Real-Time Visitor Map and Presence Synchronization
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/visitormap

package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"
)

func TestDefaults(t *testing.T) {
	cfg, err := Load()
	if err != nil {
		t.Fatalf("Load() with defaults failed: %v", err)
	}

	if cfg.Server.Port != 3857 {
		t.Errorf("default port = %d, want 3857", cfg.Server.Port)
	}
	if cfg.Geolocation.Timeout != 5*time.Second {
		t.Errorf("default geolocation timeout = %s, want 5s", cfg.Geolocation.Timeout)
	}
	if cfg.Geolocation.Fallback.City != "Istanbul" {
		t.Errorf("default fallback city = %q, want Istanbul", cfg.Geolocation.Fallback.City)
	}
	if cfg.Presence.SessionBuffer != 256 {
		t.Errorf("default session buffer = %d, want 256", cfg.Presence.SessionBuffer)
	}
}

func TestEnvOverrides(t *testing.T) {
	t.Setenv("SERVER_PORT", "8080")
	t.Setenv("DATABASE_PATH", ":memory:")
	t.Setenv("GEOLOCATION_FALLBACK_CITY", "Berlin")
	t.Setenv("GEOLOCATION_FALLBACK_COUNTRY", "Germany")
	t.Setenv("SECURITY_CORS_ORIGINS", "https://a.example, https://b.example")

	cfg, err := Load()
	if err != nil {
		t.Fatalf("Load() failed: %v", err)
	}

	if cfg.Server.Port != 8080 {
		t.Errorf("port = %d, want 8080", cfg.Server.Port)
	}
	if cfg.Database.Path != ":memory:" {
		t.Errorf("database path = %q, want :memory:", cfg.Database.Path)
	}
	if cfg.Geolocation.Fallback.City != "Berlin" {
		t.Errorf("fallback city = %q, want Berlin", cfg.Geolocation.Fallback.City)
	}
	want := []string{"https://a.example", "https://b.example"}
	if len(cfg.Security.CORSOrigins) != len(want) {
		t.Fatalf("cors origins = %v, want %v", cfg.Security.CORSOrigins, want)
	}
	for i, origin := range want {
		if cfg.Security.CORSOrigins[i] != origin {
			t.Errorf("cors origins[%d] = %q, want %q", i, cfg.Security.CORSOrigins[i], origin)
		}
	}
}

func TestConfigFile(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "config.yaml")
	content := []byte("server:\n  port: 9999\ngeolocation:\n  fallback:\n    city: Oslo\n    country: Norway\n")
	if err := os.WriteFile(path, content, 0o600); err != nil {
		t.Fatalf("write config file: %v", err)
	}
	t.Setenv(ConfigPathEnvVar, path)

	cfg, err := Load()
	if err != nil {
		t.Fatalf("Load() failed: %v", err)
	}
	if cfg.Server.Port != 9999 {
		t.Errorf("port = %d, want 9999 from file", cfg.Server.Port)
	}
	if cfg.Geolocation.Fallback.City != "Oslo" {
		t.Errorf("fallback city = %q, want Oslo from file", cfg.Geolocation.Fallback.City)
	}
}

func TestEnvBeatsFile(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "config.yaml")
	if err := os.WriteFile(path, []byte("server:\n  port: 9999\n"), 0o600); err != nil {
		t.Fatalf("write config file: %v", err)
	}
	t.Setenv(ConfigPathEnvVar, path)
	t.Setenv("SERVER_PORT", "7777")

	cfg, err := Load()
	if err != nil {
		t.Fatalf("Load() failed: %v", err)
	}
	if cfg.Server.Port != 7777 {
		t.Errorf("port = %d, want env override 7777", cfg.Server.Port)
	}
}

func TestValidate(t *testing.T) {
	tests := []struct {
		name    string
		mutate  func(*Config)
		wantErr bool
	}{
		{"valid defaults", func(c *Config) {}, false},
		{"port zero", func(c *Config) { c.Server.Port = 0 }, true},
		{"port too large", func(c *Config) { c.Server.Port = 70000 }, true},
		{"empty db path", func(c *Config) { c.Database.Path = "" }, true},
		{"zero geo timeout", func(c *Config) { c.Geolocation.Timeout = 0 }, true},
		{"empty fallback city", func(c *Config) { c.Geolocation.Fallback.City = "" }, true},
		{"zero session buffer", func(c *Config) { c.Presence.SessionBuffer = 0 }, true},
		{"short admin password", func(c *Config) { c.Security.AdminPassword = "short" }, true},
		{"good admin password", func(c *Config) {
			c.Security.AdminUsername = "admin"
			c.Security.AdminPassword = "long-enough-pw"
		}, false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := defaultConfig()
			tt.mutate(cfg)
			err := cfg.Validate()
			if (err != nil) != tt.wantErr {
				t.Errorf("Validate() error = %v, wantErr %v", err, tt.wantErr)
			}
		})
	}
}

func TestAdminEnabled(t *testing.T) {
	cfg := defaultConfig()
	if cfg.AdminEnabled() {
		t.Error("AdminEnabled() should be false without credentials")
	}
	cfg.Security.AdminUsername = "admin"
	cfg.Security.AdminPassword = "password123"
	if !cfg.AdminEnabled() {
		t.Error("AdminEnabled() should be true with credentials")
	}
}

func TestEnvTransformFunc(t *testing.T) {
	tests := []struct {
		in   string
		want string
	}{
		{"SERVER_PORT", "server.port"},
		{"DATABASE_MAX_MEMORY", "database.max_memory"},
		{"GEOLOCATION_API_URL", "geolocation.api_url"},
		{"GEOLOCATION_FALLBACK_CITY", "geolocation.fallback.city"},
		{"SECURITY_ADMIN_PASSWORD", "security.admin_password"},
		{"PATH", ""},
		{"HOME", ""},
	}

	for _, tt := range tests {
		if got := envTransformFunc(tt.in); got != tt.want {
			t.Errorf("envTransformFunc(%q) = %q, want %q", tt.in, got, tt.want)
		}
	}
}
