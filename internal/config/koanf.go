// Visitormap - Real-Time Visitor Map and Presence Synchronization
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/visitormap

package config

import (
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/knadh/koanf/parsers/yaml"
	"github.com/knadh/koanf/providers/env"
	"github.com/knadh/koanf/providers/file"
	"github.com/knadh/koanf/providers/structs"
	"github.com/knadh/koanf/v2"
)

// DefaultConfigPaths lists the paths where config files are searched in order
// of priority. The first file found wins.
var DefaultConfigPaths = []string{
	"config.yaml",
	"config.yml",
	"/etc/visitormap/config.yaml",
	"/etc/visitormap/config.yml",
}

// ConfigPathEnvVar overrides the config file path when set.
const ConfigPathEnvVar = "CONFIG_PATH"

// defaultConfig returns a Config with all defaults applied. Defaults are
// loaded first, then overridden by the config file and environment variables.
func defaultConfig() *Config {
	return &Config{
		Server: ServerConfig{
			Host:    "0.0.0.0",
			Port:    3857,
			Timeout: 30 * time.Second,
		},
		Database: DatabaseConfig{
			Path:      "/data/visitormap.duckdb",
			MaxMemory: "512MB",
			Threads:   0, // 0 = use runtime.NumCPU()
		},
		Geolocation: GeolocationConfig{
			APIURL:            "http://ip-api.com/json/",
			Timeout:           5 * time.Second,
			RequestsPerMinute: 45,
			// The original deployment pinned unknown origins to Istanbul.
			Fallback: FallbackLocation{
				Latitude:  41.0082,
				Longitude: 28.9784,
				City:      "Istanbul",
				Country:   "Turkey",
				Region:    "Istanbul",
			},
		},
		Presence: PresenceConfig{
			SessionBuffer: 256,
		},
		Security: SecurityConfig{
			AdminUsername:     "",
			AdminPassword:     "",
			CORSOrigins:       []string{"*"},
			RateLimitReqs:     100,
			RateLimitWindow:   15 * time.Minute,
			RateLimitDisabled: false,
		},
		Logging: LoggingConfig{
			Level:  "info",
			Format: "json",
			Caller: false,
		},
	}
}

// Load loads configuration using Koanf v2 with layered sources:
//
//  1. Defaults: built-in sensible defaults
//  2. Config file: optional YAML file (if one exists)
//  3. Environment variables: override any setting
func Load() (*Config, error) {
	k := koanf.New(".")

	if err := k.Load(structs.Provider(defaultConfig(), "koanf"), nil); err != nil {
		return nil, fmt.Errorf("failed to load defaults: %w", err)
	}

	if configPath := findConfigFile(); configPath != "" {
		if err := k.Load(file.Provider(configPath), yaml.Parser()); err != nil {
			return nil, fmt.Errorf("failed to load config file %s: %w", configPath, err)
		}
	}

	// Environment variables map SECTION_FIELD to section.field:
	// SERVER_PORT -> server.port, GEOLOCATION_API_URL -> geolocation.api_url.
	if err := k.Load(env.Provider("", ".", envTransformFunc), nil); err != nil {
		return nil, fmt.Errorf("failed to load environment variables: %w", err)
	}

	if err := processSliceFields(k); err != nil {
		return nil, fmt.Errorf("failed to process slice fields: %w", err)
	}

	cfg := &Config{}
	if err := k.Unmarshal("", cfg); err != nil {
		return nil, fmt.Errorf("failed to unmarshal configuration: %w", err)
	}

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("configuration validation failed: %w", err)
	}

	return cfg, nil
}

// findConfigFile searches for a config file in the default paths. Returns the
// first file found, or empty string if none exists.
func findConfigFile() string {
	if envPath := os.Getenv(ConfigPathEnvVar); envPath != "" {
		if _, err := os.Stat(envPath); err == nil {
			return envPath
		}
	}

	for _, path := range DefaultConfigPaths {
		if _, err := os.Stat(path); err == nil {
			return path
		}
	}

	return ""
}

// sliceConfigPaths defines which config paths hold comma-separated slices
// when supplied via environment variables.
var sliceConfigPaths = []string{
	"security.cors_origins",
}

// processSliceFields converts comma-separated string values to slices for
// known slice fields. Env vars arrive as strings but the config wants slices.
func processSliceFields(k *koanf.Koanf) error {
	for _, path := range sliceConfigPaths {
		val := k.Get(path)
		if val == nil {
			continue
		}

		// Already a slice (from YAML) - nothing to do.
		if _, ok := val.([]interface{}); ok {
			continue
		}
		if _, ok := val.([]string); ok {
			continue
		}

		strVal, ok := val.(string)
		if !ok || strVal == "" {
			continue
		}

		parts := strings.Split(strVal, ",")
		trimmed := make([]string, 0, len(parts))
		for _, p := range parts {
			if p = strings.TrimSpace(p); p != "" {
				trimmed = append(trimmed, p)
			}
		}
		if len(trimmed) > 0 {
			if err := k.Set(path, trimmed); err != nil {
				return fmt.Errorf("failed to set %s: %w", path, err)
			}
		}
	}
	return nil
}

// knownSections are the top-level config sections an environment variable may
// address. Variables outside these prefixes are ignored so unrelated process
// environment (PATH, HOME, ...) never leaks into the config tree.
var knownSections = []string{
	"server", "database", "geolocation", "presence", "security", "logging",
}

// envTransformFunc maps environment variable names to koanf config paths:
//
//   - SERVER_PORT              -> server.port
//   - DATABASE_PATH            -> database.path
//   - GEOLOCATION_API_URL      -> geolocation.api_url
//   - GEOLOCATION_FALLBACK_CITY -> geolocation.fallback.city
//   - SECURITY_ADMIN_PASSWORD  -> security.admin_password
func envTransformFunc(key string) string {
	key = strings.ToLower(key)

	for _, section := range knownSections {
		prefix := section + "_"
		if !strings.HasPrefix(key, prefix) {
			continue
		}
		rest := strings.TrimPrefix(key, prefix)

		// Fallback sub-section nests one level deeper.
		if section == "geolocation" && strings.HasPrefix(rest, "fallback_") {
			return "geolocation.fallback." + strings.TrimPrefix(rest, "fallback_")
		}
		return section + "." + rest
	}

	// Not a recognized config variable; discard.
	return ""
}
