// Visitormap - Real-Time Visitor Map and Presence Synchronization
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/visitormap

// Package auth guards the administrative surface with HTTP Basic
// Authentication. The configured password is bcrypt-hashed once at startup;
// per-request verification is constant-time.
package auth

import (
	"crypto/subtle"
	"encoding/base64"
	"fmt"
	"net/http"
	"strings"
	"time"

	json "github.com/goccy/go-json"
	"golang.org/x/crypto/bcrypt"

	"github.com/tomtom215/visitormap/internal/logging"
	"github.com/tomtom215/visitormap/internal/models"
)

// BasicAuthManager validates admin credentials.
type BasicAuthManager struct {
	username     string
	passwordHash []byte
}

// NewBasicAuthManager hashes the admin password up front so request handling
// never sees the plaintext.
func NewBasicAuthManager(username, password string) (*BasicAuthManager, error) {
	if username == "" {
		return nil, fmt.Errorf("admin username is required")
	}
	if len(password) < 8 {
		return nil, fmt.Errorf("admin password must be at least 8 characters")
	}

	hash, err := bcrypt.GenerateFromPassword([]byte(password), 12)
	if err != nil {
		return nil, fmt.Errorf("failed to hash admin password: %w", err)
	}

	return &BasicAuthManager{username: username, passwordHash: hash}, nil
}

// ValidateCredentials checks an Authorization header value. Username and
// password comparisons both always run, so a rejected username costs the
// same as a rejected password.
func (m *BasicAuthManager) ValidateCredentials(authHeader string) error {
	if !strings.HasPrefix(authHeader, "Basic ") {
		return fmt.Errorf("invalid authorization header format")
	}

	decoded, err := base64.StdEncoding.DecodeString(strings.TrimPrefix(authHeader, "Basic "))
	if err != nil {
		return fmt.Errorf("failed to decode credentials")
	}

	parts := strings.SplitN(string(decoded), ":", 2)
	if len(parts) != 2 {
		return fmt.Errorf("invalid credentials format")
	}

	usernameMatch := subtle.ConstantTimeCompare([]byte(parts[0]), []byte(m.username)) == 1
	passwordMatch := bcrypt.CompareHashAndPassword(m.passwordHash, []byte(parts[1])) == nil
	if !usernameMatch || !passwordMatch {
		return fmt.Errorf("invalid username or password")
	}
	return nil
}

// Middleware rejects requests that do not carry valid admin credentials.
func (m *BasicAuthManager) Middleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if err := m.ValidateCredentials(r.Header.Get("Authorization")); err != nil {
			logging.Warn().
				Str("path", r.URL.Path).
				Str("remote", r.RemoteAddr).
				Msg("admin authentication failed")

			w.Header().Set("WWW-Authenticate", `Basic realm="Visitormap Admin", charset="UTF-8"`)
			w.Header().Set("Content-Type", "application/json")
			w.WriteHeader(http.StatusUnauthorized)
			_ = json.NewEncoder(w).Encode(models.APIResponse{
				Status:   "error",
				Metadata: models.Metadata{Timestamp: time.Now().UTC()},
				Error: &models.APIError{
					Code:    "UNAUTHORIZED",
					Message: "Valid administrator credentials required",
				},
			})
			return
		}
		next.ServeHTTP(w, r)
	})
}
