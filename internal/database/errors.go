// Visitormap - Real-Time Visitor Map and Presence Synchronization
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/visitormap

package database

import "errors"

// Store error kinds. Callers branch with errors.Is; everything else wrapped
// out of this package is a fatal storage failure.
var (
	// ErrNotFound indicates an update or delete addressed an unknown visitor id.
	ErrNotFound = errors.New("visitor not found")

	// ErrValidation indicates the supplied data violates a store constraint
	// (display name too long, empty update).
	ErrValidation = errors.New("validation failed")
)
