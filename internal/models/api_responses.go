// Visitormap - Real-Time Visitor Map and Presence Synchronization
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/visitormap

package models

import (
	"time"

	"github.com/google/uuid"
)

// APIResponse is the standardized response wrapper used by all HTTP endpoints.
//
// Status is "success" or "error". Data carries the payload on success; Error
// is populated only on failure.
//
//	{
//	  "status": "success",
//	  "data": {"id": "...", "created": true},
//	  "metadata": {"timestamp": "2026-02-25T12:00:00Z"}
//	}
type APIResponse struct {
	Status   string      `json:"status"`
	Data     interface{} `json:"data"`
	Metadata Metadata    `json:"metadata"`
	Error    *APIError   `json:"error,omitempty"`
}

// Metadata contains response metadata for observability.
type Metadata struct {
	Timestamp time.Time `json:"timestamp"`
}

// APIError describes a failed request with a stable machine-readable code.
//
// Codes used by the visitor API: NOT_FOUND, VALIDATION_ERROR, INTERNAL_ERROR,
// UNAUTHORIZED, SERVICE_UNAVAILABLE.
type APIError struct {
	Code    string      `json:"code"`
	Message string      `json:"message"`
	Details interface{} `json:"details,omitempty"`
}

// ResolveResult is the response payload for identity resolution: the caller's
// visitor record, whether this call created it, and the stable id the client
// should persist.
type ResolveResult struct {
	ID      uuid.UUID `json:"id"`
	Created bool      `json:"created"`
	Visitor *Visitor  `json:"visitor"`
}
