// Visitormap - Real-Time Visitor Map and Presence Synchronization
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/visitormap

// Package api exposes the visitor map over HTTP: the public resolve/list/
// update surface, the websocket presence stream, the authenticated admin
// surface, and the health endpoints.
package api

import (
	"errors"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"
	"github.com/gorilla/websocket"

	"github.com/tomtom215/visitormap/internal/config"
	"github.com/tomtom215/visitormap/internal/database"
	"github.com/tomtom215/visitormap/internal/identity"
	"github.com/tomtom215/visitormap/internal/logging"
	"github.com/tomtom215/visitormap/internal/models"
	"github.com/tomtom215/visitormap/internal/presence"
	ws "github.com/tomtom215/visitormap/internal/websocket"
)

// Handler carries the wired services behind the HTTP surface.
type Handler struct {
	cfg         *config.Config
	identity    *identity.Resolver
	broadcaster *presence.Broadcaster
	db          *database.DB
}

// NewHandler wires the HTTP handlers to their services.
func NewHandler(cfg *config.Config, resolver *identity.Resolver, broadcaster *presence.Broadcaster, db *database.DB) *Handler {
	return &Handler{
		cfg:         cfg,
		identity:    resolver,
		broadcaster: broadcaster,
		db:          db,
	}
}

// updateVisitorRequest is the profile-update body. Pointer fields keep
// "omitted" distinguishable from "cleared to empty".
type updateVisitorRequest struct {
	DisplayName *string `json:"displayName" validate:"omitempty,max=50"`
	AvatarRef   *string `json:"avatarRef" validate:"omitempty,max=512"`
}

// ResolveVisitor handles POST /api/v1/visitors: resolve-or-create the
// caller's identity from the transport origin. The origin key and user agent
// come from the connection, never from the body.
func (h *Handler) ResolveVisitor(w http.ResponseWriter, r *http.Request) {
	originKey := originKeyFromRequest(r)
	meta := models.OriginMetadata{UserAgent: r.UserAgent()}

	res, err := h.identity.ResolveOrCreate(r.Context(), originKey, meta)
	if err != nil {
		if errors.Is(err, database.ErrValidation) {
			respondError(w, http.StatusBadRequest, "VALIDATION_ERROR", "Could not derive an origin for this connection", err)
			return
		}
		respondError(w, http.StatusInternalServerError, "INTERNAL_ERROR", "Identity resolution failed", err)
		return
	}

	status := http.StatusOK
	if res.Created {
		status = http.StatusCreated
	}
	respondData(w, status, res)
}

// ListVisitors handles GET /api/v1/visitors: the public visitor set in
// stable order.
func (h *Handler) ListVisitors(w http.ResponseWriter, r *http.Request) {
	visitors, err := h.identity.Snapshot(r.Context())
	if err != nil {
		respondError(w, http.StatusInternalServerError, "INTERNAL_ERROR", "Failed to list visitors", err)
		return
	}
	respondData(w, http.StatusOK, visitors)
}

// UpdateVisitor handles PUT /api/v1/visitors/{id}: partial profile merge.
func (h *Handler) UpdateVisitor(w http.ResponseWriter, r *http.Request) {
	id, err := uuid.Parse(chi.URLParam(r, "id"))
	if err != nil {
		respondError(w, http.StatusBadRequest, "VALIDATION_ERROR", "Invalid visitor id", err)
		return
	}

	var req updateVisitorRequest
	if err := decodeJSON(w, r, &req); err != nil {
		respondError(w, http.StatusBadRequest, "VALIDATION_ERROR", "Invalid request body", err)
		return
	}
	if apiErr := validateRequest(&req); apiErr != nil {
		respondJSON(w, http.StatusBadRequest, &models.APIResponse{
			Status:   "error",
			Metadata: models.Metadata{Timestamp: time.Now().UTC()},
			Error:    apiErr,
		})
		return
	}

	v, err := h.identity.UpdateProfile(r.Context(), id, models.ProfileUpdate{
		DisplayName: req.DisplayName,
		AvatarRef:   req.AvatarRef,
	})
	switch {
	case errors.Is(err, database.ErrNotFound):
		respondError(w, http.StatusNotFound, "NOT_FOUND", "Visitor not found", nil)
	case errors.Is(err, database.ErrValidation):
		respondError(w, http.StatusBadRequest, "VALIDATION_ERROR", "Invalid profile update", err)
	case err != nil:
		respondError(w, http.StatusInternalServerError, "INTERNAL_ERROR", "Profile update failed", err)
	default:
		respondData(w, http.StatusOK, v)
	}
}

// WebSocket handles GET /ws: upgrade, atomically snapshot+subscribe, and
// hand the connection to the pump pair.
func (h *Handler) WebSocket(w http.ResponseWriter, r *http.Request) {
	upgrader := websocket.Upgrader{
		ReadBufferSize:   1024,
		WriteBufferSize:  1024,
		HandshakeTimeout: 10 * time.Second,
		CheckOrigin:      h.checkWebSocketOrigin,
	}

	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		logging.Error().Err(err).Msg("websocket upgrade failed")
		return
	}

	session, visitors, err := h.broadcaster.Subscribe(r.Context(), h.identity.Snapshot)
	if err != nil {
		logging.Error().Err(err).Msg("presence subscribe failed")
		_ = conn.Close()
		return
	}

	ws.NewClient(conn, session, presence.NewSnapshotEvent(visitors)).Start()
}

// checkWebSocketOrigin validates the Origin header against the configured
// CORS origins. Browser sockets always send Origin; requests without one are
// non-browser clients and are allowed.
func (h *Handler) checkWebSocketOrigin(r *http.Request) bool {
	origin := r.Header.Get("Origin")
	if origin == "" {
		return true
	}
	for _, allowed := range h.cfg.Security.CORSOrigins {
		if allowed == "*" || allowed == origin {
			return true
		}
	}
	logging.Warn().Str("origin", sanitizeLogValue(origin)).Msg("websocket origin rejected")
	return false
}

// HealthLive handles GET /api/v1/health/live.
func (h *Handler) HealthLive(w http.ResponseWriter, r *http.Request) {
	respondData(w, http.StatusOK, map[string]string{"status": "alive"})
}

// HealthReady handles GET /api/v1/health/ready: ready means the store
// answers.
func (h *Handler) HealthReady(w http.ResponseWriter, r *http.Request) {
	if err := h.db.Ping(r.Context()); err != nil {
		respondError(w, http.StatusServiceUnavailable, "SERVICE_UNAVAILABLE", "Visitor store unavailable", err)
		return
	}
	respondData(w, http.StatusOK, map[string]string{"status": "ready"})
}
