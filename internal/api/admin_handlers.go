// Visitormap - Real-Time Visitor Map and Presence Synchronization
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/visitormap

package api

import (
	"errors"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"

	"github.com/tomtom215/visitormap/internal/database"
	"github.com/tomtom215/visitormap/internal/models"
)

// AdminListVisitors handles GET /admin/visitors. Unlike the public listing
// this shape includes the origin key and user agent.
func (h *Handler) AdminListVisitors(w http.ResponseWriter, r *http.Request) {
	visitors, err := h.identity.Snapshot(r.Context())
	if err != nil {
		respondError(w, http.StatusInternalServerError, "INTERNAL_ERROR", "Failed to list visitors", err)
		return
	}

	admin := make([]models.AdminVisitor, 0, len(visitors))
	for _, v := range visitors {
		admin = append(admin, models.NewAdminVisitor(v))
	}
	respondData(w, http.StatusOK, admin)
}

// AdminStats handles GET /admin/stats.
func (h *Handler) AdminStats(w http.ResponseWriter, r *http.Request) {
	stats, err := h.db.GetStats(r.Context())
	if err != nil {
		respondError(w, http.StatusInternalServerError, "INTERNAL_ERROR", "Failed to aggregate stats", err)
		return
	}
	respondData(w, http.StatusOK, stats)
}

// AdminLogs handles GET /admin/logs?limit=N.
func (h *Handler) AdminLogs(w http.ResponseWriter, r *http.Request) {
	limit := 100
	if raw := r.URL.Query().Get("limit"); raw != "" {
		parsed, err := strconv.Atoi(raw)
		if err != nil || parsed <= 0 || parsed > 1000 {
			respondError(w, http.StatusBadRequest, "VALIDATION_ERROR", "limit must be between 1 and 1000", err)
			return
		}
		limit = parsed
	}

	entries, err := h.db.ListAudit(r.Context(), limit)
	if err != nil {
		respondError(w, http.StatusInternalServerError, "INTERNAL_ERROR", "Failed to list audit entries", err)
		return
	}
	respondData(w, http.StatusOK, entries)
}

// AdminDeleteVisitor handles DELETE /admin/visitors/{id}. The removal is
// announced to every presence session.
func (h *Handler) AdminDeleteVisitor(w http.ResponseWriter, r *http.Request) {
	id, err := uuid.Parse(chi.URLParam(r, "id"))
	if err != nil {
		respondError(w, http.StatusBadRequest, "VALIDATION_ERROR", "Invalid visitor id", err)
		return
	}

	switch err := h.identity.Delete(r.Context(), id); {
	case errors.Is(err, database.ErrNotFound):
		respondError(w, http.StatusNotFound, "NOT_FOUND", "Visitor not found", nil)
	case err != nil:
		respondError(w, http.StatusInternalServerError, "INTERNAL_ERROR", "Delete failed", err)
	default:
		respondData(w, http.StatusOK, map[string]string{"deleted": id.String()})
	}
}

// AdminClearLogs handles DELETE /admin/logs.
func (h *Handler) AdminClearLogs(w http.ResponseWriter, r *http.Request) {
	if err := h.db.ClearAudit(r.Context()); err != nil {
		respondError(w, http.StatusInternalServerError, "INTERNAL_ERROR", "Failed to clear audit log", err)
		return
	}
	respondData(w, http.StatusOK, map[string]string{"status": "cleared"})
}

// AdminClearAll handles DELETE /admin/clear-all: wipe visitors and audit
// entries and broadcast the reset.
func (h *Handler) AdminClearAll(w http.ResponseWriter, r *http.Request) {
	if err := h.identity.ClearAll(r.Context()); err != nil {
		respondError(w, http.StatusInternalServerError, "INTERNAL_ERROR", "Failed to clear visitor store", err)
		return
	}
	respondData(w, http.StatusOK, map[string]string{"status": "cleared"})
}
