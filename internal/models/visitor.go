// Visitormap - Real-Time Visitor Map and Presence Synchronization
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/visitormap

// Package models defines the data shapes shared across the Visitormap server:
// the Visitor record and its public wire form, profile updates, audit log
// entries, and the standard API response envelope.
package models

import (
	"time"

	"github.com/google/uuid"
)

// Location is a resolved geographic placement. All five fields are always
// populated: when the external lookup cannot produce a real location, the
// configured fallback fills every field atomically. A partially populated
// Location never exists.
type Location struct {
	Latitude  float64 `json:"latitude"`
	Longitude float64 `json:"longitude"`
	City      string  `json:"city"`
	Country   string  `json:"country"`
	Region    string  `json:"region"`
}

// Profile holds the visitor-editable fields. Both are independently optional;
// nil means "never set" and is distinguishable from an empty string. A partial
// update never clobbers a field it does not carry.
type Profile struct {
	DisplayName *string `json:"displayName"`
	AvatarRef   *string `json:"avatarRef"`
}

// MaxDisplayNameLen bounds the visitor display name.
const MaxDisplayNameLen = 50

// Visitor is one deduplicated network origin placed on the map.
//
// OriginKey is unique across all visitors; that uniqueness constraint is the
// only synchronization needed to make creation idempotent under concurrent
// first contact. OriginKey and UserAgent are administrative data and never
// serialize into the public wire shape.
type Visitor struct {
	ID        uuid.UUID `json:"id"`
	OriginKey string    `json:"-"`
	UserAgent string    `json:"-"`
	Location  Location  `json:"location"`
	Profile   Profile   `json:"profile"`
	CreatedAt time.Time `json:"createdAt"`
	UpdatedAt time.Time `json:"updatedAt"`
}

// AdminVisitor is the administrative view of a visitor, including the origin
// data the public shape withholds.
type AdminVisitor struct {
	Visitor
	OriginKey string `json:"originKey"`
	UserAgent string `json:"userAgent,omitempty"`
}

// NewAdminVisitor wraps a Visitor for administrative serialization.
func NewAdminVisitor(v Visitor) AdminVisitor {
	return AdminVisitor{Visitor: v, OriginKey: v.OriginKey, UserAgent: v.UserAgent}
}

// ProfileUpdate carries a partial profile mutation. Nil fields are left
// untouched by the store.
type ProfileUpdate struct {
	DisplayName *string `json:"displayName"`
	AvatarRef   *string `json:"avatarRef"`
}

// Empty reports whether the update carries no fields at all.
func (p ProfileUpdate) Empty() bool {
	return p.DisplayName == nil && p.AvatarRef == nil
}

// OriginMetadata is transport-derived information recorded alongside a new
// visitor. It is never client-supplied.
type OriginMetadata struct {
	UserAgent string
}

// Audit actions recorded in the action log.
const (
	AuditActionCreateVisitor = "create_visitor"
	AuditActionUpdateProfile = "update_profile"
	AuditActionDeleteVisitor = "delete_visitor"
)

// AuditEntry is one recorded administrative or visitor action.
type AuditEntry struct {
	ID        int64     `json:"id"`
	OriginKey string    `json:"originKey"`
	Action    string    `json:"action"`
	UserAgent string    `json:"userAgent,omitempty"`
	City      string    `json:"city,omitempty"`
	Country   string    `json:"country,omitempty"`
	Region    string    `json:"region,omitempty"`
	VisitorID string    `json:"visitorId,omitempty"`
	Timestamp time.Time `json:"timestamp"`
}

// CountryCount is an aggregate row for the admin stats endpoint.
type CountryCount struct {
	Country string `json:"country"`
	Count   int    `json:"count"`
}

// CityCount is an aggregate row for the admin stats endpoint.
type CityCount struct {
	City    string `json:"city"`
	Country string `json:"country"`
	Count   int    `json:"count"`
}

// Stats summarizes the visitor set for the admin dashboard.
type Stats struct {
	TotalVisitors  int            `json:"totalVisitors"`
	TotalLogs      int            `json:"totalLogs"`
	RecentActivity int            `json:"recentActivity"` // audit entries in the last 24h
	CountryStats   []CountryCount `json:"countryStats"`
	CityStats      []CityCount    `json:"cityStats"`
}
