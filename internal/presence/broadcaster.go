// Visitormap - Real-Time Visitor Map and Presence Synchronization
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/visitormap

// Package presence fans visitor lifecycle events out to connected sessions.
//
// The broadcaster guarantees:
//   - Atomic join: a new session's snapshot and its subscription happen under
//     the same lock that publishers take, so no event falls between the
//     snapshot read and the first delivery.
//   - Per-session ordering: each session receives events in publish order.
//   - Isolation: a slow session has deliveries dropped, never blocking the
//     publisher or other sessions.
package presence

import (
	"context"
	"sync"

	"github.com/google/uuid"

	"github.com/tomtom215/visitormap/internal/logging"
	"github.com/tomtom215/visitormap/internal/metrics"
	"github.com/tomtom215/visitormap/internal/models"
)

// defaultSessionBuffer is used when the configured buffer is non-positive.
const defaultSessionBuffer = 256

// Session is one subscriber's ordered event stream. The channel returned by
// Events is closed when the session is unsubscribed or the broadcaster shuts
// down.
type Session struct {
	id string
	ch chan Event
	b  *Broadcaster

	closeOnce sync.Once
}

// ID returns the session's unique identifier, used in logs.
func (s *Session) ID() string { return s.id }

// Events returns the session's receive channel.
func (s *Session) Events() <-chan Event { return s.ch }

// Close unsubscribes the session. Safe to call more than once.
func (s *Session) Close() {
	s.closeOnce.Do(func() {
		s.b.unsubscribe(s)
	})
}

// Broadcaster maintains the set of live sessions and delivers events to all
// of them.
type Broadcaster struct {
	mu       sync.Mutex
	sessions map[string]*Session
	buffer   int
	closed   bool
}

// NewBroadcaster creates a broadcaster whose sessions buffer up to
// sessionBuffer events each.
func NewBroadcaster(sessionBuffer int) *Broadcaster {
	if sessionBuffer <= 0 {
		sessionBuffer = defaultSessionBuffer
	}
	return &Broadcaster{
		sessions: make(map[string]*Session),
		buffer:   sessionBuffer,
	}
}

// SnapshotFunc produces the current full visitor set for a joining session.
type SnapshotFunc func(ctx context.Context) ([]models.Visitor, error)

// Subscribe registers a new session and returns it together with the state
// snapshot taken at registration time.
//
// The snapshot fetch runs while the broadcaster lock is held. Publishers
// take the same lock, which is what makes the join atomic: every event
// published before Subscribe returns is in the snapshot, every event
// published after is delivered on the channel, and nothing is in both or
// neither. The fetch must therefore be quick; it reads the visitor table
// and nothing else.
func (b *Broadcaster) Subscribe(ctx context.Context, snapshot SnapshotFunc) (*Session, []models.Visitor, error) {
	b.mu.Lock()
	defer b.mu.Unlock()

	if b.closed {
		return nil, nil, context.Canceled
	}

	visitors, err := snapshot(ctx)
	if err != nil {
		return nil, nil, err
	}

	s := &Session{
		id: uuid.New().String(),
		ch: make(chan Event, b.buffer),
		b:  b,
	}
	b.sessions[s.id] = s

	metrics.PresenceSessions.Set(float64(len(b.sessions)))
	metrics.SnapshotsDelivered.Inc()
	logging.Info().
		Str("session", s.id).
		Int("total_sessions", len(b.sessions)).
		Int("snapshot_size", len(visitors)).
		Msg("presence session subscribed")

	return s, visitors, nil
}

// Publish delivers an event to every live session. Delivery to a session
// whose buffer is full is dropped so one stalled consumer cannot hold up
// the rest.
func (b *Broadcaster) Publish(ev Event) {
	b.mu.Lock()
	defer b.mu.Unlock()

	if b.closed {
		return
	}

	metrics.PresenceEventsPublished.WithLabelValues(string(ev.Type)).Inc()

	for _, s := range b.sessions {
		select {
		case s.ch <- ev:
		default:
			metrics.PresenceEventsDropped.Inc()
			logging.Warn().
				Str("session", s.id).
				Str("event_type", string(ev.Type)).
				Msg("presence session buffer full, dropping delivery")
		}
	}
}

// SessionCount returns the number of live sessions.
func (b *Broadcaster) SessionCount() int {
	b.mu.Lock()
	defer b.mu.Unlock()
	return len(b.sessions)
}

// RunWithContext blocks until the context is canceled, then closes every
// session. Designed for suture supervision: a restart after shutdown starts
// with an empty session set and accepts subscribers again.
func (b *Broadcaster) RunWithContext(ctx context.Context) error {
	b.mu.Lock()
	b.closed = false
	b.mu.Unlock()

	<-ctx.Done()

	b.mu.Lock()
	count := len(b.sessions)
	for id, s := range b.sessions {
		close(s.ch)
		delete(b.sessions, id)
	}
	b.closed = true
	metrics.PresenceSessions.Set(0)
	b.mu.Unlock()

	logging.Info().
		Str("component", "presence-broadcaster").
		Int("sessions_closed", count).
		Msg("presence broadcaster stopped")

	return ctx.Err()
}

func (b *Broadcaster) unsubscribe(s *Session) {
	b.mu.Lock()
	defer b.mu.Unlock()

	if _, ok := b.sessions[s.id]; !ok {
		return
	}
	delete(b.sessions, s.id)
	close(s.ch)

	metrics.PresenceSessions.Set(float64(len(b.sessions)))
	logging.Info().
		Str("session", s.id).
		Int("total_sessions", len(b.sessions)).
		Msg("presence session unsubscribed")
}
