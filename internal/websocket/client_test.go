// Visitormap - Real-Time Visitor Map and Presence Synchronization
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/visitormap

package websocket

import (
	"context"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"

	"github.com/tomtom215/visitormap/internal/models"
	"github.com/tomtom215/visitormap/internal/presence"
)

// dialTestClient stands up an upgrading test server wired to a broadcaster
// and returns the dialed peer connection.
func dialTestClient(t *testing.T, b *presence.Broadcaster, snapshot []models.Visitor) *websocket.Conn {
	t.Helper()

	upgrader := websocket.Upgrader{}
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		conn, err := upgrader.Upgrade(w, r, nil)
		if err != nil {
			t.Errorf("upgrade failed: %v", err)
			return
		}
		s, visitors, err := b.Subscribe(r.Context(), func(context.Context) ([]models.Visitor, error) {
			return snapshot, nil
		})
		if err != nil {
			t.Errorf("subscribe failed: %v", err)
			return
		}
		NewClient(conn, s, presence.NewSnapshotEvent(visitors)).Start()
	}))
	t.Cleanup(srv.Close)

	url := "ws" + strings.TrimPrefix(srv.URL, "http")
	conn, _, err := websocket.DefaultDialer.Dial(url, nil)
	if err != nil {
		t.Fatalf("dial failed: %v", err)
	}
	t.Cleanup(func() { conn.Close() })

	return conn
}

func readEvent(t *testing.T, conn *websocket.Conn) presence.Event {
	t.Helper()
	if err := conn.SetReadDeadline(time.Now().Add(2 * time.Second)); err != nil {
		t.Fatalf("failed to set read deadline: %v", err)
	}
	var ev presence.Event
	if err := conn.ReadJSON(&ev); err != nil {
		t.Fatalf("failed to read event: %v", err)
	}
	return ev
}

func TestSnapshotArrivesFirst(t *testing.T) {
	b := presence.NewBroadcaster(64)

	snapshot := []models.Visitor{
		{ID: uuid.New(), OriginKey: "a"},
		{ID: uuid.New(), OriginKey: "b"},
	}
	conn := dialTestClient(t, b, snapshot)

	// Publish immediately; the snapshot must still be the first frame.
	b.Publish(presence.NewDeletedEvent(uuid.New()))

	ev := readEvent(t, conn)
	if ev.Type != presence.EventSnapshot {
		t.Fatalf("first frame type = %s, want snapshot", ev.Type)
	}
	if len(ev.Visitors) != 2 {
		t.Errorf("snapshot carries %d visitors, want 2", len(ev.Visitors))
	}

	ev = readEvent(t, conn)
	if ev.Type != presence.EventDeleted {
		t.Errorf("second frame type = %s, want deleted", ev.Type)
	}
}

func TestEventsStreamInOrder(t *testing.T) {
	b := presence.NewBroadcaster(64)
	conn := dialTestClient(t, b, nil)

	if ev := readEvent(t, conn); ev.Type != presence.EventSnapshot {
		t.Fatalf("first frame type = %s, want snapshot", ev.Type)
	}

	ids := make([]uuid.UUID, 10)
	for i := range ids {
		ids[i] = uuid.New()
		b.Publish(presence.NewDeletedEvent(ids[i]))
	}

	for i, id := range ids {
		ev := readEvent(t, conn)
		if ev.VisitorID != id.String() {
			t.Fatalf("frame %d carries id %s, want %s", i, ev.VisitorID, id)
		}
	}
}

func TestDisconnectReleasesSession(t *testing.T) {
	b := presence.NewBroadcaster(64)
	conn := dialTestClient(t, b, nil)

	if ev := readEvent(t, conn); ev.Type != presence.EventSnapshot {
		t.Fatalf("first frame type = %s, want snapshot", ev.Type)
	}
	if b.SessionCount() != 1 {
		t.Fatalf("session count = %d, want 1", b.SessionCount())
	}

	conn.Close()

	deadline := time.Now().Add(2 * time.Second)
	for b.SessionCount() != 0 {
		if time.Now().After(deadline) {
			t.Fatal("session not released after disconnect")
		}
		time.Sleep(10 * time.Millisecond)
	}
}

func TestBroadcasterShutdownClosesConnection(t *testing.T) {
	b := presence.NewBroadcaster(64)

	ctx, cancel := context.WithCancel(context.Background())
	go b.RunWithContext(ctx)

	conn := dialTestClient(t, b, nil)
	if ev := readEvent(t, conn); ev.Type != presence.EventSnapshot {
		t.Fatalf("first frame type = %s, want snapshot", ev.Type)
	}

	cancel()

	if err := conn.SetReadDeadline(time.Now().Add(2 * time.Second)); err != nil {
		t.Fatalf("failed to set read deadline: %v", err)
	}
	var ev presence.Event
	err := conn.ReadJSON(&ev)
	if err == nil {
		t.Fatal("expected close after broadcaster shutdown, got event")
	}
	if !websocket.IsCloseError(err, websocket.CloseNormalClosure, websocket.CloseNoStatusReceived, websocket.CloseAbnormalClosure) {
		// Any close is acceptable; a decode error would indicate garbage.
		if _, ok := err.(*websocket.CloseError); !ok && !strings.Contains(err.Error(), "close") {
			t.Errorf("unexpected read error after shutdown: %v", err)
		}
	}
}
