// Visitormap - Real-Time Visitor Map and Presence Synchronization
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/visitormap

// Package websocket bridges gorilla/websocket connections onto presence
// sessions. Each connection gets its own session; the write pump delivers
// the session's snapshot first and then streams events in order, and the
// read pump only services liveness control messages.
package websocket

import (
	"time"

	"github.com/gorilla/websocket"

	"github.com/tomtom215/visitormap/internal/logging"
	"github.com/tomtom215/visitormap/internal/presence"
)

const (
	writeWait      = 10 * time.Second
	pongWait       = 60 * time.Second
	pingPeriod     = (pongWait * 9) / 10
	maxMessageSize = 4 * 1024
)

// controlMessage is the only client-to-server payload the read pump accepts.
type controlMessage struct {
	Type string `json:"type"`
}

// Client couples one websocket connection with one presence session.
type Client struct {
	conn    *websocket.Conn
	session *presence.Session
	initial presence.Event
}

// NewClient wraps an upgraded connection. The initial event (the session's
// snapshot, taken atomically at subscribe time) is written before anything
// from the session channel.
func NewClient(conn *websocket.Conn, session *presence.Session, initial presence.Event) *Client {
	return &Client{
		conn:    conn,
		session: session,
		initial: initial,
	}
}

// Start launches the read and write pumps. It returns immediately; the
// pumps own the connection and session from here and release both when the
// peer disconnects or the broadcaster shuts down.
func (c *Client) Start() {
	go c.writePump()
	go c.readPump()
}

// readPump consumes client frames to keep the connection's read deadline
// fresh. Visitors mutate state over the HTTP API, not the socket, so
// anything other than a ping control message is ignored.
func (c *Client) readPump() {
	defer func() {
		c.session.Close()
		_ = c.conn.Close()
	}()

	c.conn.SetReadLimit(maxMessageSize)
	if err := c.conn.SetReadDeadline(time.Now().Add(pongWait)); err != nil {
		logging.Error().Err(err).Msg("failed to set read deadline")
		return
	}
	c.conn.SetPongHandler(func(string) error {
		return c.conn.SetReadDeadline(time.Now().Add(pongWait))
	})

	for {
		var msg controlMessage
		if err := c.conn.ReadJSON(&msg); err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseAbnormalClosure, websocket.CloseNormalClosure) {
				logging.Warn().Err(err).Str("session", c.session.ID()).Msg("unexpected websocket close")
			}
			return
		}
		if msg.Type == "ping" {
			// Liveness handled by protocol-level ping/pong in writePump;
			// application-level pings just refresh the deadline via ReadJSON.
			continue
		}
	}
}

// writePump streams the snapshot and then session events to the peer.
func (c *Client) writePump() {
	ticker := time.NewTicker(pingPeriod)
	defer func() {
		ticker.Stop()
		c.session.Close()
		_ = c.conn.Close()
	}()

	if err := c.writeEvent(c.initial); err != nil {
		logging.Error().Err(err).Str("session", c.session.ID()).Msg("failed to write snapshot")
		return
	}

	for {
		select {
		case ev, ok := <-c.session.Events():
			if !ok {
				// Broadcaster shut the session down.
				_ = c.conn.SetWriteDeadline(time.Now().Add(writeWait))
				_ = c.conn.WriteMessage(websocket.CloseMessage, []byte{})
				return
			}
			if err := c.writeEvent(ev); err != nil {
				logging.Warn().Err(err).Str("session", c.session.ID()).Msg("failed to write event")
				return
			}

		case <-ticker.C:
			if err := c.conn.SetWriteDeadline(time.Now().Add(writeWait)); err != nil {
				return
			}
			if err := c.conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		}
	}
}

func (c *Client) writeEvent(ev presence.Event) error {
	if err := c.conn.SetWriteDeadline(time.Now().Add(writeWait)); err != nil {
		return err
	}
	return c.conn.WriteJSON(ev)
}
