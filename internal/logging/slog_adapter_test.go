// Visitormap - Real-Time Visitor Map and Presence Synchronization
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/visitormap

package logging

import (
	"bytes"
	"strings"
	"testing"
)

func TestSlogLoggerWritesThroughZerolog(t *testing.T) {
	var buf bytes.Buffer
	Init(Config{Level: "debug", Format: "json", Output: &buf})
	defer Init(DefaultConfig())

	slogger := NewSlogLogger()
	slogger.Info("supervisor event", "service", "presence-hub", "restarts", int64(2))

	out := buf.String()
	if !strings.Contains(out, "supervisor event") {
		t.Errorf("expected message in output, got %q", out)
	}
	if !strings.Contains(out, `"service":"presence-hub"`) {
		t.Errorf("expected string attr in output, got %q", out)
	}
	if !strings.Contains(out, `"restarts":2`) {
		t.Errorf("expected int attr in output, got %q", out)
	}
}

func TestSlogHandlerWithAttrsAndGroup(t *testing.T) {
	var buf bytes.Buffer
	Init(Config{Level: "debug", Format: "json", Output: &buf})
	defer Init(DefaultConfig())

	slogger := NewSlogLogger().With("component", "tree").WithGroup("suture")
	slogger.Warn("backoff", "failures", int64(5))

	out := buf.String()
	if !strings.Contains(out, `"component":"tree"`) {
		t.Errorf("expected inherited attr, got %q", out)
	}
	if !strings.Contains(out, `"suture.failures":5`) {
		t.Errorf("expected group-prefixed attr, got %q", out)
	}
}
