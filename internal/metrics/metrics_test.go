// Visitormap - Real-Time Visitor Map and Presence Synchronization
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/visitormap

package metrics

import (
	"errors"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus/testutil"
)

func TestObserveStoreQueryCountsErrors(t *testing.T) {
	before := testutil.ToFloat64(StoreErrors.WithLabelValues("insert_if_absent"))

	ObserveStoreQuery("insert_if_absent", time.Now(), nil)
	if got := testutil.ToFloat64(StoreErrors.WithLabelValues("insert_if_absent")); got != before {
		t.Errorf("error counter moved on success: %v -> %v", before, got)
	}

	ObserveStoreQuery("insert_if_absent", time.Now(), errors.New("boom"))
	if got := testutil.ToFloat64(StoreErrors.WithLabelValues("insert_if_absent")); got != before+1 {
		t.Errorf("error counter = %v, want %v", got, before+1)
	}
}

func TestIdentityResolutionOutcomes(t *testing.T) {
	before := testutil.ToFloat64(IdentityResolutions.WithLabelValues("created"))
	IdentityResolutions.WithLabelValues("created").Inc()
	if got := testutil.ToFloat64(IdentityResolutions.WithLabelValues("created")); got != before+1 {
		t.Errorf("created counter = %v, want %v", got, before+1)
	}
}
