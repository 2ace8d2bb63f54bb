// Visitormap - Real-Time Visitor Map and Presence Synchronization
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/visitormap

// Package geo resolves origin keys to approximate geographic locations via
// an external IP geolocation service.
//
// Resolution never fails the caller: private, loopback, and unparseable
// origins skip the network entirely, and any lookup failure (timeout, HTTP
// error, open circuit, non-success API status) degrades to the configured
// fallback location. Callers always receive a fully populated Location.
package geo

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/netip"
	"net/url"
	"strings"
	"time"

	json "github.com/goccy/go-json"
	gobreaker "github.com/sony/gobreaker/v2"
	"golang.org/x/time/rate"

	"github.com/tomtom215/visitormap/internal/config"
	"github.com/tomtom215/visitormap/internal/logging"
	"github.com/tomtom215/visitormap/internal/metrics"
	"github.com/tomtom215/visitormap/internal/models"
)

// maxResponseBytes bounds the geolocation response body read.
const maxResponseBytes = 64 * 1024

// errLookupStatus marks a well-formed response whose status field reported a
// failed lookup, as opposed to a transport or decoding error.
var errLookupStatus = errors.New("geolocation lookup rejected")

// apiResponse matches the ip-api.com JSON shape.
type apiResponse struct {
	Status     string  `json:"status"`
	Message    string  `json:"message"`
	Country    string  `json:"country"`
	RegionName string  `json:"regionName"`
	Region     string  `json:"region"`
	City       string  `json:"city"`
	Lat        float64 `json:"lat"`
	Lon        float64 `json:"lon"`
}

// Resolver performs rate-limited, circuit-broken lookups against the
// configured geolocation endpoint.
type Resolver struct {
	cfg     *config.GeolocationConfig
	client  *http.Client
	cb      *gobreaker.CircuitBreaker[models.Location]
	limiter *rate.Limiter
}

// NewResolver creates a geolocation resolver. The rate limiter respects the
// upstream service quota; the circuit breaker stops hammering an endpoint
// that is down and fast-fails to the fallback instead.
func NewResolver(cfg *config.GeolocationConfig) *Resolver {
	rpm := cfg.RequestsPerMinute
	if rpm <= 0 {
		rpm = 45
	}

	cb := gobreaker.NewCircuitBreaker[models.Location](gobreaker.Settings{
		Name:        "geolocation-api",
		MaxRequests: 3,
		Interval:    time.Minute,
		Timeout:     2 * time.Minute,
		ReadyToTrip: func(counts gobreaker.Counts) bool {
			if counts.Requests < 10 {
				return false
			}
			return float64(counts.TotalFailures)/float64(counts.Requests) >= 0.6
		},
		OnStateChange: func(name string, from, to gobreaker.State) {
			logging.Info().
				Str("breaker", name).
				Str("from", from.String()).
				Str("to", to.String()).
				Msg("Geolocation circuit breaker state change")
		},
	})

	return &Resolver{
		cfg:    cfg,
		client: &http.Client{Timeout: cfg.Timeout},
		cb:     cb,
		limiter: rate.NewLimiter(
			rate.Limit(float64(rpm)/60.0), // spread the per-minute quota evenly
			rpm,
		),
	}
}

// Resolve maps an origin key to a location. It returns the configured
// fallback, never an error, when the origin is private or the lookup fails.
func (r *Resolver) Resolve(ctx context.Context, originKey string) models.Location {
	if !lookupable(originKey) {
		metrics.GeoLookups.WithLabelValues("fallback_private").Inc()
		logging.Debug().
			Str("origin", originKey).
			Msg("Origin not publicly routable, using fallback location")
		return r.Fallback()
	}

	ctx, cancel := context.WithTimeout(ctx, r.cfg.Timeout)
	defer cancel()

	if err := r.limiter.Wait(ctx); err != nil {
		metrics.GeoLookups.WithLabelValues("fallback_error").Inc()
		logging.Warn().
			Str("origin", originKey).
			Err(err).
			Msg("Geolocation rate limit wait aborted, using fallback location")
		return r.Fallback()
	}

	start := time.Now()
	loc, err := r.cb.Execute(func() (models.Location, error) {
		return r.fetch(ctx, originKey)
	})
	metrics.GeoLookupDuration.Observe(time.Since(start).Seconds())

	if err != nil {
		result := "fallback_error"
		if errors.Is(err, errLookupStatus) {
			result = "fallback_status"
		}
		metrics.GeoLookups.WithLabelValues(result).Inc()
		logging.Warn().
			Str("origin", originKey).
			Err(err).
			Msg("Geolocation lookup failed, using fallback location")
		return r.Fallback()
	}

	metrics.GeoLookups.WithLabelValues("success").Inc()
	return loc
}

// Fallback returns the configured fallback location.
func (r *Resolver) Fallback() models.Location {
	return models.Location{
		Latitude:  r.cfg.Fallback.Latitude,
		Longitude: r.cfg.Fallback.Longitude,
		City:      r.cfg.Fallback.City,
		Country:   r.cfg.Fallback.Country,
		Region:    r.cfg.Fallback.Region,
	}
}

// fetch performs a single lookup against the external endpoint.
func (r *Resolver) fetch(ctx context.Context, originKey string) (models.Location, error) {
	endpoint := strings.TrimRight(r.cfg.APIURL, "/") + "/" + url.PathEscape(originKey)

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, endpoint, nil)
	if err != nil {
		return models.Location{}, fmt.Errorf("failed to create lookup request: %w", err)
	}
	req.Header.Set("Accept", "application/json")

	resp, err := r.client.Do(req)
	if err != nil {
		return models.Location{}, fmt.Errorf("geolocation request failed: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return models.Location{}, fmt.Errorf("geolocation endpoint returned HTTP %d", resp.StatusCode)
	}

	body, err := io.ReadAll(io.LimitReader(resp.Body, maxResponseBytes))
	if err != nil {
		return models.Location{}, fmt.Errorf("failed to read geolocation response: %w", err)
	}

	var parsed apiResponse
	if err := json.Unmarshal(body, &parsed); err != nil {
		return models.Location{}, fmt.Errorf("failed to decode geolocation response: %w", err)
	}

	if parsed.Status != "success" {
		return models.Location{}, fmt.Errorf("%w: status %q (%s)", errLookupStatus, parsed.Status, parsed.Message)
	}

	region := parsed.RegionName
	if region == "" {
		region = parsed.Region
	}

	return models.Location{
		Latitude:  parsed.Lat,
		Longitude: parsed.Lon,
		City:      parsed.City,
		Country:   parsed.Country,
		Region:    region,
	}, nil
}

// lookupable reports whether an origin key is worth sending to the external
// service: a valid, publicly routable IP address.
func lookupable(originKey string) bool {
	addr, err := netip.ParseAddr(originKey)
	if err != nil {
		return false
	}
	if addr.IsPrivate() || addr.IsLoopback() || addr.IsLinkLocalUnicast() ||
		addr.IsLinkLocalMulticast() || addr.IsUnspecified() {
		return false
	}
	return true
}
