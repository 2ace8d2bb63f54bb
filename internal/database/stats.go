// Visitormap - Real-Time Visitor Map and Presence Synchronization
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/visitormap

package database

import (
	"context"
	"fmt"
	"time"

	"github.com/tomtom215/visitormap/internal/metrics"
	"github.com/tomtom215/visitormap/internal/models"
)

const statsTopN = 10

// GetStats aggregates the visitor set for the admin dashboard: totals, the
// top countries and cities by visitor count, and audit activity over the
// last 24 hours.
func (db *DB) GetStats(ctx context.Context) (stats *models.Stats, err error) {
	start := time.Now()
	defer func() { metrics.ObserveStoreQuery("get_stats", start, err) }()

	ctx, cancel := db.ensureContext(ctx)
	defer cancel()

	stats = &models.Stats{
		CountryStats: make([]models.CountryCount, 0, statsTopN),
		CityStats:    make([]models.CityCount, 0, statsTopN),
	}

	row := db.conn.QueryRowContext(ctx, "SELECT COUNT(*) FROM visitors")
	if err := row.Scan(&stats.TotalVisitors); err != nil {
		return nil, fmt.Errorf("failed to count visitors: %w", err)
	}

	row = db.conn.QueryRowContext(ctx, "SELECT COUNT(*) FROM audit_log")
	if err := row.Scan(&stats.TotalLogs); err != nil {
		return nil, fmt.Errorf("failed to count audit entries: %w", err)
	}

	cutoff := time.Now().UTC().Add(-24 * time.Hour)
	row = db.conn.QueryRowContext(ctx, "SELECT COUNT(*) FROM audit_log WHERE ts >= ?", cutoff)
	if err := row.Scan(&stats.RecentActivity); err != nil {
		return nil, fmt.Errorf("failed to count recent activity: %w", err)
	}

	rows, err := db.conn.QueryContext(ctx, `
		SELECT country, COUNT(*) AS n
		FROM visitors
		GROUP BY country
		ORDER BY n DESC, country
		LIMIT ?`, statsTopN)
	if err != nil {
		return nil, fmt.Errorf("failed to aggregate countries: %w", err)
	}
	defer rows.Close()

	for rows.Next() {
		var c models.CountryCount
		if err := rows.Scan(&c.Country, &c.Count); err != nil {
			return nil, fmt.Errorf("failed to scan country count: %w", err)
		}
		stats.CountryStats = append(stats.CountryStats, c)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating country counts: %w", err)
	}

	cityRows, err := db.conn.QueryContext(ctx, `
		SELECT city, country, COUNT(*) AS n
		FROM visitors
		GROUP BY city, country
		ORDER BY n DESC, city
		LIMIT ?`, statsTopN)
	if err != nil {
		return nil, fmt.Errorf("failed to aggregate cities: %w", err)
	}
	defer cityRows.Close()

	for cityRows.Next() {
		var c models.CityCount
		if err := cityRows.Scan(&c.City, &c.Country, &c.Count); err != nil {
			return nil, fmt.Errorf("failed to scan city count: %w", err)
		}
		stats.CityStats = append(stats.CityStats, c)
	}
	if err := cityRows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating city counts: %w", err)
	}

	return stats, nil
}
