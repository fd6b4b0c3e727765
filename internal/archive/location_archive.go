// Package archive keeps the append-only location history in ClickHouse.
// The device keeps only a bounded recent window; the full trail lives
// here, and shared-data links read their last-24h slice from it.
package archive

import (
	"context"
	"fmt"
	"time"

	"go.uber.org/zap"

	"guardian-service/internal/bucketing"
	"guardian-service/internal/client"
	"guardian-service/internal/model"
	"guardian-service/internal/util"
)

const insertLocationsQuery = `
    INSERT INTO location_points
        (user_id, point_id, date_bucket, ts, latitude, longitude,
         accuracy, altitude, speed, heading, address)`

type LocationArchive struct {
	clickhouse *client.ClickHouseClient
	bucketing  *bucketing.Manager
}

func NewLocationArchive(ch *client.ClickHouseClient, buckets *bucketing.Manager) *LocationArchive {
	return &LocationArchive{
		clickhouse: ch,
		bucketing:  buckets,
	}
}

// Append writes a batch of points for one user. Points are immutable;
// replays of the same point id are handled by ReplacingMergeTree on the
// table, so this call is safe to retry.
func (a *LocationArchive) Append(ctx context.Context, userID string, points []model.LocationPoint) error {
	if len(points) == 0 {
		return nil
	}

	rows := make([][]interface{}, 0, len(points))
	for _, p := range points {
		at := time.UnixMilli(p.Timestamp).UTC()
		rows = append(rows, []interface{}{
			userID, p.ID, a.bucketing.GetDateBucket(at), at,
			p.Latitude, p.Longitude,
			nullable(p.Accuracy), nullable(p.Altitude),
			nullable(p.Speed), nullable(p.Heading),
			p.Address,
		})
	}

	if err := a.clickhouse.BatchInsert(ctx, insertLocationsQuery, rows); err != nil {
		util.Error("Failed to archive location points",
			zap.String("user_id", userID),
			zap.Int("count", len(points)),
			zap.Error(err))
		return fmt.Errorf("failed to archive location points: %w", err)
	}

	util.Debug("Location points archived",
		zap.String("user_id", userID),
		zap.Int("count", len(points)))
	return nil
}

// RecentWindow returns a user's points newer than the cutoff, newest
// first. Shared-data links use a 24h cutoff.
func (a *LocationArchive) RecentWindow(ctx context.Context, userID string, since time.Time) ([]model.LocationPoint, error) {
	rows, err := a.clickhouse.QueryRows(ctx, `
        SELECT point_id, ts, latitude, longitude, accuracy, altitude, speed, heading, address
        FROM location_points
        WHERE user_id = ? AND ts >= ?
        ORDER BY ts DESC`, userID, since.UTC())
	if err != nil {
		util.Error("Failed to query location window",
			zap.String("user_id", userID),
			zap.Error(err))
		return nil, fmt.Errorf("failed to query location window: %w", err)
	}
	defer rows.Close()

	points := make([]model.LocationPoint, 0)
	for rows.Next() {
		var (
			p  model.LocationPoint
			at time.Time
		)
		if err := rows.Scan(&p.ID, &at, &p.Latitude, &p.Longitude,
			&p.Accuracy, &p.Altitude, &p.Speed, &p.Heading, &p.Address); err != nil {
			return nil, fmt.Errorf("failed to scan location point: %w", err)
		}
		p.Timestamp = at.UnixMilli()
		points = append(points, p)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to read location window: %w", err)
	}

	return points, nil
}

func nullable(v *float64) interface{} {
	if v == nil {
		return nil
	}
	return *v
}
