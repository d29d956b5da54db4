package storage

import (
	"context"
	"fmt"
	"time"

	"github.com/jackc/pgx/v4"
	"github.com/jackc/pgx/v4/pgxpool"

	"fieldtrace/internal/domain/track"
)

// TrackStore implements the trail store over Postgres: one
// current-position row per mission/user and the append-only,
// time-indexed trail collection.
type TrackStore struct {
	db *pgxpool.Pool
}

// NewTrackStore creates a new track store.
func NewTrackStore(db *pgxpool.Pool) *TrackStore {
	return &TrackStore{db: db}
}

// UpsertCurrentPosition overwrites the mission/user's live position.
// Last-writer-wins is intentional; only the caller's own row is
// touched, so no read-modify-write is needed.
func (s *TrackStore) UpsertCurrentPosition(ctx context.Context, p track.CurrentPosition) error {
	query := `
		INSERT INTO current_positions (
			mission_id, user_id, lng, lat, speed, heading, accuracy, sampled_at
		) VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
		ON CONFLICT (mission_id, user_id) DO UPDATE
		SET
			lng = $3,
			lat = $4,
			speed = $5,
			heading = $6,
			accuracy = $7,
			sampled_at = $8
	`

	_, err := s.db.Exec(ctx, query,
		p.MissionID,
		p.UserID,
		p.Lng,
		p.Lat,
		p.Speed,
		p.Heading,
		p.Accuracy,
		p.Timestamp,
	)
	if err != nil {
		return fmt.Errorf("error upserting current position: %w", err)
	}

	return nil
}

// DeleteCurrentPosition removes the mission/user's live position row.
func (s *TrackStore) DeleteCurrentPosition(ctx context.Context, missionID, userID string) error {
	query := `DELETE FROM current_positions WHERE mission_id = $1 AND user_id = $2`

	if _, err := s.db.Exec(ctx, query, missionID, userID); err != nil {
		return fmt.Errorf("error deleting current position: %w", err)
	}

	return nil
}

// InsertTrailPoints appends trail points using the COPY protocol.
func (s *TrackStore) InsertTrailPoints(ctx context.Context, points []track.TrailPoint) error {
	if len(points) == 0 {
		return nil
	}

	rows := make([][]interface{}, 0, len(points))
	for _, p := range points {
		rows = append(rows, []interface{}{
			p.MissionID, p.UserID, p.Color, p.Lng, p.Lat, p.CreatedAt, p.ExpiresAt,
		})
	}

	_, err := s.db.CopyFrom(
		ctx,
		pgx.Identifier{"trail_points"},
		[]string{"mission_id", "user_id", "color", "lng", "lat", "created_at", "expires_at"},
		pgx.CopyFromRows(rows),
	)
	if err != nil {
		return fmt.Errorf("error inserting trail points: %w", err)
	}

	return nil
}

// CurrentPositions returns the mission's live positions sampled at or
// after since.
func (s *TrackStore) CurrentPositions(ctx context.Context, missionID string, since time.Time) ([]track.CurrentPosition, error) {
	query := `
		SELECT mission_id, user_id, lng, lat, speed, heading, accuracy, sampled_at
		FROM current_positions
		WHERE mission_id = $1 AND sampled_at >= $2
	`

	rows, err := s.db.Query(ctx, query, missionID, since)
	if err != nil {
		return nil, fmt.Errorf("error querying current positions: %w", err)
	}
	defer rows.Close()

	var positions []track.CurrentPosition
	for rows.Next() {
		var p track.CurrentPosition
		if err := rows.Scan(
			&p.MissionID, &p.UserID, &p.Lng, &p.Lat,
			&p.Speed, &p.Heading, &p.Accuracy, &p.Timestamp,
		); err != nil {
			return nil, fmt.Errorf("error scanning current position: %w", err)
		}
		positions = append(positions, p)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating current positions: %w", err)
	}

	return positions, nil
}

// TrailPoints returns the mission's trail points created at or after
// since, ordered by user and ascending creation time so callers can
// group them without re-sorting.
func (s *TrackStore) TrailPoints(ctx context.Context, missionID string, since time.Time) ([]track.TrailPoint, error) {
	query := `
		SELECT mission_id, user_id, color, lng, lat, created_at, expires_at
		FROM trail_points
		WHERE mission_id = $1 AND created_at >= $2
		ORDER BY user_id, created_at ASC
	`

	rows, err := s.db.Query(ctx, query, missionID, since)
	if err != nil {
		return nil, fmt.Errorf("error querying trail points: %w", err)
	}
	defer rows.Close()

	var points []track.TrailPoint
	for rows.Next() {
		var p track.TrailPoint
		if err := rows.Scan(
			&p.MissionID, &p.UserID, &p.Color, &p.Lng, &p.Lat,
			&p.CreatedAt, &p.ExpiresAt,
		); err != nil {
			return nil, fmt.Errorf("error scanning trail point: %w", err)
		}
		points = append(points, p)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating trail points: %w", err)
	}

	return points, nil
}

// PurgeMissionTrail removes every trail point of a mission.
func (s *TrackStore) PurgeMissionTrail(ctx context.Context, missionID string) error {
	if _, err := s.db.Exec(ctx, `DELETE FROM trail_points WHERE mission_id = $1`, missionID); err != nil {
		return fmt.Errorf("error purging mission trail: %w", err)
	}
	return nil
}

// DeleteExpiredTrailPoints removes points whose expiry has passed.
func (s *TrackStore) DeleteExpiredTrailPoints(ctx context.Context, now time.Time) (int64, error) {
	ct, err := s.db.Exec(ctx, `DELETE FROM trail_points WHERE expires_at <= $1`, now)
	if err != nil {
		return 0, fmt.Errorf("error deleting expired trail points: %w", err)
	}
	return ct.RowsAffected(), nil
}
