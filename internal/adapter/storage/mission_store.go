package storage

import (
	"context"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v4"
	"github.com/jackc/pgx/v4/pgxpool"
)

// MissionStore answers membership and settings questions from the
// mission tables. Mission CRUD lives in a neighboring subsystem; the
// tracking core only reads.
type MissionStore struct {
	db *pgxpool.Pool
}

// NewMissionStore creates a new mission store.
func NewMissionStore(db *pgxpool.Pool) *MissionStore {
	return &MissionStore{db: db}
}

// IsActiveMember reports whether the user is an active member of the
// mission.
func (s *MissionStore) IsActiveMember(ctx context.Context, missionID, userID string) (bool, error) {
	query := `SELECT active FROM mission_members WHERE mission_id = $1 AND user_id = $2`

	var active bool
	err := s.db.QueryRow(ctx, query, missionID, userID).Scan(&active)
	if errors.Is(err, pgx.ErrNoRows) {
		return false, nil
	}
	if err != nil {
		return false, fmt.Errorf("error querying membership: %w", err)
	}

	return active, nil
}

// RetentionSeconds returns the mission's configured trail retention.
func (s *MissionStore) RetentionSeconds(ctx context.Context, missionID string) (int, error) {
	query := `SELECT trace_retention_seconds FROM missions WHERE id = $1`

	var retention int
	if err := s.db.QueryRow(ctx, query, missionID).Scan(&retention); err != nil {
		return 0, fmt.Errorf("error querying mission retention: %w", err)
	}

	return retention, nil
}

// MemberColor returns the color assigned to the member, or "" when
// none is set.
func (s *MissionStore) MemberColor(ctx context.Context, missionID, userID string) (string, error) {
	query := `SELECT COALESCE(color, '') FROM mission_members WHERE mission_id = $1 AND user_id = $2`

	var color string
	err := s.db.QueryRow(ctx, query, missionID, userID).Scan(&color)
	if errors.Is(err, pgx.ErrNoRows) {
		return "", nil
	}
	if err != nil {
		return "", fmt.Errorf("error querying member color: %w", err)
	}

	return color, nil
}
