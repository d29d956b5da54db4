package mission

import "context"

// Directory answers membership and settings questions about missions.
// It is the boundary to the mission/authorization subsystem; the
// tracking core consumes it and never mutates through it.
type Directory interface {
	// IsActiveMember reports whether the user is an active member of
	// the mission.
	IsActiveMember(ctx context.Context, missionID, userID string) (bool, error)

	// RetentionSeconds returns the mission's configured trail
	// retention. It is read at write time; changing it never rewrites
	// the expiry of already-persisted trail points.
	RetentionSeconds(ctx context.Context, missionID string) (int, error)

	// MemberColor returns the color assigned to the member, or ""
	// when none is set.
	MemberColor(ctx context.Context, missionID, userID string) (string, error)
}
