package mission

import "time"

// DefaultMemberColor is used for trail points when a member has no
// color assigned in the mission roster.
const DefaultMemberColor = "#2E86DE"

// Mission holds the settings the tracking core reads. Mission CRUD is
// owned by a neighboring subsystem; only the settings surface is
// consumed here.
type Mission struct {
	ID                    string
	Name                  string
	TraceRetentionSeconds int
	CreatedAt             time.Time
}

// Member is one user's membership in a mission roster.
type Member struct {
	MissionID string
	UserID    string
	Color     string
	Active    bool
	JoinedAt  time.Time
}

// RetentionWindow returns the mission's retention as a duration.
func (m Mission) RetentionWindow() time.Duration {
	return time.Duration(m.TraceRetentionSeconds) * time.Second
}
