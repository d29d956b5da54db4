package track

import "time"

const (
	// TrailPointSpacingMs is the minimum spacing, in epoch
	// milliseconds, between two persisted trail points for the same
	// mission/user pair. Samples arriving denser than this update the
	// current position but never grow the trail.
	TrailPointSpacingMs = 2000

	// MaxBulkPoints bounds one bulk ingest call. The client offline
	// buffer drains in batches of this size.
	MaxBulkPoints = 200

	// FutureSlack is how far a sample timestamp may run ahead of
	// server time before the sample is dropped as clock skew.
	FutureSlack = 60 * time.Second

	// DefaultSnapshotRetentionSeconds is used when a snapshot request
	// does not ask for a specific window. Always clamped to the
	// mission's own retention.
	DefaultSnapshotRetentionSeconds = 1800
)

// Sample is one raw position report from a client. Timestamp is epoch
// milliseconds; zero means the client did not stamp the sample and the
// server's clock is used instead.
type Sample struct {
	Lng       float64
	Lat       float64
	Speed     *float64
	Heading   *float64
	Accuracy  *float64
	Timestamp int64
}

// CurrentPosition is the single live-position row kept per mission and
// user. Last-writer-wins by the sample's own timestamp.
type CurrentPosition struct {
	MissionID string
	UserID    string
	Lng       float64
	Lat       float64
	Speed     *float64
	Heading   *float64
	Accuracy  *float64
	Timestamp time.Time
}

// TrailPoint is one persisted, append-only trail record. Color is a
// denormalized copy of the member's color at write time so historical
// segments keep it. ExpiresAt is fixed at write time from the
// mission's retention and never re-evaluated.
type TrailPoint struct {
	MissionID string
	UserID    string
	Color     string
	Lng       float64
	Lat       float64
	CreatedAt time.Time
	ExpiresAt time.Time
}
