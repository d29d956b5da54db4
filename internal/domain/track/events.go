package track

// Room event names carried by the broadcast gateway. The gateway never
// interprets these; they are part of the wire contract with clients.
const (
	EventPositionUpdate  = "position:update"
	EventPositionBulk    = "position:bulk"
	EventPositionClear   = "position:clear"
	EventTracePurged     = "trace:purged"
	EventMissionSettings = "mission:settings"
)

// PositionUpdate is the payload broadcast for a single accepted sample
// and the per-user value inside a snapshot. Optional fields are
// serialized as explicit nulls so every receiver observes a stable
// shape.
type PositionUpdate struct {
	MissionID string   `json:"mission_id"`
	UserID    string   `json:"user_id"`
	Lng       float64  `json:"lng"`
	Lat       float64  `json:"lat"`
	Speed     *float64 `json:"speed"`
	Heading   *float64 `json:"heading"`
	Accuracy  *float64 `json:"accuracy"`
	Timestamp int64    `json:"t"`
}

// TracePoint is one element of a user's trail as seen on the wire,
// both in bulk broadcasts and in snapshot traces.
type TracePoint struct {
	Lng       float64 `json:"lng"`
	Lat       float64 `json:"lat"`
	Color     string  `json:"color"`
	Timestamp int64   `json:"t"`
}

// PositionBulk is the payload broadcast for one bulk ingest call. It
// carries every point that passed validation, including points the
// throttle kept out of the persisted trail.
type PositionBulk struct {
	MissionID string       `json:"mission_id"`
	UserID    string       `json:"user_id"`
	Points    []TracePoint `json:"points"`
}

// PositionClear is the payload broadcast when a user clears their
// current position.
type PositionClear struct {
	MissionID string `json:"mission_id"`
	UserID    string `json:"user_id"`
}

// TracePurged is the payload broadcast after a mission-wide trail
// purge.
type TracePurged struct {
	MissionID string `json:"mission_id"`
}

// MissionSettings is the payload broadcast when a mission's tracking
// settings change. The trigger is owned by the mission subsystem; the
// shape transits the same gateway as position events.
type MissionSettings struct {
	MissionID             string `json:"mission_id"`
	TraceRetentionSeconds int    `json:"trace_retention_seconds"`
}

// Snapshot is a point-in-time reconstruction of a mission's current
// positions and recent trails. It is the sole authority a client
// trusts after a reconnect; received snapshot data replaces local
// state wholesale.
type Snapshot struct {
	MissionID        string                    `json:"mission_id"`
	RetentionSeconds int                       `json:"retention_seconds"`
	Positions        map[string]PositionUpdate `json:"positions"`
	Traces           map[string][]TracePoint   `json:"traces"`
}
