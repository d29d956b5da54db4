package handlers

import "github.com/goccy/go-json"

// Client-to-server message types.
const (
	typeMissionJoin     = "mission:join"
	typeMissionLeave    = "mission:leave"
	typeSnapshotRequest = "snapshot:request"
	typePositionUpdate  = "position:update"
	typePositionBulk    = "position:bulk"
	typePositionClear   = "position:clear"
)

// Server-to-client message types not shared with the broadcast layer.
const (
	typeAck           = "ack"
	typeMissionJoined = "mission:joined"
	typeSnapshot      = "snapshot"
)

// Fallback error codes for infrastructure failures, per operation.
const (
	codeJoinFailed        = "JOIN_FAILED"
	codeSnapshotFailed    = "SNAPSHOT_FAILED"
	codePositionFailed    = "POSITION_FAILED"
	codeBulkFailed        = "BULK_FAILED"
	codeClearFailed       = "CLEAR_FAILED"
	codeUnsupportedEvent  = "UNSUPPORTED_EVENT"
	codeMissionIDRequired = "MISSION_ID_REQUIRED"
	codeForbidden         = "FORBIDDEN"
	codeNotInMission      = "NOT_IN_MISSION"
	codeInvalidPosition   = "INVALID_POSITION"
)

// clientMessage is the envelope for every client-to-server message.
// ID correlates the ack; clients that do not care may omit it.
type clientMessage struct {
	Type string          `json:"type"`
	ID   string          `json:"id,omitempty"`
	Data json.RawMessage `json:"data,omitempty"`
}

// serverMessage is the envelope for every server-to-client message.
type serverMessage struct {
	Type string      `json:"type"`
	Data interface{} `json:"data,omitempty"`
}

// ackMessage resolves one client message. Handlers always send one;
// a client is never left hanging on a silent failure.
type ackMessage struct {
	Type     string `json:"type"`
	ID       string `json:"id,omitempty"`
	OK       bool   `json:"ok"`
	Error    string `json:"error,omitempty"`
	Inserted *int   `json:"inserted,omitempty"`
}

type joinRequest struct {
	MissionID        string `json:"mission_id"`
	RetentionSeconds *int   `json:"retention_seconds,omitempty"`
}

type joinedNotice struct {
	MissionID string `json:"mission_id"`
}

type snapshotRequest struct {
	MissionID string `json:"mission_id,omitempty"`
}

// positionRequest uses pointers for the coordinates so a missing field
// is distinguishable from zero and rejected as invalid.
type positionRequest struct {
	Lng      *float64 `json:"lng"`
	Lat      *float64 `json:"lat"`
	Speed    *float64 `json:"speed,omitempty"`
	Heading  *float64 `json:"heading,omitempty"`
	Accuracy *float64 `json:"accuracy,omitempty"`
	T        int64    `json:"t,omitempty"`
}

type bulkRequest struct {
	Points []positionRequest `json:"points"`
}
