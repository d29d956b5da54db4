package handlers

import (
	"context"
	"sync"

	"github.com/goccy/go-json"

	"fieldtrace/internal/domain/mission"
	"fieldtrace/internal/domain/track"
	"fieldtrace/internal/logging"
	"fieldtrace/internal/service/broadcast"
)

// session is the per-connection state: one user, at most one mission
// room, an outbound queue. Message dispatch lives here, decoupled from
// the websocket pumps so it can be exercised without a transport.
type session struct {
	id        string
	userID    string
	pipeline  track.Pipeline
	snapshots track.SnapshotBuilder
	gateway   *broadcast.Gateway
	directory mission.Directory

	mu     sync.Mutex
	closed bool
	send   chan []byte
}

func newSession(
	id, userID string,
	pipeline track.Pipeline,
	snapshots track.SnapshotBuilder,
	gateway *broadcast.Gateway,
	directory mission.Directory,
	sendBuffer int,
) *session {
	if sendBuffer <= 0 {
		sendBuffer = 256
	}
	return &session{
		id:        id,
		userID:    userID,
		pipeline:  pipeline,
		snapshots: snapshots,
		gateway:   gateway,
		directory: directory,
		send:      make(chan []byte, sendBuffer),
	}
}

// dispatch handles one raw client message. Every message is answered
// with an ack, malformed ones included.
func (s *session) dispatch(ctx context.Context, raw []byte) {
	var msg clientMessage
	if err := json.Unmarshal(raw, &msg); err != nil {
		logging.Warn().Err(err).Str("user_id", s.userID).Msg("malformed websocket message")
		s.ack(ackMessage{OK: false, Error: codeUnsupportedEvent})
		return
	}

	switch msg.Type {
	case typeMissionJoin:
		s.handleJoin(ctx, msg)
	case typeMissionLeave:
		s.handleLeave(msg)
	case typeSnapshotRequest:
		s.handleSnapshot(ctx, msg)
	case typePositionUpdate:
		s.handlePosition(ctx, msg)
	case typePositionBulk:
		s.handleBulk(ctx, msg)
	case typePositionClear:
		s.handleClear(ctx, msg)
	default:
		logging.Debug().Str("type", msg.Type).Msg("unsupported websocket message type")
		s.ack(ackMessage{ID: msg.ID, OK: false, Error: codeUnsupportedEvent})
	}
}

func (s *session) handleJoin(ctx context.Context, msg clientMessage) {
	var req joinRequest
	if len(msg.Data) > 0 {
		if err := json.Unmarshal(msg.Data, &req); err != nil {
			s.ack(ackMessage{ID: msg.ID, OK: false, Error: codeMissionIDRequired})
			return
		}
	}
	if req.MissionID == "" {
		s.ack(ackMessage{ID: msg.ID, OK: false, Error: codeMissionIDRequired})
		return
	}

	ok, err := s.directory.IsActiveMember(ctx, req.MissionID, s.userID)
	if err != nil {
		logging.Error().Err(err).Str("mission_id", req.MissionID).Msg("membership check failed")
		s.ack(ackMessage{ID: msg.ID, OK: false, Error: codeJoinFailed})
		return
	}
	if !ok {
		s.ack(ackMessage{ID: msg.ID, OK: false, Error: codeForbidden})
		return
	}

	retention := -1
	if req.RetentionSeconds != nil {
		retention = *req.RetentionSeconds
	}

	if err := s.gateway.Join(s.id, req.MissionID, retention, s.deliver); err != nil {
		logging.Error().Err(err).Str("mission_id", req.MissionID).Msg("room join failed")
		s.ack(ackMessage{ID: msg.ID, OK: false, Error: codeJoinFailed})
		return
	}

	s.ack(ackMessage{ID: msg.ID, OK: true})
	s.push(typeMissionJoined, joinedNotice{MissionID: req.MissionID})
	s.pushSnapshot(ctx, req.MissionID, retention)
}

func (s *session) handleLeave(msg clientMessage) {
	s.gateway.Leave(s.id)
	s.ack(ackMessage{ID: msg.ID, OK: true})
}

func (s *session) handleSnapshot(ctx context.Context, msg clientMessage) {
	var req snapshotRequest
	if len(msg.Data) > 0 {
		if err := json.Unmarshal(msg.Data, &req); err != nil {
			s.ack(ackMessage{ID: msg.ID, OK: false, Error: codeSnapshotFailed})
			return
		}
	}

	room, joined := s.gateway.MissionOf(s.id)
	missionID := req.MissionID
	switch {
	case missionID == "" && !joined:
		s.ack(ackMessage{ID: msg.ID, OK: false, Error: codeMissionIDRequired})
		return
	case missionID == "":
		missionID = room
	case !joined || room != missionID:
		s.ack(ackMessage{ID: msg.ID, OK: false, Error: codeNotInMission})
		return
	}

	retention := -1
	if r, ok := s.gateway.RetentionOf(s.id); ok {
		retention = r
	}

	snap, err := s.snapshots.BuildSnapshot(ctx, missionID, retention)
	if err != nil {
		s.ack(ackMessage{ID: msg.ID, OK: false, Error: errorCode(err, codeSnapshotFailed)})
		return
	}
	s.ack(ackMessage{ID: msg.ID, OK: true})
	s.push(typeSnapshot, snap)
}

func (s *session) handlePosition(ctx context.Context, msg clientMessage) {
	missionID, joined := s.gateway.MissionOf(s.id)
	if !joined {
		s.ack(ackMessage{ID: msg.ID, OK: false, Error: codeNotInMission})
		return
	}

	var req positionRequest
	if err := json.Unmarshal(msg.Data, &req); err != nil || req.Lng == nil || req.Lat == nil {
		s.ack(ackMessage{ID: msg.ID, OK: false, Error: codeInvalidPosition})
		return
	}

	err := s.pipeline.IngestSingle(ctx, missionID, s.userID, track.Sample{
		Lng:       *req.Lng,
		Lat:       *req.Lat,
		Speed:     req.Speed,
		Heading:   req.Heading,
		Accuracy:  req.Accuracy,
		Timestamp: req.T,
	})
	if err != nil {
		logging.Warn().Err(err).Str("mission_id", missionID).Str("user_id", s.userID).Msg("position ingest rejected")
		s.ack(ackMessage{ID: msg.ID, OK: false, Error: errorCode(err, codePositionFailed)})
		return
	}
	s.ack(ackMessage{ID: msg.ID, OK: true})
}

func (s *session) handleBulk(ctx context.Context, msg clientMessage) {
	missionID, joined := s.gateway.MissionOf(s.id)
	if !joined {
		s.ack(ackMessage{ID: msg.ID, OK: false, Error: codeNotInMission})
		return
	}

	var req bulkRequest
	if err := json.Unmarshal(msg.Data, &req); err != nil {
		s.ack(ackMessage{ID: msg.ID, OK: false, Error: codeBulkFailed})
		return
	}

	samples := make([]track.Sample, 0, len(req.Points))
	for _, p := range req.Points {
		if p.Lng == nil || p.Lat == nil {
			continue
		}
		samples = append(samples, track.Sample{
			Lng:       *p.Lng,
			Lat:       *p.Lat,
			Speed:     p.Speed,
			Heading:   p.Heading,
			Accuracy:  p.Accuracy,
			Timestamp: p.T,
		})
	}

	inserted, err := s.pipeline.IngestBulk(ctx, missionID, s.userID, samples)
	if err != nil {
		logging.Warn().Err(err).Str("mission_id", missionID).Str("user_id", s.userID).Msg("bulk ingest rejected")
		s.ack(ackMessage{ID: msg.ID, OK: false, Error: errorCode(err, codeBulkFailed)})
		return
	}
	s.ack(ackMessage{ID: msg.ID, OK: true, Inserted: &inserted})
}

func (s *session) handleClear(ctx context.Context, msg clientMessage) {
	missionID, joined := s.gateway.MissionOf(s.id)
	if !joined {
		s.ack(ackMessage{ID: msg.ID, OK: false, Error: codeNotInMission})
		return
	}

	if err := s.pipeline.ClearPosition(ctx, missionID, s.userID); err != nil {
		s.ack(ackMessage{ID: msg.ID, OK: false, Error: errorCode(err, codeClearFailed)})
		return
	}
	s.ack(ackMessage{ID: msg.ID, OK: true})
}

// pushSnapshot sends a fresh snapshot to this connection only. A
// failure is logged, not fatal: the client can still request one
// explicitly.
func (s *session) pushSnapshot(ctx context.Context, missionID string, retention int) {
	snap, err := s.snapshots.BuildSnapshot(ctx, missionID, retention)
	if err != nil {
		logging.Error().Err(err).Str("mission_id", missionID).Msg("snapshot build failed on join")
		return
	}
	s.push(typeSnapshot, snap)
}

// deliver is the gateway's path into this connection.
func (s *session) deliver(event string, payload []byte) {
	s.push(event, json.RawMessage(payload))
}

func (s *session) ack(a ackMessage) {
	a.Type = typeAck
	data, err := json.Marshal(a)
	if err != nil {
		logging.Error().Err(err).Msg("failed to marshal ack")
		return
	}
	s.enqueue(data)
}

func (s *session) push(event string, payload interface{}) {
	data, err := json.Marshal(serverMessage{Type: event, Data: payload})
	if err != nil {
		logging.Error().Err(err).Str("event", event).Msg("failed to marshal outbound message")
		return
	}
	s.enqueue(data)
}

// enqueue hands a marshaled frame to the write pump without blocking.
// A full buffer drops the frame; the client reconverges through its
// next snapshot.
func (s *session) enqueue(data []byte) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return
	}
	select {
	case s.send <- data:
	default:
		logging.Warn().Str("user_id", s.userID).Msg("send buffer full, dropping frame")
	}
}

// close shuts the outbound queue exactly once.
func (s *session) close() {
	s.mu.Lock()
	if !s.closed {
		s.closed = true
		close(s.send)
	}
	s.mu.Unlock()
}

// errorCode maps a rejection to its wire code, falling back to the
// operation's generic failure code.
func errorCode(err error, fallback string) string {
	if code := track.Code(err); code != "" {
		return code
	}
	return fallback
}
