package broadcast

import (
	"fmt"
	"sync"

	"github.com/goccy/go-json"

	"fieldtrace/internal/logging"
)

// DeliverFunc hands one room event to a connection. Implementations
// must not block; the websocket layer backs it with a buffered send
// channel.
type DeliverFunc func(event string, payload []byte)

// envelope is the bus wire format for room events. Origin names the
// connection whose delivery is suppressed, for events the sender
// already applied locally.
type envelope struct {
	Event   string          `json:"event"`
	Origin  string          `json:"origin,omitempty"`
	Payload json.RawMessage `json:"payload"`
}

type membership struct {
	missionID        string
	retentionSeconds int
	unsubscribe      func() error
}

// Gateway is the room-scoped fan-out primitive: one room per mission,
// a connection in at most one room at a time. It owns the explicit
// ConnectionID → MissionID record, so rejoin and cleanup are pure
// state transitions. Payloads are never interpreted here.
type Gateway struct {
	bus Bus

	mu    sync.Mutex
	conns map[string]*membership
}

// NewGateway creates a gateway over the given bus.
func NewGateway(bus Bus) *Gateway {
	return &Gateway{
		bus:   bus,
		conns: make(map[string]*membership),
	}
}

func roomSubject(missionID string) string {
	return fmt.Sprintf("mission.%s.track", missionID)
}

// Join subscribes a connection to a mission's room. Joining while in
// another room leaves the old room first. retentionSeconds is the
// client's requested snapshot window, -1 when it did not ask for one.
func (g *Gateway) Join(connectionID, missionID string, retentionSeconds int, deliver DeliverFunc) error {
	unsubscribe, err := g.bus.Subscribe(roomSubject(missionID), func(data []byte) {
		var env envelope
		if err := json.Unmarshal(data, &env); err != nil {
			logging.Warn().Err(err).Str("mission_id", missionID).Msg("dropping malformed room event")
			return
		}
		if env.Origin != "" && env.Origin == connectionID {
			return
		}
		deliver(env.Event, env.Payload)
	})
	if err != nil {
		return fmt.Errorf("join room %s: %w", missionID, err)
	}

	g.mu.Lock()
	if old, ok := g.conns[connectionID]; ok {
		g.drop(connectionID, old)
	}
	g.conns[connectionID] = &membership{
		missionID:        missionID,
		retentionSeconds: retentionSeconds,
		unsubscribe:      unsubscribe,
	}
	g.mu.Unlock()

	logging.Debug().
		Str("connection_id", connectionID).
		Str("mission_id", missionID).
		Msg("connection joined room")

	return nil
}

// Leave removes a connection from its room, if any. Also the
// disconnect path.
func (g *Gateway) Leave(connectionID string) {
	g.mu.Lock()
	if m, ok := g.conns[connectionID]; ok {
		g.drop(connectionID, m)
	}
	g.mu.Unlock()
}

// drop must be called with g.mu held.
func (g *Gateway) drop(connectionID string, m *membership) {
	if err := m.unsubscribe(); err != nil {
		logging.Warn().Err(err).Str("connection_id", connectionID).Msg("room unsubscribe failed")
	}
	delete(g.conns, connectionID)
}

// MissionOf returns the mission a connection is joined to.
func (g *Gateway) MissionOf(connectionID string) (string, bool) {
	g.mu.Lock()
	defer g.mu.Unlock()
	m, ok := g.conns[connectionID]
	if !ok {
		return "", false
	}
	return m.missionID, true
}

// RetentionOf returns the snapshot window the connection requested at
// join time, -1 when it did not ask for one.
func (g *Gateway) RetentionOf(connectionID string) (int, bool) {
	g.mu.Lock()
	defer g.mu.Unlock()
	m, ok := g.conns[connectionID]
	if !ok {
		return 0, false
	}
	return m.retentionSeconds, true
}

// Publish fans an event out to every connection in the mission's room.
func (g *Gateway) Publish(missionID, event string, payload interface{}) {
	g.publish(missionID, "", event, payload)
}

// PublishExcept fans an event out to the room, skipping one
// connection.
func (g *Gateway) PublishExcept(missionID, exceptConnectionID, event string, payload interface{}) {
	g.publish(missionID, exceptConnectionID, event, payload)
}

func (g *Gateway) publish(missionID, origin, event string, payload interface{}) {
	raw, err := json.Marshal(payload)
	if err != nil {
		logging.Error().Err(err).Str("event", event).Msg("failed to marshal room event")
		return
	}
	data, err := json.Marshal(envelope{Event: event, Origin: origin, Payload: raw})
	if err != nil {
		logging.Error().Err(err).Str("event", event).Msg("failed to marshal room envelope")
		return
	}
	if err := g.bus.Publish(roomSubject(missionID), data); err != nil {
		logging.Error().Err(err).
			Str("mission_id", missionID).
			Str("event", event).
			Msg("failed to publish room event")
	}
}
