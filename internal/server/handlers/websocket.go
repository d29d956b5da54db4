package handlers

import (
	"context"
	"net/http"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"

	"fieldtrace/internal/domain/mission"
	"fieldtrace/internal/domain/track"
	"fieldtrace/internal/logging"
	"fieldtrace/internal/service/broadcast"
)

// WebSocketConfig contains configuration for WebSocket connections
type WebSocketConfig struct {
	// Time allowed to write a message to the peer
	WriteWait time.Duration

	// Time allowed to read the next pong message from the peer
	PongWait time.Duration

	// Send pings to peer with this period
	PingPeriod time.Duration

	// Maximum message size allowed from peer
	MaxMessageSize int64
}

// DefaultWebSocketConfig returns the default WebSocket configuration
func DefaultWebSocketConfig() WebSocketConfig {
	return WebSocketConfig{
		WriteWait:      10 * time.Second,
		PongWait:       60 * time.Second,
		PingPeriod:     (60 * time.Second * 9) / 10,
		MaxMessageSize: 256 * 1024,
	}
}

var upgrader = websocket.Upgrader{
	ReadBufferSize:  1024,
	WriteBufferSize: 1024,
	CheckOrigin: func(r *http.Request) bool {
		// In production, this should be more restrictive
		return true
	},
}

// TrackSocketHandler owns the websocket endpoint for real-time
// position tracking: one connection per client, message-driven room
// membership, acks for every request.
type TrackSocketHandler struct {
	pipeline   track.Pipeline
	snapshots  track.SnapshotBuilder
	gateway    *broadcast.Gateway
	directory  mission.Directory
	sendBuffer int
}

// NewTrackSocketHandler creates the websocket handler.
func NewTrackSocketHandler(
	pipeline track.Pipeline,
	snapshots track.SnapshotBuilder,
	gateway *broadcast.Gateway,
	directory mission.Directory,
	sendBuffer int,
) *TrackSocketHandler {
	return &TrackSocketHandler{
		pipeline:   pipeline,
		snapshots:  snapshots,
		gateway:    gateway,
		directory:  directory,
		sendBuffer: sendBuffer,
	}
}

// Handle upgrades the connection and runs the session pumps.
func (h *TrackSocketHandler) Handle() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		// In a real deployment the user comes from the session token;
		// credential verification is owned by the auth subsystem.
		userID := r.URL.Query().Get("user_id")
		if userID == "" {
			http.Error(w, "Missing user ID", http.StatusBadRequest)
			return
		}

		conn, err := upgrader.Upgrade(w, r, nil)
		if err != nil {
			logging.Warn().Err(err).Msg("websocket upgrade failed")
			return
		}

		sess := newSession(
			uuid.NewString(),
			userID,
			h.pipeline,
			h.snapshots,
			h.gateway,
			h.directory,
			h.sendBuffer,
		)

		logging.Info().
			Str("connection_id", sess.id).
			Str("user_id", userID).
			Msg("websocket connection opened")

		go writePump(conn, sess)
		go readPump(conn, sess)
	}
}

// readPump pumps messages from the connection into the session
// dispatcher. Messages are handled sequentially, so ack order matches
// request order on one connection.
func readPump(conn *websocket.Conn, sess *session) {
	config := DefaultWebSocketConfig()

	defer func() {
		sess.gateway.Leave(sess.id)
		sess.close()
		conn.Close()
		logging.Info().
			Str("connection_id", sess.id).
			Str("user_id", sess.userID).
			Msg("websocket connection closed")
	}()

	conn.SetReadLimit(config.MaxMessageSize)
	conn.SetReadDeadline(time.Now().Add(config.PongWait))
	conn.SetPongHandler(func(string) error {
		conn.SetReadDeadline(time.Now().Add(config.PongWait))
		return nil
	})

	ctx := context.Background()
	for {
		_, message, err := conn.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseAbnormalClosure) {
				logging.Warn().Err(err).Str("connection_id", sess.id).Msg("websocket read error")
			}
			break
		}
		sess.dispatch(ctx, message)
	}
}

// writePump pumps frames from the session's send queue to the
// connection and keeps the connection alive with pings.
func writePump(conn *websocket.Conn, sess *session) {
	config := DefaultWebSocketConfig()
	ticker := time.NewTicker(config.PingPeriod)
	defer func() {
		ticker.Stop()
		conn.Close()
	}()

	for {
		select {
		case message, ok := <-sess.send:
			conn.SetWriteDeadline(time.Now().Add(config.WriteWait))
			if !ok {
				conn.WriteMessage(websocket.CloseMessage, []byte{})
				return
			}
			if err := conn.WriteMessage(websocket.TextMessage, message); err != nil {
				return
			}

		case <-ticker.C:
			conn.SetWriteDeadline(time.Now().Add(config.WriteWait))
			if err := conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		}
	}
}
