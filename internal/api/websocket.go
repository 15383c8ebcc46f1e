package api

import (
	"net/http"

	"github.com/gorilla/websocket"

	"github.com/nerrad567/gray-logic-litterbox/internal/auth"
	"github.com/nerrad567/gray-logic-litterbox/internal/litterbox"
)

// Event channels broadcast by the hub.
const (
	ChannelState       = "litterbox.state"
	ChannelUnavailable = "litterbox.unavailable"
)

func isKnownChannel(ch string) bool {
	return ch == ChannelState || ch == ChannelUnavailable
}

// statePayload is the body of litterbox.state events.
type statePayload struct {
	IoTID    string             `json:"iot_id"`
	State    map[string]any     `json:"state"`
	Snapshot litterbox.Snapshot `json:"snapshot"`
}

// unavailablePayload is the body of litterbox.unavailable events.
type unavailablePayload struct {
	IoTID    string `json:"iot_id"`
	Error    string `json:"error"`
	Failures int    `json:"consecutive_failures"`
}

var upgrader = websocket.Upgrader{
	ReadBufferSize:  1024,
	WriteBufferSize: 1024,
	// Origins are checked against the CORS list in handleWebSocket.
	CheckOrigin: func(_ *http.Request) bool { return true },
}

// relayControllerEvents forwards controller updates and failures to
// WebSocket subscribers, and seeds new state subscribers with the last
// snapshot.
func (s *Server) relayControllerEvents() {
	iotID := s.ctrl.IoTID()
	state := func(snap litterbox.Snapshot) statePayload {
		return statePayload{IoTID: iotID, State: litterbox.State(snap), Snapshot: snap}
	}

	s.ctrl.OnUpdate(func(snap litterbox.Snapshot) {
		s.hub.Broadcast(ChannelState, state(snap))
	})
	s.ctrl.OnFailure(func(err error) {
		s.hub.Broadcast(ChannelUnavailable, unavailablePayload{
			IoTID:    iotID,
			Error:    err.Error(),
			Failures: s.ctrl.Status().Failures,
		})
	})

	s.hub.SetInitial(ChannelState, func() (any, bool) {
		snap, ok := s.ctrl.Snapshot()
		if !ok {
			return nil, false
		}
		return state(snap), true
	})
}

// handleWebSocket upgrades the connection after redeeming a ticket from
// POST /auth/ws-ticket. Only callers allowed to read litter box state may
// connect.
func (s *Server) handleWebSocket(w http.ResponseWriter, r *http.Request) {
	ticket := r.URL.Query().Get("ticket")
	if ticket == "" {
		writeUnauthorized(w, "ticket query parameter is required")
		return
	}
	entry, ok := s.tickets.consume(ticket)
	if !ok {
		writeUnauthorized(w, "invalid or expired ticket")
		return
	}
	if !auth.HasPermission(entry.role, auth.PermLitterboxRead) {
		writeError(w, http.StatusForbidden, ErrCodeForbidden, "insufficient permissions")
		return
	}
	if origin := r.Header.Get("Origin"); origin != "" && !s.isAllowedOrigin(origin) {
		writeError(w, http.StatusForbidden, ErrCodeForbidden, "origin not allowed")
		return
	}

	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		s.logger.Error("websocket upgrade failed", "error", err)
		return
	}

	client := &WSClient{
		hub:           s.hub,
		conn:          conn,
		send:          make(chan []byte, wsSendBufferSize),
		subscriptions: make(map[string]struct{}),
		subject:       entry.subject,
		role:          entry.role,
	}
	s.hub.Register(client)
	client.start()
}
