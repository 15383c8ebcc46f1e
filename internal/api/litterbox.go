package api

import (
	"encoding/json"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"

	"github.com/nerrad567/gray-logic-litterbox/internal/litterbox"
)

// litterboxResponse is the body of GET /litterbox and of successful commands.
type litterboxResponse struct {
	IoTID     string              `json:"iot_id"`
	Name      string              `json:"name,omitempty"`
	Status    litterbox.Status    `json:"status"`
	State     map[string]any      `json:"state,omitempty"`
	Snapshot  *litterbox.Snapshot `json:"snapshot,omitempty"`
	Available bool                `json:"available"`
}

// switchRequest is the body of PUT /litterbox/switches/{entity}.
type switchRequest struct {
	On *bool `json:"on"`
}

func (s *Server) currentState() litterboxResponse {
	resp := litterboxResponse{
		IoTID:  s.ctrl.IoTID(),
		Status: s.ctrl.Status(),
	}
	resp.Available = resp.Status.Available
	if snap, ok := s.ctrl.Snapshot(); ok {
		resp.Snapshot = &snap
		resp.State = litterbox.State(snap)
	}
	return resp
}

// handleGetLitterbox returns the last known snapshot and cached name. It
// never calls the cloud; the poll loop keeps both fresh.
func (s *Server) handleGetLitterbox(w http.ResponseWriter, _ *http.Request) {
	resp := s.currentState()
	resp.Name = s.ctrl.Name()
	writeJSON(w, http.StatusOK, resp)
}

// handleListEntities returns the entity catalogue.
func (s *Server) handleListEntities(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, map[string]any{"entities": litterbox.Entities()})
}

// handleRefresh runs one update cycle immediately.
func (s *Server) handleRefresh(w http.ResponseWriter, r *http.Request) {
	if _, err := s.ctrl.Refresh(r.Context()); err != nil {
		writeControllerError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, s.currentState())
}

// handleSetSwitch turns a switch entity on or off.
func (s *Server) handleSetSwitch(w http.ResponseWriter, r *http.Request) {
	key := chi.URLParam(r, "entity")

	var req switchRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil || req.On == nil {
		writeBadRequest(w, `body must be {"on": true|false}`)
		return
	}

	action := litterbox.ActionTurnOff
	if *req.On {
		action = litterbox.ActionTurnOn
	}
	if err := s.ctrl.Execute(r.Context(), key, action); err != nil {
		s.logger.Warn("switch command failed", "entity", key, "on", *req.On, "error", err)
		writeControllerError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, s.currentState())
}

// handlePressButton invokes the clean, level or dump service.
func (s *Server) handlePressButton(w http.ResponseWriter, r *http.Request) {
	service := chi.URLParam(r, "service")
	if err := s.ctrl.InvokeService(r.Context(), service); err != nil {
		s.logger.Warn("service invocation failed", "service", service, "error", err)
		writeControllerError(w, err)
		return
	}
	writeJSON(w, http.StatusAccepted, s.currentState())
}

// handleHistory returns stored snapshots, newest first.
func (s *Server) handleHistory(w http.ResponseWriter, r *http.Request) {
	if s.history == nil {
		writeError(w, http.StatusServiceUnavailable, ErrCodeUnavailable, "history is not enabled")
		return
	}

	limit := 0
	if v := r.URL.Query().Get("limit"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil || n < 1 {
			writeBadRequest(w, "limit must be a positive integer")
			return
		}
		limit = n
	}

	entries, err := s.history.History(r.Context(), s.ctrl.IoTID(), limit)
	if err != nil {
		s.logger.Error("history query failed", "error", err)
		writeInternalError(w, "failed to load history")
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"entries": entries, "count": len(entries)})
}

// handleUsage returns recent visits through the usage cache.
func (s *Server) handleUsage(w http.ResponseWriter, r *http.Request) {
	events, err := s.ctrl.UsageHistory(r.Context())
	if err != nil {
		writeControllerError(w, err)
		return
	}
	if events == nil {
		events = []litterbox.UsageEvent{}
	}
	writeJSON(w, http.StatusOK, map[string]any{"events": events, "count": len(events)})
}
