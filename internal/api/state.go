package api

import (
	"encoding/json"
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/nerrad567/savecair-bridge/internal/bridges/climate"
)

// SetValueRequest is the body of PUT /state/{key}.
type SetValueRequest struct {
	Value any `json:"value"`
}

// handleGetState returns the full session snapshot.
func (s *Server) handleGetState(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, map[string]any{
		"machine_id": s.gateway.MachineID(),
		"state":      s.gateway.Snapshot(),
	})
}

// handleGetStateKey returns one register value.
func (s *Server) handleGetStateKey(w http.ResponseWriter, r *http.Request) {
	key := chi.URLParam(r, "key")
	v, ok := s.gateway.Get(key)
	if !ok {
		writeNotFound(w, "no value for "+key)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"key":   key,
		"value": v,
	})
}

// handleSetStateKey writes one register through the session command table.
func (s *Server) handleSetStateKey(w http.ResponseWriter, r *http.Request) {
	key := chi.URLParam(r, "key")

	var req SetValueRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeBadRequest(w, "invalid JSON body")
		return
	}
	if req.Value == nil {
		writeBadRequest(w, "value is required")
		return
	}

	if err := s.gateway.Set(r.Context(), key, req.Value); err != nil {
		s.logger.Warn("set failed", "key", key, "user", requestSubject(r), "error", err)
		writeCommandError(w, err)
		return
	}

	writeJSON(w, http.StatusAccepted, map[string]any{
		"key":    key,
		"value":  req.Value,
		"status": "accepted",
	})
}

// handleGetClimate returns the climate entity attributes.
func (s *Server) handleGetClimate(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, s.entity.State())
}

// handleSetClimate applies climate settings in entity order.
func (s *Server) handleSetClimate(w http.ResponseWriter, r *http.Request) {
	var settings climate.Settings
	if err := json.NewDecoder(r.Body).Decode(&settings); err != nil {
		writeBadRequest(w, "invalid JSON body")
		return
	}

	if err := s.entity.Apply(r.Context(), settings); err != nil {
		s.logger.Warn("climate update failed", "user", requestSubject(r), "error", err)
		writeCommandError(w, err)
		return
	}

	writeJSON(w, http.StatusAccepted, s.entity.State())
}

// handlePoll requests an immediate read of the subscribed sensors.
func (s *Server) handlePoll(w http.ResponseWriter, r *http.Request) {
	if !s.gateway.PollNow(r.Context()) {
		writeUnavailable(w, "gateway not connected")
		return
	}
	writeJSON(w, http.StatusAccepted, map[string]string{"status": "accepted"})
}

// handleCommand executes a bridge command message and returns its ack.
func (s *Server) handleCommand(w http.ResponseWriter, r *http.Request) {
	if s.bridge == nil {
		writeUnavailable(w, "MQTT bridge not running")
		return
	}

	var cmd climate.CommandMessage
	if err := json.NewDecoder(r.Body).Decode(&cmd); err != nil {
		writeBadRequest(w, "invalid JSON body")
		return
	}
	cmd.Source = "api"

	ack := s.bridge.Execute(r.Context(), cmd)
	status := http.StatusAccepted
	if ack.Status == climate.AckFailed {
		status = http.StatusUnprocessableEntity
	}
	writeJSON(w, status, ack)
}
