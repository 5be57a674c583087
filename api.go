package main

import (
	"encoding/json"
	"log/slog"
	"net/http"
	"strconv"

	"github.com/oszuidwest/zwfm-alarmwatch/internal/audio"
	"github.com/oszuidwest/zwfm-alarmwatch/internal/server"
)

// API response helpers

func (s *Server) writeJSON(w http.ResponseWriter, status int, data any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(data); err != nil {
		slog.Error("failed to encode JSON response", "error", err)
	}
}

func (s *Server) writeError(w http.ResponseWriter, status int, message string) {
	s.writeJSON(w, status, map[string]string{"error": message})
}

// parseJSON reads, parses and validates JSON from the request body.
// Returns parsed value and true on success, zero value and false on failure.
func parseJSON[T any](s *Server, w http.ResponseWriter, r *http.Request) (T, bool) {
	var v T
	if err := json.NewDecoder(http.MaxBytesReader(w, r.Body, 64<<10)).Decode(&v); err != nil {
		s.writeError(w, http.StatusBadRequest, "Invalid JSON: "+err.Error())
		return v, false
	}
	if err := server.ValidateStruct(&v); err != nil {
		s.writeJSON(w, http.StatusUnprocessableEntity, server.ValidationErrors(err))
		return v, false
	}
	return v, true
}

// handleHealth reports liveness.
// GET /healthz
func (s *Server) handleHealth(w http.ResponseWriter, _ *http.Request) {
	s.writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

type loginRequest struct {
	Username string `json:"username" validate:"required"`
	Password string `json:"password" validate:"required"`
}

// handleLogin creates a session cookie.
// POST /api/login
func (s *Server) handleLogin(w http.ResponseWriter, r *http.Request) {
	req, ok := parseJSON[loginRequest](s, w, r)
	if !ok {
		return
	}
	if !s.sessions.Login(w, r, req.Username, req.Password) {
		slog.Warn("failed login attempt", "remote", r.RemoteAddr)
		s.writeError(w, http.StatusUnauthorized, "Invalid credentials")
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// handleLogout clears the session.
// POST /api/logout
func (s *Server) handleLogout(w http.ResponseWriter, r *http.Request) {
	s.sessions.Logout(w, r)
	w.WriteHeader(http.StatusNoContent)
}

// handleStatus returns the detector status.
// GET /api/status
func (s *Server) handleStatus(w http.ResponseWriter, _ *http.Request) {
	s.writeJSON(w, http.StatusOK, s.buildStatus())
}

// handleEvents returns a page of the event log, newest first.
// GET /api/events?limit=50&offset=0&filter=alarm
func (s *Server) handleEvents(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	req := server.EventsRequest{Filter: q.Get("filter")}
	var err error
	if v := q.Get("limit"); v != "" {
		if req.Limit, err = strconv.Atoi(v); err != nil {
			s.writeError(w, http.StatusBadRequest, "limit must be a number")
			return
		}
	}
	if v := q.Get("offset"); v != "" {
		if req.Offset, err = strconv.Atoi(v); err != nil {
			s.writeError(w, http.StatusBadRequest, "offset must be a number")
			return
		}
	}
	if err := server.ValidateStruct(&req); err != nil {
		s.writeJSON(w, http.StatusUnprocessableEntity, server.ValidationErrors(err))
		return
	}

	page, err := server.ReadEvents(s.opts.EventLogPath, &req)
	if err != nil {
		slog.Error("failed to read event log", "path", s.opts.EventLogPath, "error", err)
		s.writeError(w, http.StatusInternalServerError, "Failed to read event log")
		return
	}
	page.Path = s.opts.EventLogPath
	s.writeJSON(w, http.StatusOK, page)
}

// handleDevices lists capture devices.
// GET /api/devices
func (s *Server) handleDevices(w http.ResponseWriter, _ *http.Request) {
	s.writeJSON(w, http.StatusOK, map[string]any{"devices": audio.ListDevices()})
}

// handleTestAlert sends a test alert through the alert client.
// POST /api/alert/test
func (s *Server) handleTestAlert(w http.ResponseWriter, r *http.Request) {
	req, ok := parseJSON[server.AlertTestRequest](s, w, r)
	if !ok {
		return
	}
	slog.Info("sending test alert", "text", req.Text)
	s.opts.Detector.SendTestAlert(req.Text)
	s.writeJSON(w, http.StatusAccepted, map[string]string{"status": "queued"})
}

// handleThreshold changes and persists the alarm threshold.
// PUT /api/alarm/threshold
func (s *Server) handleThreshold(w http.ResponseWriter, r *http.Request) {
	req, ok := parseJSON[server.ThresholdRequest](s, w, r)
	if !ok {
		return
	}
	if err := s.config.SetAlarmThreshold(req.Threshold); err != nil {
		s.writeError(w, http.StatusInternalServerError, err.Error())
		return
	}
	s.opts.Detector.SetThreshold(req.Threshold)
	s.writeJSON(w, http.StatusOK, map[string]float64{"threshold": req.Threshold})
}
