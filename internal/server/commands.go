package server

import (
	"encoding/json"
	"log/slog"
	"strings"

	"github.com/oszuidwest/zwfm-alarmwatch/internal/eventlog"
	"github.com/oszuidwest/zwfm-alarmwatch/internal/types"
)

// DefaultEventsLimit is used when a request omits the limit.
const DefaultEventsLimit = 50

// WSCommand is a command received from a WebSocket client.
type WSCommand struct {
	Type string          `json:"type"`
	ID   string          `json:"id,omitempty"`
	Data json.RawMessage `json:"data,omitempty"`
}

// Controller is the running detector.
type Controller interface {
	SendTestAlert(text string)
	SetThreshold(threshold float64)
}

// Settings persists operator changes.
type Settings interface {
	SetAlarmThreshold(threshold float64) error
	SetAudioDevice(device string) error
}

// CommandHandler processes WebSocket commands.
type CommandHandler struct {
	settings     Settings
	controller   Controller
	eventLogPath string
}

// NewCommandHandler creates a new command handler.
func NewCommandHandler(settings Settings, controller Controller, eventLogPath string) *CommandHandler {
	return &CommandHandler{
		settings:     settings,
		controller:   controller,
		eventLogPath: eventLogPath,
	}
}

// Handle processes a WebSocket command and performs the requested action.
// Commands use slash-style format: namespace/action (e.g., "alert/test", "alarm/threshold")
func (h *CommandHandler) Handle(cmd WSCommand, send chan<- any, triggerStatusUpdate func()) {
	namespace, action, _ := strings.Cut(cmd.Type, "/")

	switch namespace {
	case "alert":
		h.handleAlert(action, cmd, send)
	case "alarm":
		h.handleAlarm(action, cmd, send)
	case "audio":
		h.handleAudio(action, cmd, send)
	case "events":
		h.handleEvents(action, cmd, send)
	case "status":
		// Status is sent automatically, but explicit get triggers immediate update
		if action != "get" {
			slog.Warn("unknown status action", "action", action)
		}
	default:
		slog.Warn("unknown WebSocket command", "type", cmd.Type)
	}

	triggerStatusUpdate()
}

// handleAlert routes alert/* commands
func (h *CommandHandler) handleAlert(action string, cmd WSCommand, send chan<- any) {
	switch action {
	case "test":
		HandleCommand(cmd, send, func(req *AlertTestRequest) error {
			slog.Info("alert/test: sending test alert", "text", req.Text)
			h.controller.SendTestAlert(req.Text)
			return nil
		})
	default:
		slog.Warn("unknown alert action", "action", action)
	}
}

// handleAlarm routes alarm/* commands
func (h *CommandHandler) handleAlarm(action string, cmd WSCommand, send chan<- any) {
	switch action {
	case "threshold":
		HandleCommand(cmd, send, func(req *ThresholdRequest) error {
			if err := h.settings.SetAlarmThreshold(req.Threshold); err != nil {
				return err
			}
			slog.Info("alarm/threshold: threshold changed", "threshold", req.Threshold)
			h.controller.SetThreshold(req.Threshold)
			return nil
		})
	default:
		slog.Warn("unknown alarm action", "action", action)
	}
}

// handleAudio routes audio/* commands
func (h *CommandHandler) handleAudio(action string, cmd WSCommand, send chan<- any) {
	switch action {
	case "update":
		// The capture process picks the device up on its next restart.
		HandleCommand(cmd, send, func(req *AudioUpdateRequest) error {
			slog.Info("audio/update: changing audio device", "device", req.Device)
			return h.settings.SetAudioDevice(req.Device)
		})
	default:
		slog.Warn("unknown audio action", "action", action)
	}
}

// handleEvents routes events/* commands
func (h *CommandHandler) handleEvents(action string, cmd WSCommand, send chan<- any) {
	switch action {
	case "list":
		HandleQuery(cmd, send, func(req *EventsRequest) (any, error) {
			return ReadEvents(h.eventLogPath, req)
		})
	default:
		slog.Warn("unknown events action", "action", action)
	}
}

// ReadEvents reads a page of the event log for a validated request.
func ReadEvents(path string, req *EventsRequest) (types.EventsResponse, error) {
	limit := req.Limit
	if limit == 0 {
		limit = DefaultEventsLimit
	}
	events, more, err := eventlog.ReadLast(path, limit, req.Offset, eventlog.TypeFilter(req.Filter))
	if err != nil {
		return types.EventsResponse{}, err
	}
	return types.EventsResponse{Events: events, HasMore: more}, nil
}
