// Package types provides the wire types shared by the HTTP API and the WebSocket feed.
package types

import (
	"strings"

	"github.com/oszuidwest/zwfm-alarmwatch/internal/app"
	"github.com/oszuidwest/zwfm-alarmwatch/internal/audio"
	"github.com/oszuidwest/zwfm-alarmwatch/internal/eventlog"
)

// WSStatusResponse is sent to clients with the full detector status.
type WSStatusResponse struct {
	Type            string             `json:"type"`             // Message type identifier
	FFmpegAvailable bool               `json:"ffmpeg_available"` // FFmpeg binary is available
	Detector        app.Status         `json:"detector"`         // Actor, alarm and alert state
	Capture         audio.SourceStatus `json:"capture"`          // Capture process state
	Handoff         audio.HandoffStats `json:"handoff"`          // Frame hand-off counters
	Levels          audio.Levels       `json:"levels"`           // Input levels
	Settings        WSSettings         `json:"settings"`         // Current settings
	Version         VersionInfo        `json:"version"`          // Version information
}

// WSSettings contains the settings sub-object in status responses.
type WSSettings struct {
	AudioDevice      string  `json:"audio_device"`      // Selected audio input device
	AlarmThreshold   float64 `json:"alarm_threshold"`   // Decision threshold
	SilenceThreshold float64 `json:"silence_threshold"` // Input silence threshold in dB
	AlertEnabled     bool    `json:"alert_enabled"`     // Alert endpoint configured
	AlertHost        string  `json:"alert_host"`        // Alert endpoint host
	Evidence         bool    `json:"evidence"`          // Evidence clips enabled
	Platform         string  `json:"platform"`          // Operating system platform
}

// WSLevelsResponse is sent to clients with input level updates.
type WSLevelsResponse struct {
	Type   string       `json:"type"`   // Message type identifier
	Levels audio.Levels `json:"levels"` // Current input levels
}

// EventsResponse is a page of the event log.
type EventsResponse struct {
	Events  []eventlog.Event `json:"events"`
	HasMore bool             `json:"has_more"`
	Path    string           `json:"path,omitempty"`
}

// VersionInfo contains version comparison data.
type VersionInfo struct {
	Current     string `json:"current"`              // Current version
	Latest      string `json:"latest,omitempty"`     // Latest available version
	UpdateAvail bool   `json:"update_available"`     // Update is available
	Commit      string `json:"commit,omitempty"`     // Git commit hash
	BuildTime   string `json:"build_time,omitempty"` // Build timestamp
}

// WSCommandResult answers a WebSocket command as "<command>_result".
type WSCommandResult struct {
	Type    string           `json:"type"`
	Success bool             `json:"success"`
	Error   *ValidationError `json:"error,omitempty"`
	Data    any              `json:"data,omitempty"`
}

// FieldError is one rejected request field. Field is empty for errors that
// concern the request as a whole.
type FieldError struct {
	Field   string `json:"field"`
	Message string `json:"message"`
	Value   any    `json:"value,omitempty"`
}

// ValidationError lists every rejected field of a request.
type ValidationError struct {
	Errors []FieldError `json:"errors"`
}

// Add records one rejected field.
func (v *ValidationError) Add(field, message string, value any) {
	v.Errors = append(v.Errors, FieldError{Field: field, Message: message, Value: value})
}

func (v *ValidationError) Error() string {
	msgs := make([]string, 0, len(v.Errors))
	for _, fe := range v.Errors {
		if fe.Field == "" {
			msgs = append(msgs, fe.Message)
			continue
		}
		msgs = append(msgs, fe.Field+": "+fe.Message)
	}
	return strings.Join(msgs, "; ")
}
