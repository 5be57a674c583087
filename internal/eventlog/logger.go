// Package eventlog records alarm, alert and input transitions in a single
// JSON lines file that the status API pages through.
package eventlog

import (
	"bufio"
	"encoding/json"
	"errors"
	"io/fs"
	"os"
	"path/filepath"
	"runtime"
	"slices"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/oszuidwest/zwfm-alarmwatch/internal/util"
)

// EventType represents the type of event.
type EventType string

// Alarm event types.
const (
	AlarmOn  EventType = "alarm_on"
	AlarmOff EventType = "alarm_off"
)

// Alert event types.
const (
	AlertSent   EventType = "alert_sent"
	AlertFailed EventType = "alert_failed"
)

// Input event types.
const (
	SilenceStart  EventType = "silence_start"
	SilenceEnd    EventType = "silence_end"
	CaptureFailed EventType = "capture_failed"
)

// System event types.
const (
	LinkUp          EventType = "link_up"
	LinkDown        EventType = "link_down"
	ActorTerminated EventType = "actor_terminated"
)

// Evidence event types.
const (
	EvidenceSaved    EventType = "evidence_saved"
	EvidenceUploaded EventType = "evidence_uploaded"
	EvidenceFailed   EventType = "evidence_failed"
)

// Event represents a single log entry with type-specific details.
type Event struct {
	ID        string    `json:"id"`
	Timestamp time.Time `json:"ts"`
	Type      EventType `json:"type"`
	Message   string    `json:"msg,omitempty"`
	Details   any       `json:"details,omitempty"`
}

// AlarmDetails contains alarm decision details.
type AlarmDetails struct {
	Measurement float64 `json:"measurement"`
	Estimate    float64 `json:"estimate"`
	Threshold   float64 `json:"threshold"`
}

// AlertDetails contains alert delivery details.
type AlertDetails struct {
	Text   string `json:"text,omitempty"`
	Status int    `json:"status,omitempty"`
}

// SilenceDetails contains input silence details.
type SilenceDetails struct {
	LevelDB     float64 `json:"level_db"`
	ThresholdDB float64 `json:"threshold_db"`
	DurationMs  int64   `json:"duration_ms,omitempty"`
}

// LinkDetails contains network link details.
type LinkDetails struct {
	Interface string `json:"interface,omitempty"`
	Flags     string `json:"flags,omitempty"`
}

// EvidenceDetails contains evidence clip details.
type EvidenceDetails struct {
	Filename  string `json:"filename,omitempty"`
	SizeBytes int64  `json:"size_bytes,omitempty"`
	S3Key     string `json:"s3_key,omitempty"`
	Error     string `json:"error,omitempty"`
}

// Logger writes events to a JSON lines file.
// It is safe for concurrent use.
type Logger struct {
	mu       sync.Mutex
	filePath string
	file     *os.File
	encoder  *json.Encoder
}

// DefaultLogPath returns the platform-specific log file path.
func DefaultLogPath() string {
	switch runtime.GOOS {
	case "windows":
		programData := os.Getenv("PROGRAMDATA")
		if programData == "" {
			programData = `C:\ProgramData`
		}
		return filepath.Join(programData, "alarmwatch", "logs", "alarmwatch.jsonl")
	default:
		//nolint:gocritic // absolute path on Unix systems
		return filepath.Join("/var/log/alarmwatch", "alarmwatch.jsonl")
	}
}

// NewLogger creates an event logger appending to filePath.
func NewLogger(filePath string) (*Logger, error) {
	if err := os.MkdirAll(filepath.Dir(filePath), 0o755); err != nil {
		return nil, util.WrapError("create log directory", err)
	}

	file, err := os.OpenFile(filePath, os.O_CREATE|os.O_APPEND|os.O_WRONLY, 0o644)
	if err != nil {
		return nil, util.WrapError("open log file", err)
	}

	return &Logger{
		filePath: filePath,
		file:     file,
		encoder:  json.NewEncoder(file),
	}, nil
}

// Log writes an event, filling in the ID and timestamp when unset.
func (l *Logger) Log(event *Event) error {
	l.mu.Lock()
	defer l.mu.Unlock()

	if event.ID == "" {
		event.ID = uuid.NewString()
	}
	if event.Timestamp.IsZero() {
		event.Timestamp = time.Now()
	}
	return l.encoder.Encode(event)
}

// LogAlarm logs an alarm transition.
func (l *Logger) LogAlarm(on bool, measurement, estimate, threshold float64) error {
	eventType := AlarmOff
	if on {
		eventType = AlarmOn
	}
	return l.Log(&Event{
		Type: eventType,
		Details: &AlarmDetails{
			Measurement: measurement,
			Estimate:    estimate,
			Threshold:   threshold,
		},
	})
}

// LogAlert logs the outcome of an alert delivery.
func (l *Logger) LogAlert(sent bool, text string, status int) error {
	eventType := AlertFailed
	if sent {
		eventType = AlertSent
	}
	return l.Log(&Event{
		Type:    eventType,
		Details: &AlertDetails{Text: text, Status: status},
	})
}

// LogSilence logs an input silence transition.
func (l *Logger) LogSilence(start bool, levelDB, thresholdDB float64, durationMs int64) error {
	eventType := SilenceEnd
	if start {
		eventType = SilenceStart
	}
	return l.Log(&Event{
		Type: eventType,
		Details: &SilenceDetails{
			LevelDB:     levelDB,
			ThresholdDB: thresholdDB,
			DurationMs:  durationMs,
		},
	})
}

// LogLink logs a link transition.
func (l *Logger) LogLink(up bool, iface, flags string) error {
	eventType := LinkDown
	if up {
		eventType = LinkUp
	}
	return l.Log(&Event{
		Type:    eventType,
		Details: &LinkDetails{Interface: iface, Flags: flags},
	})
}

// LogEvidence logs an evidence clip event.
func (l *Logger) LogEvidence(eventType EventType, details *EvidenceDetails) error {
	return l.Log(&Event{Type: eventType, Details: details})
}

// LogMessage logs an event carrying only a message.
func (l *Logger) LogMessage(eventType EventType, msg string) error {
	return l.Log(&Event{Type: eventType, Message: msg})
}

// Close closes the log file.
func (l *Logger) Close() error {
	l.mu.Lock()
	defer l.mu.Unlock()

	if l.file == nil {
		return nil
	}
	err := l.file.Close()
	l.file = nil
	return err
}

// Path returns the path to the log file.
func (l *Logger) Path() string {
	return l.filePath
}

// TypeFilter selects event groups when reading.
type TypeFilter string

// Filter constants for ReadLast.
const (
	FilterAll      TypeFilter = ""
	FilterAlarm    TypeFilter = "alarm"
	FilterAlert    TypeFilter = "alert"
	FilterInput    TypeFilter = "input"
	FilterSystem   TypeFilter = "system"
	FilterEvidence TypeFilter = "evidence"
)

var filterGroups = map[TypeFilter][]EventType{
	FilterAlarm:    {AlarmOn, AlarmOff},
	FilterAlert:    {AlertSent, AlertFailed},
	FilterInput:    {SilenceStart, SilenceEnd, CaptureFailed},
	FilterSystem:   {LinkUp, LinkDown, ActorTerminated},
	FilterEvidence: {EvidenceSaved, EvidenceUploaded, EvidenceFailed},
}

// ValidFilter reports whether f names a known filter.
func ValidFilter(f TypeFilter) bool {
	_, ok := filterGroups[f]
	return ok || f == FilterAll
}

// Matches reports whether t belongs to the filter group.
func (f TypeFilter) Matches(t EventType) bool {
	if f == FilterAll {
		return true
	}
	return slices.Contains(filterGroups[f], t)
}

// MaxReadLimit is the maximum number of events that can be read at once.
const MaxReadLimit = 500

// ReadLast returns up to n events after skipping offset matching events,
// newest first, and whether more matching events exist.
func ReadLast(filePath string, n, offset int, filter TypeFilter) ([]Event, bool, error) {
	n = min(n, MaxReadLimit)
	if n <= 0 {
		return []Event{}, false, nil
	}

	file, err := os.Open(filePath)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return []Event{}, false, nil
		}
		return nil, false, err
	}
	defer file.Close() //nolint:errcheck // read-only

	var lines []string
	scanner := bufio.NewScanner(file)
	for scanner.Scan() {
		lines = append(lines, scanner.Text())
	}
	if err := scanner.Err(); err != nil {
		return nil, false, err
	}

	events := make([]Event, 0, n)
	skipped := 0
	for i := len(lines) - 1; i >= 0; i-- {
		var event Event
		if err := json.Unmarshal([]byte(lines[i]), &event); err != nil {
			continue
		}
		if !filter.Matches(event.Type) {
			continue
		}
		if skipped < offset {
			skipped++
			continue
		}
		if len(events) == n {
			return events, true, nil
		}
		events = append(events, event)
	}
	return events, false, nil
}
