package server

import (
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/oszuidwest/zwfm-alarmwatch/internal/eventlog"
	"github.com/oszuidwest/zwfm-alarmwatch/internal/types"
)

type fakeController struct {
	mu        sync.Mutex
	texts     []string
	threshold float64
}

func (f *fakeController) SendTestAlert(text string) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.texts = append(f.texts, text)
}

func (f *fakeController) SetThreshold(threshold float64) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.threshold = threshold
}

type fakeSettings struct {
	threshold float64
	device    string
	err       error
}

func (f *fakeSettings) SetAlarmThreshold(threshold float64) error {
	if f.err != nil {
		return f.err
	}
	f.threshold = threshold
	return nil
}

func (f *fakeSettings) SetAudioDevice(device string) error {
	f.device = device
	return nil
}

func runCommand(t *testing.T, h *CommandHandler, cmdType, data string) types.WSCommandResult {
	t.Helper()
	send := make(chan any, 4)
	triggered := false
	cmd := WSCommand{Type: cmdType}
	if data != "" {
		cmd.Data = json.RawMessage(data)
	}
	h.Handle(cmd, send, func() { triggered = true })
	if !triggered {
		t.Error("status update was not triggered")
	}
	select {
	case msg := <-send:
		res, ok := msg.(types.WSCommandResult)
		if !ok {
			t.Fatalf("response type = %T, want WSCommandResult", msg)
		}
		return res
	default:
		t.Fatalf("no response for %s", cmdType)
		return types.WSCommandResult{}
	}
}

func TestAlertTestCommand(t *testing.T) {
	ctrl := &fakeController{}
	h := NewCommandHandler(&fakeSettings{}, ctrl, "")

	tests := []struct {
		name    string
		data    string
		success bool
	}{
		{"valid", `{"text":"test message"}`, true},
		{"missing text", `{}`, false},
		{"too long", `{"text":"` + strings.Repeat("a", 201) + `"}`, false},
		{"non ascii", `{"text":"alarmé"}`, false},
		{"bad json", `{"text":`, false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			res := runCommand(t, h, "alert/test", tt.data)
			if res.Type != "alert/test_result" {
				t.Errorf("Type = %q", res.Type)
			}
			if res.Success != tt.success {
				t.Errorf("Success = %v, want %v (error %+v)", res.Success, tt.success, res.Error)
			}
		})
	}

	if len(ctrl.texts) != 1 || ctrl.texts[0] != "test message" {
		t.Errorf("texts = %v, want exactly the valid message", ctrl.texts)
	}
}

func TestThresholdCommand(t *testing.T) {
	tests := []struct {
		name      string
		data      string
		saveErr   error
		success   bool
		wantField string
	}{
		{"valid", `{"threshold":0.4}`, nil, true, ""},
		{"zero", `{"threshold":0}`, nil, false, "threshold"},
		{"one", `{"threshold":1}`, nil, false, "threshold"},
		{"save fails", `{"threshold":0.5}`, errors.New("disk full"), false, ""},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			ctrl := &fakeController{}
			settings := &fakeSettings{err: tt.saveErr}
			h := NewCommandHandler(settings, ctrl, "")

			res := runCommand(t, h, "alarm/threshold", tt.data)
			if res.Success != tt.success {
				t.Fatalf("Success = %v, want %v", res.Success, tt.success)
			}
			if tt.success {
				if settings.threshold != 0.4 || ctrl.threshold != 0.4 {
					t.Errorf("threshold not applied: settings=%v controller=%v", settings.threshold, ctrl.threshold)
				}
				return
			}
			if ctrl.threshold != 0 {
				t.Errorf("controller threshold changed to %v on failure", ctrl.threshold)
			}
			if tt.wantField != "" && (res.Error == nil || len(res.Error.Errors) == 0 || res.Error.Errors[0].Field != tt.wantField) {
				t.Errorf("Error = %+v, want field %q", res.Error, tt.wantField)
			}
		})
	}
}

func TestAudioUpdateCommand(t *testing.T) {
	settings := &fakeSettings{}
	h := NewCommandHandler(settings, &fakeController{}, "")

	res := runCommand(t, h, "audio/update", `{"device":"hw:1,0"}`)
	if !res.Success {
		t.Fatalf("Success = false, error %+v", res.Error)
	}
	if settings.device != "hw:1,0" {
		t.Errorf("device = %q", settings.device)
	}
}

func TestEventsListCommand(t *testing.T) {
	path := filepath.Join(t.TempDir(), "events.jsonl")
	logger, err := eventlog.NewLogger(path)
	if err != nil {
		t.Fatal(err)
	}
	if err := logger.LogAlarm(true, 0.9, 0.6, 0.3); err != nil {
		t.Fatal(err)
	}
	if err := logger.LogAlert(true, "alarm on", 200); err != nil {
		t.Fatal(err)
	}
	if err := logger.LogAlarm(false, 0.1, 0.2, 0.3); err != nil {
		t.Fatal(err)
	}
	if err := logger.Close(); err != nil {
		t.Fatal(err)
	}

	h := NewCommandHandler(&fakeSettings{}, &fakeController{}, path)

	tests := []struct {
		name     string
		data     string
		success  bool
		want     int
		wantMore bool
	}{
		{"all", `{}`, true, 3, false},
		{"alarm only", `{"filter":"alarm"}`, true, 2, false},
		{"paged", `{"limit":1,"filter":"alarm"}`, true, 1, true},
		{"unknown filter", `{"filter":"bogus"}`, false, 0, false},
		{"limit too large", `{"limit":501}`, false, 0, false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			res := runCommand(t, h, "events/list", tt.data)
			if res.Success != tt.success {
				t.Fatalf("Success = %v, want %v", res.Success, tt.success)
			}
			if !tt.success {
				return
			}
			page, ok := res.Data.(types.EventsResponse)
			if !ok {
				t.Fatalf("Data type = %T", res.Data)
			}
			if len(page.Events) != tt.want || page.HasMore != tt.wantMore {
				t.Errorf("got %d events (more=%v), want %d (more=%v)", len(page.Events), page.HasMore, tt.want, tt.wantMore)
			}
		})
	}
}

func TestOriginAllowed(t *testing.T) {
	tests := []struct {
		origin string
		host   string
		want   bool
	}{
		{"", "example.org", true},
		{"http://localhost:3000", "example.org", true},
		{"http://example.org", "example.org:8080", true},
		{"http://192.168.1.20", "example.org", true},
		{"http://evil.example.com", "example.org", false},
		{"://bad", "example.org", false},
		{"http://[::1]:5173", "example.org", true},
	}

	for _, tt := range tests {
		if got := originAllowed(tt.origin, tt.host); got != tt.want {
			t.Errorf("originAllowed(%q, %q) = %v, want %v", tt.origin, tt.host, got, tt.want)
		}
	}
}

func TestAuthMiddleware(t *testing.T) {
	sm := NewSessionManager(func() (string, string) { return "admin", "secret" })
	protected := sm.AuthMiddleware()(func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusNoContent)
	})

	t.Run("no credentials", func(t *testing.T) {
		rec := httptest.NewRecorder()
		protected(rec, httptest.NewRequest(http.MethodGet, "/api/status", nil))
		if rec.Code != http.StatusUnauthorized {
			t.Errorf("status = %d, want 401", rec.Code)
		}
	})

	t.Run("basic auth", func(t *testing.T) {
		rec := httptest.NewRecorder()
		r := httptest.NewRequest(http.MethodGet, "/api/status", nil)
		r.SetBasicAuth("admin", "secret")
		protected(rec, r)
		if rec.Code != http.StatusNoContent {
			t.Errorf("status = %d, want 204", rec.Code)
		}
	})

	t.Run("wrong password", func(t *testing.T) {
		rec := httptest.NewRecorder()
		r := httptest.NewRequest(http.MethodGet, "/api/status", nil)
		r.SetBasicAuth("admin", "wrong")
		protected(rec, r)
		if rec.Code != http.StatusUnauthorized {
			t.Errorf("status = %d, want 401", rec.Code)
		}
	})

	t.Run("session cookie", func(t *testing.T) {
		login := httptest.NewRecorder()
		if !sm.Login(login, httptest.NewRequest(http.MethodPost, "/api/login", nil), "admin", "secret") {
			t.Fatal("Login failed")
		}
		cookies := login.Result().Cookies()
		if len(cookies) != 1 {
			t.Fatalf("got %d cookies, want 1", len(cookies))
		}

		rec := httptest.NewRecorder()
		r := httptest.NewRequest(http.MethodGet, "/api/status", nil)
		r.AddCookie(cookies[0])
		protected(rec, r)
		if rec.Code != http.StatusNoContent {
			t.Errorf("status = %d, want 204", rec.Code)
		}

		sm.revoke(cookies[0].Value)
		rec = httptest.NewRecorder()
		protected(rec, r)
		if rec.Code != http.StatusUnauthorized {
			t.Errorf("status after logout = %d, want 401", rec.Code)
		}
	})
}

func TestSessionExpiry(t *testing.T) {
	now := time.Date(2026, 1, 1, 12, 0, 0, 0, time.UTC)
	sm := NewSessionManager(func() (string, string) { return "admin", "secret" })
	sm.now = func() time.Time { return now }

	token := sm.issue()
	if !sm.valid(token) {
		t.Fatal("fresh session rejected")
	}
	now = now.Add(sessionTTL)
	if sm.valid(token) {
		t.Error("expired session accepted")
	}
	if _, ok := sm.expires[token]; ok {
		t.Error("expired session not pruned")
	}
}
