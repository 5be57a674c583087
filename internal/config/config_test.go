package config

import (
	"encoding/json"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"
)

func TestLoadCreatesDefaultFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "sub", "config.json")
	c := New(path)
	if err := c.Load(); err != nil {
		t.Fatalf("Load: %v", err)
	}
	data, err := os.ReadFile(path)
	if err != nil {
		t.Fatalf("config not written: %v", err)
	}
	var raw map[string]any
	if err := json.Unmarshal(data, &raw); err != nil {
		t.Fatalf("written config is not JSON: %v", err)
	}
	for _, section := range []string{"system", "audio", "model", "alarm", "alert", "link", "indicator", "metrics", "evidence", "event_log"} {
		if _, ok := raw[section]; !ok {
			t.Errorf("section %q missing", section)
		}
	}

	s := c.Snapshot()
	if s.AlarmThreshold != DefaultAlarmThreshold || s.ProcessNoise != DefaultProcessNoise {
		t.Errorf("alarm defaults = %g/%g", s.AlarmThreshold, s.ProcessNoise)
	}
	if s.AlertTickInterval != time.Second || s.AlertTimeoutTicks != 30 || s.AlertRxBufferSize != 1024 {
		t.Errorf("alert defaults = %v/%d/%d", s.AlertTickInterval, s.AlertTimeoutTicks, s.AlertRxBufferSize)
	}
	if s.AlertTextOn != "alarm sound detected" || s.AlertTextOff != "no alarm" {
		t.Errorf("alert texts = %q/%q", s.AlertTextOn, s.AlertTextOff)
	}
	if s.MailboxSize != 8 || s.LogLevel != "info" {
		t.Errorf("system defaults = %d/%q", s.MailboxSize, s.LogLevel)
	}
	if s.EvidenceRetentionDays != DefaultEvidenceRetentionDays || s.LinkProbeEvery != DefaultLinkProbeEvery {
		t.Errorf("retention/probe defaults = %d/%d", s.EvidenceRetentionDays, s.LinkProbeEvery)
	}
}

func TestLoadKeepsExplicitZero(t *testing.T) {
	path := writeConfig(t, `{"evidence":{"retention_days":0},"link":{"probe_every":0}}`)
	c := New(path)
	if err := c.Load(); err != nil {
		t.Fatalf("Load: %v", err)
	}
	s := c.Snapshot()
	if s.EvidenceRetentionDays != 0 || s.LinkProbeEvery != 0 {
		t.Errorf("explicit zero overridden: %d/%d", s.EvidenceRetentionDays, s.LinkProbeEvery)
	}
}

func TestLoadValidation(t *testing.T) {
	tests := []struct {
		name    string
		json    string
		wantErr string
	}{
		{"valid", `{"alarm":{"threshold":0.5}}`, ""},
		{"threshold too high", `{"alarm":{"threshold":1.5}}`, "alarm.threshold must be less than 1"},
		{"negative noise", `{"alarm":{"measurement_noise":-1}}`, "alarm.measurement_noise must be greater than 0"},
		{"log level", `{"system":{"log_level":"trace"}}`, "system.log_level must be one of"},
		{"gain", `{"audio":{"gain":20}}`, "audio.gain must be at most 16"},
		{"bad broker", `{"indicator":{"mqtt":{"broker":"not a url"}}}`, "indicator.mqtt.broker must be a valid URL"},
		{"path prefix", `{"alert":{"path":"send"}}`, `alert.path must start with "/"`},
		{"placeholder count", `{"alert":{"enabled":true,"path":"/x?a=%s&text="}}`, "placeholders"},
		{"broken json", `{"alarm":`, "failed to parse config"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := New(writeConfig(t, tt.json)).Load()
			if tt.wantErr == "" {
				if err != nil {
					t.Fatalf("Load: %v", err)
				}
				return
			}
			if err == nil || !strings.Contains(err.Error(), tt.wantErr) {
				t.Errorf("err = %v, want containing %q", err, tt.wantErr)
			}
		})
	}
}

func TestEnvOverridesAreNotPersisted(t *testing.T) {
	t.Setenv(EnvAlertAPIKey, "from-env")
	t.Setenv(EnvInfluxToken, "tok")
	path := writeConfig(t, `{"alert":{"api_key":"from-file","phone":"+3100"}}`)

	c := New(path)
	if err := c.Load(); err != nil {
		t.Fatalf("Load: %v", err)
	}
	s := c.Snapshot()
	if s.AlertAPIKey != "from-env" || s.AlertPhone != "+3100" || s.Metrics.Token != "tok" {
		t.Errorf("snapshot = key %q phone %q token %q", s.AlertAPIKey, s.AlertPhone, s.Metrics.Token)
	}

	if err := c.SetAlarmThreshold(0.4); err != nil {
		t.Fatalf("SetAlarmThreshold: %v", err)
	}
	data, err := os.ReadFile(path)
	if err != nil {
		t.Fatal(err)
	}
	if strings.Contains(string(data), "from-env") || strings.Contains(string(data), `"tok"`) {
		t.Errorf("environment secret written to file:\n%s", data)
	}
	if !strings.Contains(string(data), `"threshold": 0.4`) {
		t.Errorf("threshold not saved:\n%s", data)
	}
}

func TestSetAlarmThresholdRejectsOutOfRange(t *testing.T) {
	c := New(filepath.Join(t.TempDir(), "config.json"))
	for _, v := range []float64{0, 1, -0.1, 2} {
		if err := c.SetAlarmThreshold(v); err == nil {
			t.Errorf("threshold %g accepted", v)
		}
	}
	if got := c.Snapshot().AlarmThreshold; got != DefaultAlarmThreshold {
		t.Errorf("threshold changed to %g", got)
	}
}

func TestLoadEnvFile(t *testing.T) {
	if err := LoadEnvFile(filepath.Join(t.TempDir(), "missing.env")); err != nil {
		t.Errorf("missing file: %v", err)
	}

	path := filepath.Join(t.TempDir(), ".env")
	if err := os.WriteFile(path, []byte("MQTT_PASSWORD=s3cret\n"), 0o600); err != nil {
		t.Fatal(err)
	}
	t.Setenv(EnvMQTTPassword, "")
	os.Unsetenv(EnvMQTTPassword)
	if err := LoadEnvFile(path); err != nil {
		t.Fatalf("LoadEnvFile: %v", err)
	}
	if got := os.Getenv(EnvMQTTPassword); got != "s3cret" {
		t.Errorf("MQTT_PASSWORD = %q", got)
	}
}

func TestSnapshotHelpers(t *testing.T) {
	s := New("unused").Snapshot()
	if s.HasMQTT() || s.HasMetrics() || s.HasS3() {
		t.Error("defaults report optional outputs as configured")
	}
	s.MQTT.Broker = "tcp://broker:1883"
	s.Metrics = MetricsConfig{URL: "http://influx:8086", Token: "t", Org: "o", Bucket: "b"}
	s.S3 = S3Config{Bucket: "b", AccessKeyID: "id", SecretAccessKey: "secret"}
	if !s.HasMQTT() || !s.HasMetrics() || !s.HasS3() {
		t.Error("configured outputs not reported")
	}
}

func writeConfig(t *testing.T, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "config.json")
	if err := os.WriteFile(path, []byte(content), 0o600); err != nil {
		t.Fatal(err)
	}
	return path
}
