// Package config provides application configuration management.
package config

import (
	"cmp"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"reflect"
	"strings"
	"sync"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/joho/godotenv"

	"github.com/oszuidwest/zwfm-alarmwatch/internal/util"
)

// Configuration defaults are used when values are not specified.
const (
	DefaultWebPort     = 8080
	DefaultWebUsername = "admin"
	DefaultWebPassword = "alarmwatch"
	DefaultLogLevel    = "info"
	DefaultMailboxSize = 8

	DefaultSilenceThreshold  = -60.0
	DefaultSilenceDurationMs = 30000 // 30 seconds in milliseconds
	DefaultSilenceRecoveryMs = 5000  // 5 seconds in milliseconds

	DefaultModelPath = "model.json"

	DefaultAlarmThreshold   = 0.3
	DefaultMeasurementNoise = 0.01
	DefaultEstimateNoise    = 0.01
	DefaultProcessNoise     = 0.0005

	DefaultAlertHost         = "api.callmebot.com"
	DefaultAlertPort         = 80
	DefaultAlertPath         = "/whatsapp.php?phone=%s&apikey=%s&text="
	DefaultAlertTimeoutTicks = 30
	DefaultAlertTickMs       = 1000
	DefaultAlertRxBuffer     = 1024
	DefaultAlertTextOn       = "alarm sound detected"
	DefaultAlertTextOff      = "no alarm"

	DefaultLinkPollMs     = 2000
	DefaultLinkProbeEvery = 15

	DefaultMQTTTopic    = "alarmwatch"
	DefaultMQTTClientID = "zwfm-alarmwatch"

	DefaultEvidenceDir           = "evidence"
	DefaultEvidenceBeforeSeconds = 10
	DefaultEvidenceAfterSeconds  = 5
	DefaultEvidenceRetentionDays = 30
)

// Environment variables that override secrets from the config file.
const (
	EnvAlertPhone   = "ALERT_PHONE"
	EnvAlertAPIKey  = "ALERT_APIKEY"
	EnvInfluxToken  = "INFLUX_TOKEN"
	EnvS3SecretKey  = "S3_SECRET_ACCESS_KEY"
	EnvMQTTPassword = "MQTT_PASSWORD"
	EnvWebPassword  = "WEB_PASSWORD"

	defaultEnvFile = ".env"
	configDirPerm  = 0o755
	configFilePerm = 0o600
)

// SystemConfig holds system-level settings that require restart.
type SystemConfig struct {
	FFmpegPath  string `json:"ffmpeg_path"`                                      // Path to FFmpeg binary (empty = use PATH)
	Port        int    `json:"port" validate:"min=1,max=65535"`                  // HTTP server port
	Username    string `json:"username" validate:"required"`                     // Login username
	Password    string `json:"password"`                                         // Login password
	LogLevel    string `json:"log_level" validate:"oneof=debug info warn error"` // slog level
	MailboxSize int    `json:"mailbox_size" validate:"min=1,max=1024"`           // Actor mailbox capacity
}

// AudioConfig holds audio input device settings.
type AudioConfig struct {
	Device            string  `json:"device"`                                     // Audio input device identifier
	Gain              int     `json:"gain" validate:"min=0,max=16"`               // Left shift applied to samples
	SilenceThreshold  float64 `json:"silence_threshold" validate:"min=-96,max=0"` // Input silence threshold in dB
	SilenceDurationMs int64   `json:"silence_duration_ms" validate:"min=0"`       // Silence before warning
	SilenceRecoveryMs int64   `json:"silence_recovery_ms" validate:"min=0"`       // Signal before recovery
}

// ModelConfig holds the classifier location.
type ModelConfig struct {
	Path string `json:"path" validate:"required"` // Classifier file
}

// AlarmConfig holds the decision threshold and smoothing constants.
type AlarmConfig struct {
	Threshold        float64 `json:"threshold" validate:"gt=0,lt=1"`
	MeasurementNoise float64 `json:"measurement_noise" validate:"gt=0"`
	EstimateNoise    float64 `json:"estimate_noise" validate:"gt=0"`
	ProcessNoise     float64 `json:"process_noise" validate:"gte=0"`
}

// AlertConfig holds the outbound alert endpoint.
type AlertConfig struct {
	Enabled        bool   `json:"enabled"`
	Host           string `json:"host" validate:"required,hostname_rfc1123|ip"`
	Port           int    `json:"port" validate:"min=1,max=65535"`
	Path           string `json:"path" validate:"startswith=/"` // Request prefix, phone and api key placeholders
	Phone          string `json:"phone"`
	APIKey         string `json:"api_key"`
	TimeoutTicks   int    `json:"timeout_ticks" validate:"min=1"`
	TickIntervalMs int    `json:"tick_interval_ms" validate:"min=100,max=60000"`
	RxBufferSize   int    `json:"rx_buffer_size" validate:"min=64,max=65536"`
	TextOn         string `json:"text_on" validate:"required,max=200"`
	TextOff        string `json:"text_off" validate:"required,max=200"`
}

// LinkConfig holds network link monitoring settings.
type LinkConfig struct {
	Interface      string `json:"interface"` // Empty selects the first usable interface
	PollIntervalMs int    `json:"poll_interval_ms" validate:"min=100"`
	ProbeEvery     int    `json:"probe_every" validate:"min=0"` // Reachability probe every n polls, 0 disables
}

// MQTTConfig holds the MQTT indicator settings.
type MQTTConfig struct {
	Broker   string `json:"broker" validate:"omitempty,url"`
	Topic    string `json:"topic" validate:"required"`
	ClientID string `json:"client_id" validate:"required"`
	Username string `json:"username"`
	Password string `json:"password"`
}

// IndicatorConfig holds alarm indicator outputs.
type IndicatorConfig struct {
	MQTT MQTTConfig `json:"mqtt"`
}

// MetricsConfig holds InfluxDB settings.
type MetricsConfig struct {
	URL    string `json:"url" validate:"omitempty,url"`
	Token  string `json:"token"`
	Org    string `json:"org"`
	Bucket string `json:"bucket"`
	Device string `json:"device"` // Tag value, defaults to the hostname
}

// S3Config holds evidence upload settings.
type S3Config struct {
	Endpoint        string `json:"endpoint" validate:"omitempty,url"`
	Bucket          string `json:"bucket"`
	Prefix          string `json:"prefix"`
	AccessKeyID     string `json:"access_key_id"`
	SecretAccessKey string `json:"secret_access_key"`
}

// EvidenceConfig holds alarm clip settings.
type EvidenceConfig struct {
	Enabled       bool     `json:"enabled"`
	Dir           string   `json:"dir" validate:"required"`
	BeforeSeconds int      `json:"before_seconds" validate:"min=0,max=120"`
	AfterSeconds  int      `json:"after_seconds" validate:"min=0,max=120"`
	RetentionDays int      `json:"retention_days" validate:"min=0"`
	S3            S3Config `json:"s3"`
}

// EventLogConfig holds the transition log location.
type EventLogConfig struct {
	Path string `json:"path"` // Empty uses the platform default
}

// Config holds all application configuration. It is safe for concurrent use.
type Config struct {
	System    SystemConfig    `json:"system"`
	Audio     AudioConfig     `json:"audio"`
	Model     ModelConfig     `json:"model"`
	Alarm     AlarmConfig     `json:"alarm"`
	Alert     AlertConfig     `json:"alert"`
	Link      LinkConfig      `json:"link"`
	Indicator IndicatorConfig `json:"indicator"`
	Metrics   MetricsConfig   `json:"metrics"`
	Evidence  EvidenceConfig  `json:"evidence"`
	EventLog  EventLogConfig  `json:"event_log"`

	mu       sync.RWMutex
	filePath string
	env      envOverrides
}

// envOverrides holds secrets taken from the environment. They are never written back.
type envOverrides struct {
	alertPhone   string
	alertAPIKey  string
	influxToken  string
	s3Secret     string
	mqttPassword string
	webPassword  string
}

var validate = newValidator()

func newValidator() *validator.Validate {
	v := validator.New(validator.WithRequiredStructEnabled())
	v.RegisterTagNameFunc(func(fld reflect.StructField) string {
		name, _, _ := strings.Cut(fld.Tag.Get("json"), ",")
		if name == "-" {
			return ""
		}
		return name
	})
	return v
}

// New creates a new Config with default values.
func New(filePath string) *Config {
	c := &Config{
		Link:     LinkConfig{ProbeEvery: DefaultLinkProbeEvery},
		Evidence: EvidenceConfig{RetentionDays: DefaultEvidenceRetentionDays},
		filePath: filePath,
	}
	c.applyDefaults()
	return c
}

// LoadEnvFile loads KEY=value pairs from path into the process environment.
// A missing file is not an error. Variables already set are kept.
func LoadEnvFile(path string) error {
	path = cmp.Or(path, defaultEnvFile)
	if err := godotenv.Load(path); err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return nil
		}
		return util.WrapError("load env file", err)
	}
	return nil
}

// Load reads config from file, creating a default if none exists.
// Secrets from the environment override the file afterwards.
func (c *Config) Load() error {
	c.mu.Lock()
	defer c.mu.Unlock()

	data, err := os.ReadFile(c.filePath)
	switch {
	case os.IsNotExist(err):
		if err := c.saveLocked(); err != nil {
			return err
		}
	case err != nil:
		return fmt.Errorf("failed to read config: %w", err)
	default:
		if err := json.Unmarshal(data, c); err != nil {
			return util.WrapError("parse config", err)
		}
		c.applyDefaults()
	}

	c.env = readEnv()
	return c.validate()
}

func readEnv() envOverrides {
	return envOverrides{
		alertPhone:   os.Getenv(EnvAlertPhone),
		alertAPIKey:  os.Getenv(EnvAlertAPIKey),
		influxToken:  os.Getenv(EnvInfluxToken),
		s3Secret:     os.Getenv(EnvS3SecretKey),
		mqttPassword: os.Getenv(EnvMQTTPassword),
		webPassword:  os.Getenv(EnvWebPassword),
	}
}

// validate checks all configuration fields for correctness.
func (c *Config) validate() error {
	if err := validate.Struct(c); err != nil {
		var verrs validator.ValidationErrors
		if errors.As(err, &verrs) {
			msgs := make([]string, 0, len(verrs))
			for _, fe := range verrs {
				msgs = append(msgs, formatFieldError(fe))
			}
			return fmt.Errorf("invalid config: %s", strings.Join(msgs, "; "))
		}
		return util.WrapError("validate config", err)
	}
	if c.Alert.Enabled && strings.Count(c.Alert.Path, "%s") != 0 && strings.Count(c.Alert.Path, "%s") != 2 {
		return fmt.Errorf("invalid config: alert.path must contain zero or two %%s placeholders")
	}
	return nil
}

// formatFieldError renders a validator error with the JSON path of the field.
func formatFieldError(fe validator.FieldError) string {
	// Namespace starts with the struct type name.
	_, field, _ := strings.Cut(fe.Namespace(), ".")
	field = cmp.Or(field, fe.Field())
	switch fe.Tag() {
	case "required":
		return field + " is required"
	case "min", "gte":
		return fmt.Sprintf("%s must be at least %s", field, fe.Param())
	case "max", "lte":
		return fmt.Sprintf("%s must be at most %s", field, fe.Param())
	case "gt":
		return fmt.Sprintf("%s must be greater than %s", field, fe.Param())
	case "lt":
		return fmt.Sprintf("%s must be less than %s", field, fe.Param())
	case "oneof":
		return fmt.Sprintf("%s must be one of: %s", field, fe.Param())
	case "url":
		return field + " must be a valid URL"
	case "startswith":
		return fmt.Sprintf("%s must start with %q", field, fe.Param())
	default:
		return fmt.Sprintf("%s failed %s validation", field, fe.Tag())
	}
}

// applyDefaults sets default values for zero-value fields.
func (c *Config) applyDefaults() {
	// System defaults
	c.System.Port = cmp.Or(c.System.Port, DefaultWebPort)
	c.System.Username = cmp.Or(c.System.Username, DefaultWebUsername)
	c.System.Password = cmp.Or(c.System.Password, DefaultWebPassword)
	c.System.LogLevel = cmp.Or(strings.ToLower(c.System.LogLevel), DefaultLogLevel)
	c.System.MailboxSize = cmp.Or(c.System.MailboxSize, DefaultMailboxSize)

	// Audio defaults
	c.Audio.SilenceThreshold = cmp.Or(c.Audio.SilenceThreshold, DefaultSilenceThreshold)
	c.Audio.SilenceDurationMs = cmp.Or(c.Audio.SilenceDurationMs, DefaultSilenceDurationMs)
	c.Audio.SilenceRecoveryMs = cmp.Or(c.Audio.SilenceRecoveryMs, DefaultSilenceRecoveryMs)

	c.Model.Path = cmp.Or(c.Model.Path, DefaultModelPath)

	// Alarm defaults
	c.Alarm.Threshold = cmp.Or(c.Alarm.Threshold, DefaultAlarmThreshold)
	c.Alarm.MeasurementNoise = cmp.Or(c.Alarm.MeasurementNoise, DefaultMeasurementNoise)
	c.Alarm.EstimateNoise = cmp.Or(c.Alarm.EstimateNoise, DefaultEstimateNoise)
	c.Alarm.ProcessNoise = cmp.Or(c.Alarm.ProcessNoise, DefaultProcessNoise)

	// Alert defaults
	c.Alert.Host = cmp.Or(c.Alert.Host, DefaultAlertHost)
	c.Alert.Port = cmp.Or(c.Alert.Port, DefaultAlertPort)
	c.Alert.Path = cmp.Or(c.Alert.Path, DefaultAlertPath)
	c.Alert.TimeoutTicks = cmp.Or(c.Alert.TimeoutTicks, DefaultAlertTimeoutTicks)
	c.Alert.TickIntervalMs = cmp.Or(c.Alert.TickIntervalMs, DefaultAlertTickMs)
	c.Alert.RxBufferSize = cmp.Or(c.Alert.RxBufferSize, DefaultAlertRxBuffer)
	c.Alert.TextOn = cmp.Or(c.Alert.TextOn, DefaultAlertTextOn)
	c.Alert.TextOff = cmp.Or(c.Alert.TextOff, DefaultAlertTextOff)

	// Link defaults
	c.Link.PollIntervalMs = cmp.Or(c.Link.PollIntervalMs, DefaultLinkPollMs)

	// Indicator defaults
	c.Indicator.MQTT.Topic = cmp.Or(c.Indicator.MQTT.Topic, DefaultMQTTTopic)
	c.Indicator.MQTT.ClientID = cmp.Or(c.Indicator.MQTT.ClientID, DefaultMQTTClientID)

	// Evidence defaults
	c.Evidence.Dir = cmp.Or(c.Evidence.Dir, DefaultEvidenceDir)
	c.Evidence.BeforeSeconds = cmp.Or(c.Evidence.BeforeSeconds, DefaultEvidenceBeforeSeconds)
	c.Evidence.AfterSeconds = cmp.Or(c.Evidence.AfterSeconds, DefaultEvidenceAfterSeconds)
}

// saveLocked persists configuration. Caller must hold c.mu.
func (c *Config) saveLocked() error {
	data, err := json.MarshalIndent(c, "", "  ")
	if err != nil {
		return util.WrapError("marshal config", err)
	}

	dir := filepath.Dir(c.filePath)
	if err := os.MkdirAll(dir, configDirPerm); err != nil {
		return util.WrapError("create config directory", err)
	}

	if err := os.WriteFile(c.filePath, data, configFilePerm); err != nil {
		return util.WrapError("write config", err)
	}

	return nil
}

// Path returns the config file path.
func (c *Config) Path() string {
	return c.filePath
}

// --- Setters for individual settings ---

// SetAlarmThreshold updates the decision threshold and saves the configuration.
func (c *Config) SetAlarmThreshold(threshold float64) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if err := validate.Var(threshold, "gt=0,lt=1"); err != nil {
		return fmt.Errorf("invalid threshold %g: must be between 0 and 1", threshold)
	}
	c.Alarm.Threshold = threshold
	return c.saveLocked()
}

// SetAudioDevice updates the audio input device and saves the configuration.
func (c *Config) SetAudioDevice(device string) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.Audio.Device = device
	return c.saveLocked()
}

// --- Snapshot for atomic reads ---

// Snapshot is a point-in-time copy of configuration values with
// environment overrides applied.
type Snapshot struct {
	// System
	WebPort     int
	WebUser     string
	WebPassword string
	LogLevel    string
	FFmpegPath  string
	MailboxSize int

	// Audio
	AudioDevice       string
	MicGain           int
	SilenceThreshold  float64
	SilenceDurationMs int64
	SilenceRecoveryMs int64

	ModelPath string

	// Alarm
	AlarmThreshold   float64
	MeasurementNoise float64
	EstimateNoise    float64
	ProcessNoise     float64

	// Alert
	AlertEnabled      bool
	AlertHost         string
	AlertPort         int
	AlertPath         string
	AlertPhone        string
	AlertAPIKey       string
	AlertTimeoutTicks int
	AlertTickInterval time.Duration
	AlertRxBufferSize int
	AlertTextOn       string
	AlertTextOff      string

	// Link
	LinkInterface    string
	LinkPollInterval time.Duration
	LinkProbeEvery   int

	// Indicator
	MQTT MQTTConfig

	// Metrics
	Metrics MetricsConfig

	// Evidence
	EvidenceEnabled       bool
	EvidenceDir           string
	EvidenceBefore        time.Duration
	EvidenceAfter         time.Duration
	EvidenceRetentionDays int
	S3                    S3Config

	EventLogPath string
}

// Snapshot returns a point-in-time copy of all configuration values.
func (c *Config) Snapshot() Snapshot {
	c.mu.RLock()
	defer c.mu.RUnlock()

	mqtt := c.Indicator.MQTT
	mqtt.Password = cmp.Or(c.env.mqttPassword, mqtt.Password)
	metrics := c.Metrics
	metrics.Token = cmp.Or(c.env.influxToken, metrics.Token)
	s3 := c.Evidence.S3
	s3.SecretAccessKey = cmp.Or(c.env.s3Secret, s3.SecretAccessKey)

	return Snapshot{
		// System
		WebPort:     c.System.Port,
		WebUser:     c.System.Username,
		WebPassword: cmp.Or(c.env.webPassword, c.System.Password),
		LogLevel:    c.System.LogLevel,
		FFmpegPath:  c.System.FFmpegPath,
		MailboxSize: c.System.MailboxSize,

		// Audio
		AudioDevice:       c.Audio.Device,
		MicGain:           c.Audio.Gain,
		SilenceThreshold:  c.Audio.SilenceThreshold,
		SilenceDurationMs: c.Audio.SilenceDurationMs,
		SilenceRecoveryMs: c.Audio.SilenceRecoveryMs,

		ModelPath: c.Model.Path,

		// Alarm
		AlarmThreshold:   c.Alarm.Threshold,
		MeasurementNoise: c.Alarm.MeasurementNoise,
		EstimateNoise:    c.Alarm.EstimateNoise,
		ProcessNoise:     c.Alarm.ProcessNoise,

		// Alert
		AlertEnabled:      c.Alert.Enabled,
		AlertHost:         c.Alert.Host,
		AlertPort:         c.Alert.Port,
		AlertPath:         c.Alert.Path,
		AlertPhone:        cmp.Or(c.env.alertPhone, c.Alert.Phone),
		AlertAPIKey:       cmp.Or(c.env.alertAPIKey, c.Alert.APIKey),
		AlertTimeoutTicks: c.Alert.TimeoutTicks,
		AlertTickInterval: time.Duration(c.Alert.TickIntervalMs) * time.Millisecond,
		AlertRxBufferSize: c.Alert.RxBufferSize,
		AlertTextOn:       c.Alert.TextOn,
		AlertTextOff:      c.Alert.TextOff,

		// Link
		LinkInterface:    c.Link.Interface,
		LinkPollInterval: time.Duration(c.Link.PollIntervalMs) * time.Millisecond,
		LinkProbeEvery:   c.Link.ProbeEvery,

		MQTT:    mqtt,
		Metrics: metrics,

		// Evidence
		EvidenceEnabled:       c.Evidence.Enabled,
		EvidenceDir:           c.Evidence.Dir,
		EvidenceBefore:        time.Duration(c.Evidence.BeforeSeconds) * time.Second,
		EvidenceAfter:         time.Duration(c.Evidence.AfterSeconds) * time.Second,
		EvidenceRetentionDays: c.Evidence.RetentionDays,
		S3:                    s3,

		EventLogPath: c.EventLog.Path,
	}
}

// HasMQTT reports whether an MQTT broker is configured.
func (s *Snapshot) HasMQTT() bool {
	return s.MQTT.Broker != ""
}

// HasMetrics reports whether InfluxDB is fully configured.
func (s *Snapshot) HasMetrics() bool {
	return util.IsConfigured(s.Metrics.URL, s.Metrics.Token, s.Metrics.Org, s.Metrics.Bucket)
}

// HasS3 reports whether evidence upload is fully configured.
func (s *Snapshot) HasS3() bool {
	return util.IsConfigured(s.S3.Bucket, s.S3.AccessKeyID, s.S3.SecretAccessKey)
}
