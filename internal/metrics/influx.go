// Package metrics writes the alarm pipeline's time series to InfluxDB.
package metrics

import (
	"log/slog"
	"math"
	"time"

	influxdb2 "github.com/influxdata/influxdb-client-go/v2"
	"github.com/influxdata/influxdb-client-go/v2/api/write"
)

// Measurement names.
const (
	MeasurementInference = "alarm_inference"
	MeasurementAlert     = "alarm_alert"
	MeasurementInput     = "alarm_input"
)

// Config holds InfluxDB connection settings.
type Config struct {
	URL    string
	Token  string
	Org    string
	Bucket string
	Device string // written as the device tag
}

// pointWriter is the non-blocking write API subset used by Recorder.
type pointWriter interface {
	WritePoint(point *write.Point)
	Flush()
}

// Recorder batches points through the non-blocking write API.
// A nil *Recorder is valid and records nothing.
type Recorder struct {
	client influxdb2.Client
	writer pointWriter
	device string
}

// New creates a recorder. Write errors are logged asynchronously.
func New(cfg Config) *Recorder {
	client := influxdb2.NewClientWithOptions(cfg.URL, cfg.Token,
		influxdb2.DefaultOptions().SetBatchSize(50).SetFlushInterval(5000))
	writeAPI := client.WriteAPI(cfg.Org, cfg.Bucket)

	go func() {
		for err := range writeAPI.Errors() {
			slog.Warn("failed to write metrics", "error", err)
		}
	}()

	slog.Info("metrics enabled", "url", cfg.URL, "bucket", cfg.Bucket)
	return &Recorder{client: client, writer: writeAPI, device: cfg.Device}
}

// RecordInference records one classifier cycle. NaN measurements are
// recorded as skipped cycles without a value.
func (r *Recorder) RecordInference(measurement, estimate float64, alarm bool, at time.Time) {
	if r == nil {
		return
	}
	r.writer.WritePoint(inferencePoint(r.device, measurement, estimate, alarm, at))
}

// RecordAlert records an alert delivery report.
func (r *Recorder) RecordAlert(report string, at time.Time) {
	if r == nil {
		return
	}
	r.writer.WritePoint(influxdb2.NewPoint(MeasurementAlert,
		map[string]string{"device": r.device},
		map[string]any{"report": report},
		at))
}

// RecordInput records an input level measurement.
func (r *Recorder) RecordInput(rmsDB, peakDB float64, silent bool, at time.Time) {
	if r == nil {
		return
	}
	r.writer.WritePoint(influxdb2.NewPoint(MeasurementInput,
		map[string]string{"device": r.device},
		map[string]any{"rms_db": rmsDB, "peak_db": peakDB, "silent": silent},
		at))
}

// Close flushes pending points and closes the client.
func (r *Recorder) Close() {
	if r == nil {
		return
	}
	r.writer.Flush()
	if r.client != nil {
		r.client.Close()
	}
}

func inferencePoint(device string, measurement, estimate float64, alarm bool, at time.Time) *write.Point {
	fields := map[string]any{"alarm": alarm}
	if math.IsNaN(measurement) {
		fields["skipped"] = true
	} else {
		fields["measurement"] = measurement
		fields["estimate"] = estimate
	}
	return influxdb2.NewPoint(MeasurementInference, map[string]string{"device": device}, fields, at)
}
