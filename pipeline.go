package main

import (
	"context"
	"errors"
	"log/slog"
	"sync"
	"time"

	"github.com/oszuidwest/zwfm-alarmwatch/internal/alarm"
	"github.com/oszuidwest/zwfm-alarmwatch/internal/app"
	"github.com/oszuidwest/zwfm-alarmwatch/internal/audio"
	"github.com/oszuidwest/zwfm-alarmwatch/internal/config"
	"github.com/oszuidwest/zwfm-alarmwatch/internal/dsp"
	"github.com/oszuidwest/zwfm-alarmwatch/internal/eventlog"
	"github.com/oszuidwest/zwfm-alarmwatch/internal/evidence"
	"github.com/oszuidwest/zwfm-alarmwatch/internal/indicator"
	"github.com/oszuidwest/zwfm-alarmwatch/internal/inference"
	"github.com/oszuidwest/zwfm-alarmwatch/internal/link"
	"github.com/oszuidwest/zwfm-alarmwatch/internal/metrics"
	"github.com/oszuidwest/zwfm-alarmwatch/internal/notify"
	"github.com/oszuidwest/zwfm-alarmwatch/internal/util"
)

// pipeline owns every runtime component built from one config snapshot.
type pipeline struct {
	app       *app.App
	source    *audio.Source
	handoff   *audio.Handoff
	meter     *audio.Meter
	monitor   *link.Monitor
	socket    *notify.TCPSocket
	indicator *indicator.Indicator
	events    *eventlog.Logger
	metrics   *metrics.Recorder // nil when disabled
	evidence  *evidence.Manager // nil when disabled

	wg sync.WaitGroup
}

// newPipeline builds the components. Nothing runs until run.
func newPipeline(snap *config.Snapshot, ffmpegPath string) (*pipeline, error) {
	p := &pipeline{}

	eventLogPath := snap.EventLogPath
	if eventLogPath == "" {
		eventLogPath = eventlog.DefaultLogPath()
	}
	events, err := eventlog.NewLogger(eventLogPath)
	if err != nil {
		return nil, err
	}
	p.events = events

	// The file is read by the audio actor; a bad model stops audio only.
	model := inference.OpenModel(snap.ModelPath)
	params := dsp.DefaultParams()

	if snap.HasMetrics() {
		p.metrics = metrics.New(metrics.Config{
			URL:    snap.Metrics.URL,
			Token:  snap.Metrics.Token,
			Org:    snap.Metrics.Org,
			Bucket: snap.Metrics.Bucket,
			Device: snap.Metrics.Device,
		})
	}

	if snap.EvidenceEnabled {
		p.evidence, err = p.newEvidence(snap, ffmpegPath)
		if err != nil {
			slog.Error("evidence capture disabled", "error", err)
		}
	}

	outputs := []indicator.Output{indicator.LogOutput{}}
	if snap.HasMQTT() {
		outputs = append(outputs, indicator.NewMQTTOutput(indicator.MQTTConfig{
			Broker:   snap.MQTT.Broker,
			ClientID: snap.MQTT.ClientID,
			Username: snap.MQTT.Username,
			Password: snap.MQTT.Password,
			Topic:    snap.MQTT.Topic,
		}))
	}
	p.indicator = indicator.New(outputs...)

	p.socket = notify.NewTCPSocket()
	client := notify.NewClient(notify.Config{
		Host:         snap.AlertHost,
		Port:         snap.AlertPort,
		Path:         notify.ExpandPath(snap.AlertPath, snap.AlertPhone, snap.AlertAPIKey),
		TimeoutTicks: snap.AlertTimeoutTicks,
		RxBufferSize: snap.AlertRxBufferSize,
	}, p.socket, nil)
	if !snap.AlertEnabled {
		slog.Warn("alert endpoint disabled, transitions are only logged")
	}

	p.handoff = audio.NewHandoff(params.FrameLen)
	p.meter = audio.NewMeter(audio.SilenceConfig{
		Threshold:  snap.SilenceThreshold,
		DurationMs: snap.SilenceDurationMs,
		RecoveryMs: snap.SilenceRecoveryMs,
	}, func(ev audio.SilenceEvent) { p.onSilence(ev, snap.SilenceThreshold) })
	if p.metrics != nil {
		p.meter.OnLevels(p.onLevels)
	}

	p.source = audio.NewSource(audio.SourceConfig{
		Device:     snap.AudioDevice,
		FFmpegPath: ffmpegPath,
		FrameLen:   params.FrameLen,
		Gain:       snap.MicGain,
	}, p.onFrame)

	deps := app.Deps{
		Frames:      p.handoff,
		Model:       model,
		Spectrogram: dsp.New(params),
		Detector: alarm.NewDetector(alarm.Config{
			Threshold:        snap.AlarmThreshold,
			MeasurementNoise: snap.MeasurementNoise,
			EstimateNoise:    snap.EstimateNoise,
			ProcessNoise:     snap.ProcessNoise,
		}),
		Alert:     disabledAlert(client, snap.AlertEnabled),
		Indicator: p.indicator,
		Events:    p.events,
	}
	if p.metrics != nil {
		deps.Metrics = p.metrics
	}
	if p.evidence != nil {
		deps.Evidence = p.evidence
	}

	p.app, err = app.New(app.Config{
		MailboxSize:  snap.MailboxSize,
		TickInterval: snap.AlertTickInterval,
		TextOn:       snap.AlertTextOn,
		TextOff:      snap.AlertTextOff,
	}, deps)
	if err != nil {
		p.close()
		return nil, err
	}

	var probe link.Prober
	if snap.AlertEnabled {
		probe = link.TCPProbe(snap.AlertHost, snap.AlertPort, snap.AlertTickInterval*5)
	}
	p.monitor = link.NewMonitor(link.Config{
		Interface:    snap.LinkInterface,
		PollInterval: snap.LinkPollInterval,
		ProbeEvery:   snap.LinkProbeEvery,
	}, probe, p.app.LinkChanged, p.app.Diagnostics)

	return p, nil
}

func (p *pipeline) newEvidence(snap *config.Snapshot, ffmpegPath string) (*evidence.Manager, error) {
	if err := util.CheckPathWritable(snap.EvidenceDir); err != nil {
		return nil, util.WrapError("prepare evidence directory", err)
	}
	return evidence.NewManager(evidence.Config{
		Dir:           snap.EvidenceDir,
		Before:        snap.EvidenceBefore,
		After:         snap.EvidenceAfter,
		FFmpegPath:    ffmpegPath,
		RetentionDays: snap.EvidenceRetentionDays,
		S3: evidence.S3Config{
			Endpoint:        snap.S3.Endpoint,
			Bucket:          snap.S3.Bucket,
			Prefix:          snap.S3.Prefix,
			AccessKeyID:     snap.S3.AccessKeyID,
			SecretAccessKey: snap.S3.SecretAccessKey,
		},
	}, p.onEvidence)
}

// run starts the actors and the background loops.
func (p *pipeline) run(ctx context.Context) {
	p.app.Start(ctx)

	p.wg.Go(func() {
		if err := p.source.Run(ctx); err != nil {
			slog.Error("audio capture stopped", "error", err)
			if lerr := p.events.LogMessage(eventlog.CaptureFailed, err.Error()); lerr != nil {
				slog.Warn("failed to log capture failure", "error", lerr)
			}
		}
	})
	p.wg.Go(func() { p.monitor.Run(ctx) })
	if p.evidence != nil {
		p.wg.Go(func() { p.evidence.Run(ctx) })
	}
}

// wait blocks until everything started by run has stopped.
func (p *pipeline) wait() {
	p.wg.Wait()
	p.app.Wait()
	if p.evidence != nil {
		p.evidence.Wait()
	}
}

// close releases outputs and files.
func (p *pipeline) close() error {
	var errs []error
	if p.socket != nil {
		p.socket.Stop()
	}
	if p.indicator != nil {
		errs = append(errs, p.indicator.Close())
	}
	if p.metrics != nil {
		p.metrics.Close()
	}
	if p.events != nil {
		errs = append(errs, p.events.Close())
	}
	return errors.Join(errs...)
}

// onFrame runs on the capture goroutine for every frame.
func (p *pipeline) onFrame(frame []int16) {
	if err := p.handoff.Publish(frame); err != nil {
		slog.Warn("dropping frame of unexpected length", "samples", len(frame), "error", err)
	}
	p.meter.Process(frame)
	if p.evidence != nil {
		p.evidence.WriteAudio(frame)
	}
}

func (p *pipeline) onSilence(ev audio.SilenceEvent, threshold float64) {
	switch {
	case ev.JustEntered:
		slog.Warn("input silence detected", "level_db", ev.CurrentDB, "duration", util.FormatDuration(ev.DurationMs))
		if err := p.events.LogSilence(true, ev.CurrentDB, threshold, ev.DurationMs); err != nil {
			slog.Warn("failed to log silence", "error", err)
		}
	case ev.JustRecovered:
		slog.Info("input silence recovered", "duration", util.FormatDuration(ev.TotalDurationMs))
		if err := p.events.LogSilence(false, ev.CurrentDB, threshold, ev.TotalDurationMs); err != nil {
			slog.Warn("failed to log silence", "error", err)
		}
	}
}

func (p *pipeline) onLevels(levels audio.Levels, at time.Time) {
	p.metrics.RecordInput(levels.RMS, levels.Peak, levels.Silence, at)
}

func (p *pipeline) onEvidence(r *evidence.Result) {
	details := &eventlog.EvidenceDetails{Filename: r.Filename, SizeBytes: r.SizeBytes, S3Key: r.S3Key}
	eventType := eventlog.EvidenceSaved
	switch {
	case r.Err != nil:
		eventType = eventlog.EvidenceFailed
		details.Error = r.Err.Error()
	case r.UploadErr != nil:
		eventType = eventlog.EvidenceFailed
		details.Error = r.UploadErr.Error()
	case r.S3Key != "":
		eventType = eventlog.EvidenceUploaded
	}
	if err := p.events.LogEvidence(eventType, details); err != nil {
		slog.Warn("failed to log evidence", "error", err)
	}
}

// Levels implements InputStatus.
func (p *pipeline) Levels() audio.Levels { return p.meter.Levels() }

// Capture implements InputStatus.
func (p *pipeline) Capture() audio.SourceStatus { return p.source.Status() }

// Handoff implements InputStatus.
func (p *pipeline) Handoff() audio.HandoffStats { return p.handoff.Stats() }

// eventLogPath returns the path the logger writes to.
func (p *pipeline) eventLogPath() string { return p.events.Path() }

// logOnlyAlert stands in for the client when no endpoint is configured.
type logOnlyAlert struct {
	*notify.Client
}

func (logOnlyAlert) Send(text string) {
	slog.Info("alert endpoint disabled, not sending", "text", text)
}

func disabledAlert(client *notify.Client, enabled bool) app.AlertSender {
	if enabled {
		return client
	}
	return logOnlyAlert{client}
}
