package evidence

import (
	"context"
	"errors"
	"io/fs"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"github.com/oszuidwest/zwfm-alarmwatch/internal/ffmpeg"
	"github.com/oszuidwest/zwfm-alarmwatch/internal/util"
)

const (
	filePrefix = "alarm-"
	mp3Bitrate = "32k"
)

// Config configures evidence capture.
type Config struct {
	Dir           string
	Before        time.Duration
	After         time.Duration
	FFmpegPath    string // MP3 when set, WAV otherwise
	RetentionDays int    // 0 keeps clips forever
	S3            S3Config
}

// Result describes one saved clip.
type Result struct {
	Filename    string
	FilePath    string
	SizeBytes   int64
	Duration    time.Duration
	TriggeredAt time.Time
	S3Key       string
	Err         error // saving failed
	UploadErr   error // saved locally, upload failed
}

// Manager feeds the capturer, writes finished clips, uploads them and
// removes expired files.
type Manager struct {
	cfg      Config
	capturer *Capturer
	uploader *Uploader
	onResult func(*Result)

	wg sync.WaitGroup
}

// NewManager creates a manager. onResult is called from a background goroutine.
func NewManager(cfg Config, onResult func(*Result)) (*Manager, error) {
	if err := os.MkdirAll(cfg.Dir, 0o755); err != nil {
		return nil, util.WrapError("create evidence directory", err)
	}

	m := &Manager{cfg: cfg, onResult: onResult}
	if cfg.S3.IsConfigured() {
		u, err := NewUploader(&cfg.S3)
		if err != nil {
			return nil, err
		}
		m.uploader = u
	}
	m.capturer = NewCapturer(cfg.Before, cfg.After, m.handleClip)
	return m, nil
}

// WriteAudio feeds captured samples to the ring.
func (m *Manager) WriteAudio(samples []int16) {
	m.capturer.WriteAudio(samples)
}

// OnAlarm starts a clip for an alarm onset.
func (m *Manager) OnAlarm() {
	if !m.capturer.OnAlarm(time.Now()) {
		slog.Debug("evidence clip already in progress")
	}
}

// Capturing reports whether a clip is in progress.
func (m *Manager) Capturing() bool { return m.capturer.Capturing() }

func (m *Manager) handleClip(clip *Clip) {
	m.wg.Go(func() {
		result := m.save(context.Background(), clip)
		if m.onResult != nil {
			m.onResult(result)
		}
	})
}

func (m *Manager) save(ctx context.Context, clip *Clip) *Result {
	result := &Result{Duration: clip.Duration(), TriggeredAt: clip.TriggeredAt}

	ext, contentType := ".wav", "audio/wav"
	if m.cfg.FFmpegPath != "" {
		ext, contentType = ".mp3", "audio/mpeg"
	}
	result.Filename = filePrefix + clip.TriggeredAt.Local().Format("2006-01-02_15-04-05") + ext
	result.FilePath = filepath.Join(m.cfg.Dir, result.Filename)

	if ext == ".mp3" {
		result.Err = ffmpeg.Encode(ctx, m.cfg.FFmpegPath, pcmBytes(clip.Samples), ffmpeg.MP3Args(mp3Bitrate, result.FilePath))
	} else {
		result.Err = writeWAVFile(result.FilePath, clip.Samples)
	}
	if result.Err != nil {
		slog.Error("failed to save evidence clip", "file", result.Filename, "error", result.Err)
		return result
	}

	if info, err := os.Stat(result.FilePath); err == nil {
		result.SizeBytes = info.Size()
	}
	slog.Info("evidence clip saved", "file", result.Filename, "size", result.SizeBytes, "duration", result.Duration)

	if m.uploader != nil {
		result.S3Key, result.UploadErr = m.uploader.Upload(ctx, result.FilePath, contentType)
		if result.UploadErr != nil {
			slog.Warn("failed to upload evidence clip", "file", result.Filename, "error", result.UploadErr)
		}
	}
	return result
}

func writeWAVFile(path string, samples []int16) error {
	f, err := os.Create(path)
	if err != nil {
		return util.WrapError("create clip", err)
	}
	if err := WriteWAV(f, samples); err != nil {
		_ = f.Close()
		return util.WrapError("write clip", err)
	}
	return f.Close()
}

// Run removes expired clips daily at 03:00 until ctx is cancelled, then
// waits for in-flight saves.
func (m *Manager) Run(ctx context.Context) {
	defer m.wg.Wait()
	if m.cfg.RetentionDays <= 0 {
		<-ctx.Done()
		return
	}

	for {
		now := time.Now()
		next := time.Date(now.Year(), now.Month(), now.Day(), 3, 0, 0, 0, now.Location())
		if now.After(next) {
			next = next.Add(24 * time.Hour)
		}
		slog.Debug("evidence cleanup scheduled", "at", next.Format(time.DateTime))

		select {
		case <-ctx.Done():
			return
		case <-time.After(next.Sub(now)):
			m.Cleanup(time.Now())
		}
	}
}

// Cleanup removes clips dated before now minus the retention period.
func (m *Manager) Cleanup(now time.Time) int {
	if m.cfg.RetentionDays <= 0 {
		return 0
	}

	entries, err := os.ReadDir(m.cfg.Dir)
	if err != nil {
		if !errors.Is(err, fs.ErrNotExist) {
			slog.Warn("evidence cleanup: failed to read directory", "path", m.cfg.Dir, "error", err)
		}
		return 0
	}

	cutoff := now.AddDate(0, 0, -m.cfg.RetentionDays)
	deleted := 0
	for _, entry := range entries {
		name := entry.Name()
		if entry.IsDir() || !strings.HasPrefix(name, filePrefix) {
			continue
		}
		fileDate, ok := util.FileDate(name)
		if !ok || !fileDate.Before(cutoff) {
			continue
		}
		if err := os.Remove(filepath.Join(m.cfg.Dir, name)); err != nil {
			slog.Warn("evidence cleanup: failed to delete", "file", name, "error", err)
			continue
		}
		deleted++
	}
	if deleted > 0 {
		slog.Info("evidence cleanup completed", "deleted", deleted)
	}
	return deleted
}

// Wait blocks until in-flight saves finish.
func (m *Manager) Wait() { m.wg.Wait() }
