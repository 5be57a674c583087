package audio

import (
	"bytes"
	"context"
	"encoding/binary"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os/exec"
	"sync"
	"sync/atomic"
	"time"

	"github.com/oszuidwest/zwfm-alarmwatch/internal/dsp"
	"github.com/oszuidwest/zwfm-alarmwatch/internal/util"
)

// ErrGaveUp is returned by Run after MaxRetries consecutive fast failures.
var ErrGaveUp = errors.New("capture failed too often, giving up")

// SourceState is the state of the capture process.
type SourceState string

// Capture states.
const (
	SourceStopped  SourceState = "stopped"
	SourceStarting SourceState = "starting"
	SourceRunning  SourceState = "running"
)

// FrameFunc receives each captured frame. It runs on the capture goroutine and
// must return quickly; the slice is reused after it returns.
type FrameFunc func(frame []int16)

// SourceConfig configures the capture process.
type SourceConfig struct {
	Device     string
	FFmpegPath string
	FrameLen   int // samples per frame
	Gain       int // left shift applied to every sample, with saturation

	// Command overrides the platform capture command when set.
	Command []string
}

// SourceStatus is a point-in-time view of the capture process.
type SourceStatus struct {
	State      SourceState `json:"state"`
	Uptime     string      `json:"uptime,omitempty"`
	LastError  string      `json:"last_error,omitempty"`
	RetryCount int         `json:"retry_count"`
	MaxRetries int         `json:"max_retries"`
	Frames     uint64      `json:"frames"`
}

// Source runs the platform capture process, restarting it with exponential
// backoff, and delivers fixed-size frames.
type Source struct {
	cfg     SourceConfig
	onFrame FrameFunc
	backoff *util.Backoff

	mu         sync.Mutex
	state      SourceState
	lastError  string
	retryCount int
	startTime  time.Time

	frames atomic.Uint64
}

// NewSource creates a capture source. onFrame must not be nil.
func NewSource(cfg SourceConfig, onFrame FrameFunc) *Source {
	return &Source{
		cfg:     cfg,
		onFrame: onFrame,
		backoff: util.NewBackoff(InitialRetryDelay, MaxRetryDelay),
		state:   SourceStopped,
	}
}

// Run captures until ctx is cancelled or the process keeps failing.
func (s *Source) Run(ctx context.Context) error {
	defer s.setState(SourceStopped)

	for {
		if ctx.Err() != nil {
			return nil
		}

		startTime := time.Now()
		stderrOutput, err := s.runOnce(ctx)
		runDuration := time.Since(startTime)

		if ctx.Err() != nil {
			return nil
		}

		s.mu.Lock()
		if err != nil {
			errMsg := err.Error()
			if stderrOutput != "" {
				errMsg = stderrOutput
			}
			s.lastError = errMsg
			slog.Error("audio capture error", "error", errMsg)

			if runDuration >= SuccessThreshold {
				s.retryCount = 0
				s.backoff.Reset()
			} else {
				s.retryCount++
			}

			if s.retryCount >= MaxRetries {
				slog.Error("audio capture failed, giving up", "attempts", MaxRetries)
				s.lastError = fmt.Sprintf("stopped after %d failed attempts: %s", MaxRetries, errMsg)
				s.mu.Unlock()
				return ErrGaveUp
			}
		} else {
			s.retryCount = 0
			s.backoff.Reset()
		}
		s.state = SourceStarting
		attempt := s.retryCount + 1
		s.mu.Unlock()

		retryDelay := s.backoff.Next()
		slog.Info("audio capture stopped, waiting before restart",
			"delay", retryDelay, "attempt", attempt, "max_retries", MaxRetries)
		select {
		case <-ctx.Done():
			return nil
		case <-time.After(retryDelay):
		}
	}
}

// runOnce executes the capture process until it exits.
func (s *Source) runOnce(ctx context.Context) (string, error) {
	cmdName, args, err := s.command()
	if err != nil {
		return "", err
	}

	slog.Info("starting audio capture", "command", cmdName, "device", s.cfg.Device)

	cmd := exec.CommandContext(ctx, cmdName, args...)
	cmd.Cancel = func() error {
		return util.GracefulSignal(cmd.Process)
	}
	cmd.WaitDelay = ShutdownTimeout

	stdout, err := cmd.StdoutPipe()
	if err != nil {
		return "", err
	}
	var stderrBuf bytes.Buffer
	cmd.Stderr = &stderrBuf

	if err := cmd.Start(); err != nil {
		return "", err
	}

	s.mu.Lock()
	s.state = SourceRunning
	s.startTime = time.Now()
	s.lastError = ""
	s.mu.Unlock()

	readErr := s.ReadFrames(stdout)
	waitErr := cmd.Wait()

	return util.ExtractLastError(stderrBuf.String()), errors.Join(readErr, waitErr)
}

func (s *Source) command() (string, []string, error) {
	if len(s.cfg.Command) > 0 {
		return s.cfg.Command[0], s.cfg.Command[1:], nil
	}
	return BuildCaptureCommand(s.cfg.Device, s.cfg.FFmpegPath)
}

// ReadFrames reads s16le frames from r until EOF. A trailing partial frame is discarded.
func (s *Source) ReadFrames(r io.Reader) error {
	if s.cfg.FrameLen <= 0 {
		return ErrFrameLength
	}
	raw := make([]byte, s.cfg.FrameLen*BytesPerSample)
	frame := make([]int16, s.cfg.FrameLen)

	for {
		if _, err := io.ReadFull(r, raw); err != nil {
			if errors.Is(err, io.EOF) || errors.Is(err, io.ErrUnexpectedEOF) {
				return nil
			}
			return util.WrapError("read audio", err)
		}
		for i := range frame {
			frame[i] = int16(binary.LittleEndian.Uint16(raw[i*BytesPerSample:]))
		}
		ApplyGain(frame, s.cfg.Gain)
		s.frames.Add(1)
		s.onFrame(frame)
	}
}

// ApplyGain shifts every sample left by gain bits with saturation.
func ApplyGain(samples []int16, gain int) {
	if gain <= 0 {
		return
	}
	gain = min(gain, 16)
	for i, v := range samples {
		samples[i] = dsp.SaturateQ15(int32(v) << gain)
	}
}

func (s *Source) setState(state SourceState) {
	s.mu.Lock()
	s.state = state
	s.mu.Unlock()
}

// Status returns the capture status.
func (s *Source) Status() SourceStatus {
	s.mu.Lock()
	defer s.mu.Unlock()

	uptime := ""
	if s.state == SourceRunning {
		uptime = time.Since(s.startTime).Truncate(time.Second).String()
	}
	return SourceStatus{
		State:      s.state,
		Uptime:     uptime,
		LastError:  s.lastError,
		RetryCount: s.retryCount,
		MaxRetries: MaxRetries,
		Frames:     s.frames.Load(),
	}
}
