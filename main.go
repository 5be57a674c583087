// Package main runs an acoustic alarm detector: it captures microphone audio,
// classifies it, smooths the result into an alarm state and sends an alert
// text on every state change.
//
// Usage:
//
//	alarmwatch [-config path/to/config.json] [-env path/to/.env]
//
// If -config is not specified, alarmwatch looks for config.json in the same
// directory as the binary.
package main

import (
	"context"
	"flag"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"path/filepath"
	"time"

	"github.com/oszuidwest/zwfm-alarmwatch/internal/audio"
	"github.com/oszuidwest/zwfm-alarmwatch/internal/config"
	"github.com/oszuidwest/zwfm-alarmwatch/internal/ffmpeg"
	"github.com/oszuidwest/zwfm-alarmwatch/internal/inference"
	"github.com/oszuidwest/zwfm-alarmwatch/internal/util"
)

func main() {
	configPath := flag.String("config", "", "Path to config file (default: config.json next to binary)")
	envPath := flag.String("env", "", "Path to .env file with secrets (default: .env)")
	sampleModel := flag.String("write-sample-model", "", "Write a sample band-energy model to this path and exit")
	showVersion := flag.Bool("version", false, "Print version information and exit")
	flag.Parse()

	if *showVersion {
		fmt.Printf("alarmwatch %s (commit %s, built %s)\n", Version, Commit, BuildTime)
		return
	}

	if *sampleModel != "" {
		if err := inference.WriteSampleModel(*sampleModel); err != nil {
			slog.Error("failed to write sample model", "error", err)
			os.Exit(1)
		}
		slog.Info("sample model written", "path", *sampleModel)
		return
	}

	if err := run(*configPath, *envPath); err != nil {
		slog.Error("alarmwatch stopped", "error", err)
		os.Exit(1)
	}
}

func run(configPath, envPath string) error {
	if configPath == "" {
		execPath, err := os.Executable()
		if err != nil {
			return util.WrapError("get executable path", err)
		}
		configPath = filepath.Join(filepath.Dir(execPath), "config.json")
	}

	if err := config.LoadEnvFile(envPath); err != nil {
		return err
	}

	slog.Info("using config file", "path", configPath)
	cfg := config.New(configPath)
	if err := cfg.Load(); err != nil {
		return util.WrapError("load config", err)
	}
	snap := cfg.Snapshot()
	setupLogging(snap.LogLevel)

	ffmpegPath := ffmpeg.Locate(snap.FFmpegPath)
	ffmpegAvailable := ffmpegPath != ""
	if !ffmpegAvailable {
		slog.Warn(missingFFmpegMessage(audio.CapturesViaFFmpeg()), "configured_path", snap.FFmpegPath)
	} else {
		slog.Info("FFmpeg found", "path", ffmpegPath)
	}

	p, err := newPipeline(&snap, ffmpegPath)
	if err != nil {
		return err
	}

	ctx, stop := signal.NotifyContext(context.Background(), util.ShutdownSignals()...)
	defer stop()

	slog.Info("starting alarmwatch", "version", Version, "model", snap.ModelPath, "threshold", snap.AlarmThreshold)
	p.run(ctx)

	srv := NewServer(cfg, ServerOptions{
		Detector:        p.app,
		Input:           p,
		EventLogPath:    p.eventLogPath(),
		FFmpegAvailable: ffmpegAvailable,
	})
	httpServer := srv.Start(ctx)

	<-ctx.Done()
	slog.Info("shutting down")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	if err := httpServer.Shutdown(shutdownCtx); err != nil {
		slog.Error("HTTP server shutdown error", "error", err)
	}

	p.wait()
	if err := p.close(); err != nil {
		slog.Error("error closing components", "error", err)
	}

	slog.Info("shutdown complete")
	return nil
}

// setupLogging installs the default text logger at the configured level.
func setupLogging(level string) {
	var lvl slog.Level
	if err := lvl.UnmarshalText([]byte(level)); err != nil {
		lvl = slog.LevelInfo
	}
	slog.SetDefault(slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: lvl})))
}

// missingFFmpegMessage explains what a missing FFmpeg costs on this platform.
func missingFFmpegMessage(capturesViaFFmpeg bool) string {
	if capturesViaFFmpeg {
		return "FFmpeg not found, no audio will be captured and evidence clips are saved as WAV"
	}
	return "FFmpeg not found, evidence clips are saved as WAV instead of MP3"
}
