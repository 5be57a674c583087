package main

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"runtime"
	"time"

	"github.com/oszuidwest/zwfm-alarmwatch/internal/app"
	"github.com/oszuidwest/zwfm-alarmwatch/internal/audio"
	"github.com/oszuidwest/zwfm-alarmwatch/internal/config"
	"github.com/oszuidwest/zwfm-alarmwatch/internal/server"
	"github.com/oszuidwest/zwfm-alarmwatch/internal/types"
)

// Detector is the running detector as seen by the web server.
type Detector interface {
	server.Controller
	Status() app.Status
}

// InputStatus reports the capture side of the pipeline.
type InputStatus interface {
	Levels() audio.Levels
	Capture() audio.SourceStatus
	Handoff() audio.HandoffStats
}

// ServerOptions are the runtime components the web server reports on.
type ServerOptions struct {
	Detector        Detector
	Input           InputStatus
	EventLogPath    string
	FFmpegAvailable bool
}

// Server is an HTTP server that exposes the detector status API.
type Server struct {
	config   *config.Config
	opts     ServerOptions
	sessions *server.SessionManager
	commands *server.CommandHandler
	version  *VersionChecker
}

// NewServer returns a new Server for the given config and components.
func NewServer(cfg *config.Config, opts ServerOptions) *Server {
	sessions := server.NewSessionManager(func() (string, string) {
		snap := cfg.Snapshot()
		return snap.WebUser, snap.WebPassword
	})
	commands := server.NewCommandHandler(cfg, opts.Detector, opts.EventLogPath)

	return &Server{
		config:   cfg,
		opts:     opts,
		sessions: sessions,
		commands: commands,
		version:  NewVersionChecker(),
	}
}

// handleWebSocket handles bidirectional WebSocket communication for real-time updates.
func (s *Server) handleWebSocket(w http.ResponseWriter, r *http.Request) {
	conn, err := server.Upgrade(w, r)
	if err != nil {
		slog.Error("WebSocket upgrade failed", "error", err)
		return
	}

	// Create buffered send channel for thread-safe writes.
	// Only the writer goroutine writes to the connection.
	send := make(chan any, 16)
	done := make(chan struct{})
	statusUpdate := make(chan struct{}, 1)

	go s.runWebSocketWriter(conn, send)
	go s.runWebSocketReader(conn, send, done, statusUpdate)

	s.runWebSocketEventLoop(send, done, statusUpdate)
}

// runWebSocketWriter writes messages from the send channel to the connection.
func (s *Server) runWebSocketWriter(conn *server.Conn, send <-chan any) {
	ping := time.NewTicker(server.PingPeriod)
	defer ping.Stop()
	defer func() {
		if err := conn.Close(); err != nil {
			slog.Debug("WebSocket close error", "error", err)
		}
	}()
	for {
		select {
		case msg, ok := <-send:
			if !ok {
				return
			}
			if err := conn.Write(msg); err != nil {
				return
			}
		case <-ping.C:
			if err := conn.Ping(); err != nil {
				return
			}
		}
	}
}

// runWebSocketReader reads commands from the connection and dispatches them.
func (s *Server) runWebSocketReader(conn *server.Conn, send chan<- any, done, statusUpdate chan<- struct{}) {
	defer func() {
		if r := recover(); r != nil {
			slog.Error("panic in WebSocket reader", "panic", r)
		}
		close(done)
	}()

	for {
		var cmd server.WSCommand
		if err := conn.ReadCommand(&cmd); err != nil {
			return
		}
		s.commands.Handle(cmd, send, func() {
			select {
			case statusUpdate <- struct{}{}:
			default:
			}
		})
	}
}

// runWebSocketEventLoop handles periodic status and level updates.
func (s *Server) runWebSocketEventLoop(send chan any, done, statusUpdate <-chan struct{}) {
	levelsTicker := time.NewTicker(250 * time.Millisecond) // input meter
	statusTicker := time.NewTicker(time.Second)            // one status per inference tick
	defer levelsTicker.Stop()
	defer statusTicker.Stop()

	// trySend attempts to send a message, returning false if done is closed
	trySend := func(msg any) bool {
		select {
		case send <- msg:
			return true
		case <-done:
			return false
		}
	}

	if !trySend(s.buildStatus()) {
		close(send)
		return
	}

	for {
		var msg any
		select {
		case <-done:
			close(send)
			return
		case <-statusUpdate:
			msg = s.buildStatus()
		case <-statusTicker.C:
			msg = s.buildStatus()
		case <-levelsTicker.C:
			msg = types.WSLevelsResponse{Type: "levels", Levels: s.opts.Input.Levels()}
		}
		if !trySend(msg) {
			close(send)
			return
		}
	}
}

// buildStatus returns the status shared by GET /api/status and the WebSocket feed.
func (s *Server) buildStatus() types.WSStatusResponse {
	cfg := s.config.Snapshot()

	return types.WSStatusResponse{
		Type:            "status",
		FFmpegAvailable: s.opts.FFmpegAvailable,
		Detector:        s.opts.Detector.Status(),
		Capture:         s.opts.Input.Capture(),
		Handoff:         s.opts.Input.Handoff(),
		Levels:          s.opts.Input.Levels(),
		Settings: types.WSSettings{
			AudioDevice:      cfg.AudioDevice,
			AlarmThreshold:   cfg.AlarmThreshold,
			SilenceThreshold: cfg.SilenceThreshold,
			AlertEnabled:     cfg.AlertEnabled,
			AlertHost:        cfg.AlertHost,
			Evidence:         cfg.EvidenceEnabled,
			Platform:         runtime.GOOS,
		},
		Version: s.version.Info(),
	}
}

// SetupRoutes returns an [http.Handler] configured with all application routes.
func (s *Server) SetupRoutes() http.Handler {
	mux := http.NewServeMux()
	auth := s.sessions.AuthMiddleware()

	// Public routes (no auth required)
	mux.HandleFunc("GET /healthz", s.handleHealth)
	mux.HandleFunc("POST /api/login", s.handleLogin)
	mux.HandleFunc("POST /api/logout", s.handleLogout)

	// Protected routes
	mux.HandleFunc("GET /api/status", auth(s.handleStatus))
	mux.HandleFunc("GET /api/events", auth(s.handleEvents))
	mux.HandleFunc("GET /api/devices", auth(s.handleDevices))
	mux.HandleFunc("POST /api/alert/test", auth(s.handleTestAlert))
	mux.HandleFunc("PUT /api/alarm/threshold", auth(s.handleThreshold))
	mux.HandleFunc("GET /ws", auth(s.handleWebSocket))

	return securityHeaders(mux)
}

// securityHeaders returns middleware that wraps handlers with security headers.
func securityHeaders(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("X-Frame-Options", "DENY")
		w.Header().Set("X-Content-Type-Options", "nosniff")
		w.Header().Set("Referrer-Policy", "strict-origin-when-cross-origin")
		w.Header().Set("Cache-Control", "no-store")
		next.ServeHTTP(w, r)
	})
}

// Start begins the HTTP server and the version checker.
// Returns an *http.Server that can be used for graceful shutdown.
func (s *Server) Start(ctx context.Context) *http.Server {
	addr := fmt.Sprintf(":%d", s.config.Snapshot().WebPort)
	slog.Info("starting web server", "addr", addr)

	srv := &http.Server{
		Addr:              addr,
		Handler:           s.SetupRoutes(),
		ReadHeaderTimeout: 10 * time.Second,
	}

	go s.version.Run(ctx)
	go func() {
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			slog.Error("HTTP server error", "error", err)
		}
	}()

	return srv
}
