package notify

import (
	"bytes"
	"context"
	"errors"
	"io"
	"log/slog"
	"net"
	"strconv"
	"sync"
	"time"
)

// maxPending caps buffered response bytes to prevent memory exhaustion.
const maxPending = 64 * 1024

// Socket is a non-blocking byte stream in the style of an embedded TCP client.
// None of its methods may block for longer than a write deadline.
type Socket interface {
	// Connect starts connecting and reports whether the attempt was initiated.
	Connect(host string, port int) bool
	// Connected reports whether the stream is open or still has unread data.
	Connected() bool
	// Available returns the number of bytes that can be read without blocking.
	Available() int
	// Read copies up to len(p) buffered bytes into p.
	Read(p []byte) int
	io.Writer
	// Stop closes the stream and discards buffered data.
	Stop()
}

// DialFailer is implemented by sockets that connect in the background.
// DialFailed reports that the current attempt ended without a connection.
type DialFailer interface {
	DialFailed() bool
}

// TCPSocket implements Socket over net.Conn. Dialing and reading happen on
// background goroutines; the methods only inspect shared state.
// It is safe for concurrent use.
type TCPSocket struct {
	mu       sync.Mutex
	dialer   net.Dialer
	conn     net.Conn
	cancel   context.CancelFunc
	pending  bytes.Buffer
	open     bool // conn established and not closed by the peer
	dialing  bool
	lastErr  error
	sequence uint64
}

// NewTCPSocket returns an idle socket.
func NewTCPSocket() *TCPSocket {
	return &TCPSocket{dialer: net.Dialer{Timeout: dialTimeout}}
}

// Connect implements Socket. It fails only for invalid arguments or when a
// previous connection has not been stopped.
func (s *TCPSocket) Connect(host string, port int) bool {
	if host == "" || port <= 0 || port > 65535 {
		return false
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	if s.dialing || s.conn != nil {
		return false
	}

	ctx, cancel := context.WithCancel(context.Background())
	s.sequence++
	seq := s.sequence
	s.cancel = cancel
	s.dialing = true
	s.lastErr = nil
	s.pending.Reset()

	addr := net.JoinHostPort(host, strconv.Itoa(port))
	go s.dial(ctx, seq, addr)
	return true
}

func (s *TCPSocket) dial(ctx context.Context, seq uint64, addr string) {
	conn, err := s.dialer.DialContext(ctx, "tcp", addr)

	s.mu.Lock()
	defer s.mu.Unlock()
	if seq != s.sequence {
		if conn != nil {
			_ = conn.Close()
		}
		return
	}
	s.dialing = false
	if err != nil {
		s.lastErr = err
		slog.Debug("alert socket dial failed", "addr", addr, "error", err)
		return
	}
	s.conn = conn
	s.open = true
	go s.readLoop(seq, conn)
}

func (s *TCPSocket) readLoop(seq uint64, conn net.Conn) {
	buf := make([]byte, 4096)
	for {
		n, err := conn.Read(buf)
		s.mu.Lock()
		if seq != s.sequence {
			s.mu.Unlock()
			return
		}
		if n > 0 && s.pending.Len() < maxPending {
			s.pending.Write(buf[:min(n, maxPending-s.pending.Len())])
		}
		if err != nil {
			s.open = false
			if !errors.Is(err, io.EOF) && !errors.Is(err, net.ErrClosed) {
				s.lastErr = err
			}
			s.mu.Unlock()
			return
		}
		s.mu.Unlock()
	}
}

// Connected implements Socket.
func (s *TCPSocket) Connected() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.conn != nil && (s.open || s.pending.Len() > 0)
}

// Available implements Socket.
func (s *TCPSocket) Available() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.pending.Len()
}

// Read implements Socket.
func (s *TCPSocket) Read(p []byte) int {
	s.mu.Lock()
	defer s.mu.Unlock()
	n, _ := s.pending.Read(p)
	return n
}

// Write implements io.Writer with a short deadline.
func (s *TCPSocket) Write(p []byte) (int, error) {
	s.mu.Lock()
	conn := s.conn
	s.mu.Unlock()
	if conn == nil {
		return 0, net.ErrClosed
	}
	if err := conn.SetWriteDeadline(time.Now().Add(writeTimeout)); err != nil {
		return 0, err
	}
	return conn.Write(p)
}

// Stop implements Socket.
func (s *TCPSocket) Stop() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.sequence++
	if s.cancel != nil {
		s.cancel()
		s.cancel = nil
	}
	if s.conn != nil {
		_ = s.conn.Close()
		s.conn = nil
	}
	s.open = false
	s.dialing = false
	s.pending.Reset()
}

// DialFailed implements DialFailer.
func (s *TCPSocket) DialFailed() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return !s.dialing && s.conn == nil && s.lastErr != nil
}

// Err returns the last dial or read error.
func (s *TCPSocket) Err() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.lastErr
}
