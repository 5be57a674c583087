// Package notify delivers alarm alerts as a single fire-and-forget HTTP GET
// driven by a periodic tick, without ever blocking the caller.
package notify

import (
	"cmp"
	"log/slog"
	"sync"
	"time"
)

// MessageState is a delivery report passed to the state callback.
type MessageState uint32

// Delivery reports.
const (
	MessageUnknown MessageState = iota
	MessageSending
	MessageSentSuccess
	MessageSentFail
)

func (s MessageState) String() string {
	switch s {
	case MessageSending:
		return "sending"
	case MessageSentSuccess:
		return "sent_success"
	case MessageSentFail:
		return "sent_fail"
	default:
		return "unknown"
	}
}

// TCPState is the connection phase of the client.
type TCPState string

// Connection phases.
const (
	StateReady      TCPState = "ready"
	StateConnecting TCPState = "connecting"
	StateConnected  TCPState = "connected"
)

// StateFunc receives delivery reports. It is called without internal locks held.
type StateFunc func(MessageState)

// Config holds the alert endpoint and client limits.
type Config struct {
	Host           string
	Port           int
	Path           string // request target prefix; the escaped text is appended
	TimeoutTicks   int
	RxBufferSize   int
	MaxRequestPath int
}

// Status is a point-in-time view of the client for the status API.
type Status struct {
	State        TCPState     `json:"state"`
	LastReport   MessageState `json:"last_report"`
	LastText     string       `json:"last_text,omitempty"`
	LastStatus   int          `json:"last_status,omitzero"`
	LastSentAt   time.Time    `json:"last_sent_at,omitzero"`
	Pending      bool         `json:"pending"`
	Sent         int          `json:"sent"`
	Succeeded    int          `json:"succeeded"`
	Failed       int          `json:"failed"`
	Coalesced    int          `json:"coalesced"`
	TicksInPhase int          `json:"ticks_in_phase"`
}

// Client sends one alert at a time. Send starts a delivery; Update advances
// it and must be called periodically. A Send while a delivery is in flight is
// coalesced into a single pending slot where the latest text wins; it starts
// on the first Update that finds the client ready.
// It is safe for concurrent use.
type Client struct {
	mu   sync.Mutex
	cfg  Config
	sock Socket

	onState StateFunc

	state          TCPState
	ticks          int
	statusLineSeen bool
	target         string
	rx             []byte
	pending        *string

	status Status
}

// NewClient creates a client using sock for transport.
func NewClient(cfg Config, sock Socket, onState StateFunc) *Client {
	cfg.Host = cmp.Or(cfg.Host, DefaultHost)
	cfg.Port = cmp.Or(cfg.Port, DefaultPort)
	cfg.TimeoutTicks = cmp.Or(cfg.TimeoutTicks, DefaultTimeoutTicks)
	cfg.RxBufferSize = cmp.Or(cfg.RxBufferSize, DefaultRxBufferSize)
	cfg.MaxRequestPath = cmp.Or(cfg.MaxRequestPath, DefaultMaxRequestPath)
	return &Client{
		cfg:     cfg,
		sock:    sock,
		onState: onState,
		state:   StateReady,
		rx:      make([]byte, cfg.RxBufferSize),
	}
}

// SetStateCallback replaces the delivery report callback.
func (c *Client) SetStateCallback(fn StateFunc) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.onState = fn
}

// Send starts delivering text, or queues it if a delivery is in flight.
func (c *Client) Send(text string) {
	c.mu.Lock()
	if c.state != StateReady {
		if c.pending != nil {
			c.status.Coalesced++
		}
		c.pending = &text
		c.status.Pending = true
		state := c.state
		c.mu.Unlock()
		slog.Info("alert queued behind in-flight delivery", "state", state, "text", text)
		return
	}
	report, fn := c.startLocked(text)
	c.mu.Unlock()
	c.emit(fn, report)
}

// startLocked opens the connection for text. Caller must hold c.mu.
func (c *Client) startLocked(text string) (MessageState, StateFunc) {
	c.target = BuildRequestPath(c.cfg.Path, text, c.cfg.MaxRequestPath)
	c.status.LastText = text
	c.status.LastSentAt = time.Now()
	c.status.Sent++

	if !c.sock.Connect(c.cfg.Host, c.cfg.Port) {
		slog.Warn("failed to start alert connection", "host", c.cfg.Host, "port", c.cfg.Port)
		c.status.Failed++
		return c.reportLocked(MessageSentFail)
	}

	slog.Debug("connecting to alert endpoint", "host", c.cfg.Host, "port", c.cfg.Port)
	c.state = StateConnecting
	c.ticks = 0
	c.statusLineSeen = false
	return c.reportLocked(MessageSending)
}

// Update advances the in-flight delivery by one tick.
func (c *Client) Update() {
	c.mu.Lock()
	var report MessageState
	var fn StateFunc

	switch c.state {
	case StateReady:
		if c.pending != nil {
			text := *c.pending
			c.pending = nil
			c.status.Pending = false
			report, fn = c.startLocked(text)
		}

	case StateConnecting:
		switch {
		case c.sock.Connected():
			if _, err := c.sock.Write(BuildRequest(c.cfg.Host, c.target)); err != nil {
				slog.Warn("failed to write alert request", "error", err)
			}
			c.state = StateConnected
			c.ticks = 0
		case c.dialFailedLocked():
			slog.Warn("alert connect failed", "host", c.cfg.Host, "port", c.cfg.Port)
			report, fn = c.finishLocked(MessageSentFail, 0)
		case c.expiredLocked():
			slog.Warn("alert connect timed out", "ticks", c.ticks)
			report, fn = c.finishLocked(MessageSentFail, 0)
		default:
			slog.Debug("alert connecting", "ticks", c.ticks)
		}

	case StateConnected:
		if code, ok := c.readStatusLocked(); ok {
			if code == 200 {
				report, fn = c.finishLocked(MessageSentSuccess, code)
			} else {
				slog.Warn("alert endpoint rejected request", "status", code)
				report, fn = c.finishLocked(MessageSentFail, code)
			}
		} else if c.expiredLocked() {
			slog.Warn("alert response timed out", "ticks", c.ticks)
			report, fn = c.finishLocked(MessageSentFail, 0)
		}

	default:
		slog.Error("unsupported alert client state", "state", c.state)
	}

	c.status.TicksInPhase = c.ticks
	c.mu.Unlock()
	c.emit(fn, report)
}

func (c *Client) dialFailedLocked() bool {
	df, ok := c.sock.(DialFailer)
	return ok && df.DialFailed()
}

// expiredLocked counts one tick and reports whether the phase timed out.
func (c *Client) expiredLocked() bool {
	expired := c.ticks >= c.cfg.TimeoutTicks
	c.ticks++
	return expired
}

// readStatusLocked drains available bytes until a status line is found.
func (c *Client) readStatusLocked() (int, bool) {
	for n := c.sock.Available(); n > 0; n = c.sock.Available() {
		if n >= len(c.rx) {
			n = len(c.rx) - 1
		}
		n = c.sock.Read(c.rx[:n])
		if n == 0 {
			break
		}
		if c.statusLineSeen {
			continue
		}
		if code, found := ParseStatusLine(c.rx[:n]); found {
			c.statusLineSeen = true
			return code, true
		}
	}
	return 0, false
}

// finishLocked closes the connection and returns to ready.
func (c *Client) finishLocked(report MessageState, code int) (MessageState, StateFunc) {
	c.sock.Stop()
	c.state = StateReady
	c.ticks = 0
	c.status.LastStatus = code
	if report == MessageSentSuccess {
		c.status.Succeeded++
	} else {
		c.status.Failed++
	}
	return c.reportLocked(report)
}

func (c *Client) reportLocked(report MessageState) (MessageState, StateFunc) {
	c.status.LastReport = report
	return report, c.onState
}

func (c *Client) emit(fn StateFunc, report MessageState) {
	if fn != nil && report != MessageUnknown {
		fn(report)
	}
}

// State returns the connection phase.
func (c *Client) State() TCPState {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.state
}

// Busy reports whether a delivery is in flight.
func (c *Client) Busy() bool {
	return c.State() != StateReady
}

// Status returns a snapshot for reporting.
func (c *Client) Status() Status {
	c.mu.Lock()
	defer c.mu.Unlock()
	s := c.status
	s.State = c.state
	return s
}
