// Package link watches the host network link and reports transitions and
// reachability diagnostics.
package link

import (
	"context"
	"log/slog"
	"net"
	"strconv"
	"sync"
	"time"

	"github.com/oszuidwest/zwfm-alarmwatch/internal/events"
)

// DefaultPollInterval is how often interfaces are inspected.
const DefaultPollInterval = 2 * time.Second

// Interface is the subset of interface state the monitor needs.
type Interface struct {
	Name     string
	Up       bool
	Loopback bool
	HasAddr  bool
}

// Lister returns the current host interfaces.
type Lister func() ([]Interface, error)

// Prober checks reachability of the alert endpoint.
type Prober func(ctx context.Context) error

// Config configures the monitor.
type Config struct {
	Interface    string        // empty selects the first usable non-loopback interface
	PollInterval time.Duration // zero uses DefaultPollInterval
	ProbeEvery   int           // probe every n polls while up; zero disables probing
}

// Status is a point-in-time view of the link.
type Status struct {
	Up        bool      `json:"up"`
	Interface string    `json:"interface,omitempty"`
	Since     time.Time `json:"since,omitzero"`
	LastFlags string    `json:"last_flags,omitempty"`
}

// Monitor polls the host interfaces. OnChange is called on every up/down
// transition and OnDiagnostics with a packed interrupt word whenever the
// monitor has something to report.
type Monitor struct {
	cfg    Config
	list   Lister
	probe  Prober
	change func(up bool, iface string)
	diag   func(word uint32)

	polls int

	mu     sync.Mutex
	status Status
	known  bool
}

// NewMonitor creates a monitor using the host interface table.
func NewMonitor(cfg Config, probe Prober, onChange func(up bool, iface string), onDiagnostics func(word uint32)) *Monitor {
	if cfg.PollInterval <= 0 {
		cfg.PollInterval = DefaultPollInterval
	}
	return &Monitor{
		cfg:    cfg,
		list:   HostInterfaces,
		probe:  probe,
		change: onChange,
		diag:   onDiagnostics,
	}
}

// Run polls until ctx is cancelled. The first poll happens immediately.
func (m *Monitor) Run(ctx context.Context) {
	ticker := time.NewTicker(m.cfg.PollInterval)
	defer ticker.Stop()

	for {
		m.Poll(ctx)
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
		}
	}
}

// Poll inspects the interfaces once.
func (m *Monitor) Poll(ctx context.Context) {
	ifaces, err := m.list()
	if err != nil {
		slog.Warn("failed to list network interfaces", "error", err)
		return
	}

	name, up := m.selectInterface(ifaces)
	m.mu.Lock()
	changed := !m.known || up != m.status.Up
	m.known = true
	if changed {
		m.status.Up = up
		m.status.Interface = name
		m.status.Since = time.Now()
	}
	m.mu.Unlock()

	if changed {
		slog.Info("network link changed", "up", up, "interface", name)
		if m.change != nil {
			m.change(up, name)
		}
		if !up {
			m.report(events.Interrupts{Unreachable: true})
		}
	}

	if !up || m.probe == nil || m.cfg.ProbeEvery <= 0 {
		return
	}
	m.polls++
	if m.polls%m.cfg.ProbeEvery != 0 {
		return
	}
	if err := m.probe(ctx); err != nil {
		slog.Debug("reachability probe failed", "error", err)
		m.report(events.Interrupts{Timeout: true})
		return
	}
	m.report(events.Interrupts{Ping: true})
}

func (m *Monitor) report(flags events.Interrupts) {
	m.mu.Lock()
	m.status.LastFlags = flags.String()
	m.mu.Unlock()
	if m.diag != nil {
		m.diag(flags.Pack())
	}
}

// selectInterface returns the monitored interface and whether it is usable.
func (m *Monitor) selectInterface(ifaces []Interface) (string, bool) {
	for _, iface := range ifaces {
		if m.cfg.Interface != "" {
			if iface.Name == m.cfg.Interface {
				return iface.Name, iface.Up && iface.HasAddr
			}
			continue
		}
		if !iface.Loopback && iface.Up && iface.HasAddr {
			return iface.Name, true
		}
	}
	return m.cfg.Interface, false
}

// Status returns the current link status.
func (m *Monitor) Status() Status {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.status
}

// HostInterfaces lists interfaces from the operating system.
func HostInterfaces() ([]Interface, error) {
	ifaces, err := net.Interfaces()
	if err != nil {
		return nil, err
	}
	out := make([]Interface, 0, len(ifaces))
	for _, iface := range ifaces {
		addrs, err := iface.Addrs()
		out = append(out, Interface{
			Name:     iface.Name,
			Up:       iface.Flags&net.FlagUp != 0 && iface.Flags&net.FlagRunning != 0,
			Loopback: iface.Flags&net.FlagLoopback != 0,
			HasAddr:  err == nil && len(addrs) > 0,
		})
	}
	return out, nil
}

// TCPProbe returns a prober that dials host:port.
func TCPProbe(host string, port int, timeout time.Duration) Prober {
	addr := net.JoinHostPort(host, strconv.Itoa(port))
	return func(ctx context.Context) error {
		d := net.Dialer{Timeout: timeout}
		conn, err := d.DialContext(ctx, "tcp", addr)
		if err != nil {
			return err
		}
		return conn.Close()
	}
}
