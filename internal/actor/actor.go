// Package actor provides a small message-passing runtime: each actor owns a
// bounded mailbox, a dispatch table keyed by event category and a goroutine
// that handles one message at a time.
package actor

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"runtime"
	"sync"
	"sync/atomic"
	"time"

	"github.com/oszuidwest/zwfm-alarmwatch/internal/events"
)

// DefaultMailboxSize is the mailbox capacity used when none is configured.
const DefaultMailboxSize = 8

var (
	// ErrQueueFull is returned by Post when the mailbox has no free slot.
	ErrQueueFull = errors.New("mailbox full")
	// ErrTerminated is returned by Post after the actor has stopped.
	ErrTerminated = errors.New("actor terminated")
)

// Handler processes one message. Handlers run to completion on the actor goroutine.
type Handler func(ctx context.Context, msg events.Message)

// State is the lifecycle state of an actor.
type State string

// Actor states.
const (
	StateIdle       State = "idle"
	StateRunning    State = "running"
	StateTerminated State = "terminated" // setup failed, actor stopped itself
	StateStopped    State = "stopped"
)

type timer struct {
	interval time.Duration
	msg      events.Message
}

// Actor is a named unit of execution with a bounded FIFO mailbox.
// Post is safe for concurrent use; everything else is configured before Start.
type Actor struct {
	name       string
	mailbox    chan events.Message
	handlers   map[events.EventID]Handler
	timers     []timer
	setup      func(ctx context.Context) error
	signal     <-chan struct{}
	onSignal   func(ctx context.Context)
	lockThread bool
	manual     bool

	startOnce sync.Once
	started   atomic.Bool
	done      chan struct{}
	closed    atomic.Bool

	mu    sync.Mutex
	state State
	err   error

	posted   atomic.Uint64
	dropped  atomic.Uint64
	handled  atomic.Uint64
	unmapped atomic.Uint64
	signals  atomic.Uint64
	panics   atomic.Uint64

	log *slog.Logger
}

// Option configures an Actor.
type Option func(*Actor)

// WithMailboxSize sets the mailbox capacity. Values below one are ignored.
func WithMailboxSize(n int) Option {
	return func(a *Actor) {
		if n > 0 {
			a.mailbox = make(chan events.Message, n)
		}
	}
}

// WithSetup registers a function that runs on the actor goroutine before the
// first message. If it fails the actor terminates itself and the rest of the
// system keeps running.
func WithSetup(fn func(ctx context.Context) error) Option {
	return func(a *Actor) { a.setup = fn }
}

// WithSignal makes the actor wake on a binary notification in addition to its
// mailbox. fn runs on the actor goroutine once per received signal.
func WithSignal(signal <-chan struct{}, fn func(ctx context.Context)) Option {
	return func(a *Actor) {
		a.signal = signal
		a.onSignal = fn
	}
}

// WithLockedThread pins the actor goroutine to its own OS thread.
func WithLockedThread() Option {
	return func(a *Actor) { a.lockThread = true }
}

// WithManualStart excludes the actor from System.Start. It must be started
// explicitly, typically from another actor's handler.
func WithManualStart() Option {
	return func(a *Actor) { a.manual = true }
}

// New creates an actor with the given name.
func New(name string, opts ...Option) *Actor {
	a := &Actor{
		name:     name,
		mailbox:  make(chan events.Message, DefaultMailboxSize),
		handlers: make(map[events.EventID]Handler),
		done:     make(chan struct{}),
		state:    StateIdle,
		log:      slog.With("actor", name),
	}
	for _, opt := range opts {
		opt(a)
	}
	return a
}

// Name returns the actor name.
func (a *Actor) Name() string { return a.name }

// Handle registers the handler for an event category, replacing any previous one.
func (a *Actor) Handle(event events.EventID, h Handler) {
	a.handlers[event] = h
}

// Every registers a periodic timer that posts msg to this actor while it runs.
// Ticks that find the mailbox full are dropped.
func (a *Actor) Every(interval time.Duration, msg events.Message) {
	a.timers = append(a.timers, timer{interval: interval, msg: msg})
}

// Post enqueues a copy of msg without blocking.
func (a *Actor) Post(msg events.Message) error {
	if a.closed.Load() {
		return ErrTerminated
	}
	select {
	case a.mailbox <- msg:
		a.posted.Add(1)
		return nil
	default:
		a.dropped.Add(1)
		return ErrQueueFull
	}
}

// PostEvent builds and enqueues a message.
func (a *Actor) PostEvent(event events.EventID, iParam int32, uParam, lParam uint32) error {
	return a.Post(events.Message{Event: event, IParam: iParam, UParam: uParam, LParam: lParam})
}

// Start launches the actor goroutine once. Later calls are no-ops and report false.
func (a *Actor) Start(ctx context.Context) bool {
	launched := false
	a.startOnce.Do(func() {
		launched = true
		a.started.Store(true)
		go a.run(ctx)
	})
	return launched
}

// Started reports whether Start has been called.
func (a *Actor) Started() bool { return a.started.Load() }

// Done is closed when the actor goroutine exits.
func (a *Actor) Done() <-chan struct{} { return a.done }

// State returns the lifecycle state.
func (a *Actor) State() State {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.state
}

// Err returns the setup error that terminated the actor, if any.
func (a *Actor) Err() error {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.err
}

func (a *Actor) setState(s State, err error) {
	a.mu.Lock()
	a.state = s
	if err != nil {
		a.err = err
	}
	a.mu.Unlock()
}

func (a *Actor) run(ctx context.Context) {
	defer close(a.done)
	defer a.closed.Store(true)

	if a.lockThread {
		runtime.LockOSThread()
		defer runtime.UnlockOSThread()
	}

	if err := a.runSetup(ctx); err != nil {
		a.log.Error("actor setup failed, terminating", "error", err)
		a.setState(StateTerminated, fmt.Errorf("%s setup: %w", a.name, err))
		return
	}

	a.setState(StateRunning, nil)
	a.log.Debug("actor running", "mailbox", cap(a.mailbox), "timers", len(a.timers))

	for _, t := range a.timers {
		go a.runTimer(ctx, t)
	}

	for {
		select {
		case <-ctx.Done():
			a.setState(StateStopped, nil)
			return
		case msg := <-a.mailbox:
			a.dispatch(ctx, msg)
		case <-a.signal:
			a.signals.Add(1)
			a.safely(ctx, "signal", a.onSignal)
		}
	}
}

// dispatch routes a message to its handler. Unmapped events are logged and dropped.
func (a *Actor) dispatch(ctx context.Context, msg events.Message) {
	h, ok := a.handlers[msg.Event]
	if !ok {
		a.unmapped.Add(1)
		a.log.Warn("dropping unmapped event", "event", msg.Event, "iparam", msg.IParam)
		return
	}
	a.handled.Add(1)
	a.safely(ctx, msg.Event.String(), func(ctx context.Context) { h(ctx, msg) })
}

// runSetup reports a panicking setup as an error so only this actor ends.
func (a *Actor) runSetup(ctx context.Context) (err error) {
	if a.setup == nil {
		return nil
	}
	defer func() {
		if r := recover(); r != nil {
			a.panics.Add(1)
			err = fmt.Errorf("panic: %v", r)
		}
	}()
	return a.setup(ctx)
}

func (a *Actor) safely(ctx context.Context, what string, fn func(ctx context.Context)) {
	defer func() {
		if r := recover(); r != nil {
			a.panics.Add(1)
			a.log.Error("panic in actor handler", "handler", what, "panic", r)
		}
	}()
	fn(ctx)
}

func (a *Actor) runTimer(ctx context.Context, t timer) {
	ticker := time.NewTicker(t.interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-a.done:
			return
		case <-ticker.C:
			if err := a.Post(t.msg); err != nil {
				a.log.Debug("timer tick dropped", "error", err)
			}
		}
	}
}

// Stats is a point-in-time snapshot of actor counters.
type Stats struct {
	Name     string `json:"name"`
	State    State  `json:"state"`
	Error    string `json:"error,omitempty"`
	Queued   int    `json:"queued"`
	Capacity int    `json:"capacity"`
	Posted   uint64 `json:"posted"`
	Dropped  uint64 `json:"dropped"`
	Handled  uint64 `json:"handled"`
	Unmapped uint64 `json:"unmapped"`
	Signals  uint64 `json:"signals"`
	Panics   uint64 `json:"panics,omitzero"`
}

// Stats returns the current counters.
func (a *Actor) Stats() Stats {
	s := Stats{
		Name:     a.name,
		State:    a.State(),
		Queued:   len(a.mailbox),
		Capacity: cap(a.mailbox),
		Posted:   a.posted.Load(),
		Dropped:  a.dropped.Load(),
		Handled:  a.handled.Load(),
		Unmapped: a.unmapped.Load(),
		Signals:  a.signals.Load(),
		Panics:   a.panics.Load(),
	}
	if err := a.Err(); err != nil {
		s.Error = err.Error()
	}
	return s
}
