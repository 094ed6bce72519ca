package app

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/bft-labs/knockcam/internal/clock"
	"github.com/bft-labs/knockcam/internal/domain"
	"github.com/bft-labs/knockcam/internal/ports"
)

// Default watcher timings.
const (
	DefaultSettleDelay     = 200 * time.Millisecond
	DefaultDegradedBackoff = 1 * time.Second
)

// WatcherState is the state of the knock watcher loop.
type WatcherState int

const (
	StateWaitingForEvent WatcherState = iota
	StateDispatching
	StateSettling
	StateDegraded
)

// String returns a human-readable representation of the state.
func (s WatcherState) String() string {
	switch s {
	case StateWaitingForEvent:
		return "WaitingForEvent"
	case StateDispatching:
		return "Dispatching"
	case StateSettling:
		return "Settling"
	case StateDegraded:
		return "Degraded"
	default:
		return "Unknown"
	}
}

// ActivationSource yields debounced activations. *Debouncer implements it.
type ActivationSource interface {
	NextActivation(ctx context.Context) (domain.ActivationEvent, error)
}

// WatcherObserver is notified from the watcher goroutine. Implementations
// must return quickly.
type WatcherObserver interface {
	OnWatcherState(previous, current WatcherState)
	OnActivation(event domain.ActivationEvent)
	OnDispatch(outcome domain.DispatchOutcome)
	OnFault(err error)
}

// WatcherConfig contains the watcher timings.
type WatcherConfig struct {
	SettleDelay     time.Duration
	DegradedBackoff time.Duration
}

// WatcherSnapshot is a point-in-time view of the watcher for status reporting.
type WatcherSnapshot struct {
	State             WatcherState
	Activations       uint64
	Delivered         uint64
	Rejected          uint64
	TransportFailures uint64
	Faults            uint64
	LastActivation    time.Time
	LastOutcome       domain.DispatchOutcome
	LastFault         string
}

// Watcher is the long-running knock loop: wait for an activation, dispatch
// it, settle, repeat. No fault escapes Run; faults move the loop to
// StateDegraded and it resumes after a fixed backoff.
type Watcher struct {
	config   WatcherConfig
	source   ActivationSource
	notifier ports.Notifier
	clock    clock.Clock
	logger   ports.Logger
	observer WatcherObserver

	mu       sync.RWMutex
	snapshot WatcherSnapshot
}

// NewWatcher creates a watcher. observer may be nil.
func NewWatcher(
	config WatcherConfig,
	source ActivationSource,
	notifier ports.Notifier,
	clk clock.Clock,
	logger ports.Logger,
	observer WatcherObserver,
) *Watcher {
	if config.SettleDelay <= 0 {
		config.SettleDelay = DefaultSettleDelay
	}
	if config.DegradedBackoff <= 0 {
		config.DegradedBackoff = DefaultDegradedBackoff
	}
	if clk == nil {
		clk = clock.Real()
	}
	return &Watcher{
		config:   config,
		source:   source,
		notifier: notifier,
		clock:    clk,
		logger:   logger,
		observer: observer,
	}
}

// Run executes the loop until ctx is cancelled and then returns ctx.Err().
func (w *Watcher) Run(ctx context.Context) error {
	w.logger.Info("knock watcher started",
		ports.Duration("settle", w.config.SettleDelay),
		ports.Duration("degraded_backoff", w.config.DegradedBackoff),
	)

	state := StateWaitingForEvent
	var event domain.ActivationEvent
	for {
		if err := ctx.Err(); err != nil {
			w.logger.Info("knock watcher stopped")
			return err
		}
		w.setState(state)
		state, event = w.step(ctx, state, event)
	}
}

// Snapshot returns the current watcher view. Safe for concurrent use.
func (w *Watcher) Snapshot() WatcherSnapshot {
	w.mu.RLock()
	defer w.mu.RUnlock()
	return w.snapshot
}

// step runs one state and returns the next. A panic inside any state is
// recovered and treated as a fault.
func (w *Watcher) step(ctx context.Context, state WatcherState, event domain.ActivationEvent) (next WatcherState, nextEvent domain.ActivationEvent) {
	defer func() {
		if r := recover(); r != nil {
			w.fault(fmt.Errorf("panic in %s: %v", state, r))
			next = StateDegraded
		}
	}()

	switch state {
	case StateWaitingForEvent:
		ev, err := w.source.NextActivation(ctx)
		if err != nil {
			if ctx.Err() != nil {
				return StateWaitingForEvent, event
			}
			w.fault(err)
			return StateDegraded, event
		}
		w.activated(ev)
		return StateDispatching, ev

	case StateDispatching:
		w.dispatched(w.notifier.Dispatch(ctx, event))
		return StateSettling, event

	case StateSettling:
		w.wait(ctx, w.config.SettleDelay)
		return StateWaitingForEvent, event

	case StateDegraded:
		w.wait(ctx, w.config.DegradedBackoff)
		return StateWaitingForEvent, event

	default:
		w.fault(fmt.Errorf("unknown watcher state %d", state))
		return StateDegraded, event
	}
}

func (w *Watcher) wait(ctx context.Context, d time.Duration) {
	select {
	case <-ctx.Done():
	case <-w.clock.After(d):
	}
}

func (w *Watcher) setState(state WatcherState) {
	w.mu.Lock()
	previous := w.snapshot.State
	w.snapshot.State = state
	w.mu.Unlock()

	if previous != state && w.observer != nil {
		w.observer.OnWatcherState(previous, state)
	}
}

func (w *Watcher) activated(ev domain.ActivationEvent) {
	w.mu.Lock()
	w.snapshot.Activations++
	w.snapshot.LastActivation = ev.At
	w.mu.Unlock()

	w.logger.Info("knock detected, notifying backend", ports.Time("at", ev.At))
	if w.observer != nil {
		w.observer.OnActivation(ev)
	}
}

func (w *Watcher) dispatched(outcome domain.DispatchOutcome) {
	w.mu.Lock()
	w.snapshot.LastOutcome = outcome
	switch outcome.Kind {
	case domain.Delivered:
		w.snapshot.Delivered++
	case domain.RemoteRejected:
		w.snapshot.Rejected++
	case domain.TransportFailure:
		w.snapshot.TransportFailures++
	}
	w.mu.Unlock()

	switch outcome.Kind {
	case domain.Delivered:
		w.logger.Info("backend notified",
			ports.Int("status", outcome.StatusCode),
			ports.Duration("duration", outcome.Duration),
		)
	case domain.RemoteRejected:
		w.logger.Warn("backend rejected notification",
			ports.Int("status", outcome.StatusCode),
			ports.Duration("duration", outcome.Duration),
		)
	default:
		w.logger.Error("backend unreachable",
			ports.String("reason", outcome.Reason),
			ports.Err(outcome.Err),
		)
	}

	if w.observer != nil {
		w.observer.OnDispatch(outcome)
	}
}

func (w *Watcher) fault(err error) {
	w.mu.Lock()
	w.snapshot.Faults++
	w.snapshot.LastFault = err.Error()
	w.mu.Unlock()

	w.logger.Error("knock watcher degraded",
		ports.Err(err),
		ports.Duration("retry_in", w.config.DegradedBackoff),
	)
	if w.observer != nil {
		w.observer.OnFault(err)
	}
}
