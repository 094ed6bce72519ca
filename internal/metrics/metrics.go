// Package metrics exposes the knock pipeline and the HTTP surface as
// Prometheus collectors. Metrics implements the observer interfaces of the
// app package so the watcher and the frame source report into it directly.
package metrics

import (
	"errors"
	"fmt"
	"net/http"
	"strconv"
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/bft-labs/knockcam/internal/app"
	"github.com/bft-labs/knockcam/internal/domain"
)

const namespace = "knockcam"

var watcherStates = []app.WatcherState{
	app.StateWaitingForEvent,
	app.StateDispatching,
	app.StateSettling,
	app.StateDegraded,
}

var agentStates = []app.State{
	app.StateStopped,
	app.StateStarting,
	app.StateRunning,
	app.StateStopping,
	app.StateCrashed,
}

// Metrics holds every knockcam collector.
type Metrics struct {
	mu         sync.Mutex
	registerer prometheus.Registerer
	registered bool

	knocks           prometheus.Counter
	dispatches       *prometheus.CounterVec
	dispatchFailures *prometheus.CounterVec
	dispatchDuration prometheus.Histogram
	degraded         prometheus.Counter
	watcherState     *prometheus.GaugeVec
	agentState       *prometheus.GaugeVec

	streamFrames      prometheus.Counter
	streamFrameErrors prometheus.Counter
	streamClients     prometheus.Gauge
	captures          *prometheus.CounterVec

	httpRequests *prometheus.CounterVec
	httpDuration *prometheus.HistogramVec
}

// New creates the collectors. A nil registerer uses the default registry.
func New(registerer prometheus.Registerer) *Metrics {
	if registerer == nil {
		registerer = prometheus.DefaultRegisterer
	}
	return &Metrics{
		registerer: registerer,

		knocks: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "knocks_total",
			Help:      "Debounced knock activations.",
		}),
		dispatches: newCounterVec("dispatch_total",
			"Knock notifications by outcome.", "outcome"),
		dispatchFailures: newCounterVec("dispatch_failures_total",
			"Knock notifications that never reached the backend, by reason.", "reason"),
		dispatchDuration: prometheus.NewHistogram(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "dispatch_duration_seconds",
			Help:      "Duration of one knock notification attempt.",
			Buckets:   []float64{.01, .025, .05, .1, .25, .5, 1, 2, 3, 5},
		}),
		degraded: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "watcher_degraded_total",
			Help:      "Times the knock watcher entered the degraded state.",
		}),
		watcherState: newGaugeVec("watcher_state",
			"Current knock watcher state (1 for the active state).", "state"),
		agentState: newGaugeVec("agent_state",
			"Current agent lifecycle state (1 for the active state).", "state"),

		streamFrames: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "stream_frames_total",
			Help:      "Frames sent on the live feed.",
		}),
		streamFrameErrors: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "stream_frame_errors_total",
			Help:      "Live feed frames skipped because capture or encoding failed.",
		}),
		streamClients: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "stream_clients",
			Help:      "Connected live feed clients.",
		}),
		captures: newCounterVec("capture_total",
			"Single-shot captures by status.", "status"),

		httpRequests: newCounterVec("http_requests_total",
			"HTTP requests by handler, method and status.", "handler", "method", "status"),
		httpDuration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "http_request_duration_seconds",
			Help:      "HTTP request duration in seconds.",
			Buckets:   prometheus.DefBuckets,
		}, []string{"handler", "method"}),
	}
}

func newCounterVec(name, help string, labels ...string) *prometheus.CounterVec {
	return prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace,
		Name:      name,
		Help:      help,
	}, labels)
}

func newGaugeVec(name, help string, labels ...string) *prometheus.GaugeVec {
	return prometheus.NewGaugeVec(prometheus.GaugeOpts{
		Namespace: namespace,
		Name:      name,
		Help:      help,
	}, labels)
}

// Register registers the collectors. Safe to call multiple times.
func (m *Metrics) Register() error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.registered {
		return nil
	}

	regs := []error{
		register(m.registerer, &m.knocks),
		register(m.registerer, &m.dispatches),
		register(m.registerer, &m.dispatchFailures),
		register(m.registerer, &m.dispatchDuration),
		register(m.registerer, &m.degraded),
		register(m.registerer, &m.watcherState),
		register(m.registerer, &m.agentState),
		register(m.registerer, &m.streamFrames),
		register(m.registerer, &m.streamFrameErrors),
		register(m.registerer, &m.streamClients),
		register(m.registerer, &m.captures),
		register(m.registerer, &m.httpRequests),
		register(m.registerer, &m.httpDuration),
	}
	if err := errors.Join(regs...); err != nil {
		return err
	}

	for _, s := range watcherStates {
		m.watcherState.WithLabelValues(s.String()).Set(0)
	}
	m.watcherState.WithLabelValues(app.StateWaitingForEvent.String()).Set(1)
	for _, s := range agentStates {
		m.agentState.WithLabelValues(s.String()).Set(0)
	}
	m.agentState.WithLabelValues(app.StateStopped.String()).Set(1)

	m.registered = true
	return nil
}

// register registers *c, or adopts the collector already registered under
// the same descriptor so updates reach the scraped series.
func register[T prometheus.Collector](r prometheus.Registerer, c *T) error {
	err := r.Register(*c)
	if err == nil {
		return nil
	}
	var already prometheus.AlreadyRegisteredError
	if !errors.As(err, &already) {
		return err
	}
	existing, ok := already.ExistingCollector.(T)
	if !ok {
		return fmt.Errorf("collector registered with a different type: %w", err)
	}
	*c = existing
	return nil
}

// The observer methods below are no-ops on a nil *Metrics.

// OnWatcherState implements app.WatcherObserver.
func (m *Metrics) OnWatcherState(previous, current app.WatcherState) {
	if m == nil {
		return
	}
	m.watcherState.WithLabelValues(previous.String()).Set(0)
	m.watcherState.WithLabelValues(current.String()).Set(1)
}

// OnActivation implements app.WatcherObserver.
func (m *Metrics) OnActivation(domain.ActivationEvent) {
	if m == nil {
		return
	}
	m.knocks.Inc()
}

// OnDispatch implements app.WatcherObserver.
func (m *Metrics) OnDispatch(outcome domain.DispatchOutcome) {
	if m == nil {
		return
	}
	m.dispatches.WithLabelValues(outcome.Kind.String()).Inc()
	if outcome.Kind == domain.TransportFailure {
		m.dispatchFailures.WithLabelValues(outcome.Reason).Inc()
	}
	m.dispatchDuration.Observe(outcome.Duration.Seconds())
}

// OnFault implements app.WatcherObserver.
func (m *Metrics) OnFault(error) {
	if m == nil {
		return
	}
	m.degraded.Inc()
}

// OnStateChange implements app.EventEmitter.
func (m *Metrics) OnStateChange(previous, current app.State, reason string) {
	if m == nil {
		return
	}
	m.agentState.WithLabelValues(previous.String()).Set(0)
	m.agentState.WithLabelValues(current.String()).Set(1)
}

// OnFrame implements app.StreamObserver.
func (m *Metrics) OnFrame(int) {
	if m == nil {
		return
	}
	m.streamFrames.Inc()
}

// OnFrameError implements app.StreamObserver.
func (m *Metrics) OnFrameError(error) {
	if m == nil {
		return
	}
	m.streamFrameErrors.Inc()
}

// StreamClientConnected tracks a live feed client for its lifetime. Call
// the returned function when the client goes away.
func (m *Metrics) StreamClientConnected() (disconnected func()) {
	if m == nil {
		return func() {}
	}
	m.streamClients.Inc()
	var once sync.Once
	return func() { once.Do(m.streamClients.Dec) }
}

// ObserveCapture counts one single-shot capture.
func (m *Metrics) ObserveCapture(err error) {
	if m == nil {
		return
	}
	status := "ok"
	if err != nil {
		status = "error"
	}
	m.captures.WithLabelValues(status).Inc()
}

// ObserveHTTP records one served request.
func (m *Metrics) ObserveHTTP(handler, method string, status int, duration time.Duration) {
	if m == nil {
		return
	}
	m.httpDuration.WithLabelValues(handler, method).Observe(duration.Seconds())
	m.httpRequests.WithLabelValues(handler, method, strconv.Itoa(status)).Inc()
}

// Handler serves the collectors of gatherer in the Prometheus text format.
func Handler(gatherer prometheus.Gatherer) http.Handler {
	if gatherer == nil {
		gatherer = prometheus.DefaultGatherer
	}
	return promhttp.HandlerFor(gatherer, promhttp.HandlerOpts{})
}
