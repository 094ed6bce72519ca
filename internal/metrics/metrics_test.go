package metrics

import (
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	dto "github.com/prometheus/client_model/go"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/bft-labs/knockcam/internal/app"
	"github.com/bft-labs/knockcam/internal/domain"
)

// value returns the counter or gauge value of the series name{labels}.
func value(t *testing.T, reg *prometheus.Registry, name string, labels map[string]string) float64 {
	t.Helper()
	families, err := reg.Gather()
	require.NoError(t, err)
	for _, f := range families {
		if f.GetName() != name {
			continue
		}
		for _, m := range f.GetMetric() {
			if !matches(m, labels) {
				continue
			}
			switch {
			case m.Counter != nil:
				return m.GetCounter().GetValue()
			case m.Gauge != nil:
				return m.GetGauge().GetValue()
			case m.Histogram != nil:
				return float64(m.GetHistogram().GetSampleCount())
			}
		}
	}
	t.Fatalf("series %s%v not found", name, labels)
	return 0
}

func matches(m *dto.Metric, labels map[string]string) bool {
	found := 0
	for _, lp := range m.GetLabel() {
		if want, ok := labels[lp.GetName()]; ok {
			if lp.GetValue() != want {
				return false
			}
			found++
		}
	}
	return found == len(labels)
}

func newRegistered(t *testing.T) (*Metrics, *prometheus.Registry) {
	t.Helper()
	reg := prometheus.NewRegistry()
	m := New(reg)
	require.NoError(t, m.Register())
	return m, reg
}

func TestMetrics_RegisterTwice(t *testing.T) {
	m, _ := newRegistered(t)
	assert.NoError(t, m.Register())
}

func TestMetrics_WatcherObserver(t *testing.T) {
	m, reg := newRegistered(t)

	var _ app.WatcherObserver = m
	m.OnActivation(domain.ActivationEvent{At: time.Now()})
	m.OnActivation(domain.ActivationEvent{At: time.Now()})

	delivered := domain.DeliveredOutcome(200)
	delivered.Duration = 20 * time.Millisecond
	m.OnDispatch(delivered)
	m.OnDispatch(domain.RejectedOutcome(503))
	m.OnDispatch(domain.TransportFailureOutcome(domain.ReasonTimeout, errors.New("deadline")))
	m.OnFault(errors.New("line lost"))

	assert.Equal(t, 2.0, value(t, reg, "knockcam_knocks_total", nil))
	assert.Equal(t, 1.0, value(t, reg, "knockcam_dispatch_total", map[string]string{"outcome": "delivered"}))
	assert.Equal(t, 1.0, value(t, reg, "knockcam_dispatch_total", map[string]string{"outcome": "rejected"}))
	assert.Equal(t, 1.0, value(t, reg, "knockcam_dispatch_total", map[string]string{"outcome": "transport_failure"}))
	assert.Equal(t, 1.0, value(t, reg, "knockcam_dispatch_failures_total", map[string]string{"reason": "timeout"}))
	assert.Equal(t, 3.0, value(t, reg, "knockcam_dispatch_duration_seconds", nil))
	assert.Equal(t, 1.0, value(t, reg, "knockcam_watcher_degraded_total", nil))
}

func TestMetrics_WatcherState(t *testing.T) {
	m, reg := newRegistered(t)
	state := func(s app.WatcherState) float64 {
		return value(t, reg, "knockcam_watcher_state", map[string]string{"state": s.String()})
	}

	assert.Equal(t, 1.0, state(app.StateWaitingForEvent))

	m.OnWatcherState(app.StateWaitingForEvent, app.StateDegraded)

	assert.Equal(t, 0.0, state(app.StateWaitingForEvent))
	assert.Equal(t, 1.0, state(app.StateDegraded))
	assert.Equal(t, 0.0, state(app.StateSettling))
}

func TestMetrics_AgentState(t *testing.T) {
	m, reg := newRegistered(t)

	var _ app.EventEmitter = m
	m.OnStateChange(app.StateStopped, app.StateStarting, "test")
	m.OnStateChange(app.StateStarting, app.StateRunning, "test")

	assert.Equal(t, 1.0, value(t, reg, "knockcam_agent_state", map[string]string{"state": "Running"}))
	assert.Equal(t, 0.0, value(t, reg, "knockcam_agent_state", map[string]string{"state": "Stopped"}))
}

func TestMetrics_Stream(t *testing.T) {
	m, reg := newRegistered(t)

	var _ app.StreamObserver = m
	done1 := m.StreamClientConnected()
	done2 := m.StreamClientConnected()
	m.OnFrame(1024)
	m.OnFrame(2048)
	m.OnFrameError(errors.New("sensor timeout"))

	assert.Equal(t, 2.0, value(t, reg, "knockcam_stream_clients", nil))
	done1()
	done1()
	assert.Equal(t, 1.0, value(t, reg, "knockcam_stream_clients", nil))
	done2()

	assert.Equal(t, 0.0, value(t, reg, "knockcam_stream_clients", nil))
	assert.Equal(t, 2.0, value(t, reg, "knockcam_stream_frames_total", nil))
	assert.Equal(t, 1.0, value(t, reg, "knockcam_stream_frame_errors_total", nil))
}

func TestMetrics_CaptureAndHTTP(t *testing.T) {
	m, reg := newRegistered(t)

	m.ObserveCapture(nil)
	m.ObserveCapture(errors.New("camera gone"))
	m.ObserveHTTP("capture", http.MethodPost, 500, 3*time.Millisecond)

	assert.Equal(t, 1.0, value(t, reg, "knockcam_capture_total", map[string]string{"status": "ok"}))
	assert.Equal(t, 1.0, value(t, reg, "knockcam_capture_total", map[string]string{"status": "error"}))
	assert.Equal(t, 1.0, value(t, reg, "knockcam_http_requests_total",
		map[string]string{"handler": "capture", "method": "POST", "status": "500"}))
	assert.Equal(t, 1.0, value(t, reg, "knockcam_http_request_duration_seconds",
		map[string]string{"handler": "capture", "method": "POST"}))
}

func TestHandler(t *testing.T) {
	m, reg := newRegistered(t)
	m.OnActivation(domain.ActivationEvent{})

	rec := httptest.NewRecorder()
	Handler(reg).ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/metrics", nil))

	assert.Equal(t, http.StatusOK, rec.Code)
	body, _ := io.ReadAll(rec.Body)
	assert.Contains(t, string(body), "knockcam_knocks_total 1")
}

func TestMetrics_RegisterAdoptsExistingCollectors(t *testing.T) {
	reg := prometheus.NewRegistry()
	first := New(reg)
	require.NoError(t, first.Register())

	second := New(reg)
	require.NoError(t, second.Register())

	second.OnActivation(domain.ActivationEvent{At: time.Now()})
	second.OnDispatch(domain.RejectedOutcome(503))
	first.OnActivation(domain.ActivationEvent{At: time.Now()})

	assert.Equal(t, 2.0, value(t, reg, "knockcam_knocks_total", nil))
	assert.Equal(t, 1.0, value(t, reg, "knockcam_dispatch_total", map[string]string{"outcome": "rejected"}))
}

func TestMetrics_RegisterConflictingCollector(t *testing.T) {
	reg := prometheus.NewRegistry()
	require.NoError(t, reg.Register(prometheus.NewGaugeVec(prometheus.GaugeOpts{
		Namespace: namespace,
		Name:      "dispatch_total",
		Help:      "Knock notifications by outcome.",
	}, []string{"outcome"})))

	assert.Error(t, New(reg).Register())
}

func TestMetrics_NilReceiver(t *testing.T) {
	var m *Metrics

	var observer app.StreamObserver = m
	assert.NotPanics(t, func() {
		observer.OnFrame(10)
		observer.OnFrameError(errors.New("mmal: timeout"))
		m.OnWatcherState(app.StateWaitingForEvent, app.StateDispatching)
		m.OnActivation(domain.ActivationEvent{})
		m.OnDispatch(domain.DeliveredOutcome(200))
		m.OnFault(errors.New("line lost"))
		m.OnStateChange(app.StateStopped, app.StateStarting, "")
		m.ObserveCapture(nil)
		m.ObserveHTTP("health", http.MethodGet, http.StatusOK, time.Millisecond)
		m.StreamClientConnected()()
	})
}
