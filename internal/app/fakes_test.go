package app

import (
	"context"
	"errors"
	"net/http"
	"sync"
	"time"

	"github.com/bft-labs/knockcam/internal/domain"
	"github.com/bft-labs/knockcam/internal/media"
	"github.com/bft-labs/knockcam/internal/ports"
)

var epoch = time.Date(2026, 3, 14, 9, 0, 0, 0, time.UTC)

// mockLogger implements ports.Logger for testing.
type mockLogger struct{}

func (mockLogger) Debug(msg string, fields ...ports.Field) {}
func (mockLogger) Info(msg string, fields ...ports.Field)  {}
func (mockLogger) Warn(msg string, fields ...ports.Field)  {}
func (mockLogger) Error(msg string, fields ...ports.Field) {}

// scriptedLine replays a fixed list of edges and then blocks until the
// context is done.
type scriptedLine struct {
	mu    sync.Mutex
	edges []domain.Edge
	errs  []error
}

func (l *scriptedLine) WaitForEdge(ctx context.Context) (domain.Edge, error) {
	l.mu.Lock()
	if len(l.errs) > 0 {
		err := l.errs[0]
		l.errs = l.errs[1:]
		l.mu.Unlock()
		return domain.Edge{}, err
	}
	if len(l.edges) > 0 {
		e := l.edges[0]
		l.edges = l.edges[1:]
		l.mu.Unlock()
		return e, nil
	}
	l.mu.Unlock()
	<-ctx.Done()
	return domain.Edge{}, ctx.Err()
}

func (l *scriptedLine) Close() error { return nil }

func falling(offset time.Duration) domain.Edge {
	return domain.Edge{Kind: domain.EdgeFalling, At: epoch.Add(offset)}
}

func rising(offset time.Duration) domain.Edge {
	return domain.Edge{Kind: domain.EdgeRising, At: epoch.Add(offset)}
}

// sourceFunc adapts a function to ActivationSource.
type sourceFunc func(ctx context.Context) (domain.ActivationEvent, error)

func (f sourceFunc) NextActivation(ctx context.Context) (domain.ActivationEvent, error) {
	return f(ctx)
}

// recordingNotifier records every dispatched event and answers with outcome.
type recordingNotifier struct {
	mu      sync.Mutex
	events  []domain.ActivationEvent
	outcome domain.DispatchOutcome
	panics  bool
}

func (n *recordingNotifier) Dispatch(ctx context.Context, ev domain.ActivationEvent) domain.DispatchOutcome {
	n.mu.Lock()
	n.events = append(n.events, ev)
	panics := n.panics
	n.mu.Unlock()
	if panics {
		panic("notifier exploded")
	}
	return n.outcome
}

func (n *recordingNotifier) Events() []domain.ActivationEvent {
	n.mu.Lock()
	defer n.mu.Unlock()
	return append([]domain.ActivationEvent{}, n.events...)
}

// fakeCamera returns a solid frame or the next scripted failure.
type fakeCamera struct {
	mu     sync.Mutex
	calls  int
	fail   map[int]bool
	onCall func(n int)
}

var errSensorGone = errors.New("sensor not responding")

func (c *fakeCamera) CaptureFrame(ctx context.Context) (media.RawImage, error) {
	c.mu.Lock()
	c.calls++
	n := c.calls
	fail := c.fail[n]
	hook := c.onCall
	c.mu.Unlock()

	if hook != nil {
		hook(n)
	}
	if fail {
		return media.RawImage{}, errSensorGone
	}
	return solidFrame(8, 8), nil
}

func (c *fakeCamera) Close() error { return nil }

func (c *fakeCamera) Calls() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.calls
}

func solidFrame(w, h int) media.RawImage {
	pix := make([]byte, w*h*3)
	for i := range pix {
		pix[i] = byte(i % 251)
	}
	return media.RawImage{Width: w, Height: h, Stride: w * 3, Pix: pix}
}

// stubServer is a Server whose ListenAndServe blocks until Shutdown.
type stubServer struct {
	once     sync.Once
	closed   chan struct{}
	failWith error
}

func newStubServer() *stubServer {
	return &stubServer{closed: make(chan struct{})}
}

func (s *stubServer) ListenAndServe() error {
	if s.failWith != nil {
		return s.failWith
	}
	<-s.closed
	return http.ErrServerClosed
}

func (s *stubServer) Shutdown(ctx context.Context) error {
	s.once.Do(func() { close(s.closed) })
	return nil
}
