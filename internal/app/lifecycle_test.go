package app

import (
	"context"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/bft-labs/knockcam/internal/domain"
)

// mockEmitter records lifecycle state changes.
type mockEmitter struct {
	mu     sync.Mutex
	events []stateChangeEvent
}

type stateChangeEvent struct {
	previous State
	current  State
	reason   string
}

func (m *mockEmitter) OnStateChange(previous, current State, reason string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.events = append(m.events, stateChangeEvent{previous, current, reason})
}

func (m *mockEmitter) Events() []stateChangeEvent {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]stateChangeEvent{}, m.events...)
}

var allStates = []State{StateStopped, StateStarting, StateRunning, StateStopping, StateCrashed}

func TestState_String(t *testing.T) {
	want := []string{"Stopped", "Starting", "Running", "Stopping", "Crashed"}
	for i, s := range allStates {
		assert.Equal(t, want[i], s.String())
	}
	assert.Equal(t, "Unknown", State(99).String())
}

func TestTransitions_CoverEveryState(t *testing.T) {
	for _, s := range allStates {
		rule, ok := transitions[s]
		require.True(t, ok, "no rule for %s", s)
		assert.NotEmpty(t, rule.next, "%s is a dead end", s)
		assert.Error(t, rule.refuse, "%s has no refusal error", s)
		assert.NotContains(t, rule.next, s, "%s transitions to itself", s)
	}
}

func TestLifecycle_TransitionMatrix(t *testing.T) {
	// legal[from] lists every reachable successor; every other pair is refused.
	legal := map[State][]State{
		StateStopped:  {StateStarting},
		StateStarting: {StateRunning, StateStopping, StateCrashed},
		StateRunning:  {StateStopping, StateCrashed},
		StateStopping: {StateStopped, StateCrashed},
		StateCrashed:  {StateStarting},
	}
	refusal := map[State]error{
		StateStopped:  domain.ErrNotRunning,
		StateStarting: domain.ErrAlreadyRunning,
		StateRunning:  domain.ErrAlreadyRunning,
		StateStopping: domain.ErrAlreadyRunning,
		StateCrashed:  domain.ErrNotRunning,
	}

	for _, from := range allStates {
		for _, to := range allStates {
			t.Run(from.String()+"->"+to.String(), func(t *testing.T) {
				emitter := &mockEmitter{}
				l := NewLifecycle(mockLogger{}, emitter)
				l.state = from

				err := l.TransitionTo(to, "matrix")

				if containsState(legal[from], to) {
					require.NoError(t, err)
					assert.Equal(t, to, l.State())
					assert.Equal(t, []stateChangeEvent{{from, to, "matrix"}}, emitter.Events())
					return
				}
				assert.ErrorIs(t, err, refusal[from])
				assert.Equal(t, from, l.State())
				assert.Empty(t, emitter.Events())
			})
		}
	}
}

func containsState(states []State, s State) bool {
	for _, x := range states {
		if x == s {
			return true
		}
	}
	return false
}

func TestLifecycle_FullCycleEvents(t *testing.T) {
	emitter := &mockEmitter{}
	l := NewLifecycle(mockLogger{}, nil)
	l.emitter = emitter

	steps := []struct {
		to     State
		reason string
	}{
		{StateStarting, "start requested"},
		{StateRunning, "workers launched"},
		{StateCrashed, "http server failed"},
		{StateStarting, "restart"},
		{StateRunning, "workers launched"},
		{StateStopping, "stop requested"},
		{StateStopped, "workers joined"},
	}
	for _, s := range steps {
		require.NoError(t, l.TransitionTo(s.to, s.reason))
	}

	events := emitter.Events()
	require.Len(t, events, len(steps))
	prev := StateStopped
	for i, s := range steps {
		assert.Equal(t, stateChangeEvent{prev, s.to, s.reason}, events[i])
		prev = s.to
	}
}

func TestLifecycle_CanStartCanStop(t *testing.T) {
	tests := []struct {
		state    State
		canStart bool
		canStop  bool
	}{
		{StateStopped, true, false},
		{StateStarting, false, true},
		{StateRunning, false, true},
		{StateStopping, false, false},
		{StateCrashed, true, false},
	}
	for _, tt := range tests {
		l := NewLifecycle(mockLogger{}, nil)
		l.state = tt.state
		assert.Equal(t, tt.canStart, l.CanStart(), "CanStart in %s", tt.state)
		assert.Equal(t, tt.canStop, l.CanStop(), "CanStop in %s", tt.state)
	}
}

func TestLifecycle_Cancel(t *testing.T) {
	l := NewLifecycle(mockLogger{}, nil)
	assert.NotPanics(t, l.Cancel)

	ctx, cancel := context.WithCancel(context.Background())
	l.SetCancel(cancel)
	assert.NoError(t, ctx.Err())

	l.Cancel()
	assert.ErrorIs(t, ctx.Err(), context.Canceled)
}

func TestLifecycle_Go_TracksWorkers(t *testing.T) {
	l := NewLifecycle(mockLogger{}, nil)

	var finished atomic.Int32
	release := make(chan struct{})
	for i := 0; i < 3; i++ {
		l.Go(func() {
			<-release
			finished.Add(1)
		})
	}

	assert.ErrorIs(t, l.WaitWithTimeout(10*time.Millisecond), domain.ErrShutdownTimeout)

	close(release)
	require.NoError(t, l.WaitWithTimeout(time.Second))
	assert.Equal(t, int32(3), finished.Load())
}

func TestLifecycle_Go_CancelJoinsWorkers(t *testing.T) {
	l := NewLifecycle(mockLogger{}, nil)
	ctx, cancel := context.WithCancel(context.Background())
	l.SetCancel(cancel)

	for i := 0; i < 2; i++ {
		l.Go(func() { <-ctx.Done() })
	}

	l.Cancel()
	assert.NoError(t, l.WaitWithTimeout(time.Second))
}

func TestLifecycle_WaitWithTimeout_NoWorkers(t *testing.T) {
	l := NewLifecycle(mockLogger{}, nil)
	assert.NoError(t, l.WaitWithTimeout(time.Second))
}

func TestLifecycle_SingleStarterWins(t *testing.T) {
	l := NewLifecycle(mockLogger{}, nil)

	var wins atomic.Int32
	var wg sync.WaitGroup
	for i := 0; i < 8; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			if l.TransitionTo(StateStarting, "race") == nil {
				wins.Add(1)
			}
			_ = l.State()
		}()
	}
	wg.Wait()

	assert.Equal(t, int32(1), wins.Load())
	assert.Equal(t, StateStarting, l.State())
}
