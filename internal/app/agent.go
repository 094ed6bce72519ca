package app

import (
	"context"
	"errors"
	"net/http"
	"sync"
	"time"

	"github.com/bft-labs/knockcam/internal/domain"
	"github.com/bft-labs/knockcam/internal/ports"
)

// Server is the HTTP surface run by the agent. *http.Server implements it.
type Server interface {
	ListenAndServe() error
	Shutdown(ctx context.Context) error
}

// AgentConfig contains the agent settings.
type AgentConfig struct {
	ShutdownGrace time.Duration
}

// Agent supervises the knock watcher and the HTTP server. Both run until
// Stop is called or the server fails to serve.
type Agent struct {
	config    AgentConfig
	lifecycle *Lifecycle
	watcher   *Watcher
	server    Server
	logger    ports.Logger

	mu       sync.Mutex
	crashed  chan struct{}
	crashErr error
}

// NewAgent creates an agent in StateStopped. emitter may be nil.
func NewAgent(config AgentConfig, watcher *Watcher, server Server, logger ports.Logger, emitter EventEmitter) *Agent {
	if config.ShutdownGrace <= 0 {
		config.ShutdownGrace = DefaultShutdownGrace
	}
	return &Agent{
		config:    config,
		lifecycle: NewLifecycle(logger, emitter),
		watcher:   watcher,
		server:    server,
		logger:    logger,
	}
}

// Start launches the watcher and the server in the background and returns
// immediately.
func (a *Agent) Start(ctx context.Context) error {
	a.mu.Lock()
	defer a.mu.Unlock()

	if !a.lifecycle.CanStart() {
		return domain.ErrAlreadyRunning
	}
	if err := a.lifecycle.TransitionTo(StateStarting, "Start() called"); err != nil {
		return err
	}

	runCtx, cancel := context.WithCancel(ctx)
	a.lifecycle.SetCancel(cancel)
	a.crashed = make(chan struct{})
	a.crashErr = nil
	crashed := a.crashed

	if err := a.lifecycle.TransitionTo(StateRunning, "workers starting"); err != nil {
		cancel()
		return err
	}

	a.lifecycle.Go(func() {
		_ = a.watcher.Run(runCtx)
	})

	a.lifecycle.Go(func() {
		err := a.server.ListenAndServe()
		if err == nil || errors.Is(err, http.ErrServerClosed) {
			return
		}
		a.logger.Error("http server failed", ports.Err(err))
		a.mu.Lock()
		a.crashErr = err
		a.mu.Unlock()
		cancel()
		_ = a.lifecycle.TransitionTo(StateCrashed, err.Error())
		close(crashed)
	})

	return nil
}

// Crashed is closed when a worker fails on its own. It is nil before the
// first Start.
func (a *Agent) Crashed() <-chan struct{} {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.crashed
}

// Stop cancels the watcher, shuts the server down and waits for both within
// the shutdown grace. After a crash it only joins the workers and returns
// the crash error.
func (a *Agent) Stop() error {
	a.mu.Lock()
	state := a.lifecycle.State()
	if state == StateCrashed {
		crashErr := a.crashErr
		a.mu.Unlock()
		a.lifecycle.Cancel()
		if err := a.lifecycle.WaitWithTimeout(a.config.ShutdownGrace); err != nil {
			return err
		}
		return crashErr
	}
	if !a.lifecycle.CanStop() {
		a.mu.Unlock()
		return domain.ErrNotRunning
	}
	if err := a.lifecycle.TransitionTo(StateStopping, "Stop() called"); err != nil {
		a.mu.Unlock()
		return err
	}
	a.lifecycle.Cancel()
	a.mu.Unlock()

	shutdownCtx, cancel := context.WithTimeout(context.Background(), a.config.ShutdownGrace)
	defer cancel()
	if err := a.server.Shutdown(shutdownCtx); err != nil {
		a.logger.Warn("http server shutdown", ports.Err(err))
	}

	err := a.lifecycle.WaitWithTimeout(a.config.ShutdownGrace)
	if err != nil {
		_ = a.lifecycle.TransitionTo(StateCrashed, "shutdown timeout")
	} else {
		_ = a.lifecycle.TransitionTo(StateStopped, "graceful shutdown")
	}
	return err
}

// Status returns the current lifecycle state.
func (a *Agent) Status() State {
	return a.lifecycle.State()
}

// Watcher returns the supervised watcher.
func (a *Agent) Watcher() *Watcher {
	return a.watcher
}
