package gpio

import (
	"context"
	"errors"
	"sync"

	"github.com/bft-labs/knockcam/internal/domain"
	"github.com/bft-labs/knockcam/internal/ports"
)

// ReopeningLine requests its line again after a failure. The failing
// WaitForEdge still returns its error so the caller can back off; the next
// call opens a fresh line.
type ReopeningLine struct {
	name   string
	open   func() (ports.SensorLine, error)
	logger ports.Logger

	mu     sync.Mutex
	line   ports.SensorLine
	closed bool
}

// NewReopeningLine opens the first line right away so configuration errors
// surface at startup.
func NewReopeningLine(name string, open func() (ports.SensorLine, error), logger ports.Logger) (*ReopeningLine, error) {
	line, err := open()
	if err != nil {
		return nil, err
	}
	return &ReopeningLine{name: name, open: open, logger: logger, line: line}, nil
}

// WaitForEdge waits on the current line, opening a new one first if the
// previous line failed.
func (r *ReopeningLine) WaitForEdge(ctx context.Context) (domain.Edge, error) {
	line, err := r.current()
	if err != nil {
		return domain.Edge{}, err
	}
	edge, err := line.WaitForEdge(ctx)
	if err != nil && ctx.Err() == nil && !errors.Is(err, ErrLineClosed) {
		r.discard(line, err)
	}
	return edge, err
}

// Close releases the current line. Safe to call more than once.
func (r *ReopeningLine) Close() error {
	r.mu.Lock()
	if r.closed {
		r.mu.Unlock()
		return nil
	}
	r.closed = true
	line := r.line
	r.line = nil
	r.mu.Unlock()

	if line == nil {
		return nil
	}
	return line.Close()
}

func (r *ReopeningLine) current() (ports.SensorLine, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.closed {
		return nil, ErrLineClosed
	}
	if r.line != nil {
		return r.line, nil
	}
	line, err := r.open()
	if err != nil {
		return nil, err
	}
	r.line = line
	r.logger.Info("sensor line reopened", ports.String("line", r.name))
	return line, nil
}

func (r *ReopeningLine) discard(line ports.SensorLine, cause error) {
	r.mu.Lock()
	if r.line == line {
		r.line = nil
	}
	r.mu.Unlock()

	r.logger.Warn("sensor line failed, will request it again",
		ports.String("line", r.name),
		ports.Err(cause),
	)
	if err := line.Close(); err != nil {
		r.logger.Debug("close failed line", ports.Err(err))
	}
}
