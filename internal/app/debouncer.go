package app

import (
	"context"
	"fmt"
	"time"

	"github.com/bft-labs/knockcam/internal/clock"
	"github.com/bft-labs/knockcam/internal/domain"
	"github.com/bft-labs/knockcam/internal/ports"
)

// DefaultDebounceWindow is the minimum spacing between two activations.
const DefaultDebounceWindow = 300 * time.Millisecond

// Debouncer turns the raw, bouncing sensor line into clean activations.
// Not safe for concurrent use; the watcher is its only caller.
type Debouncer struct {
	line   ports.SensorLine
	window time.Duration
	clock  clock.Clock
	logger ports.Logger

	last     time.Time
	accepted bool
}

// NewDebouncer creates a debouncer over line. A non-positive window uses
// DefaultDebounceWindow; a nil clk uses the real clock.
func NewDebouncer(line ports.SensorLine, window time.Duration, clk clock.Clock, logger ports.Logger) *Debouncer {
	if window <= 0 {
		window = DefaultDebounceWindow
	}
	if clk == nil {
		clk = clock.Real()
	}
	return &Debouncer{line: line, window: window, clock: clk, logger: logger}
}

// NextActivation blocks until the next falling edge that lies at least one
// window after the previously accepted one. Suppressed edges do not move
// the anchor. Edges stamped before the call are stale: the line queues
// them while the caller is busy, and they are dropped. Line errors are
// wrapped in domain.ErrHardwareFault; a done context returns ctx.Err().
func (d *Debouncer) NextActivation(ctx context.Context) (domain.ActivationEvent, error) {
	armed := d.clock.Now()
	for {
		edge, err := d.line.WaitForEdge(ctx)
		if err != nil {
			if ctx.Err() != nil {
				return domain.ActivationEvent{}, ctx.Err()
			}
			return domain.ActivationEvent{}, fmt.Errorf("%w: sensor line: %v", domain.ErrHardwareFault, err)
		}

		if edge.Kind != domain.EdgeFalling {
			continue
		}

		if edge.At.Before(armed) {
			d.logger.Debug("stale edge dropped",
				ports.Duration("age", armed.Sub(edge.At)),
			)
			continue
		}

		if d.accepted && edge.At.Sub(d.last) < d.window {
			d.logger.Debug("edge suppressed",
				ports.Duration("since_accepted", edge.At.Sub(d.last)),
			)
			continue
		}

		d.last = edge.At
		d.accepted = true
		return domain.ActivationEvent{At: edge.At}, nil
	}
}
