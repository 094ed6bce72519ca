//go:build !linux

package gpio

import (
	"context"
	"errors"

	"github.com/bft-labs/knockcam/internal/domain"
	"github.com/bft-labs/knockcam/internal/ports"
)

const maxLineOffset = 1 << 16

var errUnsupported = errors.New("gpio character devices require linux")

// ChipLine is unavailable outside linux.
type ChipLine struct{}

// OpenChipLine always fails outside linux; use a file: sensor instead.
func OpenChipLine(chip string, offset int, logger ports.Logger) (*ChipLine, error) {
	return nil, errUnsupported
}

func (*ChipLine) Level() (domain.Level, error) { return domain.Low, errUnsupported }

func (*ChipLine) WaitForEdge(ctx context.Context) (domain.Edge, error) {
	return domain.Edge{}, errUnsupported
}

func (*ChipLine) Close() error { return nil }
