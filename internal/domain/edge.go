package domain

import "time"

// Level is the instantaneous value of a digital input line.
type Level uint8

const (
	Low Level = iota
	High
)

// String returns "LOW" or "HIGH".
func (l Level) String() string {
	if l == High {
		return "HIGH"
	}
	return "LOW"
}

// EdgeKind is the direction of a line transition.
type EdgeKind uint8

const (
	// EdgeRising is a LOW to HIGH transition.
	EdgeRising EdgeKind = iota + 1
	// EdgeFalling is a HIGH to LOW transition. The sensor idles HIGH through
	// a pull-up bias and is pulled LOW when struck.
	EdgeFalling
)

// String returns a human-readable representation of the edge kind.
func (k EdgeKind) String() string {
	switch k {
	case EdgeRising:
		return "rising"
	case EdgeFalling:
		return "falling"
	default:
		return "unknown"
	}
}

// Edge is one transition observed on the sensor line.
type Edge struct {
	Kind EdgeKind

	// At is when the transition happened. Line drivers use the most
	// accurate source they have (kernel timestamps for GPIO).
	At time.Time
}

// ActivationEvent is one confirmed physical knock. It carries no identity;
// uniqueness is enforced by the debounce window, not by an identifier.
type ActivationEvent struct {
	// At is the timestamp of the accepted falling edge.
	At time.Time
}
