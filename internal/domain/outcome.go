package domain

import (
	"fmt"
	"time"
)

// OutcomeKind tags a DispatchOutcome.
type OutcomeKind uint8

const (
	// Delivered means the backend answered with a 2xx status.
	Delivered OutcomeKind = iota + 1
	// RemoteRejected means the backend answered with any other status.
	RemoteRejected
	// TransportFailure means no response was received.
	TransportFailure
)

// String returns the label used in logs and metrics.
func (k OutcomeKind) String() string {
	switch k {
	case Delivered:
		return "delivered"
	case RemoteRejected:
		return "rejected"
	case TransportFailure:
		return "transport_failure"
	default:
		return "unknown"
	}
}

// Transport failure reasons.
const (
	ReasonTimeout   = "timeout"
	ReasonRefused   = "refused"
	ReasonDNS       = "dns"
	ReasonReset     = "reset"
	ReasonTransport = "transport"
)

// DispatchOutcome is the classified result of one notification attempt.
// StatusCode is set for Delivered and RemoteRejected, Reason for
// TransportFailure.
type DispatchOutcome struct {
	Kind       OutcomeKind
	StatusCode int
	Reason     string
	Err        error
	Duration   time.Duration
}

// DeliveredOutcome builds a Delivered outcome.
func DeliveredOutcome(status int) DispatchOutcome {
	return DispatchOutcome{Kind: Delivered, StatusCode: status}
}

// RejectedOutcome builds a RemoteRejected outcome.
func RejectedOutcome(status int) DispatchOutcome {
	return DispatchOutcome{Kind: RemoteRejected, StatusCode: status}
}

// TransportFailureOutcome builds a TransportFailure outcome.
func TransportFailureOutcome(reason string, err error) DispatchOutcome {
	return DispatchOutcome{Kind: TransportFailure, Reason: reason, Err: err}
}

// String renders the outcome the way it appears in the status endpoint.
func (o DispatchOutcome) String() string {
	switch o.Kind {
	case Delivered, RemoteRejected:
		return fmt.Sprintf("%s{%d}", o.Kind, o.StatusCode)
	case TransportFailure:
		return fmt.Sprintf("%s{%s}", o.Kind, o.Reason)
	default:
		return "none"
	}
}
