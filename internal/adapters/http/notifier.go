package http

import (
	"context"
	"errors"
	"io"
	"net"
	"net/http"
	"strings"
	"syscall"
	"time"

	"github.com/google/uuid"

	"github.com/bft-labs/knockcam/internal/domain"
	"github.com/bft-labs/knockcam/internal/ports"
)

const knockEndpoint = "/knock"

// DefaultDispatchTimeout bounds one notification attempt.
const DefaultDispatchTimeout = 3 * time.Second

// Correlation headers sent with every attempt.
const (
	HeaderRequestID      = "X-Request-ID"
	HeaderKnockTimestamp = "X-Knock-Timestamp"
)

// maxDrain caps how much of a response body is read before closing it.
const maxDrain = 64 << 10

// NotifierConfig contains the backend settings.
type NotifierConfig struct {
	// BackendURL is the base URL; "/knock" is appended.
	BackendURL string
	Timeout    time.Duration
	UserAgent  string
}

// Notifier implements ports.Notifier with one HTTP POST per activation.
type Notifier struct {
	client ports.HTTPClient
	config NotifierConfig
	logger ports.Logger
}

// NewNotifier creates a notifier. A nil client uses a fresh *http.Client.
func NewNotifier(client ports.HTTPClient, config NotifierConfig, logger ports.Logger) *Notifier {
	if client == nil {
		client = &http.Client{}
	}
	if config.Timeout <= 0 {
		config.Timeout = DefaultDispatchTimeout
	}
	if config.UserAgent == "" {
		config.UserAgent = "knockcam"
	}
	config.BackendURL = strings.TrimRight(config.BackendURL, "/")
	return &Notifier{client: client, config: config, logger: logger}
}

// URL returns the notification endpoint.
func (n *Notifier) URL() string {
	return n.config.BackendURL + knockEndpoint
}

// Dispatch sends exactly one notification and classifies the result. It
// never retries and never panics on transport errors.
func (n *Notifier) Dispatch(ctx context.Context, event domain.ActivationEvent) domain.DispatchOutcome {
	ctx, cancel := context.WithTimeout(ctx, n.config.Timeout)
	defer cancel()

	start := time.Now()
	outcome := n.send(ctx, event)
	outcome.Duration = time.Since(start)
	return outcome
}

func (n *Notifier) send(ctx context.Context, event domain.ActivationEvent) domain.DispatchOutcome {
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, n.URL(), http.NoBody)
	if err != nil {
		return domain.TransportFailureOutcome(domain.ReasonTransport, err)
	}

	requestID := uuid.NewString()
	req.Header.Set("User-Agent", n.config.UserAgent)
	req.Header.Set(HeaderRequestID, requestID)
	if !event.At.IsZero() {
		req.Header.Set(HeaderKnockTimestamp, event.At.UTC().Format(time.RFC3339Nano))
	}

	n.logger.Debug("dispatching knock",
		ports.String("url", req.URL.String()),
		ports.String("request_id", requestID),
	)

	resp, err := n.client.Do(req)
	if err != nil {
		return domain.TransportFailureOutcome(classify(err), err)
	}
	defer resp.Body.Close()
	_, _ = io.Copy(io.Discard, io.LimitReader(resp.Body, maxDrain))

	if resp.StatusCode/100 != 2 {
		return domain.RejectedOutcome(resp.StatusCode)
	}
	return domain.DeliveredOutcome(resp.StatusCode)
}

// classify maps a transport error to a failure reason.
func classify(err error) string {
	var dnsErr *net.DNSError
	var netErr net.Error

	switch {
	case errors.Is(err, context.DeadlineExceeded):
		return domain.ReasonTimeout
	case errors.As(err, &dnsErr):
		return domain.ReasonDNS
	case errors.Is(err, syscall.ECONNREFUSED):
		return domain.ReasonRefused
	case errors.Is(err, syscall.ECONNRESET),
		errors.Is(err, syscall.EPIPE),
		errors.Is(err, io.EOF),
		errors.Is(err, io.ErrUnexpectedEOF):
		return domain.ReasonReset
	case errors.As(err, &netErr) && netErr.Timeout():
		return domain.ReasonTimeout
	default:
		return domain.ReasonTransport
	}
}
