package api

import (
	"encoding/json"
	"errors"
	"net/http"
	"time"

	"github.com/bft-labs/knockcam/internal/app"
	"github.com/bft-labs/knockcam/internal/domain"
	"github.com/bft-labs/knockcam/internal/ports"
)

// TimestampFormat is the ISO-8601 layout of capture timestamps.
const TimestampFormat = time.RFC3339Nano

type captureResponse struct {
	Status    string `json:"status"`
	Image     string `json:"image"`
	Timestamp string `json:"timestamp"`
}

type errorResponse struct {
	Status  string `json:"status"`
	Message string `json:"message"`
}

type healthResponse struct {
	Status     string `json:"status"`
	BackendURL string `json:"backend_url"`
}

type statusResponse struct {
	Status          string          `json:"status"`
	Version         string          `json:"version,omitempty"`
	BackendURL      string          `json:"backend_url"`
	Sensor          string          `json:"sensor,omitempty"`
	CameraAvailable bool            `json:"camera_available"`
	Uptime          string          `json:"uptime"`
	Watcher         *watcherSummary `json:"watcher,omitempty"`
}

type watcherSummary struct {
	State             string `json:"state"`
	Activations       uint64 `json:"activations"`
	Delivered         uint64 `json:"delivered"`
	Rejected          uint64 `json:"rejected"`
	TransportFailures uint64 `json:"transport_failures"`
	Faults            uint64 `json:"faults"`
	LastActivation    string `json:"last_activation,omitempty"`
	LastOutcome       string `json:"last_outcome"`
	LastFault         string `json:"last_fault,omitempty"`
}

func (s *Server) handleVideoFeed(w http.ResponseWriter, r *http.Request) {
	if s.deps.Metrics != nil {
		defer s.deps.Metrics.StreamClientConnected()()
	}

	h := w.Header()
	h.Set("Content-Type", app.StreamContentType)
	h.Set("Cache-Control", "no-cache, no-store, must-revalidate")
	h.Set("Connection", "close")
	w.WriteHeader(http.StatusOK)

	rc := http.NewResponseController(w)
	err := s.deps.Frames.Stream(r.Context(), func(chunk []byte) error {
		if _, err := w.Write(chunk); err != nil {
			return err
		}
		return rc.Flush()
	})
	if err != nil {
		s.logger.Debug("live feed client gone",
			ports.String("remote", r.RemoteAddr),
			ports.Err(err),
		)
	}
}

func (s *Server) handleCapture(w http.ResponseWriter, r *http.Request) {
	res, err := s.deps.Capturer.Capture(r.Context())
	if s.deps.Metrics != nil {
		s.deps.Metrics.ObserveCapture(err)
	}
	if err != nil {
		s.logger.Error("capture failed",
			ports.String("request_id", r.Header.Get(HeaderRequestID)),
			ports.Err(err),
		)
		writeJSON(w, http.StatusInternalServerError, errorResponse{
			Status:  "error",
			Message: captureErrorMessage(err),
		})
		return
	}

	writeJSON(w, http.StatusOK, captureResponse{
		Status:    "success",
		Image:     res.Image,
		Timestamp: res.Timestamp.Format(TimestampFormat),
	})
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, healthResponse{
		Status:     "ok",
		BackendURL: s.config.BackendURL,
	})
}

func (s *Server) handleStatus(w http.ResponseWriter, r *http.Request) {
	resp := statusResponse{
		Status:          "ok",
		Version:         s.config.Version,
		BackendURL:      s.config.BackendURL,
		Sensor:          s.config.Sensor,
		CameraAvailable: s.deps.CameraAvailable,
		Uptime:          s.deps.Clock.Now().Sub(s.startedAt).Truncate(time.Second).String(),
	}
	if s.deps.Status != nil {
		snap := s.deps.Status.Snapshot()
		summary := &watcherSummary{
			State:             snap.State.String(),
			Activations:       snap.Activations,
			Delivered:         snap.Delivered,
			Rejected:          snap.Rejected,
			TransportFailures: snap.TransportFailures,
			Faults:            snap.Faults,
			LastOutcome:       snap.LastOutcome.String(),
			LastFault:         snap.LastFault,
		}
		if !snap.LastActivation.IsZero() {
			summary.LastActivation = snap.LastActivation.Format(TimestampFormat)
		}
		if snap.State == app.StateDegraded {
			resp.Status = "degraded"
		}
		resp.Watcher = summary
	}
	if !resp.CameraAvailable && resp.Status == "ok" {
		resp.Status = "degraded"
	}
	writeJSON(w, http.StatusOK, resp)
}

func captureErrorMessage(err error) string {
	switch {
	case errors.Is(err, domain.ErrEncodeFailure):
		return "failed to encode image: " + err.Error()
	case errors.Is(err, domain.ErrHardwareFault):
		return "failed to capture image: " + err.Error()
	default:
		return err.Error()
	}
}

func writeJSON(w http.ResponseWriter, status int, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}
