package deviceclient

import (
	"fmt"
	"time"

	"github.com/dvhome/house_energy_monitor/pkg/config"
)

// RawSample is one snapshot of a device's cumulative counters.
// It only lives for the duration of a poll cycle.
type RawSample struct {
	DeviceID   string
	ReceivedAt time.Time
	// Counters holds the cumulative value per metric the device reported.
	// Metrics the device does not support are absent.
	Counters map[config.Metric]float64
}

// ErrorKind classifies a failed poll so the retry policy and the logs can
// tell a dead host from a broken response.
type ErrorKind string

const (
	KindTimeout    ErrorKind = "timeout"
	KindConnection ErrorKind = "connection"
	KindHTTPStatus ErrorKind = "http_status"
	KindMalformed  ErrorKind = "malformed_response"
)

// PollError is the typed failure of a single device poll attempt.
type PollError struct {
	DeviceID string
	Kind     ErrorKind
	Err      error
}

func (e *PollError) Error() string {
	if e.Err == nil {
		return fmt.Sprintf("poll %s: %s", e.DeviceID, e.Kind)
	}
	return fmt.Sprintf("poll %s: %s: %v", e.DeviceID, e.Kind, e.Err)
}

func (e *PollError) Unwrap() error {
	return e.Err
}
