// Package diffengine converts cumulative meter counters into incremental
// usage deltas, one baseline per device+metric.
package diffengine

import (
	"sync"
	"time"

	"github.com/dvhome/house_energy_monitor/pkg/config"
)

type counterKey struct {
	deviceID string
	metric   config.Metric
}

type counterState struct {
	value      float64
	observedAt time.Time
}

// Engine owns the last-seen cumulative value per device+metric. State lives
// for the process lifetime; a restart re-baselines, so the first sample after
// a restart yields a zero delta.
type Engine struct {
	mu   sync.Mutex
	last map[counterKey]counterState
}

func New() *Engine {
	return &Engine{last: make(map[counterKey]counterState)}
}

// Diff returns the non-negative usage since the previous observation for
// this device+metric and records value as the new baseline.
//
// The first observation establishes the baseline and returns 0; a large
// installed counter must not show up as a spurious first delta. A decrease
// means the device counter was reset (power loss, firmware reset) and is
// absorbed by re-baselining to the new value with a zero delta. Deltas are
// never negative; export metrics get their sign flipped by consumers.
func (e *Engine) Diff(deviceID string, metric config.Metric, value float64, observedAt time.Time) float64 {
	e.mu.Lock()
	defer e.mu.Unlock()

	key := counterKey{deviceID: deviceID, metric: metric}
	prev, seen := e.last[key]
	e.last[key] = counterState{value: value, observedAt: observedAt}

	if !seen {
		return 0
	}

	delta := value - prev.value
	if delta < 0 {
		return 0
	}
	return delta
}
