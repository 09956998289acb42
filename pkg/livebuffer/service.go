// Package livebuffer keeps a bounded sliding window of live power samples
// per device for the real-time view. Nothing here is persisted; a restart
// begins with an empty buffer.
package livebuffer

import (
	"math"
	"sync"
	"time"
)

type Buffer struct {
	window    time.Duration
	maxPoints int

	mu     sync.RWMutex
	series map[string][]Sample
}

// New sizes the buffer for the observation window and the live poll
// interval: at most ceil(window/interval) points are kept per device.
func New(window, interval time.Duration) *Buffer {
	if window <= 0 {
		window = 5 * time.Minute
	}
	if interval <= 0 {
		interval = 2 * time.Second
	}
	return &Buffer{
		window:    window,
		maxPoints: int(math.Ceil(float64(window) / float64(interval))),
		series:    make(map[string][]Sample),
	}
}

// Append records one sample and evicts everything that fell out of the
// observation window, then trims to the point cap, oldest first.
func (b *Buffer) Append(deviceID string, t time.Time, powerW float64) {
	b.mu.Lock()
	defer b.mu.Unlock()

	s := append(b.series[deviceID], Sample{
		DeviceID:    deviceID,
		TimestampMs: t.UnixMilli(),
		PowerW:      powerW,
	})

	cutoff := t.Add(-b.window).UnixMilli()
	start := 0
	for start < len(s) && s[start].TimestampMs < cutoff {
		start++
	}
	s = s[start:]

	if len(s) > b.maxPoints {
		s = s[len(s)-b.maxPoints:]
	}

	// Re-slice into a fresh backing array occasionally so the evicted
	// prefix does not pin memory forever.
	if cap(s) > 2*b.maxPoints {
		trimmed := make([]Sample, len(s))
		copy(trimmed, s)
		s = trimmed
	}

	b.series[deviceID] = s
}

// Snapshot returns a copy of the device's samples, ordered oldest first.
// Safe to call concurrently with Append.
func (b *Buffer) Snapshot(deviceID string) []Sample {
	b.mu.RLock()
	defer b.mu.RUnlock()

	s := b.series[deviceID]
	out := make([]Sample, len(s))
	copy(out, s)
	return out
}

// SnapshotAll returns a copy of every device's samples.
func (b *Buffer) SnapshotAll() map[string][]Sample {
	b.mu.RLock()
	defer b.mu.RUnlock()

	out := make(map[string][]Sample, len(b.series))
	for id, s := range b.series {
		cp := make([]Sample, len(s))
		copy(cp, s)
		out[id] = cp
	}
	return out
}

// MaxPoints exposes the per-device cap, mainly for the live view header.
func (b *Buffer) MaxPoints() int {
	return b.maxPoints
}
