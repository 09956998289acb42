package livebuffer

import (
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestAppendNeverExceedsPointCap(t *testing.T) {
	// 300s window at 2s cadence caps at 150 points per device.
	b := New(300*time.Second, 2*time.Second)
	require.Equal(t, 150, b.MaxPoints())

	start := time.Now()
	for i := 0; i < 400; i++ {
		b.Append("main_meter", start.Add(time.Duration(i)*2*time.Second), float64(i))
	}

	s := b.Snapshot("main_meter")
	assert.LessOrEqual(t, len(s), 150)
}

func TestOldSamplesEvicted(t *testing.T) {
	b := New(300*time.Second, 2*time.Second)
	start := time.Now()

	b.Append("m", start, 100)
	latest := start.Add(400 * time.Second)
	b.Append("m", latest, 200)

	s := b.Snapshot("m")
	require.Len(t, s, 1)
	// Nothing older than the window relative to the latest append survives.
	assert.Equal(t, latest.UnixMilli(), s[0].TimestampMs)
}

func TestSnapshotOrderedAndCopied(t *testing.T) {
	b := New(time.Minute, time.Second)
	start := time.Now()
	for i := 0; i < 5; i++ {
		b.Append("m", start.Add(time.Duration(i)*time.Second), float64(i))
	}

	s := b.Snapshot("m")
	require.Len(t, s, 5)
	for i := 1; i < len(s); i++ {
		assert.LessOrEqual(t, s[i-1].TimestampMs, s[i].TimestampMs)
	}

	// Mutating the snapshot must not touch the buffer.
	s[0].PowerW = -9999
	assert.Equal(t, 0.0, b.Snapshot("m")[0].PowerW)
}

func TestDevicesAreIndependent(t *testing.T) {
	b := New(time.Minute, time.Second)
	now := time.Now()
	b.Append("a", now, 1)
	b.Append("b", now, 2)

	all := b.SnapshotAll()
	require.Len(t, all, 2)
	assert.Len(t, all["a"], 1)
	assert.Len(t, all["b"], 1)
	assert.Empty(t, b.Snapshot("c"))
}

func TestConcurrentAppendAndSnapshot(t *testing.T) {
	b := New(time.Minute, time.Second)
	start := time.Now()

	var wg sync.WaitGroup
	wg.Add(2)
	go func() {
		defer wg.Done()
		for i := 0; i < 1000; i++ {
			b.Append("m", start.Add(time.Duration(i)*time.Millisecond), float64(i))
		}
	}()
	go func() {
		defer wg.Done()
		for i := 0; i < 1000; i++ {
			b.Snapshot("m")
		}
	}()
	wg.Wait()

	assert.NotEmpty(t, b.Snapshot("m"))
}
