package poller

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/dvhome/house_energy_monitor/pkg/config"
	"github.com/dvhome/house_energy_monitor/pkg/deviceclient"
)

// fakeClock fires retry delays instantly and records how often it slept.
type fakeClock struct {
	now    time.Time
	sleeps int
}

func (c *fakeClock) Now() time.Time { return c.now }

func (c *fakeClock) After(d time.Duration) <-chan time.Time {
	c.sleeps++
	ch := make(chan time.Time, 1)
	ch <- c.now.Add(d)
	return ch
}

// scriptedClient fails the first failures calls, then succeeds.
type scriptedClient struct {
	failures int
	calls    int
}

func (c *scriptedClient) Poll(_ context.Context, dev *config.DeviceConfig) (*deviceclient.RawSample, error) {
	c.calls++
	if c.calls <= c.failures {
		return nil, &deviceclient.PollError{
			DeviceID: dev.ID,
			Kind:     deviceclient.KindConnection,
			Err:      errors.New("connection refused"),
		}
	}
	return &deviceclient.RawSample{
		DeviceID:   dev.ID,
		ReceivedAt: time.Now(),
		Counters:   map[config.Metric]float64{config.MetricImport: 100.0},
	}, nil
}

func testDevice() *config.DeviceConfig {
	return &config.DeviceConfig{
		ID:       "main_meter",
		IP:       "192.0.2.10",
		Port:     80,
		APIPath:  "/api/v1",
		Supports: []config.Metric{config.MetricImport},
		Active:   true,
	}
}

func TestAlwaysFailingClientCalledExactlyMaxAttempts(t *testing.T) {
	client := &scriptedClient{failures: 100}
	clock := &fakeClock{now: time.Now()}
	p := New(client, 3, time.Second, zerolog.Nop()).WithClock(clock).WithoutProbe()

	sample, err := p.Poll(context.Background(), testDevice())

	require.Error(t, err)
	assert.Nil(t, sample)
	assert.Equal(t, 3, client.calls)
	assert.Equal(t, 2, clock.sleeps)
}

func TestSucceedsAfterTwoFailures(t *testing.T) {
	client := &scriptedClient{failures: 2}
	p := New(client, 3, time.Second, zerolog.Nop()).
		WithClock(&fakeClock{now: time.Now()}).
		WithoutProbe()

	sample, err := p.Poll(context.Background(), testDevice())

	require.NoError(t, err)
	require.NotNil(t, sample)
	assert.Equal(t, 3, client.calls)
	assert.Equal(t, 100.0, sample.Counters[config.MetricImport])
}

func TestFirstAttemptSuccessSkipsRetries(t *testing.T) {
	client := &scriptedClient{}
	clock := &fakeClock{now: time.Now()}
	p := New(client, 3, time.Second, zerolog.Nop()).WithClock(clock).WithoutProbe()

	_, err := p.Poll(context.Background(), testDevice())

	require.NoError(t, err)
	assert.Equal(t, 1, client.calls)
	assert.Zero(t, clock.sleeps)
}

func TestCancellationStopsRetrying(t *testing.T) {
	client := &scriptedClient{failures: 100}
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	p := New(client, 5, time.Second, zerolog.Nop()).
		WithClock(&fakeClock{now: time.Now()}).
		WithoutProbe()

	_, err := p.Poll(ctx, testDevice())

	require.Error(t, err)
	assert.ErrorIs(t, err, context.Canceled)
	// The first attempt ran; the cancelled context stopped further ones.
	assert.Equal(t, 1, client.calls)
}

func TestDefaultsClampBadSettings(t *testing.T) {
	client := &scriptedClient{failures: 100}
	p := New(client, 0, 0, zerolog.Nop()).
		WithClock(&fakeClock{now: time.Now()}).
		WithoutProbe()

	_, err := p.Poll(context.Background(), testDevice())

	require.Error(t, err)
	assert.Equal(t, 3, client.calls)
}
