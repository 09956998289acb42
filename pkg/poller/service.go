// Package poller wraps the device client with a bounded retry policy.
// A device that stays unreachable becomes a reported failure, never a
// reason to stop the collector.
package poller

import (
	"context"
	"fmt"
	"time"

	probing "github.com/prometheus-community/pro-bing"
	"github.com/rs/zerolog"

	"github.com/dvhome/house_energy_monitor/pkg/config"
	"github.com/dvhome/house_energy_monitor/pkg/deviceclient"
)

// Clock abstracts time so retry pacing is testable without sleeping.
type Clock interface {
	Now() time.Time
	After(d time.Duration) <-chan time.Time
}

type realClock struct{}

func (realClock) Now() time.Time                         { return time.Now() }
func (realClock) After(d time.Duration) <-chan time.Time { return time.After(d) }

// DeviceReader is the single-attempt read the retry policy drives.
type DeviceReader interface {
	Poll(ctx context.Context, dev *config.DeviceConfig) (*deviceclient.RawSample, error)
}

type Poller struct {
	client      DeviceReader
	maxAttempts int
	retryDelay  time.Duration
	clock       Clock
	probe       bool
	log         zerolog.Logger
}

// New builds a retrying poller. maxAttempts and retryDelay below 1 are
// clamped to the defaults (3 attempts, 1s).
func New(client DeviceReader, maxAttempts int, retryDelay time.Duration, log zerolog.Logger) *Poller {
	if maxAttempts < 1 {
		maxAttempts = 3
	}
	if retryDelay <= 0 {
		retryDelay = time.Second
	}
	return &Poller{
		client:      client,
		maxAttempts: maxAttempts,
		retryDelay:  retryDelay,
		clock:       realClock{},
		probe:       true,
		log:         log.With().Str("component", "poller").Logger(),
	}
}

// WithClock replaces the wall clock, for tests.
func (p *Poller) WithClock(c Clock) *Poller {
	p.clock = c
	return p
}

// WithoutProbe disables the ICMP reachability check on final failure.
func (p *Poller) WithoutProbe() *Poller {
	p.probe = false
	return p
}

// Poll reads the device, retrying transient failures up to maxAttempts with
// retryDelay between attempts. Timeouts, refused connections and malformed
// responses all retry under the same policy. Each failed attempt is a
// warning event; exhaustion is an error event carrying the last error.
func (p *Poller) Poll(ctx context.Context, dev *config.DeviceConfig) (*deviceclient.RawSample, error) {
	var lastErr error
	for attempt := 1; attempt <= p.maxAttempts; attempt++ {
		if attempt > 1 {
			select {
			case <-ctx.Done():
				return nil, ctx.Err()
			case <-p.clock.After(p.retryDelay):
			}
		}

		sample, err := p.client.Poll(ctx, dev)
		if err == nil {
			return sample, nil
		}
		lastErr = err

		p.log.Warn().
			Str("device_id", dev.ID).
			Int("attempt", attempt).
			Int("max_attempts", p.maxAttempts).
			Err(err).
			Msg("Device poll attempt failed")

		if ctx.Err() != nil {
			return nil, ctx.Err()
		}
	}

	evt := p.log.Error().
		Str("device_id", dev.ID).
		Int("attempts", p.maxAttempts).
		Err(lastErr)
	if p.probe {
		evt = evt.Bool("host_reachable", pingHost(dev.IP))
	}
	evt.Msg("Device poll failed, giving up for this cycle")

	return nil, fmt.Errorf("device %s unreachable after %d attempts: %w",
		dev.ID, p.maxAttempts, lastErr)
}

// pingHost does a single unprivileged ICMP probe so the failure event can
// distinguish a dead host from a broken API.
func pingHost(host string) bool {
	pinger, err := probing.NewPinger(host)
	if err != nil {
		return false
	}

	pinger.Count = 1
	pinger.Timeout = 2 * time.Second
	pinger.SetPrivileged(false) // UDP-based, no root needed

	if err := pinger.Run(); err != nil {
		return false
	}
	return pinger.Statistics().PacketsRecv > 0
}
