// Package scheduler drives the storage-polling cycle: reload config, poll
// every active device, convert counters to deltas, persist. Devices are
// independent; one meter going dark never costs another its reading.
package scheduler

import (
	"context"
	"errors"
	"reflect"
	"strings"
	"time"

	"github.com/rs/zerolog"

	"github.com/dvhome/house_energy_monitor/pkg/config"
	"github.com/dvhome/house_energy_monitor/pkg/deviceclient"
	"github.com/dvhome/house_energy_monitor/pkg/diffengine"
	"github.com/dvhome/house_energy_monitor/pkg/meterdb"
	"github.com/dvhome/house_energy_monitor/pkg/poller"
	"github.com/dvhome/house_energy_monitor/pkg/units"
)

// ReadingStore is the storage surface the polling cycle needs.
type ReadingStore interface {
	EnsureConnected(ctx context.Context) error
	UpsertDevice(ctx context.Context, dev *meterdb.Device) error
	InsertReading(ctx context.Context, r *meterdb.Reading) error
	PruneBefore(ctx context.Context, cutoff time.Time) (int64, error)
}

// DevicePoller reads one device with whatever retry policy it carries.
type DevicePoller interface {
	Poll(ctx context.Context, dev *config.DeviceConfig) (*deviceclient.RawSample, error)
}

// ReadingSink receives every successfully stored reading (MQTT bridge).
type ReadingSink interface {
	Publish(r *meterdb.Reading)
}

type Scheduler struct {
	configPath string
	store      ReadingStore
	engine     *diffengine.Engine
	sink       ReadingSink
	log        zerolog.Logger

	// newPoller is rebuilt per cycle since retry settings reload with the
	// config. Replaceable for tests.
	newPoller func(cfg *config.CollectorConfig) DevicePoller

	cfg       *config.CollectorConfig // last-known-good
	lastPrune time.Time
}

func New(configPath string, initial *config.CollectorConfig, store ReadingStore, log zerolog.Logger) *Scheduler {
	s := &Scheduler{
		configPath: configPath,
		store:      store,
		engine:     diffengine.New(),
		log:        log.With().Str("component", "scheduler").Logger(),
		cfg:        initial,
	}
	s.newPoller = func(cfg *config.CollectorConfig) DevicePoller {
		return poller.New(deviceclient.NewClient(), cfg.Polling.MaxAttempts, cfg.RetryDelay(), log)
	}
	return s
}

// SetSink attaches an optional reading sink.
func (s *Scheduler) SetSink(sink ReadingSink) {
	s.sink = sink
}

// SetPollerFactory overrides poller construction, for tests.
func (s *Scheduler) SetPollerFactory(f func(cfg *config.CollectorConfig) DevicePoller) {
	s.newPoller = f
}

// Run executes the polling loop until ctx is cancelled, or exactly one
// cycle when once is set. The only fatal error is failing to reach storage
// at startup; everything after that degrades to skipped cycles.
func (s *Scheduler) Run(ctx context.Context, once bool) error {
	if err := s.store.EnsureConnected(ctx); err != nil {
		return err
	}
	s.upsertDevices(ctx)

	for {
		start := time.Now()
		s.runCycle(ctx)

		if once {
			s.log.Info().Msg("Single cycle complete, stopping")
			return nil
		}

		// Keep cycle starts aligned to the cadence regardless of how long
		// the devices took.
		sleep := s.cfg.PollInterval() - time.Since(start)
		if sleep < 0 {
			sleep = 0
		}
		select {
		case <-ctx.Done():
			s.log.Info().Msg("Shutdown requested, polling stopped")
			return nil
		case <-time.After(sleep):
		}
	}
}

// runCycle reloads configuration and processes every active device. Config
// changes take effect here, without a restart.
func (s *Scheduler) runCycle(ctx context.Context) {
	if cfg, err := config.LoadCollectorConfig(s.configPath); err != nil {
		s.log.Warn().Err(err).Msg("Config reload failed, keeping last-known-good")
	} else {
		if !reflect.DeepEqual(cfg.Devices, s.cfg.Devices) {
			s.cfg = cfg
			s.upsertDevices(ctx)
		} else {
			s.cfg = cfg
		}
	}

	if err := s.store.EnsureConnected(ctx); err != nil {
		s.log.Error().Err(err).Msg("Storage unavailable, skipping cycle")
		return
	}

	devices := s.cfg.ActiveDevices()
	if len(devices) == 0 {
		s.log.Debug().Msg("No active devices configured")
		return
	}

	p := s.newPoller(s.cfg)
	done := make(chan struct{}, len(devices))
	started := 0
	for i := range devices {
		// Honor shutdown before starting another device poll; devices
		// already in flight complete on their own timeouts.
		if ctx.Err() != nil {
			break
		}
		started++
		go func(dev config.DeviceConfig) {
			defer func() { done <- struct{}{} }()
			s.processDevice(ctx, p, &dev)
		}(devices[i])
	}
	for i := 0; i < started; i++ {
		<-done
	}

	s.maybePrune(ctx)
}

// processDevice runs the poll → diff → store chain for one device. Every
// error is absorbed into log events here; nothing propagates.
func (s *Scheduler) processDevice(ctx context.Context, p DevicePoller, dev *config.DeviceConfig) {
	sample, err := p.Poll(ctx, dev)
	if err != nil {
		// Attempt warnings and the give-up error were already reported by
		// the poller; this cycle simply has no reading for the device.
		return
	}

	reading := s.buildReading(dev, sample)

	// A cancelled scheduler still persists readings from polls that
	// completed; shutdown finishes the device in flight.
	insertCtx := context.WithoutCancel(ctx)
	switch err := s.store.InsertReading(insertCtx, reading); {
	case err == nil:
		s.log.Debug().
			Str("device_id", dev.ID).
			Int64("timestamp", reading.Timestamp).
			Msg("Reading stored")
		if s.sink != nil {
			s.sink.Publish(reading)
		}
	case errors.Is(err, meterdb.ErrDuplicateReading):
		s.log.Warn().
			Str("device_id", dev.ID).
			Int64("timestamp", reading.Timestamp).
			Msg("Duplicate reading skipped")
	default:
		s.log.Error().
			Str("device_id", dev.ID).
			Err(err).
			Msg("Could not store reading")
	}
}

// buildReading converts the sample's cumulative counters into a persisted
// incremental reading with a server-assigned timestamp. Metrics the device
// does not support stay nil; an all-zero reading is still stored, idle
// consumption is data too.
func (s *Scheduler) buildReading(dev *config.DeviceConfig, sample *deviceclient.RawSample) *meterdb.Reading {
	reading := &meterdb.Reading{
		DeviceID:  dev.ID,
		Timestamp: time.Now().UTC().Unix(),
	}
	for _, m := range dev.Supports {
		v, ok := sample.Counters[m]
		if !ok {
			continue
		}
		delta := units.Round3(s.engine.Diff(dev.ID, m, v, sample.ReceivedAt))
		switch m {
		case config.MetricImport:
			reading.ImportKwh = &delta
		case config.MetricExport:
			reading.ExportKwh = &delta
		case config.MetricGas:
			reading.GasM3 = &delta
		}
	}
	return reading
}

func (s *Scheduler) upsertDevices(ctx context.Context) {
	for i := range s.cfg.Devices {
		dev := deviceRecord(&s.cfg.Devices[i])
		if err := s.store.UpsertDevice(ctx, dev); err != nil {
			s.log.Error().
				Str("device_id", dev.DeviceID).
				Err(err).
				Msg("Could not upsert device")
		}
	}
}

// maybePrune enforces the retention horizon at most once per day.
func (s *Scheduler) maybePrune(ctx context.Context) {
	days := s.cfg.Database.RetentionDays
	if days <= 0 || time.Since(s.lastPrune) < 24*time.Hour {
		return
	}
	s.lastPrune = time.Now()

	cutoff := time.Now().UTC().AddDate(0, 0, -days)
	n, err := s.store.PruneBefore(ctx, cutoff)
	if err != nil {
		s.log.Error().Err(err).Msg("Retention prune failed")
		return
	}
	if n > 0 {
		s.log.Info().Int64("rows", n).Time("cutoff", cutoff).Msg("Pruned old readings")
	}
}

func deviceRecord(dev *config.DeviceConfig) *meterdb.Device {
	supports := make([]string, len(dev.Supports))
	for i, m := range dev.Supports {
		supports[i] = string(m)
	}
	return &meterdb.Device{
		DeviceID: dev.ID,
		Name:     dev.Name,
		IP:       dev.IP,
		Port:     dev.Port,
		APIPath:  dev.APIPath,
		Supports: strings.Join(supports, ","),
		Active:   dev.Active,
		Color:    dev.Color,
	}
}
