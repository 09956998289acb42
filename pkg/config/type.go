package config

import "time"

// Metric identifies one cumulative counter a device can report.
type Metric string

const (
	MetricImport Metric = "import_kwh"
	MetricExport Metric = "export_kwh"
	MetricGas    Metric = "gas_m3"
)

// KnownMetrics lists every metric the collector understands.
// Unknown entries in a device's supports list are dropped on load.
var KnownMetrics = []Metric{MetricImport, MetricExport, MetricGas}

type CollectorConfig struct {
	Polling  PollingConfig  `toml:"polling"`
	Live     LiveConfig     `toml:"live"`
	Logging  LoggingConfig  `toml:"logging"`
	Database DatabaseConfig `toml:"database"`
	Tariffs  TariffConfig   `toml:"tariffs"`
	MQTT     MQTTConfig     `toml:"mqtt"`
	Devices  []DeviceConfig `toml:"devices"`
}

type PollingConfig struct {
	IntervalSeconds   int `toml:"interval_seconds"`
	MaxAttempts       int `toml:"max_attempts"`
	RetryDelaySeconds int `toml:"retry_delay_seconds"`
}

type LiveConfig struct {
	ListenAddress            string `toml:"listen_address"`
	ListenPort               int    `toml:"listen_port"`
	ObservationWindowSeconds int    `toml:"observation_window_seconds"`
	PollIntervalSeconds      int    `toml:"poll_interval_seconds"`
}

type LoggingConfig struct {
	Level string `toml:"level"`
	File  string `toml:"file"`
}

type DatabaseConfig struct {
	// Path to the sqlite database file. Empty means the default data dir.
	Path string `toml:"path"`
	// Raw readings older than this many days are pruned by the scheduler.
	// Zero disables pruning.
	RetentionDays int `toml:"retention_days"`
}

type TariffConfig struct {
	ImportEurPerKwh float64 `toml:"import_eur_per_kwh"`
	ExportEurPerKwh float64 `toml:"export_eur_per_kwh"`
	GasEurPerM3     float64 `toml:"gas_eur_per_m3"`
}

type MQTTConfig struct {
	Enabled bool   `toml:"enabled"`
	Host    string `toml:"host"`
	Port    int    `toml:"port"`
}

type DeviceConfig struct {
	ID       string   `toml:"id"`
	Name     string   `toml:"name"`
	IP       string   `toml:"ip"`
	Port     int      `toml:"port"`
	APIPath  string   `toml:"api_path"`
	Supports []Metric `toml:"supports"`
	Active   bool     `toml:"active"`
	Color    string   `toml:"color"`
}

// SupportsMetric reports whether the device is configured to report metric m.
func (d *DeviceConfig) SupportsMetric(m Metric) bool {
	for _, s := range d.Supports {
		if s == m {
			return true
		}
	}
	return false
}

func (c *CollectorConfig) PollInterval() time.Duration {
	return time.Duration(c.Polling.IntervalSeconds) * time.Second
}

func (c *CollectorConfig) RetryDelay() time.Duration {
	return time.Duration(c.Polling.RetryDelaySeconds) * time.Second
}

func (c *CollectorConfig) ObservationWindow() time.Duration {
	return time.Duration(c.Live.ObservationWindowSeconds) * time.Second
}

func (c *CollectorConfig) LivePollInterval() time.Duration {
	return time.Duration(c.Live.PollIntervalSeconds) * time.Second
}

// ActiveDevices returns the devices the scheduler should poll this cycle.
func (c *CollectorConfig) ActiveDevices() []DeviceConfig {
	active := make([]DeviceConfig, 0, len(c.Devices))
	for _, d := range c.Devices {
		if d.Active {
			active = append(active, d)
		}
	}
	return active
}
