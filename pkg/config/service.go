package config

import (
	"fmt"
	"os"

	"github.com/BurntSushi/toml"
)

// DefaultCollectorConfig returns the documented fallback configuration.
// Every loader failure path ends up here or at the last-known-good copy.
func DefaultCollectorConfig() *CollectorConfig {
	return &CollectorConfig{
		Polling: PollingConfig{
			IntervalSeconds:   60,
			MaxAttempts:       3,
			RetryDelaySeconds: 1,
		},
		Live: LiveConfig{
			ListenAddress:            "0.0.0.0",
			ListenPort:               9041,
			ObservationWindowSeconds: 300,
			PollIntervalSeconds:      2,
		},
		Logging: LoggingConfig{
			Level: "info",
		},
		Database: DatabaseConfig{
			RetentionDays: 90,
		},
		Tariffs: TariffConfig{
			ImportEurPerKwh: 0.40,
			ExportEurPerKwh: 0.04,
			GasEurPerM3:     0.80,
		},
		MQTT: MQTTConfig{
			Enabled: false,
			Host:    "localhost",
			Port:    1883,
		},
		Devices: []DeviceConfig{
			{
				ID:       "main_meter",
				Name:     "Main Meter",
				IP:       "192.168.1.50",
				Port:     80,
				APIPath:  "/api/v1",
				Supports: []Metric{MetricImport, MetricExport, MetricGas},
				Active:   true,
				Color:    "purple",
			},
		},
	}
}

// LoadCollectorConfig reads the collector config from configPath.
// A missing file is created from defaults so a fresh install starts
// without manual setup. Invalid or partial fields fall back to defaults;
// the caller keeps its last-known-good copy when an error is returned.
func LoadCollectorConfig(configPath string) (*CollectorConfig, error) {
	if _, err := os.Stat(configPath); os.IsNotExist(err) {
		cfg := DefaultCollectorConfig()

		// Create file
		cfgFile, err := os.Create(configPath)
		if err != nil {
			return nil, err
		}
		defer cfgFile.Close()
		if err := toml.NewEncoder(cfgFile).Encode(cfg); err != nil {
			return nil, err
		}
		return cfg, nil
	}

	// Load existing config
	var cfg CollectorConfig
	md, err := toml.DecodeFile(configPath, &cfg)
	if err != nil {
		return nil, fmt.Errorf("decode %s: %w", configPath, err)
	}
	applyDefaults(&cfg, md)
	return &cfg, nil
}

// applyDefaults fills zero-valued fields so a sparse config file still
// yields a runnable configuration. Tariffs go by presence in the file, not
// by value: a rate of exactly 0 is a legitimate contract.
func applyDefaults(cfg *CollectorConfig, md toml.MetaData) {
	def := DefaultCollectorConfig()
	if cfg.Polling.IntervalSeconds <= 0 {
		cfg.Polling.IntervalSeconds = def.Polling.IntervalSeconds
	}
	if cfg.Polling.MaxAttempts <= 0 {
		cfg.Polling.MaxAttempts = def.Polling.MaxAttempts
	}
	if cfg.Polling.RetryDelaySeconds <= 0 {
		cfg.Polling.RetryDelaySeconds = def.Polling.RetryDelaySeconds
	}
	if cfg.Live.ListenAddress == "" {
		cfg.Live.ListenAddress = def.Live.ListenAddress
	}
	if cfg.Live.ListenPort <= 0 {
		cfg.Live.ListenPort = def.Live.ListenPort
	}
	if cfg.Live.ObservationWindowSeconds <= 0 {
		cfg.Live.ObservationWindowSeconds = def.Live.ObservationWindowSeconds
	}
	if cfg.Live.PollIntervalSeconds <= 0 {
		cfg.Live.PollIntervalSeconds = def.Live.PollIntervalSeconds
	}
	if cfg.Logging.Level == "" {
		cfg.Logging.Level = def.Logging.Level
	}
	if cfg.Database.RetentionDays < 0 {
		cfg.Database.RetentionDays = def.Database.RetentionDays
	}
	if !md.IsDefined("tariffs", "import_eur_per_kwh") {
		cfg.Tariffs.ImportEurPerKwh = def.Tariffs.ImportEurPerKwh
	}
	if !md.IsDefined("tariffs", "export_eur_per_kwh") {
		cfg.Tariffs.ExportEurPerKwh = def.Tariffs.ExportEurPerKwh
	}
	if !md.IsDefined("tariffs", "gas_eur_per_m3") {
		cfg.Tariffs.GasEurPerM3 = def.Tariffs.GasEurPerM3
	}
	if cfg.MQTT.Host == "" {
		cfg.MQTT.Host = def.MQTT.Host
	}
	if cfg.MQTT.Port <= 0 {
		cfg.MQTT.Port = def.MQTT.Port
	}
	for i := range cfg.Devices {
		sanitizeDevice(&cfg.Devices[i])
	}
}

// sanitizeDevice drops unknown metric names and fills the default API port.
func sanitizeDevice(d *DeviceConfig) {
	if d.Port <= 0 {
		d.Port = 80
	}
	known := make([]Metric, 0, len(d.Supports))
	for _, m := range d.Supports {
		for _, k := range KnownMetrics {
			if m == k {
				known = append(known, m)
				break
			}
		}
	}
	d.Supports = known
}
