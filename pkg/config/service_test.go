package config

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestMissingFileCreatesDefaults(t *testing.T) {
	path := filepath.Join(t.TempDir(), "collector.toml")

	cfg, err := LoadCollectorConfig(path)
	require.NoError(t, err)

	assert.Equal(t, 60, cfg.Polling.IntervalSeconds)
	assert.Equal(t, 3, cfg.Polling.MaxAttempts)
	assert.Equal(t, 300, cfg.Live.ObservationWindowSeconds)
	require.Len(t, cfg.Devices, 1)
	assert.Equal(t, "main_meter", cfg.Devices[0].ID)

	// The default file was written out for the operator to edit.
	_, err = os.Stat(path)
	assert.NoError(t, err)

	// And loads back identically.
	again, err := LoadCollectorConfig(path)
	require.NoError(t, err)
	assert.Equal(t, cfg, again)
}

func TestSparseFileFallsBackPerField(t *testing.T) {
	path := filepath.Join(t.TempDir(), "collector.toml")
	content := `
[polling]
interval_seconds = 10

[[devices]]
id = "kwh_meter"
ip = "192.0.2.7"
supports = ["import_kwh", "not_a_metric"]
active = true
`
	require.NoError(t, os.WriteFile(path, []byte(content), 0644))

	cfg, err := LoadCollectorConfig(path)
	require.NoError(t, err)

	assert.Equal(t, 10, cfg.Polling.IntervalSeconds)
	// Unset fields get documented defaults.
	assert.Equal(t, 3, cfg.Polling.MaxAttempts)
	assert.Equal(t, 0.40, cfg.Tariffs.ImportEurPerKwh)

	require.Len(t, cfg.Devices, 1)
	dev := cfg.Devices[0]
	assert.Equal(t, 80, dev.Port)
	// Unknown metric names are dropped, known ones kept.
	assert.Equal(t, []Metric{MetricImport}, dev.Supports)
}

func TestExplicitZeroTariffKept(t *testing.T) {
	path := filepath.Join(t.TempDir(), "collector.toml")
	content := `
[tariffs]
export_eur_per_kwh = 0.0
`
	require.NoError(t, os.WriteFile(path, []byte(content), 0644))

	cfg, err := LoadCollectorConfig(path)
	require.NoError(t, err)

	// A contract without export credit is a real configuration, not an
	// unset field.
	assert.Equal(t, 0.0, cfg.Tariffs.ExportEurPerKwh)
	// Tariffs absent from the file still get defaults.
	assert.Equal(t, 0.40, cfg.Tariffs.ImportEurPerKwh)
	assert.Equal(t, 0.80, cfg.Tariffs.GasEurPerM3)
}

func TestInvalidFileReturnsError(t *testing.T) {
	path := filepath.Join(t.TempDir(), "collector.toml")
	require.NoError(t, os.WriteFile(path, []byte("polling = {{{"), 0644))

	_, err := LoadCollectorConfig(path)
	// The scheduler keeps its last-known-good copy on this error.
	assert.Error(t, err)
}

func TestActiveDevicesFilters(t *testing.T) {
	cfg := &CollectorConfig{Devices: []DeviceConfig{
		{ID: "a", Active: true},
		{ID: "b", Active: false},
		{ID: "c", Active: true},
	}}

	active := cfg.ActiveDevices()
	require.Len(t, active, 2)
	assert.Equal(t, "a", active[0].ID)
	assert.Equal(t, "c", active[1].ID)
}

func TestSupportsMetric(t *testing.T) {
	dev := DeviceConfig{Supports: []Metric{MetricImport, MetricGas}}
	assert.True(t, dev.SupportsMetric(MetricImport))
	assert.True(t, dev.SupportsMetric(MetricGas))
	assert.False(t, dev.SupportsMetric(MetricExport))
}
