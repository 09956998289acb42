package meterdb

import "errors"

// ErrDuplicateReading marks an insert that hit the (device_id, timestamp)
// uniqueness constraint. Callers treat it as success and log a warning.
var ErrDuplicateReading = errors.New("duplicate reading for device and timestamp")

// Device is the stored copy of a configured device descriptor.
// Configuration owns these; the store only mirrors them.
type Device struct {
	DeviceID  string `db:"device_id"`
	Name      string `db:"name"`
	IP        string `db:"ip"`
	Port      int    `db:"port"`
	APIPath   string `db:"api_path"`
	Supports  string `db:"supports"` // comma-joined metric names
	Active    bool   `db:"active"`
	Color     string `db:"color"`
	UpdatedAt int64  `db:"updated_at"`
}

// Reading is one persisted incremental reading. Timestamps are
// server-assigned unix seconds. Metric columns are nil when the device
// does not support the metric; zero deltas are stored, not skipped.
type Reading struct {
	DeviceID  string   `db:"device_id"`
	Timestamp int64    `db:"timestamp"`
	ImportKwh *float64 `db:"import_kwh"`
	ExportKwh *float64 `db:"export_kwh"`
	GasM3     *float64 `db:"gas_m3"`
}
