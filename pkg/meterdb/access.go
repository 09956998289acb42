package meterdb

import (
	"context"
	"database/sql"
	"strings"
	"time"
)

// UpsertDevice merges the descriptor keyed by device id, last write wins on
// all mutable fields. Runs at scheduler startup and whenever config changes.
func (s *Store) UpsertDevice(ctx context.Context, dev *Device) error {
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO devices (device_id, name, ip, port, api_path, supports, active, color, updated_at)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)
		 ON CONFLICT (device_id) DO UPDATE SET
		   name = excluded.name,
		   ip = excluded.ip,
		   port = excluded.port,
		   api_path = excluded.api_path,
		   supports = excluded.supports,
		   active = excluded.active,
		   color = excluded.color,
		   updated_at = excluded.updated_at`,
		dev.DeviceID,
		dev.Name,
		dev.IP,
		dev.Port,
		dev.APIPath,
		dev.Supports,
		dev.Active,
		dev.Color,
		time.Now().UTC().Unix(),
	)
	return err
}

// InsertReading appends one incremental reading. A second insert for the
// same (device_id, timestamp) returns ErrDuplicateReading and leaves the
// stored row untouched.
func (s *Store) InsertReading(ctx context.Context, r *Reading) error {
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO readings (device_id, timestamp, import_kwh, export_kwh, gas_m3)
		 VALUES (?, ?, ?, ?, ?)`,
		r.DeviceID,
		r.Timestamp,
		nullable(r.ImportKwh),
		nullable(r.ExportKwh),
		nullable(r.GasM3),
	)
	if err != nil && strings.Contains(err.Error(), "UNIQUE constraint failed") {
		return ErrDuplicateReading
	}
	return err
}

// QueryReadings returns the device's readings in [start, end), ordered by
// timestamp ascending. This is the read contract the aggregation views
// build on.
func (s *Store) QueryReadings(ctx context.Context, deviceID string, start, end time.Time) ([]Reading, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT device_id, timestamp, import_kwh, export_kwh, gas_m3
		 FROM readings
		 WHERE device_id = ? AND timestamp >= ? AND timestamp < ?
		 ORDER BY timestamp ASC`,
		deviceID, start.Unix(), end.Unix(),
	)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var readings []Reading
	for rows.Next() {
		r, err := scanReading(rows)
		if err != nil {
			return nil, err
		}
		readings = append(readings, r)
	}
	return readings, rows.Err()
}

// LatestReading returns the most recent reading for the device, or nil when
// none exists yet.
func (s *Store) LatestReading(ctx context.Context, deviceID string) (*Reading, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT device_id, timestamp, import_kwh, export_kwh, gas_m3
		 FROM readings
		 WHERE device_id = ?
		 ORDER BY timestamp DESC
		 LIMIT 1`,
		deviceID,
	)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	if !rows.Next() {
		return nil, rows.Err()
	}
	r, err := scanReading(rows)
	if err != nil {
		return nil, err
	}
	return &r, nil
}

// PruneBefore deletes raw readings older than cutoff. The scheduler calls
// this at most once per day with the configured retention horizon.
func (s *Store) PruneBefore(ctx context.Context, cutoff time.Time) (int64, error) {
	res, err := s.db.ExecContext(ctx,
		"DELETE FROM readings WHERE timestamp < ?", cutoff.Unix())
	if err != nil {
		return 0, err
	}
	return res.RowsAffected()
}

func scanReading(rows *sql.Rows) (Reading, error) {
	var r Reading
	var imp, exp, gas sql.NullFloat64
	if err := rows.Scan(&r.DeviceID, &r.Timestamp, &imp, &exp, &gas); err != nil {
		return r, err
	}
	r.ImportKwh = floatPtr(imp)
	r.ExportKwh = floatPtr(exp)
	r.GasM3 = floatPtr(gas)
	return r, nil
}

func nullable(v *float64) any {
	if v == nil {
		return nil
	}
	return *v
}

func floatPtr(v sql.NullFloat64) *float64 {
	if !v.Valid {
		return nil
	}
	f := v.Float64
	return &f
}
