// Package aggregator is the read-side boundary over stored readings: it
// resamples incremental deltas into fixed buckets and prices them with the
// configured tariffs. It never writes to the store.
package aggregator

import (
	"context"
	"sort"
	"time"

	"github.com/dvhome/house_energy_monitor/pkg/config"
	"github.com/dvhome/house_energy_monitor/pkg/meterdb"
)

// ReadingSource is the slice of the store the aggregation views consume.
type ReadingSource interface {
	QueryReadings(ctx context.Context, deviceID string, start, end time.Time) ([]meterdb.Reading, error)
}

// roundToTenMinStart returns the start of the 10-minute slot containing t.
func roundToTenMinStart(t time.Time) time.Time {
	return t.UTC().Truncate(10 * time.Minute)
}

// roundToDayStart returns the start of the day containing t.
func roundToDayStart(t time.Time) time.Time {
	t = t.UTC()
	return time.Date(t.Year(), t.Month(), t.Day(), 0, 0, 0, 0, time.UTC)
}

// roundToWeekStart returns the Monday starting the week containing t.
func roundToWeekStart(t time.Time) time.Time {
	day := roundToDayStart(t)
	offset := (int(day.Weekday()) + 6) % 7
	return day.AddDate(0, 0, -offset)
}

// roundToMonthStart returns the start of the month containing t.
func roundToMonthStart(t time.Time) time.Time {
	t = t.UTC()
	return time.Date(t.Year(), t.Month(), 1, 0, 0, 0, 0, time.UTC)
}

// roundToYearStart returns the start of the year containing t.
func roundToYearStart(t time.Time) time.Time {
	t = t.UTC()
	return time.Date(t.Year(), 1, 1, 0, 0, 0, 0, time.UTC)
}

func bucketStart(t time.Time, interval Interval) time.Time {
	switch interval {
	case Daily:
		return roundToDayStart(t)
	case Weekly:
		return roundToWeekStart(t)
	case Monthly:
		return roundToMonthStart(t)
	case Yearly:
		return roundToYearStart(t)
	default:
		return roundToTenMinStart(t)
	}
}

// Resample sums incremental readings into fixed buckets and applies the
// tariff rates. Readings are expected ordered ascending, as QueryReadings
// returns them; output buckets are ordered ascending as well. Buckets with
// no readings are simply absent, a device outage shows up as a gap.
func Resample(readings []meterdb.Reading, interval Interval, tariffs config.TariffConfig) []Bucket {
	byStart := make(map[time.Time]*Bucket)
	for i := range readings {
		r := &readings[i]
		start := bucketStart(time.Unix(r.Timestamp, 0), interval)
		b, ok := byStart[start]
		if !ok {
			b = &Bucket{Start: start}
			byStart[start] = b
		}
		if r.ImportKwh != nil {
			b.ImportKwh += *r.ImportKwh
		}
		if r.ExportKwh != nil {
			b.ExportKwh -= *r.ExportKwh
		}
		if r.GasM3 != nil {
			b.GasM3 += *r.GasM3
		}
	}

	buckets := make([]Bucket, 0, len(byStart))
	for _, b := range byStart {
		b.ImportCost = b.ImportKwh * tariffs.ImportEurPerKwh
		b.ExportCost = b.ExportKwh * tariffs.ExportEurPerKwh
		b.GasCost = b.GasM3 * tariffs.GasEurPerM3
		buckets = append(buckets, *b)
	}
	sort.Slice(buckets, func(i, j int) bool {
		return buckets[i].Start.Before(buckets[j].Start)
	})
	return buckets
}

// FetchUsage queries [start, end) for the device and resamples into
// interval buckets with tariff costs applied.
func FetchUsage(ctx context.Context, src ReadingSource, deviceID string, start, end time.Time, interval Interval, tariffs config.TariffConfig) ([]Bucket, error) {
	readings, err := src.QueryReadings(ctx, deviceID, start, end)
	if err != nil {
		return nil, err
	}
	return Resample(readings, interval, tariffs), nil
}
