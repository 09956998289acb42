package aggregator

import "time"

// Interval selects the bucket width for a resampled usage series.
type Interval string

const (
	TenMinute Interval = "10min"
	Daily     Interval = "daily"
	Weekly    Interval = "weekly"
	Monthly   Interval = "monthly"
	Yearly    Interval = "yearly"
)

// Bucket is one resampled slot of usage and cost. ExportKwh and ExportCost
// are negative: the stored deltas are non-negative, the sign flip to
// "production" happens here in the read side.
type Bucket struct {
	Start      time.Time `json:"start"`
	ImportKwh  float64   `json:"import_kwh"`
	ExportKwh  float64   `json:"export_kwh"`
	GasM3      float64   `json:"gas_m3"`
	ImportCost float64   `json:"import_cost"`
	ExportCost float64   `json:"export_cost"`
	GasCost    float64   `json:"gas_cost"`
}

// TotalCost is import minus the export credit plus gas, in euro.
func (b *Bucket) TotalCost() float64 {
	return b.ImportCost + b.ExportCost + b.GasCost
}
