package livebuffer

// Sample is one ephemeral live power point. PowerW is signed: positive is
// import, negative is export.
type Sample struct {
	DeviceID    string  `json:"device_id"`
	TimestampMs int64   `json:"timestamp_ms"`
	PowerW      float64 `json:"power_w"`
}
