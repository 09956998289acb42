// Package deviceclient issues single HTTP reads against a smart meter's
// local JSON API. Retrying is the poller's job, not ours.
package deviceclient

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net"
	"net/http"
	"net/url"
	"time"

	"github.com/dvhome/house_energy_monitor/pkg/config"
)

const (
	dialTimeout = 3 * time.Second
	readTimeout = 5 * time.Second
)

// apiResponse mirrors the HomeWizard-style /data payload. Pointers
// distinguish an absent field from a zero reading.
type apiResponse struct {
	TotalPowerImportKwh *float64 `json:"total_power_import_kwh"`
	TotalPowerExportKwh *float64 `json:"total_power_export_kwh"`
	TotalGasM3          *float64 `json:"total_gas_m3"`
	ActivePowerW        *float64 `json:"active_power_w"`
}

func (r *apiResponse) counter(m config.Metric) *float64 {
	switch m {
	case config.MetricImport:
		return r.TotalPowerImportKwh
	case config.MetricExport:
		return r.TotalPowerExportKwh
	case config.MetricGas:
		return r.TotalGasM3
	}
	return nil
}

type Client struct {
	http *http.Client
}

func NewClient() *Client {
	return &Client{
		http: &http.Client{
			Timeout: readTimeout,
			Transport: &http.Transport{
				DialContext: (&net.Dialer{Timeout: dialTimeout}).DialContext,
				// One device, one line. No reason to pool aggressively.
				MaxIdleConnsPerHost: 1,
			},
		},
	}
}

// dataURL builds http://{ip}:{port}{api_path}/data for the device.
func dataURL(dev *config.DeviceConfig) string {
	return fmt.Sprintf("http://%s%s/data",
		net.JoinHostPort(dev.IP, fmt.Sprint(dev.Port)), dev.APIPath)
}

// Poll fetches one snapshot of the device's cumulative counters.
// A supported metric that is missing or non-numeric in the response is a
// malformed-response error, never a crash.
func (c *Client) Poll(ctx context.Context, dev *config.DeviceConfig) (*RawSample, error) {
	body, err := c.fetch(ctx, dev)
	if err != nil {
		return nil, err
	}

	sample := &RawSample{
		DeviceID:   dev.ID,
		ReceivedAt: time.Now().UTC(),
		Counters:   make(map[config.Metric]float64, len(dev.Supports)),
	}
	for _, m := range dev.Supports {
		v := body.counter(m)
		if v == nil {
			return nil, &PollError{
				DeviceID: dev.ID,
				Kind:     KindMalformed,
				Err:      fmt.Errorf("missing or non-numeric field for %s", m),
			}
		}
		sample.Counters[m] = *v
	}
	return sample, nil
}

// ReadPower fetches the instantaneous power in watts, signed: positive is
// import from the grid, negative is export. Used by the live sampling loop.
func (c *Client) ReadPower(ctx context.Context, dev *config.DeviceConfig) (float64, error) {
	body, err := c.fetch(ctx, dev)
	if err != nil {
		return 0, err
	}
	if body.ActivePowerW == nil {
		return 0, &PollError{
			DeviceID: dev.ID,
			Kind:     KindMalformed,
			Err:      errors.New("missing active_power_w"),
		}
	}
	return *body.ActivePowerW, nil
}

func (c *Client) fetch(ctx context.Context, dev *config.DeviceConfig) (*apiResponse, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, dataURL(dev), nil)
	if err != nil {
		return nil, &PollError{DeviceID: dev.ID, Kind: KindConnection, Err: err}
	}

	resp, err := c.http.Do(req)
	if err != nil {
		return nil, &PollError{DeviceID: dev.ID, Kind: classifyTransport(err), Err: err}
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, &PollError{
			DeviceID: dev.ID,
			Kind:     KindHTTPStatus,
			Err:      fmt.Errorf("unexpected status %d", resp.StatusCode),
		}
	}

	var body apiResponse
	if err := json.NewDecoder(resp.Body).Decode(&body); err != nil {
		return nil, &PollError{DeviceID: dev.ID, Kind: KindMalformed, Err: err}
	}
	return &body, nil
}

func classifyTransport(err error) ErrorKind {
	var netErr net.Error
	if errors.As(err, &netErr) && netErr.Timeout() {
		return KindTimeout
	}
	var urlErr *url.Error
	if errors.As(err, &urlErr) && urlErr.Timeout() {
		return KindTimeout
	}
	return KindConnection
}
