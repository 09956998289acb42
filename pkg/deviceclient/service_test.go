package deviceclient

import (
	"context"
	"net"
	"net/http"
	"net/http/httptest"
	"net/url"
	"strconv"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/dvhome/house_energy_monitor/pkg/config"
)

// deviceFor points a descriptor at an httptest server.
func deviceFor(t *testing.T, srv *httptest.Server, supports ...config.Metric) *config.DeviceConfig {
	t.Helper()
	u, err := url.Parse(srv.URL)
	require.NoError(t, err)
	host, portStr, err := net.SplitHostPort(u.Host)
	require.NoError(t, err)
	port, err := strconv.Atoi(portStr)
	require.NoError(t, err)

	return &config.DeviceConfig{
		ID:       "main_meter",
		IP:       host,
		Port:     port,
		APIPath:  "/api/v1",
		Supports: supports,
		Active:   true,
	}
}

func TestPollParsesSupportedCounters(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/api/v1/data", r.URL.Path)
		w.Write([]byte(`{
			"total_power_import_kwh": 13779.338,
			"total_power_export_kwh": 13086.777,
			"total_gas_m3": 2569.646,
			"active_power_w": -543
		}`))
	}))
	defer srv.Close()

	dev := deviceFor(t, srv, config.MetricImport, config.MetricExport, config.MetricGas)
	sample, err := NewClient().Poll(context.Background(), dev)

	require.NoError(t, err)
	assert.Equal(t, "main_meter", sample.DeviceID)
	assert.InDelta(t, 13779.338, sample.Counters[config.MetricImport], 1e-9)
	assert.InDelta(t, 13086.777, sample.Counters[config.MetricExport], 1e-9)
	assert.InDelta(t, 2569.646, sample.Counters[config.MetricGas], 1e-9)
}

func TestAbsentUnsupportedMetricIsNormal(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		// An electricity-only socket has no gas field at all.
		w.Write([]byte(`{"total_power_import_kwh": 12.5, "active_power_w": 80}`))
	}))
	defer srv.Close()

	dev := deviceFor(t, srv, config.MetricImport)
	sample, err := NewClient().Poll(context.Background(), dev)

	require.NoError(t, err)
	_, hasGas := sample.Counters[config.MetricGas]
	assert.False(t, hasGas)
}

func TestMissingSupportedMetricIsMalformed(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(`{"total_power_import_kwh": 12.5}`))
	}))
	defer srv.Close()

	dev := deviceFor(t, srv, config.MetricImport, config.MetricGas)
	_, err := NewClient().Poll(context.Background(), dev)

	var pollErr *PollError
	require.ErrorAs(t, err, &pollErr)
	assert.Equal(t, KindMalformed, pollErr.Kind)
	assert.Equal(t, "main_meter", pollErr.DeviceID)
}

func TestNonNumericFieldIsMalformed(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(`{"total_power_import_kwh": "not a number"}`))
	}))
	defer srv.Close()

	dev := deviceFor(t, srv, config.MetricImport)
	_, err := NewClient().Poll(context.Background(), dev)

	var pollErr *PollError
	require.ErrorAs(t, err, &pollErr)
	assert.Equal(t, KindMalformed, pollErr.Kind)
}

func TestErrorStatusIsTyped(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusInternalServerError)
	}))
	defer srv.Close()

	dev := deviceFor(t, srv, config.MetricImport)
	_, err := NewClient().Poll(context.Background(), dev)

	var pollErr *PollError
	require.ErrorAs(t, err, &pollErr)
	assert.Equal(t, KindHTTPStatus, pollErr.Kind)
}

func TestConnectionRefusedIsTyped(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {}))
	dev := deviceFor(t, srv, config.MetricImport)
	srv.Close() // nobody listening anymore

	_, err := NewClient().Poll(context.Background(), dev)

	var pollErr *PollError
	require.ErrorAs(t, err, &pollErr)
	assert.Equal(t, KindConnection, pollErr.Kind)
}

func TestReadPowerKeepsSign(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(`{"active_power_w": -1250.5}`))
	}))
	defer srv.Close()

	dev := deviceFor(t, srv, config.MetricImport)
	power, err := NewClient().ReadPower(context.Background(), dev)

	require.NoError(t, err)
	// Negative means the house is exporting.
	assert.InDelta(t, -1250.5, power, 1e-9)
}

func TestReadPowerMissingFieldIsMalformed(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(`{"total_power_import_kwh": 1.0}`))
	}))
	defer srv.Close()

	dev := deviceFor(t, srv, config.MetricImport)
	_, err := NewClient().ReadPower(context.Background(), dev)

	var pollErr *PollError
	require.ErrorAs(t, err, &pollErr)
	assert.Equal(t, KindMalformed, pollErr.Kind)
}
