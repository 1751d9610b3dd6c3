package influxdb_test

import (
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/nerrad567/ems-console/internal/infrastructure/config"
	"github.com/nerrad567/ems-console/internal/infrastructure/influxdb"
)

// fakeInflux answers pings and records line-protocol writes.
type fakeInflux struct {
	mu    sync.Mutex
	lines []string
}

func (f *fakeInflux) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	switch {
	case strings.HasSuffix(r.URL.Path, "/ping"):
		w.WriteHeader(http.StatusNoContent)
	case strings.HasSuffix(r.URL.Path, "/write"):
		body, _ := io.ReadAll(r.Body) //nolint:errcheck // test server
		f.mu.Lock()
		f.lines = append(f.lines, strings.Split(strings.TrimSpace(string(body)), "\n")...)
		f.mu.Unlock()
		w.WriteHeader(http.StatusNoContent)
	default:
		http.NotFound(w, r)
	}
}

func (f *fakeInflux) waitFor(t *testing.T, substr string) string {
	t.Helper()
	deadline := time.Now().Add(3 * time.Second)
	for time.Now().Before(deadline) {
		f.mu.Lock()
		for _, l := range f.lines {
			if strings.Contains(l, substr) {
				f.mu.Unlock()
				return l
			}
		}
		f.mu.Unlock()
		time.Sleep(20 * time.Millisecond)
	}
	t.Fatalf("no line containing %q was written", substr)
	return ""
}

func connectFake(t *testing.T) (*influxdb.Client, *fakeInflux) {
	t.Helper()
	fake := &fakeInflux{}
	srv := httptest.NewServer(fake)
	t.Cleanup(srv.Close)

	client, err := influxdb.Connect(config.InfluxDBConfig{
		Enabled:       true,
		URL:           srv.URL,
		Token:         "test-token",
		Org:           "ems",
		Bucket:        "console",
		BatchSize:     1,
		FlushInterval: 1,
	})
	if err != nil {
		t.Fatalf("Connect() error = %v", err)
	}
	t.Cleanup(func() { client.Close() })
	return client, fake
}

func TestConnect_Disabled(t *testing.T) {
	_, err := influxdb.Connect(config.InfluxDBConfig{Enabled: false})
	if !errors.Is(err, influxdb.ErrDisabled) {
		t.Errorf("Connect() error = %v, want ErrDisabled", err)
	}
}

func TestConnect_Unreachable(t *testing.T) {
	srv := httptest.NewServer(http.NotFoundHandler())
	url := srv.URL
	srv.Close()

	_, err := influxdb.Connect(config.InfluxDBConfig{Enabled: true, URL: url, Token: "t"})
	if !errors.Is(err, influxdb.ErrConnectionFailed) {
		t.Errorf("Connect() error = %v, want ErrConnectionFailed", err)
	}
}

func TestWriteDeviceStatus(t *testing.T) {
	client, fake := connectFake(t)

	client.WriteDeviceStatus("d1", "Meter1", "TCP", true)
	client.Flush()

	line := fake.waitFor(t, influxdb.MeasurementDeviceStatus)
	for _, want := range []string{"device_id=d1", "protocol=TCP", "connected=1i"} {
		if !strings.Contains(line, want) {
			t.Errorf("line %q missing %q", line, want)
		}
	}
}

func TestWriteStats(t *testing.T) {
	client, fake := connectFake(t)

	client.WriteStats(influxdb.StatsPoint{TotalDevices: 3, ConnectedDevices: 1, TotalRegisters: 7, ActiveRegisters: 2})
	client.Flush()

	line := fake.waitFor(t, influxdb.MeasurementStats)
	if !strings.Contains(line, "total_registers=7i") {
		t.Errorf("line %q missing total_registers", line)
	}
}

func TestNilClientIgnoresWrites(t *testing.T) {
	var client *influxdb.Client

	if client.IsConnected() {
		t.Error("nil client should not be connected")
	}
	client.WriteDeviceStatus("d1", "Meter1", "TCP", false)
	client.WritePushResult(1, 0)
	client.Flush()
	if err := client.Close(); err != nil {
		t.Errorf("Close() error = %v", err)
	}
}

func TestWriteAfterClose(t *testing.T) {
	client, _ := connectFake(t)

	if err := client.Close(); err != nil {
		t.Fatalf("Close() error = %v", err)
	}
	if client.IsConnected() {
		t.Error("IsConnected() = true after Close()")
	}
	// Must not panic.
	client.WritePushResult(2, 1)
}
