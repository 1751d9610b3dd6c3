package influxdb

import (
	"time"

	"github.com/influxdata/influxdb-client-go/v2/api/write"
)

// Measurements written by the console.
const (
	MeasurementDeviceStatus = "device_status"
	MeasurementStats        = "console_stats"
	MeasurementPush         = "config_push"
)

// WriteDeviceStatus records a device connection change. The connected
// field is 1 or 0 so it can be averaged into an availability ratio.
func (c *Client) WriteDeviceStatus(deviceID, name, protocol string, connected bool) {
	value := 0
	if connected {
		value = 1
	}
	c.WritePoint(MeasurementDeviceStatus,
		map[string]string{
			"device_id": deviceID,
			"device":    name,
			"protocol":  protocol,
		},
		map[string]any{"connected": value},
	)
}

// StatsPoint holds the dashboard counters.
type StatsPoint struct {
	TotalDevices     int
	ConnectedDevices int
	TotalRegisters   int
	ActiveRegisters  int
}

// WriteStats records the dashboard counters.
func (c *Client) WriteStats(s StatsPoint) {
	c.WritePoint(MeasurementStats, nil, map[string]any{
		"total_devices":     s.TotalDevices,
		"connected_devices": s.ConnectedDevices,
		"total_registers":   s.TotalRegisters,
		"active_registers":  s.ActiveRegisters,
	})
}

// WritePushResult records the outcome of a configuration push run.
func (c *Client) WritePushResult(succeeded, failed int) {
	c.WritePoint(MeasurementPush, nil, map[string]any{
		"succeeded": succeeded,
		"failed":    failed,
	})
}

// WritePoint writes a point stamped with the current time. It is a no-op
// when the client is nil or closed.
func (c *Client) WritePoint(measurement string, tags map[string]string, fields map[string]any) {
	c.WritePointWithTime(measurement, tags, fields, time.Now())
}

// WritePointWithTime writes a point with an explicit timestamp.
func (c *Client) WritePointWithTime(measurement string, tags map[string]string, fields map[string]any, timestamp time.Time) {
	if !c.IsConnected() {
		return
	}
	c.writer.WritePoint(write.NewPoint(measurement, tags, fields, timestamp))
}
