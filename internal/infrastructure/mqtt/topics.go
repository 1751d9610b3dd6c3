package mqtt

import (
	"fmt"
	"strings"
)

// DefaultTopicPrefix is used when the configuration leaves topic_prefix empty.
const DefaultTopicPrefix = "ems"

// Topics builds the console's MQTT topics under a common prefix.
//
//	topics := mqtt.Topics{Prefix: "ems"}
//	topics.Event("device.created")   // ems/events/device.created
//	topics.DeviceStatus("abc")       // ems/devices/abc/status
type Topics struct {
	Prefix string
}

func (t Topics) prefix() string {
	if t.Prefix == "" {
		return DefaultTopicPrefix
	}
	return strings.TrimSuffix(t.Prefix, "/")
}

// Event returns the topic for console change events.
//
// Example: ems/events/register.updated
func (t Topics) Event(eventType string) string {
	return fmt.Sprintf("%s/events/%s", t.prefix(), eventType)
}

// DeviceStatus returns the retained connection status topic of a device.
//
// Example: ems/devices/3f2a.../status
func (t Topics) DeviceStatus(deviceID string) string {
	return fmt.Sprintf("%s/devices/%s/status", t.prefix(), deviceID)
}

// DeviceReport returns the topic an external poller uses to report a
// device's connection state to the console.
//
// Example: ems/devices/3f2a.../report
func (t Topics) DeviceReport(deviceID string) string {
	return fmt.Sprintf("%s/devices/%s/report", t.prefix(), deviceID)
}

// AllDeviceReports matches every DeviceReport topic.
//
// Pattern: ems/devices/+/report
func (t Topics) AllDeviceReports() string {
	return fmt.Sprintf("%s/devices/+/report", t.prefix())
}

// ParseDeviceReport extracts the device ID from a DeviceReport topic.
func (t Topics) ParseDeviceReport(topic string) (string, bool) {
	rest, ok := strings.CutPrefix(topic, t.prefix()+"/devices/")
	if !ok {
		return "", false
	}
	id, ok := strings.CutSuffix(rest, "/report")
	if !ok || id == "" || strings.Contains(id, "/") {
		return "", false
	}
	return id, true
}

// SystemStatus returns the console's online/offline topic.
//
// Example: ems/system/status
func (t Topics) SystemStatus() string {
	return fmt.Sprintf("%s/system/status", t.prefix())
}
