package connection

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/nerrad567/ems-console/internal/device"
	"github.com/nerrad567/ems-console/internal/infrastructure/mqtt"
)

// reportTimeout bounds the store write for one MQTT status report.
const reportTimeout = 5 * time.Second

// statusReport is the payload an external poller publishes on
// {prefix}/devices/{id}/report.
type statusReport struct {
	Status string `json:"status"`
}

// ReportHandler returns an MQTT handler that applies status reports from
// external pollers. Subscribe it to topics.AllDeviceReports().
func (m *Manager) ReportHandler(topics mqtt.Topics) mqtt.MessageHandler {
	return func(topic string, payload []byte) error {
		id, ok := topics.ParseDeviceReport(topic)
		if !ok {
			return fmt.Errorf("unexpected report topic %q", topic)
		}

		var r statusReport
		if err := json.Unmarshal(payload, &r); err != nil {
			return fmt.Errorf("decoding report for %s: %w", id, err)
		}

		status, err := device.ParseStatus(r.Status)
		if err != nil {
			return err
		}

		ctx, cancel := context.WithTimeout(context.Background(), reportTimeout)
		defer cancel()
		_, err = m.Report(ctx, id, status)
		return err
	}
}
