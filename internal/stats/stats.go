// Package stats derives the dashboard counters from the stored collections.
package stats

import (
	"github.com/nerrad567/ems-console/internal/device"
	"github.com/nerrad567/ems-console/internal/register"
)

// Stats are the dashboard counters.
type Stats struct {
	TotalDevices     int `json:"totalDevices"`
	ConnectedDevices int `json:"connectedDevices"`
	TotalRegisters   int `json:"totalRegisters"`
	ActiveRegisters  int `json:"activeRegisters"`
}

// Compute counts devices and registers. A register is active when its
// status is success and its owning device is connected. The result is
// recomputed on every call.
func Compute(devices []device.Device, registers []register.Register) Stats {
	connected := make(map[string]struct{}, len(devices))
	s := Stats{
		TotalDevices:   len(devices),
		TotalRegisters: len(registers),
	}
	for i := range devices {
		if devices[i].Status == device.StatusConnected {
			s.ConnectedDevices++
			connected[devices[i].ID] = struct{}{}
		}
	}
	for i := range registers {
		if registers[i].Status != register.StatusSuccess {
			continue
		}
		if _, ok := connected[registers[i].DeviceID]; ok {
			s.ActiveRegisters++
		}
	}
	return s
}
