package connection

import (
	"fmt"
	"slices"

	"go.bug.st/serial"
)

// listPorts enumerates serial ports. Tests replace it.
var listPorts = serial.GetPortsList

// SerialPorts returns the names of the local serial ports, sorted, for the
// RTU device form.
func SerialPorts() ([]string, error) {
	ports, err := listPorts()
	if err != nil {
		return nil, fmt.Errorf("listing serial ports: %w", err)
	}
	if ports == nil {
		ports = []string{}
	}
	slices.Sort(ports)
	return ports, nil
}
