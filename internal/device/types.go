package device

import (
	"fmt"
	"net"
	"strconv"
	"strings"
	"time"
)

// Protocol selects the Modbus transport variant.
type Protocol string

// Supported protocols.
const (
	ProtocolTCP Protocol = "TCP"
	ProtocolRTU Protocol = "RTU"
)

// ParseProtocol accepts any casing of TCP or RTU.
func ParseProtocol(s string) (Protocol, error) {
	switch strings.ToUpper(strings.TrimSpace(s)) {
	case string(ProtocolTCP):
		return ProtocolTCP, nil
	case string(ProtocolRTU):
		return ProtocolRTU, nil
	default:
		return "", fmt.Errorf("%w: %q", ErrInvalidProtocol, s)
	}
}

// Status is the last known connection state of a device.
type Status string

// Connection states.
const (
	StatusConnected    Status = "Connected"
	StatusDisconnected Status = "Disconnected"
)

// ParseStatus accepts either connection state in any casing.
func ParseStatus(s string) (Status, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "connected":
		return StatusConnected, nil
	case "disconnected":
		return StatusDisconnected, nil
	default:
		return "", fmt.Errorf("%w: %q", ErrInvalidStatus, s)
	}
}

// Parity is the serial line parity for RTU devices.
type Parity string

// Parity values.
const (
	ParityNone Parity = "None"
	ParityEven Parity = "Even"
	ParityOdd  Parity = "Odd"
)

// ParseParity accepts the full names or their first letter, in any casing.
func ParseParity(s string) (Parity, bool) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "none", "n":
		return ParityNone, true
	case "even", "e":
		return ParityEven, true
	case "odd", "o":
		return ParityOdd, true
	default:
		return "", false
	}
}

// Letter returns the single-letter form used by serial libraries (N, E, O).
func (p Parity) Letter() string {
	switch p {
	case ParityEven:
		return "E"
	case ParityOdd:
		return "O"
	default:
		return "N"
	}
}

// TCPParams are the connection parameters of a Modbus TCP device.
type TCPParams struct {
	IPAddress string `json:"ipAddress"`
	Port      int    `json:"port"`
}

// RTUParams are the serial line parameters of a Modbus RTU device.
type RTUParams struct {
	SerialPort string `json:"serialPort"`
	BaudRate   int    `json:"baudRate"`
	DataBits   int    `json:"dataBits"`
	Parity     Parity `json:"parity"`
	StopBits   int    `json:"stopBits"`
}

// Device is a configured Modbus device.
//
// Exactly one of TCPParams and RTUParams is set, matching Protocol. Both
// are embedded so the JSON form stays flat: a TCP device serializes
// ipAddress and port next to the common fields, an RTU device its serial
// parameters, and the absent variant is omitted.
type Device struct {
	ID          string   `json:"id"`
	Name        string   `json:"deviceName"`
	Type        string   `json:"deviceType"`
	Description string   `json:"description"`
	Protocol    Protocol `json:"protocol"`

	*TCPParams
	*RTUParams

	ModbusID     int `json:"modbusId"`
	StartAddress int `json:"startAddress"`
	Registers    int `json:"registers"`

	Status    Status     `json:"status"`
	LastRead  *time.Time `json:"lastRead,omitempty"`
	CreatedAt time.Time  `json:"createdAt"`
	UpdatedAt time.Time  `json:"updatedAt"`
}

// TCP returns the TCP parameters, or nil for an RTU device.
func (d *Device) TCP() *TCPParams {
	if d.Protocol != ProtocolTCP {
		return nil
	}
	return d.TCPParams
}

// RTU returns the serial parameters, or nil for a TCP device.
func (d *Device) RTU() *RTUParams {
	if d.Protocol != ProtocolRTU {
		return nil
	}
	return d.RTUParams
}

// normalise drops the variant that does not match Protocol and makes sure
// the matching one is present.
func (d *Device) normalise() {
	switch d.Protocol {
	case ProtocolTCP:
		d.RTUParams = nil
		if d.TCPParams == nil {
			d.TCPParams = &TCPParams{}
		}
	case ProtocolRTU:
		d.TCPParams = nil
		if d.RTUParams == nil {
			d.RTUParams = &RTUParams{}
		}
	default:
		d.TCPParams = nil
		d.RTUParams = nil
	}
}

// AddressRange returns the first and last register address the device owns.
func (d *Device) AddressRange() (first, last int) {
	return d.StartAddress, d.StartAddress + d.Registers - 1
}

// Contains reports whether address lies inside the device's register block.
func (d *Device) Contains(address int) bool {
	first, last := d.AddressRange()
	return address >= first && address <= last
}

// Endpoint describes where the device is reached: host:port or the serial port.
func (d *Device) Endpoint() string {
	if tcp := d.TCP(); tcp != nil {
		return net.JoinHostPort(tcp.IPAddress, strconv.Itoa(tcp.Port))
	}
	if rtu := d.RTU(); rtu != nil {
		return rtu.SerialPort
	}
	return ""
}

// DeepCopy returns a copy that shares no pointers with d.
func (d *Device) DeepCopy() *Device {
	if d == nil {
		return nil
	}
	cp := *d
	if d.TCPParams != nil {
		tcp := *d.TCPParams
		cp.TCPParams = &tcp
	}
	if d.RTUParams != nil {
		rtu := *d.RTUParams
		cp.RTUParams = &rtu
	}
	if d.LastRead != nil {
		t := *d.LastRead
		cp.LastRead = &t
	}
	return &cp
}

// Patch is a partial update. Nil fields are left unchanged.
type Patch struct {
	Name         *string
	Type         *string
	Description  *string
	Protocol     *Protocol
	TCP          *TCPParams
	RTU          *RTUParams
	ModbusID     *int
	StartAddress *int
	Registers    *int
	Status       *Status
}

// PatchFrom builds a patch that overwrites every user-editable field of
// the target with the values of d.
func PatchFrom(d Device) Patch {
	p := Patch{
		Name:         &d.Name,
		Type:         &d.Type,
		Description:  &d.Description,
		Protocol:     &d.Protocol,
		ModbusID:     &d.ModbusID,
		StartAddress: &d.StartAddress,
		Registers:    &d.Registers,
	}
	if d.TCPParams != nil {
		tcp := *d.TCPParams
		p.TCP = &tcp
	}
	if d.RTUParams != nil {
		rtu := *d.RTUParams
		p.RTU = &rtu
	}
	return p
}

// apply merges the patch onto d and re-derives the protocol variant.
func (p Patch) apply(d *Device) {
	if p.Name != nil {
		d.Name = *p.Name
	}
	if p.Type != nil {
		d.Type = *p.Type
	}
	if p.Description != nil {
		d.Description = *p.Description
	}
	if p.Protocol != nil {
		d.Protocol = *p.Protocol
	}
	if p.TCP != nil {
		tcp := *p.TCP
		d.TCPParams = &tcp
	}
	if p.RTU != nil {
		rtu := *p.RTU
		d.RTUParams = &rtu
	}
	if p.ModbusID != nil {
		d.ModbusID = *p.ModbusID
	}
	if p.StartAddress != nil {
		d.StartAddress = *p.StartAddress
	}
	if p.Registers != nil {
		d.Registers = *p.Registers
	}
	if p.Status != nil {
		d.Status = *p.Status
	}
	d.normalise()
}
