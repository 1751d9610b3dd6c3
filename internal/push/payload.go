package push

import (
	"github.com/nerrad567/ems-console/internal/device"
	"github.com/nerrad567/ems-console/internal/register"
)

// Payload modes.
const (
	PayloadNested = "nested"
	PayloadFlat   = "flat"
)

// Item is one device and its registers.
type Item struct {
	Device    device.Device
	Registers []register.Register
}

type nestedBody struct {
	Device    device.Device       `json:"device"`
	Registers []register.Register `json:"registers"`
}

// flatBody is the simplified device-parameter object some backends accept.
type flatBody struct {
	DeviceName   string `json:"deviceName"`
	DeviceType   string `json:"deviceType"`
	Protocol     string `json:"protocol"`
	ModbusID     int    `json:"modbusId"`
	StartAddress int    `json:"startAddress"`
	Registers    int    `json:"registers"`

	IPAddress string `json:"ipAddress,omitempty"`
	Port      int    `json:"port,omitempty"`

	SerialPort string `json:"serialPort,omitempty"`
	BaudRate   int    `json:"baudRate,omitempty"`
	DataBits   int    `json:"dataBits,omitempty"`
	Parity     string `json:"parity,omitempty"`
	StopBits   int    `json:"stopBits,omitempty"`
}

func buildBody(mode string, it Item) any {
	if mode != PayloadFlat {
		regs := it.Registers
		if regs == nil {
			regs = []register.Register{}
		}
		return nestedBody{Device: it.Device, Registers: regs}
	}

	d := it.Device
	b := flatBody{
		DeviceName:   d.Name,
		DeviceType:   d.Type,
		Protocol:     string(d.Protocol),
		ModbusID:     d.ModbusID,
		StartAddress: d.StartAddress,
		Registers:    d.Registers,
	}
	if tcp := d.TCP(); tcp != nil {
		b.IPAddress, b.Port = tcp.IPAddress, tcp.Port
	}
	if rtu := d.RTU(); rtu != nil {
		b.SerialPort = rtu.SerialPort
		b.BaudRate = rtu.BaudRate
		b.DataBits = rtu.DataBits
		b.Parity = string(rtu.Parity)
		b.StopBits = rtu.StopBits
	}
	return b
}
