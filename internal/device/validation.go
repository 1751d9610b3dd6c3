package device

import (
	"regexp"
	"strconv"
	"strings"

	"github.com/nerrad567/ems-console/internal/form"
)

// Validation limits.
const (
	minModbusID = 1
	maxModbusID = 247
	minPort     = 1
	maxPort     = 65535
)

// ipPattern is the dotted-quad shape accepted by the UI. Octet ranges are
// not checked here.
var ipPattern = regexp.MustCompile(`^\d{1,3}\.\d{1,3}\.\d{1,3}\.\d{1,3}$`)

var (
	validDataBits = map[int]struct{}{7: {}, 8: {}}
	validStopBits = map[int]struct{}{1: {}, 2: {}}
)

// User-facing validation messages.
const (
	msgNameRequired         = "El nombre del dispositivo es obligatorio"
	msgTypeRequired         = "El tipo de dispositivo es obligatorio"
	msgDescriptionRequired  = "La descripción es obligatoria"
	msgProtocolRequired     = "El protocolo es obligatorio"
	msgProtocolInvalid      = "El protocolo debe ser TCP o RTU"
	msgModbusIDRequired     = "El ID Modbus es obligatorio"
	msgModbusIDRange        = "El ID Modbus debe ser un número entre 1 y 247"
	msgStartAddressRequired = "La dirección de inicio es obligatoria"
	msgStartAddressRange    = "La dirección de inicio debe ser un número mayor o igual a 0"
	msgRegistersRequired    = "El número de registros es obligatorio"
	msgRegistersRange       = "El número de registros debe ser un número mayor o igual a 1"
	msgIPRequired           = "La dirección IP es obligatoria"
	msgIPInvalid            = "La dirección IP no tiene un formato válido"
	msgPortRequired         = "El puerto es obligatorio"
	msgPortRange            = "El puerto debe ser un número entre 1 y 65535"
	msgSerialPortRequired   = "El puerto serie es obligatorio"
	msgBaudRateRequired     = "La velocidad en baudios es obligatoria y debe ser un número positivo"
	msgParityRequired       = "La paridad es obligatoria (None, Even u Odd)"
	msgDataBitsInvalid      = "Los bits de datos deben ser 7 u 8"
	msgStopBitsInvalid      = "Los bits de parada deben ser 1 o 2"
	msgDuplicateName        = "Ya existe un dispositivo con ese nombre"
	msgDuplicateModbusID    = "Ya existe un dispositivo con ese ID Modbus"
	msgDuplicateTCP         = "Ya existe un dispositivo TCP con esa IP y puerto"
	msgDuplicateSerialPort  = "Ya existe un dispositivo RTU en ese puerto serie"
)

// Form is the raw device input submitted by the UI. Field aliases used by
// different screens (name/deviceName, type/deviceType, ip/ipAddress) are
// all accepted; the short form wins when both are present.
type Form struct {
	Name         form.Value `json:"name"`
	DeviceName   form.Value `json:"deviceName"`
	Type         form.Value `json:"type"`
	DeviceType   form.Value `json:"deviceType"`
	Description  form.Value `json:"description"`
	Protocol     form.Value `json:"protocol"`
	ModbusID     form.Value `json:"modbusId"`
	StartAddress form.Value `json:"startAddress"`
	Registers    form.Value `json:"registers"`

	IP        form.Value `json:"ip"`
	IPAddress form.Value `json:"ipAddress"`
	Port      form.Value `json:"port"`

	SerialPort form.Value `json:"serialPort"`
	BaudRate   form.Value `json:"baudRate"`
	DataBits   form.Value `json:"dataBits"`
	Parity     form.Value `json:"parity"`
	StopBits   form.Value `json:"stopBits"`
}

// FormOf renders a stored device back into form values, for edits that
// overlay a partial submission onto the current record.
func FormOf(d *Device) Form {
	f := Form{
		DeviceName:   form.Value(d.Name),
		DeviceType:   form.Value(d.Type),
		Description:  form.Value(d.Description),
		Protocol:     form.Value(d.Protocol),
		ModbusID:     itoa(d.ModbusID),
		StartAddress: itoa(d.StartAddress),
		Registers:    itoa(d.Registers),
	}
	if d.TCPParams != nil {
		f.IPAddress = form.Value(d.IPAddress)
		f.Port = itoa(d.Port)
	}
	if d.RTUParams != nil {
		f.SerialPort = form.Value(d.SerialPort)
		f.BaudRate = itoa(d.BaudRate)
		f.DataBits = itoa(d.DataBits)
		f.Parity = form.Value(d.Parity)
		f.StopBits = itoa(d.StopBits)
	}
	return f
}

func (f Form) name() form.Value       { return form.FirstNonEmpty(f.Name, f.DeviceName) }
func (f Form) deviceType() form.Value { return form.FirstNonEmpty(f.Type, f.DeviceType) }
func (f Form) ip() form.Value         { return form.FirstNonEmpty(f.IP, f.IPAddress) }

// ValidateForm checks a device submission against the field rules and
// against the devices already stored. current is the record being edited,
// or nil on create; it is excluded from the uniqueness checks.
//
// It returns every problem found, in field order. An empty result means
// the form may be converted with Form.Device and persisted.
func ValidateForm(f Form, current *Device, existing []Device) []string {
	var msgs []string

	if f.name().Empty() {
		msgs = append(msgs, msgNameRequired)
	}
	if f.deviceType().Empty() {
		msgs = append(msgs, msgTypeRequired)
	}
	if f.Description.Empty() {
		msgs = append(msgs, msgDescriptionRequired)
	}

	var protocol Protocol
	if f.Protocol.Empty() {
		msgs = append(msgs, msgProtocolRequired)
	} else if p, err := ParseProtocol(f.Protocol.String()); err != nil {
		msgs = append(msgs, msgProtocolInvalid)
	} else {
		protocol = p
	}

	modbusID, modbusOK := checkInt(&msgs, f.ModbusID, msgModbusIDRequired, msgModbusIDRange, minModbusID, maxModbusID)
	checkInt(&msgs, f.StartAddress, msgStartAddressRequired, msgStartAddressRange, 0, -1)
	checkInt(&msgs, f.Registers, msgRegistersRequired, msgRegistersRange, 1, -1)

	var port int
	var portOK bool
	switch protocol {
	case ProtocolTCP:
		switch ip := f.ip(); {
		case ip.Empty():
			msgs = append(msgs, msgIPRequired)
		case !ipPattern.MatchString(ip.String()):
			msgs = append(msgs, msgIPInvalid)
		}
		port, portOK = checkInt(&msgs, f.Port, msgPortRequired, msgPortRange, minPort, maxPort)

	case ProtocolRTU:
		if f.SerialPort.Empty() {
			msgs = append(msgs, msgSerialPortRequired)
		}
		if baud, ok := f.BaudRate.Int(); !ok || baud <= 0 {
			msgs = append(msgs, msgBaudRateRequired)
		}
		if _, ok := ParseParity(f.Parity.String()); !ok {
			msgs = append(msgs, msgParityRequired)
		}
		if !inSet(f.DataBits, validDataBits) {
			msgs = append(msgs, msgDataBitsInvalid)
		}
		if !inSet(f.StopBits, validStopBits) {
			msgs = append(msgs, msgStopBitsInvalid)
		}
	}

	// Uniqueness against the other stored devices.
	name := strings.ToLower(f.name().String())
	ip := f.ip().String()
	serialPort := f.SerialPort.String()

	var dupName, dupModbus, dupTCP, dupSerial bool
	for i := range existing {
		other := &existing[i]
		if current != nil && other.ID == current.ID {
			continue
		}
		if name != "" && strings.ToLower(strings.TrimSpace(other.Name)) == name {
			dupName = true
		}
		if modbusOK && other.ModbusID == modbusID {
			dupModbus = true
		}
		switch protocol {
		case ProtocolTCP:
			if tcp := other.TCP(); tcp != nil && portOK && tcp.IPAddress == ip && tcp.Port == port {
				dupTCP = true
			}
		case ProtocolRTU:
			if rtu := other.RTU(); rtu != nil && serialPort != "" && rtu.SerialPort == serialPort {
				dupSerial = true
			}
		}
	}

	if dupName {
		msgs = append(msgs, msgDuplicateName)
	}
	if dupModbus {
		msgs = append(msgs, msgDuplicateModbusID)
	}
	if dupTCP {
		msgs = append(msgs, msgDuplicateTCP)
	}
	if dupSerial {
		msgs = append(msgs, msgDuplicateSerialPort)
	}

	return msgs
}

// Device converts a validated form into a typed Device. Only the
// parameters of the selected protocol are kept. Fields that cannot be
// parsed produce a *form.ParseError; run ValidateForm first to get
// user-facing messages instead.
func (f Form) Device() (Device, error) {
	protocol, err := ParseProtocol(f.Protocol.String())
	if err != nil {
		return Device{}, &form.ParseError{Field: "protocol", Value: string(f.Protocol), Want: "TCP or RTU"}
	}

	d := Device{
		Name:        f.name().String(),
		Type:        f.deviceType().String(),
		Description: f.Description.String(),
		Protocol:    protocol,
	}
	if d.ModbusID, err = form.RequireInt("modbusId", f.ModbusID); err != nil {
		return Device{}, err
	}
	if d.StartAddress, err = form.RequireInt("startAddress", f.StartAddress); err != nil {
		return Device{}, err
	}
	if d.Registers, err = form.RequireInt("registers", f.Registers); err != nil {
		return Device{}, err
	}

	switch protocol {
	case ProtocolTCP:
		port, err := form.RequireInt("port", f.Port)
		if err != nil {
			return Device{}, err
		}
		d.TCPParams = &TCPParams{IPAddress: f.ip().String(), Port: port}

	case ProtocolRTU:
		rtu := &RTUParams{SerialPort: f.SerialPort.String()}
		if rtu.BaudRate, err = form.RequireInt("baudRate", f.BaudRate); err != nil {
			return Device{}, err
		}
		if rtu.DataBits, err = form.RequireInt("dataBits", f.DataBits); err != nil {
			return Device{}, err
		}
		if rtu.StopBits, err = form.RequireInt("stopBits", f.StopBits); err != nil {
			return Device{}, err
		}
		parity, ok := ParseParity(f.Parity.String())
		if !ok {
			return Device{}, &form.ParseError{Field: "parity", Value: string(f.Parity), Want: "None, Even or Odd"}
		}
		rtu.Parity = parity
		d.RTUParams = rtu
	}

	return d, nil
}

// checkInt appends required or range messages for an integer field.
// hi < 0 means unbounded. It returns the parsed value when valid.
func checkInt(msgs *[]string, v form.Value, required, outOfRange string, lo, hi int) (int, bool) {
	if v.Empty() {
		*msgs = append(*msgs, required)
		return 0, false
	}
	n, ok := v.Int()
	if !ok || n < lo || (hi >= 0 && n > hi) {
		*msgs = append(*msgs, outOfRange)
		return 0, false
	}
	return n, true
}

func inSet(v form.Value, set map[int]struct{}) bool {
	n, ok := v.Int()
	if !ok {
		return false
	}
	_, found := set[n]
	return found
}

func itoa(n int) form.Value {
	return form.Value(strconv.Itoa(n))
}
