package register

import (
	"fmt"
	"strconv"
	"strings"

	"github.com/nerrad567/ems-console/internal/device"
	"github.com/nerrad567/ems-console/internal/form"
)

const (
	msgNameRequired     = "El nombre del registro es obligatorio"
	msgAddressRequired  = "La dirección es obligatoria"
	msgAddressInvalid   = "La dirección debe ser un número mayor o igual a 0"
	msgTypeRequired     = "El tipo de registro es obligatorio"
	msgTypeInvalid      = "El tipo de registro debe ser Holding, Input, Coil o Discrete"
	msgDataTypeRequired = "El tipo de dato es obligatorio"
	msgDataTypeInvalid  = "El tipo de dato no es válido"
	msgScaleInvalid     = "La escala debe ser un número mayor que 0"
	msgUnitRequired     = "La unidad es obligatoria"
	msgDuplicateName    = "Ya existe un registro con ese nombre en este dispositivo"
	msgDuplicateAddress = "Ya existe un registro con esa dirección en este dispositivo"
	msgAddressRange     = "La dirección debe estar entre %d y %d"
)

// Form is the raw register input submitted by the UI.
type Form struct {
	Name     form.Value `json:"name"`
	Address  form.Value `json:"address"`
	Type     form.Value `json:"type"`
	DataType form.Value `json:"dataType"`
	Scale    form.Value `json:"scale"`
	Unit     form.Value `json:"unit"`
}

// FormOf renders a stored register back into form values.
func FormOf(r *Register) Form {
	return Form{
		Name:     form.Value(r.Name),
		Address:  form.Value(strconv.Itoa(r.Address)),
		Type:     form.Value(r.Type),
		DataType: form.Value(r.DataType),
		Scale:    form.Value(strconv.FormatFloat(r.Scale, 'g', -1, 64)),
		Unit:     form.Value(r.Unit),
	}
}

// ValidateForm checks a register submission. existing holds the registers
// of the owning device; current is the register being edited, or nil.
// owner is the owning device, or nil when unknown, in which case the
// address range is not checked.
func ValidateForm(f Form, current *Register, existing []Register, owner *device.Device) []string {
	var msgs []string

	if f.Name.Empty() {
		msgs = append(msgs, msgNameRequired)
	}

	address, addressOK := 0, false
	if f.Address.Empty() {
		msgs = append(msgs, msgAddressRequired)
	} else if n, ok := f.Address.Int(); !ok || n < 0 {
		msgs = append(msgs, msgAddressInvalid)
	} else {
		address, addressOK = n, true
	}

	if f.Type.Empty() {
		msgs = append(msgs, msgTypeRequired)
	} else if _, err := ParseTable(f.Type.String()); err != nil {
		msgs = append(msgs, msgTypeInvalid)
	}

	if f.DataType.Empty() {
		msgs = append(msgs, msgDataTypeRequired)
	} else if _, err := ParseDataType(f.DataType.String()); err != nil {
		msgs = append(msgs, msgDataTypeInvalid)
	}

	if scale, ok := f.Scale.Float(); !ok || scale <= 0 {
		msgs = append(msgs, msgScaleInvalid)
	}
	if f.Unit.Empty() {
		msgs = append(msgs, msgUnitRequired)
	}

	name := strings.ToLower(f.Name.String())
	var dupName, dupAddress bool
	for i := range existing {
		other := &existing[i]
		if current != nil && other.ID == current.ID {
			continue
		}
		if name != "" && strings.ToLower(strings.TrimSpace(other.Name)) == name {
			dupName = true
		}
		if addressOK && other.Address == address {
			dupAddress = true
		}
	}
	if dupName {
		msgs = append(msgs, msgDuplicateName)
	}
	if dupAddress {
		msgs = append(msgs, msgDuplicateAddress)
	}

	if owner != nil && addressOK && !owner.Contains(address) {
		first, last := owner.AddressRange()
		msgs = append(msgs, fmt.Sprintf(msgAddressRange, first, last))
	}

	return msgs
}

// Register converts a validated form into a typed Register for deviceID.
// Unparsable fields produce a *form.ParseError.
func (f Form) Register(deviceID string) (Register, error) {
	r := Register{
		DeviceID: deviceID,
		Name:     f.Name.String(),
		Unit:     f.Unit.String(),
	}

	var err error
	if r.Address, err = form.RequireInt("address", f.Address); err != nil {
		return Register{}, err
	}
	if r.Scale, err = form.RequireFloat("scale", f.Scale); err != nil {
		return Register{}, err
	}
	if r.Type, err = ParseTable(f.Type.String()); err != nil {
		return Register{}, &form.ParseError{Field: "type", Value: string(f.Type), Want: "holding, input, coil or discrete"}
	}
	if r.DataType, err = ParseDataType(f.DataType.String()); err != nil {
		return Register{}, &form.ParseError{Field: "dataType", Value: string(f.DataType), Want: "register data type"}
	}
	return r, nil
}
