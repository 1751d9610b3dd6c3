package register

import (
	"fmt"
	"strings"
	"time"
)

// Table is the Modbus data table a register lives in.
type Table string

// Modbus tables.
const (
	TableHolding  Table = "holding"
	TableInput    Table = "input"
	TableCoil     Table = "coil"
	TableDiscrete Table = "discrete"
)

// ParseTable accepts any casing of the table names.
func ParseTable(s string) (Table, error) {
	switch t := Table(strings.ToLower(strings.TrimSpace(s))); t {
	case TableHolding, TableInput, TableCoil, TableDiscrete:
		return t, nil
	default:
		return "", fmt.Errorf("%w: %q", ErrInvalidTable, s)
	}
}

// DataType is how the raw register words are interpreted.
type DataType string

// Data types.
const (
	DataTypeInt16   DataType = "int16"
	DataTypeUint16  DataType = "uint16"
	DataTypeInt32   DataType = "int32"
	DataTypeUint32  DataType = "uint32"
	DataTypeFloat32 DataType = "float32"
	DataTypeFloat64 DataType = "float64"
	DataTypeString  DataType = "string"
)

// ParseDataType accepts the canonical names plus the float and double
// aliases.
func ParseDataType(s string) (DataType, error) {
	switch v := strings.ToLower(strings.TrimSpace(s)); v {
	case "float":
		return DataTypeFloat32, nil
	case "double":
		return DataTypeFloat64, nil
	default:
		switch dt := DataType(v); dt {
		case DataTypeInt16, DataTypeUint16, DataTypeInt32, DataTypeUint32,
			DataTypeFloat32, DataTypeFloat64, DataTypeString:
			return dt, nil
		}
		return "", fmt.Errorf("%w: %q", ErrInvalidDataType, s)
	}
}

// Status is the last read outcome of a register.
type Status string

// Register statuses.
const (
	StatusSuccess Status = "success"
	StatusError   Status = "error"
)

// Register is one Modbus data point owned by a device.
type Register struct {
	ID        string    `json:"id"`
	DeviceID  string    `json:"deviceId"`
	Name      string    `json:"name"`
	Address   int       `json:"address"`
	Type      Table     `json:"type"`
	DataType  DataType  `json:"dataType"`
	Scale     float64   `json:"scale"`
	Unit      string    `json:"unit"`
	Status    Status    `json:"status"`
	CreatedAt time.Time `json:"createdAt"`
	UpdatedAt time.Time `json:"updatedAt"`
}

// DeepCopy returns a copy of r.
func (r *Register) DeepCopy() *Register {
	if r == nil {
		return nil
	}
	cp := *r
	return &cp
}

// Patch is a partial update. Nil fields are left unchanged. The owning
// device cannot be changed.
type Patch struct {
	Name     *string
	Address  *int
	Type     *Table
	DataType *DataType
	Scale    *float64
	Unit     *string
	Status   *Status
}

// PatchFrom builds a patch that overwrites every user-editable field with
// the values of r.
func PatchFrom(r Register) Patch {
	return Patch{
		Name:     &r.Name,
		Address:  &r.Address,
		Type:     &r.Type,
		DataType: &r.DataType,
		Scale:    &r.Scale,
		Unit:     &r.Unit,
	}
}

func (p Patch) apply(r *Register) {
	if p.Name != nil {
		r.Name = *p.Name
	}
	if p.Address != nil {
		r.Address = *p.Address
	}
	if p.Type != nil {
		r.Type = *p.Type
	}
	if p.DataType != nil {
		r.DataType = *p.DataType
	}
	if p.Scale != nil {
		r.Scale = *p.Scale
	}
	if p.Unit != nil {
		r.Unit = *p.Unit
	}
	if p.Status != nil {
		r.Status = *p.Status
	}
}
