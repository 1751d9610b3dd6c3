package register

import (
	"context"
	"errors"
	"slices"
	"testing"

	"github.com/nerrad567/ems-console/internal/device"
	"github.com/nerrad567/ems-console/internal/form"
	"github.com/nerrad567/ems-console/internal/store"
)

func newStore() *store.Store {
	return store.New(store.NewMemoryBackend(), store.Options{ConflictDetection: true})
}

func voltageForm(name, address string) Form {
	return Form{
		Name:     form.Value(name),
		Address:  form.Value(address),
		Type:     "holding",
		DataType: "int16",
		Scale:    "1",
		Unit:     "V",
	}
}

func TestValidateForm_Containment(t *testing.T) {
	owner := &device.Device{StartAddress: 100, Registers: 10}
	rangeMsg := "La dirección debe estar entre 100 y 109"

	tests := []struct {
		address string
		want    []string
	}{
		{"100", nil},
		{"109", nil},
		{"110", []string{rangeMsg}},
		{"99", []string{rangeMsg}},
	}

	for _, tt := range tests {
		t.Run(tt.address, func(t *testing.T) {
			got := ValidateForm(voltageForm("V1", tt.address), nil, nil, owner)
			if !slices.Equal(got, tt.want) {
				t.Errorf("ValidateForm() = %q, want %q", got, tt.want)
			}
		})
	}
}

func TestValidateForm_UnknownOwnerSkipsRange(t *testing.T) {
	if got := ValidateForm(voltageForm("V1", "5000"), nil, nil, nil); len(got) != 0 {
		t.Errorf("ValidateForm() = %q, want none", got)
	}
}

func TestValidateForm_Fields(t *testing.T) {
	tests := []struct {
		name string
		form Form
		want []string
	}{
		{
			name: "all missing",
			form: Form{},
			want: []string{
				msgNameRequired, msgAddressRequired, msgTypeRequired,
				msgDataTypeRequired, msgScaleInvalid, msgUnitRequired,
			},
		},
		{
			name: "negative address",
			form: voltageForm("V1", "-1"),
			want: []string{msgAddressInvalid},
		},
		{
			name: "bad enums",
			form: Form{Name: "V1", Address: "1", Type: "register", DataType: "int8", Scale: "1", Unit: "V"},
			want: []string{msgTypeInvalid, msgDataTypeInvalid},
		},
		{
			name: "zero scale",
			form: Form{Name: "V1", Address: "1", Type: "Input", DataType: "float", Scale: "0", Unit: "V"},
			want: []string{msgScaleInvalid},
		},
		{
			name: "non-numeric scale",
			form: Form{Name: "V1", Address: "1", Type: "Coil", DataType: "double", Scale: "abc", Unit: "V"},
			want: []string{msgScaleInvalid},
		},
		{
			name: "fractional scale",
			form: Form{Name: "P", Address: "1", Type: "discrete", DataType: "float64", Scale: "0.01", Unit: "kW"},
			want: nil,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := ValidateForm(tt.form, nil, nil, nil)
			if !slices.Equal(got, tt.want) {
				t.Errorf("ValidateForm() = %q, want %q", got, tt.want)
			}
		})
	}
}

func TestValidateForm_Uniqueness(t *testing.T) {
	existing := []Register{
		{ID: "r1", DeviceID: "d1", Name: "V1", Address: 5},
		{ID: "r2", DeviceID: "d1", Name: "I1", Address: 6},
	}

	tests := []struct {
		name    string
		form    Form
		current *Register
		want    []string
	}{
		{"duplicate address", voltageForm("V2", "5"), nil, []string{msgDuplicateAddress}},
		{"duplicate name any case", voltageForm("v1", "7"), nil, []string{msgDuplicateName}},
		{"edit keeps own values", voltageForm("V1", "5"), &existing[0], nil},
		{"edit onto another", voltageForm("I1", "6"), &existing[0], []string{msgDuplicateName, msgDuplicateAddress}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := ValidateForm(tt.form, tt.current, existing, nil)
			if !slices.Equal(got, tt.want) {
				t.Errorf("ValidateForm() = %q, want %q", got, tt.want)
			}
		})
	}
}

func TestForm_Register(t *testing.T) {
	r, err := Form{Name: "P", Address: "3", Type: "Holding", DataType: "float", Scale: "0.1", Unit: "kW"}.Register("d1")
	if err != nil {
		t.Fatalf("Register() error = %v", err)
	}
	if r.DeviceID != "d1" || r.Type != TableHolding || r.DataType != DataTypeFloat32 || r.Scale != 0.1 {
		t.Errorf("Register() = %+v", r)
	}

	_, err = voltageForm("V1", "five").Register("d1")
	var pe *form.ParseError
	if !errors.As(err, &pe) || pe.Field != "address" {
		t.Errorf("Register() error = %v, want ParseError for address", err)
	}
}

func TestRepository_AddThenDuplicateAddress(t *testing.T) {
	ctx := context.Background()
	repo := NewRepository(newStore())
	owner := &device.Device{ID: "d1", StartAddress: 0, Registers: 10}

	f := voltageForm("V1", "5")
	if msgs := ValidateForm(f, nil, nil, owner); len(msgs) != 0 {
		t.Fatalf("ValidateForm() = %q, want none", msgs)
	}
	reg, err := f.Register(owner.ID)
	if err != nil {
		t.Fatalf("Register() error = %v", err)
	}
	created, err := repo.Add(ctx, reg)
	if err != nil {
		t.Fatalf("Add() error = %v", err)
	}
	if created.ID == "" || created.Status != StatusSuccess || created.CreatedAt.IsZero() {
		t.Errorf("Add() = %+v, want generated id, success status, timestamp", created)
	}

	existing, err := repo.ListByDevice(ctx, owner.ID)
	if err != nil {
		t.Fatalf("ListByDevice() error = %v", err)
	}
	msgs := ValidateForm(voltageForm("V2", "5"), nil, existing, owner)
	if !slices.Equal(msgs, []string{msgDuplicateAddress}) {
		t.Errorf("second ValidateForm() = %q, want duplicate address", msgs)
	}
}

func TestRepository_UpdateDelete(t *testing.T) {
	ctx := context.Background()
	repo := NewRepository(newStore())

	created, err := repo.Add(ctx, Register{DeviceID: "d1", Name: "V1", Address: 1, Type: TableHolding, DataType: DataTypeInt16, Scale: 1, Unit: "V"})
	if err != nil {
		t.Fatalf("Add() error = %v", err)
	}

	unit := "kV"
	updated, err := repo.Update(ctx, created.ID, Patch{Unit: &unit})
	if err != nil {
		t.Fatalf("Update() error = %v", err)
	}
	if updated.Unit != "kV" || updated.Name != "V1" || updated.DeviceID != "d1" {
		t.Errorf("Update() = %+v", updated)
	}

	if _, err := repo.Update(ctx, "missing", Patch{Unit: &unit}); !errors.Is(err, ErrRegisterNotFound) {
		t.Errorf("Update(missing) error = %v, want ErrRegisterNotFound", err)
	}

	ok, err := repo.Delete(ctx, created.ID)
	if err != nil || !ok {
		t.Fatalf("Delete() = (%v, %v), want (true, nil)", ok, err)
	}
	ok, err = repo.Delete(ctx, created.ID)
	if err != nil || ok {
		t.Errorf("second Delete() = (%v, %v), want (false, nil)", ok, err)
	}
	if _, err := repo.GetByID(ctx, created.ID); !errors.Is(err, ErrRegisterNotFound) {
		t.Errorf("GetByID() error = %v, want ErrRegisterNotFound", err)
	}
}

func TestRepository_ListByDeviceNeverNil(t *testing.T) {
	regs, err := NewRepository(newStore()).ListByDevice(context.Background(), "none")
	if err != nil {
		t.Fatalf("ListByDevice() error = %v", err)
	}
	if regs == nil || len(regs) != 0 {
		t.Errorf("ListByDevice() = %v, want empty non-nil", regs)
	}
}

// Deleting a device through the device repository removes its registers
// and leaves other devices' registers alone.
func TestDeviceDeleteCascades(t *testing.T) {
	ctx := context.Background()
	st := newStore()
	regs := NewRepository(st)
	devices := device.NewRepository(st, regs)

	mk := func(name, ip string, id int) *device.Device {
		d, err := devices.Add(ctx, device.Device{
			Name: name, Type: "Medidor", Description: "x", Protocol: device.ProtocolTCP,
			TCPParams: &device.TCPParams{IPAddress: ip, Port: 502},
			ModbusID:  id, Registers: 10,
		})
		if err != nil {
			t.Fatalf("device Add() error = %v", err)
		}
		return d
	}
	a := mk("A", "10.0.0.1", 1)
	b := mk("B", "10.0.0.2", 2)

	for i, owner := range []string{a.ID, a.ID, b.ID} {
		if _, err := regs.Add(ctx, Register{DeviceID: owner, Name: "R", Address: i}); err != nil {
			t.Fatalf("register Add() error = %v", err)
		}
	}

	existed, err := devices.Delete(ctx, a.ID)
	if err != nil || !existed {
		t.Fatalf("Delete() = (%v, %v), want (true, nil)", existed, err)
	}

	left, _ := regs.ListByDevice(ctx, a.ID) //nolint:errcheck // memory backend
	if len(left) != 0 {
		t.Errorf("ListByDevice(deleted) = %d registers, want 0", len(left))
	}
	all, _ := regs.List(ctx) //nolint:errcheck // memory backend
	if len(all) != 1 || all[0].DeviceID != b.ID {
		t.Errorf("List() = %+v, want only B's register", all)
	}

	n, err := regs.DeleteByDevice(ctx, a.ID)
	if err != nil || n != 0 {
		t.Errorf("DeleteByDevice(again) = (%d, %v), want (0, nil)", n, err)
	}
}
