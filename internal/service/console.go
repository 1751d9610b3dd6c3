package service

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sync"

	"github.com/nerrad567/ems-console/internal/device"
	"github.com/nerrad567/ems-console/internal/events"
	"github.com/nerrad567/ems-console/internal/form"
	"github.com/nerrad567/ems-console/internal/register"
	"github.com/nerrad567/ems-console/internal/stats"
)

// Logger defines the logging interface used by Console.
type Logger interface {
	Debug(msg string, args ...any)
	Info(msg string, args ...any)
	Warn(msg string, args ...any)
	Error(msg string, args ...any)
}

type noopLogger struct{}

func (noopLogger) Debug(string, ...any) {}
func (noopLogger) Info(string, ...any)  {}
func (noopLogger) Warn(string, ...any)  {}
func (noopLogger) Error(string, ...any) {}

// Console validates, persists and announces device and register changes.
type Console struct {
	devices   *device.Repository
	registers *register.Repository
	events    events.Publisher

	// mu serialises validate-then-write so two concurrent creates cannot
	// both pass the uniqueness checks.
	mu     sync.Mutex
	logger Logger
}

// New creates a Console. publisher may be nil.
func New(devices *device.Repository, registers *register.Repository, publisher events.Publisher) *Console {
	if publisher == nil {
		publisher = events.NewFanout()
	}
	return &Console{
		devices:   devices,
		registers: registers,
		events:    publisher,
		logger:    noopLogger{},
	}
}

// SetLogger sets the logger for the console.
func (c *Console) SetLogger(logger Logger) {
	c.logger = logger
}

func (c *Console) publish(ctx context.Context, t events.Type, payload any) {
	if err := c.events.Publish(ctx, events.New(t, payload)); err != nil {
		c.logger.Warn("publishing event failed", "type", t, "error", err)
	}
}

// overlay decodes a partial JSON submission onto dst. Malformed input is
// reported as a parse error.
func overlay(partial []byte, dst any) error {
	if len(partial) == 0 {
		return nil
	}
	if err := json.Unmarshal(partial, dst); err != nil {
		if errors.Is(err, form.ErrParse) {
			return err
		}
		return fmt.Errorf("%w: %w", form.ErrParse, err)
	}
	return nil
}

// =============================================================================
// Devices
// =============================================================================

// ListDevices returns every device.
func (c *Console) ListDevices(ctx context.Context) ([]device.Device, error) {
	return c.devices.List(ctx)
}

// GetDevice returns one device or device.ErrDeviceNotFound.
func (c *Console) GetDevice(ctx context.Context, id string) (*device.Device, error) {
	return c.devices.GetByID(ctx, id)
}

// CreateDevice validates f against the stored devices and adds it.
func (c *Console) CreateDevice(ctx context.Context, f device.Form) (*device.Device, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	existing, err := c.devices.List(ctx)
	if err != nil {
		return nil, err
	}
	if err := form.Check(device.ValidateForm(f, nil, existing)); err != nil {
		return nil, err
	}

	d, err := f.Device()
	if err != nil {
		return nil, err
	}
	created, err := c.devices.Add(ctx, d)
	if err != nil {
		return nil, err
	}

	c.publish(ctx, events.DeviceCreated, created)
	return created, nil
}

// UpdateDevice overlays the partial JSON submission onto the stored device,
// validates the merged form and saves it.
func (c *Console) UpdateDevice(ctx context.Context, id string, partial []byte) (*device.Device, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	existing, err := c.devices.List(ctx)
	if err != nil {
		return nil, err
	}
	current := findDevice(existing, id)
	if current == nil {
		return nil, fmt.Errorf("%w: %s", device.ErrDeviceNotFound, id)
	}

	f := device.FormOf(current)
	if err := overlay(partial, &f); err != nil {
		return nil, err
	}
	if err := form.Check(device.ValidateForm(f, current, existing)); err != nil {
		return nil, err
	}

	d, err := f.Device()
	if err != nil {
		return nil, err
	}
	updated, err := c.devices.Update(ctx, id, device.PatchFrom(d))
	if err != nil {
		return nil, err
	}

	c.publish(ctx, events.DeviceUpdated, updated)
	return updated, nil
}

// DeleteDevice removes a device and its registers. It reports whether the
// device existed.
func (c *Console) DeleteDevice(ctx context.Context, id string) (bool, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	existed, err := c.devices.Delete(ctx, id)
	if existed {
		c.publish(ctx, events.DeviceDeleted, events.Deleted{ID: id})
	}
	return existed, err
}

func findDevice(devices []device.Device, id string) *device.Device {
	for i := range devices {
		if devices[i].ID == id {
			return &devices[i]
		}
	}
	return nil
}

// =============================================================================
// Registers
// =============================================================================

// ListRegisters returns every register.
func (c *Console) ListRegisters(ctx context.Context) ([]register.Register, error) {
	return c.registers.List(ctx)
}

// ListDeviceRegisters returns the registers of an existing device.
func (c *Console) ListDeviceRegisters(ctx context.Context, deviceID string) ([]register.Register, error) {
	if _, err := c.devices.GetByID(ctx, deviceID); err != nil {
		return nil, err
	}
	return c.registers.ListByDevice(ctx, deviceID)
}

// CreateRegister validates f against the owning device and its registers
// and adds it.
func (c *Console) CreateRegister(ctx context.Context, deviceID string, f register.Form) (*register.Register, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	owner, err := c.devices.GetByID(ctx, deviceID)
	if err != nil {
		return nil, err
	}
	existing, err := c.registers.ListByDevice(ctx, deviceID)
	if err != nil {
		return nil, err
	}
	if err := form.Check(register.ValidateForm(f, nil, existing, owner)); err != nil {
		return nil, err
	}

	r, err := f.Register(deviceID)
	if err != nil {
		return nil, err
	}
	created, err := c.registers.Add(ctx, r)
	if err != nil {
		return nil, err
	}

	c.publish(ctx, events.RegisterCreated, created)
	return created, nil
}

// UpdateRegister overlays the partial JSON submission onto the stored
// register, validates it against its device and saves it.
func (c *Console) UpdateRegister(ctx context.Context, id string, partial []byte) (*register.Register, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	current, err := c.registers.GetByID(ctx, id)
	if err != nil {
		return nil, err
	}

	// The owner may be gone if a cascade failed half way; validate without
	// the range check in that case.
	owner, err := c.devices.GetByID(ctx, current.DeviceID)
	if err != nil && !errors.Is(err, device.ErrDeviceNotFound) {
		return nil, err
	}
	existing, err := c.registers.ListByDevice(ctx, current.DeviceID)
	if err != nil {
		return nil, err
	}

	f := register.FormOf(current)
	if err := overlay(partial, &f); err != nil {
		return nil, err
	}
	if err := form.Check(register.ValidateForm(f, current, existing, owner)); err != nil {
		return nil, err
	}

	r, err := f.Register(current.DeviceID)
	if err != nil {
		return nil, err
	}
	updated, err := c.registers.Update(ctx, id, register.PatchFrom(r))
	if err != nil {
		return nil, err
	}

	c.publish(ctx, events.RegisterUpdated, updated)
	return updated, nil
}

// DeleteRegister removes a register and reports whether it existed.
func (c *Console) DeleteRegister(ctx context.Context, id string) (bool, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	existed, err := c.registers.Delete(ctx, id)
	if err != nil {
		return false, err
	}
	if existed {
		c.publish(ctx, events.RegisterDeleted, events.Deleted{ID: id})
	}
	return existed, nil
}

// =============================================================================
// Derived views
// =============================================================================

// Stats computes the dashboard counters from the current collections.
func (c *Console) Stats(ctx context.Context) (stats.Stats, error) {
	devices, err := c.devices.List(ctx)
	if err != nil {
		return stats.Stats{}, err
	}
	registers, err := c.registers.List(ctx)
	if err != nil {
		return stats.Stats{}, err
	}
	return stats.Compute(devices, registers), nil
}
