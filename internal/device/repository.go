package device

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/nerrad567/ems-console/internal/store"
)

// Logger defines the logging interface used by the Repository.
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

// RegisterCleaner removes the registers owned by a device. Delete calls it
// to cascade.
type RegisterCleaner interface {
	DeleteByDevice(ctx context.Context, deviceID string) (int, error)
}

// Repository manages the ems_devices collection.
//
// Every mutation is a read-modify-write of the whole collection, serialised
// by a mutex within the process. Writers in other processes are detected
// through the collection version when the store has conflict detection on.
//
// All public methods are thread-safe.
type Repository struct {
	store     *store.Store
	registers RegisterCleaner
	mu        sync.Mutex
	logger    Logger
	now       func() time.Time
}

// NewRepository creates a device repository. registers may be nil, in
// which case Delete does not cascade.
func NewRepository(st *store.Store, registers RegisterCleaner) *Repository {
	return &Repository{
		store:     st,
		registers: registers,
		logger:    noopLogger{},
		now:       func() time.Time { return time.Now().UTC() },
	}
}

// SetLogger sets the logger for the repository.
func (r *Repository) SetLogger(logger Logger) {
	r.logger = logger
}

// GenerateID returns a new unique device ID.
func GenerateID() string {
	return uuid.New().String()
}

func (r *Repository) load(ctx context.Context) ([]Device, store.Snapshot, error) {
	devices, snap, err := store.ReadCollection[Device](ctx, r.store, store.CollectionDevices)
	if err != nil {
		return nil, snap, fmt.Errorf("loading devices: %w", err)
	}
	return devices, snap, nil
}

func (r *Repository) save(ctx context.Context, devices []Device, snap store.Snapshot) error {
	if _, err := store.WriteCollection(ctx, r.store, store.CollectionDevices, devices, snap); err != nil {
		return fmt.Errorf("saving devices: %w", err)
	}
	return nil
}

// List returns every stored device in insertion order.
func (r *Repository) List(ctx context.Context) ([]Device, error) {
	devices, _, err := r.load(ctx)
	return devices, err
}

// GetByID returns the device with id, or ErrDeviceNotFound.
func (r *Repository) GetByID(ctx context.Context, id string) (*Device, error) {
	devices, _, err := r.load(ctx)
	if err != nil {
		return nil, err
	}
	for i := range devices {
		if devices[i].ID == id {
			return devices[i].DeepCopy(), nil
		}
	}
	return nil, fmt.Errorf("%w: %s", ErrDeviceNotFound, id)
}

// Add stores a new device and returns it with its generated fields set.
//
// The ID and timestamps are generated, status starts Disconnected and only
// the parameters of the selected protocol are kept. No validation is done
// here; callers run ValidateForm first.
func (r *Repository) Add(ctx context.Context, d Device) (*Device, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	devices, snap, err := r.load(ctx)
	if err != nil {
		return nil, err
	}

	created := d.DeepCopy()
	now := r.now()
	created.ID = GenerateID()
	created.Status = StatusDisconnected
	created.LastRead = nil
	created.CreatedAt = now
	created.UpdatedAt = now
	created.normalise()

	if err := r.save(ctx, append(devices, *created), snap); err != nil {
		return nil, err
	}

	r.logger.Info("device added", "id", created.ID, "name", created.Name, "protocol", created.Protocol)
	return created.DeepCopy(), nil
}

// Update merges patch onto the device with id and refreshes UpdatedAt.
// It returns ErrDeviceNotFound, without writing, if no such device exists.
func (r *Repository) Update(ctx context.Context, id string, patch Patch) (*Device, error) {
	return r.mutate(ctx, id, func(d *Device) {
		patch.apply(d)
		d.UpdatedAt = r.now()
	})
}

// SetStatus records a connection state change. A transition to Connected
// also stamps LastRead.
func (r *Repository) SetStatus(ctx context.Context, id string, status Status) (*Device, error) {
	if status != StatusConnected && status != StatusDisconnected {
		return nil, fmt.Errorf("%w: %q", ErrInvalidStatus, status)
	}
	return r.mutate(ctx, id, func(d *Device) {
		now := r.now()
		d.Status = status
		if status == StatusConnected {
			d.LastRead = &now
		}
		d.UpdatedAt = now
	})
}

func (r *Repository) mutate(ctx context.Context, id string, fn func(d *Device)) (*Device, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	devices, snap, err := r.load(ctx)
	if err != nil {
		return nil, err
	}

	idx := indexOf(devices, id)
	if idx < 0 {
		return nil, fmt.Errorf("%w: %s", ErrDeviceNotFound, id)
	}

	fn(&devices[idx])

	if err := r.save(ctx, devices, snap); err != nil {
		return nil, err
	}

	r.logger.Debug("device updated", "id", id)
	return devices[idx].DeepCopy(), nil
}

// Delete removes the device with id and every register that references it.
// It reports whether the device existed.
//
// The device collection is written before the register collection. If the
// cascade fails the device is already gone and the error is returned; the
// leftover registers are orphans that a later DeleteByDevice can remove.
func (r *Repository) Delete(ctx context.Context, id string) (bool, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	devices, snap, err := r.load(ctx)
	if err != nil {
		return false, err
	}

	idx := indexOf(devices, id)
	if idx < 0 {
		return false, nil
	}

	remaining := append(devices[:idx:idx], devices[idx+1:]...)
	if err := r.save(ctx, remaining, snap); err != nil {
		return false, err
	}

	removed := 0
	if r.registers != nil {
		removed, err = r.registers.DeleteByDevice(ctx, id)
		if err != nil {
			return true, fmt.Errorf("deleting registers of device %s: %w", id, err)
		}
	}

	r.logger.Info("device deleted", "id", id, "registers_removed", removed)
	return true, nil
}

func indexOf(devices []Device, id string) int {
	for i := range devices {
		if devices[i].ID == id {
			return i
		}
	}
	return -1
}
