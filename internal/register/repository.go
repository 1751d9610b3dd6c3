package register

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

// Repository manages the ems_registers collection. All public methods are
// thread-safe.
type Repository struct {
	store  *store.Store
	mu     sync.Mutex
	logger Logger
	now    func() time.Time
}

// NewRepository creates a register repository backed by st.
func NewRepository(st *store.Store) *Repository {
	return &Repository{
		store:  st,
		logger: noopLogger{},
		now:    func() time.Time { return time.Now().UTC() },
	}
}

// SetLogger sets the logger for the repository.
func (r *Repository) SetLogger(logger Logger) {
	r.logger = logger
}

func (r *Repository) load(ctx context.Context) ([]Register, store.Snapshot, error) {
	regs, snap, err := store.ReadCollection[Register](ctx, r.store, store.CollectionRegisters)
	if err != nil {
		return nil, snap, fmt.Errorf("loading registers: %w", err)
	}
	return regs, snap, nil
}

func (r *Repository) save(ctx context.Context, regs []Register, snap store.Snapshot) error {
	if _, err := store.WriteCollection(ctx, r.store, store.CollectionRegisters, regs, snap); err != nil {
		return fmt.Errorf("saving registers: %w", err)
	}
	return nil
}

// List returns every register.
func (r *Repository) List(ctx context.Context) ([]Register, error) {
	regs, _, err := r.load(ctx)
	return regs, err
}

// ListByDevice returns the registers owned by deviceID, never nil.
func (r *Repository) ListByDevice(ctx context.Context, deviceID string) ([]Register, error) {
	regs, _, err := r.load(ctx)
	if err != nil {
		return nil, err
	}
	out := make([]Register, 0, len(regs))
	for i := range regs {
		if regs[i].DeviceID == deviceID {
			out = append(out, regs[i])
		}
	}
	return out, nil
}

// GetByID returns the register with id, or ErrRegisterNotFound.
func (r *Repository) GetByID(ctx context.Context, id string) (*Register, error) {
	regs, _, err := r.load(ctx)
	if err != nil {
		return nil, err
	}
	if idx := indexOf(regs, id); idx >= 0 {
		return regs[idx].DeepCopy(), nil
	}
	return nil, fmt.Errorf("%w: %s", ErrRegisterNotFound, id)
}

// Add stores a new register. The ID and timestamps are generated and the
// status starts as success.
func (r *Repository) Add(ctx context.Context, reg Register) (*Register, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	regs, snap, err := r.load(ctx)
	if err != nil {
		return nil, err
	}

	now := r.now()
	reg.ID = uuid.New().String()
	reg.Status = StatusSuccess
	reg.CreatedAt = now
	reg.UpdatedAt = now

	if err := r.save(ctx, append(regs, reg), snap); err != nil {
		return nil, err
	}

	r.logger.Info("register added", "id", reg.ID, "device_id", reg.DeviceID, "address", reg.Address)
	return &reg, nil
}

// Update merges patch onto the register with id and refreshes UpdatedAt.
func (r *Repository) Update(ctx context.Context, id string, patch Patch) (*Register, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	regs, snap, err := r.load(ctx)
	if err != nil {
		return nil, err
	}

	idx := indexOf(regs, id)
	if idx < 0 {
		return nil, fmt.Errorf("%w: %s", ErrRegisterNotFound, id)
	}

	patch.apply(&regs[idx])
	regs[idx].UpdatedAt = r.now()

	if err := r.save(ctx, regs, snap); err != nil {
		return nil, err
	}
	return regs[idx].DeepCopy(), nil
}

// Delete removes the register with id and reports whether it existed.
func (r *Repository) Delete(ctx context.Context, id string) (bool, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	regs, snap, err := r.load(ctx)
	if err != nil {
		return false, err
	}

	idx := indexOf(regs, id)
	if idx < 0 {
		return false, nil
	}

	if err := r.save(ctx, append(regs[:idx:idx], regs[idx+1:]...), snap); err != nil {
		return false, err
	}
	r.logger.Info("register deleted", "id", id)
	return true, nil
}

// DeleteByDevice removes every register owned by deviceID and returns how
// many were removed. Nothing is written when there are none.
func (r *Repository) DeleteByDevice(ctx context.Context, deviceID string) (int, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	regs, snap, err := r.load(ctx)
	if err != nil {
		return 0, err
	}

	kept := make([]Register, 0, len(regs))
	for i := range regs {
		if regs[i].DeviceID != deviceID {
			kept = append(kept, regs[i])
		}
	}
	removed := len(regs) - len(kept)
	if removed == 0 {
		return 0, nil
	}

	if err := r.save(ctx, kept, snap); err != nil {
		return 0, err
	}
	r.logger.Debug("registers removed with device", "device_id", deviceID, "count", removed)
	return removed, nil
}

func indexOf(regs []Register, id string) int {
	for i := range regs {
		if regs[i].ID == id {
			return i
		}
	}
	return -1
}
