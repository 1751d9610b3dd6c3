package connection

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/nerrad567/ems-console/internal/device"
	"github.com/nerrad567/ems-console/internal/events"
)

// Logger defines the logging interface used by Manager.
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

// Devices is the part of the device repository the manager needs.
type Devices interface {
	GetByID(ctx context.Context, id string) (*device.Device, error)
	SetStatus(ctx context.Context, id string, status device.Status) (*device.Device, error)
}

// StatusRecorder stores status changes as time series. *influxdb.Client
// satisfies it, including a nil one.
type StatusRecorder interface {
	WriteDeviceStatus(deviceID, name, protocol string, connected bool)
}

// Manager toggles device connection status.
type Manager struct {
	devices  Devices
	prober   Prober
	events   events.Publisher
	recorder StatusRecorder
	timeout  time.Duration
	logger   Logger

	mu       sync.Mutex
	inflight map[string]struct{}
}

// NewManager creates a Manager. events and recorder may be nil. timeout
// bounds each probe; zero means no extra bound beyond the caller's ctx.
func NewManager(devices Devices, prober Prober, publisher events.Publisher, recorder StatusRecorder, timeout time.Duration) *Manager {
	return &Manager{
		devices:  devices,
		prober:   prober,
		events:   publisher,
		recorder: recorder,
		timeout:  timeout,
		logger:   noopLogger{},
		inflight: make(map[string]struct{}),
	}
}

// SetLogger sets the logger for the manager.
func (m *Manager) SetLogger(logger Logger) {
	m.logger = logger
}

// Connect probes the device and stores the outcome. The updated device is
// returned even when the probe fails; the probe failure is then returned
// as an error wrapping ErrUnreachable.
func (m *Manager) Connect(ctx context.Context, id string) (*device.Device, error) {
	if !m.begin(id) {
		return nil, fmt.Errorf("%w: %s", ErrInProgress, id)
	}
	defer m.end(id)

	d, err := m.devices.GetByID(ctx, id)
	if err != nil {
		return nil, err
	}

	probeCtx := ctx
	if m.timeout > 0 {
		var cancel context.CancelFunc
		probeCtx, cancel = context.WithTimeout(ctx, m.timeout)
		defer cancel()
	}

	probeErr := m.prober.Probe(probeCtx, *d)
	if probeErr != nil && ctx.Err() != nil {
		// The caller went away; leave the status untouched.
		return nil, ctx.Err()
	}
	switch {
	case probeErr == nil, errors.Is(probeErr, ErrUnreachable):
	case errors.Is(probeErr, context.DeadlineExceeded):
		probeErr = fmt.Errorf("%w: %s: timed out", ErrUnreachable, d.Endpoint())
	default:
		probeErr = fmt.Errorf("%w: %w", ErrUnreachable, probeErr)
	}

	status := device.StatusConnected
	if probeErr != nil {
		status = device.StatusDisconnected
		m.logger.Info("device probe failed", "id", id, "endpoint", d.Endpoint(), "error", probeErr)
	}

	updated, err := m.record(ctx, id, status)
	if err != nil {
		return nil, err
	}
	return updated, probeErr
}

// Disconnect marks the device Disconnected.
func (m *Manager) Disconnect(ctx context.Context, id string) (*device.Device, error) {
	return m.record(ctx, id, device.StatusDisconnected)
}

// Report stores a status reported by an external poller.
func (m *Manager) Report(ctx context.Context, id string, status device.Status) (*device.Device, error) {
	return m.record(ctx, id, status)
}

func (m *Manager) record(ctx context.Context, id string, status device.Status) (*device.Device, error) {
	updated, err := m.devices.SetStatus(ctx, id, status)
	if err != nil {
		return nil, err
	}

	connected := status == device.StatusConnected
	if m.recorder != nil {
		m.recorder.WriteDeviceStatus(updated.ID, updated.Name, string(updated.Protocol), connected)
	}
	if m.events != nil {
		e := events.New(events.DeviceStatus, events.StatusChange{DeviceID: id, Status: string(status)})
		if err := m.events.Publish(ctx, e); err != nil {
			m.logger.Warn("publishing status event failed", "id", id, "error", err)
		}
	}

	m.logger.Info("device status changed", "id", id, "status", status)
	return updated, nil
}

func (m *Manager) begin(id string) bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, busy := m.inflight[id]; busy {
		return false
	}
	m.inflight[id] = struct{}{}
	return true
}

func (m *Manager) end(id string) {
	m.mu.Lock()
	delete(m.inflight, id)
	m.mu.Unlock()
}
