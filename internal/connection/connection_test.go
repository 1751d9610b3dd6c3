package connection

import (
	"context"
	"encoding/binary"
	"errors"
	"io"
	"net"
	"slices"
	"strconv"
	"sync"
	"testing"
	"time"

	"github.com/nerrad567/ems-console/internal/device"
	"github.com/nerrad567/ems-console/internal/events"
	"github.com/nerrad567/ems-console/internal/infrastructure/mqtt"
	"github.com/nerrad567/ems-console/internal/store"
)

// =============================================================================
// Helpers
// =============================================================================

type fakeProber struct {
	err   error
	calls int
	wait  chan struct{}
}

func (f *fakeProber) Probe(ctx context.Context, _ device.Device) error {
	f.calls++
	if f.wait != nil {
		select {
		case <-f.wait:
		case <-ctx.Done():
			return ctx.Err()
		}
	}
	return f.err
}

type statusPoint struct {
	id        string
	connected bool
}

type fakeRecorder struct {
	mu     sync.Mutex
	points []statusPoint
}

func (r *fakeRecorder) WriteDeviceStatus(id, _, _ string, connected bool) {
	r.mu.Lock()
	r.points = append(r.points, statusPoint{id, connected})
	r.mu.Unlock()
}

type eventLog struct {
	mu     sync.Mutex
	events []events.Event
}

func (l *eventLog) Publish(_ context.Context, e events.Event) error {
	l.mu.Lock()
	l.events = append(l.events, e)
	l.mu.Unlock()
	return nil
}

func newDevice(t *testing.T, repo *device.Repository, ip string, port int) *device.Device {
	t.Helper()
	d, err := repo.Add(context.Background(), device.Device{
		Name: "Meter1", Type: "Medidor", Description: "x", Protocol: device.ProtocolTCP,
		TCPParams: &device.TCPParams{IPAddress: ip, Port: port},
		ModbusID:  1, StartAddress: 100, Registers: 10,
	})
	if err != nil {
		t.Fatalf("Add() error = %v", err)
	}
	return d
}

func setupManager(t *testing.T, prober Prober) (*Manager, *device.Repository, *fakeRecorder, *eventLog) {
	t.Helper()
	repo := device.NewRepository(store.New(store.NewMemoryBackend(), store.Options{}), nil)
	rec := &fakeRecorder{}
	log := &eventLog{}
	return NewManager(repo, prober, log, rec, time.Second), repo, rec, log
}

// =============================================================================
// Manager
// =============================================================================

func TestManager_ConnectSuccess(t *testing.T) {
	m, repo, rec, log := setupManager(t, &fakeProber{})
	d := newDevice(t, repo, "10.0.0.1", 502)

	got, err := m.Connect(context.Background(), d.ID)
	if err != nil {
		t.Fatalf("Connect() error = %v", err)
	}
	if got.Status != device.StatusConnected || got.LastRead == nil {
		t.Errorf("Connect() = %+v, want Connected with LastRead", got)
	}
	if len(rec.points) != 1 || !rec.points[0].connected {
		t.Errorf("status points = %+v", rec.points)
	}
	if len(log.events) != 1 || log.events[0].Type != events.DeviceStatus {
		t.Fatalf("events = %+v", log.events)
	}
	if sc, ok := log.events[0].Payload.(events.StatusChange); !ok || sc.Status != "Connected" {
		t.Errorf("payload = %+v", log.events[0].Payload)
	}
}

func TestManager_ConnectFailure(t *testing.T) {
	m, repo, rec, _ := setupManager(t, &fakeProber{err: ErrUnreachable})
	d := newDevice(t, repo, "10.0.0.1", 502)

	got, err := m.Connect(context.Background(), d.ID)
	if !errors.Is(err, ErrUnreachable) {
		t.Fatalf("Connect() error = %v, want ErrUnreachable", err)
	}
	if got == nil || got.Status != device.StatusDisconnected {
		t.Errorf("Connect() device = %+v, want Disconnected", got)
	}
	if len(rec.points) != 1 || rec.points[0].connected {
		t.Errorf("status points = %+v", rec.points)
	}
}

func TestManager_ConnectProbeErrorIsUnreachable(t *testing.T) {
	m, repo, _, _ := setupManager(t, &fakeProber{err: ErrUnsupportedProtocol})
	d := newDevice(t, repo, "10.0.0.1", 502)

	got, err := m.Connect(context.Background(), d.ID)
	if !errors.Is(err, ErrUnreachable) || !errors.Is(err, ErrUnsupportedProtocol) {
		t.Fatalf("Connect() error = %v, want ErrUnreachable wrapping ErrUnsupportedProtocol", err)
	}
	if got == nil || got.Status != device.StatusDisconnected {
		t.Errorf("Connect() device = %+v, want Disconnected", got)
	}
}

func TestManager_ConnectNotFound(t *testing.T) {
	prober := &fakeProber{}
	m, _, _, _ := setupManager(t, prober)

	if _, err := m.Connect(context.Background(), "missing"); !errors.Is(err, device.ErrDeviceNotFound) {
		t.Errorf("Connect() error = %v, want ErrDeviceNotFound", err)
	}
	if prober.calls != 0 {
		t.Error("prober should not run for a missing device")
	}
}

func TestManager_ConnectInProgress(t *testing.T) {
	prober := &fakeProber{wait: make(chan struct{})}
	m, repo, _, _ := setupManager(t, prober)
	d := newDevice(t, repo, "10.0.0.1", 502)

	done := make(chan error, 1)
	go func() {
		_, err := m.Connect(context.Background(), d.ID)
		done <- err
	}()

	// Wait until the first probe is registered.
	deadline := time.Now().Add(time.Second)
	for {
		m.mu.Lock()
		_, busy := m.inflight[d.ID]
		m.mu.Unlock()
		if busy || time.Now().After(deadline) {
			break
		}
		time.Sleep(5 * time.Millisecond)
	}

	if _, err := m.Connect(context.Background(), d.ID); !errors.Is(err, ErrInProgress) {
		t.Errorf("second Connect() error = %v, want ErrInProgress", err)
	}

	close(prober.wait)
	if err := <-done; err != nil {
		t.Errorf("first Connect() error = %v", err)
	}
}

func TestManager_Disconnect(t *testing.T) {
	m, repo, _, _ := setupManager(t, &fakeProber{})
	d := newDevice(t, repo, "10.0.0.1", 502)
	ctx := context.Background()

	if _, err := m.Connect(ctx, d.ID); err != nil {
		t.Fatalf("Connect() error = %v", err)
	}
	got, err := m.Disconnect(ctx, d.ID)
	if err != nil {
		t.Fatalf("Disconnect() error = %v", err)
	}
	if got.Status != device.StatusDisconnected {
		t.Errorf("Status = %q, want Disconnected", got.Status)
	}
}

func TestManager_ReportHandler(t *testing.T) {
	m, repo, _, _ := setupManager(t, &fakeProber{})
	d := newDevice(t, repo, "10.0.0.1", 502)
	topics := mqtt.Topics{Prefix: "ems"}
	handle := m.ReportHandler(topics)

	steps := []struct {
		payload string
		want    device.Status
	}{
		{`{"status":"connected"}`, device.StatusConnected},
		{`{"status":"disconnected"}`, device.StatusDisconnected},
		{`{"status":"Connected"}`, device.StatusConnected},
	}
	for _, st := range steps {
		if err := handle(topics.DeviceReport(d.ID), []byte(st.payload)); err != nil {
			t.Fatalf("handler(%s) error = %v", st.payload, err)
		}
		got, _ := repo.GetByID(context.Background(), d.ID) //nolint:errcheck // memory backend
		if got.Status != st.want {
			t.Errorf("after %s Status = %q, want %q", st.payload, got.Status, st.want)
		}
	}

	tests := []struct {
		name    string
		topic   string
		payload string
	}{
		{"bad topic", "ems/devices/x/status", `{"status":"Connected"}`},
		{"bad json", topics.DeviceReport(d.ID), `{`},
		{"bad status", topics.DeviceReport(d.ID), `{"status":"Sleeping"}`},
		{"unknown device", topics.DeviceReport("missing"), `{"status":"Connected"}`},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if err := handle(tt.topic, []byte(tt.payload)); err == nil {
				t.Error("handler error = nil, want error")
			}
		})
	}
}

// =============================================================================
// Probers
// =============================================================================

func TestSimulatedProber(t *testing.T) {
	d := device.Device{Protocol: device.ProtocolTCP, TCPParams: &device.TCPParams{IPAddress: "10.0.0.1", Port: 502}}

	p := NewSimulatedProber(0, 0.5)
	p.roll = func() float64 { return 0.2 }
	if err := p.Probe(context.Background(), d); err != nil {
		t.Errorf("Probe(roll 0.2) error = %v, want nil", err)
	}

	p.roll = func() float64 { return 0.7 }
	if err := p.Probe(context.Background(), d); !errors.Is(err, ErrUnreachable) {
		t.Errorf("Probe(roll 0.7) error = %v, want ErrUnreachable", err)
	}

	slow := NewSimulatedProber(time.Hour, 1)
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	if err := slow.Probe(ctx, d); !errors.Is(err, context.Canceled) {
		t.Errorf("Probe(cancelled) error = %v, want context.Canceled", err)
	}
}

// serveModbusTCP answers every read-holding-registers request with the
// value 0x1234.
func serveModbusTCP(t *testing.T) (host string, port int) {
	t.Helper()
	ln, err := net.Listen("tcp", "127.0.0.1:0")
	if err != nil {
		t.Fatalf("Listen() error = %v", err)
	}
	t.Cleanup(func() { ln.Close() })

	go func() {
		for {
			conn, err := ln.Accept()
			if err != nil {
				return
			}
			go func(c net.Conn) {
				defer c.Close()
				req := make([]byte, 12)
				for {
					if _, err := io.ReadFull(c, req); err != nil {
						return
					}
					resp := make([]byte, 11)
					copy(resp[0:4], req[0:4])                // transaction + protocol id
					binary.BigEndian.PutUint16(resp[4:6], 5) // unit + pdu length
					resp[6] = req[6]                         // unit id
					resp[7] = req[7]                         // function code
					resp[8] = 2                              // byte count
					binary.BigEndian.PutUint16(resp[9:11], 0x1234)
					if _, err := c.Write(resp); err != nil {
						return
					}
				}
			}(conn)
		}
	}()

	addr := ln.Addr().(*net.TCPAddr)
	return addr.IP.String(), addr.Port
}

func TestModbusProber_TCP(t *testing.T) {
	host, port := serveModbusTCP(t)
	d := device.Device{
		Protocol:     device.ProtocolTCP,
		TCPParams:    &device.TCPParams{IPAddress: host, Port: port},
		ModbusID:     1,
		StartAddress: 100,
	}

	if err := NewModbusProber(time.Second).Probe(context.Background(), d); err != nil {
		t.Errorf("Probe() error = %v", err)
	}
}

func TestModbusProber_Unreachable(t *testing.T) {
	ln, err := net.Listen("tcp", "127.0.0.1:0")
	if err != nil {
		t.Fatalf("Listen() error = %v", err)
	}
	_, portStr, _ := net.SplitHostPort(ln.Addr().String()) //nolint:errcheck // listener address
	ln.Close()
	port, _ := strconv.Atoi(portStr) //nolint:errcheck // listener port

	d := device.Device{
		Protocol:  device.ProtocolTCP,
		TCPParams: &device.TCPParams{IPAddress: "127.0.0.1", Port: port},
		ModbusID:  1,
	}
	if err := NewModbusProber(500*time.Millisecond).Probe(context.Background(), d); !errors.Is(err, ErrUnreachable) {
		t.Errorf("Probe() error = %v, want ErrUnreachable", err)
	}
}

func TestModbusProber_RTUMissingPort(t *testing.T) {
	d := device.Device{
		Protocol: device.ProtocolRTU,
		RTUParams: &device.RTUParams{
			SerialPort: "/dev/ems-test-does-not-exist",
			BaudRate:   9600, DataBits: 8, Parity: device.ParityEven, StopBits: 1,
		},
		ModbusID: 1,
	}
	if err := NewModbusProber(200*time.Millisecond).Probe(context.Background(), d); !errors.Is(err, ErrUnreachable) {
		t.Errorf("Probe() error = %v, want ErrUnreachable", err)
	}
}

func TestModbusProber_NoParams(t *testing.T) {
	err := NewModbusProber(0).Probe(context.Background(), device.Device{Protocol: "UDP"})
	if !errors.Is(err, ErrUnsupportedProtocol) {
		t.Errorf("Probe() error = %v, want ErrUnsupportedProtocol", err)
	}
}

// =============================================================================
// Serial ports
// =============================================================================

func TestSerialPorts(t *testing.T) {
	orig := listPorts
	t.Cleanup(func() { listPorts = orig })

	listPorts = func() ([]string, error) { return []string{"/dev/ttyUSB1", "/dev/ttyS0", "/dev/ttyUSB0"}, nil }
	got, err := SerialPorts()
	if err != nil {
		t.Fatalf("SerialPorts() error = %v", err)
	}
	if want := []string{"/dev/ttyS0", "/dev/ttyUSB0", "/dev/ttyUSB1"}; !slices.Equal(got, want) {
		t.Errorf("SerialPorts() = %v, want %v", got, want)
	}

	listPorts = func() ([]string, error) { return nil, nil }
	if got, _ := SerialPorts(); got == nil { //nolint:errcheck // nil error
		t.Error("SerialPorts() = nil, want empty slice")
	}

	listPorts = func() ([]string, error) { return nil, errors.New("no sysfs") }
	if _, err := SerialPorts(); err == nil {
		t.Error("SerialPorts() error = nil, want error")
	}
}
