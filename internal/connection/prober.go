package connection

import (
	"context"
	"fmt"
	"math/rand/v2"
	"time"

	mb "github.com/goburrow/modbus"

	"github.com/nerrad567/ems-console/internal/device"
)

// Prober checks whether a device answers.
type Prober interface {
	Probe(ctx context.Context, d device.Device) error
}

// SimulatedProber waits Delay and then succeeds with probability
// SuccessRate.
type SimulatedProber struct {
	Delay       time.Duration
	SuccessRate float64

	// roll returns a value in [0,1). Tests replace it.
	roll func() float64
}

// NewSimulatedProber creates a simulated prober.
func NewSimulatedProber(delay time.Duration, successRate float64) *SimulatedProber {
	return &SimulatedProber{Delay: delay, SuccessRate: successRate, roll: rand.Float64}
}

// Probe implements Prober.
func (p *SimulatedProber) Probe(ctx context.Context, d device.Device) error {
	timer := time.NewTimer(p.Delay)
	defer timer.Stop()

	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
	}

	if p.roll() < p.SuccessRate {
		return nil
	}
	return fmt.Errorf("%w: %s did not answer", ErrUnreachable, d.Endpoint())
}

// handler is a goburrow client handler with an explicit lifecycle.
type handler interface {
	mb.ClientHandler
	Connect() error
	Close() error
}

// ModbusProber reads one holding register at the device's start address.
type ModbusProber struct {
	Timeout time.Duration
}

// NewModbusProber creates a prober whose link operations time out after
// timeout.
func NewModbusProber(timeout time.Duration) *ModbusProber {
	if timeout <= 0 {
		timeout = 3 * time.Second
	}
	return &ModbusProber{Timeout: timeout}
}

func (p *ModbusProber) newHandler(d device.Device) (handler, error) {
	slave := byte(d.ModbusID) //nolint:gosec // validated to 1..247

	if tcp := d.TCP(); tcp != nil {
		h := mb.NewTCPClientHandler(d.Endpoint())
		h.Timeout = p.Timeout
		h.SlaveId = slave
		return h, nil
	}
	if rtu := d.RTU(); rtu != nil {
		h := mb.NewRTUClientHandler(rtu.SerialPort)
		h.BaudRate = rtu.BaudRate
		h.DataBits = rtu.DataBits
		h.StopBits = rtu.StopBits
		h.Parity = rtu.Parity.Letter()
		h.Timeout = p.Timeout
		h.SlaveId = slave
		return h, nil
	}
	return nil, fmt.Errorf("%w: %q", ErrUnsupportedProtocol, d.Protocol)
}

// Probe implements Prober. The goburrow handlers are not context aware, so
// the link runs in its own goroutine and ctx only bounds the wait.
func (p *ModbusProber) Probe(ctx context.Context, d device.Device) error {
	h, err := p.newHandler(d)
	if err != nil {
		return err
	}

	done := make(chan error, 1)
	go func() {
		done <- readOne(h, d.StartAddress)
	}()

	select {
	case <-ctx.Done():
		return ctx.Err()
	case err := <-done:
		if err != nil {
			return fmt.Errorf("%w: %s: %w", ErrUnreachable, d.Endpoint(), err)
		}
		return nil
	}
}

func readOne(h handler, address int) error {
	if err := h.Connect(); err != nil {
		return err
	}
	defer h.Close()

	_, err := mb.NewClient(h).ReadHoldingRegisters(uint16(address), 1) //nolint:gosec // device addresses fit in 16 bits
	return err
}
