package events

import (
	"context"
	"sync"
)

// Logger defines the logging interface used by Fanout.
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

// Fanout publishes each event to every sink in registration order.
// It is safe for concurrent use.
type Fanout struct {
	mu     sync.RWMutex
	sinks  []namedSink
	logger Logger
}

type namedSink struct {
	name string
	pub  Publisher
}

// NewFanout creates an empty fan-out.
func NewFanout() *Fanout {
	return &Fanout{logger: noopLogger{}}
}

// SetLogger sets the logger used for sink failures.
func (f *Fanout) SetLogger(logger Logger) {
	f.logger = logger
}

// Add registers a sink under name, which is used in log lines.
func (f *Fanout) Add(name string, p Publisher) {
	f.mu.Lock()
	f.sinks = append(f.sinks, namedSink{name: name, pub: p})
	f.mu.Unlock()
}

// Publish delivers e to every sink. Sink errors are logged; Publish itself
// always returns nil so that a Fanout can be nested as a sink.
func (f *Fanout) Publish(ctx context.Context, e Event) error {
	f.mu.RLock()
	sinks := f.sinks
	f.mu.RUnlock()

	for _, s := range sinks {
		if err := s.pub.Publish(ctx, e); err != nil {
			f.logger.Warn("event sink failed", "sink", s.name, "type", e.Type, "error", err)
		}
	}
	return nil
}
