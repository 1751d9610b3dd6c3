package audit

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"

	"github.com/nerrad567/ems-console/internal/events"
)

type contextKey struct{}

// WithUser attaches the acting operator to ctx.
func WithUser(ctx context.Context, username string) context.Context {
	return context.WithValue(ctx, contextKey{}, username)
}

// UserFrom returns the operator stored by WithUser, or "".
func UserFrom(ctx context.Context) string {
	name, _ := ctx.Value(contextKey{}).(string) //nolint:errcheck // absent for background work
	return name
}

// Sink is an events.Publisher that writes each event to a Repository.
type Sink struct {
	repo Repository
}

// NewSink creates a sink over repo.
func NewSink(repo Repository) *Sink {
	return &Sink{repo: repo}
}

// Publish records e. "device.created" becomes entity type "device" and
// action "created"; the entity ID is taken from the payload's id or
// deviceId field.
func (s *Sink) Publish(ctx context.Context, e events.Event) error {
	entry := Entry{
		ID:        e.ID,
		Username:  UserFrom(ctx),
		CreatedAt: e.Timestamp,
	}
	entry.EntityType, entry.Action = splitType(e.Type)

	if e.Payload != nil {
		details, err := toMap(e.Payload)
		if err != nil {
			return fmt.Errorf("audit %s: %w", e.Type, err)
		}
		entry.Details = details
		entry.EntityID = entityID(details)
	}

	return s.repo.Create(ctx, &entry)
}

func splitType(t events.Type) (entity, action string) {
	entity, action, ok := strings.Cut(string(t), ".")
	if !ok {
		return string(t), ""
	}
	return entity, action
}

func toMap(payload any) (map[string]any, error) {
	b, err := json.Marshal(payload)
	if err != nil {
		return nil, err
	}
	var m map[string]any
	if err := json.Unmarshal(b, &m); err != nil {
		// Non-object payloads are kept whole.
		var v any
		if err := json.Unmarshal(b, &v); err != nil {
			return nil, err
		}
		return map[string]any{"value": v}, nil
	}
	return m, nil
}

func entityID(details map[string]any) string {
	for _, k := range []string{"id", "deviceId"} {
		if s, ok := details[k].(string); ok && s != "" {
			return s
		}
	}
	return ""
}
