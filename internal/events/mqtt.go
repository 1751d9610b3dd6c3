package events

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/nerrad567/ems-console/internal/infrastructure/mqtt"
)

// MQTTClient is the subset of *mqtt.Client used by MQTTSink.
type MQTTClient interface {
	Publish(topic string, payload []byte, qos byte, retained bool) error
	Topics() mqtt.Topics
	QoS() byte
}

// MQTTSink publishes events on {prefix}/events/{type}. Status changes are
// also published retained on the device's status topic.
type MQTTSink struct {
	client MQTTClient
}

// NewMQTTSink creates a sink over client.
func NewMQTTSink(client MQTTClient) *MQTTSink {
	return &MQTTSink{client: client}
}

// Publish implements Publisher.
func (s *MQTTSink) Publish(_ context.Context, e Event) error {
	payload, err := json.Marshal(e)
	if err != nil {
		return fmt.Errorf("encoding event: %w", err)
	}

	topics := s.client.Topics()
	if err := s.client.Publish(topics.Event(string(e.Type)), payload, s.client.QoS(), false); err != nil {
		return err
	}

	if sc, ok := e.Payload.(StatusChange); ok {
		state, err := json.Marshal(sc)
		if err != nil {
			return fmt.Errorf("encoding status: %w", err)
		}
		return s.client.Publish(topics.DeviceStatus(sc.DeviceID), state, s.client.QoS(), true)
	}
	return nil
}
