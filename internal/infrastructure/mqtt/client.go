package mqtt

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	pahomqtt "github.com/eclipse/paho.mqtt.golang"

	"github.com/nerrad567/ems-console/internal/infrastructure/config"
)

// maxPayloadSize caps a single message at 1MB.
const maxPayloadSize = 1 << 20

// Logger receives handler failures. *logging.Logger satisfies it.
type Logger interface {
	Error(msg string, args ...any)
	Warn(msg string, args ...any)
}

// MessageHandler is called for each received message on a paho goroutine.
// A returned error is logged.
type MessageHandler func(topic string, payload []byte) error

type subscription struct {
	qos     byte
	handler MessageHandler
}

// Client is the console's broker connection. It announces itself on the
// retained system status topic and resubscribes after every reconnect.
// All methods are safe for concurrent use.
type Client struct {
	paho   pahomqtt.Client
	cfg    config.MQTTConfig
	topics Topics
	up     atomic.Bool

	mu           sync.RWMutex
	subs         map[string]subscription
	onConnect    func()
	onDisconnect func(error)
	logger       Logger
}

// Connect dials the broker and waits for the first connection. Paho keeps
// reconnecting afterwards with the configured backoff. It returns
// ErrDisabled when cfg.Enabled is false.
func Connect(cfg config.MQTTConfig) (*Client, error) {
	if !cfg.Enabled {
		return nil, ErrDisabled
	}

	c := &Client{
		cfg:    cfg,
		topics: Topics{Prefix: cfg.TopicPrefix},
		subs:   make(map[string]subscription),
	}

	opts := buildClientOptions(cfg)
	configureLWT(opts, c.topics, cfg.Broker.ClientID)
	opts.SetOnConnectHandler(func(pahomqtt.Client) { c.connected() })
	opts.SetConnectionLostHandler(func(_ pahomqtt.Client, err error) { c.lost(err) })

	c.paho = pahomqtt.NewClient(opts)
	if err := await(c.paho.Connect(), defaultConnectTimeout); err != nil {
		return nil, fmt.Errorf("%w: %w", ErrConnectionFailed, err)
	}
	// The OnConnect handler may still be pending.
	c.up.Store(true)

	return c, nil
}

// await waits for a paho token, turning a timeout into an error.
func await(tok pahomqtt.Token, timeout time.Duration) error {
	if !tok.WaitTimeout(timeout) {
		return fmt.Errorf("timeout after %v", timeout)
	}
	return tok.Error()
}

func (c *Client) connected() {
	c.up.Store(true)

	c.mu.RLock()
	for topic, sub := range c.subs {
		c.paho.Subscribe(topic, sub.qos, c.dispatch(sub.handler))
	}
	hook := c.onConnect
	c.mu.RUnlock()

	c.paho.Publish(c.topics.SystemStatus(), c.QoS(), true, buildOnlinePayload(c.cfg.Broker.ClientID))
	if hook != nil {
		hook()
	}
}

func (c *Client) lost(err error) {
	c.up.Store(false)

	c.mu.RLock()
	hook := c.onDisconnect
	c.mu.RUnlock()
	if hook != nil {
		hook(err)
	}
}

// dispatch adapts h to paho, logging errors and recovering panics.
func (c *Client) dispatch(h MessageHandler) pahomqtt.MessageHandler {
	return func(_ pahomqtt.Client, msg pahomqtt.Message) {
		c.mu.RLock()
		log := c.logger
		c.mu.RUnlock()

		defer func() {
			if r := recover(); r != nil && log != nil {
				log.Error("mqtt handler panicked", "topic", msg.Topic(), "panic", r)
			}
		}()
		if err := h(msg.Topic(), msg.Payload()); err != nil && log != nil {
			log.Warn("mqtt handler failed", "topic", msg.Topic(), "error", err)
		}
	}
}

// Topics returns the topic builder for the configured prefix.
func (c *Client) Topics() Topics {
	return c.topics
}

// QoS returns the configured default QoS.
func (c *Client) QoS() byte {
	return byte(c.cfg.QoS) //nolint:gosec // validated to 0..2 by config
}

// IsConnected reports whether the broker connection is up.
func (c *Client) IsConnected() bool {
	return c != nil && c.paho != nil && c.up.Load() && c.paho.IsConnected()
}

// HealthCheck returns ErrNotConnected while the broker is unreachable.
func (c *Client) HealthCheck(ctx context.Context) error {
	if err := ctx.Err(); err != nil {
		return fmt.Errorf("mqtt health check: %w", err)
	}
	if !c.IsConnected() {
		return ErrNotConnected
	}
	return nil
}

// Publish sends payload to topic. Retain state topics such as device
// status, never events.
func (c *Client) Publish(topic string, payload []byte, qos byte, retained bool) error {
	switch {
	case topic == "":
		return ErrInvalidTopic
	case qos > maxQoS:
		return ErrInvalidQoS
	case len(payload) > maxPayloadSize:
		return fmt.Errorf("%w: payload of %d bytes exceeds %d", ErrPublishFailed, len(payload), maxPayloadSize)
	case !c.IsConnected():
		return ErrNotConnected
	}

	if err := await(c.paho.Publish(topic, qos, retained, payload), defaultPublishTimeout); err != nil {
		return fmt.Errorf("%w: %w", ErrPublishFailed, err)
	}
	return nil
}

// PublishJSON marshals v and publishes it with the configured QoS.
func (c *Client) PublishJSON(topic string, v any, retained bool) error {
	payload, err := json.Marshal(v)
	if err != nil {
		return fmt.Errorf("%w: encoding payload: %w", ErrPublishFailed, err)
	}
	return c.Publish(topic, payload, c.QoS(), retained)
}

// Subscribe registers handler for topic, which may use the + and #
// wildcards. It is restored after every reconnect.
func (c *Client) Subscribe(topic string, qos byte, handler MessageHandler) error {
	switch {
	case topic == "":
		return ErrInvalidTopic
	case qos > maxQoS:
		return ErrInvalidQoS
	case handler == nil:
		return fmt.Errorf("%w: nil handler", ErrSubscribeFailed)
	case !c.IsConnected():
		return ErrNotConnected
	}

	c.mu.Lock()
	c.subs[topic] = subscription{qos: qos, handler: handler}
	c.mu.Unlock()

	if err := await(c.paho.Subscribe(topic, qos, c.dispatch(handler)), defaultPublishTimeout); err != nil {
		c.mu.Lock()
		delete(c.subs, topic)
		c.mu.Unlock()
		return fmt.Errorf("%w: %w", ErrSubscribeFailed, err)
	}
	return nil
}

// HasSubscription reports whether the exact topic pattern is tracked.
func (c *Client) HasSubscription(topic string) bool {
	c.mu.RLock()
	defer c.mu.RUnlock()
	_, ok := c.subs[topic]
	return ok
}

// SetOnConnect sets a callback run after every (re)connect.
func (c *Client) SetOnConnect(fn func()) {
	c.mu.Lock()
	c.onConnect = fn
	c.mu.Unlock()
}

// SetOnDisconnect sets a callback run when the connection drops.
func (c *Client) SetOnDisconnect(fn func(err error)) {
	c.mu.Lock()
	c.onDisconnect = fn
	c.mu.Unlock()
}

// SetLogger sets the logger for handler failures.
func (c *Client) SetLogger(logger Logger) {
	c.mu.Lock()
	c.logger = logger
	c.mu.Unlock()
}

// Close publishes the retained offline status and disconnects.
func (c *Client) Close() error {
	if c == nil || c.paho == nil {
		return nil
	}
	if c.IsConnected() {
		c.paho.Publish(c.topics.SystemStatus(), c.QoS(), true, buildOfflinePayload(c.cfg.Broker.ClientID)).
			WaitTimeout(defaultPublishTimeout)
	}
	c.paho.Disconnect(defaultDisconnectQuiesce)
	c.up.Store(false)
	return nil
}
