package api

import (
	"context"
	"encoding/json"
	"net/http"
	"strings"
	"sync"
	"time"

	"github.com/gorilla/websocket"

	"github.com/nerrad567/ems-console/internal/auth"
	"github.com/nerrad567/ems-console/internal/events"
	"github.com/nerrad567/ems-console/internal/infrastructure/config"
	"github.com/nerrad567/ems-console/internal/infrastructure/logging"
)

// Frame kinds on the /ws stream.
const (
	FrameSubscribe   = "subscribe"
	FrameUnsubscribe = "unsubscribe"
	FramePing        = "ping"
	FramePong        = "pong"
	FrameEvent       = "event"
	FrameResponse    = "response"
	FrameError       = "error"
)

// outboxSize bounds the frames queued per subscriber; further frames are dropped.
const outboxSize = 256

// Used when the configured stream timings are unset or not positive.
const (
	fallbackPingInterval   = 30 * time.Second
	fallbackPongTimeout    = 10 * time.Second
	fallbackMaxMessageSize = 8192
)

// streamTimings is the keepalive schedule of one subscriber.
type streamTimings struct {
	ping    time.Duration
	grace   time.Duration
	maxSize int64
}

func timingsFor(cfg config.WebSocketConfig) streamTimings {
	t := streamTimings{
		ping:    time.Duration(cfg.PingInterval) * time.Second,
		grace:   time.Duration(cfg.PongTimeout) * time.Second,
		maxSize: int64(cfg.MaxMessageSize),
	}
	if t.ping <= 0 {
		t.ping = fallbackPingInterval
	}
	if t.grace <= 0 {
		t.grace = fallbackPongTimeout
	}
	if t.maxSize <= 0 {
		t.maxSize = fallbackMaxMessageSize
	}
	return t
}

// Frame is one JSON message on the event stream, in either direction.
type Frame struct {
	Kind      string `json:"type"`
	Ref       string `json:"id,omitempty"`
	EventType string `json:"eventType,omitempty"`
	At        string `json:"timestamp,omitempty"`
	Payload   any    `json:"payload,omitempty"`
}

// inbound is what a subscriber may send. Channels are event types
// ("device.created"), prefixes ("register.*") or "*".
type inbound struct {
	Kind    string `json:"type"`
	Ref     string `json:"id"`
	Payload struct {
		Channels []string `json:"channels"`
	} `json:"payload"`
}

// channelSet is a subscriber's filter. Empty means everything.
type channelSet map[string]struct{}

func (cs channelSet) matches(eventType string) bool {
	if len(cs) == 0 {
		return true
	}
	for ch := range cs {
		if ch == "*" || ch == eventType {
			return true
		}
		if prefix, ok := strings.CutSuffix(ch, "*"); ok && strings.HasPrefix(eventType, prefix) {
			return true
		}
	}
	return false
}

// Hub tracks live /ws subscribers and forwards console events to them.
// It is an events.Publisher.
type Hub struct {
	cfg    config.WebSocketConfig
	logger *logging.Logger

	mu   sync.RWMutex
	subs map[*subscriber]struct{}
}

type subscriber struct {
	hub  *Hub
	conn *websocket.Conn
	user string

	outbox chan []byte
	done   chan struct{}
	once   sync.Once

	mu       sync.RWMutex
	channels channelSet
}

var upgrader = websocket.Upgrader{
	ReadBufferSize:  1024,
	WriteBufferSize: 1024,
	// CORS middleware already vetted the origin.
	CheckOrigin: func(*http.Request) bool { return true },
}

// NewHub creates an empty hub.
func NewHub(cfg config.WebSocketConfig, logger *logging.Logger) *Hub {
	return &Hub{
		cfg:    cfg,
		logger: logger,
		subs:   make(map[*subscriber]struct{}),
	}
}

// Run waits for ctx to end and then drops every subscriber.
func (h *Hub) Run(ctx context.Context) {
	<-ctx.Done()

	h.mu.Lock()
	subs := h.subs
	h.subs = make(map[*subscriber]struct{})
	h.mu.Unlock()

	for s := range subs {
		s.stop()
	}
}

func (h *Hub) attach(s *subscriber) {
	h.mu.Lock()
	h.subs[s] = struct{}{}
	n := len(h.subs)
	h.mu.Unlock()
	h.logger.Debug("stream subscriber joined", "user", s.user, "subscribers", n)
}

func (h *Hub) detach(s *subscriber) {
	h.mu.Lock()
	delete(h.subs, s)
	n := len(h.subs)
	h.mu.Unlock()
	s.stop()
	h.logger.Debug("stream subscriber left", "user", s.user, "subscribers", n)
}

// Publish forwards e to every subscriber whose channels match. Slow
// subscribers lose frames rather than block the publisher.
func (h *Hub) Publish(_ context.Context, e events.Event) error {
	data, err := json.Marshal(Frame{
		Kind:      FrameEvent,
		Ref:       e.ID,
		EventType: string(e.Type),
		At:        e.Timestamp.UTC().Format(time.RFC3339),
		Payload:   e.Payload,
	})
	if err != nil {
		return err
	}

	h.mu.RLock()
	targets := make([]*subscriber, 0, len(h.subs))
	for s := range h.subs {
		targets = append(targets, s)
	}
	h.mu.RUnlock()

	for _, s := range targets {
		if s.wants(string(e.Type)) {
			s.enqueue(data)
		}
	}
	return nil
}

// ClientCount returns the number of connected subscribers.
func (h *Hub) ClientCount() int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.subs)
}

// handleWebSocket upgrades to the event stream. Browsers cannot set headers
// on the handshake, so the access token comes in the "token" query parameter.
func (s *Server) handleWebSocket(w http.ResponseWriter, r *http.Request) {
	raw := r.URL.Query().Get("token")
	if raw == "" {
		writeUnauthorized(w, "token query parameter is required")
		return
	}
	claims, err := auth.ParseToken(raw, s.secCfg.JWT.Secret)
	if err != nil {
		writeUnauthorized(w, "invalid or expired token")
		return
	}

	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		s.logger.Warn("websocket upgrade failed", "error", err, "request_id", requestID(r))
		return
	}

	sub := &subscriber{
		hub:      s.hub,
		conn:     conn,
		user:     claims.Subject,
		outbox:   make(chan []byte, outboxSize),
		done:     make(chan struct{}),
		channels: channelSet{},
	}
	s.hub.attach(sub)

	timings := timingsFor(s.wsCfg)
	go sub.writeLoop(timings)
	go sub.readLoop(timings)
}

// stop ends the write loop and closes the connection. Safe to call twice.
func (s *subscriber) stop() {
	s.once.Do(func() {
		close(s.done)
		if s.conn != nil {
			s.conn.Close()
		}
	})
}

func (s *subscriber) enqueue(data []byte) {
	select {
	case <-s.done:
	case s.outbox <- data:
	default:
		s.hub.logger.Debug("stream frame dropped", "user", s.user)
	}
}

func (s *subscriber) wants(eventType string) bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.channels.matches(eventType)
}

func (s *subscriber) readLoop(t streamTimings) {
	defer s.hub.detach(s)

	idle := t.ping + t.grace
	extend := func(string) error { return s.conn.SetReadDeadline(time.Now().Add(idle)) }

	s.conn.SetReadLimit(t.maxSize)
	extend("") //nolint:errcheck // a failed deadline surfaces on the next read
	s.conn.SetPongHandler(extend)

	for {
		_, data, err := s.conn.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseNormalClosure) {
				s.hub.logger.Warn("stream read failed", "user", s.user, "error", err)
			}
			return
		}
		extend("") //nolint:errcheck // as above
		s.handle(data)
	}
}

func (s *subscriber) writeLoop(t streamTimings) {
	ping := time.NewTicker(t.ping)
	defer ping.Stop()
	grace := t.grace

	for {
		select {
		case <-s.done:
			//nolint:errcheck // connection is going away regardless
			s.conn.WriteControl(websocket.CloseMessage,
				websocket.FormatCloseMessage(websocket.CloseGoingAway, ""), time.Now().Add(time.Second))
			return
		case data := <-s.outbox:
			s.conn.SetWriteDeadline(time.Now().Add(grace)) //nolint:errcheck // write error follows
			if err := s.conn.WriteMessage(websocket.TextMessage, data); err != nil {
				s.stop()
				return
			}
		case <-ping.C:
			if err := s.conn.WriteControl(websocket.PingMessage, nil, time.Now().Add(grace)); err != nil {
				s.stop()
				return
			}
		}
	}
}

func (s *subscriber) handle(data []byte) {
	var in inbound
	if err := json.Unmarshal(data, &in); err != nil {
		s.reply("", FrameError, map[string]string{"message": "invalid JSON message"})
		return
	}

	switch in.Kind {
	case FrameSubscribe:
		s.mu.Lock()
		for _, ch := range in.Payload.Channels {
			s.channels[ch] = struct{}{}
		}
		s.mu.Unlock()
		s.reply(in.Ref, FrameResponse, map[string]any{"subscribed": in.Payload.Channels})
	case FrameUnsubscribe:
		s.mu.Lock()
		for _, ch := range in.Payload.Channels {
			delete(s.channels, ch)
		}
		s.mu.Unlock()
		s.reply(in.Ref, FrameResponse, map[string]any{"unsubscribed": in.Payload.Channels})
	case FramePing:
		s.reply(in.Ref, FramePong, nil)
	default:
		s.reply(in.Ref, FrameError, map[string]string{"message": "unknown message type: " + in.Kind})
	}
}

func (s *subscriber) reply(ref, kind string, payload any) {
	data, err := json.Marshal(Frame{
		Kind:    kind,
		Ref:     ref,
		At:      time.Now().UTC().Format(time.RFC3339),
		Payload: payload,
	})
	if err != nil {
		return
	}
	s.enqueue(data)
}
