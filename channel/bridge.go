// Package channel binds a persistent duplex websocket channel to the
// authenticated identity. The store connects it on login and disconnects
// it on logout; in between, the bridge reconnects on its own with a fixed
// delay and keeps heartbeats flowing in both directions. Channel loss is
// observable but never forces a logout by itself.
package channel

import (
	"context"
	"encoding/json"
	"net/http"
	"net/url"
	"sync"
	"time"

	session "github.com/campuskit/go-session"
	"github.com/goliatone/go-errors"
	"github.com/google/uuid"
	"github.com/gorilla/websocket"
)

// Fixed channel configuration; not user-tunable.
const (
	ReconnectDelay    = 5 * time.Second
	HeartbeatInterval = 4 * time.Second
)

// Well-known topics consumed elsewhere in the system.
const (
	TopicUserQueue = "/user/queue/notifications"
	TopicPresence  = "/topic/presence"
)

const writeWait = 10 * time.Second

// Handler consumes the body of a message published on a subscribed topic.
type Handler func(body []byte)

// Frame is the wire shape for messages in both directions.
type Frame struct {
	Topic string          `json:"topic"`
	Body  json.RawMessage `json:"body"`
}

// Bridge is the session channel. One bridge serves one authenticated user
// at a time.
type Bridge struct {
	url            string
	tokens         *session.TokenStore
	logger         session.Logger
	dialer         *websocket.Dialer
	reconnectDelay time.Duration
	heartbeat      time.Duration

	mu         sync.Mutex
	writeMu    sync.Mutex
	conn       *websocket.Conn
	connected  bool
	running    bool
	userID     string
	cancel     context.CancelFunc
	subs       map[string]Handler
	statusSubs map[string]chan bool
}

var _ session.ChannelBridge = (*Bridge)(nil)

// BridgeOption customizes Bridge construction.
type BridgeOption func(*Bridge)

// WithBridgeLogger overrides the fallback logger.
func WithBridgeLogger(logger session.Logger) BridgeOption {
	return func(b *Bridge) {
		if logger != nil {
			b.logger = logger
		}
	}
}

// WithReconnectDelay overrides the reconnect delay. Tests use this; the
// production value is fixed.
func WithReconnectDelay(delay time.Duration) BridgeOption {
	return func(b *Bridge) {
		if delay > 0 {
			b.reconnectDelay = delay
		}
	}
}

// WithHeartbeatInterval overrides the heartbeat interval. Tests use this;
// the production value is fixed.
func WithHeartbeatInterval(interval time.Duration) BridgeOption {
	return func(b *Bridge) {
		if interval > 0 {
			b.heartbeat = interval
		}
	}
}

// WithDialer overrides the websocket dialer.
func WithDialer(dialer *websocket.Dialer) BridgeOption {
	return func(b *Bridge) {
		if dialer != nil {
			b.dialer = dialer
		}
	}
}

// NewBridge creates a Bridge against the configured channel URL. The token
// store supplies the handshake credentials at dial time, so a refreshed
// token is picked up on reconnect.
func NewBridge(cfg session.Config, tokens *session.TokenStore, opts ...BridgeOption) *Bridge {
	b := &Bridge{
		url:            cfg.GetChannelURL(),
		tokens:         tokens,
		logger:         session.DefaultLogger(),
		dialer:         &websocket.Dialer{HandshakeTimeout: 10 * time.Second},
		reconnectDelay: ReconnectDelay,
		heartbeat:      HeartbeatInterval,
		subs:           map[string]Handler{},
		statusSubs:     map[string]chan bool{},
	}
	for _, opt := range opts {
		if opt != nil {
			opt(b)
		}
	}
	return b
}

// Connect opens the channel for the given user. A no-op when the bridge is
// already running. The first dial happens synchronously; whatever its
// outcome, the reconnect loop keeps trying until Disconnect.
func (b *Bridge) Connect(ctx context.Context, userID string) error {
	b.mu.Lock()
	if b.running {
		b.mu.Unlock()
		return nil
	}
	b.running = true
	b.userID = userID
	loopCtx, cancel := context.WithCancel(context.Background())
	b.cancel = cancel
	b.mu.Unlock()

	err := b.dialAndInstall(ctx)
	if err != nil {
		b.logger.Warn("channel dial failed, will retry: %v", err)
	}

	go b.reconnectLoop(loopCtx)
	return err
}

// Disconnect tears the channel down: every topic subscription is dropped,
// the socket is closed, and the status goes disconnected. Always called on
// logout. Idempotent.
func (b *Bridge) Disconnect() {
	b.mu.Lock()
	if b.cancel != nil {
		b.cancel()
		b.cancel = nil
	}
	b.running = false
	b.userID = ""
	b.subs = map[string]Handler{}
	conn := b.conn
	b.conn = nil
	wasConnected := b.connected
	b.connected = false
	b.mu.Unlock()

	if conn != nil {
		conn.Close()
	}
	if wasConnected {
		b.publishStatus(false)
	}
}

// Connected reports the current channel status.
func (b *Bridge) Connected() bool {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.connected
}

// StatusSubscription is an explicit handle on the connected-status stream.
type StatusSubscription struct {
	id     string
	ch     chan bool
	bridge *Bridge
	once   sync.Once
}

// Changes returns the status stream. The current status is delivered first.
func (s *StatusSubscription) Changes() <-chan bool {
	return s.ch
}

// Close detaches the subscription. Idempotent.
func (s *StatusSubscription) Close() {
	s.once.Do(func() {
		s.bridge.mu.Lock()
		delete(s.bridge.statusSubs, s.id)
		s.bridge.mu.Unlock()
	})
}

// StatusChanges registers a status observer.
func (b *Bridge) StatusChanges() *StatusSubscription {
	sub := &StatusSubscription{
		id:     uuid.NewString(),
		ch:     make(chan bool, 8),
		bridge: b,
	}
	b.mu.Lock()
	b.statusSubs[sub.id] = sub.ch
	current := b.connected
	b.mu.Unlock()
	sub.ch <- current
	return sub
}

// Subscribe registers a handler for a topic. While disconnected this is a
// no-op that logs a warning rather than failing.
func (b *Bridge) Subscribe(topic string, handler Handler) {
	b.mu.Lock()
	defer b.mu.Unlock()
	if !b.connected {
		b.logger.Warn("subscribe to %s while channel disconnected, ignoring", topic)
		return
	}
	b.subs[topic] = handler
}

// Unsubscribe removes a topic subscription.
func (b *Bridge) Unsubscribe(topic string) {
	b.mu.Lock()
	defer b.mu.Unlock()
	delete(b.subs, topic)
}

// Send serializes and publishes a message on a topic. While disconnected
// this is a no-op that logs a warning; no network action is performed.
func (b *Bridge) Send(topic string, body any) error {
	b.mu.Lock()
	conn := b.conn
	connected := b.connected
	b.mu.Unlock()

	if !connected || conn == nil {
		b.logger.Warn("send to %s while channel disconnected, dropping", topic)
		return nil
	}

	payload, err := json.Marshal(body)
	if err != nil {
		return errors.Wrap(err, errors.CategoryInternal, "failed to encode channel message")
	}

	b.writeMu.Lock()
	defer b.writeMu.Unlock()
	conn.SetWriteDeadline(time.Now().Add(writeWait))
	if err := conn.WriteJSON(Frame{Topic: topic, Body: payload}); err != nil {
		return errors.Wrap(err, errors.CategoryOperation, "failed to publish channel message")
	}
	return nil
}

// dialAndInstall performs one dial attempt and, on success, installs the
// connection and starts its pumps.
func (b *Bridge) dialAndInstall(ctx context.Context) error {
	b.mu.Lock()
	userID := b.userID
	running := b.running
	b.mu.Unlock()
	if !running {
		return nil
	}

	header := http.Header{}
	if raw, ok := b.tokens.Read(ctx); ok {
		header.Set("Authorization", "Bearer "+raw)
	}
	if tenantID, ok := b.tokens.TenantID(ctx); ok {
		header.Set("X-Tenant-ID", tenantID)
	}

	target := b.url + "?userId=" + url.QueryEscape(userID)
	conn, resp, err := b.dialer.DialContext(ctx, target, header)
	if resp != nil && resp.Body != nil {
		resp.Body.Close()
	}
	if err != nil {
		return errors.Wrap(err, errors.CategoryOperation, "channel dial failed")
	}

	b.mu.Lock()
	if !b.running {
		b.mu.Unlock()
		conn.Close()
		return nil
	}
	b.conn = conn
	b.connected = true
	b.mu.Unlock()
	b.publishStatus(true)

	done := make(chan struct{})
	go b.readPump(conn, done)
	go b.pingLoop(conn, done)
	return nil
}

// reconnectLoop redials with the fixed delay whenever the channel is down,
// until Disconnect cancels it.
func (b *Bridge) reconnectLoop(ctx context.Context) {
	ticker := time.NewTicker(b.reconnectDelay)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if b.Connected() {
				continue
			}
			if err := b.dialAndInstall(ctx); err != nil {
				b.logger.Debug("channel reconnect failed: %v", err)
			}
		}
	}
}

func (b *Bridge) readPump(conn *websocket.Conn, done chan struct{}) {
	defer b.dropConn(conn, done)

	deadline := b.heartbeat*2 + time.Second
	conn.SetReadDeadline(time.Now().Add(deadline))
	conn.SetPongHandler(func(string) error {
		conn.SetReadDeadline(time.Now().Add(deadline))
		return nil
	})
	pingHandler := conn.PingHandler()
	conn.SetPingHandler(func(appData string) error {
		conn.SetReadDeadline(time.Now().Add(deadline))
		return pingHandler(appData)
	})

	for {
		_, data, err := conn.ReadMessage()
		if err != nil {
			return
		}

		frame := Frame{}
		if err := json.Unmarshal(data, &frame); err != nil {
			b.logger.Warn("dropping unparsable channel frame")
			continue
		}

		b.mu.Lock()
		handler := b.subs[frame.Topic]
		b.mu.Unlock()
		if handler != nil {
			handler(frame.Body)
		}
	}
}

func (b *Bridge) pingLoop(conn *websocket.Conn, done chan struct{}) {
	ticker := time.NewTicker(b.heartbeat)
	defer ticker.Stop()

	for {
		select {
		case <-done:
			return
		case <-ticker.C:
			b.writeMu.Lock()
			err := conn.WriteControl(websocket.PingMessage, nil, time.Now().Add(writeWait))
			b.writeMu.Unlock()
			if err != nil {
				conn.Close()
				return
			}
		}
	}
}

// dropConn marks a lost connection disconnected. The reconnect loop picks
// it up from there; session state is untouched.
func (b *Bridge) dropConn(conn *websocket.Conn, done chan struct{}) {
	close(done)
	conn.Close()

	b.mu.Lock()
	if b.conn != conn {
		b.mu.Unlock()
		return
	}
	b.conn = nil
	wasConnected := b.connected
	b.connected = false
	running := b.running
	b.mu.Unlock()

	if wasConnected {
		b.publishStatus(false)
		if running {
			b.logger.Info("channel connection lost, reconnecting every %s", b.reconnectDelay)
		}
	}
}

func (b *Bridge) publishStatus(connected bool) {
	b.mu.Lock()
	channels := make([]chan bool, 0, len(b.statusSubs))
	for _, ch := range b.statusSubs {
		channels = append(channels, ch)
	}
	b.mu.Unlock()

	for _, ch := range channels {
		select {
		case ch <- connected:
		default:
		}
	}
}
