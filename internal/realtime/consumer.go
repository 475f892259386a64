package realtime

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"sync"
	"time"

	"github.com/cenkalti/backoff/v4"
	"github.com/google/uuid"
	"github.com/gorilla/websocket"
	"github.com/rs/zerolog/log"

	"chat-client/internal/models"
	"chat-client/internal/observability"
)

var (
	// ErrRejected is passed to OnError when the server refuses a subscription.
	ErrRejected = errors.New("subscription rejected")
	// ErrClosed is passed to OnError when subscribing on a closed consumer.
	ErrClosed = errors.New("realtime consumer closed")

	errNotConnected = errors.New("not connected")
)

const routingKey = "client_events.realtime"

// Handlers receive the lifecycle of one chatroom subscription. Every field is
// optional except OnMessage. Callbacks run on the consumer's read goroutine.
type Handlers struct {
	OnConnected    func()
	OnDisconnected func()
	OnReconnecting func()
	OnMessage      func(models.MessageDTO)
	OnError        func(error)
}

func (h Handlers) connected() {
	if h.OnConnected != nil {
		h.OnConnected()
	}
}

func (h Handlers) disconnected() {
	if h.OnDisconnected != nil {
		h.OnDisconnected()
	}
}

func (h Handlers) reconnecting() {
	if h.OnReconnecting != nil {
		h.OnReconnecting()
	}
}

func (h Handlers) failed(err error) {
	if h.OnError != nil {
		h.OnError(err)
	}
}

type subscription struct {
	chatroomID int
	identifier string
	handlers   Handlers
	once       sync.Once
}

// Consumer owns a single cable connection shared by all chatroom
// subscriptions. It dials on the first Subscribe, reconnects with capped
// backoff while subscriptions exist and is torn down by Close.
type Consumer struct {
	url        string
	dialer     *websocket.Dialer
	header     http.Header
	minBackoff time.Duration
	maxBackoff time.Duration
	staleAfter time.Duration

	ctx    context.Context
	cancel context.CancelFunc
	wg     sync.WaitGroup

	mu        sync.Mutex
	rooms     map[string]map[*subscription]bool
	confirmed map[string]bool
	conn      *websocket.Conn
	info      ConnInfo
	welcomed  bool
	running   bool
	closed    bool

	writeMu sync.Mutex
}

// Option customises a Consumer.
type Option func(*Consumer)

// WithHeader sets extra handshake headers such as Origin.
func WithHeader(h http.Header) Option {
	return func(c *Consumer) { c.header = h }
}

// WithBackoff bounds the reconnect delay.
func WithBackoff(min, max time.Duration) Option {
	return func(c *Consumer) {
		c.minBackoff = min
		c.maxBackoff = max
	}
}

// WithStaleAfter sets how long the connection may stay silent. The server
// pings every few seconds so silence means a dead link.
func WithStaleAfter(d time.Duration) Option {
	return func(c *Consumer) { c.staleAfter = d }
}

// NewConsumer prepares a consumer for the cable at url without dialing.
func NewConsumer(url string, opts ...Option) *Consumer {
	ctx, cancel := context.WithCancel(context.Background())
	c := &Consumer{
		url: url,
		dialer: &websocket.Dialer{
			Proxy:            http.ProxyFromEnvironment,
			HandshakeTimeout: 10 * time.Second,
			Subprotocols:     []string{cableSubprotocol},
		},
		minBackoff: time.Second,
		maxBackoff: 30 * time.Second,
		staleAfter: 10 * time.Second,
		ctx:        ctx,
		cancel:     cancel,
		rooms:      make(map[string]map[*subscription]bool),
		confirmed:  make(map[string]bool),
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// Subscribe joins the ChatroomChannel for chatroomID. The returned function
// releases the subscription and is safe to call more than once.
func (c *Consumer) Subscribe(chatroomID int, h Handlers) func() {
	sub := &subscription{chatroomID: chatroomID, identifier: chatroomIdentifier(chatroomID), handlers: h}

	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		h.failed(ErrClosed)
		return func() {}
	}
	set, ok := c.rooms[sub.identifier]
	if !ok {
		set = make(map[*subscription]bool)
		c.rooms[sub.identifier] = set
	}
	first := len(set) == 0
	set[sub] = true
	live := c.conn != nil && c.welcomed
	confirmed := c.confirmed[sub.identifier]
	c.startLocked()
	c.mu.Unlock()

	switch {
	case live && first:
		if err := c.send(commandFrame{Command: "subscribe", Identifier: sub.identifier}); err != nil {
			log.Warn().Err(err).Int("chatroom_id", chatroomID).Msg("[realtime] subscribe command failed")
		}
	case live && confirmed:
		h.connected()
	}

	return func() { sub.once.Do(func() { c.unsubscribe(sub) }) }
}

func (c *Consumer) unsubscribe(sub *subscription) {
	c.mu.Lock()
	set, ok := c.rooms[sub.identifier]
	if !ok || !set[sub] {
		c.mu.Unlock()
		return
	}
	delete(set, sub)
	last := len(set) == 0
	if last {
		delete(c.rooms, sub.identifier)
		delete(c.confirmed, sub.identifier)
	}
	live := c.conn != nil && c.welcomed
	c.mu.Unlock()

	if last && live {
		if err := c.send(commandFrame{Command: "unsubscribe", Identifier: sub.identifier}); err != nil {
			log.Debug().Err(err).Int("chatroom_id", sub.chatroomID).Msg("[realtime] unsubscribe command failed")
		}
	}
}

// Close stops the connection loop and waits for it to exit.
func (c *Consumer) Close() error {
	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		return nil
	}
	c.closed = true
	conn := c.conn
	c.mu.Unlock()

	c.cancel()
	if conn != nil {
		c.writeMu.Lock()
		_ = conn.WriteControl(websocket.CloseMessage,
			websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""),
			time.Now().Add(time.Second))
		c.writeMu.Unlock()
		_ = conn.Close()
	}
	c.wg.Wait()
	return nil
}

func (c *Consumer) startLocked() {
	if c.running || c.closed {
		return
	}
	c.running = true
	c.wg.Add(1)
	go c.run()
}

func (c *Consumer) run() {
	defer c.wg.Done()
	retry := backoff.WithContext(newBackOff(c.minBackoff, c.maxBackoff), c.ctx)
	for {
		welcomed, reconnect, err := c.connectAndServe()
		if welcomed {
			retry.Reset()
		}
		c.dropConnection(err)

		c.mu.Lock()
		if c.ctx.Err() != nil || !reconnect || len(c.rooms) == 0 {
			c.running = false
			c.mu.Unlock()
			return
		}
		c.mu.Unlock()

		delay := retry.NextBackOff()
		if delay == backoff.Stop {
			c.mu.Lock()
			c.running = false
			c.mu.Unlock()
			return
		}
		select {
		case <-c.ctx.Done():
			c.mu.Lock()
			c.running = false
			c.mu.Unlock()
			return
		case <-time.After(delay):
		}

		for _, sub := range c.snapshot("") {
			sub.handlers.reconnecting()
		}
	}
}

// newBackOff doubles from min up to max and never gives up.
func newBackOff(min, max time.Duration) *backoff.ExponentialBackOff {
	b := backoff.NewExponentialBackOff()
	b.InitialInterval = min
	b.MaxInterval = max
	b.Multiplier = 2
	b.RandomizationFactor = 0
	b.MaxElapsedTime = 0
	b.Reset()
	return b
}

// connectAndServe dials and reads frames until the link drops.
func (c *Consumer) connectAndServe() (welcomed, reconnect bool, err error) {
	reconnect = true
	conn, _, err := c.dialer.DialContext(c.ctx, c.url, c.header)
	if err != nil {
		return false, reconnect, fmt.Errorf("dial cable: %w", err)
	}

	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		_ = conn.Close()
		return false, false, ErrClosed
	}
	c.conn = conn
	c.info = ConnInfo{ConnID: uuid.NewString(), URL: c.url, ConnectedAt: time.Now()}
	info := c.info
	c.mu.Unlock()

	observability.IncWSActive()
	c.publish("ws_connect", info, "")
	log.Debug().Str("conn_id", info.ConnID).Str("url", c.url).Msg("[realtime] connected")

	for {
		_ = conn.SetReadDeadline(time.Now().Add(c.staleAfter))
		_, raw, err := conn.ReadMessage()
		if err != nil {
			return welcomed, reconnect, err
		}

		var frame inboundFrame
		if err := json.Unmarshal(raw, &frame); err != nil {
			log.Warn().Err(err).Msg("[realtime] malformed frame")
			continue
		}

		switch frame.Type {
		case typeWelcome:
			welcomed = true
			c.onWelcome()
		case typePing:
		case typeConfirm:
			c.onConfirm(frame.Identifier)
		case typeReject:
			c.onReject(frame.Identifier)
		case typeDisconnect:
			if frame.Reconnect != nil {
				reconnect = *frame.Reconnect
			}
			return welcomed, reconnect, fmt.Errorf("server disconnect: %s", frame.Reason)
		default:
			if frame.Identifier != "" && len(frame.Message) > 0 {
				c.onMessage(frame.Identifier, frame.Message)
			}
		}
	}
}

func (c *Consumer) dropConnection(cause error) {
	c.mu.Lock()
	conn := c.conn
	info := c.info
	c.conn = nil
	c.welcomed = false
	c.confirmed = make(map[string]bool)
	c.mu.Unlock()

	if conn != nil {
		_ = conn.Close()
		observability.DecWSActive()
		reason := ""
		if cause != nil {
			reason = cause.Error()
		}
		if cause != nil && !websocket.IsCloseError(cause, websocket.CloseNormalClosure, websocket.CloseGoingAway) && c.ctx.Err() == nil {
			observability.IncWSEvent("ws_error")
		}
		c.publish("ws_disconnect", info, reason)
	}
	if cause != nil && c.ctx.Err() == nil {
		log.Debug().Err(cause).Msg("[realtime] connection lost")
	}

	for _, sub := range c.snapshot("") {
		sub.handlers.disconnected()
	}
}

func (c *Consumer) onWelcome() {
	c.mu.Lock()
	c.welcomed = true
	identifiers := make([]string, 0, len(c.rooms))
	for identifier := range c.rooms {
		identifiers = append(identifiers, identifier)
	}
	c.mu.Unlock()

	for _, identifier := range identifiers {
		if err := c.send(commandFrame{Command: "subscribe", Identifier: identifier}); err != nil {
			log.Warn().Err(err).Str("identifier", identifier).Msg("[realtime] subscribe command failed")
		}
	}
}

func (c *Consumer) onConfirm(identifier string) {
	c.mu.Lock()
	if _, ok := c.rooms[identifier]; ok {
		c.confirmed[identifier] = true
	}
	c.mu.Unlock()

	observability.IncWSEvent("subscription_confirmed")
	for _, sub := range c.snapshot(identifier) {
		sub.handlers.connected()
	}
}

// onReject drops every subscription for identifier; a rejection is final.
func (c *Consumer) onReject(identifier string) {
	subs := c.snapshot(identifier)
	c.mu.Lock()
	delete(c.rooms, identifier)
	delete(c.confirmed, identifier)
	info := c.info
	c.mu.Unlock()

	c.publish("subscription_rejected", info, identifier)
	for _, sub := range subs {
		sub.handlers.failed(fmt.Errorf("%w for chatroom %d", ErrRejected, sub.chatroomID))
	}
}

func (c *Consumer) onMessage(identifier string, raw json.RawMessage) {
	observability.IncWSEvent("message")
	subs := c.snapshot(identifier)
	if len(subs) == 0 {
		return
	}

	var dto models.MessageDTO
	if err := json.Unmarshal(raw, &dto); err != nil {
		for _, sub := range subs {
			sub.handlers.failed(fmt.Errorf("decode message: %w", err))
		}
		return
	}
	for _, sub := range subs {
		sub.handlers.OnMessage(dto)
	}
}

// snapshot copies the subscriptions for identifier, or all of them when
// identifier is empty, so callbacks run without holding the lock.
func (c *Consumer) snapshot(identifier string) []*subscription {
	c.mu.Lock()
	defer c.mu.Unlock()
	var out []*subscription
	for id, set := range c.rooms {
		if identifier != "" && id != identifier {
			continue
		}
		for sub := range set {
			out = append(out, sub)
		}
	}
	return out
}

func (c *Consumer) send(cmd commandFrame) error {
	c.mu.Lock()
	conn := c.conn
	c.mu.Unlock()
	if conn == nil {
		return errNotConnected
	}

	c.writeMu.Lock()
	defer c.writeMu.Unlock()
	_ = conn.SetWriteDeadline(time.Now().Add(5 * time.Second))
	return conn.WriteJSON(cmd)
}

func (c *Consumer) publish(event string, info ConnInfo, reason string) {
	observability.IncWSEvent(event)
	_ = observability.PublishEvent(context.Background(), routingKey, observability.EventEnvelope{
		EventType:  "ws_events",
		EventName:  event,
		OccurredAt: time.Now().UTC().Format(time.RFC3339Nano),
		Payload: map[string]interface{}{
			"ws": map[string]interface{}{
				"event":       event,
				"conn_id":     info.ConnID,
				"url":         info.URL,
				"duration_ms": time.Since(info.ConnectedAt).Milliseconds(),
				"reason":      reason,
			},
		},
	}, observability.BuildHeaders("", ""))
}
