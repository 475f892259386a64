package realtime

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/gorilla/websocket"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"chat-client/internal/models"
	"chat-client/internal/observability"
)

type serverConn struct {
	conn *websocket.Conn
	mu   sync.Mutex
}

func (c *serverConn) writeJSON(v interface{}) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.conn.WriteJSON(v)
}

type cableServer struct {
	srv      *httptest.Server
	reject   map[string]bool
	commands chan commandFrame
	conns    chan *serverConn
}

func newCableServer(t *testing.T, rejected ...int) *cableServer {
	t.Helper()
	s := &cableServer{
		reject:   map[string]bool{},
		commands: make(chan commandFrame, 16),
		conns:    make(chan *serverConn, 4),
	}
	for _, id := range rejected {
		s.reject[chatroomIdentifier(id)] = true
	}
	upgrader := websocket.Upgrader{Subprotocols: []string{cableSubprotocol}}
	s.srv = httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		ws, err := upgrader.Upgrade(w, r, nil)
		if err != nil {
			return
		}
		conn := &serverConn{conn: ws}
		s.conns <- conn
		_ = conn.writeJSON(map[string]string{"type": typeWelcome})
		for {
			var cmd commandFrame
			if err := ws.ReadJSON(&cmd); err != nil {
				return
			}
			s.commands <- cmd
			if cmd.Command != "subscribe" {
				continue
			}
			reply := typeConfirm
			if s.reject[cmd.Identifier] {
				reply = typeReject
			}
			_ = conn.writeJSON(map[string]string{"type": reply, "identifier": cmd.Identifier})
		}
	}))
	t.Cleanup(s.srv.Close)
	return s
}

func (s *cableServer) url() string {
	return "ws" + strings.TrimPrefix(s.srv.URL, "http")
}

func receive[T any](t *testing.T, ch <-chan T) T {
	t.Helper()
	select {
	case v := <-ch:
		return v
	case <-time.After(2 * time.Second):
		t.Fatalf("timed out waiting for %T", *new(T))
	}
	var zero T
	return zero
}

func newTestConsumer(t *testing.T, server *cableServer) *Consumer {
	t.Helper()
	consumer := NewConsumer(server.url(), WithBackoff(10*time.Millisecond, 50*time.Millisecond))
	t.Cleanup(func() { _ = consumer.Close() })
	return consumer
}

func TestChatroomIdentifier(t *testing.T) {
	assert.Equal(t, `{"channel":"ChatroomChannel","chatroom_id":7}`, chatroomIdentifier(7))
}

func TestConsumerSubscribeReceiveUnsubscribe(t *testing.T) {
	server := newCableServer(t)
	consumer := newTestConsumer(t, server)

	connected := make(chan struct{}, 1)
	messages := make(chan models.MessageDTO, 1)
	unsubscribe := consumer.Subscribe(7, Handlers{
		OnConnected: func() { connected <- struct{}{} },
		OnMessage:   func(dto models.MessageDTO) { messages <- dto },
	})

	receive(t, connected)
	cmd := receive(t, server.commands)
	assert.Equal(t, commandFrame{Command: "subscribe", Identifier: chatroomIdentifier(7)}, cmd)

	conn := receive(t, server.conns)
	require.NoError(t, conn.writeJSON(map[string]interface{}{
		"identifier": chatroomIdentifier(7),
		"message": map[string]interface{}{
			"id": 3, "body": "Realtime message", "user_name": "Alice", "user_uid": "alice-1",
			"chatroom_id": 7, "created_at": "2024-05-01T10:00:00.000Z", "updated_at": "2024-05-01T10:00:00.000Z",
		},
	}))
	dto := receive(t, messages)
	assert.Equal(t, int64(3), dto.ID)
	assert.Equal(t, "Realtime message", dto.Body)

	unsubscribe()
	unsubscribe()
	cmd = receive(t, server.commands)
	assert.Equal(t, commandFrame{Command: "unsubscribe", Identifier: chatroomIdentifier(7)}, cmd)
}

func TestConsumerIgnoresOtherChatrooms(t *testing.T) {
	server := newCableServer(t)
	consumer := newTestConsumer(t, server)

	connected := make(chan struct{}, 1)
	messages := make(chan models.MessageDTO, 1)
	consumer.Subscribe(1, Handlers{
		OnConnected: func() { connected <- struct{}{} },
		OnMessage:   func(dto models.MessageDTO) { messages <- dto },
	})
	receive(t, connected)
	conn := receive(t, server.conns)

	require.NoError(t, conn.writeJSON(map[string]interface{}{
		"identifier": chatroomIdentifier(2),
		"message":    map[string]interface{}{"id": 1, "chatroom_id": 2},
	}))
	require.NoError(t, conn.writeJSON(map[string]interface{}{
		"identifier": chatroomIdentifier(1),
		"message":    map[string]interface{}{"id": 2, "chatroom_id": 1},
	}))

	assert.Equal(t, int64(2), receive(t, messages).ID)
}

func TestConsumerRejectedSubscription(t *testing.T) {
	server := newCableServer(t, 13)
	consumer := newTestConsumer(t, server)

	failures := make(chan error, 1)
	unsubscribe := consumer.Subscribe(13, Handlers{
		OnMessage: func(models.MessageDTO) {},
		OnError:   func(err error) { failures <- err },
	})

	err := receive(t, failures)
	assert.True(t, errors.Is(err, ErrRejected))
	assert.Contains(t, err.Error(), "chatroom 13")

	unsubscribe()
	receive(t, server.commands)
	select {
	case cmd := <-server.commands:
		t.Fatalf("unexpected command after rejection: %+v", cmd)
	case <-time.After(50 * time.Millisecond):
	}
}

func TestConsumerMalformedMessageReportsError(t *testing.T) {
	server := newCableServer(t)
	consumer := newTestConsumer(t, server)

	connected := make(chan struct{}, 1)
	failures := make(chan error, 1)
	consumer.Subscribe(5, Handlers{
		OnConnected: func() { connected <- struct{}{} },
		OnMessage:   func(models.MessageDTO) {},
		OnError:     func(err error) { failures <- err },
	})
	receive(t, connected)
	conn := receive(t, server.conns)

	require.NoError(t, conn.writeJSON(map[string]interface{}{
		"identifier": chatroomIdentifier(5),
		"message":    "not an object",
	}))
	assert.ErrorContains(t, receive(t, failures), "decode message")
}

func TestConsumerReconnectsAfterDrop(t *testing.T) {
	server := newCableServer(t)
	consumer := newTestConsumer(t, server)

	connected := make(chan struct{}, 4)
	disconnected := make(chan struct{}, 4)
	reconnecting := make(chan struct{}, 4)
	consumer.Subscribe(2, Handlers{
		OnConnected:    func() { connected <- struct{}{} },
		OnDisconnected: func() { disconnected <- struct{}{} },
		OnReconnecting: func() { reconnecting <- struct{}{} },
		OnMessage:      func(models.MessageDTO) {},
	})
	receive(t, connected)
	first := receive(t, server.conns)

	require.NoError(t, first.conn.Close())

	receive(t, disconnected)
	receive(t, reconnecting)
	receive(t, connected)
	receive(t, server.conns)
}

type publishedEvent struct {
	routingKey string
	envelope   observability.EventEnvelope
	headers    map[string]string
}

type recordingPublisher struct {
	events chan publishedEvent
}

func (p *recordingPublisher) Publish(ctx context.Context, routingKey string, event any, headers map[string]string) error {
	envelope, _ := event.(observability.EventEnvelope)
	select {
	case p.events <- publishedEvent{routingKey: routingKey, envelope: envelope, headers: headers}:
	default:
	}
	return nil
}

func installRecordingPublisher(t *testing.T) *recordingPublisher {
	t.Helper()
	p := &recordingPublisher{events: make(chan publishedEvent, 16)}
	observability.SetPublisher(p)
	t.Cleanup(func() { observability.SetPublisher(nil) })
	return p
}

func TestConsumerPublishesConnectionEvents(t *testing.T) {
	publisher := installRecordingPublisher(t)
	server := newCableServer(t, 9)
	consumer := newTestConsumer(t, server)

	failures := make(chan error, 1)
	consumer.Subscribe(9, Handlers{OnMessage: func(models.MessageDTO) {}, OnError: func(err error) { failures <- err }})
	assert.ErrorIs(t, receive(t, failures), ErrRejected)

	connect := receive(t, publisher.events)
	assert.Equal(t, routingKey, connect.routingKey)
	assert.Equal(t, "ws_events", connect.envelope.EventType)
	assert.Equal(t, "ws_connect", connect.envelope.EventName)
	assert.Empty(t, connect.headers)

	rejected := receive(t, publisher.events)
	assert.Equal(t, "subscription_rejected", rejected.envelope.EventName)
	payload := rejected.envelope.Payload.(map[string]interface{})["ws"].(map[string]interface{})
	assert.Equal(t, chatroomIdentifier(9), payload["reason"])
}

func TestBackOffDoublesUpToCapAndResets(t *testing.T) {
	b := newBackOff(10*time.Millisecond, 50*time.Millisecond)

	var got []time.Duration
	for range 5 {
		got = append(got, b.NextBackOff())
	}
	assert.Equal(t, []time.Duration{
		10 * time.Millisecond,
		20 * time.Millisecond,
		40 * time.Millisecond,
		50 * time.Millisecond,
		50 * time.Millisecond,
	}, got)

	b.Reset()
	assert.Equal(t, 10*time.Millisecond, b.NextBackOff())
}

func TestConsumerSecondSubscriberToConfirmedRoom(t *testing.T) {
	server := newCableServer(t)
	consumer := newTestConsumer(t, server)

	first := make(chan struct{}, 1)
	consumer.Subscribe(4, Handlers{OnConnected: func() { first <- struct{}{} }, OnMessage: func(models.MessageDTO) {}})
	receive(t, first)

	second := make(chan struct{}, 1)
	consumer.Subscribe(4, Handlers{OnConnected: func() { second <- struct{}{} }, OnMessage: func(models.MessageDTO) {}})
	receive(t, second)
}

func TestConsumerClose(t *testing.T) {
	server := newCableServer(t)
	consumer := NewConsumer(server.url())

	connected := make(chan struct{}, 1)
	consumer.Subscribe(1, Handlers{OnConnected: func() { connected <- struct{}{} }, OnMessage: func(models.MessageDTO) {}})
	receive(t, connected)

	require.NoError(t, consumer.Close())
	require.NoError(t, consumer.Close())

	failures := make(chan error, 1)
	consumer.Subscribe(1, Handlers{OnMessage: func(models.MessageDTO) {}, OnError: func(err error) { failures <- err }})
	assert.ErrorIs(t, receive(t, failures), ErrClosed)
}
