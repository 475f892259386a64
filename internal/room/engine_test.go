package room_test

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"

	"chat-client/internal/api"
	"chat-client/internal/mocks"
	"chat-client/internal/models"
	"chat-client/internal/realtime"
	"chat-client/internal/room"
)

const (
	t0 = "2024-05-01T10:00:00.000Z"
	t1 = "2024-05-01T10:00:05.000Z"
)

type harness struct {
	api      *mocks.MessageAPIMock
	subs     *mocks.SubscriberMock
	engine   *room.Engine
	mu       sync.Mutex
	handlers map[int]realtime.Handlers
	released map[int]int
}

func newHarness(t *testing.T, opts ...room.Option) *harness {
	t.Helper()
	h := &harness{
		api:      new(mocks.MessageAPIMock),
		subs:     new(mocks.SubscriberMock),
		handlers: map[int]realtime.Handlers{},
		released: map[int]int{},
	}
	h.subs.On("Subscribe", mock.Anything, mock.Anything).Run(func(args mock.Arguments) {
		h.mu.Lock()
		defer h.mu.Unlock()
		h.handlers[args.Int(0)] = args.Get(1).(realtime.Handlers)
	}).Return(nil).Maybe()

	fixed := time.Date(2024, 5, 1, 10, 0, 10, 0, time.UTC)
	n := 0
	opts = append([]room.Option{
		room.WithClock(func() time.Time { return fixed }),
		room.WithIDGenerator(func() string { n++; return string(rune('a' + n - 1)) }),
	}, opts...)
	h.engine = room.New(h.api, &releaseTracker{h: h}, opts...)
	t.Cleanup(func() { _ = h.engine.Close() })
	return h
}

// releaseTracker wraps the mock so each unsubscribe call is counted per room.
type releaseTracker struct{ h *harness }

func (r *releaseTracker) Subscribe(chatroomID int, handlers realtime.Handlers) func() {
	r.h.subs.Subscribe(chatroomID, handlers)
	return func() {
		r.h.mu.Lock()
		defer r.h.mu.Unlock()
		r.h.released[chatroomID]++
	}
}

func (h *harness) realtime(chatroomID int) realtime.Handlers {
	h.mu.Lock()
	defer h.mu.Unlock()
	return h.handlers[chatroomID]
}

func (h *harness) releasedCount(chatroomID int) int {
	h.mu.Lock()
	defer h.mu.Unlock()
	return h.released[chatroomID]
}

func (h *harness) waitLoaded(t *testing.T) room.View {
	t.Helper()
	require.Eventually(t, func() bool { return !h.engine.Snapshot().Loading }, time.Second, 5*time.Millisecond)
	return h.engine.Snapshot()
}

func dto(id int64, chatroomID int, body, uid, createdAt string) models.MessageDTO {
	return models.MessageDTO{ID: id, ChatroomID: chatroomID, Body: body, UserName: "User " + uid, UserUID: uid, CreatedAt: createdAt, UpdatedAt: createdAt}
}

func bodies(msgs []models.Message) []string {
	out := make([]string, 0, len(msgs))
	for _, m := range msgs {
		out = append(out, m.Body)
	}
	return out
}

func TestEngineLoadsHistoryAndMergesPush(t *testing.T) {
	h := newHarness(t)
	h.api.On("ListMessages", mock.Anything, 1).Return([]models.MessageDTO{dto(1, 1, "hi", "alice-1", t0)}, nil).Once()

	require.NoError(t, h.engine.Activate(context.Background(), 1))
	assert.Equal(t, models.ConnectionConnecting, h.engine.Snapshot().Status)

	view := h.waitLoaded(t)
	require.Len(t, view.Messages, 1)
	assert.Equal(t, "1", view.Messages[0].ID)
	assert.Equal(t, models.StatusSent, view.Messages[0].Status)

	h.realtime(1).OnConnected()
	assert.Equal(t, models.ConnectionConnected, h.engine.Snapshot().Status)

	h.realtime(1).OnMessage(dto(3, 1, "Realtime message", "bob-1", t1))
	assert.Equal(t, []string{"hi", "Realtime message"}, bodies(h.engine.Snapshot().Messages))

	h.realtime(1).OnError(realtime.ErrRejected)
	view = h.engine.Snapshot()
	assert.Equal(t, models.ConnectionDisconnected, view.Status)
	assert.Len(t, view.Messages, 2)

	h.realtime(1).OnReconnecting()
	assert.Equal(t, models.ConnectionConnecting, h.engine.Snapshot().Status)
	h.api.AssertExpectations(t)
}

func TestEngineSendAsyncReplacesOptimisticEntry(t *testing.T) {
	h := newHarness(t)
	h.api.On("ListMessages", mock.Anything, 1).Return([]models.MessageDTO{dto(1, 1, "hi", "alice-1", t0)}, nil).Once()
	require.NoError(t, h.engine.Activate(context.Background(), 1))
	h.waitLoaded(t)

	release := make(chan time.Time)
	input := models.SendInput{Body: "yo", UserName: "Tester", UserUID: "user-1"}
	h.api.On("CreateMessage", mock.Anything, 1, input).WaitUntil(release).Return(dto(2, 1, "yo", "user-1", "2024-05-01T10:00:09.000Z"), nil).Once()

	done := make(chan models.Message, 1)
	go func() {
		msg, err := h.engine.SendAsync(context.Background(), input)
		assert.NoError(t, err)
		done <- msg
	}()

	require.Eventually(t, func() bool { return len(h.engine.Snapshot().Messages) == 2 }, time.Second, 5*time.Millisecond)
	view := h.engine.Snapshot()
	pending := view.Messages[1]
	assert.Equal(t, models.OptimisticPrefix+"a", pending.ID)
	assert.Equal(t, models.StatusSending, pending.Status)
	assert.True(t, pending.IsLocal)
	assert.Equal(t, "2024-05-01T10:00:10.000Z", pending.CreatedAt)
	assert.True(t, view.Sending)

	close(release)
	confirmed := <-done
	assert.Equal(t, "2", confirmed.ID)

	view = h.engine.Snapshot()
	require.Len(t, view.Messages, 2)
	assert.Equal(t, "2", view.Messages[1].ID)
	assert.Equal(t, models.StatusSent, view.Messages[1].Status)
	assert.False(t, view.Messages[1].IsLocal)
	assert.False(t, view.Sending)
}

func TestEngineSendFailureThenRetry(t *testing.T) {
	h := newHarness(t)
	h.api.On("ListMessages", mock.Anything, 1).Return([]models.MessageDTO{}, nil).Once()
	require.NoError(t, h.engine.Activate(context.Background(), 1))
	h.waitLoaded(t)

	input := models.SendInput{Body: "Hello world", UserName: "Tester", UserUID: "user-1"}
	h.api.On("CreateMessage", mock.Anything, 1, input).Return(nil, &api.HTTPError{Status: 503, Message: "Service Unavailable"}).Once()

	_, err := h.engine.SendAsync(context.Background(), input)
	var httpErr *api.HTTPError
	require.True(t, errors.As(err, &httpErr))

	view := h.engine.Snapshot()
	require.Len(t, view.Messages, 1)
	failed := view.Messages[0]
	assert.Equal(t, models.StatusFailed, failed.Status)
	assert.Equal(t, "Hello world", failed.Body)
	assert.Equal(t, "Service Unavailable", view.LatestError)

	h.api.On("CreateMessage", mock.Anything, 1, input).Return(dto(4, 1, "Hello world", "user-1", "2024-05-01T10:00:11.000Z"), nil).Once()
	require.NoError(t, h.engine.Retry(failed))

	require.Eventually(t, func() bool {
		v := h.engine.Snapshot()
		return len(v.Messages) == 2 && v.Messages[1].ID == "4"
	}, time.Second, 5*time.Millisecond)
	view = h.engine.Snapshot()
	assert.Equal(t, failed, view.Messages[0], "retry leaves the failed entry untouched")
	assert.Empty(t, view.LatestError)
	h.api.AssertNumberOfCalls(t, "CreateMessage", 2)
}

func TestEngineIgnoresStaleHistoryAfterSwitch(t *testing.T) {
	h := newHarness(t)
	release := make(chan time.Time)
	returned := make(chan struct{})
	h.api.On("ListMessages", mock.Anything, 1).WaitUntil(release).Run(func(mock.Arguments) {
		close(returned)
	}).Return([]models.MessageDTO{dto(1, 1, "old room", "alice-1", t0)}, nil).Once()
	h.api.On("ListMessages", mock.Anything, 2).Return([]models.MessageDTO{dto(8, 2, "new room", "bob-1", t0)}, nil).Once()

	require.NoError(t, h.engine.Activate(context.Background(), 1))
	oldHandlers := h.realtime(1)
	require.NoError(t, h.engine.Activate(context.Background(), 2))
	h.waitLoaded(t)
	assert.Equal(t, 1, h.releasedCount(1))

	close(release)
	oldHandlers.OnMessage(dto(9, 1, "late push", "alice-1", t1))
	oldHandlers.OnConnected()

	<-returned
	time.Sleep(20 * time.Millisecond)

	view := h.engine.Snapshot()
	assert.Equal(t, 2, view.ChatroomID)
	assert.Equal(t, []string{"new room"}, bodies(view.Messages))
	assert.Equal(t, models.ConnectionConnecting, view.Status)
}

func TestEngineSelfEchoBeforeHTTPResponse(t *testing.T) {
	h := newHarness(t)
	h.api.On("ListMessages", mock.Anything, 1).Return([]models.MessageDTO{}, nil).Once()
	require.NoError(t, h.engine.Activate(context.Background(), 1))
	h.waitLoaded(t)

	release := make(chan time.Time)
	input := models.SendInput{Body: "hi", UserName: "U", UserUID: "u-1"}
	echo := dto(5, 1, "hi", "u-1", "2024-05-01T10:00:09.000Z")
	h.api.On("CreateMessage", mock.Anything, 1, input).WaitUntil(release).Return(echo, nil).Once()

	require.NoError(t, h.engine.Send(input))
	require.Eventually(t, func() bool { return len(h.engine.Snapshot().Messages) == 1 }, time.Second, 5*time.Millisecond)

	h.realtime(1).OnMessage(echo)
	view := h.engine.Snapshot()
	require.Len(t, view.Messages, 1)
	assert.Equal(t, "5", view.Messages[0].ID)

	close(release)
	require.Eventually(t, func() bool { return !h.engine.Snapshot().Sending }, time.Second, 5*time.Millisecond)
	view = h.engine.Snapshot()
	require.Len(t, view.Messages, 1)
	assert.Equal(t, "5", view.Messages[0].ID)
}

func TestEngineRequiresActiveChatroom(t *testing.T) {
	h := newHarness(t)

	assert.ErrorIs(t, h.engine.Send(models.SendInput{Body: "x"}), room.ErrNoChatroom)
	_, err := h.engine.SendAsync(context.Background(), models.SendInput{Body: "x"})
	assert.ErrorIs(t, err, room.ErrNoChatroom)
	assert.ErrorIs(t, h.engine.Refresh(context.Background()), room.ErrNoChatroom)
	assert.Equal(t, models.ConnectionDisconnected, h.engine.Snapshot().Status)
}

func TestEngineHistoryFailureSurfacesError(t *testing.T) {
	h := newHarness(t)
	h.api.On("ListMessages", mock.Anything, 1).Return(nil, &api.HTTPError{Status: 502, Message: "Bad Gateway"}).Once()

	require.NoError(t, h.engine.Activate(context.Background(), 1))
	view := h.waitLoaded(t)
	assert.Equal(t, "Bad Gateway", view.LatestError)
	assert.Empty(t, view.Messages)
}

func TestEngineRefreshKeepsLocalEntries(t *testing.T) {
	h := newHarness(t)
	h.api.On("ListMessages", mock.Anything, 1).Return([]models.MessageDTO{dto(1, 1, "hi", "alice-1", t0)}, nil).Once()
	require.NoError(t, h.engine.Activate(context.Background(), 1))
	h.waitLoaded(t)

	input := models.SendInput{Body: "lost", UserName: "U", UserUID: "u-1"}
	h.api.On("CreateMessage", mock.Anything, 1, input).Return(nil, errors.New("network down")).Once()
	_, err := h.engine.SendAsync(context.Background(), input)
	require.Error(t, err)

	h.api.On("ListMessages", mock.Anything, 1).Return([]models.MessageDTO{dto(1, 1, "hi", "alice-1", t0), dto(2, 1, "new", "bob-1", t1)}, nil).Once()
	require.NoError(t, h.engine.Refresh(context.Background()))

	view := h.engine.Snapshot()
	assert.Equal(t, []string{"hi", "new", "lost"}, bodies(view.Messages))
	assert.Equal(t, models.StatusFailed, view.Messages[2].Status)
}

func TestEngineReleasesSubscription(t *testing.T) {
	h := newHarness(t)
	h.api.On("ListMessages", mock.Anything, mock.Anything).Return([]models.MessageDTO{}, nil)

	require.NoError(t, h.engine.Activate(context.Background(), 1))
	require.NoError(t, h.engine.Activate(context.Background(), 0))
	assert.Equal(t, 1, h.releasedCount(1))
	assert.Equal(t, models.ConnectionDisconnected, h.engine.Snapshot().Status)

	require.NoError(t, h.engine.Activate(context.Background(), 3))
	require.NoError(t, h.engine.Close())
	require.NoError(t, h.engine.Close())
	assert.Equal(t, 1, h.releasedCount(3))

	assert.ErrorIs(t, h.engine.Activate(context.Background(), 4), room.ErrClosed)
}

func TestEngineWatchStreamsViews(t *testing.T) {
	h := newHarness(t)
	h.api.On("ListMessages", mock.Anything, 1).Return([]models.MessageDTO{dto(1, 1, "hi", "alice-1", t0)}, nil).Once()

	views, stop := h.engine.Watch()
	defer stop()
	first := <-views
	assert.Equal(t, 0, first.ChatroomID)

	require.NoError(t, h.engine.Activate(context.Background(), 1))
	require.Eventually(t, func() bool {
		select {
		case v := <-views:
			return len(v.Messages) == 1
		default:
			return false
		}
	}, time.Second, 5*time.Millisecond)
}

func TestEngineArchivesConfirmedMessages(t *testing.T) {
	archiver := new(mocks.ArchiverMock)
	h := newHarness(t, room.WithArchiver(archiver))
	h.api.On("ListMessages", mock.Anything, 1).Return([]models.MessageDTO{}, nil).Once()
	require.NoError(t, h.engine.Activate(context.Background(), 1))
	h.waitLoaded(t)

	archived := make(chan string, 2)
	archiver.On("Archive", mock.Anything, mock.AnythingOfType("models.Message")).Run(func(args mock.Arguments) {
		archived <- args.Get(1).(models.Message).ID
	}).Return(nil)

	h.realtime(1).OnMessage(dto(7, 1, "pushed", "bob-1", t1))
	select {
	case id := <-archived:
		assert.Equal(t, "7", id)
	case <-time.After(time.Second):
		t.Fatal("message was not archived")
	}
}
