package reconcile

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"chat-client/internal/models"
)

func activate(t *testing.T, chatroomID int, epoch uint64) State {
	t.Helper()
	s, changed := Reduce(Initial(), Activated{Scope{ChatroomID: chatroomID, Epoch: epoch}})
	require.True(t, changed)
	return s
}

func TestReduceActivation(t *testing.T) {
	s := activate(t, 1, 1)
	assert.Equal(t, models.ConnectionConnecting, s.Status)
	assert.True(t, s.Loading)
	assert.Empty(t, s.Messages)

	none, _ := Reduce(s, Activated{Scope{}})
	assert.Equal(t, models.ConnectionDisconnected, none.Status)
	assert.False(t, none.Loading)
}

func TestReduceHistoryThenPush(t *testing.T) {
	scope := Scope{ChatroomID: 1, Epoch: 1}
	s := activate(t, 1, 1)

	s, _ = Reduce(s, HistoryLoaded{Scope: scope, Messages: []models.Message{sent("1", "hi", "2024-05-01T10:00:00.000Z")}})
	assert.False(t, s.Loading)
	require.Len(t, s.Messages, 1)
	assert.Equal(t, "1", s.Messages[0].ID)
	assert.Equal(t, models.StatusSent, s.Messages[0].Status)

	s, _ = Reduce(s, Connected{scope})
	assert.Equal(t, models.ConnectionConnected, s.Status)

	s, _ = Reduce(s, Pushed{Scope: scope, Message: sent("3", "realtime", "2024-05-01T10:00:05.000Z")})
	assert.Equal(t, []string{"1", "3"}, ids(s.Messages))

	s, _ = Reduce(s, Disconnected{scope})
	assert.Equal(t, models.ConnectionDisconnected, s.Status)
	assert.Len(t, s.Messages, 2, "disconnect keeps loaded history")

	s, _ = Reduce(s, Reconnecting{scope})
	assert.Equal(t, models.ConnectionConnecting, s.Status)
}

func TestReduceOptimisticLifecycle(t *testing.T) {
	scope := Scope{ChatroomID: 1, Epoch: 1}
	s := activate(t, 1, 1)
	s, _ = Reduce(s, HistoryLoaded{Scope: scope, Messages: []models.Message{sent("1", "hi", "2024-05-01T10:00:00.000Z")}})

	s, _ = Reduce(s, SendStarted{Scope: scope, Message: optimistic("optimistic-x", "yo", "2024-05-01T10:00:10.000Z")})
	assert.Equal(t, 1, s.Pending)
	assert.Equal(t, "optimistic-x", s.Messages[len(s.Messages)-1].ID)

	s, _ = Reduce(s, SendConfirmed{Scope: scope, OptimisticID: "optimistic-x", Message: sent("2", "yo", "2024-05-01T10:00:09.000Z")})
	assert.Equal(t, 0, s.Pending)
	assert.Equal(t, []string{"1", "2"}, ids(s.Messages))
	assert.Empty(t, s.LatestError())
}

func TestReduceSendFailureThenRetry(t *testing.T) {
	scope := Scope{ChatroomID: 1, Epoch: 1}
	s := activate(t, 1, 1)

	s, _ = Reduce(s, SendStarted{Scope: scope, Message: optimistic("optimistic-x", "yo", "2024-05-01T10:00:10.000Z")})
	s, _ = Reduce(s, SendFailed{Scope: scope, OptimisticID: "optimistic-x", Err: "Service Unavailable"})
	require.Len(t, s.Messages, 1)
	assert.Equal(t, models.StatusFailed, s.Messages[0].Status)
	assert.Equal(t, "Service Unavailable", s.LatestError())

	s, _ = Reduce(s, SendStarted{Scope: scope, Message: optimistic("optimistic-y", "yo", "2024-05-01T10:00:20.000Z")})
	require.Len(t, s.Messages, 2)
	assert.Equal(t, models.StatusFailed, s.Messages[0].Status, "failed entry untouched by retry")
	assert.Equal(t, models.StatusSending, s.Messages[1].Status)
	assert.Equal(t, s.Messages[0].Body, s.Messages[1].Body)
	assert.Empty(t, s.LatestError(), "a new send clears the previous send error")
}

func TestReduceSelfEchoBeforeConfirmation(t *testing.T) {
	scope := Scope{ChatroomID: 1, Epoch: 1}
	s := activate(t, 1, 1)

	s, _ = Reduce(s, SendStarted{Scope: scope, Message: optimistic("optimistic-x", "hi", "2024-05-01T10:00:10.000Z")})
	echo := sent("7", "hi ", "2024-05-01T10:00:09.000Z")
	s, _ = Reduce(s, Pushed{Scope: scope, Message: echo})
	assert.Equal(t, []string{"7"}, ids(s.Messages))

	s, _ = Reduce(s, SendConfirmed{Scope: scope, OptimisticID: "optimistic-x", Message: echo})
	assert.Equal(t, []string{"7"}, ids(s.Messages))
}

func TestReduceIgnoresStaleEvents(t *testing.T) {
	oldScope := Scope{ChatroomID: 1, Epoch: 1}
	s := activate(t, 1, 1)
	s, _ = Reduce(s, Activated{Scope{ChatroomID: 2, Epoch: 2}})

	events := []Event{
		HistoryLoaded{Scope: oldScope, Messages: []models.Message{sent("1", "old", "2024-05-01T10:00:00.000Z")}},
		HistoryFailed{Scope: oldScope, Err: "boom"},
		Pushed{Scope: oldScope, Message: sent("2", "old push", "2024-05-01T10:00:00.000Z")},
		Connected{oldScope},
		SendFailed{Scope: oldScope, OptimisticID: "optimistic-x", Err: "boom"},
	}
	for _, ev := range events {
		next, changed := Reduce(s, ev)
		assert.False(t, changed, "%T should be ignored", ev)
		assert.Equal(t, s, next)
	}
	assert.Empty(t, s.Messages)
	assert.Equal(t, models.ConnectionConnecting, s.Status)
}

func TestReduceIgnoresEarlierVisitToSameRoom(t *testing.T) {
	s := activate(t, 1, 1)
	s, _ = Reduce(s, Activated{Scope{ChatroomID: 1, Epoch: 3}})

	_, changed := Reduce(s, HistoryLoaded{Scope: Scope{ChatroomID: 1, Epoch: 1}})
	assert.False(t, changed)
}

func TestReduceWithoutChatroomIgnoresEverything(t *testing.T) {
	_, changed := Reduce(Initial(), Pushed{Message: sent("1", "x", "2024-05-01T10:00:00.000Z")})
	assert.False(t, changed)
}

func TestReduceHistoryFailureKeepsList(t *testing.T) {
	scope := Scope{ChatroomID: 1, Epoch: 1}
	s := activate(t, 1, 1)
	s, _ = Reduce(s, HistoryLoaded{Scope: scope, Messages: []models.Message{sent("1", "hi", "2024-05-01T10:00:00.000Z")}})

	s, _ = Reduce(s, HistoryFailed{Scope: scope, Err: "Bad Gateway"})
	assert.Equal(t, "Bad Gateway", s.LatestError())
	assert.Len(t, s.Messages, 1)
}
