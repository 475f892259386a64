package reconcile

import "chat-client/internal/models"

// Scope identifies the chatroom activation an event belongs to. Epoch grows on
// every activation so a late result from an earlier visit to the same room is
// still recognised as stale.
type Scope struct {
	ChatroomID int
	Epoch      uint64
}

// Event is an input to Reduce.
type Event interface {
	scope() Scope
}

func (s Scope) scope() Scope { return s }

// Activated switches the active chatroom. ChatroomID 0 means none.
type Activated struct{ Scope }

// HistoryLoaded carries a history fetch result.
type HistoryLoaded struct {
	Scope
	Messages []models.Message
}

// HistoryFailed carries a normalised history fetch error.
type HistoryFailed struct {
	Scope
	Err string
}

// SendStarted carries the optimistic placeholder for a new send.
type SendStarted struct {
	Scope
	Message models.Message
}

// SendConfirmed carries the server copy of an optimistic send.
type SendConfirmed struct {
	Scope
	OptimisticID string
	Message      models.Message
}

// SendFailed marks an optimistic send as failed.
type SendFailed struct {
	Scope
	OptimisticID string
	Err          string
}

// Pushed carries a realtime message.
type Pushed struct {
	Scope
	Message models.Message
}

// Connected, Disconnected and Reconnecting carry realtime lifecycle changes.
type (
	Connected    struct{ Scope }
	Disconnected struct{ Scope }
	Reconnecting struct{ Scope }
)

// State is everything the engine knows about the active chatroom.
type State struct {
	Scope
	Messages []models.Message
	Status   models.ConnectionStatus
	Loading  bool
	Pending  int

	historyErr string
	sendErr    string
}

// Initial is the state before any chatroom is activated.
func Initial() State {
	return State{Status: models.ConnectionDisconnected}
}

// LatestError prefers the send error over the history error.
func (s State) LatestError() string {
	if s.sendErr != "" {
		return s.sendErr
	}
	return s.historyErr
}

// Reduce applies one event and reports whether it changed anything. Events for
// a chatroom or epoch other than the active one are ignored.
func Reduce(s State, ev Event) (State, bool) {
	if a, ok := ev.(Activated); ok {
		next := State{Scope: a.Scope, Status: models.ConnectionDisconnected}
		if a.ChatroomID != 0 {
			next.Status = models.ConnectionConnecting
			next.Loading = true
		}
		return next, true
	}

	if s.ChatroomID == 0 || ev.scope() != s.Scope {
		return s, false
	}

	switch e := ev.(type) {
	case HistoryLoaded:
		s.Messages = Union(e.Messages, s.Messages)
		s.Loading = false
		s.historyErr = ""
	case HistoryFailed:
		s.Loading = false
		s.historyErr = e.Err
	case SendStarted:
		s.Messages = AppendOptimistic(s.Messages, e.Message)
		s.Pending++
		s.sendErr = ""
	case SendConfirmed:
		s.Messages = ReplaceOptimistic(s.Messages, e.OptimisticID, e.Message)
		s.Pending = decrement(s.Pending)
		s.sendErr = ""
	case SendFailed:
		s.Messages = MarkFailed(s.Messages, e.OptimisticID)
		s.Pending = decrement(s.Pending)
		s.sendErr = e.Err
	case Pushed:
		s.Messages = Merge(DropSelfEcho(s.Messages, e.Message), e.Message)
	case Connected:
		s.Status = models.ConnectionConnected
	case Disconnected:
		s.Status = models.ConnectionDisconnected
	case Reconnecting:
		s.Status = models.ConnectionConnecting
	default:
		return s, false
	}
	return s, true
}

func decrement(n int) int {
	if n > 0 {
		return n - 1
	}
	return 0
}
