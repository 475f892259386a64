package room

import "chat-client/internal/models"

// Notifier picks out messages worth alerting on: the newest message of the
// active chatroom when another user wrote it. The first non-empty list seen
// after a chatroom finishes loading is the baseline and never alerts.
type Notifier struct {
	currentUserUID string
	notify         func(models.Message)

	chatroomID  int
	initialised bool
	lastID      string
}

// NewNotifier calls notify for each qualifying message.
func NewNotifier(currentUserUID string, notify func(models.Message)) *Notifier {
	return &Notifier{currentUserUID: currentUserUID, notify: notify}
}

// SetUser changes whose messages are considered our own.
func (n *Notifier) SetUser(userUID string) {
	n.currentUserUID = userUID
}

// Observe feeds one view. Views must come from a single goroutine.
func (n *Notifier) Observe(view View) {
	if view.ChatroomID != n.chatroomID {
		n.chatroomID = view.ChatroomID
		n.initialised = false
		n.lastID = ""
	}

	if !n.initialised {
		if view.Loading || view.ChatroomID == 0 || len(view.Messages) == 0 {
			return
		}
		n.initialised = true
		n.lastID = view.Messages[len(view.Messages)-1].ID
		return
	}

	if len(view.Messages) == 0 {
		return
	}
	latest := view.Messages[len(view.Messages)-1]
	if latest.ID == n.lastID {
		return
	}
	n.lastID = latest.ID
	if latest.UserUID == n.currentUserUID {
		return
	}
	n.notify(latest)
}
