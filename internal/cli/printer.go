package cli

import (
	"fmt"
	"io"

	"chat-client/internal/models"
	"chat-client/internal/room"
)

// printer turns successive views into append-only terminal lines.
type printer struct {
	out        io.Writer
	chatroomID int
	status     models.ConnectionStatus
	lastErr    string
	seen       map[string]models.MessageStatus
}

func newPrinter(out io.Writer) *printer {
	return &printer{out: out, seen: map[string]models.MessageStatus{}}
}

func (p *printer) render(v room.View) {
	if v.ChatroomID != p.chatroomID {
		p.chatroomID = v.ChatroomID
		p.status = ""
		p.lastErr = ""
		p.seen = map[string]models.MessageStatus{}
		if v.ChatroomID != 0 {
			fmt.Fprintf(p.out, "== chatroom %d ==\n", v.ChatroomID)
		}
	}
	if v.ChatroomID == 0 {
		return
	}

	if v.Status != p.status {
		p.status = v.Status
		fmt.Fprintf(p.out, "-- %s --\n", v.Status)
	}

	if !v.Loading {
		for _, m := range v.Messages {
			// Pending sends are shown once the server answers either way.
			if m.Status == models.StatusSending {
				continue
			}
			if prev, ok := p.seen[m.ID]; ok && prev == m.Status {
				continue
			}
			p.seen[m.ID] = m.Status
			fmt.Fprintln(p.out, formatMessage(m))
		}
	}

	if v.LatestError != "" && v.LatestError != p.lastErr {
		fmt.Fprintf(p.out, "! %s\n", v.LatestError)
	}
	p.lastErr = v.LatestError
}

func formatMessage(m models.Message) string {
	if m.Status == models.StatusFailed {
		return fmt.Sprintf("[failed] %s: %s (/retry to resend)", m.UserName, m.Body)
	}
	stamp := m.CreatedAt
	if len(stamp) >= 19 {
		stamp = stamp[11:19]
	}
	return fmt.Sprintf("[%s] %s: %s", stamp, m.UserName, m.Body)
}
