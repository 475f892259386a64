package realtime

import (
	"encoding/json"
	"fmt"
)

// Action Cable frame types sent by the server.
const (
	typeWelcome      = "welcome"
	typePing         = "ping"
	typeConfirm      = "confirm_subscription"
	typeReject       = "reject_subscription"
	typeDisconnect   = "disconnect"
	channelName      = "ChatroomChannel"
	cableSubprotocol = "actioncable-v1-json"
)

type inboundFrame struct {
	Type       string          `json:"type,omitempty"`
	Identifier string          `json:"identifier,omitempty"`
	Message    json.RawMessage `json:"message,omitempty"`
	Reason     string          `json:"reason,omitempty"`
	Reconnect  *bool           `json:"reconnect,omitempty"`
}

type commandFrame struct {
	Command    string `json:"command"`
	Identifier string `json:"identifier"`
}

type channelParams struct {
	Channel    string `json:"channel"`
	ChatroomID int    `json:"chatroom_id"`
}

// chatroomIdentifier is the JSON-encoded params string Action Cable keys
// subscriptions by.
func chatroomIdentifier(chatroomID int) string {
	raw, err := json.Marshal(channelParams{Channel: channelName, ChatroomID: chatroomID})
	if err != nil {
		return fmt.Sprintf(`{"channel":%q,"chatroom_id":%d}`, channelName, chatroomID)
	}
	return string(raw)
}
