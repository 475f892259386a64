package models

import "strconv"

// MessageStatus tracks the lifecycle of a locally originated message.
type MessageStatus string

const (
	StatusSending MessageStatus = "sending"
	StatusSent    MessageStatus = "sent"
	StatusFailed  MessageStatus = "failed"
)

// OptimisticPrefix marks ids generated on the client before the server confirms a send.
const OptimisticPrefix = "optimistic-"

// Message is the client-side view of a chat message.
type Message struct {
	ID         string        `json:"id"`
	ChatroomID int           `json:"chatroom_id"`
	Body       string        `json:"body"`
	UserName   string        `json:"user_name"`
	UserUID    string        `json:"user_uid"`
	CreatedAt  string        `json:"created_at"`
	UpdatedAt  string        `json:"updated_at"`
	Status     MessageStatus `json:"status"`
	IsLocal    bool          `json:"is_local,omitempty"`
	IsSystem   bool          `json:"is_system,omitempty"`
}

// SendInput carries what the composer submits.
type SendInput struct {
	Body     string `json:"body"`
	UserName string `json:"user_name"`
	UserUID  string `json:"user_uid"`
}

// MessageDTO is the backend representation of a message.
type MessageDTO struct {
	ID         int64  `json:"id"`
	Body       string `json:"body"`
	UserName   string `json:"user_name"`
	UserUID    string `json:"user_uid"`
	ChatroomID int    `json:"chatroom_id"`
	CreatedAt  string `json:"created_at"`
	UpdatedAt  string `json:"updated_at"`
}

// CreateMessageRequest is the POST body for a new message.
type CreateMessageRequest struct {
	Message struct {
		Body     string `json:"body"`
		UserName string `json:"user_name"`
		UserUID  string `json:"user_uid"`
	} `json:"message"`
}

// NewCreateMessageRequest wraps the composer input in the backend envelope.
func NewCreateMessageRequest(in SendInput) CreateMessageRequest {
	var req CreateMessageRequest
	req.Message.Body = in.Body
	req.Message.UserName = in.UserName
	req.Message.UserUID = in.UserUID
	return req
}

// MessageFromDTO converts a server payload. Numeric ids become strings so they
// share a type with optimistic ids.
func MessageFromDTO(dto MessageDTO) Message {
	return Message{
		ID:         strconv.FormatInt(dto.ID, 10),
		ChatroomID: dto.ChatroomID,
		Body:       dto.Body,
		UserName:   dto.UserName,
		UserUID:    dto.UserUID,
		CreatedAt:  dto.CreatedAt,
		UpdatedAt:  dto.UpdatedAt,
		Status:     StatusSent,
	}
}

// MessagesFromDTOs maps a history payload preserving order.
func MessagesFromDTOs(dtos []MessageDTO) []Message {
	out := make([]Message, 0, len(dtos))
	for _, dto := range dtos {
		out = append(out, MessageFromDTO(dto))
	}
	return out
}
