package models

// Chatroom is a room the user can join.
type Chatroom struct {
	ID        int    `json:"id"`
	Name      string `json:"name"`
	CreatedAt string `json:"created_at"`
	UpdatedAt string `json:"updated_at"`
}

// ChatroomDTO is the backend representation of a chatroom.
type ChatroomDTO struct {
	ID        int    `json:"id"`
	Name      string `json:"name"`
	CreatedAt string `json:"created_at"`
	UpdatedAt string `json:"updated_at"`
}

// CreateChatroomRequest is the POST body for a new chatroom.
type CreateChatroomRequest struct {
	Chatroom struct {
		Name string `json:"name"`
	} `json:"chatroom"`
}

// NewCreateChatroomRequest builds the backend envelope for a chatroom name.
func NewCreateChatroomRequest(name string) CreateChatroomRequest {
	var req CreateChatroomRequest
	req.Chatroom.Name = name
	return req
}

// ChatroomFromDTO converts a server payload.
func ChatroomFromDTO(dto ChatroomDTO) Chatroom {
	return Chatroom{
		ID:        dto.ID,
		Name:      dto.Name,
		CreatedAt: dto.CreatedAt,
		UpdatedAt: dto.UpdatedAt,
	}
}

// ConnectionStatus is the state of the realtime subscription for the active room.
type ConnectionStatus string

const (
	ConnectionConnecting   ConnectionStatus = "connecting"
	ConnectionConnected    ConnectionStatus = "connected"
	ConnectionDisconnected ConnectionStatus = "disconnected"
)
