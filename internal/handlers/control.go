package handlers

import (
	"context"
	"errors"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/rs/zerolog/log"

	"chat-client/internal/api"
	"chat-client/internal/directory"
	"chat-client/internal/identity"
	"chat-client/internal/models"
	"chat-client/internal/observability"
	"chat-client/internal/room"
)

// ErrNotFound is returned when a message id is not in the current view.
var ErrNotFound = errors.New("message not found")

// RoomEngine is the message engine surface the control API drives.
type RoomEngine interface {
	Activate(ctx context.Context, chatroomID int) error
	Refresh(ctx context.Context) error
	SendAsync(ctx context.Context, in models.SendInput) (models.Message, error)
	Retry(msg models.Message) error
	Snapshot() room.View
}

// ChatroomDirectory lists and creates chatrooms.
type ChatroomDirectory interface {
	List(ctx context.Context) ([]models.Chatroom, error)
	Refetch(ctx context.Context) ([]models.Chatroom, error)
	Create(ctx context.Context, name string) (models.Chatroom, error)
}

// IdentityStore resolves who messages are sent as.
type IdentityStore interface {
	Load() (identity.Identity, error)
	Rename(name string) (identity.Identity, error)
}

// ControlHandler exposes the client state over HTTP.
type ControlHandler struct {
	engine    RoomEngine
	directory ChatroomDirectory
	identity  IdentityStore
}

// NewControlHandler builds a ControlHandler.
func NewControlHandler(engine RoomEngine, dir ChatroomDirectory, ids IdentityStore) *ControlHandler {
	return &ControlHandler{engine: engine, directory: dir, identity: ids}
}

// ListChatrooms returns the cached directory; ?refresh=true forces a refetch.
func (h *ControlHandler) ListChatrooms(c *gin.Context) {
	list := h.directory.List
	if c.Query("refresh") == "true" {
		list = h.directory.Refetch
	}

	rooms, err := list(c.Request.Context())
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"chatrooms": rooms})
}

// CreateChatroom creates a chatroom by name.
func (h *ControlHandler) CreateChatroom(c *gin.Context) {
	var req struct {
		Name string `json:"name"`
	}
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	created, err := h.directory.Create(c.Request.Context(), req.Name)
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusCreated, created)
}

// ActivateChatroom switches the engine to the chatroom in the path. Zero deactivates.
func (h *ControlHandler) ActivateChatroom(c *gin.Context) {
	chatroomID, err := strconv.Atoi(c.Param("chatroom_id"))
	if err != nil || chatroomID < 0 {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid chatroom id"})
		return
	}

	if err := h.engine.Activate(c.Request.Context(), chatroomID); err != nil {
		respondError(c, err)
		return
	}

	publishControlEvent(c, "chatroom.activated", gin.H{"chatroom_id": chatroomID})
	c.JSON(http.StatusAccepted, h.engine.Snapshot())
}

// ListMessages returns the reconciled view; ?refresh=true refetches history first.
func (h *ControlHandler) ListMessages(c *gin.Context) {
	if c.Query("refresh") == "true" {
		if err := h.engine.Refresh(c.Request.Context()); err != nil {
			respondError(c, err)
			return
		}
	}
	c.JSON(http.StatusOK, h.engine.Snapshot())
}

// PostMessage sends a message as the stored identity and waits for the server.
func (h *ControlHandler) PostMessage(c *gin.Context) {
	var req struct {
		Body string `json:"body"`
	}
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	if strings.TrimSpace(req.Body) == "" {
		c.JSON(http.StatusBadRequest, gin.H{"error": "message body is required"})
		return
	}

	me, err := h.identity.Load()
	if err != nil {
		respondError(c, err)
		return
	}

	msg, err := h.engine.SendAsync(c.Request.Context(), models.SendInput{Body: req.Body, UserName: me.UserName, UserUID: me.UserUID})
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusCreated, msg)
}

// RetryMessage resubmits a failed message from the current view.
func (h *ControlHandler) RetryMessage(c *gin.Context) {
	messageID := c.Param("message_id")

	var failed *models.Message
	for _, m := range h.engine.Snapshot().Messages {
		if m.ID == messageID && m.Status == models.StatusFailed {
			failed = &m
			break
		}
	}
	if failed == nil {
		respondError(c, ErrNotFound)
		return
	}

	if err := h.engine.Retry(*failed); err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusAccepted, gin.H{"status": "retrying"})
}

// Status reports connection state without the message list.
func (h *ControlHandler) Status(c *gin.Context) {
	view := h.engine.Snapshot()
	c.JSON(http.StatusOK, gin.H{
		"chatroom_id":  view.ChatroomID,
		"status":       view.Status,
		"loading":      view.Loading,
		"sending":      view.Sending,
		"latest_error": view.LatestError,
		"messages":     len(view.Messages),
	})
}

// GetIdentity returns the local identity.
func (h *ControlHandler) GetIdentity(c *gin.Context) {
	me, err := h.identity.Load()
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, me)
}

// RenameIdentity changes the display name, keeping the uid.
func (h *ControlHandler) RenameIdentity(c *gin.Context) {
	var req struct {
		UserName string `json:"user_name"`
	}
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	me, err := h.identity.Rename(req.UserName)
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, me)
}

func respondError(c *gin.Context, err error) {
	var httpErr *api.HTTPError
	status := http.StatusInternalServerError
	switch {
	case errors.Is(err, directory.ErrInvalidName), errors.Is(err, identity.ErrInvalidName):
		status = http.StatusBadRequest
	case errors.Is(err, ErrNotFound):
		status = http.StatusNotFound
	case errors.Is(err, room.ErrNoChatroom):
		status = http.StatusConflict
	case errors.Is(err, room.ErrClosed):
		status = http.StatusServiceUnavailable
	case errors.As(err, &httpErr):
		status = http.StatusBadGateway
	}
	if status >= http.StatusInternalServerError {
		log.Error().Err(err).Str("path", c.FullPath()).Msg("[control] request failed")
	}
	c.JSON(status, gin.H{"error": api.ErrorMessage(err)})
}

func publishControlEvent(c *gin.Context, name string, payload any) {
	event := observability.EventEnvelope{
		EventType:  "control",
		EventName:  name,
		OccurredAt: time.Now().UTC().Format(time.RFC3339),
		Payload:    payload,
	}
	if err := observability.PublishEvent(c.Request.Context(), "client_events.control", event, eventHeaders(c)); err != nil {
		log.Warn().Err(err).Str("event", name).Msg("[control] publish event failed")
	}
}
