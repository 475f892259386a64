package directory

import (
	"context"
	"errors"
	"fmt"
	"slices"
	"strings"
	"sync"
	"time"

	"github.com/rs/zerolog/log"

	"chat-client/internal/api"
	"chat-client/internal/models"
)

// ErrInvalidName is returned for empty or whitespace-only chatroom names.
var ErrInvalidName = errors.New("chatroom name is required")

// DefaultStaleAfter is how long a fetched list is served from cache.
const DefaultStaleAfter = 30 * time.Second

// ChatroomAPI is the part of the backend client the directory needs.
type ChatroomAPI interface {
	ListChatrooms(ctx context.Context) ([]models.ChatroomDTO, error)
	CreateChatroom(ctx context.Context, name string) (models.ChatroomDTO, error)
}

// LoadState is the directory's fetch state.
type LoadState string

const (
	StateIdle    LoadState = "idle"
	StateLoading LoadState = "loading"
	StateLoaded  LoadState = "loaded"
	StateError   LoadState = "error"
)

// Directory caches the chatroom list.
type Directory struct {
	api        ChatroomAPI
	staleAfter time.Duration
	now        func() time.Time

	mu        sync.Mutex
	rooms     []models.Chatroom
	fetchedAt time.Time
	hasData   bool
	state     LoadState
	lastErr   string
}

// New builds a Directory. A non-positive staleAfter uses DefaultStaleAfter.
func New(chatrooms ChatroomAPI, staleAfter time.Duration) *Directory {
	if staleAfter <= 0 {
		staleAfter = DefaultStaleAfter
	}
	return &Directory{api: chatrooms, staleAfter: staleAfter, now: time.Now, state: StateIdle}
}

// List returns the cached chatrooms, fetching when the cache is empty or stale.
// On a failed refetch the previous list is returned along with the error.
func (d *Directory) List(ctx context.Context) ([]models.Chatroom, error) {
	d.mu.Lock()
	fresh := d.hasData && d.now().Sub(d.fetchedAt) < d.staleAfter
	rooms := slices.Clone(d.rooms)
	d.mu.Unlock()
	if fresh {
		return rooms, nil
	}
	return d.Refetch(ctx)
}

// Refetch always asks the backend.
func (d *Directory) Refetch(ctx context.Context) ([]models.Chatroom, error) {
	d.mu.Lock()
	d.state = StateLoading
	d.mu.Unlock()

	dtos, err := d.api.ListChatrooms(ctx)

	d.mu.Lock()
	defer d.mu.Unlock()
	if err != nil {
		d.state = StateError
		d.lastErr = api.ErrorMessage(err)
		log.Warn().Err(err).Msg("[directory] list chatrooms failed")
		return slices.Clone(d.rooms), fmt.Errorf("list chatrooms: %w", err)
	}

	rooms := make([]models.Chatroom, 0, len(dtos))
	for _, dto := range dtos {
		rooms = append(rooms, models.ChatroomFromDTO(dto))
	}
	d.rooms = rooms
	d.fetchedAt = d.now()
	d.hasData = true
	d.state = StateLoaded
	d.lastErr = ""
	return slices.Clone(rooms), nil
}

// Create validates name, creates the chatroom and appends it to the cache.
func (d *Directory) Create(ctx context.Context, name string) (models.Chatroom, error) {
	name = strings.TrimSpace(name)
	if name == "" {
		return models.Chatroom{}, ErrInvalidName
	}

	dto, err := d.api.CreateChatroom(ctx, name)
	if err != nil {
		return models.Chatroom{}, fmt.Errorf("create chatroom: %w", err)
	}

	room := models.ChatroomFromDTO(dto)
	d.mu.Lock()
	d.rooms = append(slices.Clone(d.rooms), room)
	d.mu.Unlock()
	log.Info().Int("chatroom_id", room.ID).Str("name", room.Name).Msg("[directory] chatroom created")
	return room, nil
}

// Find returns the cached chatroom with id.
func (d *Directory) Find(id int) (models.Chatroom, bool) {
	d.mu.Lock()
	defer d.mu.Unlock()
	for _, r := range d.rooms {
		if r.ID == id {
			return r, true
		}
	}
	return models.Chatroom{}, false
}

// State reports the current fetch state.
func (d *Directory) State() LoadState {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.state
}

// LastError is the normalised message of the last failed fetch.
func (d *Directory) LastError() string {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.lastErr
}
