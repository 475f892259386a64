package room

import (
	"context"
	"errors"
	"fmt"
	"slices"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog/log"

	"chat-client/internal/api"
	"chat-client/internal/models"
	"chat-client/internal/observability"
	"chat-client/internal/realtime"
	"chat-client/internal/reconcile"
)

var (
	// ErrNoChatroom is returned when sending or refreshing without an active chatroom.
	ErrNoChatroom = errors.New("chatroom not selected")
	// ErrClosed is returned by operations on a closed engine.
	ErrClosed = errors.New("room engine closed")
)

// Timestamp layout used for optimistic entries; it matches the backend's
// fixed-width ISO-8601 output so entries sort correctly against server ones.
const timestampLayout = "2006-01-02T15:04:05.000Z"

// MessageAPI is the part of the backend client the engine needs.
type MessageAPI interface {
	ListMessages(ctx context.Context, chatroomID int) ([]models.MessageDTO, error)
	CreateMessage(ctx context.Context, chatroomID int, in models.SendInput) (models.MessageDTO, error)
}

// Subscriber opens realtime subscriptions.
type Subscriber interface {
	Subscribe(chatroomID int, h realtime.Handlers) func()
}

// Archiver receives every server-confirmed message.
type Archiver interface {
	Archive(ctx context.Context, msg models.Message) error
}

// View is a read-only snapshot for presentation.
type View struct {
	ChatroomID  int                     `json:"chatroom_id"`
	Messages    []models.Message        `json:"messages"`
	Status      models.ConnectionStatus `json:"status"`
	Loading     bool                    `json:"loading"`
	Sending     bool                    `json:"sending"`
	LatestError string                  `json:"latest_error,omitempty"`
}

// Engine keeps one consistent message list for the active chatroom. History
// fetches, sends and realtime callbacks all funnel through dispatch, which
// applies one reconcile event at a time under the mutex.
type Engine struct {
	api      MessageAPI
	subs     Subscriber
	archiver Archiver
	now      func() time.Time
	newID    func() string

	mu          sync.Mutex
	state       reconcile.State
	epoch       uint64
	unsubscribe func()
	cancelFetch context.CancelFunc
	watchers    map[int]chan View
	nextWatcher int
	closed      bool
}

// Option customises an Engine.
type Option func(*Engine)

// WithArchiver mirrors confirmed messages to a.
func WithArchiver(a Archiver) Option {
	return func(e *Engine) { e.archiver = a }
}

// WithClock overrides the time source for optimistic timestamps.
func WithClock(now func() time.Time) Option {
	return func(e *Engine) { e.now = now }
}

// WithIDGenerator overrides how optimistic ids are minted.
func WithIDGenerator(newID func() string) Option {
	return func(e *Engine) { e.newID = newID }
}

// New builds an engine with no active chatroom.
func New(messages MessageAPI, subs Subscriber, opts ...Option) *Engine {
	e := &Engine{
		api:      messages,
		subs:     subs,
		now:      time.Now,
		newID:    uuid.NewString,
		state:    reconcile.Initial(),
		watchers: make(map[int]chan View),
	}
	for _, opt := range opts {
		opt(e)
	}
	return e
}

// Activate switches to chatroomID, dropping all state of the previous room.
// Zero deactivates. History loads in the background.
func (e *Engine) Activate(ctx context.Context, chatroomID int) error {
	e.mu.Lock()
	if e.closed {
		e.mu.Unlock()
		return ErrClosed
	}
	previous := e.unsubscribe
	e.unsubscribe = nil
	if e.cancelFetch != nil {
		e.cancelFetch()
		e.cancelFetch = nil
	}
	e.epoch++
	scope := reconcile.Scope{ChatroomID: chatroomID, Epoch: e.epoch}
	e.applyLocked(reconcile.Activated{Scope: scope})

	var fetchCtx context.Context
	if chatroomID != 0 {
		fetchCtx, e.cancelFetch = context.WithCancel(context.WithoutCancel(ctx))
	}
	e.mu.Unlock()

	if previous != nil {
		previous()
	}
	if chatroomID == 0 {
		return nil
	}

	log.Debug().Int("chatroom_id", chatroomID).Uint64("epoch", scope.Epoch).Msg("[room] activated")
	unsubscribe := e.subs.Subscribe(chatroomID, e.handlers(scope))

	e.mu.Lock()
	stale := e.closed || e.state.Scope != scope
	if !stale {
		e.unsubscribe = unsubscribe
	}
	e.mu.Unlock()
	if stale {
		unsubscribe()
		return nil
	}

	go e.loadHistory(fetchCtx, scope)
	return nil
}

// Refresh refetches history and merges it, keeping local entries.
func (e *Engine) Refresh(ctx context.Context) error {
	scope, err := e.activeScope()
	if err != nil {
		return err
	}
	return e.fetchHistory(ctx, scope)
}

// Send starts a send and returns without waiting for the server. Failures
// surface as a failed entry in the list.
func (e *Engine) Send(in models.SendInput) error {
	scope, placeholder, err := e.startSend(in)
	if err != nil {
		return err
	}
	go func() {
		_, _ = e.completeSend(context.Background(), scope, placeholder, in)
	}()
	return nil
}

// SendAsync sends and waits for the server's answer.
func (e *Engine) SendAsync(ctx context.Context, in models.SendInput) (models.Message, error) {
	scope, placeholder, err := e.startSend(in)
	if err != nil {
		return models.Message{}, err
	}
	return e.completeSend(ctx, scope, placeholder, in)
}

// Retry resubmits a failed message under a fresh optimistic id. The failed
// entry itself stays in the list.
func (e *Engine) Retry(msg models.Message) error {
	return e.Send(models.SendInput{Body: msg.Body, UserName: msg.UserName, UserUID: msg.UserUID})
}

// Snapshot returns the current view.
func (e *Engine) Snapshot() View {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.viewLocked()
}

// Watch streams views after every change, starting with the current one. A
// slow reader only misses intermediate views, never the latest.
func (e *Engine) Watch() (<-chan View, func()) {
	e.mu.Lock()
	defer e.mu.Unlock()

	ch := make(chan View, 1)
	if e.closed {
		close(ch)
		return ch, func() {}
	}
	id := e.nextWatcher
	e.nextWatcher++
	e.watchers[id] = ch
	ch <- e.viewLocked()

	return ch, func() {
		e.mu.Lock()
		defer e.mu.Unlock()
		if w, ok := e.watchers[id]; ok {
			delete(e.watchers, id)
			close(w)
		}
	}
}

// Close releases the realtime subscription and stops watchers.
func (e *Engine) Close() error {
	e.mu.Lock()
	if e.closed {
		e.mu.Unlock()
		return nil
	}
	e.closed = true
	unsubscribe := e.unsubscribe
	e.unsubscribe = nil
	if e.cancelFetch != nil {
		e.cancelFetch()
		e.cancelFetch = nil
	}
	for id, w := range e.watchers {
		delete(e.watchers, id)
		close(w)
	}
	e.mu.Unlock()

	if unsubscribe != nil {
		unsubscribe()
	}
	return nil
}

func (e *Engine) activeScope() (reconcile.Scope, error) {
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.closed {
		return reconcile.Scope{}, ErrClosed
	}
	if e.state.ChatroomID == 0 {
		return reconcile.Scope{}, ErrNoChatroom
	}
	return e.state.Scope, nil
}

func (e *Engine) startSend(in models.SendInput) (reconcile.Scope, models.Message, error) {
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.closed {
		return reconcile.Scope{}, models.Message{}, ErrClosed
	}
	if e.state.ChatroomID == 0 {
		return reconcile.Scope{}, models.Message{}, ErrNoChatroom
	}

	now := e.now().UTC().Format(timestampLayout)
	placeholder := models.Message{
		ID:         models.OptimisticPrefix + e.newID(),
		ChatroomID: e.state.ChatroomID,
		Body:       in.Body,
		UserName:   in.UserName,
		UserUID:    in.UserUID,
		CreatedAt:  now,
		UpdatedAt:  now,
		Status:     models.StatusSending,
		IsLocal:    true,
	}
	scope := e.state.Scope
	e.applyLocked(reconcile.SendStarted{Scope: scope, Message: placeholder})
	return scope, placeholder, nil
}

func (e *Engine) completeSend(ctx context.Context, scope reconcile.Scope, placeholder models.Message, in models.SendInput) (models.Message, error) {
	dto, err := e.api.CreateMessage(ctx, scope.ChatroomID, in)
	if err != nil {
		observability.IncMessage("failed")
		log.Warn().Err(err).Int("chatroom_id", scope.ChatroomID).Str("optimistic_id", placeholder.ID).Msg("[room] send failed")
		e.dispatch(reconcile.SendFailed{Scope: scope, OptimisticID: placeholder.ID, Err: api.ErrorMessage(err)})
		return models.Message{}, fmt.Errorf("send message: %w", err)
	}

	confirmed := models.MessageFromDTO(dto)
	observability.IncMessage("sent")
	e.dispatch(reconcile.SendConfirmed{Scope: scope, OptimisticID: placeholder.ID, Message: confirmed})
	e.archive(confirmed)
	return confirmed, nil
}

func (e *Engine) loadHistory(ctx context.Context, scope reconcile.Scope) {
	if err := e.fetchHistory(ctx, scope); err != nil && !errors.Is(err, context.Canceled) {
		log.Warn().Err(err).Int("chatroom_id", scope.ChatroomID).Msg("[room] history load failed")
	}
}

func (e *Engine) fetchHistory(ctx context.Context, scope reconcile.Scope) error {
	dtos, err := e.api.ListMessages(ctx, scope.ChatroomID)
	if err != nil {
		if ctx.Err() == nil {
			e.dispatch(reconcile.HistoryFailed{Scope: scope, Err: api.ErrorMessage(err)})
		}
		return fmt.Errorf("load history: %w", err)
	}
	e.dispatch(reconcile.HistoryLoaded{Scope: scope, Messages: models.MessagesFromDTOs(dtos)})
	return nil
}

func (e *Engine) handlers(scope reconcile.Scope) realtime.Handlers {
	return realtime.Handlers{
		OnConnected: func() {
			e.dispatch(reconcile.Connected{Scope: scope})
		},
		OnDisconnected: func() {
			e.dispatch(reconcile.Disconnected{Scope: scope})
		},
		OnReconnecting: func() {
			e.dispatch(reconcile.Reconnecting{Scope: scope})
		},
		OnError: func(err error) {
			log.Warn().Err(err).Int("chatroom_id", scope.ChatroomID).Msg("[room] realtime error")
			e.dispatch(reconcile.Disconnected{Scope: scope})
		},
		OnMessage: func(dto models.MessageDTO) {
			msg := models.MessageFromDTO(dto)
			observability.IncMessage("pushed")
			if e.dispatch(reconcile.Pushed{Scope: scope, Message: msg}) {
				e.archive(msg)
			}
		},
	}
}

func (e *Engine) dispatch(ev reconcile.Event) bool {
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.closed {
		return false
	}
	return e.applyLocked(ev)
}

func (e *Engine) applyLocked(ev reconcile.Event) bool {
	next, changed := reconcile.Reduce(e.state, ev)
	if !changed {
		log.Debug().Str("event", fmt.Sprintf("%T", ev)).Msg("[room] stale event dropped")
		return false
	}
	e.state = next

	view := e.viewLocked()
	for _, w := range e.watchers {
		select {
		case <-w:
		default:
		}
		w <- view
	}
	return true
}

func (e *Engine) viewLocked() View {
	return View{
		ChatroomID:  e.state.ChatroomID,
		Messages:    slices.Clone(e.state.Messages),
		Status:      e.state.Status,
		Loading:     e.state.Loading,
		Sending:     e.state.Pending > 0,
		LatestError: e.state.LatestError(),
	}
}

func (e *Engine) archive(msg models.Message) {
	if e.archiver == nil {
		return
	}
	go func() {
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := e.archiver.Archive(ctx, msg); err != nil {
			log.Warn().Err(err).Str("message_id", msg.ID).Msg("[room] archive failed")
		}
	}()
}
