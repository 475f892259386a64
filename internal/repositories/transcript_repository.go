package repositories

import (
	"context"
	"errors"
	"fmt"
	"strconv"

	"github.com/jmoiron/sqlx"

	"chat-client/internal/models"
)

// ErrNotArchivable is returned for messages without a server id.
var ErrNotArchivable = errors.New("message has no server id")

// TranscriptRepository stores confirmed messages for later reading.
type TranscriptRepository interface {
	Archive(ctx context.Context, msg models.Message) error
	ListMessages(ctx context.Context, chatroomID int) ([]models.Message, error)
}

type transcriptRow struct {
	ID         int64  `db:"id"`
	ChatroomID int    `db:"chatroom_id"`
	Body       string `db:"body"`
	UserName   string `db:"user_name"`
	UserUID    string `db:"user_uid"`
	CreatedAt  string `db:"created_at"`
	UpdatedAt  string `db:"updated_at"`
}

// TranscriptRepo is a sqlx-backed TranscriptRepository.
type TranscriptRepo struct {
	db *sqlx.DB
}

// NewTranscriptRepo constructs TranscriptRepo.
func NewTranscriptRepo(db *sqlx.DB) *TranscriptRepo {
	return &TranscriptRepo{db: db}
}

// Archive upserts msg keyed by its server id.
func (r *TranscriptRepo) Archive(ctx context.Context, msg models.Message) error {
	row, err := rowFromMessage(msg)
	if err != nil {
		return err
	}
	_, err = r.db.NamedExecContext(ctx, `INSERT INTO archived_messages (id, chatroom_id, body, user_name, user_uid, created_at, updated_at)
        VALUES (:id, :chatroom_id, :body, :user_name, :user_uid, :created_at, :updated_at)
        ON CONFLICT (id) DO UPDATE SET body = EXCLUDED.body, user_name = EXCLUDED.user_name, updated_at = EXCLUDED.updated_at`, row)
	return err
}

// ListMessages returns a chatroom's archived messages in chronological order.
func (r *TranscriptRepo) ListMessages(ctx context.Context, chatroomID int) ([]models.Message, error) {
	var rows []transcriptRow
	err := r.db.SelectContext(ctx, &rows, `SELECT id, chatroom_id, body, user_name, user_uid, created_at, updated_at
        FROM archived_messages
        WHERE chatroom_id=$1
        ORDER BY created_at ASC, id ASC`, chatroomID)
	if err != nil {
		return nil, err
	}
	msgs := make([]models.Message, 0, len(rows))
	for _, row := range rows {
		msgs = append(msgs, row.message())
	}
	return msgs, nil
}

func rowFromMessage(msg models.Message) (transcriptRow, error) {
	if msg.IsLocal || msg.Status != models.StatusSent {
		return transcriptRow{}, fmt.Errorf("archive %q: %w", msg.ID, ErrNotArchivable)
	}
	id, err := strconv.ParseInt(msg.ID, 10, 64)
	if err != nil {
		return transcriptRow{}, fmt.Errorf("archive %q: %w", msg.ID, ErrNotArchivable)
	}
	return transcriptRow{
		ID:         id,
		ChatroomID: msg.ChatroomID,
		Body:       msg.Body,
		UserName:   msg.UserName,
		UserUID:    msg.UserUID,
		CreatedAt:  msg.CreatedAt,
		UpdatedAt:  msg.UpdatedAt,
	}, nil
}

func (row transcriptRow) message() models.Message {
	return models.MessageFromDTO(models.MessageDTO{
		ID:         row.ID,
		ChatroomID: row.ChatroomID,
		Body:       row.Body,
		UserName:   row.UserName,
		UserUID:    row.UserUID,
		CreatedAt:  row.CreatedAt,
		UpdatedAt:  row.UpdatedAt,
	})
}
