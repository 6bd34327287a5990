package repository

import (
	"context"
	"time"

	"github.com/jmoiron/sqlx"
	"github.com/lib/pq"

	"github.com/avitonotify/notify-server-go/internal/model"
)

type SentMessageRepository interface {
	Log(ctx context.Context, tgChatID, tgMessageID int64) error
	FindUndeleted(ctx context.Context) ([]model.SentMessage, error)
	MarkDeleted(ctx context.Context, ids []int64) (int64, error)
	// DeleteSoftDeletedBefore hard-removes rows whose Telegram message
	// was already deleted and whose retention window has passed.
	DeleteSoftDeletedBefore(ctx context.Context, cutoff time.Time) (int64, error)
}

type sentMessageRepo struct {
	db sqlxDB
}

func NewSentMessageRepository(db *sqlx.DB) SentMessageRepository {
	return &sentMessageRepo{db: db}
}

func (r *sentMessageRepo) Log(ctx context.Context, tgChatID, tgMessageID int64) error {
	_, err := r.db.ExecContext(ctx, `
		INSERT INTO notify.sent_messages (tg_chat_id, tg_message_id)
		VALUES ($1, $2)
	`, tgChatID, tgMessageID)
	return err
}

func (r *sentMessageRepo) FindUndeleted(ctx context.Context) ([]model.SentMessage, error) {
	var msgs []model.SentMessage
	err := r.db.SelectContext(ctx, &msgs, `
		SELECT * FROM notify.sent_messages
		WHERE deleted_ts IS NULL
		ORDER BY id
	`)
	if err != nil {
		return nil, err
	}
	return msgs, nil
}

func (r *sentMessageRepo) MarkDeleted(ctx context.Context, ids []int64) (int64, error) {
	if len(ids) == 0 {
		return 0, nil
	}
	res, err := r.db.ExecContext(ctx, `
		UPDATE notify.sent_messages SET deleted_ts = now()
		WHERE id = ANY($1) AND deleted_ts IS NULL
	`, pq.Array(ids))
	if err != nil {
		return 0, err
	}
	return res.RowsAffected()
}

func (r *sentMessageRepo) DeleteSoftDeletedBefore(ctx context.Context, cutoff time.Time) (int64, error) {
	res, err := r.db.ExecContext(ctx, `
		DELETE FROM notify.sent_messages
		WHERE deleted_ts IS NOT NULL AND deleted_ts < $1
	`, cutoff)
	if err != nil {
		return 0, err
	}
	return res.RowsAffected()
}
