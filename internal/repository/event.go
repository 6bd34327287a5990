package repository

import (
	"context"
	"time"

	"github.com/jmoiron/sqlx"

	"github.com/avitonotify/notify-server-go/internal/model"
)

type EventRepository interface {
	Create(ctx context.Context, params model.CreateEventParams) (*model.PendingEvent, error)
	// GetPendingCandidates returns queued real-time notifications joined
	// with the policy of the link they target.
	GetPendingCandidates(ctx context.Context) ([]model.EventCandidate, error)
	// TryMarkSent is the per-row claim for the realtime path: only one
	// worker can move a row out of pending.
	TryMarkSent(ctx context.Context, id int64, sentTs time.Time) (bool, error)
	MarkSuppressed(ctx context.Context, id int64) error
	DeleteFinishedBefore(ctx context.Context, cutoff time.Time) (int64, error)
	CountByStatus(ctx context.Context, status model.EventStatus) (int, error)
}

type eventRepo struct {
	db sqlxDB
}

func NewEventRepository(db *sqlx.DB) EventRepository {
	return &eventRepo{db: db}
}

func (r *eventRepo) Create(ctx context.Context, params model.CreateEventParams) (*model.PendingEvent, error) {
	var ev model.PendingEvent
	err := r.db.GetContext(ctx, &ev, `
		INSERT INTO notify.pending_events (account_id, tg_chat_id, text)
		VALUES ($1, $2, $3)
		RETURNING *
	`, params.AccountID, params.TgChatID, params.Text)
	if err != nil {
		return nil, err
	}
	return &ev, nil
}

func (r *eventRepo) GetPendingCandidates(ctx context.Context) ([]model.EventCandidate, error) {
	var candidates []model.EventCandidate
	err := r.db.SelectContext(ctx, &candidates, `
		SELECT
			e.id, e.account_id, e.tg_chat_id, e.text, e.status,
			e.created_ts, e.sent_ts,
			t.account_id        AS "target.account_id",
			t.chat_id           AS "target.chat_id",
			t.avito_user_id     AS "target.avito_user_id",
			t.tg_chat_id        AS "target.tg_chat_id",
			t.chat_type         AS "target.chat_type",
			t.chat_title        AS "target.chat_title",
			t.tg_bot_id         AS "target.tg_bot_id",
			t.bot_username      AS "target.bot_username",
			t.bot_active        AS "target.bot_active",
			t.muted             AS "target.muted",
			t.work_from         AS "target.work_from",
			t.work_to           AS "target.work_to",
			t.tz                AS "target.tz",
			t.daily_digest_time AS "target.daily_digest_time",
			t.last_digest_ts    AS "target.last_digest_ts",
			t.created_ts        AS "target.created_ts"
		FROM notify.pending_events e
		JOIN notify.account_chat_targets t
		  ON t.account_id = e.account_id AND t.tg_chat_id = e.tg_chat_id
		WHERE e.status = 'pending'
		ORDER BY e.created_ts
	`)
	if err != nil {
		return nil, err
	}
	return candidates, nil
}

func (r *eventRepo) TryMarkSent(ctx context.Context, id int64, sentTs time.Time) (bool, error) {
	res, err := r.db.ExecContext(ctx, `
		UPDATE notify.pending_events SET
			status = 'sent',
			sent_ts = $2
		WHERE id = $1 AND status = 'pending'
	`, id, sentTs)
	if err != nil {
		return false, err
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return false, err
	}
	return affected == 1, nil
}

func (r *eventRepo) MarkSuppressed(ctx context.Context, id int64) error {
	_, err := r.db.ExecContext(ctx, `
		UPDATE notify.pending_events SET status = 'suppressed'
		WHERE id = $1 AND status = 'pending'
	`, id)
	return err
}

func (r *eventRepo) DeleteFinishedBefore(ctx context.Context, cutoff time.Time) (int64, error) {
	res, err := r.db.ExecContext(ctx, `
		DELETE FROM notify.pending_events
		WHERE status <> 'pending' AND created_ts < $1
	`, cutoff)
	if err != nil {
		return 0, err
	}
	return res.RowsAffected()
}

func (r *eventRepo) CountByStatus(ctx context.Context, status model.EventStatus) (int, error) {
	var count int
	err := r.db.GetContext(ctx, &count, `
		SELECT COUNT(*) FROM notify.pending_events WHERE status = $1
	`, status)
	return count, err
}
