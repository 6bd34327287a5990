package repository

import (
	"context"
	"time"

	"github.com/jmoiron/sqlx"

	"github.com/avitonotify/notify-server-go/internal/model"
)

type ReminderRepository interface {
	FindByConversation(ctx context.Context, accountID, avitoChatID int64) (*model.Reminder, error)
	// Upsert opens the unanswered-conversation tracker. first_ts is set
	// once and never moves on repeated buyer messages.
	Upsert(ctx context.Context, params model.UpsertReminderParams) (*model.Reminder, error)
	DeleteByConversation(ctx context.Context, accountID, avitoChatID int64) error
	// GetCandidates joins every open reminder with the delivery policy
	// of each chat its account is linked to.
	GetCandidates(ctx context.Context) ([]model.ReminderCandidate, error)
	// TryAdvance is the per-row claim: it moves last_reminder from
	// expectedPrev to newTs and bumps reminder_count in the same write.
	TryAdvance(ctx context.Context, id int64, expectedPrev *time.Time, newTs time.Time) (bool, error)
	Count(ctx context.Context) (int, error)
}

type reminderRepo struct {
	db sqlxDB
}

func NewReminderRepository(db *sqlx.DB) ReminderRepository {
	return &reminderRepo{db: db}
}

func (r *reminderRepo) FindByConversation(ctx context.Context, accountID, avitoChatID int64) (*model.Reminder, error) {
	var rem model.Reminder
	err := r.db.GetContext(ctx, &rem, `
		SELECT * FROM notify.reminders
		WHERE account_id = $1 AND avito_chat_id = $2
	`, accountID, avitoChatID)
	return HandleNotFound(&rem, err)
}

func (r *reminderRepo) Upsert(ctx context.Context, params model.UpsertReminderParams) (*model.Reminder, error) {
	var rem model.Reminder
	err := r.db.GetContext(ctx, &rem, `
		INSERT INTO notify.reminders (account_id, avito_chat_id, title)
		VALUES ($1, $2, $3)
		ON CONFLICT (account_id, avito_chat_id) DO UPDATE SET
			title = COALESCE(EXCLUDED.title, notify.reminders.title)
		RETURNING *
	`, params.AccountID, params.AvitoChatID, params.Title)
	if err != nil {
		return nil, err
	}
	return &rem, nil
}

func (r *reminderRepo) DeleteByConversation(ctx context.Context, accountID, avitoChatID int64) error {
	_, err := r.db.ExecContext(ctx, `
		DELETE FROM notify.reminders
		WHERE account_id = $1 AND avito_chat_id = $2
	`, accountID, avitoChatID)
	return err
}

func (r *reminderRepo) GetCandidates(ctx context.Context) ([]model.ReminderCandidate, error) {
	var candidates []model.ReminderCandidate
	err := r.db.SelectContext(ctx, &candidates, `
		SELECT
			r.id, r.account_id, r.avito_chat_id, r.title,
			r.first_ts, r.last_reminder, r.reminder_count,
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
		FROM notify.reminders r
		JOIN notify.account_chat_targets t ON t.account_id = r.account_id
		ORDER BY r.first_ts
	`)
	if err != nil {
		return nil, err
	}
	return candidates, nil
}

func (r *reminderRepo) TryAdvance(ctx context.Context, id int64, expectedPrev *time.Time, newTs time.Time) (bool, error) {
	res, err := r.db.ExecContext(ctx, `
		UPDATE notify.reminders SET
			last_reminder = $2,
			reminder_count = reminder_count + 1
		WHERE id = $1
		  AND last_reminder IS NOT DISTINCT FROM $3
		  AND ($2 >= last_reminder OR last_reminder IS NULL)
	`, id, newTs, expectedPrev)
	if err != nil {
		return false, err
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return false, err
	}
	return affected == 1, nil
}

func (r *reminderRepo) Count(ctx context.Context) (int, error) {
	var count int
	err := r.db.GetContext(ctx, &count, `SELECT COUNT(*) FROM notify.reminders`)
	return count, err
}
