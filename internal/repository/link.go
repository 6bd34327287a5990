package repository

import (
	"context"
	"time"

	"github.com/jmoiron/sqlx"

	"github.com/avitonotify/notify-server-go/internal/model"
)

// LinkRepository owns account_chat_links and the account_chat_targets
// read view. Every mutation sets updated_ts explicitly; there is no
// database trigger doing it behind the scenes.
type LinkRepository interface {
	Find(ctx context.Context, accountID, chatID int64) (*model.AccountChatLink, error)
	Upsert(ctx context.Context, accountID, chatID int64, botID *int64) (*model.AccountChatLink, error)
	UpdatePolicy(ctx context.Context, accountID, chatID int64, params model.UpdateLinkPolicyParams) (*model.AccountChatLink, error)
	GetActiveTargets(ctx context.Context) ([]model.AccountChatTarget, error)
	FindTargetsByAccountID(ctx context.Context, accountID int64) ([]model.AccountChatTarget, error)
	// TryAdvanceDigest is the per-row claim: it moves last_digest_ts
	// from expectedPrev to newTs and reports false when another worker
	// got there first.
	TryAdvanceDigest(ctx context.Context, accountID, chatID int64, expectedPrev *time.Time, newTs time.Time) (bool, error)
}

type linkRepo struct {
	db sqlxDB
}

func NewLinkRepository(db *sqlx.DB) LinkRepository {
	return &linkRepo{db: db}
}

func (r *linkRepo) Find(ctx context.Context, accountID, chatID int64) (*model.AccountChatLink, error) {
	var link model.AccountChatLink
	err := r.db.GetContext(ctx, &link, `
		SELECT * FROM notify.account_chat_links
		WHERE account_id = $1 AND chat_id = $2
	`, accountID, chatID)
	return HandleNotFound(&link, err)
}

func (r *linkRepo) Upsert(ctx context.Context, accountID, chatID int64, botID *int64) (*model.AccountChatLink, error) {
	var link model.AccountChatLink
	err := r.db.GetContext(ctx, &link, `
		INSERT INTO notify.account_chat_links (account_id, chat_id, bot_id)
		VALUES ($1, $2, $3)
		ON CONFLICT (account_id, chat_id) DO UPDATE SET
			bot_id = COALESCE(EXCLUDED.bot_id, notify.account_chat_links.bot_id),
			updated_ts = now()
		RETURNING *
	`, accountID, chatID, botID)
	if err != nil {
		return nil, err
	}
	return &link, nil
}

func (r *linkRepo) UpdatePolicy(ctx context.Context, accountID, chatID int64, params model.UpdateLinkPolicyParams) (*model.AccountChatLink, error) {
	var link model.AccountChatLink
	err := r.db.GetContext(ctx, &link, `
		UPDATE notify.account_chat_links SET
			muted = COALESCE($3, muted),
			work_from = COALESCE($4, work_from),
			work_to = COALESCE($5, work_to),
			tz = COALESCE($6, tz),
			daily_digest_time = CASE WHEN $8 THEN NULL ELSE COALESCE($7, daily_digest_time) END,
			updated_ts = now()
		WHERE account_id = $1 AND chat_id = $2
		RETURNING *
	`, accountID, chatID, params.Muted, params.WorkFrom, params.WorkTo,
		params.Tz, params.DailyDigestTime, params.ClearDigestTime)
	return HandleNotFound(&link, err)
}

const targetColumns = `
	account_id, chat_id, avito_user_id, tg_chat_id, chat_type, chat_title,
	tg_bot_id, bot_username, bot_active, muted, work_from, work_to, tz,
	daily_digest_time, last_digest_ts, created_ts`

func (r *linkRepo) GetActiveTargets(ctx context.Context) ([]model.AccountChatTarget, error) {
	var targets []model.AccountChatTarget
	err := r.db.SelectContext(ctx, &targets, `
		SELECT `+targetColumns+`
		FROM notify.account_chat_targets
		ORDER BY account_id, chat_id
	`)
	if err != nil {
		return nil, err
	}
	return targets, nil
}

func (r *linkRepo) FindTargetsByAccountID(ctx context.Context, accountID int64) ([]model.AccountChatTarget, error) {
	var targets []model.AccountChatTarget
	err := r.db.SelectContext(ctx, &targets, `
		SELECT `+targetColumns+`
		FROM notify.account_chat_targets
		WHERE account_id = $1
		ORDER BY chat_id
	`, accountID)
	if err != nil {
		return nil, err
	}
	return targets, nil
}

func (r *linkRepo) TryAdvanceDigest(ctx context.Context, accountID, chatID int64, expectedPrev *time.Time, newTs time.Time) (bool, error) {
	res, err := r.db.ExecContext(ctx, `
		UPDATE notify.account_chat_links SET
			last_digest_ts = $3,
			updated_ts = now()
		WHERE account_id = $1 AND chat_id = $2
		  AND last_digest_ts IS NOT DISTINCT FROM $4
		  AND ($3 >= last_digest_ts OR last_digest_ts IS NULL)
	`, accountID, chatID, newTs, expectedPrev)
	if err != nil {
		return false, err
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return false, err
	}
	return affected == 1, nil
}
