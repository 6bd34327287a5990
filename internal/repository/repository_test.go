package repository

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/jmoiron/sqlx"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/avitonotify/notify-server-go/internal/model"
)

func TestAccountRepository_Upsert(t *testing.T) {
	db := setupTestDB(t)
	defer db.Close()

	repo := NewAccountRepository(db.DB)
	ctx := context.Background()

	first, err := repo.Upsert(ctx, model.UpsertAccountParams{AvitoUserID: 99})
	require.NoError(t, err)
	assert.Equal(t, int64(99), first.AvitoUserID)
	assert.Nil(t, first.Alias)

	alias := "shop"
	second, err := repo.Upsert(ctx, model.UpsertAccountParams{AvitoUserID: 99, Alias: &alias})
	require.NoError(t, err)
	assert.Equal(t, first.ID, second.ID, "same avito user, same account")
	require.NotNil(t, second.Alias)
	assert.Equal(t, "shop", *second.Alias)

	// A later upsert without display fields must not wipe them.
	third, err := repo.Upsert(ctx, model.UpsertAccountParams{AvitoUserID: 99})
	require.NoError(t, err)
	require.NotNil(t, third.Alias)
	assert.Equal(t, "shop", *third.Alias)
}

func TestLinkRepository_Policy(t *testing.T) {
	db := setupTestDB(t)
	defer db.Close()

	accounts := NewAccountRepository(db.DB)
	links := NewLinkRepository(db.DB)
	ctx := context.Background()

	account, err := accounts.Upsert(ctx, model.UpsertAccountParams{AvitoUserID: 99})
	require.NoError(t, err)
	chatID := createTestChat(t, db, -100123)

	link, err := links.Upsert(ctx, account.ID, chatID, nil)
	require.NoError(t, err)
	assert.False(t, link.Muted)
	assert.Equal(t, "Europe/Moscow", link.Tz)
	assert.Nil(t, link.DailyDigestTime)

	muted := true
	digest := model.NewTimeOfDay(9, 0)
	tz := "Asia/Yekaterinburg"
	updated, err := links.UpdatePolicy(ctx, account.ID, chatID, model.UpdateLinkPolicyParams{
		Muted:           &muted,
		Tz:              &tz,
		DailyDigestTime: &digest,
	})
	require.NoError(t, err)
	assert.True(t, updated.Muted)
	assert.Equal(t, "Asia/Yekaterinburg", updated.Tz)
	require.NotNil(t, updated.DailyDigestTime)
	assert.Equal(t, digest, *updated.DailyDigestTime)
	assert.True(t, updated.UpdatedTs.After(link.UpdatedTs))

	cleared, err := links.UpdatePolicy(ctx, account.ID, chatID, model.UpdateLinkPolicyParams{
		ClearDigestTime: true,
	})
	require.NoError(t, err)
	assert.Nil(t, cleared.DailyDigestTime)
	assert.True(t, cleared.Muted, "untouched fields keep their values")
}

func TestLinkRepository_TryAdvanceDigest(t *testing.T) {
	db := setupTestDB(t)
	defer db.Close()

	accounts := NewAccountRepository(db.DB)
	links := NewLinkRepository(db.DB)
	ctx := context.Background()

	account, err := accounts.Upsert(ctx, model.UpsertAccountParams{AvitoUserID: 99})
	require.NoError(t, err)
	chatID := createTestChat(t, db, -100123)
	_, err = links.Upsert(ctx, account.ID, chatID, nil)
	require.NoError(t, err)

	now := time.Now().UTC().Truncate(time.Microsecond)

	ok, err := links.TryAdvanceDigest(ctx, account.ID, chatID, nil, now)
	require.NoError(t, err)
	assert.True(t, ok, "first claim from NULL wins")

	ok, err = links.TryAdvanceDigest(ctx, account.ID, chatID, nil, now.Add(time.Second))
	require.NoError(t, err)
	assert.False(t, ok, "claim against a stale prior value loses")

	ok, err = links.TryAdvanceDigest(ctx, account.ID, chatID, &now, now.Add(24*time.Hour))
	require.NoError(t, err)
	assert.True(t, ok, "claim with the current value wins")

	ok, err = links.TryAdvanceDigest(ctx, account.ID, chatID, &now, now.Add(48*time.Hour))
	require.NoError(t, err)
	assert.False(t, ok)
}

func TestReminderRepository(t *testing.T) {
	db := setupTestDB(t)
	defer db.Close()

	accounts := NewAccountRepository(db.DB)
	rems := NewReminderRepository(db.DB)
	ctx := context.Background()

	account, err := accounts.Upsert(ctx, model.UpsertAccountParams{AvitoUserID: 99})
	require.NoError(t, err)

	t.Run("upsert keeps first_ts", func(t *testing.T) {
		first, err := rems.Upsert(ctx, model.UpsertReminderParams{AccountID: account.ID, AvitoChatID: 42})
		require.NoError(t, err)
		assert.Equal(t, 0, first.ReminderCount)

		again, err := rems.Upsert(ctx, model.UpsertReminderParams{AccountID: account.ID, AvitoChatID: 42})
		require.NoError(t, err)
		assert.Equal(t, first.ID, again.ID)
		assert.Equal(t, first.FirstTs, again.FirstTs)
	})

	t.Run("try advance bumps count once per claim", func(t *testing.T) {
		rem, err := rems.FindByConversation(ctx, account.ID, 42)
		require.NoError(t, err)
		require.NotNil(t, rem)

		now := time.Now().UTC().Truncate(time.Microsecond)

		ok, err := rems.TryAdvance(ctx, rem.ID, nil, now)
		require.NoError(t, err)
		assert.True(t, ok)

		ok, err = rems.TryAdvance(ctx, rem.ID, nil, now.Add(time.Second))
		require.NoError(t, err)
		assert.False(t, ok, "second worker with the stale prior value loses")

		advanced, err := rems.FindByConversation(ctx, account.ID, 42)
		require.NoError(t, err)
		assert.Equal(t, 1, advanced.ReminderCount)
		require.NotNil(t, advanced.LastReminder)
		assert.True(t, advanced.LastReminder.Equal(now))
	})

	t.Run("seller reply deletes the row", func(t *testing.T) {
		require.NoError(t, rems.DeleteByConversation(ctx, account.ID, 42))
		rem, err := rems.FindByConversation(ctx, account.ID, 42)
		require.NoError(t, err)
		assert.Nil(t, rem)
	})
}

func TestEventRepository_Claims(t *testing.T) {
	db := setupTestDB(t)
	defer db.Close()

	accounts := NewAccountRepository(db.DB)
	links := NewLinkRepository(db.DB)
	events := NewEventRepository(db.DB)
	ctx := context.Background()

	account, err := accounts.Upsert(ctx, model.UpsertAccountParams{AvitoUserID: 99})
	require.NoError(t, err)
	chatID := createTestChat(t, db, -100123)
	_, err = links.Upsert(ctx, account.ID, chatID, nil)
	require.NoError(t, err)

	ev, err := events.Create(ctx, model.CreateEventParams{
		AccountID: account.ID, TgChatID: -100123, Text: "hello",
	})
	require.NoError(t, err)
	assert.Equal(t, model.EventStatusPending, ev.Status)

	candidates, err := events.GetPendingCandidates(ctx)
	require.NoError(t, err)
	require.Len(t, candidates, 1)
	assert.Equal(t, ev.ID, candidates[0].ID)
	assert.Equal(t, int64(-100123), candidates[0].Target.TgChatID)
	assert.True(t, candidates[0].Target.Deliverable())

	now := time.Now().UTC()
	ok, err := events.TryMarkSent(ctx, ev.ID, now)
	require.NoError(t, err)
	assert.True(t, ok)

	ok, err = events.TryMarkSent(ctx, ev.ID, now)
	require.NoError(t, err)
	assert.False(t, ok, "a sent event cannot be claimed again")

	candidates, err = events.GetPendingCandidates(ctx)
	require.NoError(t, err)
	assert.Empty(t, candidates)

	purged, err := events.DeleteFinishedBefore(ctx, time.Now().Add(time.Minute))
	require.NoError(t, err)
	assert.Equal(t, int64(1), purged)
}

func TestAccountDeletionCascades(t *testing.T) {
	db := setupTestDB(t)
	defer db.Close()

	accounts := NewAccountRepository(db.DB)
	links := NewLinkRepository(db.DB)
	rems := NewReminderRepository(db.DB)
	events := NewEventRepository(db.DB)
	ctx := context.Background()

	account, err := accounts.Upsert(ctx, model.UpsertAccountParams{AvitoUserID: 99})
	require.NoError(t, err)
	chatID := createTestChat(t, db, -100123)
	_, err = links.Upsert(ctx, account.ID, chatID, nil)
	require.NoError(t, err)
	_, err = rems.Upsert(ctx, model.UpsertReminderParams{AccountID: account.ID, AvitoChatID: 42})
	require.NoError(t, err)
	_, err = events.Create(ctx, model.CreateEventParams{AccountID: account.ID, TgChatID: -100123, Text: "x"})
	require.NoError(t, err)

	require.NoError(t, accounts.Delete(ctx, account.ID))

	targets, err := links.GetActiveTargets(ctx)
	require.NoError(t, err)
	assert.Empty(t, targets, "links die with the account")

	remCount, err := rems.Count(ctx)
	require.NoError(t, err)
	assert.Zero(t, remCount, "reminders die with the account")

	pending, err := events.CountByStatus(ctx, model.EventStatusPending)
	require.NoError(t, err)
	assert.Zero(t, pending, "queued events die with the account")
}

func TestLinkRepository_TargetsResolveBotState(t *testing.T) {
	db := setupTestDB(t)
	defer db.Close()

	accounts := NewAccountRepository(db.DB)
	links := NewLinkRepository(db.DB)
	ctx := context.Background()

	account, err := accounts.Upsert(ctx, model.UpsertAccountParams{AvitoUserID: 99})
	require.NoError(t, err)
	chatID := createTestChat(t, db, -100123)
	botID := createTestBot(t, db, 555, false)

	_, err = links.Upsert(ctx, account.ID, chatID, &botID)
	require.NoError(t, err)

	targets, err := links.FindTargetsByAccountID(ctx, account.ID)
	require.NoError(t, err)
	require.Len(t, targets, 1)
	require.NotNil(t, targets[0].TgBotID)
	assert.Equal(t, int64(555), *targets[0].TgBotID)
	assert.False(t, targets[0].BotActive)
	assert.False(t, targets[0].Deliverable(), "inactive bot blocks delivery")
}

func TestAccountRepository_WithTx(t *testing.T) {
	db := setupTestDB(t)
	defer db.Close()

	accounts := NewAccountRepository(db.DB)
	ctx := context.Background()

	t.Run("commit persists", func(t *testing.T) {
		err := db.WithTx(ctx, func(tx *sqlx.Tx) error {
			_, err := accounts.WithTx(tx).Upsert(ctx, model.UpsertAccountParams{AvitoUserID: 1})
			return err
		})
		require.NoError(t, err)

		account, err := accounts.FindByAvitoUserID(ctx, 1)
		require.NoError(t, err)
		assert.NotNil(t, account)
	})

	t.Run("error rolls back", func(t *testing.T) {
		sentinel := errors.New("abort")
		err := db.WithTx(ctx, func(tx *sqlx.Tx) error {
			if _, err := accounts.WithTx(tx).Upsert(ctx, model.UpsertAccountParams{AvitoUserID: 2}); err != nil {
				return err
			}
			return sentinel
		})
		require.ErrorIs(t, err, sentinel)

		account, err := accounts.FindByAvitoUserID(ctx, 2)
		require.NoError(t, err)
		assert.Nil(t, account)
	})
}
