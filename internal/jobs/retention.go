package jobs

import (
	"context"
	"time"

	"github.com/robfig/cron/v3"
	"github.com/rs/zerolog/log"

	"github.com/avitonotify/notify-server-go/internal/audit"
	"github.com/avitonotify/notify-server-go/internal/config"
	"github.com/avitonotify/notify-server-go/internal/repository"
)

// MessageDeleter removes a previously sent message from its chat.
type MessageDeleter interface {
	DeleteMessage(ctx context.Context, tgChatID, messageID int64) error
}

// RetentionJob runs on a cron schedule. It deletes aged bot messages
// from Telegram, soft-deletes their rows, then hard-removes rows and
// finished events past the retention window.
type RetentionJob struct {
	sentRepo  repository.SentMessageRepository
	eventRepo repository.EventRepository
	deleter   MessageDeleter
	retention time.Duration
	spec      string
	cron      *cron.Cron
}

func NewRetentionJob(
	sentRepo repository.SentMessageRepository,
	eventRepo repository.EventRepository,
	deleter MessageDeleter,
	retention time.Duration,
	spec string,
) *RetentionJob {
	return &RetentionJob{
		sentRepo:  sentRepo,
		eventRepo: eventRepo,
		deleter:   deleter,
		retention: retention,
		spec:      spec,
		cron:      cron.New(),
	}
}

func (j *RetentionJob) Start() error {
	if _, err := j.cron.AddFunc(j.spec, j.Run); err != nil {
		return err
	}
	j.cron.Start()
	log.Info().Str("schedule", j.spec).Dur("retention", j.retention).Msg("retention job started")
	return nil
}

func (j *RetentionJob) Stop() {
	j.cron.Stop()
	log.Info().Msg("retention job stopped")
}

// Run performs one sweep. Exported so an operator can trigger it out
// of schedule.
func (j *RetentionJob) Run() {
	ctx, cancel := context.WithTimeout(context.Background(), config.RetentionRunTimeout)
	defer cancel()

	cutoff := time.Now().Add(-j.retention)

	messages, err := j.sentRepo.FindUndeleted(ctx)
	if err != nil {
		log.Error().Err(err).Msg("retention: list sent messages failed")
		return
	}

	var deleted []int64
	for _, msg := range messages {
		if msg.CreatedTs.After(cutoff) {
			continue
		}
		if err := j.deleter.DeleteMessage(ctx, msg.TgChatID, msg.TgMessageID); err != nil {
			// The message may already be gone from the chat; either way
			// the row stays and the next sweep retries.
			log.Warn().Err(err).
				Int64("tg_chat_id", msg.TgChatID).
				Int64("tg_message_id", msg.TgMessageID).
				Msg("retention: delete from chat failed")
			continue
		}
		deleted = append(deleted, msg.ID)
	}

	if len(deleted) > 0 {
		if _, err := j.sentRepo.MarkDeleted(ctx, deleted); err != nil {
			log.Error().Err(err).Msg("retention: mark deleted failed")
		}
	}

	purged, err := j.sentRepo.DeleteSoftDeletedBefore(ctx, cutoff)
	if err != nil {
		log.Error().Err(err).Msg("retention: purge sent messages failed")
	}

	events, err := j.eventRepo.DeleteFinishedBefore(ctx, cutoff)
	if err != nil {
		log.Error().Err(err).Msg("retention: purge events failed")
	}

	if len(deleted) > 0 || purged > 0 || events > 0 {
		audit.Log(ctx, audit.Event{
			Type: audit.EventMessagesPurged,
			Details: map[string]interface{}{
				"chat_deletes":  len(deleted),
				"rows_purged":   purged,
				"events_purged": events,
			},
		})
	}
}
