// Package dispatch runs the scan-decide-act cycle over the policy
// store. Rows are independent, so one cycle fans them out to a bounded
// worker pool; per-row races with other workers or other scheduler
// instances are settled by conditional timestamp advances, never locks.
package dispatch

import (
	"context"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"

	"github.com/avitonotify/notify-server-go/internal/audit"
	apperrors "github.com/avitonotify/notify-server-go/internal/errors"
	"github.com/avitonotify/notify-server-go/internal/metrics"
	"github.com/avitonotify/notify-server-go/internal/model"
	"github.com/avitonotify/notify-server-go/internal/repository"
	"github.com/avitonotify/notify-server-go/internal/schedule"
)

type Coordinator struct {
	linkRepo     repository.LinkRepository
	reminderRepo repository.ReminderRepository
	eventRepo    repository.EventRepository
	gateway      DeliveryGateway
	backoff      []time.Duration
	workers      int

	// now is swappable for tests.
	now func() time.Time
}

func NewCoordinator(
	linkRepo repository.LinkRepository,
	reminderRepo repository.ReminderRepository,
	eventRepo repository.EventRepository,
	gateway DeliveryGateway,
	backoff []time.Duration,
	workers int,
) *Coordinator {
	if workers < 1 {
		workers = 1
	}
	if len(backoff) == 0 {
		backoff = schedule.DefaultBackoff
	}
	return &Coordinator{
		linkRepo:     linkRepo,
		reminderRepo: reminderRepo,
		eventRepo:    eventRepo,
		gateway:      gateway,
		backoff:      backoff,
		workers:      workers,
		now:          time.Now,
	}
}

// RunCycle executes one scan. Only store-wide fetch failures abort it;
// every per-row problem is logged, counted, and left for the next tick.
// Rows unprocessed at the ctx deadline are likewise picked up next time.
func (c *Coordinator) RunCycle(ctx context.Context) error {
	scanID := uuid.NewString()[:8]
	logger := log.With().Str("scan_id", scanID).Logger()
	started := time.Now()

	targets, err := c.linkRepo.GetActiveTargets(ctx)
	if err != nil {
		metrics.ScanFailures.Inc()
		return apperrors.StoreUnavailable(err)
	}
	events, err := c.eventRepo.GetPendingCandidates(ctx)
	if err != nil {
		metrics.ScanFailures.Inc()
		return apperrors.StoreUnavailable(err)
	}
	reminders, err := c.reminderRepo.GetCandidates(ctx)
	if err != nil {
		metrics.ScanFailures.Inc()
		return apperrors.StoreUnavailable(err)
	}

	units := make([]func(context.Context), 0, len(targets)+len(events)+len(reminders))
	for i := range targets {
		target := targets[i]
		units = append(units, func(ctx context.Context) { c.processDigest(ctx, logger, target) })
	}
	for i := range events {
		ev := events[i]
		units = append(units, func(ctx context.Context) { c.processEvent(ctx, logger, ev) })
	}
	for _, group := range groupByReminder(reminders) {
		group := group
		units = append(units, func(ctx context.Context) { c.processReminder(ctx, logger, group) })
	}

	ch := make(chan func(context.Context))
	var wg sync.WaitGroup
	for i := 0; i < c.workers; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for unit := range ch {
				if ctx.Err() != nil {
					continue
				}
				unit(ctx)
			}
		}()
	}
	for _, unit := range units {
		ch <- unit
	}
	close(ch)
	wg.Wait()

	metrics.RecordScan(time.Since(started))
	logger.Info().
		Int("targets", len(targets)).
		Int("events", len(events)).
		Int("reminders", len(reminders)).
		Dur("elapsed", time.Since(started)).
		Msg("scan cycle complete")
	return nil
}

// groupByReminder collapses (reminder x link) join rows so one work
// unit owns one conversation: it notifies every linked chat, then
// claims the escalation once.
func groupByReminder(candidates []model.ReminderCandidate) [][]model.ReminderCandidate {
	index := make(map[int64]int)
	groups := make([][]model.ReminderCandidate, 0, len(candidates))
	for _, cand := range candidates {
		i, ok := index[cand.ID]
		if !ok {
			i = len(groups)
			index[cand.ID] = i
			groups = append(groups, nil)
		}
		groups[i] = append(groups[i], cand)
	}
	return groups
}

func (c *Coordinator) processDigest(ctx context.Context, logger zerolog.Logger, target model.AccountChatTarget) {
	if !target.Deliverable() {
		metrics.RecordDecision("digest", metrics.OutcomeSkipped)
		return
	}
	now := c.now()

	plan, tzErr := schedule.PlanDigest(&target, now)
	if tzErr != nil {
		logger.Warn().Err(tzErr).
			Int64("account_id", target.AccountID).
			Int64("chat_id", target.ChatID).
			Msg("bad link timezone")
	}
	if !plan.Due {
		return
	}

	if err := c.gateway.SendDigest(ctx, &target, plan.WindowStart, plan.WindowEnd); err != nil {
		c.recordSendFailure(logger, "digest", target.AccountID, err)
		return
	}

	ok, err := c.linkRepo.TryAdvanceDigest(ctx, target.AccountID, target.ChatID, target.LastDigestTs, now)
	if err != nil {
		metrics.RecordDecision("digest", metrics.OutcomeFailed)
		logger.Error().Err(err).Int64("account_id", target.AccountID).Msg("advance digest timestamp failed")
		return
	}
	if !ok {
		// Another worker owned this digest period. Expected under
		// concurrent scans, not an error.
		metrics.RecordDecision("digest", metrics.OutcomeClaimLost)
		audit.Log(ctx, audit.Event{
			Type:      audit.EventClaimLost,
			AccountID: target.AccountID,
			TgChatID:  target.TgChatID,
			Details:   map[string]interface{}{"kind": "digest"},
		})
		return
	}

	metrics.RecordDecision("digest", metrics.OutcomeSent)
	audit.Log(ctx, audit.Event{
		Type:      audit.EventDigestSent,
		AccountID: target.AccountID,
		TgChatID:  target.TgChatID,
		Details: map[string]interface{}{
			"window_start": plan.WindowStart.UTC().Format(time.RFC3339),
			"window_end":   plan.WindowEnd.UTC().Format(time.RFC3339),
		},
	})
}

func (c *Coordinator) processEvent(ctx context.Context, logger zerolog.Logger, ev model.EventCandidate) {
	now := c.now()

	if !ev.Target.Deliverable() {
		if err := c.eventRepo.MarkSuppressed(ctx, ev.ID); err != nil {
			metrics.RecordDecision("realtime", metrics.OutcomeFailed)
			logger.Error().Err(err).Int64("event_id", ev.ID).Msg("suppress event failed")
			return
		}
		metrics.RecordDecision("realtime", metrics.OutcomeSuppressed)
		audit.Log(ctx, audit.Event{
			Type:      audit.EventRealtimeSuppressed,
			AccountID: ev.AccountID,
			TgChatID:  ev.TgChatID,
		})
		return
	}

	decision, tzErr := schedule.EvaluateWindow(ev.Target.Tz, ev.Target.WorkFrom, ev.Target.WorkTo, now)
	if tzErr != nil {
		logger.Warn().Err(tzErr).Int64("event_id", ev.ID).Msg("bad link timezone")
	}
	if !decision.Allowed {
		metrics.RecordDecision("realtime", metrics.OutcomeDeferred)
		logger.Debug().
			Int64("event_id", ev.ID).
			Time("next_allowed", decision.NextAllowed).
			Msg("realtime deferred until work window opens")
		return
	}

	if err := c.gateway.SendRealtime(ctx, &ev.Target, &ev.PendingEvent); err != nil {
		c.recordSendFailure(logger, "realtime", ev.AccountID, err)
		return
	}

	ok, err := c.eventRepo.TryMarkSent(ctx, ev.ID, now)
	if err != nil {
		metrics.RecordDecision("realtime", metrics.OutcomeFailed)
		logger.Error().Err(err).Int64("event_id", ev.ID).Msg("mark event sent failed")
		return
	}
	if !ok {
		metrics.RecordDecision("realtime", metrics.OutcomeClaimLost)
		return
	}

	metrics.RecordDecision("realtime", metrics.OutcomeSent)
	audit.Log(ctx, audit.Event{
		Type:      audit.EventRealtimeSent,
		AccountID: ev.AccountID,
		TgChatID:  ev.TgChatID,
	})
}

func (c *Coordinator) processReminder(ctx context.Context, logger zerolog.Logger, group []model.ReminderCandidate) {
	if len(group) == 0 {
		return
	}
	rem := group[0].Reminder
	now := c.now()

	sentTo := 0
	for i := range group {
		target := group[i].Target

		due, tzErr := schedule.PlanReminder(&rem, &target, now, c.backoff)
		if tzErr != nil {
			logger.Warn().Err(tzErr).
				Int64("account_id", target.AccountID).
				Int64("chat_id", target.ChatID).
				Msg("bad link timezone")
		}
		if !due {
			continue
		}

		if err := c.gateway.SendReminder(ctx, &target, &rem, now); err != nil {
			c.recordSendFailure(logger, "reminder", target.AccountID, err)
			continue
		}
		sentTo++
		audit.Log(ctx, audit.Event{
			Type:      audit.EventReminderSent,
			AccountID: target.AccountID,
			TgChatID:  target.TgChatID,
			Details:   map[string]interface{}{"avito_chat_id": rem.AvitoChatID},
		})
	}

	if sentTo == 0 {
		return
	}

	ok, err := c.reminderRepo.TryAdvance(ctx, rem.ID, rem.LastReminder, now)
	if err != nil {
		metrics.RecordDecision("reminder", metrics.OutcomeFailed)
		logger.Error().Err(err).Int64("reminder_id", rem.ID).Msg("advance reminder failed")
		return
	}
	if !ok {
		metrics.RecordDecision("reminder", metrics.OutcomeClaimLost)
		audit.Log(ctx, audit.Event{
			Type:      audit.EventClaimLost,
			AccountID: rem.AccountID,
			Details:   map[string]interface{}{"kind": "reminder", "avito_chat_id": rem.AvitoChatID},
		})
		return
	}

	metrics.RecordDecision("reminder", metrics.OutcomeSent)
	logger.Info().
		Int64("reminder_id", rem.ID).
		Int("chats", sentTo).
		Int("escalation", rem.ReminderCount+1).
		Msg("reminder escalated")
}

func (c *Coordinator) recordSendFailure(logger zerolog.Logger, kind string, accountID int64, err error) {
	outcome := metrics.OutcomeFailed
	if apperrors.IsThrottled(err) {
		// Gateway asked us to back off; the row is untouched and the
		// next cycle retries it.
		outcome = metrics.OutcomeThrottled
	}
	metrics.RecordDecision(kind, outcome)
	logger.Error().Err(err).Str("kind", kind).Int64("account_id", accountID).Msg("delivery failed, will retry next cycle")
}
