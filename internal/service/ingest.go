package service

import (
	"context"
	"fmt"
	"time"

	"github.com/rs/zerolog/log"

	"github.com/avitonotify/notify-server-go/internal/audit"
	"github.com/avitonotify/notify-server-go/internal/model"
	"github.com/avitonotify/notify-server-go/internal/repository"
)

// MarketplaceMessage is one chat message event from the Avito webhook.
// AuthorID equals SellerID when the seller themselves replied.
type MarketplaceMessage struct {
	SellerID    int64
	AvitoChatID int64
	AuthorID    int64
	Text        string
	Timestamp   time.Time
}

// IngestService is the state-producing collaborator: it turns inbound
// marketplace events into accounts, queued notifications, and reminder
// rows. It never sends anything itself; the scanner owns delivery.
type IngestService struct {
	accountRepo  repository.AccountRepository
	linkRepo     repository.LinkRepository
	reminderRepo repository.ReminderRepository
	eventRepo    repository.EventRepository
}

func NewIngestService(
	accountRepo repository.AccountRepository,
	linkRepo repository.LinkRepository,
	reminderRepo repository.ReminderRepository,
	eventRepo repository.EventRepository,
) *IngestService {
	return &IngestService{
		accountRepo:  accountRepo,
		linkRepo:     linkRepo,
		reminderRepo: reminderRepo,
		eventRepo:    eventRepo,
	}
}

// HandleMessage processes one webhook event. A buyer message queues a
// real-time notification for every linked chat and opens (or keeps) the
// unanswered-conversation tracker; a seller reply closes it.
func (s *IngestService) HandleMessage(ctx context.Context, msg MarketplaceMessage) error {
	if msg.SellerID == 0 || msg.AvitoChatID == 0 {
		return fmt.Errorf("marketplace message missing seller or chat id")
	}

	existing, err := s.accountRepo.FindByAvitoUserID(ctx, msg.SellerID)
	if err != nil {
		return fmt.Errorf("find account: %w", err)
	}
	account, err := s.accountRepo.Upsert(ctx, model.UpsertAccountParams{AvitoUserID: msg.SellerID})
	if err != nil {
		return fmt.Errorf("ensure account: %w", err)
	}
	if existing == nil {
		audit.Log(ctx, audit.Event{
			Type:      audit.EventAccountCreate,
			AccountID: account.ID,
			Details:   map[string]interface{}{"avito_user_id": msg.SellerID},
		})
	}

	if msg.AuthorID == msg.SellerID {
		return s.resolveConversation(ctx, account, msg)
	}
	return s.openConversation(ctx, account, msg)
}

func (s *IngestService) resolveConversation(ctx context.Context, account *model.Account, msg MarketplaceMessage) error {
	if err := s.reminderRepo.DeleteByConversation(ctx, account.ID, msg.AvitoChatID); err != nil {
		return fmt.Errorf("resolve reminder: %w", err)
	}

	audit.Log(ctx, audit.Event{
		Type:      audit.EventReminderResolved,
		AccountID: account.ID,
		Details:   map[string]interface{}{"avito_chat_id": msg.AvitoChatID},
	})
	return nil
}

func (s *IngestService) openConversation(ctx context.Context, account *model.Account, msg MarketplaceMessage) error {
	targets, err := s.linkRepo.FindTargetsByAccountID(ctx, account.ID)
	if err != nil {
		return fmt.Errorf("find targets: %w", err)
	}

	text := formatRealtimeText(msg)
	queued := 0
	for _, target := range targets {
		if _, err := s.eventRepo.Create(ctx, model.CreateEventParams{
			AccountID: account.ID,
			TgChatID:  target.TgChatID,
			Text:      text,
		}); err != nil {
			log.Error().Err(err).
				Int64("account_id", account.ID).
				Int64("tg_chat_id", target.TgChatID).
				Msg("failed to queue realtime event")
			continue
		}
		queued++
	}

	rem, err := s.reminderRepo.Upsert(ctx, model.UpsertReminderParams{
		AccountID:   account.ID,
		AvitoChatID: msg.AvitoChatID,
	})
	if err != nil {
		return fmt.Errorf("open reminder: %w", err)
	}

	if rem.LastReminder == nil && rem.ReminderCount == 0 {
		audit.Log(ctx, audit.Event{
			Type:      audit.EventReminderOpened,
			AccountID: account.ID,
			Details:   map[string]interface{}{"avito_chat_id": msg.AvitoChatID},
		})
	}

	log.Info().
		Int64("account_id", account.ID).
		Int64("avito_chat_id", msg.AvitoChatID).
		Int("queued", queued).
		Msg("buyer message ingested")
	return nil
}

func formatRealtimeText(msg MarketplaceMessage) string {
	return fmt.Sprintf(
		"New Avito message\nAccount: %d\nChat #%d\n%s\nAt: %s",
		msg.SellerID,
		msg.AvitoChatID,
		msg.Text,
		msg.Timestamp.UTC().Format("2006-01-02 15:04:05 UTC"),
	)
}
