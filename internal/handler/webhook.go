package handler

import (
	"context"
	"encoding/json"
	"net/http"
	"time"

	"github.com/rs/zerolog/log"

	"github.com/avitonotify/notify-server-go/internal/metrics"
	"github.com/avitonotify/notify-server-go/internal/service"
)

// MessageIngester consumes one marketplace message event.
type MessageIngester interface {
	HandleMessage(ctx context.Context, msg service.MarketplaceMessage) error
}

// AvitoWebhookRequest mirrors the Avito messenger webhook envelope.
// Only the fields the pipeline reads are declared.
type AvitoWebhookRequest struct {
	Timestamp int64 `json:"timestamp"`
	Payload   struct {
		Type  string `json:"type"`
		Value struct {
			ChatID   int64 `json:"chat_id"`
			AuthorID int64 `json:"author_id"`
			UserID   int64 `json:"user_id"`
			Content  struct {
				Text string `json:"text"`
			} `json:"content"`
		} `json:"value"`
	} `json:"payload"`
}

type WebhookHandler struct {
	ingester MessageIngester
}

func NewWebhookHandler(ingester MessageIngester) *WebhookHandler {
	return &WebhookHandler{ingester: ingester}
}

// Avito handles POST /avito/webhook. Ingestion failures answer 500 so
// Avito redelivers the event once the store is back.
func (h *WebhookHandler) Avito(w http.ResponseWriter, r *http.Request) {
	var req AvitoWebhookRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		log.Warn().Err(err).Msg("invalid avito webhook request")
		metrics.RecordWebhook("invalid")
		writeError(w, http.StatusBadRequest, "Invalid request body")
		return
	}

	value := req.Payload.Value
	if value.UserID == 0 || value.ChatID == 0 {
		log.Warn().
			Int64("user_id", value.UserID).
			Int64("chat_id", value.ChatID).
			Msg("avito webhook missing identifiers")
		metrics.RecordWebhook("invalid")
		writeError(w, http.StatusBadRequest, "Missing user_id or chat_id")
		return
	}

	msg := service.MarketplaceMessage{
		SellerID:    value.UserID,
		AvitoChatID: value.ChatID,
		AuthorID:    value.AuthorID,
		Text:        value.Content.Text,
		Timestamp:   time.Unix(req.Timestamp, 0).UTC(),
	}

	if err := h.ingester.HandleMessage(r.Context(), msg); err != nil {
		log.Error().Err(err).
			Int64("seller_id", msg.SellerID).
			Int64("avito_chat_id", msg.AvitoChatID).
			Msg("webhook ingestion failed")
		metrics.RecordWebhook("failed")
		writeError(w, http.StatusInternalServerError, "Ingestion failed")
		return
	}

	metrics.RecordWebhook("ok")
	writeJSON(w, http.StatusOK, map[string]bool{"ok": true})
}
