// Package telegram implements the delivery gateway against the
// Telegram Bot API.
package telegram

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/rs/zerolog/log"

	"github.com/avitonotify/notify-server-go/internal/config"
	"github.com/avitonotify/notify-server-go/internal/dispatch"
	apperrors "github.com/avitonotify/notify-server-go/internal/errors"
	"github.com/avitonotify/notify-server-go/internal/model"
	"github.com/avitonotify/notify-server-go/internal/repository"
	"github.com/avitonotify/notify-server-go/internal/service"
)

const defaultBaseURL = "https://api.telegram.org"

var _ dispatch.DeliveryGateway = (*Client)(nil)

type Client struct {
	httpClient *http.Client
	baseURL    string
	token      string
	throttle   *service.ChatThrottle
	sentRepo   repository.SentMessageRepository
}

// NewClient builds the gateway. throttle may be nil (sends are then
// unthrottled, e.g. in tests).
func NewClient(token string, throttle *service.ChatThrottle, sentRepo repository.SentMessageRepository) *Client {
	return &Client{
		httpClient: &http.Client{Timeout: config.TelegramRequestTimeout},
		baseURL:    defaultBaseURL,
		token:      token,
		throttle:   throttle,
		sentRepo:   sentRepo,
	}
}

// WithBaseURL points the client at a different API host. Used by tests.
func (c *Client) WithBaseURL(baseURL string) *Client {
	c.baseURL = strings.TrimRight(baseURL, "/")
	return c
}

type apiResponse struct {
	OK          bool   `json:"ok"`
	Description string `json:"description"`
	Result      struct {
		MessageID int64 `json:"message_id"`
	} `json:"result"`
}

func (c *Client) SendDigest(ctx context.Context, target *model.AccountChatTarget, windowStart, windowEnd time.Time) error {
	text := fmt.Sprintf(
		"Daily digest for Avito account %d\nWindow: %s - %s",
		target.AvitoUserID,
		windowStart.UTC().Format("2006-01-02 15:04"),
		windowEnd.UTC().Format("2006-01-02 15:04"),
	)
	return c.send(ctx, target.TgChatID, text)
}

func (c *Client) SendReminder(ctx context.Context, target *model.AccountChatTarget, rem *model.Reminder, now time.Time) error {
	minutes := int(now.Sub(rem.FirstTs).Minutes())
	title := ""
	if rem.Title != nil {
		title = " " + *rem.Title
	}
	text := fmt.Sprintf("No reply for %d min in Avito chat #%d%s", minutes, rem.AvitoChatID, title)
	return c.send(ctx, target.TgChatID, text)
}

func (c *Client) SendRealtime(ctx context.Context, target *model.AccountChatTarget, event *model.PendingEvent) error {
	return c.send(ctx, target.TgChatID, event.Text)
}

func (c *Client) send(ctx context.Context, tgChatID int64, text string) error {
	if c.throttle != nil {
		allowed, resetAt := c.throttle.Allow(ctx, tgChatID)
		if !allowed {
			return apperrors.GatewayThrottled(fmt.Sprintf("chat:%d", tgChatID)).
				WithDetails(map[string]any{"reset_at": resetAt})
		}
	}

	start := time.Now()

	form := url.Values{}
	form.Set("chat_id", strconv.FormatInt(tgChatID, 10))
	form.Set("text", text)

	req, err := http.NewRequestWithContext(ctx, http.MethodPost,
		fmt.Sprintf("%s/bot%s/sendMessage", c.baseURL, c.token),
		strings.NewReader(form.Encode()))
	if err != nil {
		return apperrors.GatewayFailure(err)
	}
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")

	resp, err := c.httpClient.Do(req)
	elapsed := time.Since(start)
	if err != nil {
		log.Error().Err(err).Int64("tg_chat_id", tgChatID).Dur("elapsed", elapsed).Msg("telegram send error")
		return apperrors.GatewayFailure(err)
	}
	defer resp.Body.Close()

	if resp.StatusCode == http.StatusTooManyRequests {
		log.Warn().Int64("tg_chat_id", tgChatID).Msg("telegram rate limit hit")
		return apperrors.GatewayThrottled(fmt.Sprintf("chat:%d", tgChatID))
	}

	var body apiResponse
	if err := json.NewDecoder(resp.Body).Decode(&body); err != nil {
		return apperrors.GatewayFailure(fmt.Errorf("decode response: %w", err))
	}
	if resp.StatusCode != http.StatusOK || !body.OK {
		log.Error().
			Int("status", resp.StatusCode).
			Str("description", body.Description).
			Int64("tg_chat_id", tgChatID).
			Dur("elapsed", elapsed).
			Msg("telegram send failed")
		return apperrors.GatewayFailure(fmt.Errorf("telegram API %d: %s", resp.StatusCode, body.Description))
	}

	if err := c.sentRepo.Log(ctx, tgChatID, body.Result.MessageID); err != nil {
		// The message is out; a missing log row only weakens cleanup.
		log.Error().Err(err).Int64("tg_chat_id", tgChatID).Msg("failed to log sent message")
	}

	log.Info().
		Int64("tg_chat_id", tgChatID).
		Int64("message_id", body.Result.MessageID).
		Dur("elapsed", elapsed).
		Msg("telegram message sent")
	return nil
}

// DeleteMessage removes a previously sent bot message from a chat.
func (c *Client) DeleteMessage(ctx context.Context, tgChatID, messageID int64) error {
	form := url.Values{}
	form.Set("chat_id", strconv.FormatInt(tgChatID, 10))
	form.Set("message_id", strconv.FormatInt(messageID, 10))

	req, err := http.NewRequestWithContext(ctx, http.MethodPost,
		fmt.Sprintf("%s/bot%s/deleteMessage", c.baseURL, c.token),
		strings.NewReader(form.Encode()))
	if err != nil {
		return apperrors.GatewayFailure(err)
	}
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return apperrors.GatewayFailure(err)
	}
	defer resp.Body.Close()

	var body apiResponse
	if err := json.NewDecoder(resp.Body).Decode(&body); err != nil {
		return apperrors.GatewayFailure(fmt.Errorf("decode response: %w", err))
	}
	if resp.StatusCode != http.StatusOK || !body.OK {
		return apperrors.GatewayFailure(fmt.Errorf("telegram API %d: %s", resp.StatusCode, body.Description))
	}
	return nil
}
