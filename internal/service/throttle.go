package service

import (
	"context"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog/log"

	redisclient "github.com/avitonotify/notify-server-go/internal/redis"
)

// throttleScript is a Lua script for sliding window rate limiting
var throttleScript = redis.NewScript(`
local key = KEYS[1]
local now = tonumber(ARGV[1])
local window = tonumber(ARGV[2])
local limit = tonumber(ARGV[3])

local windowStart = now - window

redis.call('ZREMRANGEBYSCORE', key, '-inf', windowStart)

local count = redis.call('ZCARD', key)

if count >= limit then
    local oldest = redis.call('ZRANGE', key, 0, 0, 'WITHSCORES')
    local resetAt = 0
    if #oldest >= 2 then
        resetAt = tonumber(oldest[2]) + window
    else
        resetAt = now + window
    end
    return {0, resetAt}
end

redis.call('ZADD', key, now, now .. '-' .. math.random())
redis.call('EXPIRE', key, window + 10)

local resetAt = now + window
return {1, resetAt}
`)

// ChatThrottle bounds how many messages the bot pushes into one
// Telegram chat per window. Telegram enforces roughly 20 messages per
// minute per group; staying under it ourselves turns a hard API error
// into an ordinary deferral.
type ChatThrottle struct {
	client *redis.Client
	limit  int
	window time.Duration
}

func NewChatThrottle(client *redisclient.Client, limit int, window time.Duration) *ChatThrottle {
	return &ChatThrottle{client: client.Client, limit: limit, window: window}
}

// Allow reports whether one more message may go to tgChatID now. On
// redis failure the send is denied; the scanner retries next cycle.
func (t *ChatThrottle) Allow(ctx context.Context, tgChatID int64) (allowed bool, resetAt time.Time) {
	now := time.Now().Unix()
	key := redisclient.ThrottleKey(tgChatID)

	result, err := throttleScript.Run(
		ctx,
		t.client,
		[]string{key},
		now,
		int64(t.window.Seconds()),
		t.limit,
	).Int64Slice()

	if err != nil {
		log.Warn().
			Err(err).
			Int64("tg_chat_id", tgChatID).
			Msg("chat throttle check failed, denying send for safety")
		return false, time.Now().Add(t.window)
	}

	if len(result) != 2 {
		log.Warn().Int64("tg_chat_id", tgChatID).Msg("unexpected throttle result, denying send for safety")
		return false, time.Now().Add(t.window)
	}

	return result[0] == 1, time.Unix(result[1], 0)
}
