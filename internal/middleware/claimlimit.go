package middleware

import (
	"context"
	"net/http"
	"strconv"
	"time"

	goredis "github.com/redis/go-redis/v9"
	"github.com/rs/zerolog/log"

	"github.com/mizpos/terminal-link-go/internal/config"
	apperrors "github.com/mizpos/terminal-link-go/internal/errors"
	"github.com/mizpos/terminal-link-go/internal/httputil"
	"github.com/mizpos/terminal-link-go/internal/redis"
)

const claimWindow = 60 * time.Second

// claimLimitScript is a sliding-window counter. It trims entries older than
// the window, rejects when the bucket is full, and otherwise records the
// attempt. Returns {allowed, remaining, resetAt}.
var claimLimitScript = goredis.NewScript(`
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
    return {0, 0, resetAt}
end

redis.call('ZADD', key, now, now .. '-' .. math.random())
redis.call('EXPIRE', key, window + 10)

local remaining = limit - count - 1
local resetAt = now + window

return {1, remaining, resetAt}
`)

// ClaimLimiter throttles pairing claim attempts per client address. The PIN
// space is a million codes, so unthrottled claims would make scanning one
// cheap. Redis being unreachable must not strand legitimate terminals: the
// limiter fails open.
type ClaimLimiter struct {
	client *redis.Client
	limit  int
}

func NewClaimLimiter(client *redis.Client, limit int) *ClaimLimiter {
	if limit <= 0 {
		limit = config.DefaultClaimsPerIPPerMin
	}
	return &ClaimLimiter{client: client, limit: limit}
}

func (l *ClaimLimiter) check(ctx context.Context, ip string) (allowed bool, remaining int, resetAt int64) {
	now := time.Now().Unix()

	result, err := claimLimitScript.Run(
		ctx,
		l.client.Client,
		[]string{redis.ClaimKey(ip)},
		now,
		int64(claimWindow.Seconds()),
		l.limit,
	).Int64Slice()
	if err != nil {
		log.Warn().Err(err).Str("ip", ip).Msg("claim rate limit check failed, allowing request")
		return true, l.limit - 1, now + int64(claimWindow.Seconds())
	}

	if len(result) != 3 {
		log.Warn().Str("ip", ip).Msg("unexpected claim rate limit result, allowing request")
		return true, l.limit - 1, now + int64(claimWindow.Seconds())
	}

	return result[0] == 1, int(result[1]), result[2]
}

func (l *ClaimLimiter) Handler(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		// RealIP runs ahead of this in the router, so RemoteAddr is the
		// client address rather than a proxy hop.
		allowed, remaining, resetAt := l.check(r.Context(), r.RemoteAddr)

		w.Header().Set("X-RateLimit-Limit", strconv.Itoa(l.limit))
		w.Header().Set("X-RateLimit-Remaining", strconv.Itoa(remaining))
		w.Header().Set("X-RateLimit-Reset", strconv.FormatInt(resetAt, 10))

		if !allowed {
			log.Warn().Str("ip", r.RemoteAddr).Msg("claim rate limit exceeded")
			w.Header().Set("Retry-After", "60")
			httputil.WriteError(w, apperrors.RateLimitExceeded())
			return
		}

		next.ServeHTTP(w, r)
	})
}
