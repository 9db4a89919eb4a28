package middleware

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"time"

	"blogger/internal/models"

	"github.com/gofiber/fiber/v2"
	"github.com/redis/go-redis/v9"
)

const rateLimitKeyPrefix = "ratelimit:"

// Rule caps one action at Max requests per caller per Window.
type Rule struct {
	Action string
	Max    int
	Window time.Duration
	// FailClosed rejects requests with 503 while the counter store is unreachable.
	// Otherwise they pass.
	FailClosed bool
}

// Request budgets for the write endpoints.
var (
	SignupRule      = Rule{Action: "signup", Max: 3, Window: 10 * time.Minute}
	LoginRule       = Rule{Action: "login", Max: 10, Window: 5 * time.Minute}
	ProfileEditRule = Rule{Action: "profile_edit", Max: 10, Window: time.Minute}
	CreatePostRule  = Rule{Action: "create_post", Max: 10, Window: time.Minute}
)

var errNoCounterStore = errors.New("rate limit store not configured")

// Limiter counts requests in fixed Redis windows keyed by action and caller.
type Limiter struct {
	rdb     *redis.Client
	enforce bool
}

// NewLimiter returns a Limiter for the given APP_ENV. Local ("", "development")
// and "test" runs are never throttled.
func NewLimiter(rdb *redis.Client, env string) *Limiter {
	switch env {
	case "", "development", "test":
		return &Limiter{rdb: rdb}
	}
	return &Limiter{rdb: rdb, enforce: true}
}

// Allow counts one request by caller against rule. When the budget is spent it
// returns false and the time left in the window.
func (l *Limiter) Allow(ctx context.Context, rule Rule, caller string) (bool, time.Duration, error) {
	if !l.enforce {
		return true, 0, nil
	}
	if l.rdb == nil {
		return false, 0, errNoCounterStore
	}

	key := rateLimitKeyPrefix + rule.Action + ":" + caller
	var count *redis.IntCmd
	var ttl *redis.DurationCmd
	if _, err := l.rdb.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
		count = pipe.Incr(ctx, key)
		ttl = pipe.PTTL(ctx, key)
		return nil
	}); err != nil {
		return false, 0, fmt.Errorf("count %s: %w", rule.Action, err)
	}

	left := ttl.Val()
	// A first hit, or a key whose expiry was lost, starts a new window.
	if left < 0 {
		if err := l.rdb.PExpire(ctx, key, rule.Window).Err(); err != nil {
			return false, 0, fmt.Errorf("expire %s: %w", rule.Action, err)
		}
		left = rule.Window
	}

	if count.Val() > int64(rule.Max) {
		return false, left, nil
	}
	return true, 0, nil
}

// Limit applies rule to each request. The caller is the signed-in uid when
// AuthRequired ran first, otherwise the client IP.
func (l *Limiter) Limit(rule Rule) fiber.Handler {
	return func(c *fiber.Ctx) error {
		caller := "ip:" + c.IP()
		if uid, _ := c.Locals("userID").(string); uid != "" {
			caller = "uid:" + uid
		}

		ok, retry, err := l.Allow(c.UserContext(), rule, caller)
		if err != nil {
			Logger.WarnContext(c.UserContext(), "rate limit check failed",
				"action", rule.Action, "fail_closed", rule.FailClosed, "error", err.Error())
			if rule.FailClosed {
				return models.RespondWithError(c, fiber.StatusServiceUnavailable,
					models.NewUnavailableError("Service temporarily unavailable"))
			}
			return c.Next()
		}

		if !ok {
			secs := int((retry + time.Second - 1) / time.Second)
			c.Set(fiber.HeaderRetryAfter, strconv.Itoa(secs))
			return models.RespondWithError(c, fiber.StatusTooManyRequests, models.NewRateLimitedError(rule.Action))
		}
		return c.Next()
	}
}
