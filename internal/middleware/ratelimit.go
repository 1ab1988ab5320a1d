package middleware

import (
	"context"
	"fmt"
	"strconv"
	"sync"
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/redis/go-redis/v9"

	"github.com/zkvault/zkvault/internal/apperr"
)

// Limit describes a fixed-window threshold for one operation class.
type Limit struct {
	Class  string
	Max    int
	Window time.Duration
}

// Default thresholds per operation class.
var (
	RegisterLimit       = Limit{Class: "register", Max: 3, Window: time.Hour}
	LoginLimit          = Limit{Class: "login", Max: 5, Window: 15 * time.Minute}
	ChangePasswordLimit = Limit{Class: "change_password", Max: 5, Window: time.Hour}
	SaltsLimit          = Limit{Class: "salts", Max: 10, Window: time.Hour}
)

// Limiter counts requests per key within a fixed window.
type Limiter interface {
	// Allow increments the counter for key and reports whether the request
	// is within the limit. Counting failures must not reject the request.
	Allow(ctx context.Context, key string, limit Limit) (bool, error)
}

// RedisLimiter implements fixed-window counting with INCR plus EXPIRE.
type RedisLimiter struct {
	cache *redis.Client
}

// NewRedisLimiter creates a limiter backed by Redis.
func NewRedisLimiter(cache *redis.Client) *RedisLimiter {
	return &RedisLimiter{cache: cache}
}

// Allow counts the request. Cache errors fail open.
func (l *RedisLimiter) Allow(ctx context.Context, key string, limit Limit) (bool, error) {
	if l.cache == nil {
		return true, nil
	}
	cnt, err := l.cache.Incr(ctx, key).Result()
	if err != nil {
		return true, err
	}
	if cnt == 1 {
		l.cache.Expire(ctx, key, limit.Window)
	}
	return cnt <= int64(limit.Max), nil
}

// MemoryLimiter is an in-process fixed-window counter for tests and dev mode.
type MemoryLimiter struct {
	mu      sync.Mutex
	windows map[string]*memoryWindow
}

type memoryWindow struct {
	count   int
	resetAt time.Time
}

// NewMemoryLimiter creates an in-memory limiter.
func NewMemoryLimiter() *MemoryLimiter {
	return &MemoryLimiter{windows: make(map[string]*memoryWindow)}
}

// Allow counts the request against the in-memory window.
func (l *MemoryLimiter) Allow(_ context.Context, key string, limit Limit) (bool, error) {
	l.mu.Lock()
	defer l.mu.Unlock()

	now := time.Now()
	w, ok := l.windows[key]
	if !ok || now.After(w.resetAt) {
		w = &memoryWindow{resetAt: now.Add(limit.Window)}
		l.windows[key] = w
	}
	w.count++
	return w.count <= limit.Max, nil
}

// RateLimit rejects requests exceeding the class threshold within the window,
// keyed by client address. A failing counter backend never blocks traffic.
func RateLimit(limiter Limiter, limit Limit) fiber.Handler {
	return func(c *fiber.Ctx) error {
		if limiter == nil {
			return c.Next()
		}
		key := fmt.Sprintf("rl:%s:%s", limit.Class, c.IP())
		ok, err := limiter.Allow(c.UserContext(), key, limit)
		if err != nil {
			return c.Next() // fail-open on counter errors
		}
		if !ok {
			c.Set(fiber.HeaderRetryAfter, strconv.Itoa(int(limit.Window.Seconds())))
			return apperr.RateLimited("rate limit exceeded, try again later")
		}
		return c.Next()
	}
}
