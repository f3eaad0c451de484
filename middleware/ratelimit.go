package middleware

import (
	"context"
	"fmt"
	"net/http"
	"strconv"
	"sync"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog/log"
)

// Limiter decides whether the caller identified by key may proceed
type Limiter interface {
	Allow(ctx context.Context, key string) (bool, error)
}

// MemoryLimiter is a per-key sliding window kept in process memory
type MemoryLimiter struct {
	mu     sync.Mutex
	hits   map[string][]time.Time
	limit  int
	window time.Duration
	now    func() time.Time
}

// sweep stale keys once the map grows past this size
const sweepThreshold = 10000

// NewMemoryLimiter allows limit calls per key within any window-long interval
func NewMemoryLimiter(limit int, window time.Duration) *MemoryLimiter {
	return &MemoryLimiter{
		hits:   make(map[string][]time.Time),
		limit:  limit,
		window: window,
		now:    time.Now,
	}
}

// Allow records the call when it fits in the window. Rejected calls are not recorded.
func (l *MemoryLimiter) Allow(_ context.Context, key string) (bool, error) {
	l.mu.Lock()
	defer l.mu.Unlock()

	now := l.now()
	recent := l.prune(l.hits[key], now)

	if len(recent) >= l.limit {
		l.hits[key] = recent
		return false, nil
	}
	l.hits[key] = append(recent, now)

	if len(l.hits) > sweepThreshold {
		for k, stamps := range l.hits {
			if len(l.prune(stamps, now)) == 0 {
				delete(l.hits, k)
			}
		}
	}
	return true, nil
}

func (l *MemoryLimiter) prune(stamps []time.Time, now time.Time) []time.Time {
	i := 0
	for i < len(stamps) && now.Sub(stamps[i]) >= l.window {
		i++
	}
	return stamps[i:]
}

// RedisLimiter is a sliding window stored as one sorted set per key, so the
// limit holds across several API instances.
type RedisLimiter struct {
	client *redis.Client
	limit  int
	window time.Duration
	prefix string
	now    func() time.Time
}

// NewRedisLimiter connects to redisURL and checks the connection
func NewRedisLimiter(ctx context.Context, redisURL string, limit int, window time.Duration) (*RedisLimiter, error) {
	opts, err := redis.ParseURL(redisURL)
	if err != nil {
		return nil, fmt.Errorf("invalid redis url: %w", err)
	}
	client := redis.NewClient(opts)
	if err := client.Ping(ctx).Err(); err != nil {
		client.Close()
		return nil, fmt.Errorf("failed to connect to Redis: %w", err)
	}
	return newRedisLimiter(client, limit, window), nil
}

func newRedisLimiter(client *redis.Client, limit int, window time.Duration) *RedisLimiter {
	return &RedisLimiter{
		client: client,
		limit:  limit,
		window: window,
		prefix: "ratelimit:analyze:",
		now:    time.Now,
	}
}

// slidingWindow trims KEYS[1] to the window and adds ARGV[3] when fewer
// than ARGV[2] calls remain. Running it as one script keeps replicas from
// admitting the same free slot.
var slidingWindow = redis.NewScript(`
redis.call('ZREMRANGEBYSCORE', KEYS[1], '-inf', ARGV[1])
if redis.call('ZCARD', KEYS[1]) >= tonumber(ARGV[2]) then
	return 0
end
redis.call('ZADD', KEYS[1], ARGV[4], ARGV[3])
redis.call('PEXPIRE', KEYS[1], ARGV[5])
return 1
`)

// Allow trims the set to the window, then adds the call when there is room
func (l *RedisLimiter) Allow(ctx context.Context, key string) (bool, error) {
	now := l.now()
	cutoff := strconv.FormatInt(now.Add(-l.window).UnixMicro(), 10)

	admitted, err := slidingWindow.Run(ctx, l.client, []string{l.prefix + key},
		cutoff,
		l.limit,
		uuid.NewString(),
		now.UnixMicro(),
		l.window.Milliseconds(),
	).Int()
	if err != nil {
		return false, fmt.Errorf("failed to check rate limit window: %w", err)
	}
	return admitted == 1, nil
}

// Close releases the Redis connection pool
func (l *RedisLimiter) Close() error {
	return l.client.Close()
}

// RateLimit rejects callers over the limit with 429 before the handler runs.
// Limiter errors let the request through.
func RateLimit(limiter Limiter) gin.HandlerFunc {
	return func(c *gin.Context) {
		allowed, err := limiter.Allow(c.Request.Context(), c.ClientIP())
		if err != nil {
			log.Warn().Err(err).Str("client_ip", c.ClientIP()).Msg("rate limiter unavailable, allowing request")
			c.Next()
			return
		}
		if !allowed {
			c.AbortWithStatusJSON(http.StatusTooManyRequests, gin.H{
				"message": "Too many requests, please try again later.",
			})
			return
		}
		c.Next()
	}
}
