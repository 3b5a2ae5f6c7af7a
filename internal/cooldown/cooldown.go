// Package cooldown enforces the per-user, per-room slow mode on chat sends.
package cooldown

import (
	"context"
	"fmt"
	"log"
	"sync"
	"time"

	"github.com/redis/go-redis/v9"
	"golang.org/x/time/rate"

	"activamigos-chat/internal/models"
)

// Store reports whether a user may send in a room now, starting a new window
// when allowed.
type Store interface {
	Allow(ctx context.Context, room models.RoomRef, userID int64) (bool, error)
}

// New returns a Redis-backed store when redisURL is reachable, otherwise an
// in-process store. A zero window disables slow mode.
func New(ctx context.Context, redisURL string, window time.Duration) Store {
	if window <= 0 {
		log.Printf("cooldown disabled: zero window")
		return Disabled{}
	}
	if redisURL == "" {
		log.Printf("cooldown using memory store: empty redis url")
		return NewMemoryStore(window)
	}

	opts, err := redis.ParseURL(redisURL)
	if err != nil {
		log.Printf("cooldown using memory store: %v", err)
		return NewMemoryStore(window)
	}
	client := redis.NewClient(opts)
	if err := client.Ping(ctx).Err(); err != nil {
		log.Printf("cooldown using memory store: redis ping: %v", err)
		_ = client.Close()
		return NewMemoryStore(window)
	}

	log.Printf("cooldown using redis window=%s", window)
	return NewRedisStore(client, window)
}

// Disabled allows every send.
type Disabled struct{}

func (Disabled) Allow(context.Context, models.RoomRef, int64) (bool, error) { return true, nil }

// RedisStore shares cooldown windows across server instances.
type RedisStore struct {
	client *redis.Client
	window time.Duration
}

// NewRedisStore uses SETNX with the window as TTL.
func NewRedisStore(client *redis.Client, window time.Duration) *RedisStore {
	return &RedisStore{client: client, window: window}
}

// Allow starts a window unless one is already open.
func (s *RedisStore) Allow(ctx context.Context, room models.RoomRef, userID int64) (bool, error) {
	ok, err := s.client.SetNX(ctx, key(room, userID), 1, s.window).Result()
	if err != nil {
		return false, fmt.Errorf("cooldown: %w", err)
	}
	return ok, nil
}

// Close closes the Redis client.
func (s *RedisStore) Close() error {
	return s.client.Close()
}

// MemoryStore keeps one limiter per user and room in process.
type MemoryStore struct {
	mu       sync.Mutex
	window   time.Duration
	limiters map[string]*limiter
	now      func() time.Time
}

type limiter struct {
	*rate.Limiter
	lastSeen time.Time
}

// NewMemoryStore allows one send per window for each user and room.
func NewMemoryStore(window time.Duration) *MemoryStore {
	return &MemoryStore{window: window, limiters: make(map[string]*limiter), now: time.Now}
}

// Allow never fails.
func (s *MemoryStore) Allow(_ context.Context, room models.RoomRef, userID int64) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	now := s.now()
	k := key(room, userID)
	l, ok := s.limiters[k]
	if !ok {
		l = &limiter{Limiter: rate.NewLimiter(rate.Every(s.window), 1)}
		s.limiters[k] = l
	}
	l.lastSeen = now
	allowed := l.AllowN(now, 1)

	// limiters idle for a full window are back to a full token
	if len(s.limiters) > 1024 {
		for k, l := range s.limiters {
			if now.Sub(l.lastSeen) >= s.window {
				delete(s.limiters, k)
			}
		}
	}
	return allowed, nil
}

func key(room models.RoomRef, userID int64) string {
	return fmt.Sprintf("chat:cooldown:%s:%d", room.Key(), userID)
}
