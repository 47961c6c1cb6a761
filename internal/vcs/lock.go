package vcs

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/redis/go-redis/v9"
)

// Параметры ожидания блокировки комментария.
const (
	DefaultLockAttempts = 9
	DefaultLockDelay    = time.Second
)

// Locker — блокировка "создать, если нет".
type Locker interface {
	TryLock(ctx context.Context, key string) (bool, error)
	Unlock(ctx context.Context, key string) error
}

// LockOptions — число попыток и пауза между ними.
type LockOptions struct {
	Attempts int
	Delay    time.Duration
}

// WithLock берёт блокировку key (до Attempts попыток с паузой Delay),
// выполняет fn и всегда отпускает блокировку.
func WithLock(ctx context.Context, locker Locker, key string, opts LockOptions, logger *slog.Logger, fn func(ctx context.Context) error) error {
	if opts.Attempts <= 0 {
		opts.Attempts = DefaultLockAttempts
	}
	if opts.Delay <= 0 {
		opts.Delay = DefaultLockDelay
	}

	for attempt := 1; ; attempt++ {
		ok, err := locker.TryLock(ctx, key)
		if err != nil {
			return fmt.Errorf("lock %s: %w", key, err)
		}
		if ok {
			break
		}
		if attempt >= opts.Attempts {
			return fmt.Errorf("%w: %s after %d attempts", ErrLockBusy, key, attempt)
		}

		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(opts.Delay):
		}
	}

	defer func() {
		// блокировку отпускаем даже если ctx отменён
		unlockCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), 5*time.Second)
		defer cancel()
		if err := locker.Unlock(unlockCtx, key); err != nil {
			logger.Warn("failed to release comment lock", "key", key, "error", err)
		}
	}()

	return fn(ctx)
}

// RedisLocker — блокировка через SET NX с TTL.
type RedisLocker struct {
	client *redis.Client
	prefix string
	ttl    time.Duration
}

// NewRedisLocker создаёт RedisLocker. TTL защищает от зависших блокировок.
func NewRedisLocker(client *redis.Client, ttl time.Duration) *RedisLocker {
	if ttl <= 0 {
		ttl = time.Minute
	}
	return &RedisLocker{client: client, prefix: "forge:vcs-comment-lock:", ttl: ttl}
}

// TryLock пытается создать ключ блокировки.
func (l *RedisLocker) TryLock(ctx context.Context, key string) (bool, error) {
	return l.client.SetNX(ctx, l.prefix+key, "1", l.ttl).Result()
}

// Unlock удаляет ключ блокировки.
func (l *RedisLocker) Unlock(ctx context.Context, key string) error {
	return l.client.Del(ctx, l.prefix+key).Err()
}
