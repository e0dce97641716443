package redis

import (
	"context"
	"fmt"
	"time"

	"github.com/go-redis/redis/v8"
	"github.com/google/uuid"

	"pharmacy-intake-bot/internal/domain"
)

// Locker serializes turns per session: the session record has no
// internal locking, so the transport must hold the lock across Advance.
type Locker interface {
	TryLock(ctx context.Context, key string, ttl time.Duration) (token string, err error)
	Unlock(ctx context.Context, key, token string) error
}

var _ Locker = (*RedisLocker)(nil)

type RedisLocker struct {
	client *Client
}

func NewLocker(c *Client) *RedisLocker {
	return &RedisLocker{client: c}
}

// SessionLockKey is the lock key for one session's in-flight turn.
func SessionLockKey(sessionID string) string {
	return fmt.Sprintf("turn_lock:%s", sessionID)
}

// TryLock attempts the lock a few times before giving up. A held lock
// comes back as domain.ErrSessionBusy; a Redis failure is returned as
// the transport error so callers do not mistake an outage for a busy
// session.
func (l *RedisLocker) TryLock(ctx context.Context, key string, ttl time.Duration) (string, error) {
	token := uuid.NewString()
	var lastErr error
	for i := 0; i < 3; i++ {
		ok, err := l.client.SetNX(ctx, key, token, ttl)
		if err != nil {
			lastErr = err
			time.Sleep(50 * time.Millisecond)
			continue
		}
		if ok {
			return token, nil
		}
		lastErr = nil
		time.Sleep(50 * time.Millisecond)
	}
	if lastErr != nil {
		return "", fmt.Errorf("acquire turn lock: %w", lastErr)
	}
	return "", domain.ErrSessionBusy
}

var luaUnlock = redis.NewScript(`
if redis.call("GET", KEYS[1]) == ARGV[1] then
	return redis.call("DEL", KEYS[1])
else
	return 0
end`)

func (l *RedisLocker) Unlock(ctx context.Context, key, token string) error {
	_, err := l.client.Eval(ctx, luaUnlock, []string{key}, token)
	return err
}
