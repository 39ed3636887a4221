package redis

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"
	"github.com/lorrc/support-redistributor/internal/core/ports"
	goredis "github.com/redis/go-redis/v9"
)

// releaseScript deletes the key only while it still carries our token, so a
// holder whose lease expired cannot free a lock taken by someone else.
const releaseScript = `
if redis.call("GET", KEYS[1]) == ARGV[1] then
	return redis.call("DEL", KEYS[1])
end
return 0
`

// commander is the subset of *goredis.Client the lock needs.
type commander interface {
	SetNX(ctx context.Context, key string, value any, expiration time.Duration) *goredis.BoolCmd
	Eval(ctx context.Context, script string, keys []string, args ...any) *goredis.Cmd
	Ping(ctx context.Context) *goredis.StatusCmd
}

// RunLock is a ports.RunLocker shared by every replica pointed at the same
// redis instance.
type RunLock struct {
	client commander
	prefix string
	logger *slog.Logger
}

var _ ports.RunLocker = (*RunLock)(nil)

// NewRunLock wraps a redis client.
func NewRunLock(client *goredis.Client, logger *slog.Logger) *RunLock {
	return newRunLock(client, logger)
}

func newRunLock(client commander, logger *slog.Logger) *RunLock {
	return &RunLock{
		client: client,
		prefix: "support-redistributor:lock:",
		logger: logger,
	}
}

// TryLock takes key with SET NX PX. The lease expires after ttl even if the
// holder never unlocks.
func (l *RunLock) TryLock(ctx context.Context, key string, ttl time.Duration) (func(), bool, error) {
	redisKey := l.prefix + key
	token := uuid.NewString()

	ok, err := l.client.SetNX(ctx, redisKey, token, ttl).Result()
	if err != nil {
		return nil, false, fmt.Errorf("redis lock %s: %w", key, err)
	}
	if !ok {
		return nil, false, nil
	}

	unlock := func() {
		// The run context may already be cancelled.
		releaseCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), 2*time.Second)
		defer cancel()

		if err := l.client.Eval(releaseCtx, releaseScript, []string{redisKey}, token).Err(); err != nil && err != goredis.Nil {
			l.logger.Warn("failed to release run lock",
				slog.String("key", key),
				slog.String("error", err.Error()),
			)
		}
	}
	return unlock, true, nil
}

// Ping reports whether redis is reachable. It backs the health check.
func (l *RunLock) Ping(ctx context.Context) error {
	return l.client.Ping(ctx).Err()
}
