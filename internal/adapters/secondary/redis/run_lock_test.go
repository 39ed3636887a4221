package redis

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"sync"
	"testing"
	"time"

	goredis "github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// stubRedis emulates the handful of commands the lock issues.
type stubRedis struct {
	mu      sync.Mutex
	store   map[string]string
	failSet error
	pingErr error
}

func (s *stubRedis) SetNX(ctx context.Context, key string, value any, _ time.Duration) *goredis.BoolCmd {
	s.mu.Lock()
	defer s.mu.Unlock()
	cmd := goredis.NewBoolCmd(ctx)
	if s.failSet != nil {
		cmd.SetErr(s.failSet)
		return cmd
	}
	if s.store == nil {
		s.store = make(map[string]string)
	}
	if _, ok := s.store[key]; ok {
		cmd.SetVal(false)
		return cmd
	}
	s.store[key] = value.(string)
	cmd.SetVal(true)
	return cmd
}

func (s *stubRedis) Eval(ctx context.Context, _ string, keys []string, args ...any) *goredis.Cmd {
	s.mu.Lock()
	defer s.mu.Unlock()
	cmd := goredis.NewCmd(ctx)
	if s.store[keys[0]] == args[0].(string) {
		delete(s.store, keys[0])
		cmd.SetVal(int64(1))
		return cmd
	}
	cmd.SetVal(int64(0))
	return cmd
}

func (s *stubRedis) Ping(ctx context.Context) *goredis.StatusCmd {
	cmd := goredis.NewStatusCmd(ctx)
	if s.pingErr != nil {
		cmd.SetErr(s.pingErr)
		return cmd
	}
	cmd.SetVal("PONG")
	return cmd
}

func (s *stubRedis) set(key, value string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.store[key] = value
}

func (s *stubRedis) has(key string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	_, ok := s.store[key]
	return ok
}

func newTestLock(stub *stubRedis) *RunLock {
	return newRunLock(stub, slog.New(slog.NewTextHandler(io.Discard, nil)))
}

func TestRunLock_ExclusiveUntilUnlocked(t *testing.T) {
	ctx := context.Background()
	stub := &stubRedis{}
	lock := newTestLock(stub)

	unlock, ok, err := lock.TryLock(ctx, "support-auto-redistribute", time.Minute)
	require.NoError(t, err)
	require.True(t, ok)
	assert.True(t, stub.has("support-redistributor:lock:support-auto-redistribute"))

	again, ok, err := lock.TryLock(ctx, "support-auto-redistribute", time.Minute)
	require.NoError(t, err)
	assert.False(t, ok)
	assert.Nil(t, again)

	unlock()
	assert.False(t, stub.has("support-redistributor:lock:support-auto-redistribute"))

	_, ok, err = lock.TryLock(ctx, "support-auto-redistribute", time.Minute)
	require.NoError(t, err)
	assert.True(t, ok)
}

func TestRunLock_UnlockLeavesForeignHolder(t *testing.T) {
	ctx := context.Background()
	stub := &stubRedis{}
	lock := newTestLock(stub)

	unlock, ok, err := lock.TryLock(ctx, "job", time.Minute)
	require.NoError(t, err)
	require.True(t, ok)

	// Lease expired and another replica took the key.
	stub.set("support-redistributor:lock:job", "someone-else")
	unlock()

	assert.True(t, stub.has("support-redistributor:lock:job"))
}

func TestRunLock_UnlockAfterCancel(t *testing.T) {
	stub := &stubRedis{}
	lock := newTestLock(stub)
	ctx, cancel := context.WithCancel(context.Background())

	unlock, ok, err := lock.TryLock(ctx, "job", time.Minute)
	require.NoError(t, err)
	require.True(t, ok)

	cancel()
	unlock()
	assert.False(t, stub.has("support-redistributor:lock:job"))
}

func TestRunLock_Errors(t *testing.T) {
	stub := &stubRedis{failSet: errors.New("connection refused"), pingErr: errors.New("connection refused")}
	lock := newTestLock(stub)

	unlock, ok, err := lock.TryLock(context.Background(), "job", time.Minute)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "connection refused")
	assert.False(t, ok)
	assert.Nil(t, unlock)

	assert.Error(t, lock.Ping(context.Background()))
}
