package redis_test

import (
	"context"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	backend "github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/hupe1980/agentgraph/core"
	"github.com/hupe1980/agentgraph/session/redis"
	"github.com/hupe1980/agentgraph/session/storetest"
)

func newStore(t *testing.T, optFns ...func(o *redis.Options)) (*redis.Store, *miniredis.Miniredis) {
	t.Helper()
	mr := miniredis.RunT(t)
	client := backend.NewClient(&backend.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = client.Close() })
	return redis.NewFromClient(client, optFns...), mr
}

func TestStore_Contract(t *testing.T) {
	storetest.Run(t, func(t *testing.T) core.ConversationStore {
		s, _ := newStore(t)
		return s
	})
}

func TestStore_KeysAndTTL(t *testing.T) {
	s, mr := newStore(t, func(o *redis.Options) {
		o.Prefix = "test:"
		o.TTL = time.Hour
	})
	ctx := context.Background()

	require.NoError(t, s.AppendTurn(ctx, "c1", core.NewTurn(core.RoleUser, "", "hello")))
	require.NoError(t, s.PutScratch(ctx, "c1", "k", "v"))

	assert.True(t, mr.Exists("test:c1:turns"))
	assert.Equal(t, time.Hour, mr.TTL("test:c1:turns"))
	assert.Equal(t, time.Hour, mr.TTL("test:c1:scratch"))
	assert.Equal(t, "v", mr.HGet("test:c1:scratch", "k"))

	mr.FastForward(2 * time.Hour)
	conv, err := s.Load(ctx, "c1")
	require.NoError(t, err)
	assert.Empty(t, conv.Turns)
}

func TestStore_LockExpires(t *testing.T) {
	s, mr := newStore(t, func(o *redis.Options) { o.LockTTL = time.Minute })
	ctx := context.Background()

	_, err := s.AcquireRunLock(ctx, "c1")
	require.NoError(t, err)

	_, err = s.AcquireRunLock(ctx, "c1")
	assert.Equal(t, core.KindConcurrentRunConflict, core.KindOf(err))

	mr.FastForward(2 * time.Minute)
	unlock, err := s.AcquireRunLock(ctx, "c1")
	require.NoError(t, err)
	unlock()
}

func TestStore_LockRenewedWhileHeld(t *testing.T) {
	s, mr := newStore(t, func(o *redis.Options) {
		o.Prefix = "p:"
		o.LockTTL = 300 * time.Millisecond
	})
	ctx := context.Background()

	unlock, err := s.AcquireRunLock(ctx, "c1")
	require.NoError(t, err)

	mr.FastForward(200 * time.Millisecond)
	require.Eventually(t, func() bool {
		return mr.TTL("p:c1:lock") > 250*time.Millisecond
	}, 2*time.Second, 10*time.Millisecond)

	// Past the original TTL, the renewed lock still excludes a second run.
	mr.FastForward(200 * time.Millisecond)
	_, err = s.AcquireRunLock(ctx, "c1")
	assert.Equal(t, core.KindConcurrentRunConflict, core.KindOf(err))

	unlock()
	assert.False(t, mr.Exists("p:c1:lock"))

	unlock, err = s.AcquireRunLock(ctx, "c1")
	require.NoError(t, err)
	unlock()
}

func TestStore_Unavailable(t *testing.T) {
	s, mr := newStore(t)
	ctx := context.Background()
	require.NoError(t, s.Ping(ctx))

	mr.Close()

	_, err := s.Load(ctx, "c1")
	var unavailable *core.StateStoreUnavailable
	require.ErrorAs(t, err, &unavailable)
	assert.Equal(t, "load", unavailable.Op)

	err = s.AppendTurn(ctx, "c1", core.NewTurn(core.RoleUser, "", "x"))
	assert.Equal(t, core.KindStateStoreUnavailable, core.KindOf(err))

	_, err = s.AcquireRunLock(ctx, "c1")
	assert.Equal(t, core.KindStateStoreUnavailable, core.KindOf(err))
}

func TestStore_CorruptTurn(t *testing.T) {
	s, mr := newStore(t, func(o *redis.Options) { o.Prefix = "p:" })
	_, err := mr.Lpush("p:c1:turns", "{not json")
	require.NoError(t, err)

	_, err = s.Load(context.Background(), "c1")
	assert.Equal(t, core.KindStateStoreUnavailable, core.KindOf(err))
}
