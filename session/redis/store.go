// Package redis implements core.ConversationStore on Redis.
//
// Each conversation uses four keys under the configured prefix:
//
//	<prefix><id>:turns    list of JSON encoded turns (RPUSH keeps append order)
//	<prefix><id>:scratch  hash of scratchpad values
//	<prefix><id>:meta     hash with created/updated timestamps
//	<prefix><id>:lock     run lock token (SET NX PX)
//
// Every Redis failure is reported as *core.StateStoreUnavailable.
package redis

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sync"
	"time"

	backend "github.com/redis/go-redis/v9"

	"github.com/hupe1980/agentgraph/core"
)

const defaultPrefix = "agentgraph:conv:"

// releaseScript deletes the lock only when it still holds our token.
var releaseScript = backend.NewScript(`
if redis.call("get", KEYS[1]) == ARGV[1] then
	return redis.call("del", KEYS[1])
end
return 0
`)

// renewScript extends the lock TTL only while it still holds our token.
var renewScript = backend.NewScript(`
if redis.call("get", KEYS[1]) == ARGV[1] then
	return redis.call("pexpire", KEYS[1], ARGV[2])
end
return 0
`)

// Options configures a Store.
type Options struct {
	// Prefix namespaces all keys.
	Prefix string
	// TTL expires idle conversations. Zero keeps them forever.
	TTL time.Duration
	// LockTTL bounds how long a crashed run can hold a conversation. A live
	// holder renews the lock every LockTTL/3 until it unlocks.
	LockTTL time.Duration
}

// Store is a ConversationStore backed by Redis.
type Store struct {
	client backend.UniversalClient
	opts   Options
}

var _ core.ConversationStore = (*Store)(nil)

// New connects to the Redis server at addr.
func New(addr, password string, db int, optFns ...func(o *Options)) *Store {
	return NewFromClient(backend.NewClient(&backend.Options{
		Addr:     addr,
		Password: password,
		DB:       db,
	}), optFns...)
}

// NewFromClient creates a store using an existing client.
func NewFromClient(client backend.UniversalClient, optFns ...func(o *Options)) *Store {
	opts := Options{
		Prefix:  defaultPrefix,
		LockTTL: 10 * time.Minute,
	}
	for _, fn := range optFns {
		fn(&opts)
	}
	return &Store{client: client, opts: opts}
}

func (s *Store) key(id, suffix string) string { return s.opts.Prefix + id + ":" + suffix }

// Load returns a snapshot of the conversation, creating it when unknown.
func (s *Store) Load(ctx context.Context, conversationID string) (*core.ConversationState, error) {
	now := time.Now().UTC().Format(time.RFC3339Nano)
	metaKey := s.key(conversationID, "meta")

	pipe := s.client.TxPipeline()
	pipe.HSetNX(ctx, metaKey, "created", now)
	pipe.HSetNX(ctx, metaKey, "updated", now)
	s.touch(ctx, pipe, conversationID)
	turnsCmd := pipe.LRange(ctx, s.key(conversationID, "turns"), 0, -1)
	scratchCmd := pipe.HGetAll(ctx, s.key(conversationID, "scratch"))
	metaCmd := pipe.HGetAll(ctx, metaKey)
	if _, err := pipe.Exec(ctx); err != nil {
		return nil, unavailable("load", err)
	}

	conv := core.NewConversationState(conversationID)
	for i, raw := range turnsCmd.Val() {
		var t core.Turn
		if err := json.Unmarshal([]byte(raw), &t); err != nil {
			return nil, unavailable("load", fmt.Errorf("decode turn %d: %w", i, err))
		}
		conv.Turns = append(conv.Turns, t)
	}
	for k, v := range scratchCmd.Val() {
		conv.Scratchpad[k] = v
	}

	meta := metaCmd.Val()
	if ts, err := time.Parse(time.RFC3339Nano, meta["created"]); err == nil {
		conv.Created = ts
	}
	if ts, err := time.Parse(time.RFC3339Nano, meta["updated"]); err == nil {
		conv.Updated = ts
	}
	return conv, nil
}

// AppendTurn appends a turn atomically with its metadata update.
func (s *Store) AppendTurn(ctx context.Context, conversationID string, turn core.Turn) error {
	data, err := json.Marshal(turn)
	if err != nil {
		return fmt.Errorf("encode turn: %w", err)
	}

	pipe := s.client.TxPipeline()
	pipe.RPush(ctx, s.key(conversationID, "turns"), data)
	s.stamp(ctx, pipe, conversationID)
	s.touch(ctx, pipe, conversationID)
	if _, err := pipe.Exec(ctx); err != nil {
		return unavailable("append_turn", err)
	}
	return nil
}

// PutScratch writes a scratchpad value.
func (s *Store) PutScratch(ctx context.Context, conversationID, key, value string) error {
	pipe := s.client.TxPipeline()
	pipe.HSet(ctx, s.key(conversationID, "scratch"), key, value)
	s.stamp(ctx, pipe, conversationID)
	s.touch(ctx, pipe, conversationID)
	if _, err := pipe.Exec(ctx); err != nil {
		return unavailable("put_scratch", err)
	}
	return nil
}

// AcquireRunLock takes the conversation's run lock with SET NX PX. It never
// waits for a held lock.
func (s *Store) AcquireRunLock(ctx context.Context, conversationID string) (core.UnlockFunc, error) {
	lockKey := s.key(conversationID, "lock")
	token := core.NewID()

	ok, err := s.client.SetNX(ctx, lockKey, token, s.opts.LockTTL).Result()
	if err != nil {
		return nil, unavailable("acquire_run_lock", err)
	}
	if !ok {
		return nil, &core.ConcurrentRunConflict{ConversationID: conversationID}
	}

	stop := s.keepAlive(lockKey, token)

	var once sync.Once
	return func() {
		once.Do(func() {
			stop()
			releaseCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
			defer cancel()
			// A failed release is recovered by the lock TTL.
			_ = releaseScript.Run(releaseCtx, s.client, []string{lockKey}, token).Err()
		})
	}, nil
}

// keepAlive renews the lock until the returned stop func is called or the
// token no longer owns the key. stop waits for the renewing goroutine.
func (s *Store) keepAlive(lockKey, token string) func() {
	if s.opts.LockTTL <= 0 {
		return func() {}
	}
	interval := s.opts.LockTTL / 3
	if interval <= 0 {
		interval = s.opts.LockTTL
	}

	ctx, cancel := context.WithCancel(context.Background())
	stopped := make(chan struct{})
	go func() {
		defer close(stopped)
		ticker := time.NewTicker(interval)
		defer ticker.Stop()
		for {
			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
				renewed, err := renewScript.Run(ctx, s.client, []string{lockKey}, token, s.opts.LockTTL.Milliseconds()).Int()
				if err == nil && renewed == 0 {
					return // lost the lock
				}
			}
		}
	}()

	return func() {
		cancel()
		<-stopped
	}
}

// Delete removes every key of the conversation except a held run lock.
func (s *Store) Delete(ctx context.Context, conversationID string) error {
	err := s.client.Del(ctx,
		s.key(conversationID, "turns"),
		s.key(conversationID, "scratch"),
		s.key(conversationID, "meta"),
	).Err()
	if err != nil {
		return unavailable("delete", err)
	}
	return nil
}

// Ping reports whether the server is reachable.
func (s *Store) Ping(ctx context.Context) error {
	if err := s.client.Ping(ctx).Err(); err != nil {
		return unavailable("ping", err)
	}
	return nil
}

// Close closes the underlying client.
func (s *Store) Close() error {
	return s.client.Close()
}

func (s *Store) stamp(ctx context.Context, pipe backend.Pipeliner, id string) {
	now := time.Now().UTC().Format(time.RFC3339Nano)
	metaKey := s.key(id, "meta")
	pipe.HSetNX(ctx, metaKey, "created", now)
	pipe.HSet(ctx, metaKey, "updated", now)
}

func (s *Store) touch(ctx context.Context, pipe backend.Pipeliner, id string) {
	if s.opts.TTL <= 0 {
		return
	}
	for _, suffix := range []string{"turns", "scratch", "meta"} {
		pipe.Expire(ctx, s.key(id, suffix), s.opts.TTL)
	}
}

func unavailable(op string, err error) error {
	var already *core.StateStoreUnavailable
	if errors.As(err, &already) {
		return err
	}
	return &core.StateStoreUnavailable{Op: op, Err: err}
}
