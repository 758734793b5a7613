// Package storetest provides a behavioral test suite shared by every
// core.ConversationStore implementation.
package storetest

import (
	"context"
	"fmt"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/hupe1980/agentgraph/core"
)

// Run exercises the ConversationStore contract against stores created by newStore.
func Run(t *testing.T, newStore func(t *testing.T) core.ConversationStore) {
	t.Helper()

	t.Run("load creates empty conversation", func(t *testing.T) {
		s := newStore(t)
		conv, err := s.Load(context.Background(), "c1")
		require.NoError(t, err)
		assert.Equal(t, "c1", conv.ID)
		assert.Empty(t, conv.Turns)
		assert.Empty(t, conv.Scratchpad)
	})

	t.Run("turns are appended in order", func(t *testing.T) {
		s := newStore(t)
		ctx := context.Background()
		require.NoError(t, s.AppendTurn(ctx, "c1", core.NewTurn(core.RoleUser, "", "hello")))
		require.NoError(t, s.AppendTurn(ctx, "c1", core.NewTurn(core.RoleAgent, "supervisor", "hi")))
		tool := core.NewToolSuccess(core.ToolCall{ID: "t1", Name: "calculator"}, 4).Turn("research")
		require.NoError(t, s.AppendTurn(ctx, "c1", tool))

		conv, err := s.Load(ctx, "c1")
		require.NoError(t, err)
		require.Len(t, conv.Turns, 3)
		assert.Equal(t, "hello", conv.Turns[0].Content)
		assert.Equal(t, core.RoleAgent, conv.Turns[1].Role)
		assert.Equal(t, "supervisor", conv.Turns[1].Node)
		assert.Equal(t, "research", conv.Turns[2].Node)
		assert.JSONEq(t, string(tool.Payload), string(conv.Turns[2].Payload))
	})

	t.Run("snapshots are isolated", func(t *testing.T) {
		s := newStore(t)
		ctx := context.Background()
		require.NoError(t, s.AppendTurn(ctx, "c1", core.NewTurn(core.RoleUser, "", "hello")))

		conv, err := s.Load(ctx, "c1")
		require.NoError(t, err)
		conv.Append(core.NewTurn(core.RoleUser, "", "local only"))
		conv.SetScratch("k", "v")

		again, err := s.Load(ctx, "c1")
		require.NoError(t, err)
		assert.Len(t, again.Turns, 1)
		assert.Empty(t, again.Scratchpad)
	})

	t.Run("scratch overwrites", func(t *testing.T) {
		s := newStore(t)
		ctx := context.Background()
		require.NoError(t, s.PutScratch(ctx, "c1", "research_data", "v1"))
		require.NoError(t, s.PutScratch(ctx, "c1", "research_data", "v2"))
		require.NoError(t, s.PutScratch(ctx, "c1", "other", "x"))

		conv, err := s.Load(ctx, "c1")
		require.NoError(t, err)
		assert.Equal(t, map[string]string{"research_data": "v2", "other": "x"}, conv.Scratchpad)
	})

	t.Run("conversations are independent", func(t *testing.T) {
		s := newStore(t)
		ctx := context.Background()
		require.NoError(t, s.AppendTurn(ctx, "a", core.NewTurn(core.RoleUser, "", "for a")))

		b, err := s.Load(ctx, "b")
		require.NoError(t, err)
		assert.Empty(t, b.Turns)
	})

	t.Run("run lock is exclusive", func(t *testing.T) {
		s := newStore(t)
		ctx := context.Background()

		unlock, err := s.AcquireRunLock(ctx, "c1")
		require.NoError(t, err)

		_, err = s.AcquireRunLock(ctx, "c1")
		var conflict *core.ConcurrentRunConflict
		require.ErrorAs(t, err, &conflict)
		assert.Equal(t, "c1", conflict.ConversationID)

		other, err := s.AcquireRunLock(ctx, "c2")
		require.NoError(t, err)
		other()

		unlock()
		unlock() // idempotent

		again, err := s.AcquireRunLock(ctx, "c1")
		require.NoError(t, err)
		again()
	})

	t.Run("stale unlock keeps newer lock", func(t *testing.T) {
		s := newStore(t)
		ctx := context.Background()

		first, err := s.AcquireRunLock(ctx, "c1")
		require.NoError(t, err)
		first()

		second, err := s.AcquireRunLock(ctx, "c1")
		require.NoError(t, err)
		defer second()

		first()
		_, err = s.AcquireRunLock(ctx, "c1")
		assert.Equal(t, core.KindConcurrentRunConflict, core.KindOf(err))
	})

	t.Run("only one concurrent acquirer wins", func(t *testing.T) {
		s := newStore(t)
		ctx := context.Background()

		var (
			wg   sync.WaitGroup
			mu   sync.Mutex
			wins int
		)
		for range 8 {
			wg.Add(1)
			go func() {
				defer wg.Done()
				if _, err := s.AcquireRunLock(ctx, "c1"); err == nil {
					mu.Lock()
					wins++
					mu.Unlock()
				}
			}()
		}
		wg.Wait()
		assert.Equal(t, 1, wins)
	})

	t.Run("concurrent appends are not lost", func(t *testing.T) {
		s := newStore(t)
		ctx := context.Background()

		var wg sync.WaitGroup
		for i := range 20 {
			wg.Add(1)
			go func() {
				defer wg.Done()
				assert.NoError(t, s.AppendTurn(ctx, "c1", core.NewTurn(core.RoleUser, "", fmt.Sprintf("m%d", i))))
			}()
		}
		wg.Wait()

		conv, err := s.Load(ctx, "c1")
		require.NoError(t, err)
		assert.Len(t, conv.Turns, 20)
	})

	t.Run("delete removes conversation", func(t *testing.T) {
		s := newStore(t)
		ctx := context.Background()
		require.NoError(t, s.AppendTurn(ctx, "c1", core.NewTurn(core.RoleUser, "", "hello")))
		require.NoError(t, s.PutScratch(ctx, "c1", "k", "v"))

		require.NoError(t, s.Delete(ctx, "c1"))
		require.NoError(t, s.Delete(ctx, "never-existed"))

		conv, err := s.Load(ctx, "c1")
		require.NoError(t, err)
		assert.Empty(t, conv.Turns)
		assert.Empty(t, conv.Scratchpad)
	})
}
