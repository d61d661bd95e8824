package inflight

import (
	"context"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ajitpratap0/mcp-engine/pkg/protocol"
)

func TestBeginFinish(t *testing.T) {
	m := NewManager()
	id := protocol.IntID(1)

	r, ctx, err := m.Begin(context.Background(), id, "tools/call")
	require.NoError(t, err)
	assert.Equal(t, Running, r.Status())
	assert.Equal(t, 1, m.Len())

	got, ok := FromContext(ctx)
	require.True(t, ok)
	assert.Same(t, r, got)

	_, _, err = m.Begin(context.Background(), id, "tools/call")
	assert.ErrorIs(t, err, ErrDuplicateID)

	require.NoError(t, m.Finish(id, Completed))
	assert.Equal(t, Completed, r.Status())
	assert.Equal(t, 0, m.Len())

	assert.ErrorIs(t, m.Finish(id, Completed), ErrAlreadyTerminal)
	assert.ErrorIs(t, m.Finish(id, Cancelled), ErrAlreadyTerminal)
	assert.Equal(t, Completed, r.Status())

	// The id may be reused once the first request is gone.
	_, _, err = m.Begin(context.Background(), id, "tools/call")
	assert.NoError(t, err)
}

func TestStringAndIntIDsAreDistinct(t *testing.T) {
	m := NewManager()
	_, _, err := m.Begin(context.Background(), protocol.IntID(7), "a")
	require.NoError(t, err)
	_, _, err = m.Begin(context.Background(), protocol.StringID("7"), "b")
	require.NoError(t, err)
	assert.Equal(t, 2, m.Len())
}

func TestRequestCancelIsCooperative(t *testing.T) {
	m := NewManager()
	id := protocol.StringID("abc")
	r, ctx, err := m.Begin(context.Background(), id, "tools/call")
	require.NoError(t, err)

	assert.False(t, CancellationRequested(ctx))
	assert.True(t, m.RequestCancel(id))
	assert.True(t, r.CancellationRequested())
	assert.True(t, CancellationRequested(ctx))
	assert.Error(t, ctx.Err())

	// Still running until the handler reports in.
	assert.Equal(t, Running, r.Status())
	assert.Equal(t, 1, m.Len())

	require.NoError(t, m.Finish(id, Cancelled))
	assert.Equal(t, Cancelled, r.Status())

	assert.False(t, m.RequestCancel(id))
}

func TestLateCompletionAfterCancel(t *testing.T) {
	m := NewManager()
	id := protocol.IntID(3)
	r, _, err := m.Begin(context.Background(), id, "slow")
	require.NoError(t, err)

	m.RequestCancel(id)
	require.NoError(t, m.Finish(id, Completed))
	assert.Equal(t, Completed, r.Status())
}

func TestAbandonAll(t *testing.T) {
	m := NewManager()
	var ctxs []context.Context
	for i := int64(1); i <= 3; i++ {
		_, ctx, err := m.Begin(context.Background(), protocol.IntID(i), "x")
		require.NoError(t, err)
		ctxs = append(ctxs, ctx)
	}

	assert.Equal(t, 3, m.AbandonAll())
	assert.Equal(t, 0, m.Len())
	for _, ctx := range ctxs {
		assert.Error(t, ctx.Err())
		r, _ := FromContext(ctx)
		assert.Equal(t, Abandoned, r.Status())
	}

	assert.ErrorIs(t, m.Finish(protocol.IntID(1), Completed), ErrAlreadyTerminal)
	_, _, err := m.Begin(context.Background(), protocol.IntID(9), "x")
	assert.ErrorIs(t, err, ErrClosed)
}

func TestDeadline(t *testing.T) {
	m := NewManager()
	m.Deadline = 20 * time.Millisecond

	_, ctx, err := m.Begin(context.Background(), protocol.IntID(1), "x")
	require.NoError(t, err)

	select {
	case <-ctx.Done():
		assert.ErrorIs(t, ctx.Err(), context.DeadlineExceeded)
	case <-time.After(time.Second):
		t.Fatal("deadline not applied")
	}
}

func TestSnapshot(t *testing.T) {
	m := NewManager()
	_, _, err := m.Begin(context.Background(), protocol.IntID(1), "first")
	require.NoError(t, err)
	time.Sleep(time.Millisecond)
	_, _, err = m.Begin(context.Background(), protocol.IntID(2), "second")
	require.NoError(t, err)
	m.RequestCancel(protocol.IntID(2))

	snap := m.Snapshot()
	require.Len(t, snap, 2)
	assert.Equal(t, "first", snap[0].Method)
	assert.True(t, snap[1].CancellationRequested)
}

func TestFinishRejectsNonTerminalStatus(t *testing.T) {
	m := NewManager()
	_, _, err := m.Begin(context.Background(), protocol.IntID(1), "x")
	require.NoError(t, err)
	assert.Error(t, m.Finish(protocol.IntID(1), Running))
	assert.Error(t, m.Finish(protocol.IntID(1), Abandoned))
	assert.Equal(t, 1, m.Len())
}

func TestConcurrentFinishHasOneWinner(t *testing.T) {
	m := NewManager()
	id := protocol.IntID(1)
	_, _, err := m.Begin(context.Background(), id, "x")
	require.NoError(t, err)

	var wins atomic.Int32
	var wg sync.WaitGroup
	for i := 0; i < 16; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			if m.Finish(id, Completed) == nil {
				wins.Add(1)
			}
		}()
	}
	wg.Wait()
	assert.Equal(t, int32(1), wins.Load())
}
