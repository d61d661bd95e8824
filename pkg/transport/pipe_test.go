package transport

import (
	"context"
	"errors"
	"fmt"
	"io"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	mcperrors "github.com/ajitpratap0/mcp-engine/pkg/errors"
)

func TestPipeDeliversInOrder(t *testing.T) {
	a, b := NewPipe()
	defer a.Close()
	defer b.Close()
	ctx := context.Background()

	go func() {
		for i := 0; i < 100; i++ {
			_ = a.Send(ctx, []byte(fmt.Sprintf(`{"n":%d}`, i)))
		}
	}()

	for i := 0; i < 100; i++ {
		got, err := b.Receive(ctx)
		require.NoError(t, err)
		assert.Equal(t, fmt.Sprintf(`{"n":%d}`, i), string(got))
	}
}

func TestPipeIsBidirectional(t *testing.T) {
	a, b := NewPipe()
	ctx := context.Background()

	require.NoError(t, a.Send(ctx, []byte("ping")))
	require.NoError(t, b.Send(ctx, []byte("pong")))

	got, err := b.Receive(ctx)
	require.NoError(t, err)
	assert.Equal(t, "ping", string(got))

	got, err = a.Receive(ctx)
	require.NoError(t, err)
	assert.Equal(t, "pong", string(got))
}

func TestPipeCopiesOnSend(t *testing.T) {
	a, b := NewPipe()
	msg := []byte("original")
	require.NoError(t, a.Send(context.Background(), msg))
	copy(msg, "mutated!")

	got, err := b.Receive(context.Background())
	require.NoError(t, err)
	assert.Equal(t, "original", string(got))
}

func TestPipeCloseDrainsThenEOF(t *testing.T) {
	a, b := NewPipe()
	ctx := context.Background()

	require.NoError(t, a.Send(ctx, []byte("last words")))
	require.NoError(t, a.Close())

	got, err := b.Receive(ctx)
	require.NoError(t, err)
	assert.Equal(t, "last words", string(got))

	_, err = b.Receive(ctx)
	assert.True(t, errors.Is(err, io.EOF))

	err = b.Send(ctx, []byte("anyone?"))
	assert.True(t, mcperrors.IsCode(err, mcperrors.CodeTransportClosed))

	_, err = a.Receive(ctx)
	assert.True(t, errors.Is(err, io.EOF))
}

func TestPipeReceiveHonoursContext(t *testing.T) {
	a, b := NewPipe()
	defer a.Close()
	defer b.Close()

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Millisecond)
	defer cancel()
	_, err := b.Receive(ctx)
	assert.True(t, errors.Is(err, context.DeadlineExceeded))
}
