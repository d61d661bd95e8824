package transport

import (
	"bufio"
	"bytes"
	"context"
	"errors"
	"io"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	mcperrors "github.com/ajitpratap0/mcp-engine/pkg/errors"
)

func stdioConfig(r io.Reader, w io.Writer) TransportConfig {
	config := DefaultTransportConfig(TransportTypeStdio)
	config.StdioReader = r
	config.StdioWriter = w
	return config
}

func TestStdioTransport_ReceiveLines(t *testing.T) {
	input := "{\"a\":1}\n\n   \n{\"b\":2}\r\n{\"c\":3}"
	tr := NewStdioTransport(stdioConfig(strings.NewReader(input), io.Discard))
	defer tr.Close()

	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()

	for _, want := range []string{`{"a":1}`, `{"b":2}`, `{"c":3}`} {
		got, err := tr.Receive(ctx)
		require.NoError(t, err)
		assert.Equal(t, want, string(got))
	}

	_, err := tr.Receive(ctx)
	assert.True(t, errors.Is(err, io.EOF), "expected EOF after input ends, got %v", err)
}

func TestStdioTransport_SendWritesFrames(t *testing.T) {
	var out bytes.Buffer
	tr := NewStdioTransport(stdioConfig(strings.NewReader(""), &out))

	require.NoError(t, tr.Send(context.Background(), []byte(`{"id":1}`)))
	require.NoError(t, tr.Send(context.Background(), []byte(`{"id":2}`)))
	require.NoError(t, tr.Close())

	assert.Equal(t, "{\"id\":1}\n{\"id\":2}\n", out.String())
}

func TestStdioTransport_SendRejectsNewline(t *testing.T) {
	tr := NewStdioTransport(stdioConfig(strings.NewReader(""), io.Discard))
	defer tr.Close()

	err := tr.Send(context.Background(), []byte("{\n}"))
	require.Error(t, err)
	assert.True(t, mcperrors.IsCode(err, mcperrors.CodeInvalidRequest))
}

func TestStdioTransport_SendAfterClose(t *testing.T) {
	tr := NewStdioTransport(stdioConfig(strings.NewReader(""), io.Discard))
	require.NoError(t, tr.Close())
	require.NoError(t, tr.Close(), "Close must be idempotent")

	err := tr.Send(context.Background(), []byte(`{}`))
	assert.True(t, mcperrors.IsCode(err, mcperrors.CodeTransportClosed), "got %v", err)
}

func TestStdioTransport_MaxMessageSize(t *testing.T) {
	config := stdioConfig(strings.NewReader(strings.Repeat("x", 2048)+"\n"), io.Discard)
	config.MaxMessageSize = 1024
	config.ReadBufferSize = 256
	tr := NewStdioTransport(config)
	defer tr.Close()

	_, err := tr.Receive(context.Background())
	assert.True(t, mcperrors.IsCode(err, mcperrors.CodeMessageTooLarge), "got %v", err)

	err = tr.Send(context.Background(), bytes.Repeat([]byte("y"), 2048))
	assert.True(t, mcperrors.IsCode(err, mcperrors.CodeMessageTooLarge), "got %v", err)
}

type failingWriter struct{}

func (failingWriter) Write(p []byte) (int, error) { return 0, errors.New("broken pipe") }

func TestStdioTransport_WriteFailure(t *testing.T) {
	tr := NewStdioTransport(stdioConfig(strings.NewReader(""), failingWriter{}))
	defer tr.Close()

	err := tr.Send(context.Background(), []byte(`{}`))
	require.Error(t, err)
	assert.True(t, mcperrors.IsCode(err, mcperrors.CodeTransportError))
}

func TestStdioTransport_ConcurrentSendKeepsFramesWhole(t *testing.T) {
	outR, outW := io.Pipe()
	tr := NewStdioTransport(stdioConfig(strings.NewReader(""), outW))

	const senders, perSender = 8, 25
	lines := make(chan string, senders*perSender)
	readDone := make(chan struct{})
	go func() {
		defer close(readDone)
		scanner := bufio.NewScanner(outR)
		for scanner.Scan() {
			lines <- scanner.Text()
		}
	}()

	var wg sync.WaitGroup
	for i := 0; i < senders; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for j := 0; j < perSender; j++ {
				if err := tr.Send(context.Background(), []byte(`{"jsonrpc":"2.0","method":"tick"}`)); err != nil {
					t.Errorf("Send failed: %v", err)
					return
				}
			}
		}()
	}
	wg.Wait()
	require.NoError(t, tr.Close())
	<-readDone
	close(lines)

	count := 0
	for line := range lines {
		count++
		if line != `{"jsonrpc":"2.0","method":"tick"}` {
			t.Errorf("Interleaved frame: %q", line)
		}
	}
	assert.Equal(t, senders*perSender, count)
}

func TestStdioTransport_CloseUnblocksReceive(t *testing.T) {
	inR, inW := io.Pipe()
	defer inW.Close()
	tr := NewStdioTransport(stdioConfig(inR, io.Discard))

	errs := make(chan error, 1)
	go func() {
		_, err := tr.Receive(context.Background())
		errs <- err
	}()

	time.Sleep(20 * time.Millisecond)
	require.NoError(t, tr.Close())

	select {
	case err := <-errs:
		assert.True(t, errors.Is(err, io.EOF), "got %v", err)
	case <-time.After(time.Second):
		t.Fatal("Receive did not return after Close")
	}
}

func TestStdioTransport_ReceiveHonoursContext(t *testing.T) {
	inR, inW := io.Pipe()
	defer inW.Close()
	tr := NewStdioTransport(stdioConfig(inR, io.Discard))
	defer tr.Close()

	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()

	_, err := tr.Receive(ctx)
	assert.True(t, errors.Is(err, context.DeadlineExceeded))
}
