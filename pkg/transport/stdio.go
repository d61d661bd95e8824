package transport

import (
	"bufio"
	"bytes"
	"context"
	"errors"
	"io"
	"os"
	"sync"

	"golang.org/x/sync/errgroup"

	mcperrors "github.com/ajitpratap0/mcp-engine/pkg/errors"
	"github.com/ajitpratap0/mcp-engine/pkg/logging"
)

const stdioName = "stdio"

// StdioTransport frames messages as newline-delimited lines over a reader and
// a writer, by default the process's stdin and stdout. A message must not
// contain a raw newline; compact JSON never does.
type StdioTransport struct {
	reader  io.Reader
	writer  io.Writer
	buf     *bufio.Writer
	maxSize int
	logger  logging.Logger

	incoming chan []byte
	readErr  error // written before incoming is closed

	mutex     sync.Mutex // serializes writes
	done      chan struct{}
	closeOnce sync.Once
	group     *errgroup.Group
}

// NewStdioTransport creates a stdio transport and starts its reader.
func NewStdioTransport(config TransportConfig) *StdioTransport {
	config = config.withDefaults()

	reader := config.StdioReader
	writer := config.StdioWriter
	if reader == nil {
		reader = os.Stdin
	}
	if writer == nil {
		writer = os.Stdout
	}

	t := &StdioTransport{
		reader:   reader,
		writer:   writer,
		buf:      bufio.NewWriter(writer),
		maxSize:  config.MaxMessageSize,
		logger:   config.Logger.WithFields(logging.Component("StdioTransport")),
		incoming: make(chan []byte, 16),
		done:     make(chan struct{}),
		group:    &errgroup.Group{},
	}
	t.start(config.ReadBufferSize)
	return t
}

func (t *StdioTransport) start(bufSize int) {
	scannerDone := make(chan struct{})

	t.group.Go(func() error {
		defer close(t.incoming)
		defer close(scannerDone)

		scanner := bufio.NewScanner(t.reader)
		scanner.Buffer(make([]byte, 0, bufSize), t.maxSize)

		for scanner.Scan() {
			line := bytes.TrimSpace(scanner.Bytes())
			if len(line) == 0 {
				continue
			}

			// The scanner reuses its buffer on the next Scan.
			data := make([]byte, len(line))
			copy(data, line)

			select {
			case t.incoming <- data:
			case <-t.done:
				return nil
			}
		}

		if err := scanner.Err(); err != nil {
			if errors.Is(err, bufio.ErrTooLong) {
				t.readErr = mcperrors.MessageTooLarge(stdioName, t.maxSize+1, t.maxSize)
			} else if !isClosedPipe(err) {
				t.readErr = mcperrors.TransportError(stdioName, "read", err)
			}
		}
		return t.readErr
	})

	// Closing the reader is the only way to unblock a pending Scan.
	t.group.Go(func() error {
		select {
		case <-t.done:
			if closer, ok := closableStream(t.reader); ok {
				_ = closer.Close()
			}
		case <-scannerDone:
		}
		return nil
	})
}

// Receive returns the next line read from the input stream.
func (t *StdioTransport) Receive(ctx context.Context) ([]byte, error) {
	select {
	case data, ok := <-t.incoming:
		if !ok {
			if t.readErr != nil {
				return nil, t.readErr
			}
			return nil, io.EOF
		}
		return data, nil
	case <-t.done:
		return nil, io.EOF
	case <-ctx.Done():
		return nil, ctx.Err()
	}
}

// Send writes msg followed by a newline and flushes.
func (t *StdioTransport) Send(ctx context.Context, msg []byte) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	if bytes.IndexByte(msg, '\n') >= 0 {
		return mcperrors.InvalidRequest("message contains a raw newline")
	}
	if len(msg) > t.maxSize {
		return mcperrors.MessageTooLarge(stdioName, len(msg), t.maxSize)
	}

	t.mutex.Lock()
	defer t.mutex.Unlock()

	select {
	case <-t.done:
		return mcperrors.TransportClosed(stdioName)
	default:
	}

	if _, err := t.buf.Write(msg); err != nil {
		return mcperrors.TransportError(stdioName, "write", err)
	}
	if err := t.buf.WriteByte('\n'); err != nil {
		return mcperrors.TransportError(stdioName, "write", err)
	}
	if err := t.buf.Flush(); err != nil {
		return mcperrors.TransportError(stdioName, "flush", err)
	}
	return nil
}

// Close stops the reader and closes the output stream so the peer sees end
// of input. The process's own stdin and stdout are left open.
func (t *StdioTransport) Close() error {
	var err error
	t.closeOnce.Do(func() {
		close(t.done)

		t.mutex.Lock()
		if flushErr := t.buf.Flush(); flushErr != nil && !isClosedPipe(flushErr) {
			err = mcperrors.TransportError(stdioName, "flush", flushErr)
		}
		if closer, ok := closableStream(t.writer); ok {
			_ = closer.Close()
		}
		t.mutex.Unlock()

		// A reader that cannot be closed may still block in Scan; do not
		// wait for it.
		if _, ok := closableStream(t.reader); ok {
			if waitErr := t.group.Wait(); waitErr != nil {
				t.logger.Debug("stdio reader stopped", logging.ErrorField(waitErr))
			}
		}
	})
	return err
}

func closableStream(v interface{}) (io.Closer, bool) {
	if f, ok := v.(*os.File); ok && (f == os.Stdin || f == os.Stdout || f == os.Stderr) {
		return nil, false
	}
	c, ok := v.(io.Closer)
	return c, ok
}

func isClosedPipe(err error) bool {
	return errors.Is(err, io.ErrClosedPipe) || errors.Is(err, os.ErrClosed)
}
