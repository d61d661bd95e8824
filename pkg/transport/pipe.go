package transport

import (
	"context"
	"io"
	"sync"

	mcperrors "github.com/ajitpratap0/mcp-engine/pkg/errors"
)

const pipeName = "pipe"

// pipeBuffer is the number of frames a pipe end queues before Send blocks.
const pipeBuffer = 64

type pipeState struct {
	closed chan struct{}
	once   sync.Once
}

func (s *pipeState) close() {
	s.once.Do(func() { close(s.closed) })
}

type pipeEnd struct {
	recv   <-chan []byte
	send   chan<- []byte
	local  *pipeState
	remote *pipeState
}

// NewPipe returns two connected in-memory transports. A message sent on one
// is received on the other. Closing either end makes the other end's
// Receive return io.EOF after draining what was already sent.
func NewPipe() (Transport, Transport) {
	ab := make(chan []byte, pipeBuffer)
	ba := make(chan []byte, pipeBuffer)
	a := &pipeState{closed: make(chan struct{})}
	b := &pipeState{closed: make(chan struct{})}

	return &pipeEnd{recv: ba, send: ab, local: a, remote: b},
		&pipeEnd{recv: ab, send: ba, local: b, remote: a}
}

func (p *pipeEnd) Send(ctx context.Context, msg []byte) error {
	select {
	case <-p.local.closed:
		return mcperrors.TransportClosed(pipeName)
	case <-p.remote.closed:
		return mcperrors.TransportClosed(pipeName)
	default:
	}

	data := make([]byte, len(msg))
	copy(data, msg)

	select {
	case p.send <- data:
		return nil
	case <-p.local.closed:
		return mcperrors.TransportClosed(pipeName)
	case <-p.remote.closed:
		return mcperrors.TransportClosed(pipeName)
	case <-ctx.Done():
		return ctx.Err()
	}
}

func (p *pipeEnd) Receive(ctx context.Context) ([]byte, error) {
	select {
	case data := <-p.recv:
		return data, nil
	case <-p.local.closed:
		return nil, io.EOF
	case <-p.remote.closed:
		select {
		case data := <-p.recv:
			return data, nil
		default:
			return nil, io.EOF
		}
	case <-ctx.Done():
		return nil, ctx.Err()
	}
}

func (p *pipeEnd) Close() error {
	p.local.close()
	return nil
}
