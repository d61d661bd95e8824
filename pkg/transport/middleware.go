package transport

import (
	"context"
	"errors"
	"io"

	"github.com/ajitpratap0/mcp-engine/pkg/logging"
)

// Middleware represents a transport middleware that can wrap a transport
// to add functionality such as logging or retries.
type Middleware interface {
	// Wrap wraps the given transport with middleware functionality
	Wrap(transport Transport) Transport
}

// MiddlewareFunc is an adapter to allow the use of ordinary functions as middleware
type MiddlewareFunc func(Transport) Transport

// Wrap implements the Middleware interface
func (f MiddlewareFunc) Wrap(t Transport) Transport {
	return f(t)
}

// ChainMiddleware chains multiple middleware together. The first middleware
// is the outermost.
func ChainMiddleware(middleware ...Middleware) Middleware {
	return MiddlewareFunc(func(transport Transport) Transport {
		for i := len(middleware) - 1; i >= 0; i-- {
			transport = middleware[i].Wrap(transport)
		}
		return transport
	})
}

// middlewareTransport delegates every call to next.
type middlewareTransport struct {
	next Transport
}

func (m *middlewareTransport) Send(ctx context.Context, msg []byte) error {
	return m.next.Send(ctx, msg)
}

func (m *middlewareTransport) Receive(ctx context.Context) ([]byte, error) {
	return m.next.Receive(ctx)
}

func (m *middlewareTransport) Close() error {
	return m.next.Close()
}

// NewLoggingMiddleware logs every frame at debug level and every failure at
// warn level.
func NewLoggingMiddleware(logger logging.Logger) Middleware {
	logger = logger.WithFields(logging.Component("transport"))
	return MiddlewareFunc(func(next Transport) Transport {
		return &loggingTransport{
			middlewareTransport: middlewareTransport{next: next},
			logger:              logger,
		}
	})
}

type loggingTransport struct {
	middlewareTransport
	logger logging.Logger
}

func (lt *loggingTransport) Send(ctx context.Context, msg []byte) error {
	err := lt.next.Send(ctx, msg)
	if err != nil {
		lt.logger.WithError(err).Warn("send failed", logging.Int("bytes", len(msg)))
		return err
	}
	lt.logger.Debug("frame sent", logging.Int("bytes", len(msg)))
	return nil
}

func (lt *loggingTransport) Receive(ctx context.Context) ([]byte, error) {
	data, err := lt.next.Receive(ctx)
	switch {
	case err == nil:
		lt.logger.Debug("frame received", logging.Int("bytes", len(data)))
	case errors.Is(err, io.EOF), errors.Is(err, context.Canceled):
		lt.logger.Debug("receive ended", logging.ErrorField(err))
	default:
		lt.logger.WithError(err).Warn("receive failed")
	}
	return data, err
}
