package engine

import (
	"context"

	"github.com/ajitpratap0/mcp-engine/pkg/protocol"
)

// HandlerFunc handles one request and returns its result. A returned
// MCPError becomes the error response; any other error is reported to the
// peer as InternalError.
type HandlerFunc func(ctx context.Context, req *protocol.Request) (interface{}, error)

// Middleware wraps request handling.
type Middleware func(next HandlerFunc) HandlerFunc

// Chain composes middleware. The first one is outermost.
func Chain(middleware ...Middleware) Middleware {
	return func(next HandlerFunc) HandlerFunc {
		for i := len(middleware) - 1; i >= 0; i-- {
			next = middleware[i](next)
		}
		return next
	}
}

type connKey struct{}

// FromContext returns the Conn serving the request handled under ctx. Tool
// handlers use it to send notifications to the peer.
func FromContext(ctx context.Context) (*Conn, bool) {
	c, ok := ctx.Value(connKey{}).(*Conn)
	return c, ok
}
