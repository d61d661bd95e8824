package engine

import (
	"context"
	"errors"
	"io"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
	"golang.org/x/sync/errgroup"

	mcperrors "github.com/ajitpratap0/mcp-engine/pkg/errors"
	"github.com/ajitpratap0/mcp-engine/pkg/inflight"
	"github.com/ajitpratap0/mcp-engine/pkg/logging"
	"github.com/ajitpratap0/mcp-engine/pkg/pagination"
	"github.com/ajitpratap0/mcp-engine/pkg/protocol"
	"github.com/ajitpratap0/mcp-engine/pkg/registry"
	"github.com/ajitpratap0/mcp-engine/pkg/session"
	"github.com/ajitpratap0/mcp-engine/pkg/transport"
)

// Role selects which side of the handshake a Conn plays.
type Role int

const (
	// RoleServer answers initialize and serves the registry.
	RoleServer Role = iota
	// RoleClient sends initialize and consumes a server.
	RoleClient
)

func (r Role) String() string {
	if r == RoleClient {
		return "client"
	}
	return "server"
}

// Options configures a Conn.
type Options struct {
	Role      Role
	SessionID string
	Session   session.Config

	// Registry is required for RoleServer. It may be shared between Conns.
	Registry *registry.Registry

	Logger     logging.Logger
	Middleware []Middleware

	// RequestTimeout, when positive, bounds every handler's context.
	RequestTimeout time.Duration

	// PageSize is the page length of the list methods.
	PageSize int

	// OnListChanged is called on the read loop when a server announces a
	// list change. Client role only.
	OnListChanged func(category protocol.CapabilityType)
}

// Conn runs the protocol over one transport connection.
type Conn struct {
	transport transport.Transport
	opts      Options
	logger    logging.Logger

	session  *session.Session
	inflight *inflight.Manager
	routes   map[string]route
	handler  HandlerFunc

	sendMu sync.Mutex

	pendingMu sync.Mutex
	pending   map[protocol.ID]chan *protocol.Response

	handlers sync.WaitGroup
	serving  atomic.Bool
	ready    chan struct{}
	readyOne sync.Once
	done     chan struct{}
	doneOnce sync.Once
}

// New creates a Conn. Serve must be called to start reading.
func New(t transport.Transport, opts Options) *Conn {
	if opts.Logger == nil {
		opts.Logger = logging.New(nil, nil)
	}
	if opts.PageSize <= 0 {
		opts.PageSize = pagination.DefaultLimit
	}
	if opts.SessionID == "" {
		opts.SessionID = uuid.New().String()
	}
	if opts.Registry == nil && opts.Role == RoleServer {
		opts.Registry = registry.New()
	}

	c := &Conn{
		transport: t,
		opts:      opts,
		logger: opts.Logger.WithFields(
			logging.Component("engine"),
			logging.Session(opts.SessionID),
			logging.String("role", opts.Role.String()),
		),
		session:  session.New(opts.SessionID, opts.Session),
		inflight: inflight.NewManager(),
		pending:  make(map[protocol.ID]chan *protocol.Response),
		ready:    make(chan struct{}),
		done:     make(chan struct{}),
	}
	c.inflight.Deadline = opts.RequestTimeout

	if opts.Role == RoleServer {
		c.routes = c.serverRoutes()
	} else {
		c.routes = c.clientRoutes()
	}
	c.handler = Chain(opts.Middleware...)(c.dispatch)
	return c
}

// Session returns the connection's session.
func (c *Conn) Session() *session.Session { return c.session }

// InFlight returns the connection's in-flight request manager.
func (c *Conn) InFlight() *inflight.Manager { return c.inflight }

// Done is closed when the read loop has stopped.
func (c *Conn) Done() <-chan struct{} { return c.done }

// Serve reads and dispatches messages until the transport reports end of
// stream, ctx is cancelled or Close is called. Requests are handled on their
// own goroutines; Serve waits for them before returning and then closes the
// transport. A clean end of stream returns nil.
func (c *Conn) Serve(ctx context.Context) error {
	if !c.serving.CompareAndSwap(false, true) {
		return errors.New("engine: Serve called more than once")
	}

	g, gctx := errgroup.WithContext(ctx)
	if c.opts.Role == RoleServer {
		// Subscribed before the first read so no mutation after the
		// handshake is missed.
		sub := c.opts.Registry.Subscribe()
		g.Go(func() error {
			defer sub.Close()
			c.watchRegistry(gctx, sub)
			return nil
		})
	}
	g.Go(func() error {
		return c.readLoop(gctx)
	})

	err := g.Wait()
	c.handlers.Wait()
	_ = c.transport.Close()
	return err
}

// Close ends the connection. Serve returns once in-flight handlers finish.
func (c *Conn) Close() error {
	err := c.transport.Close()
	if !c.serving.Load() {
		c.teardown()
	}
	return err
}

func (c *Conn) readLoop(ctx context.Context) error {
	defer c.teardown()

	for {
		data, err := c.transport.Receive(ctx)
		if err != nil {
			if errors.Is(err, io.EOF) || mcperrors.IsCode(err, mcperrors.CodeTransportClosed) {
				c.logger.Debug("transport closed")
				return nil
			}
			if ctx.Err() != nil {
				return ctx.Err()
			}
			c.logger.WithError(err).Error("receive failed")
			return err
		}

		msg, err := protocol.Decode(data)
		if err != nil {
			c.handleDecodeError(ctx, err)
			continue
		}

		switch m := msg.(type) {
		case *protocol.Request:
			resp, run := c.admit(ctx, m)
			if resp != nil {
				c.sendResponse(ctx, resp)
			}
			if run != nil {
				c.handlers.Add(1)
				go func() {
					defer c.handlers.Done()
					if resp := run(); resp != nil {
						c.sendResponse(ctx, resp)
					}
				}()
			}
		case *protocol.Response:
			c.handleResponse(m)
		case *protocol.Notification:
			c.handleNotification(ctx, m)
		}
	}
}

// handleDecodeError answers an invalid envelope whose id was readable. Parse
// failures and id-less envelopes cannot be answered and are only logged.
func (c *Conn) handleDecodeError(ctx context.Context, err error) {
	var de *protocol.DecodeError
	if errors.As(err, &de) && de.Kind == protocol.DecodeInvalid && !de.ID.IsZero() {
		c.logger.Warn("invalid request", logging.RequestID(de.ID.String()), logging.String("reason", de.Reason))
		c.sendResponse(ctx, mcperrors.ToJSONRPCResponse(mcperrors.InvalidRequest(de.Reason), de.ID))
		return
	}
	c.logger.WithError(err).Warn("dropping undecodable message")
}

// teardown runs once when the read loop stops.
func (c *Conn) teardown() {
	c.doneOnce.Do(func() {
		c.session.Close()
		close(c.done)
		if n := c.inflight.AbandonAll(); n > 0 {
			c.logger.Info("abandoned in-flight requests", logging.Int("count", n))
		}

		c.pendingMu.Lock()
		n := len(c.pending)
		c.pending = make(map[protocol.ID]chan *protocol.Response)
		c.pendingMu.Unlock()
		if n > 0 {
			c.logger.Debug("failing outstanding calls", logging.Int("count", n))
		}
	})
}

func (c *Conn) closed() bool {
	select {
	case <-c.done:
		return true
	default:
		return false
	}
}

// send encodes and writes one message. All writes go through sendMu, so
// messages leave in the order their senders acquired it.
func (c *Conn) send(ctx context.Context, msg protocol.Message) error {
	data, err := protocol.Encode(msg)
	if err != nil {
		return err
	}
	c.sendMu.Lock()
	defer c.sendMu.Unlock()
	return c.transport.Send(ctx, data)
}

func (c *Conn) sendResponse(ctx context.Context, resp *protocol.Response) {
	if ctx.Err() != nil {
		// The handler's context may be gone; the response still goes out.
		ctx = context.WithoutCancel(ctx)
	}
	if err := c.send(ctx, resp); err != nil {
		c.logger.WithError(err).Warn("failed to send response", logging.RequestID(resp.ID.String()))
	}
}
