package client

import (
	"context"
	"errors"
	"fmt"
	"sync"

	"github.com/ajitpratap0/mcp-engine/pkg/engine"
	"github.com/ajitpratap0/mcp-engine/pkg/logging"
	"github.com/ajitpratap0/mcp-engine/pkg/protocol"
	"github.com/ajitpratap0/mcp-engine/pkg/session"
	"github.com/ajitpratap0/mcp-engine/pkg/transport"
)

// ErrNotStarted is returned by calls made before Start.
var ErrNotStarted = errors.New("client: not started")

// ListChangedHandler is called when the server announces that one of its
// lists changed. It runs on the connection's read loop and must not block.
type ListChangedHandler func(category protocol.CapabilityType)

// Client represents an MCP client connected to one server.
type Client struct {
	transport    transport.Transport
	name         string
	version      string
	versions     []string
	capabilities protocol.Capabilities
	logger       logging.Logger
	middleware   []engine.Middleware
	onChange     ListChangedHandler
	httpHeaders  map[string]string

	conn *engine.Conn

	mu           sync.Mutex
	started      bool
	stop         context.CancelFunc
	serveErr     chan error
	instructions string
}

// ClientOption defines options for creating a client
type ClientOption func(*Client)

// WithName sets the client name sent in initialize
func WithName(name string) ClientOption {
	return func(c *Client) {
		c.name = name
	}
}

// WithVersion sets the client version sent in initialize
func WithVersion(version string) ClientOption {
	return func(c *Client) {
		c.version = version
	}
}

// WithSupportedVersions sets the protocol versions offered, most preferred
// first.
func WithSupportedVersions(versions ...string) ClientOption {
	return func(c *Client) {
		c.versions = append([]string(nil), versions...)
	}
}

// WithCapability requests a capability category. A client that requests no
// category is offered every category the server has.
func WithCapability(capability protocol.CapabilityType, enabled bool) ClientOption {
	return func(c *Client) {
		var cc *protocol.CategoryCapability
		if enabled {
			cc = &protocol.CategoryCapability{}
		}
		switch capability {
		case protocol.CapabilityTools:
			c.capabilities.Tools = cc
		case protocol.CapabilityResources:
			c.capabilities.Resources = cc
		case protocol.CapabilityPrompts:
			c.capabilities.Prompts = cc
		}
	}
}

// WithLogger sets the client logger
func WithLogger(logger logging.Logger) ClientOption {
	return func(c *Client) {
		c.logger = logger
	}
}

// WithMiddleware wraps requests the server sends to the client.
func WithMiddleware(middleware ...engine.Middleware) ClientOption {
	return func(c *Client) {
		c.middleware = append(c.middleware, middleware...)
	}
}

// WithListChangedHandler sets the callback for list_changed notifications
func WithListChangedHandler(h ListChangedHandler) ClientOption {
	return func(c *Client) {
		c.onChange = h
	}
}

// WithHTTPHeader adds a header to every request DialHTTP makes, such as
// Authorization.
func WithHTTPHeader(key, value string) ClientOption {
	return func(c *Client) {
		if c.httpHeaders == nil {
			c.httpHeaders = make(map[string]string)
		}
		c.httpHeaders[key] = value
	}
}

// New creates a client over t. Start begins reading; Initialize performs the
// handshake.
func New(t transport.Transport, options ...ClientOption) *Client {
	c := &Client{
		transport: t,
		name:      "mcp-engine-client",
		version:   "0.1.0",
		versions:  []string{"1.0", "0.9"},
		serveErr:  make(chan error, 1),
	}
	for _, option := range options {
		option(c)
	}
	if c.logger == nil {
		c.logger = logging.New(nil, nil)
	}

	c.conn = engine.New(t, engine.Options{
		Role: engine.RoleClient,
		Session: session.Config{
			SupportedVersions: c.versions,
			Capabilities:      c.capabilities,
			Info:              protocol.Implementation{Name: c.name, Version: c.version},
		},
		Logger:     c.logger,
		Middleware: c.middleware,
		OnListChanged: func(category protocol.CapabilityType) {
			if c.onChange != nil {
				c.onChange(category)
			}
		},
	})
	return c
}

// Start starts the message loop. The loop keeps ctx's values but not its
// cancellation: it runs until Close or until the transport ends.
func (c *Client) Start(ctx context.Context) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.started {
		return errors.New("client: already started")
	}
	c.started = true

	loopCtx, stop := context.WithCancel(context.WithoutCancel(ctx))
	c.stop = stop
	go func() {
		c.serveErr <- c.conn.Serve(loopCtx)
	}()
	return nil
}

// Initialize performs the handshake. The session is unusable if it fails.
func (c *Client) Initialize(ctx context.Context) error {
	if !c.isStarted() {
		return ErrNotStarted
	}
	sess := c.conn.Session()

	params, err := sess.BeginInitialize()
	if err != nil {
		return err
	}

	var result protocol.InitializeResult
	if err := c.conn.Call(ctx, protocol.MethodInitialize, params, &result); err != nil {
		sess.Fail()
		return fmt.Errorf("initialize: %w", err)
	}
	if err := sess.CompleteInitialize(&result); err != nil {
		return err
	}

	c.mu.Lock()
	c.instructions = result.Instructions
	c.mu.Unlock()

	if err := c.conn.Notify(ctx, protocol.MethodInitialized, nil); err != nil {
		return fmt.Errorf("initialized: %w", err)
	}
	c.logger.Debug("session ready",
		logging.String("protocol_version", result.ProtocolVersion),
		logging.Session(sess.ID()))
	return nil
}

// InitializeAndStart combines Start and Initialize. ctx bounds only the
// handshake.
func (c *Client) InitializeAndStart(ctx context.Context) error {
	if err := c.Start(ctx); err != nil {
		return err
	}
	return c.Initialize(ctx)
}

// Close closes the connection and waits for the message loop to stop.
func (c *Client) Close() error {
	err := c.conn.Close()
	c.mu.Lock()
	stop := c.stop
	c.mu.Unlock()
	if stop != nil {
		stop()
	}
	if c.isStarted() {
		if serveErr := <-c.serveErr; serveErr != nil && !errors.Is(serveErr, context.Canceled) {
			err = errors.Join(err, serveErr)
		}
		c.serveErr <- nil
	}
	return err
}

// Done is closed once the connection has stopped.
func (c *Client) Done() <-chan struct{} { return c.conn.Done() }

// ServerInfo returns the server's implementation info from the handshake.
func (c *Client) ServerInfo() *protocol.Implementation {
	return c.conn.Session().RemoteInfo()
}

// ProtocolVersion returns the negotiated protocol version.
func (c *Client) ProtocolVersion() string {
	return c.conn.Session().NegotiatedVersion()
}

// Instructions returns the server's instructions, if any.
func (c *Client) Instructions() string {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.instructions
}

// HasCapability checks if a specific capability is supported by the server.
func (c *Client) HasCapability(capability protocol.CapabilityType) bool {
	return c.conn.Session().RemoteCapabilities().Has(capability)
}

// Capabilities returns the server's negotiated capabilities.
func (c *Client) Capabilities() protocol.Capabilities {
	return c.conn.Session().RemoteCapabilities()
}

func (c *Client) isStarted() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.started
}

func (c *Client) call(ctx context.Context, method string, params, result interface{}) error {
	if !c.isStarted() {
		return ErrNotStarted
	}
	return c.conn.Call(ctx, method, params, result)
}

// Ping checks if the server is responding.
func (c *Client) Ping(ctx context.Context) error {
	return c.call(ctx, protocol.MethodPing, nil, &protocol.PingResult{})
}
