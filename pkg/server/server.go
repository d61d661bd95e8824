package server

import (
	"context"
	"errors"
	"os"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/ajitpratap0/mcp-engine/pkg/auth"
	"github.com/ajitpratap0/mcp-engine/pkg/engine"
	"github.com/ajitpratap0/mcp-engine/pkg/logging"
	"github.com/ajitpratap0/mcp-engine/pkg/observability"
	"github.com/ajitpratap0/mcp-engine/pkg/protocol"
	"github.com/ajitpratap0/mcp-engine/pkg/registry"
	"github.com/ajitpratap0/mcp-engine/pkg/session"
	"github.com/ajitpratap0/mcp-engine/pkg/sessionstore"
	"github.com/ajitpratap0/mcp-engine/pkg/transport"
)

// DefaultSupportedVersions lists the protocol versions a server accepts when
// none are configured, most preferred first.
var DefaultSupportedVersions = []string{"1.0", "0.9"}

// Server represents an MCP server. One Server may serve many connections at
// once; they share its registry.
type Server struct {
	name         string
	version      string
	instructions string
	versions     []string
	capabilities protocol.Capabilities

	registry       *registry.Registry
	logger         logging.Logger
	middleware     []engine.Middleware
	requestTimeout time.Duration
	pageSize       int
	metrics        *observability.Metrics
	store          sessionstore.Store
	allowedOrigins []string
	authn          auth.Authenticator
	authConfig     auth.HTTPConfig

	mu    sync.Mutex
	conns map[string]*engine.Conn
}

// ServerOption defines options for creating a server
type ServerOption func(*Server)

// WithName sets the server name
func WithName(name string) ServerOption {
	return func(s *Server) {
		s.name = name
	}
}

// WithVersion sets the server version
func WithVersion(version string) ServerOption {
	return func(s *Server) {
		s.version = version
	}
}

// WithInstructions sets the instructions returned from initialize
func WithInstructions(instructions string) ServerOption {
	return func(s *Server) {
		s.instructions = instructions
	}
}

// WithSupportedVersions sets the accepted protocol versions, most preferred
// first.
func WithSupportedVersions(versions ...string) ServerOption {
	return func(s *Server) {
		s.versions = append([]string(nil), versions...)
	}
}

// WithCapability enables or disables a capability category. Enabled
// categories announce list changes.
func WithCapability(capability protocol.CapabilityType, enabled bool) ServerOption {
	return func(s *Server) {
		var cc *protocol.CategoryCapability
		if enabled {
			cc = &protocol.CategoryCapability{ListChanged: true}
		}
		switch capability {
		case protocol.CapabilityTools:
			s.capabilities.Tools = cc
		case protocol.CapabilityResources:
			s.capabilities.Resources = cc
		case protocol.CapabilityPrompts:
			s.capabilities.Prompts = cc
		}
	}
}

// WithRegistry serves an existing registry
func WithRegistry(r *registry.Registry) ServerOption {
	return func(s *Server) {
		s.registry = r
	}
}

// WithLogger sets the server logger
func WithLogger(logger logging.Logger) ServerOption {
	return func(s *Server) {
		s.logger = logger
	}
}

// WithMiddleware appends request middleware. The first is outermost.
func WithMiddleware(middleware ...engine.Middleware) ServerOption {
	return func(s *Server) {
		s.middleware = append(s.middleware, middleware...)
	}
}

// WithRequestTimeout bounds the context of every request handler
func WithRequestTimeout(d time.Duration) ServerOption {
	return func(s *Server) {
		s.requestTimeout = d
	}
}

// WithPageSize sets the page length of the list methods
func WithPageSize(n int) ServerOption {
	return func(s *Server) {
		s.pageSize = n
	}
}

// WithObservability records metrics and traces for every request. The
// metrics, when set, also track open sessions.
func WithObservability(config observability.MiddlewareConfig) ServerOption {
	return func(s *Server) {
		s.metrics = config.Metrics
		s.middleware = append(s.middleware, observability.NewMiddleware(config))
	}
}

// WithSessionStore records HTTP sessions in store
func WithSessionStore(store sessionstore.Store) ServerOption {
	return func(s *Server) {
		s.store = store
	}
}

// WithAllowedOrigins sets the browser origins the HTTP handler accepts.
func WithAllowedOrigins(origins ...string) ServerOption {
	return func(s *Server) {
		s.allowedOrigins = append([]string(nil), origins...)
	}
}

// WithAuthentication requires HTTP requests to authenticate with authn. The
// user is available to handlers through auth.UserFromContext.
func WithAuthentication(authn auth.Authenticator, config auth.HTTPConfig) ServerOption {
	return func(s *Server) {
		s.authn = authn
		s.authConfig = config
	}
}

// WithAuthorization checks every request against rbac.
func WithAuthorization(rbac *auth.RBAC) ServerOption {
	return func(s *Server) {
		s.middleware = append(s.middleware, rbac.Middleware())
	}
}

// WithRateLimit limits requests per user, or per session without one.
func WithRateLimit(limiter *auth.RateLimiter) ServerOption {
	return func(s *Server) {
		s.middleware = append(s.middleware, limiter.Middleware())
	}
}

// New creates a new MCP server
func New(opts ...ServerOption) *Server {
	s := &Server{
		name:     "mcp-engine",
		version:  "0.1.0",
		versions: DefaultSupportedVersions,
		capabilities: protocol.Capabilities{
			Resources: &protocol.CategoryCapability{ListChanged: true},
			Tools:     &protocol.CategoryCapability{ListChanged: true},
			Prompts:   &protocol.CategoryCapability{ListChanged: true},
		},
		allowedOrigins: defaultAllowedOrigins,
		conns:          make(map[string]*engine.Conn),
	}
	for _, opt := range opts {
		opt(s)
	}
	if s.registry == nil {
		s.registry = registry.New()
	}
	if s.logger == nil {
		s.logger = logging.New(nil, nil)
	}
	s.logger = s.logger.WithFields(logging.Component("server"))
	return s
}

// Registry returns the registry the server serves.
func (s *Server) Registry() *registry.Registry { return s.registry }

// AddTool registers a tool.
func (s *Server) AddTool(tool protocol.Tool, handler registry.ToolHandler) error {
	return s.registry.RegisterTool(tool, handler)
}

// AddResource registers a resource.
func (s *Server) AddResource(resource protocol.Resource, handler registry.ResourceHandler) error {
	return s.registry.RegisterResource(resource, handler)
}

// AddPrompt registers a prompt.
func (s *Server) AddPrompt(prompt protocol.Prompt, handler registry.PromptHandler) error {
	return s.registry.RegisterPrompt(prompt, handler)
}

// Connections returns the number of connections being served.
func (s *Server) Connections() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.conns)
}

func (s *Server) sessionConfig() session.Config {
	return session.Config{
		SupportedVersions: s.versions,
		Capabilities:      s.capabilities,
		Info:              protocol.Implementation{Name: s.name, Version: s.version},
		Instructions:      s.instructions,
	}
}

// Serve runs one connection over t until the peer goes away or ctx is
// cancelled. Cancellation is a clean shutdown and returns nil.
func (s *Server) Serve(ctx context.Context, t transport.Transport) error {
	return s.serve(ctx, uuid.New().String(), t)
}

func (s *Server) serve(ctx context.Context, sessionID string, t transport.Transport) error {
	conn := engine.New(t, engine.Options{
		Role:           engine.RoleServer,
		SessionID:      sessionID,
		Session:        s.sessionConfig(),
		Registry:       s.registry,
		Logger:         s.logger,
		Middleware:     s.middleware,
		RequestTimeout: s.requestTimeout,
		PageSize:       s.pageSize,
	})

	s.mu.Lock()
	s.conns[sessionID] = conn
	s.mu.Unlock()
	if s.metrics != nil {
		s.metrics.SessionOpened()
	}
	defer func() {
		s.mu.Lock()
		delete(s.conns, sessionID)
		s.mu.Unlock()
		if s.metrics != nil {
			s.metrics.SessionClosed()
		}
	}()

	logger := s.logger.WithFields(logging.Session(sessionID))
	logger.Debug("connection opened")
	err := conn.Serve(ctx)
	if errors.Is(err, context.Canceled) {
		err = nil
	}
	if err != nil {
		logger.WithError(err).Warn("connection ended")
		return err
	}
	logger.Debug("connection closed")
	return nil
}

// ServeStdio serves a single connection over the process's stdin and stdout.
func (s *Server) ServeStdio(ctx context.Context) error {
	config := transport.DefaultTransportConfig(transport.TransportTypeStdio)
	config.StdioReader = os.Stdin
	config.StdioWriter = os.Stdout
	config.Logger = s.logger
	return s.Serve(ctx, transport.NewStdioTransport(config))
}

// Close ends every connection. Serve calls return once their handlers
// finish.
func (s *Server) Close() error {
	s.mu.Lock()
	conns := make([]*engine.Conn, 0, len(s.conns))
	for _, c := range s.conns {
		conns = append(conns, c)
	}
	s.mu.Unlock()

	for _, c := range conns {
		_ = c.Close()
	}
	return nil
}
