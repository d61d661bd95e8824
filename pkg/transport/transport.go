package transport

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/ajitpratap0/mcp-engine/pkg/logging"
)

// Transport moves complete serialized messages between two peers. Each call
// to Send delivers exactly one message and each Receive returns exactly one;
// order is preserved per direction. Send is safe for concurrent use.
type Transport interface {
	// Send delivers one message. Write failures are reported as a
	// TransportError; use after Close as TransportClosed.
	Send(ctx context.Context, msg []byte) error

	// Receive blocks for the next complete message. It returns io.EOF once
	// the peer is gone or the transport is closed.
	Receive(ctx context.Context) ([]byte, error)

	// Close releases the transport. It is safe to call more than once.
	Close() error
}

// TransportType identifies the base transport implementation
type TransportType string

const (
	TransportTypeStdio TransportType = "stdio"
	TransportTypeHTTP  TransportType = "http"
)

const (
	// DefaultMaxMessageSize bounds a single frame.
	DefaultMaxMessageSize = 4 << 20
	// DefaultReadBufferSize is the initial line buffer of the stdio reader.
	DefaultReadBufferSize = 64 << 10
	// DefaultKeepAlive is the interval of SSE keepalive comments.
	DefaultKeepAlive = 15 * time.Second
)

// TransportConfig is the unified configuration for all transports
type TransportConfig struct {
	// Type of transport to create
	Type TransportType `json:"type"`

	// Endpoint is the SSE URL the HTTP client transport connects to.
	Endpoint string `json:"endpoint,omitempty"`

	// Custom streams for stdio. Nil means os.Stdin and os.Stdout.
	StdioReader io.Reader `json:"-"`
	StdioWriter io.Writer `json:"-"`

	MaxMessageSize int           `json:"max_message_size"`
	ReadBufferSize int           `json:"read_buffer_size"`
	KeepAlive      time.Duration `json:"keep_alive"`

	// ConnectTimeout bounds the wait for the SSE endpoint event.
	ConnectTimeout time.Duration `json:"connect_timeout"`

	Features    FeatureConfig     `json:"features"`
	Reliability ReliabilityConfig `json:"reliability"`

	// Headers are sent with every HTTP request, for example Authorization.
	Headers map[string]string `json:"-"`

	HTTPClient *http.Client   `json:"-"`
	Logger     logging.Logger `json:"-"`
}

// FeatureConfig controls which middleware NewTransport applies.
type FeatureConfig struct {
	EnableReliability bool `json:"enable_reliability"`
	EnableLogging     bool `json:"enable_logging"`
}

// ReliabilityConfig controls Send retries.
type ReliabilityConfig struct {
	MaxRetries         int           `json:"max_retries"`
	InitialRetryDelay  time.Duration `json:"initial_retry_delay"`
	MaxRetryDelay      time.Duration `json:"max_retry_delay"`
	RetryBackoffFactor float64       `json:"retry_backoff_factor"`
}

// DefaultTransportConfig returns the settings used when a field is left zero.
func DefaultTransportConfig(transportType TransportType) TransportConfig {
	return TransportConfig{
		Type:           transportType,
		MaxMessageSize: DefaultMaxMessageSize,
		ReadBufferSize: DefaultReadBufferSize,
		KeepAlive:      DefaultKeepAlive,
		ConnectTimeout: 10 * time.Second,
		Features: FeatureConfig{
			EnableReliability: transportType == TransportTypeHTTP,
		},
		Reliability: ReliabilityConfig{
			MaxRetries:         3,
			InitialRetryDelay:  100 * time.Millisecond,
			MaxRetryDelay:      5 * time.Second,
			RetryBackoffFactor: 2.0,
		},
	}
}

// Validate checks the configuration for the selected transport type.
func (c TransportConfig) Validate() error {
	switch c.Type {
	case TransportTypeStdio:
	case TransportTypeHTTP:
		if c.Endpoint == "" {
			return fmt.Errorf("http transport requires an endpoint")
		}
	default:
		return fmt.Errorf("unsupported transport type %q", c.Type)
	}
	if c.MaxMessageSize < 0 || c.ReadBufferSize < 0 {
		return fmt.Errorf("buffer sizes must not be negative")
	}
	if c.Reliability.MaxRetries < 0 {
		return fmt.Errorf("max retries must not be negative")
	}
	return nil
}

// withDefaults fills zero-valued fields.
func (c TransportConfig) withDefaults() TransportConfig {
	def := DefaultTransportConfig(c.Type)
	if c.MaxMessageSize == 0 {
		c.MaxMessageSize = def.MaxMessageSize
	}
	if c.ReadBufferSize == 0 {
		c.ReadBufferSize = def.ReadBufferSize
	}
	if c.ReadBufferSize > c.MaxMessageSize {
		c.ReadBufferSize = c.MaxMessageSize
	}
	if c.KeepAlive == 0 {
		c.KeepAlive = def.KeepAlive
	}
	if c.ConnectTimeout == 0 {
		c.ConnectTimeout = def.ConnectTimeout
	}
	if c.Reliability.RetryBackoffFactor < 1 {
		c.Reliability.RetryBackoffFactor = def.Reliability.RetryBackoffFactor
	}
	if c.Reliability.InitialRetryDelay <= 0 {
		c.Reliability.InitialRetryDelay = def.Reliability.InitialRetryDelay
	}
	if c.Reliability.MaxRetryDelay <= 0 {
		c.Reliability.MaxRetryDelay = def.Reliability.MaxRetryDelay
	}
	if c.Logger == nil {
		c.Logger = logging.New(nil, nil)
	}
	if c.HTTPClient == nil {
		c.HTTPClient = http.DefaultClient
	}
	return c
}

// NewTransport creates a client-side transport from config and wraps it in
// the middleware the feature flags select.
func NewTransport(ctx context.Context, config TransportConfig) (Transport, error) {
	if err := config.Validate(); err != nil {
		return nil, err
	}
	config = config.withDefaults()

	var (
		base Transport
		err  error
	)
	switch config.Type {
	case TransportTypeStdio:
		base = NewStdioTransport(config)
	case TransportTypeHTTP:
		base, err = DialHTTP(ctx, config)
		if err != nil {
			return nil, err
		}
	}

	var middleware []Middleware
	if config.Features.EnableLogging {
		middleware = append(middleware, NewLoggingMiddleware(config.Logger))
	}
	if config.Features.EnableReliability {
		middleware = append(middleware, NewReliabilityMiddleware(config.Reliability, config.Logger))
	}
	if len(middleware) == 0 {
		return base, nil
	}
	return ChainMiddleware(middleware...).Wrap(base), nil
}
