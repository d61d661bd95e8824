// Package config loads process configuration for MCP servers from the
// environment, optionally seeded from .env files.
package config

import (
	"context"
	"errors"
	"fmt"
	"io"
	"io/fs"
	"strings"
	"time"

	"github.com/joeshaw/envdecode"
	"github.com/joho/godotenv"
	"github.com/redis/go-redis/v9"

	"github.com/ajitpratap0/mcp-engine/pkg/logging"
	"github.com/ajitpratap0/mcp-engine/pkg/observability"
	"github.com/ajitpratap0/mcp-engine/pkg/pagination"
	"github.com/ajitpratap0/mcp-engine/pkg/sessionstore"
)

// Transport names accepted in MCP_TRANSPORT.
const (
	TransportStdio = "stdio"
	TransportHTTP  = "http"
)

// Config is decoded from environment variables. Slices use ';' between
// elements.
type Config struct {
	ServiceName string `env:"MCP_SERVICE_NAME,default=mcp-engine"`
	Version     string `env:"MCP_SERVICE_VERSION,default=0.1.0"`

	Transport string `env:"MCP_TRANSPORT,default=stdio"`
	HTTPAddr  string `env:"MCP_HTTP_ADDR,default=:8080"`
	HTTPPath  string `env:"MCP_HTTP_PATH,default=/mcp"`
	// AllowedOrigins is checked against the Origin header of HTTP requests.
	AllowedOrigins []string `env:"MCP_ALLOWED_ORIGINS,default=http://localhost;https://localhost"`
	MaxMessageSize int      `env:"MCP_MAX_MESSAGE_SIZE,default=4194304"`

	// AuthTokens are accepted as bearer tokens on the HTTP transport. Empty
	// disables authentication.
	AuthTokens []string `env:"MCP_AUTH_TOKENS"`
	// RateLimit is requests per minute per caller; zero disables limiting.
	RateLimit float64 `env:"MCP_RATE_LIMIT,default=0"`

	// MetricsAddr serves /metrics when set.
	MetricsAddr string `env:"MCP_METRICS_ADDR"`

	LogLevel  string `env:"MCP_LOG_LEVEL,default=info"`
	LogFormat string `env:"MCP_LOG_FORMAT,default=text"`

	ProtocolVersions []string      `env:"MCP_PROTOCOL_VERSIONS,default=1.0;0.9"`
	RequestTimeout   time.Duration `env:"MCP_REQUEST_TIMEOUT,default=30s"`
	PageSize         int           `env:"MCP_PAGE_SIZE,default=50"`

	TraceExporter string  `env:"MCP_TRACE_EXPORTER,default=noop"`
	TraceEndpoint string  `env:"MCP_TRACE_ENDPOINT"`
	TraceInsecure bool    `env:"MCP_TRACE_INSECURE,default=false"`
	TraceSample   float64 `env:"MCP_TRACE_SAMPLE_RATE,default=1"`

	// ResourceRoot is served as file resources when set.
	ResourceRoot string `env:"MCP_RESOURCE_ROOT"`

	// RedisAddr selects the Redis session store; empty keeps sessions in
	// memory.
	RedisAddr     string        `env:"REDIS_ADDR"`
	RedisPassword string        `env:"REDIS_PASSWORD"`
	RedisDB       int           `env:"REDIS_DB,default=0"`
	SessionPrefix string        `env:"MCP_SESSION_KEY_PREFIX,default=mcp:session:"`
	SessionTTL    time.Duration `env:"MCP_SESSION_TTL,default=30m"`
}

// Load reads the given .env files, falling back to ./.env when none are
// named, then decodes the environment. Missing files are ignored; variables
// already set in the environment win over file values.
func Load(files ...string) (*Config, error) {
	if len(files) == 0 {
		files = []string{".env"}
	}
	for _, f := range files {
		if err := godotenv.Load(f); err != nil {
			if errors.Is(err, fs.ErrNotExist) {
				continue
			}
			return nil, fmt.Errorf("config: load %s: %w", f, err)
		}
	}

	var cfg Config
	if err := envdecode.Decode(&cfg); err != nil && !errors.Is(err, envdecode.ErrNoTargetFieldsAreSet) {
		return nil, fmt.Errorf("config: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

// Validate checks values that decode cleanly but cannot be used.
func (c *Config) Validate() error {
	var errs []error
	switch c.Transport {
	case TransportStdio, TransportHTTP:
	default:
		errs = append(errs, fmt.Errorf("MCP_TRANSPORT: unknown transport %q", c.Transport))
	}
	if c.Transport == TransportHTTP && !strings.HasPrefix(c.HTTPPath, "/") {
		errs = append(errs, fmt.Errorf("MCP_HTTP_PATH: %q must start with /", c.HTTPPath))
	}
	if _, err := logging.ParseLevel(c.LogLevel); err != nil {
		errs = append(errs, fmt.Errorf("MCP_LOG_LEVEL: %w", err))
	}
	switch c.LogFormat {
	case "text", "json":
	default:
		errs = append(errs, fmt.Errorf("MCP_LOG_FORMAT: unknown format %q", c.LogFormat))
	}
	if len(c.versions()) == 0 {
		errs = append(errs, errors.New("MCP_PROTOCOL_VERSIONS: at least one version is required"))
	}
	if c.PageSize < 1 || c.PageSize > pagination.MaxLimit {
		errs = append(errs, fmt.Errorf("MCP_PAGE_SIZE: %d is outside 1..%d", c.PageSize, pagination.MaxLimit))
	}
	if c.RequestTimeout < 0 {
		errs = append(errs, errors.New("MCP_REQUEST_TIMEOUT: must not be negative"))
	}
	switch observability.ExporterType(c.TraceExporter) {
	case "", observability.ExporterTypeNoop, observability.ExporterTypeOTLPGRPC, observability.ExporterTypeOTLPHTTP:
	default:
		errs = append(errs, fmt.Errorf("MCP_TRACE_EXPORTER: unknown exporter %q", c.TraceExporter))
	}
	if c.RateLimit < 0 {
		errs = append(errs, errors.New("MCP_RATE_LIMIT: must not be negative"))
	}
	if c.TraceSample < 0 || c.TraceSample > 1 {
		errs = append(errs, fmt.Errorf("MCP_TRACE_SAMPLE_RATE: %v is outside 0..1", c.TraceSample))
	}
	return errors.Join(errs...)
}

// Versions returns the configured protocol versions, most preferred first,
// with blanks removed.
func (c *Config) Versions() []string { return c.versions() }

func (c *Config) versions() []string {
	var out []string
	for _, v := range c.ProtocolVersions {
		if v = strings.TrimSpace(v); v != "" {
			out = append(out, v)
		}
	}
	return out
}

// Logger builds a logger writing to w in the configured format and level.
func (c *Config) Logger(w io.Writer) logging.Logger {
	var formatter logging.Formatter = logging.NewTextFormatter()
	if c.LogFormat == "json" {
		formatter = logging.NewJSONFormatter()
	}
	logger := logging.New(w, formatter)
	if level, err := logging.ParseLevel(c.LogLevel); err == nil {
		logger.SetLevel(level)
	}
	return logger
}

// Tracing returns the tracing configuration.
func (c *Config) Tracing() observability.TracingConfig {
	return observability.TracingConfig{
		ServiceName:    c.ServiceName,
		ServiceVersion: c.Version,
		ExporterType:   observability.ExporterType(c.TraceExporter),
		Endpoint:       c.TraceEndpoint,
		Insecure:       c.TraceInsecure,
		SampleRate:     c.TraceSample,
	}
}

// Metrics returns the metrics configuration.
func (c *Config) Metrics() observability.MetricsConfig {
	return observability.MetricsConfig{
		ServiceName:    c.ServiceName,
		ServiceVersion: c.Version,
	}
}

// SessionStore opens the configured session store. The Redis store is
// pinged before it is returned.
func (c *Config) SessionStore(ctx context.Context) (sessionstore.Store, error) {
	if c.RedisAddr == "" {
		return sessionstore.NewMemory(), nil
	}

	client := redis.NewClient(&redis.Options{
		Addr:     c.RedisAddr,
		Password: c.RedisPassword,
		DB:       c.RedisDB,
	})
	if err := client.Ping(ctx).Err(); err != nil {
		_ = client.Close()
		return nil, fmt.Errorf("config: redis %s: %w", c.RedisAddr, err)
	}
	store, err := sessionstore.NewRedis(sessionstore.RedisConfig{
		Client:    client,
		KeyPrefix: c.SessionPrefix,
		TTL:       c.SessionTTL,
	})
	if err != nil {
		_ = client.Close()
		return nil, err
	}
	return store, nil
}
