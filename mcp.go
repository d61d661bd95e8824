package mcp

import (
	"github.com/ajitpratap0/mcp-engine/pkg/client"
	"github.com/ajitpratap0/mcp-engine/pkg/protocol"
	"github.com/ajitpratap0/mcp-engine/pkg/registry"
	"github.com/ajitpratap0/mcp-engine/pkg/server"
	"github.com/ajitpratap0/mcp-engine/pkg/transport"
)

// Version represents the current version of the engine
const Version = "0.1.0"

// These exports provide direct access to the core components
var (
	// NewClient creates a client over an existing transport
	NewClient = client.New

	// NewStdioClient creates a client over a pair of streams
	NewStdioClient = client.NewStdioClient

	// DialHTTP connects a client to an HTTP endpoint
	DialHTTP = client.DialHTTP

	// NewServer creates a new MCP server
	NewServer = server.New

	// NewRegistry creates an empty tool, resource and prompt registry
	NewRegistry = registry.New

	// NewStdioTransport creates a newline-delimited stream transport
	NewStdioTransport = transport.NewStdioTransport

	// NewPipe creates two connected in-memory transports
	NewPipe = transport.NewPipe
)

// Capability categories
const (
	CapabilityTools     = protocol.CapabilityTools
	CapabilityResources = protocol.CapabilityResources
	CapabilityPrompts   = protocol.CapabilityPrompts
)

// Client options
var (
	WithClientName       = client.WithName
	WithClientVersion    = client.WithVersion
	WithClientCapability = client.WithCapability
	WithClientLogger     = client.WithLogger
)

// Server options
var (
	WithServerName         = server.WithName
	WithServerVersion      = server.WithVersion
	WithServerInstructions = server.WithInstructions
	WithServerCapability   = server.WithCapability
	WithServerLogger       = server.WithLogger
	WithRegistry           = server.WithRegistry
	WithRequestTimeout     = server.WithRequestTimeout
	WithPageSize           = server.WithPageSize
)

// Result helpers
var (
	TextResult  = protocol.TextResult
	ErrorResult = protocol.ErrorResult
	TextContent = protocol.TextContent
)
