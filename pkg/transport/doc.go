// Package transport moves serialized messages between two MCP peers.
//
// A Transport carries complete messages only: every Send is one message and
// every Receive returns one. The engine above it never sees partial frames.
//
// # Supported Transports
//
// StdioTransport:
//   - Newline-delimited frames over a reader/writer pair, by default the
//     process's stdin and stdout
//   - Blank lines are skipped; frames above MaxMessageSize are rejected
//
// Pipe:
//   - NewPipe returns two connected in-memory ends for tests and embedding
//
// HTTP with Server-Sent Events:
//   - HTTPHandler is the server side. GET opens a session and streams server
//     messages as "message" events after an initial "endpoint" event that
//     names the POST URL. POST delivers one client message (202 Accepted).
//     DELETE ends the session.
//   - HTTPClientTransport (DialHTTP) is the matching client
//
// # Configuration
//
//	config := transport.DefaultTransportConfig(transport.TransportTypeHTTP)
//	config.Endpoint = "http://localhost:8080/mcp"
//	config.Features.EnableLogging = true
//	t, err := transport.NewTransport(ctx, config)
//
// # Middleware
//
// A Middleware wraps a Transport. NewTransport applies them from the feature
// flags:
//
//   - NewLoggingMiddleware: frame and failure logging
//   - NewReliabilityMiddleware: Send retries with exponential backoff on
//     transient write failures
package transport
