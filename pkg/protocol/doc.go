// Package protocol defines the wire envelope and the payload types of the
// Model Context Protocol.
//
// # Package Organization
//
//   - jsonrpc.go: the Request, Response and Notification envelopes and the
//     Decode/Encode codec
//   - id.go: correlation identifiers (string or integer)
//   - mcp.go: method names, capability sets, handshake and cancellation payloads
//   - tools.go, resources.go, prompts.go, content.go: per-category payloads
//
// # Variant Detection
//
// Decode never relies on a type tag. A message with a method and an id is a
// Request, a method without an id is a Notification, and an id with exactly
// one of result or error is a Response. Anything else is a DecodeError.
// Unknown top-level members are ignored; unknown methods decode normally and
// are rejected later by the dispatcher.
//
// # Example Messages
//
// Initialize request:
//
//	{"jsonrpc":"2.0","id":1,"method":"initialize","params":{"protocolVersion":"1.0","capabilities":{},"clientInfo":{"name":"host"}}}
//
// Initialize response:
//
//	{"jsonrpc":"2.0","id":1,"result":{"protocolVersion":"1.0","capabilities":{"tools":{"listChanged":true}},"serverInfo":{"name":"weather"}}}
//
// Cancellation:
//
//	{"jsonrpc":"2.0","method":"notifications/cancelled","params":{"requestId":7}}
package protocol
