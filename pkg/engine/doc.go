// Package engine is the per-connection protocol engine.
//
// A Conn owns one transport, one session and one in-flight manager. Serve
// reads messages sequentially and routes each one:
//
//   - Responses complete the matching outbound call made with Call or Go.
//     Unmatched responses are logged and dropped.
//   - Notifications are never answered. Cancellation marks the referenced
//     in-flight request; initialized completes the handshake.
//   - Requests pass the session gate and method lookup on the read loop,
//     then run on their own goroutine through the Middleware chain. Every
//     admitted request gets exactly one response unless the connection
//     closes first.
//
// Handlers stop cooperatively: the request context is cancelled when the
// peer cancels, and CancellationRequested reports it. A handler that finishes
// anyway still has its result sent.
//
// A server Conn forwards registry mutations as list_changed notifications for
// the categories it advertised with listChanged.
package engine
