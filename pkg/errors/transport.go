package errors

import "fmt"

// TransportError wraps an I/O failure of a transport.
func TransportError(transport, operation string, cause error) MCPError {
	return WrapError(
		cause,
		CodeTransportError,
		fmt.Sprintf("%s transport %s failed", transport, operation),
		CategoryTransport,
		SeverityError,
	).WithContext(&Context{
		Component: transport,
		Operation: operation,
	})
}

// TransportClosed reports use of a transport after it closed. Outstanding
// local requests fail with this when the connection goes away.
func TransportClosed(transport string) MCPError {
	return NewError(CodeTransportClosed, fmt.Sprintf("%s transport closed", transport), CategoryTransport, SeverityWarning).
		WithContext(&Context{Component: transport})
}

// MessageTooLarge reports a frame above the configured limit.
func MessageTooLarge(transport string, size, max int) MCPError {
	return NewError(CodeMessageTooLarge, "message too large", CategoryTransport, SeverityError).
		WithDetail(fmt.Sprintf("%d bytes exceeds limit of %d", size, max)).
		WithContext(&Context{Component: transport})
}
