package errors

// JSON-RPC 2.0 error codes answered to peers
const (
	// CodeParseError indicates invalid JSON was received by the server
	CodeParseError int = -32700

	// CodeInvalidRequest indicates the JSON sent is not a valid Request object
	CodeInvalidRequest int = -32600

	// CodeMethodNotFound indicates the method or tool does not exist
	CodeMethodNotFound int = -32601

	// CodeInvalidParams indicates tool arguments failed strict validation
	CodeInvalidParams int = -32602

	// CodeInternalError indicates a handler or provider failure
	CodeInternalError int = -32603
)

// Transport codes. These never reach a peer: stream failures close the
// session and are only logged and counted.
const (
	CodeTransportError       int = -32500 // Generic transport error
	CodeStreamingUnsupported int = -32501 // Response writer cannot flush
	CodeStreamWriteFailed    int = -32502 // Writing a frame to the stream failed
	CodeSessionClosed        int = -32503 // Session already closed
)

// CodeInfo describes an error code
type CodeInfo struct {
	Name     string
	Category Category
	Severity Severity
	// Wire codes may be sent to a peer in a response
	Wire bool
}

var codeInfo = map[int]CodeInfo{
	CodeParseError:     {"ParseError", CategoryProtocol, SeverityError, true},
	CodeInvalidRequest: {"InvalidRequest", CategoryProtocol, SeverityError, true},
	CodeMethodNotFound: {"MethodNotFound", CategoryNotFound, SeverityError, true},
	CodeInvalidParams:  {"InvalidParams", CategoryValidation, SeverityError, true},
	CodeInternalError:  {"InternalError", CategoryInternal, SeverityError, true},

	CodeTransportError:       {"TransportError", CategoryTransport, SeverityError, false},
	CodeStreamingUnsupported: {"StreamingUnsupported", CategoryTransport, SeverityCritical, false},
	CodeStreamWriteFailed:    {"StreamWriteFailed", CategoryTransport, SeverityWarning, false},
	CodeSessionClosed:        {"SessionClosed", CategoryTransport, SeverityInfo, false},
}

var unknownCode = CodeInfo{Name: "UnknownError", Category: CategoryInternal, Severity: SeverityError}

// LookupCode returns what is known about code. Unknown codes report an
// internal error that must not go on the wire.
func LookupCode(code int) (CodeInfo, bool) {
	info, ok := codeInfo[code]
	if !ok {
		return unknownCode, false
	}
	return info, true
}

// IsWireCode reports whether code may be sent to a peer in a response
func IsWireCode(code int) bool {
	info, _ := LookupCode(code)
	return info.Wire
}
