// Package protocol defines the JSON-RPC envelopes and MCP payloads exchanged by the server.
//
// The package is the codec boundary of the server: inbound bytes are decoded into typed
// Request values here and are never passed around as loosely typed maps afterwards.
//
// # Package Organization
//
//   - jsonrpc.go: Request, Response and Notification envelopes, the ID type and error codes
//   - codec.go: Parse, ParseResponse and Decode for inbound payloads
//   - mcp.go: method and notification names, initialize payloads
//   - tools.go: tool descriptors and tools/call payloads
//
// # Envelopes
//
// A Response always carries exactly one of Result and Error. A nil result is encoded
// as JSON null rather than being dropped:
//
//	resp, err := protocol.NewResponse(req.ID, protocol.PingResult{})
//	// {"jsonrpc":"2.0","id":1,"result":{}}
//
//	resp := protocol.NewErrorResponse(protocol.NullID(), protocol.ParseError, "Parse error", nil)
//	// {"jsonrpc":"2.0","id":null,"error":{"code":-32700,"message":"Parse error"}}
//
// Request identifiers keep their raw JSON token so responses echo them verbatim.
//
// # Error Handling
//
// Parse returns a *DecodeError whose Code is ParseError for malformed JSON and
// InvalidRequest for well-formed JSON that is not a request object. The jsonrpc
// version member is checked by the dispatcher, not by the codec.
package protocol
