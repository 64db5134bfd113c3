// internal/handlers/ws_codes.go
package handlers

// Custom WebSocket close codes used by the game handler. These give clients
// a more specific reason for closure than the standard codes.
const (
	BadSubprotocolError   = 3000 // Client connected with an unsupported subprotocol.
	ProtocolVersionError  = 3001 // Client spoke an unsupported protocol version.
	HandshakeTimeoutError = 3002 // Client never sent HELLO within the allowed window.
	OutboxOverflowError   = 3003 // Client could not keep up with the event stream.
)
