// Package realtime defines the client-facing event protocol: JSON envelopes
// with a mandatory "type" discriminator exchanged over a persistent
// WebSocket negotiated with the "realtime" subprotocol.
//
// The package is the single validation boundary. Inbound messages are parsed
// and shape-checked exactly once by ParseClientEvent; downstream code trusts
// the resulting ClientEvent. Unknown JSON fields are ignored for forward
// compatibility; missing required fields fail with a MalformedEventError
// that the session reports as a recoverable warning.
//
// Outbound events are built with the New* constructors and serialized with
// Encode:
//
//	evt := realtime.NewTextDelta(responseID, "hello")
//	data, err := realtime.Encode(evt)
package realtime
