// Package session runs one voice conversation end to end.
//
// A Handler owns the per-session resources exclusively: one Opus decoder
// and encoder, one STT connection, one LLM client handle, and one TTS
// connection per response cycle. Inbound protocol messages enter through
// Receive; outbound events leave through Emit, which yields them in
// emission order and ends with iterator.Done once the session is closed.
//
// Receive and Emit are designed to be driven by two independent loops over
// a single connection. A slow reader of Emit never stalls Receive: decoded
// audio is buffered ahead of STT in a bounded ring that drops the oldest
// frames under pressure.
package session
