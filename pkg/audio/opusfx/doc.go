// Package opusfx converts between the compressed audio carried on the wire
// and the raw PCM consumed and produced by the speech services.
//
// The wire payload is a stream of length-prefixed Opus packets: each packet
// is preceded by its length as a big-endian uint16. Payload chunks split the
// stream at arbitrary byte positions, so the decoder buffers internally and
// a Push call may yield zero frames until a complete packet has accumulated.
// The encoder mirrors this: PCM accumulates until a full Opus frame is
// available, so not every call produces output.
//
// A session owns exactly one Decoder and one Encoder; neither is safe for
// concurrent use. Malformed packets produce a CodecError for that packet
// only — the stream position is already past the bad packet, so the caller
// drops it and continues.
package opusfx
