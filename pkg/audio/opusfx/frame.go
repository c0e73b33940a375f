package opusfx

import (
	"encoding/binary"
	"fmt"
	"time"
)

// ServiceSampleRate is the PCM rate the speech services operate at.
const ServiceSampleRate = 24000

// frameDuration is the Opus frame length used by the encoder.
const frameDuration = 20 * time.Millisecond

// maxPacketLen bounds a single Opus packet on the wire. Opus itself caps
// packets at 1275 bytes per frame; anything larger is stream corruption.
const maxPacketLen = 4096

// Frame is one fixed-duration chunk of mono PCM.
type Frame struct {
	PCM        []int16
	SampleRate int
}

// Duration returns the play time of the frame.
func (f Frame) Duration() time.Duration {
	if f.SampleRate == 0 {
		return 0
	}
	return time.Duration(len(f.PCM)) * time.Second / time.Duration(f.SampleRate)
}

// CodecError reports a malformed or undecodable audio chunk. It is local to
// the offending packet: the caller drops the chunk and continues, it never
// terminates a session.
type CodecError struct {
	Op  string
	Err error
}

// Error implements the error interface.
func (e *CodecError) Error() string {
	return fmt.Sprintf("opusfx: %s: %v", e.Op, e.Err)
}

// Unwrap returns the underlying codec error.
func (e *CodecError) Unwrap() error {
	return e.Err
}

// appendPacket appends one length-prefixed packet to dst.
func appendPacket(dst, packet []byte) []byte {
	dst = binary.BigEndian.AppendUint16(dst, uint16(len(packet)))
	return append(dst, packet...)
}

// packetSplitter accumulates wire bytes and yields complete packets.
type packetSplitter struct {
	buf []byte
}

func (s *packetSplitter) push(data []byte) {
	s.buf = append(s.buf, data...)
}

// next returns the next complete packet, or nil if more bytes are needed.
// A length prefix beyond maxPacketLen means the stream is corrupt; the
// splitter resynchronizes by discarding its buffer and reports the error.
func (s *packetSplitter) next() ([]byte, error) {
	if len(s.buf) < 2 {
		return nil, nil
	}
	n := int(binary.BigEndian.Uint16(s.buf))
	if n == 0 || n > maxPacketLen {
		s.buf = s.buf[:0]
		return nil, &CodecError{Op: "split", Err: fmt.Errorf("bad packet length %d", n)}
	}
	if len(s.buf) < 2+n {
		return nil, nil
	}
	packet := make([]byte, n)
	copy(packet, s.buf[2:2+n])
	s.buf = s.buf[2+n:]
	return packet, nil
}
