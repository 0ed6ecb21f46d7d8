// Package frame implements the length-prefixed transport framing that
// carries envelope bytes over a net.Conn: a 4-byte big-endian length header
// followed by that many payload bytes.
package frame

import (
	"encoding/binary"
	"errors"
	"io"
)

// HeaderLen is the size of the length prefix in bytes.
const HeaderLen = 4

// MaxPayloadLen is the largest payload a frame may carry. A header
// claiming more than this is a framing error, not a short read.
const MaxPayloadLen = 1024 * 1024

// ErrFrameTooLarge is returned when a frame header declares a length
// outside (0, MaxPayloadLen].
var ErrFrameTooLarge = errors.New("frame: length out of bounds")

// ReadFrame reads one length-prefixed frame from r: a 4-byte big-endian
// header followed by the declared number of payload bytes. Both reads use
// io.ReadFull so a connection that closes mid-header or mid-body reports
// io.ErrUnexpectedEOF or io.EOF rather than a short read.
func ReadFrame(r io.Reader) ([]byte, error) {
	var hdr [HeaderLen]byte
	if _, err := io.ReadFull(r, hdr[:]); err != nil {
		return nil, err
	}

	length := binary.BigEndian.Uint32(hdr[:])
	if length == 0 || length > MaxPayloadLen {
		return nil, ErrFrameTooLarge
	}

	payload := make([]byte, length)
	if _, err := io.ReadFull(r, payload); err != nil {
		return nil, err
	}
	return payload, nil
}

// WriteFrame writes payload to w as a single length-prefixed frame: one
// logical write of the 4-byte header concatenated with the payload.
func WriteFrame(w io.Writer, payload []byte) error {
	if len(payload) == 0 || len(payload) > MaxPayloadLen {
		return ErrFrameTooLarge
	}
	buf := make([]byte, HeaderLen+len(payload))
	binary.BigEndian.PutUint32(buf[:HeaderLen], uint32(len(payload)))
	copy(buf[HeaderLen:], payload)
	_, err := w.Write(buf)
	return err
}
