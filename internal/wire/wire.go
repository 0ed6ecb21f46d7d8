// Package wire implements the canonical protocol-buffer-compatible
// envelope and message codec spoken over the frame transport in
// internal/frame. It is built directly on the low-level wire-format
// primitives in google.golang.org/protobuf/encoding/protowire rather than
// generated protobuf code, since no .proto schema ships with this
// protocol: field tag numbers below are the schema.
//
// Decoders tolerate and skip unknown fields, enforce the fixed-size point
// and signature byte fields, and cap the two repeated point fields in
// RangeProofRequest at four elements each. Encoders always emit fields in
// canonical tag order.
package wire

import (
	"fmt"

	"google.golang.org/protobuf/encoding/protowire"
)

// MessageType identifies the inner payload carried by an Envelope.
type MessageType uint32

const (
	MessageTypeClientHello       MessageType = 1
	MessageTypeServerChallenge   MessageType = 2
	MessageTypeClientResponse    MessageType = 3
	MessageTypeAuthResult        MessageType = 4
	MessageTypeRangeProofRequest MessageType = 5
	MessageTypeRangeProofResult  MessageType = 6
)

func (t MessageType) String() string {
	switch t {
	case MessageTypeClientHello:
		return "ClientHello"
	case MessageTypeServerChallenge:
		return "ServerChallenge"
	case MessageTypeClientResponse:
		return "ClientResponse"
	case MessageTypeAuthResult:
		return "AuthResult"
	case MessageTypeRangeProofRequest:
		return "RangeProofRequest"
	case MessageTypeRangeProofResult:
		return "RangeProofResult"
	default:
		return fmt.Sprintf("MessageType(%d)", uint32(t))
	}
}

// MaxPayloadBytes is the maximum size of an Envelope's payload field.
const MaxPayloadBytes = 2048

// ErrDecode is the sentinel wrapped by every decode failure in this
// package: malformed wire bytes, a missing required field, or a fixed-size
// byte field of the wrong length.
var ErrDecode = fmt.Errorf("wire: decode error")

const (
	envelopeFieldType      = protowire.Number(1)
	envelopeFieldPayload   = protowire.Number(2)
	envelopeFieldRequestID = protowire.Number(3)
)

// Envelope is the outer typed frame payload. RequestID is optional; HasRequestID
// reports whether it was present on the wire.
type Envelope struct {
	Type         MessageType
	Payload      []byte
	RequestID    uint32
	HasRequestID bool
}

// EncodeEnvelope serializes env in canonical field order. It is an error
// for env.Payload to exceed MaxPayloadBytes.
func EncodeEnvelope(env Envelope) ([]byte, error) {
	if len(env.Payload) > MaxPayloadBytes {
		return nil, fmt.Errorf("wire: payload too large: %d bytes", len(env.Payload))
	}
	var b []byte
	b = protowire.AppendTag(b, envelopeFieldType, protowire.VarintType)
	b = protowire.AppendVarint(b, uint64(env.Type))
	b = protowire.AppendTag(b, envelopeFieldPayload, protowire.BytesType)
	b = protowire.AppendBytes(b, env.Payload)
	if env.HasRequestID {
		b = protowire.AppendTag(b, envelopeFieldRequestID, protowire.VarintType)
		b = protowire.AppendVarint(b, uint64(env.RequestID))
	}
	return b, nil
}

// DecodeEnvelope parses an Envelope, requiring Type and Payload to be
// present and ignoring unrecognized fields.
func DecodeEnvelope(b []byte) (Envelope, error) {
	var env Envelope
	var haveType, havePayload bool

	for len(b) > 0 {
		num, typ, n := protowire.ConsumeTag(b)
		if n < 0 {
			return Envelope{}, fmt.Errorf("%w: bad tag", ErrDecode)
		}
		b = b[n:]

		switch num {
		case envelopeFieldType:
			v, n := protowire.ConsumeVarint(b)
			if n < 0 {
				return Envelope{}, fmt.Errorf("%w: bad type varint", ErrDecode)
			}
			b = b[n:]
			env.Type = MessageType(v)
			haveType = true
		case envelopeFieldPayload:
			v, n := protowire.ConsumeBytes(b)
			if n < 0 {
				return Envelope{}, fmt.Errorf("%w: bad payload bytes", ErrDecode)
			}
			b = b[n:]
			if len(v) > MaxPayloadBytes {
				return Envelope{}, fmt.Errorf("%w: payload too large: %d bytes", ErrDecode, len(v))
			}
			env.Payload = append([]byte(nil), v...)
			havePayload = true
		case envelopeFieldRequestID:
			v, n := protowire.ConsumeVarint(b)
			if n < 0 {
				return Envelope{}, fmt.Errorf("%w: bad request_id varint", ErrDecode)
			}
			b = b[n:]
			env.RequestID = uint32(v)
			env.HasRequestID = true
		default:
			n := protowire.ConsumeFieldValue(num, typ, b)
			if n < 0 {
				return Envelope{}, fmt.Errorf("%w: bad unknown field", ErrDecode)
			}
			b = b[n:]
		}
	}

	if !haveType || !havePayload {
		return Envelope{}, fmt.Errorf("%w: missing required field", ErrDecode)
	}
	return env, nil
}

// consumeFixedBytes reads a length-delimited bytes field and enforces it is
// exactly want bytes long.
func consumeFixedBytes(b []byte, want int) ([]byte, int, error) {
	v, n := protowire.ConsumeBytes(b)
	if n < 0 {
		return nil, 0, fmt.Errorf("%w: bad bytes field", ErrDecode)
	}
	if len(v) != want {
		return nil, 0, fmt.Errorf("%w: expected %d bytes, got %d", ErrDecode, want, len(v))
	}
	return v, n, nil
}

func skipUnknown(num protowire.Number, typ protowire.Type, b []byte) (int, error) {
	n := protowire.ConsumeFieldValue(num, typ, b)
	if n < 0 {
		return 0, fmt.Errorf("%w: bad unknown field", ErrDecode)
	}
	return n, nil
}
