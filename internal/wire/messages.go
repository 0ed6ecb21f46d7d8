package wire

import (
	"fmt"

	"google.golang.org/protobuf/encoding/protowire"
)

// MaxSerialIDBytes and friends are the byte-length caps enforced at decode
// (and respected at encode) for the protocol's bounded UTF-8 string
// fields.
const (
	MaxSerialIDBytes        = 63
	MaxAuthMessageBytes     = 63
	MaxRangeProofMessageBytes = 95
)

// SigFieldBytes, PointFieldBytes and NonceFieldBytes are the exact lengths
// the signature, point and nonce fields on the wire must have.
const (
	SigFieldBytes   = 64
	PointFieldBytes = 33
	NonceFieldBytes = 32
)

// MaxCommitElements bounds the lower_commit and upper_commit repeated
// fields in RangeProofRequest.
const MaxCommitElements = 4

// ClientHelloWire is {serial_id, sig64}.
type ClientHelloWire struct {
	SerialID string
	Sig      [SigFieldBytes]byte
}

const (
	helloFieldSerialID = protowire.Number(1)
	helloFieldSig      = protowire.Number(2)
)

func EncodeClientHello(m ClientHelloWire) ([]byte, error) {
	if len(m.SerialID) == 0 || len(m.SerialID) > MaxSerialIDBytes {
		return nil, fmt.Errorf("wire: serial_id length %d out of bounds", len(m.SerialID))
	}
	var b []byte
	b = protowire.AppendTag(b, helloFieldSerialID, protowire.BytesType)
	b = protowire.AppendBytes(b, []byte(m.SerialID))
	b = protowire.AppendTag(b, helloFieldSig, protowire.BytesType)
	b = protowire.AppendBytes(b, m.Sig[:])
	return b, nil
}

func DecodeClientHello(b []byte) (ClientHelloWire, error) {
	var out ClientHelloWire
	var haveSerial, haveSig bool

	for len(b) > 0 {
		num, typ, n := protowire.ConsumeTag(b)
		if n < 0 {
			return ClientHelloWire{}, fmt.Errorf("%w: bad tag", ErrDecode)
		}
		b = b[n:]

		switch num {
		case helloFieldSerialID:
			v, n := protowire.ConsumeBytes(b)
			if n < 0 {
				return ClientHelloWire{}, fmt.Errorf("%w: bad serial_id", ErrDecode)
			}
			b = b[n:]
			if len(v) == 0 || len(v) > MaxSerialIDBytes {
				return ClientHelloWire{}, fmt.Errorf("%w: serial_id length %d out of bounds", ErrDecode, len(v))
			}
			out.SerialID = string(v)
			haveSerial = true
		case helloFieldSig:
			v, n, err := consumeFixedBytes(b, SigFieldBytes)
			if err != nil {
				return ClientHelloWire{}, err
			}
			b = b[n:]
			copy(out.Sig[:], v)
			haveSig = true
		default:
			n, err := skipUnknown(num, typ, b)
			if err != nil {
				return ClientHelloWire{}, err
			}
			b = b[n:]
		}
	}

	if !haveSerial || !haveSig {
		return ClientHelloWire{}, fmt.Errorf("%w: missing required field", ErrDecode)
	}
	return out, nil
}

// ServerChallengeWire is {nonce32, sig64}.
type ServerChallengeWire struct {
	Nonce [NonceFieldBytes]byte
	Sig   [SigFieldBytes]byte
}

const (
	challengeFieldNonce = protowire.Number(1)
	challengeFieldSig   = protowire.Number(2)
)

func EncodeServerChallenge(m ServerChallengeWire) ([]byte, error) {
	var b []byte
	b = protowire.AppendTag(b, challengeFieldNonce, protowire.BytesType)
	b = protowire.AppendBytes(b, m.Nonce[:])
	b = protowire.AppendTag(b, challengeFieldSig, protowire.BytesType)
	b = protowire.AppendBytes(b, m.Sig[:])
	return b, nil
}

func DecodeServerChallenge(b []byte) (ServerChallengeWire, error) {
	var out ServerChallengeWire
	var haveNonce, haveSig bool

	for len(b) > 0 {
		num, typ, n := protowire.ConsumeTag(b)
		if n < 0 {
			return ServerChallengeWire{}, fmt.Errorf("%w: bad tag", ErrDecode)
		}
		b = b[n:]

		switch num {
		case challengeFieldNonce:
			v, n, err := consumeFixedBytes(b, NonceFieldBytes)
			if err != nil {
				return ServerChallengeWire{}, err
			}
			b = b[n:]
			copy(out.Nonce[:], v)
			haveNonce = true
		case challengeFieldSig:
			v, n, err := consumeFixedBytes(b, SigFieldBytes)
			if err != nil {
				return ServerChallengeWire{}, err
			}
			b = b[n:]
			copy(out.Sig[:], v)
			haveSig = true
		default:
			n, err := skipUnknown(num, typ, b)
			if err != nil {
				return ServerChallengeWire{}, err
			}
			b = b[n:]
		}
	}

	if !haveNonce || !haveSig {
		return ServerChallengeWire{}, fmt.Errorf("%w: missing required field", ErrDecode)
	}
	return out, nil
}

// ClientResponseWire is {sig64}.
type ClientResponseWire struct {
	Sig [SigFieldBytes]byte
}

const responseFieldSig = protowire.Number(1)

func EncodeClientResponse(m ClientResponseWire) ([]byte, error) {
	var b []byte
	b = protowire.AppendTag(b, responseFieldSig, protowire.BytesType)
	b = protowire.AppendBytes(b, m.Sig[:])
	return b, nil
}

func DecodeClientResponse(b []byte) (ClientResponseWire, error) {
	var out ClientResponseWire
	var haveSig bool

	for len(b) > 0 {
		num, typ, n := protowire.ConsumeTag(b)
		if n < 0 {
			return ClientResponseWire{}, fmt.Errorf("%w: bad tag", ErrDecode)
		}
		b = b[n:]

		switch num {
		case responseFieldSig:
			v, n, err := consumeFixedBytes(b, SigFieldBytes)
			if err != nil {
				return ClientResponseWire{}, err
			}
			b = b[n:]
			copy(out.Sig[:], v)
			haveSig = true
		default:
			n, err := skipUnknown(num, typ, b)
			if err != nil {
				return ClientResponseWire{}, err
			}
			b = b[n:]
		}
	}

	if !haveSig {
		return ClientResponseWire{}, fmt.Errorf("%w: missing required field", ErrDecode)
	}
	return out, nil
}

// AuthResultWire is {ok, message?}.
type AuthResultWire struct {
	OK         bool
	Message    string
	HasMessage bool
}

const (
	authFieldOK      = protowire.Number(1)
	authFieldMessage = protowire.Number(2)
)

func EncodeAuthResult(m AuthResultWire) ([]byte, error) {
	var b []byte
	b = protowire.AppendTag(b, authFieldOK, protowire.VarintType)
	b = protowire.AppendVarint(b, boolToVarint(m.OK))
	msg := m.Message
	if len(msg) > MaxAuthMessageBytes {
		msg = msg[:MaxAuthMessageBytes]
	}
	if m.HasMessage || msg != "" {
		b = protowire.AppendTag(b, authFieldMessage, protowire.BytesType)
		b = protowire.AppendBytes(b, []byte(msg))
	}
	return b, nil
}

func DecodeAuthResult(b []byte) (AuthResultWire, error) {
	var out AuthResultWire
	var haveOK bool

	for len(b) > 0 {
		num, typ, n := protowire.ConsumeTag(b)
		if n < 0 {
			return AuthResultWire{}, fmt.Errorf("%w: bad tag", ErrDecode)
		}
		b = b[n:]

		switch num {
		case authFieldOK:
			v, n := protowire.ConsumeVarint(b)
			if n < 0 {
				return AuthResultWire{}, fmt.Errorf("%w: bad ok varint", ErrDecode)
			}
			b = b[n:]
			out.OK = v != 0
			haveOK = true
		case authFieldMessage:
			v, n := protowire.ConsumeBytes(b)
			if n < 0 {
				return AuthResultWire{}, fmt.Errorf("%w: bad message bytes", ErrDecode)
			}
			b = b[n:]
			if len(v) > MaxAuthMessageBytes {
				return AuthResultWire{}, fmt.Errorf("%w: message length %d out of bounds", ErrDecode, len(v))
			}
			out.Message = string(v)
			out.HasMessage = true
		default:
			n, err := skipUnknown(num, typ, b)
			if err != nil {
				return AuthResultWire{}, err
			}
			b = b[n:]
		}
	}

	if !haveOK {
		return AuthResultWire{}, fmt.Errorf("%w: missing required field", ErrDecode)
	}
	return out, nil
}

// RangeProofWire is the range-proof request payload: {min, max, bitlen,
// c1, c2, lower_commit[4], upper_commit[4]}.
type RangeProofWire struct {
	Min         uint64
	Max         uint64
	Bitlen      uint32
	C1          [PointFieldBytes]byte
	C2          [PointFieldBytes]byte
	LowerCommit [][PointFieldBytes]byte
	UpperCommit [][PointFieldBytes]byte
}

const (
	rangeFieldMin         = protowire.Number(1)
	rangeFieldMax         = protowire.Number(2)
	rangeFieldBitlen      = protowire.Number(3)
	rangeFieldC1          = protowire.Number(4)
	rangeFieldC2          = protowire.Number(5)
	rangeFieldLowerCommit = protowire.Number(6)
	rangeFieldUpperCommit = protowire.Number(7)
)

func EncodeRangeProofRequest(m RangeProofWire) ([]byte, error) {
	if len(m.LowerCommit) > MaxCommitElements || len(m.UpperCommit) > MaxCommitElements {
		return nil, fmt.Errorf("wire: commit vector exceeds %d elements", MaxCommitElements)
	}
	var b []byte
	b = protowire.AppendTag(b, rangeFieldMin, protowire.VarintType)
	b = protowire.AppendVarint(b, m.Min)
	b = protowire.AppendTag(b, rangeFieldMax, protowire.VarintType)
	b = protowire.AppendVarint(b, m.Max)
	b = protowire.AppendTag(b, rangeFieldBitlen, protowire.VarintType)
	b = protowire.AppendVarint(b, uint64(m.Bitlen))
	b = protowire.AppendTag(b, rangeFieldC1, protowire.BytesType)
	b = protowire.AppendBytes(b, m.C1[:])
	b = protowire.AppendTag(b, rangeFieldC2, protowire.BytesType)
	b = protowire.AppendBytes(b, m.C2[:])
	for _, p := range m.LowerCommit {
		b = protowire.AppendTag(b, rangeFieldLowerCommit, protowire.BytesType)
		b = protowire.AppendBytes(b, p[:])
	}
	for _, p := range m.UpperCommit {
		b = protowire.AppendTag(b, rangeFieldUpperCommit, protowire.BytesType)
		b = protowire.AppendBytes(b, p[:])
	}
	return b, nil
}

func DecodeRangeProofRequest(b []byte) (RangeProofWire, error) {
	var out RangeProofWire
	var haveMin, haveMax, haveBitlen, haveC1, haveC2 bool

	for len(b) > 0 {
		num, typ, n := protowire.ConsumeTag(b)
		if n < 0 {
			return RangeProofWire{}, fmt.Errorf("%w: bad tag", ErrDecode)
		}
		b = b[n:]

		switch num {
		case rangeFieldMin:
			v, n := protowire.ConsumeVarint(b)
			if n < 0 {
				return RangeProofWire{}, fmt.Errorf("%w: bad min varint", ErrDecode)
			}
			b = b[n:]
			out.Min = v
			haveMin = true
		case rangeFieldMax:
			v, n := protowire.ConsumeVarint(b)
			if n < 0 {
				return RangeProofWire{}, fmt.Errorf("%w: bad max varint", ErrDecode)
			}
			b = b[n:]
			out.Max = v
			haveMax = true
		case rangeFieldBitlen:
			v, n := protowire.ConsumeVarint(b)
			if n < 0 {
				return RangeProofWire{}, fmt.Errorf("%w: bad bitlen varint", ErrDecode)
			}
			b = b[n:]
			out.Bitlen = uint32(v)
			haveBitlen = true
		case rangeFieldC1:
			v, n, err := consumeFixedBytes(b, PointFieldBytes)
			if err != nil {
				return RangeProofWire{}, err
			}
			b = b[n:]
			copy(out.C1[:], v)
			haveC1 = true
		case rangeFieldC2:
			v, n, err := consumeFixedBytes(b, PointFieldBytes)
			if err != nil {
				return RangeProofWire{}, err
			}
			b = b[n:]
			copy(out.C2[:], v)
			haveC2 = true
		case rangeFieldLowerCommit:
			v, n, err := consumeFixedBytes(b, PointFieldBytes)
			if err != nil {
				return RangeProofWire{}, err
			}
			b = b[n:]
			if len(out.LowerCommit) >= MaxCommitElements {
				return RangeProofWire{}, fmt.Errorf("%w: lower_commit exceeds %d elements", ErrDecode, MaxCommitElements)
			}
			var p [PointFieldBytes]byte
			copy(p[:], v)
			out.LowerCommit = append(out.LowerCommit, p)
		case rangeFieldUpperCommit:
			v, n, err := consumeFixedBytes(b, PointFieldBytes)
			if err != nil {
				return RangeProofWire{}, err
			}
			b = b[n:]
			if len(out.UpperCommit) >= MaxCommitElements {
				return RangeProofWire{}, fmt.Errorf("%w: upper_commit exceeds %d elements", ErrDecode, MaxCommitElements)
			}
			var p [PointFieldBytes]byte
			copy(p[:], v)
			out.UpperCommit = append(out.UpperCommit, p)
		default:
			n, err := skipUnknown(num, typ, b)
			if err != nil {
				return RangeProofWire{}, err
			}
			b = b[n:]
		}
	}

	if !haveMin || !haveMax || !haveBitlen || !haveC1 || !haveC2 {
		return RangeProofWire{}, fmt.Errorf("%w: missing required field", ErrDecode)
	}
	return out, nil
}

// RangeProofResultWire is {ok, message?}.
type RangeProofResultWire struct {
	OK         bool
	Message    string
	HasMessage bool
}

const (
	rangeResultFieldOK      = protowire.Number(1)
	rangeResultFieldMessage = protowire.Number(2)
)

func EncodeRangeProofResult(m RangeProofResultWire) ([]byte, error) {
	var b []byte
	b = protowire.AppendTag(b, rangeResultFieldOK, protowire.VarintType)
	b = protowire.AppendVarint(b, boolToVarint(m.OK))
	msg := m.Message
	if len(msg) > MaxRangeProofMessageBytes {
		msg = msg[:MaxRangeProofMessageBytes]
	}
	if m.HasMessage || msg != "" {
		b = protowire.AppendTag(b, rangeResultFieldMessage, protowire.BytesType)
		b = protowire.AppendBytes(b, []byte(msg))
	}
	return b, nil
}

func DecodeRangeProofResult(b []byte) (RangeProofResultWire, error) {
	var out RangeProofResultWire
	var haveOK bool

	for len(b) > 0 {
		num, typ, n := protowire.ConsumeTag(b)
		if n < 0 {
			return RangeProofResultWire{}, fmt.Errorf("%w: bad tag", ErrDecode)
		}
		b = b[n:]

		switch num {
		case rangeResultFieldOK:
			v, n := protowire.ConsumeVarint(b)
			if n < 0 {
				return RangeProofResultWire{}, fmt.Errorf("%w: bad ok varint", ErrDecode)
			}
			b = b[n:]
			out.OK = v != 0
			haveOK = true
		case rangeResultFieldMessage:
			v, n := protowire.ConsumeBytes(b)
			if n < 0 {
				return RangeProofResultWire{}, fmt.Errorf("%w: bad message bytes", ErrDecode)
			}
			b = b[n:]
			if len(v) > MaxRangeProofMessageBytes {
				return RangeProofResultWire{}, fmt.Errorf("%w: message length %d out of bounds", ErrDecode, len(v))
			}
			out.Message = string(v)
			out.HasMessage = true
		default:
			n, err := skipUnknown(num, typ, b)
			if err != nil {
				return RangeProofResultWire{}, err
			}
			b = b[n:]
		}
	}

	if !haveOK {
		return RangeProofResultWire{}, fmt.Errorf("%w: missing required field", ErrDecode)
	}
	return out, nil
}

func boolToVarint(b bool) uint64 {
	if b {
		return 1
	}
	return 0
}
