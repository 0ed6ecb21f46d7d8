// Command srp-client is a demo driver that exercises the protocol end to
// end against a running srp-server: ClientHello, ServerChallenge,
// ClientResponse, AuthResult, then a RangeProofRequest/Result exchange.
package main

import (
	"encoding/hex"
	"flag"
	"fmt"
	"log"
	"net"

	"github.com/allsmog/secure-range-proof/internal/config"
	"github.com/allsmog/secure-range-proof/internal/curve"
	"github.com/allsmog/secure-range-proof/internal/frame"
	"github.com/allsmog/secure-range-proof/internal/wire"
)

func main() {
	var (
		addr    = flag.String("addr", "127.0.0.1:9000", "srp-server address")
		serial  = flag.String("serial", config.DemoClientSerial, "client serial id")
		privHex = flag.String("privkey", config.DemoClientPrivHex, "client private key, 32 bytes hex")
		min     = flag.Uint64("min", 10, "range proof lower bound")
		max     = flag.Uint64("max", 20, "range proof upper bound")
		value   = flag.Uint64("value", 15, "value being proven in range")
		bitlen  = flag.Uint("bitlen", 8, "bitlen for the max bound")
	)
	flag.Parse()
	priv, err := decodePriv(*privHex)
	if err != nil {
		log.Fatalf("invalid -privkey: %v", err)
	}

	log.Printf("connecting to %s", *addr)
	conn, err := net.Dial("tcp", *addr)
	if err != nil {
		log.Fatalf("dial: %v", err)
	}
	defer conn.Close()

	log.Printf("step 1: sending ClientHello for serial %q", *serial)
	if err := sendHello(conn, *serial, priv); err != nil {
		log.Fatalf("hello: %v", err)
	}

	log.Println("step 2: awaiting ServerChallenge")
	nonce, err := recvChallenge(conn)
	if err != nil {
		log.Fatalf("challenge: %v", err)
	}

	log.Println("step 3: sending ClientResponse")
	if err := sendResponse(conn, *serial, nonce, priv); err != nil {
		log.Fatalf("response: %v", err)
	}

	log.Println("step 4: awaiting AuthResult")
	ok, msg, err := recvAuthResult(conn)
	if err != nil {
		log.Fatalf("auth result: %v", err)
	}
	if !ok {
		log.Fatalf("authentication rejected: %s", msg)
	}
	log.Printf("authenticated: %s", msg)

	log.Printf("step 5: sending RangeProofRequest [min=%d, max=%d, value=%d, bitlen=%d]", *min, *max, *value, *bitlen)
	if err := sendRangeProof(conn, *min, *max, *value, uint32(*bitlen)); err != nil {
		log.Fatalf("range proof request: %v", err)
	}

	log.Println("step 6: awaiting RangeProofResult")
	proofOK, proofMsg, err := recvRangeProofResult(conn)
	if err != nil {
		log.Fatalf("range proof result: %v", err)
	}
	log.Printf("range proof result: ok=%v message=%q", proofOK, proofMsg)
}

func decodePriv(s string) ([]byte, error) {
	b, err := hex.DecodeString(s)
	if err != nil {
		return nil, fmt.Errorf("decode hex: %w", err)
	}
	if len(b) != 32 {
		return nil, fmt.Errorf("expected 32 bytes, got %d", len(b))
	}
	return b, nil
}

func sendEnvelope(conn net.Conn, msgType wire.MessageType, payload []byte) error {
	envBytes, err := wire.EncodeEnvelope(wire.Envelope{Type: msgType, Payload: payload})
	if err != nil {
		return fmt.Errorf("encode envelope: %w", err)
	}
	return frame.WriteFrame(conn, envBytes)
}

func recvEnvelope(conn net.Conn) (wire.Envelope, error) {
	payload, err := frame.ReadFrame(conn)
	if err != nil {
		return wire.Envelope{}, fmt.Errorf("read frame: %w", err)
	}
	return wire.DecodeEnvelope(payload)
}

func sendHello(conn net.Conn, serial string, priv []byte) error {
	digest := curve.SHA256([]byte(serial))
	sig, err := curve.Sign(priv, digest)
	if err != nil {
		return fmt.Errorf("sign hello: %w", err)
	}
	payload, err := wire.EncodeClientHello(wire.ClientHelloWire{SerialID: serial, Sig: sig})
	if err != nil {
		return fmt.Errorf("encode hello: %w", err)
	}
	return sendEnvelope(conn, wire.MessageTypeClientHello, payload)
}

func recvChallenge(conn net.Conn) ([wire.NonceFieldBytes]byte, error) {
	env, err := recvEnvelope(conn)
	if err != nil {
		return [wire.NonceFieldBytes]byte{}, err
	}
	if env.Type != wire.MessageTypeServerChallenge {
		return [wire.NonceFieldBytes]byte{}, fmt.Errorf("unexpected message type %s", env.Type)
	}
	challenge, err := wire.DecodeServerChallenge(env.Payload)
	if err != nil {
		return [wire.NonceFieldBytes]byte{}, fmt.Errorf("decode challenge: %w", err)
	}
	return challenge.Nonce, nil
}

func sendResponse(conn net.Conn, serial string, nonce [wire.NonceFieldBytes]byte, priv []byte) error {
	digest := curve.SHA256(nonce[:])
	sig, err := curve.Sign(priv, digest)
	if err != nil {
		return fmt.Errorf("sign response: %w", err)
	}
	payload, err := wire.EncodeClientResponse(wire.ClientResponseWire{Sig: sig})
	if err != nil {
		return fmt.Errorf("encode response: %w", err)
	}
	return sendEnvelope(conn, wire.MessageTypeClientResponse, payload)
}

func recvAuthResult(conn net.Conn) (bool, string, error) {
	env, err := recvEnvelope(conn)
	if err != nil {
		return false, "", err
	}
	if env.Type != wire.MessageTypeAuthResult {
		return false, "", fmt.Errorf("unexpected message type %s", env.Type)
	}
	result, err := wire.DecodeAuthResult(env.Payload)
	if err != nil {
		return false, "", fmt.Errorf("decode auth result: %w", err)
	}
	return result.OK, result.Message, nil
}

// sendRangeProof builds and sends a proof that value lies in [min, max],
// splitting (value-min) and (max-value) into four nonzero terms each so
// neither commitment vector needs to encode the group identity.
func sendRangeProof(conn net.Conn, min, max, value uint64, bitlen uint32) error {
	lowerParts, err := splitFour(value - min)
	if err != nil {
		return fmt.Errorf("split value-min: %w", err)
	}
	upperParts, err := splitFour(max - value)
	if err != nil {
		return fmt.Errorf("split max-value: %w", err)
	}

	lowerCommit, c2, err := commitPoints(lowerParts)
	if err != nil {
		return fmt.Errorf("commit lower: %w", err)
	}
	upperCommit, c1, err := commitPoints(upperParts)
	if err != nil {
		return fmt.Errorf("commit upper: %w", err)
	}

	req := wire.RangeProofWire{
		Min:         min,
		Max:         max,
		Bitlen:      bitlen,
		C1:          c1,
		C2:          c2,
		LowerCommit: lowerCommit,
		UpperCommit: upperCommit,
	}
	payload, err := wire.EncodeRangeProofRequest(req)
	if err != nil {
		return fmt.Errorf("encode range proof request: %w", err)
	}
	return sendEnvelope(conn, wire.MessageTypeRangeProofRequest, payload)
}

// splitFour decomposes n into four positive terms, required because the
// group identity never appears on the wire.
func splitFour(n uint64) ([4]uint64, error) {
	if n < 4 {
		return [4]uint64{}, fmt.Errorf("value %d too close to its bound for a 4-term demo split", n)
	}
	return [4]uint64{1, 1, 1, n - 3}, nil
}

func recvRangeProofResult(conn net.Conn) (bool, string, error) {
	env, err := recvEnvelope(conn)
	if err != nil {
		return false, "", err
	}
	if env.Type != wire.MessageTypeRangeProofResult {
		return false, "", fmt.Errorf("unexpected message type %s", env.Type)
	}
	result, err := wire.DecodeRangeProofResult(env.Payload)
	if err != nil {
		return false, "", fmt.Errorf("decode range proof result: %w", err)
	}
	return result.OK, result.Message, nil
}

func commitPoints(parts [4]uint64) ([][wire.PointFieldBytes]byte, [wire.PointFieldBytes]byte, error) {
	sum := curve.Identity()
	out := make([][wire.PointFieldBytes]byte, 0, 4)
	for _, n := range parts {
		p := curve.ScalarMultGenerator(curve.ScalarFromU64(n))
		enc, err := curve.Encode(p)
		if err != nil {
			return nil, [wire.PointFieldBytes]byte{}, err
		}
		out = append(out, enc)
		sum = curve.Add(sum, p)
	}
	sumEnc, err := curve.Encode(sum)
	if err != nil {
		return nil, [wire.PointFieldBytes]byte{}, err
	}
	return out, sumEnc, nil
}
