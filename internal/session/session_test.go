package session

import (
	"net"
	"testing"
	"time"

	"github.com/allsmog/secure-range-proof/internal/curve"
	"github.com/allsmog/secure-range-proof/internal/frame"
	"github.com/allsmog/secure-range-proof/internal/registry"
	"github.com/allsmog/secure-range-proof/internal/wire"
)

type testClient struct {
	conn       net.Conn
	serial     string
	priv       [32]byte
	serverPub  curve.Point33
	nonce      [32]byte
}

func newTestHarness(t *testing.T) (*Session, *testClient, func()) {
	t.Helper()
	serverConn, clientConn := net.Pipe()

	var serverPriv [32]byte
	if err := curve.RandomBytes(serverPriv[:]); err != nil {
		t.Fatalf("random bytes: %v", err)
	}
	keys, err := registry.NewServerKeys(serverPriv)
	if err != nil {
		t.Fatalf("server keys: %v", err)
	}

	var clientPriv [32]byte
	if err := curve.RandomBytes(clientPriv[:]); err != nil {
		t.Fatalf("random bytes: %v", err)
	}
	clientPub, err := curve.PubkeyFromPriv(clientPriv[:])
	if err != nil {
		t.Fatalf("client pubkey: %v", err)
	}

	serial := "DEMO-SERIAL-0001"
	clients := registry.NewClientRegistry(map[string]curve.Point33{serial: clientPub})

	s := New(serverConn, keys, clients, nil)
	client := &testClient{conn: clientConn, serial: serial, priv: clientPriv, serverPub: keys.Pub}

	cleanup := func() {
		serverConn.Close()
		clientConn.Close()
	}
	return s, client, cleanup
}

func (c *testClient) sendEnvelope(t *testing.T, env wire.Envelope) {
	t.Helper()
	b, err := wire.EncodeEnvelope(env)
	if err != nil {
		t.Fatalf("encode envelope: %v", err)
	}
	if err := frame.WriteFrame(c.conn, b); err != nil {
		t.Fatalf("write frame: %v", err)
	}
}

func (c *testClient) recvEnvelope(t *testing.T) wire.Envelope {
	t.Helper()
	c.conn.SetReadDeadline(time.Now().Add(2 * time.Second))
	payload, err := frame.ReadFrame(c.conn)
	if err != nil {
		t.Fatalf("read frame: %v", err)
	}
	env, err := wire.DecodeEnvelope(payload)
	if err != nil {
		t.Fatalf("decode envelope: %v", err)
	}
	return env
}

func (c *testClient) sendHello(t *testing.T) {
	t.Helper()
	digest := curve.SHA256([]byte(c.serial))
	sig, err := curve.Sign(c.priv[:], digest)
	if err != nil {
		t.Fatalf("sign hello: %v", err)
	}
	hello := wire.ClientHelloWire{SerialID: c.serial, Sig: sig}
	payload, err := wire.EncodeClientHello(hello)
	if err != nil {
		t.Fatalf("encode hello: %v", err)
	}
	c.sendEnvelope(t, wire.Envelope{Type: wire.MessageTypeClientHello, Payload: payload})
}

func (c *testClient) recvChallenge(t *testing.T) {
	t.Helper()
	env := c.recvEnvelope(t)
	if env.Type != wire.MessageTypeServerChallenge {
		t.Fatalf("expected ServerChallenge, got %s", env.Type)
	}
	challenge, err := wire.DecodeServerChallenge(env.Payload)
	if err != nil {
		t.Fatalf("decode challenge: %v", err)
	}
	if !curve.Verify(c.serverPub, curve.SHA256(append([]byte(c.serial), challenge.Nonce[:]...)), challenge.Sig) {
		t.Fatal("server challenge signature did not verify")
	}
	c.nonce = challenge.Nonce
}

func (c *testClient) sendResponse(t *testing.T, sig curve.Sig64) {
	t.Helper()
	payload, err := wire.EncodeClientResponse(wire.ClientResponseWire{Sig: sig})
	if err != nil {
		t.Fatalf("encode response: %v", err)
	}
	c.sendEnvelope(t, wire.Envelope{Type: wire.MessageTypeClientResponse, Payload: payload})
}

func (c *testClient) validResponseSig(t *testing.T) curve.Sig64 {
	t.Helper()
	sig, err := curve.Sign(c.priv[:], curve.SHA256(c.nonce[:]))
	if err != nil {
		t.Fatalf("sign response: %v", err)
	}
	return sig
}

func runSession(t *testing.T, s *Session) chan error {
	done := make(chan error, 1)
	go func() { done <- s.Run() }()
	t.Cleanup(func() {
		select {
		case <-done:
		case <-time.After(2 * time.Second):
		}
	})
	return done
}

func TestHappyPathHandshakeAndValidProof(t *testing.T) {
	s, client, cleanup := newTestHarness(t)
	defer cleanup()
	runSession(t, s)

	client.sendHello(t)
	client.recvChallenge(t)
	client.sendResponse(t, client.validResponseSig(t))

	authEnv := client.recvEnvelope(t)
	if authEnv.Type != wire.MessageTypeAuthResult {
		t.Fatalf("expected AuthResult, got %s", authEnv.Type)
	}
	auth, err := wire.DecodeAuthResult(authEnv.Payload)
	if err != nil {
		t.Fatalf("decode auth result: %v", err)
	}
	if !auth.OK {
		t.Fatal("expected auth to succeed")
	}

	req := buildValidProofRequest(t, 10, 20, 5)
	payload, err := wire.EncodeRangeProofRequest(req)
	if err != nil {
		t.Fatalf("encode range proof request: %v", err)
	}
	client.sendEnvelope(t, wire.Envelope{Type: wire.MessageTypeRangeProofRequest, Payload: payload})

	resultEnv := client.recvEnvelope(t)
	if resultEnv.Type != wire.MessageTypeRangeProofResult {
		t.Fatalf("expected RangeProofResult, got %s", resultEnv.Type)
	}
	result, err := wire.DecodeRangeProofResult(resultEnv.Payload)
	if err != nil {
		t.Fatalf("decode range proof result: %v", err)
	}
	if !result.OK {
		t.Fatalf("expected valid proof, got: %s", result.Message)
	}
}

func TestUnknownSerialClosesWithNoReply(t *testing.T) {
	s, client, cleanup := newTestHarness(t)
	defer cleanup()
	done := runSession(t, s)

	digest := curve.SHA256([]byte("NOPE"))
	sig, err := curve.Sign(client.priv[:], digest)
	if err != nil {
		t.Fatalf("sign: %v", err)
	}
	payload, err := wire.EncodeClientHello(wire.ClientHelloWire{SerialID: "NOPE", Sig: sig})
	if err != nil {
		t.Fatalf("encode: %v", err)
	}
	client.sendEnvelope(t, wire.Envelope{Type: wire.MessageTypeClientHello, Payload: payload})

	select {
	case err := <-done:
		if err == nil {
			t.Fatal("expected session to report an error for unknown serial")
		}
	case <-time.After(2 * time.Second):
		t.Fatal("session did not close for unknown serial")
	}
}

func TestBadClientResponseSignature(t *testing.T) {
	s, client, cleanup := newTestHarness(t)
	defer cleanup()
	done := runSession(t, s)

	client.sendHello(t)
	client.recvChallenge(t)

	var zeroSig curve.Sig64
	client.sendResponse(t, zeroSig)

	authEnv := client.recvEnvelope(t)
	auth, err := wire.DecodeAuthResult(authEnv.Payload)
	if err != nil {
		t.Fatalf("decode auth result: %v", err)
	}
	if auth.OK {
		t.Fatal("expected auth failure for zero signature")
	}
	if auth.Message != "auth failed" {
		t.Errorf("expected message 'auth failed', got %q", auth.Message)
	}

	select {
	case err := <-done:
		if err == nil {
			t.Fatal("expected session to close after auth failure")
		}
	case <-time.After(2 * time.Second):
		t.Fatal("session did not close after sending AuthResult{ok:false}")
	}
}

func TestOutOfPhaseRangeProofCloses(t *testing.T) {
	s, client, cleanup := newTestHarness(t)
	defer cleanup()
	done := runSession(t, s)

	req := buildValidProofRequest(t, 0, 4, 3)
	payload, err := wire.EncodeRangeProofRequest(req)
	if err != nil {
		t.Fatalf("encode: %v", err)
	}
	client.sendEnvelope(t, wire.Envelope{Type: wire.MessageTypeRangeProofRequest, Payload: payload})

	select {
	case err := <-done:
		if err == nil {
			t.Fatal("expected out-of-phase error")
		}
	case <-time.After(2 * time.Second):
		t.Fatal("session did not close for out-of-phase request")
	}
}

func TestRangeCheckFailureKeepsSessionAuthed(t *testing.T) {
	s, client, cleanup := newTestHarness(t)
	defer cleanup()
	runSession(t, s)

	client.sendHello(t)
	client.recvChallenge(t)
	client.sendResponse(t, client.validResponseSig(t))
	authEnv := client.recvEnvelope(t)
	if _, err := wire.DecodeAuthResult(authEnv.Payload); err != nil {
		t.Fatalf("decode auth result: %v", err)
	}

	// Build a request whose c1/c2 do not satisfy c1+c2 == (max-min)*G.
	req := buildValidProofRequest(t, 10, 20, 5)
	req.C1 = mustEncodeTest(t, curve.ScalarMultGenerator(curve.ScalarFromU64(99999)))
	payload, err := wire.EncodeRangeProofRequest(req)
	if err != nil {
		t.Fatalf("encode: %v", err)
	}
	client.sendEnvelope(t, wire.Envelope{Type: wire.MessageTypeRangeProofRequest, Payload: payload})

	resultEnv := client.recvEnvelope(t)
	result, err := wire.DecodeRangeProofResult(resultEnv.Payload)
	if err != nil {
		t.Fatalf("decode result: %v", err)
	}
	if result.OK {
		t.Fatal("expected proof verification to fail")
	}

	// Session should remain Authed: send a second, valid request.
	req2 := buildValidProofRequest(t, 10, 20, 5)
	payload2, err := wire.EncodeRangeProofRequest(req2)
	if err != nil {
		t.Fatalf("encode: %v", err)
	}
	client.sendEnvelope(t, wire.Envelope{Type: wire.MessageTypeRangeProofRequest, Payload: payload2})
	resultEnv2 := client.recvEnvelope(t)
	result2, err := wire.DecodeRangeProofResult(resultEnv2.Payload)
	if err != nil {
		t.Fatalf("decode result 2: %v", err)
	}
	if !result2.OK {
		t.Fatalf("expected second valid proof to succeed, got: %s", result2.Message)
	}
}

func TestMultiRequestEchoesRequestIDsInOrder(t *testing.T) {
	s, client, cleanup := newTestHarness(t)
	defer cleanup()
	runSession(t, s)

	client.sendHello(t)
	client.recvChallenge(t)
	client.sendResponse(t, client.validResponseSig(t))
	client.recvEnvelope(t) // AuthResult

	for _, id := range []uint32{7, 42} {
		req := buildValidProofRequest(t, 10, 20, 5)
		payload, err := wire.EncodeRangeProofRequest(req)
		if err != nil {
			t.Fatalf("encode: %v", err)
		}
		client.sendEnvelope(t, wire.Envelope{Type: wire.MessageTypeRangeProofRequest, Payload: payload, RequestID: id, HasRequestID: true})

		resultEnv := client.recvEnvelope(t)
		if !resultEnv.HasRequestID || resultEnv.RequestID != id {
			t.Fatalf("expected request_id %d echoed, got has=%v id=%d", id, resultEnv.HasRequestID, resultEnv.RequestID)
		}
	}
}

func mustEncodeTest(t *testing.T, p curve.Point) curve.Point33 {
	t.Helper()
	enc, err := curve.Encode(p)
	if err != nil {
		t.Fatalf("encode point: %v", err)
	}
	return enc
}

// buildValidProofRequest mirrors internal/rangeproof's test helper: it
// constructs a RangeProofWire that satisfies every check for [min, max]
// without ever encoding the identity point.
func buildValidProofRequest(t *testing.T, min, max uint64, bitlen uint32) wire.RangeProofWire {
	t.Helper()
	width := max - min
	widthG := curve.ScalarMultGenerator(curve.ScalarFromU64(width))

	upperSum := curve.ScalarMultGenerator(curve.ScalarFromU64(width + 1000))
	upperCommit := [][33]byte{
		mustEncodeTest(t, curve.ScalarMultGenerator(curve.ScalarFromU64(1))),
		mustEncodeTest(t, curve.ScalarMultGenerator(curve.ScalarFromU64(2))),
		mustEncodeTest(t, curve.ScalarMultGenerator(curve.ScalarFromU64(3))),
		mustEncodeTest(t, curve.Add(upperSum, curve.Neg(curve.ScalarMultGenerator(curve.ScalarFromU64(6))))),
	}

	c2Point := curve.Add(widthG, curve.Neg(upperSum))
	a := curve.ScalarMultGenerator(curve.ScalarFromU64(555))
	rest := curve.Add(c2Point, curve.Neg(a))
	lowerCommit := [][33]byte{
		mustEncodeTest(t, a),
		mustEncodeTest(t, rest),
		mustEncodeTest(t, curve.ScalarMultGenerator(curve.ScalarFromU64(777))),
		mustEncodeTest(t, curve.Neg(curve.ScalarMultGenerator(curve.ScalarFromU64(777)))),
	}

	return wire.RangeProofWire{
		Min:         min,
		Max:         max,
		Bitlen:      bitlen,
		C1:          mustEncodeTest(t, upperSum),
		C2:          mustEncodeTest(t, c2Point),
		LowerCommit: lowerCommit,
		UpperCommit: upperCommit,
	}
}
