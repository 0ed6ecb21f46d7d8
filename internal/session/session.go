// Package session drives the per-connection protocol state machine:
// AwaitHello -> AwaitResponse -> Authed. One Session is bound to one
// net.Conn and runs its read loop synchronously on the caller's
// goroutine; internal/listener is what gives each connection its own
// goroutine.
package session

import (
	"errors"
	"fmt"
	"io"
	"net"

	"go.uber.org/zap"

	"github.com/allsmog/secure-range-proof/internal/curve"
	"github.com/allsmog/secure-range-proof/internal/frame"
	"github.com/allsmog/secure-range-proof/internal/rangeproof"
	"github.com/allsmog/secure-range-proof/internal/registry"
	"github.com/allsmog/secure-range-proof/internal/wire"
)

// Phase names the state machine's current state.
type Phase int

const (
	AwaitHello Phase = iota
	AwaitResponse
	Authed
)

func (p Phase) String() string {
	switch p {
	case AwaitHello:
		return "AwaitHello"
	case AwaitResponse:
		return "AwaitResponse"
	case Authed:
		return "Authed"
	default:
		return "Unknown"
	}
}

// ErrOutOfPhase is returned when a message type arrives in a phase that
// does not accept it. The caller must close the connection.
var ErrOutOfPhase = errors.New("session: message received out of phase")

// Session holds the per-connection state carried between frames:
// client_pub and authed_serial are set once AwaitHello succeeds; nonce is
// set at the same time and frozen for the life of the connection.
type Session struct {
	conn    net.Conn
	keys    registry.ServerKeys
	clients *registry.ClientRegistry
	log     *zap.Logger

	phase        Phase
	clientPub    curve.Point33
	authedSerial string
	nonce        [wire.NonceFieldBytes]byte
}

// New constructs a session bound to conn, starting in AwaitHello.
func New(conn net.Conn, keys registry.ServerKeys, clients *registry.ClientRegistry, log *zap.Logger) *Session {
	return &Session{
		conn:    conn,
		keys:    keys,
		clients: clients,
		log:     log,
		phase:   AwaitHello,
	}
}

// Run drives the session's read loop until the connection closes or a
// fatal protocol error occurs. It never returns an error for a clean
// peer-initiated close (io.EOF); any other outcome is returned for the
// caller to log.
func (s *Session) Run() error {
	for {
		payload, err := frame.ReadFrame(s.conn)
		if err != nil {
			if errors.Is(err, io.EOF) {
				return nil
			}
			return fmt.Errorf("session: read frame: %w", err)
		}

		env, err := wire.DecodeEnvelope(payload)
		if err != nil {
			return fmt.Errorf("session: decode envelope: %w", err)
		}

		if err := s.handleEnvelope(env); err != nil {
			return err
		}
	}
}

func (s *Session) handleEnvelope(env wire.Envelope) error {
	switch env.Type {
	case wire.MessageTypeClientHello:
		return s.handleHello(env.Payload)
	case wire.MessageTypeClientResponse:
		return s.handleClientResponse(env.Payload)
	case wire.MessageTypeRangeProofRequest:
		var requestID uint32
		hasRequestID := env.HasRequestID
		if hasRequestID {
			requestID = env.RequestID
		}
		return s.handleRangeProof(env.Payload, requestID, hasRequestID)
	default:
		return fmt.Errorf("session: unexpected message type %s in phase %s", env.Type, s.phase)
	}
}

func (s *Session) handleHello(payload []byte) error {
	if s.phase != AwaitHello {
		return fmt.Errorf("%w: ClientHello in phase %s", ErrOutOfPhase, s.phase)
	}

	hello, err := wire.DecodeClientHello(payload)
	if err != nil {
		return fmt.Errorf("session: decode ClientHello: %w", err)
	}

	pub, ok := s.clients.Lookup(hello.SerialID)
	if !ok {
		return fmt.Errorf("session: unknown client serial %q", hello.SerialID)
	}

	digest := curve.SHA256([]byte(hello.SerialID))
	if !curve.Verify(pub, digest, curve.Sig64(hello.Sig)) {
		return fmt.Errorf("session: ClientHello signature verification failed for serial %q", hello.SerialID)
	}

	s.clientPub = pub
	s.authedSerial = hello.SerialID
	if err := curve.RandomBytes(s.nonce[:]); err != nil {
		return fmt.Errorf("session: generate nonce: %w", err)
	}

	challengeDigest := curve.SHA256(append([]byte(s.authedSerial), s.nonce[:]...))
	serverSig, err := curve.Sign(s.keys.Priv[:], challengeDigest)
	if err != nil {
		return fmt.Errorf("session: sign ServerChallenge: %w", err)
	}

	challenge := wire.ServerChallengeWire{Nonce: s.nonce, Sig: serverSig}
	challengePayload, err := wire.EncodeServerChallenge(challenge)
	if err != nil {
		return fmt.Errorf("session: encode ServerChallenge: %w", err)
	}
	if err := s.send(wire.MessageTypeServerChallenge, challengePayload, 0, false); err != nil {
		return err
	}

	s.phase = AwaitResponse
	if s.log != nil {
		s.log.Info("client hello accepted", zap.String("serial", s.authedSerial))
	}
	return nil
}

func (s *Session) handleClientResponse(payload []byte) error {
	if s.phase != AwaitResponse {
		return fmt.Errorf("%w: ClientResponse in phase %s", ErrOutOfPhase, s.phase)
	}

	resp, err := wire.DecodeClientResponse(payload)
	if err != nil {
		return fmt.Errorf("session: decode ClientResponse: %w", err)
	}

	digest := curve.SHA256(s.nonce[:])
	if !curve.Verify(s.clientPub, digest, curve.Sig64(resp.Sig)) {
		result := wire.AuthResultWire{OK: false, Message: "auth failed", HasMessage: true}
		authPayload, encErr := wire.EncodeAuthResult(result)
		if encErr != nil {
			return fmt.Errorf("session: encode AuthResult: %w", encErr)
		}
		if sendErr := s.send(wire.MessageTypeAuthResult, authPayload, 0, false); sendErr != nil {
			return sendErr
		}
		return fmt.Errorf("session: ClientResponse signature verification failed for serial %q", s.authedSerial)
	}

	result := wire.AuthResultWire{OK: true, Message: "auth ok", HasMessage: true}
	authPayload, err := wire.EncodeAuthResult(result)
	if err != nil {
		return fmt.Errorf("session: encode AuthResult: %w", err)
	}
	if err := s.send(wire.MessageTypeAuthResult, authPayload, 0, false); err != nil {
		return err
	}

	s.phase = Authed
	if s.log != nil {
		s.log.Info("client authenticated", zap.String("serial", s.authedSerial))
	}
	return nil
}

func (s *Session) handleRangeProof(payload []byte, requestID uint32, hasRequestID bool) error {
	if s.phase != Authed {
		return fmt.Errorf("%w: RangeProofRequest in phase %s", ErrOutOfPhase, s.phase)
	}

	req, err := wire.DecodeRangeProofRequest(payload)
	if err != nil {
		return fmt.Errorf("session: decode RangeProofRequest: %w", err)
	}

	result := rangeproof.Verify(req)
	if s.log != nil {
		s.log.Info("range proof verified",
			zap.String("serial", s.authedSerial),
			zap.Bool("ok", result.OK),
			zap.String("message", result.Message))
	}

	resultPayload, err := wire.EncodeRangeProofResult(wire.RangeProofResultWire{
		OK:         result.OK,
		Message:    result.Message,
		HasMessage: result.Message != "",
	})
	if err != nil {
		return fmt.Errorf("session: encode RangeProofResult: %w", err)
	}
	// Range-proof failure is non-fatal: stay Authed regardless of result.OK.
	return s.send(wire.MessageTypeRangeProofResult, resultPayload, requestID, hasRequestID)
}

func (s *Session) send(msgType wire.MessageType, payload []byte, requestID uint32, hasRequestID bool) error {
	env := wire.Envelope{Type: msgType, Payload: payload, RequestID: requestID, HasRequestID: hasRequestID}
	envBytes, err := wire.EncodeEnvelope(env)
	if err != nil {
		return fmt.Errorf("session: encode envelope: %w", err)
	}
	if err := frame.WriteFrame(s.conn, envBytes); err != nil {
		return fmt.Errorf("session: write frame: %w", err)
	}
	return nil
}
