// Package telemetry wires structured logging for the server, upgrading
// the teacher's plain log.Printf calls to leveled zap fields so session
// lifecycle events carry consistent structured context (serial,
// remote_addr, phase, request_id).
package telemetry

import (
	"go.uber.org/zap"
)

// New builds a production-style structured logger, or a development
// logger with human-readable console output when debug is true.
func New(debug bool) (*zap.Logger, error) {
	if debug {
		return zap.NewDevelopment()
	}
	return zap.NewProduction()
}

// SessionLogger returns a child logger carrying the fields common to
// every log line emitted for one connection.
func SessionLogger(base *zap.Logger, remoteAddr string) *zap.Logger {
	return base.With(zap.String("remote_addr", remoteAddr))
}

// WithSerial annotates a session logger with the authenticated client's
// serial once it becomes known.
func WithSerial(log *zap.Logger, serial string) *zap.Logger {
	return log.With(zap.String("serial", serial))
}

// WithPhase annotates a log line with the session state machine phase it
// was emitted from.
func WithPhase(log *zap.Logger, phase string) *zap.Logger {
	return log.With(zap.String("phase", phase))
}

// WithRequestID annotates a log line with the request_id echoed on a
// RangeProofResult, when present.
func WithRequestID(log *zap.Logger, requestID uint32) *zap.Logger {
	return log.With(zap.Uint32("request_id", requestID))
}
