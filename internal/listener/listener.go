// Package listener runs the TCP accept loop: one goroutine per accepted
// connection, each driving its own internal/session.Session, guarded by a
// per-remote-IP admission rate limiter and panic recovery so a single bad
// connection cannot take down the server.
package listener

import (
	"errors"
	"net"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/allsmog/secure-range-proof/internal/registry"
	"github.com/allsmog/secure-range-proof/internal/session"
	"github.com/allsmog/secure-range-proof/internal/telemetry"
)

// DefaultMaxConnsPerWindow and DefaultWindow bound how many new connections
// a single remote IP may open before the listener starts refusing them.
const (
	DefaultMaxConnsPerWindow = 20
	DefaultWindow            = time.Minute
)

// Listener accepts TCP connections and hands each one to a fresh Session.
type Listener struct {
	ln      net.Listener
	keys    registry.ServerKeys
	clients *registry.ClientRegistry
	log     *zap.Logger
	limiter *connRateLimiter
}

// Config configures a Listener. MaxConnsPerWindow and Window default to
// DefaultMaxConnsPerWindow and DefaultWindow when zero.
type Config struct {
	Addr              string
	Keys              registry.ServerKeys
	Clients           *registry.ClientRegistry
	Log               *zap.Logger
	MaxConnsPerWindow int
	Window            time.Duration
}

// Listen binds addr and returns a Listener ready to Serve.
func Listen(cfg Config) (*Listener, error) {
	maxConns := cfg.MaxConnsPerWindow
	if maxConns <= 0 {
		maxConns = DefaultMaxConnsPerWindow
	}
	window := cfg.Window
	if window <= 0 {
		window = DefaultWindow
	}

	ln, err := net.Listen("tcp", cfg.Addr)
	if err != nil {
		return nil, err
	}

	return &Listener{
		ln:      ln,
		keys:    cfg.Keys,
		clients: cfg.Clients,
		log:     cfg.Log,
		limiter: newConnRateLimiter(maxConns, window),
	}, nil
}

// Addr reports the bound local address.
func (l *Listener) Addr() net.Addr {
	return l.ln.Addr()
}

// Close stops accepting new connections.
func (l *Listener) Close() error {
	return l.ln.Close()
}

// Serve runs the accept loop until Close is called or a non-recoverable
// accept error occurs. It returns nil on a clean shutdown (net.ErrClosed).
func (l *Listener) Serve() error {
	for {
		conn, err := l.ln.Accept()
		if err != nil {
			if errors.Is(err, net.ErrClosed) {
				return nil
			}
			return err
		}

		remoteAddr := conn.RemoteAddr().String()
		if !l.limiter.allow(remoteAddr) {
			l.log.Warn("connection rejected by rate limiter", zap.String("remote_addr", remoteAddr))
			conn.Close()
			continue
		}

		go l.serveConn(conn, remoteAddr)
	}
}

func (l *Listener) serveConn(conn net.Conn, remoteAddr string) {
	defer conn.Close()
	defer func() {
		if r := recover(); r != nil {
			l.log.Error("session goroutine panicked", zap.String("remote_addr", remoteAddr), zap.Any("panic", r))
		}
	}()

	connID := uuid.Must(uuid.NewRandom()).String()
	sessLog := telemetry.SessionLogger(l.log, remoteAddr).With(zap.String("conn_id", connID))
	sess := session.New(conn, l.keys, l.clients, sessLog)

	if err := sess.Run(); err != nil {
		sessLog.Warn("session ended with error", zap.Error(err))
		return
	}
	sessLog.Info("session closed")
}
