// Package registry holds the server's own keypair and the set of known
// client public keys. Both are built once at startup from internal/config
// and then shared by read-only reference across every session goroutine:
// unlike the teacher's MemoryStore, there is no mutex here, because
// nothing ever mutates a registry after construction.
package registry

import (
	"fmt"

	"github.com/allsmog/secure-range-proof/internal/curve"
)

// ServerKeys is the server's long-lived ECDSA keypair, used to sign
// ServerChallenge messages during the handshake.
type ServerKeys struct {
	Priv [32]byte
	Pub  curve.Point33
}

// NewServerKeys derives the compressed public key for a 32-byte private
// scalar.
func NewServerKeys(priv [32]byte) (ServerKeys, error) {
	pub, err := curve.PubkeyFromPriv(priv[:])
	if err != nil {
		return ServerKeys{}, fmt.Errorf("registry: derive server pubkey: %w", err)
	}
	return ServerKeys{Priv: priv, Pub: pub}, nil
}

// ClientRegistry maps a client's serial_id to its compressed public key.
// It is built once at startup and never mutated afterward.
type ClientRegistry struct {
	clients map[string]curve.Point33
}

// NewClientRegistry builds a registry from a serial_id -> pubkey map. The
// caller's map is copied so later mutation of the source map cannot affect
// the registry.
func NewClientRegistry(clients map[string]curve.Point33) *ClientRegistry {
	copied := make(map[string]curve.Point33, len(clients))
	for k, v := range clients {
		copied[k] = v
	}
	return &ClientRegistry{clients: copied}
}

// Lookup returns the compressed public key registered for serialID, and
// whether an entry exists. An absent serial must be treated as a fail-
// closed authentication failure by the caller.
func (r *ClientRegistry) Lookup(serialID string) (curve.Point33, bool) {
	pub, ok := r.clients[serialID]
	return pub, ok
}

// Len reports the number of registered clients.
func (r *ClientRegistry) Len() int {
	return len(r.clients)
}
