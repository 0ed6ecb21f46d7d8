// Package curve implements the secp256k1 point, scalar, hash, and ECDSA
// primitives that the session state machine and range-proof verifier
// consume.
//
// Curve-library types never leave this package: callers work only with the
// fixed-size wire types (Point33, Sig64, Digest32) and the Point/Scalar
// values this package returns. This keeps
// github.com/btcsuite/btcd/btcec/v2 out of the protocol codec and the
// session driver.
package curve

import (
	"crypto/ecdsa"
	"crypto/rand"
	"crypto/sha256"
	"fmt"
	"math/big"

	"github.com/btcsuite/btcd/btcec/v2"
)

// Point33 is a compressed secp256k1 point: a 0x02/0x03 parity byte followed
// by the 32-byte big-endian x-coordinate.
type Point33 [33]byte

// Sig64 is a raw (non-DER) ECDSA signature: r (32 bytes big-endian)
// concatenated with s (32 bytes big-endian).
type Sig64 [64]byte

// Digest32 is a SHA-256 output.
type Digest32 [32]byte

var (
	// ErrInvalidPoint indicates a point is malformed or not on the curve.
	ErrInvalidPoint = fmt.Errorf("invalid point")
	// ErrIdentityPoint indicates a point is the group identity.
	ErrIdentityPoint = fmt.Errorf("point is identity")
	// ErrInvalidScalar indicates a scalar is out of range.
	ErrInvalidScalar = fmt.Errorf("invalid scalar")
)

// Point is an affine secp256k1 point. The zero value (nil coordinates) is
// the group identity, used only as the seed for the range-proof verifier's
// commitment sums; it never appears on the wire.
type Point struct {
	x, y *big.Int
}

// Identity returns the group identity element.
func Identity() Point {
	return Point{}
}

// IsIdentity reports whether p is the group identity.
func (p Point) IsIdentity() bool {
	return p.x == nil || p.y == nil
}

// Equal reports coordinate equality. The identity element compares unequal
// to every affine point and equal only to itself.
func (p Point) Equal(q Point) bool {
	if p.IsIdentity() || q.IsIdentity() {
		return p.IsIdentity() && q.IsIdentity()
	}
	return p.x.Cmp(q.x) == 0 && p.y.Cmp(q.y) == 0
}

// S256 returns the secp256k1 curve parameters used throughout this package.
func S256() *btcec.KoblitzCurve {
	return btcec.S256()
}

// Decode parses a compressed point and validates it is on the curve and not
// the identity element.
func Decode(b Point33) (Point, error) {
	pub, err := btcec.ParsePubKey(b[:])
	if err != nil {
		return Point{}, fmt.Errorf("%w: %v", ErrInvalidPoint, err)
	}
	x, y := pub.X(), pub.Y()
	if x.Sign() == 0 && y.Sign() == 0 {
		return Point{}, ErrIdentityPoint
	}
	if !S256().IsOnCurve(x, y) {
		return Point{}, ErrInvalidPoint
	}
	return Point{x: x, y: y}, nil
}

// Encode serializes an affine point to compressed form. Encoding the
// identity element is an error; no wire message ever carries it.
func Encode(p Point) (Point33, error) {
	if p.IsIdentity() {
		return Point33{}, ErrIdentityPoint
	}
	var fx, fy btcec.FieldVal
	fx.SetByteSlice(p.x.Bytes())
	fy.SetByteSlice(p.y.Bytes())
	pub := btcec.NewPublicKey(&fx, &fy)
	var out Point33
	copy(out[:], pub.SerializeCompressed())
	return out, nil
}

// Add computes p + q, treating either operand being the identity as a
// no-op, and recognizing a (0, 0) result (P + (-P)) as the identity.
func Add(p, q Point) Point {
	if p.IsIdentity() {
		return q
	}
	if q.IsIdentity() {
		return p
	}
	rx, ry := S256().Add(p.x, p.y, q.x, q.y)
	if rx.Sign() == 0 && ry.Sign() == 0 {
		return Identity()
	}
	return Point{x: rx, y: ry}
}

// Neg computes -p: (x, p - y mod p) where p is the field prime.
func Neg(p Point) Point {
	if p.IsIdentity() {
		return p
	}
	ny := new(big.Int).Sub(S256().P, p.y)
	ny.Mod(ny, S256().P)
	return Point{x: p.x, y: ny}
}

// Scalar is a nonnegative integer reduced modulo the secp256k1 group order.
type Scalar struct {
	v *big.Int
}

// Order returns the secp256k1 group order n.
func Order() *big.Int {
	return S256().N
}

// ScalarFromU64 builds a scalar from an unsigned 64-bit integer, reduced
// modulo the group order.
func ScalarFromU64(v uint64) Scalar {
	n := new(big.Int).SetUint64(v)
	n.Mod(n, Order())
	return Scalar{v: n}
}

// ScalarFromBytes parses a big-endian 32-byte buffer into a scalar reduced
// modulo the group order.
func ScalarFromBytes(b []byte) (Scalar, error) {
	if len(b) != 32 {
		return Scalar{}, fmt.Errorf("%w: expected 32 bytes, got %d", ErrInvalidScalar, len(b))
	}
	n := new(big.Int).SetBytes(b)
	n.Mod(n, Order())
	return Scalar{v: n}, nil
}

// Bytes returns the scalar as a 32-byte big-endian buffer.
func (s Scalar) Bytes() []byte {
	out := make([]byte, 32)
	if s.v == nil {
		return out
	}
	b := s.v.Bytes()
	copy(out[32-len(b):], b)
	return out
}

// ScalarMultGenerator computes s * G.
func ScalarMultGenerator(s Scalar) Point {
	rx, ry := S256().ScalarBaseMult(s.Bytes())
	if rx.Sign() == 0 && ry.Sign() == 0 {
		return Identity()
	}
	return Point{x: rx, y: ry}
}

// ScalarMult computes s * p.
func ScalarMult(p Point, s Scalar) Point {
	if p.IsIdentity() {
		return Identity()
	}
	rx, ry := S256().ScalarMult(p.x, p.y, s.Bytes())
	if rx.Sign() == 0 && ry.Sign() == 0 {
		return Identity()
	}
	return Point{x: rx, y: ry}
}

// PubkeyFromPriv computes the compressed public key for a 32-byte private
// scalar: priv·G.
func PubkeyFromPriv(priv32 []byte) (Point33, error) {
	s, err := ScalarFromBytes(priv32)
	if err != nil {
		return Point33{}, err
	}
	p := ScalarMultGenerator(s)
	return Encode(p)
}

// SHA256 hashes data and returns the digest.
func SHA256(data []byte) Digest32 {
	return sha256.Sum256(data)
}

// RandomBytes fills buf with cryptographically secure random bytes from the
// operating system source.
func RandomBytes(buf []byte) error {
	_, err := rand.Read(buf)
	return err
}

func ecdsaPrivateKey(priv32 []byte) (*ecdsa.PrivateKey, error) {
	s, err := ScalarFromBytes(priv32)
	if err != nil {
		return nil, err
	}
	if s.v.Sign() == 0 {
		return nil, ErrInvalidScalar
	}
	x, y := S256().ScalarBaseMult(priv32)
	return &ecdsa.PrivateKey{
		PublicKey: ecdsa.PublicKey{Curve: S256(), X: x, Y: y},
		D:         s.v,
	}, nil
}

// Sign computes a raw (r ∥ s) ECDSA signature over digest using the
// secp256k1 curve parameters, via the generic stdlib crypto/ecdsa
// implementation.
func Sign(priv32 []byte, digest Digest32) (Sig64, error) {
	priv, err := ecdsaPrivateKey(priv32)
	if err != nil {
		return Sig64{}, err
	}
	r, s, err := ecdsa.Sign(rand.Reader, priv, digest[:])
	if err != nil {
		return Sig64{}, fmt.Errorf("ecdsa sign: %w", err)
	}
	var out Sig64
	rb, sb := r.Bytes(), s.Bytes()
	copy(out[32-len(rb):32], rb)
	copy(out[64-len(sb):64], sb)
	return out, nil
}

// Verify checks a raw (r ∥ s) ECDSA signature over digest against a
// compressed public key.
func Verify(pub33 Point33, digest Digest32, sig Sig64) bool {
	p, err := Decode(pub33)
	if err != nil {
		return false
	}
	r := new(big.Int).SetBytes(sig[:32])
	s := new(big.Int).SetBytes(sig[32:])
	if r.Sign() <= 0 || r.Cmp(Order()) >= 0 || s.Sign() <= 0 || s.Cmp(Order()) >= 0 {
		return false
	}
	pub := &ecdsa.PublicKey{Curve: S256(), X: p.x, Y: p.y}
	return ecdsa.Verify(pub, digest[:], r, s)
}
