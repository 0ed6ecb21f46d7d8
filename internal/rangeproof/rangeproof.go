// Package rangeproof verifies the Pedersen-commitment range proofs carried
// in RangeProofRequest messages: a four-term lower and upper commitment
// vector is checked to sum to c2 and c1 respectively, and two algebraic
// identities over c1/c2/min/max are checked against the generator point.
package rangeproof

import (
	"fmt"

	"github.com/allsmog/secure-range-proof/internal/curve"
	"github.com/allsmog/secure-range-proof/internal/wire"
)

// MinBitlen and MaxBitlen bound the accepted bitlen field. The wire format
// carries bitlen as a uint32 with headroom up to 64, but this verifier only
// ever accepts the 1..32 range.
const (
	MinBitlen = 1
	MaxBitlen = 32
)

// Result is the outcome of Verify.
type Result struct {
	OK      bool
	Message string
}

func fail(msg string) Result {
	return Result{OK: false, Message: msg}
}

// Verify runs the seven ordered checks against req and reports the first
// one that fails, or a success message naming the verified range. A
// malformed point field (fails to decode or is the group identity) is
// treated the same as any other check failure: Verify never returns an
// error, since proof failure is non-fatal to the session.
func Verify(req wire.RangeProofWire) Result {
	if req.Min > req.Max {
		return fail("min > max")
	}
	if req.Bitlen < MinBitlen || req.Bitlen > MaxBitlen {
		return fail("bitlen must be 1..32 (demo constraint)")
	}

	maxAllowed := (uint64(1) << req.Bitlen) - 1
	if req.Max > maxAllowed {
		return fail("max exceeds 2^bitlen-1")
	}

	if len(req.LowerCommit) != 4 || len(req.UpperCommit) != 4 {
		return fail("expected exactly 4 lower_commit and 4 upper_commit points")
	}

	c1, err := curve.Decode(curve.Point33(req.C1))
	if err != nil {
		return fail("invalid c1 point")
	}
	c2, err := curve.Decode(curve.Point33(req.C2))
	if err != nil {
		return fail("invalid c2 point")
	}

	sumLower := curve.Identity()
	for _, p33 := range req.LowerCommit {
		p, err := curve.Decode(curve.Point33(p33))
		if err != nil {
			return fail("invalid lower_commit point")
		}
		sumLower = curve.Add(sumLower, p)
	}
	if !sumLower.Equal(c2) {
		return fail("lower_commit sum does not match c2")
	}

	sumUpper := curve.Identity()
	for _, p33 := range req.UpperCommit {
		p, err := curve.Decode(curve.Point33(p33))
		if err != nil {
			return fail("invalid upper_commit point")
		}
		sumUpper = curve.Add(sumUpper, p)
	}
	if !sumUpper.Equal(c1) {
		return fail("upper_commit sum does not match c1")
	}

	// c1 + c2 == (max-min)·G  (the blinding term cancels)
	c1PlusC2 := curve.Add(c1, c2)
	width := req.Max - req.Min
	widthG := curve.ScalarMultGenerator(curve.ScalarFromU64(width))
	if !c1PlusC2.Equal(widthG) {
		return fail("c1 + c2 != (max-min)*G")
	}

	// Redundant cross-check: p1 = max·G - c1, p2 = c2 + min·G.
	maxG := curve.ScalarMultGenerator(curve.ScalarFromU64(req.Max))
	p1 := curve.Add(maxG, curve.Neg(c1))
	minG := curve.ScalarMultGenerator(curve.ScalarFromU64(req.Min))
	p2 := curve.Add(c2, minG)
	if !p1.Equal(p2) {
		return fail("p1 != p2")
	}

	return Result{
		OK:      true,
		Message: fmt.Sprintf("verified range proof for [min=%d, max=%d], bitlen=%d", req.Min, req.Max, req.Bitlen),
	}
}
