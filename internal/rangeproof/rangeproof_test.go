package rangeproof

import (
	"testing"

	"github.com/allsmog/secure-range-proof/internal/curve"
	"github.com/allsmog/secure-range-proof/internal/wire"
)

func mustEncode(t *testing.T, p curve.Point) [33]byte {
	enc, err := curve.Encode(p)
	if err != nil {
		t.Fatalf("encode point: %v", err)
	}
	return enc
}

// buildValidRequest constructs a RangeProofWire satisfying every check in
// Verify for the given [min, max] and bitlen. upper_commit sums to
// c1 = (width+1000)*G; lower_commit is a pair summing to c2 = width*G - c1
// plus one canceling point pair, which keeps c1 + c2 == (max-min)*G exact
// while avoiding ever encoding the identity point itself.
func buildValidRequest(t *testing.T, min, max uint64, bitlen uint32) wire.RangeProofWire {
	width := max - min
	widthG := curve.ScalarMultGenerator(curve.ScalarFromU64(width))

	upperSum := curve.ScalarMultGenerator(curve.ScalarFromU64(width + 1000))
	upperCommit := [][33]byte{
		mustEncode(t, curve.ScalarMultGenerator(curve.ScalarFromU64(1))),
		mustEncode(t, curve.ScalarMultGenerator(curve.ScalarFromU64(2))),
		mustEncode(t, curve.ScalarMultGenerator(curve.ScalarFromU64(3))),
		mustEncode(t, curve.Add(upperSum, curve.Neg(curve.ScalarMultGenerator(curve.ScalarFromU64(6))))),
	}

	c2Point := curve.Add(widthG, curve.Neg(upperSum))
	a := curve.ScalarMultGenerator(curve.ScalarFromU64(555))
	rest := curve.Add(c2Point, curve.Neg(a))
	lowerCommit := [][33]byte{
		mustEncode(t, a),
		mustEncode(t, rest),
		mustEncode(t, curve.ScalarMultGenerator(curve.ScalarFromU64(777))),
		mustEncode(t, curve.Neg(curve.ScalarMultGenerator(curve.ScalarFromU64(777)))),
	}

	return wire.RangeProofWire{
		Min:         min,
		Max:         max,
		Bitlen:      bitlen,
		C1:          mustEncode(t, upperSum),
		C2:          mustEncode(t, c2Point),
		LowerCommit: lowerCommit,
		UpperCommit: upperCommit,
	}
}

func TestVerifyHappyPath(t *testing.T) {
	req := buildValidRequest(t, 10, 20, 5)
	got := Verify(req)
	if !got.OK {
		t.Fatalf("expected valid proof, got failure: %s", got.Message)
	}
}

func TestVerifyRejectsMinGreaterThanMax(t *testing.T) {
	req := buildValidRequest(t, 10, 20, 5)
	req.Min, req.Max = req.Max, req.Min
	got := Verify(req)
	if got.OK || got.Message != "min > max" {
		t.Errorf("expected min > max failure, got %+v", got)
	}
}

func TestVerifyRejectsBitlenZero(t *testing.T) {
	req := buildValidRequest(t, 0, 4, 3)
	req.Bitlen = 0
	got := Verify(req)
	if got.OK {
		t.Error("expected bitlen=0 to fail")
	}
}

func TestVerifyRejectsBitlenAbove32(t *testing.T) {
	req := buildValidRequest(t, 0, 4, 3)
	req.Bitlen = 33
	got := Verify(req)
	if got.OK {
		t.Error("expected bitlen=33 to fail")
	}
}

func TestVerifyAcceptsBitlen32(t *testing.T) {
	req := buildValidRequest(t, 0, 4, 32)
	got := Verify(req)
	if !got.OK {
		t.Errorf("expected bitlen=32 to be within bounds, got %s", got.Message)
	}
}

func TestVerifyRejectsMaxExceedingBitlen(t *testing.T) {
	req := buildValidRequest(t, 0, 4, 2) // max 4 exceeds 2^2-1=3
	got := Verify(req)
	if got.OK || got.Message != "max exceeds 2^bitlen-1" {
		t.Errorf("expected max-exceeds-bitlen failure, got %+v", got)
	}
}

func TestVerifyRejectsWrongCommitCardinality(t *testing.T) {
	req := buildValidRequest(t, 10, 20, 5)
	req.LowerCommit = req.LowerCommit[:3]
	got := Verify(req)
	if got.OK {
		t.Error("expected 3-element lower_commit to fail cardinality check")
	}
}

func TestVerifyRejectsTamperedSingleCommitElement(t *testing.T) {
	req := buildValidRequest(t, 10, 20, 5)
	req.LowerCommit[0][1] ^= 0xFF // corrupt a byte that is not the parity prefix
	got := Verify(req)
	if got.OK {
		t.Error("expected tampered lower_commit element to invalidate the proof")
	}
}

func TestVerifyRejectsWidthMismatch(t *testing.T) {
	req := buildValidRequest(t, 10, 20, 5)
	req.Max = 21 // the commitments still encode a width of 10
	got := Verify(req)
	if got.OK {
		t.Error("expected width-mismatch failure after changing max")
	}
}

func TestVerifyRejectsInvalidPointField(t *testing.T) {
	req := buildValidRequest(t, 10, 20, 5)
	var zero [33]byte
	zero[0] = 0x02 // x=0 is not on the curve
	req.C1 = zero
	got := Verify(req)
	if got.OK {
		t.Error("expected malformed c1 point to invalidate the proof")
	}
}
