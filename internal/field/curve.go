// curve.go - Embedded curve (Baby Jubjub) group operations.
//
// Commitments are points on the twisted Edwards curve embedded in BN254.
// Scalars are reduced mod the prime-order subgroup before multiplication.

package field

import (
	"math/big"

	"github.com/consensys/gnark-crypto/ecc/bn254/fr"
	"github.com/consensys/gnark-crypto/ecc/bn254/twistededwards"
)

// Point is an affine point on the embedded curve.
type Point = twistededwards.PointAffine

// Base returns the subgroup generator of the embedded curve.
func Base() Point {
	curve := twistededwards.GetEdwardsCurve()
	var p Point
	p.Set(&curve.Base)
	return p
}

// GroupOrder returns the order of the prime-order subgroup.
func GroupOrder() *big.Int {
	curve := twistededwards.GetEdwardsCurve()
	return new(big.Int).Set(&curve.Order)
}

// Identity returns the group identity (0, 1).
func Identity() Point {
	var p Point
	p.X.SetZero()
	p.Y.SetOne()
	return p
}

// IsIdentity reports whether p is the group identity.
func IsIdentity(p *Point) bool {
	var one fr.Element
	one.SetOne()
	return p.X.IsZero() && p.Y.Equal(&one)
}

// AddPoints returns a + b.
func AddPoints(a, b Point) Point {
	var out Point
	out.Add(&a, &b)
	return out
}

// ScalarMul returns s·p with s reduced mod the subgroup order.
func ScalarMul(p Point, s fr.Element) Point {
	k := s.BigInt(new(big.Int))
	k.Mod(k, GroupOrder())
	var out Point
	out.ScalarMultiplication(&p, k)
	return out
}

// ScalarBaseMul returns s·Base.
func ScalarBaseMul(s fr.Element) Point {
	return ScalarMul(Base(), s)
}

// ReduceScalar returns the canonical representative of v mod the subgroup
// order. The commitment message space is Z_q for the subgroup order q, not
// the full fr field; ScalarMul reduces mod q, so any scalar that will be
// accumulated additively and multiplied in must be reduced the same way.
func ReduceScalar(v fr.Element) fr.Element {
	k := v.BigInt(new(big.Int))
	k.Mod(k, GroupOrder())
	var out fr.Element
	out.SetBigInt(k)
	return out
}

// AddScalars returns (a + b) mod the subgroup order.
func AddScalars(a, b fr.Element) fr.Element {
	ka := a.BigInt(new(big.Int))
	kb := b.BigInt(new(big.Int))
	ka.Add(ka, kb)
	ka.Mod(ka, GroupOrder())
	var out fr.Element
	out.SetBigInt(ka)
	return out
}

// PointsEqual compares two affine points coordinate-wise.
func PointsEqual(a, b *Point) bool {
	return a.X.Equal(&b.X) && a.Y.Equal(&b.Y)
}
