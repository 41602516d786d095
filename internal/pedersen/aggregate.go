// aggregate.go - Constant-size homomorphic accumulator over Commit2 entries.
//
// Many independent entries collapse into one curve point plus two scalar sums.
// An explicit presence flag marks the empty accumulator; an all-zero point is
// not a safe sentinel on every curve.

package pedersen

import (
	"github.com/consensys/gnark-crypto/ecc/bn254/fr"

	"shieldedpool/internal/field"
)

// Aggregate is the running sum of Commit2(m_i, r_i) entries together with the
// scalar accumulators ΣM and ΣR. The sums live mod the subgroup order, the
// same modulus scalar multiplication reduces by; accumulating in the full fr
// field would break the homomorphism whenever a sum crosses the order.
type Aggregate struct {
	Point   field.Point `json:"point"`
	SumM    fr.Element  `json:"sum_m"`
	SumR    fr.Element  `json:"sum_r"`
	Present bool        `json:"present"`
	Count   uint64      `json:"count"`
}

// Fold adds one entry into the accumulator.
func (a *Aggregate) Fold(p field.Point, m, r fr.Element) {
	if !a.Present {
		a.Point = p
		a.Present = true
	} else {
		a.Point = field.AddPoints(a.Point, p)
	}
	a.SumM = field.AddScalars(a.SumM, m)
	a.SumR = field.AddScalars(a.SumR, r)
	a.Count++
}

// FoldEntry commits (m, r) and folds the result.
func (a *Aggregate) FoldEntry(m, r fr.Element) {
	a.Fold(Commit2(m, r), m, r)
}

// Verify checks that the scalar accumulators still open the accumulated point.
// The empty accumulator is trivially consistent.
func (a *Aggregate) Verify() bool {
	if !a.Present {
		return a.Count == 0
	}
	return VerifyCommit2(a.Point, a.SumM, a.SumR)
}
