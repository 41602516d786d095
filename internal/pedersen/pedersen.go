// pedersen.go - Multi-generator homomorphic commitments over the embedded curve.
//
// Commit5 binds a full balance-state opening (shares, nullifier, spending key,
// unlock time, blinding); Commit2 is the lighter form used for transfer notes
// and discovery entries. Generators are fixed, derived deterministically from
// the curve base point under a domain tag, so every party computes the same
// ones with no setup ceremony.

package pedersen

import (
	"sync"

	"github.com/consensys/gnark-crypto/ecc/bn254/fr"

	"shieldedpool/internal/field"
	"shieldedpool/internal/poseidon"
)

const generatorDomainTag = "shieldedpool/pedersen/generators/v1"

// Generator indices into the fixed basis.
const (
	genG = iota // shares / note value
	genH        // nullifier
	genD        // spending key / note blinding
	genK        // unlock time
	genJ        // state blinding (nonce commitment)
	numGenerators
)

var (
	gensOnce sync.Once
	gens     [numGenerators]field.Point
)

// Generators returns the five fixed commitment generators (G, H, D, K, J).
func Generators() [numGenerators]field.Point {
	gensOnce.Do(func() {
		tag := field.FromBytes([]byte(generatorDomainTag))
		base := field.Base()
		for i := range gens {
			s := poseidon.Hash2(tag, field.FromUint64(uint64(i)))
			gens[i] = field.ScalarMul(base, field.OneIfZero(s))
		}
	})
	return gens
}

// Commit5 computes m1·G + m2·H + m3·D + m4·K + r·J.
func Commit5(m1, m2, m3, m4, r fr.Element) field.Point {
	g := Generators()
	out := field.ScalarMul(g[genG], m1)
	out = field.AddPoints(out, field.ScalarMul(g[genH], m2))
	out = field.AddPoints(out, field.ScalarMul(g[genD], m3))
	out = field.AddPoints(out, field.ScalarMul(g[genK], m4))
	out = field.AddPoints(out, field.ScalarMul(g[genJ], r))
	return out
}

// Commit2 computes m·G + r·D.
func Commit2(m, r fr.Element) field.Point {
	g := Generators()
	return field.AddPoints(field.ScalarMul(g[genG], m), field.ScalarMul(g[genD], r))
}

// VerifyCommit2 reports whether (m, r) opens p. A mismatch is final; the
// caller must resynchronize against the source of truth rather than retry.
func VerifyCommit2(p field.Point, m, r fr.Element) bool {
	c := Commit2(m, r)
	return field.PointsEqual(&c, &p)
}
