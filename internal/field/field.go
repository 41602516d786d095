// field.go - Scalar field helpers for the shielded pool.
//
// All protocol values live in the BN254 scalar field, which doubles as the
// base field of the embedded Baby Jubjub curve. Everything downstream
// (hashing, commitments, tree nodes, ciphertexts) is expressed in this field.

package field

import (
	"crypto/rand"
	"math/big"

	"github.com/consensys/gnark-crypto/ecc/bn254/fr"
)

// FromUint64 returns the field element for v.
func FromUint64(v uint64) fr.Element {
	var e fr.Element
	e.SetUint64(v)
	return e
}

// FromBig returns the canonical residue of b mod the field prime.
func FromBig(b *big.Int) fr.Element {
	var e fr.Element
	e.SetBigInt(b)
	return e
}

// FromBytes interprets data as a big-endian integer reduced mod the field prime.
func FromBytes(data []byte) fr.Element {
	return FromBig(new(big.Int).SetBytes(data))
}

// OneIfZero maps the semantic value zero to 1. Scalars that end up multiplying
// curve generators must never be zero, since the group identity is disallowed
// as a commitment value.
func OneIfZero(v fr.Element) fr.Element {
	if v.IsZero() {
		var one fr.Element
		one.SetOne()
		return one
	}
	return v
}

// Random samples a uniform field element.
func Random() (fr.Element, error) {
	var e fr.Element
	if _, err := e.SetRandom(); err != nil {
		return fr.Element{}, err
	}
	return e, nil
}

// RandomBytes generates n random bytes using crypto/rand.
func RandomBytes(n int) []byte {
	b := make([]byte, n)
	rand.Read(b)
	return b
}
