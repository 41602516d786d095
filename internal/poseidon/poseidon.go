// poseidon.go - Fixed-arity Poseidon2 compression over the BN254 scalar field.
//
// Hash2 and Hash3 are the only compression functions used by the protocol:
// tree nodes, key derivation, nonce commitments and keystream blocks all go
// through one of the two. The BN254 Poseidon2 in gnark-crypto supports widths
// 2 and 3 only, so Hash2 wraps the width-3 permutation directly and Hash3
// chains two of its compressions.

package poseidon

import (
	"sync"

	"github.com/consensys/gnark-crypto/ecc/bn254/fr"
	"github.com/consensys/gnark-crypto/ecc/bn254/fr/poseidon2"
)

const (
	fullRounds    = 8
	partialRounds = 56
)

var (
	permOnce sync.Once
	perm3    *poseidon2.Permutation
)

func perm() *poseidon2.Permutation {
	permOnce.Do(func() {
		perm3 = poseidon2.NewPermutation(3, fullRounds, partialRounds)
	})
	return perm3
}

// Hash2 compresses two field elements into one.
func Hash2(a, b fr.Element) fr.Element {
	state := []fr.Element{a, b, {}}
	// width always matches, the permutation cannot fail here
	_ = perm().Permutation(state)
	return state[0]
}

// Hash3 compresses three field elements into one by chaining two width-3
// compressions: Hash2(Hash2(a, b), c).
func Hash3(a, b, c fr.Element) fr.Element {
	return Hash2(Hash2(a, b), c)
}
