// opening.go - Commitment openings and the shares encoding.

package pool

import (
	"github.com/consensys/gnark-crypto/ecc/bn254/fr"

	"shieldedpool/internal/field"
	"shieldedpool/internal/pedersen"
)

// Opening is the five-scalar preimage of a balance-state commitment. Shares
// and UnlocksAt carry the +1 zero-avoidance offset; Blinding is the state's
// nonce commitment.
type Opening struct {
	Shares      fr.Element `json:"shares"`
	Nullifier   fr.Element `json:"nullifier"`
	SpendingKey fr.Element `json:"spending_key"`
	UnlocksAt   fr.Element `json:"unlocks_at"`
	Blinding    fr.Element `json:"blinding"`
}

// Commit reconstructs the Pedersen commitment point for the opening.
func (o *Opening) Commit() field.Point {
	return pedersen.Commit5(o.Shares, o.Nullifier, o.SpendingKey, o.UnlocksAt, o.Blinding)
}

// Leaf is the tree leaf bound to the opening's commitment point.
func (o *Opening) Leaf() fr.Element {
	return LeafFromPoint(o.Commit())
}

// EncodeShares maps a true share count to its committed form. The value zero
// is encoded as 1 so a shares scalar never multiplies a generator into the
// group identity.
func EncodeShares(v uint64) fr.Element {
	return field.FromUint64(v + 1)
}

// EncodeTimestamp applies the same offset to lock timestamps; an unlocked
// state carries the encoded value 1.
func EncodeTimestamp(v uint64) fr.Element {
	return field.FromUint64(v + 1)
}
