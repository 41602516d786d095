// keys.go - Key and identifier derivation for the shielded pool.
//
// A user secret fans out into a spending key bound to one (chain, asset) pair
// and a view key that only decrypts the user's own stored state. Every step of
// a balance history is identified publicly by a nonce commitment derived from
// the spending key, so an owner can re-locate its own entries with no index.

package pool

import (
	"github.com/consensys/gnark-crypto/ecc/bn254/fr"

	"shieldedpool/internal/field"
	"shieldedpool/internal/poseidon"
)

const viewKeyDomainTag = "shieldedpool/viewkey/v1"

// SpendingKey derives the per-(chain, asset) spend authority from a user
// secret. Binding chain and asset into the key prevents cross-chain and
// cross-asset key reuse.
func SpendingKey(secret, chainID, assetID fr.Element) fr.Element {
	return poseidon.Hash3(secret, chainID, assetID)
}

// ViewKey derives the decryption-only capability from a user secret.
func ViewKey(secret fr.Element) fr.Element {
	return poseidon.Hash2(field.FromBytes([]byte(viewKeyDomainTag)), secret)
}

// NonceCommitment is the public identifier of the n-th state of one user's
// balance for one asset. Strictly increasing nonces make the sequence unique.
func NonceCommitment(spendingKey fr.Element, nonce uint64, assetID fr.Element) fr.Element {
	return poseidon.Hash3(spendingKey, field.FromUint64(nonce), assetID)
}

// LeafFromPoint binds a commitment point to a tree leaf.
func LeafFromPoint(p field.Point) fr.Element {
	return poseidon.Hash2(p.X, p.Y)
}

// StateKey is the per-record symmetric key for the encrypted (balance,
// nullifier) pair stored under a nonce commitment. Keying per record keeps the
// fixed per-field counters from ever reusing a keystream block.
func StateKey(viewKey, nonceCommitment fr.Element) fr.Element {
	return poseidon.Hash2(viewKey, nonceCommitment)
}
