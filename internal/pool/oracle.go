// oracle.go - The proof oracle boundary and the fixed public-input layouts.
//
// The execution host only accepts a state transition after a non-interactive
// proof validates it. The ledger models that host as an opaque ProofOracle:
// before touching any state it assembles the operation's fixed, ordered
// public-input tuple and hands it to the oracle together with the opaque
// proof blob. How the proof was produced is out of scope here.

package pool

import (
	"github.com/consensys/gnark-crypto/ecc/bn254/fr"
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/crypto"

	"shieldedpool/internal/field"
)

// ProofOracle validates a proof against the declared public inputs of one
// operation kind. A nil error means the transition may proceed.
type ProofOracle interface {
	Verify(kind OperationKind, proof []byte, publicInputs []fr.Element) error
}

// AcceptAllOracle accepts every proof. Used by tests and by deployments where
// the surrounding host performs proof validation itself.
type AcceptAllOracle struct{}

func (AcceptAllOracle) Verify(OperationKind, []byte, []fr.Element) error { return nil }

// ReceiverScalar embeds an EVM receiver address into the scalar field.
func ReceiverScalar(addr common.Address) fr.Element {
	return field.FromBytes(addr.Bytes())
}

// CalldataHash reduces the Keccak256 digest of arbitrary withdraw calldata
// into the scalar field.
func CalldataHash(data []byte) fr.Element {
	return field.FromBytes(crypto.Keccak256(data))
}

// createInputs: assetId, chainId, mintedShares, commitment.x, commitment.y,
// nonceCommitment.
func createInputs(assetID, chainID fr.Element, minted uint64, commit field.Point, nc fr.Element) []fr.Element {
	return []fr.Element{assetID, chainID, field.FromUint64(minted), commit.X, commit.Y, nc}
}

// addFundsInputs: assetId, amount, chainId, expectedRoot, commitment.x,
// commitment.y, newNonceCommitment, encryptedBalance, encryptedNullifier,
// nonceDiscoveryEntry.x, nonceDiscoveryEntry.y.
func addFundsInputs(assetID fr.Element, amount uint64, chainID, expectedRoot fr.Element,
	commit field.Point, newNC fr.Element, enc EncryptedState, entry field.Point) []fr.Element {
	return []fr.Element{
		assetID, field.FromUint64(amount), chainID, expectedRoot,
		commit.X, commit.Y, newNC, enc.Balance, enc.Nullifier, entry.X, entry.Y,
	}
}

// withdrawInputs: assetId, amount, chainId, expectedRoot,
// declaredTimeReference, arbitraryCalldataHash, receiverAddress,
// relayerFeeAmount, commitment.x, commitment.y, newNonceCommitment,
// encryptedBalance, encryptedNullifier, nonceDiscoveryEntry.x,
// nonceDiscoveryEntry.y.
func withdrawInputs(assetID fr.Element, amount uint64, chainID, expectedRoot fr.Element,
	declaredTime uint64, calldataHash fr.Element, receiver common.Address, fee uint64,
	commit field.Point, newNC fr.Element, enc EncryptedState, entry field.Point) []fr.Element {
	return []fr.Element{
		assetID, field.FromUint64(amount), chainID, expectedRoot,
		field.FromUint64(declaredTime), calldataHash, ReceiverScalar(receiver),
		field.FromUint64(fee), commit.X, commit.Y, newNC,
		enc.Balance, enc.Nullifier, entry.X, entry.Y,
	}
}

// transferInputs: assetId, chainId, expectedRoot, commitment.x, commitment.y,
// newNonceCommitment, encryptedBalance, encryptedNullifier, note.x, note.y,
// ephemeral.x, ephemeral.y, recipientKey.x, recipientKey.y, noteStackLeaf,
// nonceDiscoveryEntry.x, nonceDiscoveryEntry.y.
func transferInputs(assetID, chainID, expectedRoot fr.Element,
	commit field.Point, newNC fr.Element, enc EncryptedState,
	note, ephemeral, recipientKey field.Point, stackLeaf fr.Element, entry field.Point) []fr.Element {
	return []fr.Element{
		assetID, chainID, expectedRoot, commit.X, commit.Y, newNC,
		enc.Balance, enc.Nullifier, note.X, note.Y,
		ephemeral.X, ephemeral.Y, recipientKey.X, recipientKey.Y,
		stackLeaf, entry.X, entry.Y,
	}
}

// absorbInputs: assetId, chainId, expectedRoot, stack.x, stack.y, stackSumM,
// stackSumR, commitment.x, commitment.y, newNonceCommitment,
// encryptedBalance, encryptedNullifier, nonceDiscoveryEntry.x,
// nonceDiscoveryEntry.y.
func absorbInputs(assetID, chainID, expectedRoot fr.Element,
	stack field.Point, stackM, stackR fr.Element,
	commit field.Point, newNC fr.Element, enc EncryptedState, entry field.Point) []fr.Element {
	return []fr.Element{
		assetID, chainID, expectedRoot, stack.X, stack.Y, stackM, stackR,
		commit.X, commit.Y, newNC, enc.Balance, enc.Nullifier, entry.X, entry.Y,
	}
}
