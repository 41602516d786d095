// notes.go - Transfer-note addressing over the embedded curve.
//
// A sender picks an ephemeral scalar e and derives a shared secret with the
// recipient's public key P = p·Base: shared = e·P = p·(e·Base). The note's
// blinding factor and the symmetric key for the amount ciphertext both come
// out of the shared secret, so only the recipient can open or even price the
// note. The ledger sees opaque points.

package pool

import (
	"fmt"

	"github.com/consensys/gnark-crypto/ecc/bn254/fr"

	"shieldedpool/internal/field"
	"shieldedpool/internal/pedersen"
	"shieldedpool/internal/poseidon"
)

// note amount ciphertexts use a counter outside the encrypted-state range
const counterNoteAmount uint64 = 2

// RecipientKey is the public addressing key for incoming notes.
func RecipientKey(secret fr.Element) field.Point {
	return field.ScalarBaseMul(field.OneIfZero(secret))
}

// noteSecret derives the blinding and cipher key from a DH shared point.
func noteSecret(shared field.Point) (blinding, cipherKey fr.Element) {
	blinding = poseidon.Hash2(shared.X, shared.Y)
	cipherKey = poseidon.Hash2(blinding, shared.X)
	return blinding, cipherKey
}

// BuildNote constructs the note a transfer posts for recipientKey: the
// 2-generator commitment to the (offset) amount under a DH-derived blinding,
// plus the ephemeral key and amount ciphertext the recipient needs.
func BuildNote(recipientKey field.Point, amount uint64) (TransferNote, error) {
	eph, err := field.Random()
	if err != nil {
		return TransferNote{}, fmt.Errorf("ephemeral scalar: %w", err)
	}
	eph = field.OneIfZero(eph)
	shared := field.ScalarMul(recipientKey, eph)
	blinding, cipherKey := noteSecret(shared)
	m := EncodeShares(amount)
	return TransferNote{
		RecipientKey: recipientKey,
		EphemeralPub: field.ScalarBaseMul(eph),
		Point:        pedersen.Commit2(m, blinding),
		CipherAmount: poseidon.Encrypt(field.FromUint64(amount), cipherKey, counterNoteAmount),
	}, nil
}

// OpenNote recovers one note's amount and blinding with the recipient secret.
// The reconstructed commitment must equal the posted point; a mismatch means
// the record is not addressed to this key, or is corrupt.
func OpenNote(secret fr.Element, rec NoteRecord, posted field.Point) (amount uint64, blinding fr.Element, err error) {
	shared := field.ScalarMul(rec.EphemeralPub, field.OneIfZero(secret))
	b, cipherKey := noteSecret(shared)
	plain := poseidon.Decrypt(rec.CipherAmount, cipherKey, counterNoteAmount)
	if !plain.IsUint64() {
		return 0, fr.Element{}, fmt.Errorf("%w: note amount does not decrypt to an integer", ErrInvariant)
	}
	amount = plain.Uint64()
	if !pedersen.VerifyCommit2(posted, EncodeShares(amount), b) {
		return 0, fr.Element{}, fmt.Errorf("%w: note opening does not reconstruct posted point", ErrInvariant)
	}
	return amount, b, nil
}

// OpenStack opens every note in a stack and returns the aggregate opening
// (ΣM, ΣR) along with the true total amount. The reconstructed point must
// equal the stack's accumulated point.
func OpenStack(secret fr.Element, stack *NoteStack) (sumM, sumR fr.Element, total uint64, err error) {
	if !stack.Present {
		return fr.Element{}, fr.Element{}, 0, fmt.Errorf("%w: empty note stack", ErrInvariant)
	}
	for _, rec := range stack.Notes {
		shared := field.ScalarMul(rec.EphemeralPub, field.OneIfZero(secret))
		b, cipherKey := noteSecret(shared)
		plain := poseidon.Decrypt(rec.CipherAmount, cipherKey, counterNoteAmount)
		if !plain.IsUint64() {
			return fr.Element{}, fr.Element{}, 0, fmt.Errorf("%w: note amount does not decrypt to an integer", ErrInvariant)
		}
		amount := plain.Uint64()
		// accumulate mod the subgroup order, matching the stack point sum
		sumM = field.AddScalars(sumM, EncodeShares(amount))
		sumR = field.AddScalars(sumR, b)
		total += amount
	}
	if !pedersen.VerifyCommit2(stack.Point, sumM, sumR) {
		return fr.Element{}, fr.Element{}, 0, fmt.Errorf("%w: stack opening does not reconstruct accumulated point", ErrInvariant)
	}
	return sumM, sumR, total, nil
}
