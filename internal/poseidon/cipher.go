// cipher.go - Counter-mode symmetric encryption of single field elements.
//
// keystream = Hash2(key, counter); encryption is field addition, decryption is
// subtraction. Confidentiality holds as long as a (key, counter) pair is never
// reused across two plaintexts. Counters are fixed per logical field of a
// record, so reuse cannot happen within one record; per-record keys keep
// distinct records apart.

package poseidon

import "github.com/consensys/gnark-crypto/ecc/bn254/fr"

// Fixed counters, one per logical field of an encrypted state record.
const (
	CounterBalance   uint64 = 0
	CounterNullifier uint64 = 1
)

// Encrypt returns plaintext + Hash2(key, counter).
func Encrypt(plaintext, key fr.Element, counter uint64) fr.Element {
	var c fr.Element
	c.SetUint64(counter)
	ks := Hash2(key, c)
	var out fr.Element
	out.Add(&plaintext, &ks)
	return out
}

// Decrypt returns ciphertext - Hash2(key, counter).
func Decrypt(ciphertext, key fr.Element, counter uint64) fr.Element {
	var c fr.Element
	c.SetUint64(counter)
	ks := Hash2(key, c)
	var out fr.Element
	out.Sub(&ciphertext, &ks)
	return out
}
