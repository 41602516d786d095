package poseidon

import (
	"testing"

	"github.com/consensys/gnark-crypto/ecc/bn254/fr"
	"github.com/stretchr/testify/require"

	"shieldedpool/internal/field"
)

func TestHashDeterministic(t *testing.T) {
	a := field.FromUint64(7)
	b := field.FromUint64(11)
	c := field.FromUint64(13)

	h1 := Hash2(a, b)
	h2 := Hash2(a, b)
	require.True(t, h1.Equal(&h2), "Hash2 must be deterministic")

	g1 := Hash3(a, b, c)
	g2 := Hash3(a, b, c)
	require.True(t, g1.Equal(&g2), "Hash3 must be deterministic")
}

func TestHashArgumentOrder(t *testing.T) {
	a := field.FromUint64(1)
	b := field.FromUint64(2)

	ab := Hash2(a, b)
	ba := Hash2(b, a)
	require.False(t, ab.Equal(&ba), "Hash2 must not be commutative")
}

func TestHash2DiffersFromHash3(t *testing.T) {
	a := field.FromUint64(5)
	b := field.FromUint64(6)
	var zero fr.Element

	h2 := Hash2(a, b)
	h3 := Hash3(a, b, zero)
	require.False(t, h2.Equal(&h3), "arities must be domain separated")
}

func TestHash3EachArgumentMatters(t *testing.T) {
	a := field.FromUint64(3)
	b := field.FromUint64(5)
	c := field.FromUint64(7)
	x := field.FromUint64(8)

	base := Hash3(a, b, c)
	for i, variant := range []fr.Element{Hash3(x, b, c), Hash3(a, x, c), Hash3(a, b, x)} {
		require.False(t, base.Equal(&variant), "changing argument %d must change the digest", i)
	}
}

func TestEncryptDecryptRoundTrip(t *testing.T) {
	key := Hash2(field.FromUint64(42), field.FromUint64(1))
	for _, counter := range []uint64{CounterBalance, CounterNullifier, 7} {
		for _, v := range []uint64{0, 1, 50, 1 << 40} {
			m := field.FromUint64(v)
			ct := Encrypt(m, key, counter)
			require.False(t, ct.Equal(&m), "ciphertext must differ from plaintext")
			pt := Decrypt(ct, key, counter)
			require.True(t, pt.Equal(&m), "decrypt(encrypt(m)) must equal m")
		}
	}

	// random plaintexts
	for i := 0; i < 16; i++ {
		m, err := field.Random()
		require.NoError(t, err)
		ct := Encrypt(m, key, CounterBalance)
		pt := Decrypt(ct, key, CounterBalance)
		require.True(t, pt.Equal(&m))
	}
}

func TestKeystreamDependsOnCounter(t *testing.T) {
	key := field.FromUint64(99)
	m := field.FromUint64(1234)
	c0 := Encrypt(m, key, CounterBalance)
	c1 := Encrypt(m, key, CounterNullifier)
	require.False(t, c0.Equal(&c1), "distinct counters must yield distinct ciphertexts")
}
