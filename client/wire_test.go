package client

import (
	"testing"

	"github.com/stretchr/testify/require"

	"shieldedpool/internal/field"
	"shieldedpool/internal/imt"
	"shieldedpool/internal/poseidon"
)

func TestFrWireRoundTrip(t *testing.T) {
	for _, v := range []uint64{0, 1, 42, 1 << 40} {
		e := field.FromUint64(v)
		got, err := DecodeFr(EncodeFr(e))
		require.NoError(t, err)
		require.True(t, e.Equal(&got))
	}

	h := poseidon.Hash2(field.FromUint64(3), field.FromUint64(4))
	got, err := DecodeFr(EncodeFr(h))
	require.NoError(t, err)
	require.True(t, h.Equal(&got))
}

func TestDecodeFrRejectsMalformed(t *testing.T) {
	_, err := DecodeFr("not hex")
	require.Error(t, err)
	_, err = DecodeFr("0x123") // odd length
	require.Error(t, err)
}

func TestProofWireRoundTrip(t *testing.T) {
	tree := imt.New()
	for i := uint64(0); i < 6; i++ {
		_, _, err := tree.Insert(poseidon.Hash2(field.FromUint64(99), field.FromUint64(i)))
		require.NoError(t, err)
	}
	proof, err := tree.GenerateProof(3)
	require.NoError(t, err)
	require.True(t, proof.Verify())

	got, err := ProofFromWire(ProofToWire(proof))
	require.NoError(t, err)
	require.True(t, got.Verify())
	require.Equal(t, proof.Index, got.Index)
	require.Equal(t, proof.Depth, got.Depth)
	require.True(t, proof.Root.Equal(&got.Root))
}

func TestProofFromWireRejectsMismatchedLists(t *testing.T) {
	_, err := ProofFromWire(ProofResponse{
		Leaf:     EncodeFr(field.FromUint64(1)),
		Root:     EncodeFr(field.FromUint64(2)),
		Siblings: []string{EncodeFr(field.FromUint64(3))},
		Present:  nil,
	})
	require.Error(t, err)
}
