package prooforacle

import (
	"bytes"
	"testing"

	"github.com/consensys/gnark-crypto/ecc"
	"github.com/consensys/gnark-crypto/ecc/bn254/fr"
	"github.com/consensys/gnark/backend/groth16"
	"github.com/consensys/gnark/frontend"
	"github.com/consensys/gnark/frontend/cs/r1cs"
	"github.com/stretchr/testify/require"

	"shieldedpool/internal/field"
	"shieldedpool/internal/pool"
)

type squareCircuit struct {
	X frontend.Variable
	Y frontend.Variable `gnark:",public"`
}

func (c *squareCircuit) Define(api frontend.API) error {
	api.AssertIsEqual(api.Mul(c.X, c.X), c.Y)
	return nil
}

func TestVerifyRoundTrip(t *testing.T) {
	ccs, err := frontend.Compile(ecc.BN254.ScalarField(), r1cs.NewBuilder, &squareCircuit{})
	require.NoError(t, err)
	pk, vk, err := groth16.Setup(ccs)
	require.NoError(t, err)

	full, err := frontend.NewWitness(&squareCircuit{X: 3, Y: 9}, ecc.BN254.ScalarField())
	require.NoError(t, err)
	proof, err := groth16.Prove(ccs, pk, full)
	require.NoError(t, err)

	var buf bytes.Buffer
	_, err = proof.WriteTo(&buf)
	require.NoError(t, err)

	oracle := New()
	oracle.Register(pool.OpWithdraw, vk)

	err = oracle.Verify(pool.OpWithdraw, buf.Bytes(), []fr.Element{field.FromUint64(9)})
	require.NoError(t, err)

	// wrong public input
	err = oracle.Verify(pool.OpWithdraw, buf.Bytes(), []fr.Element{field.FromUint64(16)})
	require.Error(t, err)

	// unregistered kind
	err = oracle.Verify(pool.OpTransfer, buf.Bytes(), []fr.Element{field.FromUint64(9)})
	require.Error(t, err)
}

func TestVerifyRejectsGarbageProof(t *testing.T) {
	ccs, err := frontend.Compile(ecc.BN254.ScalarField(), r1cs.NewBuilder, &squareCircuit{})
	require.NoError(t, err)
	_, vk, err := groth16.Setup(ccs)
	require.NoError(t, err)

	oracle := New()
	oracle.Register(pool.OpCreate, vk)
	err = oracle.Verify(pool.OpCreate, []byte("not a proof"), []fr.Element{field.FromUint64(9)})
	require.Error(t, err)
}
