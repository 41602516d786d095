// Package prooforacle adapts Groth16 verification to the ledger's proof
// oracle boundary. One verifying key is registered per operation kind; the
// ledger hands over the opaque proof blob and the ordered public-input tuple,
// and the adapter rebuilds the public witness from the tuple alone.
package prooforacle

import (
	"bytes"
	"fmt"

	"github.com/consensys/gnark-crypto/ecc"
	"github.com/consensys/gnark-crypto/ecc/bn254/fr"
	"github.com/consensys/gnark/backend/groth16"
	"github.com/consensys/gnark/backend/witness"

	"shieldedpool/internal/pool"
)

// Groth16Oracle verifies operation proofs against per-kind verifying keys.
type Groth16Oracle struct {
	vks map[pool.OperationKind]groth16.VerifyingKey
}

// New creates an oracle with no registered keys; every kind is rejected until
// its key is registered.
func New() *Groth16Oracle {
	return &Groth16Oracle{vks: make(map[pool.OperationKind]groth16.VerifyingKey)}
}

// Register installs the verifying key for one operation kind, replacing any
// previous key.
func (o *Groth16Oracle) Register(kind pool.OperationKind, vk groth16.VerifyingKey) {
	o.vks[kind] = vk
}

// Verify implements pool.ProofOracle.
func (o *Groth16Oracle) Verify(kind pool.OperationKind, proofBlob []byte, publicInputs []fr.Element) error {
	vk, ok := o.vks[kind]
	if !ok {
		return fmt.Errorf("no verifying key registered for %s", kind)
	}
	proof := groth16.NewProof(ecc.BN254)
	if _, err := proof.ReadFrom(bytes.NewReader(proofBlob)); err != nil {
		return fmt.Errorf("parse %s proof: %w", kind, err)
	}
	w, err := publicWitness(publicInputs)
	if err != nil {
		return fmt.Errorf("build %s public witness: %w", kind, err)
	}
	if err := groth16.Verify(proof, vk, w); err != nil {
		return fmt.Errorf("verify %s proof: %w", kind, err)
	}
	return nil
}

// publicWitness packs the ordered public-input tuple into a witness with no
// secret part.
func publicWitness(inputs []fr.Element) (witness.Witness, error) {
	w, err := witness.New(ecc.BN254.ScalarField())
	if err != nil {
		return nil, err
	}
	values := make(chan any, len(inputs))
	for _, v := range inputs {
		values <- v
	}
	close(values)
	if err := w.Fill(len(inputs), 0, values); err != nil {
		return nil, err
	}
	return w, nil
}
