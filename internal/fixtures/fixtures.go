// Package fixtures generates deterministic tree test vectors: a tree built
// from seeded leaves plus a membership proof per leaf against the final root.
// The JSON files feed cross-implementation checks and the poold fixtures
// subcommand.
package fixtures

import (
	"encoding/json"
	"fmt"
	"os"

	"github.com/consensys/gnark-crypto/ecc/bn254/fr"

	"shieldedpool/internal/field"
	"shieldedpool/internal/imt"
	"shieldedpool/internal/poseidon"
)

// TreeInfo describes the final tree.
type TreeInfo struct {
	Root  fr.Element `json:"root"`
	Depth int        `json:"depth"`
	Size  uint64     `json:"size"`
}

// LeafFixture is one leaf with its proof against the final root.
type LeafFixture struct {
	Index uint64     `json:"index"`
	Leaf  fr.Element `json:"leaf"`
	Root  fr.Element `json:"root"`
	Proof imt.Proof  `json:"proof"`
}

// TreeFixture is a full generated vector set.
type TreeFixture struct {
	Tree   TreeInfo      `json:"tree"`
	Leaves []LeafFixture `json:"leaves"`
}

// Generate builds a tree of n seeded leaves and proves every one against the
// final root. Leaf i is Hash2(seed, i), so vectors are reproducible from
// (n, seed) alone.
func Generate(n uint64, seed uint64) (TreeFixture, error) {
	if n == 0 {
		return TreeFixture{}, fmt.Errorf("fixture needs at least one leaf")
	}
	tree := imt.New()
	for i := uint64(0); i < n; i++ {
		leaf := poseidon.Hash2(field.FromUint64(seed), field.FromUint64(i))
		if _, _, err := tree.Insert(leaf); err != nil {
			return TreeFixture{}, fmt.Errorf("insert leaf %d: %w", i, err)
		}
	}
	root, _ := tree.Root()
	f := TreeFixture{
		Tree: TreeInfo{Root: root, Depth: tree.ProofDepth(), Size: tree.Size()},
	}
	for i := uint64(0); i < n; i++ {
		proof, err := tree.GenerateProof(i)
		if err != nil {
			return TreeFixture{}, fmt.Errorf("prove leaf %d: %w", i, err)
		}
		f.Leaves = append(f.Leaves, LeafFixture{
			Index: i,
			Leaf:  proof.Leaf,
			Root:  proof.Root,
			Proof: proof,
		})
	}
	return f, nil
}

// Field elements and proofs are serialized through an explicit hex wire form;
// their in-memory representation does not survive encoding/json on its own.

type proofWire struct {
	Index    uint64         `json:"index"`
	Depth    int            `json:"depth"`
	Leaf     field.Scalar   `json:"leaf"`
	Root     field.Scalar   `json:"root"`
	Siblings []field.Scalar `json:"siblings"`
	Present  []bool         `json:"present"`
}

type leafWire struct {
	Index uint64       `json:"index"`
	Leaf  field.Scalar `json:"leaf"`
	Root  field.Scalar `json:"root"`
	Proof proofWire    `json:"proof"`
}

type treeWire struct {
	Tree struct {
		Root  field.Scalar `json:"root"`
		Depth int          `json:"depth"`
		Size  uint64       `json:"size"`
	} `json:"tree"`
	Leaves []leafWire `json:"leaves"`
}

func proofToWire(p imt.Proof) proofWire {
	w := proofWire{
		Index: p.Index,
		Depth: p.Depth,
		Leaf:  field.S(p.Leaf),
		Root:  field.S(p.Root),
	}
	for i := 0; i < p.Depth; i++ {
		w.Siblings = append(w.Siblings, field.S(p.Siblings[i]))
		w.Present = append(w.Present, p.Present[i])
	}
	return w
}

func proofFromWire(w proofWire) (imt.Proof, error) {
	if w.Depth < 0 || w.Depth > imt.MaxDepth {
		return imt.Proof{}, fmt.Errorf("proof depth %d out of range", w.Depth)
	}
	if len(w.Siblings) != w.Depth || len(w.Present) != w.Depth {
		return imt.Proof{}, fmt.Errorf("proof lists do not match depth %d", w.Depth)
	}
	p := imt.Proof{
		Index: w.Index,
		Depth: w.Depth,
		Leaf:  w.Leaf.Fr(),
		Root:  w.Root.Fr(),
	}
	for i := 0; i < w.Depth; i++ {
		p.Siblings[i] = w.Siblings[i].Fr()
		p.Present[i] = w.Present[i]
	}
	return p, nil
}

func toWire(f TreeFixture) treeWire {
	var w treeWire
	w.Tree.Root = field.S(f.Tree.Root)
	w.Tree.Depth = f.Tree.Depth
	w.Tree.Size = f.Tree.Size
	for _, lf := range f.Leaves {
		w.Leaves = append(w.Leaves, leafWire{
			Index: lf.Index,
			Leaf:  field.S(lf.Leaf),
			Root:  field.S(lf.Root),
			Proof: proofToWire(lf.Proof),
		})
	}
	return w
}

func fromWire(w treeWire) (TreeFixture, error) {
	f := TreeFixture{
		Tree: TreeInfo{Root: w.Tree.Root.Fr(), Depth: w.Tree.Depth, Size: w.Tree.Size},
	}
	for _, lw := range w.Leaves {
		proof, err := proofFromWire(lw.Proof)
		if err != nil {
			return TreeFixture{}, fmt.Errorf("leaf %d: %w", lw.Index, err)
		}
		f.Leaves = append(f.Leaves, LeafFixture{
			Index: lw.Index,
			Leaf:  lw.Leaf.Fr(),
			Root:  lw.Root.Fr(),
			Proof: proof,
		})
	}
	return f, nil
}

// WriteFile writes the fixture as indented JSON.
func WriteFile(path string, f TreeFixture) error {
	data, err := json.MarshalIndent(toWire(f), "", "  ")
	if err != nil {
		return fmt.Errorf("marshal fixture: %w", err)
	}
	if err := os.WriteFile(path, data, 0o644); err != nil {
		return fmt.Errorf("write fixture: %w", err)
	}
	return nil
}

// LoadFile reads a fixture written by WriteFile.
func LoadFile(path string) (TreeFixture, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return TreeFixture{}, fmt.Errorf("read fixture: %w", err)
	}
	var w treeWire
	if err := json.Unmarshal(data, &w); err != nil {
		return TreeFixture{}, fmt.Errorf("parse fixture: %w", err)
	}
	f, err := fromWire(w)
	if err != nil {
		return TreeFixture{}, fmt.Errorf("parse fixture: %w", err)
	}
	return f, nil
}

// Verify checks every proof in the fixture against the recorded tree root.
func Verify(f TreeFixture) error {
	for _, lf := range f.Leaves {
		if !lf.Root.Equal(&f.Tree.Root) {
			return fmt.Errorf("leaf %d proved against a different root", lf.Index)
		}
		if !lf.Proof.Verify() {
			return fmt.Errorf("leaf %d proof does not fold to its root", lf.Index)
		}
	}
	return nil
}
