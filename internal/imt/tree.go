// tree.go - Lean incremental Merkle tree over Poseidon2.
//
// Append-only, dynamic depth. The lean rule: a node with no right sibling at
// some level passes through to its parent unhashed instead of being hashed
// against a zero placeholder. Depth is ceil(log2(size)) and grows as leaves
// arrive; a fixed maximum depth bounds every proof buffer.

package imt

import (
	"errors"
	"fmt"
	"math/bits"

	"github.com/consensys/gnark-crypto/ecc/bn254/fr"

	"shieldedpool/internal/poseidon"
)

const (
	// MaxDepth bounds every sibling buffer; trees past 2^32 leaves are rejected.
	MaxDepth = 32

	// MinProofDepth is the floor reported on the external query surface so
	// small trees still produce uniformly shaped proofs. Levels at or above a
	// tree's actual depth are pass-through no-ops, so padding a proof to the
	// floor never changes the folded root.
	MinProofDepth = 8
)

// ErrTreeFull is returned once the tree reaches 2^MaxDepth leaves.
var ErrTreeFull = errors.New("imt: tree is full")

// Tree is an append-only lean incremental Merkle tree.
type Tree struct {
	// nodes[level][i] is the i-th node at that level; level 0 holds leaves.
	nodes [][]fr.Element
	size  uint64
	depth int
	root  fr.Element
}

// New returns an empty tree.
func New() *Tree {
	return &Tree{nodes: [][]fr.Element{nil}}
}

// Size returns the number of inserted leaves.
func (t *Tree) Size() uint64 { return t.size }

// Depth returns the tree's actual depth, ceil(log2(size)).
func (t *Tree) Depth() int { return t.depth }

// ProofDepth returns the depth used for proof shaping: the actual depth with
// the MinProofDepth floor applied.
func (t *Tree) ProofDepth() int {
	if t.depth < MinProofDepth {
		return MinProofDepth
	}
	return t.depth
}

// Root returns the current root. ok is false while the tree is empty.
func (t *Tree) Root() (root fr.Element, ok bool) {
	if t.size == 0 {
		return fr.Element{}, false
	}
	return t.root, true
}

// Leaf returns the leaf stored at index.
func (t *Tree) Leaf(index uint64) (fr.Element, error) {
	if index >= t.size {
		return fr.Element{}, fmt.Errorf("imt: leaf index %d out of range (size %d)", index, t.size)
	}
	return t.nodes[0][index], nil
}

// Insert appends leaf and recomputes the path to the root.
// Returns the leaf's index and the new root.
func (t *Tree) Insert(leaf fr.Element) (index uint64, root fr.Element, err error) {
	if t.size == 1<<MaxDepth {
		return 0, fr.Element{}, ErrTreeFull
	}
	index = t.size
	t.size++

	t.depth = depthForSize(t.size)
	for len(t.nodes) <= t.depth {
		t.nodes = append(t.nodes, nil)
	}

	t.setNode(0, index, leaf)
	node := leaf
	idx := index
	for level := 0; level < t.depth; level++ {
		if idx&1 == 1 {
			// right child: hash against the existing left sibling
			node = poseidon.Hash2(t.nodes[level][idx-1], node)
		}
		// left child with no sibling yet: pass through unchanged
		idx >>= 1
		t.setNode(level+1, idx, node)
	}
	t.root = node
	return index, node, nil
}

func (t *Tree) setNode(level int, idx uint64, v fr.Element) {
	for uint64(len(t.nodes[level])) <= idx {
		t.nodes[level] = append(t.nodes[level], fr.Element{})
	}
	t.nodes[level][idx] = v
}

// countAtLevel is the number of materialized nodes at a level: ceil(size / 2^level).
func (t *Tree) countAtLevel(level int) uint64 {
	if t.size == 0 {
		return 0
	}
	return (t.size + (1 << level) - 1) >> level
}

// GenerateProof produces the sibling set for the leaf at index against the
// current root. The emitted sibling/presence pairs reproduce exactly the
// level-gating rule VerifyProof applies; any divergence between the two makes
// proofs silently unverifiable.
func (t *Tree) GenerateProof(index uint64) (Proof, error) {
	if index >= t.size {
		return Proof{}, fmt.Errorf("imt: proof index %d out of range (size %d)", index, t.size)
	}
	p := Proof{
		Index: index,
		Depth: t.ProofDepth(),
		Leaf:  t.nodes[0][index],
		Root:  t.root,
	}
	idx := index
	for level := 0; level < t.depth; level++ {
		var sib uint64
		if idx&1 == 1 {
			sib = idx - 1
		} else {
			sib = idx + 1
		}
		if sib < t.countAtLevel(level) {
			p.Siblings[level] = t.nodes[level][sib]
			p.Present[level] = true
		}
		idx >>= 1
	}
	return p, nil
}

// depthForSize returns ceil(log2(n)) for n >= 1.
func depthForSize(n uint64) int {
	if n <= 1 {
		return 0
	}
	return bits.Len64(n - 1)
}
