// proof.go - Membership proof shape and the parameterized verification loop.

package imt

import (
	"github.com/consensys/gnark-crypto/ecc/bn254/fr"

	"shieldedpool/internal/poseidon"
)

// Proof is a fixed-size membership proof. Sibling slots at levels >= Depth are
// unused; absent siblings below Depth are marked by the presence flags rather
// than a field-value sentinel.
type Proof struct {
	Index    uint64               `json:"index"`
	Depth    int                  `json:"depth"`
	Leaf     fr.Element           `json:"leaf"`
	Root     fr.Element           `json:"root"`
	Siblings [MaxDepth]fr.Element `json:"siblings"`
	Present  [MaxDepth]bool       `json:"present"`
}

// Verify folds the proof and reports whether it reaches p.Root.
//
// One loop over the fixed sibling buffer serves every depth: levels at or
// above p.Depth are no-ops. At each active level, bit `level` of the index
// selects the child position; a left child with no sibling passes through
// unchanged (the lean rule).
func (p *Proof) Verify() bool {
	if p.Depth < 0 || p.Depth > MaxDepth {
		return false
	}
	if p.Depth < MaxDepth && p.Index>>p.Depth != 0 {
		return false
	}
	current := p.Leaf
	for level := 0; level < MaxDepth; level++ {
		if level >= p.Depth {
			continue
		}
		if (p.Index>>level)&1 == 1 {
			// a right child always has a left sibling
			if !p.Present[level] {
				return false
			}
			current = poseidon.Hash2(p.Siblings[level], current)
		} else if p.Present[level] {
			current = poseidon.Hash2(current, p.Siblings[level])
		}
	}
	return current.Equal(&p.Root)
}

// VerifyAgainst folds the proof against an explicit root, e.g. a retained
// historical root rather than the root captured in the proof.
func (p *Proof) VerifyAgainst(root fr.Element) bool {
	q := *p
	q.Root = root
	return q.Verify()
}
