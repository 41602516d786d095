// state.go - Per-asset ledger state: tree, historical roots, used set, logs.
//
// Leaves and historical roots are created on insert and never mutated or
// deleted. Used-set entries are write-once. Everything here is guarded by the
// owning asset's mutex in Ledger; no method on assetState locks.

package pool

import (
	"sync"

	"github.com/consensys/gnark-crypto/ecc/bn254/fr"

	"shieldedpool/internal/field"
	"shieldedpool/internal/imt"
	"shieldedpool/internal/pedersen"
)

// OperationKind tags one of the five state transitions.
type OperationKind int

const (
	OpCreate OperationKind = iota
	OpAddFunds
	OpWithdraw
	OpTransfer
	OpAbsorb
)

func (k OperationKind) String() string {
	switch k {
	case OpCreate:
		return "create"
	case OpAddFunds:
		return "add_funds"
	case OpWithdraw:
		return "withdraw"
	case OpTransfer:
		return "transfer"
	case OpAbsorb:
		return "absorb"
	}
	return "unknown"
}

// HistoricalRoot is a (root, depth, size) snapshot taken after an insert.
// Once recorded it is retained forever, so a proof may reference any past
// valid root.
type HistoricalRoot struct {
	Root  fr.Element `json:"root"`
	Depth int        `json:"depth"`
	Size  uint64     `json:"size"`
}

// EncryptedState is the view-key-encrypted (balance, nullifier) pair stored
// under a nonce commitment.
type EncryptedState struct {
	Balance   fr.Element `json:"balance"`
	Nullifier fr.Element `json:"nullifier"`
}

// OperationRecord is the public record of one accepted transition.
type OperationRecord struct {
	Kind            OperationKind `json:"kind"`
	NonceCommitment fr.Element    `json:"nonce_commitment"`
	Leaf            fr.Element    `json:"leaf"`
	// MintedShares is the plaintext share count for Create operations, which
	// the ledger itself originated and therefore need no encryption.
	MintedShares uint64 `json:"minted_shares,omitempty"`
}

// NoteRecord is one pending transfer note addressed to a recipient key. The
// ciphertext and ephemeral key let the recipient recover the amount via the
// shared secret; the ledger never learns it.
type NoteRecord struct {
	EphemeralPub field.Point `json:"ephemeral_pub"`
	CipherAmount fr.Element  `json:"cipher_amount"`
}

// NoteStack is the constant-size homomorphic sum of all pending notes
// addressed to one recipient key, replacing an unbounded note list. The
// presence flag marks the empty stack.
type NoteStack struct {
	Point   field.Point  `json:"point"`
	Present bool         `json:"present"`
	Count   uint64       `json:"count"`
	Notes   []NoteRecord `json:"notes"`

	recipient field.Point
}

// Fold adds one note commitment into the stack.
func (s *NoteStack) Fold(p field.Point, rec NoteRecord) {
	if !s.Present {
		s.Point = p
		s.Present = true
	} else {
		s.Point = field.AddPoints(s.Point, p)
	}
	s.Count++
	s.Notes = append(s.Notes, rec)
}

// Leaf is the tree leaf bound to the stack's current point.
func (s *NoteStack) Leaf() fr.Element {
	return LeafFromPoint(s.Point)
}

// assetState is the mutable ledger state for one asset id.
type assetState struct {
	mu sync.Mutex
	id fr.Element

	tree    *imt.Tree
	roots   []HistoricalRoot
	rootSet map[string]struct{}

	// used holds allocated nonce commitments and consumed leaves; the only
	// public membership surface discovery queries.
	used map[string]struct{}

	leafLog []fr.Element
	leafSet map[string]struct{}
	opLog   []OperationRecord
	opByNC  map[string]OperationRecord

	encrypted map[string]EncryptedState

	// noteStacks is keyed by the recipient public key.
	noteStacks map[string]*NoteStack

	// discovery is the running homomorphic aggregate over every discovery
	// entry posted for the asset.
	discovery pedersen.Aggregate
}

func newAssetState() *assetState {
	return &assetState{
		tree:       imt.New(),
		rootSet:    make(map[string]struct{}),
		used:       make(map[string]struct{}),
		leafSet:    make(map[string]struct{}),
		opByNC:     make(map[string]OperationRecord),
		encrypted:  make(map[string]EncryptedState),
		noteStacks: make(map[string]*NoteStack),
	}
}

// idKey maps a field element to a map key.
func idKey(v fr.Element) string {
	b := v.Bytes()
	return string(b[:])
}

// pointKey maps a curve point to a map key.
func pointKey(p field.Point) string {
	x := p.X.Bytes()
	y := p.Y.Bytes()
	return string(x[:]) + string(y[:])
}

func (st *assetState) isUsed(id fr.Element) bool {
	_, ok := st.used[idKey(id)]
	return ok
}

func (st *assetState) markUsed(id fr.Element) {
	st.used[idKey(id)] = struct{}{}
}

// hasLeaf reports whether leaf was ever inserted; a leaf goes in at most once.
func (st *assetState) hasLeaf(leaf fr.Element) bool {
	_, ok := st.leafSet[idKey(leaf)]
	return ok
}

func (st *assetState) isHistoricalRoot(root fr.Element) bool {
	_, ok := st.rootSet[idKey(root)]
	return ok
}

// recordInsert appends a leaf to the tree, the leaf log and the historical
// root log in one step.
func (st *assetState) recordInsert(leaf fr.Element) (uint64, error) {
	index, root, err := st.tree.Insert(leaf)
	if err != nil {
		return 0, err
	}
	st.leafLog = append(st.leafLog, leaf)
	st.leafSet[idKey(leaf)] = struct{}{}
	hr := HistoricalRoot{Root: root, Depth: st.tree.Depth(), Size: st.tree.Size()}
	st.roots = append(st.roots, hr)
	st.rootSet[idKey(root)] = struct{}{}
	return index, nil
}

func (st *assetState) recordOperation(rec OperationRecord) {
	st.opLog = append(st.opLog, rec)
	st.opByNC[idKey(rec.NonceCommitment)] = rec
}

func (st *assetState) stackFor(recipientKey field.Point) *NoteStack {
	k := pointKey(recipientKey)
	s, ok := st.noteStacks[k]
	if !ok {
		s = &NoteStack{recipient: recipientKey}
		st.noteStacks[k] = s
	}
	return s
}
