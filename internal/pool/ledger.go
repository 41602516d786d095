// ledger.go - The commitment ledger: per-asset trees, roots, used set, logs.
//
// One Ledger value owns all per-asset state, indexed by asset id and passed
// explicitly to whoever needs it; there is no ambient global state. State
// transitions are serialized per asset and fully independent across assets.
// The read surface is what the discovery protocol and remote clients query.

package pool

import (
	"time"

	"github.com/consensys/gnark-crypto/ecc/bn254/fr"
	"github.com/rs/zerolog"

	"shieldedpool/internal/field"
	"shieldedpool/internal/imt"
	"shieldedpool/internal/pedersen"
	"shieldedpool/internal/poseidon"
)

// TimeTolerance is how far (in seconds, either direction) a withdraw's
// declared time reference may sit from ledger time.
const TimeTolerance = 300

// Ledger is the top-level orchestrator for all assets on one chain.
type Ledger struct {
	chainID fr.Element
	oracle  ProofOracle
	now     func() uint64
	log     zerolog.Logger
	metrics *Metrics

	assets syncMap
}

// Option configures a Ledger.
type Option func(*Ledger)

// WithOracle installs the proof oracle consulted before every transition.
func WithOracle(o ProofOracle) Option {
	return func(l *Ledger) { l.oracle = o }
}

// WithClock overrides the ledger time source (unix seconds).
func WithClock(now func() uint64) Option {
	return func(l *Ledger) { l.now = now }
}

// WithLogger installs a structured logger; the default discards everything.
func WithLogger(log zerolog.Logger) Option {
	return func(l *Ledger) { l.log = log }
}

// New creates an empty ledger for one chain id.
func New(chainID fr.Element, opts ...Option) *Ledger {
	l := &Ledger{
		chainID: chainID,
		oracle:  AcceptAllOracle{},
		now:     func() uint64 { return uint64(time.Now().Unix()) },
		log:     zerolog.Nop(),
		metrics: NewMetrics(),
	}
	for _, opt := range opts {
		opt(l)
	}
	return l
}

// ChainID returns the chain id the ledger was created for.
func (l *Ledger) ChainID() fr.Element { return l.chainID }

// Metrics returns the ledger's operation counters.
func (l *Ledger) Metrics() *Metrics { return l.metrics }

// asset returns the state for assetID, creating it if needed.
func (l *Ledger) asset(assetID fr.Element) *assetState {
	return l.assets.getOrCreate(idKey(assetID), assetID)
}

// lookup returns the state for assetID without creating it.
func (l *Ledger) lookup(assetID fr.Element) (*assetState, bool) {
	return l.assets.get(idKey(assetID))
}

// --- Tree query surface -----------------------------------------------------

// Root returns the current root of the asset's tree. ok is false while no
// leaf has been inserted.
func (l *Ledger) Root(assetID fr.Element) (fr.Element, bool) {
	st, ok := l.lookup(assetID)
	if !ok {
		return fr.Element{}, false
	}
	st.mu.Lock()
	defer st.mu.Unlock()
	return st.tree.Root()
}

// Depth returns the proof-shaping depth of the asset's tree, never below the
// uniform minimum floor.
func (l *Ledger) Depth(assetID fr.Element) int {
	st, ok := l.lookup(assetID)
	if !ok {
		return imt.MinProofDepth
	}
	st.mu.Lock()
	defer st.mu.Unlock()
	return st.tree.ProofDepth()
}

// Size returns the number of leaves in the asset's tree.
func (l *Ledger) Size(assetID fr.Element) uint64 {
	st, ok := l.lookup(assetID)
	if !ok {
		return 0
	}
	st.mu.Lock()
	defer st.mu.Unlock()
	return st.tree.Size()
}

// IsHistoricalRoot reports whether root was ever a valid root of the asset's
// tree. Historical roots are retained forever.
func (l *Ledger) IsHistoricalRoot(assetID, root fr.Element) bool {
	st, ok := l.lookup(assetID)
	if !ok {
		return false
	}
	st.mu.Lock()
	defer st.mu.Unlock()
	return st.isHistoricalRoot(root)
}

// HistoricalRoots returns a copy of the asset's root log in insertion order.
func (l *Ledger) HistoricalRoots(assetID fr.Element) []HistoricalRoot {
	st, ok := l.lookup(assetID)
	if !ok {
		return nil
	}
	st.mu.Lock()
	defer st.mu.Unlock()
	out := make([]HistoricalRoot, len(st.roots))
	copy(out, st.roots)
	return out
}

// GenerateProof produces a membership proof for the leaf at index against the
// asset tree's current root.
func (l *Ledger) GenerateProof(assetID fr.Element, index uint64) (imt.Proof, error) {
	st, ok := l.lookup(assetID)
	if !ok {
		return imt.Proof{}, ErrStaleRoot
	}
	st.mu.Lock()
	defer st.mu.Unlock()
	return st.tree.GenerateProof(index)
}

// Leaves returns a copy of the asset's append-only leaf log.
func (l *Ledger) Leaves(assetID fr.Element) []fr.Element {
	st, ok := l.lookup(assetID)
	if !ok {
		return nil
	}
	st.mu.Lock()
	defer st.mu.Unlock()
	out := make([]fr.Element, len(st.leafLog))
	copy(out, st.leafLog)
	return out
}

// --- Membership surface (discovery reads) -----------------------------------

// IsUsed reports whether a nonce commitment or leaf is in the asset's
// write-once used set.
func (l *Ledger) IsUsed(assetID, id fr.Element) (bool, error) {
	st, ok := l.lookup(assetID)
	if !ok {
		return false, nil
	}
	st.mu.Lock()
	defer st.mu.Unlock()
	return st.isUsed(id), nil
}

// ReadEncryptedState returns the encrypted (balance, nullifier) pair stored
// under a nonce commitment, if any.
func (l *Ledger) ReadEncryptedState(assetID, nonceCommitment fr.Element) (EncryptedState, bool, error) {
	st, ok := l.lookup(assetID)
	if !ok {
		return EncryptedState{}, false, nil
	}
	st.mu.Lock()
	defer st.mu.Unlock()
	enc, found := st.encrypted[idKey(nonceCommitment)]
	return enc, found, nil
}

// ReadOperationKind returns the public operation record posted under a nonce
// commitment, if any.
func (l *Ledger) ReadOperationKind(assetID, nonceCommitment fr.Element) (OperationRecord, bool, error) {
	st, ok := l.lookup(assetID)
	if !ok {
		return OperationRecord{}, false, nil
	}
	st.mu.Lock()
	defer st.mu.Unlock()
	rec, found := st.opByNC[idKey(nonceCommitment)]
	return rec, found, nil
}

// OperationLog returns a copy of the asset's public operation log in
// acceptance order.
func (l *Ledger) OperationLog(assetID fr.Element) []OperationRecord {
	st, ok := l.lookup(assetID)
	if !ok {
		return nil
	}
	st.mu.Lock()
	defer st.mu.Unlock()
	out := make([]OperationRecord, len(st.opLog))
	copy(out, st.opLog)
	return out
}

// DiscoveryAggregate returns the running homomorphic aggregate over every
// discovery entry posted for the asset.
func (l *Ledger) DiscoveryAggregate(assetID fr.Element) pedersen.Aggregate {
	st, ok := l.lookup(assetID)
	if !ok {
		return pedersen.Aggregate{}
	}
	st.mu.Lock()
	defer st.mu.Unlock()
	return st.discovery
}

// ReadNoteStack returns a copy of the pending note stack addressed to a
// recipient key.
func (l *Ledger) ReadNoteStack(assetID fr.Element, recipientKey field.Point) (NoteStack, bool) {
	st, ok := l.lookup(assetID)
	if !ok {
		return NoteStack{}, false
	}
	st.mu.Lock()
	defer st.mu.Unlock()
	s, found := st.noteStacks[pointKey(recipientKey)]
	if !found || !s.Present {
		return NoteStack{}, false
	}
	out := *s
	out.Notes = append([]NoteRecord(nil), s.Notes...)
	return out, true
}

// DiscoveryEntry derives the public discovery entry posted alongside an
// accepted operation: Commit2(nonceCommitment, Hash2(leaf, nonceCommitment)).
// Both scalars are public, so any observer can maintain the same aggregate.
func DiscoveryEntry(nonceCommitment, leaf fr.Element) (point field.Point, m, r fr.Element) {
	m = nonceCommitment
	r = poseidon.Hash2(leaf, nonceCommitment)
	return pedersen.Commit2(m, r), m, r
}
