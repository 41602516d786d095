// discovery.go - Client-side reconstruction of a balance history.
//
// Given only a user secret and an asset id, the scan walks nonce commitments
// derived from the spending key and asks the public membership surface
// whether each one was ever posted. No server-side index exists; the sequence
// itself is the index. The scan is sequential per user but restartable from
// any checkpoint, and must run under an explicit step budget.

package pool

import (
	"fmt"

	"github.com/consensys/gnark-crypto/ecc/bn254/fr"

	"shieldedpool/internal/pedersen"
	"shieldedpool/internal/poseidon"
)

// MembershipOracle is the public read surface discovery queries. Implemented
// by *Ledger in process and by client.Client over HTTP.
type MembershipOracle interface {
	IsUsed(assetID, id fr.Element) (bool, error)
	ReadEncryptedState(assetID, nonceCommitment fr.Element) (EncryptedState, bool, error)
	ReadOperationKind(assetID, nonceCommitment fr.Element) (OperationRecord, bool, error)
}

// DefaultScanBudget bounds membership queries per scan when the caller does
// not set one.
const DefaultScanBudget = 10000

// Checkpoint marks a previously reached scan position.
type Checkpoint struct {
	Nonce uint64 `json:"nonce"`
}

// ScanOptions tunes one discovery run.
type ScanOptions struct {
	// MaxSteps is the hard budget on membership queries; 0 means
	// DefaultScanBudget. Exceeding it fails with ErrDiscoveryExhausted.
	MaxSteps uint64
	// Checkpoint resumes the scan from a prior position instead of nonce 0.
	Checkpoint *Checkpoint
	// Lookahead is how many consecutive absent nonces confirm termination.
	// Inherited behavior; 0 means the default of 1. See DESIGN.md.
	Lookahead uint64
}

// HistoryEntry is one reconstructed balance state.
type HistoryEntry struct {
	Nonce     uint64        `json:"nonce"`
	Kind      OperationKind `json:"kind"`
	Shares    uint64        `json:"shares"` // true balance, offset removed
	Nullifier fr.Element    `json:"nullifier"`
}

// History is the outcome of a scan: the current nonce, every reconstructed
// state, and the homomorphic aggregate over the entries found, which must
// self-verify against its own scalar sums.
type History struct {
	Found     bool               `json:"found"`
	Nonce     uint64             `json:"nonce"`
	Entries   []HistoryEntry     `json:"entries"`
	Aggregate pedersen.Aggregate `json:"aggregate"`
	Steps     uint64             `json:"steps"`
}

// Balance returns the latest true balance, zero when no state exists.
func (h *History) Balance() uint64 {
	if len(h.Entries) == 0 {
		return 0
	}
	return h.Entries[len(h.Entries)-1].Shares
}

type scanner struct {
	oracle  MembershipOracle
	assetID fr.Element
	sk      fr.Element
	vk      fr.Element
	budget  uint64
	steps   uint64
}

func (s *scanner) query(id fr.Element) (bool, error) {
	if s.steps >= s.budget {
		return false, fmt.Errorf("%w: %d membership queries spent; resume with a checkpoint", ErrDiscoveryExhausted, s.steps)
	}
	s.steps++
	return s.oracle.IsUsed(s.assetID, id)
}

// readEntry reconstructs the state stored under one present nonce.
func (s *scanner) readEntry(nonce uint64, nc fr.Element) (HistoryEntry, OperationRecord, error) {
	rec, found, err := s.oracle.ReadOperationKind(s.assetID, nc)
	if err != nil {
		return HistoryEntry{}, OperationRecord{}, err
	}
	if !found {
		return HistoryEntry{}, OperationRecord{}, fmt.Errorf("%w: nonce %d present but unreadable", ErrInvariant, nonce)
	}
	entry := HistoryEntry{Nonce: nonce, Kind: rec.Kind}
	if rec.Kind == OpCreate {
		// minted shares are recorded plaintext-equivalent
		entry.Shares = rec.MintedShares
		entry.Nullifier = fr.One()
		return entry, rec, nil
	}
	enc, found, err := s.oracle.ReadEncryptedState(s.assetID, nc)
	if err != nil {
		return HistoryEntry{}, OperationRecord{}, err
	}
	if !found {
		return HistoryEntry{}, OperationRecord{}, fmt.Errorf("%w: nonce %d has no encrypted state", ErrInvariant, nonce)
	}
	stateKey := StateKey(s.vk, nc)
	balance := poseidon.Decrypt(enc.Balance, stateKey, poseidon.CounterBalance)
	if !balance.IsUint64() || balance.Uint64() == 0 {
		return HistoryEntry{}, OperationRecord{}, fmt.Errorf("%w: nonce %d balance does not decrypt under this view key", ErrInvariant, nonce)
	}
	entry.Shares = balance.Uint64() - 1
	entry.Nullifier = poseidon.Decrypt(enc.Nullifier, stateKey, poseidon.CounterNullifier)
	return entry, rec, nil
}

// Discover reconstructs the balance history for (secret, chainID, assetID).
func Discover(oracle MembershipOracle, secret, chainID, assetID fr.Element, opts *ScanOptions) (*History, error) {
	var o ScanOptions
	if opts != nil {
		o = *opts
	}
	if o.MaxSteps == 0 {
		o.MaxSteps = DefaultScanBudget
	}
	if o.Lookahead == 0 {
		o.Lookahead = 1
	}

	s := &scanner{
		oracle:  oracle,
		assetID: assetID,
		sk:      SpendingKey(secret, chainID, assetID),
		vk:      ViewKey(secret),
		budget:  o.MaxSteps,
	}
	h := &History{}
	nonce := uint64(0)
	if o.Checkpoint != nil {
		nonce = o.Checkpoint.Nonce
	}

	for {
		nc := NonceCommitment(s.sk, nonce, assetID)
		present, err := s.query(nc)
		if err != nil {
			h.Steps = s.steps
			return h, err
		}
		if !present {
			// a single absent nonce is not proof of the end: confirm the
			// next Lookahead nonces are absent too before stopping
			confirmed, resumeAt, err := s.confirmEnd(nonce, o.Lookahead)
			if err != nil {
				h.Steps = s.steps
				return h, err
			}
			if confirmed {
				break
			}
			// spurious gap: a later nonce exists, keep scanning from it
			nonce = resumeAt
			continue
		}
		entry, rec, err := s.readEntry(nonce, nc)
		if err != nil {
			h.Steps = s.steps
			return h, err
		}
		h.Entries = append(h.Entries, entry)
		h.Found = true
		h.Nonce = nonce
		point, m, r := DiscoveryEntry(nc, rec.Leaf)
		h.Aggregate.Fold(point, m, r)
		nonce++
	}
	h.Steps = s.steps
	return h, nil
}

// confirmEnd runs the lookahead after an absent nonce. It reports whether
// the scan may stop; when a later nonce turns out to be present it returns
// that nonce so the scan resumes there.
func (s *scanner) confirmEnd(absent, lookahead uint64) (confirmed bool, resumeAt uint64, err error) {
	for i := uint64(1); i <= lookahead; i++ {
		nc := NonceCommitment(s.sk, absent+i, s.assetID)
		present, err := s.query(nc)
		if err != nil {
			return false, 0, err
		}
		if present {
			return false, absent + i, nil
		}
	}
	return true, 0, nil
}

// RecomputeAggregate folds the discovery entries of a full public operation
// log, so a caller can cross-check the ledger's running aggregate without
// trusting it.
func RecomputeAggregate(ops []OperationRecord) pedersen.Aggregate {
	var agg pedersen.Aggregate
	for _, rec := range ops {
		point, m, r := DiscoveryEntry(rec.NonceCommitment, rec.Leaf)
		agg.Fold(point, m, r)
	}
	return agg
}
