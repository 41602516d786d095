// persist.go - JSON snapshot and restore of the full ledger state.
//
// Trees are not serialized: the leaf log is replayed on load, which rebuilds
// the tree, the historical root log and the leaf set bit for bit. Everything
// else is stored as flat lists so the snapshot stays diffable. Field elements
// and curve points go through the field.Scalar hex wire form; their in-memory
// representation does not survive encoding/json on its own.

package pool

import (
	"encoding/json"
	"fmt"
	"os"
	"sort"

	"shieldedpool/internal/field"
	"shieldedpool/internal/pedersen"
)

type pointWire struct {
	X field.Scalar `json:"x"`
	Y field.Scalar `json:"y"`
}

func pointToWire(p field.Point) pointWire {
	return pointWire{X: field.S(p.X), Y: field.S(p.Y)}
}

func (w pointWire) point() field.Point {
	var p field.Point
	p.X = w.X.Fr()
	p.Y = w.Y.Fr()
	return p
}

type encryptedEntry struct {
	NonceCommitment field.Scalar `json:"nonce_commitment"`
	Balance         field.Scalar `json:"balance"`
	Nullifier       field.Scalar `json:"nullifier"`
}

type operationEntry struct {
	Kind            OperationKind `json:"kind"`
	NonceCommitment field.Scalar  `json:"nonce_commitment"`
	Leaf            field.Scalar  `json:"leaf"`
	MintedShares    uint64        `json:"minted_shares,omitempty"`
}

type noteEntry struct {
	EphemeralPub pointWire    `json:"ephemeral_pub"`
	CipherAmount field.Scalar `json:"cipher_amount"`
}

type stackEntry struct {
	RecipientKey pointWire   `json:"recipient_key"`
	Point        pointWire   `json:"point"`
	Count        uint64      `json:"count"`
	Notes        []noteEntry `json:"notes"`
}

type aggregateSnapshot struct {
	Present bool         `json:"present"`
	Point   pointWire    `json:"point"`
	SumM    field.Scalar `json:"sum_m"`
	SumR    field.Scalar `json:"sum_r"`
	Count   uint64       `json:"count"`
}

type assetSnapshot struct {
	ID        field.Scalar      `json:"id"`
	Leaves    []field.Scalar    `json:"leaves"`
	Used      []field.Scalar    `json:"used"`
	Ops       []operationEntry  `json:"ops"`
	Encrypted []encryptedEntry  `json:"encrypted"`
	Stacks    []stackEntry      `json:"stacks"`
	Discovery aggregateSnapshot `json:"discovery"`
}

// LedgerSnapshot is the serialized form of a full ledger.
type LedgerSnapshot struct {
	ChainID field.Scalar    `json:"chain_id"`
	Assets  []assetSnapshot `json:"assets"`
}

// Snapshot captures the full ledger state. Each asset is locked while copied;
// the snapshot is consistent per asset, not across assets.
func (l *Ledger) Snapshot() LedgerSnapshot {
	snap := LedgerSnapshot{ChainID: field.S(l.chainID)}
	for _, st := range l.assets.snapshot() {
		st.mu.Lock()
		snap.Assets = append(snap.Assets, snapshotAsset(st))
		st.mu.Unlock()
	}
	sort.Slice(snap.Assets, func(i, j int) bool {
		return idKey(snap.Assets[i].ID.Fr()) < idKey(snap.Assets[j].ID.Fr())
	})
	return snap
}

func snapshotAsset(st *assetState) assetSnapshot {
	a := assetSnapshot{
		ID: field.S(st.id),
		Discovery: aggregateSnapshot{
			Present: st.discovery.Present,
			Point:   pointToWire(st.discovery.Point),
			SumM:    field.S(st.discovery.SumM),
			SumR:    field.S(st.discovery.SumR),
			Count:   st.discovery.Count,
		},
	}
	for _, leaf := range st.leafLog {
		a.Leaves = append(a.Leaves, field.S(leaf))
	}
	for k := range st.used {
		a.Used = append(a.Used, field.S(field.FromBytes([]byte(k))))
	}
	sort.Slice(a.Used, func(i, j int) bool { return idKey(a.Used[i].Fr()) < idKey(a.Used[j].Fr()) })
	for _, rec := range st.opLog {
		a.Ops = append(a.Ops, operationEntry{
			Kind:            rec.Kind,
			NonceCommitment: field.S(rec.NonceCommitment),
			Leaf:            field.S(rec.Leaf),
			MintedShares:    rec.MintedShares,
		})
		if enc, ok := st.encrypted[idKey(rec.NonceCommitment)]; ok {
			a.Encrypted = append(a.Encrypted, encryptedEntry{
				NonceCommitment: field.S(rec.NonceCommitment),
				Balance:         field.S(enc.Balance),
				Nullifier:       field.S(enc.Nullifier),
			})
		}
	}
	for _, s := range st.noteStacks {
		if !s.Present {
			continue
		}
		entry := stackEntry{
			RecipientKey: pointToWire(s.recipient),
			Point:        pointToWire(s.Point),
			Count:        s.Count,
		}
		for _, rec := range s.Notes {
			entry.Notes = append(entry.Notes, noteEntry{
				EphemeralPub: pointToWire(rec.EphemeralPub),
				CipherAmount: field.S(rec.CipherAmount),
			})
		}
		a.Stacks = append(a.Stacks, entry)
	}
	sort.Slice(a.Stacks, func(i, j int) bool {
		return pointKey(a.Stacks[i].RecipientKey.point()) < pointKey(a.Stacks[j].RecipientKey.point())
	})
	return a
}

// SaveToFile writes the ledger snapshot as indented JSON.
func (l *Ledger) SaveToFile(path string) error {
	snap := l.Snapshot()
	data, err := json.MarshalIndent(snap, "", "  ")
	if err != nil {
		return fmt.Errorf("marshal ledger snapshot: %w", err)
	}
	if err := os.WriteFile(path, data, 0o644); err != nil {
		return fmt.Errorf("write ledger snapshot: %w", err)
	}
	return nil
}

// Restore rebuilds a ledger from a snapshot. Options apply as in New; the
// chain id comes from the snapshot.
func Restore(snap LedgerSnapshot, opts ...Option) (*Ledger, error) {
	l := New(snap.ChainID.Fr(), opts...)
	for _, a := range snap.Assets {
		st := l.asset(a.ID.Fr())
		st.mu.Lock()
		for _, leaf := range a.Leaves {
			if _, err := st.recordInsert(leaf.Fr()); err != nil {
				st.mu.Unlock()
				return nil, fmt.Errorf("replay leaf log: %w", err)
			}
		}
		for _, v := range a.Used {
			st.markUsed(v.Fr())
		}
		for _, rec := range a.Ops {
			st.recordOperation(OperationRecord{
				Kind:            rec.Kind,
				NonceCommitment: rec.NonceCommitment.Fr(),
				Leaf:            rec.Leaf.Fr(),
				MintedShares:    rec.MintedShares,
			})
		}
		for _, e := range a.Encrypted {
			st.encrypted[idKey(e.NonceCommitment.Fr())] = EncryptedState{
				Balance:   e.Balance.Fr(),
				Nullifier: e.Nullifier.Fr(),
			}
		}
		for _, e := range a.Stacks {
			s := &NoteStack{
				Point:     e.Point.point(),
				Present:   true,
				Count:     e.Count,
				recipient: e.RecipientKey.point(),
			}
			for _, rec := range e.Notes {
				s.Notes = append(s.Notes, NoteRecord{
					EphemeralPub: rec.EphemeralPub.point(),
					CipherAmount: rec.CipherAmount.Fr(),
				})
			}
			st.noteStacks[pointKey(s.recipient)] = s
		}
		st.discovery = pedersen.Aggregate{
			Present: a.Discovery.Present,
			Point:   a.Discovery.Point.point(),
			SumM:    a.Discovery.SumM.Fr(),
			SumR:    a.Discovery.SumR.Fr(),
			Count:   a.Discovery.Count,
		}
		st.mu.Unlock()
	}
	return l, nil
}

// LoadFromFile reads a snapshot written by SaveToFile and rebuilds the ledger.
func LoadFromFile(path string, opts ...Option) (*Ledger, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read ledger snapshot: %w", err)
	}
	var snap LedgerSnapshot
	if err := json.Unmarshal(data, &snap); err != nil {
		return nil, fmt.Errorf("parse ledger snapshot: %w", err)
	}
	return Restore(snap, opts...)
}
