// metrics.go - Operation counters for the ledger.

package pool

import "sync/atomic"

var allKinds = []OperationKind{OpCreate, OpAddFunds, OpWithdraw, OpTransfer, OpAbsorb}

// Metrics counts accepted and rejected transitions per operation kind. The
// kind set is fixed, so the maps are populated once at construction and the
// hot path is a single atomic add.
type Metrics struct {
	accepted map[OperationKind]*int64
	rejected map[OperationKind]*int64
}

// NewMetrics creates a collector with a zero counter per operation kind.
func NewMetrics() *Metrics {
	m := &Metrics{
		accepted: make(map[OperationKind]*int64, len(allKinds)),
		rejected: make(map[OperationKind]*int64, len(allKinds)),
	}
	for _, kind := range allKinds {
		m.accepted[kind] = new(int64)
		m.rejected[kind] = new(int64)
	}
	return m
}

// Accepted increments the accept counter for kind.
func (m *Metrics) Accepted(kind OperationKind) {
	if c, ok := m.accepted[kind]; ok {
		atomic.AddInt64(c, 1)
	}
}

// Rejected increments the reject counter for kind.
func (m *Metrics) Rejected(kind OperationKind) {
	if c, ok := m.rejected[kind]; ok {
		atomic.AddInt64(c, 1)
	}
}

// Snapshot returns current counts keyed by "<kind>_accepted" / "<kind>_rejected".
func (m *Metrics) Snapshot() map[string]int64 {
	out := make(map[string]int64, 2*len(allKinds))
	for kind, c := range m.accepted {
		out[kind.String()+"_accepted"] = atomic.LoadInt64(c)
	}
	for kind, c := range m.rejected {
		out[kind.String()+"_rejected"] = atomic.LoadInt64(c)
	}
	return out
}
