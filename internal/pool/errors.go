// errors.go - Failure classes for ledger operations and discovery.
//
// Every failure surfaces synchronously at the failing check and leaves no
// partial state behind. The ledger never retries; retry policy belongs to the
// caller. Callers classify with errors.Is against the sentinels below.

package pool

import "errors"

var (
	// ErrAuthentication: the accompanying proof does not verify against the
	// declared public inputs. Fatal.
	ErrAuthentication = errors.New("authentication failure")

	// ErrStaleRoot: the claimed historical root is unknown to the ledger.
	// Recoverable: refresh the tree view and recompute the proof.
	ErrStaleRoot = errors.New("stale or unknown root")

	// ErrReplay: a nonce commitment or leaf is already marked used. Fatal;
	// re-derive from the next nonce.
	ErrReplay = errors.New("replay detected")

	// ErrInvariant: a reconstructed opening does not match the claimed leaf,
	// or a balance is insufficient. Fatal; signals corrupted or malicious input.
	ErrInvariant = errors.New("invariant violation")

	// ErrTimeWindow: the declared time is too far from ledger time, or funds
	// are still locked. Recoverable: wait, or resubmit with a fresh reference.
	ErrTimeWindow = errors.New("time window violation")

	// ErrDiscoveryExhausted: the scan exceeded its step budget without
	// terminating. The caller must supply an explicit resync checkpoint.
	ErrDiscoveryExhausted = errors.New("discovery exhausted")
)
