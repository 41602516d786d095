// ops.go - The five atomic state transitions of the commitment ledger.
//
// Every operation runs its full check sequence (chain id, nonce freshness,
// opening reconstruction, historical-root membership, monetary invariants,
// proof oracle) before the first mutation, and holds the asset mutex across
// both, so acceptance is exclusive and total: either everything commits or
// nothing does. Rejections are pure; the ledger never retries.

package pool

import (
	"fmt"
	"math"

	"github.com/consensys/gnark-crypto/ecc/bn254/fr"
	"github.com/ethereum/go-ethereum/common"

	"shieldedpool/internal/field"
	"shieldedpool/internal/imt"
	"shieldedpool/internal/pedersen"
)

// PreviousState identifies the prior balance state an operation consumes: the
// claimed opening, the nonce it sits at, and a membership proof of its leaf
// against some retained historical root. Shares and Unlocks mirror the
// opening's encoded scalars as integers so the ledger can do ordered
// arithmetic on them; a mismatch with the opening is an invariant violation.
type PreviousState struct {
	Nonce   uint64
	Opening Opening
	Shares  uint64 // encoded (true value + 1)
	Unlocks uint64 // encoded (unix seconds + 1, 1 = unlocked)
	Proof   imt.Proof
}

// NewState is the successor state an operation produces: the new opening
// (blinded by the next nonce commitment) and the view-key ciphertexts the
// ledger stores under that commitment.
type NewState struct {
	Opening   Opening
	Encrypted EncryptedState
}

// TransferNote is the second, independent commitment a transfer posts for its
// recipient, addressed through a Diffie-Hellman shared secret between the
// sender's ephemeral key and the recipient's public key.
type TransferNote struct {
	RecipientKey field.Point
	EphemeralPub field.Point
	Point        field.Point
	CipherAmount fr.Element
}

// CreateParams opens a fresh balance state at nonce 0 with no prior state.
type CreateParams struct {
	AssetID      fr.Element
	ChainID      fr.Element
	SpendingKey  fr.Element
	MintedShares uint64
	UnlocksAt    uint64 // unix seconds, 0 = unlocked
	Proof        []byte
}

// AddFundsParams increases a balance unconditionally.
type AddFundsParams struct {
	AssetID  fr.Element
	ChainID  fr.Element
	Amount   uint64
	Previous PreviousState
	New      NewState
	Proof    []byte
}

// WithdrawParams moves funds out of the pool to an external receiver.
type WithdrawParams struct {
	AssetID      fr.Element
	ChainID      fr.Element
	Amount       uint64
	Fee          uint64
	Receiver     common.Address
	Calldata     []byte
	DeclaredTime uint64
	Previous     PreviousState
	New          NewState
	Proof        []byte
}

// TransferParams moves funds to another pool participant as a pending note.
type TransferParams struct {
	AssetID  fr.Element
	ChainID  fr.Element
	Amount   uint64
	Previous PreviousState
	New      NewState
	Note     TransferNote
	Proof    []byte
}

// WithdrawLeg is an optional withdraw chained onto an absorb.
type WithdrawLeg struct {
	Amount       uint64
	Fee          uint64
	Receiver     common.Address
	Calldata     []byte
	DeclaredTime uint64
}

// TransferLeg is an optional transfer chained onto an absorb.
type TransferLeg struct {
	Amount uint64
	Note   TransferNote
}

// AbsorbParams folds a previously accumulated note stack into the owner's
// primary balance. At most one of Withdraw/Transfer may chain onto the same
// transition; the absorbed amount is available to it.
type AbsorbParams struct {
	AssetID        fr.Element
	ChainID        fr.Element
	OwnerKey       field.Point
	StackM         fr.Element
	StackR         fr.Element
	AbsorbedShares uint64 // true sum of note amounts in the stack
	StackProof     imt.Proof
	Previous       PreviousState
	New            NewState
	Withdraw       *WithdrawLeg
	Transfer       *TransferLeg
	Proof          []byte
}

// OperationResult reports the public outcome of an accepted transition.
type OperationResult struct {
	Kind            OperationKind
	NonceCommitment fr.Element
	Leaf            fr.Element
	LeafIndex       uint64
	Root            fr.Element
	// StackLeaf/StackLeafIndex are set when the operation also inserted an
	// updated note-stack leaf (Transfer, or Absorb with a transfer leg).
	StackLeaf      fr.Element
	StackLeafIndex uint64
	HasStackLeaf   bool
}

func (l *Ledger) checkChain(chainID fr.Element) error {
	if !chainID.Equal(&l.chainID) {
		return fmt.Errorf("%w: chain id mismatch", ErrInvariant)
	}
	return nil
}

// verifyPrevious runs the consume-side checks shared by every operation that
// spends a prior leaf. Caller holds st.mu.
func (st *assetState) verifyPrevious(assetID fr.Element, prev *PreviousState) (prevLeaf fr.Element, err error) {
	o := &prev.Opening
	wantNC := NonceCommitment(o.SpendingKey, prev.Nonce, assetID)
	if !o.Blinding.Equal(&wantNC) {
		return fr.Element{}, fmt.Errorf("%w: blinding is not the nonce-%d commitment", ErrInvariant, prev.Nonce)
	}
	if enc := field.FromUint64(prev.Shares); !enc.Equal(&o.Shares) {
		return fr.Element{}, fmt.Errorf("%w: declared shares do not match opening", ErrInvariant)
	}
	if enc := field.FromUint64(prev.Unlocks); !enc.Equal(&o.UnlocksAt) {
		return fr.Element{}, fmt.Errorf("%w: declared unlock time does not match opening", ErrInvariant)
	}
	prevLeaf = o.Leaf()
	if !prevLeaf.Equal(&prev.Proof.Leaf) {
		return fr.Element{}, fmt.Errorf("%w: opening does not reconstruct the claimed leaf", ErrInvariant)
	}
	if st.isUsed(prevLeaf) {
		return fr.Element{}, fmt.Errorf("%w: leaf already consumed", ErrReplay)
	}
	if !st.isHistoricalRoot(prev.Proof.Root) {
		return fr.Element{}, fmt.Errorf("%w: claimed root was never a root of this tree", ErrStaleRoot)
	}
	if !prev.Proof.Verify() {
		return fr.Element{}, fmt.Errorf("%w: membership proof does not fold to the claimed root", ErrInvariant)
	}
	return prevLeaf, nil
}

// verifyNew runs the produce-side checks: the successor nonce commitment is
// fresh, the new opening is consistent with the previous one, carries exactly
// wantShares, and respects the unlock monotonicity rule (a lock can only be
// cleared, never introduced or moved). Caller holds st.mu.
func (st *assetState) verifyNew(assetID fr.Element, prev *PreviousState, next *NewState, wantShares uint64) (newNC, newLeaf fr.Element, commit field.Point, err error) {
	newNC = NonceCommitment(prev.Opening.SpendingKey, prev.Nonce+1, assetID)
	if st.isUsed(newNC) {
		return fr.Element{}, fr.Element{}, field.Point{}, fmt.Errorf("%w: nonce commitment already allocated", ErrReplay)
	}
	o := &next.Opening
	if !o.SpendingKey.Equal(&prev.Opening.SpendingKey) {
		return fr.Element{}, fr.Element{}, field.Point{}, fmt.Errorf("%w: spending key changed across transition", ErrInvariant)
	}
	if !o.Blinding.Equal(&newNC) {
		return fr.Element{}, fr.Element{}, field.Point{}, fmt.Errorf("%w: new blinding is not the successor nonce commitment", ErrInvariant)
	}
	if enc := field.FromUint64(wantShares); !enc.Equal(&o.Shares) {
		return fr.Element{}, fr.Element{}, field.Point{}, fmt.Errorf("%w: new shares do not match the transition arithmetic", ErrInvariant)
	}
	cleared := EncodeTimestamp(0)
	if !o.UnlocksAt.Equal(&prev.Opening.UnlocksAt) && !o.UnlocksAt.Equal(&cleared) {
		return fr.Element{}, fr.Element{}, field.Point{}, fmt.Errorf("%w: unlock time may only be carried or cleared", ErrInvariant)
	}
	commit = o.Commit()
	newLeaf = LeafFromPoint(commit)
	if st.hasLeaf(newLeaf) {
		return fr.Element{}, fr.Element{}, field.Point{}, fmt.Errorf("%w: leaf already inserted", ErrReplay)
	}
	return newNC, newLeaf, commit, nil
}

// commitTransition applies the shared mutations of a consume-produce
// transition. Caller holds st.mu and has run every check.
func (st *assetState) commitTransition(kind OperationKind, prevLeaf, newNC, newLeaf fr.Element, enc EncryptedState) (uint64, error) {
	index, err := st.recordInsert(newLeaf)
	if err != nil {
		return 0, err
	}
	st.markUsed(prevLeaf)
	st.markUsed(newNC)
	st.encrypted[idKey(newNC)] = enc
	st.recordOperation(OperationRecord{Kind: kind, NonceCommitment: newNC, Leaf: newLeaf})
	point, m, r := DiscoveryEntry(newNC, newLeaf)
	st.discovery.Fold(point, m, r)
	return index, nil
}

func (st *assetState) capacityFor(n uint64) error {
	if st.tree.Size()+n > 1<<imt.MaxDepth {
		return imt.ErrTreeFull
	}
	return nil
}

// checkNote validates the structural parts of a transfer note. The amount
// relation inside the note commitment is the proof's job, not the ledger's.
func checkNote(note *TransferNote) error {
	for _, p := range []*field.Point{&note.RecipientKey, &note.EphemeralPub, &note.Point} {
		if field.IsIdentity(p) {
			return fmt.Errorf("%w: note carries an identity point", ErrInvariant)
		}
		if !p.IsOnCurve() {
			return fmt.Errorf("%w: note carries an off-curve point", ErrInvariant)
		}
	}
	return nil
}

func (l *Ledger) checkTime(declared uint64) error {
	now := l.now()
	var drift uint64
	if declared > now {
		drift = declared - now
	} else {
		drift = now - declared
	}
	if drift > TimeTolerance {
		return fmt.Errorf("%w: declared time %d too far from ledger time %d", ErrTimeWindow, declared, now)
	}
	return nil
}

func (l *Ledger) checkUnlocked(prev *PreviousState) error {
	if prev.Unlocks <= 1 {
		return nil
	}
	if unlocksAt := prev.Unlocks - 1; unlocksAt > l.now() {
		return fmt.Errorf("%w: funds locked until %d", ErrTimeWindow, unlocksAt)
	}
	return nil
}

// addChecked guards the uint64 share arithmetic against wraparound; a spend
// or deposit total that overflows can never be covered by a real balance.
func addChecked(a, b uint64) (uint64, error) {
	if b > math.MaxUint64-a {
		return 0, fmt.Errorf("%w: share arithmetic overflows", ErrInvariant)
	}
	return a + b, nil
}

// spendable enforces the withdraw/transfer balance rule on true values:
// the previous true balance must strictly exceed the amount spent, so the
// encoding offset itself is never spendable.
func spendable(prevEncoded, amount, fee uint64) error {
	if prevEncoded == 0 {
		return fmt.Errorf("%w: malformed encoded shares", ErrInvariant)
	}
	trueShares := prevEncoded - 1
	spend, err := addChecked(amount, fee)
	if err != nil {
		return err
	}
	// trueShares > spend is the overflow-free form of trueShares >= spend+1
	if trueShares <= spend {
		return fmt.Errorf("%w: insufficient balance (%d <= %d)", ErrInvariant, trueShares, spend)
	}
	return nil
}

// Create opens a balance state at nonce 0. The ledger itself originates the
// minted amount, so it is recorded plaintext-equivalent with no encryption.
func (l *Ledger) Create(p CreateParams) (*OperationResult, error) {
	if err := l.checkChain(p.ChainID); err != nil {
		return nil, l.reject(OpCreate, err)
	}
	st := l.asset(p.AssetID)
	st.mu.Lock()
	defer st.mu.Unlock()

	nc0 := NonceCommitment(p.SpendingKey, 0, p.AssetID)
	if st.isUsed(nc0) {
		return nil, l.reject(OpCreate, fmt.Errorf("%w: state already created for this key", ErrReplay))
	}
	opening := Opening{
		Shares:      EncodeShares(p.MintedShares),
		Nullifier:   field.FromUint64(1),
		SpendingKey: p.SpendingKey,
		UnlocksAt:   EncodeTimestamp(p.UnlocksAt),
		Blinding:    nc0,
	}
	commit := opening.Commit()
	leaf := LeafFromPoint(commit)
	if st.hasLeaf(leaf) {
		return nil, l.reject(OpCreate, fmt.Errorf("%w: leaf already inserted", ErrReplay))
	}
	if err := st.capacityFor(1); err != nil {
		return nil, l.reject(OpCreate, err)
	}
	if err := l.oracle.Verify(OpCreate, p.Proof, createInputs(p.AssetID, p.ChainID, p.MintedShares, commit, nc0)); err != nil {
		return nil, l.reject(OpCreate, fmt.Errorf("%w: %v", ErrAuthentication, err))
	}

	index, err := st.recordInsert(leaf)
	if err != nil {
		return nil, l.reject(OpCreate, err)
	}
	st.markUsed(nc0)
	st.recordOperation(OperationRecord{Kind: OpCreate, NonceCommitment: nc0, Leaf: leaf, MintedShares: p.MintedShares})
	point, m, r := DiscoveryEntry(nc0, leaf)
	st.discovery.Fold(point, m, r)

	return l.accept(st, OpCreate, nc0, leaf, index), nil
}

// AddFunds increases a balance unconditionally.
func (l *Ledger) AddFunds(p AddFundsParams) (*OperationResult, error) {
	if err := l.checkChain(p.ChainID); err != nil {
		return nil, l.reject(OpAddFunds, err)
	}
	st := l.asset(p.AssetID)
	st.mu.Lock()
	defer st.mu.Unlock()

	prevLeaf, err := st.verifyPrevious(p.AssetID, &p.Previous)
	if err != nil {
		return nil, l.reject(OpAddFunds, err)
	}
	wantShares, err := addChecked(p.Previous.Shares, p.Amount)
	if err != nil {
		return nil, l.reject(OpAddFunds, err)
	}
	newNC, newLeaf, commit, err := st.verifyNew(p.AssetID, &p.Previous, &p.New, wantShares)
	if err != nil {
		return nil, l.reject(OpAddFunds, err)
	}
	if err := st.capacityFor(1); err != nil {
		return nil, l.reject(OpAddFunds, err)
	}
	entry, _, _ := DiscoveryEntry(newNC, newLeaf)
	inputs := addFundsInputs(p.AssetID, p.Amount, p.ChainID, p.Previous.Proof.Root, commit, newNC, p.New.Encrypted, entry)
	if err := l.oracle.Verify(OpAddFunds, p.Proof, inputs); err != nil {
		return nil, l.reject(OpAddFunds, fmt.Errorf("%w: %v", ErrAuthentication, err))
	}

	index, err := st.commitTransition(OpAddFunds, prevLeaf, newNC, newLeaf, p.New.Encrypted)
	if err != nil {
		return nil, l.reject(OpAddFunds, err)
	}
	return l.accept(st, OpAddFunds, newNC, newLeaf, index), nil
}

// Withdraw moves funds out of the pool, subject to the time window and any
// lock encoded in the previous opening.
func (l *Ledger) Withdraw(p WithdrawParams) (*OperationResult, error) {
	if err := l.checkChain(p.ChainID); err != nil {
		return nil, l.reject(OpWithdraw, err)
	}
	if err := l.checkTime(p.DeclaredTime); err != nil {
		return nil, l.reject(OpWithdraw, err)
	}
	st := l.asset(p.AssetID)
	st.mu.Lock()
	defer st.mu.Unlock()

	prevLeaf, err := st.verifyPrevious(p.AssetID, &p.Previous)
	if err != nil {
		return nil, l.reject(OpWithdraw, err)
	}
	if err := l.checkUnlocked(&p.Previous); err != nil {
		return nil, l.reject(OpWithdraw, err)
	}
	if err := spendable(p.Previous.Shares, p.Amount, p.Fee); err != nil {
		return nil, l.reject(OpWithdraw, err)
	}
	wantShares := p.Previous.Shares - p.Amount - p.Fee
	newNC, newLeaf, commit, err := st.verifyNew(p.AssetID, &p.Previous, &p.New, wantShares)
	if err != nil {
		return nil, l.reject(OpWithdraw, err)
	}
	if err := st.capacityFor(1); err != nil {
		return nil, l.reject(OpWithdraw, err)
	}
	entry, _, _ := DiscoveryEntry(newNC, newLeaf)
	inputs := withdrawInputs(p.AssetID, p.Amount, p.ChainID, p.Previous.Proof.Root,
		p.DeclaredTime, CalldataHash(p.Calldata), p.Receiver, p.Fee,
		commit, newNC, p.New.Encrypted, entry)
	if err := l.oracle.Verify(OpWithdraw, p.Proof, inputs); err != nil {
		return nil, l.reject(OpWithdraw, fmt.Errorf("%w: %v", ErrAuthentication, err))
	}

	index, err := st.commitTransition(OpWithdraw, prevLeaf, newNC, newLeaf, p.New.Encrypted)
	if err != nil {
		return nil, l.reject(OpWithdraw, err)
	}
	return l.accept(st, OpWithdraw, newNC, newLeaf, index), nil
}

// Transfer decreases the sender's balance and posts an independent note for
// the recipient, folding it into the recipient's note stack. Two leaves go
// in: the sender's updated state and the hash of the updated stack.
func (l *Ledger) Transfer(p TransferParams) (*OperationResult, error) {
	if err := l.checkChain(p.ChainID); err != nil {
		return nil, l.reject(OpTransfer, err)
	}
	st := l.asset(p.AssetID)
	st.mu.Lock()
	defer st.mu.Unlock()

	prevLeaf, err := st.verifyPrevious(p.AssetID, &p.Previous)
	if err != nil {
		return nil, l.reject(OpTransfer, err)
	}
	if err := l.checkUnlocked(&p.Previous); err != nil {
		return nil, l.reject(OpTransfer, err)
	}
	if err := spendable(p.Previous.Shares, p.Amount, 0); err != nil {
		return nil, l.reject(OpTransfer, err)
	}
	if err := checkNote(&p.Note); err != nil {
		return nil, l.reject(OpTransfer, err)
	}
	wantShares := p.Previous.Shares - p.Amount
	newNC, newLeaf, commit, err := st.verifyNew(p.AssetID, &p.Previous, &p.New, wantShares)
	if err != nil {
		return nil, l.reject(OpTransfer, err)
	}
	if err := st.capacityFor(2); err != nil {
		return nil, l.reject(OpTransfer, err)
	}

	stack := st.stackFor(p.Note.RecipientKey)
	nextStackPoint := p.Note.Point
	if stack.Present {
		nextStackPoint = field.AddPoints(stack.Point, p.Note.Point)
	}
	stackLeaf := LeafFromPoint(nextStackPoint)
	if st.hasLeaf(stackLeaf) {
		return nil, l.reject(OpTransfer, fmt.Errorf("%w: stack leaf already inserted", ErrReplay))
	}

	entry, _, _ := DiscoveryEntry(newNC, newLeaf)
	inputs := transferInputs(p.AssetID, p.ChainID, p.Previous.Proof.Root,
		commit, newNC, p.New.Encrypted,
		p.Note.Point, p.Note.EphemeralPub, p.Note.RecipientKey, stackLeaf, entry)
	if err := l.oracle.Verify(OpTransfer, p.Proof, inputs); err != nil {
		return nil, l.reject(OpTransfer, fmt.Errorf("%w: %v", ErrAuthentication, err))
	}

	index, err := st.commitTransition(OpTransfer, prevLeaf, newNC, newLeaf, p.New.Encrypted)
	if err != nil {
		return nil, l.reject(OpTransfer, err)
	}
	stack.Fold(p.Note.Point, NoteRecord{EphemeralPub: p.Note.EphemeralPub, CipherAmount: p.Note.CipherAmount})
	stackIndex, err := st.recordInsert(stackLeaf)
	if err != nil {
		// capacityFor(2) above makes this unreachable
		return nil, l.reject(OpTransfer, err)
	}
	res := l.accept(st, OpTransfer, newNC, newLeaf, index)
	res.StackLeaf = stackLeaf
	res.StackLeafIndex = stackIndex
	res.HasStackLeaf = true
	return res, nil
}

// Absorb folds the owner's pending note stack into its primary balance, with
// an optional chained withdraw or transfer spending from the combined total.
func (l *Ledger) Absorb(p AbsorbParams) (*OperationResult, error) {
	if err := l.checkChain(p.ChainID); err != nil {
		return nil, l.reject(OpAbsorb, err)
	}
	if p.Withdraw != nil && p.Transfer != nil {
		return nil, l.reject(OpAbsorb, fmt.Errorf("%w: at most one chained leg", ErrInvariant))
	}
	st := l.asset(p.AssetID)
	st.mu.Lock()
	defer st.mu.Unlock()

	stack, ok := st.noteStacks[pointKey(p.OwnerKey)]
	if !ok || !stack.Present {
		return nil, l.reject(OpAbsorb, fmt.Errorf("%w: no pending notes for this key", ErrInvariant))
	}
	if !pedersen.VerifyCommit2(stack.Point, p.StackM, p.StackR) {
		return nil, l.reject(OpAbsorb, fmt.Errorf("%w: claimed opening does not reconstruct the note stack", ErrInvariant))
	}
	// each note value carries the +1 offset, so ΣM = absorbed + count
	wantM, err := addChecked(p.AbsorbedShares, stack.Count)
	if err != nil {
		return nil, l.reject(OpAbsorb, err)
	}
	if want := field.FromUint64(wantM); !want.Equal(&p.StackM) {
		return nil, l.reject(OpAbsorb, fmt.Errorf("%w: absorbed amount inconsistent with stack sum", ErrInvariant))
	}
	stackLeaf := stack.Leaf()
	if !stackLeaf.Equal(&p.StackProof.Leaf) {
		return nil, l.reject(OpAbsorb, fmt.Errorf("%w: stack proof is not for the current stack leaf", ErrInvariant))
	}
	if st.isUsed(stackLeaf) {
		return nil, l.reject(OpAbsorb, fmt.Errorf("%w: note stack already absorbed", ErrReplay))
	}
	if !st.isHistoricalRoot(p.StackProof.Root) {
		return nil, l.reject(OpAbsorb, fmt.Errorf("%w: stack proof root unknown", ErrStaleRoot))
	}
	if !p.StackProof.Verify() {
		return nil, l.reject(OpAbsorb, fmt.Errorf("%w: stack membership proof does not fold", ErrInvariant))
	}

	prevLeaf, err := st.verifyPrevious(p.AssetID, &p.Previous)
	if err != nil {
		return nil, l.reject(OpAbsorb, err)
	}

	wantShares, err := addChecked(p.Previous.Shares, p.AbsorbedShares)
	if err != nil {
		return nil, l.reject(OpAbsorb, err)
	}
	inserts := uint64(1)
	var legStackLeaf fr.Element
	var legStackPending bool

	switch {
	case p.Withdraw != nil:
		leg := p.Withdraw
		if err := l.checkTime(leg.DeclaredTime); err != nil {
			return nil, l.reject(OpAbsorb, err)
		}
		if err := l.checkUnlocked(&p.Previous); err != nil {
			return nil, l.reject(OpAbsorb, err)
		}
		if err := spendable(wantShares, leg.Amount, leg.Fee); err != nil {
			return nil, l.reject(OpAbsorb, err)
		}
		wantShares -= leg.Amount + leg.Fee
	case p.Transfer != nil:
		leg := p.Transfer
		if err := l.checkUnlocked(&p.Previous); err != nil {
			return nil, l.reject(OpAbsorb, err)
		}
		if err := spendable(wantShares, leg.Amount, 0); err != nil {
			return nil, l.reject(OpAbsorb, err)
		}
		if err := checkNote(&leg.Note); err != nil {
			return nil, l.reject(OpAbsorb, err)
		}
		wantShares -= leg.Amount
		legStack := st.stackFor(leg.Note.RecipientKey)
		nextPoint := leg.Note.Point
		if legStack.Present {
			nextPoint = field.AddPoints(legStack.Point, leg.Note.Point)
		}
		legStackLeaf = LeafFromPoint(nextPoint)
		if st.hasLeaf(legStackLeaf) {
			return nil, l.reject(OpAbsorb, fmt.Errorf("%w: stack leaf already inserted", ErrReplay))
		}
		legStackPending = true
		inserts = 2
	}

	newNC, newLeaf, commit, err := st.verifyNew(p.AssetID, &p.Previous, &p.New, wantShares)
	if err != nil {
		return nil, l.reject(OpAbsorb, err)
	}
	if err := st.capacityFor(inserts); err != nil {
		return nil, l.reject(OpAbsorb, err)
	}
	entry, _, _ := DiscoveryEntry(newNC, newLeaf)
	inputs := absorbInputs(p.AssetID, p.ChainID, p.Previous.Proof.Root,
		stack.Point, p.StackM, p.StackR, commit, newNC, p.New.Encrypted, entry)
	if err := l.oracle.Verify(OpAbsorb, p.Proof, inputs); err != nil {
		return nil, l.reject(OpAbsorb, fmt.Errorf("%w: %v", ErrAuthentication, err))
	}

	index, err := st.commitTransition(OpAbsorb, prevLeaf, newNC, newLeaf, p.New.Encrypted)
	if err != nil {
		return nil, l.reject(OpAbsorb, err)
	}
	// the stack is consumed: its leaf joins the used set and the accumulator
	// restarts empty for future transfers
	st.markUsed(stackLeaf)
	st.noteStacks[pointKey(p.OwnerKey)] = &NoteStack{recipient: p.OwnerKey}

	var legIndex uint64
	if legStackPending {
		leg := p.Transfer
		legStack := st.stackFor(leg.Note.RecipientKey)
		legStack.Fold(leg.Note.Point, NoteRecord{EphemeralPub: leg.Note.EphemeralPub, CipherAmount: leg.Note.CipherAmount})
		// capacityFor(2) above makes a failure here unreachable
		legIndex, err = st.recordInsert(legStackLeaf)
		if err != nil {
			return nil, l.reject(OpAbsorb, err)
		}
	}
	res := l.accept(st, OpAbsorb, newNC, newLeaf, index)
	if legStackPending {
		res.StackLeaf = legStackLeaf
		res.StackLeafIndex = legIndex
		res.HasStackLeaf = true
	}
	return res, nil
}

// accept finalizes a successful transition: metrics, logging, result.
// Caller holds st.mu.
func (l *Ledger) accept(st *assetState, kind OperationKind, nc, leaf fr.Element, index uint64) *OperationResult {
	root, _ := st.tree.Root()
	l.metrics.Accepted(kind)
	l.log.Debug().
		Str("op", kind.String()).
		Uint64("leaf_index", index).
		Uint64("tree_size", st.tree.Size()).
		Msg("transition accepted")
	return &OperationResult{
		Kind:            kind,
		NonceCommitment: nc,
		Leaf:            leaf,
		LeafIndex:       index,
		Root:            root,
	}
}

func (l *Ledger) reject(kind OperationKind, err error) error {
	l.metrics.Rejected(kind)
	l.log.Debug().Str("op", kind.String()).Err(err).Msg("transition rejected")
	return err
}
