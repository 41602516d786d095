// wallet.go - Client-side state tracking and transition building.
//
// A Wallet holds one user's secret and mirrors the opening of its current
// balance state for one (chain, asset) pair. Build* methods assemble the
// request the ledger validates; Apply folds an accepted result back in. The
// wallet never talks to the ledger's mutable surface, only to its read
// surface for membership proofs.

package pool

import (
	"fmt"

	"github.com/consensys/gnark-crypto/ecc/bn254/fr"
	"github.com/ethereum/go-ethereum/common"

	"shieldedpool/internal/field"
	"shieldedpool/internal/imt"
	"shieldedpool/internal/poseidon"
)

// TreeReader is the slice of the ledger read surface the wallet needs.
type TreeReader interface {
	GenerateProof(assetID fr.Element, index uint64) (imt.Proof, error)
}

// Wallet tracks one user's current balance state for one (chain, asset) pair.
type Wallet struct {
	Secret  fr.Element
	ChainID fr.Element
	AssetID fr.Element

	Nonce     uint64
	Shares    uint64 // encoded
	Unlocks   uint64 // encoded
	Nullifier fr.Element
	LeafIndex uint64

	spendingKey fr.Element
	viewKey     fr.Element

	pending *walletPending
}

type walletPending struct {
	nonce     uint64
	shares    uint64
	unlocks   uint64
	nullifier fr.Element
}

// NewWallet derives the wallet's keys from the user secret.
func NewWallet(secret, chainID, assetID fr.Element) *Wallet {
	return &Wallet{
		Secret:      secret,
		ChainID:     chainID,
		AssetID:     assetID,
		spendingKey: SpendingKey(secret, chainID, assetID),
		viewKey:     ViewKey(secret),
	}
}

// SpendingKey returns the wallet's per-(chain, asset) spending key.
func (w *Wallet) SpendingKeyScalar() fr.Element { return w.spendingKey }

// ViewKeyScalar returns the wallet's decryption-only key.
func (w *Wallet) ViewKeyScalar() fr.Element { return w.viewKey }

// RecipientKeyPoint returns the public key incoming notes are addressed to.
func (w *Wallet) RecipientKeyPoint() field.Point { return RecipientKey(w.Secret) }

// TrueShares returns the spendable balance with the encoding offset removed.
func (w *Wallet) TrueShares() uint64 {
	if w.Shares == 0 {
		return 0
	}
	return w.Shares - 1
}

func (w *Wallet) currentOpening() Opening {
	return Opening{
		Shares:      field.FromUint64(w.Shares),
		Nullifier:   w.Nullifier,
		SpendingKey: w.spendingKey,
		UnlocksAt:   field.FromUint64(w.Unlocks),
		Blinding:    NonceCommitment(w.spendingKey, w.Nonce, w.AssetID),
	}
}

func (w *Wallet) previousState(tr TreeReader) (PreviousState, error) {
	proof, err := tr.GenerateProof(w.AssetID, w.LeafIndex)
	if err != nil {
		return PreviousState{}, fmt.Errorf("membership proof for current leaf: %w", err)
	}
	return PreviousState{
		Nonce:   w.Nonce,
		Opening: w.currentOpening(),
		Shares:  w.Shares,
		Unlocks: w.Unlocks,
		Proof:   proof,
	}, nil
}

// newState assembles the successor opening and ciphertexts for the pending
// transition and stashes the post-accept wallet state.
func (w *Wallet) newState(shares uint64) NewState {
	newNonce := w.Nonce + 1
	newNC := NonceCommitment(w.spendingKey, newNonce, w.AssetID)
	newNullifier := poseidon.Hash2(w.Nullifier, newNC)
	stateKey := StateKey(w.viewKey, newNC)
	w.pending = &walletPending{
		nonce:     newNonce,
		shares:    shares,
		unlocks:   w.Unlocks,
		nullifier: newNullifier,
	}
	return NewState{
		Opening: Opening{
			Shares:      field.FromUint64(shares),
			Nullifier:   newNullifier,
			SpendingKey: w.spendingKey,
			UnlocksAt:   field.FromUint64(w.Unlocks),
			Blinding:    newNC,
		},
		Encrypted: EncryptedState{
			Balance:   poseidon.Encrypt(field.FromUint64(shares), stateKey, poseidon.CounterBalance),
			Nullifier: poseidon.Encrypt(newNullifier, stateKey, poseidon.CounterNullifier),
		},
	}
}

// Apply folds an accepted result into the wallet. Results must be applied in
// acceptance order.
func (w *Wallet) Apply(res *OperationResult) error {
	if w.pending == nil {
		return fmt.Errorf("no pending transition to apply")
	}
	wantNC := NonceCommitment(w.spendingKey, w.pending.nonce, w.AssetID)
	if !res.NonceCommitment.Equal(&wantNC) {
		return fmt.Errorf("result does not match the pending transition")
	}
	w.Nonce = w.pending.nonce
	w.Shares = w.pending.shares
	w.Unlocks = w.pending.unlocks
	w.Nullifier = w.pending.nullifier
	w.LeafIndex = res.LeafIndex
	w.pending = nil
	return nil
}

// BuildCreate assembles the nonce-0 creation request.
func (w *Wallet) BuildCreate(minted, unlocksAt uint64) CreateParams {
	w.pending = &walletPending{
		nonce:     0,
		shares:    minted + 1,
		unlocks:   unlocksAt + 1,
		nullifier: field.FromUint64(1),
	}
	return CreateParams{
		AssetID:      w.AssetID,
		ChainID:      w.ChainID,
		SpendingKey:  w.spendingKey,
		MintedShares: minted,
		UnlocksAt:    unlocksAt,
	}
}

// BuildAddFunds assembles a deposit of amount.
func (w *Wallet) BuildAddFunds(tr TreeReader, amount uint64) (AddFundsParams, error) {
	prev, err := w.previousState(tr)
	if err != nil {
		return AddFundsParams{}, err
	}
	shares, err := addChecked(w.Shares, amount)
	if err != nil {
		return AddFundsParams{}, err
	}
	return AddFundsParams{
		AssetID:  w.AssetID,
		ChainID:  w.ChainID,
		Amount:   amount,
		Previous: prev,
		New:      w.newState(shares),
	}, nil
}

// BuildWithdraw assembles a withdrawal of amount plus fee to receiver.
func (w *Wallet) BuildWithdraw(tr TreeReader, amount, fee uint64, receiver common.Address, calldata []byte, declaredTime uint64) (WithdrawParams, error) {
	prev, err := w.previousState(tr)
	if err != nil {
		return WithdrawParams{}, err
	}
	return WithdrawParams{
		AssetID:      w.AssetID,
		ChainID:      w.ChainID,
		Amount:       amount,
		Fee:          fee,
		Receiver:     receiver,
		Calldata:     calldata,
		DeclaredTime: declaredTime,
		Previous:     prev,
		New:          w.newState(w.Shares - amount - fee),
	}, nil
}

// BuildTransfer assembles a transfer of amount to recipientKey.
func (w *Wallet) BuildTransfer(tr TreeReader, amount uint64, recipientKey field.Point) (TransferParams, error) {
	prev, err := w.previousState(tr)
	if err != nil {
		return TransferParams{}, err
	}
	note, err := BuildNote(recipientKey, amount)
	if err != nil {
		return TransferParams{}, err
	}
	return TransferParams{
		AssetID:  w.AssetID,
		ChainID:  w.ChainID,
		Amount:   amount,
		Previous: prev,
		New:      w.newState(w.Shares - amount),
		Note:     note,
	}, nil
}

// BuildAbsorb assembles the fold-in of the wallet's pending note stack, with
// an optional chained withdraw leg. stackLeafIndex is the tree position of
// the stack's current leaf (the second leaf inserted by the last transfer
// addressed to this wallet).
func (w *Wallet) BuildAbsorb(tr TreeReader, stack NoteStack, stackLeafIndex uint64, leg *WithdrawLeg) (AbsorbParams, error) {
	p, shares, err := w.absorbBase(tr, stack, stackLeafIndex)
	if err != nil {
		return AbsorbParams{}, err
	}
	if leg != nil {
		if err := spendable(shares, leg.Amount, leg.Fee); err != nil {
			return AbsorbParams{}, err
		}
		shares -= leg.Amount + leg.Fee
		p.Withdraw = leg
	}
	p.New = w.newState(shares)
	return p, nil
}

// BuildAbsorbTransfer assembles the fold-in of the wallet's pending note
// stack with a chained transfer of amount to recipientKey spending from the
// combined total.
func (w *Wallet) BuildAbsorbTransfer(tr TreeReader, stack NoteStack, stackLeafIndex uint64, amount uint64, recipientKey field.Point) (AbsorbParams, error) {
	p, shares, err := w.absorbBase(tr, stack, stackLeafIndex)
	if err != nil {
		return AbsorbParams{}, err
	}
	if err := spendable(shares, amount, 0); err != nil {
		return AbsorbParams{}, err
	}
	note, err := BuildNote(recipientKey, amount)
	if err != nil {
		return AbsorbParams{}, err
	}
	p.Transfer = &TransferLeg{Amount: amount, Note: note}
	p.New = w.newState(shares - amount)
	return p, nil
}

// absorbBase opens the stack and assembles the leg-independent parts of an
// absorb. The returned shares are the combined encoded balance before any
// chained leg; the caller fills New (and the leg) from it.
func (w *Wallet) absorbBase(tr TreeReader, stack NoteStack, stackLeafIndex uint64) (AbsorbParams, uint64, error) {
	prev, err := w.previousState(tr)
	if err != nil {
		return AbsorbParams{}, 0, err
	}
	sumM, sumR, total, err := OpenStack(w.Secret, &stack)
	if err != nil {
		return AbsorbParams{}, 0, err
	}
	stackProof, err := tr.GenerateProof(w.AssetID, stackLeafIndex)
	if err != nil {
		return AbsorbParams{}, 0, fmt.Errorf("membership proof for stack leaf: %w", err)
	}
	shares, err := addChecked(w.Shares, total)
	if err != nil {
		return AbsorbParams{}, 0, err
	}
	return AbsorbParams{
		AssetID:        w.AssetID,
		ChainID:        w.ChainID,
		OwnerKey:       w.RecipientKeyPoint(),
		StackM:         sumM,
		StackR:         sumR,
		AbsorbedShares: total,
		StackProof:     stackProof,
		Previous:       prev,
	}, shares, nil
}
