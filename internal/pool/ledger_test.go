package pool

import (
	"math"
	"path/filepath"
	"testing"

	"github.com/ethereum/go-ethereum/common"
	"github.com/stretchr/testify/require"

	"shieldedpool/internal/field"
	"shieldedpool/internal/poseidon"
)

var testReceiver = common.HexToAddress("0x00000000000000000000000000000000DeaDBeef")

type testEnv struct {
	ledger *Ledger
	now    uint64
}

func newTestEnv(chainID uint64) *testEnv {
	env := &testEnv{now: 1_700_000_000}
	env.ledger = New(field.FromUint64(chainID), WithClock(func() uint64 { return env.now }))
	return env
}

func TestCreateOpensStateAtNonceZero(t *testing.T) {
	env := newTestEnv(1)
	w := NewWallet(field.FromUint64(7), field.FromUint64(1), field.FromUint64(2))

	res, err := env.ledger.Create(w.BuildCreate(100, 0))
	require.NoError(t, err)
	require.Equal(t, OpCreate, res.Kind)
	require.Equal(t, uint64(0), res.LeafIndex)

	nc0 := NonceCommitment(w.SpendingKeyScalar(), 0, w.AssetID)
	require.True(t, res.NonceCommitment.Equal(&nc0))

	require.NoError(t, w.Apply(res))
	require.Equal(t, uint64(0), w.Nonce)
	require.Equal(t, uint64(100), w.TrueShares())

	used, err := env.ledger.IsUsed(w.AssetID, nc0)
	require.NoError(t, err)
	require.True(t, used)

	// a second creation under the same key replays nonce 0
	_, err = env.ledger.Create(w.BuildCreate(100, 0))
	require.ErrorIs(t, err, ErrReplay)
}

func TestAddFundsAdvancesNonce(t *testing.T) {
	env := newTestEnv(1)
	w := NewWallet(field.FromUint64(7), field.FromUint64(1), field.FromUint64(2))

	res, err := env.ledger.Create(w.BuildCreate(0, 0))
	require.NoError(t, err)
	require.NoError(t, w.Apply(res))

	params, err := w.BuildAddFunds(env.ledger, 50)
	require.NoError(t, err)
	res, err = env.ledger.AddFunds(params)
	require.NoError(t, err)
	require.NoError(t, w.Apply(res))

	require.Equal(t, uint64(1), w.Nonce)
	require.Equal(t, uint64(50), w.TrueShares())
	require.Equal(t, uint64(2), env.ledger.Size(w.AssetID))

	// the consumed leaf and the new nonce commitment are both used now
	nc1 := NonceCommitment(w.SpendingKeyScalar(), 1, w.AssetID)
	used, err := env.ledger.IsUsed(w.AssetID, nc1)
	require.NoError(t, err)
	require.True(t, used)
}

func TestAddFundsReplayRejected(t *testing.T) {
	env := newTestEnv(1)
	w := NewWallet(field.FromUint64(7), field.FromUint64(1), field.FromUint64(2))

	res, err := env.ledger.Create(w.BuildCreate(0, 0))
	require.NoError(t, err)
	require.NoError(t, w.Apply(res))

	params, err := w.BuildAddFunds(env.ledger, 50)
	require.NoError(t, err)
	_, err = env.ledger.AddFunds(params)
	require.NoError(t, err)

	_, err = env.ledger.AddFunds(params)
	require.ErrorIs(t, err, ErrReplay)
}

func TestStaleRootRejected(t *testing.T) {
	env := newTestEnv(1)
	w := NewWallet(field.FromUint64(7), field.FromUint64(1), field.FromUint64(2))

	res, err := env.ledger.Create(w.BuildCreate(0, 0))
	require.NoError(t, err)
	require.NoError(t, w.Apply(res))

	params, err := w.BuildAddFunds(env.ledger, 50)
	require.NoError(t, err)
	params.Previous.Proof.Root = field.FromUint64(0xbad)
	_, err = env.ledger.AddFunds(params)
	require.ErrorIs(t, err, ErrStaleRoot)
}

// A membership proof stays valid after the tree advances, as long as its root
// was ever a root of the tree.
func TestHistoricalRootProofAccepted(t *testing.T) {
	env := newTestEnv(1)
	chain, asset := field.FromUint64(1), field.FromUint64(2)
	w := NewWallet(field.FromUint64(7), chain, asset)
	other := NewWallet(field.FromUint64(13), chain, asset)

	res, err := env.ledger.Create(w.BuildCreate(0, 0))
	require.NoError(t, err)
	require.NoError(t, w.Apply(res))

	// proof captured against the current root
	params, err := w.BuildAddFunds(env.ledger, 50)
	require.NoError(t, err)

	// the tree advances before the transition is submitted
	res, err = env.ledger.Create(other.BuildCreate(10, 0))
	require.NoError(t, err)
	require.NoError(t, other.Apply(res))
	cur, ok := env.ledger.Root(asset)
	require.True(t, ok)
	require.False(t, params.Previous.Proof.Root.Equal(&cur))

	res, err = env.ledger.AddFunds(params)
	require.NoError(t, err)
	require.NoError(t, w.Apply(res))
	require.Equal(t, uint64(50), w.TrueShares())
}

func TestChainMismatchRejected(t *testing.T) {
	env := newTestEnv(1)
	w := NewWallet(field.FromUint64(7), field.FromUint64(1), field.FromUint64(2))

	params := w.BuildCreate(0, 0)
	params.ChainID = field.FromUint64(99)
	_, err := env.ledger.Create(params)
	require.ErrorIs(t, err, ErrInvariant)
}

// The spend rule works on true balances: a true balance of 50 cannot cover a
// withdrawal of 50, but covers 49 and leaves exactly one spendable share.
func TestWithdrawBalanceRule(t *testing.T) {
	env := newTestEnv(1)
	w := NewWallet(field.FromUint64(7), field.FromUint64(1), field.FromUint64(2))

	res, err := env.ledger.Create(w.BuildCreate(0, 0))
	require.NoError(t, err)
	require.NoError(t, w.Apply(res))

	params, err := w.BuildAddFunds(env.ledger, 50)
	require.NoError(t, err)
	res, err = env.ledger.AddFunds(params)
	require.NoError(t, err)
	require.NoError(t, w.Apply(res))
	require.Equal(t, uint64(50), w.TrueShares())

	wd, err := w.BuildWithdraw(env.ledger, 50, 0, testReceiver, nil, env.now)
	require.NoError(t, err)
	_, err = env.ledger.Withdraw(wd)
	require.ErrorIs(t, err, ErrInvariant)

	wd, err = w.BuildWithdraw(env.ledger, 49, 0, testReceiver, nil, env.now)
	require.NoError(t, err)
	res, err = env.ledger.Withdraw(wd)
	require.NoError(t, err)
	require.NoError(t, w.Apply(res))
	require.Equal(t, uint64(1), w.TrueShares())
	require.Equal(t, uint64(2), w.Shares)
}

// A spend total that wraps uint64 can never be covered by a real balance.
func TestWithdrawOverflowRejected(t *testing.T) {
	env := newTestEnv(1)
	w := NewWallet(field.FromUint64(7), field.FromUint64(1), field.FromUint64(2))

	res, err := env.ledger.Create(w.BuildCreate(100, 0))
	require.NoError(t, err)
	require.NoError(t, w.Apply(res))

	wd, err := w.BuildWithdraw(env.ledger, math.MaxUint64, 1, testReceiver, nil, env.now)
	require.NoError(t, err)
	_, err = env.ledger.Withdraw(wd)
	require.ErrorIs(t, err, ErrInvariant)

	// deposits that would wrap the balance are refused at build time
	_, err = w.BuildAddFunds(env.ledger, math.MaxUint64)
	require.ErrorIs(t, err, ErrInvariant)
}

func TestAbsorbLegOverflowRejected(t *testing.T) {
	env := newTestEnv(1)
	chain, asset := field.FromUint64(1), field.FromUint64(2)
	sender := NewWallet(field.FromUint64(7), chain, asset)
	recipient := NewWallet(field.FromUint64(11), chain, asset)

	res, err := env.ledger.Create(sender.BuildCreate(100, 0))
	require.NoError(t, err)
	require.NoError(t, sender.Apply(res))
	res, err = env.ledger.Create(recipient.BuildCreate(0, 0))
	require.NoError(t, err)
	require.NoError(t, recipient.Apply(res))

	tp, err := sender.BuildTransfer(env.ledger, 40, recipient.RecipientKeyPoint())
	require.NoError(t, err)
	res, err = env.ledger.Transfer(tp)
	require.NoError(t, err)
	require.NoError(t, sender.Apply(res))

	stack, ok := env.ledger.ReadNoteStack(asset, recipient.RecipientKeyPoint())
	require.True(t, ok)
	leg := &WithdrawLeg{Amount: math.MaxUint64, Fee: 1, Receiver: testReceiver, DeclaredTime: env.now}
	_, err = recipient.BuildAbsorb(env.ledger, stack, res.StackLeafIndex, leg)
	require.ErrorIs(t, err, ErrInvariant)

	// the ledger rejects the same wrap when the params arrive pre-built
	ap, err := recipient.BuildAbsorb(env.ledger, stack, res.StackLeafIndex, nil)
	require.NoError(t, err)
	ap.Withdraw = leg
	_, err = env.ledger.Absorb(ap)
	require.ErrorIs(t, err, ErrInvariant)
}

func TestWithdrawTimeWindow(t *testing.T) {
	env := newTestEnv(1)
	w := NewWallet(field.FromUint64(7), field.FromUint64(1), field.FromUint64(2))

	res, err := env.ledger.Create(w.BuildCreate(100, 0))
	require.NoError(t, err)
	require.NoError(t, w.Apply(res))

	wd, err := w.BuildWithdraw(env.ledger, 10, 0, testReceiver, nil, env.now+TimeTolerance+1)
	require.NoError(t, err)
	_, err = env.ledger.Withdraw(wd)
	require.ErrorIs(t, err, ErrTimeWindow)

	wd, err = w.BuildWithdraw(env.ledger, 10, 0, testReceiver, nil, env.now+TimeTolerance)
	require.NoError(t, err)
	_, err = env.ledger.Withdraw(wd)
	require.NoError(t, err)
}

func TestWithdrawRespectsLock(t *testing.T) {
	env := newTestEnv(1)
	unlocksAt := env.now + 1000
	w := NewWallet(field.FromUint64(7), field.FromUint64(1), field.FromUint64(2))

	res, err := env.ledger.Create(w.BuildCreate(100, unlocksAt))
	require.NoError(t, err)
	require.NoError(t, w.Apply(res))

	wd, err := w.BuildWithdraw(env.ledger, 10, 0, testReceiver, nil, env.now)
	require.NoError(t, err)
	_, err = env.ledger.Withdraw(wd)
	require.ErrorIs(t, err, ErrTimeWindow)

	env.now = unlocksAt + 1
	wd, err = w.BuildWithdraw(env.ledger, 10, 0, testReceiver, nil, env.now)
	require.NoError(t, err)
	res, err = env.ledger.Withdraw(wd)
	require.NoError(t, err)
	require.NoError(t, w.Apply(res))
	require.Equal(t, uint64(90), w.TrueShares())
}

func TestTransferAndAbsorb(t *testing.T) {
	env := newTestEnv(1)
	chain, asset := field.FromUint64(1), field.FromUint64(2)
	sender := NewWallet(field.FromUint64(7), chain, asset)
	recipient := NewWallet(field.FromUint64(11), chain, asset)

	res, err := env.ledger.Create(sender.BuildCreate(100, 0))
	require.NoError(t, err)
	require.NoError(t, sender.Apply(res))

	res, err = env.ledger.Create(recipient.BuildCreate(0, 0))
	require.NoError(t, err)
	require.NoError(t, recipient.Apply(res))

	tp, err := sender.BuildTransfer(env.ledger, 30, recipient.RecipientKeyPoint())
	require.NoError(t, err)
	res, err = env.ledger.Transfer(tp)
	require.NoError(t, err)
	require.NoError(t, sender.Apply(res))
	require.Equal(t, uint64(70), sender.TrueShares())
	require.True(t, res.HasStackLeaf)

	stackIndex := res.StackLeafIndex

	// the note decrypts only for the recipient
	stack, ok := env.ledger.ReadNoteStack(asset, recipient.RecipientKeyPoint())
	require.True(t, ok)
	require.Equal(t, uint64(1), stack.Count)
	amount, _, err := OpenNote(recipient.Secret, stack.Notes[0], stack.Point)
	require.NoError(t, err)
	require.Equal(t, uint64(30), amount)
	_, _, err = OpenNote(field.FromUint64(12345), stack.Notes[0], stack.Point)
	require.Error(t, err)

	ap, err := recipient.BuildAbsorb(env.ledger, stack, stackIndex, nil)
	require.NoError(t, err)
	res, err = env.ledger.Absorb(ap)
	require.NoError(t, err)
	require.NoError(t, recipient.Apply(res))
	require.Equal(t, uint64(30), recipient.TrueShares())

	// the stack is consumed: absorbing again has nothing to fold
	_, err = env.ledger.Absorb(ap)
	require.ErrorIs(t, err, ErrInvariant)
	_, ok = env.ledger.ReadNoteStack(asset, recipient.RecipientKeyPoint())
	require.False(t, ok)
}

func TestAbsorbFoldsMultipleNotes(t *testing.T) {
	env := newTestEnv(1)
	chain, asset := field.FromUint64(1), field.FromUint64(2)
	sender := NewWallet(field.FromUint64(7), chain, asset)
	recipient := NewWallet(field.FromUint64(11), chain, asset)

	res, err := env.ledger.Create(sender.BuildCreate(100, 0))
	require.NoError(t, err)
	require.NoError(t, sender.Apply(res))
	res, err = env.ledger.Create(recipient.BuildCreate(0, 0))
	require.NoError(t, err)
	require.NoError(t, recipient.Apply(res))

	var stackIndex uint64
	for _, amount := range []uint64{10, 20, 5} {
		tp, err := sender.BuildTransfer(env.ledger, amount, recipient.RecipientKeyPoint())
		require.NoError(t, err)
		res, err = env.ledger.Transfer(tp)
		require.NoError(t, err)
		require.NoError(t, sender.Apply(res))
		stackIndex = res.StackLeafIndex
	}

	stack, ok := env.ledger.ReadNoteStack(asset, recipient.RecipientKeyPoint())
	require.True(t, ok)
	require.Equal(t, uint64(3), stack.Count)

	ap, err := recipient.BuildAbsorb(env.ledger, stack, stackIndex, nil)
	require.NoError(t, err)
	require.Equal(t, uint64(35), ap.AbsorbedShares)
	res, err = env.ledger.Absorb(ap)
	require.NoError(t, err)
	require.NoError(t, recipient.Apply(res))
	require.Equal(t, uint64(35), recipient.TrueShares())
}

func TestAbsorbWithChainedWithdraw(t *testing.T) {
	env := newTestEnv(1)
	chain, asset := field.FromUint64(1), field.FromUint64(2)
	sender := NewWallet(field.FromUint64(7), chain, asset)
	recipient := NewWallet(field.FromUint64(11), chain, asset)

	res, err := env.ledger.Create(sender.BuildCreate(100, 0))
	require.NoError(t, err)
	require.NoError(t, sender.Apply(res))
	res, err = env.ledger.Create(recipient.BuildCreate(0, 0))
	require.NoError(t, err)
	require.NoError(t, recipient.Apply(res))

	tp, err := sender.BuildTransfer(env.ledger, 40, recipient.RecipientKeyPoint())
	require.NoError(t, err)
	res, err = env.ledger.Transfer(tp)
	require.NoError(t, err)
	require.NoError(t, sender.Apply(res))

	stack, ok := env.ledger.ReadNoteStack(asset, recipient.RecipientKeyPoint())
	require.True(t, ok)
	leg := &WithdrawLeg{Amount: 15, Fee: 1, Receiver: testReceiver, DeclaredTime: env.now}
	ap, err := recipient.BuildAbsorb(env.ledger, stack, res.StackLeafIndex, leg)
	require.NoError(t, err)
	res, err = env.ledger.Absorb(ap)
	require.NoError(t, err)
	require.NoError(t, recipient.Apply(res))
	require.Equal(t, uint64(24), recipient.TrueShares())
}

func TestAbsorbWithChainedTransfer(t *testing.T) {
	env := newTestEnv(1)
	chain, asset := field.FromUint64(1), field.FromUint64(2)
	sender := NewWallet(field.FromUint64(7), chain, asset)
	recipient := NewWallet(field.FromUint64(11), chain, asset)
	third := NewWallet(field.FromUint64(13), chain, asset)

	res, err := env.ledger.Create(sender.BuildCreate(100, 0))
	require.NoError(t, err)
	require.NoError(t, sender.Apply(res))
	res, err = env.ledger.Create(recipient.BuildCreate(0, 0))
	require.NoError(t, err)
	require.NoError(t, recipient.Apply(res))
	res, err = env.ledger.Create(third.BuildCreate(0, 0))
	require.NoError(t, err)
	require.NoError(t, third.Apply(res))

	tp, err := sender.BuildTransfer(env.ledger, 40, recipient.RecipientKeyPoint())
	require.NoError(t, err)
	res, err = env.ledger.Transfer(tp)
	require.NoError(t, err)
	require.NoError(t, sender.Apply(res))

	// absorb the 40 and pass 10 of it straight on to the third wallet
	stack, ok := env.ledger.ReadNoteStack(asset, recipient.RecipientKeyPoint())
	require.True(t, ok)
	ap, err := recipient.BuildAbsorbTransfer(env.ledger, stack, res.StackLeafIndex, 10, third.RecipientKeyPoint())
	require.NoError(t, err)
	res, err = env.ledger.Absorb(ap)
	require.NoError(t, err)
	require.NoError(t, recipient.Apply(res))
	require.Equal(t, uint64(30), recipient.TrueShares())
	require.True(t, res.HasStackLeaf)

	// the chained note lands in the third wallet's stack and absorbs normally
	thirdStack, ok := env.ledger.ReadNoteStack(asset, third.RecipientKeyPoint())
	require.True(t, ok)
	require.Equal(t, uint64(1), thirdStack.Count)
	amount, _, err := OpenNote(third.Secret, thirdStack.Notes[0], thirdStack.Point)
	require.NoError(t, err)
	require.Equal(t, uint64(10), amount)

	ap2, err := third.BuildAbsorb(env.ledger, thirdStack, res.StackLeafIndex, nil)
	require.NoError(t, err)
	res, err = env.ledger.Absorb(ap2)
	require.NoError(t, err)
	require.NoError(t, third.Apply(res))
	require.Equal(t, uint64(10), third.TrueShares())
}

func TestOperationMetrics(t *testing.T) {
	env := newTestEnv(1)
	w := NewWallet(field.FromUint64(7), field.FromUint64(1), field.FromUint64(2))

	_, err := env.ledger.Create(w.BuildCreate(0, 0))
	require.NoError(t, err)

	params := w.BuildCreate(0, 0)
	_, err = env.ledger.Create(params)
	require.Error(t, err)

	snap := env.ledger.Metrics().Snapshot()
	require.Equal(t, int64(1), snap["create_accepted"])
	require.Equal(t, int64(1), snap["create_rejected"])
}

func TestLedgerAggregateMatchesOperationLog(t *testing.T) {
	env := newTestEnv(1)
	asset := field.FromUint64(2)
	w := NewWallet(field.FromUint64(7), field.FromUint64(1), asset)

	res, err := env.ledger.Create(w.BuildCreate(100, 0))
	require.NoError(t, err)
	require.NoError(t, w.Apply(res))
	params, err := w.BuildAddFunds(env.ledger, 25)
	require.NoError(t, err)
	res, err = env.ledger.AddFunds(params)
	require.NoError(t, err)
	require.NoError(t, w.Apply(res))

	agg := env.ledger.DiscoveryAggregate(asset)
	require.True(t, agg.Verify())
	require.Equal(t, uint64(2), agg.Count)

	recomputed := RecomputeAggregate(env.ledger.OperationLog(asset))
	require.True(t, field.PointsEqual(&agg.Point, &recomputed.Point))
	require.True(t, agg.SumM.Equal(&recomputed.SumM))
	require.True(t, agg.SumR.Equal(&recomputed.SumR))
}

func TestSnapshotRoundTrip(t *testing.T) {
	env := newTestEnv(1)
	chain, asset := field.FromUint64(1), field.FromUint64(2)
	sender := NewWallet(field.FromUint64(7), chain, asset)
	recipient := NewWallet(field.FromUint64(11), chain, asset)

	res, err := env.ledger.Create(sender.BuildCreate(100, 0))
	require.NoError(t, err)
	require.NoError(t, sender.Apply(res))
	res, err = env.ledger.Create(recipient.BuildCreate(0, 0))
	require.NoError(t, err)
	require.NoError(t, recipient.Apply(res))
	tp, err := sender.BuildTransfer(env.ledger, 30, recipient.RecipientKeyPoint())
	require.NoError(t, err)
	res, err = env.ledger.Transfer(tp)
	require.NoError(t, err)
	require.NoError(t, sender.Apply(res))

	path := filepath.Join(t.TempDir(), "ledger.json")
	require.NoError(t, env.ledger.SaveToFile(path))

	restored, err := LoadFromFile(path, WithClock(func() uint64 { return env.now }))
	require.NoError(t, err)

	wantRoot, ok := env.ledger.Root(asset)
	require.True(t, ok)
	gotRoot, ok := restored.Root(asset)
	require.True(t, ok)
	require.True(t, wantRoot.Equal(&gotRoot))
	require.Equal(t, env.ledger.Size(asset), restored.Size(asset))
	require.Equal(t, len(env.ledger.HistoricalRoots(asset)), len(restored.HistoricalRoots(asset)))

	agg := restored.DiscoveryAggregate(asset)
	require.True(t, agg.Verify())
	require.Equal(t, env.ledger.DiscoveryAggregate(asset).Count, agg.Count)

	stack, ok := restored.ReadNoteStack(asset, recipient.RecipientKeyPoint())
	require.True(t, ok)
	require.Equal(t, uint64(1), stack.Count)

	// the restored ledger keeps accepting transitions
	params, err := sender.BuildAddFunds(restored, 10)
	require.NoError(t, err)
	_, err = restored.AddFunds(params)
	require.NoError(t, err)
}

func TestNullifierChainLinksStates(t *testing.T) {
	env := newTestEnv(1)
	asset := field.FromUint64(2)
	w := NewWallet(field.FromUint64(7), field.FromUint64(1), asset)

	res, err := env.ledger.Create(w.BuildCreate(0, 0))
	require.NoError(t, err)
	require.NoError(t, w.Apply(res))
	params, err := w.BuildAddFunds(env.ledger, 50)
	require.NoError(t, err)
	res, err = env.ledger.AddFunds(params)
	require.NoError(t, err)
	require.NoError(t, w.Apply(res))

	nc1 := NonceCommitment(w.SpendingKeyScalar(), 1, asset)
	want := poseidon.Hash2(field.FromUint64(1), nc1)
	require.True(t, w.Nullifier.Equal(&want))
}
