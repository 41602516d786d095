// main.go - In-process walkthrough of the shielded pool.
//
// Runs a full lifecycle against one ledger: two users create balance states,
// one funds and transfers to the other, the recipient absorbs and withdraws,
// and both reconstruct their histories from the public membership surface
// alone. The poold daemon in cmd/poold serves the same surface over HTTP.
package main

import (
	"os"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/rs/zerolog"

	"shieldedpool/internal/field"
	"shieldedpool/internal/pool"
)

func main() {
	log := zerolog.New(zerolog.ConsoleWriter{Out: os.Stderr, TimeFormat: time.RFC3339}).
		Level(zerolog.InfoLevel).With().Timestamp().Logger()

	chain := field.FromUint64(1)
	asset := field.FromUint64(2)
	ledger := pool.New(chain, pool.WithLogger(log))

	alice := pool.NewWallet(field.FromUint64(7), chain, asset)
	bob := pool.NewWallet(field.FromUint64(11), chain, asset)

	must := func(res *pool.OperationResult, err error, w *pool.Wallet, step string) {
		if err != nil {
			log.Fatal().Err(err).Str("step", step).Msg("transition rejected")
		}
		if err := w.Apply(res); err != nil {
			log.Fatal().Err(err).Str("step", step).Msg("apply result")
		}
		log.Info().Str("step", step).Uint64("leaf_index", res.LeafIndex).Msg("accepted")
	}

	// open both balance states
	res, err := ledger.Create(alice.BuildCreate(0, 0))
	must(res, err, alice, "alice create")
	res, err = ledger.Create(bob.BuildCreate(0, 0))
	must(res, err, bob, "bob create")

	// alice deposits 100
	params, err := alice.BuildAddFunds(ledger, 100)
	if err != nil {
		log.Fatal().Err(err).Msg("build add funds")
	}
	res, err = ledger.AddFunds(params)
	must(res, err, alice, "alice add 100")

	// alice sends bob 40 as a pending note
	tp, err := alice.BuildTransfer(ledger, 40, bob.RecipientKeyPoint())
	if err != nil {
		log.Fatal().Err(err).Msg("build transfer")
	}
	res, err = ledger.Transfer(tp)
	must(res, err, alice, "alice transfer 40")
	stackIndex := res.StackLeafIndex

	// bob folds the note stack into his balance
	stack, ok := ledger.ReadNoteStack(asset, bob.RecipientKeyPoint())
	if !ok {
		log.Fatal().Msg("no pending notes for bob")
	}
	ap, err := bob.BuildAbsorb(ledger, stack, stackIndex, nil)
	if err != nil {
		log.Fatal().Err(err).Msg("build absorb")
	}
	res, err = ledger.Absorb(ap)
	must(res, err, bob, "bob absorb")

	// bob withdraws 15 to an external address
	receiver := common.HexToAddress("0x00000000000000000000000000000000DeaDBeef")
	wd, err := bob.BuildWithdraw(ledger, 15, 1, receiver, nil, uint64(time.Now().Unix()))
	if err != nil {
		log.Fatal().Err(err).Msg("build withdraw")
	}
	res, err = ledger.Withdraw(wd)
	must(res, err, bob, "bob withdraw 15")

	// both reconstruct their histories from membership queries alone
	for _, u := range []struct {
		name   string
		wallet *pool.Wallet
	}{{"alice", alice}, {"bob", bob}} {
		h, err := pool.Discover(ledger, u.wallet.Secret, chain, asset, nil)
		if err != nil {
			log.Fatal().Err(err).Str("user", u.name).Msg("discovery failed")
		}
		log.Info().
			Str("user", u.name).
			Uint64("nonce", h.Nonce).
			Uint64("balance", h.Balance()).
			Uint64("queries", h.Steps).
			Bool("aggregate_ok", h.Aggregate.Verify()).
			Msg("history reconstructed")
	}

	agg := ledger.DiscoveryAggregate(asset)
	recomputed := pool.RecomputeAggregate(ledger.OperationLog(asset))
	log.Info().
		Uint64("entries", agg.Count).
		Bool("aggregate_ok", agg.Verify() && field.PointsEqual(&agg.Point, &recomputed.Point)).
		Uint64("tree_size", ledger.Size(asset)).
		Msg("ledger consistent")
}
