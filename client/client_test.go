package client

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strconv"
	"testing"

	"github.com/consensys/gnark-crypto/ecc/bn254/fr"
	"github.com/stretchr/testify/require"

	"shieldedpool/internal/field"
	"shieldedpool/internal/pool"
)

// stubPool serves a real ledger over the wire schema, standing in for poold.
func stubPool(t *testing.T, ledger *pool.Ledger) *httptest.Server {
	t.Helper()
	writeJSON := func(w http.ResponseWriter, body any) {
		w.Header().Set("Content-Type", "application/json")
		require.NoError(t, json.NewEncoder(w).Encode(body))
	}
	mustFr := func(r *http.Request, name string) fr.Element {
		v, err := DecodeFr(r.URL.Query().Get(name))
		require.NoError(t, err)
		return v
	}
	mux := http.NewServeMux()
	mux.HandleFunc("/v1/root", func(w http.ResponseWriter, r *http.Request) {
		asset := mustFr(r, "asset")
		resp := RootResponse{Depth: ledger.Depth(asset), Size: ledger.Size(asset)}
		if root, ok := ledger.Root(asset); ok {
			resp.Present = true
			resp.Root = EncodeFr(root)
		}
		writeJSON(w, resp)
	})
	mux.HandleFunc("/v1/used", func(w http.ResponseWriter, r *http.Request) {
		used, err := ledger.IsUsed(mustFr(r, "asset"), mustFr(r, "id"))
		require.NoError(t, err)
		writeJSON(w, UsedResponse{Used: used})
	})
	mux.HandleFunc("/v1/state", func(w http.ResponseWriter, r *http.Request) {
		enc, found, err := ledger.ReadEncryptedState(mustFr(r, "asset"), mustFr(r, "nc"))
		require.NoError(t, err)
		resp := StateResponse{Found: found}
		if found {
			resp.Balance = EncodeFr(enc.Balance)
			resp.Nullifier = EncodeFr(enc.Nullifier)
		}
		writeJSON(w, resp)
	})
	mux.HandleFunc("/v1/kind", func(w http.ResponseWriter, r *http.Request) {
		rec, found, err := ledger.ReadOperationKind(mustFr(r, "asset"), mustFr(r, "nc"))
		require.NoError(t, err)
		resp := KindResponse{Found: found}
		if found {
			resp.Kind = int(rec.Kind)
			resp.NonceCommitment = EncodeFr(rec.NonceCommitment)
			resp.Leaf = EncodeFr(rec.Leaf)
			resp.MintedShares = rec.MintedShares
		}
		writeJSON(w, resp)
	})
	mux.HandleFunc("/v1/proof", func(w http.ResponseWriter, r *http.Request) {
		index, err := strconv.ParseUint(r.URL.Query().Get("index"), 10, 64)
		require.NoError(t, err)
		proof, err := ledger.GenerateProof(mustFr(r, "asset"), index)
		if err != nil {
			w.WriteHeader(http.StatusNotFound)
			writeJSON(w, ErrorResponse{Error: err.Error()})
			return
		}
		writeJSON(w, ProofToWire(proof))
	})
	mux.HandleFunc("/v1/aggregate", func(w http.ResponseWriter, r *http.Request) {
		agg := ledger.DiscoveryAggregate(mustFr(r, "asset"))
		resp := AggregateResponse{Present: agg.Present, Count: agg.Count}
		if agg.Present {
			resp.PointX = EncodeFr(agg.Point.X)
			resp.PointY = EncodeFr(agg.Point.Y)
			resp.SumM = EncodeFr(agg.SumM)
			resp.SumR = EncodeFr(agg.SumR)
		}
		writeJSON(w, resp)
	})
	mux.HandleFunc("/healthz", func(w http.ResponseWriter, _ *http.Request) {
		writeJSON(w, map[string]string{"status": "ok"})
	})
	srv := httptest.NewServer(mux)
	t.Cleanup(srv.Close)
	return srv
}

// seedLedger runs create(100) then addFunds(50) and returns the wallet.
func seedLedger(t *testing.T, ledger *pool.Ledger) *pool.Wallet {
	t.Helper()
	w := pool.NewWallet(field.FromUint64(7), field.FromUint64(1), field.FromUint64(2))
	res, err := ledger.Create(w.BuildCreate(100, 0))
	require.NoError(t, err)
	require.NoError(t, w.Apply(res))
	params, err := w.BuildAddFunds(ledger, 50)
	require.NoError(t, err)
	res, err = ledger.AddFunds(params)
	require.NoError(t, err)
	require.NoError(t, w.Apply(res))
	return w
}

func TestDiscoverOverHTTP(t *testing.T) {
	ledger := pool.New(field.FromUint64(1))
	w := seedLedger(t, ledger)
	srv := stubPool(t, ledger)
	remote := New(srv.URL)

	require.True(t, remote.Healthy())

	h, err := pool.Discover(remote, w.Secret, w.ChainID, w.AssetID, nil)
	require.NoError(t, err)
	require.True(t, h.Found)
	require.Equal(t, uint64(1), h.Nonce)
	require.Equal(t, uint64(150), h.Balance())
	require.True(t, h.Aggregate.Verify())
}

func TestClientProofMatchesLedger(t *testing.T) {
	ledger := pool.New(field.FromUint64(1))
	seedLedger(t, ledger)
	srv := stubPool(t, ledger)
	remote := New(srv.URL)
	asset := field.FromUint64(2)

	proof, err := remote.GenerateProof(asset, 0)
	require.NoError(t, err)
	require.True(t, proof.Verify())

	want, err := ledger.GenerateProof(asset, 0)
	require.NoError(t, err)
	require.True(t, want.Root.Equal(&proof.Root))

	root, ok, err := remote.Root(asset)
	require.NoError(t, err)
	require.True(t, ok)
	require.True(t, root.Equal(&want.Root))

	_, err = remote.GenerateProof(asset, 999)
	require.Error(t, err)
}

func TestClientBuildsWalletTransition(t *testing.T) {
	ledger := pool.New(field.FromUint64(1))
	w := seedLedger(t, ledger)
	srv := stubPool(t, ledger)
	remote := New(srv.URL)

	// the wallet builds against the remote read surface, the ledger accepts
	params, err := w.BuildAddFunds(remote, 25)
	require.NoError(t, err)
	res, err := ledger.AddFunds(params)
	require.NoError(t, err)
	require.NoError(t, w.Apply(res))
	require.Equal(t, uint64(175), w.TrueShares())
}

func TestClientAggregate(t *testing.T) {
	ledger := pool.New(field.FromUint64(1))
	seedLedger(t, ledger)
	srv := stubPool(t, ledger)
	remote := New(srv.URL)
	asset := field.FromUint64(2)

	agg, err := remote.DiscoveryAggregate(asset)
	require.NoError(t, err)
	require.True(t, agg.Present)
	require.Equal(t, uint64(2), agg.Count)
	require.True(t, agg.Verify())

	want := ledger.DiscoveryAggregate(asset)
	require.True(t, field.PointsEqual(&agg.Point, &want.Point))
}
