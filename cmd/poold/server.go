// server.go - HTTP read surface over the ledger.
//
// Everything served here is public data: tree roots and proofs, the used set,
// ciphertexts only a view key opens, operation kinds and the discovery
// aggregate. There is no mutating endpoint; transitions reach the ledger
// through the host chain, not through poold.
package main

import (
	"encoding/json"
	"net/http"
	"strconv"
	"time"

	"github.com/consensys/gnark-crypto/ecc/bn254/fr"
	"github.com/rs/zerolog"

	"shieldedpool/client"
	"shieldedpool/internal/pool"
)

type server struct {
	ledger *pool.Ledger
	log    zerolog.Logger
	start  time.Time
}

func newServer(ledger *pool.Ledger, log zerolog.Logger) *server {
	return &server{ledger: ledger, log: log, start: time.Now()}
}

func (s *server) routes(limiter *clientRateLimiter) http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc("/v1/root", s.handleRoot)
	mux.HandleFunc("/v1/proof", s.handleProof)
	mux.HandleFunc("/v1/used", s.handleUsed)
	mux.HandleFunc("/v1/state", s.handleState)
	mux.HandleFunc("/v1/kind", s.handleKind)
	mux.HandleFunc("/v1/aggregate", s.handleAggregate)
	mux.HandleFunc("/healthz", s.handleHealth)
	mux.HandleFunc("/metricsz", s.handleMetrics)
	return limiter.middleware(mux)
}

func (s *server) writeJSON(w http.ResponseWriter, status int, body any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(body); err != nil {
		s.log.Error().Err(err).Msg("encode response")
	}
}

func (s *server) writeError(w http.ResponseWriter, status int, msg string) {
	s.writeJSON(w, status, client.ErrorResponse{Error: msg})
}

// assetParam parses the mandatory asset query parameter.
func (s *server) assetParam(w http.ResponseWriter, r *http.Request) (fr.Element, bool) {
	raw := r.URL.Query().Get("asset")
	if raw == "" {
		s.writeError(w, http.StatusBadRequest, "missing asset parameter")
		return fr.Element{}, false
	}
	asset, err := client.DecodeFr(raw)
	if err != nil {
		s.writeError(w, http.StatusBadRequest, "malformed asset parameter")
		return fr.Element{}, false
	}
	return asset, true
}

func (s *server) frParam(w http.ResponseWriter, r *http.Request, name string) (fr.Element, bool) {
	raw := r.URL.Query().Get(name)
	if raw == "" {
		s.writeError(w, http.StatusBadRequest, "missing "+name+" parameter")
		return fr.Element{}, false
	}
	v, err := client.DecodeFr(raw)
	if err != nil {
		s.writeError(w, http.StatusBadRequest, "malformed "+name+" parameter")
		return fr.Element{}, false
	}
	return v, true
}

func (s *server) handleRoot(w http.ResponseWriter, r *http.Request) {
	asset, ok := s.assetParam(w, r)
	if !ok {
		return
	}
	resp := client.RootResponse{
		Depth: s.ledger.Depth(asset),
		Size:  s.ledger.Size(asset),
	}
	if root, present := s.ledger.Root(asset); present {
		resp.Present = true
		resp.Root = client.EncodeFr(root)
	}
	s.writeJSON(w, http.StatusOK, resp)
}

func (s *server) handleProof(w http.ResponseWriter, r *http.Request) {
	asset, ok := s.assetParam(w, r)
	if !ok {
		return
	}
	index, err := strconv.ParseUint(r.URL.Query().Get("index"), 10, 64)
	if err != nil {
		s.writeError(w, http.StatusBadRequest, "malformed index parameter")
		return
	}
	proof, err := s.ledger.GenerateProof(asset, index)
	if err != nil {
		s.writeError(w, http.StatusNotFound, err.Error())
		return
	}
	s.writeJSON(w, http.StatusOK, client.ProofToWire(proof))
}

func (s *server) handleUsed(w http.ResponseWriter, r *http.Request) {
	asset, ok := s.assetParam(w, r)
	if !ok {
		return
	}
	id, ok := s.frParam(w, r, "id")
	if !ok {
		return
	}
	used, err := s.ledger.IsUsed(asset, id)
	if err != nil {
		s.writeError(w, http.StatusInternalServerError, err.Error())
		return
	}
	s.writeJSON(w, http.StatusOK, client.UsedResponse{Used: used})
}

func (s *server) handleState(w http.ResponseWriter, r *http.Request) {
	asset, ok := s.assetParam(w, r)
	if !ok {
		return
	}
	nc, ok := s.frParam(w, r, "nc")
	if !ok {
		return
	}
	enc, found, err := s.ledger.ReadEncryptedState(asset, nc)
	if err != nil {
		s.writeError(w, http.StatusInternalServerError, err.Error())
		return
	}
	resp := client.StateResponse{Found: found}
	if found {
		resp.Balance = client.EncodeFr(enc.Balance)
		resp.Nullifier = client.EncodeFr(enc.Nullifier)
	}
	s.writeJSON(w, http.StatusOK, resp)
}

func (s *server) handleKind(w http.ResponseWriter, r *http.Request) {
	asset, ok := s.assetParam(w, r)
	if !ok {
		return
	}
	nc, ok := s.frParam(w, r, "nc")
	if !ok {
		return
	}
	rec, found, err := s.ledger.ReadOperationKind(asset, nc)
	if err != nil {
		s.writeError(w, http.StatusInternalServerError, err.Error())
		return
	}
	resp := client.KindResponse{Found: found}
	if found {
		resp.Kind = int(rec.Kind)
		resp.NonceCommitment = client.EncodeFr(rec.NonceCommitment)
		resp.Leaf = client.EncodeFr(rec.Leaf)
		resp.MintedShares = rec.MintedShares
	}
	s.writeJSON(w, http.StatusOK, resp)
}

func (s *server) handleAggregate(w http.ResponseWriter, r *http.Request) {
	asset, ok := s.assetParam(w, r)
	if !ok {
		return
	}
	agg := s.ledger.DiscoveryAggregate(asset)
	resp := client.AggregateResponse{Present: agg.Present, Count: agg.Count}
	if agg.Present {
		resp.PointX = client.EncodeFr(agg.Point.X)
		resp.PointY = client.EncodeFr(agg.Point.Y)
		resp.SumM = client.EncodeFr(agg.SumM)
		resp.SumR = client.EncodeFr(agg.SumR)
	}
	s.writeJSON(w, http.StatusOK, resp)
}

func (s *server) handleHealth(w http.ResponseWriter, _ *http.Request) {
	s.writeJSON(w, http.StatusOK, map[string]any{
		"status":         "ok",
		"uptime_seconds": int64(time.Since(s.start).Seconds()),
	})
}

func (s *server) handleMetrics(w http.ResponseWriter, _ *http.Request) {
	s.writeJSON(w, http.StatusOK, s.ledger.Metrics().Snapshot())
}
