// wire.go - JSON schema shared by poold's read surface and this client.
//
// Field elements travel as 0x-prefixed big-endian hex; curve points as their
// two coordinates. The server never exposes anything a public observer could
// not derive from the ledger's membership surface.

package client

import (
	"fmt"

	"github.com/consensys/gnark-crypto/ecc/bn254/fr"
	"github.com/ethereum/go-ethereum/common/hexutil"

	"shieldedpool/internal/field"
	"shieldedpool/internal/imt"
)

// EncodeFr renders a field element as 0x-prefixed hex.
func EncodeFr(v fr.Element) string {
	b := v.Bytes()
	return hexutil.Encode(b[:])
}

// DecodeFr parses a 0x-prefixed hex field element.
func DecodeFr(s string) (fr.Element, error) {
	b, err := hexutil.Decode(s)
	if err != nil {
		return fr.Element{}, fmt.Errorf("decode field element: %w", err)
	}
	if len(b) > fr.Bytes {
		return fr.Element{}, fmt.Errorf("field element too long: %d bytes", len(b))
	}
	var v fr.Element
	v.SetBytes(b)
	return v, nil
}

// RootResponse answers /v1/root.
type RootResponse struct {
	Present bool   `json:"present"`
	Root    string `json:"root,omitempty"`
	Depth   int    `json:"depth"`
	Size    uint64 `json:"size"`
}

// UsedResponse answers /v1/used.
type UsedResponse struct {
	Used bool `json:"used"`
}

// StateResponse answers /v1/state.
type StateResponse struct {
	Found     bool   `json:"found"`
	Balance   string `json:"balance,omitempty"`
	Nullifier string `json:"nullifier,omitempty"`
}

// KindResponse answers /v1/kind.
type KindResponse struct {
	Found           bool   `json:"found"`
	Kind            int    `json:"kind,omitempty"`
	NonceCommitment string `json:"nonce_commitment,omitempty"`
	Leaf            string `json:"leaf,omitempty"`
	MintedShares    uint64 `json:"minted_shares,omitempty"`
}

// ProofResponse answers /v1/proof.
type ProofResponse struct {
	Index    uint64   `json:"index"`
	Depth    int      `json:"depth"`
	Leaf     string   `json:"leaf"`
	Root     string   `json:"root"`
	Siblings []string `json:"siblings"`
	Present  []bool   `json:"present"`
}

// AggregateResponse answers /v1/aggregate.
type AggregateResponse struct {
	Present bool   `json:"present"`
	PointX  string `json:"point_x,omitempty"`
	PointY  string `json:"point_y,omitempty"`
	SumM    string `json:"sum_m,omitempty"`
	SumR    string `json:"sum_r,omitempty"`
	Count   uint64 `json:"count"`
}

// ErrorResponse is the body of every non-2xx answer.
type ErrorResponse struct {
	Error string `json:"error"`
}

// ProofFromWire rebuilds an imt.Proof from its wire form.
func ProofFromWire(r ProofResponse) (imt.Proof, error) {
	if len(r.Siblings) != len(r.Present) {
		return imt.Proof{}, fmt.Errorf("sibling and presence lists disagree")
	}
	if len(r.Siblings) > imt.MaxDepth {
		return imt.Proof{}, fmt.Errorf("proof deeper than the tree maximum")
	}
	p := imt.Proof{Index: r.Index, Depth: r.Depth}
	var err error
	if p.Leaf, err = DecodeFr(r.Leaf); err != nil {
		return imt.Proof{}, err
	}
	if p.Root, err = DecodeFr(r.Root); err != nil {
		return imt.Proof{}, err
	}
	for i, s := range r.Siblings {
		if p.Siblings[i], err = DecodeFr(s); err != nil {
			return imt.Proof{}, err
		}
		p.Present[i] = r.Present[i]
	}
	return p, nil
}

// ProofToWire renders an imt.Proof for transport. Only the levels up to the
// proof depth are carried.
func ProofToWire(p imt.Proof) ProofResponse {
	r := ProofResponse{
		Index: p.Index,
		Depth: p.Depth,
		Leaf:  EncodeFr(p.Leaf),
		Root:  EncodeFr(p.Root),
	}
	for i := 0; i < p.Depth; i++ {
		r.Siblings = append(r.Siblings, EncodeFr(p.Siblings[i]))
		r.Present = append(r.Present, p.Present[i])
	}
	return r
}

// PointFromWire rebuilds a curve point from two hex coordinates.
func PointFromWire(x, y string) (field.Point, error) {
	var p field.Point
	var err error
	if p.X, err = DecodeFr(x); err != nil {
		return field.Point{}, err
	}
	if p.Y, err = DecodeFr(y); err != nil {
		return field.Point{}, err
	}
	return p, nil
}
