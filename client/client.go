// Package client is the HTTP counterpart of poold's read surface. It
// implements the same membership and tree-reader interfaces the in-process
// ledger offers, so the discovery protocol and a wallet run unchanged against
// a remote pool.
package client

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"
	"time"

	"github.com/consensys/gnark-crypto/ecc/bn254/fr"
	"github.com/rs/zerolog"

	"shieldedpool/internal/imt"
	"shieldedpool/internal/pedersen"
	"shieldedpool/internal/pool"
)

// DefaultTimeout bounds one request round trip.
const DefaultTimeout = 10 * time.Second

// Client queries a remote poold. The zero value is not usable; construct with
// New.
type Client struct {
	base    string
	http    *http.Client
	log     zerolog.Logger
	timeout time.Duration
}

// Option configures a Client.
type Option func(*Client)

// WithHTTPClient swaps the underlying transport.
func WithHTTPClient(h *http.Client) Option {
	return func(c *Client) { c.http = h }
}

// WithLogger installs a structured logger; the default discards everything.
func WithLogger(log zerolog.Logger) Option {
	return func(c *Client) { c.log = log }
}

// WithTimeout bounds each request round trip.
func WithTimeout(d time.Duration) Option {
	return func(c *Client) { c.timeout = d }
}

// New creates a client for a poold base URL like "http://localhost:8545".
func New(base string, opts ...Option) *Client {
	c := &Client{
		base:    base,
		http:    &http.Client{},
		log:     zerolog.Nop(),
		timeout: DefaultTimeout,
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

func (c *Client) getJSON(path string, query url.Values, out any) error {
	ctx, cancel := context.WithTimeout(context.Background(), c.timeout)
	defer cancel()

	u := c.base + path
	if len(query) > 0 {
		u += "?" + query.Encode()
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, u, nil)
	if err != nil {
		return fmt.Errorf("build request: %w", err)
	}
	c.log.Debug().Str("url", u).Msg("pool query")
	resp, err := c.http.Do(req)
	if err != nil {
		return fmt.Errorf("query pool: %w", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		var e ErrorResponse
		if json.NewDecoder(resp.Body).Decode(&e) == nil && e.Error != "" {
			return fmt.Errorf("pool returned %d: %s", resp.StatusCode, e.Error)
		}
		return fmt.Errorf("pool returned %d", resp.StatusCode)
	}
	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return fmt.Errorf("decode pool response: %w", err)
	}
	return nil
}

func assetQuery(assetID fr.Element) url.Values {
	return url.Values{"asset": []string{EncodeFr(assetID)}}
}

// Root returns the current root of the asset's tree; ok is false while the
// tree is empty.
func (c *Client) Root(assetID fr.Element) (fr.Element, bool, error) {
	var r RootResponse
	if err := c.getJSON("/v1/root", assetQuery(assetID), &r); err != nil {
		return fr.Element{}, false, err
	}
	if !r.Present {
		return fr.Element{}, false, nil
	}
	root, err := DecodeFr(r.Root)
	return root, err == nil, err
}

// IsUsed implements pool.MembershipOracle.
func (c *Client) IsUsed(assetID, id fr.Element) (bool, error) {
	q := assetQuery(assetID)
	q.Set("id", EncodeFr(id))
	var r UsedResponse
	if err := c.getJSON("/v1/used", q, &r); err != nil {
		return false, err
	}
	return r.Used, nil
}

// ReadEncryptedState implements pool.MembershipOracle.
func (c *Client) ReadEncryptedState(assetID, nonceCommitment fr.Element) (pool.EncryptedState, bool, error) {
	q := assetQuery(assetID)
	q.Set("nc", EncodeFr(nonceCommitment))
	var r StateResponse
	if err := c.getJSON("/v1/state", q, &r); err != nil {
		return pool.EncryptedState{}, false, err
	}
	if !r.Found {
		return pool.EncryptedState{}, false, nil
	}
	var enc pool.EncryptedState
	var err error
	if enc.Balance, err = DecodeFr(r.Balance); err != nil {
		return pool.EncryptedState{}, false, err
	}
	if enc.Nullifier, err = DecodeFr(r.Nullifier); err != nil {
		return pool.EncryptedState{}, false, err
	}
	return enc, true, nil
}

// ReadOperationKind implements pool.MembershipOracle.
func (c *Client) ReadOperationKind(assetID, nonceCommitment fr.Element) (pool.OperationRecord, bool, error) {
	q := assetQuery(assetID)
	q.Set("nc", EncodeFr(nonceCommitment))
	var r KindResponse
	if err := c.getJSON("/v1/kind", q, &r); err != nil {
		return pool.OperationRecord{}, false, err
	}
	if !r.Found {
		return pool.OperationRecord{}, false, nil
	}
	rec := pool.OperationRecord{
		Kind:         pool.OperationKind(r.Kind),
		MintedShares: r.MintedShares,
	}
	var err error
	if rec.NonceCommitment, err = DecodeFr(r.NonceCommitment); err != nil {
		return pool.OperationRecord{}, false, err
	}
	if rec.Leaf, err = DecodeFr(r.Leaf); err != nil {
		return pool.OperationRecord{}, false, err
	}
	return rec, true, nil
}

// GenerateProof implements pool.TreeReader.
func (c *Client) GenerateProof(assetID fr.Element, index uint64) (imt.Proof, error) {
	q := assetQuery(assetID)
	q.Set("index", fmt.Sprintf("%d", index))
	var r ProofResponse
	if err := c.getJSON("/v1/proof", q, &r); err != nil {
		return imt.Proof{}, err
	}
	return ProofFromWire(r)
}

// DiscoveryAggregate returns the asset's running discovery aggregate.
func (c *Client) DiscoveryAggregate(assetID fr.Element) (pedersen.Aggregate, error) {
	var r AggregateResponse
	if err := c.getJSON("/v1/aggregate", assetQuery(assetID), &r); err != nil {
		return pedersen.Aggregate{}, err
	}
	if !r.Present {
		return pedersen.Aggregate{}, nil
	}
	agg := pedersen.Aggregate{Present: true, Count: r.Count}
	var err error
	if agg.Point, err = PointFromWire(r.PointX, r.PointY); err != nil {
		return pedersen.Aggregate{}, err
	}
	if agg.SumM, err = DecodeFr(r.SumM); err != nil {
		return pedersen.Aggregate{}, err
	}
	if agg.SumR, err = DecodeFr(r.SumR); err != nil {
		return pedersen.Aggregate{}, err
	}
	return agg, nil
}

// Healthy reports whether the pool answers its health endpoint.
func (c *Client) Healthy() bool {
	var r struct {
		Status string `json:"status"`
	}
	if err := c.getJSON("/healthz", nil, &r); err != nil {
		return false
	}
	return r.Status == "ok"
}

// interface conformance
var (
	_ pool.MembershipOracle = (*Client)(nil)
	_ pool.TreeReader       = (*Client)(nil)
)
