// Package queryapi implements the QueryAPI contract of spec §4.8: the
// read surface over TransactionLog and QuantileCalculator shared by
// concurrent request handlers (spec §5). Grounded on this project's
// teacher's apiserver controllers, which layer a thin read-only query
// struct over the DAG's persisted stores the same way this package
// layers over txlog/quantile.
package queryapi

import (
	"github.com/daglabs/sidetree-anchor-engine/anchor"
	"github.com/daglabs/sidetree-anchor-engine/chain"
	"github.com/daglabs/sidetree-anchor-engine/errkind"
	"github.com/daglabs/sidetree-anchor-engine/quantile"
	"github.com/daglabs/sidetree-anchor-engine/txlog"
	"github.com/daglabs/sidetree-anchor-engine/txnum"
)

// Config holds the proof-of-fee read-path parameters from spec §6.
type Config struct {
	PageSize                 uint32
	BatchSizeInBlocks        uint32
	HistoricalOffsetInBlocks uint32
	QuantileScale            float64
}

// API is the QueryAPI (spec §4.8).
type API struct {
	log      *txlog.Log
	quantile *quantile.Calculator
	chain    chain.Client
	cfg      Config
}

// New constructs an API.
func New(log *txlog.Log, quantileCalc *quantile.Calculator, chainClient chain.Client, cfg Config) *API {
	return &API{log: log, quantile: quantileCalc, chain: chainClient, cfg: cfg}
}

// Time implements QueryAPI.time (spec §4.8): if hash is empty, returns
// the current tip; otherwise resolves the given block hash upstream to
// its height.
func (a *API) Time(hash string) (height uint32, resolvedHash string, err error) {
	if hash == "" {
		height, err = a.chain.TipHeight()
		if err != nil {
			return 0, "", err
		}
		resolvedHash, err = a.chain.BlockHash(height)
		if err != nil {
			return 0, "", err
		}
		return height, resolvedHash, nil
	}
	height, err = a.chain.HeightForHash(hash)
	if err != nil {
		return 0, "", err
	}
	return height, hash, nil
}

// TransactionsResult is the result of Transactions (spec §6's
// "Transactions" query surface shape).
type TransactionsResult struct {
	MoreTransactions bool
	Transactions     []anchor.Record
}

// Transactions implements QueryAPI.transactions (spec §4.8).
func (a *API) Transactions(since *uint64, hash *string) (*TransactionsResult, error) {
	if (since == nil) != (hash == nil) {
		return nil, errkind.BadRequest("since and hash must both be set or both be absent")
	}
	if since != nil && hash != nil {
		height := txnum.BlockOf(*since)
		actualHash, err := a.chain.BlockHash(height)
		if err != nil {
			return nil, err
		}
		if actualHash != *hash {
			return nil, errkind.BadRequest("caller's view of block %d is on a stale fork", height)
		}
	}

	records, err := a.log.LaterThan(since, a.cfg.PageSize)
	if err != nil {
		return nil, err
	}
	return &TransactionsResult{
		MoreTransactions: uint32(len(records)) == a.cfg.PageSize,
		Transactions:     records,
	}, nil
}

// FirstValidTransaction implements QueryAPI.first_valid_transaction
// (spec §4.8): the first record in list whose (height, hash) still
// matches upstream; ok=false if none do.
func (a *API) FirstValidTransaction(list []anchor.Record) (anchor.Record, bool, error) {
	for _, rec := range list {
		hash, err := a.chain.BlockHash(rec.BlockHeight)
		if err != nil {
			return anchor.Record{}, false, err
		}
		if hash == rec.BlockHash {
			return rec, true, nil
		}
	}
	return anchor.Record{}, false, nil
}

// Fee implements QueryAPI.fee (spec §4.8): the normalized fee for block,
// or ok=false if no snapshot exists yet for the relevant batch.
func (a *API) Fee(block uint32) (uint64, bool, error) {
	var effectiveBlock uint32
	if block > a.cfg.HistoricalOffsetInBlocks {
		effectiveBlock = block - a.cfg.HistoricalOffsetInBlocks
	}
	batchID := txnum.BatchID(effectiveBlock, a.cfg.BatchSizeInBlocks)
	value, ok, err := a.quantile.Quantile(batchID)
	if err != nil || !ok {
		return 0, false, err
	}
	normalized := uint64(float64(value) * a.cfg.QuantileScale)
	return normalized, true, nil
}
